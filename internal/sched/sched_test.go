package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeFiresInOrder(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var got []string
	f.AfterFunc(2*time.Second, func() { got = append(got, "b") })
	f.AfterFunc(time.Second, func() { got = append(got, "a") })

	f.Advance(3 * time.Second)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 0, f.Pending())
}

func TestFakeStop(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	fired := false
	h := f.AfterFunc(time.Second, func() { fired = true })
	h.Stop()
	f.Advance(5 * time.Second)
	assert.False(t, fired)
}

func TestFakeNestedSchedules(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var got []string
	f.AfterFunc(time.Second, func() {
		got = append(got, "first")
		f.AfterFunc(time.Second, func() { got = append(got, "second") })
	})

	f.Advance(2 * time.Second)
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestFakeDoesNotFireEarly(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	fired := false
	f.AfterFunc(10*time.Second, func() { fired = true })
	f.Advance(9 * time.Second)
	assert.False(t, fired)
	assert.Equal(t, 1, f.Pending())
}
