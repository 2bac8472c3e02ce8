// Package sched abstracts timer scheduling so timer-driven soft state
// (typing expiry, reconnect backoff) can be tested against a virtual clock.
package sched

import (
	"sort"
	"sync"
	"time"
)

// Handle cancels a scheduled task. Stop is safe to call more than once and
// after the task has fired.
type Handle interface {
	Stop()
}

// Scheduler runs a function once after a delay.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Handle
}

type realScheduler struct{}

// Real returns a Scheduler backed by the wall clock.
func Real() Scheduler { return realScheduler{} }

func (realScheduler) Now() time.Time { return time.Now() }

func (realScheduler) AfterFunc(d time.Duration, fn func()) Handle {
	return realHandle{t: time.AfterFunc(d, fn)}
}

type realHandle struct{ t *time.Timer }

func (h realHandle) Stop() { h.t.Stop() }

// Fake is a manually advanced Scheduler for tests.
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*fakeTask
}

type fakeTask struct {
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fake    *Fake
}

func (t *fakeTask) Stop() {
	t.fake.mu.Lock()
	t.stopped = true
	t.fake.mu.Unlock()
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTask{at: f.now.Add(d), seq: f.seq, fn: fn, fake: f}
	f.tasks = append(f.tasks, t)
	return t
}

// Advance moves the virtual clock forward, firing due tasks in order.
// Tasks scheduled by fired tasks run too if they fall within the window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()
	for {
		t := f.popDue(target)
		if t == nil {
			break
		}
		t.fn()
	}
	f.mu.Lock()
	f.now = target
	f.mu.Unlock()
}

func (f *Fake) popDue(target time.Time) *fakeTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	pending := f.tasks[:0]
	for _, t := range f.tasks {
		if !t.stopped {
			pending = append(pending, t)
		}
	}
	f.tasks = pending
	sort.SliceStable(f.tasks, func(i, j int) bool {
		if f.tasks[i].at.Equal(f.tasks[j].at) {
			return f.tasks[i].seq < f.tasks[j].seq
		}
		return f.tasks[i].at.Before(f.tasks[j].at)
	})
	if len(f.tasks) == 0 || f.tasks[0].at.After(target) {
		return nil
	}
	t := f.tasks[0]
	f.tasks = f.tasks[1:]
	if t.at.After(f.now) {
		f.now = t.at
	}
	return t
}

// Pending reports how many live tasks are scheduled.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tasks {
		if !t.stopped {
			n++
		}
	}
	return n
}
