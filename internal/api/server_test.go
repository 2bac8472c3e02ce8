package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/messaging/internal/auth"
	"github.com/yourorg/messaging/internal/delivery"
	"github.com/yourorg/messaging/internal/hub"
	"github.com/yourorg/messaging/internal/logger"
	"github.com/yourorg/messaging/internal/models"
	"github.com/yourorg/messaging/internal/ratelimit"
	"github.com/yourorg/messaging/internal/repository"
	"github.com/yourorg/messaging/internal/service"
)

const testSecret = "test-secret"

func newTestApp(t *testing.T, gate ratelimit.Gate) *fiber.App {
	t.Helper()
	store := repository.NewMemoryStore()
	h := hub.New(nil, logger.Nop())
	fanout := delivery.NewFanout(store, h, nil, logger.Nop())
	svc := service.New(store, gate, fanout, logger.Nop())
	return NewServer(svc, h, auth.NewValidator(testSecret), logger.Nop())
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doJSON(t *testing.T, app *fiber.App, method, path, userID string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAuthRequired(t *testing.T) {
	app := newTestApp(t, ratelimit.AllowAll{})
	resp := doJSON(t, app, http.MethodGet, "/v1/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSendAndFetchMessageFlow(t *testing.T) {
	app := newTestApp(t, ratelimit.AllowAll{})

	resp := doJSON(t, app, http.MethodPost, "/v1/conversations", "u1", fiber.Map{
		"participants": []string{"u2"},
		"type":         "direct",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	conv := decode[models.Conversation](t, resp)
	require.NotEmpty(t, conv.ID)

	resp = doJSON(t, app, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", "u1", fiber.Map{
		"content": "hi",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	msg := decode[models.Message](t, resp)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, "u1", msg.SenderID)

	resp = doJSON(t, app, http.MethodGet, "/v1/conversations/"+conv.ID+"/messages?limit=50&offset=0", "u2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[struct {
		Messages []models.Message `json:"messages"`
		Count    int              `json:"count"`
	}](t, resp)
	require.Equal(t, 1, page.Count)
	assert.Equal(t, "hi", page.Messages[0].Content)
}

func TestErrorTaxonomyMapping(t *testing.T) {
	app := newTestApp(t, ratelimit.AllowAll{})

	// validation -> 400
	resp := doJSON(t, app, http.MethodPost, "/v1/conversations", "u1", fiber.Map{
		"participants": []string{"u2", "u3"},
		"type":         "direct",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// not found -> 404
	resp = doJSON(t, app, http.MethodGet, "/v1/conversations/nope", "u1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// permission -> 403
	resp = doJSON(t, app, http.MethodPost, "/v1/conversations", "u1", fiber.Map{
		"participants": []string{"u2"},
		"type":         "direct",
	})
	conv := decode[models.Conversation](t, resp)
	resp = doJSON(t, app, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", "intruder", fiber.Map{
		"content": "let me in",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRateLimitMappedWithRetryAfter(t *testing.T) {
	app := newTestApp(t, ratelimit.NewMemoryGate(1, time.Minute))

	resp := doJSON(t, app, http.MethodPost, "/v1/conversations", "u1", fiber.Map{
		"participants": []string{"u2"},
		"type":         "direct",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	conv := decode[models.Conversation](t, resp)

	resp = doJSON(t, app, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", "u1", fiber.Map{"content": "one"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", "u1", fiber.Map{"content": "two"})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	retry, ok := body["retry_after_seconds"].(float64)
	require.True(t, ok, "body: %v", body)
	assert.Greater(t, retry, 0.0)
}

func TestRemoveParticipantFromDirectRejected(t *testing.T) {
	app := newTestApp(t, ratelimit.AllowAll{})

	resp := doJSON(t, app, http.MethodPost, "/v1/conversations", "u1", fiber.Map{
		"participants": []string{"u2"},
		"type":         "direct",
	})
	conv := decode[models.Conversation](t, resp)

	resp = doJSON(t, app, http.MethodDelete,
		fmt.Sprintf("/v1/conversations/%s/participants/u2", conv.ID), "u1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Contains(t, body["error"], "direct conversations")
}
