package claim

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(f *fixture) *fiber.App {
	h := NewHandler(newTestService(f))
	app := fiber.New()
	app.Post("/claims/sessions", h.Start)
	app.Get("/claims/sessions/:id", h.Get)
	app.Post("/claims/verify", h.Verify)
	app.Post("/claims/back", h.Back)
	app.Post("/claims/confirm", h.Confirm)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	res, err := app.Test(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var out response
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res, out
}

func TestHandlerVerifyConfirmFlow(t *testing.T) {
	f := newFixture()
	app := newTestApp(f)

	res, out := doJSON(t, app, http.MethodPost, "/claims/verify", map[string]string{
		"orderNumber": "1234", "email": "a@b.com", "handle": "builder_bob",
	})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, out.OK)
	assert.Equal(t, StepConfirm, out.Step)
	require.NotNil(t, out.Identity)
	assert.Equal(t, int64(1337), out.Identity.NumericID)
	assert.Equal(t, 5, out.AttemptsRemaining)

	res, out = doJSON(t, app, http.MethodPost, "/claims/confirm", map[string]any{
		"sessionId": out.SessionID, "orderNumber": "1234", "email": "a@b.com", "handle": "builder_bob",
		"identity": map[string]any{"numericId": 1337, "avatarRef": bob.AvatarRef},
	})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, out.OK)
	assert.Equal(t, StepClaim, out.Step)
	assert.Len(t, f.notifier.records, 1)

	res, out = doJSON(t, app, http.MethodGet, "/claims/sessions/"+out.SessionID, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, StepClaim, out.Step)
}

func TestHandlerVerifyNotFoundHandle(t *testing.T) {
	app := newTestApp(newFixture())

	res, out := doJSON(t, app, http.MethodPost, "/claims/verify", map[string]string{
		"orderNumber": "1234", "email": "a@b.com", "handle": "ghost_user_zzz",
	})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.False(t, out.OK)
	assert.Equal(t, "identity_not_found", out.Reason)
	assert.Equal(t, StepVerify, out.Step)
	assert.NotEmpty(t, out.SessionID)
	assert.Nil(t, out.Identity)
	assert.Equal(t, 4, out.AttemptsRemaining)
}

func TestHandlerVerifyInvalidInput(t *testing.T) {
	app := newTestApp(newFixture())

	res, out := doJSON(t, app, http.MethodPost, "/claims/verify", map[string]string{"orderNumber": "1234", "email": "nope"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "invalid_input", out.Reason)
	assert.Len(t, out.Fields, 2)
}

func TestHandlerRateLimitedSetsRetryAfter(t *testing.T) {
	f := newFixture()
	f.limiter.deny = true
	app := newTestApp(f)

	res, out := doJSON(t, app, http.MethodPost, "/claims/verify", map[string]string{
		"orderNumber": "1234", "email": "a@b.com", "handle": "builder_bob",
	})
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.Equal(t, "rate_limited", out.Reason)
	assert.Equal(t, "30", res.Header.Get("Retry-After"))
}

func TestHandlerUnknownSession(t *testing.T) {
	app := newTestApp(newFixture())

	res, out := doJSON(t, app, http.MethodPost, "/claims/back", map[string]string{"sessionId": "missing"})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "session_not_found", out.Reason)
}

func TestHandlerConfirmRequiresSession(t *testing.T) {
	f := newFixture()
	app := newTestApp(f)

	res, out := doJSON(t, app, http.MethodPost, "/claims/confirm", map[string]any{
		"orderNumber": "1234", "email": "a@b.com", "handle": "builder_bob",
		"identity": map[string]any{"numericId": bob.NumericID},
	})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "session_not_found", out.Reason)
	assert.Empty(t, f.notifier.records)
}

func TestHandlerStartAndBackFromVerify(t *testing.T) {
	app := newTestApp(newFixture())

	res, out := doJSON(t, app, http.MethodPost, "/claims/sessions", nil)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, StepVerify, out.Step)

	res, out = doJSON(t, app, http.MethodPost, "/claims/back", map[string]string{"sessionId": out.SessionID})
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "invalid_step", out.Reason)
}
