package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	t     *testing.T
	srv   *httptest.Server
	users *services.UserService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.StorageMode = config.StorageMemory
	cfg.LockoutThreshold = 2
	cfg.ExposeTokens = true

	hasher, err := auth.NewHasher(auth.HasherParams{Memory: 64, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)

	store := memory.NewStore()
	log := logging.NewNopLogger()
	as, err := services.NewAuthService(store, store, hasher, cfg, log)
	require.NoError(t, err)
	us := services.NewUserService(store, store, hasher, log)

	s := NewHTTPServer(":0", log, as, us, time.Second)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)

	return &testAPI{t: t, srv: ts, users: us}
}

func (a *testAPI) do(method, path, token string, body any) (*http.Response, map[string]any) {
	a.t.Helper()

	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.srv.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (a *testAPI) register(name, email string) map[string]any {
	a.t.Helper()
	resp, body := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "correct horse",
	})
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	return body
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	resp, body := a.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body["status"])
}

func TestRegister_ValidationAndConflict(t *testing.T) {
	a := newTestAPI(t)

	resp, body := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "A", "email": "not-an-email", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")

	body = a.register("Alice", "alice@example.com")
	user := body["user"].(map[string]any)
	assert.Equal(t, "alice@example.com", user["email"])
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEmpty(t, body["refreshToken"])
	assert.NotContains(t, user, "password_hash")

	resp, _ = a.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Alice", "email": "ALICE@example.com", "password": "correct horse",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestLogin_LockoutReturns423WithRetryAfter(t *testing.T) {
	a := newTestAPI(t)
	a.register("Alice", "alice@example.com")

	wrong := map[string]string{"email": "alice@example.com", "password": "wrong password"}

	resp, body := a.do(http.MethodPost, "/api/auth/login", "", wrong)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 1, body["remainingAttempts"])

	resp, _ = a.do(http.MethodPost, "/api/auth/login", "", wrong)
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
	assert.Equal(t, "900", resp.Header.Get("Retry-After"))

	resp, _ = a.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "correct horse",
	})
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
}

func TestRefreshAndLogoutAll(t *testing.T) {
	a := newTestAPI(t)
	reg := a.register("Alice", "alice@example.com")
	access := reg["accessToken"].(string)
	refresh := reg["refreshToken"].(string)

	resp, pair := a.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := pair["refreshToken"].(string)
	assert.NotEqual(t, refresh, rotated)

	resp, _ = a.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": refresh})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = a.do(http.MethodPost, "/api/auth/logout-all", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = a.do(http.MethodPost, "/api/auth/logout-all", access, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = a.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": rotated})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestForgotAndResetPassword(t *testing.T) {
	a := newTestAPI(t)
	a.register("Alice", "alice@example.com")

	resp, body := a.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.NotContains(t, body, "token")

	resp, body = a.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "alice@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := body["token"].(string)

	reset := map[string]string{"token": token, "password": "battery staple"}
	resp, _ = a.do(http.MethodPost, "/api/auth/reset-password", "", reset)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = a.do(http.MethodPost, "/api/auth/reset-password", "", reset)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = a.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "battery staple",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestVerifyEmail(t *testing.T) {
	a := newTestAPI(t)
	reg := a.register("Alice", "alice@example.com")
	access := reg["accessToken"].(string)

	resp, _ := a.do(http.MethodGet, "/api/auth/verify-email", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = a.do(http.MethodGet, "/api/auth/verify-email?token=unknown", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := a.do(http.MethodPost, "/api/auth/verify-email/request", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := body["token"].(string)

	resp, _ = a.do(http.MethodGet, "/api/auth/verify-email?token="+token, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = a.do(http.MethodGet, "/api/me", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user := body["user"].(map[string]any)
	assert.NotEmpty(t, user["email_verified_at"])
}

func TestMe_ChangePassword(t *testing.T) {
	a := newTestAPI(t)
	reg := a.register("Alice", "alice@example.com")
	access := reg["accessToken"].(string)

	resp, _ := a.do(http.MethodPatch, "/api/me/password", access, map[string]string{
		"currentPassword": "wrong password", "newPassword": "battery staple",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = a.do(http.MethodPatch, "/api/me/password", access, map[string]string{
		"currentPassword": "correct horse", "newPassword": "battery staple",
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestUsers_RequireAdmin(t *testing.T) {
	a := newTestAPI(t)
	reg := a.register("Alice", "alice@example.com")
	userToken := reg["accessToken"].(string)
	aliceID := reg["user"].(map[string]any)["id"].(string)

	resp, _ := a.do(http.MethodGet, "/api/users", userToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, err := a.users.Create(context.Background(), "Root", "root@example.com", "admin password", models.RoleAdmin)
	require.NoError(t, err)
	resp, body := a.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "root@example.com", "password": "admin password",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	admin := body["accessToken"].(string)

	resp, body = a.do(http.MethodGet, "/api/users?page=1&pageSize=10", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 10, body["pageSize"])

	resp, _ = a.do(http.MethodGet, "/api/users?page=abc", admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = a.do(http.MethodPatch, "/api/users/"+aliceID, admin, map[string]string{"status": "SUSPENDED"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "SUSPENDED", body["user"].(map[string]any)["status"])

	resp, _ = a.do(http.MethodPatch, "/api/users/"+aliceID, admin, map[string]string{"role": "ROOT"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = a.do(http.MethodDelete, "/api/users/"+aliceID, admin, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = a.do(http.MethodGet, "/api/users/missing", admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAPI(t)
	a.do(http.MethodGet, "/health", "", nil)

	resp, err := a.srv.Client().Get(a.srv.URL + "/api/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
}

func TestAPI_CORSAndSecurityHeaders(t *testing.T) {
	a := newTestAPI(t)

	req, err := http.NewRequest(http.MethodOptions, a.srv.URL+"/api/auth/login", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, err := a.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)

	resp, _ = a.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", resp.Header.Get("Referrer-Policy"))
}

func TestAPI_MountedUnderPrefix(t *testing.T) {
	a := newTestAPI(t)

	resp, _ := a.do(http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "correct horse",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	a.register("Alice", "alice@example.com")
	resp, _ = a.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "correct horse",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
