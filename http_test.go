package accounts_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/middleware/csrf"
)

const sessionCookie = "accounts.session"

// browser replays cookies between requests the way a real client does
type browser struct {
	t       *testing.T
	app     *fiber.App
	cookies map[string]*http.Cookie
	csrf    string
}

func newBrowser(t *testing.T, app *fiber.App) *browser {
	return &browser{t: t, app: app, cookies: make(map[string]*http.Cookie)}
}

func (b *browser) do(method, path string, body any, headers map[string]string) *http.Response {
	b.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(b.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range b.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	resp, err := b.app.Test(req, -1)
	require.NoError(b.t, err)

	for _, c := range resp.Cookies() {
		if c.Value == "" || (!c.Expires.IsZero() && c.Expires.Before(time.Now())) {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}

	return resp
}

func (b *browser) handshake() {
	b.t.Helper()

	resp := b.do(http.MethodGet, "/csrf-token", nil, nil)
	require.Equal(b.t, http.StatusOK, resp.StatusCode)

	var payload map[string]string
	require.NoError(b.t, json.NewDecoder(resp.Body).Decode(&payload))
	require.NotEmpty(b.t, payload["token"])
	assert.Equal(b.t, "X-CSRF-Token", payload["header_name"])

	b.csrf = payload["token"]
}

func (b *browser) post(path string, body any) *http.Response {
	b.t.Helper()
	return b.do(http.MethodPost, path, body, map[string]string{"X-CSRF-Token": b.csrf})
}

func (b *browser) login(handle, password string) {
	b.t.Helper()
	resp := b.post("/api/users/login", map[string]string{"handle": handle, "password": password})
	require.Equal(b.t, http.StatusOK, resp.StatusCode)
	require.Contains(b.t, b.cookies, sessionCookie)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	return decode[map[string]string](t, resp)["error"]
}

func newTestServer(t *testing.T) (*fixture, *fiber.App) {
	f := newFixture()
	f.create(t, "admin", "admin-pass", true)

	app := accounts.NewHTTPServer(accounts.ServerOptions{
		Service: f.service,
		Config:  newMockConfig(),
		Logger:  accounts.NoopLogger(),
	}).WrappedRouter()
	return f, app
}

func TestHTTPCSRFHandshake(t *testing.T) {
	_, app := newTestServer(t)
	b := newBrowser(t, app)

	resp := b.do(http.MethodPost, "/api/users/list", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "no token at all")
	assert.NotEmpty(t, errorMessage(t, resp))

	resp = b.do(http.MethodPost, "/api/users/list", nil, map[string]string{"X-CSRF-Token": "guess"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "guessed token without handshake")

	b.handshake()
	require.Contains(t, b.cookies, accounts.SessionIDCookie)

	resp = b.do(http.MethodPost, "/api/users/list", nil, map[string]string{"X-CSRF-Token": "wrong"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = b.post("/api/users/list", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	views := decode[[]accounts.AccountView](t, resp)
	require.Len(t, views, 1)
	assert.Equal(t, "admin", views[0].Handle)
	assert.True(t, views[0].Password)

	other := newBrowser(t, app)
	other.handshake()
	assert.NotEqual(t, b.csrf, other.csrf, "tokens are bound to the session id")

	other.csrf = b.csrf
	resp = other.post("/api/users/list", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHTTPLoginAndMe(t *testing.T) {
	_, app := newTestServer(t)
	b := newBrowser(t, app)
	b.handshake()

	resp := b.post("/api/users/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = b.post("/api/users/login", map[string]string{"handle": "admin", "password": "nope"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, accounts.ErrInvalidCredentials.Message, errorMessage(t, resp))
	assert.NotContains(t, b.cookies, sessionCookie)

	resp = b.post("/api/users/login", map[string]string{"handle": "ghost"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "unknown handles look like bad passwords")

	b.login("Admin", "admin-pass")

	resp = b.post("/api/users/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[accounts.AccountView](t, resp)
	assert.Equal(t, "admin", me.Handle)
	assert.True(t, me.Admin)

	resp = b.post("/api/users/logout", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NotContains(t, b.cookies, sessionCookie)

	resp = b.post("/api/users/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTPBadBody(t *testing.T) {
	_, app := newTestServer(t)
	b := newBrowser(t, app)
	b.handshake()

	req := map[string]string{"X-CSRF-Token": b.csrf, "Content-Type": "application/json"}
	resp := b.do(http.MethodPost, "/api/users/login", "{not json", req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = b.post("/api/users/login", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, accounts.ErrMissingFields.Message, errorMessage(t, resp))
}

func TestHTTPAdminEndpoints(t *testing.T) {
	ctx := t.Context()
	f, app := newTestServer(t)

	anon := newBrowser(t, app)
	anon.handshake()
	resp := anon.post("/api/users/admin/get", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	admin := newBrowser(t, app)
	admin.handshake()
	admin.login("admin", "admin-pass")

	resp = admin.post("/api/users/admin/create", map[string]any{"handle": "Bob Jones", "name": "Bob"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bob-jones", decode[map[string]string](t, resp)["handle"])

	resp = admin.post("/api/users/admin/create", map[string]any{"handle": "bob-jones", "name": "Bob"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, accounts.ErrAccountExists.Message, errorMessage(t, resp))

	resp = admin.post("/api/users/admin/create", map[string]any{"handle": "nameless"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	bob := newBrowser(t, app)
	bob.handshake()
	bob.login("bob-jones", "")

	resp = bob.post("/api/users/admin/get", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "regular accounts are refused")

	resp = admin.post("/api/users/admin/get", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]accounts.AccountView](t, resp), 2)

	resp = admin.post("/api/users/admin/disable", map[string]string{"handle": "admin"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, accounts.ErrCannotDisableSelf.Message, errorMessage(t, resp))

	resp = admin.post("/api/users/admin/disable", map[string]string{"handle": "ghost"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = admin.post("/api/users/admin/disable", map[string]string{"handle": "bob-jones"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	stored, err := f.store.Get(ctx, "bob-jones")
	require.NoError(t, err)
	assert.False(t, stored.Enabled)

	resp = bob.post("/api/users/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "disabled account loses its session")
	assert.NotContains(t, bob.cookies, sessionCookie)

	resp = admin.post("/api/users/list", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]accounts.AccountView](t, resp), 1, "public list skips disabled accounts")

	resp = admin.post("/api/users/admin/enable", map[string]string{"handle": "bob-jones"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = admin.post("/api/users/admin/promote", map[string]string{"handle": "bob-jones"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = admin.post("/api/users/admin/demote", map[string]string{"handle": "admin"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = admin.post("/api/users/admin/demote", map[string]string{"handle": "bob-jones"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestHTTPChangePassword(t *testing.T) {
	_, app := newTestServer(t)
	b := newBrowser(t, app)
	b.handshake()

	resp := b.post("/api/users/change-password", map[string]string{"newPassword": "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	b.login("admin", "admin-pass")

	resp = b.post("/api/users/change-password", map[string]string{"oldPassword": "bad", "newPassword": "x"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = b.post("/api/users/change-password", map[string]string{"oldPassword": "admin-pass", "newPassword": "rotated"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	fresh := newBrowser(t, app)
	fresh.handshake()
	fresh.login("admin", "rotated")
}

func TestHTTPRecovery(t *testing.T) {
	f, app := newTestServer(t)
	b := newBrowser(t, app)
	b.handshake()

	resp := b.post("/api/users/recover-step1", map[string]string{"handle": "ghost"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = b.post("/api/users/recover-step1", map[string]string{"handle": "admin"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	code := f.inbox.last("admin")
	require.NotEmpty(t, code)

	resp = b.post("/api/users/recover-step2", map[string]string{"handle": "admin", "code": "nope", "newPassword": "x"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, accounts.ErrInvalidRecoveryCode.Message, errorMessage(t, resp))
	assert.NotContains(t, b.cookies, sessionCookie)

	resp = b.post("/api/users/recover-step2", map[string]string{"handle": "admin", "code": code, "newPassword": "brand-new"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, b.cookies, sessionCookie, "recovery logs the account in")

	resp = b.post("/api/users/me", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: accounts.HTTPErrorHandler(accounts.NoopLogger())})

	app.Get("/internal", func(c *fiber.Ctx) error {
		return goerrors.New("database password leaked here", goerrors.CategoryInternal)
	})
	app.Get("/plain", func(c *fiber.Ctx) error {
		return io.ErrUnexpectedEOF
	})
	app.Get("/category", func(c *fiber.Ctx) error {
		return goerrors.New("slow down", goerrors.CategoryRateLimit)
	})

	cases := []struct {
		path    string
		status  int
		message string
	}{
		{"/internal", http.StatusInternalServerError, "Internal server error"},
		{"/plain", http.StatusInternalServerError, "Internal server error"},
		{"/category", http.StatusTooManyRequests, "slow down"},
		{"/missing", http.StatusNotFound, "Cannot GET /missing"},
	}

	for _, tc := range cases {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, tc.path, nil))
		require.NoError(t, err)
		assert.Equal(t, tc.status, resp.StatusCode, tc.path)
		assert.Equal(t, tc.message, errorMessage(t, resp), tc.path)
	}
}

func TestHTTPBearerToken(t *testing.T) {
	_, app := newTestServer(t)

	b := newBrowser(t, app)
	b.handshake()
	b.login("admin", "admin-pass")
	token := b.cookies[sessionCookie].Value

	api := newBrowser(t, app)
	api.handshake()

	resp := api.do(http.MethodPost, "/api/users/me", nil, map[string]string{
		"X-CSRF-Token":  api.csrf,
		"Authorization": "Bearer " + token,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "admin", decode[accounts.AccountView](t, resp).Handle)

	resp = api.do(http.MethodPost, "/api/users/me", nil, map[string]string{
		"X-CSRF-Token":  api.csrf,
		"Authorization": "Bearer " + token + "x",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTPCookielessTrafficKeepsCSRFStorageBounded(t *testing.T) {
	f := newFixture()
	storage := csrf.NewMemoryStorage(csrf.WithMemoryStorageLimit(20))

	app := accounts.NewHTTPServer(accounts.ServerOptions{
		Service:     f.service,
		Config:      newMockConfig(),
		Logger:      accounts.NoopLogger(),
		CSRFStorage: storage,
	}).WrappedRouter()

	for i := 0; i < 150; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/csrf-token", nil), -1)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/nowhere", nil), -1)
		require.NoError(t, err)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	}

	assert.Equal(t, 20, storage.Len())
}
