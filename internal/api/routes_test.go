package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"msgboard/internal/api/handlers"
	"msgboard/internal/api/middlewares"
	"msgboard/internal/api/models"
	"msgboard/internal/auth"
	"msgboard/pkg/config"
	"msgboard/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testUser     = "user@example.com"
	testPassword = "12341234"
	testZone     = "America/New_York"
)

var localStamp = regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} E[SD]T`)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	router   *gin.Engine
	services *fakeServices
	clock    *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, func(*config.Config) {})
}

func newTestEnvWith(t *testing.T, configure func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := &testClock{now: time.Now().UTC().Truncate(time.Second)}
	log := logger.NewDiscardLogger()
	cfg := &config.Config{
		Auth: config.AuthConfig{
			CookieSecure:      true,
			TimezoneCookieTTL: 365 * 24 * time.Hour,
		},
		API: config.APIConfig{
			CORS: config.CORSConfig{
				AllowedOrigins: []string{"http://localhost:8000"},
				AllowedMethods: []string{"GET", "POST"},
			},
		},
	}
	configure(cfg)

	creds, err := auth.NewCredentialStore(testUser, testPassword, bcrypt.MinCost)
	require.NoError(t, err)
	codec, err := auth.NewCodec(auth.CodecConfig{
		AccessSecret:  []byte("access"),
		RefreshSecret: []byte("refresh"),
		Now:           clk.Now,
	})
	require.NoError(t, err)

	audit := &memoryAudit{}
	manager, err := auth.NewManager(auth.ManagerConfig{
		Credentials: creds,
		Codec:       codec,
		Audit:       audit,
		Logger:      log,
	})
	require.NoError(t, err)

	services := &fakeServices{
		log:     log,
		cfg:     cfg,
		manager: manager,
		store:   &memoryStore{},
		audit:   audit,
		hub:     handlers.NewHub(log),
	}

	limits := RouteLimits{Login: middlewares.NewRateLimiter(5, time.Minute)}
	t.Cleanup(limits.Login.Stop)
	t.Cleanup(services.hub.Close)

	router, err := NewRouter(services, limits)
	require.NoError(t, err)

	return &testEnv{router: router, services: services, clock: clk}
}

func (e *testEnv) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func formRequest(method, path string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func loginForm(username, password, timezone string) url.Values {
	return url.Values{
		"username":      {username},
		"password":      {password},
		"user_timezone": {timezone},
	}
}

func cookieMap(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

// login performs a successful login and returns the session cookies.
func (e *testEnv) login(t *testing.T, timezone string) map[string]*http.Cookie {
	t.Helper()
	rec := e.do(formRequest(http.MethodPost, "/api/login", loginForm(testUser, testPassword, timezone)))
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := cookieMap(rec)
	require.Len(t, cookies, 3)
	return cookies
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorInfo {
	t.Helper()
	var resp models.BaseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return *resp.Error
}

func TestLogin_SetsSessionCookies(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(formRequest(http.MethodPost, "/api/login", loginForm(testUser, testPassword, testZone)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/msgs", rec.Header().Get("HX-Redirect"))
	assert.Contains(t, rec.Body.String(), "Login successful! Redirecting...")

	cookies := cookieMap(rec)
	require.Len(t, cookies, 3)

	want := map[string]int{
		models.CookieAccessToken:  1800,
		models.CookieRefreshToken: 604800,
		models.CookieTimezone:     31536000,
	}
	for name, maxAge := range want {
		c := cookies[name]
		require.NotNil(t, c, name)
		assert.Equal(t, maxAge, c.MaxAge, name)
		assert.True(t, c.HttpOnly, name)
		assert.True(t, c.Secure, name)
		assert.Equal(t, http.SameSiteStrictMode, c.SameSite, name)
		assert.Equal(t, "/", c.Path, name)
	}
	assert.Equal(t, testZone, cookies[models.CookieTimezone].Value)

	events := env.services.audit.all()
	require.Len(t, events, 1)
	assert.Equal(t, auth.OutcomeSuccess, events[0].Outcome)
}

func TestLogin_FailureIsGeneric(t *testing.T) {
	env := newTestEnv(t)

	wrongPassword := env.do(formRequest(http.MethodPost, "/api/login", loginForm(testUser, "nope", testZone)))
	wrongUser := env.do(formRequest(http.MethodPost, "/api/login", loginForm("admin", testPassword, testZone)))

	for _, rec := range []*httptest.ResponseRecorder{wrongPassword, wrongUser} {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid username or password")
		assert.Empty(t, rec.Result().Cookies())
		assert.Empty(t, rec.Header().Get("HX-Redirect"))
	}
	assert.Equal(t, wrongPassword.Body.String(), wrongUser.Body.String())
}

func TestLogin_Validation(t *testing.T) {
	env := newTestEnv(t)

	cases := map[string]url.Values{
		"missing timezone":  {"username": {testUser}, "password": {testPassword}},
		"missing password":  {"username": {testUser}, "user_timezone": {testZone}},
		"username too long": loginForm(strings.Repeat("u", 51), testPassword, testZone),
		"timezone too long": loginForm(testUser, testPassword, strings.Repeat("z", 51)),
		"password too long": loginForm(testUser, strings.Repeat("p", 101), testZone),
	}

	for name, form := range cases {
		t.Run(name, func(t *testing.T) {
			rec := env.do(formRequest(http.MethodPost, "/api/login", form))
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Equal(t, models.ErrCodeInvalidRequest, decodeError(t, rec).Code)
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestLogin_RateLimited(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 5; i++ {
		rec := env.do(formRequest(http.MethodPost, "/api/login", loginForm(testUser, "wrong", testZone)))
		require.Equal(t, http.StatusOK, rec.Code, "attempt %d", i+1)
	}

	rec := env.do(formRequest(http.MethodPost, "/api/login", loginForm(testUser, testPassword, testZone)))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, models.ErrCodeRateLimitExceeded, decodeError(t, rec).Code)
	assert.Empty(t, rec.Result().Cookies())

	// Another client is unaffected.
	req := formRequest(http.MethodPost, "/api/login", loginForm(testUser, testPassword, testZone))
	req.RemoteAddr = "198.51.100.20:4000"
	assert.Equal(t, http.StatusOK, env.do(req).Code)
}

func TestLogin_RateLimitIgnoresForwardedFor(t *testing.T) {
	env := newTestEnv(t)

	attempt := func(i int) *httptest.ResponseRecorder {
		req := formRequest(http.MethodPost, "/api/login", loginForm(testUser, "wrong", testZone))
		req.RemoteAddr = "198.51.100.9:5555"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("10.0.1.%d", i))
		return env.do(req)
	}

	for i := 1; i <= 5; i++ {
		require.Equal(t, http.StatusOK, attempt(i).Code, "attempt %d", i)
	}
	for i := 6; i <= 20; i++ {
		rec := attempt(i)
		require.Equal(t, http.StatusTooManyRequests, rec.Code, "attempt %d", i)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	}

	events := env.services.audit.all()
	require.Len(t, events, 5)
	for _, ev := range events {
		assert.Equal(t, "198.51.100.9", ev.ClientIP)
	}
}

func TestLogin_RateLimitTrustedProxy(t *testing.T) {
	env := newTestEnvWith(t, func(cfg *config.Config) {
		cfg.Server.TrustedProxies = []string{"192.0.2.0/24"}
	})

	attempt := func(client string) int {
		req := formRequest(http.MethodPost, "/api/login", loginForm(testUser, "wrong", testZone))
		req.RemoteAddr = "192.0.2.10:443"
		req.Header.Set("X-Forwarded-For", client)
		return env.do(req).Code
	}

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, attempt("203.0.113.1"))
	}
	assert.Equal(t, http.StatusTooManyRequests, attempt("203.0.113.1"))
	assert.Equal(t, http.StatusOK, attempt("203.0.113.2"), "a different client behind the proxy has its own budget")

	events := env.services.audit.all()
	require.NotEmpty(t, events)
	assert.Equal(t, "203.0.113.2", events[len(events)-1].ClientIP)
}

func TestNewRouter_InvalidTrustedProxy(t *testing.T) {
	env := newTestEnv(t)
	env.services.cfg.Server.TrustedProxies = []string{"not-an-address"}

	_, err := NewRouter(env.services, RouteLimits{})
	assert.Error(t, err)
}

func TestProtectedRoutes_UniformUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.login(t, testZone)
	access := cookies[models.CookieAccessToken]

	cases := map[string][]*http.Cookie{
		"no cookies":       nil,
		"missing timezone": {access},
		"wrong timezone":   {access, {Name: models.CookieTimezone, Value: "UTC"}},
		"refresh as access": {
			{Name: models.CookieAccessToken, Value: cookies[models.CookieRefreshToken].Value},
			cookies[models.CookieTimezone],
		},
		"garbage token": {{Name: models.CookieAccessToken, Value: "garbage"}, cookies[models.CookieTimezone]},
	}

	for name, jar := range cases {
		t.Run(name, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodGet, "/api/messages", nil), jar...)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			info := decodeError(t, rec)
			assert.Equal(t, models.ErrorInfo{Code: models.ErrCodeUnauthorized, Message: "Not authenticated"}, info)
		})
	}
}

func TestMessagesPage(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/msgs", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	cookies := env.login(t, testZone)
	rec = env.do(httptest.NewRequest(http.MethodGet, "/msgs", nil),
		cookies[models.CookieAccessToken], cookies[models.CookieTimezone])
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), testUser)
}

func TestIndexPageAndStatic(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `hx-post="/api/login"`)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAndListMessages(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.login(t, testZone)
	session := []*http.Cookie{cookies[models.CookieAccessToken], cookies[models.CookieTimezone]}

	rec := env.do(formRequest(http.MethodPost, "/api/message", url.Values{"message": {"hello <b>board</b>"}}), session...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hello &lt;b&gt;board&lt;/b&gt;")
	assert.Regexp(t, localStamp, rec.Body.String())

	stored, err := env.services.store.ListAll(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, time.UTC, stored[0].Timestamp.Location())

	env.do(formRequest(http.MethodPost, "/api/message", url.Values{"message": {"second"}}), session...)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/messages", nil), session...)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "second")
	assert.Contains(t, body, "hello &lt;b&gt;board&lt;/b&gt;")

	req := httptest.NewRequest(http.MethodGet, "/api/messages?q=SECOND", nil)
	req.Header.Set("Accept", "application/json")
	rec = env.do(req, session...)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool                 `json:"success"`
		Data    []models.MessageView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "second", resp.Data[0].Text)
	assert.Regexp(t, localStamp, resp.Data[0].Timestamp)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/messages/count", nil), session...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":2}`, string(mustData(t, rec)))
}

func TestCreateMessage_Validation(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.login(t, testZone)
	session := []*http.Cookie{cookies[models.CookieAccessToken], cookies[models.CookieTimezone]}

	for _, msg := range []string{"", strings.Repeat("m", 501)} {
		rec := env.do(formRequest(http.MethodPost, "/api/message", url.Values{"message": {msg}}), session...)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	}

	n, _ := env.services.store.Count(context.Background())
	assert.Zero(t, n)
}

func TestListMessages_InvalidRange(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.login(t, testZone)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/messages?from=yesterday", nil),
		cookies[models.CookieAccessToken], cookies[models.CookieTimezone])
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.login(t, testZone)
	tz := cookies[models.CookieTimezone]

	env.clock.Advance(31 * time.Minute)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/messages", nil), cookies[models.CookieAccessToken], tz)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/refresh", nil), cookies[models.CookieRefreshToken])
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Token refreshed")

	refreshed := cookieMap(rec)
	require.Len(t, refreshed, 1, "only the access cookie is replaced")
	access := refreshed[models.CookieAccessToken]
	require.NotNil(t, access)
	assert.Equal(t, 1800, access.MaxAge)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/messages", nil), access, tz)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefresh_Rejections(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.login(t, testZone)

	cases := map[string][]*http.Cookie{
		"no cookie":             nil,
		"access token":          {{Name: models.CookieRefreshToken, Value: cookies[models.CookieAccessToken].Value}},
		"garbage":               {{Name: models.CookieRefreshToken, Value: "garbage"}},
		"access cookie present": {cookies[models.CookieAccessToken]},
	}

	for name, jar := range cases {
		t.Run(name, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodPost, "/api/refresh", nil), jar...)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, models.ErrCodeUnauthorized, decodeError(t, rec).Code)
			assert.Empty(t, rec.Result().Cookies())
		})
	}

	env.clock.Advance(7 * 24 * time.Hour)
	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/refresh", nil), cookies[models.CookieRefreshToken])
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.login(t, testZone)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/logout", nil),
		cookies[models.CookieAccessToken], cookies[models.CookieRefreshToken], cookies[models.CookieTimezone])

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	cleared := cookieMap(rec)
	require.Len(t, cleared, 3)
	for name, c := range cleared {
		assert.Empty(t, c.Value, name)
		assert.Less(t, c.MaxAge, 0, name)
	}

	events := env.services.audit.all()
	require.Len(t, events, 2)
	assert.Equal(t, auth.ActionLogout, events[1].Action)
	assert.Equal(t, testUser, events[1].Username)
}

func TestLogout_WithoutSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/logout", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Len(t, cookieMap(rec), 3)
	assert.Empty(t, env.services.audit.all())
}

func TestAuditEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(formRequest(http.MethodPost, "/api/login", loginForm(testUser, "wrong", testZone)))
	cookies := env.login(t, testZone)

	req := httptest.NewRequest(http.MethodGet, "/api/audit?action=login&limit=10", nil)
	rec := env.do(req, cookies[models.CookieAccessToken], cookies[models.CookieTimezone])
	require.Equal(t, http.StatusOK, rec.Code)

	var data struct {
		Logs []models.AuditLogResponse `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(mustData(t, rec), &data))
	require.Len(t, data.Logs, 2)
	assert.Equal(t, auth.OutcomeSuccess, data.Logs[0].Outcome)
	assert.Equal(t, auth.OutcomeFailure, data.Logs[1].Outcome)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/audit?action=delete", nil),
		cookies[models.CookieAccessToken], cookies[models.CookieTimezone])
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	env.services.pingErr = errors.New("connection refused")
	rec = env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp models.HealthCheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "unhealthy", resp.Checks["database"].Status)
}

func TestMessageFeed(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.login(t, testZone)
	session := []*http.Cookie{cookies[models.CookieAccessToken], cookies[models.CookieTimezone]}

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	header := http.Header{}
	for _, c := range session {
		header.Add("Cookie", c.Name+"="+c.Value)
	}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err, "feed requires a session")
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.services.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	rec := env.do(formRequest(http.MethodPost, "/api/message", url.Values{"message": {"live"}}), session...)
	require.Equal(t, http.StatusOK, rec.Code)

	var event struct {
		Type string             `json:"type"`
		Data models.MessageView `json:"data"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, handlers.EventMessageCreated, event.Type)
	assert.Equal(t, "live", event.Data.Text)
	assert.Regexp(t, localStamp, event.Data.Timestamp)
}

func mustData(t *testing.T, rec *httptest.ResponseRecorder) json.RawMessage {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	return resp.Data
}

func TestMessageFeed_ClosesWhenAccessTokenExpires(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.login(t, testZone)
	tz := cookies[models.CookieTimezone]

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	header := http.Header{}
	header.Add("Cookie", cookies[models.CookieAccessToken].Name+"="+cookies[models.CookieAccessToken].Value)
	header.Add("Cookie", tz.Name+"="+tz.Value)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return env.services.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	env.clock.Advance(31 * time.Minute)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/refresh", nil), cookies[models.CookieRefreshToken])
	require.Equal(t, http.StatusOK, rec.Code)
	fresh := cookieMap(rec)[models.CookieAccessToken]
	require.NotNil(t, fresh)

	rec = env.do(formRequest(http.MethodPost, "/api/message", url.Values{"message": {"after expiry"}}), fresh, tz)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)

	require.Eventually(t, func() bool { return env.services.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
