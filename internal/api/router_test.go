package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mw "github.com/leadcrm/leadcrm/internal/api/middleware"
	"github.com/leadcrm/leadcrm/internal/auth"
	"github.com/leadcrm/leadcrm/internal/domain"
	"github.com/leadcrm/leadcrm/internal/store"
	"github.com/leadcrm/leadcrm/internal/token"
)

type envelope struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
}

type testServer struct {
	t      *testing.T
	srv    *httptest.Server
	tokens *token.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	codec, err := token.NewCodec([]byte("router-test-secret"))
	require.NoError(t, err)
	tokens := token.NewService(codec)
	mem := store.NewMemory()

	app := NewApp(Deps{
		Tenants:        mem.Tenants(),
		Users:          mem.Users(),
		Leads:          mem.Leads(),
		Tokens:         tokens,
		Hasher:         auth.NewHasher(4),
		Logger:         zap.NewNop(),
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	})
	srv := httptest.NewServer(app.Router)
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, tokens: tokens}
}

func (s *testServer) do(method, path, bearer string, body any, cookies ...*http.Cookie) (*http.Response, envelope) {
	s.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, r)
	require.NoError(s.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(s.t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

type authData struct {
	User         domain.User   `json:"user"`
	Tenant       domain.Tenant `json:"tenant"`
	Token        string        `json:"token"`
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
}

func (s *testServer) register(company, email string) authData {
	s.t.Helper()
	resp, env := s.do(http.MethodPost, "/auth/register-tenant", "", map[string]any{
		"companyName": company,
		"email":       email,
		"password":    "pa55word!",
		"firstName":   "Ada",
		"lastName":    "Admin",
	})
	require.Equal(s.t, http.StatusCreated, resp.StatusCode, env.Message)
	var d authData
	require.NoError(s.t, json.Unmarshal(env.Data, &d))
	return d
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == mw.SessionCookie {
			return c
		}
	}
	return nil
}

func TestPreflight(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/auth/login", "/v1/leads/abc", "/does-not-exist"} {
		resp, _ := s.do(http.MethodOptions, path, "", nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode, path)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Content-Type, Authorization", resp.Header.Get("Access-Control-Allow-Headers"))
		assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "PATCH")
	}
}

func TestRegisterTenant(t *testing.T) {
	s := newTestServer(t)
	d := s.register("Acme", "ada@acme.com")

	assert.Equal(t, domain.RoleTenantAdmin, d.User.Role)
	assert.Equal(t, d.Tenant.ID, d.User.TenantID)
	assert.NotEmpty(t, d.AccessToken)
	assert.NotEmpty(t, d.RefreshToken)

	resp, env := s.do(http.MethodPost, "/auth/register-tenant", "", map[string]any{
		"companyName": "Other", "email": "ada@acme.com", "password": "x", "firstName": "A", "lastName": "B",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "error", env.Status)
	assert.NotEmpty(t, env.Timestamp)

	resp, env = s.do(http.MethodPost, "/auth/register-tenant", "", map[string]any{"email": "x@y.z"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, env.Message, "companyName")
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	s.register("Acme", "ada@acme.com")

	resp, env := s.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "ada@acme.com", "password": "pa55word!"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", env.Status)
	var d authData
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.Equal(t, d.Token, d.AccessToken)
	assert.NotEmpty(t, d.RefreshToken)
	assert.NotNil(t, sessionCookie(resp))

	resp, env = s.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "ada@acme.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "error", env.Status)
}

func TestLeadsRequireAuth(t *testing.T) {
	s := newTestServer(t)
	resp, _ := s.do(http.MethodGet, "/v1/leads", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = s.do(http.MethodGet, "/v1/leads", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	d := s.register("Acme", "ada@acme.com")
	resp, _ = s.do(http.MethodGet, "/v1/leads", d.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "refresh tokens are not access tokens")
}

func TestLeadLifecycleAndIsolation(t *testing.T) {
	s := newTestServer(t)
	acme := s.register("Acme", "ada@acme.com")
	globex := s.register("Globex", "gus@globex.com")

	resp, env := s.do(http.MethodPost, "/v1/leads", acme.AccessToken, map[string]any{
		"firstName": "Bob", "lastName": "Buyer", "email": "bob@example.com",
		"address": map[string]string{"street": "1 Main St", "city": "Austin", "state": "TX", "zipCode": "78701"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Message)
	var lead domain.Lead
	require.NoError(t, json.Unmarshal(env.Data, &lead))
	assert.Equal(t, "New", lead.Status.Name)

	resp, _ = s.do(http.MethodPost, "/v1/leads", acme.AccessToken, map[string]any{
		"firstName": "Eve", "email": "eve@example.com", "tenantId": globex.Tenant.ID,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, env = s.do(http.MethodPatch, "/v1/leads/"+lead.ID, acme.AccessToken, map[string]any{"statusId": "status_6"})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	require.NoError(t, json.Unmarshal(env.Data, &lead))
	require.Len(t, lead.History, 2)
	assert.Equal(t, domain.HistoryStatusChanged, lead.History[1].Action)
	assert.Equal(t, "Sold", lead.History[1].NewValue)

	resp, _ = s.do(http.MethodPatch, "/v1/leads/"+lead.ID, acme.AccessToken, map[string]any{"statusId": "status_42"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, "/v1/leads/"+lead.ID+"/notes", acme.AccessToken, map[string]string{"content": "<b>signed</b>"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/v1/leads/" + lead.ID},
		{http.MethodPatch, "/v1/leads/" + lead.ID},
		{http.MethodDelete, "/v1/leads/" + lead.ID},
		{http.MethodPost, "/v1/leads/" + lead.ID + "/notes"},
	} {
		resp, _ := s.do(tc.method, tc.path, globex.AccessToken, map[string]string{"content": "x", "firstName": "x"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "%s %s", tc.method, tc.path)
	}

	resp, env = s.do(http.MethodGet, "/v1/leads", globex.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(env.Data))

	resp, env = s.do(http.MethodGet, "/v1/leads", acme.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var leads []domain.Lead
	require.NoError(t, json.Unmarshal(env.Data, &leads))
	require.Len(t, leads, 1)
	assert.Len(t, leads[0].Notes, 1)

	resp, _ = s.do(http.MethodDelete, "/v1/leads/"+lead.ID, acme.AccessToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(http.MethodDelete, "/v1/leads/"+lead.ID, acme.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCookieSessionMeRefreshLogout(t *testing.T) {
	s := newTestServer(t)
	s.register("Acme", "ada@acme.com")

	resp, _ := s.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "ada@acme.com", "password": "pa55word!"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)

	resp, env := s.do(http.MethodGet, "/auth/me", "", nil, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	var me struct {
		User        domain.User         `json:"user"`
		Permissions []domain.Permission `json:"permissions"`
		Tenant      domain.Tenant       `json:"tenant"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "ada@acme.com", me.User.Email)
	assert.Contains(t, me.Permissions, domain.PermManageUsers)
	assert.Equal(t, "Acme", me.Tenant.Name)

	resp, env = s.do(http.MethodPost, "/auth/refresh", "", nil, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	var refreshed map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &refreshed))
	_, err := s.tokens.Verify(refreshed["accessToken"])
	require.NoError(t, err)

	resp, _ = s.do(http.MethodPost, "/auth/logout", "", nil, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(http.MethodGet, "/v1/leads", "", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSessionSlotsAreRandom(t *testing.T) {
	s := newTestServer(t)
	s.register("Acme", "ada@acme.com")

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		resp, _ := s.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "ada@acme.com", "password": "pa55word!"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		c := sessionCookie(resp)
		require.NotNil(t, c)

		id, err := uuid.Parse(c.Value)
		require.NoError(t, err, c.Value)
		assert.Equal(t, uuid.Version(4), id.Version())
		assert.False(t, seen[c.Value], "slot reused")
		seen[c.Value] = true
	}
}

func TestRefreshWithBody(t *testing.T) {
	s := newTestServer(t)
	d := s.register("Acme", "ada@acme.com")

	resp, _ := s.do(http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": d.RefreshToken})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": d.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, "/auth/refresh", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminAddsUser(t *testing.T) {
	s := newTestServer(t)
	d := s.register("Acme", "ada@acme.com")

	resp, env := s.do(http.MethodPost, "/v1/users", d.AccessToken, map[string]string{
		"email": "rep@acme.com", "password": "rep-pass", "firstName": "Rita", "lastName": "Rep", "role": "USER",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Message)

	resp, env = s.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "rep@acme.com", "password": "rep-pass"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rep authData
	require.NoError(t, json.Unmarshal(env.Data, &rep))
	assert.Equal(t, d.Tenant.ID, rep.User.TenantID)

	resp, _ = s.do(http.MethodPost, "/v1/users", rep.AccessToken, map[string]string{"email": "x@acme.com", "password": "p"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, "/v1/users", d.AccessToken, map[string]string{"email": "rep@acme.com", "password": "p"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExpiredBearerToken(t *testing.T) {
	s := newTestServer(t)
	d := s.register("Acme", "ada@acme.com")

	codec, err := token.NewCodec([]byte("router-test-secret"))
	require.NoError(t, err)
	old := token.NewService(codec, token.WithClock(func() time.Time { return time.Now().Add(-48 * time.Hour) }))
	pair, err := old.IssueTokenPair(&d.User)
	require.NoError(t, err)

	resp, env := s.do(http.MethodGet, "/v1/leads", pair.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "token expired", env.Message)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	resp, env := s.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), "version")
	assert.NotEmpty(t, resp.Header.Get(mw.RequestIDHeader))

	s.do(http.MethodGet, "/v1/leads", "", nil)

	scrape := func() string {
		resp, err := http.Get(s.srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}
	// Request counters are bumped after the response is flushed.
	assert.Eventually(t, func() bool {
		return strings.Contains(scrape(), `http_requests_total{method="GET",route="/health",status="200"}`)
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, scrape(), `auth_failures_total{reason="missing"}`)
}
