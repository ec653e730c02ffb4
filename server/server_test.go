package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-gateway/auth"
	"github.com/jrsteele09/go-auth-gateway/authflow"
	"github.com/jrsteele09/go-auth-gateway/idp/idptest"
	"github.com/jrsteele09/go-auth-gateway/internal/config"
	"github.com/jrsteele09/go-auth-gateway/internal/kv"
	"github.com/jrsteele09/go-auth-gateway/internal/metrics"
	"github.com/jrsteele09/go-auth-gateway/mfa"
	"github.com/jrsteele09/go-auth-gateway/roles"
	"github.com/jrsteele09/go-auth-gateway/server"
	"github.com/jrsteele09/go-auth-gateway/sessions"
	"github.com/jrsteele09/go-auth-gateway/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

type captureSender struct {
	mu   sync.Mutex
	sent []mfa.Message
}

func (c *captureSender) Send(_ context.Context, msg mfa.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureSender) lastCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1].Code
}

// testFixture holds all test dependencies
type testFixture struct {
	fake   *idptest.Server
	sender *captureSender
	corp   *auth.CorpTokenIssuer
	cfg    config.Config
	deps   server.Dependencies
	server *server.Server
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	cfg, err := config.New()
	require.NoError(t, err)

	f := &testFixture{
		fake:   idptest.New(t, append([]string{"offline_access"}, roles.PublicRoles...)...),
		sender: &captureSender{},
	}
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	client := f.fake.NewClient(t)

	mfaService, err := mfa.NewService(mfa.Config{RPID: "localhost"}, kv.NewMemory[mfa.Challenge](time.Now), f.sender)
	require.NoError(t, err)
	f.corp, err = auth.NewCorpTokenIssuer([]byte(testSigningKey), "authgw-corp", roles.OpsAgent, 0, nil)
	require.NoError(t, err)
	stepUp, err := auth.NewStepUpIssuer([]byte(testSigningKey), "authgw", 0, nil)
	require.NoError(t, err)

	service, err := auth.NewService(
		auth.Repos{
			Flows:     authflow.NewInMemoryRepo(),
			CorpFlows: authflow.NewInMemoryCorpRepo(),
			Sessions:  sessions.NewInMemoryRepo(),
			Users:     users.NewInMemoryDirectory(time.Now),
		},
		client,
		auth.Config{
			AllowedRedirectURIs: cfg.GetAllowedRedirectURIs(),
			PublicRoles:         client.Roles(),
			CorpMembers:         auth.NewCorpMembership([]string{"corp.example"}, nil),
		},
		auth.WithMetrics(collector),
		auth.WithUserAdmin(client),
		auth.WithMFA(mfaService, f.corp, stepUp),
	)
	require.NoError(t, err)

	f.cfg = cfg
	f.deps = server.Dependencies{
		Auth: service,
		Authenticators: []server.Authenticator{
			{Realm: users.RealmPublic, Verifier: client, Roles: client.Roles()},
			{Realm: users.RealmCorp, Verifier: f.corp, Roles: roles.NewExtractor("", roles.CorpRoles...)},
		},
		Metrics: metrics.Handler(registry),
	}
	f.rebuild(t, nil)
	return f
}

// rebuild recreates the server after mutate adjusts the dependencies.
func (f *testFixture) rebuild(t *testing.T, mutate func(*server.Dependencies)) {
	t.Helper()
	if mutate != nil {
		mutate(&f.deps)
	}
	var err error
	f.server, err = server.New(f.cfg, f.deps)
	require.NoError(t, err)
}

type request struct {
	method  string
	path    string
	body    any
	token   string
	headers map[string]string
}

func (f *testFixture) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if req.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(req.body))
	}
	r := httptest.NewRequest(req.method, req.path, &body)
	r.Header.Set("Content-Type", "application/json")
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// login runs the public flow over HTTP and returns the session response.
func (f *testFixture) login(t *testing.T) auth.SessionResponse {
	t.Helper()
	return f.loginWithHeaders(t, map[string]string{"X-Device": "ios"})
}

func (f *testFixture) loginWithHeaders(t *testing.T, headers map[string]string) auth.SessionResponse {
	t.Helper()
	w := f.do(t, request{method: http.MethodPost, path: server.RouteLoginInit, body: map[string]string{}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	start := decode[auth.LoginStart](t, w)

	q := url.Values{"code": {idptest.AuthCode}, "state": {start.State}}
	w = f.do(t, request{method: http.MethodGet, path: server.RouteCallback + "?" + q.Encode(), headers: headers})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[auth.SessionResponse](t, w)
}

func (f *testFixture) tokenFor(subject string, held ...string) string {
	return f.fake.AccessToken(idptest.Identity{Subject: subject, Email: subject + "@example.com", Roles: held}, time.Minute)
}

func TestNewValidation(t *testing.T) {
	cfg, err := config.New()
	require.NoError(t, err)

	_, err = server.New(cfg, server.Dependencies{})
	require.Error(t, err)
}

func TestNewRejectsBadTrustedProxy(t *testing.T) {
	f := setupTestFixture(t)
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/33")
	cfg, err := config.New()
	require.NoError(t, err)

	_, err = server.New(cfg, f.deps)
	require.Error(t, err)
}

func TestSessionIPIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.loginWithHeaders(t, map[string]string{"X-Forwarded-For": "203.0.113.9"})
	require.Equal(t, "192.0.2.1", f.sessionIP(t, resp))
}

func TestSessionIPFromTrustedProxy(t *testing.T) {
	// httptest requests arrive from 192.0.2.1
	t.Setenv("TRUSTED_PROXIES", "192.0.2.0/24")
	f := setupTestFixture(t)

	cases := map[string]struct {
		forwarded string
		want      string
	}{
		"single hop":             {forwarded: "198.51.100.7", want: "198.51.100.7"},
		"spoofed leftmost entry": {forwarded: "203.0.113.9, 198.51.100.7", want: "198.51.100.7"},
		"chained proxies":        {forwarded: "198.51.100.7, 192.0.2.50", want: "198.51.100.7"},
		"no header":              {want: "192.0.2.1"},
		"garbage":                {forwarded: "not-an-ip", want: "192.0.2.1"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.forwarded != "" {
				headers["X-Forwarded-For"] = tc.forwarded
			}
			resp := f.loginWithHeaders(t, headers)
			require.Equal(t, tc.want, f.sessionIP(t, resp))
		})
	}
}

func (f *testFixture) sessionIP(t *testing.T, resp auth.SessionResponse) string {
	t.Helper()
	w := f.do(t, request{method: http.MethodGet, path: server.RouteSessionsMe, token: resp.Tokens.AccessToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var list struct {
		Sessions []sessions.UserSession `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	for _, s := range list.Sessions {
		if s.SessionID == resp.SessionID {
			return s.IP
		}
	}
	require.Failf(t, "session not listed", "session %s", resp.SessionID)
	return ""
}

func TestRoutesRegistered(t *testing.T) {
	f := setupTestFixture(t)
	routes := f.server.Routes()

	require.Contains(t, routes, "POST "+server.RouteLoginInit)
	require.Contains(t, routes, "GET "+server.RouteCallback)
	require.Contains(t, routes, "DELETE "+server.RouteSessionMe)
	require.Contains(t, routes, "PUT "+server.RouteAdminUserRole)
	require.Contains(t, routes, "GET "+server.RouteMetrics)
}

func TestHealth(t *testing.T) {
	f := setupTestFixture(t)

	w := f.do(t, request{method: http.MethodGet, path: server.RouteHealth})
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func (f *testFixture) doRaw(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, body)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, r)
	return w
}
