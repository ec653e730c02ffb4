package auth_test

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-gateway/auth"
	"github.com/jrsteele09/go-auth-gateway/authflow"
	"github.com/jrsteele09/go-auth-gateway/idp/idptest"
	"github.com/jrsteele09/go-auth-gateway/internal/kv"
	"github.com/jrsteele09/go-auth-gateway/mfa"
	"github.com/jrsteele09/go-auth-gateway/roles"
	"github.com/jrsteele09/go-auth-gateway/sessions"
	"github.com/jrsteele09/go-auth-gateway/users"
	"github.com/stretchr/testify/require"
)

const (
	testRedirectURI = "http://localhost:3000/auth/callback"
	testSigningKey  = "0123456789abcdef0123456789abcdef"
)

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

func (c *captureSender) lastCode(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.sent)
	return c.sent[len(c.sent)-1].Code
}

type recordingMetrics struct {
	mu       sync.Mutex
	logins   map[string]int
	created  int
	revoked  int
	provider int
}

func (m *recordingMetrics) RecordLogin(flow, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[flow+":"+outcome]++
}

func (m *recordingMetrics) RecordSessionCreated(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
}

func (m *recordingMetrics) RecordSessionsRevoked(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked += n
}

func (m *recordingMetrics) ObserveProviderCall(string, string, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provider++
}

type acceptAssertions struct{}

func (acceptAssertions) VerifyAssertion(_ context.Context, c *mfa.Challenge, assertion string) error {
	if assertion != "ok:"+c.Nonce {
		return mfa.ErrInvalidAssertion
	}
	return nil
}

// testFixture holds all test dependencies
type testFixture struct {
	mu         sync.Mutex
	now        time.Time
	fake       *idptest.Server
	flows      *authflow.InMemoryRepo
	corpFlows  *authflow.InMemoryCorpRepo
	sessions   *sessions.InMemoryRepo
	directory  *users.InMemoryDirectory
	sender     *captureSender
	metrics    *recordingMetrics
	stepUp     *auth.StepUpIssuer
	corpTokens *auth.CorpTokenIssuer
	service    *auth.Service
}

type fixtureOption func(*fixtureSettings)

type fixtureSettings struct {
	passkeys bool
}

func withPasskeys() fixtureOption {
	return func(s *fixtureSettings) { s.passkeys = true }
}

// setupTestFixture wires a Service against a fake identity provider and
// in-memory stores.
func setupTestFixture(t *testing.T, opts ...fixtureOption) *testFixture {
	t.Helper()
	var settings fixtureSettings
	for _, o := range opts {
		o(&settings)
	}

	f := &testFixture{
		now:     time.Now(),
		fake:    idptest.New(t, append([]string{"offline_access"}, roles.PublicRoles...)...),
		flows:   authflow.NewInMemoryRepo(),
		sender:  &captureSender{},
		metrics: &recordingMetrics{logins: map[string]int{}},
	}
	f.corpFlows = authflow.NewInMemoryCorpRepo()
	f.sessions = sessions.NewInMemoryRepo(sessions.WithNowTime(f.clock))
	f.directory = users.NewInMemoryDirectory(f.clock)

	client := f.fake.NewClient(t)

	var mfaOptions []mfa.Option
	mfaOptions = append(mfaOptions, mfa.WithNowTime(f.clock))
	if settings.passkeys {
		mfaOptions = append(mfaOptions, mfa.WithAssertionVerifier(acceptAssertions{}))
	}
	mfaService, err := mfa.NewService(mfa.Config{RPID: "localhost"}, kv.NewMemory[mfa.Challenge](f.clock), f.sender, mfaOptions...)
	require.NoError(t, err)

	f.corpTokens, err = auth.NewCorpTokenIssuer([]byte(testSigningKey), "authgw-corp", roles.OpsAgent, 0, f.clock)
	require.NoError(t, err)
	f.stepUp, err = auth.NewStepUpIssuer([]byte(testSigningKey), "authgw", 0, f.clock)
	require.NoError(t, err)

	f.service, err = auth.NewService(
		auth.Repos{Flows: f.flows, CorpFlows: f.corpFlows, Sessions: f.sessions, Users: f.directory},
		client,
		auth.Config{
			AllowedRedirectURIs: []string{testRedirectURI},
			PublicRoles:         client.Roles(),
			CorpMembers:         auth.NewCorpMembership([]string{"corp.example"}, nil),
		},
		auth.WithNowTime(f.clock),
		auth.WithMetrics(f.metrics),
		auth.WithUserAdmin(client),
		auth.WithMFA(mfaService, f.corpTokens, f.stepUp),
	)
	require.NoError(t, err)
	return f
}

func (f *testFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *testFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// login runs a full public login for the fake's current identity.
func (f *testFixture) login(t *testing.T) *auth.SessionResponse {
	t.Helper()
	ctx := context.Background()
	start, err := f.service.StartLogin(ctx, auth.StartLoginRequest{RedirectURI: testRedirectURI})
	require.NoError(t, err)
	resp, err := f.service.CompleteLogin(ctx, auth.CompleteLoginRequest{Code: idptest.AuthCode, State: start.State, Device: "web"})
	require.NoError(t, err)
	return resp
}

func queryParam(t *testing.T, raw, name string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query().Get(name)
}

func identityFor(subject string) idptest.Identity {
	return idptest.Identity{Subject: subject, Email: subject + "@example.com", Roles: []string{roles.Customer}}
}
