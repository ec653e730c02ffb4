// Package idp is a client for a Keycloak style OpenID Connect provider: the
// token, userinfo, revocation and logout endpoints plus the admin API used to
// provision users and pin their realm role.
package idp

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-auth-gateway/internal/metrics"
	"github.com/jrsteele09/go-auth-gateway/roles"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	DefaultTimeout   = 3 * time.Second
	DefaultExpiresIn = int64(3600)
	DefaultScope     = "openid email profile"
)

// Endpoints are the provider URLs the client talks to.
type Endpoints struct {
	Issuer     string
	Authorize  string
	Token      string
	UserInfo   string
	Revocation string
	Logout     string
	JWKS       string
	AdminUsers string
	AdminRoles string
}

// KeycloakEndpoints derives the standard Keycloak layout for a realm.
func KeycloakEndpoints(baseURL, realm string) Endpoints {
	baseURL = strings.TrimRight(baseURL, "/")
	issuer := baseURL + "/realms/" + realm
	protocol := issuer + "/protocol/openid-connect"
	admin := baseURL + "/admin/realms/" + realm
	return Endpoints{
		Issuer:     issuer,
		Authorize:  protocol + "/auth",
		Token:      protocol + "/token",
		UserInfo:   protocol + "/userinfo",
		Revocation: protocol + "/revoke",
		Logout:     protocol + "/logout",
		JWKS:       protocol + "/certs",
		AdminUsers: admin + "/users",
		AdminRoles: admin + "/roles",
	}
}

// Override returns e with every non-empty field of o applied.
func (e Endpoints) Override(o Endpoints) Endpoints {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&e.Issuer, o.Issuer)
	set(&e.Authorize, o.Authorize)
	set(&e.Token, o.Token)
	set(&e.UserInfo, o.UserInfo)
	set(&e.Revocation, o.Revocation)
	set(&e.Logout, o.Logout)
	set(&e.JWKS, o.JWKS)
	set(&e.AdminUsers, o.AdminUsers)
	set(&e.AdminRoles, o.AdminRoles)
	return e
}

type Config struct {
	Endpoints         Endpoints
	ClientID          string
	ClientSecret      string
	AdminClientID     string // falls back to ClientID
	AdminClientSecret string // falls back to ClientSecret
	Scope             string
	IDPHint           string // sent as kc_idp_hint when set
	Realm             string // realm label put on resolved users
	Timeout           time.Duration
	SupportedRoles    []string
}

// Client is safe for concurrent use. It holds no per-user state.
type Client struct {
	cfg        Config
	httpClient *http.Client
	provider   *oidc.Provider
	keySet     oidc.KeySet
	idVerifier *oidc.IDTokenVerifier
	atVerifier *oidc.IDTokenVerifier
	roles      *roles.Extractor
	metrics    metrics.Recorder
	nowTime    func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithKeySet replaces the remote JWKS used for signature checks.
func WithKeySet(ks oidc.KeySet) Option {
	return func(c *Client) {
		c.keySet = ks
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

func New(cfg Config, options ...Option) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("[idp.New] client id is required")
	}
	if cfg.Endpoints.Token == "" || cfg.Endpoints.Authorize == "" {
		return nil, errors.New("[idp.New] authorize and token endpoints are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}
	if cfg.AdminClientID == "" {
		cfg.AdminClientID = cfg.ClientID
		cfg.AdminClientSecret = cfg.ClientSecret
	}
	if len(cfg.SupportedRoles) == 0 {
		cfg.SupportedRoles = roles.PublicRoles
	}

	c := &Client{
		cfg:     cfg,
		metrics: metrics.Nop{},
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	c.roles = roles.NewExtractor(cfg.ClientID, cfg.SupportedRoles...)

	ctx := oidc.ClientContext(context.Background(), c.httpClient)
	c.provider = (&oidc.ProviderConfig{
		IssuerURL:   cfg.Endpoints.Issuer,
		AuthURL:     cfg.Endpoints.Authorize,
		TokenURL:    cfg.Endpoints.Token,
		UserInfoURL: cfg.Endpoints.UserInfo,
		JWKSURL:     cfg.Endpoints.JWKS,
	}).NewProvider(ctx)

	if c.keySet == nil && cfg.Endpoints.JWKS != "" {
		c.keySet = oidc.NewRemoteKeySet(ctx, cfg.Endpoints.JWKS)
	}
	if c.keySet != nil {
		c.idVerifier = oidc.NewVerifier(cfg.Endpoints.Issuer, c.keySet, &oidc.Config{ClientID: cfg.ClientID, Now: c.nowTime})
		c.atVerifier = oidc.NewVerifier(cfg.Endpoints.Issuer, c.keySet, &oidc.Config{SkipClientIDCheck: true, Now: c.nowTime})
	}
	return c, nil
}

// Roles returns the extractor bound to this client's id and whitelist.
func (c *Client) Roles() *roles.Extractor {
	return c.roles
}

func (c *Client) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       strings.Fields(c.cfg.Scope),
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.cfg.Endpoints.Authorize,
			TokenURL:  c.cfg.Endpoints.Token,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// callContext bounds one provider call and carries the HTTP client for
// x/oauth2 and go-oidc.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return oidc.ClientContext(ctx, c.httpClient), cancel
}

func (c *Client) observe(op string, start time.Time, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	c.metrics.ObserveProviderCall(op, outcome, time.Since(start))
}
