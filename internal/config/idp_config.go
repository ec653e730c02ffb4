package config

import (
	"strings"
	"time"
)

type IdentityProviderConfig interface {
	GetIDPBaseURL() string
	GetIDPRealm() string
	GetIDPClientID() string
	GetIDPClientSecret() string
	GetIDPAdminClientID() string
	GetIDPAdminClientSecret() string
	GetIDPHint() string
	GetIDPScope() string
	GetIDPTimeout() time.Duration
	GetIDPEndpointOverrides() EndpointOverrides
	GetSupportedRoles() []string
}

// EndpointOverrides replaces individual provider endpoints. Blank values
// are derived from the base URL and realm.
type EndpointOverrides struct {
	Authorize  string `env:"IDP_AUTHORIZE_URL"`
	Token      string `env:"IDP_TOKEN_URL"`
	UserInfo   string `env:"IDP_USERINFO_URL"`
	Revocation string `env:"IDP_REVOCATION_URL"`
	Logout     string `env:"IDP_LOGOUT_URL"`
	JWKS       string `env:"IDP_JWKS_URL"`
	AdminUsers string `env:"IDP_ADMIN_USERS_URL"`
	AdminRoles string `env:"IDP_ADMIN_ROLES_URL"`
}

type IdentityProvider struct {
	IDPBaseURL        string        `env:"IDP_BASE_URL" envDefault:"http://localhost:8090"`
	IDPRealm          string        `env:"IDP_REALM" envDefault:"authservice"`
	ClientID          string        `env:"IDP_CLIENT_ID" envDefault:"authservice-client"`
	ClientSecret      string        `env:"IDP_CLIENT_SECRET"`
	AdminClientID     string        `env:"IDP_ADMIN_CLIENT_ID" envDefault:"authservice-admin"`
	AdminClientSecret string        `env:"IDP_ADMIN_CLIENT_SECRET"`
	Hint              string        `env:"IDP_HINT" envDefault:"google"`
	Scope             string        `env:"IDP_SCOPE" envDefault:"openid email profile"`
	Timeout           time.Duration `env:"IDP_TIMEOUT" envDefault:"3s"`
	SupportedRoles    []string      `env:"IDP_SUPPORTED_ROLES" envSeparator:"," envDefault:"customer,admin,support_agent,airline_ops"`
	Endpoints         EndpointOverrides
}

var _ IdentityProviderConfig = IdentityProvider{}

func (c IdentityProvider) GetIDPBaseURL() string {
	return strings.TrimRight(c.IDPBaseURL, "/")
}

func (c IdentityProvider) GetIDPRealm() string {
	return c.IDPRealm
}

func (c IdentityProvider) GetIDPClientID() string {
	return c.ClientID
}

func (c IdentityProvider) GetIDPClientSecret() string {
	return c.ClientSecret
}

func (c IdentityProvider) GetIDPAdminClientID() string {
	return c.AdminClientID
}

func (c IdentityProvider) GetIDPAdminClientSecret() string {
	return c.AdminClientSecret
}

func (c IdentityProvider) GetIDPHint() string {
	return c.Hint
}

func (c IdentityProvider) GetIDPScope() string {
	return c.Scope
}

func (c IdentityProvider) GetIDPTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 3 * time.Second
	}
	return c.Timeout
}

func (c IdentityProvider) GetIDPEndpointOverrides() EndpointOverrides {
	return c.Endpoints
}

func (c IdentityProvider) GetSupportedRoles() []string {
	return trimAll(c.SupportedRoles)
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
