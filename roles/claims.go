package roles

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

var ErrMalformedToken = errors.New("malformed access token")

// Access is a role list as found under realm_access and resource_access.
type Access struct {
	Roles []string `json:"roles,omitempty"`
}

// Claims is the access token claim set issued by the identity provider.
type Claims struct {
	jwt.RegisteredClaims
	RealmAccess       *Access           `json:"realm_access,omitempty"`    // Realm level role mappings
	ResourceAccess    map[string]Access `json:"resource_access,omitempty"` // Client level role mappings, keyed by client id
	AuthorizedParty   string            `json:"azp,omitempty"`             // Client the token was issued to
	Scope             string            `json:"scope,omitempty"`           // Space separated granted scopes
	Email             string            `json:"email,omitempty"`
	EmailVerified     bool              `json:"email_verified,omitempty"`
	PreferredUsername string            `json:"preferred_username,omitempty"`
	GivenName         string            `json:"given_name,omitempty"`
	FamilyName        string            `json:"family_name,omitempty"`
	ACR               string            `json:"acr,omitempty"` // Authentication context class
	SessionID         string            `json:"sid,omitempty"` // Provider session the token belongs to
}

// RealmRoles returns realm_access.roles, or nil.
func (c *Claims) RealmRoles() []string {
	if c == nil || c.RealmAccess == nil {
		return nil
	}
	return c.RealmAccess.Roles
}

// ClientRoles returns resource_access.<clientID>.roles, or nil.
func (c *Claims) ClientRoles(clientID string) []string {
	if c == nil || c.ResourceAccess == nil {
		return nil
	}
	return c.ResourceAccess[clientID].Roles
}

// EmailOrUsername prefers the email claim and falls back to a
// preferred_username that looks like an address.
func (c *Claims) EmailOrUsername() string {
	if c.Email != "" {
		return c.Email
	}
	if strings.Contains(c.PreferredUsername, "@") {
		return c.PreferredUsername
	}
	return ""
}

// ParseUnverified decodes the claims of a JWT without checking its
// signature. Use only on tokens received directly from the provider's token
// endpoint or already verified upstream.
func ParseUnverified(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMalformedToken
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.Wrap(ErrMalformedToken, err.Error())
	}
	return claims, nil
}
