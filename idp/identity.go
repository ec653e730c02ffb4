package idp

import (
	"context"
	"time"

	"github.com/jrsteele09/go-auth-gateway/roles"
	apperrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"golang.org/x/oauth2"
)

// User is the provider identity behind a set of tokens.
type User struct {
	ProviderUserID string   `json:"providerUserId"`
	Email          string   `json:"email"`
	FirstName      string   `json:"firstName,omitempty"`
	LastName       string   `json:"lastName,omitempty"`
	Realm          string   `json:"realm"`
	Roles          []string `json:"roles"`
}

type profileClaims struct {
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
}

// UserInfo maps tokens to a User. Roles come from the access token. The
// id_token, when present and a key set is configured, is verified and must
// name the same subject. The userinfo endpoint, when configured, is
// authoritative for email and names.
func (c *Client) UserInfo(ctx context.Context, tokens *Tokens) (user *User, err error) {
	claims, err := roles.ParseUnverified(tokens.AccessToken)
	if err != nil || claims.Subject == "" {
		return nil, apperrors.WrapKind(err, apperrors.KindUnauthorized, apperrors.CodeInvalidCredentials, "access token is not usable")
	}
	user = &User{
		ProviderUserID: claims.Subject,
		Email:          claims.EmailOrUsername(),
		FirstName:      claims.GivenName,
		LastName:       claims.FamilyName,
		Realm:          c.cfg.Realm,
		Roles:          c.roles.FromClaims(claims).Slice(),
	}

	if tokens.IDToken != "" && c.idVerifier != nil {
		if err := c.mergeIDToken(ctx, tokens.IDToken, user); err != nil {
			return nil, err
		}
	}
	if c.cfg.Endpoints.UserInfo != "" {
		if err := c.mergeUserInfo(ctx, tokens.AccessToken, user); err != nil {
			return nil, err
		}
	}
	return user, nil
}

func (c *Client) mergeIDToken(ctx context.Context, raw string, user *User) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	idToken, err := c.idVerifier.Verify(ctx, raw)
	if err != nil {
		return apperrors.WrapKind(err, apperrors.KindUnauthorized, apperrors.CodeInvalidCredentials, "id token rejected")
	}
	if idToken.Subject != user.ProviderUserID {
		return apperrors.Unauthorized(apperrors.CodeInvalidCredentials, "id token subject does not match access token")
	}
	var pc profileClaims
	if err := idToken.Claims(&pc); err != nil {
		return apperrors.BadGateway(err, apperrors.CodeProviderError, "id token claims unreadable")
	}
	applyProfile(user, pc)
	return nil
}

func (c *Client) mergeUserInfo(ctx context.Context, accessToken string, user *User) (err error) {
	start := time.Now()
	defer func() { c.observe("userinfo", start, err) }()
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	info, err := c.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
	if err != nil {
		if ctx.Err() != nil {
			return transportError("userinfo", err)
		}
		return apperrors.BadGateway(err, apperrors.CodeProviderError, "userinfo lookup failed")
	}
	if info.Subject != "" && info.Subject != user.ProviderUserID {
		return apperrors.Unauthorized(apperrors.CodeInvalidCredentials, "userinfo subject does not match access token")
	}
	var pc profileClaims
	if err := info.Claims(&pc); err != nil {
		return apperrors.BadGateway(err, apperrors.CodeProviderError, "userinfo claims unreadable")
	}
	if pc.Email == "" {
		pc.Email = info.Email
	}
	applyProfile(user, pc)
	return nil
}

func applyProfile(user *User, pc profileClaims) {
	if pc.Email != "" {
		user.Email = pc.Email
	} else if user.Email == "" && pc.PreferredUsername != "" {
		user.Email = (&roles.Claims{PreferredUsername: pc.PreferredUsername}).EmailOrUsername()
	}
	if pc.GivenName != "" {
		user.FirstName = pc.GivenName
	}
	if pc.FamilyName != "" {
		user.LastName = pc.FamilyName
	}
}

// VerifyAccessToken checks a bearer token's signature, issuer and expiry and
// decodes its claims.
func (c *Client) VerifyAccessToken(ctx context.Context, raw string) (*roles.Claims, error) {
	if c.atVerifier == nil {
		return nil, apperrors.Unavailable(nil, apperrors.CodeProviderUnavailable, "token verification is not configured")
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	token, err := c.atVerifier.Verify(ctx, raw)
	if err != nil {
		if ctx.Err() != nil {
			return nil, transportError("verify access token", err)
		}
		return nil, apperrors.WrapKind(err, apperrors.KindUnauthorized, apperrors.CodeUnauthenticated, "invalid access token")
	}
	claims := &roles.Claims{}
	if err := token.Claims(claims); err != nil {
		return nil, apperrors.WrapKind(err, apperrors.KindUnauthorized, apperrors.CodeUnauthenticated, "invalid access token claims")
	}
	return claims, nil
}
