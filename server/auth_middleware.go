package server

import (
	"context"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/roles"
	"github.com/jrsteele09/go-auth-gateway/users"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyPrincipal stores the authenticated caller
	ContextKeyPrincipal ContextKey = "principal"
	// ContextKeyTraceID stores the request trace id
	ContextKeyTraceID ContextKey = "trace_id"
)

// Principal is the caller behind a verified bearer token.
type Principal struct {
	UserID      string        // Directory user id
	Subject     string        // Token subject
	Realm       string        // Realm of the authenticator that accepted the token
	Roles       roles.Set     // Supported roles only
	Claims      *roles.Claims // Verified claims
	AccessToken string        // Raw bearer token
	extractor   *roles.Extractor
}

// PrincipalFrom returns the principal stored by RequireAuth.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ContextKeyPrincipal).(*Principal)
	return p, ok
}

var (
	errMissingToken = apperrors.Unauthorized(apperrors.CodeUnauthenticated, "a bearer token is required")
	errInvalidToken = apperrors.Unauthorized(apperrors.CodeUnauthenticated, "invalid access token")
	errRoleDenied   = apperrors.Forbidden(apperrors.CodeAccessDenied, "caller does not hold the required role")
)

// RequireAuth is middleware that validates a Bearer access token
// Used for API routes that expect OAuth2 tokens in Authorization header
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeError(w, r, errMissingToken)
				return
			}
			p, err := s.authenticate(r.Context(), raw)
			if err != nil {
				writeError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeyPrincipal, p)
			next(w, r.WithContext(ctx))
		}
	}
}

// authenticate tries each authenticator in turn. When none accepts the
// token, a provider outage wins over a rejection so the caller can retry.
func (s *Server) authenticate(ctx context.Context, raw string) (*Principal, error) {
	var unavailable error
	for _, a := range s.authenticators {
		claims, err := a.Verifier.VerifyAccessToken(ctx, raw)
		if err != nil {
			if apperrors.Retryable(err) && unavailable == nil {
				unavailable = err
			}
			continue
		}
		if claims.Subject == "" {
			continue
		}
		return &Principal{
			UserID:      users.UserIDFor(claims.Subject),
			Subject:     claims.Subject,
			Realm:       a.Realm,
			Roles:       a.Roles.FromClaims(claims),
			Claims:      claims,
			AccessToken: raw,
			extractor:   a.Roles,
		}, nil
	}
	if unavailable != nil {
		log.Err(unavailable).Msg("Bearer token could not be verified")
		return nil, unavailable
	}
	return nil, errInvalidToken
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// requirePrincipal gates next on a predicate over the caller. It must be
// chained after RequireAuth.
func requirePrincipal(allowed func(*Principal) bool) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				writeError(w, r, errMissingToken)
				return
			}
			if !allowed(p) {
				log.Warn().Str("user_id", p.UserID).Strs("roles", p.Roles.Slice()).Str("path", r.URL.Path).Msg("Role check failed")
				writeError(w, r, errRoleDenied)
				return
			}
			next(w, r)
		}
	}
}

// RequireExactlyOneRole allows callers holding exactly one supported role.
func (s *Server) RequireExactlyOneRole() func(http.HandlerFunc) http.HandlerFunc {
	return requirePrincipal(func(p *Principal) bool {
		return p.extractor.HasExactlyOneSupportedRole(p.Roles)
	})
}

// RequireRole allows callers whose only supported role is role.
func (s *Server) RequireRole(role string) func(http.HandlerFunc) http.HandlerFunc {
	return requirePrincipal(func(p *Principal) bool {
		return p.extractor.HasExactlyRole(p.Roles, role)
	})
}

// RequireOneOfRoles allows callers holding exactly one supported role that
// is in allowed.
func (s *Server) RequireOneOfRoles(allowed ...string) func(http.HandlerFunc) http.HandlerFunc {
	return requirePrincipal(func(p *Principal) bool {
		return p.extractor.HasExactlyOneOfRoles(p.Roles, allowed...)
	})
}

func (s *Server) RequireAdmin() func(http.HandlerFunc) http.HandlerFunc {
	return s.RequireRole(roles.Admin)
}

func (s *Server) RequireSupport() func(http.HandlerFunc) http.HandlerFunc {
	return s.RequireOneOfRoles(roles.SupportAgent, roles.Admin)
}

func (s *Server) RequireAirlineOps() func(http.HandlerFunc) http.HandlerFunc {
	return s.RequireOneOfRoles(roles.AirlineOps, roles.SupportAgent, roles.Admin)
}

func (s *Server) RequireCustomer() func(http.HandlerFunc) http.HandlerFunc {
	return s.RequireRole(roles.Customer)
}
