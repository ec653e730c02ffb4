package auth

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-gateway/idp"
	apperrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/pkg/errors"
)

// MapTokenError classifies a token endpoint failure for callers. Errors that
// are already classified, or are not *idp.TokenExchangeError, pass through
// unchanged.
func MapTokenError(err error) error {
	var classified *apperrors.Error
	if errors.As(err, &classified) {
		return err
	}
	var te *idp.TokenExchangeError
	if !errors.As(err, &te) {
		return err
	}
	desc := strings.ToLower(te.Description)
	switch {
	case te.ProviderError == "invalid_grant" && strings.Contains(desc, "not fully set up"):
		return apperrors.WrapKind(err, apperrors.KindForbidden, apperrors.CodeAccountNotReady, "account is not fully set up")
	case te.ProviderError == "invalid_grant" && strings.Contains(desc, "invalid user credentials"):
		return apperrors.WrapKind(err, apperrors.KindUnauthorized, apperrors.CodeInvalidCredentials, "invalid credentials")
	case te.ProviderError == "invalid_grant" && strings.Contains(desc, "code"):
		return apperrors.WrapKind(err, apperrors.KindUnauthorized, apperrors.CodeInvalidAuthorizationCode, "authorization code is invalid or expired")
	case te.ProviderError == "invalid_grant" && refreshTokenProblem(desc):
		return apperrors.WrapKind(err, apperrors.KindUnauthorized, apperrors.CodeRefreshTokenInvalid, "refresh token is invalid or expired")
	case te.ProviderError == "invalid_client":
		return apperrors.WrapKind(err, apperrors.KindUnavailable, apperrors.CodeAuthClientInvalid, "identity provider rejected the service credentials")
	case te.StatusCode == http.StatusUnauthorized:
		return apperrors.WrapKind(err, apperrors.KindUnauthorized, apperrors.CodeInvalidCredentials, "invalid credentials")
	default:
		return apperrors.WrapKind(err, apperrors.KindBadGateway, apperrors.CodeProviderError, "identity provider rejected the request")
	}
}

func refreshTokenProblem(desc string) bool {
	for _, hint := range []string{"not active", "expired", "revoked", "session", "refresh token"} {
		if strings.Contains(desc, hint) {
			return true
		}
	}
	return false
}
