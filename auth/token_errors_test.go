package auth_test

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/jrsteele09/go-auth-gateway/auth"
	"github.com/jrsteele09/go-auth-gateway/idp"
	apperrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestMapTokenError(t *testing.T) {
	cases := map[string]struct {
		in       *idp.TokenExchangeError
		wantCode string
		status   int
	}{
		"account not set up": {
			in:       &idp.TokenExchangeError{StatusCode: 400, ProviderError: "invalid_grant", Description: "Account is not fully set up"},
			wantCode: apperrors.CodeAccountNotReady,
			status:   http.StatusForbidden,
		},
		"bad password": {
			in:       &idp.TokenExchangeError{StatusCode: 401, ProviderError: "invalid_grant", Description: "Invalid user credentials"},
			wantCode: apperrors.CodeInvalidCredentials,
			status:   http.StatusUnauthorized,
		},
		"code reused": {
			in:       &idp.TokenExchangeError{StatusCode: 400, ProviderError: "invalid_grant", Description: "Code not valid"},
			wantCode: apperrors.CodeInvalidAuthorizationCode,
			status:   http.StatusUnauthorized,
		},
		"refresh inactive": {
			in:       &idp.TokenExchangeError{StatusCode: 400, ProviderError: "invalid_grant", Description: "Token is not active"},
			wantCode: apperrors.CodeRefreshTokenInvalid,
			status:   http.StatusUnauthorized,
		},
		"session gone": {
			in:       &idp.TokenExchangeError{StatusCode: 400, ProviderError: "invalid_grant", Description: "Session not active"},
			wantCode: apperrors.CodeRefreshTokenInvalid,
			status:   http.StatusUnauthorized,
		},
		"client misconfigured": {
			in:       &idp.TokenExchangeError{StatusCode: 401, ProviderError: "invalid_client", Description: "Invalid client credentials"},
			wantCode: apperrors.CodeAuthClientInvalid,
			status:   http.StatusServiceUnavailable,
		},
		"bare unauthorized": {
			in:       &idp.TokenExchangeError{StatusCode: 401, ProviderError: "unknown_error", Description: "unknown"},
			wantCode: apperrors.CodeInvalidCredentials,
			status:   http.StatusUnauthorized,
		},
		"anything else": {
			in:       &idp.TokenExchangeError{StatusCode: 400, ProviderError: "unsupported_grant_type", Description: "nope"},
			wantCode: apperrors.CodeProviderError,
			status:   http.StatusBadGateway,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := auth.MapTokenError(tc.in)
			require.Equal(t, tc.wantCode, codeOf(t, err))
			require.Equal(t, tc.status, apperrors.HTTPStatus(err))

			var te *idp.TokenExchangeError
			require.ErrorAs(t, err, &te)
		})
	}
}

func TestMapTokenErrorPassesThrough(t *testing.T) {
	plain := stderrors.New("dial tcp: connection refused")
	require.Equal(t, plain, auth.MapTokenError(plain))

	classified := apperrors.Unavailable(&idp.TokenExchangeError{StatusCode: 503}, apperrors.CodeProviderUnavailable, "down")
	require.True(t, apperrors.Retryable(auth.MapTokenError(classified)))
}
