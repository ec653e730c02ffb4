package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"golang.org/x/oauth2"
)

// TokenExchangeError is a non-2xx reply from the token endpoint.
type TokenExchangeError struct {
	StatusCode    int
	ProviderError string // OAuth2 "error" field, "unknown_error" when absent
	Description   string // OAuth2 "error_description" field, "unknown" when absent
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s (%s)", e.StatusCode, e.ProviderError, e.Description)
}

// StatusError is a non-2xx reply from any other provider endpoint.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: identity provider returned %d: %s", e.Operation, e.StatusCode, e.Body)
}

func unavailable(op string, err error) error {
	return apperrors.Unavailable(fmt.Errorf("%s: %w", op, err), apperrors.CodeProviderUnavailable, "identity provider unavailable")
}

// tokenError converts an x/oauth2 failure. Provider 5xx and transport
// failures are retryable; any other HTTP reply is a TokenExchangeError.
func tokenError(op string, err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		return unavailable(op, err)
	}
	te := &TokenExchangeError{
		StatusCode:    re.Response.StatusCode,
		ProviderError: re.ErrorCode,
		Description:   re.ErrorDescription,
	}
	if te.ProviderError == "" {
		te.ProviderError = "unknown_error"
	}
	if te.Description == "" {
		te.Description = "unknown"
	}
	if te.StatusCode >= http.StatusInternalServerError {
		return unavailable(op, te)
	}
	return te
}

// statusError classifies a non-2xx admin or logout reply.
func statusError(op string, status int, body string) error {
	se := &StatusError{Operation: op, StatusCode: status, Body: truncate(body, 256)}
	switch {
	case status >= http.StatusInternalServerError:
		return unavailable(op, se)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.Unavailable(se, apperrors.CodeAuthClientInvalid, "identity provider rejected the service credentials")
	default:
		return apperrors.BadGateway(se, apperrors.CodeProviderError, "unexpected identity provider response")
	}
}

func transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return apperrors.Unavailable(err, apperrors.CodeProviderUnavailable, "request cancelled")
	}
	return unavailable(op, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
