package errors_test

import (
	stderrors "errors"
	"net/http"
	"testing"

	apperrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[apperrors.Kind]int{
		apperrors.KindBadRequest:   http.StatusBadRequest,
		apperrors.KindUnauthorized: http.StatusUnauthorized,
		apperrors.KindForbidden:    http.StatusForbidden,
		apperrors.KindNotFound:     http.StatusNotFound,
		apperrors.KindConflict:     http.StatusConflict,
		apperrors.KindRateLimited:  http.StatusTooManyRequests,
		apperrors.KindUnavailable:  http.StatusServiceUnavailable,
		apperrors.KindBadGateway:   http.StatusBadGateway,
		apperrors.KindInternal:     http.StatusInternalServerError,
	}
	for kind, status := range cases {
		t.Run(kind.String(), func(t *testing.T) {
			require.Equal(t, status, kind.HTTPStatus())
		})
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	base := apperrors.Forbidden(apperrors.CodeAccessDenied, "nope")
	wrapped := apperrors.Wrapf(base, "[Service.Login] role check")

	require.Equal(t, http.StatusForbidden, apperrors.HTTPStatus(wrapped))

	var e *apperrors.Error
	require.True(t, apperrors.As(wrapped, &e))
	require.Equal(t, apperrors.CodeAccessDenied, e.Code)
}

func TestPlainErrorIsInternal(t *testing.T) {
	require.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatus(stderrors.New("boom")))
	require.False(t, apperrors.Retryable(stderrors.New("boom")))
}

func TestUnavailableIsRetryable(t *testing.T) {
	cause := stderrors.New("dial tcp: i/o timeout")
	err := apperrors.Unavailable(cause, apperrors.CodeProviderUnavailable, "identity provider unavailable")

	require.True(t, apperrors.Retryable(err))
	require.True(t, apperrors.Is(err, cause))
	require.False(t, apperrors.Retryable(apperrors.BadGateway(cause, apperrors.CodeProviderError, "bad reply")))
}

func TestWithDetailCopies(t *testing.T) {
	base := apperrors.BadRequest(apperrors.CodeInvalidRequest, "bad")
	withPath := base.WithDetail("path", "/x")

	require.Nil(t, base.Details)
	require.Equal(t, "/x", withPath.Details["path"])
}

func TestWrapfNil(t *testing.T) {
	require.NoError(t, apperrors.Wrapf(nil, "context"))
}
