package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for transport mapping and retry decisions.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
	KindUnavailable // provider unreachable, timed out or misconfigured
	KindBadGateway  // provider answered with something we could not use
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "unavailable"
	case KindBadGateway:
		return "bad_gateway"
	default:
		return "internal"
	}
}

// HTTPStatus returns the status code a Kind is surfaced with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified, user-presentable failure. Code is a stable
// machine-readable identifier; Message is safe to show to callers.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail returns a copy of e carrying an extra detail entry.
func (e *Error) WithDetail(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// New creates a classified error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// WrapKind classifies err, keeping it as the cause.
func WrapKind(err error, kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func BadRequest(code, message string) *Error {
	return New(KindBadRequest, code, message)
}

func Unauthorized(code, message string) *Error {
	return New(KindUnauthorized, code, message)
}

func Forbidden(code, message string) *Error {
	return New(KindForbidden, code, message)
}

func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

func RateLimited(code, message string) *Error {
	return New(KindRateLimited, code, message)
}

// Unavailable reports the identity provider as unreachable. err is the
// underlying transport failure and is never shown to callers.
func Unavailable(err error, code, message string) *Error {
	return WrapKind(err, KindUnavailable, code, message)
}

func BadGateway(err error, code, message string) *Error {
	return WrapKind(err, KindBadGateway, code, message)
}

func Internal(err error, message string) *Error {
	return WrapKind(err, KindInternal, CodeInternal, message)
}

// Stable error codes shared across packages.
const (
	CodeInternal                 = "INTERNAL_ERROR"
	CodeInvalidRequest           = "INVALID_REQUEST"
	CodeInvalidOrExpiredState    = "INVALID_OR_EXPIRED_STATE"
	CodeInvalidCredentials       = "INVALID_CREDENTIALS"
	CodeInvalidAuthorizationCode = "INVALID_AUTHORIZATION_CODE"
	CodeRefreshTokenInvalid      = "REFRESH_TOKEN_INVALID"
	CodeAccountNotReady          = "ACCOUNT_NOT_READY"
	CodeAccessDenied             = "ACCESS_DENIED"
	CodeUnauthenticated          = "UNAUTHENTICATED"
	CodeInvalidRole              = "INVALID_ROLE"
	CodeUserNotFound             = "USER_NOT_FOUND"
	CodeSessionNotFound          = "SESSION_NOT_FOUND"
	CodeChallengeNotFound        = "CHALLENGE_NOT_FOUND"
	CodeInvalidOTP               = "INVALID_OTP"
	CodeInvalidAssertion         = "INVALID_ASSERTION"
	CodeUnsupportedFactor        = "UNSUPPORTED_FACTOR"
	CodeUserExists               = "USER_ALREADY_EXISTS"
	CodeTooManyRequests          = "TOO_MANY_REQUESTS"
	CodeAuthClientInvalid        = "AUTH_CLIENT_INVALID"
	CodeProviderUnavailable      = "IDENTITY_PROVIDER_UNAVAILABLE"
	CodeProviderError            = "IDENTITY_PROVIDER_ERROR"
)

// Sentinel causes used with errors.Is across package boundaries.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps any error to the status it should be served with.
func HTTPStatus(err error) int {
	return KindOf(err).HTTPStatus()
}

// Retryable reports whether the caller may retry the same request later.
func Retryable(err error) bool {
	return KindOf(err) == KindUnavailable
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
