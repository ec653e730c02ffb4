package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	maxBodyBytes = 1 << 20
	retryAfter   = "5"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	TraceID string         `json:"traceId"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("Failed to encode response")
	}
}

// writeError serves err with the status of its Kind. Unclassified errors
// are logged and served as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *apperrors.Error
	if !apperrors.As(err, &e) {
		e = apperrors.Internal(err, "internal error")
	}
	status := e.Kind.HTTPStatus()
	traceID := TraceID(r.Context())
	if status >= http.StatusInternalServerError {
		log.Err(err).Str("trace_id", traceID).Str("path", r.URL.Path).Msg("Request failed")
	}
	if apperrors.Retryable(e) {
		w.Header().Set("Retry-After", retryAfter)
	}

	details := map[string]any{"path": r.URL.Path}
	for k, v := range e.Details {
		details[k] = v
	}
	writeJSON(w, status, ErrorBody{
		Code:    e.Code,
		Message: e.Message,
		TraceID: traceID,
		Details: details,
	})
}

var errBadBody = apperrors.BadRequest(apperrors.CodeInvalidRequest, "request body is not valid JSON")

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	err := json.NewDecoder(body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return errBadBody.WithDetail("reason", err.Error())
}

// device prefers the X-Device header over a value from the body.
func device(r *http.Request, fromBody string) string {
	if d := strings.TrimSpace(r.Header.Get("X-Device")); d != "" {
		return d
	}
	return strings.TrimSpace(fromBody)
}
