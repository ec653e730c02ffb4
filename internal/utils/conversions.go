package utils

import (
	"encoding/json"
	"strconv"
	"strings"
)

// AsString returns v as a string, or def when v is missing, empty or of
// another type.
func AsString(v any, def string) string {
	switch s := v.(type) {
	case string:
		if s == "" {
			return def
		}
		return s
	case json.Number:
		return s.String()
	default:
		return def
	}
}

// AsInt64 returns v as an int64. JSON numbers decode as float64 and form
// encoded values as strings; both are accepted. def is returned otherwise.
func AsInt64(v any, def int64) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	case int32:
		return int64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i
		}
	}
	return def
}

func ToStringSlice(slice []any) []string {
	stringSlice := make([]string, 0)
	for _, v := range slice {
		if s, ok := v.(string); ok {
			stringSlice = append(stringSlice, s)
		}
	}
	return stringSlice
}
