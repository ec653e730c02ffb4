package utils_test

import (
	"encoding/json"
	"testing"

	"github.com/jrsteele09/go-auth-gateway/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestAsInt64(t *testing.T) {
	require.Equal(t, int64(300), utils.AsInt64(float64(300), 1))
	require.Equal(t, int64(42), utils.AsInt64("42", 1))
	require.Equal(t, int64(7), utils.AsInt64(json.Number("7"), 1))
	require.Equal(t, int64(3600), utils.AsInt64(nil, 3600))
	require.Equal(t, int64(3600), utils.AsInt64("abc", 3600))
	require.Equal(t, int64(3600), utils.AsInt64([]string{"1"}, 3600))
}

func TestAsString(t *testing.T) {
	require.Equal(t, "Bearer", utils.AsString("Bearer", "x"))
	require.Equal(t, "x", utils.AsString("", "x"))
	require.Equal(t, "x", utils.AsString(nil, "x"))
	require.Equal(t, "x", utils.AsString(12.0, "x"))
}

func TestToStringSlice(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, utils.ToStringSlice([]any{"a", 1, "b", nil}))
	require.Empty(t, utils.ToStringSlice(nil))
}

func TestPointerHelpers(t *testing.T) {
	require.Equal(t, "", utils.Value[string](nil))
	require.Equal(t, "v", utils.Value(utils.Ptr("v")))
	require.True(t, utils.Blank(nil))
	require.True(t, utils.Blank(utils.Ptr("  ")))
	require.False(t, utils.Blank(utils.Ptr("Ann")))
}
