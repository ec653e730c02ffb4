package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestSetupWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "PROD", "debug")
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log.Info().Str("flow", "public").Msg("login completed")

	require.Contains(t, buf.String(), `"flow":"public"`)
	require.Contains(t, buf.String(), `"message":"login completed"`)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, parseLevel(""))
	require.Equal(t, zerolog.InfoLevel, parseLevel("loud"))
	require.Equal(t, zerolog.WarnLevel, parseLevel("WARN"))
}
