package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, resolveLevel(true, ""))
	assert.Equal(t, zerolog.DebugLevel, resolveLevel(false, ""))
	assert.Equal(t, zerolog.WarnLevel, resolveLevel(true, " WARN "))
	assert.Equal(t, zerolog.DebugLevel, resolveLevel(false, "loud"))
}

func TestNewLogger_ProductionWritesJSON(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	logger := newLogger(&buf, "production", "")
	logger.Debug().Msg("hidden")
	logger.Info().Str("user_id", "u1").Msg("login")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "login", line["message"])
	assert.Equal(t, "production", line["env"])
	assert.Equal(t, "u1", line["user_id"])
}
