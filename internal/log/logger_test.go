package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := WithComponent(New(Config{Level: "debug", Output: &buf, Service: "bot"}), "node")

	l.Debug().Str("guild_id", "1").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "bot", entry["service"])
	assert.Equal(t, "node", entry["component"])
	assert.Equal(t, "1", entry["guild_id"])
	assert.Equal(t, "hello", entry["message"])
}

func TestNewLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf})

	l.Info().Msg("dropped")
	assert.Zero(t, buf.Len())
	l.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewBadLevelFallsBackToInfo(t *testing.T) {
	l := New(Config{Level: "loud", Output: &bytes.Buffer{}})
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
}

func TestNewDefaultService(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Output: &buf}).Info().Msg("x")
	assert.Contains(t, buf.String(), `"service":"lavalink"`)
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	var buf bytes.Buffer
	l := New(Config{Output: &buf, File: path})

	l.Info().Msg("to both")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, buf.String(), "to both")
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Output: &buf, Console: true}).Info().Msg("pretty")
	assert.Contains(t, buf.String(), "pretty")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestNewLeavesZerologGlobalsAlone(t *testing.T) {
	prev := zerolog.TimeFieldFormat
	t.Cleanup(func() { zerolog.TimeFieldFormat = prev })
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	New(Config{Output: &bytes.Buffer{}})
	assert.Equal(t, zerolog.TimeFormatUnix, zerolog.TimeFieldFormat)
}
