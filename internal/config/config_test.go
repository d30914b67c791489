package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load("", map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "http://localhost:2333", cfg.BaseURL())
}

func TestLoadEnvironment(t *testing.T) {
	cfg, err := load("", map[string]string{
		"DISCORD_TOKEN":               "secret",
		"LAVALINK_HOST":               "lavalink",
		"LAVALINK_PORT":               "8080",
		"LAVALINK_SHARDS":             "4",
		"LAVALINK_SEARCH_TIMEOUT":     "3s",
		"LAVALINK_SEARCH_PREFIX":      "scsearch:",
		"LAVALINK_RECONNECT_ATTEMPTS": "2",
	})
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.DiscordToken)
	assert.Equal(t, "lavalink", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 4, cfg.Shards)
	assert.Equal(t, 3*time.Second, cfg.SearchTimeout)
	assert.Equal(t, "scsearch:", cfg.SearchPrefix)
	assert.Equal(t, 2, cfg.ReconnectAttempts)
	assert.Equal(t, "youshallnotpass", cfg.Password)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := writeFile(t, "bot.yaml", `
host: node.internal
port: 2444
password: hunter2
search_timeout: 5s
log_level: debug
`)
	cfg, err := load(path, map[string]string{"LAVALINK_PORT": "2555"})
	require.NoError(t, err)
	assert.Equal(t, "node.internal", cfg.Host)
	assert.Equal(t, 2555, cfg.Port, "environment wins over the file")
	assert.Equal(t, "hunter2", cfg.Password)
	assert.Equal(t, 5*time.Second, cfg.SearchTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 1, cfg.Shards, "defaults survive")
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "bot.yaml", "hots: typo\n")
	_, err := load(path, map[string]string{})
	assert.ErrorContains(t, err, "parse yaml")
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeFile(t, "empty.yml", "")
	cfg, err := load(path, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileWrongExtension(t *testing.T) {
	path := writeFile(t, "bot.json", "{}")
	_, err := load(path, map[string]string{})
	assert.ErrorContains(t, err, "only YAML supported")
}

func TestLoadBadEnvironmentValue(t *testing.T) {
	_, err := load("", map[string]string{"LAVALINK_PORT": "many"})
	assert.ErrorContains(t, err, "parse environment")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty host", func(c *Config) { c.Host = "" }, "host is required"},
		{"port zero", func(c *Config) { c.Port = 0 }, "port 0 out of range"},
		{"port too high", func(c *Config) { c.Port = 70000 }, "port 70000 out of range"},
		{"no shards", func(c *Config) { c.Shards = 0 }, "shards must be at least 1"},
		{"negative attempts", func(c *Config) { c.ReconnectAttempts = -1 }, "reconnect attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	assert.NoError(t, Default().Validate())
}
