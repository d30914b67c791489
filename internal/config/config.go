// Package config loads bot and node settings. Precedence is environment,
// then the optional YAML file named by LAVALINK_CONFIG, then defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileEnv names the variable that points at the YAML config file.
const FileEnv = "LAVALINK_CONFIG"

type Config struct {
	DiscordToken string `yaml:"discord_token" env:"DISCORD_TOKEN"`

	Host         string `yaml:"host" env:"LAVALINK_HOST"`
	Port         int    `yaml:"port" env:"LAVALINK_PORT"`
	Password     string `yaml:"password" env:"LAVALINK_PASSWORD"`
	UserID       string `yaml:"user_id" env:"LAVALINK_USER_ID"`
	Shards       int    `yaml:"shards" env:"LAVALINK_SHARDS"`
	ClientName   string `yaml:"client_name" env:"LAVALINK_CLIENT_NAME"`
	SearchPrefix string `yaml:"search_prefix" env:"LAVALINK_SEARCH_PREFIX"`

	SearchTimeout     time.Duration `yaml:"search_timeout" env:"LAVALINK_SEARCH_TIMEOUT"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" env:"LAVALINK_CONNECT_TIMEOUT"`
	ReconnectAttempts int           `yaml:"reconnect_attempts" env:"LAVALINK_RECONNECT_ATTEMPTS"`

	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFile     string `yaml:"log_file" env:"LOG_FILE"`
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Host:              "localhost",
		Port:              2333,
		Password:          "youshallnotpass",
		Shards:            1,
		ClientName:        "lavalink-go",
		SearchPrefix:      "ytsearch:",
		SearchTimeout:     10 * time.Second,
		ConnectTimeout:    10 * time.Second,
		ReconnectAttempts: 5,
		LogLevel:          "info",
	}
}

// Load reads .env if present, then the YAML file from LAVALINK_CONFIG, then
// the process environment. The result is validated.
func Load() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()
	return load(os.Getenv(FileEnv), nil)
}

// load is Load without the .env side effect. A nil environ means the
// process environment.
func load(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// Validate checks the node settings. The Discord token is checked by the
// binaries that need it.
func (c Config) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range 1..65535", c.Port))
	}
	if c.Shards < 1 {
		errs = append(errs, fmt.Errorf("shards must be at least 1, got %d", c.Shards))
	}
	if c.ReconnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("reconnect attempts must not be negative, got %d", c.ReconnectAttempts))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// BaseURL is the REST root of the node.
func (c Config) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}
