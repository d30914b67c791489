// Package log builds the zerolog loggers used by the binaries. Loggers are
// passed down explicitly; nothing here touches zerolog's global logger.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config captures options for building a logger.
type Config struct {
	Level   string    // "trace", "debug", "info", ...; empty means info
	File    string    // optional path; rotated with lumberjack
	Console bool      // human readable output on Output instead of JSON
	Output  io.Writer // defaults to os.Stdout
	Service string    // attached to every entry
}

// New returns a logger for cfg. An unparsable level falls back to info.
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	var w io.Writer = out
	if cfg.File != "" {
		w = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}

	service := cfg.Service
	if service == "" {
		service = "lavalink"
	}

	return zerolog.New(w).Level(level).With().
		Timestamp().
		Str("service", service).
		Logger()
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}
