// Package config holds the handful of process-wide knobs the hub reads
// from its environment at startup. There is no persisted configuration
// file: every value here is either a compiled-in default or an explicit
// environment override, matching the donor's env-override precedence
// without the file-backed store (this process has no state to persist
// between runs).
package config

import (
	"log/slog"
	"os"
	"strconv"
)

// Config holds the ambient knobs read once at process startup.
type Config struct {
	// LogLevel controls the verbosity of diagnostics written to stderr.
	LogLevel slog.Level

	// MaxClipboard caps the encoded (base64) length of an OSC 52 clipboard
	// payload before the scanner reports it as Unknown rather than Clipboard.
	MaxClipboard int

	// PumpBufferSize is the read buffer size used by a local PTY pump.
	PumpBufferSize int
}

// DefaultConfig returns the compiled-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:       slog.LevelInfo,
		MaxClipboard:   1024 * 1024,
		PumpBufferSize: 4096,
	}
}

// Load returns DefaultConfig with environment overrides applied.
//
// Environment variables:
//   - TERMMUX_LOG_LEVEL: one of debug/info/warn/error (default info)
//   - TERMMUX_MAX_CLIPBOARD: OSC 52 base64 payload length cap, in bytes
//   - TERMMUX_PUMP_BUFFER_SIZE: local PTY pump read buffer size, in bytes
func Load() *Config {
	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("TERMMUX_LOG_LEVEL"); level != "" {
		if parsed, ok := ParseLogLevel(level); ok {
			c.LogLevel = parsed
		}
	}
	if n := os.Getenv("TERMMUX_MAX_CLIPBOARD"); n != "" {
		if v, err := strconv.Atoi(n); err == nil && v > 0 {
			c.MaxClipboard = v
		}
	}
	if n := os.Getenv("TERMMUX_PUMP_BUFFER_SIZE"); n != "" {
		if v, err := strconv.Atoi(n); err == nil && v > 0 {
			c.PumpBufferSize = v
		}
	}
}

// ParseLogLevel converts one of debug/info/warn/error into a slog.Level.
// Exported so cmd/termmux-hub can apply the same parsing to a --log-level
// flag override.
func ParseLogLevel(s string) (slog.Level, bool) {
	switch s {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
