// Package config reads the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the runtime configuration of the calculator API.
type Config struct {
	HTTPAddr         string
	LogLevel         string
	ShutdownTimeout  time.Duration
	TelemetryEnabled bool

	// Strict rejects unknown symbols instead of recording and ignoring them.
	Strict bool
	// Scientific registers the extended operation table.
	Scientific  bool
	MaxSessions int
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		HTTPAddr:        ":8080",
		LogLevel:        "info",
		ShutdownTimeout: 5 * time.Second,
		MaxSessions:     1024,
	}
}

// Load reads Config from the environment on top of Default.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if v, ok := lookup("HTTP_ADDR"); ok && v != "" {
		cfg.HTTPAddr = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = v
	}

	var err error
	if cfg.ShutdownTimeout, err = durationVar(lookup, "SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.TelemetryEnabled, err = boolVar(lookup, "TELEMETRY_ENABLED", cfg.TelemetryEnabled); err != nil {
		return Config{}, err
	}
	if cfg.Strict, err = boolVar(lookup, "CALCULATOR_STRICT", cfg.Strict); err != nil {
		return Config{}, err
	}
	if cfg.Scientific, err = boolVar(lookup, "CALCULATOR_SCIENTIFIC", cfg.Scientific); err != nil {
		return Config{}, err
	}
	if cfg.MaxSessions, err = intVar(lookup, "CALCULATOR_MAX_SESSIONS", cfg.MaxSessions); err != nil {
		return Config{}, err
	}
	if cfg.MaxSessions <= 0 {
		return Config{}, fmt.Errorf("CALCULATOR_MAX_SESSIONS must be positive, got %d", cfg.MaxSessions)
	}

	return cfg, nil
}

func boolVar(lookup func(string) (string, bool), key string, def bool) (bool, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", key, err)
	}
	return b, nil
}

func intVar(lookup func(string) (string, bool), key string, def int) (int, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}

func durationVar(lookup func(string) (string, bool), key string, def time.Duration) (time.Duration, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}
