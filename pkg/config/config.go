// Package config loads the calculator service configuration from defaults,
// an optional YAML file and the environment, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`

	Sessions  SessionConfig   `yaml:"sessions"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Metrics toggles the /metrics endpoint.
	Metrics bool `yaml:"metrics"`
}

// SessionConfig bounds the in-memory session store.
type SessionConfig struct {
	Max          int `yaml:"max"`
	HistoryLimit int `yaml:"history_limit"`
}

// RateLimitConfig configures the per-server request limiter. A zero Rate
// disables limiting.
type RateLimitConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Host:     "0.0.0.0",
		Port:     8787,
		GRPCPort: 8788,
		Sessions: SessionConfig{
			Max:          1000,
			HistoryLimit: 100,
		},
		RateLimit: RateLimitConfig{
			Rate:  0,
			Burst: 20,
		},
		Metrics: true,
	}
}

// Load returns the default configuration overlaid with the YAML file at
// path (if path is non-empty) and then with environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("HOST"); ok && v != "" {
		cfg.Host = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"PORT", &cfg.Port},
		{"GRPC_PORT", &cfg.GRPCPort},
		{"MAX_SESSIONS", &cfg.Sessions.Max},
		{"HISTORY_LIMIT", &cfg.Sessions.HistoryLimit},
		{"RATE_BURST", &cfg.RateLimit.Burst},
	}
	for _, e := range ints {
		v, ok := lookup(e.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", e.key, v, err)
		}
		*e.dst = n
	}

	if v, ok := lookup("RATE_LIMIT"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT %q: %w", v, err)
		}
		cfg.RateLimit.Rate = f
	}
	if v, ok := lookup("METRICS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid METRICS %q: %w", v, err)
		}
		cfg.Metrics = b
	}
	return nil
}

// Validate checks ranges.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		return fmt.Errorf("grpc_port %d out of range", c.GRPCPort)
	}
	if c.Sessions.Max < 0 {
		return fmt.Errorf("sessions.max must not be negative")
	}
	if c.RateLimit.Rate < 0 {
		return fmt.Errorf("rate_limit.rate must not be negative")
	}
	if c.RateLimit.Rate > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit.burst must be at least 1 when rate limiting is enabled")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GRPCAddr returns the gRPC listen address.
func (c Config) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}
