package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks the variables Load reads so the host environment does
// not leak into the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"HOST", "PORT", "GRPC_PORT", "MAX_SESSIONS", "HISTORY_LIMIT", "RATE_LIMIT", "RATE_BURST", "METRICS"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "calcd.yaml")
	t.Setenv("CALC_TEST_HOST", "127.0.0.1")
	src := `
host: ${CALC_TEST_HOST}
port: 9000
sessions:
  max: 5
rate_limit:
  rate: 10
  burst: 3
metrics: false
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 8788, cfg.GRPCPort)
	assert.Equal(t, 5, cfg.Sessions.Max)
	assert.Equal(t, 100, cfg.Sessions.HistoryLimit)
	assert.Equal(t, 10.0, cfg.RateLimit.Rate)
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.False(t, cfg.Metrics)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":          "1234",
		"MAX_SESSIONS":  "7",
		"RATE_LIMIT":    "2.5",
		"HISTORY_LIMIT": "9",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, applyEnv(&cfg, lookup))
	assert.Equal(t, 1234, cfg.Port)
	assert.Equal(t, 7, cfg.Sessions.Max)
	assert.Equal(t, 9, cfg.Sessions.HistoryLimit)
	assert.Equal(t, 2.5, cfg.RateLimit.Rate)
}

func TestApplyEnvInvalid(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "GRPC_PORT" {
			return "abc", true
		}
		return "", false
	}
	cfg := Default()
	assert.Error(t, applyEnv(&cfg, lookup))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Port = 70000 }},
		{"grpc port", func(c *Config) { c.GRPCPort = -1 }},
		{"max sessions", func(c *Config) { c.Sessions.Max = -1 }},
		{"negative rate", func(c *Config) { c.RateLimit.Rate = -1 }},
		{"zero burst", func(c *Config) { c.RateLimit.Rate = 1; c.RateLimit.Burst = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
