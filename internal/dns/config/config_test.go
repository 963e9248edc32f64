package config

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withEnv substitutes the environment loader with a confmap for the
// duration of one test.
func withEnv(t *testing.T, vars map[string]any) {
	t.Helper()
	orig := envLoader
	envLoader = func(k *koanf.Koanf) error {
		return k.Load(confmap.Provider(vars, "."), nil)
	}
	t.Cleanup(func() { envLoader = orig })
}

func TestLoadDefaults(t *testing.T) {
	withEnv(t, nil)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:65353", cfg.Bind)
	assert.Equal(t, []string{"114.114.114.114:53"}, cfg.ChinaServers)
	assert.Equal(t, []string{"8.8.8.8:53"}, cfg.TrustServers)
	assert.Equal(t, []string{"/etc/splitdns/chnroute.txt", "/etc/splitdns/chnroute6.txt"}, cfg.ChnRouteFiles)
	assert.Empty(t, cfg.GFWListFiles)
	assert.Empty(t, cfg.ChnListFiles)
	assert.Equal(t, "/var/lib/splitdns/nametag.db", cfg.TagDB)
	assert.Equal(t, 4096, cfg.TagCacheSize)
	assert.Equal(t, "none", cfg.DefaultTag)
	assert.Equal(t, 5, cfg.TimeoutSec)
	assert.Equal(t, 1, cfg.RepeatTimes)
	assert.False(t, cfg.AcceptNoIP)
	assert.False(t, cfg.FilterAAAA)
}

func TestLoadOverrides(t *testing.T) {
	withEnv(t, map[string]any{
		"env":           "dev",
		"log_level":     "debug",
		"bind":          "0.0.0.0:53",
		"china_servers": []string{"114.114.114.114:53", "223.5.5.5:53"},
		"trust_servers": []string{"8.8.8.8:53", "1.1.1.1:53"},
		"default_tag":   "gfw",
		"timeout_sec":   2,
		"repeat_times":  3,
		"accept_no_ip":  true,
		"filter_aaaa":   true,
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:53", cfg.Bind)
	assert.Equal(t, []string{"114.114.114.114:53", "223.5.5.5:53"}, cfg.ChinaServers)
	assert.Equal(t, []string{"8.8.8.8:53", "1.1.1.1:53"}, cfg.TrustServers)
	assert.Equal(t, "gfw", cfg.DefaultTag)
	assert.Equal(t, 2, cfg.TimeoutSec)
	assert.Equal(t, 3, cfg.RepeatTimes)
	assert.True(t, cfg.AcceptNoIP)
	assert.True(t, cfg.FilterAAAA)
}

func TestLoadValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]any
	}{
		{"unknown env", map[string]any{"env": "staging"}},
		{"unknown log level", map[string]any{"log_level": "verbose"}},
		{"bind without port", map[string]any{"bind": "127.0.0.1"}},
		{"bind with hostname", map[string]any{"bind": "localhost:53"}},
		{"bind port zero", map[string]any{"bind": "127.0.0.1:0"}},
		{"bad upstream address", map[string]any{"china_servers": []string{"not-an-addr"}}},
		{"unknown default tag", map[string]any{"default_tag": "blocklist"}},
		{"timeout too small", map[string]any{"timeout_sec": 0}},
		{"timeout too large", map[string]any{"timeout_sec": 120}},
		{"repeat times too large", map[string]any{"repeat_times": 99}},
		{"negative cache size", map[string]any{"tag_cache_size": -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withEnv(t, tt.vars)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validation failed")
		})
	}
}

func TestLoadEnvLoaderFailure(t *testing.T) {
	orig := envLoader
	envLoader = func(*koanf.Koanf) error { return errors.New("boom") }
	t.Cleanup(func() { envLoader = orig })

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading env")
}

func TestValidIPPort(t *testing.T) {
	v := validator.New()
	require.NoError(t, v.RegisterValidation("ip_port", validIPPort))

	valid := []string{"127.0.0.1:53", "8.8.8.8:65353", "[::1]:53", "[2001:4860:4860::8888]:53"}
	invalid := []string{"", "127.0.0.1", ":53", "127.0.0.1:", "127.0.0.1:0", "127.0.0.1:70000", "example.com:53"}

	for _, addr := range valid {
		assert.NoError(t, v.Var(addr, "ip_port"), addr)
	}
	for _, addr := range invalid {
		assert.Error(t, v.Var(addr, "ip_port"), addr)
	}
}
