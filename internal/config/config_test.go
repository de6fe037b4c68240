package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateDirs(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(home, ".cache"))
	return home
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoadFileDefaults(t *testing.T) {
	home := isolateDirs(t)

	cfgDir, err := os.UserConfigDir()
	require.NoError(t, err)
	cacheDir, err := os.UserCacheDir()
	require.NoError(t, err)

	cfg, err := LoadFile(filepath.Join(home, "missing.yaml"), envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfgDir, "inboxtally"), cfg.CredentialsDir)
	assert.Equal(t, filepath.Join(cacheDir, "inboxtally"), cfg.CacheDir)
	assert.Equal(t, "oauth", cfg.AuthProvider)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, 4, cfg.RPS)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.BackoffStep)
	assert.False(t, cfg.StrictAbort)
	assert.Empty(t, cfg.Stability.TerminalLabels)
}

func TestLoadFileYAMLAndEnv(t *testing.T) {
	home := isolateDirs(t)
	path := filepath.Join(home, "config.yaml")
	body := `
cache_dir: /tmp/tally-cache
concurrency: 2
retry:
  max_retries: 5
  backoff_step: 250ms
strict_abort: true
stability:
  terminal_labels: [done, STARRED]
untagged:
  labels: [receipts]
  from_gmailctl: true
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadFile(path, envMap(map[string]string{
		"INBOXTALLY_CONCURRENCY":  "6",
		"INBOXTALLY_STRICT_ABORT": "false",
		"INBOXTALLY_JSON_OUT":     "report.json",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/tally-cache", cfg.CacheDir)
	assert.Equal(t, 6, cfg.Concurrency, "env wins over file")
	assert.False(t, cfg.StrictAbort)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BackoffStep)
	assert.Equal(t, []string{"done", "STARRED"}, cfg.Stability.TerminalLabels)
	assert.Equal(t, []string{"receipts"}, cfg.Untagged.Labels)
	assert.True(t, cfg.Untagged.FromGmailctl)
	assert.Equal(t, "gmailctl", cfg.Untagged.GmailctlBinary)
	assert.Equal(t, "report.json", cfg.JSONOut)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadFileEmptyYAML(t *testing.T) {
	home := isolateDirs(t)
	path := filepath.Join(home, "config.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	cfg, err := LoadFile(path, envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Concurrency)
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	home := isolateDirs(t)
	path := filepath.Join(home, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("concurency: 4\n"), 0o600))

	_, err := LoadFile(path, envMap(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoadFileBadEnv(t *testing.T) {
	home := isolateDirs(t)
	_, err := LoadFile(filepath.Join(home, "none.yaml"), envMap(map[string]string{"INBOXTALLY_RPS": "fast"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INBOXTALLY_RPS")
}

func TestValidate(t *testing.T) {
	isolateDirs(t)
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "zero-concurrency", mutate: func(c *Config) { c.Concurrency = 0 }, wantErr: "concurrency"},
		{name: "page-size", mutate: func(c *Config) { c.PageSize = 501 }, wantErr: "page_size"},
		{name: "negative-rps", mutate: func(c *Config) { c.RPS = -1 }, wantErr: "rps"},
		{name: "negative-retries", mutate: func(c *Config) { c.Retry.MaxRetries = -1 }, wantErr: "max_retries"},
		{name: "provider", mutate: func(c *Config) { c.AuthProvider = "saml" }, wantErr: "auth_provider"},
		{name: "log-level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "log_level"},
		{name: "cache-dir", mutate: func(c *Config) { c.CacheDir = " " }, wantErr: "cache_dir"},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Default()
			require.NoError(t, err)
			tc.mutate(&cfg)
			err = cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestPathOverride(t *testing.T) {
	t.Setenv("INBOXTALLY_CONFIG", "/etc/inboxtally.yaml")
	p, err := Path()
	require.NoError(t, err)
	assert.Equal(t, "/etc/inboxtally.yaml", p)
}
