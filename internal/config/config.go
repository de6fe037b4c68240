// Package config loads inboxtally settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const appName = "inboxtally"

// Config holds every setting of a scan.
type Config struct {
	CredentialsDir string          `yaml:"credentials_dir"`
	AuthProvider   string          `yaml:"auth_provider"`
	CacheDir       string          `yaml:"cache_dir"`
	Concurrency    int             `yaml:"concurrency"`
	PageSize       int             `yaml:"page_size"`
	RPS            int             `yaml:"rps"`
	Retry          RetryConfig     `yaml:"retry"`
	StrictAbort    bool            `yaml:"strict_abort"`
	Stability      StabilityConfig `yaml:"stability"`
	Untagged       UntaggedConfig  `yaml:"untagged"`
	JSONOut        string          `yaml:"json_out"`
	LogLevel       string          `yaml:"log_level"`
}

type RetryConfig struct {
	MaxRetries  int           `yaml:"max_retries"`
	BackoffStep time.Duration `yaml:"backoff_step"`
}

// StabilityConfig selects the cache trust rule. With no terminal labels any
// non-empty cached label set is trusted.
type StabilityConfig struct {
	TerminalLabels []string `yaml:"terminal_labels"`
}

// UntaggedConfig lists the labels an "untagged" inbox thread must lack.
type UntaggedConfig struct {
	Labels         []string `yaml:"labels"`
	FromGmailctl   bool     `yaml:"from_gmailctl"`
	GmailctlBinary string   `yaml:"gmailctl_binary"`
	GmailctlConfig string   `yaml:"gmailctl_config"`
}

// Default returns the built-in settings.
func Default() (Config, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return Config{}, fmt.Errorf("determine config dir: %w", err)
	}
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return Config{}, fmt.Errorf("determine cache dir: %w", err)
	}
	return Config{
		CredentialsDir: filepath.Join(cfgDir, appName),
		AuthProvider:   "oauth",
		CacheDir:       filepath.Join(cacheDir, appName),
		Concurrency:    3,
		PageSize:       100,
		RPS:            4,
		Retry:          RetryConfig{MaxRetries: 3, BackoffStep: time.Second},
		Untagged:       UntaggedConfig{GmailctlBinary: "gmailctl"},
		LogLevel:       "info",
	}, nil
}

// Path returns the YAML file location: $INBOXTALLY_CONFIG or
// <user config dir>/inboxtally/config.yaml.
func Path() (string, error) {
	if p := os.Getenv("INBOXTALLY_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("determine config dir: %w", err)
	}
	return filepath.Join(dir, appName, "config.yaml"), nil
}

// Load resolves the configuration. A .env file in the working directory is
// read first when present; a missing YAML file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFile(path, os.LookupEnv)
}

// LoadFile layers the YAML file at path and the variables visible through
// lookup over the defaults.
func LoadFile(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) mergeFile(path string) error {
	f, err := os.Open(path) // #nosec G304 - user supplied config path
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open config %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("INBOXTALLY_CREDENTIALS_DIR", &c.CredentialsDir)
	str("INBOXTALLY_AUTH_PROVIDER", &c.AuthProvider)
	str("INBOXTALLY_CACHE_DIR", &c.CacheDir)
	str("INBOXTALLY_LOG_LEVEL", &c.LogLevel)
	str("INBOXTALLY_JSON_OUT", &c.JSONOut)
	if err := num("INBOXTALLY_CONCURRENCY", &c.Concurrency); err != nil {
		return err
	}
	if err := num("INBOXTALLY_RPS", &c.RPS); err != nil {
		return err
	}
	if v, ok := lookup("INBOXTALLY_STRICT_ABORT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("INBOXTALLY_STRICT_ABORT: %w", err)
		}
		c.StrictAbort = b
	}
	return nil
}

// Validate rejects settings the scan cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CredentialsDir) == "" {
		return fmt.Errorf("credentials_dir is required")
	}
	if strings.TrimSpace(c.CacheDir) == "" {
		return fmt.Errorf("cache_dir is required")
	}
	switch c.AuthProvider {
	case "oauth", "gmailctl":
	default:
		return fmt.Errorf("auth_provider must be oauth or gmailctl, got %q", c.AuthProvider)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.PageSize <= 0 || c.PageSize > 500 {
		return fmt.Errorf("page_size must be between 1 and 500, got %d", c.PageSize)
	}
	if c.RPS < 0 {
		return fmt.Errorf("rps must not be negative, got %d", c.RPS)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.BackoffStep < 0 {
		return fmt.Errorf("retry.backoff_step must not be negative, got %s", c.Retry.BackoffStep)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps log_level onto a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
