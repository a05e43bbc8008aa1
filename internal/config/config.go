// Package config loads pkgreuse settings.
//
// Settings are layered, later layers winning: built-in defaults, the TOML
// config file, PKGREUSE_* environment variables, and finally command-line
// flags (applied by the CLI on top of the loaded Config).
//
// The config file lives at $XDG_CONFIG_HOME/pkgreuse/config.toml
// (~/.config/pkgreuse/config.toml when XDG_CONFIG_HOME is unset). A missing
// file is not an error.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/matzehuels/pkgreuse/pkg/crawl"
	"github.com/matzehuels/pkgreuse/pkg/errors"
	"github.com/matzehuels/pkgreuse/pkg/fallback"
	"github.com/matzehuels/pkgreuse/pkg/manifest"
	"github.com/matzehuels/pkgreuse/pkg/match"
)

const (
	// AppName names the config and cache directories.
	AppName = "pkgreuse"

	// FileName is the config file name inside the config directory.
	FileName = "config.toml"

	// EnvPrefix prefixes environment overrides (PKGREUSE_BATCH_SIZE, ...).
	EnvPrefix = "PKGREUSE"

	// DefaultCacheTTL leaves the crawl cache off. A cached manifest list hides
	// packages installed after it was written, so reuse is opt-in through
	// cache_ttl.
	DefaultCacheTTL time.Duration = 0
)

// Config holds every setting of a run.
type Config struct {
	PackageManager string        `mapstructure:"package_manager" toml:"package_manager"`
	Roots          []string      `mapstructure:"roots" toml:"roots"`
	InstallDir     string        `mapstructure:"install_dir" toml:"install_dir"`
	BatchSize      int           `mapstructure:"batch_size" toml:"batch_size"`
	Exclude        []string      `mapstructure:"exclude" toml:"exclude"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl" toml:"cache_ttl"`
	NoCache        bool          `mapstructure:"no_cache" toml:"no_cache"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		PackageManager: string(fallback.DefaultManager),
		Roots:          []string{},
		InstallDir:     manifest.InstallDir,
		BatchSize:      match.DefaultBatchSize,
		Exclude:        append([]string(nil), crawl.DefaultExclude...),
		CacheTTL:       DefaultCacheTTL,
	}
}

// Load reads the configuration. path overrides the default file location and,
// unlike the default location, must exist. The returned string is the file
// actually read, or "" when only defaults and environment applied.
func Load(path string) (*Config, string, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("package_manager", defaults.PackageManager)
	v.SetDefault("roots", defaults.Roots)
	v.SetDefault("install_dir", defaults.InstallDir)
	v.SetDefault("batch_size", defaults.BatchSize)
	v.SetDefault("exclude", defaults.Exclude)
	v.SetDefault("cache_ttl", defaults.CacheTTL)
	v.SetDefault("no_cache", defaults.NoCache)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolved := ""
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, "", errors.Wrap(errors.ErrCodeInvalidConfig, err, "config file %s", path)
		}
		resolved = path
	} else if p, err := FilePath(); err == nil {
		if _, err := os.Stat(p); err == nil {
			resolved = p
		}
	}
	if resolved != "" {
		v.SetConfigFile(resolved)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, "", errors.Wrap(errors.ErrCodeInvalidConfig, err, "read %s", resolved)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", errors.Wrap(errors.ErrCodeInvalidConfig, err, "decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, resolved, nil
}

// Validate rejects settings no run could use.
func (c *Config) Validate() error {
	if _, err := fallback.ParseManager(c.PackageManager); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "package_manager")
	}
	if c.BatchSize <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "batch_size must be positive, got %d", c.BatchSize)
	}
	if c.CacheTTL < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "cache_ttl must not be negative, got %s", c.CacheTTL)
	}
	if err := errors.ValidatePackageName(c.InstallDir); err != nil || strings.ContainsAny(c.InstallDir, `/\`) {
		return errors.New(errors.ErrCodeInvalidConfig, "install_dir must be a plain directory name, got %q", c.InstallDir)
	}
	for _, name := range c.Exclude {
		if name == "" || strings.ContainsAny(name, `/\`) {
			return errors.New(errors.ErrCodeInvalidConfig, "exclude entries must be directory names, got %q", name)
		}
	}
	return nil
}

// Manager returns the validated package manager.
func (c *Config) Manager() fallback.Manager {
	m, err := fallback.ParseManager(c.PackageManager)
	if err != nil {
		return fallback.DefaultManager
	}
	return m
}

// CacheEnabled reports whether crawl results should be cached.
func (c *Config) CacheEnabled() bool {
	return !c.NoCache && c.CacheTTL > 0
}

// Encode renders c as TOML.
func (c *Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteDefault writes the default configuration to path, creating parent
// directories. An existing file is left alone unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errors.New(errors.ErrCodeInvalidInput, "%s already exists", path)
		}
	}
	data, err := Default().Encode()
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode default config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// =============================================================================
// Paths
// =============================================================================

// Dir returns the config directory ($XDG_CONFIG_HOME/pkgreuse).
func Dir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// FilePath returns the default config file path.
func FilePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// CacheDir returns the crawl cache directory ($XDG_CACHE_HOME/pkgreuse).
func CacheDir() (string, error) {
	return xdgDir("XDG_CACHE_HOME", ".cache")
}

func xdgDir(env, fallbackDir string) (string, error) {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, fallbackDir, AppName), nil
}
