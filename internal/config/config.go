// Package config loads an explicitly constructed *Config value from a
// YAML file, environment overrides, and CLI flags (in that precedence
// order), instead of relying on process-wide global state. A single
// mutable field, Engine.Cookies, is the one exception: an external
// captcha/cookie-refresh collaborator updates it via SetCookies once
// fresh cookies are available.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// LoggingConfig controls structured logging output and rotation.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	Format     string `mapstructure:"format" yaml:"format"` // "json" or "text"
	Color      bool   `mapstructure:"color" yaml:"color"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// LedgerConfig controls the supplemental Job Ledger database.
type LedgerConfig struct {
	Path           string `mapstructure:"path" yaml:"path"`
	MaxConnections int    `mapstructure:"max_connections" yaml:"max_connections"`
	WALMode        bool   `mapstructure:"wal_mode" yaml:"wal_mode"`
}

// EngineConfig controls the download engine's concurrency, retry, and
// HTTP behavior.
type EngineConfig struct {
	JobConcurrency     int    `mapstructure:"job_concurrency" yaml:"job_concurrency"`         // C_job
	SegmentConcurrency int    `mapstructure:"segment_concurrency" yaml:"segment_concurrency"` // C_ts
	RetryCount         int    `mapstructure:"retry_count" yaml:"retry_count"`
	RetryWaitSeconds   int    `mapstructure:"retry_wait_seconds" yaml:"retry_wait_seconds"`
	RequestTimeoutSecs int    `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	UserAgent          string `mapstructure:"user_agent" yaml:"user_agent"`
	Origin             string `mapstructure:"origin" yaml:"origin"`
	Referer            string `mapstructure:"referer" yaml:"referer"`
	ProxyURL           string `mapstructure:"proxy_url" yaml:"proxy_url"`
	MergeBackend       string `mapstructure:"merge_backend" yaml:"merge_backend"` // "auto", "external", "in_process"

	mu      sync.RWMutex
	cookies map[string]string
}

// SetCookies installs freshly solved cookies. Safe for concurrent use;
// called by the external captcha collaborator, never by the engine.
func (e *EngineConfig) SetCookies(cookies map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cookies = cookies
}

// Cookies returns a snapshot of the currently configured cookies.
func (e *EngineConfig) Cookies() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]string, len(e.cookies))
	for k, v := range e.cookies {
		out[k] = v
	}
	return out
}

// DirectoriesConfig pins the on-disk layout.
type DirectoriesConfig struct {
	Downloads string `mapstructure:"downloads" yaml:"downloads"`
	Temp      string `mapstructure:"temp" yaml:"temp"`
	Logs      string `mapstructure:"logs" yaml:"logs"`
}

func (d DirectoriesConfig) VideoDir() string { return filepath.Join(d.Downloads, "video") }
func (d DirectoriesConfig) CoverDir() string { return filepath.Join(d.Downloads, "cover") }

// Config is the explicit, constructed configuration value threaded
// through every engine constructor.
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Ledger      LedgerConfig      `mapstructure:"ledger" yaml:"ledger"`
	Engine      EngineConfig      `mapstructure:"engine" yaml:"engine"`
	Directories DirectoriesConfig `mapstructure:"directories" yaml:"directories"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Color:      true,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		},
		Ledger: LedgerConfig{
			Path:           filepath.Join("downloads", "hlsvault.db"),
			MaxConnections: 4,
			WALMode:        true,
		},
		Engine: EngineConfig{
			JobConcurrency:     2,
			SegmentConcurrency: 8,
			RetryCount:         3,
			RetryWaitSeconds:   1,
			RequestTimeoutSecs: 10,
			UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			MergeBackend:       "auto",
		},
		Directories: DirectoriesConfig{
			Downloads: "./downloads",
			Temp:      "./tmp",
			Logs:      "./logs",
		},
	}
}

// Load reads configuration from path (or the default location if empty),
// merging environment variable overrides (prefix HLSVAULT_, dots in key
// names become underscores, e.g. HLSVAULT_ENGINE_JOB_CONCURRENCY).
// Overrides apply only when a config file is read, and only to keys that
// file sets. It returns both the parsed Config and the underlying
// *viper.Viper so the caller can register a hot-reload watcher.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("HLSVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = filepath.Join(GetConfigDir(), "config.yaml")
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
		}
	}

	return cfg, v, nil
}

// GetConfigDir returns the directory holding the config file.
func GetConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hlsvault")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./conf"
	}
	return filepath.Join(home, ".config", "hlsvault")
}

// InitializeDirs ensures every directory the on-disk layout requires
// exists: downloads/video, downloads/cover, tmp/{m3u8,key,iv,ts}, logs,
// and the config directory returned by GetConfigDir.
func InitializeDirs(cfg *Config) error {
	dirs := []string{
		cfg.Directories.VideoDir(),
		cfg.Directories.CoverDir(),
		filepath.Join(cfg.Directories.Temp, "m3u8"),
		filepath.Join(cfg.Directories.Temp, "key"),
		filepath.Join(cfg.Directories.Temp, "iv"),
		filepath.Join(cfg.Directories.Temp, "ts"),
		cfg.Directories.Logs,
		GetConfigDir(),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("config: create directory %s: %w", d, err)
		}
	}
	return nil
}

// SaveDefaultConfig writes the default configuration to path as YAML.
func SaveDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
