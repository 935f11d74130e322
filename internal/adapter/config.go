package adapter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Player  PlayerConfig  `mapstructure:"player"`
	Session SessionConfig `mapstructure:"session"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds the streaming backend location
type ServerConfig struct {
	URL string `mapstructure:"url"`
}

// PlayerConfig holds media player configuration
type PlayerConfig struct {
	Command string   `mapstructure:"command"` // mpv-compatible player, empty to auto-detect
	Args    []string `mapstructure:"args"`
}

// SessionConfig tunes browsing and playback behavior
type SessionConfig struct {
	PageSize        int           `mapstructure:"page_size"`
	SaveInterval    time.Duration `mapstructure:"save_interval"`
	AdvanceDelay    time.Duration `mapstructure:"advance_delay"`
	NoticeTTL       time.Duration `mapstructure:"notice_ttl"`
	CompletionRatio float64       `mapstructure:"completion_ratio"`
}

// RetryConfig controls the retrying request wrapper
type RetryConfig struct {
	Count int           `mapstructure:"count"`
	Delay time.Duration `mapstructure:"delay"`
}

// CacheConfig holds the local store location. An empty Dir keeps everything in memory.
type CacheConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File   string `mapstructure:"file"`
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Player: PlayerConfig{
			Command: "",
			Args:    []string{},
		},
		Session: SessionConfig{
			PageSize:        24,
			SaveInterval:    5 * time.Second,
			AdvanceDelay:    time.Second,
			NoticeTTL:       3 * time.Second,
			CompletionRatio: 0.95,
		},
		Retry: RetryConfig{
			Count: 3,
			Delay: time.Second,
		},
		Cache: CacheConfig{
			Dir: defaultCachePath(),
		},
		Logging: LoggingConfig{
			File:   defaultLogPath(),
			Level:  "INFO",
			Format: "json",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "anikino", "anikino.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "anikino", "anikino.log")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "anikino")
	default:
		if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
			return filepath.Join(dir, "anikino")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "anikino")
	}
}

// defaultCachePath returns the default local store directory for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "anikino", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "anikino", "cache")
	}
}

// LoadConfig loads configuration from file and environment.
// configFile overrides the search path when non-empty.
func LoadConfig(configFile string) (*Config, error) {
	return loadConfig(viper.New(), configFile, defaultConfigPath())
}

func loadConfig(v *viper.Viper, configFile string, searchDir string) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(searchDir)
		v.AddConfigPath(".")
	}

	// Environment variable overrides, e.g. ANIKINO_SERVER_URL
	v.SetEnvPrefix("ANIKINO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"server.url", "player.command", "cache.dir", "logging.level", "logging.format", "logging.file"} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	switch {
	case c.Session.PageSize <= 0:
		return fmt.Errorf("session.page_size must be positive, got %d", c.Session.PageSize)
	case c.Session.SaveInterval <= 0:
		return fmt.Errorf("session.save_interval must be positive, got %s", c.Session.SaveInterval)
	case c.Session.CompletionRatio <= 0 || c.Session.CompletionRatio > 1:
		return fmt.Errorf("session.completion_ratio must be in (0, 1], got %v", c.Session.CompletionRatio)
	case c.Retry.Count < 0:
		return fmt.Errorf("retry.count must not be negative, got %d", c.Retry.Count)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

// IsConfigured returns true if the server URL is set
func (c *Config) IsConfigured() bool {
	return c.Server.URL != ""
}

// SaveServerURL writes the server URL into the user's config file
func SaveServerURL(serverURL string) error {
	configPath := defaultConfigPath()
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	configFile := filepath.Join(configPath, "config.yaml")
	v.SetConfigFile(configFile)
	if _, err := os.Stat(configFile); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	v.Set("server.url", serverURL)

	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ClearCache removes the local store
func ClearCache(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
