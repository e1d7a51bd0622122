package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/bitmend/pkg/bitmend/logging"
	"github.com/jamesainslie/bitmend/pkg/bitmend/types"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Console    string            `mapstructure:"console"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// Config represents the application configuration.
type Config struct {
	DefaultPath string   `mapstructure:"default_path"`
	Exclude     []string `mapstructure:"exclude"`
	IgnoreFile  string   `mapstructure:"ignore_file"`
	Baseline    struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"baseline"`
	Workers struct {
		Scan int `mapstructure:"scan"`
		Fix  int `mapstructure:"fix"`
	} `mapstructure:"workers"`
	Fix struct {
		MaxSize string `mapstructure:"max_size"`
	} `mapstructure:"fix"`
	Corrupt struct {
		MaxSize string `mapstructure:"max_size"`
	} `mapstructure:"corrupt"`
	Manifest struct {
		Enabled       bool   `mapstructure:"enabled"`
		Path          string `mapstructure:"path"`
		RetentionDays int    `mapstructure:"retention_days"`
	} `mapstructure:"manifest"`
	Logging LoggingConfig `mapstructure:"logging"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// Load loads configuration from file and environment variables.
// An explicit file is required to exist. Otherwise the first of
//   - $XDG_CONFIG_HOME/bitmend/config.yaml
//   - $HOME/.config/bitmend/config.yaml
//
// is used if present. Environment variables are prefixed with BITMEND_
// (e.g., BITMEND_FIX_MAX_SIZE).
func Load(file string) (*Config, error) {
	v := viper.New()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "bitmend"))
		}
		v.AddConfigPath(filepath.Join(homeDir, ".config", "bitmend"))
	}

	v.SetEnvPrefix("BITMEND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	for _, p := range []*string{&cfg.Baseline.Path, &cfg.Manifest.Path, &cfg.Logging.Path, &cfg.DefaultPath} {
		if *p, err = ExpandPath(*p); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("default_path", DefaultPath)
	v.SetDefault("exclude", []string{})
	v.SetDefault("ignore_file", DefaultIgnoreFile)
	v.SetDefault("baseline.path", DefaultBaselinePath())
	v.SetDefault("workers.scan", DefaultWorkers)
	v.SetDefault("workers.fix", DefaultWorkers)
	v.SetDefault("fix.max_size", DefaultFixMaxSize)
	v.SetDefault("corrupt.max_size", DefaultCorruptMaxSize)
	v.SetDefault("manifest.enabled", true)
	v.SetDefault("manifest.path", DefaultManifestPath())
	v.SetDefault("manifest.retention_days", DefaultRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", "warn")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"baseline": "warn",
		"scanner":  "info",
		"recovery": "info",
	})
}

// FixMaxSize returns fix.max_size in bytes. Zero means no limit.
func (c *Config) FixMaxSize() (int64, error) {
	n, err := types.ParseSize(c.Fix.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("fix.max_size: %w", err)
	}
	return n, nil
}

// CorruptMaxSize returns corrupt.max_size in bytes.
func (c *Config) CorruptMaxSize() (int64, error) {
	n, err := types.ParseSize(c.Corrupt.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("corrupt.max_size: %w", err)
	}
	return n, nil
}

// LogConfig converts the logging section for logging.Init.
// A non-empty consoleLevel overrides logging.console.
func (c *Config) LogConfig(consoleLevel string) (logging.Config, error) {
	rotation := logging.DefaultRotationConfig()
	if c.Logging.Rotation.MaxSize != "" {
		n, err := types.ParseSize(c.Logging.Rotation.MaxSize)
		if err != nil {
			return logging.Config{}, fmt.Errorf("logging.rotation.max_size: %w", err)
		}
		rotation.MaxSize = n
	}
	rotation.MaxAge = c.Logging.Rotation.MaxAge
	rotation.MaxBackups = c.Logging.Rotation.MaxBackups
	rotation.Daily = c.Logging.Rotation.Daily

	console := c.Logging.Console
	if consoleLevel != "" {
		console = consoleLevel
	}

	return logging.Config{
		Level:        c.Logging.Level,
		Path:         c.Logging.Path,
		Rotation:     rotation,
		Components:   c.Logging.Components,
		ConsoleLevel: console,
	}, nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "bitmend"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "bitmend"), nil
}

// DataDir returns $XDG_DATA_HOME/bitmend/.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "bitmend")
}

// DefaultBaselinePath returns the default baseline database directory.
func DefaultBaselinePath() string {
	return filepath.Join(DataDir(), "baseline")
}

// DefaultManifestPath returns the default run history directory.
func DefaultManifestPath() string {
	return filepath.Join(DataDir(), "history")
}

// WriteDefault writes a default config file if none exists and returns its
// path. An existing file is left untouched.
func WriteDefault() (string, error) {
	configDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# bitmend configuration

# Path to scan when none is given
default_path: %s

# Baseline database directory
baseline:
  path: %s

# Doublestar globs excluded from scans, matched against the path relative
# to the scan root and against the base name
exclude: []

# gitignore-style file read from the scan root
ignore_file: %s

# Worker counts; 0 uses one per CPU
workers:
  scan: %d
  fix: %d

# Largest file fix will search (0 for no limit)
fix:
  max_size: %s

# Largest file corrupt will touch
corrupt:
  max_size: %s

# Run history
manifest:
  enabled: true
  path: %s
  retention_days: %d

logging:
  # File log level: debug, info, warn, error
  level: info
  # stderr level; -v and --log-level override it
  console: warn
  # Empty means $XDG_STATE_HOME/bitmend/bitmend.log
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  components:
    baseline: warn
    scanner: info
    recovery: info
`, DefaultPath, DefaultBaselinePath(), DefaultIgnoreFile, DefaultWorkers, DefaultWorkers,
		DefaultFixMaxSize, DefaultCorruptMaxSize, DefaultManifestPath(), DefaultRetentionDays)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}

	return configPath, nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}
