package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// GlobalConfig represents configuration stored in ~/.config/shelf/config.yml.
type GlobalConfig struct {
	DataDir     string       `yaml:"data_dir,omitempty"`
	Username    string       `yaml:"username,omitempty"`
	LogLevel    string       `yaml:"log_level,omitempty"`
	LockTimeout string       `yaml:"lock_timeout,omitempty"` // Go duration, e.g. "10s"
	Limits      LimitsConfig `yaml:"limits,omitempty"`
}

// LimitsConfig overrides the package validator's resource bounds.
// Zero values mean "use the default".
type LimitsConfig struct {
	MaxFiles   int     `yaml:"max_files,omitempty"`
	MaxTotalMB int64   `yaml:"max_total_mb,omitempty"`
	MaxEntryMB int64   `yaml:"max_entry_mb,omitempty"`
	MaxRatio   float64 `yaml:"max_ratio,omitempty"`
}

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "shelf"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"
	// DefaultLockTimeout bounds how long a writer waits for the store lock.
	DefaultLockTimeout = 10 * time.Second
)

// globalConfigCache caches the loaded global config.
var globalConfigCache *GlobalConfig

// GlobalConfigPath returns the path to the global config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/shelf/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// LoadGlobalConfig loads the global configuration file.
// Returns an empty config (not an error) if the file doesn't exist.
func LoadGlobalConfig() (*GlobalConfig, error) {
	if globalConfigCache != nil {
		return globalConfigCache, nil
	}

	path := GlobalConfigPath()
	if path == "" {
		return &GlobalConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &GlobalConfig{}, nil
		}
		return nil, fmt.Errorf("reading global config: %w", err)
	}

	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing global config: %w", err)
	}

	if cfg.DataDir != "" {
		cfg.DataDir = ExpandPath(cfg.DataDir)
	}
	if cfg.LockTimeout != "" {
		if _, err := time.ParseDuration(cfg.LockTimeout); err != nil {
			return nil, fmt.Errorf("parsing lock_timeout %q: %w", cfg.LockTimeout, err)
		}
	}

	globalConfigCache = &cfg
	return &cfg, nil
}

// ResetGlobalConfigCache clears the cached global config.
// Useful for testing.
func ResetGlobalConfigCache() {
	globalConfigCache = nil
}

// Save writes the global config, creating its directory if needed.
func (c *GlobalConfig) Save() error {
	path := GlobalConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding global config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing global config: %w", err)
	}

	globalConfigCache = c
	return nil
}

// GetDataDir returns the configured store root from global config.
func GetDataDir() string {
	cfg, err := LoadGlobalConfig()
	if err != nil {
		return ""
	}
	return cfg.DataDir
}

// GetUsername returns the configured username from global config.
func GetUsername() string {
	cfg, err := LoadGlobalConfig()
	if err != nil {
		return ""
	}
	return cfg.Username
}

// GetLockTimeout returns the configured lock timeout, or DefaultLockTimeout.
func GetLockTimeout() time.Duration {
	cfg, err := LoadGlobalConfig()
	if err != nil || cfg.LockTimeout == "" {
		return DefaultLockTimeout
	}
	d, err := time.ParseDuration(cfg.LockTimeout)
	if err != nil || d <= 0 {
		return DefaultLockTimeout
	}
	return d
}

// GetLimits returns the configured validator limit overrides.
func GetLimits() LimitsConfig {
	cfg, err := LoadGlobalConfig()
	if err != nil {
		return LimitsConfig{}
	}
	return cfg.Limits
}

// GetLogLevel returns the log level from the environment or global config.
func GetLogLevel() string {
	if env := os.Getenv(EnvLogLevel); env != "" {
		return env
	}
	cfg, err := LoadGlobalConfig()
	if err != nil {
		return ""
	}
	return cfg.LogLevel
}
