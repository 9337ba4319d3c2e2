// file: internal/config/persistence.go
// version: 2.0.0
// guid: 9c8d7e6f-5a4b-3c2d-1e0f-9a8b7c6d5e4f

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the on-disk YAML layout read by viper.
type fileConfig struct {
	Libraries       []Library `yaml:"libraries"`
	DatabasePath    string    `yaml:"database_path"`
	DatabaseType    string    `yaml:"database_type"`
	EnableSQLite    bool      `yaml:"enable_sqlite3_i_know_the_risks,omitempty"`
	Debounce        string    `yaml:"debounce"`
	ExcludePatterns []string  `yaml:"exclude_patterns,omitempty"`
	LogLevel        string    `yaml:"log_level"`
	LogFormat       string    `yaml:"log_format"`
	StatusAddr      string    `yaml:"status_addr,omitempty"`

	StatusUsername     string `yaml:"status_username,omitempty"`
	StatusPasswordHash string `yaml:"status_password_hash,omitempty"`
	StatusRateLimit    int    `yaml:"status_rate_limit,omitempty"`
	StatusRateBurst    int    `yaml:"status_rate_burst,omitempty"`
	ScanWorkers        int    `yaml:"scan_workers,omitempty"`
	BackupDir          string `yaml:"backup_dir,omitempty"`
	BackupMax          int    `yaml:"backup_max,omitempty"`
	BackupInterval     string `yaml:"backup_interval,omitempty"`
}

// Marshal renders c as YAML in the same shape the config file is read in.
func Marshal(c Config) ([]byte, error) {
	fc := fileConfig{
		Libraries:       c.Libraries,
		DatabasePath:    c.DatabasePath,
		DatabaseType:    c.DatabaseType,
		EnableSQLite:    c.EnableSQLite,
		Debounce:        c.Debounce.String(),
		ExcludePatterns: c.ExcludePatterns,
		LogLevel:        c.LogLevel,
		LogFormat:       c.LogFormat,
		StatusAddr:      c.StatusAddr,

		StatusUsername:     c.StatusUsername,
		StatusPasswordHash: c.StatusPasswordHash,
		StatusRateLimit:    c.StatusRateLimit,
		StatusRateBurst:    c.StatusRateBurst,
		ScanWorkers:        c.ScanWorkers,
		BackupDir:          c.BackupDir,
		BackupMax:          c.BackupMax,
	}
	if c.BackupInterval > 0 {
		fc.BackupInterval = c.BackupInterval.String()
	}
	if fc.Libraries == nil {
		fc.Libraries = []Library{}
	}
	data, err := yaml.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Unmarshal parses YAML produced by Marshal back into a Config.
func Unmarshal(data []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	c := Config{
		Libraries:       fc.Libraries,
		DatabasePath:    fc.DatabasePath,
		DatabaseType:    fc.DatabaseType,
		EnableSQLite:    fc.EnableSQLite,
		ExcludePatterns: fc.ExcludePatterns,
		LogLevel:        fc.LogLevel,
		LogFormat:       fc.LogFormat,
		StatusAddr:      fc.StatusAddr,

		StatusUsername:     fc.StatusUsername,
		StatusPasswordHash: fc.StatusPasswordHash,
		StatusRateLimit:    fc.StatusRateLimit,
		StatusRateBurst:    fc.StatusRateBurst,
		ScanWorkers:        fc.ScanWorkers,
		BackupDir:          fc.BackupDir,
		BackupMax:          fc.BackupMax,
	}
	if fc.BackupInterval != "" {
		d, err := time.ParseDuration(fc.BackupInterval)
		if err != nil {
			return Config{}, fmt.Errorf("invalid backup_interval %q: %w", fc.BackupInterval, err)
		}
		c.BackupInterval = d
	}
	if fc.Debounce != "" {
		d, err := time.ParseDuration(fc.Debounce)
		if err != nil {
			return Config{}, fmt.Errorf("invalid debounce %q: %w", fc.Debounce, err)
		}
		c.Debounce = d
	}
	return c, nil
}

// SaveConfigToFile writes c as YAML to path, creating parent directories.
func SaveConfigToFile(c Config, path string) error {
	data, err := Marshal(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
