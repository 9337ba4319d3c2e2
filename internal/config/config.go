// file: internal/config/config.go
// version: 2.0.0
// guid: 7b8c9d0e-1f2a-3b4c-5d6e-7f8a9b0c1d2e

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jdfalk/catalog-watcher/internal/mediatypes"
	"github.com/spf13/viper"
)

// DefaultDebounce is the window the watcher coalesces rapid changes over.
const DefaultDebounce = time.Second

// ErrNoLibraries is returned by Validate when no library root is configured.
var ErrNoLibraries = errors.New("no library roots configured")

// Library is a watched directory tree plus the media type it holds.
type Library struct {
	Name      string               `mapstructure:"name" yaml:"name,omitempty"`
	Path      string               `mapstructure:"path" yaml:"path"`
	MediaType mediatypes.MediaType `mapstructure:"media_type" yaml:"media_type"`
}

// DisplayName returns the configured name or the base of the path.
func (l Library) DisplayName() string {
	if l.Name != "" {
		return l.Name
	}
	return filepath.Base(l.Path)
}

// Config holds application configuration
type Config struct {
	Libraries       []Library
	DatabasePath    string
	DatabaseType    string // "pebble" (default) or "sqlite"
	EnableSQLite    bool   // Must be true to use SQLite (safety flag)
	Debounce        time.Duration
	ExcludePatterns []string
	LogLevel        string
	LogFormat       string // "text" (default) or "json"
	StatusAddr      string // empty disables the status server
	// Basic auth for the status server; both must be set to enable it.
	StatusUsername     string
	StatusPasswordHash string // bcrypt
	StatusRateLimit    int    // requests per minute per client, 0 disables
	StatusRateBurst    int
	ScanWorkers        int
	BackupDir          string
	BackupMax          int           // archives kept, 0 keeps all
	BackupInterval     time.Duration // scheduled backups while watching, 0 disables
}

var AppConfig Config

// SetDefaults registers default values with viper.
func SetDefaults() {
	viper.SetDefault("database_type", "pebble")
	viper.SetDefault("database_path", "catalog.pebble")
	viper.SetDefault("enable_sqlite3_i_know_the_risks", false)
	viper.SetDefault("debounce", DefaultDebounce)
	viper.SetDefault("exclude_patterns", []string{"**/.*", "**/*.part", "**/*.tmp"})
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("status_addr", "")
	viper.SetDefault("status_username", "")
	viper.SetDefault("status_password_hash", "")
	viper.SetDefault("status_rate_limit", 0)
	viper.SetDefault("status_rate_burst", 10)
	viper.SetDefault("scan_workers", 4)
	viper.SetDefault("backup_dir", "backups")
	viper.SetDefault("backup_max", 10)
	viper.SetDefault("backup_interval", time.Duration(0))
}

// InitConfig initializes the application configuration from viper.
func InitConfig() error {
	SetDefaults()

	libraries, err := loadLibraries()
	if err != nil {
		return err
	}

	AppConfig = Config{
		Libraries:       libraries,
		DatabasePath:    viper.GetString("database_path"),
		DatabaseType:    viper.GetString("database_type"),
		EnableSQLite:    viper.GetBool("enable_sqlite3_i_know_the_risks"),
		Debounce:        viper.GetDuration("debounce"),
		ExcludePatterns: viper.GetStringSlice("exclude_patterns"),
		LogLevel:        viper.GetString("log_level"),
		LogFormat:       viper.GetString("log_format"),
		StatusAddr:      viper.GetString("status_addr"),

		StatusUsername:     viper.GetString("status_username"),
		StatusPasswordHash: viper.GetString("status_password_hash"),
		StatusRateLimit:    viper.GetInt("status_rate_limit"),
		StatusRateBurst:    viper.GetInt("status_rate_burst"),
		ScanWorkers:        viper.GetInt("scan_workers"),
		BackupDir:          viper.GetString("backup_dir"),
		BackupMax:          viper.GetInt("backup_max"),
		BackupInterval:     viper.GetDuration("backup_interval"),
	}

	// Normalize database type
	if AppConfig.DatabaseType == "sqlite3" {
		AppConfig.DatabaseType = "sqlite"
	}
	if AppConfig.DatabaseType == "" {
		AppConfig.DatabaseType = "pebble"
	}
	if AppConfig.Debounce <= 0 {
		AppConfig.Debounce = DefaultDebounce
	}
	if AppConfig.ScanWorkers < 1 {
		AppConfig.ScanWorkers = 1
	}
	return nil
}

// loadLibraries merges the structured "libraries" key with "type=path"
// entries from the --library flag. Duplicate paths keep the first entry.
func loadLibraries() ([]Library, error) {
	var libraries []Library
	if err := viper.UnmarshalKey("libraries", &libraries); err != nil {
		return nil, fmt.Errorf("invalid libraries config: %w", err)
	}
	for _, spec := range viper.GetStringSlice("library") {
		lib, err := ParseLibrary(spec)
		if err != nil {
			return nil, err
		}
		libraries = append(libraries, lib)
	}

	seen := make(map[string]bool, len(libraries))
	out := make([]Library, 0, len(libraries))
	for _, lib := range libraries {
		norm, err := normalizeLibrary(lib)
		if err != nil {
			return nil, err
		}
		if seen[norm.Path] {
			continue
		}
		seen[norm.Path] = true
		out = append(out, norm)
	}
	return out, nil
}

// ParseLibrary parses a "type=path" library flag, e.g. "movie=/srv/movies".
func ParseLibrary(spec string) (Library, error) {
	typ, path, ok := strings.Cut(spec, "=")
	if !ok || strings.TrimSpace(path) == "" {
		return Library{}, fmt.Errorf("invalid library %q: expected type=path", spec)
	}
	mt, err := mediatypes.Parse(typ)
	if err != nil {
		return Library{}, fmt.Errorf("invalid library %q: %w", spec, err)
	}
	return Library{Path: strings.TrimSpace(path), MediaType: mt}, nil
}

func normalizeLibrary(lib Library) (Library, error) {
	if strings.TrimSpace(lib.Path) == "" {
		return Library{}, fmt.Errorf("library %q has no path", lib.Name)
	}
	mt, err := mediatypes.Parse(string(lib.MediaType))
	if err != nil {
		return Library{}, fmt.Errorf("library %s: %w", lib.Path, err)
	}
	abs, err := filepath.Abs(lib.Path)
	if err != nil {
		return Library{}, fmt.Errorf("library %s: %w", lib.Path, err)
	}
	lib.Path = filepath.Clean(abs)
	lib.MediaType = mt
	return lib, nil
}

// Validate checks the settings the watch and scan commands depend on.
func (c Config) Validate() error {
	if len(c.Libraries) == 0 {
		return ErrNoLibraries
	}
	switch c.DatabaseType {
	case "pebble":
	case "sqlite":
		if !c.EnableSQLite {
			return fmt.Errorf("SQLite3 is not enabled. To use SQLite3, you must explicitly enable it with --enable-sqlite3-i-know-the-risks")
		}
	default:
		return fmt.Errorf("unsupported database type: %s (supported: pebble, sqlite)", c.DatabaseType)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path not specified")
	}
	if (c.StatusUsername == "") != (c.StatusPasswordHash == "") {
		return fmt.Errorf("status_username and status_password_hash must be set together")
	}
	if c.StatusRateLimit < 0 {
		return fmt.Errorf("status_rate_limit must not be negative")
	}
	if c.BackupMax < 0 || c.BackupInterval < 0 {
		return fmt.Errorf("backup_max and backup_interval must not be negative")
	}
	if c.BackupInterval > 0 && c.BackupDir == "" {
		return fmt.Errorf("backup_dir is required when backup_interval is set")
	}
	return nil
}

// LibraryFor returns the configured library containing path, if any.
// The deepest matching root wins when roots are nested.
func (c Config) LibraryFor(path string) (Library, bool) {
	var best Library
	found := false
	clean := filepath.Clean(path)
	for _, lib := range c.Libraries {
		rel, err := filepath.Rel(lib.Path, clean)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if !found || len(lib.Path) > len(best.Path) {
			best = lib
			found = true
		}
	}
	return best, found
}
