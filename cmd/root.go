// file: cmd/root.go
// version: 2.0.0
// guid: 6a7b8c9d-0e1f-2a3b-4c5d-6e7f8a9b0c1d

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jdfalk/catalog-watcher/internal/config"
	"github.com/jdfalk/catalog-watcher/internal/database"
	"github.com/jdfalk/catalog-watcher/internal/logging"
	"github.com/jdfalk/catalog-watcher/internal/scanner"
	"github.com/jdfalk/catalog-watcher/internal/watcher"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

var cfgFile string
var databasePath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "catalog-watcher",
	Short: "Keep a media catalog in sync with the filesystem",
	Long: `Catalog Watcher watches one or more media library directories and keeps
the catalog of works and media files consistent with what is on disk.

New files are identified and mounted, deleted files are removed along with
any work left without files, and renamed files keep their catalog record.`,
	SilenceUsage:      true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return initConfig(cmd) },
}

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Walk every library and mount untracked media files",
	Long: `Walk every configured library, identify each supported media file and
add the ones the catalog does not track yet. Already tracked files only have
their size refreshed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.AppConfig
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger, err := newLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := openCatalog(cfg)
		if err != nil {
			return err
		}
		defer database.CloseStore()

		opts, err := scannerOptions(cfg, logger)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Using database: %s (%s)\n", cfg.DatabasePath, cfg.DatabaseType)
		for _, lib := range cfg.Libraries {
			fmt.Fprintf(out, "Scanning %s (%s)\n", lib.Path, lib.MediaType)
			res, err := scanner.New(store, lib, opts).ScanLibrary(ctx, cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("scan error: %w", err)
			}
			fmt.Fprintf(out, "Found %d files: %d mounted, %d unchanged, %d failed\n",
				res.Found, res.Mounted, res.Unchanged, res.Failed)
		}
		scanner.RecordCatalogSize(store)
		return nil
	},
}

// pruneCmd represents the prune command
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove records of files that no longer exist",
	Long: `Delete the media file records of every library whose files are gone from
disk, then delete every work left without files. Use it after the watcher was
stopped while files were removed or moved out of a library.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.AppConfig
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger, err := newLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := openCatalog(cfg)
		if err != nil {
			return err
		}
		defer database.CloseStore()

		opts, err := scannerOptions(cfg, logger)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, lib := range cfg.Libraries {
			res, err := scanner.New(store, lib, opts).Prune(ctx)
			if err != nil {
				return fmt.Errorf("prune of %s failed: %w", lib.Path, err)
			}
			fmt.Fprintf(out, "%s: checked %d files, removed %d files and %d works, %d failed\n",
				lib.DisplayName(), res.Checked, res.FilesRemoved, res.WorksRemoved, res.Failed)
		}
		return nil
	},
}

// configCmd groups configuration helpers.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.AppConfig
		if cfg.StatusPasswordHash != "" {
			cfg.StatusPasswordHash = "********"
		}
		data, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.catalog-watcher.yaml)")
	flags.StringSlice("library", nil, "library to watch as type=path, e.g. movie=/srv/movies (repeatable)")
	flags.StringVar(&databasePath, "db", "catalog.pebble", "path to database (default: catalog.pebble for PebbleDB)")
	flags.String("db-type", "pebble", "database type: pebble (default) or sqlite")
	flags.Bool("enable-sqlite3-i-know-the-risks", false, "enable SQLite3 database (WARNING: cross-compilation issues, PebbleDB recommended)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")
	flags.Duration("debounce", config.DefaultDebounce, "how long a path must stay quiet before its change is handled")
	flags.StringSlice("exclude", nil, "glob pattern of paths to ignore (repeatable)")
	flags.String("status-addr", "", "address for the status server, e.g. :9090 (empty disables it)")

	bindFlags(flags)

	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(diagnosticsCmd)
}

// bindFlags maps the persistent flags onto their viper keys.
func bindFlags(flags *pflag.FlagSet) {
	viper.BindPFlag("library", flags.Lookup("library"))
	viper.BindPFlag("database_path", flags.Lookup("db"))
	viper.BindPFlag("database_type", flags.Lookup("db-type"))
	viper.BindPFlag("enable_sqlite3_i_know_the_risks", flags.Lookup("enable-sqlite3-i-know-the-risks"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("log_format", flags.Lookup("log-format"))
	viper.BindPFlag("debounce", flags.Lookup("debounce"))
	viper.BindPFlag("exclude_patterns", flags.Lookup("exclude"))
	viper.BindPFlag("status_addr", flags.Lookup("status-addr"))
}

func initConfig(cmd *cobra.Command) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".catalog-watcher")
	}

	viper.SetEnvPrefix("CATALOG_WATCHER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Using config file:", viper.ConfigFileUsed())
	} else {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := config.InitConfig(); err != nil {
		return err
	}

	// Ensure database directory exists
	if path := config.AppConfig.DatabasePath; path != "" {
		if dbDir := filepath.Dir(path); dbDir != "." {
			if err := os.MkdirAll(dbDir, 0755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	return nil
}

func newLogger(cfg config.Config, out io.Writer) (*slog.Logger, error) {
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: out})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// openCatalog initializes the global store. Callers close it with
// database.CloseStore.
func openCatalog(cfg config.Config) (database.Store, error) {
	if err := database.InitializeStore(cfg.DatabaseType, cfg.DatabasePath, cfg.EnableSQLite); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return database.GlobalStore, nil
}

func scannerOptions(cfg config.Config, logger *slog.Logger) (scanner.Options, error) {
	excludes, err := watcher.CompileExcludes(cfg.ExcludePatterns)
	if err != nil {
		return scanner.Options{}, err
	}
	return scanner.Options{Exclude: excludes, Workers: cfg.ScanWorkers, Logger: logger}, nil
}
