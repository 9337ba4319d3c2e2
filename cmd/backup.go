// file: cmd/backup.go
// version: 1.0.0
// guid: 8c0e2a4b-6d3f-4b5c-9e7a-1f3b5d7e9a0c

package cmd

import (
	"fmt"

	"github.com/jdfalk/catalog-watcher/internal/backup"
	"github.com/jdfalk/catalog-watcher/internal/config"
	"github.com/jdfalk/catalog-watcher/internal/database"
	"github.com/spf13/cobra"
)

var (
	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Create, list and restore catalog backups",
		Long: `Backups are consistent snapshots of the catalog database stored as
gzipped tar archives in backup_dir, each with a sha256 checksum file.
The watch command can also create them on a schedule (backup_interval).`,
	}

	backupCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Snapshot the catalog into a new backup archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.AppConfig
			logger, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			store, err := openCatalog(cfg)
			if err != nil {
				return err
			}
			defer database.CloseStore()

			snap, ok := store.(database.Snapshotter)
			if !ok {
				return database.ErrSnapshotUnsupported
			}
			info, err := backup.Create(snap, cfg.DatabaseType, backupConfig(cfg, logger))
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%d bytes, sha256 %s)\n", info.Path, info.Size, info.Checksum)
			return nil
		},
	}

	backupListCmd = &cobra.Command{
		Use:   "list",
		Short: "List backup archives, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			backups, err := backup.List(config.AppConfig.BackupDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(backups) == 0 {
				fmt.Fprintf(out, "No backups in %s.\n", config.AppConfig.BackupDir)
				return nil
			}
			for _, b := range backups {
				fmt.Fprintf(out, "%s  %-6s  %10d  %s\n",
					b.CreatedAt.Format("2006-01-02 15:04:05"), b.DatabaseType, b.Size, b.Filename)
			}
			return nil
		},
	}

	backupVerifyCmd = &cobra.Command{
		Use:   "verify <archive>",
		Short: "Check a backup archive against its checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := backup.Verify(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", args[0])
			return nil
		},
	}

	backupRestoreCmd = &cobra.Command{
		Use:   "restore <archive>",
		Short: "Restore a backup archive to a new database path",
		Long: `Unpack a backup archive. The target defaults to the configured database
path and must not exist: move the current database aside first, and stop the
watcher while doing so.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetString("target")
			skipVerify, _ := cmd.Flags().GetBool("skip-verify")
			if target == "" {
				target = config.AppConfig.DatabasePath
			}
			if err := backup.Restore(args[0], target, !skipVerify); err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s to %s\n", args[0], target)
			return nil
		},
	}
)

func init() {
	backupRestoreCmd.Flags().String("target", "", "database path to restore into (default: configured database path)")
	backupRestoreCmd.Flags().Bool("skip-verify", false, "restore without checking the archive checksum")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupVerifyCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	rootCmd.AddCommand(backupCmd)
}
