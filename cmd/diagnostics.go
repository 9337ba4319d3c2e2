// file: cmd/diagnostics.go
// version: 2.0.0
// guid: c8f6a0d4-2a8b-48cf-9d08-02cc9915d9fc

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/pebble/v2"
	"github.com/jdfalk/catalog-watcher/internal/config"
	"github.com/jdfalk/catalog-watcher/internal/database"
	"github.com/spf13/cobra"
)

var (
	diagnosticsCmd = &cobra.Command{
		Use:   "diagnostics",
		Short: "Debugging and cleanup helpers",
		Long:  "Diagnostic utilities for inspecting and repairing the catalog database.",
	}

	ghostsCmd = &cobra.Command{
		Use:   "ghosts",
		Short: "Find and delete works that have no media files",
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("yes")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			return runGhostCleanup(cmd.InOrStdin(), cmd.OutOrStdout(), force, dryRun)
		},
	}

	queryCmd = &cobra.Command{
		Use:   "query",
		Short: "Inspect stored media file records",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			prefix, _ := cmd.Flags().GetString("prefix")
			raw, _ := cmd.Flags().GetBool("raw")
			return runDiagnosticsQuery(cmd.OutOrStdout(), limit, prefix, raw)
		},
	}
)

func init() {
	ghostsCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
	ghostsCmd.Flags().Bool("dry-run", false, "List ghost works without deleting")

	queryCmd.Flags().Int("limit", 5, "Number of records to display")
	queryCmd.Flags().String("prefix", "file:", "Key prefix to inspect when --raw is set")
	queryCmd.Flags().Bool("raw", false, "Show raw Pebble key/value data (Pebble only)")

	diagnosticsCmd.AddCommand(ghostsCmd)
	diagnosticsCmd.AddCommand(queryCmd)
}

func ensureDiagnosticsStore() (database.Store, func(), error) {
	store, err := openCatalog(config.AppConfig)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { database.CloseStore() }, nil
}

// findGhostWorks returns every work that no media file points at.
func findGhostWorks(store database.Store) ([]database.Work, error) {
	works, err := store.GetAllWorks()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch works: %w", err)
	}
	var ghosts []database.Work
	for _, work := range works {
		files, err := store.GetFilesByWorkID(work.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list files of work %s: %w", work.ID, err)
		}
		if len(files) == 0 {
			ghosts = append(ghosts, work)
		}
	}
	return ghosts, nil
}

func runGhostCleanup(in io.Reader, out io.Writer, force, dryRun bool) error {
	store, closer, err := ensureDiagnosticsStore()
	if err != nil {
		return err
	}
	defer closer()

	fmt.Fprintf(out, "Inspecting works in %s (%s)\n", config.AppConfig.DatabasePath, config.AppConfig.DatabaseType)

	ghosts, err := findGhostWorks(store)
	if err != nil {
		return err
	}
	if len(ghosts) == 0 {
		fmt.Fprintln(out, "No ghost works detected.")
		return nil
	}

	fmt.Fprintf(out, "Found %d ghost works:\n", len(ghosts))
	for i, work := range ghosts {
		fmt.Fprintf(out, "%2d. ID: %s\n", i+1, work.ID)
		fmt.Fprintf(out, "    Title: %s\n", work.Title)
		fmt.Fprintf(out, "    Type:  %s\n", work.MediaType)
	}

	if dryRun {
		fmt.Fprintln(out, "Dry run enabled; no deletions were performed.")
		return nil
	}

	if !force {
		confirmed, err := promptYesNo(in, out, fmt.Sprintf("Delete %d works", len(ghosts)))
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Fprintln(out, "Aborted. No works deleted.")
			return nil
		}
	}

	deleted := 0
	for _, work := range ghosts {
		if err := store.DeleteWork(work.ID); err != nil {
			fmt.Fprintf(out, "Failed to delete %s: %v\n", work.ID, err)
			continue
		}
		deleted++
	}

	fmt.Fprintf(out, "Deleted %d ghost works.\n", deleted)
	return nil
}

func runDiagnosticsQuery(out io.Writer, limit int, prefix string, raw bool) error {
	if limit <= 0 {
		return errors.New("limit must be positive")
	}

	if raw {
		if config.AppConfig.DatabaseType != "pebble" {
			return fmt.Errorf("raw inspection is only available for Pebble databases")
		}
		return runRawPebbleQuery(out, limit, prefix)
	}

	store, closer, err := ensureDiagnosticsStore()
	if err != nil {
		return err
	}
	defer closer()

	files, err := store.GetAllFiles(limit, 0)
	if err != nil {
		return fmt.Errorf("failed to fetch media files: %w", err)
	}
	if len(files) == 0 {
		fmt.Fprintln(out, "No media files found.")
		return nil
	}

	for i, file := range files {
		fmt.Fprintf(out, "%2d. ID: %s\n", i+1, file.ID)
		fmt.Fprintf(out, "    Path: %s\n", file.Path)
		fmt.Fprintf(out, "    WorkID: %s\n", file.WorkID)
		fmt.Fprintf(out, "    Format: %s\n", file.Format)
		fmt.Fprintf(out, "    Size: %d\n", file.Size)
		if file.Season != nil && file.Episode != nil {
			fmt.Fprintf(out, "    Episode: S%02dE%02d\n", *file.Season, *file.Episode)
		}
		fmt.Fprintln(out, "---")
	}

	return nil
}

func runRawPebbleQuery(out io.Writer, limit int, prefix string) error {
	db, err := pebble.Open(config.AppConfig.DatabasePath, &pebble.Options{
		ErrorIfNotExists: true,
		ReadOnly:         true,
	})
	if err != nil {
		return fmt.Errorf("failed to open Pebble database: %w", err)
	}
	defer db.Close()

	iterOpts := &pebble.IterOptions{}
	if prefix != "" {
		iterOpts.LowerBound = []byte(prefix)
		iterOpts.UpperBound = append([]byte(prefix), 0xFF)
	}

	iter, err := db.NewIter(iterOpts)
	if err != nil {
		return fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	count := 0
	for ok := iter.First(); ok && iter.Valid(); ok = iter.Next() {
		fmt.Fprintf(out, "Key: %s\n", string(iter.Key()))
		val := iter.Value()
		fmt.Fprintf(out, "Value length: %d bytes\n", len(val))
		fmt.Fprintf(out, "Value preview: %s\n", truncateString(string(val), 500))
		fmt.Fprintln(out, "---")

		count++
		if count >= limit {
			break
		}
	}

	if err := iter.Error(); err != nil {
		return fmt.Errorf("iterator error: %w", err)
	}

	if count == 0 {
		fmt.Fprintln(out, "No keys matched the requested prefix.")
	}

	return nil
}

func promptYesNo(in io.Reader, out io.Writer, action string) (bool, error) {
	fmt.Fprintf(out, "%s? Type 'yes' to confirm: ", action)
	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "yes", nil
}

func truncateString(in string, max int) string {
	if len(in) <= max {
		return in
	}
	return in[:max] + "..."
}
