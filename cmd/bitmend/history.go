package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/bitmend/pkg/bitmend/config"
	"github.com/jamesainslie/bitmend/pkg/bitmend/manifest"
	"github.com/jamesainslie/bitmend/pkg/bitmend/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	Long: `View the history of scan, fix and corrupt operations.

Every run is recorded as a JSON file in the history directory, including
which files were flagged as corrupt and which were repaired.`,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show details of a specific operation",
	Long:  `Display detailed information about an operation by its ID or a unique ID prefix.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean up old history entries",
	Long:  `Remove history entries older than manifest.retention_days.`,
	RunE:  runHistoryClean,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	m, err := manifest.New(cfg.Manifest.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize manifest: %w", err)
	}

	entries, err := m.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(entries) == 0 {
		printInfo("No history entries found.")
		printInfo("Run 'bitmend scan [path]' to record one.")
		return nil
	}

	out := stdout()
	fmt.Fprintf(out, "%-36s  %-19s  %-7s  %-8s  %s\n", "ID", "TIME", "OP", "FILES", "ROOT")
	fmt.Fprintln(out, strings.Repeat("-", 100))

	for _, e := range entries {
		fmt.Fprintf(out, "%-36s  %-19s  %-7s  %-8d  %s\n",
			e.ID,
			e.Timestamp.Local().Format(time.DateTime),
			e.Operation,
			filesColumn(e),
			e.Root,
		)
	}

	printInfo("\nUse 'bitmend history show <id>' for details on a specific entry.")
	return nil
}

// filesColumn is the scanned count for scans and the listed files otherwise.
func filesColumn(e manifest.Entry) int64 {
	if e.Operation == manifest.OpScan {
		return e.Summary.FilesScanned
	}
	return int64(len(e.Files))
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	m, err := manifest.New(cfg.Manifest.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize manifest: %w", err)
	}

	entry, err := m.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}

	out := stdout()
	fmt.Fprintln(out, "Operation Details")
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "ID:         %s\n", entry.ID)
	fmt.Fprintf(out, "Timestamp:  %s\n", entry.Timestamp.Local().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Operation:  %s\n", entry.Operation)
	fmt.Fprintf(out, "Root:       %s\n", entry.Root)

	s := entry.Summary
	if s.FilesScanned > 0 {
		fmt.Fprintf(out, "Scanned:    %d files, %s\n", s.FilesScanned, types.FormatSize(s.BytesHashed))
	}
	for _, name := range []string{"new", "unchanged", "updated", "corrupt"} {
		if n, ok := s.Outcomes[name]; ok {
			fmt.Fprintf(out, "  %-10s %d\n", name, n)
		}
	}
	if s.Errors > 0 {
		fmt.Fprintf(out, "Errors:     %d\n", s.Errors)
	}
	if s.Elapsed > 0 {
		fmt.Fprintf(out, "Elapsed:    %s\n", s.Elapsed.Round(time.Millisecond))
	}

	if len(entry.Files) == 0 {
		return nil
	}

	fmt.Fprintln(out, "\nFiles:")
	fmt.Fprintln(out, strings.Repeat("-", 60))

	limit := min(len(entry.Files), 50)
	for _, f := range entry.Files[:limit] {
		line := fmt.Sprintf("%-10s  %s", f.Status, f.Path)
		if f.Detail != "" {
			line += "  (" + f.Detail + ")"
		}
		fmt.Fprintln(out, line)
	}
	if len(entry.Files) > limit {
		fmt.Fprintf(out, "\n... and %d more files\n", len(entry.Files)-limit)
	}

	return nil
}

func runHistoryClean(cmd *cobra.Command, args []string) error {
	m, err := manifest.New(cfg.Manifest.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize manifest: %w", err)
	}

	days := cfg.Manifest.RetentionDays
	if days <= 0 {
		days = config.DefaultRetentionDays
	}

	printVerbose("removing entries older than %d days from %s", days, cfg.Manifest.Path)

	n, err := m.Cleanup(days)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}

	printInfo("Removed %d history entries older than %d days.", n, days)
	return nil
}
