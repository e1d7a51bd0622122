package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/bitmend/pkg/bitmend/baseline"
	"github.com/jamesainslie/bitmend/pkg/bitmend/types"
)

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Inspect and maintain the baseline database",
	Long: `Commands for the baseline database that scan and fix share.

The baseline stores one digest and modification time per absolute file
path. It lives in the XDG data directory (typically
~/.local/share/bitmend/baseline) unless baseline.path or --baseline says
otherwise.`,
}

var baselinePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show baseline location",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(stdout(), cfg.Baseline.Path)
		return nil
	},
}

var baselineStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show baseline statistics",
	RunE:  runBaselineStats,
}

var baselineListCmd = &cobra.Command{
	Use:   "list [prefix]",
	Short: "List tracked files",
	Long:  `Lists tracked files with their digest and recorded modification time, optionally limited to a path prefix.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBaselineList,
}

var baselineShowCmd = &cobra.Command{
	Use:   "show <path>",
	Short: "Show the baseline record for a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runBaselineShow,
}

var baselineForgetCmd = &cobra.Command{
	Use:   "forget <path>",
	Short: "Stop tracking a file or directory",
	Long: `Removes the baseline record for a file. With --recursive, every record
under the given directory is removed. The next scan tracks them as new.`,
	Args: cobra.ExactArgs(1),
	RunE: runBaselineForget,
}

var baselineClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every baseline record",
	RunE:  runBaselineClear,
}

var (
	forgetRecursive bool
	clearYes        bool
)

func init() {
	baselineForgetCmd.Flags().BoolVarP(&forgetRecursive, "recursive", "r", false, "forget everything under a directory")
	baselineClearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")

	baselineCmd.AddCommand(baselinePathCmd)
	baselineCmd.AddCommand(baselineStatsCmd)
	baselineCmd.AddCommand(baselineListCmd)
	baselineCmd.AddCommand(baselineShowCmd)
	baselineCmd.AddCommand(baselineForgetCmd)
	baselineCmd.AddCommand(baselineClearCmd)
	rootCmd.AddCommand(baselineCmd)
}

func runBaselineStats(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfg.Baseline.Path); os.IsNotExist(err) {
		fmt.Fprintln(stdout(), "Baseline: empty (not created yet)")
		fmt.Fprintf(stdout(), "Location: %s\n", cfg.Baseline.Path)
		return nil
	}

	var (
		entries        int64
		oldest, newest time.Time
		lsm, vlog      int64
	)
	err := baseline.With(cfg.Baseline.Path, func(store *baseline.Store) error {
		lsm, vlog = store.Size()
		return store.Walk("", func(_ string, rec baseline.FileRecord) error {
			entries++
			if oldest.IsZero() || rec.Modified.Before(oldest) {
				oldest = rec.Modified
			}
			if rec.Modified.After(newest) {
				newest = rec.Modified
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	out := stdout()
	fmt.Fprintf(out, "Location:     %s\n", cfg.Baseline.Path)
	fmt.Fprintf(out, "Files:        %d\n", entries)
	fmt.Fprintf(out, "Size on disk: %s (lsm %s, vlog %s)\n",
		types.FormatSize(lsm+vlog), types.FormatSize(lsm), types.FormatSize(vlog))
	if entries > 0 {
		fmt.Fprintf(out, "Oldest mtime: %s\n", oldest.Format(time.DateTime))
		fmt.Fprintf(out, "Newest mtime: %s\n", newest.Format(time.DateTime))
	}
	return nil
}

func runBaselineList(cmd *cobra.Command, args []string) error {
	prefix := ""
	if len(args) == 1 {
		var err error
		if prefix, err = baseline.Normalize(args[0]); err != nil {
			return err
		}
	}

	out := stdout()
	var n int
	err := baseline.With(cfg.Baseline.Path, func(store *baseline.Store) error {
		return store.Walk(prefix, func(path string, rec baseline.FileRecord) error {
			n++
			_, err := fmt.Fprintf(out, "%s  %s  %s\n", rec.Digest, rec.Modified.Format(time.DateTime), path)
			return err
		})
	})
	if err != nil {
		return err
	}

	printVerbose("%d entries", n)
	return nil
}

func runBaselineShow(cmd *cobra.Command, args []string) error {
	path, err := baseline.Normalize(args[0])
	if err != nil {
		return err
	}

	var rec *baseline.FileRecord
	err = baseline.With(cfg.Baseline.Path, func(store *baseline.Store) error {
		var getErr error
		rec, getErr = store.Get(path)
		return getErr
	})
	if errors.Is(err, baseline.ErrNotFound) {
		return fmt.Errorf("%w: %s", types.ErrNoBaseline, path)
	}
	if err != nil {
		return err
	}

	out := stdout()
	fmt.Fprintf(out, "Path:     %s\n", path)
	fmt.Fprintf(out, "Digest:   %s\n", rec.Digest)
	fmt.Fprintf(out, "Modified: %s\n", rec.Modified.Format(time.RFC3339Nano))
	return nil
}

func runBaselineForget(cmd *cobra.Command, args []string) error {
	path, err := baseline.Normalize(args[0])
	if err != nil {
		return err
	}

	return baseline.With(cfg.Baseline.Path, func(store *baseline.Store) error {
		if !forgetRecursive {
			if err := store.Delete(path); err != nil {
				return err
			}
			printInfo("Forgot %s", path)
			return nil
		}

		prefix := path
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		n, err := store.DeletePrefix(prefix)
		if err != nil {
			return err
		}
		printInfo("Forgot %d files under %s", n, path)
		return nil
	})
}

func runBaselineClear(cmd *cobra.Command, args []string) error {
	if !clearYes {
		ok, err := confirm("Remove every record from %s?", cfg.Baseline.Path)
		if err != nil {
			return err
		}
		if !ok {
			printInfo("Aborted.")
			return nil
		}
	}

	return baseline.With(cfg.Baseline.Path, func(store *baseline.Store) error {
		n, err := store.DeletePrefix("")
		if err != nil {
			return err
		}
		printInfo("Baseline cleared (%d records).", n)
		return nil
	})
}
