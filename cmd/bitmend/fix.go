package main

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/bitmend/pkg/bitmend/baseline"
	"github.com/jamesainslie/bitmend/pkg/bitmend/manifest"
	"github.com/jamesainslie/bitmend/pkg/bitmend/recovery"
	"github.com/jamesainslie/bitmend/pkg/bitmend/types"
)

var fixCmd = &cobra.Command{
	Use:   "fix <path>",
	Short: "Repair a file damaged by a single bit flip",
	Long: `Fix compares a file with its baseline digest. If they differ it tries
every single-bit flip, lowest offset first, and writes back the one that
reproduces the baseline digest. The file is only modified when a match is
found and verified; otherwise it is left untouched.

The search hashes the whole file once per candidate, so it is limited to
files up to fix.max_size (default 1MiB).`,
	Args: cobra.ExactArgs(1),
	RunE: runFix,
}

var (
	fixWorkers int
	fixMaxSize string
)

func init() {
	fixCmd.Flags().IntVarP(&fixWorkers, "workers", "w", 0, "search workers (0 = config or one per CPU)")
	fixCmd.Flags().StringVar(&fixMaxSize, "max-size", "", "largest file to search, 0 for no limit (default from config)")

	rootCmd.AddCommand(fixCmd)
}

func runFix(cmd *cobra.Command, args []string) error {
	maxSize, err := cfg.FixMaxSize()
	if fixMaxSize != "" {
		maxSize, err = types.ParseSize(fixMaxSize)
	}
	if err != nil {
		return fmt.Errorf("invalid max size: %w", err)
	}

	workers := fixWorkers
	if workers == 0 {
		workers = cfg.Workers.Fix
	}

	opts := recovery.Options{Workers: workers, MaxSize: maxSize}
	if verbose && !quiet {
		var mu sync.Mutex
		opts.OnProgress = func(checked, total int64) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(stderr(), "\r%s / %s candidates", humanize.Comma(checked), humanize.Comma(total))
		}
	}

	var res *recovery.Result
	err = baseline.With(cfg.Baseline.Path, func(store *baseline.Store) error {
		var fixErr error
		res, fixErr = recovery.NewEngine(store, opts).Fix(cmd.Context(), args[0])
		return fixErr
	})
	if opts.OnProgress != nil && res != nil && res.Checked > 0 {
		fmt.Fprintln(stderr())
	}
	if err != nil {
		return err
	}

	out := stdout()
	rec := manifest.FileRecord{
		Path:     res.Path,
		Status:   res.Status.String(),
		Digest:   res.Actual.String(),
		Previous: res.Expected.String(),
	}

	switch res.Status {
	case recovery.StatusRepaired:
		fmt.Fprintf(out, "repaired %s: byte %d bit %d\n", res.Path, res.Flip.Offset, res.Flip.Bit)
		rec.Detail = fmt.Sprintf("byte %d bit %d", res.Flip.Offset, res.Flip.Bit)
	case recovery.StatusIntact:
		fmt.Fprintf(out, "%s: not corrupted\n", res.Path)
	case recovery.StatusExhausted:
		fmt.Fprintf(out, "%s: recovery exhausted, no single-bit flip matches after %s candidates; file left unchanged\n",
			res.Path, humanize.Comma(res.Checked))
		rec.Detail = res.Err().Error()
	}
	printVerbose("%s in %s", res.Status, res.Elapsed)

	recordRun(func(m *manifest.Manifest) (*manifest.Entry, error) {
		return m.Log(manifest.OpFix, res.Path, []manifest.FileRecord{rec}, manifest.Summary{
			FilesScanned: 1,
			BytesHashed:  res.Size,
			Elapsed:      res.Elapsed,
		})
	})

	return nil
}
