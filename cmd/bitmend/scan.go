package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/bitmend/pkg/bitmend/baseline"
	"github.com/jamesainslie/bitmend/pkg/bitmend/manifest"
	"github.com/jamesainslie/bitmend/pkg/bitmend/output"
	"github.com/jamesainslie/bitmend/pkg/bitmend/scanner"
	"github.com/jamesainslie/bitmend/pkg/bitmend/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Verify a directory tree against the baseline",
	Long: `Scan hashes every regular file under path and compares it with the
baseline. New files are recorded, files whose content changed together with
their modification time are updated, and files whose content changed while
the modification time did not are reported as corrupt. Corrupt files keep
their old baseline so 'bitmend fix' can repair them.

Symlinks are not followed. Per-file errors are reported and the scan goes
on unless --fatal is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

var (
	scanFatal   bool
	scanAll     bool
	scanOutput  string
	scanExclude []string
	scanWorkers int
)

func init() {
	scanCmd.Flags().BoolVar(&scanFatal, "fatal", false, "stop at the first error")
	scanCmd.Flags().BoolVarP(&scanAll, "all", "a", false, "also list unchanged files")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "pretty", "output format ("+strings.Join(output.Available(), "|")+")")
	scanCmd.Flags().StringSliceVarP(&scanExclude, "exclude", "e", nil, "exclude glob (can be specified multiple times)")
	scanCmd.Flags().IntVarP(&scanWorkers, "workers", "w", 0, "hashing workers (0 = config or one per CPU)")

	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	root := cfg.DefaultPath
	if len(args) == 1 {
		root = args[0]
	}

	formatter, err := output.Get(scanOutput)
	if err != nil {
		return err
	}

	workers := scanWorkers
	if workers == 0 {
		workers = cfg.Workers.Scan
	}

	var (
		mu      sync.Mutex
		notable []types.FileResult
	)

	opts := scanner.Options{
		Root:        root,
		HaltOnError: scanFatal,
		Workers:     workers,
		Exclude:     append(append([]string{}, cfg.Exclude...), scanExclude...),
		IgnoreFile:  cfg.IgnoreFile,
		Skip:        []string{cfg.Baseline.Path},
		OnResult: func(r types.FileResult) {
			if r.Outcome == types.Unchanged && !scanAll {
				return
			}
			mu.Lock()
			notable = append(notable, r)
			mu.Unlock()
		},
	}
	if verbose && !quiet {
		opts.OnProgress = func(p types.ScanProgress) {
			fmt.Fprintf(stderr(), "\r%s files, %s hashed", humanize.Comma(p.FilesScanned), types.FormatSize(p.BytesHashed))
		}
	}

	printVerbose("scanning %s with baseline %s", root, cfg.Baseline.Path)

	var result *types.ScanResult
	err = baseline.With(cfg.Baseline.Path, func(store *baseline.Store) error {
		var scanErr error
		result, scanErr = scanner.New(store, opts).Scan(cmd.Context())
		return scanErr
	})
	if opts.OnProgress != nil {
		fmt.Fprintln(stderr())
	}

	if result != nil {
		interrupted := errors.Is(cmd.Context().Err(), context.Canceled)

		var buf bytes.Buffer
		if fmtErr := formatter.Format(&buf, output.FromScan(result, notable, interrupted)); fmtErr != nil {
			return errors.Join(err, fmtErr)
		}
		_, _ = stdout().Write(buf.Bytes())

		recordRun(func(m *manifest.Manifest) (*manifest.Entry, error) {
			return m.LogScan(result)
		})
	}

	return err
}
