// Package scanner walks a directory tree, fingerprints every regular file
// and reconciles each fingerprint against the baseline. Hashing runs on a
// bounded worker pool fed by a parallel fastwalk traversal.
package scanner

import (
	"runtime"

	"github.com/jamesainslie/bitmend/pkg/bitmend/ignore"
	"github.com/jamesainslie/bitmend/pkg/bitmend/types"
)

// Options configures the scanner behavior.
type Options struct {
	// Root is the starting directory for the scan.
	Root string

	// HaltOnError stops the scan at the first per-file error and returns
	// it. Otherwise errors are collected in the result and the scan goes on.
	HaltOnError bool

	// Workers is the number of concurrent hashing workers.
	Workers int

	// Exclude contains doublestar glob patterns for paths to skip.
	Exclude []string

	// IgnoreFile names a gitignore-style file looked up in Root.
	IgnoreFile string

	// Skip lists absolute directories that are never scanned, typically
	// the baseline database when it lives under Root.
	Skip []string

	// OnResult is called for every reconciled file. It must be safe to
	// call from multiple goroutines.
	OnResult func(types.FileResult)

	// OnProgress is called periodically with scan progress updates.
	// It must be safe to call from multiple goroutines.
	OnProgress func(types.ScanProgress)
}

// DefaultOptions returns options with sensible defaults for most systems.
func DefaultOptions() Options {
	return Options{
		Root:       ".",
		Workers:    runtime.NumCPU(),
		IgnoreFile: ignore.DefaultIgnoreFile,
	}
}

// Validate applies defaults for unset values.
func (o *Options) Validate() error {
	if o.Root == "" {
		o.Root = "."
	}
	if o.Workers < 1 {
		o.Workers = runtime.NumCPU()
	}
	return nil
}
