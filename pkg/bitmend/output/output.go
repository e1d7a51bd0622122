// Package output provides formatters for bitmend scan reports in several
// formats (pretty, plain, json, yaml).
//
// The package uses a registry pattern so formatters can be selected by
// name at runtime.
//
// Basic usage:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, output.FromScan(result, notable, false)); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/bitmend/pkg/bitmend/types"
)

// FileEntry is one reported file.
type FileEntry struct {
	// Path is the absolute path to the file.
	Path string `json:"path" yaml:"path"`

	// Outcome is the classification name (corrupt, updated, new).
	Outcome string `json:"outcome" yaml:"outcome"`

	// Digest is the digest observed in this scan.
	Digest string `json:"digest" yaml:"digest"`

	// Previous is the baseline digest before this scan.
	Previous string `json:"previous,omitempty" yaml:"previous,omitempty"`

	// Size is the file size in bytes.
	Size int64 `json:"size" yaml:"size"`

	// SizeHuman is the human-readable file size (e.g., "1.5 MiB").
	SizeHuman string `json:"size_human" yaml:"size_human"`
}

// ScanStats contains statistics about a scan operation.
type ScanStats struct {
	FilesScanned int64         `json:"files_scanned" yaml:"files_scanned"`
	BytesHashed  int64         `json:"bytes_hashed" yaml:"bytes_hashed"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
}

// Result contains the complete output data for formatting.
type Result struct {
	// Source is the root path that was scanned.
	Source string

	// Files are the notable files, corruptions first.
	Files []FileEntry

	// Counts maps outcome names to file counts.
	Counts map[string]int64

	// Stats contains scan statistics.
	Stats ScanStats

	// Errors are per-file failures that did not stop the scan.
	Errors []types.ScanError

	// Interrupted indicates the scan was cancelled before completion.
	Interrupted bool
}

// Corrupted returns the number of corrupted files.
func (r *Result) Corrupted() int64 {
	return r.Counts[types.CorruptionDetected.String()]
}

// outcomeRank orders notable files: corruptions, then updates, then new.
var outcomeRank = map[string]int{
	types.CorruptionDetected.String(): 0,
	types.UpdatedNewer.String():       1,
	types.NewlyTracked.String():       2,
	types.Unchanged.String():          3,
}

// FromScan builds a Result from a scan result and the per-file results the
// caller chose to report.
func FromScan(sr *types.ScanResult, notable []types.FileResult, interrupted bool) *Result {
	r := &Result{
		Source:      sr.Root,
		Counts:      make(map[string]int64, len(sr.Counts)),
		Errors:      sr.Errors,
		Interrupted: interrupted,
		Stats: ScanStats{
			FilesScanned: sr.FilesScanned,
			BytesHashed:  sr.BytesHashed,
			Duration:     sr.Elapsed,
		},
	}

	for o, n := range sr.Counts {
		r.Counts[o.String()] = n
	}

	r.Files = make([]FileEntry, 0, len(notable))
	for _, f := range notable {
		r.Files = append(r.Files, FileEntry{
			Path:      f.Path,
			Outcome:   f.Outcome.String(),
			Digest:    f.Digest,
			Previous:  f.Previous,
			Size:      f.Size,
			SizeHuman: types.FormatSize(f.Size),
		})
	}

	sort.SliceStable(r.Files, func(i, j int) bool {
		a, b := r.Files[i], r.Files[j]
		if outcomeRank[a.Outcome] != outcomeRank[b.Outcome] {
			return outcomeRank[a.Outcome] < outcomeRank[b.Outcome]
		}
		return a.Path < b.Path
	})

	return r
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory, replacing any with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
