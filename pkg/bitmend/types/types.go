// Package types provides core data types shared by the bitmend packages.
// It includes per-file scan outcomes, aggregated scan results, the error
// taxonomy, and utility functions for parsing and formatting sizes.
package types

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// Outcome is the per-file result of comparing a fresh fingerprint against
// the stored baseline.
type Outcome int

const (
	// NewlyTracked means no baseline existed; one was inserted.
	NewlyTracked Outcome = iota

	// Unchanged means the digest matches the baseline.
	Unchanged

	// UpdatedNewer means the digest changed together with a newer mtime,
	// so the baseline was overwritten with the new state.
	UpdatedNewer

	// CorruptionDetected means the digest changed without the mtime
	// advancing. The baseline is left untouched.
	CorruptionDetected
)

// String returns the short name used in reports.
func (o Outcome) String() string {
	switch o {
	case NewlyTracked:
		return "new"
	case Unchanged:
		return "unchanged"
	case UpdatedNewer:
		return "updated"
	case CorruptionDetected:
		return "corrupt"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so outcomes render by name
// in JSON and YAML reports.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// FileResult is emitted for every regular file the scanner visits.
type FileResult struct {
	// Path is the absolute path of the file.
	Path string `json:"path"`

	// Outcome is the classification against the baseline.
	Outcome Outcome `json:"outcome"`

	// Digest is the freshly computed digest, hex encoded.
	Digest string `json:"digest"`

	// Previous is the baseline digest before this scan, hex encoded.
	// Empty when the file was not tracked.
	Previous string `json:"previous,omitempty"`

	// Size is the file size in bytes.
	Size int64 `json:"size"`

	// ModTime is the modification time observed during the scan.
	ModTime time.Time `json:"mod_time"`
}

// ScanResult contains the aggregated results of a scan operation.
type ScanResult struct {
	// Root is the absolute path that was scanned.
	Root string `json:"root"`

	// Counts holds the number of files per outcome.
	Counts map[Outcome]int64 `json:"counts"`

	// Corrupted lists the paths flagged as CorruptionDetected, sorted.
	Corrupted []string `json:"corrupted,omitempty"`

	// FilesScanned is the number of regular files hashed.
	FilesScanned int64 `json:"files_scanned"`

	// BytesHashed is the total number of bytes fed to the hasher.
	BytesHashed int64 `json:"bytes_hashed"`

	// Elapsed is the total time taken to complete the scan.
	Elapsed time.Duration `json:"elapsed"`

	// Errors contains the per-file errors that did not abort the scan.
	Errors []ScanError `json:"errors,omitempty"`
}

// Count returns the number of files with the given outcome.
func (r *ScanResult) Count(o Outcome) int64 {
	if r == nil || r.Counts == nil {
		return 0
	}
	return r.Counts[o]
}

// ScanError represents an error encountered during scanning.
// It pairs a file path with the error message for reporting.
type ScanError struct {
	// Path is the file or directory path where the error occurred.
	Path string `json:"path"`

	// Error is the error message describing what went wrong.
	Error string `json:"error"`
}

// ScanProgress reports real-time scan progress.
type ScanProgress struct {
	// FilesScanned is the number of files hashed so far.
	FilesScanned int64 `json:"files_scanned"`

	// BytesHashed is the number of bytes hashed so far.
	BytesHashed int64 `json:"bytes_hashed"`

	// Corrupted is the number of corruptions detected so far.
	Corrupted int64 `json:"corrupted"`

	// CurrentPath is the path most recently handed to a worker.
	CurrentPath string `json:"current_path"`
}

// sizePattern matches size strings like "100M", "2G", "500K", "1.5GB", etc.
var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?(?:i?B)?)\s*$`)

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ErrNegativeSize indicates that a negative size value was provided.
var ErrNegativeSize = errors.New("size cannot be negative")

// ParseSize parses a human-readable size string and returns the size in bytes.
// It supports the following formats:
//   - Plain bytes: "1024", "0"
//   - With byte suffix: "512B", "512b"
//   - Kilobytes: "100K", "100KB", "100KiB"
//   - Megabytes: "50M", "50MB", "50MiB"
//   - Gigabytes: "2G", "2GB", "2GiB"
//   - Terabytes: "1T", "1TB", "1TiB"
//
// All units are binary. Decimal values are truncated to the nearest byte.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}

	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeSize
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	suffix := strings.ToUpper(matches[2])
	suffix = strings.TrimSuffix(suffix, "IB")
	suffix = strings.TrimSuffix(suffix, "B")

	var multiplier int64
	switch suffix {
	case "":
		multiplier = 1
	case "K":
		multiplier = KiB
	case "M":
		multiplier = MiB
	case "G":
		multiplier = GiB
	case "T":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: unknown suffix %q", ErrInvalidSize, suffix)
	}

	return int64(value * float64(multiplier)), nil
}

// FormatSize converts a size in bytes to a human-readable string using
// binary (IEC) units.
func FormatSize(bytes int64) string {
	return humanize.IBytes(uint64(bytes))
}
