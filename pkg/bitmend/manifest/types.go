// Package manifest keeps a JSON history of bitmend runs: what each scan
// flagged, which files fix touched and where corrupt flipped a bit.
package manifest

import "time"

// OperationType represents the type of operation.
type OperationType string

const (
	// OpScan represents a scan operation.
	OpScan OperationType = "scan"
	// OpFix represents a fix operation.
	OpFix OperationType = "fix"
	// OpCorrupt represents a deliberate bit flip.
	OpCorrupt OperationType = "corrupt"
)

// Entry represents a single manifest entry.
type Entry struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Operation OperationType `json:"operation"`
	Root      string        `json:"root,omitempty"`
	Files     []FileRecord  `json:"files"`
	Summary   Summary       `json:"summary"`
}

// FileRecord is one file worth remembering from a run.
type FileRecord struct {
	Path     string `json:"path"`
	Status   string `json:"status"`
	Digest   string `json:"digest,omitempty"`
	Previous string `json:"previous,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Summary contains operation summary.
type Summary struct {
	FilesScanned int64            `json:"files_scanned,omitempty"`
	BytesHashed  int64            `json:"bytes_hashed,omitempty"`
	Outcomes     map[string]int64 `json:"outcomes,omitempty"`
	Errors       int              `json:"errors,omitempty"`
	Elapsed      time.Duration    `json:"elapsed,omitempty"`
}
