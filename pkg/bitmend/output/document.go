package output

import "github.com/jamesainslie/bitmend/pkg/bitmend/types"

// document is the structure shared by the json and yaml formatters.
type document struct {
	Source      string            `json:"source" yaml:"source"`
	Counts      map[string]int64  `json:"counts" yaml:"counts"`
	Files       []FileEntry       `json:"files" yaml:"files"`
	Stats       documentStats     `json:"stats" yaml:"stats"`
	Errors      []types.ScanError `json:"errors,omitempty" yaml:"errors,omitempty"`
	Interrupted bool              `json:"interrupted" yaml:"interrupted"`
}

type documentStats struct {
	FilesScanned int64  `json:"files_scanned" yaml:"files_scanned"`
	BytesHashed  int64  `json:"bytes_hashed" yaml:"bytes_hashed"`
	BytesHuman   string `json:"bytes_human" yaml:"bytes_human"`
	Duration     string `json:"duration" yaml:"duration"`
}

func buildDocument(r *Result) document {
	files := r.Files
	if files == nil {
		files = []FileEntry{}
	}
	counts := r.Counts
	if counts == nil {
		counts = map[string]int64{}
	}

	return document{
		Source: r.Source,
		Counts: counts,
		Files:  files,
		Stats: documentStats{
			FilesScanned: r.Stats.FilesScanned,
			BytesHashed:  r.Stats.BytesHashed,
			BytesHuman:   types.FormatSize(r.Stats.BytesHashed),
			Duration:     r.Stats.Duration.String(),
		},
		Errors:      r.Errors,
		Interrupted: r.Interrupted,
	}
}
