// Package config provides configuration management for bitmend.
package config

// Default configuration values for bitmend.
const (
	// DefaultPath is the default path to scan when none is specified.
	DefaultPath = "."

	// DefaultFixMaxSize bounds recovery, whose cost grows with the square
	// of the file size.
	DefaultFixMaxSize = "1MiB"

	// DefaultCorruptMaxSize is the largest file the injector will touch.
	DefaultCorruptMaxSize = "4MiB"

	// DefaultIgnoreFile is looked up in the scan root.
	DefaultIgnoreFile = ".bitmendignore"

	// DefaultRetentionDays is the default number of days to retain history.
	DefaultRetentionDays = 90

	// DefaultWorkers selects runtime.NumCPU().
	DefaultWorkers = 0
)
