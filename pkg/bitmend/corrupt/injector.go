// Package corrupt flips one random bit in a file while preserving its
// timestamps. It reproduces silent corruption on purpose so detection and
// recovery can be exercised end to end.
package corrupt

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/jamesainslie/bitmend/pkg/bitmend/logging"
	"github.com/jamesainslie/bitmend/pkg/bitmend/types"
)

// DefaultMaxSize is the largest file Inject will touch unless configured.
const DefaultMaxSize = 4 * types.MiB

// ErrDeclined is returned when the confirmation callback says no.
var ErrDeclined = errors.New("corruption declined")

// ErrEmptyFile is returned for a zero-length target.
var ErrEmptyFile = errors.New("file is empty, nothing to flip")

// Injection records what was changed.
type Injection struct {
	Path   string `json:"path"`
	Offset int64  `json:"offset"`
	Bit    uint8  `json:"bit"`
	Before byte   `json:"before"`
	After  byte   `json:"after"`
}

// Injector flips bits in files.
type Injector struct {
	// MaxSize refuses larger files. Zero selects DefaultMaxSize.
	MaxSize int64

	// Confirm is asked before any write. Nil approves everything.
	Confirm func(path string) (bool, error)

	// Rand picks the offset and bit. Nil uses the global source.
	Rand *rand.Rand
}

// Inject flips one pseudo-randomly chosen bit of path in place and restores
// the file's access and modification times afterwards.
func (in *Injector) Inject(path string) (*Injection, error) {
	log := logging.Get(logging.Corrupt)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", types.ErrIO, path)
	}

	limit := in.MaxSize
	if limit <= 0 {
		limit = DefaultMaxSize
	}
	size := info.Size()
	if size > limit {
		return nil, fmt.Errorf("%w: %s is %s, limit %s", types.ErrSizeLimit, path,
			types.FormatSize(size), types.FormatSize(limit))
	}
	if size == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}

	if in.Confirm != nil {
		ok, err := in.Confirm(path)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrDeclined
		}
	}

	mtime := info.ModTime()
	atime := accessTime(path, info)

	offset, bit := in.pick(size)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrIO, err)
	}

	b := make([]byte, 1)
	if _, err := f.ReadAt(b, offset); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: read %s: %w", types.ErrIO, path, err)
	}

	inj := &Injection{Path: path, Offset: offset, Bit: bit, Before: b[0]}
	b[0] ^= 1 << bit
	inj.After = b[0]

	if _, err := f.WriteAt(b, offset); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: write %s: %w", types.ErrIO, path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("%w: close %s: %w", types.ErrIO, path, err)
	}

	if err := os.Chtimes(path, atime, mtime); err != nil {
		return nil, fmt.Errorf("%w: restore times on %s: %w", types.ErrIO, path, err)
	}

	log.Info("bit flipped", "path", path, "offset", offset, "bit", bit,
		"before", fmt.Sprintf("%08b", inj.Before), "after", fmt.Sprintf("%08b", inj.After))

	return inj, nil
}

func (in *Injector) pick(size int64) (int64, uint8) {
	if in.Rand != nil {
		return in.Rand.Int64N(size), uint8(in.Rand.IntN(8))
	}
	return rand.Int64N(size), uint8(rand.IntN(8))
}
