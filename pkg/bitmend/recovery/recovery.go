// Package recovery repairs files whose content no longer matches their
// baseline digest, provided the damage is exactly one flipped bit. Every
// single-bit hypothesis is tested by streaming the file through a
// PatchedReader, so probing never writes to disk; only the confirmed flip
// is applied.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/bitmend/pkg/bitmend/baseline"
	"github.com/jamesainslie/bitmend/pkg/bitmend/hasher"
	"github.com/jamesainslie/bitmend/pkg/bitmend/logging"
	"github.com/jamesainslie/bitmend/pkg/bitmend/types"
)

// progressEvery is how many offsets pass between progress callbacks.
const progressEvery = 4096

// RecordGetter is the part of the baseline store recovery reads from.
type RecordGetter interface {
	Get(path string) (*baseline.FileRecord, error)
}

// Options configures the recovery engine.
type Options struct {
	// Workers is the number of concurrent candidate evaluators.
	Workers int

	// MaxSize refuses files larger than this many bytes. Zero means no limit.
	MaxSize int64

	// OnProgress receives the number of candidates evaluated so far and the
	// total. It must be safe to call from multiple goroutines.
	OnProgress func(checked, total int64)
}

// Status is the outcome of a fix attempt.
type Status int

const (
	// StatusIntact means the file already matches its baseline.
	StatusIntact Status = iota

	// StatusRepaired means one bit was flipped back and verified.
	StatusRepaired

	// StatusExhausted means no single-bit flip reproduces the baseline.
	// The file was not modified.
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusIntact:
		return "intact"
	case StatusRepaired:
		return "repaired"
	case StatusExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in reports.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result describes a fix attempt.
type Result struct {
	Path     string        `json:"path"`
	Status   Status        `json:"status"`
	Flip     *Candidate    `json:"flip,omitempty"`
	Expected hasher.Digest `json:"-"`
	Actual   hasher.Digest `json:"-"`
	Checked  int64         `json:"checked"`
	Size     int64         `json:"size"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Err returns ErrRecoveryExhausted for an exhausted result and nil otherwise.
func (r *Result) Err() error {
	if r.Status == StatusExhausted {
		return fmt.Errorf("%w: %s", types.ErrRecoveryExhausted, r.Path)
	}
	return nil
}

// Engine runs single-bit recovery against a baseline.
type Engine struct {
	store RecordGetter
	opts  Options
	log   *logging.Logger
}

// NewEngine creates an engine reading baseline records from store.
func NewEngine(store RecordGetter, opts Options) *Engine {
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}
	return &Engine{
		store: store,
		opts:  opts,
		log:   logging.Get(logging.Recovery),
	}
}

// Fix verifies path against its baseline and, if exactly one flipped bit
// explains the mismatch, repairs it in place. The lowest (offset, bit)
// match wins. An exhausted search is a Result, not an error.
func (e *Engine) Fix(ctx context.Context, path string) (*Result, error) {
	start := time.Now()

	abs, err := baseline.Normalize(path)
	if err != nil {
		return nil, err
	}

	rec, err := e.store.Get(abs)
	if errors.Is(err, baseline.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", types.ErrNoBaseline, abs)
	}
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", types.ErrIO, abs)
	}
	if e.opts.MaxSize > 0 && info.Size() > e.opts.MaxSize {
		return nil, fmt.Errorf("%w: %s is %s, limit %s", types.ErrSizeLimit, abs,
			types.FormatSize(info.Size()), types.FormatSize(e.opts.MaxSize))
	}

	actual, info, err := hasher.File(abs)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Path:     abs,
		Expected: rec.Digest,
		Actual:   actual,
		Size:     info.Size(),
	}

	if actual == rec.Digest {
		result.Status = StatusIntact
		result.Elapsed = time.Since(start)
		e.log.Info("file intact", "path", abs)
		return result, nil
	}

	e.log.Info("searching for single-bit flip", "path", abs, "size", info.Size(),
		"expected", rec.Digest, "actual", actual, "workers", e.opts.Workers)

	match, checked, err := e.search(ctx, abs, info.Size(), rec.Digest)
	result.Checked = checked
	if err != nil {
		return nil, err
	}

	if match == nil {
		result.Status = StatusExhausted
		result.Elapsed = time.Since(start)
		e.log.Warn("recovery exhausted", "path", abs, "checked", checked)
		return result, nil
	}

	if err := applyFlip(abs, *match, rec.Digest); err != nil {
		return nil, err
	}

	result.Status = StatusRepaired
	result.Flip = match
	result.Actual = rec.Digest
	result.Elapsed = time.Since(start)
	e.log.Info("file repaired", "path", abs, "offset", match.Offset, "bit", match.Bit, "elapsed", result.Elapsed)

	return result, nil
}

// search evaluates candidates in ascending (offset, bit) order. Offsets are
// handed to workers in ascending order and none beyond the best match so
// far is started, so the reported match is the lowest one regardless of
// the worker count.
func (e *Engine) search(ctx context.Context, path string, size int64, want hasher.Digest) (*Candidate, int64, error) {
	if size == 0 {
		return nil, 0, nil
	}

	total := size * 8
	workers := int64(e.opts.Workers)
	if workers > size {
		workers = size
	}

	var (
		next    atomic.Int64
		best    atomic.Int64
		checked atomic.Int64
	)
	best.Store(math.MaxInt64)

	g, gctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("%w: %w", types.ErrIO, err)
			}
			defer f.Close()

			pr := NewPatchedReader(f)
			buf := make([]byte, hasher.ChunkSize)

			for {
				off := next.Add(1) - 1
				if off >= size || off*8 > best.Load() {
					return nil
				}

				for bit := range uint8(8) {
					if err := gctx.Err(); err != nil {
						return err
					}

					if err := pr.Reset(BitFlip{Offset: off, Bit: bit}); err != nil {
						return fmt.Errorf("%w: %s: %w", types.ErrIO, path, err)
					}
					d, err := hasher.SumBuffer(pr, buf)
					if err != nil {
						return err
					}

					if d == want {
						lowerBest(&best, off*8+int64(bit))
						break
					}
				}

				n := checked.Add(8)
				if e.opts.OnProgress != nil && off%progressEvery == 0 {
					e.opts.OnProgress(n, total)
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return nil, checked.Load(), err
	}

	n := checked.Load()
	if e.opts.OnProgress != nil {
		e.opts.OnProgress(n, total)
	}

	idx := best.Load()
	if idx == math.MaxInt64 {
		return nil, n, nil
	}
	return &Candidate{Offset: idx / 8, Bit: uint8(idx % 8)}, n, nil
}

func lowerBest(best *atomic.Int64, idx int64) {
	for {
		cur := best.Load()
		if idx >= cur || best.CompareAndSwap(cur, idx) {
			return
		}
	}
}

// applyFlip writes the flip to disk and re-hashes. If the file no longer
// matches want (it changed underneath us), the byte is restored and an I/O
// error is returned.
func applyFlip(path string, c Candidate, want hasher.Digest) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	defer f.Close()

	if err := xorByte(f, c); err != nil {
		return fmt.Errorf("%w: %s: %w", types.ErrIO, path, err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %s: %w", types.ErrIO, path, err)
	}
	got, err := hasher.Sum(f)
	if err != nil {
		return err
	}
	if got == want {
		return nil
	}

	if err := xorByte(f, c); err != nil {
		return fmt.Errorf("%w: %s: revert: %w", types.ErrIO, path, err)
	}
	return fmt.Errorf("%w: %s changed during recovery, flip reverted", types.ErrIO, path)
}

func xorByte(f *os.File, c Candidate) error {
	b := make([]byte, 1)
	if _, err := f.ReadAt(b, c.Offset); err != nil {
		return err
	}
	b[0] ^= 1 << c.Bit
	if _, err := f.WriteAt(b, c.Offset); err != nil {
		return err
	}
	return f.Sync()
}
