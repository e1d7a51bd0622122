package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/bitmend/pkg/bitmend/baseline"
	"github.com/jamesainslie/bitmend/pkg/bitmend/hasher"
	"github.com/jamesainslie/bitmend/pkg/bitmend/ignore"
	"github.com/jamesainslie/bitmend/pkg/bitmend/logging"
	"github.com/jamesainslie/bitmend/pkg/bitmend/types"
)

// Reconciler is the part of the baseline store the scanner writes through.
type Reconciler interface {
	Reconcile(path string, fresh baseline.FileRecord) (types.Outcome, *baseline.FileRecord, error)
}

// Scanner fingerprints a directory tree against a baseline.
type Scanner struct {
	opts  Options
	store Reconciler
	log   *logging.Logger

	filesScanned atomic.Int64
	bytesHashed  atomic.Int64
	counts       [4]atomic.Int64

	currentPath  atomic.Value
	lastProgress atomic.Int64

	mu        sync.Mutex
	errors    []types.ScanError
	corrupted []string
}

// New creates a Scanner that reconciles into store.
// Options are validated and defaults are applied.
func New(store Reconciler, opts Options) *Scanner {
	_ = opts.Validate()

	s := &Scanner{
		opts:  opts,
		store: store,
		log:   logging.Get(logging.Scanner),
	}
	s.currentPath.Store("")
	return s
}

// Scan walks Root and reconciles every regular file. It blocks until the
// walk is done, the context is cancelled, or (with HaltOnError) a file
// fails. The result is returned together with any such error so partial
// progress can still be reported.
func (s *Scanner) Scan(ctx context.Context) (*types.ScanResult, error) {
	start := time.Now()

	root, err := s.validateRoot()
	if err != nil {
		return nil, err
	}

	matcher, err := ignore.NewMatcher(ignore.Options{
		Root:       root,
		Patterns:   s.opts.Exclude,
		IgnoreFile: s.opts.IgnoreFile,
		Skip:       s.opts.Skip,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("scan started", "root", root, "workers", s.opts.Workers, "halt_on_error", s.opts.HaltOnError)
	s.currentPath.Store(root)
	s.reportProgressForce()

	g, gctx := errgroup.WithContext(ctx)
	paths := make(chan string, s.opts.Workers*4)

	g.Go(func() error {
		defer close(paths)
		return s.walk(gctx, root, matcher, paths)
	})

	for range s.opts.Workers {
		g.Go(func() error {
			for path := range paths {
				if err := s.process(path); err != nil && s.opts.HaltOnError {
					return err
				}
			}
			return nil
		})
	}

	err = g.Wait()
	s.reportProgressForce()

	slices.Sort(s.corrupted)

	result := &types.ScanResult{
		Root:         root,
		Counts:       make(map[types.Outcome]int64),
		Corrupted:    s.corrupted,
		FilesScanned: s.filesScanned.Load(),
		BytesHashed:  s.bytesHashed.Load(),
		Elapsed:      time.Since(start),
		Errors:       s.errors,
	}
	for o := range s.counts {
		if n := s.counts[o].Load(); n > 0 {
			result.Counts[types.Outcome(o)] = n
		}
	}

	s.log.Info("scan finished",
		"root", root,
		"files", result.FilesScanned,
		"corrupt", len(result.Corrupted),
		"errors", len(result.Errors),
		"elapsed", result.Elapsed)

	return result, err
}

func (s *Scanner) validateRoot() (string, error) {
	root, err := filepath.Abs(s.opts.Root)
	if err != nil {
		return "", fmt.Errorf("%w: resolve %s: %w", types.ErrIO, s.opts.Root, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", types.ErrIO, root)
	}

	return root, nil
}

// walk feeds regular files to the workers. It stops when ctx is cancelled.
func (s *Scanner) walk(ctx context.Context, root string, matcher *ignore.Matcher, paths chan<- string) error {
	conf := fastwalk.Config{
		Follow: false,
	}

	return fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err != nil {
			if ferr := s.fail(path, fmt.Errorf("%w: walk: %w", types.ErrIO, err)); ferr != nil {
				return ferr
			}
			if d != nil && d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		if matcher.Match(path, d.IsDir()) {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			if d.Type()&fs.ModeSymlink != 0 {
				s.log.Debug("skipping symlink", "path", path)
			}
			return nil
		}

		select {
		case paths <- path:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// process hashes one file and reconciles it. Errors are recorded and, when
// halting, returned.
func (s *Scanner) process(path string) error {
	s.currentPath.Store(path)

	digest, info, err := hasher.File(path)
	if err != nil {
		return s.fail(path, err)
	}

	s.filesScanned.Add(1)
	s.bytesHashed.Add(info.Size())

	fresh := baseline.NewRecord(digest, info)
	outcome, prev, err := s.store.Reconcile(path, fresh)
	if err != nil {
		return s.fail(path, err)
	}

	s.counts[outcome].Add(1)

	res := types.FileResult{
		Path:    path,
		Outcome: outcome,
		Digest:  digest.String(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if prev != nil {
		res.Previous = prev.Digest.String()
	}

	switch outcome {
	case types.CorruptionDetected:
		s.mu.Lock()
		s.corrupted = append(s.corrupted, path)
		s.mu.Unlock()
		s.log.Warn("corruption detected", "path", path, "expected", res.Previous, "actual", res.Digest)
	case types.UpdatedNewer:
		s.log.Debug("baseline updated", "path", path, "digest", res.Digest)
	}

	if s.opts.OnResult != nil {
		s.opts.OnResult(res)
	}
	s.reportProgress()

	return nil
}

// fail records a per-file error. It returns the error when the scan should
// halt, nil otherwise.
func (s *Scanner) fail(path string, err error) error {
	s.mu.Lock()
	s.errors = append(s.errors, types.ScanError{Path: path, Error: err.Error()})
	s.mu.Unlock()

	s.log.Warn("scan error", "path", path, "error", err)

	if !s.opts.HaltOnError {
		return nil
	}
	return fmt.Errorf("%s: %w", path, err)
}

// reportProgress calls the progress callback at most every 10ms.
func (s *Scanner) reportProgress() {
	if s.opts.OnProgress == nil {
		return
	}

	now := time.Now().UnixMilli()
	last := s.lastProgress.Load()
	if now-last < 10 {
		return
	}
	if !s.lastProgress.CompareAndSwap(last, now) {
		return
	}

	s.sendProgress()
}

func (s *Scanner) reportProgressForce() {
	if s.opts.OnProgress == nil {
		return
	}
	s.lastProgress.Store(time.Now().UnixMilli())
	s.sendProgress()
}

func (s *Scanner) sendProgress() {
	currentPath, _ := s.currentPath.Load().(string)

	s.opts.OnProgress(types.ScanProgress{
		FilesScanned: s.filesScanned.Load(),
		BytesHashed:  s.bytesHashed.Load(),
		Corrupted:    s.counts[types.CorruptionDetected].Load(),
		CurrentPath:  currentPath,
	})
}
