package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/bitmend/pkg/bitmend/baseline"
	"github.com/jamesainslie/bitmend/pkg/bitmend/types"
)

// createTree writes files under root and pins their mtimes to an hour ago
// so later edits can move them forward.
func createTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	past := time.Now().Add(-time.Hour)
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		require.NoError(t, os.Chtimes(path, past, past))
	}
}

func openStore(t *testing.T) *baseline.Store {
	t.Helper()
	s, err := baseline.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func scan(t *testing.T, store Reconciler, opts Options) *types.ScanResult {
	t.Helper()
	result, err := New(store, opts).Scan(context.Background())
	require.NoError(t, err)
	return result
}

// flipBit corrupts one byte in place while keeping the mtime.
func flipBit(t *testing.T, path string, offset int64, bit uint8) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	b := make([]byte, 1)
	_, err = f.ReadAt(b, offset)
	require.NoError(t, err)
	b[0] ^= 1 << bit
	_, err = f.WriteAt(b, offset)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))
}

func TestOptionsValidate(t *testing.T) {
	opts := Options{}
	require.NoError(t, opts.Validate())
	assert.Equal(t, ".", opts.Root)
	assert.Positive(t, opts.Workers)

	opts = Options{Root: "/srv", Workers: 3}
	require.NoError(t, opts.Validate())
	assert.Equal(t, "/srv", opts.Root)
	assert.Equal(t, 3, opts.Workers)
}

func TestScanIdempotent(t *testing.T) {
	root := t.TempDir()
	createTree(t, root, map[string]string{
		"a.txt":         "hello",
		"b.txt":         "world",
		"sub/c.txt":     "nested",
		"sub/deep/d.md": "",
	})
	store := openStore(t)

	first := scan(t, store, Options{Root: root})
	assert.Equal(t, int64(4), first.FilesScanned)
	assert.Equal(t, int64(4), first.Count(types.NewlyTracked))
	assert.Empty(t, first.Errors)

	second := scan(t, store, Options{Root: root})
	assert.Equal(t, int64(4), second.Count(types.Unchanged))
	assert.Zero(t, second.Count(types.NewlyTracked))
	assert.Empty(t, second.Corrupted)
}

func TestScanDetectsCorruption(t *testing.T) {
	root := t.TempDir()
	createTree(t, root, map[string]string{"a.txt": "hello world", "b.txt": "untouched"})
	store := openStore(t)

	scan(t, store, Options{Root: root})

	path := filepath.Join(root, "a.txt")
	before, err := store.Get(path)
	require.NoError(t, err)

	flipBit(t, path, 5, 3)

	result := scan(t, store, Options{Root: root})
	assert.Equal(t, int64(1), result.Count(types.CorruptionDetected))
	assert.Equal(t, int64(1), result.Count(types.Unchanged))
	assert.Equal(t, []string{path}, result.Corrupted)

	after, err := store.Get(path)
	require.NoError(t, err)
	assert.Equal(t, before.Digest, after.Digest, "baseline must not absorb corruption")

	// Still flagged on the next run.
	again := scan(t, store, Options{Root: root})
	assert.Equal(t, []string{path}, again.Corrupted)
}

func TestScanLegitimateEdit(t *testing.T) {
	root := t.TempDir()
	createTree(t, root, map[string]string{"notes.txt": "v1"})
	store := openStore(t)

	scan(t, store, Options{Root: root})

	path := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("v2 with more text"), 0o644))
	now := time.Now()
	require.NoError(t, os.Chtimes(path, now, now))

	var results []types.FileResult
	result := scan(t, store, Options{Root: root, OnResult: func(r types.FileResult) {
		results = append(results, r)
	}})
	assert.Equal(t, int64(1), result.Count(types.UpdatedNewer))
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Previous)
	assert.NotEqual(t, results[0].Previous, results[0].Digest)

	result = scan(t, store, Options{Root: root})
	assert.Equal(t, int64(1), result.Count(types.Unchanged))
}

func TestScanSkipsSymlinksAndExcluded(t *testing.T) {
	root := t.TempDir()
	createTree(t, root, map[string]string{
		"keep.txt":       "k",
		"skip.tmp":       "s",
		"cache/blob.bin": "c",
	})
	require.NoError(t, os.Symlink(filepath.Join(root, "keep.txt"), filepath.Join(root, "link.txt")))
	require.NoError(t, os.Symlink(filepath.Join(root, "cache"), filepath.Join(root, "linkdir")))

	store := openStore(t)
	var mu sync.Mutex
	var seen []string

	result := scan(t, store, Options{
		Root:    root,
		Exclude: []string{"*.tmp", "cache"},
		OnResult: func(r types.FileResult) {
			mu.Lock()
			seen = append(seen, filepath.Base(r.Path))
			mu.Unlock()
		},
	})

	assert.Equal(t, int64(1), result.FilesScanned)
	assert.Equal(t, []string{"keep.txt"}, seen)
}

func TestScanSkipsBaselineUnderRoot(t *testing.T) {
	root := t.TempDir()
	createTree(t, root, map[string]string{"data.txt": "payload"})

	dbDir := filepath.Join(root, ".bitmend")
	store, err := baseline.Open(dbDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	result := scan(t, store, Options{Root: root, Skip: []string{dbDir}})
	assert.Equal(t, int64(1), result.FilesScanned)
}

func TestScanIgnoreFile(t *testing.T) {
	root := t.TempDir()
	createTree(t, root, map[string]string{
		".bitmendignore": "*.log\n",
		"app.log":        "noise",
		"app.conf":       "keep",
	})
	store := openStore(t)

	result := scan(t, store, Options{Root: root, IgnoreFile: ".bitmendignore"})
	assert.Equal(t, int64(2), result.FilesScanned, ".bitmendignore and app.conf")
}

func TestScanOrderIndependent(t *testing.T) {
	files := map[string]string{}
	for i := range 40 {
		files[filepath.Join("d"+string(rune('a'+i%5)), "f"+string(rune('a'+i))+".txt")] = string(rune('A' + i))
	}

	run := func(workers int) map[types.Outcome]int64 {
		root := t.TempDir()
		createTree(t, root, files)
		store := openStore(t)
		scan(t, store, Options{Root: root, Workers: workers})
		flipBit(t, filepath.Join(root, "da", "fa.txt"), 0, 1)
		return scan(t, store, Options{Root: root, Workers: workers}).Counts
	}

	assert.Equal(t, run(1), run(8))
}

type failingStore struct {
	Reconciler
	failOn string
}

func (f failingStore) Reconcile(path string, fresh baseline.FileRecord) (types.Outcome, *baseline.FileRecord, error) {
	if filepath.Base(path) == f.failOn {
		return 0, nil, types.ErrStore
	}
	return f.Reconciler.Reconcile(path, fresh)
}

func TestScanCollectsErrors(t *testing.T) {
	root := t.TempDir()
	createTree(t, root, map[string]string{"ok1": "1", "bad": "2", "ok2": "3"})
	store := failingStore{Reconciler: openStore(t), failOn: "bad"}

	result := scan(t, store, Options{Root: root})
	assert.Equal(t, int64(2), result.Count(types.NewlyTracked))
	require.Len(t, result.Errors, 1)
	assert.Equal(t, filepath.Join(root, "bad"), result.Errors[0].Path)
}

func TestScanHaltOnError(t *testing.T) {
	root := t.TempDir()
	createTree(t, root, map[string]string{"ok1": "1", "bad": "2", "ok2": "3"})
	store := failingStore{Reconciler: openStore(t), failOn: "bad"}

	result, err := New(store, Options{Root: root, HaltOnError: true, Workers: 1}).Scan(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrStore)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Errors)
}

func TestScanInvalidRoot(t *testing.T) {
	store := openStore(t)

	_, err := New(store, Options{Root: filepath.Join(t.TempDir(), "missing")}).Scan(context.Background())
	assert.ErrorIs(t, err, types.ErrIO)

	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = New(store, Options{Root: file}).Scan(context.Background())
	assert.ErrorIs(t, err, types.ErrIO)
}

func TestScanCancelled(t *testing.T) {
	root := t.TempDir()
	createTree(t, root, map[string]string{"a": "1", "b": "2"})
	store := openStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(store, Options{Root: root}).Scan(ctx)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestScanProgress(t *testing.T) {
	root := t.TempDir()
	createTree(t, root, map[string]string{"a": "1", "b": "22"})
	store := openStore(t)

	var mu sync.Mutex
	var last types.ScanProgress
	scan(t, store, Options{Root: root, OnProgress: func(p types.ScanProgress) {
		mu.Lock()
		last = p
		mu.Unlock()
	}})

	assert.Equal(t, int64(2), last.FilesScanned)
	assert.Equal(t, int64(3), last.BytesHashed)
}
