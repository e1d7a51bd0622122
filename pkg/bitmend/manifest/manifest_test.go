package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jamesainslie/bitmend/pkg/bitmend/types"
)

func newManifest(t *testing.T) *Manifest {
	t.Helper()
	m, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m
}

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("New() error = nil, want error for empty directory")
	}

	dir := filepath.Join(t.TempDir(), "history")
	m, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := m.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}
}

func TestManifest_LogScan(t *testing.T) {
	t.Parallel()
	m := newManifest(t)

	result := &types.ScanResult{
		Root:         "/srv/photos",
		Counts:       map[types.Outcome]int64{types.Unchanged: 10, types.CorruptionDetected: 1},
		Corrupted:    []string{"/srv/photos/a.jpg"},
		FilesScanned: 11,
		BytesHashed:  4096,
		Elapsed:      time.Second,
		Errors:       []types.ScanError{{Path: "/srv/photos/locked", Error: "permission denied"}},
	}

	entry, err := m.LogScan(result)
	if err != nil {
		t.Fatalf("LogScan() error = %v", err)
	}

	if entry.Operation != OpScan {
		t.Errorf("Operation = %q, want %q", entry.Operation, OpScan)
	}
	if entry.Root != "/srv/photos" {
		t.Errorf("Root = %q", entry.Root)
	}
	if len(entry.Files) != 2 {
		t.Fatalf("len(Files) = %d, want 2", len(entry.Files))
	}
	if entry.Files[0].Status != "corrupt" || entry.Files[1].Status != "error" {
		t.Errorf("statuses = %q, %q", entry.Files[0].Status, entry.Files[1].Status)
	}
	if entry.Summary.Outcomes["unchanged"] != 10 {
		t.Errorf("Outcomes = %v", entry.Summary.Outcomes)
	}

	path := filepath.Join(m.dir, "scan-"+entry.ID+".json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("entry file not written: %v", err)
	}
}

func TestManifest_LogAndGet(t *testing.T) {
	t.Parallel()
	m := newManifest(t)

	entry, err := m.Log(OpFix, "", []FileRecord{{Path: "/a.txt", Status: "repaired", Detail: "byte 5 bit 3"}}, Summary{})
	if err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	got, err := m.Get(entry.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Files[0].Detail != "byte 5 bit 3" {
		t.Errorf("Detail = %q", got.Files[0].Detail)
	}

	byPrefix, err := m.Get(entry.ID[:13])
	if err != nil {
		t.Fatalf("Get(prefix) error = %v", err)
	}
	if byPrefix.ID != entry.ID {
		t.Errorf("Get(prefix) = %q, want %q", byPrefix.ID, entry.ID)
	}

	if _, err := m.Get("does-not-exist"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := m.Get(""); err == nil {
		t.Error("Get(\"\") error = nil")
	}
}

func TestManifest_List(t *testing.T) {
	t.Parallel()
	m := newManifest(t)

	empty, err := m.List(0)
	if err != nil {
		t.Fatalf("List() on empty dir error = %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("len = %d, want 0", len(empty))
	}

	var ids []string
	for _, op := range []OperationType{OpScan, OpCorrupt, OpFix} {
		e, err := m.Log(op, "", nil, Summary{})
		if err != nil {
			t.Fatalf("Log() error = %v", err)
		}
		ids = append(ids, e.ID)
	}

	all, err := m.List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].ID != ids[2] {
		t.Errorf("newest = %q, want %q", all[0].ID, ids[2])
	}

	limited, err := m.List(2)
	if err != nil {
		t.Fatalf("List(2) error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("len = %d, want 2", len(limited))
	}
}

func TestManifest_Cleanup(t *testing.T) {
	t.Parallel()
	m := newManifest(t)

	old, err := m.Log(OpScan, "", nil, Summary{})
	if err != nil {
		t.Fatal(err)
	}
	fresh, err := m.Log(OpScan, "", nil, Summary{})
	if err != nil {
		t.Fatal(err)
	}

	oldPath := filepath.Join(m.dir, "scan-"+old.ID+".json")
	past := time.Now().AddDate(0, 0, -40)
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatal(err)
	}

	removed, err := m.Cleanup(30)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := m.Get(fresh.ID); err != nil {
		t.Errorf("fresh entry removed: %v", err)
	}
}

func TestManifest_ConcurrentWrites(t *testing.T) {
	t.Parallel()
	m := newManifest(t)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Log(OpScan, "", nil, Summary{}); err != nil {
				t.Errorf("Log() error = %v", err)
			}
		}()
	}
	wg.Wait()

	entries, err := m.List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 20 {
		t.Errorf("len = %d, want 20", len(entries))
	}
}

func TestManifest_SkipsUnreadableFiles(t *testing.T) {
	t.Parallel()
	m := newManifest(t)

	if err := os.WriteFile(filepath.Join(m.dir, "garbage.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Log(OpScan, "", nil, Summary{}); err != nil {
		t.Fatal(err)
	}

	entries, err := m.List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("len = %d, want 1", len(entries))
	}

}
