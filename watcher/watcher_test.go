package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yoanbernabeu/codemarks/scanner"
)

const testDebounce = 150 * time.Millisecond

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func startTestWatcher(t *testing.T, root string, globs []string) *Watcher {
	t.Helper()

	filter, err := scanner.NewIgnoreFilter(root, globs)
	if err != nil {
		t.Fatalf("NewIgnoreFilter() failed: %v", err)
	}

	w, err := NewWatcher(root, filter, testDebounce)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	t.Cleanup(func() {
		_ = w.Close()
	})

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	return w
}

func waitForBatch(t *testing.T, w *Watcher) Batch {
	t.Helper()
	select {
	case batch := <-w.Batches():
		return batch
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a batch")
		return Batch{}
	}
}

func expectNoBatch(t *testing.T, w *Watcher, wait time.Duration) {
	t.Helper()
	select {
	case batch := <-w.Batches():
		t.Fatalf("unexpected batch %s covering %v", batch.ID, batch.Paths())
	case <-time.After(wait):
	}
}

func TestWatcherCoalescesBurstIntoOneBatch(t *testing.T) {
	root := t.TempDir()
	w := startTestWatcher(t, root, nil)

	// A burst of writes inside one debounce window must produce exactly
	// one batch naming the file once.
	path := filepath.Join(root, "main.go")
	for i := 0; i < 5; i++ {
		writeFile(t, path, "// TODO: draft\n")
		time.Sleep(10 * time.Millisecond)
	}

	batch := waitForBatch(t, w)
	if len(batch.ID) != 8 {
		t.Errorf("batch ID = %q, want 8 characters", batch.ID)
	}

	paths := batch.Paths()
	if len(paths) != 1 || paths[0] != "main.go" {
		t.Fatalf("batch paths = %v, want [main.go]", paths)
	}

	expectNoBatch(t, w, 4*testDebounce)
}

func TestWatcherBatchesMultipleFiles(t *testing.T) {
	root := t.TempDir()
	w := startTestWatcher(t, root, nil)

	writeFile(t, filepath.Join(root, "b.go"), "b")
	writeFile(t, filepath.Join(root, "a.go"), "a")
	writeFile(t, filepath.Join(root, "c.go"), "c")

	batch := waitForBatch(t, w)
	paths := batch.Paths()
	if len(paths) != 3 {
		t.Fatalf("batch paths = %v, want 3 files", paths)
	}
	// Events are delivered sorted by path for deterministic output.
	if paths[0] != "a.go" || paths[1] != "b.go" || paths[2] != "c.go" {
		t.Errorf("batch paths = %v, want [a.go b.go c.go]", paths)
	}
}

func TestWatcherIgnoresFilteredPaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "*.log\n")
	w := startTestWatcher(t, root, []string{"build"})

	writeFile(t, filepath.Join(root, "debug.log"), "ignored by gitignore")
	writeFile(t, filepath.Join(root, "build", "out.go"), "ignored by glob")

	expectNoBatch(t, w, 4*testDebounce)

	// The watcher is still alive for paths that pass the filter.
	writeFile(t, filepath.Join(root, "main.go"), "tracked")
	batch := waitForBatch(t, w)
	paths := batch.Paths()
	if len(paths) != 1 || paths[0] != "main.go" {
		t.Fatalf("batch paths = %v, want [main.go]", paths)
	}
}

func TestWatcherReportsDeletions(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "doomed.go")
	writeFile(t, path, "// TODO: delete me\n")

	w := startTestWatcher(t, root, nil)

	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove file: %v", err)
	}

	batch := waitForBatch(t, w)
	if len(batch.Events) != 1 {
		t.Fatalf("batch events = %+v, want 1", batch.Events)
	}
	event := batch.Events[0]
	if event.Path != "doomed.go" {
		t.Errorf("event path = %q, want doomed.go", event.Path)
	}
	if event.Type != EventDelete {
		t.Errorf("event type = %v, want %v", event.Type, EventDelete)
	}
	if event.IsDir {
		t.Error("file deletion reported as directory")
	}
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	root := t.TempDir()
	w := startTestWatcher(t, root, nil)

	subDir := filepath.Join(root, "sub")
	if err := os.Mkdir(subDir, 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	writeFile(t, filepath.Join(subDir, "new.go"), "// FIXME: fresh\n")

	batch := waitForBatch(t, w)
	found := false
	for _, p := range batch.Paths() {
		if p == "sub/new.go" {
			found = true
		}
	}
	if !found {
		t.Fatalf("batch paths = %v, want sub/new.go included", batch.Paths())
	}
}

func TestWatcherMarksRemovedDirectories(t *testing.T) {
	root := t.TempDir()
	subDir := filepath.Join(root, "gone")
	writeFile(t, filepath.Join(subDir, "f.go"), "x")

	w := startTestWatcher(t, root, nil)

	if err := os.RemoveAll(subDir); err != nil {
		t.Fatalf("failed to remove directory: %v", err)
	}

	batch := waitForBatch(t, w)
	foundDir := false
	for _, event := range batch.Events {
		if event.Path == "gone" && event.IsDir {
			foundDir = true
		}
	}
	if !foundDir {
		t.Fatalf("batch events = %+v, want gone marked as a removed directory", batch.Events)
	}
}

func TestWatcherStartFailsForMissingRoot(t *testing.T) {
	tmp := t.TempDir()
	filter, err := scanner.NewIgnoreFilter(tmp, nil)
	if err != nil {
		t.Fatalf("NewIgnoreFilter() failed: %v", err)
	}

	w, err := NewWatcher(filepath.Join(tmp, "missing"), filter, testDebounce)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer w.Close()

	if err := w.Start(context.Background()); err == nil {
		t.Fatal("Start() succeeded for a missing root, want error")
	}
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	root := t.TempDir()
	w := startTestWatcher(t, root, nil)

	if err := w.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() failed: %v", err)
	}
}

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		event EventType
		want  string
	}{
		{EventCreate, "CREATE"},
		{EventModify, "MODIFY"},
		{EventDelete, "DELETE"},
		{EventRename, "RENAME"},
		{EventType(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.event.String(); got != tt.want {
			t.Errorf("EventType(%d).String() = %q, want %q", tt.event, got, tt.want)
		}
	}
}
