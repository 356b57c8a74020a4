package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/yoanbernabeu/codemarks/scanner"
)

type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
	EventRename
)

// FileEvent is one coalesced change to a path under the watched root.
type FileEvent struct {
	Type  EventType
	Path  string // root-relative, slash-separated
	IsDir bool   // true when a watched directory was removed
}

// Batch is one debounced group of file changes, delivered once the
// quiet window elapses with no further events.
type Batch struct {
	ID     string // short random identifier, for log correlation
	Events []FileEvent
}

// Paths returns the affected root-relative paths in sorted order.
func (b Batch) Paths() []string {
	paths := make([]string, len(b.Events))
	for i, event := range b.Events {
		paths[i] = event.Path
	}
	return paths
}

// Watcher subscribes to filesystem notifications under a root,
// filters them through the scan ignore rules, and coalesces bursts
// into batches within a debounce window. Events are never discarded:
// a flush that cannot be delivered re-arms the timer and retries with
// the batch intact.
type Watcher struct {
	root     string
	watcher  *fsnotify.Watcher
	filter   *scanner.IgnoreFilter
	debounce time.Duration
	batches  chan Batch
	done     chan struct{}
	closed   sync.Once

	// Debouncing state
	pending   map[string]FileEvent
	pendingMu sync.Mutex
	timer     *time.Timer

	// Directories currently watched, by root-relative path. Needed to
	// recognize a Remove event as a directory deletion after the fact.
	dirs   map[string]bool
	dirsMu sync.Mutex
}

func NewWatcher(root string, filter *scanner.IgnoreFilter, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:     root,
		watcher:  fsw,
		filter:   filter,
		debounce: debounce,
		batches:  make(chan Batch, 16),
		done:     make(chan struct{}),
		pending:  make(map[string]FileEvent),
		dirs:     make(map[string]bool),
	}, nil
}

// Start registers the root and all non-ignored subdirectories and
// begins event processing. A root that is missing or not a directory
// is fatal; failures on individual subdirectories are logged only.
func (w *Watcher) Start(ctx context.Context) error {
	info, err := os.Stat(w.root)
	if err != nil {
		return fmt.Errorf("cannot watch %s: %w", w.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cannot watch %s: not a directory", w.root)
	}

	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	go w.processEvents(ctx)

	return nil
}

// Batches delivers the debounced change batches.
func (w *Watcher) Batches() <-chan Batch {
	return w.batches
}

func (w *Watcher) Close() error {
	var err error
	w.closed.Do(func() {
		close(w.done)
		w.pendingMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.pendingMu.Unlock()
		err = w.watcher.Close()
	})
	return err
}

// addRecursive watches dir and every non-ignored directory below it.
// Only a failure on dir itself is returned.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("cannot watch %s: %w", dir, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		relPath, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if relPath != "." && w.filter.ShouldSkipDir(relPath) {
			return filepath.SkipDir
		}
		if relPath != "." && w.filter.ShouldIgnore(relPath) {
			return nil
		}

		if addErr := w.watcher.Add(path); addErr != nil {
			if path == dir {
				return fmt.Errorf("cannot watch %s: %w", dir, addErr)
			}
			log.Printf("Warning: failed to watch %s: %v", path, addErr)
			return nil
		}

		w.dirsMu.Lock()
		w.dirs[relPath] = true
		w.dirsMu.Unlock()

		return nil
	})
}

// enqueueExisting queues a create event for every non-ignored file
// already present under dir. Used when a directory appears fully
// formed, since its files predate the watch registration.
func (w *Watcher) enqueueExisting(dir string) {
	walker := scanner.NewWalker(w.root, w.filter)
	_ = walker.Walk(context.Background(), func(path, relPath string) error {
		if !withinDir(path, dir) {
			return nil
		}
		w.debounceEvent(FileEvent{Type: EventCreate, Path: relPath})
		return nil
	})
}

func withinDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	relPath = filepath.ToSlash(relPath)
	if relPath == "." {
		return
	}

	if w.filter.ShouldIgnore(relPath) {
		return
	}

	// A freshly created directory has to be registered, and any files
	// it already contains queued, before their own events can arrive.
	if event.Has(fsnotify.Create) {
		if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
			if addErr := w.addRecursive(event.Name); addErr != nil {
				log.Printf("Warning: %v", addErr)
			}
			w.enqueueExisting(event.Name)
			return
		}
	}

	var evType EventType
	switch {
	case event.Has(fsnotify.Create):
		evType = EventCreate
	case event.Has(fsnotify.Write):
		evType = EventModify
	case event.Has(fsnotify.Remove):
		evType = EventDelete
	case event.Has(fsnotify.Rename):
		evType = EventRename
	default:
		return
	}

	isDir := false
	if evType == EventDelete || evType == EventRename {
		w.dirsMu.Lock()
		if w.dirs[relPath] {
			isDir = true
			delete(w.dirs, relPath)
		}
		w.dirsMu.Unlock()
	}

	w.debounceEvent(FileEvent{Type: evType, Path: relPath, IsDir: isDir})
}

func (w *Watcher) debounceEvent(event FileEvent) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	// Latest event per path wins; a directory deletion stays marked as
	// such even if the name is immediately recreated as a file.
	if existing, ok := w.pending[event.Path]; ok && existing.IsDir {
		event.IsDir = true
	}
	w.pending[event.Path] = event

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	if len(w.pending) == 0 {
		return
	}

	select {
	case <-w.done:
		return
	default:
	}

	events := make([]FileEvent, 0, len(w.pending))
	for _, event := range w.pending {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Path < events[j].Path
	})

	batch := Batch{ID: newBatchID(), Events: events}

	// The send must not block while the lock is held, or incoming
	// events would back up into fsnotify's internal queue. If the
	// consumer is busy the batch stays pending and another window is
	// armed; nothing is lost.
	select {
	case w.batches <- batch:
		w.pending = make(map[string]FileEvent)
	default:
		w.timer = time.AfterFunc(w.debounce, w.flush)
	}
}

// newBatchID returns a short random identifier for log correlation.
func newBatchID() string {
	return uuid.NewString()[:8]
}

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "CREATE"
	case EventModify:
		return "MODIFY"
	case EventDelete:
		return "DELETE"
	case EventRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}
