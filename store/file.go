package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/yoanbernabeu/codemarks/internal/fileutil"
)

// documentVersion identifies the on-disk database format.
const documentVersion = 1

// document is the persisted shape of the database.
type document struct {
	Version  int                 `json:"version"`
	Projects map[string]*Project `json:"projects"`
}

// FileStore persists the annotation database as a human-diffable JSON
// document, guarded by a sibling lock file for cross-process safety.
type FileStore struct {
	path string
	lock *flock.Flock
	mu   sync.RWMutex
	db   database
}

func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
		db:   newDatabase(),
	}
}

// Path returns the location of the database document.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Shared file lock for cross-process safety. If locking fails,
	// proceed without it rather than refusing to read.
	if err := s.lock.RLock(); err != nil {
		return s.loadUnlocked()
	}
	defer func() {
		_ = s.lock.Unlock()
	}()

	return s.loadUnlocked()
}

func (s *FileStore) loadUnlocked() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read projects database: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse projects database: %w", err)
	}

	if doc.Projects == nil {
		doc.Projects = make(map[string]*Project)
	}
	// The map key is canonical; tolerate hand-edited name fields.
	for name, project := range doc.Projects {
		if project == nil {
			delete(doc.Projects, name)
			continue
		}
		project.Name = name
	}

	s.db.projects = doc.Projects
	return nil
}

func (s *FileStore) Persist() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Exclusive file lock for cross-process safety. If locking fails,
	// proceed without it rather than dropping the write.
	if err := s.lock.Lock(); err != nil {
		return s.persistUnlocked()
	}
	defer func() {
		_ = s.lock.Unlock()
	}()

	return s.persistUnlocked()
}

func (s *FileStore) persistUnlocked() error {
	doc := document{
		Version:  documentVersion,
		Projects: s.db.projects,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal projects database: %w", err)
	}
	data = append(data, '\n')

	if err := fileutil.WriteFileAtomic(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write projects database: %w", err)
	}

	return nil
}

func (s *FileStore) Close() error {
	return s.Persist()
}

func (s *FileStore) Merge(project string, scanned []Annotation, scope *Scope) MergeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.merge(project, scanned, scope, time.Now().UTC())
}

func (s *FileStore) PruneResolved(filter PruneFilter, dryRun bool) PruneSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.pruneResolved(filter, dryRun)
}

func (s *FileStore) SetResolved(project, file string, line int, resolved bool) (*Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.setResolved(project, file, line, resolved)
}

func (s *FileStore) Projects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.projectNames()
}

func (s *FileStore) Project(name string) (*Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.project(name)
}

func (s *FileStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.stats()
}
