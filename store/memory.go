package store

import (
	"sync"
	"time"
)

// MemoryStore backs ephemeral runs. Nothing is read from or written to
// disk; the database lives for one invocation.
type MemoryStore struct {
	mu sync.RWMutex
	db database
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{db: newDatabase()}
}

func (s *MemoryStore) Load() error {
	return nil
}

func (s *MemoryStore) Persist() error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) Merge(project string, scanned []Annotation, scope *Scope) MergeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.merge(project, scanned, scope, time.Now().UTC())
}

func (s *MemoryStore) PruneResolved(filter PruneFilter, dryRun bool) PruneSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.pruneResolved(filter, dryRun)
}

func (s *MemoryStore) SetResolved(project, file string, line int, resolved bool) (*Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.setResolved(project, file, line, resolved)
}

func (s *MemoryStore) Projects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.projectNames()
}

func (s *MemoryStore) Project(name string) (*Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.project(name)
}

func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.stats()
}
