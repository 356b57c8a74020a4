package store

import "time"

// Annotation is one tracked marker occurrence in a project's source.
// The line number is informational: annotations are matched across
// rescans by file, kind and message (plus occurrence order for
// duplicates), so edits elsewhere in a file do not orphan the
// resolved flag.
type Annotation struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Resolved bool   `json:"resolved"`
}

// Project groups the annotations recorded for one scanned root.
type Project struct {
	Name        string       `json:"name"`
	Annotations []Annotation `json:"annotations"`
	LastScanned time.Time    `json:"last_scanned"`
}

// Scope restricts a merge to part of a project. A nil scope (or one
// with no files) covers the whole project; otherwise only annotations
// in the listed files are reconciled and the rest are left untouched.
type Scope struct {
	Files []string
}

// Contains reports whether the scope covers the given file path.
func (s *Scope) Contains(file string) bool {
	if s == nil || len(s.Files) == 0 {
		return true
	}
	for _, f := range s.Files {
		if f == file {
			return true
		}
	}
	return false
}

// MergeResult summarizes one reconciliation of scanned annotations
// against a project.
type MergeResult struct {
	Added   int // newly inserted, resolved=false
	Kept    int // matched an existing record, resolved flag preserved
	Removed int // no longer present in source within the scope
	Dropped int // scanned annotations outside the scope, discarded
}

// PruneFilter selects which projects clean operates on.
type PruneFilter struct {
	Project string // empty means every project
}

// PruneSummary reports what a clean removed, or would remove under
// dry-run.
type PruneSummary struct {
	ByProject       map[string]int // project name -> resolved annotations removed
	ProjectsDropped []string       // projects left empty and removed
	Total           int
	FilterMissing   bool // the filtered project does not exist
}

// Stats summarizes the whole database.
type Stats struct {
	Projects    int
	Annotations int
	Resolved    int
	ByKind      map[string]int
}

// Store is the annotation database. FileStore persists to a JSON
// document; MemoryStore backs ephemeral runs.
type Store interface {
	// Load reads the database from persistent storage. A missing
	// document yields an empty database, not an error.
	Load() error

	// Persist writes the database to persistent storage.
	Persist() error

	// Close cleanly shuts down the store, persisting pending state.
	Close() error

	// Merge reconciles freshly scanned annotations with the named
	// project inside the given scope. Matched records keep their
	// resolved flag (line number refreshed), unmatched scanned
	// annotations are inserted unresolved, and in-scope records the
	// scan no longer produces are removed. A project left empty is
	// dropped. Merge is idempotent for an unchanged scan.
	Merge(project string, scanned []Annotation, scope *Scope) MergeResult

	// PruneResolved removes every resolved annotation in the filtered
	// projects, dropping projects left empty. Under dryRun the summary
	// is computed without mutating the database.
	PruneResolved(filter PruneFilter, dryRun bool) PruneSummary

	// SetResolved flips the resolved flag of the annotation at
	// file:line in the named project and returns the updated record.
	SetResolved(project, file string, line int, resolved bool) (*Annotation, error)

	// Projects returns all project names, sorted.
	Projects() []string

	// Project returns a copy of the named project.
	Project(name string) (*Project, bool)

	// Stats returns database-wide totals.
	Stats() Stats
}
