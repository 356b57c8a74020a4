package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"
)

var (
	// ErrProjectNotFound reports a project name absent from the database.
	ErrProjectNotFound = errors.New("project not found")

	// ErrAnnotationNotFound reports that no annotation exists at the
	// requested location.
	ErrAnnotationNotFound = errors.New("annotation not found")
)

// database is the in-memory form of the annotation database. It holds
// the merge, prune and resolve algorithms shared by FileStore and
// MemoryStore. Callers guard access with their own locks.
type database struct {
	projects map[string]*Project
}

func newDatabase() database {
	return database{projects: make(map[string]*Project)}
}

// identityKey matches annotations across rescans. Line numbers are
// excluded so unrelated edits that shift lines do not orphan the
// resolved flag; repeated (file, kind, message) triples pair up by
// ascending line order instead.
func identityKey(a Annotation) string {
	return a.File + "\x00" + a.Kind + "\x00" + a.Message
}

func sortAnnotations(list []Annotation) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].File != list[j].File {
			return list[i].File < list[j].File
		}
		if list[i].Line != list[j].Line {
			return list[i].Line < list[j].Line
		}
		return list[i].Kind < list[j].Kind
	})
}

func (db *database) merge(projectName string, scanned []Annotation, scope *Scope, now time.Time) MergeResult {
	var result MergeResult

	project := db.projects[projectName]

	// Only existing records inside the scope are reconciled; the rest
	// pass through untouched.
	var inScope, outOfScope []Annotation
	if project != nil {
		for _, a := range project.Annotations {
			if scope.Contains(a.File) {
				inScope = append(inScope, a)
			} else {
				outOfScope = append(outOfScope, a)
			}
		}
	}

	// Pair scanned annotations with existing records by identity key.
	// Both sides are walked in ascending line order so the i-th
	// occurrence of a repeated triple matches the i-th existing one.
	sortAnnotations(inScope)

	queues := make(map[string][]int, len(inScope))
	for i, a := range inScope {
		k := identityKey(a)
		queues[k] = append(queues[k], i)
	}

	fresh := make([]Annotation, len(scanned))
	copy(fresh, scanned)
	sortAnnotations(fresh)

	matched := make([]bool, len(inScope))
	merged := make([]Annotation, 0, len(fresh)+len(outOfScope))

	for _, a := range fresh {
		if !scope.Contains(a.File) {
			result.Dropped++
			continue
		}
		k := identityKey(a)
		if queue := queues[k]; len(queue) > 0 {
			idx := queue[0]
			queues[k] = queue[1:]
			kept := inScope[idx]
			kept.Line = a.Line // location refreshed, resolved flag preserved
			matched[idx] = true
			merged = append(merged, kept)
			result.Kept++
			continue
		}
		a.Resolved = false
		merged = append(merged, a)
		result.Added++
	}

	for i := range inScope {
		if !matched[i] {
			result.Removed++
		}
	}

	merged = append(merged, outOfScope...)

	if len(merged) == 0 {
		delete(db.projects, projectName)
		return result
	}

	sortAnnotations(merged)

	if project == nil {
		project = &Project{Name: projectName}
		db.projects[projectName] = project
	}
	project.Annotations = merged
	project.LastScanned = now

	return result
}

func (db *database) pruneResolved(filter PruneFilter, dryRun bool) PruneSummary {
	summary := PruneSummary{ByProject: make(map[string]int)}

	if filter.Project != "" {
		if _, ok := db.projects[filter.Project]; !ok {
			summary.FilterMissing = true
			return summary
		}
	}

	names := make([]string, 0, len(db.projects))
	for name := range db.projects {
		if filter.Project != "" && name != filter.Project {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		project := db.projects[name]

		kept := make([]Annotation, 0, len(project.Annotations))
		removed := 0
		for _, a := range project.Annotations {
			if a.Resolved {
				removed++
				continue
			}
			kept = append(kept, a)
		}
		if removed == 0 {
			continue
		}

		summary.ByProject[name] = removed
		summary.Total += removed
		if len(kept) == 0 {
			summary.ProjectsDropped = append(summary.ProjectsDropped, name)
		}

		if dryRun {
			continue
		}
		if len(kept) == 0 {
			delete(db.projects, name)
		} else {
			project.Annotations = kept
		}
	}

	return summary
}

func (db *database) setResolved(projectName, file string, line int, resolved bool) (*Annotation, error) {
	project, ok := db.projects[projectName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectName)
	}

	file = filepath.ToSlash(file)
	for i := range project.Annotations {
		a := &project.Annotations[i]
		if a.File == file && a.Line == line {
			a.Resolved = resolved
			out := *a
			return &out, nil
		}
	}

	return nil, fmt.Errorf("%w: %s:%d in project %s", ErrAnnotationNotFound, file, line, projectName)
}

func (db *database) projectNames() []string {
	names := make([]string, 0, len(db.projects))
	for name := range db.projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (db *database) project(name string) (*Project, bool) {
	p, ok := db.projects[name]
	if !ok {
		return nil, false
	}

	out := &Project{
		Name:        p.Name,
		Annotations: make([]Annotation, len(p.Annotations)),
		LastScanned: p.LastScanned,
	}
	copy(out.Annotations, p.Annotations)
	return out, true
}

func (db *database) stats() Stats {
	stats := Stats{
		Projects: len(db.projects),
		ByKind:   make(map[string]int),
	}
	for _, p := range db.projects {
		stats.Annotations += len(p.Annotations)
		for _, a := range p.Annotations {
			if a.Resolved {
				stats.Resolved++
			}
			stats.ByKind[a.Kind]++
		}
	}
	return stats
}
