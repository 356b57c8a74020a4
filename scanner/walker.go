package scanner

import (
	"context"
	"io/fs"
	"path/filepath"
)

// Walker performs the ignore-aware traversal of a scan root, invoking a
// callback for every candidate regular file.
type Walker struct {
	root   string
	filter *IgnoreFilter
}

func NewWalker(root string, filter *IgnoreFilter) *Walker {
	return &Walker{root: root, filter: filter}
}

// Walk visits candidate files in lexical order, so traversal is
// deterministic for a fixed tree. Excluded directories are pruned
// without descent; symlinks are not followed. The callback receives
// the absolute path and the root-relative slash-separated path.
func (w *Walker) Walk(ctx context.Context, fn func(path, relPath string) error) error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == w.root {
				return err
			}
			return nil // Unreadable entries are skipped, not fatal
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if path == w.root {
			return nil
		}

		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if w.filter.ShouldSkipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if w.filter.ShouldIgnore(rel) {
			return nil
		}

		return fn(path, rel)
	})
}
