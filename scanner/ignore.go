package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
)

// ignoreFile holds the matchers compiled from one .gitignore file.
// "full" evaluates the original patterns (negations included) and gives
// the final answer. "any" has every pattern converted to positive and
// detects whether the file has an opinion on a path at all.
type ignoreFile struct {
	full    *ignore.GitIgnore
	any     *ignore.GitIgnore
	baseDir string // relative path from the scan root (empty for the root .gitignore)
}

// IgnoreFilter decides which paths a scan excludes. Three layers apply:
// built-ins (.git and hidden entries), .gitignore files collected from
// the tree (each scoped to its own subtree, deepest opinion wins), and
// user-supplied glob patterns. Any layer can exclude a path; only
// .gitignore negations can re-include one.
type IgnoreFilter struct {
	root         string
	files        []ignoreFile
	globs        []string
	hasNegations bool // true if any collected .gitignore has ! patterns
}

// NewIgnoreFilter collects every .gitignore under root and validates the
// extra glob patterns (doublestar syntax). An unparseable glob is a
// configuration error; unreadable ignore files are skipped.
func NewIgnoreFilter(root string, globs []string) (*IgnoreFilter, error) {
	for _, pattern := range globs {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern: %s", pattern)
		}
	}

	f := &IgnoreFilter{
		root:  root,
		globs: globs,
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Unreadable subtrees contribute no patterns
		}

		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if rel, relErr := filepath.Rel(root, path); relErr == nil && f.matchGlobs(filepath.ToSlash(rel)) {
				return filepath.SkipDir
			}
			return nil
		}

		if name != ".gitignore" {
			return nil
		}

		file, hasNegations, compileErr := compileIgnoreFile(path)
		if compileErr != nil {
			return nil // Skip unreadable .gitignore files
		}

		relPath, relErr := filepath.Rel(root, filepath.Dir(path))
		if relErr != nil {
			return nil
		}
		if relPath == "." {
			relPath = ""
		}

		file.baseDir = filepath.ToSlash(relPath)
		f.files = append(f.files, file)
		if hasNegations {
			f.hasNegations = true
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return f, nil
}

// ShouldIgnore reports whether the root-relative path is excluded from
// scanning. The scan root itself is never excluded.
func (f *IgnoreFilter) ShouldIgnore(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	if relPath == "" || relPath == "." {
		return false
	}

	for _, segment := range strings.Split(relPath, "/") {
		if segment == ".git" || strings.HasPrefix(segment, ".") {
			return true
		}
	}

	if f.matchGlobs(relPath) {
		return true
	}

	return f.evalIgnoreFiles(relPath)
}

// ShouldSkipDir reports whether a whole directory subtree can be pruned.
// When any .gitignore contains negation patterns the filter must descend
// into directories its files excluded, because individual entries inside
// may be re-included.
func (f *IgnoreFilter) ShouldSkipDir(relPath string) bool {
	if !f.ShouldIgnore(relPath) {
		return false
	}

	relPath = filepath.ToSlash(relPath)

	// Built-ins and user globs admit no re-inclusion.
	for _, segment := range strings.Split(relPath, "/") {
		if segment == ".git" || strings.HasPrefix(segment, ".") {
			return true
		}
	}
	if f.matchGlobs(relPath) {
		return true
	}

	return !f.hasNegations
}

// matchGlobs checks the user-supplied patterns against the relative path
// and, for patterns without a slash, against each path segment so that
// bare names and basename globs match at any depth.
func (f *IgnoreFilter) matchGlobs(relPath string) bool {
	for _, pattern := range f.globs {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
		if strings.Contains(pattern, "/") {
			continue
		}
		for _, segment := range strings.Split(relPath, "/") {
			if ok, _ := doublestar.Match(pattern, segment); ok {
				return true
			}
		}
	}
	return false
}

// evalIgnoreFiles evaluates the collected .gitignore files for a path.
// The most specific file with an opinion (longest baseDir) decides.
func (f *IgnoreFilter) evalIgnoreFiles(relPath string) bool {
	var best *ignoreFile
	bestBaseLen := -1

	for i := range f.files {
		file := &f.files[i]
		scoped := matcherRelPath(relPath, file.baseDir)
		if scoped == "" && file.baseDir != "" {
			continue // This file does not apply to this path
		}

		if file.any.MatchesPath(scoped) || file.any.MatchesPath(scoped+"/") {
			if len(file.baseDir) > bestBaseLen {
				best = file
				bestBaseLen = len(file.baseDir)
			}
		}
	}

	if best == nil {
		return false
	}

	scoped := matcherRelPath(relPath, best.baseDir)
	// Check both with and without a trailing slash. The trailing-slash
	// variant matches directory patterns and is more specific, so a
	// negation seen only there takes precedence.
	matchPlain := best.full.MatchesPath(scoped)
	matchSlash := best.full.MatchesPath(scoped + "/")
	if matchPlain && !matchSlash {
		return false
	}
	return matchPlain || matchSlash
}

// matcherRelPath computes the path relative to a matcher's base
// directory. Returns empty if the path is outside the matcher's scope
// (when baseDir is non-empty).
func matcherRelPath(relPath, baseDir string) string {
	if baseDir == "" {
		return relPath
	}
	if relPath == baseDir {
		return "."
	}
	if strings.HasPrefix(relPath, baseDir+"/") {
		return strings.TrimPrefix(relPath, baseDir+"/")
	}
	return ""
}

// compileIgnoreFile reads one .gitignore and compiles the full/any
// matcher pair, reporting whether the file contains negation patterns.
func compileIgnoreFile(path string) (ignoreFile, bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return ignoreFile{}, false, err
	}

	lines := strings.Split(string(content), "\n")
	fullLines := make([]string, 0, len(lines))
	anyLines := make([]string, 0, len(lines))
	hasNegations := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		fullLines = append(fullLines, trimmed)

		if strings.HasPrefix(trimmed, "!") {
			hasNegations = true
			anyLines = append(anyLines, strings.TrimPrefix(trimmed, "!"))
		} else {
			anyLines = append(anyLines, trimmed)
		}
	}

	return ignoreFile{
		full: ignore.CompileIgnoreLines(fullLines...),
		any:  ignore.CompileIgnoreLines(anyLines...),
	}, hasNegations, nil
}
