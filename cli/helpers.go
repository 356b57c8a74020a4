package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"

	"github.com/yoanbernabeu/codemarks/config"
	"github.com/yoanbernabeu/codemarks/scanner"
	"github.com/yoanbernabeu/codemarks/store"
)

// resolveDirectory normalizes a --directory argument to an absolute,
// symlink-resolved path and verifies it is a directory.
func resolveDirectory(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve directory %s: %w", dir, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("cannot access directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}

	return abs, nil
}

// buildMatcherFilter compiles the effective annotation pattern and the
// combined ignore rules for a scan root. The pattern override and extra
// globs come from command-line flags; everything else from the global
// config.
func buildMatcherFilter(root string, cfg *config.Config, extraIgnore []string, patternOverride string) (*scanner.Matcher, *scanner.IgnoreFilter, error) {
	pattern := cfg.Pattern
	if patternOverride != "" {
		pattern = patternOverride
	}

	matcher, err := scanner.NewMatcher(pattern)
	if err != nil {
		return nil, nil, err
	}

	globs := make([]string, 0, len(cfg.Ignore)+len(extraIgnore))
	globs = append(globs, cfg.Ignore...)
	globs = append(globs, extraIgnore...)

	filter, err := scanner.NewIgnoreFilter(root, globs)
	if err != nil {
		return nil, nil, err
	}

	return matcher, filter, nil
}

// buildScanner assembles a Scanner for the given root from the global
// config, optional extra ignore globs, and an optional pattern override.
func buildScanner(root string, cfg *config.Config, extraIgnore []string, patternOverride string) (*scanner.Scanner, error) {
	matcher, filter, err := buildMatcherFilter(root, cfg, extraIgnore, patternOverride)
	if err != nil {
		return nil, err
	}
	return scanner.New(root, matcher, filter), nil
}

// openStore returns the annotation database: in-memory for ephemeral
// runs, otherwise the global projects document loaded from disk.
func openStore(ephemeral bool) (store.Store, error) {
	if ephemeral {
		return store.NewMemoryStore(), nil
	}

	projectsPath, err := config.ProjectsPath()
	if err != nil {
		return nil, err
	}

	st := store.NewFileStore(projectsPath)
	if err := st.Load(); err != nil {
		return nil, err
	}
	return st, nil
}

func isInteractiveTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
