package cli

import (
	"os"
	"testing"

	"github.com/yoanbernabeu/codemarks/config"
	"github.com/yoanbernabeu/codemarks/store"
)

func withScanGlobals(t *testing.T, dir string, ephemeral bool) {
	t.Helper()
	oldDirectory := scanDirectory
	oldIgnore := scanIgnore
	oldPattern := scanPattern
	oldEphemeral := scanEphemeral
	oldVerbose := scanVerbose
	oldJSON := scanJSON
	oldTOON := scanTOON

	scanDirectory = dir
	scanIgnore = nil
	scanPattern = ""
	scanEphemeral = ephemeral
	scanVerbose = false
	scanJSON = false
	scanTOON = false

	t.Cleanup(func() {
		scanDirectory = oldDirectory
		scanIgnore = oldIgnore
		scanPattern = oldPattern
		scanEphemeral = oldEphemeral
		scanVerbose = oldVerbose
		scanJSON = oldJSON
		scanTOON = oldTOON
	})
}

// findAnnotation returns the first annotation matching file and kind.
func findAnnotation(t *testing.T, p *store.Project, file, kind string) *store.Annotation {
	t.Helper()
	for i := range p.Annotations {
		a := &p.Annotations[i]
		if a.File == file && a.Kind == kind {
			return a
		}
	}
	t.Fatalf("no %s annotation for %s in project %s", kind, file, p.Name)
	return nil
}

func TestScanWorkflow(t *testing.T) {
	setupTestHome(t)
	src := t.TempDir()

	writeSourceFile(t, src, "go.mod", "module github.com/example/demoproj\n")
	writeSourceFile(t, src, "main.go", "package main\n\n// TODO: first task\nfunc main() {}\n")
	writeSourceFile(t, src, "util.go", "package main\n\n// FIXME: broken helper\nvar x = 1 // HACK: temporary\n")

	withScanGlobals(t, src, false)

	if err := runScan(scanCmd, nil); err != nil {
		t.Fatalf("runScan() failed: %v", err)
	}

	st := loadProjects(t)
	p, ok := st.Project("demoproj")
	if !ok {
		t.Fatalf("project demoproj missing, have %v", st.Projects())
	}
	if len(p.Annotations) != 3 {
		t.Fatalf("got %d annotations, want 3: %+v", len(p.Annotations), p.Annotations)
	}

	todo := findAnnotation(t, p, "main.go", "TODO")
	if todo.Line != 3 || todo.Message != "first task" || todo.Resolved {
		t.Errorf("unexpected TODO annotation: %+v", todo)
	}
	if fixme := findAnnotation(t, p, "util.go", "FIXME"); fixme.Line != 3 {
		t.Errorf("FIXME line = %d, want 3", fixme.Line)
	}
	if hack := findAnnotation(t, p, "util.go", "HACK"); hack.Line != 4 {
		t.Errorf("HACK line = %d, want 4", hack.Line)
	}

	// A second scan of the unchanged tree must not alter anything.
	if err := runScan(scanCmd, nil); err != nil {
		t.Fatalf("runScan() rescan failed: %v", err)
	}
	st = loadProjects(t)
	p, _ = st.Project("demoproj")
	if len(p.Annotations) != 3 {
		t.Fatalf("rescan changed annotation count to %d", len(p.Annotations))
	}

	// Resolve the FIXME, then touch only the other file: the flag must
	// survive the rescan.
	withResolveGlobals(t, false)
	if err := runResolve(resolveCmd, []string{"demoproj", "util.go:3"}); err != nil {
		t.Fatalf("runResolve() failed: %v", err)
	}

	writeSourceFile(t, src, "main.go", "package main\n\n// TODO: first task\n// TODO: second task\nfunc main() {}\n")
	if err := runScan(scanCmd, nil); err != nil {
		t.Fatalf("runScan() after edit failed: %v", err)
	}

	st = loadProjects(t)
	p, _ = st.Project("demoproj")
	if len(p.Annotations) != 4 {
		t.Fatalf("got %d annotations after edit, want 4: %+v", len(p.Annotations), p.Annotations)
	}
	if fixme := findAnnotation(t, p, "util.go", "FIXME"); !fixme.Resolved {
		t.Error("resolved flag lost after rescanning an unrelated file")
	}

	// Shift the FIXME down a line: same identity, refreshed location,
	// resolved flag intact.
	writeSourceFile(t, src, "util.go", "package main\n\n// padding comment\n// FIXME: broken helper\nvar x = 1 // HACK: temporary\n")
	if err := runScan(scanCmd, nil); err != nil {
		t.Fatalf("runScan() after line shift failed: %v", err)
	}

	st = loadProjects(t)
	p, _ = st.Project("demoproj")
	fixme := findAnnotation(t, p, "util.go", "FIXME")
	if fixme.Line != 4 {
		t.Errorf("FIXME line = %d after shift, want 4", fixme.Line)
	}
	if !fixme.Resolved {
		t.Error("resolved flag lost after a line shift")
	}

	// Delete the FIXME line: the record disappears on the next scan.
	writeSourceFile(t, src, "util.go", "package main\n\nvar x = 1 // HACK: temporary\n")
	if err := runScan(scanCmd, nil); err != nil {
		t.Fatalf("runScan() after delete failed: %v", err)
	}

	st = loadProjects(t)
	p, _ = st.Project("demoproj")
	if len(p.Annotations) != 3 {
		t.Fatalf("got %d annotations after delete, want 3: %+v", len(p.Annotations), p.Annotations)
	}
	for _, a := range p.Annotations {
		if a.Kind == "FIXME" {
			t.Errorf("deleted FIXME still present: %+v", a)
		}
	}
}

func TestScanEphemeralLeavesDatabaseUntouched(t *testing.T) {
	setupTestHome(t)
	src := t.TempDir()
	writeSourceFile(t, src, "main.go", "package main\n\n// TODO: ephemeral finding\n")

	withScanGlobals(t, src, true)

	if err := runScan(scanCmd, nil); err != nil {
		t.Fatalf("runScan() failed: %v", err)
	}

	st := loadProjects(t)
	if names := st.Projects(); len(names) != 0 {
		t.Fatalf("ephemeral scan wrote projects to disk: %v", names)
	}
}

func TestScanHonorsIgnoreRules(t *testing.T) {
	setupTestHome(t)
	src := t.TempDir()

	writeSourceFile(t, src, "go.mod", "module example.com/ignoredemo\n")
	writeSourceFile(t, src, ".gitignore", "vendor/\n")
	writeSourceFile(t, src, "main.go", "package main\n// TODO: keep this\n")
	writeSourceFile(t, src, "vendor/dep.go", "package dep\n// TODO: skip vendored code\n")
	writeSourceFile(t, src, "notes.md", "<!-- TODO: skip markdown -->\n")

	withScanGlobals(t, src, false)
	scanIgnore = []string{"*.md"}

	if err := runScan(scanCmd, nil); err != nil {
		t.Fatalf("runScan() failed: %v", err)
	}

	st := loadProjects(t)
	p, ok := st.Project("ignoredemo")
	if !ok {
		t.Fatal("project ignoredemo missing")
	}
	if len(p.Annotations) != 1 {
		t.Fatalf("got %d annotations, want 1: %+v", len(p.Annotations), p.Annotations)
	}
	if p.Annotations[0].File != "main.go" {
		t.Errorf("annotation from wrong file: %s", p.Annotations[0].File)
	}
}

func TestScanPatternOverride(t *testing.T) {
	setupTestHome(t)
	src := t.TempDir()

	writeSourceFile(t, src, "go.mod", "module example.com/patterndemo\n")
	writeSourceFile(t, src, "main.go", "package main\n// TODO: default kind\n// NOTE: custom kind\n")

	withScanGlobals(t, src, false)
	scanPattern = `(?i)//\s*(NOTE)\s*:?\s*(.*)`

	if err := runScan(scanCmd, nil); err != nil {
		t.Fatalf("runScan() failed: %v", err)
	}

	st := loadProjects(t)
	p, ok := st.Project("patterndemo")
	if !ok {
		t.Fatal("project patterndemo missing")
	}
	if len(p.Annotations) != 1 {
		t.Fatalf("got %d annotations, want 1: %+v", len(p.Annotations), p.Annotations)
	}
	a := p.Annotations[0]
	if a.Kind != "NOTE" || a.Message != "custom kind" || a.Line != 3 {
		t.Errorf("unexpected annotation: %+v", a)
	}
}

func TestScanJSONReportEmptyTree(t *testing.T) {
	setupTestHome(t)
	src := t.TempDir()

	withScanGlobals(t, src, false)
	scanJSON = true

	if err := runScan(scanCmd, nil); err != nil {
		t.Fatalf("runScan() failed: %v", err)
	}

	path, err := config.ProjectsPath()
	if err != nil {
		t.Fatalf("ProjectsPath() failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("projects database was not written: %v", err)
	}
}
