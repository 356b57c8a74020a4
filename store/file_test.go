package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "projects.json")
	return NewFileStore(path), path
}

func TestFileStoreLoadMissingFile(t *testing.T) {
	st, _ := newTestFileStore(t)

	if err := st.Load(); err != nil {
		t.Fatalf("Load() failed for missing file: %v", err)
	}
	if len(st.Projects()) != 0 {
		t.Errorf("Projects() = %v, want empty database", st.Projects())
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	st, path := newTestFileStore(t)

	st.Merge("demo", []Annotation{
		{File: "a.go", Line: 1, Kind: "TODO", Message: "first"},
		{File: "b.go", Line: 7, Kind: "FIXME", Message: "second"},
	}, nil)
	if _, err := st.SetResolved("demo", "a.go", 1, true); err != nil {
		t.Fatalf("SetResolved() failed: %v", err)
	}
	st.Merge("other", []Annotation{
		{File: "x.py", Line: 3, Kind: "HACK", Message: "third"},
	}, nil)

	if err := st.Persist(); err != nil {
		t.Fatalf("Persist() failed: %v", err)
	}

	reloaded := NewFileStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	names := reloaded.Projects()
	if len(names) != 2 || names[0] != "demo" || names[1] != "other" {
		t.Fatalf("Projects() = %v, want [demo other]", names)
	}

	p, ok := reloaded.Project("demo")
	if !ok {
		t.Fatal("project demo missing after reload")
	}
	if len(p.Annotations) != 2 {
		t.Fatalf("len(Annotations) = %d, want 2", len(p.Annotations))
	}
	if !p.Annotations[0].Resolved {
		t.Error("resolved flag lost across persist/load")
	}
	if p.Annotations[1].Resolved {
		t.Error("unresolved annotation reloaded as resolved")
	}
	if p.LastScanned.IsZero() {
		t.Error("LastScanned lost across persist/load")
	}
}

func TestFileStorePersistCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "projects.json")
	st := NewFileStore(path)

	st.Merge("demo", []Annotation{
		{File: "a.go", Line: 1, Kind: "TODO", Message: "x"},
	}, nil)

	if err := st.Persist(); err != nil {
		t.Fatalf("Persist() failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("document not written: %v", err)
	}
}

func TestFileStoreLoadCorruptDocument(t *testing.T) {
	st, path := newTestFileStore(t)
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("failed to write corrupt document: %v", err)
	}

	if err := st.Load(); err == nil {
		t.Fatal("Load() succeeded on a corrupt document, want error")
	}
}

func TestFileStoreDocumentIsHumanDiffable(t *testing.T) {
	st, path := newTestFileStore(t)
	st.Merge("demo", []Annotation{
		{File: "b.go", Line: 2, Kind: "FIXME", Message: "later"},
		{File: "a.go", Line: 1, Kind: "TODO", Message: "soon"},
	}, nil)
	if err := st.Persist(); err != nil {
		t.Fatalf("Persist() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read document: %v", err)
	}

	// Pretty-printed, newline-terminated, annotations in file order so
	// consecutive scans diff cleanly.
	text := string(data)
	if !strings.Contains(text, "\n  ") {
		t.Error("document is not indented")
	}
	if !strings.HasSuffix(text, "\n") {
		t.Error("document does not end with a newline")
	}
	if strings.Index(text, "a.go") > strings.Index(text, "b.go") {
		t.Error("annotations not sorted by file in the document")
	}

	var doc struct {
		Version  int                        `json:"version"`
		Projects map[string]json.RawMessage `json:"projects"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("document does not parse: %v", err)
	}
	if doc.Version != documentVersion {
		t.Errorf("version = %d, want %d", doc.Version, documentVersion)
	}
	if _, ok := doc.Projects["demo"]; !ok {
		t.Error("project demo missing from document")
	}
}

func TestFileStoreLoadCanonicalizesProjectNames(t *testing.T) {
	st, path := newTestFileStore(t)

	// A hand-edited document may rename the map key without touching the
	// embedded name; the key wins.
	doc := `{
  "version": 1,
  "projects": {
    "renamed": {
      "name": "stale",
      "annotations": [
        {"file": "a.go", "line": 1, "kind": "TODO", "message": "x", "resolved": false}
      ],
      "last_scanned": "2024-01-01T00:00:00Z"
    }
  }
}
`
	if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}

	if err := st.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	p, ok := st.Project("renamed")
	if !ok {
		t.Fatal("project renamed not found")
	}
	if p.Name != "renamed" {
		t.Errorf("Name = %q, want %q", p.Name, "renamed")
	}
}

func TestFileStoreClosePersists(t *testing.T) {
	st, path := newTestFileStore(t)
	st.Merge("demo", []Annotation{
		{File: "a.go", Line: 1, Kind: "TODO", Message: "x"},
	}, nil)

	if err := st.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	reloaded := NewFileStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if _, ok := reloaded.Project("demo"); !ok {
		t.Error("Close() did not persist pending state")
	}
}

func TestFileStorePersistOverwritesAtomically(t *testing.T) {
	st, path := newTestFileStore(t)
	st.Merge("demo", []Annotation{
		{File: "a.go", Line: 1, Kind: "TODO", Message: "first"},
	}, nil)
	if err := st.Persist(); err != nil {
		t.Fatalf("Persist() failed: %v", err)
	}

	st.Merge("demo", []Annotation{
		{File: "a.go", Line: 1, Kind: "TODO", Message: "first"},
		{File: "a.go", Line: 2, Kind: "TODO", Message: "second"},
	}, nil)
	if err := st.Persist(); err != nil {
		t.Fatalf("second Persist() failed: %v", err)
	}

	// No temp files left behind next to the document.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("failed to list store directory: %v", err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp-") {
			t.Errorf("leftover temp file: %s", entry.Name())
		}
	}

	reloaded := NewFileStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	p, ok := reloaded.Project("demo")
	if !ok || len(p.Annotations) != 2 {
		t.Fatalf("reloaded project = %+v, want 2 annotations", p)
	}
}
