package scanner

import (
	"testing"
)

const testPattern = `(?i)(?://|#|<!--|\*)\s*(TODO|FIXME|HACK)\s*:?\s*(.*)$`

func TestMatchLine(t *testing.T) {
	matcher, err := NewMatcher(testPattern)
	if err != nil {
		t.Fatalf("NewMatcher() failed: %v", err)
	}

	tests := []struct {
		name    string
		line    string
		kind    string
		message string
		ok      bool
	}{
		{"slash comment", "// TODO: refactor this", "TODO", "refactor this", true},
		{"hash comment", "# FIXME handle errors", "FIXME", "handle errors", true},
		{"trailing comment", "x := compute() // HACK: off by one", "HACK", "off by one", true},
		{"star comment", " * todo: document the flags", "TODO", "document the flags", true},
		{"html comment", "<!-- FIXME: broken anchor -->", "FIXME", "broken anchor", true},
		{"lowercase kind upper-cased", "// fixme: casing", "FIXME", "casing", true},
		{"no colon", "// TODO add retry", "TODO", "add retry", true},
		{"empty message", "// TODO:", "TODO", "", true},
		{"plain code", "return nil", "", "", false},
		{"unknown marker", "// NOTE: not tracked", "", "", false},
		{"marker outside comment", "todoList := nil", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, message, ok := matcher.MatchLine(tt.line)
			if ok != tt.ok {
				t.Fatalf("MatchLine(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			}
			if kind != tt.kind {
				t.Errorf("MatchLine(%q) kind = %q, want %q", tt.line, kind, tt.kind)
			}
			if message != tt.message {
				t.Errorf("MatchLine(%q) message = %q, want %q", tt.line, message, tt.message)
			}
		})
	}
}

func TestMatchLineNamedGroups(t *testing.T) {
	// Named groups may appear in any order and take precedence over
	// positional ones.
	matcher, err := NewMatcher(`(?P<message>.+)@(?P<kind>\w+)$`)
	if err != nil {
		t.Fatalf("NewMatcher() failed: %v", err)
	}

	kind, message, ok := matcher.MatchLine("fix the cache invalidation@todo")
	if !ok {
		t.Fatal("MatchLine() ok = false, want true")
	}
	if kind != "TODO" {
		t.Errorf("kind = %q, want %q", kind, "TODO")
	}
	if message != "fix the cache invalidation" {
		t.Errorf("message = %q, want %q", message, "fix the cache invalidation")
	}
}

func TestMatchLineBlockCommentCloser(t *testing.T) {
	matcher, err := NewMatcher(testPattern)
	if err != nil {
		t.Fatalf("NewMatcher() failed: %v", err)
	}

	_, message, ok := matcher.MatchLine("/* TODO: drop the cast */")
	if !ok {
		t.Fatal("MatchLine() ok = false, want true")
	}
	if message != "drop the cast" {
		t.Errorf("message = %q, want %q (comment closer should be trimmed)", message, "drop the cast")
	}
}

func TestNewMatcherErrors(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
	}{
		{"unparseable regex", "[unterminated"},
		{"no capture groups", "TODO"},
		{"single capture group", "(TODO):"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMatcher(tt.pattern); err == nil {
				t.Errorf("NewMatcher(%q) succeeded, want error", tt.pattern)
			}
		})
	}
}

func TestMatchLineEmptyKindGroup(t *testing.T) {
	// An optional kind group that captures nothing is not a match.
	matcher, err := NewMatcher(`(TODO)?:?\s*(.*)`)
	if err != nil {
		t.Fatalf("NewMatcher() failed: %v", err)
	}

	if _, _, ok := matcher.MatchLine("just text"); ok {
		t.Error("MatchLine() ok = true for empty kind capture, want false")
	}
}
