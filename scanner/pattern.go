package scanner

import (
	"fmt"
	"regexp"
	"strings"
)

// Matcher extracts the annotation kind and message from source lines
// using a configurable regular expression.
type Matcher struct {
	re      *regexp.Regexp
	kindIdx int
	msgIdx  int
}

// NewMatcher compiles pattern and validates that it captures both the
// marker kind and the message. Named groups `kind` and `message` take
// precedence; otherwise group 1 is the kind and group 2 the message.
func NewMatcher(pattern string) (*Matcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid annotation pattern: %w", err)
	}

	kindIdx, msgIdx := -1, -1
	for i, name := range re.SubexpNames() {
		switch name {
		case "kind":
			kindIdx = i
		case "message":
			msgIdx = i
		}
	}
	if kindIdx < 0 || msgIdx < 0 {
		if re.NumSubexp() < 2 {
			return nil, fmt.Errorf("annotation pattern must capture a kind and a message (two groups, or named groups 'kind' and 'message'): %s", pattern)
		}
		kindIdx, msgIdx = 1, 2
	}

	return &Matcher{re: re, kindIdx: kindIdx, msgIdx: msgIdx}, nil
}

// MatchLine reports whether line contains an annotation. The returned
// kind is upper-cased and the message trimmed; ok is false for lines
// the pattern does not match.
func (m *Matcher) MatchLine(line string) (kind, message string, ok bool) {
	groups := m.re.FindStringSubmatch(line)
	if groups == nil {
		return "", "", false
	}

	kind = strings.ToUpper(strings.TrimSpace(groups[m.kindIdx]))
	if kind == "" {
		return "", "", false
	}

	return kind, trimMessage(groups[m.msgIdx]), true
}

// trimMessage strips surrounding whitespace and the comment closers
// ("-->", "*/") that single-line block comments leave at the end of
// the message capture.
func trimMessage(s string) string {
	s = strings.TrimSpace(s)
	for _, closer := range []string{"-->", "*/"} {
		if strings.HasSuffix(s, closer) {
			s = strings.TrimSpace(strings.TrimSuffix(s, closer))
		}
	}
	return s
}
