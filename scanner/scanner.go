package scanner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yoanbernabeu/codemarks/store"
)

const (
	// binarySniffLen is how many leading bytes are inspected for a NUL
	// byte before a file is treated as text.
	binarySniffLen = 8 * 1024

	// maxLineBytes caps the length of a single line; files with longer
	// lines (minified bundles, data blobs) are skipped.
	maxLineBytes = 1024 * 1024
)

// errBinaryFile marks files skipped by content or extension sniffing.
var errBinaryFile = errors.New("binary file")

// binaryExtensions short-circuits the content sniff for well-known
// binary formats.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".webp": true, ".pdf": true, ".zip": true, ".tar": true,
	".gz": true, ".tgz": true, ".bz2": true, ".xz": true, ".7z": true,
	".rar": true, ".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".a": true, ".o": true, ".obj": true, ".bin": true, ".class": true,
	".jar": true, ".war": true, ".pyc": true, ".wasm": true, ".mp3": true,
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".wav": true,
	".flac": true, ".ogg": true, ".webm": true, ".woff": true, ".woff2": true,
	".ttf": true, ".otf": true, ".eot": true, ".db": true, ".sqlite": true,
	".sqlite3": true,
}

// SkippedFile records one file a scan could not process and why.
type SkippedFile struct {
	Path   string
	Reason string
}

// Result is the outcome of one scan.
type Result struct {
	Annotations  []store.Annotation
	FilesScanned int
	Skipped      []SkippedFile
}

// Scanner combines traversal, ignore filtering and pattern matching to
// produce the current annotation set for a root.
type Scanner struct {
	root    string
	matcher *Matcher
	filter  *IgnoreFilter
}

func New(root string, matcher *Matcher, filter *IgnoreFilter) *Scanner {
	return &Scanner{root: root, matcher: matcher, filter: filter}
}

// Root returns the scan root.
func (s *Scanner) Root() string {
	return s.root
}

// ScanRoot traverses the whole root and returns every annotation found.
// Per-file failures are recorded as skips and never abort the scan.
func (s *Scanner) ScanRoot(ctx context.Context) (*Result, error) {
	type candidate struct {
		path    string
		relPath string
	}

	var files []candidate
	walker := NewWalker(s.root, s.filter)
	err := walker.Walk(ctx, func(path, relPath string) error {
		files = append(files, candidate{path: path, relPath: relPath})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to traverse %s: %w", s.root, err)
	}

	result := &Result{}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for _, file := range files {
		file := file
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			annotations, err := s.scanFile(file.path, file.relPath)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, errBinaryFile):
				result.Skipped = append(result.Skipped, SkippedFile{Path: file.relPath, Reason: "binary file"})
			case err != nil:
				result.Skipped = append(result.Skipped, SkippedFile{Path: file.relPath, Reason: err.Error()})
			default:
				result.FilesScanned++
				result.Annotations = append(result.Annotations, annotations...)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortResult(result)
	return result, nil
}

// ScanPaths confines matching to explicit file paths (absolute or
// root-relative), with no traversal. A path that no longer exists
// yields zero annotations, not an error; paths the ignore filter
// excludes are dropped.
func (s *Scanner) ScanPaths(ctx context.Context, paths []string) (*Result, error) {
	result := &Result{}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		path := p
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.root, path)
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			mu.Lock()
			result.Skipped = append(result.Skipped, SkippedFile{Path: p, Reason: "outside scan root"})
			mu.Unlock()
			continue
		}
		relPath := filepath.ToSlash(rel)

		if seen[relPath] {
			continue
		}
		seen[relPath] = true

		if s.filter != nil && s.filter.ShouldIgnore(relPath) {
			continue
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			annotations, err := s.scanFile(path, relPath)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, os.ErrNotExist):
				// Deleted since the event fired; zero annotations is
				// the correct answer.
			case errors.Is(err, errBinaryFile):
				result.Skipped = append(result.Skipped, SkippedFile{Path: relPath, Reason: "binary file"})
			case err != nil:
				result.Skipped = append(result.Skipped, SkippedFile{Path: relPath, Reason: err.Error()})
			default:
				result.FilesScanned++
				result.Annotations = append(result.Annotations, annotations...)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortResult(result)
	return result, nil
}

// scanFile matches every line of one file, returning its annotations
// with root-relative paths.
func (s *Scanner) scanFile(path, relPath string) ([]store.Annotation, error) {
	if binaryExtensions[strings.ToLower(filepath.Ext(path))] {
		return nil, errBinaryFile
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, nil
	}

	sniff := make([]byte, binarySniffLen)
	n, err := io.ReadFull(f, sniff)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	if bytes.IndexByte(sniff[:n], 0) >= 0 {
		return nil, errBinaryFile
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var annotations []store.Annotation
	lines := bufio.NewScanner(f)
	lines.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNum := 0
	for lines.Scan() {
		lineNum++
		kind, message, ok := s.matcher.MatchLine(lines.Text())
		if !ok {
			continue
		}
		annotations = append(annotations, store.Annotation{
			File:    relPath,
			Line:    lineNum,
			Kind:    kind,
			Message: message,
		})
	}
	if err := lines.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("line longer than %d bytes", maxLineBytes)
		}
		return nil, err
	}

	return annotations, nil
}

// sortResult orders annotations and skips so output is deterministic
// regardless of goroutine scheduling.
func sortResult(result *Result) {
	sort.Slice(result.Annotations, func(i, j int) bool {
		a, b := result.Annotations[i], result.Annotations[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Kind < b.Kind
	})
	sort.Slice(result.Skipped, func(i, j int) bool {
		return result.Skipped[i].Path < result.Skipped[j].Path
	})
}
