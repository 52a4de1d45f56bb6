package fs

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// IgnoreFileName is the per-root file of extra ignore patterns.
const IgnoreFileName = ".gsignore"

// TempPrefix names the temporary files of in-flight downloads.
const TempPrefix = ".gs-download-"

// DefaultIgnorePatterns are always applied regardless of config or .gsignore.
var DefaultIgnorePatterns = []string{".DS_Store", IgnoreFileName, TempPrefix + "*"}

type ignorePattern struct {
	pattern   string
	matchPath bool // match against the whole canonical path instead of the basename
}

// IgnoreMatcher checks canonical paths against a set of ignore patterns.
// Patterns without '/' match against the basename only.
// Patterns with '/' match against the full canonical path.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		raw = strings.TrimPrefix(raw, "/")
		patterns = append(patterns, ignorePattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &IgnoreMatcher{patterns: patterns}
}

// DefaultIgnoreMatcher combines the default patterns, extra and the
// patterns of root/.gsignore.
func DefaultIgnoreMatcher(root string, extra []string) (*IgnoreMatcher, error) {
	fromFile, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	all := make([]string, 0, len(DefaultIgnorePatterns)+len(extra)+len(fromFile))
	all = append(all, DefaultIgnorePatterns...)
	all = append(all, extra...)
	all = append(all, fromFile...)
	return NewIgnoreMatcher(all), nil
}

// Match reports whether the canonical path should be ignored.
func (m *IgnoreMatcher) Match(canonical string) bool {
	if m == nil || len(m.patterns) == 0 || canonical == "" {
		return false
	}

	basename := path.Base(canonical)
	for _, p := range m.patterns {
		subject := basename
		if p.matchPath {
			subject = canonical
		}
		matched, err := path.Match(p.pattern, subject)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// ParseIgnoreFile reads an ignore file and returns the raw pattern strings.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(p string) ([]string, error) {
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
