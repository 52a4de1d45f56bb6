package pathid

import (
	"fmt"
	"sort"
	"strings"
)

// Filter decides whether a canonical path takes part in synchronization for
// one client mapping. The same predicate runs in the client scanner, on
// server ingestion and in the planner.
type Filter struct {
	ExcludeDotDirs bool
	ExcludedDirs   []string
}

// NewFilter builds a Filter with canonicalized excluded directories.
func NewFilter(excludeDotDirs bool, excludedDirs []string) (Filter, error) {
	dirs := make([]string, 0, len(excludedDirs))
	seen := make(map[string]bool, len(excludedDirs))
	for _, d := range excludedDirs {
		c, err := Clean(d)
		if err != nil {
			return Filter{}, fmt.Errorf("excluded dir %q: %w", d, err)
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		dirs = append(dirs, c)
	}
	sort.Strings(dirs)
	return Filter{ExcludeDotDirs: excludeDotDirs, ExcludedDirs: dirs}, nil
}

// Allows reports whether the canonical path passes the filter.
func (f Filter) Allows(canonical string) bool {
	if f.ExcludeDotDirs {
		for _, seg := range strings.Split(canonical, "/") {
			if strings.HasPrefix(seg, ".") {
				return false
			}
		}
	}
	for _, dir := range f.ExcludedDirs {
		if canonical == dir || strings.HasPrefix(canonical, dir+"/") {
			return false
		}
	}
	return true
}
