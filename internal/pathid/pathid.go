// Package pathid turns OS-reported paths into canonical group-relative paths.
//
// A canonical path uses '/' separators, has no leading separator, contains no
// "." or ".." segments and keeps its original case. It is the join key between
// the views different devices have of the same file.
package pathid

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrTraversalRejected is returned when a path would escape its root.
	ErrTraversalRejected = errors.New("path traversal rejected")

	// ErrInvalidPath is returned for paths that are empty or otherwise unusable.
	ErrInvalidPath = errors.New("invalid path")
)

// Clean canonicalizes a path that is already meant to be relative to a group
// root. It never sanitizes an escaping path into a safe one: any ".." segment,
// absolute prefix or volume name is rejected.
func Clean(rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", fmt.Errorf("%w: NUL byte in %q", ErrTraversalRejected, rel)
	}

	p := strings.ReplaceAll(rel, "\\", "/")
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: absolute path %q", ErrTraversalRejected, rel)
	}
	if hasVolume(p) {
		return "", fmt.Errorf("%w: volume prefix in %q", ErrTraversalRejected, rel)
	}

	segments := make([]string, 0, strings.Count(p, "/")+1)
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", fmt.Errorf("%w: parent segment in %q", ErrTraversalRejected, rel)
		}
		segments = append(segments, seg)
	}

	if len(segments) == 0 {
		return "", fmt.Errorf("%w: %q has no path segments", ErrInvalidPath, rel)
	}
	return strings.Join(segments, "/"), nil
}

// hasVolume reports whether p starts with a drive root ("C:/"), which would
// make it absolute on Windows. A bare "a:b" is a legal POSIX file name.
// Backslashes are already converted to '/'.
func hasVolume(p string) bool {
	if len(p) < 3 || p[1] != ':' || p[2] != '/' {
		return false
	}
	c := p[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Canonicalize converts osPath, either absolute or relative to root, into a
// canonical path relative to root. Symlinks are resolved on both sides and a
// target that resolves outside root is rejected.
func Canonicalize(root, osPath string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}

	target := osPath
	if !filepath.IsAbs(target) {
		target = filepath.Join(absRoot, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(absRoot, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside %s", ErrTraversalRejected, osPath, absRoot)
	}
	if filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("%w: volume prefix in %s", ErrTraversalRejected, osPath)
	}

	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("resolving root symlinks: %w", err)
	}
	realTarget, err := evalExisting(target)
	if err != nil {
		return "", fmt.Errorf("resolving symlinks: %w", err)
	}
	if !within(realRoot, realTarget) {
		return "", fmt.Errorf("%w: %s resolves outside %s", ErrTraversalRejected, osPath, absRoot)
	}

	return Clean(filepath.ToSlash(rel))
}

// evalExisting resolves symlinks for the longest existing prefix of p. A path
// that was just deleted is checked through its nearest surviving ancestor.
func evalExisting(p string) (string, error) {
	var missing []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		missing = append(missing, filepath.Base(cur))
		cur = parent
	}
}

func within(root, p string) bool {
	if p == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}
