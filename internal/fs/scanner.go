// Package fs walks a client's mapped directory.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"groupsync/internal/gs"
	"groupsync/internal/pathid"
)

// Scanner lists the synchronized regular files under a root.
type Scanner struct {
	ignore *IgnoreMatcher
	logger gs.Logger
}

// NewScanner creates a Scanner. A nil matcher ignores nothing.
func NewScanner(ignore *IgnoreMatcher, logger gs.Logger) *Scanner {
	if logger == nil {
		logger = gs.NewNopLogger()
	}
	return &Scanner{ignore: ignore, logger: logger}
}

// rejected reports whether err refuses a single name rather than the walk.
func rejected(err error) bool {
	return errors.Is(err, pathid.ErrTraversalRejected) || errors.Is(err, pathid.ErrInvalidPath)
}

// Scan walks root and returns one entry per regular file that passes the
// filter and the ignore patterns. Checksums are left empty. Rejected
// directories are not descended into. A name that cannot be canonicalized,
// or that resolves outside root, is logged and skipped.
func (s *Scanner) Scan(ctx context.Context, root string, filter pathid.Filter) ([]gs.ManifestEntry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", root)
	}

	var entries []gs.ManifestEntry
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == root {
			return nil
		}

		if d.IsDir() {
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			canonical, err := pathid.Clean(filepath.ToSlash(rel))
			if rejected(err) {
				s.logger.Warn("skipping directory", "path", p, "error", err)
				return filepath.SkipDir
			}
			if err != nil {
				return err
			}
			if !filter.Allows(canonical) || s.ignore.Match(canonical) {
				return filepath.SkipDir
			}
			return nil
		}
		// Symlinks, devices, sockets and pipes are not synchronized.
		if !d.Type().IsRegular() {
			return nil
		}

		canonical, err := pathid.Canonicalize(root, p)
		if rejected(err) {
			s.logger.Warn("skipping file", "path", p, "error", err)
			return nil
		}
		if err != nil {
			return err
		}
		if !filter.Allows(canonical) || s.ignore.Match(canonical) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// Removed between readdir and stat.
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("stat %s: %w", p, err)
		}
		entries = append(entries, gs.ManifestEntry{
			Path:           canonical,
			Size:           info.Size(),
			ModifiedMillis: info.ModTime().UnixMilli(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	return entries, nil
}

// HashFile returns the hex SHA-256 and size of the file at p.
func HashFile(p string) (string, int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hashing %s: %w", p, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// LocalPath converts a canonical path into an OS path under root.
func LocalPath(root, canonical string) string {
	return filepath.Join(root, filepath.FromSlash(canonical))
}
