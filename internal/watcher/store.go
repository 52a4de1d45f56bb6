package watcher

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"groupsync/internal/gs"
)

// ManifestStore persists one manifest per mapped directory as JSON under a
// state directory.
type ManifestStore struct {
	dir string
}

// NewManifestStore creates the state directory if needed.
func NewManifestStore(dir string) (*ManifestStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	return &ManifestStore{dir: dir}, nil
}

// Key derives the file stem used for a local directory.
func Key(localPath string) string {
	abs, err := filepath.Abs(localPath)
	if err != nil {
		abs = localPath
	}
	sum := sha256.Sum256([]byte(filepath.Clean(abs)))
	return hex.EncodeToString(sum[:8])
}

func (s *ManifestStore) path(localPath string) string {
	return filepath.Join(s.dir, "manifest-"+Key(localPath)+".json")
}

// LockPath is the lock file guarding sessions of localPath.
func (s *ManifestStore) LockPath(localPath string) string {
	return filepath.Join(s.dir, "manifest-"+Key(localPath)+".lock")
}

type manifestFile struct {
	LocalPath string             `json:"local_path"`
	Cursor    int64              `json:"cursor"`
	Entries   []gs.ManifestEntry `json:"entries"`
}

// Load returns the stored manifest and the last plan cursor. A missing file
// is an empty manifest.
func (s *ManifestStore) Load(localPath string) (Manifest, int64, error) {
	data, err := os.ReadFile(s.path(localPath))
	if errors.Is(err, os.ErrNotExist) {
		return Manifest{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("reading manifest: %w", err)
	}

	var f manifestFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, 0, fmt.Errorf("decoding manifest %s: %w", s.path(localPath), err)
	}
	return NewManifest(f.Entries), f.Cursor, nil
}

// Save writes the manifest through a temp file and rename, so a crash
// leaves either the old or the new manifest.
func (s *ManifestStore) Save(localPath string, m Manifest, cursor int64) error {
	f := manifestFile{LocalPath: localPath, Cursor: cursor, Entries: m.Entries()}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	dest := s.path(localPath)
	tmp, err := os.CreateTemp(s.dir, ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp manifest: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp manifest: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing manifest: %w", err)
	}
	return nil
}
