package staging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const uploadPrefix = "upload-"

// FileSystemStagingArea stages uploads as files in one directory:
//
//	<staging_dir>/
//	  upload-<uuid>    (bytes of one in-flight upload)
type FileSystemStagingArea struct {
	*stagingArea
	dir string
}

// NewFileSystemStagingArea creates the staging directory and removes uploads
// left behind by a previous process. maxSize is the total byte budget.
func NewFileSystemStagingArea(stagingDir string, maxSize int64) (*FileSystemStagingArea, error) {
	if err := os.MkdirAll(stagingDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	if err := sweep(stagingDir); err != nil {
		return nil, err
	}

	store := &fileStore{dir: stagingDir}
	return &FileSystemStagingArea{
		stagingArea: newStagingArea(store, maxSize),
		dir:         stagingDir,
	}, nil
}

// Dir returns the staging directory.
func (s *FileSystemStagingArea) Dir() string {
	return s.dir
}

func sweep(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading staging directory: %w", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), uploadPrefix) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return fmt.Errorf("removing stale upload %s: %w", e.Name(), err)
			}
		}
	}
	return nil
}

type fileStore struct {
	dir string
}

func (f *fileStore) path(id string) string {
	return filepath.Join(f.dir, uploadPrefix+id)
}

func (f *fileStore) Write(id string, r io.Reader) (int64, error) {
	out, err := os.OpenFile(f.path(id), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, fmt.Errorf("creating staged file: %w", err)
	}

	n, err := io.Copy(out, r)
	if err != nil {
		out.Close()
		return n, err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return n, fmt.Errorf("syncing staged file: %w", err)
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("closing staged file: %w", err)
	}
	return n, nil
}

func (f *fileStore) Open(id string) (io.ReadCloser, error) {
	return os.Open(f.path(id))
}

func (f *fileStore) Remove(id string) error {
	if err := os.Remove(f.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
