package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"groupsync/internal/gs"
)

// FileSystemVault stores content as files named by checksum, fanned out by
// the first two hex characters:
//
//	<root>/
//	  content/
//	    ab/
//	      ab12...    (content file, named by SHA-256)
type FileSystemVault struct {
	root       string
	contentDir string
}

var _ gs.Vault = (*FileSystemVault)(nil)

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(root string) (*FileSystemVault, error) {
	contentDir := filepath.Join(root, "content")
	if err := os.MkdirAll(contentDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}

	return &FileSystemVault{
		root:       root,
		contentDir: contentDir,
	}, nil
}

func (v *FileSystemVault) contentPath(checksum string) (string, error) {
	if err := validChecksum(checksum); err != nil {
		return "", err
	}
	return filepath.Join(v.contentDir, checksum[:2], checksum), nil
}

// PutContent stores content under checksum. Content that is already present
// is left untouched and r is drained.
func (v *FileSystemVault) PutContent(ctx context.Context, checksum string, r io.Reader, size int64) error {
	destPath, err := v.contentPath(checksum)
	if err != nil {
		return err
	}

	if _, err := os.Stat(destPath); err == nil {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		return checkSize(size, written)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create shard directory: %w", err)
	}
	return writeFile(ctx, destPath, r, size)
}

// GetContent retrieves content by checksum and writes it to w.
func (v *FileSystemVault) GetContent(ctx context.Context, checksum string, w io.Writer) error {
	srcPath, err := v.contentPath(checksum)
	if err != nil {
		return err
	}

	f, err := os.Open(srcPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: content %s", gs.ErrNotFound, checksum)
		}
		return fmt.Errorf("failed to open content: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, ctxReader{ctx: ctx, r: f}); err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	return nil
}

func (v *FileSystemVault) HasContent(_ context.Context, checksum string) (bool, error) {
	p, err := v.contentPath(checksum)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking content: %w", err)
	}
	return true, nil
}

// ValidateSetup verifies that the content directory exists and is writable.
func (v *FileSystemVault) ValidateSetup(context.Context) error {
	info, err := os.Stat(v.contentDir)
	if err != nil {
		return fmt.Errorf("vault directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault path is not a directory: %s", v.contentDir)
	}

	probe, err := os.CreateTemp(v.contentDir, ".probe-*")
	if err != nil {
		return fmt.Errorf("vault directory not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

// writeFile writes r to destPath through a temp file in the same directory
// and an atomic rename.
func writeFile(ctx context.Context, destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, ctxReader{ctx: ctx, r: r})
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := checkSize(expectedSize, written); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
