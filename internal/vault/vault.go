// Package vault stores file content addressed by SHA-256 checksum on local
// disk, in memory, or in S3-compatible object storage.
package vault

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
)

func validChecksum(checksum string) error {
	if len(checksum) != 64 {
		return fmt.Errorf("invalid checksum %q: want 64 hex characters", checksum)
	}
	if _, err := hex.DecodeString(checksum); err != nil {
		return fmt.Errorf("invalid checksum %q: %w", checksum, err)
	}
	return nil
}

// checkSize compares written against expected. A negative expected size
// means the length was not known up front.
func checkSize(expected, written int64) error {
	if expected >= 0 && written != expected {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expected, written)
	}
	return nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// countingReader records how many bytes passed through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
