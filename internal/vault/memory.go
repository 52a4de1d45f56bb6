package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"groupsync/internal/gs"
)

// MemoryVault keeps content in memory. Safe for concurrent use.
type MemoryVault struct {
	mu      sync.RWMutex
	content map[string][]byte
}

var _ gs.Vault = (*MemoryVault)(nil)

func NewMemoryVault() *MemoryVault {
	return &MemoryVault{content: make(map[string][]byte)}
}

func (m *MemoryVault) PutContent(ctx context.Context, checksum string, r io.Reader, size int64) error {
	if err := validChecksum(checksum); err != nil {
		return err
	}

	data, err := io.ReadAll(ctxReader{ctx: ctx, r: r})
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if err := checkSize(size, int64(len(data))); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[checksum] = data
	return nil
}

func (m *MemoryVault) GetContent(_ context.Context, checksum string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.content[checksum]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: content %s", gs.ErrNotFound, checksum)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

func (m *MemoryVault) HasContent(_ context.Context, checksum string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.content[checksum]
	return ok, nil
}

// Len returns the number of stored objects.
func (m *MemoryVault) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.content)
}

func (m *MemoryVault) ValidateSetup(context.Context) error {
	return nil
}
