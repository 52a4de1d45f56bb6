package staging

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// MemoryStagingArea keeps staged uploads in memory. Useful for tests and
// for servers whose uploads are small.
type MemoryStagingArea struct {
	*stagingArea
}

// NewMemoryStagingArea creates an in-memory staging area with a total byte
// budget of maxSize.
func NewMemoryStagingArea(maxSize int64) *MemoryStagingArea {
	return &MemoryStagingArea{
		stagingArea: newStagingArea(&memoryStore{files: map[string][]byte{}}, maxSize),
	}
}

type memoryStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (m *memoryStore) Write(id string, r io.Reader) (int64, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return n, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[id] = buf.Bytes()
	return n, nil
}

func (m *memoryStore) Open(id string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("staged content %s not found", id)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, id)
	return nil
}
