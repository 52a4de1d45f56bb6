// Package staging holds upload bytes in temporary storage while they are
// hashed and measured, before they are promoted into the vault.
package staging

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"groupsync/internal/gs"
)

var (
	// ErrTooLarge means one upload exceeded the per-upload limit.
	ErrTooLarge = errors.New("upload exceeds size limit")

	// ErrFull means accepting more bytes would exceed the staging budget.
	ErrFull = errors.New("staging area full")
)

// stagingArea implements gs.StagingArea using a pluggable stagingStore
// for the storage mechanics. The byte budget and hashing live here.
type stagingArea struct {
	store   stagingStore
	maxSize int64

	mu    sync.Mutex
	used  int64
	count int
}

var _ gs.StagingArea = (*stagingArea)(nil)

func newStagingArea(store stagingStore, maxSize int64) *stagingArea {
	return &stagingArea{store: store, maxSize: maxSize}
}

// Stage copies r into the store while hashing it. A read error, a limit
// violation or a full budget removes whatever was written.
func (s *stagingArea) Stage(r io.Reader, limit int64) (gs.StagedContent, error) {
	id := uuid.New().String()
	h := sha256.New()
	br := &budgetReader{r: r, area: s, limit: limit, hash: h}

	size, err := s.store.Write(id, br)
	if err != nil {
		s.store.Remove(id)
		s.release(br.n)
		return nil, fmt.Errorf("staging upload: %w", err)
	}
	if size != br.n {
		s.store.Remove(id)
		s.release(br.n)
		return nil, fmt.Errorf("staging upload: wrote %d of %d bytes", size, br.n)
	}

	s.mu.Lock()
	s.count++
	s.mu.Unlock()

	return &stagedContent{
		area:     s,
		id:       id,
		checksum: hex.EncodeToString(h.Sum(nil)),
		size:     size,
	}, nil
}

// Used returns the number of bytes currently held.
func (s *stagingArea) Used() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Count returns the number of uploads currently held.
func (s *stagingArea) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *stagingArea) reserve(n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxSize > 0 && s.used+n > s.maxSize {
		return fmt.Errorf("%w: would exceed max size of %d bytes", ErrFull, s.maxSize)
	}
	s.used += n
	return nil
}

func (s *stagingArea) release(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used -= n
}

// budgetReader hashes what it reads and charges every chunk against the
// upload limit and the area budget.
type budgetReader struct {
	r     io.Reader
	area  *stagingArea
	limit int64
	hash  hash.Hash
	n     int64
}

func (b *budgetReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if n > 0 {
		if b.limit > 0 && b.n+int64(n) > b.limit {
			return 0, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, b.limit)
		}
		if rerr := b.area.reserve(int64(n)); rerr != nil {
			return 0, rerr
		}
		b.n += int64(n)
		b.hash.Write(p[:n])
	}
	return n, err
}

type stagedContent struct {
	area     *stagingArea
	id       string
	checksum string
	size     int64
	released atomic.Bool
}

func (c *stagedContent) Checksum() string { return c.checksum }
func (c *stagedContent) Size() int64      { return c.size }

func (c *stagedContent) Open() (io.ReadCloser, error) {
	if c.released.Load() {
		return nil, fmt.Errorf("staged content %s already released", c.id)
	}
	return c.area.store.Open(c.id)
}

// Release removes the staged bytes and returns them to the budget. Only the
// first call has an effect.
func (c *stagedContent) Release() error {
	if !c.released.CompareAndSwap(false, true) {
		return nil
	}
	err := c.area.store.Remove(c.id)

	c.area.mu.Lock()
	c.area.used -= c.size
	c.area.count--
	c.area.mu.Unlock()

	if err != nil {
		return fmt.Errorf("releasing staged content: %w", err)
	}
	return nil
}
