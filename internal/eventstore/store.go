// Package eventstore validates and appends FileEvents and serves the
// projected current state of each group.
package eventstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"groupsync/internal/gs"
	"groupsync/internal/pathid"
)

// Backend is the part of the database the event store reads and writes.
type Backend interface {
	gs.RegistryStore
	gs.EventLog
}

// ContentIndex reports whether content for a checksum is already stored.
type ContentIndex interface {
	HasContent(ctx context.Context, checksum string) (bool, error)
}

// Store is the single entry point for event ingestion.
type Store struct {
	db      Backend
	content ContentIndex
	logger  gs.Logger

	mu     sync.Mutex
	states map[int64]*gs.State
}

// New creates a Store. content may be nil, in which case metadata-only
// changes are accepted without checking that their content exists.
func New(db Backend, content ContentIndex, logger gs.Logger) *Store {
	if logger == nil {
		logger = gs.NewNopLogger()
	}
	return &Store{
		db:      db,
		content: content,
		logger:  logger,
		states:  make(map[int64]*gs.State),
	}
}

// Validate checks a candidate against the path rules and the registry and
// returns it with its path in canonical form. Nothing is written.
func (s *Store) Validate(ctx context.Context, c gs.CandidateEvent) (gs.CandidateEvent, error) {
	path, err := pathid.Clean(c.Path)
	if err != nil {
		return c, fmt.Errorf("%w: %w", gs.ErrInvalidEvent, err)
	}
	c.Path = path

	if _, err := gs.ParseEventKind(string(c.Kind)); err != nil {
		return c, err
	}
	if c.UTCMillis < 0 {
		return c, fmt.Errorf("%w: negative utc_millis %d", gs.ErrInvalidEvent, c.UTCMillis)
	}

	switch c.Kind {
	case gs.EventDelete:
		c.Size = 0
		c.Checksum = ""
	case gs.EventChange:
		if err := s.validateChange(ctx, c); err != nil {
			return c, err
		}
	}

	if err := s.CheckTarget(ctx, c.ClientID, c.GroupID, c.Path); err != nil {
		return c, err
	}
	return c, nil
}

// CheckTarget verifies that the client exists, is mapped to the group and
// that its mapping filter allows the canonical path.
func (s *Store) CheckTarget(ctx context.Context, clientID string, groupID int64, path string) error {
	client, err := s.db.FindClient(ctx, clientID)
	if err != nil {
		return fmt.Errorf("finding client: %w", err)
	}
	if client == nil {
		return fmt.Errorf("%w: %q", gs.ErrUnknownClient, clientID)
	}

	group, err := s.db.FindGroupByID(ctx, groupID)
	if err != nil {
		return fmt.Errorf("finding group: %w", err)
	}
	if group == nil {
		return fmt.Errorf("%w: %d", gs.ErrUnknownGroup, groupID)
	}

	mapping, err := s.db.FindMapping(ctx, clientID, groupID)
	if err != nil {
		return fmt.Errorf("finding mapping: %w", err)
	}
	if mapping == nil {
		return fmt.Errorf("%w: client %s not mapped to group %d", gs.ErrUnknownGroup, clientID, groupID)
	}

	filter, err := pathid.NewFilter(mapping.ExcludeDotDirs, mapping.ExcludedDirs)
	if err != nil {
		return fmt.Errorf("building filter for mapping %d: %w", mapping.ID, err)
	}
	if !filter.Allows(path) {
		return fmt.Errorf("%w: %s is excluded for this client", gs.ErrInvalidEvent, path)
	}

	return nil
}

// validateChange checks a change event. A change must carry a positive size,
// with one exception: a staged upload may have size zero, since an empty
// file is legal content. A change that was not just uploaded must refer to
// content the vault already holds.
func (s *Store) validateChange(ctx context.Context, c gs.CandidateEvent) error {
	if c.Checksum == "" {
		return fmt.Errorf("%w: change event without checksum", gs.ErrInvalidEvent)
	}
	if !validChecksum(c.Checksum) {
		return fmt.Errorf("%w: malformed checksum %q", gs.ErrInvalidEvent, c.Checksum)
	}
	if c.Staged {
		if c.Size < 0 {
			return fmt.Errorf("%w: negative size %d", gs.ErrInvalidEvent, c.Size)
		}
		return nil
	}

	if c.Size <= 0 {
		return fmt.Errorf("%w: change event needs a positive size, got %d", gs.ErrInvalidEvent, c.Size)
	}
	if s.content == nil {
		return nil
	}
	has, err := s.content.HasContent(ctx, c.Checksum)
	if err != nil {
		return fmt.Errorf("checking content %s: %w", c.Checksum, err)
	}
	if !has {
		return fmt.Errorf("%w: content %s has not been uploaded", gs.ErrInvalidEvent, c.Checksum)
	}
	return nil
}

// Append validates the candidate and commits it. The database assigns the
// per-group sequence.
func (s *Store) Append(ctx context.Context, c gs.CandidateEvent) (*gs.FileEvent, error) {
	c, err := s.Validate(ctx, c)
	if err != nil {
		return nil, err
	}

	ev, err := s.db.AppendEvent(ctx, &gs.FileEvent{
		GroupID:   c.GroupID,
		ClientID:  c.ClientID,
		Path:      c.Path,
		Size:      c.Size,
		UTCMillis: c.UTCMillis,
		Kind:      c.Kind,
		Checksum:  c.Checksum,
	})
	if err != nil {
		return nil, fmt.Errorf("appending event: %w", err)
	}

	s.logger.Info("event appended",
		"group", ev.GroupID,
		"sequence", ev.Sequence,
		"kind", ev.Kind,
		"path", ev.Path,
		"client", ev.ClientID,
	)
	return ev, nil
}

// CurrentState returns the projection of the group's whole history. The
// cached projection is advanced with the events appended since the last call.
func (s *Store) CurrentState(ctx context.Context, groupID int64) (*gs.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[groupID]
	if !ok {
		group, err := s.db.FindGroupByID(ctx, groupID)
		if err != nil {
			return nil, fmt.Errorf("finding group: %w", err)
		}
		if group == nil {
			return nil, fmt.Errorf("%w: %d", gs.ErrUnknownGroup, groupID)
		}
		state = gs.NewState(groupID)
	}

	events, err := s.db.ListEventsSince(ctx, groupID, state.Cursor)
	if err != nil {
		return nil, fmt.Errorf("loading events since %d: %w", state.Cursor, err)
	}
	state.Apply(events)
	s.states[groupID] = state

	return state.Clone(), nil
}

// HistorySince returns the group's events with a sequence above cursor.
func (s *Store) HistorySince(ctx context.Context, groupID, cursor int64) ([]gs.FileEvent, error) {
	if cursor < 0 {
		return nil, fmt.Errorf("%w: negative cursor %d", gs.ErrInvalidRequest, cursor)
	}
	events, err := s.db.ListEventsSince(ctx, groupID, cursor)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return events, nil
}

// PathHistory returns every event recorded for one path.
func (s *Store) PathHistory(ctx context.Context, groupID int64, path string) ([]gs.FileEvent, error) {
	canonical, err := pathid.Clean(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gs.ErrInvalidRequest, err)
	}
	events, err := s.db.ListPathEvents(ctx, groupID, canonical)
	if err != nil {
		return nil, fmt.Errorf("loading history of %s: %w", canonical, err)
	}
	return events, nil
}

// IsValidation reports whether err is a rejection of the input rather than a
// failure to process it.
func IsValidation(err error) bool {
	return errors.Is(err, gs.ErrInvalidEvent) ||
		errors.Is(err, gs.ErrPathTraversal) ||
		errors.Is(err, gs.ErrUnknownClient) ||
		errors.Is(err, gs.ErrUnknownGroup)
}

func validChecksum(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
