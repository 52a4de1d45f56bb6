// Package transfer moves file content between clients and the vault. An
// upload is staged and verified in full before its content is promoted and
// its change event committed.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"groupsync/internal/gs"
	"groupsync/internal/pathid"
	"groupsync/internal/staging"
)

// Events is the part of the event store the transfer manager needs.
type Events interface {
	CheckTarget(ctx context.Context, clientID string, groupID int64, path string) error
	Append(ctx context.Context, c gs.CandidateEvent) (*gs.FileEvent, error)
	CurrentState(ctx context.Context, groupID int64) (*gs.State, error)
}

// Manager coordinates staging, the vault and the event store.
type Manager struct {
	events    Events
	staging   gs.StagingArea
	vault     gs.Vault
	clock     gs.Clock
	logger    gs.Logger
	maxUpload int64
}

// NewManager creates a Manager. maxUpload <= 0 disables the per-upload limit.
func NewManager(events Events, stagingArea gs.StagingArea, vault gs.Vault, clock gs.Clock, logger gs.Logger, maxUpload int64) *Manager {
	if logger == nil {
		logger = gs.NewNopLogger()
	}
	if clock == nil {
		clock = gs.RealClock{}
	}
	return &Manager{
		events:    events,
		staging:   stagingArea,
		vault:     vault,
		clock:     clock,
		logger:    logger,
		maxUpload: maxUpload,
	}
}

// Upload stores the content read from r and commits a change event for it.
// If anything fails before the commit, the staged bytes are removed and no
// event exists.
func (m *Manager) Upload(ctx context.Context, req gs.UploadRequest, r io.Reader) (*gs.FileEvent, error) {
	canonical, err := pathid.Clean(req.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gs.ErrInvalidEvent, err)
	}
	if req.UTCMillis < 0 {
		return nil, fmt.Errorf("%w: negative utc_millis %d", gs.ErrInvalidEvent, req.UTCMillis)
	}
	if err := m.events.CheckTarget(ctx, req.ClientID, req.GroupID, canonical); err != nil {
		return nil, err
	}

	staged, err := m.staging.Stage(&ctxReader{ctx: ctx, r: r}, m.maxUpload)
	if err != nil {
		if errors.Is(err, staging.ErrTooLarge) || errors.Is(err, staging.ErrFull) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", gs.ErrTransferIncomplete, err)
	}
	defer func() {
		if err := staged.Release(); err != nil {
			m.logger.Warn("failed to release staged upload", "path", canonical, "error", err)
		}
	}()

	if req.Size >= 0 && staged.Size() != req.Size {
		return nil, fmt.Errorf("%w: received %d of %d bytes", gs.ErrTransferIncomplete, staged.Size(), req.Size)
	}
	if req.Checksum != "" && !strings.EqualFold(req.Checksum, staged.Checksum()) {
		return nil, fmt.Errorf("%w: checksum mismatch for %s", gs.ErrTransferIncomplete, canonical)
	}

	if err := m.promote(ctx, staged); err != nil {
		return nil, err
	}

	millis := req.UTCMillis
	if millis == 0 {
		millis = gs.UTCMillis(m.clock)
	}

	ev, err := m.events.Append(ctx, gs.CandidateEvent{
		GroupID:   req.GroupID,
		ClientID:  req.ClientID,
		Path:      canonical,
		Kind:      gs.EventChange,
		Size:      staged.Size(),
		UTCMillis: millis,
		Checksum:  staged.Checksum(),
		Staged:    true,
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("upload committed",
		"group", ev.GroupID,
		"sequence", ev.Sequence,
		"path", ev.Path,
		"size", ev.Size,
	)
	return ev, nil
}

// promote copies staged content into the vault unless the vault already
// holds the same checksum.
func (m *Manager) promote(ctx context.Context, staged gs.StagedContent) error {
	has, err := m.vault.HasContent(ctx, staged.Checksum())
	if err != nil {
		return fmt.Errorf("checking vault: %w", err)
	}
	if has {
		m.logger.Debug("content already in vault", "checksum", staged.Checksum())
		return nil
	}

	rc, err := staged.Open()
	if err != nil {
		return fmt.Errorf("opening staged content: %w", err)
	}
	defer rc.Close()

	if err := m.vault.PutContent(ctx, staged.Checksum(), rc, staged.Size()); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", gs.ErrTransferIncomplete, err)
		}
		return fmt.Errorf("storing content: %w", err)
	}
	return nil
}

// Lookup returns the live event for a path, or ErrNotFound when the path was
// never written or is tombstoned.
func (m *Manager) Lookup(ctx context.Context, groupID int64, p string) (*gs.FileEvent, error) {
	canonical, err := pathid.Clean(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gs.ErrInvalidRequest, err)
	}

	state, err := m.events.CurrentState(ctx, groupID)
	if err != nil {
		return nil, err
	}
	ev := state.Live(canonical)
	if ev == nil {
		return nil, fmt.Errorf("%w: %s", gs.ErrNotFound, canonical)
	}
	return ev, nil
}

// Download streams the content referenced by ev to w.
func (m *Manager) Download(ctx context.Context, ev *gs.FileEvent, w io.Writer) error {
	if ev.Checksum == "" {
		return fmt.Errorf("%w: event %s has no content", gs.ErrNotFound, ev.ID)
	}
	if err := m.vault.GetContent(ctx, ev.Checksum, w); err != nil {
		return fmt.Errorf("reading content of %s: %w", ev.Path, err)
	}
	return nil
}

// ContentType returns the MIME type for a path based on its extension.
func ContentType(p string) string {
	if t := mime.TypeByExtension(path.Ext(p)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
