// Package session runs the client side of synchronization for one mapped
// directory.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"groupsync/internal/fs"
	"groupsync/internal/gs"
	"groupsync/internal/pathid"
	"groupsync/internal/watcher"
)

var (
	// ErrCycleInProgress means a cycle of the same session is still running.
	ErrCycleInProgress = errors.New("sync cycle already in progress")
	// ErrLocked means another process is synchronizing the same directory.
	ErrLocked = errors.New("mapped directory is locked by another process")
)

// API is the part of the server client a session needs.
type API interface {
	Upload(ctx context.Context, req gs.UploadRequest, r io.Reader) (*gs.FileEvent, error)
	SubmitEvent(ctx context.Context, ev gs.CandidateEvent) (*gs.FileEvent, error)
	Plan(ctx context.Context, groupID int64, manifest []gs.ManifestEntry) (*gs.Plan, error)
	History(ctx context.Context, groupID, since int64) ([]gs.FileEvent, error)
	Download(ctx context.Context, groupID int64, path string, w io.Writer) (int64, error)
}

// Config describes one mapped directory.
type Config struct {
	LocalPath       string
	GroupID         int64
	Filter          pathid.Filter
	Ignore          *fs.IgnoreMatcher
	MinPollInterval time.Duration
	PollInterval    time.Duration
	RequestTimeout  time.Duration
}

// Result summarizes one cycle.
type Result struct {
	Uploaded int
	Deleted  int
	Pulled   int
	Removed  int
	Cursor   int64
}

// Session synchronizes one mapped directory with its server group.
type Session struct {
	cfg      Config
	api      API
	store    *watcher.ManifestStore
	scanner  *fs.Scanner
	clock    gs.Clock
	logger   gs.Logger
	notifier *watcher.Notifier

	running atomic.Bool
}

// New creates a Session. A nil clock uses the real time.
func New(cfg Config, api API, store *watcher.ManifestStore, clock gs.Clock, logger gs.Logger) *Session {
	if clock == nil {
		clock = gs.RealClock{}
	}
	if logger == nil {
		logger = gs.NewNopLogger()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.MinPollInterval > cfg.PollInterval {
		cfg.MinPollInterval = cfg.PollInterval
	}
	return &Session{
		cfg:     cfg,
		api:     api,
		store:   store,
		scanner: fs.NewScanner(cfg.Ignore, logger),
		clock:   clock,
		logger:  logger.With("local_path", cfg.LocalPath, "group", cfg.GroupID),
	}
}

// SetNotifier lets filesystem events start a cycle before the poll
// interval elapses. Run owns the notifier from then on.
func (s *Session) SetNotifier(n *watcher.Notifier) {
	s.notifier = n
}

// Run performs cycles until ctx is done. Failed cycles are logged and
// retried on the next tick.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	var wake <-chan struct{}
	if s.notifier != nil {
		wake = s.notifier.Wake()
		g.Go(func() error { return s.notifier.Run(ctx) })
	}
	g.Go(func() error { return s.loop(ctx, wake) })
	return g.Wait()
}

func (s *Session) loop(ctx context.Context, wake <-chan struct{}) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	var last time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-wake:
		}

		if !last.IsZero() {
			if wait := s.cfg.MinPollInterval - s.clock.Now().Sub(last); wait > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(wait):
				}
			}
		}
		last = s.clock.Now()

		res, err := s.RunCycle(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			s.logger.Error("sync cycle failed", "error", err)
		case res.Uploaded+res.Deleted+res.Pulled+res.Removed > 0:
			s.logger.Info("sync cycle completed",
				"uploaded", res.Uploaded,
				"deleted", res.Deleted,
				"pulled", res.Pulled,
				"removed", res.Removed,
				"cursor", res.Cursor,
			)
		default:
			s.logger.Debug("sync cycle completed", "cursor", res.Cursor)
		}
		timer.Reset(s.cfg.PollInterval)
	}
}

// RunCycle scans the directory, pushes local changes, then applies the
// server's plan. The manifest is persisted only when every step succeeds,
// so a failed cycle is redone in full by the next one. Until a cycle has
// completed against a non-empty group, the directory is adopted first: see
// adopt.
func (s *Session) RunCycle(ctx context.Context) (*Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer s.running.Store(false)

	lock := flock.New(s.store.LockPath(s.cfg.LocalPath))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", s.cfg.LocalPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, s.cfg.LocalPath)
	}
	defer lock.Unlock()

	prev, cursor, err := s.store.Load(s.cfg.LocalPath)
	if err != nil {
		return nil, err
	}

	scanned, err := s.scanner.Scan(ctx, s.cfg.LocalPath, s.cfg.Filter)
	if err != nil {
		return nil, err
	}
	cur, err := watcher.Checksum(ctx, s.cfg.LocalPath, scanned, prev)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	if cursor == 0 {
		if prev, err = s.adopt(ctx, cur, res); err != nil {
			return nil, err
		}
	}
	if err := s.push(ctx, watcher.Diff(prev, cur), cur, res); err != nil {
		return nil, err
	}

	plan, err := s.plan(ctx, cur)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, plan, cur, res); err != nil {
		return nil, err
	}
	res.Cursor = plan.Cursor

	if err := s.store.Save(s.cfg.LocalPath, cur, plan.Cursor); err != nil {
		return nil, err
	}
	return res, nil
}

// adopt reconciles a directory with no recorded cursor against a group that
// may already have history. Every path the group has an event for takes the
// group's version, live or deleted. The returned baseline holds those paths,
// so only files new to the group are pushed as created.
func (s *Session) adopt(ctx context.Context, cur watcher.Manifest, res *Result) (watcher.Manifest, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	events, err := s.api.History(callCtx, s.cfg.GroupID, 0)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("loading group history: %w", err)
	}
	state := gs.Project(s.cfg.GroupID, events)

	plan, err := s.plan(ctx, cur)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, plan, cur, res); err != nil {
		return nil, err
	}

	baseline := watcher.Manifest{}
	for p, e := range cur {
		if _, tracked := state.Entries[p]; tracked {
			baseline[p] = e
		}
	}
	for _, pull := range plan.Pulls {
		baseline[pull.Path] = cur[pull.Path]
	}
	if res.Pulled+res.Removed > 0 {
		s.logger.Info("directory adopted group state", "pulled", res.Pulled, "removed", res.Removed)
	}
	return baseline, nil
}

func (s *Session) push(ctx context.Context, changes watcher.Changes, cur watcher.Manifest, res *Result) error {
	for _, group := range [][]string{changes.Created, changes.Updated} {
		for _, p := range group {
			if err := s.upload(ctx, cur[p]); err != nil {
				return err
			}
			res.Uploaded++
		}
	}

	for _, p := range changes.Deleted {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		_, err := s.api.SubmitEvent(callCtx, gs.CandidateEvent{
			GroupID:   s.cfg.GroupID,
			Path:      p,
			Kind:      gs.EventDelete,
			UTCMillis: gs.UTCMillis(s.clock),
		})
		cancel()
		if err != nil {
			return fmt.Errorf("submitting delete of %s: %w", p, err)
		}
		s.logger.Debug("delete submitted", "path", p)
		res.Deleted++
	}
	return nil
}

func (s *Session) upload(ctx context.Context, e gs.ManifestEntry) error {
	f, err := os.Open(fs.LocalPath(s.cfg.LocalPath, e.Path))
	if err != nil {
		return fmt.Errorf("opening %s: %w", e.Path, err)
	}
	defer f.Close()

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	ev, err := s.api.Upload(callCtx, gs.UploadRequest{
		GroupID:   s.cfg.GroupID,
		Path:      e.Path,
		UTCMillis: e.ModifiedMillis,
		Size:      e.Size,
		Checksum:  e.Checksum,
	}, f)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", e.Path, err)
	}
	s.logger.Debug("file uploaded", "path", e.Path, "sequence", ev.Sequence, "size", ev.Size)
	return nil
}

func (s *Session) plan(ctx context.Context, cur watcher.Manifest) (*gs.Plan, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	plan, err := s.api.Plan(callCtx, s.cfg.GroupID, cur.Entries())
	if err != nil {
		return nil, fmt.Errorf("requesting plan: %w", err)
	}
	return plan, nil
}

// apply carries out the plan and records the result in cur.
func (s *Session) apply(ctx context.Context, plan *gs.Plan, cur watcher.Manifest, res *Result) error {
	for _, pull := range plan.Pulls {
		e, err := s.pull(ctx, pull)
		if err != nil {
			return err
		}
		cur[e.Path] = e
		res.Pulled++
	}

	for _, del := range plan.Deletes {
		p, err := s.local(del.Path)
		if err != nil {
			return err
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", del.Path, err)
		}
		s.pruneParents(filepath.Dir(p))
		delete(cur, del.Path)
		s.logger.Info("file removed", "path", del.Path)
		res.Removed++
	}
	return nil
}

// local validates a server supplied path and returns its location under
// the mapped directory. Local symlinks are resolved, so a path routed
// through a linked directory outside the root is rejected.
func (s *Session) local(p string) (string, error) {
	canonical, err := pathid.Clean(p)
	if err != nil {
		return "", fmt.Errorf("plan path %q: %w", p, err)
	}
	if !s.cfg.Filter.Allows(canonical) {
		return "", fmt.Errorf("%w: plan path %q is excluded by the mapping", gs.ErrInvalidEvent, p)
	}
	dest := fs.LocalPath(s.cfg.LocalPath, canonical)
	if _, err := pathid.Canonicalize(s.cfg.LocalPath, dest); err != nil {
		return "", fmt.Errorf("plan path %q: %w", p, err)
	}
	return dest, nil
}

// pull downloads a file next to its destination and renames it into place
// once size and checksum are verified.
func (s *Session) pull(ctx context.Context, pull gs.Pull) (gs.ManifestEntry, error) {
	dest, err := s.local(pull.Path)
	if err != nil {
		return gs.ManifestEntry{}, err
	}
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return gs.ManifestEntry{}, fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, fs.TempPrefix+"*")
	if err != nil {
		return gs.ManifestEntry{}, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	h := sha256.New()
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	n, err := s.api.Download(callCtx, s.cfg.GroupID, pull.Path, io.MultiWriter(tmp, h))
	cancel()
	if err != nil {
		return gs.ManifestEntry{}, fmt.Errorf("downloading %s: %w", pull.Path, err)
	}
	if n != pull.ExpectedSize {
		return gs.ManifestEntry{}, fmt.Errorf("%w: %s: got %d bytes, want %d", gs.ErrTransferIncomplete, pull.Path, n, pull.ExpectedSize)
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if pull.Checksum != "" && sum != pull.Checksum {
		return gs.ManifestEntry{}, fmt.Errorf("%w: %s: checksum mismatch", gs.ErrTransferIncomplete, pull.Path)
	}
	if err := tmp.Sync(); err != nil {
		return gs.ManifestEntry{}, fmt.Errorf("syncing %s: %w", pull.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return gs.ManifestEntry{}, fmt.Errorf("closing %s: %w", pull.Path, err)
	}

	if info, err := os.Lstat(dest); err == nil {
		if info.IsDir() {
			return gs.ManifestEntry{}, fmt.Errorf("%w: %s is a local directory", gs.ErrInvalidEvent, pull.Path)
		}
		s.logger.Warn("overwriting local file with server version",
			"path", pull.Path,
			"local_size", info.Size(),
			"server_size", n,
		)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return gs.ManifestEntry{}, fmt.Errorf("replacing %s: %w", pull.Path, err)
	}
	committed = true

	info, err := os.Stat(dest)
	if err != nil {
		return gs.ManifestEntry{}, fmt.Errorf("stat %s: %w", pull.Path, err)
	}
	s.logger.Info("file pulled", "path", pull.Path, "size", n)
	return gs.ManifestEntry{
		Path:           pull.Path,
		Size:           n,
		ModifiedMillis: info.ModTime().UnixMilli(),
		Checksum:       sum,
	}, nil
}

// pruneParents removes empty directories from dir up to, but not
// including, the mapped root.
func (s *Session) pruneParents(dir string) {
	root := filepath.Clean(s.cfg.LocalPath)
	for dir = filepath.Clean(dir); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}
