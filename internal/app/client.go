package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"groupsync/internal/api"
	"groupsync/internal/config"
	"groupsync/internal/fs"
	"groupsync/internal/gs"
	"groupsync/internal/pathid"
	"groupsync/internal/session"
	"groupsync/internal/watcher"
)

// ClientApp is the sync client wired from config.
type ClientApp struct {
	cfg        *config.Config
	configPath string
	api        *api.Client
	store      *watcher.ManifestStore
	logger     gs.Logger
	logFile    io.Closer
}

// NewClientApp creates the API client and manifest store. Nothing is sent
// to the server until Register. The caller must call Close when done.
func NewClientApp(cfg *config.Config, configPath string) (*ClientApp, error) {
	logger, logFile, err := setupLogger(cfg, RoleClient)
	if err != nil {
		return nil, err
	}

	store, err := watcher.NewManifestStore(cfg.Client.StateDir)
	if err != nil {
		logFile.Close()
		return nil, err
	}

	return &ClientApp{
		cfg:        cfg,
		configPath: configPath,
		api:        NewAPIClient(cfg),
		store:      store,
		logger:     logger,
		logFile:    logFile,
	}, nil
}

// NewAPIClient returns a server client for the configured identity.
func NewAPIClient(cfg *config.Config) *api.Client {
	return api.New(cfg.Client.ServerURL, cfg.Client.ClientID, hostName(cfg), nil)
}

func hostName(cfg *config.Config) string {
	if cfg.Client.HostName != "" {
		return cfg.Client.HostName
	}
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// API returns the underlying server client.
func (a *ClientApp) API() *api.Client {
	return a.api
}

// Register announces the client and its mapped directories to the server.
// An id assigned on first registration is saved into the config file.
// It returns one session per configured mapping.
func (a *ClientApp) Register(ctx context.Context) ([]*session.Session, error) {
	cc := a.cfg.Client

	regCtx, cancel := context.WithTimeout(ctx, cc.RequestTimeout())
	defer cancel()

	c, err := a.api.RegisterClient(regCtx, cc.MinPollIntervalMs)
	if err != nil {
		return nil, fmt.Errorf("registering client: %w", err)
	}
	if c.ID != cc.ClientID {
		a.cfg.Client.ClientID = c.ID
		if err := config.Save(a.configPath, a.cfg); err != nil {
			return nil, err
		}
		a.logger.Info("client id assigned", "client", c.ID)
	}

	var sessions []*session.Session
	for _, wg := range cc.WatchGroups {
		s, err := a.newSession(regCtx, wg)
		if err != nil {
			return nil, fmt.Errorf("mapping %s: %w", wg.LocalPath, err)
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (a *ClientApp) newSession(ctx context.Context, wg config.WatchGroupConfig) (*session.Session, error) {
	cc := a.cfg.Client

	root, err := filepath.Abs(wg.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", root, err)
	}
	filter, err := pathid.NewFilter(wg.ExcludeDotDirs, wg.ExcludedDirs)
	if err != nil {
		return nil, err
	}
	ignore, err := fs.DefaultIgnoreMatcher(root, cc.Ignore)
	if err != nil {
		return nil, err
	}

	m, err := a.api.RegisterMapping(ctx, gs.MappingRequest{
		LocalPath:      root,
		GroupName:      wg.GroupName,
		ExcludeDotDirs: filter.ExcludeDotDirs,
		ExcludedDirs:   filter.ExcludedDirs,
	})
	if err != nil {
		return nil, err
	}

	return session.New(session.Config{
		LocalPath:       root,
		GroupID:         m.ServerWatchGroupID,
		Filter:          filter,
		Ignore:          ignore,
		MinPollInterval: cc.MinPollInterval(),
		PollInterval:    cc.PollInterval(),
		RequestTimeout:  cc.RequestTimeout(),
	}, a.api, a.store, gs.RealClock{}, a.logger), nil
}

// Run registers, then runs one session per mapping until ctx is done. An
// unreachable server is retried at the poll interval.
func (a *ClientApp) Run(ctx context.Context) error {
	sessions, err := a.registerWithRetry(ctx)
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return fmt.Errorf("no watch groups configured")
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, s := range sessions {
		wg := a.cfg.Client.WatchGroups[i]
		if n, err := a.notifier(wg); err != nil {
			a.logger.Warn("file notifications unavailable, polling only", "local_path", wg.LocalPath, "error", err)
		} else {
			s.SetNotifier(n)
		}
		g.Go(func() error { return s.Run(ctx) })
	}
	return g.Wait()
}

func (a *ClientApp) registerWithRetry(ctx context.Context) ([]*session.Session, error) {
	interval := a.cfg.Client.PollInterval()
	for {
		sessions, err := a.Register(ctx)
		if err == nil || !errors.Is(err, gs.ErrNetwork) {
			return sessions, err
		}
		a.logger.Warn("server unreachable, retrying",
			"server", a.cfg.Client.ServerURL,
			"retry_in", interval.String(),
			"error", err,
		)

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (a *ClientApp) notifier(wg config.WatchGroupConfig) (*watcher.Notifier, error) {
	root, err := filepath.Abs(wg.LocalPath)
	if err != nil {
		return nil, err
	}
	filter, err := pathid.NewFilter(wg.ExcludeDotDirs, wg.ExcludedDirs)
	if err != nil {
		return nil, err
	}
	ignore, err := fs.DefaultIgnoreMatcher(root, a.cfg.Client.Ignore)
	if err != nil {
		return nil, err
	}
	return watcher.NewNotifier(root, filter, ignore, watcher.DefaultDebounce, a.logger)
}

// SyncOnce registers and runs a single cycle per mapping.
func (a *ClientApp) SyncOnce(ctx context.Context) ([]*session.Result, error) {
	sessions, err := a.Register(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*session.Result, len(sessions))
	for i, s := range sessions {
		res, err := s.RunCycle(ctx)
		if err != nil {
			return nil, fmt.Errorf("syncing %s: %w", a.cfg.Client.WatchGroups[i].LocalPath, err)
		}
		results[i] = res
	}
	return results, nil
}

// Close releases the log file.
func (a *ClientApp) Close() error {
	if a.logFile != nil {
		return a.logFile.Close()
	}
	return nil
}
