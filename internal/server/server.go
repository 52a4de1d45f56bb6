// Package server exposes the sync operations over HTTP.
package server

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"groupsync/internal/gs"
)

// Registry is the client, group and mapping management the handlers use.
type Registry interface {
	RegisterClient(ctx context.Context, id, hostName string, minPollMs int64) (*gs.Client, error)
	CreateGroup(ctx context.Context, name string) (*gs.ServerWatchGroup, error)
	ListGroups(ctx context.Context) ([]*gs.ServerWatchGroup, error)
	RenameGroup(ctx context.Context, id int64, name string) (*gs.ServerWatchGroup, error)
	RegisterMapping(ctx context.Context, req gs.MappingRequest) (*gs.ClientWatchGroup, error)
	Resolve(ctx context.Context, clientID, localPath string) (*gs.ServerWatchGroup, error)
	Mappings(ctx context.Context, clientID string) ([]*gs.ClientWatchGroup, error)
	DeleteMapping(ctx context.Context, clientID string, id int64) error
}

// Events is event ingestion and history.
type Events interface {
	Append(ctx context.Context, c gs.CandidateEvent) (*gs.FileEvent, error)
	HistorySince(ctx context.Context, groupID, cursor int64) ([]gs.FileEvent, error)
	PathHistory(ctx context.Context, groupID int64, path string) ([]gs.FileEvent, error)
}

// Planner computes reconciliation plans.
type Planner interface {
	Plan(ctx context.Context, clientID string, groupID int64, manifest []gs.ManifestEntry) (*gs.Plan, error)
}

// Transfers moves content in and out of the vault.
type Transfers interface {
	Upload(ctx context.Context, req gs.UploadRequest, r io.Reader) (*gs.FileEvent, error)
	Lookup(ctx context.Context, groupID int64, path string) (*gs.FileEvent, error)
	Download(ctx context.Context, ev *gs.FileEvent, w io.Writer) error
}

// Server holds the handlers' dependencies.
type Server struct {
	registry  Registry
	events    Events
	planner   Planner
	transfers Transfers
	logger    gs.Logger
	version   string
}

// New creates a Server.
func New(registry Registry, events Events, planner Planner, transfers Transfers, logger gs.Logger, version string) *Server {
	if logger == nil {
		logger = gs.NewNopLogger()
	}
	return &Server{
		registry:  registry,
		events:    events,
		planner:   planner,
		transfers: transfers,
		logger:    logger,
		version:   version,
	}
}

// Router returns the HTTP handler for every endpoint.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/ping", s.handlePing)
	r.Get("/version", s.handleVersion)

	r.Route("/api", func(r chi.Router) {
		r.Post("/clients", s.handleRegisterClient)

		r.Route("/watch-groups", func(r chi.Router) {
			r.Get("/", s.handleListGroups)
			r.Post("/", s.handleCreateGroup)
			r.Put("/{id}", s.handleRenameGroup)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireClient)

			r.Route("/client-watch-groups", func(r chi.Router) {
				r.Post("/", s.handleRegisterMapping)
				r.Get("/", s.handleListMappings)
				r.Get("/resolve", s.handleResolve)
				r.Delete("/{id}", s.handleDeleteMapping)
			})

			r.Post("/events", s.handleAppendEvent)
			r.Post("/events/upload", s.handleUpload)
			r.Post("/plan", s.handlePlan)
		})

		r.Get("/events", s.handleHistorySince)
		r.Get("/events/history", s.handlePathHistory)
		r.Get("/download", s.handleDownload)
	})

	return r
}
