// Package registry manages clients, server watch groups and the mappings
// between a client's local directory and a group.
package registry

import (
	"context"
	"fmt"
	"strings"

	"groupsync/internal/gs"
	"groupsync/internal/pathid"
)

// Registry validates registration requests before they reach the store.
type Registry struct {
	store  gs.RegistryStore
	logger gs.Logger
}

// New creates a Registry over store.
func New(store gs.RegistryStore, logger gs.Logger) *Registry {
	if logger == nil {
		logger = gs.NewNopLogger()
	}
	return &Registry{store: store, logger: logger}
}

// RegisterClient creates or refreshes a client. An empty id makes the store
// assign a new one, which the caller is expected to persist.
func (r *Registry) RegisterClient(ctx context.Context, id, hostName string, minPollMs int64) (*gs.Client, error) {
	hostName = strings.TrimSpace(hostName)
	if hostName == "" {
		return nil, fmt.Errorf("%w: host name is required", gs.ErrInvalidRequest)
	}
	if minPollMs < 0 {
		return nil, fmt.Errorf("%w: negative poll interval %d", gs.ErrInvalidRequest, minPollMs)
	}

	c, err := r.store.UpsertClient(ctx, &gs.Client{
		ID:                strings.TrimSpace(id),
		HostName:          hostName,
		MinPollIntervalMs: minPollMs,
	})
	if err != nil {
		return nil, fmt.Errorf("registering client: %w", err)
	}

	r.logger.Info("client registered", "client", c.ID, "host", c.HostName)
	return c, nil
}

// CreateGroup creates a new server watch group. Names are unique.
func (r *Registry) CreateGroup(ctx context.Context, name string) (*gs.ServerWatchGroup, error) {
	name, err := groupName(name)
	if err != nil {
		return nil, err
	}

	g, err := r.store.CreateGroup(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("creating group %q: %w", name, err)
	}

	r.logger.Info("group created", "group", g.ID, "name", g.Name)
	return g, nil
}

func (r *Registry) ListGroups(ctx context.Context) ([]*gs.ServerWatchGroup, error) {
	groups, err := r.store.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	return groups, nil
}

// RenameGroup changes a group's name. Mappings and history follow the id.
func (r *Registry) RenameGroup(ctx context.Context, id int64, name string) (*gs.ServerWatchGroup, error) {
	name, err := groupName(name)
	if err != nil {
		return nil, err
	}

	g, err := r.store.RenameGroup(ctx, id, name)
	if err != nil {
		return nil, fmt.Errorf("renaming group %d: %w", id, err)
	}

	r.logger.Info("group renamed", "group", g.ID, "name", g.Name)
	return g, nil
}

// RegisterMapping maps a client's local directory to a group by name.
// Registering the same (client, group, local path) again only updates the
// exclusion settings.
func (r *Registry) RegisterMapping(ctx context.Context, req gs.MappingRequest) (*gs.ClientWatchGroup, error) {
	localPath := strings.TrimSpace(req.LocalPath)
	if localPath == "" {
		return nil, fmt.Errorf("%w: local path is required", gs.ErrInvalidRequest)
	}

	filter, err := pathid.NewFilter(req.ExcludeDotDirs, req.ExcludedDirs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gs.ErrInvalidRequest, err)
	}

	client, err := r.store.FindClient(ctx, req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("finding client: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: %q", gs.ErrUnknownClient, req.ClientID)
	}

	group, err := r.store.FindGroupByName(ctx, strings.TrimSpace(req.GroupName))
	if err != nil {
		return nil, fmt.Errorf("finding group: %w", err)
	}
	if group == nil {
		return nil, fmt.Errorf("%w: %q", gs.ErrUnknownGroup, req.GroupName)
	}

	m, err := r.store.SaveMapping(ctx, &gs.ClientWatchGroup{
		ClientID:           client.ID,
		LocalPath:          localPath,
		ExcludeDotDirs:     filter.ExcludeDotDirs,
		ServerWatchGroupID: group.ID,
		ExcludedDirs:       filter.ExcludedDirs,
	})
	if err != nil {
		return nil, fmt.Errorf("saving mapping: %w", err)
	}

	r.logger.Info("mapping registered",
		"mapping", m.ID,
		"client", m.ClientID,
		"group", group.Name,
		"local_path", m.LocalPath,
	)
	return m, nil
}

// Resolve returns the group a client's local directory is mapped to.
func (r *Registry) Resolve(ctx context.Context, clientID, localPath string) (*gs.ServerWatchGroup, error) {
	m, err := r.store.FindMappingByPath(ctx, clientID, strings.TrimSpace(localPath))
	if err != nil {
		return nil, fmt.Errorf("finding mapping: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s is not mapped for client %s", gs.ErrNotFound, localPath, clientID)
	}

	g, err := r.store.FindGroupByID(ctx, m.ServerWatchGroupID)
	if err != nil {
		return nil, fmt.Errorf("finding group: %w", err)
	}
	if g == nil {
		return nil, fmt.Errorf("%w: %d", gs.ErrUnknownGroup, m.ServerWatchGroupID)
	}
	return g, nil
}

// Mappings lists every mapping of a client.
func (r *Registry) Mappings(ctx context.Context, clientID string) ([]*gs.ClientWatchGroup, error) {
	client, err := r.store.FindClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("finding client: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: %q", gs.ErrUnknownClient, clientID)
	}

	ms, err := r.store.ListMappings(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("listing mappings: %w", err)
	}
	return ms, nil
}

// Mapping returns the client's mapping to a group, with its excluded dirs.
func (r *Registry) Mapping(ctx context.Context, clientID string, groupID int64) (*gs.ClientWatchGroup, error) {
	m, err := r.store.FindMapping(ctx, clientID, groupID)
	if err != nil {
		return nil, fmt.Errorf("finding mapping: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: client %s not mapped to group %d", gs.ErrUnknownGroup, clientID, groupID)
	}
	return m, nil
}

// DeleteMapping removes one of the client's mappings. History recorded
// through it stays.
func (r *Registry) DeleteMapping(ctx context.Context, clientID string, id int64) error {
	removed, err := r.store.DeleteMapping(ctx, clientID, id)
	if err != nil {
		return fmt.Errorf("deleting mapping %d: %w", id, err)
	}
	if !removed {
		return fmt.Errorf("%w: mapping %d", gs.ErrNotFound, id)
	}

	r.logger.Info("mapping deleted", "mapping", id, "client", clientID)
	return nil
}

func groupName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: group name is required", gs.ErrInvalidRequest)
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return "", fmt.Errorf("%w: group name %q contains a separator", gs.ErrInvalidRequest, name)
	}
	return name, nil
}
