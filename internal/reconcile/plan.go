// Package reconcile computes the instructions that bring one client's local
// view of a group in line with the group's authoritative state.
package reconcile

import (
	"context"
	"fmt"
	"sort"

	"groupsync/internal/gs"
	"groupsync/internal/pathid"
)

// Plan compares the projected state with a client manifest. Manifest paths
// must already be canonical. Modification times are never consulted: the
// event with the highest sequence decides what a path should contain.
func Plan(state *gs.State, manifest []gs.ManifestEntry, filter pathid.Filter) *gs.Plan {
	local := make(map[string]gs.ManifestEntry, len(manifest))
	for _, e := range manifest {
		local[e.Path] = e
	}

	plan := &gs.Plan{
		GroupID: state.GroupID,
		Cursor:  state.Cursor,
		Pulls:   []gs.Pull{},
		Deletes: []gs.DeleteLocal{},
	}

	for _, path := range state.Paths() {
		if !filter.Allows(path) {
			continue
		}
		ev := state.Entries[path]
		have, present := local[path]

		if !ev.Live() {
			if present {
				plan.Deletes = append(plan.Deletes, gs.DeleteLocal{Path: path})
			}
			continue
		}

		if !present || stale(have, ev) {
			plan.Pulls = append(plan.Pulls, gs.Pull{
				Path:         path,
				ExpectedSize: ev.Size,
				Checksum:     ev.Checksum,
			})
		}
	}

	return plan
}

func stale(have gs.ManifestEntry, ev gs.FileEvent) bool {
	if have.Size != ev.Size {
		return true
	}
	return have.Checksum != "" && ev.Checksum != "" && have.Checksum != ev.Checksum
}

// StateSource provides the projected state of a group.
type StateSource interface {
	CurrentState(ctx context.Context, groupID int64) (*gs.State, error)
}

// MappingSource provides a client's mapping to a group.
type MappingSource interface {
	FindMapping(ctx context.Context, clientID string, groupID int64) (*gs.ClientWatchGroup, error)
}

// Engine plans against the live event store.
type Engine struct {
	states   StateSource
	mappings MappingSource
	logger   gs.Logger
}

func NewEngine(states StateSource, mappings MappingSource, logger gs.Logger) *Engine {
	if logger == nil {
		logger = gs.NewNopLogger()
	}
	return &Engine{states: states, mappings: mappings, logger: logger}
}

// Plan computes the plan for a client's manifest of a group. The client's
// own mapping filter is applied to both sides.
func (e *Engine) Plan(ctx context.Context, clientID string, groupID int64, manifest []gs.ManifestEntry) (*gs.Plan, error) {
	m, err := e.mappings.FindMapping(ctx, clientID, groupID)
	if err != nil {
		return nil, fmt.Errorf("finding mapping: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: client %s not mapped to group %d", gs.ErrUnknownGroup, clientID, groupID)
	}

	filter, err := pathid.NewFilter(m.ExcludeDotDirs, m.ExcludedDirs)
	if err != nil {
		return nil, fmt.Errorf("building filter for mapping %d: %w", m.ID, err)
	}

	canonical, err := canonicalManifest(manifest)
	if err != nil {
		return nil, err
	}

	state, err := e.states.CurrentState(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	plan := Plan(state, canonical, filter)
	e.logger.Debug("plan computed",
		"client", clientID,
		"group", groupID,
		"cursor", plan.Cursor,
		"pulls", len(plan.Pulls),
		"deletes", len(plan.Deletes),
	)
	return plan, nil
}

func canonicalManifest(manifest []gs.ManifestEntry) ([]gs.ManifestEntry, error) {
	out := make([]gs.ManifestEntry, 0, len(manifest))
	seen := make(map[string]bool, len(manifest))
	for _, e := range manifest {
		p, err := pathid.Clean(e.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: manifest entry %q: %w", gs.ErrInvalidEvent, e.Path, err)
		}
		if seen[p] {
			return nil, fmt.Errorf("%w: duplicate manifest path %q", gs.ErrInvalidEvent, p)
		}
		seen[p] = true
		e.Path = p
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
