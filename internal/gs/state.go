package gs

import "sort"

// State is the projection of a group's history: the last effective event per
// path, tombstones included, as of Cursor.
type State struct {
	GroupID int64
	Cursor  int64
	Entries map[string]FileEvent
}

// NewState returns an empty projection for a group.
func NewState(groupID int64) *State {
	return &State{GroupID: groupID, Entries: make(map[string]FileEvent)}
}

// Project folds events in sequence order into a new State.
func Project(groupID int64, events []FileEvent) *State {
	s := NewState(groupID)
	s.Apply(events)
	return s
}

// Apply folds further events into the state. Events at or below the cursor
// are ignored, so applying the same batch twice is harmless.
func (s *State) Apply(events []FileEvent) {
	sorted := make([]FileEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	for _, ev := range sorted {
		if ev.Sequence <= s.Cursor {
			continue
		}
		s.Entries[ev.Path] = ev
		s.Cursor = ev.Sequence
	}
}

// Live returns the live event for path, or nil when the path is absent or
// tombstoned.
func (s *State) Live(path string) *FileEvent {
	ev, ok := s.Entries[path]
	if !ok || !ev.Live() {
		return nil
	}
	return &ev
}

// Clone returns a deep copy safe to hand to callers.
func (s *State) Clone() *State {
	c := &State{GroupID: s.GroupID, Cursor: s.Cursor, Entries: make(map[string]FileEvent, len(s.Entries))}
	for k, v := range s.Entries {
		c.Entries[k] = v
	}
	return c
}

// Paths returns all tracked paths in sorted order.
func (s *State) Paths() []string {
	paths := make([]string, 0, len(s.Entries))
	for p := range s.Entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
