// Package watcher tracks what a client last observed in a mapped directory
// and notices when it changes.
package watcher

import (
	"context"
	"fmt"
	"sort"

	"groupsync/internal/fs"
	"groupsync/internal/gs"
)

// Manifest is the observed state of a mapped directory keyed by canonical
// path.
type Manifest map[string]gs.ManifestEntry

// NewManifest indexes entries by path.
func NewManifest(entries []gs.ManifestEntry) Manifest {
	m := make(Manifest, len(entries))
	for _, e := range entries {
		m[e.Path] = e
	}
	return m
}

// Entries returns the manifest sorted by path.
func (m Manifest) Entries() []gs.ManifestEntry {
	out := make([]gs.ManifestEntry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Clone returns an independent copy.
func (m Manifest) Clone() Manifest {
	out := make(Manifest, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Changes lists the paths that differ between two manifests. Each list is
// sorted.
type Changes struct {
	Created []string
	Updated []string
	Deleted []string
}

func (c Changes) Empty() bool {
	return len(c.Created) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}

// Diff compares the previous manifest with the current one. An entry is
// updated when its size, modification time or checksum differs.
func Diff(prev, cur Manifest) Changes {
	var c Changes
	for p, e := range cur {
		old, ok := prev[p]
		switch {
		case !ok:
			c.Created = append(c.Created, p)
		case old.Size != e.Size || old.ModifiedMillis != e.ModifiedMillis || old.Checksum != e.Checksum:
			c.Updated = append(c.Updated, p)
		}
	}
	for p := range prev {
		if _, ok := cur[p]; !ok {
			c.Deleted = append(c.Deleted, p)
		}
	}
	sort.Strings(c.Created)
	sort.Strings(c.Updated)
	sort.Strings(c.Deleted)
	return c
}

// Checksum fills in the checksum of every scanned entry. Entries whose size
// and modification time match prev reuse its checksum; the rest are hashed.
func Checksum(ctx context.Context, root string, scanned []gs.ManifestEntry, prev Manifest) (Manifest, error) {
	cur := make(Manifest, len(scanned))
	for _, e := range scanned {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if old, ok := prev[e.Path]; ok && old.Checksum != "" && old.Size == e.Size && old.ModifiedMillis == e.ModifiedMillis {
			e.Checksum = old.Checksum
			cur[e.Path] = e
			continue
		}

		sum, n, err := fs.HashFile(fs.LocalPath(root, e.Path))
		if err != nil {
			return nil, fmt.Errorf("checksum %s: %w", e.Path, err)
		}
		e.Checksum = sum
		e.Size = n
		cur[e.Path] = e
	}
	return cur, nil
}
