package reconcile

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"groupsync/internal/eventstore"
	"groupsync/internal/gs"
	"groupsync/internal/pathid"
	"groupsync/internal/testutil"
)

func change(seq int64, client, path string, size int64, millis int64) gs.FileEvent {
	return gs.FileEvent{
		Sequence:  seq,
		GroupID:   1,
		ClientID:  client,
		Path:      path,
		Kind:      gs.EventChange,
		Size:      size,
		UTCMillis: millis,
	}
}

func del(seq int64, path string) gs.FileEvent {
	return gs.FileEvent{Sequence: seq, GroupID: 1, Path: path, Kind: gs.EventDelete}
}

func pullPaths(p *gs.Plan) []string {
	out := []string{}
	for _, pl := range p.Pulls {
		out = append(out, pl.Path)
	}
	return out
}

func deletePaths(p *gs.Plan) []string {
	out := []string{}
	for _, d := range p.Deletes {
		out = append(out, d.Path)
	}
	return out
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name        string
		events      []gs.FileEvent
		manifest    []gs.ManifestEntry
		filter      pathid.Filter
		wantPulls   []string
		wantDeletes []string
	}{
		{
			name:      "empty manifest pulls everything live",
			events:    []gs.FileEvent{change(1, "a", "x.txt", 3, 0), change(2, "a", "y.txt", 4, 0), del(3, "y.txt")},
			wantPulls: []string{"x.txt"},
		},
		{
			name:     "matching sizes need nothing",
			events:   []gs.FileEvent{change(1, "a", "x.txt", 3, 0)},
			manifest: []gs.ManifestEntry{{Path: "x.txt", Size: 3, ModifiedMillis: 999_999}},
		},
		{
			name:      "size mismatch pulls",
			events:    []gs.FileEvent{change(1, "a", "x.txt", 3, 0)},
			manifest:  []gs.ManifestEntry{{Path: "x.txt", Size: 7}},
			wantPulls: []string{"x.txt"},
		},
		{
			name:        "tombstone present locally deletes",
			events:      []gs.FileEvent{change(1, "a", "x.txt", 3, 0), del(2, "x.txt")},
			manifest:    []gs.ManifestEntry{{Path: "x.txt", Size: 3}},
			wantDeletes: []string{"x.txt"},
		},
		{
			name:     "tombstone absent locally needs nothing",
			events:   []gs.FileEvent{change(1, "a", "x.txt", 3, 0), del(2, "x.txt")},
			manifest: []gs.ManifestEntry{},
		},
		{
			name:     "local path without history is left alone",
			events:   []gs.FileEvent{},
			manifest: []gs.ManifestEntry{{Path: "local-only.txt", Size: 10}},
		},
		{
			name:      "filter hides excluded paths",
			events:    []gs.FileEvent{change(1, "a", ".git/HEAD", 3, 0), change(2, "a", "build/a.o", 3, 0), change(3, "a", "src/a.go", 3, 0)},
			filter:    pathid.Filter{ExcludeDotDirs: true, ExcludedDirs: []string{"build"}},
			wantPulls: []string{"src/a.go"},
		},
		{
			name:      "pulls sorted by path",
			events:    []gs.FileEvent{change(1, "a", "b.txt", 1, 0), change(2, "a", "a.txt", 1, 0), change(3, "a", "c/d.txt", 1, 0)},
			wantPulls: []string{"a.txt", "b.txt", "c/d.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Plan(gs.Project(1, tt.events), tt.manifest, tt.filter)

			want := tt.wantPulls
			if want == nil {
				want = []string{}
			}
			if got := pullPaths(plan); !reflect.DeepEqual(got, want) {
				t.Errorf("pulls = %v, want %v", got, want)
			}
			want = tt.wantDeletes
			if want == nil {
				want = []string{}
			}
			if got := deletePaths(plan); !reflect.DeepEqual(got, want) {
				t.Errorf("deletes = %v, want %v", got, want)
			}
		})
	}
}

func TestPlan_ChecksumCatchesSameSizeEdit(t *testing.T) {
	ev := change(1, "a", "x.txt", 5, 0)
	ev.Checksum = testutil.SHA256Hex([]byte("hello"))
	state := gs.Project(1, []gs.FileEvent{ev})

	local := gs.ManifestEntry{Path: "x.txt", Size: 5, Checksum: testutil.SHA256Hex([]byte("jello"))}
	plan := Plan(state, []gs.ManifestEntry{local}, pathid.Filter{})
	if len(plan.Pulls) != 1 || plan.Pulls[0].Checksum != ev.Checksum {
		t.Errorf("Pulls = %+v, want pull of server checksum", plan.Pulls)
	}

	local.Checksum = ""
	plan = Plan(state, []gs.ManifestEntry{local}, pathid.Filter{})
	if len(plan.Pulls) != 0 {
		t.Errorf("Pulls = %+v, want none without a local checksum", plan.Pulls)
	}
}

func TestPlan_LastAcceptedWins(t *testing.T) {
	// client A wrote 120 bytes and was ingested first; client B wrote 95
	// bytes with an earlier wall clock and was ingested second.
	state := gs.Project(1, []gs.FileEvent{
		change(1, "A", "notes/a.md", 120, 2_000),
		change(2, "B", "notes/a.md", 95, 1_000),
	})

	planA := Plan(state, []gs.ManifestEntry{{Path: "notes/a.md", Size: 120}}, pathid.Filter{})
	if len(planA.Pulls) != 1 || planA.Pulls[0].ExpectedSize != 95 {
		t.Errorf("client A pulls = %+v, want pull of the 95 byte version", planA.Pulls)
	}

	planB := Plan(state, []gs.ManifestEntry{{Path: "notes/a.md", Size: 95}}, pathid.Filter{})
	if !planB.Empty() {
		t.Errorf("client B plan = %+v, want empty", planB)
	}
	if planA.Cursor != 2 || planB.Cursor != 2 {
		t.Errorf("cursors = %d, %d, want 2", planA.Cursor, planB.Cursor)
	}
}

func TestPlan_Convergence(t *testing.T) {
	events := []gs.FileEvent{
		change(1, "A", "a.txt", 1, 0),
		change(2, "B", "b.txt", 2, 0),
		change(3, "A", "c.txt", 3, 0),
		del(4, "b.txt"),
		change(5, "B", "a.txt", 11, 0),
	}
	state := gs.Project(1, events)

	manifests := map[string][]gs.ManifestEntry{
		"stale":   {{Path: "a.txt", Size: 1}, {Path: "b.txt", Size: 2}},
		"empty":   {},
		"current": {{Path: "a.txt", Size: 11}, {Path: "c.txt", Size: 3}},
	}

	for name, m := range manifests {
		t.Run(name, func(t *testing.T) {
			plan := Plan(state, m, pathid.Filter{})

			local := map[string]int64{}
			for _, e := range m {
				local[e.Path] = e.Size
			}
			for _, d := range plan.Deletes {
				delete(local, d.Path)
			}
			for _, p := range plan.Pulls {
				local[p.Path] = p.ExpectedSize
			}

			want := map[string]int64{"a.txt": 11, "c.txt": 3}
			if !reflect.DeepEqual(local, want) {
				t.Errorf("after applying plan = %v, want %v", local, want)
			}
		})
	}
}

func TestEngine_Plan(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t)
	groupID := testutil.SeedMapping(t, db, "c1", "/notes")
	store := eventstore.New(db, nil, nil)
	engine := NewEngine(store, db, nil)

	data := "content"
	if _, err := store.Append(ctx, gs.CandidateEvent{
		GroupID:  groupID,
		ClientID: "c1",
		Path:     "docs/readme.md",
		Kind:     gs.EventChange,
		Size:     int64(len(data)),
		Checksum: testutil.SHA256Hex([]byte(data)),
	}); err != nil {
		t.Fatal(err)
	}

	t.Run("plans against current state", func(t *testing.T) {
		plan, err := engine.Plan(ctx, "c1", groupID, nil)
		if err != nil {
			t.Fatalf("Plan() error = %v", err)
		}
		if len(plan.Pulls) != 1 || plan.Pulls[0].Path != "docs/readme.md" || plan.Cursor != 1 {
			t.Errorf("Plan() = %+v", plan)
		}
	})

	t.Run("canonicalizes manifest paths", func(t *testing.T) {
		manifest := []gs.ManifestEntry{{Path: `docs\readme.md`, Size: int64(len(data))}}
		plan, err := engine.Plan(ctx, "c1", groupID, manifest)
		if err != nil {
			t.Fatalf("Plan() error = %v", err)
		}
		if !plan.Empty() {
			t.Errorf("Plan() = %+v, want empty", plan)
		}
	})

	t.Run("rejects traversal", func(t *testing.T) {
		_, err := engine.Plan(ctx, "c1", groupID, []gs.ManifestEntry{{Path: "../secret", Size: 1}})
		if !errors.Is(err, gs.ErrPathTraversal) {
			t.Errorf("Plan() error = %v, want ErrPathTraversal", err)
		}
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		_, err := engine.Plan(ctx, "c1", groupID, []gs.ManifestEntry{{Path: "a"}, {Path: "./a"}})
		if !errors.Is(err, gs.ErrInvalidEvent) {
			t.Errorf("Plan() error = %v, want ErrInvalidEvent", err)
		}
	})

	t.Run("unmapped client", func(t *testing.T) {
		if _, err := engine.Plan(ctx, "ghost", groupID, nil); !errors.Is(err, gs.ErrUnknownGroup) {
			t.Errorf("Plan() error = %v, want ErrUnknownGroup", err)
		}
	})
}
