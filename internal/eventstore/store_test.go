package eventstore

import (
	"context"
	"errors"
	"testing"

	"groupsync/internal/database"
	"groupsync/internal/gs"
	"groupsync/internal/testutil"
)

type fakeContent map[string]bool

func (f fakeContent) HasContent(_ context.Context, checksum string) (bool, error) {
	return f[checksum], nil
}

func newStore(t *testing.T) (*Store, *database.SQLiteDatabase, int64) {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	groupID := testutil.SeedMapping(t, db, "c1", "/home/c1/notes")
	return New(db, nil, gs.NewNopLogger()), db, groupID
}

func change(groupID int64, path string, data string) gs.CandidateEvent {
	return gs.CandidateEvent{
		GroupID:   groupID,
		ClientID:  "c1",
		Path:      path,
		Kind:      gs.EventChange,
		Size:      int64(len(data)),
		UTCMillis: 1_700_000_000_000,
		Checksum:  testutil.SHA256Hex([]byte(data)),
	}
}

func TestStore_Append(t *testing.T) {
	ctx := context.Background()
	s, _, groupID := newStore(t)

	ev, err := s.Append(ctx, change(groupID, `notes\a.md`, "hello"))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if ev.Sequence != 1 {
		t.Errorf("Sequence = %d, want 1", ev.Sequence)
	}
	if ev.Path != "notes/a.md" {
		t.Errorf("Path = %q, want canonical notes/a.md", ev.Path)
	}

	ev, err = s.Append(ctx, gs.CandidateEvent{
		GroupID:  groupID,
		ClientID: "c1",
		Path:     "notes/a.md",
		Kind:     gs.EventDelete,
		Size:     99,
		Checksum: "ignored",
	})
	if err != nil {
		t.Fatalf("Append(delete) error = %v", err)
	}
	if ev.Sequence != 2 || ev.Size != 0 || ev.Checksum != "" {
		t.Errorf("delete event = %+v, want sequence 2 with no content", ev)
	}
}

func TestStore_Validate(t *testing.T) {
	ctx := context.Background()
	s, db, groupID := newStore(t)

	if _, err := db.UpsertClient(ctx, &gs.Client{ID: "unmapped", HostName: "h"}); err != nil {
		t.Fatal(err)
	}
	other, err := db.CreateGroup(ctx, "other")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		mutate  func(*gs.CandidateEvent)
		wantErr []error
	}{
		{
			name:    "parent traversal",
			mutate:  func(c *gs.CandidateEvent) { c.Path = "../../etc/passwd" },
			wantErr: []error{gs.ErrInvalidEvent, gs.ErrPathTraversal},
		},
		{
			name:    "absolute path",
			mutate:  func(c *gs.CandidateEvent) { c.Path = "/etc/passwd" },
			wantErr: []error{gs.ErrInvalidEvent, gs.ErrPathTraversal},
		},
		{
			name:    "empty path",
			mutate:  func(c *gs.CandidateEvent) { c.Path = "" },
			wantErr: []error{gs.ErrInvalidEvent},
		},
		{
			name:    "unknown kind",
			mutate:  func(c *gs.CandidateEvent) { c.Kind = "rename" },
			wantErr: []error{gs.ErrInvalidEvent},
		},
		{
			name:    "negative millis",
			mutate:  func(c *gs.CandidateEvent) { c.UTCMillis = -1 },
			wantErr: []error{gs.ErrInvalidEvent},
		},
		{
			name:    "zero size metadata change",
			mutate:  func(c *gs.CandidateEvent) { c.Size = 0 },
			wantErr: []error{gs.ErrInvalidEvent},
		},
		{
			name:    "missing checksum",
			mutate:  func(c *gs.CandidateEvent) { c.Checksum = "" },
			wantErr: []error{gs.ErrInvalidEvent},
		},
		{
			name:    "malformed checksum",
			mutate:  func(c *gs.CandidateEvent) { c.Checksum = "xyz" },
			wantErr: []error{gs.ErrInvalidEvent},
		},
		{
			name:    "unknown client",
			mutate:  func(c *gs.CandidateEvent) { c.ClientID = "ghost" },
			wantErr: []error{gs.ErrUnknownClient},
		},
		{
			name:    "unknown group",
			mutate:  func(c *gs.CandidateEvent) { c.GroupID = 9999 },
			wantErr: []error{gs.ErrUnknownGroup},
		},
		{
			name:    "client not mapped",
			mutate:  func(c *gs.CandidateEvent) { c.ClientID = "unmapped" },
			wantErr: []error{gs.ErrUnknownGroup},
		},
		{
			name:    "group the client is not mapped to",
			mutate:  func(c *gs.CandidateEvent) { c.GroupID = other.ID },
			wantErr: []error{gs.ErrUnknownGroup},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := change(groupID, "notes/a.md", "hello")
			tt.mutate(&c)

			if _, err := s.Append(ctx, c); err == nil {
				t.Fatal("Append() error = nil, want rejection")
			} else {
				for _, want := range tt.wantErr {
					if !errors.Is(err, want) {
						t.Errorf("Append() error = %v, want %v", err, want)
					}
				}
				if !IsValidation(err) {
					t.Errorf("IsValidation(%v) = false", err)
				}
			}
		})
	}

	events, err := db.ListEventsSince(ctx, groupID, 0)
	if err != nil {
		t.Fatalf("ListEventsSince() error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("%d events appended by rejected candidates, want 0", len(events))
	}
}

func TestStore_Validate_StagedEmptyFile(t *testing.T) {
	s, _, groupID := newStore(t)

	c := change(groupID, "empty.txt", "")
	c.Staged = true
	if _, err := s.Append(context.Background(), c); err != nil {
		t.Errorf("Append(staged empty file) error = %v", err)
	}

	c = change(groupID, "negative.txt", "x")
	c.Staged = true
	c.Size = -1
	if _, err := s.Append(context.Background(), c); !errors.Is(err, gs.ErrInvalidEvent) {
		t.Errorf("Append(staged negative size) error = %v, want ErrInvalidEvent", err)
	}
}

func TestStore_Validate_Filter(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t)
	if _, err := db.UpsertClient(ctx, &gs.Client{ID: "c1", HostName: "h"}); err != nil {
		t.Fatal(err)
	}
	g, _ := db.FindGroupByName(ctx, "default")
	if _, err := db.SaveMapping(ctx, &gs.ClientWatchGroup{
		ClientID:           "c1",
		LocalPath:          "/notes",
		ServerWatchGroupID: g.ID,
		ExcludeDotDirs:     true,
		ExcludedDirs:       []string{"build"},
	}); err != nil {
		t.Fatal(err)
	}
	s := New(db, nil, nil)

	for _, p := range []string{".obsidian/app.json", "build/out.bin", "sub/.git/HEAD"} {
		if _, err := s.Append(ctx, change(g.ID, p, "x")); !errors.Is(err, gs.ErrInvalidEvent) {
			t.Errorf("Append(%s) error = %v, want ErrInvalidEvent", p, err)
		}
	}
	if _, err := s.Append(ctx, change(g.ID, "buildings/plan.md", "x")); err != nil {
		t.Errorf("Append(buildings/plan.md) error = %v", err)
	}
}

func TestStore_Validate_ContentIndex(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t)
	groupID := testutil.SeedMapping(t, db, "c1", "/notes")

	stored := change(groupID, "a.md", "stored")
	s := New(db, fakeContent{stored.Checksum: true}, nil)

	if _, err := s.Append(ctx, stored); err != nil {
		t.Errorf("Append(known content) error = %v", err)
	}
	if _, err := s.Append(ctx, change(groupID, "b.md", "never uploaded")); !errors.Is(err, gs.ErrInvalidEvent) {
		t.Errorf("Append(unknown content) error = %v, want ErrInvalidEvent", err)
	}
}

func TestStore_Idempotence(t *testing.T) {
	ctx := context.Background()
	s, _, groupID := newStore(t)

	c := change(groupID, "notes/a.md", "same bytes")
	if _, err := s.Append(ctx, c); err != nil {
		t.Fatal(err)
	}
	before, err := s.CurrentState(ctx, groupID)
	if err != nil {
		t.Fatal(err)
	}

	again, err := s.Append(ctx, c)
	if err != nil {
		t.Fatalf("second Append() error = %v", err)
	}
	if again.Sequence != 2 {
		t.Errorf("resubmitted Sequence = %d, want 2", again.Sequence)
	}

	after, err := s.CurrentState(ctx, groupID)
	if err != nil {
		t.Fatal(err)
	}
	if len(after.Entries) != len(before.Entries) {
		t.Fatalf("len(Entries) = %d, want %d", len(after.Entries), len(before.Entries))
	}
	b, a := before.Live("notes/a.md"), after.Live("notes/a.md")
	if a == nil || a.Size != b.Size || a.Checksum != b.Checksum {
		t.Errorf("effective content changed: before %+v after %+v", b, a)
	}
}

func TestStore_Tombstones(t *testing.T) {
	ctx := context.Background()
	s, _, groupID := newStore(t)

	if _, err := s.Append(ctx, change(groupID, "p.txt", "v1")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Append(ctx, gs.CandidateEvent{GroupID: groupID, ClientID: "c1", Path: "p.txt", Kind: gs.EventDelete}); err != nil {
		t.Fatal(err)
	}

	state, err := s.CurrentState(ctx, groupID)
	if err != nil {
		t.Fatal(err)
	}
	if state.Live("p.txt") != nil {
		t.Error("p.txt live after delete")
	}
	if ev, ok := state.Entries["p.txt"]; !ok || ev.Kind != gs.EventDelete {
		t.Errorf("tombstone missing: %+v", ev)
	}

	if _, err := s.Append(ctx, change(groupID, "p.txt", "version two")); err != nil {
		t.Fatal(err)
	}
	state, err = s.CurrentState(ctx, groupID)
	if err != nil {
		t.Fatal(err)
	}
	live := state.Live("p.txt")
	if live == nil || live.Size != int64(len("version two")) {
		t.Errorf("Live(p.txt) = %+v, want reintroduced content", live)
	}
	if state.Cursor != 3 {
		t.Errorf("Cursor = %d, want 3", state.Cursor)
	}
}

func TestStore_CurrentState(t *testing.T) {
	ctx := context.Background()
	s, _, groupID := newStore(t)

	t.Run("unknown group", func(t *testing.T) {
		if _, err := s.CurrentState(ctx, 4242); !errors.Is(err, gs.ErrUnknownGroup) {
			t.Errorf("CurrentState() error = %v, want ErrUnknownGroup", err)
		}
	})

	t.Run("returned state is a copy", func(t *testing.T) {
		if _, err := s.Append(ctx, change(groupID, "a.md", "a")); err != nil {
			t.Fatal(err)
		}
		first, err := s.CurrentState(ctx, groupID)
		if err != nil {
			t.Fatal(err)
		}
		delete(first.Entries, "a.md")

		second, err := s.CurrentState(ctx, groupID)
		if err != nil {
			t.Fatal(err)
		}
		if second.Live("a.md") == nil {
			t.Error("mutating a returned state changed the cache")
		}
	})
}

func TestStore_History(t *testing.T) {
	ctx := context.Background()
	s, _, groupID := newStore(t)

	for _, c := range []gs.CandidateEvent{
		change(groupID, "a.md", "1"),
		change(groupID, "b.md", "2"),
		change(groupID, "a.md", "33"),
	} {
		if _, err := s.Append(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	since, err := s.HistorySince(ctx, groupID, 1)
	if err != nil {
		t.Fatalf("HistorySince() error = %v", err)
	}
	if len(since) != 2 || since[0].Sequence != 2 || since[1].Sequence != 3 {
		t.Errorf("HistorySince(1) = %+v, want sequences 2 and 3", since)
	}

	if _, err := s.HistorySince(ctx, groupID, -1); !errors.Is(err, gs.ErrInvalidRequest) {
		t.Errorf("HistorySince(-1) error = %v, want ErrInvalidRequest", err)
	}

	path, err := s.PathHistory(ctx, groupID, "./a.md")
	if err != nil {
		t.Fatalf("PathHistory() error = %v", err)
	}
	if len(path) != 2 || path[1].Size != 2 {
		t.Errorf("PathHistory(a.md) = %+v", path)
	}

	if _, err := s.PathHistory(ctx, groupID, "../a.md"); !errors.Is(err, gs.ErrPathTraversal) {
		t.Errorf("PathHistory(../a.md) error = %v, want ErrPathTraversal", err)
	}
}
