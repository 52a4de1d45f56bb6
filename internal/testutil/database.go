package testutil

import (
	"context"
	"testing"

	"groupsync/internal/database"
	"groupsync/internal/gs"
)

// NewTestDatabase creates a migrated in-memory SQLite database with stub ids.
// The database is closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", NewPrefixedIDGenerator("ev"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		t.Fatalf("failed to migrate database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// SeedMapping registers clientID and maps localPath to the default group.
// It returns the default group's id.
func SeedMapping(t *testing.T, db gs.RegistryStore, clientID, localPath string) int64 {
	t.Helper()
	ctx := context.Background()

	if _, err := db.UpsertClient(ctx, &gs.Client{ID: clientID, HostName: clientID}); err != nil {
		t.Fatalf("UpsertClient() error = %v", err)
	}
	g, err := db.FindGroupByName(ctx, "default")
	if err != nil || g == nil {
		t.Fatalf("FindGroupByName(default) = %v, %v", g, err)
	}
	if _, err := db.SaveMapping(ctx, &gs.ClientWatchGroup{
		ClientID:           clientID,
		LocalPath:          localPath,
		ServerWatchGroupID: g.ID,
	}); err != nil {
		t.Fatalf("SaveMapping() error = %v", err)
	}
	return g.ID
}
