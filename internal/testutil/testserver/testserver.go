// Package testserver runs the full server stack over httptest.
package testserver

import (
	"net/http/httptest"
	"testing"

	"groupsync/internal/database"
	"groupsync/internal/eventstore"
	"groupsync/internal/reconcile"
	"groupsync/internal/registry"
	"groupsync/internal/server"
	"groupsync/internal/staging"
	"groupsync/internal/testutil"
	"groupsync/internal/transfer"
	"groupsync/internal/vault"
)

// Stack is a running server backed by an in-memory database and vault.
type Stack struct {
	URL    string
	DB     *database.SQLiteDatabase
	Vault  *vault.MemoryVault
	Events *eventstore.Store
	Clock  *testutil.StubClock
	Server *httptest.Server
}

// New starts a Stack that accepts uploads up to maxUpload bytes. It is shut
// down when the test completes.
func New(t *testing.T, maxUpload int64) *Stack {
	t.Helper()

	db := testutil.NewTestDatabase(t)
	v := vault.NewMemoryVault()
	clock := testutil.FixedClock()
	events := eventstore.New(db, v, nil)
	reg := registry.New(db, nil)
	planner := reconcile.NewEngine(events, db, nil)
	transfers := transfer.NewManager(events, staging.NewMemoryStagingArea(16*maxUpload), v, clock, nil, maxUpload)

	srv := server.New(reg, events, planner, transfers, nil, "test")
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &Stack{URL: ts.URL, DB: db, Vault: v, Events: events, Clock: clock, Server: ts}
}
