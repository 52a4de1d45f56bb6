package gs

import "context"

// RegistryStore persists clients, groups and client mappings.
// Lookups return nil and no error when the record does not exist.
type RegistryStore interface {
	// UpsertClient inserts the client or updates host name and poll interval.
	UpsertClient(ctx context.Context, c *Client) (*Client, error)

	FindClient(ctx context.Context, id string) (*Client, error)

	// CreateGroup fails with ErrGroupConflict when the name is taken.
	CreateGroup(ctx context.Context, name string) (*ServerWatchGroup, error)
	FindGroupByID(ctx context.Context, id int64) (*ServerWatchGroup, error)
	FindGroupByName(ctx context.Context, name string) (*ServerWatchGroup, error)
	ListGroups(ctx context.Context) ([]*ServerWatchGroup, error)
	RenameGroup(ctx context.Context, id int64, name string) (*ServerWatchGroup, error)

	// SaveMapping inserts a mapping or updates the exclusion settings of the
	// mapping that already owns both (client, group) and (client, local path).
	// Any other overlap fails with ErrGroupConflict. Runs in one transaction.
	SaveMapping(ctx context.Context, m *ClientWatchGroup) (*ClientWatchGroup, error)

	FindMapping(ctx context.Context, clientID string, groupID int64) (*ClientWatchGroup, error)
	FindMappingByPath(ctx context.Context, clientID, localPath string) (*ClientWatchGroup, error)
	ListMappings(ctx context.Context, clientID string) ([]*ClientWatchGroup, error)

	// DeleteMapping removes a mapping and, by cascade, its excluded dirs.
	// Reports whether a row was removed.
	DeleteMapping(ctx context.Context, clientID string, id int64) (bool, error)
}

// EventLog is the append-only store of FileEvents.
type EventLog interface {
	// AppendEvent assigns the next per-group sequence and inserts the event
	// in a single transaction. Missing client or group rows fail with
	// ErrUnknownClient or ErrUnknownGroup.
	AppendEvent(ctx context.Context, e *FileEvent) (*FileEvent, error)

	// ListEventsSince returns events with sequence > cursor, ascending.
	ListEventsSince(ctx context.Context, groupID, cursor int64) ([]FileEvent, error)

	// ListPathEvents returns the full history of one path, ascending.
	ListPathEvents(ctx context.Context, groupID int64, path string) ([]FileEvent, error)
}

// Database is the relational store behind the server.
type Database interface {
	RegistryStore
	EventLog

	// CheckMigrations verifies the schema is at the latest version.
	CheckMigrations() error

	Close() error
}
