package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"groupsync/internal/database/migrations"
	"groupsync/internal/database/sqlc"
	"groupsync/internal/gs"
)

// SQLiteDatabase implements gs.Database on SQLite.
type SQLiteDatabase struct {
	db      *sql.DB
	queries *sqlc.Queries
	idgen   gs.IDGenerator
	path    string
}

// NewSQLiteDatabase opens path (a file or ":memory:") and returns a database
// that still needs migrating.
func NewSQLiteDatabase(path string, idgen gs.IDGenerator) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	s := NewSQLiteDatabaseFromDB(db, idgen)
	s.path = path
	return s, nil
}

// NewSQLiteDatabaseFromDB wraps an existing connection. The caller is
// responsible for configuring it.
func NewSQLiteDatabaseFromDB(db *sql.DB, idgen gs.IDGenerator) *SQLiteDatabase {
	if idgen == nil {
		idgen = gs.UUIDGenerator{}
	}
	return &SQLiteDatabase{
		db:      db,
		queries: sqlc.New(db),
		idgen:   idgen,
	}
}

// OpenConnection opens a SQLite connection with foreign keys enforced.
// The pool is limited to one connection: writes are serialized, which makes
// per-group sequence assignment a total order, and ":memory:" databases stay
// a single database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}
	return db, nil
}

// storeErr attaches gs.ErrStore to a persistence failure.
func storeErr(action string, err error) error {
	return fmt.Errorf("%s: %w: %w", action, gs.ErrStore, err)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Client operations

func (s *SQLiteDatabase) UpsertClient(ctx context.Context, c *gs.Client) (*gs.Client, error) {
	id := c.ID
	if id == "" {
		id = s.idgen.New()
	}

	err := s.queries.UpsertClient(ctx, sqlc.UpsertClientParams{
		ID:                id,
		HostName:          c.HostName,
		MinPollIntervalMs: c.MinPollIntervalMs,
	})
	if err != nil {
		return nil, storeErr("upserting client", err)
	}

	row, err := s.queries.GetClient(ctx, id)
	if err != nil {
		return nil, storeErr("reading client", err)
	}
	return toClient(row), nil
}

func (s *SQLiteDatabase) FindClient(ctx context.Context, id string) (*gs.Client, error) {
	row, err := s.queries.GetClient(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storeErr("finding client", err)
	}
	return toClient(row), nil
}

// Group operations

func (s *SQLiteDatabase) CreateGroup(ctx context.Context, name string) (*gs.ServerWatchGroup, error) {
	res, err := s.queries.InsertGroup(ctx, name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: group %q already exists", gs.ErrGroupConflict, name)
		}
		return nil, storeErr("inserting group", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storeErr("reading group id", err)
	}
	return s.FindGroupByID(ctx, id)
}

func (s *SQLiteDatabase) FindGroupByID(ctx context.Context, id int64) (*gs.ServerWatchGroup, error) {
	row, err := s.queries.GetGroupByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storeErr("finding group", err)
	}
	return toGroup(row), nil
}

func (s *SQLiteDatabase) FindGroupByName(ctx context.Context, name string) (*gs.ServerWatchGroup, error) {
	row, err := s.queries.GetGroupByName(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storeErr("finding group by name", err)
	}
	return toGroup(row), nil
}

func (s *SQLiteDatabase) ListGroups(ctx context.Context) ([]*gs.ServerWatchGroup, error) {
	rows, err := s.queries.ListGroups(ctx)
	if err != nil {
		return nil, storeErr("listing groups", err)
	}
	groups := make([]*gs.ServerWatchGroup, len(rows))
	for i, row := range rows {
		groups[i] = toGroup(row)
	}
	return groups, nil
}

func (s *SQLiteDatabase) RenameGroup(ctx context.Context, id int64, name string) (*gs.ServerWatchGroup, error) {
	n, err := s.queries.RenameGroup(ctx, sqlc.RenameGroupParams{Name: name, ID: id})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: group %q already exists", gs.ErrGroupConflict, name)
		}
		return nil, storeErr("renaming group", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %d", gs.ErrUnknownGroup, id)
	}
	return s.FindGroupByID(ctx, id)
}

// Mapping operations

func (s *SQLiteDatabase) SaveMapping(ctx context.Context, m *gs.ClientWatchGroup) (*gs.ClientWatchGroup, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("starting transaction", err)
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)

	byGroup, err := findMapping(qtx.GetMappingByClientAndGroup(ctx, sqlc.GetMappingByClientAndGroupParams{
		ClientID:           m.ClientID,
		ServerWatchGroupID: m.ServerWatchGroupID,
	}))
	if err != nil {
		return nil, storeErr("finding mapping by group", err)
	}
	byPath, err := findMapping(qtx.GetMappingByClientAndPath(ctx, sqlc.GetMappingByClientAndPathParams{
		ClientID:  m.ClientID,
		LocalPath: m.LocalPath,
	}))
	if err != nil {
		return nil, storeErr("finding mapping by path", err)
	}

	var id int64
	switch {
	case byGroup == nil && byPath == nil:
		res, err := qtx.InsertMapping(ctx, sqlc.InsertMappingParams{
			ClientID:           m.ClientID,
			LocalPath:          m.LocalPath,
			ExcludeDotDirs:     m.ExcludeDotDirs,
			ServerWatchGroupID: m.ServerWatchGroupID,
		})
		if err != nil {
			return nil, storeErr("inserting mapping", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return nil, storeErr("reading mapping id", err)
		}

	case byGroup != nil && byPath != nil && byGroup.ID == byPath.ID:
		id = byGroup.ID
		err := qtx.UpdateMappingExcludeDotDirs(ctx, sqlc.UpdateMappingExcludeDotDirsParams{
			ExcludeDotDirs: m.ExcludeDotDirs,
			ID:             id,
		})
		if err != nil {
			return nil, storeErr("updating mapping", err)
		}
		if err := qtx.DeleteExcludedDirs(ctx, id); err != nil {
			return nil, storeErr("clearing excluded dirs", err)
		}

	case byGroup != nil:
		return nil, fmt.Errorf("%w: client already maps %s to this group", gs.ErrGroupConflict, byGroup.LocalPath)
	default:
		return nil, fmt.Errorf("%w: %s is already mapped to group %d", gs.ErrGroupConflict, byPath.LocalPath, byPath.ServerWatchGroupID)
	}

	for _, dir := range m.ExcludedDirs {
		err := qtx.InsertExcludedDir(ctx, sqlc.InsertExcludedDirParams{ClientWatchGroupID: id, Path: dir})
		if err != nil {
			return nil, storeErr("inserting excluded dir", err)
		}
	}

	row, err := qtx.GetMapping(ctx, id)
	if err != nil {
		return nil, storeErr("reading mapping", err)
	}
	saved, err := s.withExcludedDirs(ctx, qtx, row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("committing transaction", err)
	}
	return saved, nil
}

func findMapping(row sqlc.ClientWatchGroup, err error) (*sqlc.ClientWatchGroup, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (s *SQLiteDatabase) FindMapping(ctx context.Context, clientID string, groupID int64) (*gs.ClientWatchGroup, error) {
	row, err := findMapping(s.queries.GetMappingByClientAndGroup(ctx, sqlc.GetMappingByClientAndGroupParams{
		ClientID:           clientID,
		ServerWatchGroupID: groupID,
	}))
	if err != nil {
		return nil, storeErr("finding mapping", err)
	}
	if row == nil {
		return nil, nil
	}
	return s.withExcludedDirs(ctx, s.queries, *row)
}

func (s *SQLiteDatabase) FindMappingByPath(ctx context.Context, clientID, localPath string) (*gs.ClientWatchGroup, error) {
	row, err := findMapping(s.queries.GetMappingByClientAndPath(ctx, sqlc.GetMappingByClientAndPathParams{
		ClientID:  clientID,
		LocalPath: localPath,
	}))
	if err != nil {
		return nil, storeErr("finding mapping by path", err)
	}
	if row == nil {
		return nil, nil
	}
	return s.withExcludedDirs(ctx, s.queries, *row)
}

func (s *SQLiteDatabase) ListMappings(ctx context.Context, clientID string) ([]*gs.ClientWatchGroup, error) {
	rows, err := s.queries.ListMappingsByClient(ctx, clientID)
	if err != nil {
		return nil, storeErr("listing mappings", err)
	}
	mappings := make([]*gs.ClientWatchGroup, 0, len(rows))
	for _, row := range rows {
		m, err := s.withExcludedDirs(ctx, s.queries, row)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

func (s *SQLiteDatabase) DeleteMapping(ctx context.Context, clientID string, id int64) (bool, error) {
	n, err := s.queries.DeleteMapping(ctx, sqlc.DeleteMappingParams{ID: id, ClientID: clientID})
	if err != nil {
		return false, storeErr("deleting mapping", err)
	}
	return n > 0, nil
}

func (s *SQLiteDatabase) withExcludedDirs(ctx context.Context, q *sqlc.Queries, row sqlc.ClientWatchGroup) (*gs.ClientWatchGroup, error) {
	dirs, err := q.ListExcludedDirs(ctx, row.ID)
	if err != nil {
		return nil, storeErr("listing excluded dirs", err)
	}
	m := toMapping(row)
	m.ExcludedDirs = dirs
	return m, nil
}

// Event operations

func (s *SQLiteDatabase) AppendEvent(ctx context.Context, e *gs.FileEvent) (*gs.FileEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("starting transaction", err)
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)

	if _, err := qtx.GetClient(ctx, e.ClientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", gs.ErrUnknownClient, e.ClientID)
		}
		return nil, storeErr("checking client", err)
	}
	if _, err := qtx.GetGroupByID(ctx, e.GroupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", gs.ErrUnknownGroup, e.GroupID)
		}
		return nil, storeErr("checking group", err)
	}

	seq, err := qtx.NextEventSequence(ctx, e.GroupID)
	if err != nil {
		return nil, storeErr("assigning sequence", err)
	}

	id := s.idgen.New()
	err = qtx.InsertFileEvent(ctx, sqlc.InsertFileEventParams{
		ID:                 id,
		Sequence:           seq,
		ServerWatchGroupID: e.GroupID,
		ClientID:           e.ClientID,
		RelativePath:       e.Path,
		Size:               e.Size,
		UtcMillis:          e.UTCMillis,
		EventType:          string(e.Kind),
		ContentChecksum:    sql.NullString{String: e.Checksum, Valid: e.Checksum != ""},
	})
	if err != nil {
		return nil, storeErr("inserting event", err)
	}

	row, err := qtx.GetFileEvent(ctx, id)
	if err != nil {
		return nil, storeErr("reading event", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("committing transaction", err)
	}
	ev := toEvent(row)
	return &ev, nil
}

func (s *SQLiteDatabase) ListEventsSince(ctx context.Context, groupID, cursor int64) ([]gs.FileEvent, error) {
	rows, err := s.queries.ListEventsSince(ctx, sqlc.ListEventsSinceParams{
		ServerWatchGroupID: groupID,
		Sequence:           cursor,
	})
	if err != nil {
		return nil, storeErr("listing events", err)
	}
	return toEvents(rows), nil
}

func (s *SQLiteDatabase) ListPathEvents(ctx context.Context, groupID int64, path string) ([]gs.FileEvent, error) {
	rows, err := s.queries.ListPathEvents(ctx, sqlc.ListPathEventsParams{
		ServerWatchGroupID: groupID,
		RelativePath:       path,
	})
	if err != nil {
		return nil, storeErr("listing path events", err)
	}
	return toEvents(rows), nil
}

// Maintenance

// MigrateUp applies pending schema migrations.
func (s *SQLiteDatabase) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the database schema is up to date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// MigrationStatus reports the schema version against the embedded migrations.
func (s *SQLiteDatabase) MigrationStatus() (migrations.Status, error) {
	return migrations.ReadStatus(s.db)
}

// Path returns the file the database was opened from.
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// BackupTo writes a consistent copy of the database to destPath.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return storeErr("backing up database", err)
	}
	return nil
}

func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}

var _ gs.Database = (*SQLiteDatabase)(nil)
