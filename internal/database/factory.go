package database

import (
	"fmt"
	"os"
	"path/filepath"

	"groupsync/internal/config"
	"groupsync/internal/gs"
)

// NewDatabaseFromConfig opens the database described by cfg. The schema is
// not migrated here.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, idgen gs.IDGenerator) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite database")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		return NewSQLiteDatabase(cfg.Path, idgen)
	case "memory":
		return NewSQLiteDatabase(":memory:", idgen)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
