package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"groupsync/internal/config"
	"groupsync/internal/database"
	"groupsync/internal/database/migrations"
	"groupsync/internal/encryption"
	"groupsync/internal/eventstore"
	"groupsync/internal/gs"
	"groupsync/internal/reconcile"
	"groupsync/internal/registry"
	"groupsync/internal/server"
	"groupsync/internal/staging"
	"groupsync/internal/transfer"
	"groupsync/internal/vault"
)

const shutdownTimeout = 10 * time.Second

// ServerApp is the sync server wired from config.
type ServerApp struct {
	cfg     *config.Config
	db      *database.SQLiteDatabase
	vault   gs.Vault
	staging gs.StagingArea
	handler http.Handler
	logger  gs.Logger
	logFile io.Closer
}

// NewServerApp opens the store, applies pending migrations and assembles the
// HTTP handler. passphrase is only called when content is encrypted. The
// caller must call Close when done.
func NewServerApp(ctx context.Context, cfg *config.Config, passphrase PassphraseFunc, version string) (*ServerApp, error) {
	logger, logFile, err := setupLogger(cfg, RoleServer)
	if err != nil {
		return nil, err
	}
	a := &ServerApp{cfg: cfg, logger: logger, logFile: logFile}
	if err := a.init(ctx, passphrase, version); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *ServerApp) init(ctx context.Context, passphrase PassphraseFunc, version string) error {
	sc := a.cfg.Server

	db, err := database.NewDatabaseFromConfig(sc.Database, gs.UUIDGenerator{})
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	a.db = db
	if err := db.MigrateUp(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	v, err := vault.NewVaultFromConfig(ctx, sc.Vault)
	if err != nil {
		return fmt.Errorf("creating vault: %w", err)
	}
	if err := v.ValidateSetup(ctx); err != nil {
		return fmt.Errorf("validating vault: %w", err)
	}
	v, err = a.encrypt(v, passphrase)
	if err != nil {
		return err
	}
	a.vault = v

	sa, err := staging.NewStagingAreaFromConfig(sc.Staging)
	if err != nil {
		return fmt.Errorf("creating staging area: %w", err)
	}
	a.staging = sa

	maxUpload := sc.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = config.DefaultMaxUploadBytes
	}

	events := eventstore.New(db, v, a.logger.With("component", "eventstore"))
	reg := registry.New(db, a.logger.With("component", "registry"))
	planner := reconcile.NewEngine(events, db, a.logger.With("component", "reconcile"))
	transfers := transfer.NewManager(events, sa, v, gs.RealClock{}, a.logger.With("component", "transfer"), maxUpload)

	a.handler = server.New(reg, events, planner, transfers, a.logger.With("component", "http"), version).Router()
	return nil
}

// encrypt wraps v when encryption is configured and unlocks it for reads.
func (a *ServerApp) encrypt(v gs.Vault, passphrase PassphraseFunc) (gs.Vault, error) {
	enc, err := encryption.NewEncryptorFromConfig(a.cfg.Server.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if enc == nil {
		return v, nil
	}
	if !enc.IsConfigured() {
		return nil, errors.New("encryption keys are missing: run `gs server keys init`")
	}

	ev := vault.NewEncryptedVault(v, enc, nil)
	p, err := passphrase("Passphrase: ")
	if err != nil {
		return nil, err
	}
	if err := ev.Unlock(p); err != nil {
		return nil, fmt.Errorf("unlocking encryption key: %w", err)
	}
	return ev, nil
}

// Handler is the server's HTTP handler.
func (a *ServerApp) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP until ctx is done, then shuts down gracefully.
func (a *ServerApp) Run(ctx context.Context) error {
	sc := a.cfg.Server
	addr := sc.ListenAddr
	if addr == "" {
		addr = config.DefaultListenAddr
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.handler,
		ReadTimeout:  sc.ReadTimeout(),
		WriteTimeout: sc.WriteTimeout(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close releases the database and the log file.
func (a *ServerApp) Close() error {
	var firstErr error
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// MigrateDatabase applies pending migrations, or with check only reports
// the schema status.
func MigrateDatabase(cfg *config.Config, check bool) (migrations.Status, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Server.Database, gs.UUIDGenerator{})
	if err != nil {
		return migrations.Status{}, fmt.Errorf("creating database: %w", err)
	}
	defer db.Close()

	if !check {
		if err := db.MigrateUp(); err != nil {
			return migrations.Status{}, fmt.Errorf("migrating database: %w", err)
		}
	}
	return db.MigrationStatus()
}

// BackupDatabase writes a consistent snapshot of the server database to dest.
func BackupDatabase(cfg *config.Config, dest string) error {
	db, err := database.NewDatabaseFromConfig(cfg.Server.Database, gs.UUIDGenerator{})
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	defer db.Close()

	if err := db.CheckMigrations(); err != nil {
		return fmt.Errorf("database schema out of date: %w", err)
	}
	return db.BackupTo(dest)
}

// InitKeys generates the age key pair used to encrypt vault content.
func InitKeys(cfg *config.Config, passphrase PassphraseFunc) error {
	ec := cfg.Server.Encryption
	if ec.Type == "" || ec.Type == "none" {
		ec.Type = "age"
	}
	enc, err := encryption.NewEncryptorFromConfig(ec)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if enc.IsConfigured() {
		return errors.New("encryption keys already exist")
	}

	p, err := passphrase("New passphrase: ")
	if err != nil {
		return err
	}
	confirm, err := passphrase("Repeat passphrase: ")
	if err != nil {
		return err
	}
	if p != confirm {
		return errors.New("passphrases do not match")
	}
	return enc.Setup(p)
}
