// Package migration applies the versioned PostgreSQL schema with
// golang-migrate and scaffolds new migration files.
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// Source says where migration files are read from: an fs.FS such as the
// embedded migrations package, or a directory on disk when Dir is set.
type Source struct {
	FS  fs.FS
	Dir string
}

func (s Source) String() string {
	if s.Dir != "" {
		return "file://" + s.Dir
	}
	return "embedded"
}

// Status is the schema version recorded in the database
type Status struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

// Applied reports whether any migration has run
func (s Status) Applied() bool {
	return s.Version > 0
}

// Migrator runs migrations against one PostgreSQL database
type Migrator struct {
	m      *migrate.Migrate
	logger *zap.Logger
}

// Open prepares a Migrator for db reading from src
func Open(db *sql.DB, src Source, logger *zap.Logger) (*Migrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("postgres migration driver: %w", err)
	}

	var m *migrate.Migrate
	if src.Dir != "" {
		m, err = migrate.NewWithDatabaseInstance(src.String(), "postgres", driver)
	} else {
		if src.FS == nil {
			return nil, errors.New("migration source has neither FS nor Dir")
		}
		files, ferr := iofs.New(src.FS, ".")
		if ferr != nil {
			return nil, fmt.Errorf("open embedded migrations: %w", ferr)
		}
		m, err = migrate.NewWithInstance("iofs", files, "postgres", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("init migrate from %s: %w", src, err)
	}
	return &Migrator{m: m, logger: logger.Named("migrate").With(zap.Stringer("source", src))}, nil
}

// Up applies every pending migration
func (m *Migrator) Up() error {
	return m.run("up", m.m.Up)
}

// Down rolls back every applied migration
func (m *Migrator) Down() error {
	return m.run("down", m.m.Down)
}

// Steps applies n migrations forward, or -n backward when n is negative
func (m *Migrator) Steps(n int) error {
	return m.run(fmt.Sprintf("steps %+d", n), func() error { return m.m.Steps(n) })
}

// Force records version as current and clean without running anything.
// It clears the dirty flag left by a failed migration.
func (m *Migrator) Force(version int) error {
	m.logger.Warn("Forcing schema version", zap.Int("version", version))
	if err := m.m.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Status returns the current schema version
func (m *Migrator) Status() (Status, error) {
	v, dirty, err := m.m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return Status{}, nil
	case err != nil:
		return Status{}, fmt.Errorf("read schema version: %w", err)
	}
	return Status{Version: v, Dirty: dirty}, nil
}

// Close releases the source and the database driver
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

// run executes op treating ErrNoChange as success and logs the resulting version
func (m *Migrator) run(op string, fn func() error) error {
	m.logger.Info("Migrating", zap.String("op", op))
	err := fn()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("Schema already current", zap.String("op", op))
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", op, err)
	}
	st, err := m.Status()
	if err != nil {
		return err
	}
	m.logger.Info("Migration finished", zap.String("op", op), zap.Uint("version", st.Version), zap.Bool("dirty", st.Dirty))
	return nil
}
