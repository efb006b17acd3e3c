// Package persistence stores the catalog, the price ledger, match edges and
// run reports with GORM on PostgreSQL or SQLite.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pricedragon/backend/internal/infrastructure/config"
	"github.com/pricedragon/backend/internal/infrastructure/persistence/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database is an open GORM connection pool
type Database struct {
	DB *gorm.DB
}

// NewDatabase connects with gorm's own logging silenced
func NewDatabase(cfg *config.DatabaseConfig) (*Database, error) {
	return NewDatabaseWithLogger(cfg, logger.Default.LogMode(logger.Silent))
}

// NewDatabaseWithLogger connects, sizes the pool and pings. Timestamps are
// written in UTC and driver errors are translated to gorm's sentinels.
func NewDatabaseWithLogger(cfg *config.DatabaseConfig, gormLogger logger.Interface) (*Database, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		TranslateError:         true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", dialector.Name(), err)
	}
	d := &Database{DB: db}

	pool, err := d.sqlDB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		// one connection serialises writers and keeps ":memory:" shared
		pool.SetMaxOpenConns(1)
	} else {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
		pool.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
		pool.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
	}
	if err := pool.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s: %w", dialector.Name(), err)
	}
	return d, nil
}

func (d *Database) sqlDB() (*sql.DB, error) {
	pool, err := d.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	return pool, nil
}

// AutoMigrate creates or updates the tables of every model. PostgreSQL
// deployments run the SQL migrations instead.
func (d *Database) AutoMigrate() error {
	return d.DB.AutoMigrate(models.AllModels()...)
}

// Ping checks the connection within ctx
func (d *Database) Ping(ctx context.Context) error {
	pool, err := d.sqlDB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

// Stats returns the pool statistics
func (d *Database) Stats() (sql.DBStats, error) {
	pool, err := d.sqlDB()
	if err != nil {
		return sql.DBStats{}, err
	}
	return pool.Stats(), nil
}

// Close closes the pool
func (d *Database) Close() error {
	pool, err := d.sqlDB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// isPostgres reports whether the connection speaks the postgres dialect
func isPostgres(db *gorm.DB) bool {
	return db.Dialector != nil && db.Dialector.Name() == "postgres"
}

// isUniqueViolation reports whether err is a unique-constraint failure.
// TranslateError covers both dialects; the string checks catch drivers that
// surface the raw message.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "23505")
}
