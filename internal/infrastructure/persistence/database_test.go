package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pricedragon/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: conn, DriverName: "postgres"}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	require.NoError(t, err)
	return &Database{DB: gdb}, mock
}

func TestNewDatabase(t *testing.T) {
	t.Run("sqlite in memory migrates every table on one connection", func(t *testing.T) {
		db, err := NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, db.AutoMigrate())
		for _, table := range []string{"catalog_entries", "price_observations", "match_edges", "ingestion_runs"} {
			assert.True(t, db.DB.Migrator().HasTable(table), table)
		}

		stats, err := db.Stats()
		require.NoError(t, err)
		assert.Equal(t, 1, stats.MaxOpenConnections)
		assert.NoError(t, db.Ping(context.Background()))
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := NewDatabase(&config.DatabaseConfig{Driver: "oracle"})
		assert.ErrorContains(t, err, "unsupported database driver")
	})
}

func TestDatabase_PingAndClose(t *testing.T) {
	db, mock := newMockDatabase(t)

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()

	assert.NoError(t, db.Ping(context.Background()))
	assert.ErrorContains(t, db.Ping(context.Background()), "connection refused")
	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsPostgres(t *testing.T) {
	db, _ := newMockDatabase(t)
	assert.True(t, isPostgres(db.DB))

	lite, err := NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	defer lite.Close()
	assert.False(t, isPostgres(lite.DB))
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"translated", gorm.ErrDuplicatedKey, true},
		{"wrapped translated", errors.Join(errors.New("insert"), gorm.ErrDuplicatedKey), true},
		{"sqlite message", errors.New("UNIQUE constraint failed: catalog_entries.platform"), true},
		{"postgres message", errors.New(`ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)`), true},
		{"other", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}
