package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/ingestion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func statement(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_Trace(t *testing.T) {
	ctx := context.Background()

	t.Run("errors are logged with the run id", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Warn)
		runID := uuid.New()

		l.Trace(ingestion.ContextWithRunID(ctx, runID), time.Now(), statement("INSERT INTO catalog_entries", 0), errors.New("duplicate key"))

		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, zapcore.ErrorLevel, entry.Level)
		assert.Equal(t, "SQL error", entry.Message)
		assert.Equal(t, "gorm", entry.LoggerName)
		assert.Equal(t, runID.String(), entry.ContextMap()["run_id"])
		assert.Equal(t, "INSERT INTO catalog_entries", entry.ContextMap()["sql"])
	})

	t.Run("record not found is ignored by default", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Info)

		l.Trace(ctx, time.Now(), statement("SELECT 1", 0), gormlogger.ErrRecordNotFound)

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "SQL", logs.All()[0].Message)
	})

	t.Run("record not found can be reported", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Error, WithIgnoreRecordNotFoundError(false))

		l.Trace(ctx, time.Now(), statement("SELECT 1", 0), gormlogger.ErrRecordNotFound)
		assert.Equal(t, 1, logs.FilterMessage("SQL error").Len())
	})

	t.Run("slow statements warn", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Warn, WithSlowThreshold(10*time.Millisecond))

		l.Trace(ctx, time.Now().Add(-50*time.Millisecond), statement("SELECT * FROM price_observations", 12), nil)

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
		assert.EqualValues(t, 12, logs.All()[0].ContextMap()["rows"])
	})

	t.Run("fast statements are quiet below info", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Warn)

		l.Trace(ctx, time.Now(), statement("SELECT 1", 1), nil)
		assert.Equal(t, 0, logs.Len())
	})

	t.Run("silent logs nothing", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Warn).LogMode(gormlogger.Silent)

		l.Trace(ctx, time.Now(), statement("SELECT 1", 1), errors.New("boom"))
		assert.Equal(t, 0, logs.Len())
	})
}

func TestGormLogger_Messages(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(zap.New(core), gormlogger.Warn)

	l.Info(context.Background(), "connected to %s", "sqlite")
	l.Warn(context.Background(), "pool at %d%%", 90)
	l.Error(context.Background(), "lost connection")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "pool at 90%", logs.All()[0].Message)
	assert.Equal(t, "lost connection", logs.All()[1].Message)
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("ERROR"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("warn"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("unknown"))
}
