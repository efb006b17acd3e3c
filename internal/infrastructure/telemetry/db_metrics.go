package telemetry

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetricsConfig tunes database metrics. Zero values mean 200ms and 15s.
type DBMetricsConfig struct {
	SlowQueryThreshold time.Duration
	PoolStatsInterval  time.Duration
}

// DBMetrics times every gorm statement and samples the connection pool
type DBMetrics struct {
	queries   *Counter
	latency   *Histogram
	slow      *Counter
	pool      *Gauge
	cfg       DBMetricsConfig
	logger    *zap.Logger
	sqlDB     *sql.DB
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewDBMetrics registers the database instruments on meter
func NewDBMetrics(meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.PoolStatsInterval <= 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}

	m := &DBMetrics{cfg: cfg, logger: logger.Named("db_metrics"), stop: make(chan struct{})}
	var err error
	if m.queries, err = NewCounter(meter, "db_query_total", "Database statements by operation and table", "{query}"); err != nil {
		return nil, err
	}
	if m.latency, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database statement latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.slow, err = NewCounter(meter, "db_slow_query_total", "Statements slower than the slow query threshold", "{query}"); err != nil {
		return nil, err
	}
	if m.pool, err = NewGauge(meter, "db_pool_connections", "Pool connections by state", "{connection}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordQuery records one statement. Operation is upper-cased; empty
// operation and table are reported as UNKNOWN and unknown.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, took time.Duration) {
	operation = strings.ToUpper(operation)
	if operation == "" {
		operation = "UNKNOWN"
	}
	if table == "" {
		table = "unknown"
	}
	op := AttrDBOperation.String(operation)
	m.queries.Inc(ctx, op, AttrDBTable.String(table))
	m.latency.RecordDuration(ctx, took, op)
	if took > m.cfg.SlowQueryThreshold {
		m.slow.Inc(ctx, AttrDBTable.String(table))
		m.logger.Debug("Slow statement", zap.String("operation", operation), zap.String("table", table), zap.Duration("took", took))
	}
}

// Instrument installs the timing callbacks on db and samples pool stats
// until ctx is done or Stop is called
func (m *DBMetrics) Instrument(ctx context.Context, db *gorm.DB) error {
	if err := db.Use(statementTimer{metrics: m}); err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	m.sqlDB = sqlDB
	m.samplePool(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.PoolStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.samplePool(ctx)
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (m *DBMetrics) samplePool(ctx context.Context) {
	s := m.sqlDB.Stats()
	for state, n := range map[string]int{"idle": s.Idle, "in_use": s.InUse, "max": s.MaxOpenConnections} {
		m.pool.Record(ctx, int64(n), AttrDBState.String(state))
	}
}

// Stop ends pool sampling. It may be called more than once.
func (m *DBMetrics) Stop() {
	m.closeOnce.Do(func() {
		close(m.stop)
		m.wg.Wait()
	})
}

// statementTimer is a gorm plugin wrapping each processor with start and
// finish callbacks
type statementTimer struct {
	metrics *DBMetrics
}

const startedAtKey = "db_metrics:started_at"

func (statementTimer) Name() string { return "db_metrics" }

type registrar interface {
	Register(name string, fn func(*gorm.DB)) error
}

func (t statementTimer) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		name          string
		operation     string
		before, after registrar
	}{
		{"create", "INSERT", cb.Create().Before("gorm:create"), cb.Create().After("gorm:create")},
		{"query", "SELECT", cb.Query().Before("gorm:query"), cb.Query().After("gorm:query")},
		{"update", "UPDATE", cb.Update().Before("gorm:update"), cb.Update().After("gorm:update")},
		{"delete", "DELETE", cb.Delete().Before("gorm:delete"), cb.Delete().After("gorm:delete")},
		{"row", "SELECT", cb.Row().Before("gorm:row"), cb.Row().After("gorm:row")},
		{"raw", "", cb.Raw().Before("gorm:raw"), cb.Raw().After("gorm:raw")},
	}
	for _, h := range hooks {
		if err := h.before.Register("db_metrics:start_"+h.name, t.start); err != nil {
			return err
		}
		if err := h.after.Register("db_metrics:finish_"+h.name, t.finish(h.operation)); err != nil {
			return err
		}
	}
	return nil
}

func (statementTimer) start(db *gorm.DB) {
	db.InstanceSet(startedAtKey, time.Now())
}

// finish records the statement. An empty operation is read from the SQL.
func (t statementTimer) finish(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(startedAtKey)
		if !ok {
			return
		}
		started, ok := v.(time.Time)
		if !ok {
			return
		}
		op := operation
		if op == "" {
			op = detectOperationType(db.Statement.SQL.String())
		}
		t.metrics.RecordQuery(db.Statement.Context, op, db.Statement.Table, time.Since(started))
	}
}

func detectOperationType(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "OTHER"
	}
	switch op := strings.ToUpper(fields[0]); op {
	case "SELECT", "INSERT", "UPDATE", "DELETE":
		return op
	default:
		return "OTHER"
	}
}
