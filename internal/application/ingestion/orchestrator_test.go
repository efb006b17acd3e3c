package ingestion_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	appingest "github.com/pricedragon/backend/internal/application/ingestion"
	appmatching "github.com/pricedragon/backend/internal/application/matching"
	"github.com/pricedragon/backend/internal/domain/catalog"
	"github.com/pricedragon/backend/internal/domain/ingestion"
	"github.com/pricedragon/backend/internal/domain/matching"
	"github.com/pricedragon/backend/internal/domain/pricing"
	"github.com/pricedragon/backend/internal/domain/shared"
	"github.com/pricedragon/backend/internal/infrastructure/cache"
	"github.com/pricedragon/backend/internal/infrastructure/config"
	"github.com/pricedragon/backend/internal/infrastructure/persistence"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scrapedAt = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type harness struct {
	db           *persistence.Database
	store        *persistence.GormIdentityStore
	ledger       *persistence.GormPriceLedger
	runs         *persistence.GormRunReportRepository
	edges        *persistence.GormMatchEdgeRepository
	locker       *cache.InMemoryRunLocker
	orchestrator *appingest.Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		db:     db,
		store:  persistence.NewGormIdentityStore(db.DB),
		ledger: persistence.NewGormPriceLedger(db.DB),
		runs:   persistence.NewGormRunReportRepository(db.DB),
		edges:  persistence.NewGormMatchEdgeRepository(db.DB),
		locker: cache.NewInMemoryRunLocker(),
	}
	h.orchestrator = h.newOrchestrator(persistence.NewGormTransactionScope(db.DB), appingest.DefaultConfig())
	return h
}

func (h *harness) newOrchestrator(scope appingest.TransactionScope, cfg appingest.Config) *appingest.Orchestrator {
	return appingest.NewOrchestrator(ingestion.NewNormalizer(), scope, h.runs, h.locker, cfg, nil)
}

func (h *harness) entry(t *testing.T, platform, id string) *catalog.Entry {
	t.Helper()
	e, err := h.store.FindByNaturalKey(context.Background(), catalog.NaturalKey{Platform: platform, PlatformProductID: id})
	require.NoError(t, err)
	return e
}

func raw(platform, id, name, price string, at time.Time) ingestion.RawRecord {
	r := ingestion.RawRecord{
		Platform:  platform,
		Name:      name,
		URL:       "https://" + platform + ".example/item/" + id + "?session=secret",
		ScrapedAt: at,
	}
	if id != "" {
		r.PlatformProductID = ingestion.StringPtr(id)
	}
	if price != "" {
		r.Price = ingestion.StringPtr(price)
	}
	return r
}

func assertCountInvariant(t *testing.T, report *ingestion.RunReport) {
	t.Helper()
	if !report.Cancelled {
		assert.Equal(t, report.Total, report.Processed())
	}
	assert.Equal(t, report.ValidationErrors+report.Failed, len(report.Errors))
}

func TestOrchestrator_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("price drop updates the entry and appends history", func(t *testing.T) {
		h := newHarness(t)

		first, err := h.orchestrator.Run(ctx, "pchome", []ingestion.RawRecord{
			raw("pchome", "A1", "Widget Pro 128GB", "1000", scrapedAt),
		}, appingest.RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, first.Inserted)
		assert.Equal(t, 1, first.Observations)

		second, err := h.orchestrator.Run(ctx, "pchome", []ingestion.RawRecord{
			raw("pchome", "A1", "Widget Pro 128GB", "900", scrapedAt.Add(time.Hour)),
		}, appingest.RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, second.Updated)
		assert.Equal(t, 1, second.Observations)
		assertCountInvariant(t, second)

		entry := h.entry(t, "pchome", "A1")
		assert.True(t, entry.CurrentPrice.Decimal.Equal(decimal.NewFromInt(900)))

		history, err := h.ledger.History(ctx, entry.ID, pricing.Window{})
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.True(t, history[0].Price.Decimal.Equal(decimal.NewFromInt(1000)))
		assert.True(t, history[1].Price.Decimal.Equal(decimal.NewFromInt(900)))
		assert.Equal(t, second.ID, history[1].RunID)
	})

	t.Run("replaying a batch changes nothing", func(t *testing.T) {
		h := newHarness(t)
		batch := []ingestion.RawRecord{
			raw("pchome", "A1", "Widget Pro 128GB", "1000", scrapedAt),
			raw("pchome", "A2", "Widget Mini", "500", scrapedAt),
		}

		_, err := h.orchestrator.Run(ctx, "pchome", batch, appingest.RunOptions{})
		require.NoError(t, err)
		replay, err := h.orchestrator.Run(ctx, "pchome", batch, appingest.RunOptions{})
		require.NoError(t, err)

		assert.Equal(t, 2, replay.Unchanged)
		assert.Zero(t, replay.Inserted)
		assert.Zero(t, replay.Observations)

		count, err := h.store.Count(ctx, catalog.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		obs, err := h.ledger.CountForEntry(ctx, h.entry(t, "pchome", "A1").ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), obs)
	})

	t.Run("replaying boundary prices changes nothing", func(t *testing.T) {
		h := newHarness(t)
		batch := []ingestion.RawRecord{
			raw("pchome", "B1", "Precise Widget", "19.9999", scrapedAt),
			raw("pchome", "B2", "Large Widget", "12345678901.2345", scrapedAt),
			raw("pchome", "B3", "Cheap Widget", "0.0001", scrapedAt),
			raw("pchome", "B4", "Overly Precise Widget", "1.00000000000000001", scrapedAt),
			raw("pchome", "B5", "Exponent Widget", "1e50000000", scrapedAt),
		}

		first, err := h.orchestrator.Run(ctx, "pchome", batch, appingest.RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, 3, first.Inserted)
		assert.Equal(t, 2, first.ValidationErrors)

		replay, err := h.orchestrator.Run(ctx, "pchome", batch, appingest.RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, 3, replay.Unchanged)
		assert.Zero(t, replay.Updated)
		assert.Zero(t, replay.Observations)
		assert.Equal(t, 2, replay.ValidationErrors)
		for _, e := range replay.Errors {
			assert.Equal(t, string(ingestion.ReasonInvalidPrice), e.Reason)
		}
		assertCountInvariant(t, replay)

		entry := h.entry(t, "pchome", "B2")
		assert.Equal(t, "12345678901.2345", entry.CurrentPrice.Decimal.String())
	})

	t.Run("invalid records are counted with redacted snippets", func(t *testing.T) {
		h := newHarness(t)
		report, err := h.orchestrator.Run(ctx, "PChome", []ingestion.RawRecord{
			raw("pchome", "", "No Identity", "100", scrapedAt),
			raw("pchome", "A2", "   ", "100", scrapedAt),
			raw("momo", "M1", "Wrong Platform", "100", scrapedAt),
			raw("pchome", "A4", "Bad Price", "abc", scrapedAt),
			raw("", "A5", "Platform From Run", "100", scrapedAt),
		}, appingest.RunOptions{})
		require.NoError(t, err)

		assert.Equal(t, "pchome", report.Platform)
		assert.Equal(t, 4, report.ValidationErrors)
		assert.Equal(t, 1, report.Inserted)
		assertCountInvariant(t, report)

		reasons := make([]string, len(report.Errors))
		for i, e := range report.Errors {
			reasons[i] = e.Reason
			assert.NotContains(t, e.Snippet, "secret")
			assert.NotContains(t, e.Snippet, "/item/")
		}
		assert.Equal(t, []string{
			string(ingestion.ReasonMissingIdentity),
			string(ingestion.ReasonEmptyName),
			string(ingestion.ReasonPlatformMismatch),
			string(ingestion.ReasonInvalidPrice),
		}, reasons)
		assert.Contains(t, report.Errors[2].Snippet, `"url_host":"momo.example"`)
		assert.Equal(t, 2, report.Errors[2].Index)

		_, err = h.store.FindByNaturalKey(ctx, catalog.NaturalKey{Platform: "momo", PlatformProductID: "M1"})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("empty platform is rejected", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.orchestrator.Run(ctx, "  ", nil, appingest.RunOptions{})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("report is persisted", func(t *testing.T) {
		h := newHarness(t)
		report, err := h.orchestrator.Run(ctx, "pchome", []ingestion.RawRecord{
			raw("pchome", "A1", "Widget", "100", scrapedAt),
		}, appingest.RunOptions{Query: "widget"})
		require.NoError(t, err)

		recent, err := h.runs.FindRecent(ctx, "pchome", 5)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, report.ID, recent[0].ID)
		assert.Equal(t, "widget", recent[0].Query)
		assert.Equal(t, 1, recent[0].Inserted)
	})
}

func TestOrchestrator_RunInProgress(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	release, err := h.locker.Acquire(ctx, "ingest:pchome", time.Minute)
	require.NoError(t, err)

	_, err = h.orchestrator.Run(ctx, "pchome", []ingestion.RawRecord{
		raw("pchome", "A1", "Widget", "100", scrapedAt),
	}, appingest.RunOptions{})
	assert.ErrorIs(t, err, shared.ErrRunInProgress)

	// other platforms are not blocked
	_, err = h.orchestrator.Run(ctx, "momo", []ingestion.RawRecord{
		raw("momo", "M1", "Widget", "100", scrapedAt),
	}, appingest.RunOptions{})
	require.NoError(t, err)

	require.NoError(t, release(ctx))
	_, err = h.orchestrator.Run(ctx, "pchome", nil, appingest.RunOptions{})
	require.NoError(t, err)
	assert.False(t, h.locker.Held("ingest:pchome"))
}

// deadlineLocker records the ttl and the run deadline it was asked to lock for
type deadlineLocker struct {
	ttl      time.Duration
	deadline time.Time
}

func (l *deadlineLocker) Acquire(ctx context.Context, _ string, ttl time.Duration) (func(context.Context) error, error) {
	l.ttl = ttl
	l.deadline, _ = ctx.Deadline()
	return func(context.Context) error { return nil }, nil
}

func (l *deadlineLocker) Close() error { return nil }

func TestOrchestrator_RunEndsBeforeLockLapses(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	for _, timeout := range []time.Duration{0, 3 * time.Minute, time.Hour} {
		locker := &deadlineLocker{}
		o := appingest.NewOrchestrator(ingestion.NewNormalizer(), persistence.NewGormTransactionScope(h.db.DB),
			h.runs, locker, appingest.Config{RunLockTTL: 3 * time.Minute, RunTimeout: timeout}, nil)

		start := time.Now()
		_, err := o.Run(ctx, "pchome", nil, appingest.RunOptions{})
		require.NoError(t, err)

		assert.Equal(t, 3*time.Minute, locker.ttl)
		require.False(t, locker.deadline.IsZero(), "timeout %s", timeout)
		assert.Less(t, locker.deadline.Sub(start), locker.ttl, "timeout %s", timeout)
	}
}

// cancellingPublisher cancels the run after the first committed record
type cancellingPublisher struct {
	cancel context.CancelFunc
	events []shared.DomainEvent
}

func (p *cancellingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.events = append(p.events, events...)
	p.cancel()
	return nil
}

func TestOrchestrator_Cancellation(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher := &cancellingPublisher{cancel: cancel}
	h.orchestrator.SetEventPublisher(publisher)

	report, err := h.orchestrator.Run(ctx, "pchome", []ingestion.RawRecord{
		raw("pchome", "A1", "Widget One", "100", scrapedAt),
		raw("pchome", "A2", "Widget Two", "200", scrapedAt),
		raw("pchome", "A3", "Widget Three", "300", scrapedAt),
	}, appingest.RunOptions{})
	require.NoError(t, err)

	assert.True(t, report.Cancelled)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Processed())
	assert.Equal(t, 1, report.Inserted)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, catalog.EventTypeEntryCreated, publisher.events[0].EventType())

	recent, err := h.runs.FindRecent(context.Background(), "pchome", 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.True(t, recent[0].Cancelled)
	assert.False(t, h.locker.Held("ingest:pchome"))
}

// flakyScope fails the first failures executions, then delegates
type flakyScope struct {
	next     appingest.TransactionScope
	err      error
	failures int
	calls    int
}

func (s *flakyScope) Execute(ctx context.Context, fn func(repos appingest.TransactionalRepositories) error) error {
	s.calls++
	if s.calls <= s.failures {
		return s.err
	}
	return s.next.Execute(ctx, fn)
}

func TestOrchestrator_StoreFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("store error lands in the failed bucket", func(t *testing.T) {
		h := newHarness(t)
		scope := &flakyScope{next: persistence.NewGormTransactionScope(h.db.DB), err: errors.New("connection reset"), failures: 1}
		orchestrator := h.newOrchestrator(scope, appingest.DefaultConfig())

		report, err := orchestrator.Run(ctx, "pchome", []ingestion.RawRecord{
			raw("pchome", "A1", "Widget One", "100", scrapedAt),
			raw("pchome", "A2", "Widget Two", "200", scrapedAt),
		}, appingest.RunOptions{})
		require.NoError(t, err)

		assert.Equal(t, 1, report.Failed)
		assert.Equal(t, 1, report.Inserted)
		assertCountInvariant(t, report)
		require.Len(t, report.Errors, 1)
		assert.Equal(t, appingest.ReasonStoreError, report.Errors[0].Reason)
		assert.Equal(t, 0, report.Errors[0].Index)
	})

	t.Run("lost optimistic lock is retried once", func(t *testing.T) {
		h := newHarness(t)
		scope := &flakyScope{next: persistence.NewGormTransactionScope(h.db.DB), err: shared.ErrConcurrencyConflict, failures: 1}
		orchestrator := h.newOrchestrator(scope, appingest.DefaultConfig())

		report, err := orchestrator.Run(ctx, "pchome", []ingestion.RawRecord{
			raw("pchome", "A1", "Widget One", "100", scrapedAt),
		}, appingest.RunOptions{})
		require.NoError(t, err)

		assert.Equal(t, 1, report.Inserted)
		assert.Zero(t, report.Failed)
		assert.Equal(t, 2, scope.calls)
	})
}

func TestOrchestrator_SyncMatching(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	matcher := appmatching.NewMatcherService(h.store, h.edges, matching.NewScorer(matching.DefaultConfig()), nil)
	cfg := appingest.DefaultConfig()
	cfg.SyncMatching = true
	orchestrator := h.newOrchestrator(persistence.NewGormTransactionScope(h.db.DB), cfg)
	orchestrator.SetMatchRefresher(matcher)

	_, err := orchestrator.Run(ctx, "pchome", []ingestion.RawRecord{
		raw("pchome", "A1", "Widget Pro 128GB", "1000", scrapedAt),
	}, appingest.RunOptions{})
	require.NoError(t, err)
	_, err = orchestrator.Run(ctx, "momo", []ingestion.RawRecord{
		raw("momo", "B1", "Widget Pro 128GB", "1020", scrapedAt),
	}, appingest.RunOptions{})
	require.NoError(t, err)

	edges, err := h.edges.FindForEntry(ctx, h.entry(t, "pchome", "A1").ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, h.entry(t, "momo", "B1").ID, edges[0].Other(h.entry(t, "pchome", "A1").ID))

	// going out of stock drops the edge
	_, err = orchestrator.Run(ctx, "momo", []ingestion.RawRecord{
		raw("momo", "B1", "Widget Pro 128GB", "", scrapedAt.Add(time.Hour)),
	}, appingest.RunOptions{})
	require.NoError(t, err)

	count, err := h.edges.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

type recordedRun struct {
	status string
	report ingestion.RunReport
}

type fakeMetrics struct {
	mu         sync.Mutex
	runs       []recordedRun
	directions []string
	anomalies  int
}

func (m *fakeMetrics) RecordRun(_ context.Context, report *ingestion.RunReport, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, recordedRun{status: status, report: *report})
}

func (m *fakeMetrics) RecordPriceChange(_ context.Context, _ string, direction string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.directions = append(m.directions, direction)
}

func (m *fakeMetrics) RecordAnomaly(context.Context, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomalies++
}

func TestOrchestrator_Metrics(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	metrics := &fakeMetrics{}
	h.orchestrator.SetMetrics(metrics)

	_, err := h.orchestrator.Run(ctx, "pchome", []ingestion.RawRecord{
		raw("pchome", "A1", "Widget", "1000", scrapedAt),
		raw("pchome", "A2", "Suspicious Widget", "0.5", scrapedAt),
	}, appingest.RunOptions{})
	require.NoError(t, err)
	_, err = h.orchestrator.Run(ctx, "pchome", []ingestion.RawRecord{
		raw("pchome", "A1", "Widget", "800", scrapedAt.Add(time.Hour)),
		raw("pchome", "A2", "Suspicious Widget", "", scrapedAt.Add(time.Hour)),
	}, appingest.RunOptions{})
	require.NoError(t, err)

	require.Len(t, metrics.runs, 2)
	assert.Equal(t, appingest.RunStatusCompleted, metrics.runs[0].status)
	assert.Equal(t, 2, metrics.runs[0].report.Inserted)
	assert.Equal(t, []string{"first", "first", "down", "stock"}, metrics.directions)
	assert.Equal(t, 1, metrics.anomalies)
}

type stubScraper struct {
	platform string
	records  []ingestion.RawRecord
	err      error
}

func (s *stubScraper) Platform() string { return s.platform }

func (s *stubScraper) Search(_ context.Context, query string) ([]ingestion.RawRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]ingestion.RawRecord, 0, len(s.records))
	for _, r := range s.records {
		if strings.Contains(strings.ToLower(r.Name), query) {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestOrchestrator_RunAll(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	scrapers := []ingestion.Scraper{
		&stubScraper{platform: "pchome", records: []ingestion.RawRecord{
			raw("pchome", "A1", "Widget Pro", "1000", scrapedAt),
			raw("pchome", "A2", "Garden Hose", "300", scrapedAt),
		}},
		&stubScraper{platform: "momo", err: errors.New("blocked")},
		&stubScraper{platform: "shopee", records: []ingestion.RawRecord{
			raw("shopee", "S1", "Widget Pro", "990", scrapedAt),
		}},
	}

	reports, err := h.orchestrator.RunAll(ctx, scrapers, "widget", appingest.RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")

	require.Len(t, reports, 3)
	require.NotNil(t, reports[0])
	assert.Nil(t, reports[1])
	require.NotNil(t, reports[2])
	assert.Equal(t, 1, reports[0].Inserted)
	assert.Equal(t, "widget", reports[0].Query)
	assert.Equal(t, 1, reports[2].Inserted)

	count, err := h.store.Count(ctx, catalog.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
