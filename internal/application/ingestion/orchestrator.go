package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/catalog"
	"github.com/pricedragon/backend/internal/domain/ingestion"
	"github.com/pricedragon/backend/internal/domain/matching"
	"github.com/pricedragon/backend/internal/domain/pricing"
	"github.com/pricedragon/backend/internal/domain/shared"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Run status labels used in logs and metrics
const (
	RunStatusCompleted = "completed"
	RunStatusCancelled = "cancelled"
)

// ReasonStoreError is the RecordError reason for records the store could not write
const ReasonStoreError = "STORE_ERROR"

// MatchRefresher recomputes an entry's match edges
type MatchRefresher interface {
	RefreshEdges(ctx context.Context, entryID uuid.UUID) ([]matching.Edge, error)
}

// Metrics receives ingestion counters
type Metrics interface {
	RecordRun(ctx context.Context, report *ingestion.RunReport, status string)
	RecordPriceChange(ctx context.Context, platform, direction string)
	RecordAnomaly(ctx context.Context, platform string)
}

// Config holds orchestrator settings
type Config struct {
	SyncMatching  bool
	RunLockTTL    time.Duration
	RunTimeout    time.Duration
	SnippetLength int
	MaxErrorRatio float64
}

// DefaultConfig returns the default orchestrator settings
func DefaultConfig() Config {
	return Config{
		RunLockTTL:    30 * time.Minute,
		RunTimeout:    20 * time.Minute,
		SnippetLength: 40,
		MaxErrorRatio: 0.5,
	}
}

// RunOptions tune a single run
type RunOptions struct {
	// Query is the search term that produced the batch, kept on the report
	Query string
	// SyncMatching refreshes match edges inline for this run
	SyncMatching bool
}

// Orchestrator drives one batch of raw records through normalization,
// identity resolution and the price ledger. Every record is committed in
// its own transaction and receives exactly one outcome.
type Orchestrator struct {
	normalizer *ingestion.Normalizer
	scope      TransactionScope
	runs       ingestion.RunReportRepository
	locker     shared.RunLocker
	config     Config
	logger     *zap.Logger

	publisher shared.EventPublisher
	refresher MatchRefresher
	metrics   Metrics
	now       func() time.Time
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(
	normalizer *ingestion.Normalizer,
	scope TransactionScope,
	runs ingestion.RunReportRepository,
	locker shared.RunLocker,
	config Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.SnippetLength <= 0 {
		config.SnippetLength = DefaultConfig().SnippetLength
	}
	if config.RunLockTTL <= 0 {
		config.RunLockTTL = DefaultConfig().RunLockTTL
	}
	// A run must end before its platform lock can lapse.
	if config.RunTimeout <= 0 || config.RunTimeout >= config.RunLockTTL {
		config.RunTimeout = config.RunLockTTL * 2 / 3
	}
	return &Orchestrator{
		normalizer: normalizer,
		scope:      scope,
		runs:       runs,
		locker:     locker,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// SetEventPublisher sets the publisher for catalog events
func (o *Orchestrator) SetEventPublisher(publisher shared.EventPublisher) {
	o.publisher = publisher
}

// SetMatchRefresher sets the refresher used for inline matching
func (o *Orchestrator) SetMatchRefresher(refresher MatchRefresher) {
	o.refresher = refresher
}

// SetMetrics sets the metrics sink
func (o *Orchestrator) SetMetrics(metrics Metrics) {
	o.metrics = metrics
}

// Run ingests records scraped from platform. A second concurrent run for the
// same platform fails with shared.ErrRunInProgress. When ctx is cancelled the
// partial report is returned with Cancelled set.
func (o *Orchestrator) Run(ctx context.Context, platform string, records []ingestion.RawRecord, opts RunOptions) (*ingestion.RunReport, error) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		return nil, fmt.Errorf("platform is required: %w", shared.ErrInvalidInput)
	}

	if o.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.RunTimeout)
		defer cancel()
	}

	release, err := o.locker.Acquire(ctx, runLockKey(platform), o.config.RunLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		// The lock must be released even when the run was cancelled.
		if err := release(context.WithoutCancel(ctx)); err != nil {
			o.logger.Warn("Failed to release run lock", zap.String("platform", platform), zap.Error(err))
		}
	}()

	report := ingestion.NewRunReport(platform, opts.Query, len(records), o.now())
	ctx = ingestion.ContextWithRunID(ctx, report.ID)
	log := o.logger.With(zap.String("run_id", report.ID.String()), zap.String("platform", platform))
	log.Info("Ingestion run started", zap.Int("records", len(records)), zap.String("query", opts.Query))

	syncMatching := o.config.SyncMatching || opts.SyncMatching
	for i, raw := range records {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		if !o.processRecord(ctx, log, report, i, raw, syncMatching) {
			report.Cancelled = true
			break
		}
	}

	report.Finish(o.now())
	o.finishRun(ctx, log, report)
	return report, nil
}

// RunFromScraper searches scraper for query and ingests the result
func (o *Orchestrator) RunFromScraper(ctx context.Context, scraper ingestion.Scraper, query string, opts RunOptions) (*ingestion.RunReport, error) {
	records, err := scraper.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("scrape %s for %q: %w", scraper.Platform(), query, err)
	}
	opts.Query = query
	return o.Run(ctx, scraper.Platform(), records, opts)
}

// RunAll runs every scraper concurrently, one run per platform. Reports are
// returned in scraper order; a failed scraper leaves a nil report and its
// error is joined into the returned error.
func (o *Orchestrator) RunAll(ctx context.Context, scrapers []ingestion.Scraper, query string, opts RunOptions) ([]*ingestion.RunReport, error) {
	reports := make([]*ingestion.RunReport, len(scrapers))
	errs := make([]error, len(scrapers))

	var g errgroup.Group
	for i, scraper := range scrapers {
		g.Go(func() error {
			report, err := o.RunFromScraper(ctx, scraper, query, opts)
			reports[i], errs[i] = report, err
			return nil
		})
	}
	_ = g.Wait()

	return reports, errors.Join(errs...)
}

// processRecord handles one record. It returns false when the record was
// interrupted by cancellation and therefore not counted.
func (o *Orchestrator) processRecord(ctx context.Context, log *zap.Logger, report *ingestion.RunReport, index int, raw ingestion.RawRecord, syncMatching bool) bool {
	rec, err := o.normalize(report.Platform, raw)
	if err != nil {
		var verr *ingestion.ValidationError
		reason := "INVALID_RECORD"
		if errors.As(err, &verr) {
			reason = string(verr.Reason)
		}
		report.Count(ingestion.OutcomeValidationError)
		report.Errors = append(report.Errors, ingestion.RecordError{
			Index:   index,
			Reason:  reason,
			Message: err.Error(),
			Snippet: RedactSnippet(raw, o.config.SnippetLength),
		})
		log.Debug("Record rejected", zap.Int("index", index), zap.String("reason", reason))
		return true
	}

	for _, a := range ingestion.DetectAnomalies(rec) {
		log.Warn("Price anomaly",
			zap.Int("index", index),
			zap.String("platform_product_id", rec.PlatformProductID),
			zap.String("kind", string(a.Kind)),
			zap.String("detail", a.Message),
		)
		if o.metrics != nil {
			o.metrics.RecordAnomaly(ctx, report.Platform)
		}
	}

	outcome, obs, err := o.store(ctx, rec, report.ID)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		report.Count(ingestion.OutcomeFailed)
		report.Errors = append(report.Errors, ingestion.RecordError{
			Index:   index,
			Reason:  ReasonStoreError,
			Message: err.Error(),
			Snippet: RedactSnippet(raw, o.config.SnippetLength),
		})
		log.Error("Failed to store record",
			zap.Int("index", index),
			zap.String("platform_product_id", rec.PlatformProductID),
			zap.Error(err),
		)
		return true
	}

	switch {
	case outcome.Created:
		report.Count(ingestion.OutcomeInserted)
	case outcome.Unchanged():
		report.Count(ingestion.OutcomeUnchanged)
	default:
		report.Count(ingestion.OutcomeUpdated)
	}
	if obs != nil {
		report.Observations++
		if o.metrics != nil {
			o.metrics.RecordPriceChange(ctx, report.Platform, priceDirection(outcome.Previous, obs))
		}
	}

	o.afterCommit(ctx, log, outcome, syncMatching)
	return true
}

// normalize runs the normalizer and rejects records from another platform.
// Records that omit their platform inherit the run's.
func (o *Orchestrator) normalize(platform string, raw ingestion.RawRecord) (ingestion.NormalizedRecord, error) {
	p := strings.ToLower(strings.TrimSpace(raw.Platform))
	if p == "" {
		raw.Platform = platform
	} else if p != platform {
		return ingestion.NormalizedRecord{}, &ingestion.ValidationError{
			Reason:  ingestion.ReasonPlatformMismatch,
			Field:   "platform",
			Message: fmt.Sprintf("record platform %q does not match run platform %q", p, platform),
		}
	}
	return o.normalizer.Normalize(raw)
}

// store upserts the entry and appends its observation in one transaction.
// A lost optimistic-lock race is retried once.
func (o *Orchestrator) store(ctx context.Context, rec ingestion.NormalizedRecord, runID uuid.UUID) (*catalog.UpsertOutcome, *pricing.Observation, error) {
	var (
		outcome *catalog.UpsertOutcome
		obs     *pricing.Observation
		err     error
	)
	for attempt := 0; attempt < 2; attempt++ {
		err = o.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			out, err := repos.IdentityStore().Upsert(ctx, rec)
			if err != nil {
				return err
			}
			written, err := repos.Ledger().RecordIfChanged(ctx, out.Entry.ID, out.Previous,
				out.Entry.CurrentPrice, out.Entry.Available, rec.ObservedAt, runID)
			if err != nil {
				return fmt.Errorf("record observation: %w", err)
			}
			outcome, obs = out, written
			return nil
		})
		if err == nil || !errors.Is(err, shared.ErrConcurrencyConflict) {
			break
		}
	}
	return outcome, obs, err
}

// afterCommit publishes the entry's events and refreshes matches inline when asked
func (o *Orchestrator) afterCommit(ctx context.Context, log *zap.Logger, outcome *catalog.UpsertOutcome, syncMatching bool) {
	entry := outcome.Entry
	events := entry.PullDomainEvents()

	if o.publisher != nil && len(events) > 0 {
		if err := o.publisher.Publish(ctx, events...); err != nil {
			log.Warn("Failed to publish catalog events", zap.String("entry_id", entry.ID.String()), zap.Error(err))
		}
	}

	if !syncMatching || o.refresher == nil {
		return
	}
	if !outcome.Created && !outcome.Changed.AffectsMatching() {
		return
	}
	if _, err := o.refresher.RefreshEdges(ctx, entry.ID); err != nil {
		log.Warn("Inline match refresh failed", zap.String("entry_id", entry.ID.String()), zap.Error(err))
	}
}

// finishRun persists and reports a finished run
func (o *Orchestrator) finishRun(ctx context.Context, log *zap.Logger, report *ingestion.RunReport) {
	status := RunStatusCompleted
	if report.Cancelled {
		status = RunStatusCancelled
	}

	// A cancelled run still leaves its report behind.
	persistCtx := context.WithoutCancel(ctx)
	if o.runs != nil {
		if err := o.runs.Save(persistCtx, report); err != nil {
			log.Error("Failed to persist run report", zap.Error(err))
		}
	}

	if o.config.MaxErrorRatio > 0 && report.ErrorRatio() > o.config.MaxErrorRatio {
		log.Warn("Ingestion run error ratio above ceiling",
			zap.Float64("error_ratio", report.ErrorRatio()),
			zap.Float64("max_error_ratio", o.config.MaxErrorRatio),
		)
	}

	if o.metrics != nil {
		o.metrics.RecordRun(persistCtx, report, status)
	}

	log.Info("Ingestion run finished",
		zap.String("status", status),
		zap.Int("total", report.Total),
		zap.Int("inserted", report.Inserted),
		zap.Int("updated", report.Updated),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("validation_errors", report.ValidationErrors),
		zap.Int("failed", report.Failed),
		zap.Int("observations", report.Observations),
		zap.Duration("duration", report.Duration),
	)
}

func runLockKey(platform string) string {
	return "ingest:" + platform
}

// priceDirection labels an observation relative to the previous state
func priceDirection(prev pricing.Snapshot, obs *pricing.Observation) string {
	switch {
	case !prev.Exists:
		return "first"
	case prev.Price.Valid && obs.Price.Valid && obs.Price.Decimal.LessThan(prev.Price.Decimal):
		return "down"
	case prev.Price.Valid && obs.Price.Valid && obs.Price.Decimal.GreaterThan(prev.Price.Decimal):
		return "up"
	default:
		return "stock"
	}
}
