package telemetry

import (
	"context"
	"time"

	"github.com/pricedragon/backend/internal/domain/ingestion"
	"go.opentelemetry.io/otel/metric"
)

// IngestionMetrics tracks ingestion runs, record outcomes, price movement and
// match refresh work.
type IngestionMetrics struct {
	runsTotal        *Counter
	runDuration      *Histogram
	recordsTotal     *Counter
	priceChanges     *Counter
	anomaliesTotal   *Counter
	matchJobsTotal   *Counter
	matchJobDuration *Histogram
}

// NewIngestionMetrics creates the instruments on meter
func NewIngestionMetrics(meter metric.Meter) (*IngestionMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &IngestionMetrics{}
	var err error

	if m.runsTotal, err = NewCounter(meter, "pricedragon_ingest_runs_total",
		"Ingestion runs by platform and final status", "{runs}"); err != nil {
		return nil, err
	}
	if m.runDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "pricedragon_ingest_run_duration_seconds",
		Description: "Ingestion run wall time",
		Unit:        "s",
		Boundaries:  RunDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.recordsTotal, err = NewCounter(meter, "pricedragon_ingest_records_total",
		"Ingested records by outcome", "{records}"); err != nil {
		return nil, err
	}
	if m.priceChanges, err = NewCounter(meter, "pricedragon_price_changes_total",
		"Recorded price changes by direction", "{changes}"); err != nil {
		return nil, err
	}
	if m.anomaliesTotal, err = NewCounter(meter, "pricedragon_ingest_anomalies_total",
		"Records flagged with a price anomaly", "{records}"); err != nil {
		return nil, err
	}
	if m.matchJobsTotal, err = NewCounter(meter, "pricedragon_match_jobs_total",
		"Match refresh jobs by kind and outcome", "{jobs}"); err != nil {
		return nil, err
	}
	if m.matchJobDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "pricedragon_match_job_duration_seconds",
		Description: "Match refresh job duration",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordRun records the counters of a finished run
func (m *IngestionMetrics) RecordRun(ctx context.Context, report *ingestion.RunReport, status string) {
	platform := AttrPlatform.String(report.Platform)

	m.runsTotal.Inc(ctx, platform, AttrRunStatus.String(status))
	m.runDuration.RecordDuration(ctx, report.Duration, platform)

	outcomes := map[ingestion.Outcome]int{
		ingestion.OutcomeInserted:        report.Inserted,
		ingestion.OutcomeUpdated:         report.Updated,
		ingestion.OutcomeUnchanged:       report.Unchanged,
		ingestion.OutcomeValidationError: report.ValidationErrors,
		ingestion.OutcomeFailed:          report.Failed,
	}
	for outcome, n := range outcomes {
		if n > 0 {
			m.recordsTotal.Add(ctx, int64(n), platform, AttrOutcome.String(string(outcome)))
		}
	}
}

// RecordPriceChange counts one ledger observation; direction is "up",
// "down", "first" or "stock"
func (m *IngestionMetrics) RecordPriceChange(ctx context.Context, platform, direction string) {
	m.priceChanges.Inc(ctx, AttrPlatform.String(platform), AttrDirection.String(direction))
}

// RecordAnomaly counts a record flagged with a price anomaly
func (m *IngestionMetrics) RecordAnomaly(ctx context.Context, platform string) {
	m.anomaliesTotal.Inc(ctx, AttrPlatform.String(platform))
}

// RecordMatchJob records one match job
func (m *IngestionMetrics) RecordMatchJob(ctx context.Context, kind string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	m.matchJobsTotal.Inc(ctx, AttrJobKind.String(kind), AttrOutcome.String(outcome))
	m.matchJobDuration.RecordDuration(ctx, d, AttrJobKind.String(kind))
}
