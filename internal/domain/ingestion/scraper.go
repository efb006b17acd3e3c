package ingestion

import (
	"context"

	"github.com/google/uuid"
)

// Scraper is implemented once per platform. The core only ever sees the
// RawRecords it returns.
type Scraper interface {
	// Platform returns the platform identifier stamped on every record
	Platform() string
	// Search returns the listings found for query
	Search(ctx context.Context, query string) ([]RawRecord, error)
}

// RunReportRepository persists run reports
type RunReportRepository interface {
	Save(ctx context.Context, report *RunReport) error
	FindRecent(ctx context.Context, platform string, limit int) ([]RunReport, error)
}

type runIDKey struct{}

// ContextWithRunID tags ctx with the ingestion run it belongs to
func ContextWithRunID(ctx context.Context, runID uuid.UUID) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run ctx was tagged with
func RunIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(runIDKey{}).(uuid.UUID)
	return id, ok
}
