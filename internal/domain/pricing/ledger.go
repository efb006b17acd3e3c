package pricing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger is the append-only price history store. It exposes no way to
// update or delete an observation.
type Ledger interface {
	// RecordIfChanged appends an observation when price or availability
	// differs from prev, returning nil when nothing was written.
	RecordIfChanged(ctx context.Context, entryID uuid.UUID, prev Snapshot, price decimal.NullDecimal, available bool, observedAt time.Time, runID uuid.UUID) (*Observation, error)

	// History returns an entry's observations inside window, oldest first
	History(ctx context.Context, entryID uuid.UUID, window Window) ([]Observation, error)

	// Latest returns the newest observation for an entry
	Latest(ctx context.Context, entryID uuid.UUID) (*Observation, error)

	// InWindow returns every observation inside window ordered by entry, then time
	InWindow(ctx context.Context, window Window) ([]Observation, error)

	// CountForEntry counts an entry's observations
	CountForEntry(ctx context.Context, entryID uuid.UUID) (int64, error)
}
