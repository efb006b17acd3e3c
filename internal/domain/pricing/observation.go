package pricing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Observation is one immutable point in a catalog entry's price history.
// Price is invalid when the listing had no price at the time (out of stock).
type Observation struct {
	ID         uuid.UUID           `json:"id"`
	EntryID    uuid.UUID           `json:"entry_id"`
	Price      decimal.NullDecimal `json:"price"`
	Available  bool                `json:"available"`
	RecordedAt time.Time           `json:"recorded_at"`
	RunID      uuid.UUID           `json:"run_id"`
}

// NewObservation creates an observation for entryID
func NewObservation(entryID uuid.UUID, price decimal.NullDecimal, available bool, recordedAt time.Time, runID uuid.UUID) *Observation {
	return &Observation{
		ID:         uuid.New(),
		EntryID:    entryID,
		Price:      price,
		Available:  available,
		RecordedAt: recordedAt,
		RunID:      runID,
	}
}

// Snapshot is the last-known price state of an entry before an ingestion event.
// Exists is false for an entry that was just created.
type Snapshot struct {
	Exists    bool
	Price     decimal.NullDecimal
	Available bool
}

// ShouldRecord reports whether moving from prev to (price, available) must
// append an observation. A new entry always gets its first observation.
func ShouldRecord(prev Snapshot, price decimal.NullDecimal, available bool) bool {
	if !prev.Exists {
		return true
	}
	return !PriceEqual(prev.Price, price) || prev.Available != available
}

// PriceEqual compares two optional prices exactly; two absent prices are equal.
func PriceEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	if !a.Valid {
		return true
	}
	return a.Decimal.Equal(b.Decimal)
}

// ClampRecordedAt keeps an entry's history timestamps non-decreasing when a
// scrape reports a time older than the last stored observation.
func ClampRecordedAt(observedAt time.Time, last *time.Time) time.Time {
	if last != nil && observedAt.Before(*last) {
		return *last
	}
	return observedAt
}
