package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/pricing"
	"github.com/shopspring/decimal"
)

// PriceObservationModel is the persistence model for a price observation.
// Rows are inserted once and never updated.
type PriceObservationModel struct {
	ID         uuid.UUID           `gorm:"type:uuid;primary_key"`
	EntryID    uuid.UUID           `gorm:"type:uuid;not null;index:idx_price_observations_entry_time,priority:1"`
	Price      decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	Available  bool                `gorm:"not null"`
	RecordedAt time.Time           `gorm:"not null;index:idx_price_observations_entry_time,priority:2;index"`
	RunID      uuid.UUID           `gorm:"type:uuid;index"`
	CreatedAt  time.Time           `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PriceObservationModel) TableName() string {
	return "price_observations"
}

// ToDomain converts the persistence model to a domain Observation
func (m *PriceObservationModel) ToDomain() *pricing.Observation {
	return &pricing.Observation{
		ID:         m.ID,
		EntryID:    m.EntryID,
		Price:      m.Price,
		Available:  m.Available,
		RecordedAt: m.RecordedAt,
		RunID:      m.RunID,
	}
}

// PriceObservationModelFromDomain creates a persistence model from a domain Observation
func PriceObservationModelFromDomain(o *pricing.Observation) *PriceObservationModel {
	return &PriceObservationModel{
		ID:         o.ID,
		EntryID:    o.EntryID,
		Price:      o.Price,
		Available:  o.Available,
		RecordedAt: o.RecordedAt,
		RunID:      o.RunID,
	}
}
