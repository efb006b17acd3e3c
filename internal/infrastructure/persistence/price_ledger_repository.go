package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/pricing"
	"github.com/pricedragon/backend/internal/domain/shared"
	"github.com/pricedragon/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormPriceLedger implements pricing.Ledger using GORM.
// It only ever inserts into price_observations.
type GormPriceLedger struct {
	db *gorm.DB
}

// NewGormPriceLedger creates a new GormPriceLedger
func NewGormPriceLedger(db *gorm.DB) *GormPriceLedger {
	return &GormPriceLedger{db: db}
}

// RecordIfChanged appends an observation when price or availability moved.
// The timestamp is clamped so an entry's history never goes backwards.
func (l *GormPriceLedger) RecordIfChanged(
	ctx context.Context,
	entryID uuid.UUID,
	prev pricing.Snapshot,
	price decimal.NullDecimal,
	available bool,
	observedAt time.Time,
	runID uuid.UUID,
) (*pricing.Observation, error) {
	if !pricing.ShouldRecord(prev, price, available) {
		return nil, nil
	}

	db := l.db.WithContext(ctx)
	var last *time.Time
	latest, err := l.latest(db, entryID)
	switch {
	case err == nil:
		last = &latest.RecordedAt
	case !errors.Is(err, shared.ErrNotFound):
		return nil, err
	}

	obs := pricing.NewObservation(entryID, price, available, pricing.ClampRecordedAt(observedAt, last), runID)
	model := models.PriceObservationModelFromDomain(obs)
	if err := db.Create(model).Error; err != nil {
		return nil, err
	}
	return obs, nil
}

// History returns an entry's observations inside window, oldest first
func (l *GormPriceLedger) History(ctx context.Context, entryID uuid.UUID, window pricing.Window) ([]pricing.Observation, error) {
	query := applyWindow(l.db.WithContext(ctx).Where("entry_id = ?", entryID), window)

	var rows []models.PriceObservationModel
	if err := query.Order("recorded_at ASC").Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toObservations(rows), nil
}

// Latest returns the newest observation for an entry
func (l *GormPriceLedger) Latest(ctx context.Context, entryID uuid.UUID) (*pricing.Observation, error) {
	return l.latest(l.db.WithContext(ctx), entryID)
}

func (l *GormPriceLedger) latest(db *gorm.DB, entryID uuid.UUID) (*pricing.Observation, error) {
	var model models.PriceObservationModel
	if err := db.Where("entry_id = ?", entryID).
		Order("recorded_at DESC").
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// InWindow returns every observation inside window ordered by entry, then time
func (l *GormPriceLedger) InWindow(ctx context.Context, window pricing.Window) ([]pricing.Observation, error) {
	query := applyWindow(l.db.WithContext(ctx), window)

	var rows []models.PriceObservationModel
	if err := query.Order("entry_id").Order("recorded_at ASC").Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toObservations(rows), nil
}

// CountForEntry counts an entry's observations
func (l *GormPriceLedger) CountForEntry(ctx context.Context, entryID uuid.UUID) (int64, error) {
	var count int64
	if err := l.db.WithContext(ctx).Model(&models.PriceObservationModel{}).
		Where("entry_id = ?", entryID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// applyWindow bounds recorded_at. Timestamps are stored in UTC.
func applyWindow(query *gorm.DB, window pricing.Window) *gorm.DB {
	if !window.From.IsZero() {
		query = query.Where("recorded_at >= ?", window.From.UTC())
	}
	if !window.To.IsZero() {
		query = query.Where("recorded_at <= ?", window.To.UTC())
	}
	return query
}

func toObservations(rows []models.PriceObservationModel) []pricing.Observation {
	out := make([]pricing.Observation, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

// Ensure GormPriceLedger implements pricing.Ledger
var _ pricing.Ledger = (*GormPriceLedger)(nil)
