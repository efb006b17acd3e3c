package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/matching"
	"github.com/pricedragon/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormMatchEdgeRepository implements matching.EdgeRepository using GORM
type GormMatchEdgeRepository struct {
	db *gorm.DB
}

// NewGormMatchEdgeRepository creates a new GormMatchEdgeRepository
func NewGormMatchEdgeRepository(db *gorm.DB) *GormMatchEdgeRepository {
	return &GormMatchEdgeRepository{db: db}
}

// ReplaceForEntry deletes every edge touching entryID and inserts edges in
// one transaction, so readers see either the old or the new neighbourhood.
func (r *GormMatchEdgeRepository) ReplaceForEntry(ctx context.Context, entryID uuid.UUID, edges []matching.Edge) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("entry_a_id = ? OR entry_b_id = ?", entryID, entryID).
			Delete(&models.MatchEdgeModel{}).Error; err != nil {
			return err
		}
		return insertEdges(tx, edges)
	})
}

func insertEdges(tx *gorm.DB, edges []matching.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	rows := make([]*models.MatchEdgeModel, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, models.MatchEdgeModelFromDomain(e))
	}
	return tx.CreateInBatches(rows, 100).Error
}

// FindForEntry returns the entry's edges with score >= minScore, best first
func (r *GormMatchEdgeRepository) FindForEntry(ctx context.Context, entryID uuid.UUID, minScore float64, limit int) ([]matching.Edge, error) {
	query := r.db.WithContext(ctx).
		Where("(entry_a_id = ? OR entry_b_id = ?) AND score >= ?", entryID, entryID, minScore).
		Order("score DESC").
		Order("id")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.MatchEdgeModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	edges := make([]matching.Edge, len(rows))
	for i := range rows {
		edges[i] = rows[i].ToDomain()
	}
	return edges, nil
}

// ReplaceAll drops the whole graph and inserts edges in one transaction
func (r *GormMatchEdgeRepository) ReplaceAll(ctx context.Context, edges []matching.Edge) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(&models.MatchEdgeModel{}).Error; err != nil {
			return err
		}
		return insertEdges(tx, edges)
	})
}

// Count counts live edges
func (r *GormMatchEdgeRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.MatchEdgeModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Ensure GormMatchEdgeRepository implements matching.EdgeRepository
var _ matching.EdgeRepository = (*GormMatchEdgeRepository)(nil)
