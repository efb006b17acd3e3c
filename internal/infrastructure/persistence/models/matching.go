package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/matching"
)

// MatchEdgeModel is the persistence model for a match edge.
// The unique index on the ordered pair keeps at most one live edge per pair.
type MatchEdgeModel struct {
	ID         uuid.UUID          `gorm:"type:uuid;primary_key"`
	EntryAID   uuid.UUID          `gorm:"column:entry_a_id;type:uuid;not null;uniqueIndex:idx_match_edges_pair,priority:1"`
	EntryBID   uuid.UUID          `gorm:"column:entry_b_id;type:uuid;not null;uniqueIndex:idx_match_edges_pair,priority:2;index"`
	Score      float64            `gorm:"not null;index"`
	MatchType  matching.MatchType `gorm:"type:varchar(20);not null"`
	Algorithm  string             `gorm:"type:varchar(50);not null"`
	ComputedAt time.Time          `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MatchEdgeModel) TableName() string {
	return "match_edges"
}

// ToDomain converts the persistence model to a domain Edge
func (m *MatchEdgeModel) ToDomain() matching.Edge {
	return matching.Edge{
		ID:         m.ID,
		EntryAID:   m.EntryAID,
		EntryBID:   m.EntryBID,
		Score:      m.Score,
		Type:       m.MatchType,
		Algorithm:  m.Algorithm,
		ComputedAt: m.ComputedAt,
	}
}

// MatchEdgeModelFromDomain creates a persistence model from a domain Edge
func MatchEdgeModelFromDomain(e matching.Edge) *MatchEdgeModel {
	return &MatchEdgeModel{
		ID:         e.ID,
		EntryAID:   e.EntryAID,
		EntryBID:   e.EntryBID,
		Score:      e.Score,
		MatchType:  e.Type,
		Algorithm:  e.Algorithm,
		ComputedAt: e.ComputedAt,
	}
}
