package matching

import (
	"context"

	"github.com/google/uuid"
)

// EdgeRepository stores the derived match graph
type EdgeRepository interface {
	// ReplaceForEntry atomically swaps every edge touching entryID for edges
	ReplaceForEntry(ctx context.Context, entryID uuid.UUID, edges []Edge) error

	// FindForEntry returns the entry's edges with score >= minScore, best first
	FindForEntry(ctx context.Context, entryID uuid.UUID, minScore float64, limit int) ([]Edge, error)

	// ReplaceAll atomically swaps the whole graph for edges
	ReplaceAll(ctx context.Context, edges []Edge) error

	// Count counts live edges
	Count(ctx context.Context) (int64, error)
}
