package matching

import (
	"time"

	"github.com/google/uuid"
)

// MatchType classifies how closely two listings correspond
type MatchType string

const (
	MatchTypeExact   MatchType = "exact"
	MatchTypeSimilar MatchType = "similar"
	MatchTypeVariant MatchType = "variant"
)

// AlgorithmTokenJaccard identifies the current scoring function
const AlgorithmTokenJaccard = "token_jaccard_v1"

// Edge links two catalog entries on different platforms believed to be the
// same real-world product. The pair is unordered: EntryAID always sorts
// before EntryBID, so a pair has exactly one representation.
type Edge struct {
	ID         uuid.UUID `json:"id"`
	EntryAID   uuid.UUID `json:"entry_a_id"`
	EntryBID   uuid.UUID `json:"entry_b_id"`
	Score      float64   `json:"score"`
	Type       MatchType `json:"match_type"`
	Algorithm  string    `json:"algorithm"`
	ComputedAt time.Time `json:"computed_at"`
}

// NewEdge creates an edge with the pair in canonical order
func NewEdge(a, b uuid.UUID, score float64, matchType MatchType, computedAt time.Time) Edge {
	if b.String() < a.String() {
		a, b = b, a
	}
	return Edge{
		ID:         uuid.New(),
		EntryAID:   a,
		EntryBID:   b,
		Score:      score,
		Type:       matchType,
		Algorithm:  AlgorithmTokenJaccard,
		ComputedAt: computedAt,
	}
}

// Other returns the endpoint opposite to id
func (e Edge) Other(id uuid.UUID) uuid.UUID {
	if e.EntryAID == id {
		return e.EntryBID
	}
	return e.EntryAID
}

// Involves reports whether id is one of the endpoints
func (e Edge) Involves(id uuid.UUID) bool {
	return e.EntryAID == id || e.EntryBID == id
}
