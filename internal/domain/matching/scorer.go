package matching

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/catalog"
	"github.com/shopspring/decimal"
)

// ScoringError reports a candidate that cannot be scored. The refresh pass
// skips it and carries on.
type ScoringError struct {
	EntryID uuid.UUID
	Reason  string
}

// Error implements the error interface
func (e *ScoringError) Error() string {
	return fmt.Sprintf("cannot score entry %s: %s", e.EntryID, e.Reason)
}

// Breakdown exposes the components of a score
type Breakdown struct {
	NameSimilarity float64 `json:"name_similarity"`
	BrandMatch     bool    `json:"brand_match"`
	PriceBonus     float64 `json:"price_bonus"`
	Score          float64 `json:"score"`
}

// Scorer computes similarity between catalog entries. It is pure and safe
// for concurrent use.
type Scorer struct {
	cfg Config
}

// NewScorer creates a Scorer for cfg
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Config returns the scorer's policy
func (s *Scorer) Config() Config {
	return s.cfg
}

// Score returns the weighted similarity of a and b in [0,1].
// The result is symmetric: Score(a, b) == Score(b, a).
func (s *Scorer) Score(a, b *catalog.Entry) (Breakdown, error) {
	if err := checkScorable(a); err != nil {
		return Breakdown{}, err
	}
	if err := checkScorable(b); err != nil {
		return Breakdown{}, err
	}

	bd := Breakdown{
		NameSimilarity: Jaccard(Tokens(a.MatchKey), Tokens(b.MatchKey)),
		BrandMatch:     a.Brand != "" && b.Brand != "" && strings.EqualFold(a.Brand, b.Brand),
		PriceBonus:     s.PriceBonus(a.CurrentPrice, b.CurrentPrice),
	}
	score := s.cfg.NameWeight * bd.NameSimilarity
	if bd.BrandMatch {
		score += s.cfg.BrandWeight
	}
	score += s.cfg.PriceWeight * bd.PriceBonus
	bd.Score = round4(math.Min(1, math.Max(0, score)))
	return bd, nil
}

// PriceBonus decays linearly from 1 at equal prices to 0 at MaxRelativeGap.
// It is 0 when either price is unknown.
func (s *Scorer) PriceBonus(a, b decimal.NullDecimal) float64 {
	if !a.Valid || !b.Valid || !a.Decimal.IsPositive() || !b.Decimal.IsPositive() {
		return 0
	}
	hi := decimal.Max(a.Decimal, b.Decimal)
	gap, _ := a.Decimal.Sub(b.Decimal).Abs().Div(hi).Float64()
	bonus := 1 - gap/s.cfg.MaxRelativeGap
	if bonus <= 0 {
		return 0
	}
	return bonus
}

// PriceRange returns the open interval of prices that earn a non-zero price
// bonus against p. Stores use it to pre-filter the candidate pool.
func (s *Scorer) PriceRange(p decimal.Decimal) (lower, upper decimal.Decimal) {
	keep := decimal.NewFromFloat(1 - s.cfg.MaxRelativeGap)
	return p.Mul(keep), p.Div(keep)
}

// Classify assigns a match type to a scored pair
func (s *Scorer) Classify(bd Breakdown) MatchType {
	switch {
	case bd.Score >= s.cfg.ExactThreshold:
		return MatchTypeExact
	case bd.BrandMatch && bd.NameSimilarity < s.cfg.VariantNameCeiling:
		return MatchTypeVariant
	default:
		return MatchTypeSimilar
	}
}

// Candidates scores seed against pool and returns the edges at or above
// the threshold. Same-platform entries and entries outside the price window
// are never compared; unscorable candidates are returned as errors.
func (s *Scorer) Candidates(seed *catalog.Entry, pool []catalog.Entry, now time.Time) ([]Edge, []error) {
	edges := make([]Edge, 0)
	var errs []error
	if seed == nil || !seed.IsLive() {
		return edges, nil
	}
	for i := range pool {
		cand := &pool[i]
		if cand.ID == seed.ID || cand.Platform == seed.Platform || !cand.IsLive() {
			continue
		}
		if s.PriceBonus(seed.CurrentPrice, cand.CurrentPrice) <= 0 {
			continue
		}
		bd, err := s.Score(seed, cand)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if bd.Score < s.cfg.Threshold {
			continue
		}
		edges = append(edges, NewEdge(seed.ID, cand.ID, bd.Score, s.Classify(bd), now))
	}
	return edges, errs
}

func checkScorable(e *catalog.Entry) error {
	if e == nil {
		return &ScoringError{Reason: "entry is nil"}
	}
	if e.ID == uuid.Nil {
		return &ScoringError{EntryID: e.ID, Reason: "entry has no id"}
	}
	if strings.TrimSpace(e.MatchKey) == "" {
		return &ScoringError{EntryID: e.ID, Reason: "entry has an empty match key"}
	}
	if e.Platform == "" {
		return &ScoringError{EntryID: e.ID, Reason: "entry has no platform"}
	}
	return nil
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
