package matching

import (
	"sort"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/catalog"
	"github.com/pricedragon/backend/internal/domain/ingestion"
	"golang.org/x/text/cases"
)

// Ranked is an entry with its similarity to a seed
type Ranked struct {
	Entry catalog.Entry `json:"entry"`
	Score float64       `json:"score"`
}

// RankBestPrice orders the seed and its matches for a best-price answer:
// live listings first, cheapest first, then higher score, then the most
// recently updated. The seed carries score 1.
func RankBestPrice(seed catalog.Entry, matches []Ranked) []Ranked {
	ranked := make([]Ranked, 0, len(matches)+1)
	ranked = append(ranked, Ranked{Entry: seed, Score: 1})
	seen := map[uuid.UUID]bool{seed.ID: true}
	for _, m := range matches {
		if seen[m.Entry.ID] {
			continue
		}
		seen[m.Entry.ID] = true
		ranked = append(ranked, m)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Entry.IsLive() != b.Entry.IsLive() {
			return a.Entry.IsLive()
		}
		if a.Entry.CurrentPrice.Valid && b.Entry.CurrentPrice.Valid {
			if c := a.Entry.CurrentPrice.Decimal.Cmp(b.Entry.CurrentPrice.Decimal); c != 0 {
				return c < 0
			}
		} else if a.Entry.CurrentPrice.Valid != b.Entry.CurrentPrice.Valid {
			return a.Entry.CurrentPrice.Valid
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Entry.LastUpdatedAt.Equal(b.Entry.LastUpdatedAt) {
			return a.Entry.LastUpdatedAt.After(b.Entry.LastUpdatedAt)
		}
		return a.Entry.ID.String() < b.Entry.ID.String()
	})
	return ranked
}

// ResolveSeed picks the entry that best answers a free-text product query.
// Token similarity decides; edit distance between folded names breaks ties,
// then the lower price. It returns nil when nothing shares a token.
func ResolveSeed(query string, candidates []catalog.Entry) *catalog.Entry {
	queryTokens := Tokens(ingestion.MatchKey(ingestion.CleanName(query), ""))
	if len(queryTokens) == 0 {
		return nil
	}
	folded := cases.Fold().String(ingestion.CleanName(query))

	var (
		best     *catalog.Entry
		bestSim  float64
		bestDist int
	)
	for i := range candidates {
		cand := &candidates[i]
		sim := Jaccard(queryTokens, Tokens(cand.MatchKey))
		if sim == 0 {
			continue
		}
		dist := levenshtein.ComputeDistance(folded, cand.CanonicalName)
		if best == nil || sim > bestSim || (sim == bestSim && betterTie(cand, dist, best, bestDist)) {
			best, bestSim, bestDist = cand, sim, dist
		}
	}
	return best
}

func betterTie(cand *catalog.Entry, candDist int, best *catalog.Entry, bestDist int) bool {
	if candDist != bestDist {
		return candDist < bestDist
	}
	if cand.CurrentPrice.Valid && best.CurrentPrice.Valid {
		return cand.CurrentPrice.Decimal.LessThan(best.CurrentPrice.Decimal)
	}
	return cand.CurrentPrice.Valid && !best.CurrentPrice.Valid
}
