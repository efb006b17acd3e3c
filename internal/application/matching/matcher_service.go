package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/catalog"
	"github.com/pricedragon/backend/internal/domain/matching"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RebuildReport summarizes a full match graph rebuild
type RebuildReport struct {
	Entries       int           `json:"entries"`
	Edges         int           `json:"edges"`
	ScoringErrors int           `json:"scoring_errors"`
	Duration      time.Duration `json:"duration"`
}

// MatcherService keeps the cross-platform match graph in step with the catalog
type MatcherService struct {
	entries catalog.IdentityStore
	edges   matching.EdgeRepository
	scorer  *matching.Scorer
	logger  *zap.Logger
	now     func() time.Time
}

// NewMatcherService creates a new MatcherService
func NewMatcherService(entries catalog.IdentityStore, edges matching.EdgeRepository, scorer *matching.Scorer, logger *zap.Logger) *MatcherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatcherService{
		entries: entries,
		edges:   edges,
		scorer:  scorer,
		logger:  logger,
		now:     time.Now,
	}
}

// RefreshEdges recomputes every edge touching entryID. Entries that are not
// live end up with no edges.
func (s *MatcherService) RefreshEdges(ctx context.Context, entryID uuid.UUID) ([]matching.Edge, error) {
	entry, err := s.entries.FindByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	edges := make([]matching.Edge, 0)
	if entry.IsLive() {
		lower, upper := s.scorer.PriceRange(entry.CurrentPrice.Decimal)
		pool, err := s.entries.ListLive(ctx, catalog.LiveFilter{
			ExcludePlatform: entry.Platform,
			MinPrice:        decimal.NewNullDecimal(lower),
			MaxPrice:        decimal.NewNullDecimal(upper),
		})
		if err != nil {
			return nil, fmt.Errorf("load candidate pool: %w", err)
		}

		var errs []error
		edges, errs = s.scorer.Candidates(entry, pool, s.now())
		s.logScoringErrors(entryID, errs)
	}

	if err := s.edges.ReplaceForEntry(ctx, entryID, edges); err != nil {
		return nil, fmt.Errorf("replace edges: %w", err)
	}

	s.logger.Debug("Match edges refreshed",
		zap.String("entry_id", entryID.String()),
		zap.Int("edges", len(edges)),
	)
	return edges, nil
}

// RebuildAll recomputes the whole graph from the live catalog and swaps it
// in atomically.
func (s *MatcherService) RebuildAll(ctx context.Context) (*RebuildReport, error) {
	started := s.now()

	live, err := s.entries.ListLive(ctx, catalog.LiveFilter{})
	if err != nil {
		return nil, fmt.Errorf("load live entries: %w", err)
	}

	report := &RebuildReport{Entries: len(live)}
	seen := make(map[[2]uuid.UUID]struct{})
	all := make([]matching.Edge, 0)
	now := s.now()

	for i := range live {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seed := &live[i]
		edges, errs := s.scorer.Candidates(seed, live, now)
		report.ScoringErrors += len(errs)
		s.logScoringErrors(seed.ID, errs)

		for _, e := range edges {
			key := [2]uuid.UUID{e.EntryAID, e.EntryBID}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			all = append(all, e)
		}
	}

	if err := s.edges.ReplaceAll(ctx, all); err != nil {
		return nil, fmt.Errorf("replace match graph: %w", err)
	}

	report.Edges = len(all)
	report.Duration = s.now().Sub(started)
	s.logger.Info("Match graph rebuilt",
		zap.Int("entries", report.Entries),
		zap.Int("edges", report.Edges),
		zap.Int("scoring_errors", report.ScoringErrors),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (s *MatcherService) logScoringErrors(entryID uuid.UUID, errs []error) {
	for _, err := range errs {
		s.logger.Warn("Skipping unscorable match candidate",
			zap.String("entry_id", entryID.String()),
			zap.Error(err),
		)
	}
}
