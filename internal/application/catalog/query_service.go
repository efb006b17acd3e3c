package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/catalog"
	"github.com/pricedragon/backend/internal/domain/ingestion"
	"github.com/pricedragon/backend/internal/domain/matching"
	"github.com/pricedragon/backend/internal/domain/pricing"
	"github.com/pricedragon/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Query limits
const (
	DefaultSimilarLimit = 20
	MaxSimilarLimit     = 100
	DefaultRunsLimit    = 20
	DefaultPageSize     = 20
	MaxPageSize         = 100
	// searchPoolSize caps how many name matches are considered as a seed
	searchPoolSize = 200
)

// QueryService answers read-only questions about the catalog, price history
// and the match graph.
type QueryService struct {
	entries catalog.IdentityStore
	ledger  pricing.Ledger
	edges   matching.EdgeRepository
	runs    ingestion.RunReportRepository
	policy  matching.Config
	logger  *zap.Logger
	now     func() time.Time
}

// NewQueryService creates a new QueryService
func NewQueryService(
	entries catalog.IdentityStore,
	ledger pricing.Ledger,
	edges matching.EdgeRepository,
	runs ingestion.RunReportRepository,
	policy matching.Config,
	logger *zap.Logger,
) *QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryService{
		entries: entries,
		ledger:  ledger,
		edges:   edges,
		runs:    runs,
		policy:  policy,
		logger:  logger,
		now:     time.Now,
	}
}

// GetEntry returns a catalog entry by id with its observation count
func (s *QueryService) GetEntry(ctx context.Context, id uuid.UUID) (*EntryResponse, error) {
	entry, err := s.entries.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.entryDetail(ctx, entry)
}

// GetEntryByNaturalKey returns the entry a platform lists under productID
func (s *QueryService) GetEntryByNaturalKey(ctx context.Context, platform, productID string) (*EntryResponse, error) {
	entry, err := s.findByNaturalKey(ctx, platform, productID)
	if err != nil {
		return nil, err
	}
	return s.entryDetail(ctx, entry)
}

// GetPriceHistoryByNaturalKey is GetPriceHistory for the entry a platform
// lists under productID
func (s *QueryService) GetPriceHistoryByNaturalKey(ctx context.Context, platform, productID string, window pricing.Window) (*PriceHistoryResult, error) {
	entry, err := s.findByNaturalKey(ctx, platform, productID)
	if err != nil {
		return nil, err
	}
	return s.GetPriceHistory(ctx, entry.ID, window)
}

// ListEntries pages through the catalog. Without an explicit order a search
// lists the cheapest entries first and a plain listing the most recently
// updated.
func (s *QueryService) ListEntries(ctx context.Context, q ListEntriesQuery) (*EntryPage, error) {
	if q.MinPrice.Valid && q.MaxPrice.Valid && q.MinPrice.Decimal.GreaterThan(q.MaxPrice.Decimal) {
		return nil, shared.InvalidInputf("min_price %s is above max_price %s", q.MinPrice.Decimal, q.MaxPrice.Decimal)
	}
	filter := catalog.ListFilter{
		Filter: shared.Filter{
			Page:      max(q.Page, 1),
			PageSize:  q.PageSize,
			OrderBy:   q.OrderBy,
			OrderDir:  q.OrderDir,
			Search:    strings.TrimSpace(q.Search),
			Platform:  strings.ToLower(strings.TrimSpace(q.Platform)),
			Available: q.Available,
		},
		MinPrice: q.MinPrice,
		MaxPrice: q.MaxPrice,
	}
	if filter.PageSize <= 0 {
		filter.PageSize = DefaultPageSize
	}
	filter.PageSize = min(filter.PageSize, MaxPageSize)
	if filter.OrderBy == "" {
		filter.OrderBy, filter.OrderDir = "last_updated_at", "desc"
		if filter.Search != "" {
			filter.OrderBy, filter.OrderDir = "current_price", "asc"
		}
	}

	total, err := s.entries.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}
	entries, err := s.entries.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	page := &EntryPage{
		Items:    make([]EntryResponse, len(entries)),
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	for i := range entries {
		page.Items[i] = ToEntryResponse(&entries[i])
	}
	return page, nil
}

func (s *QueryService) findByNaturalKey(ctx context.Context, platform, productID string) (*catalog.Entry, error) {
	key := catalog.NaturalKey{
		Platform:          strings.ToLower(strings.TrimSpace(platform)),
		PlatformProductID: strings.TrimSpace(productID),
	}
	if key.Platform == "" || key.PlatformProductID == "" {
		return nil, shared.InvalidInputf("platform and product id are required")
	}
	return s.entries.FindByNaturalKey(ctx, key)
}

func (s *QueryService) entryDetail(ctx context.Context, entry *catalog.Entry) (*EntryResponse, error) {
	count, err := s.ledger.CountForEntry(ctx, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("count observations: %w", err)
	}
	resp := ToEntryResponse(entry)
	resp.Observations = &count
	return &resp, nil
}

// GetPriceHistory returns the entry's observations in window, oldest first,
// with statistics derived from them.
func (s *QueryService) GetPriceHistory(ctx context.Context, id uuid.UUID, window pricing.Window) (*PriceHistoryResult, error) {
	if !window.From.IsZero() && !window.To.IsZero() && window.From.After(window.To) {
		return nil, shared.InvalidInputf("Window start is after its end")
	}
	entry, err := s.entries.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	observations, err := s.ledger.History(ctx, id, window)
	if err != nil {
		return nil, fmt.Errorf("load price history: %w", err)
	}
	return &PriceHistoryResult{
		Entry:        ToEntryResponse(entry),
		Window:       window,
		Observations: observations,
		Stats:        pricing.ComputeStats(observations),
	}, nil
}

// FindSimilar returns the entry's matches with score >= threshold, best first.
// A non-positive threshold uses the matching policy's.
func (s *QueryService) FindSimilar(ctx context.Context, id uuid.UUID, threshold float64, limit int) ([]SimilarResult, error) {
	if threshold > 1 {
		return nil, shared.InvalidInputf("Threshold must be within [0,1], got %.2f", threshold)
	}
	if threshold <= 0 {
		threshold = s.policy.Threshold
	}
	if limit <= 0 {
		limit = DefaultSimilarLimit
	}
	if limit > MaxSimilarLimit {
		limit = MaxSimilarLimit
	}

	if _, err := s.entries.FindByID(ctx, id); err != nil {
		return nil, err
	}
	edges, err := s.edges.FindForEntry(ctx, id, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("load match edges: %w", err)
	}
	byID, err := s.loadOthers(ctx, id, edges)
	if err != nil {
		return nil, err
	}

	results := make([]SimilarResult, 0, len(edges))
	for _, e := range edges {
		other, ok := byID[e.Other(id)]
		if !ok {
			continue
		}
		results = append(results, SimilarResult{
			Entry:     ToEntryResponse(other),
			Score:     e.Score,
			MatchType: e.Type,
		})
	}
	return results, nil
}

// BestPriceForEntry ranks the entry and its matches by current price
func (s *QueryService) BestPriceForEntry(ctx context.Context, id uuid.UUID) (*BestPriceResult, error) {
	seed, err := s.entries.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.bestPrice(ctx, seed)
}

// BestPrice resolves a free-text product query to a seed entry and ranks
// it together with its matches. It returns shared.ErrNotFound when no live
// entry resembles the query.
func (s *QueryService) BestPrice(ctx context.Context, query string) (*BestPriceResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, shared.InvalidInputf("Query is required")
	}

	terms := strings.Fields(ingestion.CleanName(query))
	candidates, err := s.entries.SearchByName(ctx, terms, searchPoolSize)
	if err != nil {
		return nil, fmt.Errorf("search catalog: %w", err)
	}
	// Fall back to any-term matches when no entry contains every term.
	if len(candidates) == 0 && len(terms) > 1 {
		for _, term := range terms {
			found, err := s.entries.SearchByName(ctx, []string{term}, searchPoolSize)
			if err != nil {
				return nil, fmt.Errorf("search catalog: %w", err)
			}
			candidates = append(candidates, found...)
		}
	}

	seed := matching.ResolveSeed(query, candidates)
	if seed == nil {
		return nil, shared.ErrNotFound
	}
	result, err := s.bestPrice(ctx, seed)
	if err != nil {
		return nil, err
	}
	result.Query = query
	return result, nil
}

func (s *QueryService) bestPrice(ctx context.Context, seed *catalog.Entry) (*BestPriceResult, error) {
	edges, err := s.edges.FindForEntry(ctx, seed.ID, s.policy.Threshold, 0)
	if err != nil {
		return nil, fmt.Errorf("load match edges: %w", err)
	}
	byID, err := s.loadOthers(ctx, seed.ID, edges)
	if err != nil {
		return nil, err
	}

	matches := make([]matching.Ranked, 0, len(edges))
	for _, e := range edges {
		if other, ok := byID[e.Other(seed.ID)]; ok {
			matches = append(matches, matching.Ranked{Entry: *other, Score: e.Score})
		}
	}

	ranked := matching.RankBestPrice(*seed, matches)
	result := &BestPriceResult{
		Seed:   ToEntryResponse(seed),
		Offers: make([]OfferResponse, len(ranked)),
	}
	for i := range ranked {
		result.Offers[i] = OfferResponse{Entry: ToEntryResponse(&ranked[i].Entry), Score: ranked[i].Score}
	}
	if len(ranked) > 0 && ranked[0].Entry.IsLive() {
		best := result.Offers[0]
		result.Best = &best
	}
	return result, nil
}

// PriceAlerts lists entries whose latest price in window dropped by at
// least thresholdPercent against the previous priced observation.
func (s *QueryService) PriceAlerts(ctx context.Context, window pricing.Window, thresholdPercent decimal.Decimal) ([]PriceAlertResult, error) {
	if thresholdPercent.IsNegative() || thresholdPercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, shared.InvalidInputf("Threshold percentage must be within [0,100], got %s", thresholdPercent)
	}

	observations, err := s.ledger.InWindow(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	alerts := pricing.DetectDrops(pricing.LatestPairs(observations), thresholdPercent)
	if len(alerts) == 0 {
		return []PriceAlertResult{}, nil
	}

	ids := make([]uuid.UUID, len(alerts))
	for i, a := range alerts {
		ids[i] = a.EntryID
	}
	entries, err := s.entries.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load alert entries: %w", err)
	}
	byID := make(map[uuid.UUID]*catalog.Entry, len(entries))
	for i := range entries {
		byID[entries[i].ID] = &entries[i]
	}

	results := make([]PriceAlertResult, 0, len(alerts))
	for _, a := range alerts {
		r := PriceAlertResult{Alert: a}
		if e, ok := byID[a.EntryID]; ok {
			r.Platform, r.Name, r.URL = e.Platform, e.Name, e.URL
		}
		results = append(results, r)
	}
	return results, nil
}

// ListRuns returns recent ingestion runs, newest first. An empty platform
// lists every platform.
func (s *QueryService) ListRuns(ctx context.Context, platform string, limit int) ([]ingestion.RunReport, error) {
	if limit <= 0 {
		limit = DefaultRunsLimit
	}
	return s.runs.FindRecent(ctx, strings.ToLower(strings.TrimSpace(platform)), limit)
}

// loadOthers fetches the far ends of edges around id
func (s *QueryService) loadOthers(ctx context.Context, id uuid.UUID, edges []matching.Edge) (map[uuid.UUID]*catalog.Entry, error) {
	if len(edges) == 0 {
		return map[uuid.UUID]*catalog.Entry{}, nil
	}
	ids := make([]uuid.UUID, len(edges))
	for i, e := range edges {
		ids[i] = e.Other(id)
	}
	entries, err := s.entries.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load matched entries: %w", err)
	}
	byID := make(map[uuid.UUID]*catalog.Entry, len(entries))
	for i := range entries {
		byID[entries[i].ID] = &entries[i]
	}
	if len(byID) < len(ids) {
		s.logger.Warn("Match edges point at missing entries",
			zap.String("entry_id", id.String()),
			zap.Int("edges", len(ids)),
			zap.Int("found", len(byID)),
		)
	}
	return byID, nil
}
