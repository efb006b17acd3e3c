package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/matching"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormMatchEdgeRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("ReplaceForEntry swaps the neighbourhood", func(t *testing.T) {
		repo := NewGormMatchEdgeRepository(newTestDatabase(t).DB)
		seed, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()

		require.NoError(t, repo.ReplaceForEntry(ctx, seed, []matching.Edge{
			matching.NewEdge(seed, b, 0.95, matching.MatchTypeExact, scrapedAt),
			matching.NewEdge(seed, c, 0.70, matching.MatchTypeSimilar, scrapedAt),
		}))
		require.NoError(t, repo.ReplaceForEntry(ctx, d, []matching.Edge{
			matching.NewEdge(d, b, 0.80, matching.MatchTypeSimilar, scrapedAt),
		}))

		require.NoError(t, repo.ReplaceForEntry(ctx, seed, []matching.Edge{
			matching.NewEdge(c, seed, 0.65, matching.MatchTypeSimilar, scrapedAt),
		}))

		edges, err := repo.FindForEntry(ctx, seed, 0, 0)
		require.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, c, edges[0].Other(seed))
		assert.InDelta(t, 0.65, edges[0].Score, 1e-9)

		others, err := repo.FindForEntry(ctx, b, 0, 0)
		require.NoError(t, err)
		require.Len(t, others, 1)
		assert.Equal(t, d, others[0].Other(b))
	})

	t.Run("FindForEntry applies the score floor and orders best first", func(t *testing.T) {
		repo := NewGormMatchEdgeRepository(newTestDatabase(t).DB)
		seed := uuid.New()
		best, mid, low := uuid.New(), uuid.New(), uuid.New()

		require.NoError(t, repo.ReplaceForEntry(ctx, seed, []matching.Edge{
			matching.NewEdge(seed, mid, 0.75, matching.MatchTypeSimilar, scrapedAt),
			matching.NewEdge(seed, low, 0.61, matching.MatchTypeSimilar, scrapedAt),
			matching.NewEdge(seed, best, 0.92, matching.MatchTypeExact, scrapedAt),
		}))

		edges, err := repo.FindForEntry(ctx, seed, 0.7, 0)
		require.NoError(t, err)
		require.Len(t, edges, 2)
		assert.Equal(t, best, edges[0].Other(seed))
		assert.Equal(t, matching.MatchTypeExact, edges[0].Type)
		assert.Equal(t, matching.AlgorithmTokenJaccard, edges[0].Algorithm)
		assert.Equal(t, mid, edges[1].Other(seed))

		limited, err := repo.FindForEntry(ctx, seed, 0, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("ReplaceAll swaps the whole graph", func(t *testing.T) {
		repo := NewGormMatchEdgeRepository(newTestDatabase(t).DB)
		seed := uuid.New()
		require.NoError(t, repo.ReplaceForEntry(ctx, seed, []matching.Edge{
			matching.NewEdge(seed, uuid.New(), 0.9, matching.MatchTypeExact, scrapedAt),
		}))

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		a, b, c := uuid.New(), uuid.New(), uuid.New()
		require.NoError(t, repo.ReplaceAll(ctx, []matching.Edge{
			matching.NewEdge(a, b, 0.8, matching.MatchTypeSimilar, scrapedAt),
			matching.NewEdge(b, c, 0.7, matching.MatchTypeSimilar, scrapedAt),
		}))
		count, err = repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		edges, err := repo.FindForEntry(ctx, seed, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, edges)

		require.NoError(t, repo.ReplaceAll(ctx, nil))
		count, err = repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})
}
