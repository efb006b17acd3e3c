package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/catalog"
	"github.com/pricedragon/backend/internal/domain/ingestion"
	"github.com/pricedragon/backend/internal/domain/shared"
	"github.com/pricedragon/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestGormIdentityStore_Upsert(t *testing.T) {
	ctx := context.Background()

	t.Run("first sighting creates an entry", func(t *testing.T) {
		db := newTestDatabase(t)
		store := NewGormIdentityStore(db.DB)

		outcome, err := store.Upsert(ctx, normalized(t, "pchome", "A1", "Widget Pro 128GB", "1000", scrapedAt))
		require.NoError(t, err)

		assert.True(t, outcome.Created)
		assert.False(t, outcome.Previous.Exists)
		assert.Equal(t, 0, outcome.Changed.Len())

		found, err := store.FindByNaturalKey(ctx, catalog.NaturalKey{Platform: "pchome", PlatformProductID: "A1"})
		require.NoError(t, err)
		assert.Equal(t, outcome.Entry.ID, found.ID)
		assert.True(t, found.CurrentPrice.Decimal.Equal(decimal.NewFromInt(1000)))
		assert.True(t, found.Available)
		assert.Equal(t, scrapedAt, found.FirstSeenAt.UTC())
	})

	t.Run("identical record is unchanged", func(t *testing.T) {
		db := newTestDatabase(t)
		store := NewGormIdentityStore(db.DB)
		rec := normalized(t, "pchome", "A1", "Widget Pro 128GB", "1000", scrapedAt)

		first, err := store.Upsert(ctx, rec)
		require.NoError(t, err)
		second, err := store.Upsert(ctx, rec)
		require.NoError(t, err)

		assert.True(t, second.Unchanged())
		assert.Equal(t, first.Entry.ID, second.Entry.ID)
		assert.Equal(t, first.Entry.Version, second.Entry.Version)

		count, err := store.Count(ctx, catalog.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("price change updates in place", func(t *testing.T) {
		db := newTestDatabase(t)
		store := NewGormIdentityStore(db.DB)

		first, err := store.Upsert(ctx, normalized(t, "pchome", "A1", "Widget Pro 128GB", "1000", scrapedAt))
		require.NoError(t, err)
		second, err := store.Upsert(ctx, normalized(t, "pchome", "A1", "Widget Pro 128GB", "900", scrapedAt.Add(time.Hour)))
		require.NoError(t, err)

		assert.False(t, second.Created)
		assert.True(t, second.Changed.Has(catalog.FieldPrice))
		assert.True(t, second.Previous.Exists)
		assert.True(t, second.Previous.Price.Decimal.Equal(decimal.NewFromInt(1000)))
		assert.Equal(t, first.Entry.ID, second.Entry.ID)

		found, err := store.FindByID(ctx, first.Entry.ID)
		require.NoError(t, err)
		assert.True(t, found.CurrentPrice.Decimal.Equal(decimal.NewFromInt(900)))
		assert.Equal(t, first.Entry.Version+1, found.Version)
		assert.Equal(t, scrapedAt.Add(time.Hour), found.LastUpdatedAt.UTC())
	})

	t.Run("missing price marks the entry unavailable", func(t *testing.T) {
		db := newTestDatabase(t)
		store := NewGormIdentityStore(db.DB)

		_, err := store.Upsert(ctx, normalized(t, "momo", "M1", "Widget", "500", scrapedAt))
		require.NoError(t, err)
		outcome, err := store.Upsert(ctx, normalized(t, "momo", "M1", "Widget", "", scrapedAt.Add(time.Hour)))
		require.NoError(t, err)

		assert.True(t, outcome.Changed.Has(catalog.FieldAvailability))
		assert.True(t, outcome.Changed.Has(catalog.FieldPrice))

		found, err := store.FindByID(ctx, outcome.Entry.ID)
		require.NoError(t, err)
		assert.False(t, found.Available)
		assert.False(t, found.CurrentPrice.Valid)
	})

	t.Run("same product id on another platform is a different entry", func(t *testing.T) {
		db := newTestDatabase(t)
		store := NewGormIdentityStore(db.DB)

		a, err := store.Upsert(ctx, normalized(t, "pchome", "X", "Widget", "100", scrapedAt))
		require.NoError(t, err)
		b, err := store.Upsert(ctx, normalized(t, "momo", "X", "Widget", "100", scrapedAt))
		require.NoError(t, err)

		assert.True(t, b.Created)
		assert.NotEqual(t, a.Entry.ID, b.Entry.ID)
	})

	t.Run("lost insert race is retried as an update", func(t *testing.T) {
		db := newTestDatabase(t)
		store := NewGormIdentityStore(db.DB)
		root := db.DB

		rival := catalog.NewEntry(normalized(t, "pchome", "A1", "Widget Pro 128GB", "1200", scrapedAt))
		raced := false
		err := root.Callback().Query().After("gorm:query").Register("test:race_insert", func(tx *gorm.DB) {
			if raced || tx.Statement.Table != "catalog_entries" {
				return
			}
			raced = true
			require.NoError(t, root.Session(&gorm.Session{NewDB: true}).
				Create(models.CatalogEntryModelFromDomain(rival)).Error)
		})
		require.NoError(t, err)

		outcome, err := store.Upsert(ctx, normalized(t, "pchome", "A1", "Widget Pro 128GB", "1000", scrapedAt))
		require.NoError(t, err)

		assert.True(t, raced)
		assert.False(t, outcome.Created)
		assert.Equal(t, rival.ID, outcome.Entry.ID)
		assert.True(t, outcome.Changed.Has(catalog.FieldPrice))

		count, err := store.Count(ctx, catalog.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestGormIdentityStore_Queries(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	store := NewGormIdentityStore(db.DB)

	seed := func(platform, id, name, price string) *catalog.Entry {
		outcome, err := store.Upsert(ctx, normalized(t, platform, id, name, price, scrapedAt))
		require.NoError(t, err)
		return outcome.Entry
	}
	cheap := seed("pchome", "P1", "Widget Pro 128GB", "700")
	pricey := seed("momo", "M1", "Widget Pro 128GB", "950")
	gone := seed("momo", "M2", "Widget Pro 256GB", "")
	other := seed("momo", "M3", "Gadget 50% Off", "300")

	t.Run("FindByID returns ErrNotFound for unknown ids", func(t *testing.T) {
		_, err := store.FindByID(ctx, uuid.New())
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("FindByIDs skips missing ids", func(t *testing.T) {
		entries, err := store.FindByIDs(ctx, []uuid.UUID{cheap.ID, uuid.New(), pricey.ID})
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("ListLive excludes the seed platform and respects the price range", func(t *testing.T) {
		entries, err := store.ListLive(ctx, catalog.LiveFilter{
			ExcludePlatform: "pchome",
			MinPrice:        decimal.NewNullDecimal(decimal.NewFromInt(490)),
			MaxPrice:        decimal.NewNullDecimal(decimal.NewFromInt(1000)),
		})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, pricey.ID, entries[0].ID)
	})

	t.Run("ListLive never returns unavailable entries", func(t *testing.T) {
		entries, err := store.ListLive(ctx, catalog.LiveFilter{})
		require.NoError(t, err)
		for _, e := range entries {
			assert.NotEqual(t, gone.ID, e.ID)
		}
		assert.Len(t, entries, 3)
	})

	t.Run("SearchByName requires every term and orders by price", func(t *testing.T) {
		entries, err := store.SearchByName(ctx, []string{"widget", "128gb"}, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, cheap.ID, entries[0].ID)
		assert.Equal(t, pricey.ID, entries[1].ID)
	})

	t.Run("SearchByName treats percent literally", func(t *testing.T) {
		entries, err := store.SearchByName(ctx, []string{"50%"}, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, other.ID, entries[0].ID)
	})

	t.Run("List pages and filters by platform", func(t *testing.T) {
		filter := catalog.ListFilter{Filter: shared.DefaultFilter()}
		filter.PageSize = 2
		filter.OrderBy = "current_price"
		filter.OrderDir = "asc"
		filter.Platform = "momo"

		page1, err := store.List(ctx, filter)
		require.NoError(t, err)
		require.Len(t, page1, 2)
		for _, e := range page1 {
			assert.Equal(t, "momo", e.Platform)
		}

		filter.Page = 2
		page2, err := store.List(ctx, filter)
		require.NoError(t, err)
		assert.Len(t, page2, 1)
	})

	t.Run("List filters by words and price range, cheapest first", func(t *testing.T) {
		filter := catalog.ListFilter{
			Filter:   shared.Filter{Search: "widget 128GB", OrderBy: "current_price", OrderDir: "asc"},
			MinPrice: decimal.NewNullDecimal(decimal.NewFromInt(500)),
			MaxPrice: decimal.NewNullDecimal(decimal.NewFromInt(1000)),
		}
		entries, err := store.List(ctx, filter)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, cheap.ID, entries[0].ID)
		assert.Equal(t, pricey.ID, entries[1].ID)

		filter.MaxPrice = decimal.NewNullDecimal(decimal.NewFromInt(800))
		count, err := store.Count(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Count ignores paging", func(t *testing.T) {
		count, err := store.Count(ctx, catalog.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(4), count)

		count, err = store.Count(ctx, catalog.ListFilter{Filter: shared.Filter{Platform: "momo", Page: 2, PageSize: 1}})
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})
}

func TestGormIdentityStore_LocksRowsOnPostgres(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	mock.ExpectQuery(`SELECT \* FROM "catalog_entries" WHERE platform = \$1 AND platform_product_id = \$2 .*FOR UPDATE`).
		WillReturnError(errors.New("connection reset"))

	rec := ingestion.NormalizedRecord{Platform: "pchome", PlatformProductID: "A1", Name: "Widget", CanonicalName: "widget"}
	_, err := NewGormIdentityStore(db.DB).Upsert(context.Background(), rec)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}
