package persistence

import (
	"testing"
	"time"

	"github.com/pricedragon/backend/internal/domain/ingestion"
	"github.com/pricedragon/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/require"
)

var scrapedAt = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// newTestDatabase opens a migrated in-memory sqlite database
func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// normalized builds a record through the real normalizer. An empty price
// produces an out-of-stock listing.
func normalized(t *testing.T, platform, id, name, price string, at time.Time) ingestion.NormalizedRecord {
	t.Helper()
	raw := ingestion.RawRecord{
		Platform:          platform,
		PlatformProductID: ingestion.StringPtr(id),
		Name:              name,
		URL:               "https://" + platform + ".example/item/" + id,
		ScrapedAt:         at,
	}
	if price != "" {
		raw.Price = ingestion.StringPtr(price)
	}
	rec, err := ingestion.NewNormalizer().Normalize(raw)
	require.NoError(t, err)
	return rec
}
