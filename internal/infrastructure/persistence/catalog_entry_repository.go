package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/catalog"
	"github.com/pricedragon/backend/internal/domain/ingestion"
	"github.com/pricedragon/backend/internal/domain/shared"
	"github.com/pricedragon/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormIdentityStore implements catalog.IdentityStore using GORM
type GormIdentityStore struct {
	db *gorm.DB
}

// NewGormIdentityStore creates a new GormIdentityStore
func NewGormIdentityStore(db *gorm.DB) *GormIdentityStore {
	return &GormIdentityStore{db: db}
}

// Upsert resolves rec to exactly one catalog entry. A lost insert race
// surfaces as a unique violation and is retried once as an update.
func (s *GormIdentityStore) Upsert(ctx context.Context, rec ingestion.NormalizedRecord) (*catalog.UpsertOutcome, error) {
	db := s.db.WithContext(ctx)

	outcome, err := s.upsertOnce(db, rec)
	if err == nil {
		return outcome, nil
	}
	if !errors.Is(err, catalog.ErrIdentityConflict) {
		return nil, err
	}
	return s.upsertOnce(db, rec)
}

func (s *GormIdentityStore) upsertOnce(db *gorm.DB, rec ingestion.NormalizedRecord) (*catalog.UpsertOutcome, error) {
	key := catalog.NaturalKey{Platform: rec.Platform, PlatformProductID: rec.PlatformProductID}

	existing, err := s.lockByNaturalKey(db, key)
	if errors.Is(err, shared.ErrNotFound) {
		entry := catalog.NewEntry(rec)
		if err := s.insert(db, entry); err != nil {
			return nil, err
		}
		return &catalog.UpsertOutcome{Entry: entry, Created: true, Changed: catalog.NewChangedFields()}, nil
	}
	if err != nil {
		return nil, err
	}

	previous := existing.PriceSnapshot()
	version := existing.Version
	changed := existing.Reconcile(rec)
	if changed.Len() > 0 {
		if err := s.update(db, existing, version); err != nil {
			return nil, err
		}
	}
	return &catalog.UpsertOutcome{Entry: existing, Changed: changed, Previous: previous}, nil
}

// lockByNaturalKey reads the entry, holding a row lock on postgres until the
// surrounding transaction ends.
func (s *GormIdentityStore) lockByNaturalKey(db *gorm.DB, key catalog.NaturalKey) (*catalog.Entry, error) {
	query := db.Where("platform = ? AND platform_product_id = ?", key.Platform, key.PlatformProductID)
	if isPostgres(db) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var model models.CatalogEntryModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// insert runs in its own savepoint so a unique violation leaves the
// caller's transaction usable for the retry.
func (s *GormIdentityStore) insert(db *gorm.DB, entry *catalog.Entry) error {
	model := models.CatalogEntryModelFromDomain(entry)
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(model).Error
	})
	if isUniqueViolation(err) {
		return catalog.ErrIdentityConflict
	}
	return err
}

// update writes every mutable column, guarded by the version read earlier
func (s *GormIdentityStore) update(db *gorm.DB, entry *catalog.Entry, expectedVersion int) error {
	result := db.Model(&models.CatalogEntryModel{}).
		Where("id = ? AND version = ?", entry.ID, expectedVersion).
		Updates(map[string]interface{}{
			"name":            entry.Name,
			"canonical_name":  entry.CanonicalName,
			"match_key":       entry.MatchKey,
			"brand":           entry.Brand,
			"current_price":   entry.CurrentPrice,
			"original_price":  entry.OriginalPrice,
			"currency":        entry.Currency,
			"available":       entry.Available,
			"url":             entry.URL,
			"image_url":       entry.ImageURL,
			"last_updated_at": entry.LastUpdatedAt,
			"updated_at":      entry.UpdatedAt,
			"version":         entry.Version,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// FindByID finds an entry by its surrogate id
func (s *GormIdentityStore) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Entry, error) {
	var model models.CatalogEntryModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByNaturalKey finds an entry by platform and platform product id
func (s *GormIdentityStore) FindByNaturalKey(ctx context.Context, key catalog.NaturalKey) (*catalog.Entry, error) {
	var model models.CatalogEntryModel
	if err := s.db.WithContext(ctx).
		Where("platform = ? AND platform_product_id = ?", key.Platform, key.PlatformProductID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs finds several entries; missing ids are skipped
func (s *GormIdentityStore) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.Entry, error) {
	if len(ids) == 0 {
		return []catalog.Entry{}, nil
	}
	var rows []models.CatalogEntryModel
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEntries(rows), nil
}

// ListLive returns available, priced entries matching the filter
func (s *GormIdentityStore) ListLive(ctx context.Context, filter catalog.LiveFilter) ([]catalog.Entry, error) {
	query := s.liveQuery(ctx)
	if filter.ExcludePlatform != "" {
		query = query.Where("platform <> ?", filter.ExcludePlatform)
	}
	if filter.MinPrice.Valid {
		query = query.Where("current_price >= ?", filter.MinPrice.Decimal)
	}
	if filter.MaxPrice.Valid {
		query = query.Where("current_price <= ?", filter.MaxPrice.Decimal)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []models.CatalogEntryModel
	if err := query.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEntries(rows), nil
}

// SearchByName returns live entries whose canonical name contains every term
func (s *GormIdentityStore) SearchByName(ctx context.Context, terms []string, limit int) ([]catalog.Entry, error) {
	query := s.liveQuery(ctx)
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		query = query.Where("LOWER(canonical_name) LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(term))+"%")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.CatalogEntryModel
	if err := query.Order("current_price ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEntries(rows), nil
}

// List returns one page of the entries matching filter
func (s *GormIdentityStore) List(ctx context.Context, filter catalog.ListFilter) ([]catalog.Entry, error) {
	query := s.filtered(ctx, filter).
		Order(catalogEntrySort.OrderClause(filter.OrderBy, filter.OrderDir)).
		Order("id")
	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	var rows []models.CatalogEntryModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEntries(rows), nil
}

// Count counts the entries matching filter, ignoring paging
func (s *GormIdentityStore) Count(ctx context.Context, filter catalog.ListFilter) (int64, error) {
	var count int64
	if err := s.filtered(ctx, filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *GormIdentityStore) filtered(ctx context.Context, filter catalog.ListFilter) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.CatalogEntryModel{})
	for _, word := range strings.Fields(strings.ToLower(filter.Search)) {
		query = query.Where("LOWER(canonical_name) LIKE ? ESCAPE '\\'", "%"+escapeLike(word)+"%")
	}
	if filter.Platform != "" {
		query = query.Where("platform = ?", filter.Platform)
	}
	if filter.Available != nil {
		query = query.Where("available = ?", *filter.Available)
	}
	if filter.MinPrice.Valid {
		query = query.Where("current_price >= ?", filter.MinPrice.Decimal)
	}
	if filter.MaxPrice.Valid {
		query = query.Where("current_price <= ?", filter.MaxPrice.Decimal)
	}
	return query
}

func (s *GormIdentityStore) liveQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.CatalogEntryModel{}).
		Where("available = ? AND current_price IS NOT NULL", true)
}

func toEntries(rows []models.CatalogEntryModel) []catalog.Entry {
	entries := make([]catalog.Entry, len(rows))
	for i := range rows {
		entries[i] = *rows[i].ToDomain()
	}
	return entries
}

// escapeLike escapes LIKE wildcards in user input
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

// Ensure GormIdentityStore implements catalog.IdentityStore
var _ catalog.IdentityStore = (*GormIdentityStore)(nil)
