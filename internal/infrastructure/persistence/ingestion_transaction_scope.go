package persistence

import (
	"context"

	appingest "github.com/pricedragon/backend/internal/application/ingestion"
	"github.com/pricedragon/backend/internal/domain/catalog"
	"github.com/pricedragon/backend/internal/domain/pricing"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appingest.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// IdentityStore returns the identity store scoped to the current transaction.
func (r *gormTransactionalRepositories) IdentityStore() catalog.IdentityStore {
	return NewGormIdentityStore(r.tx)
}

// Ledger returns the price ledger scoped to the current transaction.
func (r *gormTransactionalRepositories) Ledger() pricing.Ledger {
	return NewGormPriceLedger(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appingest.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appingest.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
