package ingestion

import (
	"context"

	"github.com/pricedragon/backend/internal/domain/catalog"
	"github.com/pricedragon/backend/internal/domain/pricing"
)

// TransactionScope provides transactional access to the catalog and the price ledger.
// One record's identity upsert and its observation commit or roll back together.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to repositories sharing one transaction.
type TransactionalRepositories interface {
	// IdentityStore returns the catalog writer scoped to the current transaction
	IdentityStore() catalog.IdentityStore
	// Ledger returns the price ledger scoped to the current transaction
	Ledger() pricing.Ledger
}

// NoOpTransactionScope is a transaction scope that doesn't actually use transactions.
// This is useful for testing with in-memory or mocked repositories.
type NoOpTransactionScope struct {
	identityStore catalog.IdentityStore
	ledger        pricing.Ledger
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(identityStore catalog.IdentityStore, ledger pricing.Ledger) *NoOpTransactionScope {
	return &NoOpTransactionScope{identityStore: identityStore, ledger: ledger}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// IdentityStore returns the identity store.
func (s *NoOpTransactionScope) IdentityStore() catalog.IdentityStore {
	return s.identityStore
}

// Ledger returns the price ledger.
func (s *NoOpTransactionScope) Ledger() pricing.Ledger {
	return s.ledger
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
