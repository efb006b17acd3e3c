package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/shared"
)

// lease represents a held lock with expiration
type lease struct {
	token     string
	expiresAt time.Time
}

// InMemoryRunLocker implements RunLocker with an in-process map.
// This is suitable for single-instance deployments and testing.
type InMemoryRunLocker struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

// NewInMemoryRunLocker creates a new in-memory run locker
func NewInMemoryRunLocker() *InMemoryRunLocker {
	return &InMemoryRunLocker{
		leases: make(map[string]lease),
		now:    time.Now,
	}
}

// Acquire takes the lock for key unless an unexpired lease exists
func (l *InMemoryRunLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.leases[key]; ok && now.Before(held.expiresAt) {
		return nil, shared.ErrRunInProgress
	}

	token := uuid.NewString()
	l.leases[key] = lease{token: token, expiresAt: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// An expired lease may already belong to someone else.
		if held, ok := l.leases[key]; ok && held.token == token {
			delete(l.leases, key)
		}
		return nil
	}, nil
}

// Held reports whether key currently has an unexpired lease
func (l *InMemoryRunLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	held, ok := l.leases[key]
	return ok && l.now().Before(held.expiresAt)
}

// Close releases all leases
func (l *InMemoryRunLocker) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.leases = make(map[string]lease)
	return nil
}

// Ensure InMemoryRunLocker implements RunLocker
var _ shared.RunLocker = (*InMemoryRunLocker)(nil)
