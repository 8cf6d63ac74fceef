package firmware

import (
	"context"
	"sync"
	"time"

	"github.com/koios/trmnl-renderer/pkg/models"
)

// Store caches the latest firmware descriptor for a bounded time
type Store interface {
	Get(ctx context.Context) (*models.Firmware, bool, error)
	Set(ctx context.Context, fw *models.Firmware, ttl time.Duration) error
}

// MemoryStore keeps the descriptor in process memory. Expiry is evaluated
// against the injected clock.
type MemoryStore struct {
	mu        sync.Mutex
	now       func() time.Time
	firmware  *models.Firmware
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory store. A nil clock defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{now: now}
}

// Get returns the cached descriptor if it has not expired
func (s *MemoryStore) Get(_ context.Context) (*models.Firmware, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.firmware == nil || !s.now().Before(s.expiresAt) {
		return nil, false, nil
	}
	fw := *s.firmware
	return &fw, true, nil
}

// Set stores a copy of the descriptor for ttl
func (s *MemoryStore) Set(_ context.Context, fw *models.Firmware, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *fw
	s.firmware = &copied
	s.expiresAt = s.now().Add(ttl)
	return nil
}
