package listing

import (
	"context"
	"sync"
)

// MemoryRepository keeps listings in a map. Used for local runs and tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	listings map[string]Listing
}

func NewMemoryRepository(listings ...Listing) *MemoryRepository {
	r := &MemoryRepository{listings: make(map[string]Listing, len(listings))}
	for _, l := range listings {
		r.listings[l.ID] = l
	}
	return r
}

// Put inserts or replaces a listing.
func (r *MemoryRepository) Put(l Listing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings[l.ID] = l
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}
