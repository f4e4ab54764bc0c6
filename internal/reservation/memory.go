package reservation

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps reservations in process. Calendar locks are one
// mutex per listing, so it is only correct within a single instance.
type MemoryRepository struct {
	mu           sync.RWMutex
	reservations map[string]Reservation
	now          func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		reservations: make(map[string]Reservation),
		locks:        make(map[string]*sync.Mutex),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryRepository) listingLock(listingID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[listingID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[listingID] = l
	}
	return l
}

func (m *MemoryRepository) WithListingLock(ctx context.Context, listingID string, fn func(repo Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := m.listingLock(listingID)
	l.Lock()
	defer l.Unlock()
	return fn(m)
}

func (m *MemoryRepository) Create(_ context.Context, r *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Same guard as the exclusion constraint in Postgres.
	if r.Status != StatusCancelled && m.overlapsLocked(r.ListingID, r.StartDate, r.EndDate, "") {
		return ErrDateConflict
	}
	if m.intentUsedLocked(r.PaymentIntentID, "") {
		return ErrPaymentIntentInUse
	}

	now := m.now()
	r.ID = uuid.NewString()
	r.CreatedAt = now
	r.UpdatedAt = now
	m.reservations[r.ID] = *r
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id string) (*Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reservations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryRepository) List(_ context.Context, f Filter) ([]*Reservation, int, error) {
	m.mu.RLock()
	var matched []*Reservation
	for _, r := range m.reservations {
		r := r
		if matches(r, f) {
			matched = append(matched, &r)
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *Reservation) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		return 1
	})

	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 20
	}
	total := len(matched)
	from := min((f.Page-1)*f.PageSize, total)
	to := min(from+f.PageSize, total)
	return matched[from:to], total, nil
}

func matches(r Reservation, f Filter) bool {
	switch {
	case f.ListingID != "" && r.ListingID != f.ListingID,
		f.UserID != "" && r.UserID != f.UserID,
		f.Status != "" && string(r.Status) != f.Status,
		f.StartDate != nil && r.EndDate.Before(*f.StartDate),
		f.EndDate != nil && r.StartDate.After(*f.EndDate),
		f.MinAmount != nil && r.TotalAmount < *f.MinAmount,
		f.MaxAmount != nil && r.TotalAmount > *f.MaxAmount:
		return false
	}
	return true
}

func (m *MemoryRepository) Update(_ context.Context, r *Reservation, prev State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.reservations[r.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.State() != prev {
		return ErrConcurrentUpdate
	}
	if r.Status != StatusCancelled && m.overlapsLocked(r.ListingID, r.StartDate, r.EndDate, r.ID) {
		return ErrDateConflict
	}
	if m.intentUsedLocked(r.PaymentIntentID, r.ID) {
		return ErrPaymentIntentInUse
	}

	r.UpdatedAt = m.now()
	m.reservations[r.ID] = *r
	return nil
}

func (m *MemoryRepository) HasOverlap(_ context.Context, listingID string, start, end time.Time, excludeID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overlapsLocked(listingID, start, end, excludeID), nil
}

func (m *MemoryRepository) overlapsLocked(listingID string, start, end time.Time, excludeID string) bool {
	for id, r := range m.reservations {
		if r.ListingID != listingID || r.Status == StatusCancelled || id == excludeID {
			continue
		}
		if Overlaps(start, end, r.StartDate, r.EndDate) {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) PaymentIntentInUse(_ context.Context, paymentIntentID, excludeID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.intentUsedLocked(paymentIntentID, excludeID), nil
}

// intentUsedLocked mirrors the partial unique index on payment_intent_id.
func (m *MemoryRepository) intentUsedLocked(paymentIntentID, excludeID string) bool {
	if paymentIntentID == "" {
		return false
	}
	for id, r := range m.reservations {
		if id != excludeID && r.PaymentIntentID == paymentIntentID {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) CompleteEnded(_ context.Context, before time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	now := m.now()
	for id, r := range m.reservations {
		if r.Status == StatusConfirmed && r.EndDate.Before(before) {
			r.Status = StatusCompleted
			r.UpdatedAt = now
			m.reservations[id] = r
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *MemoryRepository) ExpirePending(_ context.Context, createdBefore time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	now := m.now()
	for id, r := range m.reservations {
		if r.Status == StatusPending && r.PaymentStatus == PaymentPending && r.CreatedAt.Before(createdBefore) {
			r.Status = StatusCancelled
			r.UpdatedAt = now
			m.reservations[id] = r
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}
