package reservation

import (
	"context"
	"time"
)

// Overlaps is the booking conflict rule. Both ends are inclusive, so a stay
// ending on the day another begins still conflicts.
func Overlaps(start, end, existingStart, existingEnd time.Time) bool {
	return !start.After(existingEnd) && !end.Before(existingStart)
}

type overlapFinder interface {
	HasOverlap(ctx context.Context, listingID string, start, end time.Time, excludeID string) (bool, error)
}

// AvailabilityChecker answers whether a listing is free for a date range,
// ignoring cancelled reservations.
type AvailabilityChecker struct {
	repo overlapFinder
}

func NewAvailabilityChecker(repo overlapFinder) *AvailabilityChecker {
	return &AvailabilityChecker{repo: repo}
}

// IsAvailable expects start < end; excludeID skips one reservation, used
// when re-checking a reservation against its own calendar.
func (a *AvailabilityChecker) IsAvailable(ctx context.Context, listingID string, start, end time.Time, excludeID string) (bool, error) {
	taken, err := a.repo.HasOverlap(ctx, listingID, start, end, excludeID)
	if err != nil {
		return false, err
	}
	return !taken, nil
}
