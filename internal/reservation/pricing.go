package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/listing"
)

const day = 24 * time.Hour

// Nights counts started 24h periods between start and end.
func Nights(start, end time.Time) int64 {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	n := int64(d / day)
	if d%day != 0 {
		n++
	}
	return n
}

// TotalAmount is the nightly base price times nights plus the one-time
// cleaning and service fees, floored at zero.
func TotalAmount(p listing.Price, nights int64) int64 {
	total := p.BasePrice*nights + p.CleaningFee + p.ServiceFee
	if total < 0 {
		return 0
	}
	return total
}

// PricingCalculator prices a stay from the listing's current price.
type PricingCalculator struct {
	listings listing.Repository
}

func NewPricingCalculator(listings listing.Repository) *PricingCalculator {
	return &PricingCalculator{listings: listings}
}

func (c *PricingCalculator) CalculateTotalAmount(ctx context.Context, listingID string, start, end time.Time) (int64, error) {
	l, err := c.listings.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, listing.ErrNotFound) {
			return 0, ErrListingNotFound
		}
		return 0, fmt.Errorf("load listing price: %w", err)
	}
	return TotalAmount(l.Price, Nights(start, end)), nil
}
