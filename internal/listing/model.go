package listing

import (
	"context"
	"net/http"

	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/pkg/apperror"
)

var ErrNotFound = apperror.New(http.StatusNotFound, "listing not found")

// Price amounts are in the smallest currency unit.
type Price struct {
	BasePrice   int64 `json:"basePrice"`
	CleaningFee int64 `json:"cleaningFee"`
	ServiceFee  int64 `json:"serviceFee"`
}

// Listing is the read-only view of a rentable property needed for pricing.
type Listing struct {
	ID    string `json:"id"`
	Price Price  `json:"price"`
}

// Repository is the read side of the listing catalogue.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Listing, error)
}
