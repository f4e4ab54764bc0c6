package reservation

import (
	"time"

	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/pkg/apperror"
)

var (
	ErrNotFound                  = apperror.NotFound("reservation not found")
	ErrListingNotFound           = apperror.NotFound("listing not found")
	ErrNotAvailable              = apperror.BadRequest("listing is not available for the selected dates")
	ErrDateConflict              = apperror.Conflict("dates were booked by a concurrent reservation")
	ErrConcurrentUpdate          = apperror.Conflict("reservation was modified concurrently, retry")
	ErrInvalidDateRange          = apperror.BadRequest("end date must be after start date")
	ErrInvalidGuestCount         = apperror.BadRequest("guest count must be positive")
	ErrUnauthorized              = apperror.Unauthorized("not authorized to access this reservation")
	ErrPaymentConfirmationFailed = apperror.BadRequest("payment confirmation failed")
	ErrRefundFailed              = apperror.BadRequest("failed to process refund")
	ErrPaymentIntentRequired     = apperror.BadRequest("payment intent id is required")
	ErrPaymentIntentMismatch     = apperror.BadRequest("payment intent does not belong to this reservation")
	ErrPaymentIntentInUse        = apperror.Conflict("payment intent is already used by another reservation")
	ErrGatewayUnavailable        = apperror.Unavailable("payment gateway unavailable, retry later")
	ErrInvalidTransition         = apperror.BadRequest("status transition not allowed")
	ErrReservationClosed         = apperror.BadRequest("reservation is already cancelled or completed")
	ErrPaidReschedule            = apperror.BadRequest("paid reservations cannot be rescheduled, cancel and book again")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// State is the pair the lifecycle moves through.
type State struct {
	Status        Status
	PaymentStatus PaymentStatus
}

type Reservation struct {
	ID              string
	ListingID       string
	UserID          string
	StartDate       time.Time
	EndDate         time.Time
	GuestCount      int
	TotalAmount     int64 // smallest currency unit
	Status          Status
	PaymentStatus   PaymentStatus
	PaymentIntentID string // empty when not yet known
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (r Reservation) State() State {
	return State{Status: r.Status, PaymentStatus: r.PaymentStatus}
}

// OwnedBy reports whether the requester may act on r.
func (r *Reservation) OwnedBy(requesterID string, isAdmin bool) bool {
	return isAdmin || (requesterID != "" && r.UserID == requesterID)
}

type Filter struct {
	ListingID string
	UserID    string
	Status    string
	StartDate *time.Time // reservations ending on or after
	EndDate   *time.Time // reservations starting on or before
	MinAmount *int64
	MaxAmount *int64
	Page      int
	PageSize  int
}
