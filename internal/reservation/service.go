package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/listing"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/payment"
)

type CreateRequest struct {
	ListingID       string
	UserID          string
	StartDate       time.Time
	EndDate         time.Time
	GuestCount      int
	PaymentIntentID string
}

// UpdateRequest holds optional changes; nil fields are left as they are.
type UpdateRequest struct {
	StartDate     *time.Time
	EndDate       *time.Time
	GuestCount    *int
	Status        *Status
	PaymentStatus *PaymentStatus
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Reservation, error)
	GetByID(ctx context.Context, id string, requesterID string, isAdmin bool) (*Reservation, error)
	List(ctx context.Context, filter Filter, requesterID string, isAdmin bool) ([]*Reservation, int, error)
	Update(ctx context.Context, id string, req UpdateRequest, requesterID string, isAdmin bool) (*Reservation, error)
	ConfirmPayment(ctx context.Context, id string, paymentIntentID string, requesterID string, isAdmin bool) (*Reservation, error)
	Cancel(ctx context.Context, id string, requesterID string, isAdmin bool) (*Reservation, error)
}

type service struct {
	repo    Repository
	pricing *PricingCalculator
	gateway payment.Gateway
	logger  *slog.Logger
}

func NewService(repo Repository, listings listing.Repository, gateway payment.Gateway, logger *slog.Logger) Service {
	return &service{
		repo:    repo,
		pricing: NewPricingCalculator(listings),
		gateway: gateway,
		logger:  logger,
	}
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*Reservation, error) {
	if !req.EndDate.After(req.StartDate) {
		return nil, ErrInvalidDateRange
	}
	if req.GuestCount <= 0 {
		return nil, ErrInvalidGuestCount
	}

	total, err := s.pricing.CalculateTotalAmount(ctx, req.ListingID, req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	res := &Reservation{
		ListingID:       req.ListingID,
		UserID:          req.UserID,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		GuestCount:      req.GuestCount,
		TotalAmount:     total,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		PaymentIntentID: req.PaymentIntentID,
	}

	err = s.repo.WithListingLock(ctx, req.ListingID, func(repo Repository) error {
		ok, err := NewAvailabilityChecker(repo).IsAvailable(ctx, req.ListingID, req.StartDate, req.EndDate, "")
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotAvailable
		}
		return repo.Create(ctx, res)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "reservation created",
		"reservation_id", res.ID,
		"listing_id", res.ListingID,
		"user_id", res.UserID,
		"total_amount", res.TotalAmount,
	)
	return res, nil
}

// load fetches a reservation the requester is allowed to act on.
func (s *service) load(ctx context.Context, id, requesterID string, isAdmin bool) (*Reservation, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !res.OwnedBy(requesterID, isAdmin) {
		return nil, ErrUnauthorized
	}
	return res, nil
}

func (s *service) GetByID(ctx context.Context, id string, requesterID string, isAdmin bool) (*Reservation, error) {
	return s.load(ctx, id, requesterID, isAdmin)
}

func (s *service) List(ctx context.Context, filter Filter, requesterID string, isAdmin bool) ([]*Reservation, int, error) {
	if !isAdmin {
		filter.UserID = requesterID
	}
	return s.repo.List(ctx, filter)
}

func (s *service) Update(ctx context.Context, id string, req UpdateRequest, requesterID string, isAdmin bool) (*Reservation, error) {
	res, err := s.load(ctx, id, requesterID, isAdmin)
	if err != nil {
		return nil, err
	}
	if res.Status.Terminal() {
		return nil, ErrReservationClosed
	}
	prev := res.State()

	if req.GuestCount != nil {
		if *req.GuestCount <= 0 {
			return nil, ErrInvalidGuestCount
		}
		res.GuestCount = *req.GuestCount
	}

	if req.Status != nil || req.PaymentStatus != nil {
		if !isAdmin {
			return nil, ErrUnauthorized
		}
		if err := applyAdminTransition(res, req.Status, req.PaymentStatus); err != nil {
			return nil, err
		}
	}

	newStart, newEnd := res.StartDate, res.EndDate
	if req.StartDate != nil {
		newStart = *req.StartDate
	}
	if req.EndDate != nil {
		newEnd = *req.EndDate
	}
	reschedule := !newStart.Equal(res.StartDate) || !newEnd.Equal(res.EndDate)

	if !reschedule {
		if err := s.repo.Update(ctx, res, prev); err != nil {
			return nil, err
		}
		return res, nil
	}

	if !newEnd.After(newStart) {
		return nil, ErrInvalidDateRange
	}
	// The captured amount would no longer match the stay.
	if prev.PaymentStatus == PaymentCompleted {
		return nil, ErrPaidReschedule
	}

	total, err := s.pricing.CalculateTotalAmount(ctx, res.ListingID, newStart, newEnd)
	if err != nil {
		return nil, err
	}
	res.StartDate, res.EndDate, res.TotalAmount = newStart, newEnd, total

	err = s.repo.WithListingLock(ctx, res.ListingID, func(repo Repository) error {
		ok, err := NewAvailabilityChecker(repo).IsAvailable(ctx, res.ListingID, newStart, newEnd, res.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotAvailable
		}
		return repo.Update(ctx, res, prev)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "reservation rescheduled",
		"reservation_id", res.ID,
		"total_amount", res.TotalAmount,
	)
	return res, nil
}

// applyAdminTransition allows only the manual moves that never stand in for
// a gateway call: finishing a confirmed stay and failing a pending payment.
func applyAdminTransition(res *Reservation, status *Status, paymentStatus *PaymentStatus) error {
	if status != nil && *status != res.Status {
		if res.Status != StatusConfirmed || *status != StatusCompleted {
			return ErrInvalidTransition
		}
		res.Status = *status
	}
	if paymentStatus != nil && *paymentStatus != res.PaymentStatus {
		if res.PaymentStatus != PaymentPending || *paymentStatus != PaymentFailed {
			return ErrInvalidTransition
		}
		res.PaymentStatus = *paymentStatus
	}
	return nil
}

func (s *service) ConfirmPayment(ctx context.Context, id string, paymentIntentID string, requesterID string, isAdmin bool) (*Reservation, error) {
	res, err := s.load(ctx, id, requesterID, isAdmin)
	if err != nil {
		return nil, err
	}

	// Confirming twice is a no-op.
	if res.Status == StatusConfirmed && res.PaymentStatus == PaymentCompleted {
		return res, nil
	}
	if res.Status.Terminal() {
		return nil, ErrReservationClosed
	}

	intentID := res.PaymentIntentID
	if paymentIntentID != "" {
		if intentID != "" && intentID != paymentIntentID {
			return nil, ErrPaymentIntentMismatch
		}
		intentID = paymentIntentID
	}
	if intentID == "" {
		return nil, ErrPaymentIntentRequired
	}

	// One intent pays for exactly one reservation.
	inUse, err := s.repo.PaymentIntentInUse(ctx, intentID, res.ID)
	if err != nil {
		return nil, err
	}
	if inUse {
		return nil, ErrPaymentIntentInUse
	}

	result, err := s.gateway.ConfirmPayment(ctx, intentID, res.TotalAmount)
	if err != nil {
		s.logger.ErrorContext(ctx, "payment confirmation unavailable",
			"reservation_id", res.ID,
			"payment_intent_id", intentID,
			"timeout", errors.Is(err, payment.ErrGatewayTimeout),
			"error", err,
		)
		return nil, ErrGatewayUnavailable
	}
	if !result.Success {
		s.logger.WarnContext(ctx, "payment confirmation declined",
			"reservation_id", res.ID,
			"payment_intent_id", intentID,
			"reason", result.Error,
		)
		return nil, ErrPaymentConfirmationFailed
	}

	prev := res.State()
	res.Status = StatusConfirmed
	res.PaymentStatus = PaymentCompleted
	res.PaymentIntentID = intentID

	if err := s.repo.Update(ctx, res, prev); err != nil {
		if errors.Is(err, ErrConcurrentUpdate) {
			return s.afterConcurrentConfirm(ctx, id, intentID)
		}
		if errors.Is(err, ErrPaymentIntentInUse) {
			s.logger.ErrorContext(ctx, "payment captured for an intent claimed by another reservation",
				"reservation_id", id,
				"payment_intent_id", intentID,
			)
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "reservation confirmed",
		"reservation_id", res.ID,
		"payment_intent_id", intentID,
		"transaction_id", result.TransactionID,
	)
	return res, nil
}

// afterConcurrentConfirm resolves a lost race after the gateway accepted the
// payment. A parallel confirm is fine; anything else leaves money captured
// against a reservation that moved on and needs an operator.
func (s *service) afterConcurrentConfirm(ctx context.Context, id, intentID string) (*Reservation, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload reservation after concurrent update: %w", err)
	}
	if current.Status == StatusConfirmed && current.PaymentStatus == PaymentCompleted {
		return current, nil
	}
	s.logger.ErrorContext(ctx, "payment captured for a reservation that changed concurrently",
		"reservation_id", id,
		"payment_intent_id", intentID,
		"status", current.Status,
		"payment_status", current.PaymentStatus,
	)
	return nil, ErrConcurrentUpdate
}

func (s *service) Cancel(ctx context.Context, id string, requesterID string, isAdmin bool) (*Reservation, error) {
	res, err := s.load(ctx, id, requesterID, isAdmin)
	if err != nil {
		return nil, err
	}
	if res.Status.Terminal() {
		return nil, ErrReservationClosed
	}

	prev := res.State()

	if res.PaymentStatus == PaymentCompleted {
		if res.PaymentIntentID == "" {
			s.logger.ErrorContext(ctx, "paid reservation has no payment intent", "reservation_id", res.ID)
			return nil, ErrRefundFailed
		}

		// Full refund of the captured amount.
		result, err := s.gateway.ProcessRefund(ctx, res.PaymentIntentID, nil)
		if err != nil {
			s.logger.ErrorContext(ctx, "refund unavailable",
				"reservation_id", res.ID,
				"payment_intent_id", res.PaymentIntentID,
				"timeout", errors.Is(err, payment.ErrGatewayTimeout),
				"error", err,
			)
			return nil, ErrGatewayUnavailable
		}
		if !result.Success {
			s.logger.WarnContext(ctx, "refund declined",
				"reservation_id", res.ID,
				"payment_intent_id", res.PaymentIntentID,
				"reason", result.Error,
			)
			return nil, ErrRefundFailed
		}
		res.PaymentStatus = PaymentRefunded
	}

	res.Status = StatusCancelled
	if err := s.repo.Update(ctx, res, prev); err != nil {
		if res.PaymentStatus == PaymentRefunded {
			s.logger.ErrorContext(ctx, "refund issued but cancellation not saved",
				"reservation_id", res.ID,
				"payment_intent_id", res.PaymentIntentID,
				"error", err,
			)
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "reservation cancelled",
		"reservation_id", res.ID,
		"payment_status", res.PaymentStatus,
	)
	return res, nil
}
