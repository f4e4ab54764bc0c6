package http

import (
	"time"

	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/pkg/request"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/reservation"
)

// ListReservationsRequest defines query parameters for listing reservations.
type ListReservationsRequest struct {
	request.ListParams
	ListingID string            `form:"listingId"`
	UserID    string            `form:"userId" binding:"omitempty,uuid"`
	Status    string            `form:"status" binding:"omitempty,oneof=pending confirmed cancelled completed"`
	StartDate *request.DateTime `form:"startDate"`
	EndDate   *request.DateTime `form:"endDate"`
	MinAmount *int64            `form:"minAmount" binding:"omitempty,min=0"`
	MaxAmount *int64            `form:"maxAmount" binding:"omitempty,min=0"`
}

// Validate performs custom validation for ListReservationsRequest.
func (r *ListReservationsRequest) Validate() error {
	if r.StartDate != nil && r.EndDate != nil && r.StartDate.After(r.EndDate.Time) {
		return reservation.ErrInvalidDateRange
	}
	return nil
}

func (r *ListReservationsRequest) Filter() reservation.Filter {
	return reservation.Filter{
		ListingID: r.ListingID,
		UserID:    r.UserID,
		Status:    r.Status,
		StartDate: r.StartDate.Ptr(),
		EndDate:   r.EndDate.Ptr(),
		MinAmount: r.MinAmount,
		MaxAmount: r.MaxAmount,
		Page:      r.Page,
		PageSize:  r.Limit,
	}
}

type ReservationResponse struct {
	ID              string    `json:"id"`
	ListingID       string    `json:"listingId"`
	UserID          string    `json:"userId"`
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
	GuestCount      int       `json:"guestCount"`
	TotalAmount     int64     `json:"totalAmount"`
	Status          string    `json:"status"`
	PaymentStatus   string    `json:"paymentStatus"`
	PaymentIntentID *string   `json:"paymentIntentId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func NewReservationResponse(r *reservation.Reservation) ReservationResponse {
	resp := ReservationResponse{
		ID:            r.ID,
		ListingID:     r.ListingID,
		UserID:        r.UserID,
		StartDate:     r.StartDate,
		EndDate:       r.EndDate,
		GuestCount:    r.GuestCount,
		TotalAmount:   r.TotalAmount,
		Status:        string(r.Status),
		PaymentStatus: string(r.PaymentStatus),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.PaymentIntentID != "" {
		id := r.PaymentIntentID
		resp.PaymentIntentID = &id
	}
	return resp
}

type CreateReservationRequest struct {
	ListingID       string            `json:"listingId" binding:"required"`
	StartDate       *request.DateTime `json:"startDate" binding:"required"`
	EndDate         *request.DateTime `json:"endDate" binding:"required"`
	GuestCount      int               `json:"guestCount" binding:"required,min=1"`
	PaymentIntentID string            `json:"paymentIntentId"`
}

// Validate performs custom validation for CreateReservationRequest.
func (r *CreateReservationRequest) Validate() error {
	if !r.EndDate.After(r.StartDate.Time) {
		return reservation.ErrInvalidDateRange
	}
	return nil
}

type UpdateReservationRequest struct {
	StartDate     *request.DateTime `json:"startDate"`
	EndDate       *request.DateTime `json:"endDate"`
	GuestCount    *int              `json:"guestCount" binding:"omitempty,min=1"`
	Status        *string           `json:"status" binding:"omitempty,oneof=pending confirmed cancelled completed"`
	PaymentStatus *string           `json:"paymentStatus" binding:"omitempty,oneof=pending completed failed refunded"`
}

func (r *UpdateReservationRequest) ToDomain() reservation.UpdateRequest {
	req := reservation.UpdateRequest{
		StartDate:  r.StartDate.Ptr(),
		EndDate:    r.EndDate.Ptr(),
		GuestCount: r.GuestCount,
	}
	if r.Status != nil {
		st := reservation.Status(*r.Status)
		req.Status = &st
	}
	if r.PaymentStatus != nil {
		ps := reservation.PaymentStatus(*r.PaymentStatus)
		req.PaymentStatus = &ps
	}
	return req
}

type ConfirmPaymentRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}
