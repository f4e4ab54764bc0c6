package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/auth"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/pkg/request"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/pkg/response"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/reservation"
)

type Handler struct {
	service reservation.Service
}

func NewHandler(service reservation.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) List(c *gin.Context) {
	var req ListReservationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "invalid query parameters", err)
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(c, err)
		return
	}
	req.Normalize()

	items, total, err := h.service.List(c.Request.Context(), req.Filter(), auth.GetUserID(c), auth.IsAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	data := make([]ReservationResponse, len(items))
	for i, r := range items {
		data[i] = NewReservationResponse(r)
	}

	c.JSON(http.StatusOK, response.NewPageResponse(data, req.Page, req.Limit, total))
}

func (h *Handler) Get(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequest(c, "invalid reservation id", err)
		return
	}

	r, err := h.service.GetByID(c.Request.Context(), uri.ID, auth.GetUserID(c), auth.IsAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, response.DataResponse[ReservationResponse]{Data: NewReservationResponse(r)})
}

func (h *Handler) Create(c *gin.Context) {
	var body CreateReservationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body", err)
		return
	}
	if err := body.Validate(); err != nil {
		response.Error(c, err)
		return
	}

	r, err := h.service.Create(c.Request.Context(), reservation.CreateRequest{
		ListingID:       body.ListingID,
		UserID:          auth.GetUserID(c),
		StartDate:       body.StartDate.Time,
		EndDate:         body.EndDate.Time,
		GuestCount:      body.GuestCount,
		PaymentIntentID: body.PaymentIntentID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.DataResponse[ReservationResponse]{Data: NewReservationResponse(r)})
}

func (h *Handler) Update(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequest(c, "invalid reservation id", err)
		return
	}

	var body UpdateReservationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body", err)
		return
	}

	r, err := h.service.Update(c.Request.Context(), uri.ID, body.ToDomain(), auth.GetUserID(c), auth.IsAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, response.DataResponse[ReservationResponse]{Data: NewReservationResponse(r)})
}

// Cancel handles DELETE; reservations are cancelled, never removed.
func (h *Handler) Cancel(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequest(c, "invalid reservation id", err)
		return
	}

	r, err := h.service.Cancel(c.Request.Context(), uri.ID, auth.GetUserID(c), auth.IsAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, response.DataResponse[ReservationResponse]{
		Message: "reservation cancelled",
		Data:    NewReservationResponse(r),
	})
}

func (h *Handler) ConfirmPayment(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequest(c, "invalid reservation id", err)
		return
	}

	// The body is optional when the intent was given at creation.
	var body ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "invalid request body", err)
		return
	}

	r, err := h.service.ConfirmPayment(c.Request.Context(), uri.ID, body.PaymentIntentID, auth.GetUserID(c), auth.IsAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, response.DataResponse[ReservationResponse]{
		Message: "payment confirmed",
		Data:    NewReservationResponse(r),
	})
}
