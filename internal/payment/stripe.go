package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
)

type intentAPI interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
}

type refundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeGateway settles reservations against Stripe payment intents.
type StripeGateway struct {
	intents intentAPI
	refunds refundAPI
	logger  *slog.Logger
}

func NewStripeGateway(secretKey string, logger *slog.Logger) *StripeGateway {
	backend := stripe.GetBackend(stripe.APIBackend)
	return &StripeGateway{
		intents: &paymentintent.Client{B: backend, Key: secretKey},
		refunds: &refund.Client{B: backend, Key: secretKey},
		logger:  logger,
	}
}

// ConfirmPayment drives the intent to succeeded: already succeeded intents
// are accepted, authorized ones are captured, unconfirmed ones confirmed.
// An intent for a different amount is declined before any capture.
func (g *StripeGateway) ConfirmPayment(ctx context.Context, paymentIntentID string, amount int64) (Result, error) {
	getParams := &stripe.PaymentIntentParams{}
	getParams.Context = ctx
	pi, err := g.intents.Get(paymentIntentID, getParams)
	if err != nil {
		return g.classify(ctx, "retrieve payment intent", paymentIntentID, err)
	}
	if pi.Amount != amount {
		g.logger.WarnContext(ctx, "payment intent amount mismatch",
			"payment_intent_id", paymentIntentID,
			"intent_amount", pi.Amount,
			"expected_amount", amount,
		)
		return Result{
			TransactionID: pi.ID,
			Error:         fmt.Sprintf("payment intent amount %d does not match %d", pi.Amount, amount),
		}, nil
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
	case stripe.PaymentIntentStatusRequiresCapture:
		params := &stripe.PaymentIntentCaptureParams{}
		params.Context = ctx
		params.SetIdempotencyKey("capture-" + paymentIntentID)
		if pi, err = g.intents.Capture(paymentIntentID, params); err != nil {
			return g.classify(ctx, "capture payment intent", paymentIntentID, err)
		}
	case stripe.PaymentIntentStatusRequiresConfirmation:
		params := &stripe.PaymentIntentConfirmParams{}
		params.Context = ctx
		params.SetIdempotencyKey("confirm-" + paymentIntentID)
		if pi, err = g.intents.Confirm(paymentIntentID, params); err != nil {
			return g.classify(ctx, "confirm payment intent", paymentIntentID, err)
		}
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return Result{
			TransactionID: pi.ID,
			Error:         fmt.Sprintf("payment intent status is %s", pi.Status),
		}, nil
	}
	return Result{Success: true, TransactionID: pi.ID}, nil
}

func (g *StripeGateway) ProcessRefund(ctx context.Context, paymentIntentID string, amount *int64) (Result, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Amount:        amount,
	}
	params.Context = ctx
	// One refund per intent, however many times the cancel is retried.
	params.SetIdempotencyKey("refund-" + paymentIntentID)

	r, err := g.refunds.New(params)
	if err != nil {
		return g.classify(ctx, "create refund", paymentIntentID, err)
	}

	switch r.Status {
	case stripe.RefundStatusSucceeded, stripe.RefundStatusPending:
		return Result{Success: true, TransactionID: r.ID}, nil
	default:
		return Result{TransactionID: r.ID, Error: fmt.Sprintf("refund status is %s", r.Status)}, nil
	}
}

// classify turns Stripe request errors into declines and keeps transport
// failures, rate limits and provider outages as errors.
func (g *StripeGateway) classify(ctx context.Context, op, paymentIntentID string, err error) (Result, error) {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500 &&
		se.HTTPStatusCode != http.StatusTooManyRequests {
		g.logger.WarnContext(ctx, "stripe declined",
			"op", op,
			"payment_intent_id", paymentIntentID,
			"code", se.Code,
			"message", se.Msg,
		)
		return Result{Error: se.Msg}, nil
	}
	return Result{}, fmt.Errorf("stripe %s: %w", op, err)
}
