package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

type fakeIntents struct {
	mock.Mock
}

func (f *fakeIntents) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	args := f.Called(id)
	if pi := args.Get(0); pi != nil {
		return pi.(*stripe.PaymentIntent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (f *fakeIntents) Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error) {
	args := f.Called(id)
	if pi := args.Get(0); pi != nil {
		return pi.(*stripe.PaymentIntent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (f *fakeIntents) Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	args := f.Called(id)
	if pi := args.Get(0); pi != nil {
		return pi.(*stripe.PaymentIntent), args.Error(1)
	}
	return nil, args.Error(1)
}

type fakeRefunds struct {
	mock.Mock
}

func (f *fakeRefunds) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	args := f.Called(*params.PaymentIntent, params.Amount)
	if r := args.Get(0); r != nil {
		return r.(*stripe.Refund), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestGateway(intents *fakeIntents, refunds *fakeRefunds) *StripeGateway {
	return &StripeGateway{
		intents: intents,
		refunds: refunds,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func intent(status stripe.PaymentIntentStatus) *stripe.PaymentIntent {
	return &stripe.PaymentIntent{ID: "pi_1", Status: status, Amount: 330}
}

func TestStripeConfirmPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("already succeeded", func(t *testing.T) {
		intents := new(fakeIntents)
		intents.On("Get", "pi_1").Return(intent(stripe.PaymentIntentStatusSucceeded), nil)

		res, err := newTestGateway(intents, nil).ConfirmPayment(ctx, "pi_1", 330)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "pi_1", res.TransactionID)
		intents.AssertNotCalled(t, "Capture", mock.Anything)
	})

	t.Run("captures authorized intent", func(t *testing.T) {
		intents := new(fakeIntents)
		intents.On("Get", "pi_1").Return(intent(stripe.PaymentIntentStatusRequiresCapture), nil)
		intents.On("Capture", "pi_1").Return(intent(stripe.PaymentIntentStatusSucceeded), nil)

		res, err := newTestGateway(intents, nil).ConfirmPayment(ctx, "pi_1", 330)
		require.NoError(t, err)
		assert.True(t, res.Success)
		intents.AssertExpectations(t)
	})

	t.Run("confirms unconfirmed intent", func(t *testing.T) {
		intents := new(fakeIntents)
		intents.On("Get", "pi_1").Return(intent(stripe.PaymentIntentStatusRequiresConfirmation), nil)
		intents.On("Confirm", "pi_1").Return(intent(stripe.PaymentIntentStatusRequiresAction), nil)

		res, err := newTestGateway(intents, nil).ConfirmPayment(ctx, "pi_1", 330)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "requires_action")
	})

	t.Run("missing payment method is a decline", func(t *testing.T) {
		intents := new(fakeIntents)
		intents.On("Get", "pi_1").Return(intent(stripe.PaymentIntentStatusRequiresPaymentMethod), nil)

		res, err := newTestGateway(intents, nil).ConfirmPayment(ctx, "pi_1", 330)
		require.NoError(t, err)
		assert.False(t, res.Success)
	})

	t.Run("card error is a decline", func(t *testing.T) {
		intents := new(fakeIntents)
		intents.On("Get", "pi_1").Return(intent(stripe.PaymentIntentStatusRequiresCapture), nil)
		intents.On("Capture", "pi_1").Return(nil, &stripe.Error{
			HTTPStatusCode: http.StatusPaymentRequired,
			Type:           stripe.ErrorTypeCard,
			Msg:            "Your card was declined.",
		})

		res, err := newTestGateway(intents, nil).ConfirmPayment(ctx, "pi_1", 330)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "Your card was declined.", res.Error)
	})

	t.Run("amount mismatch is declined before capture", func(t *testing.T) {
		intents := new(fakeIntents)
		intents.On("Get", "pi_1").Return(intent(stripe.PaymentIntentStatusRequiresCapture), nil)

		res, err := newTestGateway(intents, nil).ConfirmPayment(ctx, "pi_1", 1930)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "does not match")
		intents.AssertNotCalled(t, "Capture", mock.Anything)
	})

	t.Run("succeeded intent for another amount is declined", func(t *testing.T) {
		intents := new(fakeIntents)
		intents.On("Get", "pi_1").Return(intent(stripe.PaymentIntentStatusSucceeded), nil)

		res, err := newTestGateway(intents, nil).ConfirmPayment(ctx, "pi_1", 331)
		require.NoError(t, err)
		assert.False(t, res.Success)
	})

	t.Run("provider outage is an error", func(t *testing.T) {
		intents := new(fakeIntents)
		intents.On("Get", "pi_1").Return(nil, &stripe.Error{HTTPStatusCode: http.StatusBadGateway, Msg: "upstream"})

		_, err := newTestGateway(intents, nil).ConfirmPayment(ctx, "pi_1", 330)
		assert.Error(t, err)
	})

	t.Run("rate limit is an error", func(t *testing.T) {
		intents := new(fakeIntents)
		intents.On("Get", "pi_1").Return(nil, &stripe.Error{HTTPStatusCode: http.StatusTooManyRequests})

		_, err := newTestGateway(intents, nil).ConfirmPayment(ctx, "pi_1", 330)
		assert.Error(t, err)
	})
}

func TestStripeProcessRefund(t *testing.T) {
	ctx := context.Background()
	var full *int64

	tests := []struct {
		name    string
		refund  *stripe.Refund
		err     error
		success bool
		wantErr bool
	}{
		{"succeeded", &stripe.Refund{ID: "re_1", Status: stripe.RefundStatusSucceeded}, nil, true, false},
		{"pending counts as accepted", &stripe.Refund{ID: "re_1", Status: stripe.RefundStatusPending}, nil, true, false},
		{"failed refund", &stripe.Refund{ID: "re_1", Status: stripe.RefundStatusFailed}, nil, false, false},
		{"already refunded", nil, &stripe.Error{HTTPStatusCode: http.StatusBadRequest, Msg: "charge already refunded"}, false, false},
		{"network failure", nil, errors.New("dial tcp: i/o timeout"), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refunds := new(fakeRefunds)
			refunds.On("New", "pi_1", full).Return(tt.refund, tt.err)

			res, err := newTestGateway(nil, refunds).ProcessRefund(ctx, "pi_1", nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.success, res.Success)
		})
	}
}

type slowGateway struct {
	delay time.Duration
}

func (g slowGateway) ConfirmPayment(ctx context.Context, _ string, _ int64) (Result, error) {
	select {
	case <-time.After(g.delay):
		return Result{Success: true}, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (g slowGateway) ProcessRefund(ctx context.Context, _ string, _ *int64) (Result, error) {
	// Ignores ctx on purpose: the decorator must still return on time.
	time.Sleep(g.delay)
	return Result{Success: true}, nil
}

func TestWithTimeout(t *testing.T) {
	ctx := context.Background()

	fast := WithTimeout(slowGateway{delay: time.Millisecond}, time.Second)
	res, err := fast.ConfirmPayment(ctx, "pi_1", 330)
	require.NoError(t, err)
	assert.True(t, res.Success)

	slow := WithTimeout(slowGateway{delay: time.Second}, 20*time.Millisecond)
	_, err = slow.ConfirmPayment(ctx, "pi_1", 330)
	assert.ErrorIs(t, err, ErrGatewayTimeout)

	start := time.Now()
	_, err = slow.ProcessRefund(ctx, "pi_1", nil)
	assert.ErrorIs(t, err, ErrGatewayTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = slow.ConfirmPayment(cancelled, "pi_1", 330)
	assert.ErrorIs(t, err, context.Canceled)
}
