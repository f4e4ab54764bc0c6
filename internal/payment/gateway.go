package payment

import (
	"context"
	"errors"
)

// ErrGatewayTimeout is returned when the gateway did not answer within the
// configured bound. The outcome of the remote call is unknown.
var ErrGatewayTimeout = errors.New("payment gateway timed out")

// Result is the outcome of a gateway call that reached the provider.
// Success false means the provider declined.
type Result struct {
	Success       bool
	TransactionID string
	Error         string
}

// Gateway confirms and refunds payments with an external provider.
// A non-nil error means the outcome is unknown (transport failure,
// timeout, provider outage); a declined operation is a Result with
// Success false and a nil error.
type Gateway interface {
	// ConfirmPayment settles the intent only if it is for exactly amount,
	// in the smallest currency unit; any other amount is a decline.
	ConfirmPayment(ctx context.Context, paymentIntentID string, amount int64) (Result, error)
	// ProcessRefund refunds amount, or the full captured amount when nil.
	ProcessRefund(ctx context.Context, paymentIntentID string, amount *int64) (Result, error)
}
