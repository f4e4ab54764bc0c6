package payment

import (
	"context"
	"time"
)

type timeoutGateway struct {
	next    Gateway
	timeout time.Duration
}

// WithTimeout bounds every call to next by d. A call still running when
// the bound expires yields ErrGatewayTimeout.
func WithTimeout(next Gateway, d time.Duration) Gateway {
	return &timeoutGateway{next: next, timeout: d}
}

type callResult struct {
	res Result
	err error
}

func (g *timeoutGateway) ConfirmPayment(ctx context.Context, paymentIntentID string, amount int64) (Result, error) {
	return g.do(ctx, func(ctx context.Context) (Result, error) {
		return g.next.ConfirmPayment(ctx, paymentIntentID, amount)
	})
}

func (g *timeoutGateway) ProcessRefund(ctx context.Context, paymentIntentID string, amount *int64) (Result, error) {
	return g.do(ctx, func(ctx context.Context) (Result, error) {
		return g.next.ProcessRefund(ctx, paymentIntentID, amount)
	})
}

func (g *timeoutGateway) do(ctx context.Context, call func(context.Context) (Result, error)) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// Buffered so the goroutine never leaks when we stop waiting.
	done := make(chan callResult, 1)
	go func() {
		res, err := call(ctx)
		done <- callResult{res: res, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == context.DeadlineExceeded {
			return Result{}, ErrGatewayTimeout
		}
		return r.res, r.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return Result{}, ErrGatewayTimeout
		}
		return Result{}, ctx.Err()
	}
}
