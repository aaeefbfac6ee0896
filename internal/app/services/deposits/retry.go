package deposits

import (
	"context"
	"time"
)

// RetryPolicy is the caller-side polling contract: a fixed interval between a
// bounded number of verify attempts. Retry never lives inside the
// verification path itself; this helper exists so every caller applies the
// same protocol.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultRetryPolicy matches the client protocol: poll every two seconds, up
// to ten times, then report pending rather than failed.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 10,
	Interval:    2 * time.Second,
}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.Interval <= 0 {
		p.Interval = DefaultRetryPolicy.Interval
	}
	return p
}

// Poll calls VerifyAndRecord until it succeeds, fails terminally, or the
// policy's attempts are exhausted. Retryable failures (not yet propagated, not
// yet confirmed, RPC outage) wait one interval and try again; terminal
// failures abort immediately. After the last attempt the claim is still
// undecided, so the result is Pending, not an error.
func (p RetryPolicy) Poll(ctx context.Context, svc *Service, signature, owner string) (Result, error) {
	p = p.normalize()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(p.Interval):
			}
		}

		result, err := svc.VerifyAndRecord(ctx, signature, owner)
		if err == nil {
			return result, nil
		}
		if !Retryable(err) {
			return Result{}, err
		}
		lastErr = err
	}

	svc.log.WithError(lastErr).
		WithField("signature", signature).
		WithField("owner", owner).
		Info("verification still pending after polling")
	return Result{Pending: true}, nil
}
