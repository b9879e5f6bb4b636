package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/kazz187/autoprovision/pkg/panicerr"
)

// RetryPolicy is an exponential schedule: attempt 1 runs immediately and
// attempt n waits min(BaseDelay*Multiplier^(n-2), MaxDelay).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultRetryPolicy waits 0s, 2s and 5s before its three attempts, long
// enough for a freshly connected provider to start answering.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  2.5,
		MaxDelay:    30 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	p = p.normalized()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.RandomizationFactor = 0
	b.Multiplier = p.Multiplier
	b.MaxInterval = p.MaxDelay
	b.Reset()
	return b
}

// Delays returns the wait before each attempt; the first entry is always 0.
func (p RetryPolicy) Delays() []time.Duration {
	p = p.normalized()
	b := p.newBackOff()
	delays := make([]time.Duration, p.MaxAttempts)
	for i := 1; i < p.MaxAttempts; i++ {
		delays[i] = b.NextBackOff()
	}
	return delays
}

// Outcome is what a retried discovery ended with. Tools may be empty; Err
// holds the last attempt's failure for logging only.
type Outcome struct {
	Tools    []string
	Attempts int
	Err      error
}

func (o Outcome) Found() bool {
	return len(o.Tools) > 0
}

// RemoteFailed reports whether the last attempt could not query the
// remote catalog at all, as opposed to finding no tools.
func (o Outcome) RemoteFailed() bool {
	return o.Err != nil && !errors.Is(o.Err, ErrNoTools)
}

// RetryingClient applies a RetryPolicy around a Client. An attempt that errs
// or finds no tools is retried; the final result is returned rather than an
// error.
type RetryingClient struct {
	client Client
	policy RetryPolicy
}

func NewRetryingClient(client Client, policy RetryPolicy) *RetryingClient {
	return &RetryingClient{
		client: client,
		policy: policy.normalized(),
	}
}

func (r *RetryingClient) Policy() RetryPolicy {
	return r.policy
}

func (r *RetryingClient) Discover(ctx context.Context, organizationID, providerKey string) Outcome {
	var out Outcome
	operation := func() ([]string, error) {
		out.Attempts++
		tools, err := panicerr.SafeValue(ctx, func(ctx context.Context) ([]string, error) {
			return r.client.Discover(ctx, organizationID, providerKey)
		})
		if err != nil {
			out.Tools, out.Err = nil, err
			if errors.Is(err, ErrNotConfigured) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		out.Tools = tools
		if len(tools) == 0 {
			out.Err = fmt.Errorf("%s: %w", providerKey, ErrNoTools)
			return nil, out.Err
		}
		out.Err = nil
		return tools, nil
	}
	notify := func(err error, next time.Duration) {
		slog.WarnContext(ctx, "tool discovery attempt failed, retrying",
			"provider_key", providerKey,
			"organization_id", organizationID,
			"attempt", out.Attempts,
			"max_attempts", r.policy.MaxAttempts,
			"retry_in", next,
			"error", err,
		)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(r.policy.newBackOff()),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)),
		backoff.WithNotify(notify),
	)
	if err != nil && out.Err == nil {
		// Cancelled between attempts.
		out.Err = err
	}
	if out.Err != nil && !out.Found() {
		slog.WarnContext(ctx, "tool discovery gave up",
			"provider_key", providerKey,
			"organization_id", organizationID,
			"attempts", out.Attempts,
			"error", out.Err,
		)
	}
	return out
}
