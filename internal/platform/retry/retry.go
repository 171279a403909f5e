// Package retry retries idempotent store operations with exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds a retry loop. MaxAttempts counts the first call.
type Policy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy returns the policy used for compensating deletes.
func DefaultPolicy(attempts int) Policy {
	if attempts < 1 {
		attempts = 1
	}
	return Policy{MaxAttempts: uint(attempts), InitialInterval: 100 * time.Millisecond, MaxInterval: 2 * time.Second}
}

// Do calls op until it succeeds, returns an error retryable rejects, the attempts run out or ctx ends.
// The last error from op is returned.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	var last error
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		last = op(ctx)
		if last == nil {
			return struct{}{}, nil
		}
		if retryable != nil && !retryable(last) {
			return struct{}{}, backoff.Permanent(last)
		}
		return struct{}{}, last
	}, backoff.WithBackOff(b), backoff.WithMaxTries(attempts))
	if err != nil && last != nil {
		return last
	}
	return err
}
