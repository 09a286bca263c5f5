// Package retry runs remote calls under a fixed-delay, bounded-attempt policy.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is the number of attempts in total and the pause between them.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Delay: time.Second}
}

// Do calls op until it succeeds, returns a Permanent error, the attempts are
// used up or ctx is done. The last error is returned unwrapped.
func (p Policy) Do(ctx context.Context, op func(attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(attempts-1)),
		ctx,
	)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		return op(attempt)
	}, b)
}

// Permanent stops the retry loop and hands err back to the caller.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
