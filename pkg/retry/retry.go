// Package retry runs calls under a bounded, capped exponential backoff.
// Policies are looked up per endpoint class so one client can carry several
// budgets.
package retry

import (
	"context"
	"errors"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

type Class string

const (
	Retrieval Class = "retrieval"
	Mutation  Class = "mutation"
	Commit    Class = "commit"
)

type Policy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

type Policies map[Class]Policy

func DefaultPolicies() Policies {
	return Policies{
		Retrieval: {MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second},
		Mutation:  {MaxRetries: 1, BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second},
		Commit:    {MaxRetries: 2, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second},
	}
}

// For returns the policy for class, or a no-retry policy when none is configured.
func (p Policies) For(class Class) Policy {
	if pol, ok := p[class]; ok {
		return pol
	}
	return Policy{}
}

type retryable struct{ err error }

func (r retryable) Error() string { return r.err.Error() }
func (r retryable) Unwrap() error { return r.err }

// Retryable marks err as transient. Do retries only marked errors.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryable{err: err}
}

// Do calls fn until it succeeds, returns an unmarked error, or the policy's
// retry budget is spent. The last error is returned unmarked.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	base := policy.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	b := goretry.NewExponential(base)
	b = goretry.WithJitterPercent(10, b)
	if policy.MaxDelay > 0 {
		b = goretry.WithCappedDuration(policy.MaxDelay, b)
	}
	b = goretry.WithMaxRetries(policy.MaxRetries, b)

	err := goretry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		var r retryable
		if errors.As(err, &r) {
			return goretry.RetryableError(r.err)
		}
		return err
	})
	var r retryable
	if errors.As(err, &r) {
		return r.err
	}
	return err
}
