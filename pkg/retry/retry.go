// Package retry implements the generic retry and backoff engine used at
// every eventual-consistency join point in a provisioning run.
//
// Termination is either count-based (MaxAttempts) or deadline-based
// (Deadline), never both. Deadline semantics: the deadline is checked only
// before an attempt begins; an in-flight sleep always runs to completion,
// so the sequence may end up to one sleep after the deadline but no attempt
// ever starts past it.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/stackpilot/stackpilot/pkg/failure"
)

// jitterRange bounds the uniform jitter offset added to every sleep.
const jitterRange = 4 * time.Second

// Op is a retryable operation. A nil return ends the loop successfully. An
// error classified permanent (see package failure) is non-retryable and
// aborts the loop after exactly one invocation; any other error counts as a
// retryable failure.
type Op func(ctx context.Context) error

// OnRetry is invoked once per retry, after a failed attempt and before the
// next one, for observability only. It has no control-flow effect.
type OnRetry func(attempt int, delay time.Duration, err error)

// Retrier drives a single operation through a Policy.
type Retrier struct {
	policy Policy

	// test seams; real runs use the wall clock
	sleep func(time.Duration)
	now   func() time.Time
	randn func(int64) int64
}

// New creates a Retrier, validating the policy before the first attempt.
func New(policy Policy) (*Retrier, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Retrier{
		policy: policy,
		sleep:  time.Sleep,
		now:    time.Now,
		randn:  rand.Int63n,
	}, nil
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// policy's attempt budget is exhausted. The returned error is the last
// attempt's error, wrapped with the attempt count when the budget ran out.
func (r *Retrier) Do(ctx context.Context, op Op, onRetry OnRetry) error {
	start := r.now()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if failure.IsPermanent(err) {
			return err
		}

		if r.policy.MaxAttempts > 0 && attempt >= r.policy.MaxAttempts {
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		delay := r.policy.delay(attempt)
		if r.policy.Jitter {
			delay += time.Duration(r.randn(int64(jitterRange)))
		}
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
		r.sleep(delay)

		if r.policy.Deadline > 0 && r.now().Sub(start) >= r.policy.Deadline {
			return fmt.Errorf("deadline %s exceeded after %d attempts: %w",
				r.policy.Deadline, attempt, err)
		}
	}
}

// Do is a convenience wrapper that validates the policy and runs op.
func Do(ctx context.Context, policy Policy, op Op, onRetry OnRetry) error {
	r, err := New(policy)
	if err != nil {
		return err
	}
	return r.Do(ctx, op, onRetry)
}

// Predicate reports whether a polled condition holds. A false result with a
// nil error means "not yet"; an error is classified like an Op error.
type Predicate func(ctx context.Context) (bool, error)

// Poll runs predicate under the policy until it holds or the budget is
// exhausted. It is the one shared implementation of "wait for eventual
// consistency": identity propagation, container readiness and health checks
// all go through here.
func Poll(ctx context.Context, policy Policy, predicate Predicate, onRetry OnRetry) error {
	return Do(ctx, policy, func(ctx context.Context) error {
		ok, err := predicate(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return failure.NewTransient("condition not yet met", nil).
				WithCode(failure.CodePropagation)
		}
		return nil
	}, onRetry)
}
