// Package enforce implements the read-validate-write protocol every
// state-changing operation goes through. There is no cross-document
// transaction to lean on, so the rule is: read the authoritative row fresh,
// evaluate the invariant against that read, then write conditionally on the
// revision that was read. A conditional write that loses the race is retried
// from a fresh read, a bounded number of times.
package enforce

import (
	"context"
	"errors"
	"time"

	"github.com/campuspool/backend/internal/models"
	"github.com/campuspool/backend/internal/store"
)

const (
	DefaultMaxAttempts = 4
	DefaultBackoff     = 25 * time.Millisecond
)

// ErrContended means every attempt lost its race. Callers surface it as a
// retryable outcome, never a crash.
var ErrContended = errors.New("enforce: write contention, retries exhausted")

type Runner struct {
	MaxAttempts int
	Backoff     time.Duration
}

func New() *Runner {
	return &Runner{MaxAttempts: DefaultMaxAttempts, Backoff: DefaultBackoff}
}

// Party applies mutate to a fresh read of the party and writes it back
// conditionally. mutate returning an error aborts without any write; that is
// how invariant violations are refused rather than rolled back. Only a lost
// revision race triggers another attempt.
func (r *Runner) Party(ctx context.Context, s store.PartyStore, id string, mutate func(*models.Party) error) (*models.Party, error) {
	for attempt := 0; attempt < r.attempts(); attempt++ {
		if attempt > 0 {
			if err := r.wait(ctx, attempt); err != nil {
				return nil, err
			}
		}

		p, err := s.GetParty(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := mutate(p); err != nil {
			return nil, err
		}
		err = s.PutParty(ctx, p)
		if errors.Is(err, store.ErrRevisionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, ErrContended
}

// Request is the JoinRequest counterpart of Party.
func (r *Runner) Request(ctx context.Context, s store.RequestStore, id string, mutate func(*models.JoinRequest) error) (*models.JoinRequest, error) {
	for attempt := 0; attempt < r.attempts(); attempt++ {
		if attempt > 0 {
			if err := r.wait(ctx, attempt); err != nil {
				return nil, err
			}
		}

		req, err := s.GetRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := mutate(req); err != nil {
			return nil, err
		}
		err = s.PutRequest(ctx, req)
		if errors.Is(err, store.ErrRevisionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return req, nil
	}
	return nil, ErrContended
}

func (r *Runner) attempts() int {
	if r.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return r.MaxAttempts
}

// wait sleeps the exponential backoff for the given attempt, honoring
// context cancellation.
func (r *Runner) wait(ctx context.Context, attempt int) error {
	backoff := r.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	d := backoff << (attempt - 1)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
