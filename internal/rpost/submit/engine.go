// Package submit drives postings through the API one target at a time,
// waiting out server-imposed rate limits between attempts.
package submit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/blacktop/rpost/internal/logutil"
	"github.com/blacktop/rpost/internal/rpost"
)

// ErrRateLimitExhausted is the failure reason when the retry bound is hit.
var ErrRateLimitExhausted = errors.New("rate limit exhausted")

// Submitter sends one posting and classifies the answer.
type Submitter interface {
	Submit(ctx context.Context, token string, req rpost.PostingRequest) (rpost.Reply, error)
}

// State is a step of the per-target state machine.
type State int

const (
	StatePending State = iota
	StateSubmitting
	StateRateLimited
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSubmitting:
		return "submitting"
	case StateRateLimited:
		return "rate-limited"
	case StateDone:
		return "done"
	default:
		return "failed"
	}
}

// Event reports a state transition for one target.
type Event struct {
	Target  string
	State   State
	Attempt int
	// Delay is the wait before the next attempt when State is StateRateLimited.
	Delay  time.Duration
	Reason string
}

// Engine submits postings strictly in sequence.
type Engine struct {
	client     Submitter
	token      string
	maxRetries uint
	maxWait    time.Duration
	observer   func(Event)
}

// Option customises an Engine.
type Option func(*Engine)

// WithMaxRetries caps rate-limit retries per target. Zero means unbounded.
func WithMaxRetries(n uint) Option {
	return func(e *Engine) { e.maxRetries = n }
}

// WithMaxWait caps the time spent on one target, waits included. Zero means unbounded.
func WithMaxWait(d time.Duration) Option {
	return func(e *Engine) { e.maxWait = d }
}

// WithObserver registers a callback for every state transition.
func WithObserver(fn func(Event)) Option {
	return func(e *Engine) { e.observer = fn }
}

// New returns an Engine that authorizes every submission with token.
func New(client Submitter, token string, opts ...Option) *Engine {
	e := &Engine{client: client, token: token}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run processes reqs in order. A failed target never stops the run; only
// context cancellation does, in which case the outcomes so far are returned
// along with the context error.
func (e *Engine) Run(ctx context.Context, reqs []rpost.PostingRequest) ([]rpost.Outcome, error) {
	outcomes := make([]rpost.Outcome, 0, len(reqs))
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			logutil.Warnf("run interrupted before r/%s (%d/%d): %v", req.Target, i+1, len(reqs), err)
			return outcomes, err
		}
		outcome, err := e.submitOne(ctx, req)
		if err != nil {
			logutil.Warnf("run interrupted at r/%s (%d/%d): %v", req.Target, i+1, len(reqs), err)
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (e *Engine) submitOne(ctx context.Context, req rpost.PostingRequest) (rpost.Outcome, error) {
	log := logutil.With("sr", req.Target)
	outcome := rpost.Outcome{Target: req.Target}
	e.emit(Event{Target: req.Target, State: StatePending})

	opts := []backoff.RetryOption{
		// Only RetryAfterError is retried and its duration replaces whatever
		// the policy returns; every other error is Permanent.
		backoff.WithBackOff(&backoff.ZeroBackOff{}),
		backoff.WithMaxElapsedTime(e.maxWait),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("rate limited, waiting before retry", "attempt", outcome.Attempts, "wait", next)
			e.emit(Event{Target: req.Target, State: StateRateLimited, Attempt: outcome.Attempts, Delay: next})
			e.emit(Event{Target: req.Target, State: StatePending, Attempt: outcome.Attempts, Delay: next})
		}),
	}
	if e.maxRetries > 0 {
		opts = append(opts, backoff.WithMaxTries(e.maxRetries+1))
	}

	reply, err := backoff.Retry(ctx, func() (rpost.Reply, error) {
		outcome.Attempts++
		log.Info("submitting", "attempt", outcome.Attempts, "kind", req.Kind)
		e.emit(Event{Target: req.Target, State: StateSubmitting, Attempt: outcome.Attempts})

		reply, err := e.client.Submit(ctx, e.token, req)
		if err != nil {
			return rpost.Reply{}, backoff.Permanent(err)
		}
		if reply.Kind == rpost.ReplyRateLimited {
			return reply, &backoff.RetryAfterError{Duration: reply.RetryAfter}
		}
		return reply, nil
	}, opts...)

	// A post that went through is recorded even if the run was cancelled meanwhile.
	if ctxErr := ctx.Err(); ctxErr != nil && (err != nil || reply.Kind != rpost.ReplySubmitted) {
		return outcome, ctxErr
	}

	var retryAfter *backoff.RetryAfterError
	switch {
	case errors.As(err, &retryAfter):
		outcome.Reason = fmt.Sprintf("%v after %d attempts", ErrRateLimitExhausted, outcome.Attempts)
	case err != nil:
		outcome.Reason = err.Error()
	case reply.Kind == rpost.ReplySubmitted:
		outcome.Status = rpost.StatusSubmitted
		outcome.URL = reply.URL
	default:
		outcome.Reason = fmt.Sprintf("%s: %s", reply.Kind, reply.Reason)
	}

	if outcome.Status == rpost.StatusSubmitted {
		log.Info("submitted", "attempts", outcome.Attempts, "url", outcome.URL)
		e.emit(Event{Target: req.Target, State: StateDone, Attempt: outcome.Attempts})
	} else {
		log.Error("submission failed", "attempts", outcome.Attempts, "reason", outcome.Reason)
		e.emit(Event{Target: req.Target, State: StateFailed, Attempt: outcome.Attempts, Reason: outcome.Reason})
	}
	return outcome, nil
}

func (e *Engine) emit(ev Event) {
	if e.observer != nil {
		e.observer(ev)
	}
}
