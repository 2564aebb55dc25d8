package decision

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.temporal.io/api/serviceerror"

	"repair-fund-audit/internal/logging"
	"repair-fund-audit/internal/modal"
)

const defaultMaxElapsed = 15 * time.Second

// RetryingSink retries transient failures of the wrapped sink with
// exponential backoff. Anything else fails on the first attempt.
type RetryingSink struct {
	next           Sink
	maxElapsed     time.Duration
	attemptTimeout time.Duration
	newBackOff     func() backoff.BackOff
	logger         *slog.Logger
}

type RetryOption func(*RetryingSink)

// WithBackOff replaces the exponential policy. f must return a fresh
// instance on every call; BackOff values are stateful.
func WithBackOff(f func() backoff.BackOff) RetryOption {
	return func(s *RetryingSink) { s.newBackOff = f }
}

// WithAttemptTimeout bounds each call to the wrapped sink. Zero means only
// the caller's context applies.
func WithAttemptTimeout(d time.Duration) RetryOption {
	return func(s *RetryingSink) { s.attemptTimeout = d }
}

func WithRetryLogger(l *slog.Logger) RetryOption {
	return func(s *RetryingSink) { s.logger = l }
}

func NewRetryingSink(next Sink, maxElapsed time.Duration, opts ...RetryOption) *RetryingSink {
	if maxElapsed <= 0 {
		maxElapsed = defaultMaxElapsed
	}
	s := &RetryingSink{next: next, maxElapsed: maxElapsed, logger: logging.Discard()}
	s.newBackOff = func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = s.maxElapsed
		return bo
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RetryingSink) Submit(ctx context.Context, sub modal.Submission) error {
	attempt := 0
	op := func() error {
		attempt++
		err := s.submitOnce(ctx, sub)
		switch {
		case err == nil:
			return nil
		case IsTransient(err):
			return err
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			// only this attempt ran out of time
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("decision submission retry",
			"taskId", sub.Decision.TaskID,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}
	return backoff.RetryNotify(op, backoff.WithContext(s.newBackOff(), ctx), notify)
}

func (s *RetryingSink) submitOnce(ctx context.Context, sub modal.Submission) error {
	if s.attemptTimeout <= 0 {
		return s.next.Submit(ctx, sub)
	}
	ctx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()
	return s.next.Submit(ctx, sub)
}

// IsTransient reports whether err is worth retrying: Temporal frontend
// overload or unavailability, or a network timeout.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var unavailable *serviceerror.Unavailable
	var exhausted *serviceerror.ResourceExhausted
	var deadline *serviceerror.DeadlineExceeded
	if errors.As(err, &unavailable) || errors.As(err, &exhausted) || errors.As(err, &deadline) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
