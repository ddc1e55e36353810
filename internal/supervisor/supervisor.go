// Package supervisor implements the restart/backoff strategy spec's Design
// Notes (§9) call for: "the source's mixin is an interface abstraction:
// the worker exposes RunOnce(conn), and the supervisor adds start/stop/
// backoff/error-counting." Both internal/worker and internal/discovery
// implement Runner and are driven by Supervise.
package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrTerminal, when returned by Runner.RunOnce, tells Supervise to stop
// retrying and return immediately (spec §7: "container gone mid-stream" —
// the worker exits cleanly rather than being restarted).
var ErrTerminal = errors.New("supervisor: terminal, do not retry")

// Runner performs one iteration of a supervised loop. A transient error
// triggers a backed-off retry; an error wrapping ErrTerminal stops the
// supervisor for good; a nil error restarts RunOnce immediately (the
// common case: a streaming call that returned because the engine closed
// the connection after a normal lifecycle transition).
type Runner interface {
	RunOnce(ctx context.Context) error
}

// OnTransientError is invoked once per retried failure. Callers use it to
// increment the read_event_exception counter from spec §7, keyed however
// the caller likes.
type OnTransientError func(err error)

// Options configures Supervise.
type Options struct {
	// MinInterval and MaxInterval bound the exponential backoff between
	// restarts after a transient error.
	MinInterval time.Duration
	MaxInterval time.Duration

	OnTransientError OnTransientError
	Logger           *logrus.Logger
	Name             string
}

// Supervise runs r.RunOnce in a loop until ctx is cancelled or RunOnce
// returns an error wrapping ErrTerminal. Transient errors are retried after
// a bounded exponential backoff (spec §7: "retry with bounded exponential
// backoff, increment an exception counter, never give up unless explicitly
// shut down").
func Supervise(ctx context.Context, r Runner, opts Options) {
	minInterval := opts.MinInterval
	if minInterval <= 0 {
		minInterval = 500 * time.Millisecond
	}
	maxInterval := opts.MaxInterval
	if maxInterval <= 0 {
		maxInterval = 30 * time.Second
	}

	interval := minInterval

	for {
		if ctx.Err() != nil {
			return
		}

		err := r.RunOnce(ctx)
		if err == nil {
			interval = minInterval
			continue
		}
		if errors.Is(err, ErrTerminal) || errors.Is(err, context.Canceled) {
			return
		}

		if opts.OnTransientError != nil {
			opts.OnTransientError(err)
		}
		if opts.Logger != nil {
			opts.Logger.WithFields(logrus.Fields{
				"component": opts.Name,
				"error":     err,
			}).Warn("supervised runner failed, retrying with backoff")
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return
		}

		interval *= 2
		if interval > maxInterval {
			interval = maxInterval
		}
	}
}
