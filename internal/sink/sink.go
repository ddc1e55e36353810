// Package sink declares the downstream log-aggregation sink's interface
// (spec §6): an external collaborator that buffers and forwards events,
// with its own connection lifecycle separate from the router's.
package sink

import "github.com/discourse/mobystash/pkg/value"

// Sink is the full lifecycle surface a concrete sink implements.
// worker.Sink is the narrower subset (Send only) each container worker
// depends on; any Sink satisfies it structurally.
type Sink interface {
	// Send hands an assembled event to the sink. Non-blocking from the
	// caller's point of view only insofar as the sink's own queue has
	// room; a full bounded queue is allowed to block Send, and that
	// back-pressure is expected to reach the worker (spec §7).
	Send(event *value.Map)

	// Run starts the sink's background delivery loop. Called once by
	// the router before the dispatch loop begins.
	Run() error

	// Stop drains and closes the sink, blocking until pending sends are
	// flushed or abandoned. Called once by the router during shutdown.
	Stop() error

	// ForceDisconnect tears down the sink's connection immediately,
	// without waiting for a graceful drain. Distinct from Stop: Stop is
	// an orderly shutdown, ForceDisconnect is for callers that need the
	// underlying connection gone right away (e.g. forcing a reconnect).
	ForceDisconnect() error
}
