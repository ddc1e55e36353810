package worker

import "github.com/discourse/mobystash/pkg/value"

// Metrics is the narrow counter/gauge surface the worker issues against,
// matching spec §1 ("only their increment and observe calls are
// specified"). internal/metricsink provides the concrete Prometheus-backed
// implementation.
type Metrics interface {
	// IncLogEntriesRead increments log_entries_read{name,id,stream}
	// (spec §4.D sendEvent step 1).
	IncLogEntriesRead(name, id, stream string)

	// IncLogEntriesSent increments log_entries_sent{name,id,stream}
	// (spec §4.D sendEvent step 10).
	IncLogEntriesSent(name, id, stream string)

	// ObserveLastLogEntryAt observes last_log_entry_at with the unix-
	// seconds form of a line's timestamp (spec §4.D sendEvent step 3).
	ObserveLastLogEntryAt(name, id string, unixSeconds float64)

	// IncReadEventException increments read_event_exception{name,id,
	// exception_class} (spec §7 "Transient HTTP failure").
	IncReadEventException(name, id, exceptionClass string)

	// IncParseError increments the parse-error counter (spec §7
	// "Malformed log line").
	IncParseError(name, id string)

	// PrimeCounters increments log_entries_read/log_entries_sent by zero
	// for each stream so downstream collectors see the series before any
	// line has been read (spec §4.D "Counters priming").
	PrimeCounters(name, id string, streams []string)
}

// Sink is the downstream forwarding surface the worker issues against
// (spec §6: "Send(event) — non-blocking, may buffer"). internal/sink
// provides Run/Stop/ForceDisconnect for the router to manage lifecycle;
// the worker only ever calls Send.
type Sink interface {
	Send(event *value.Map)
}
