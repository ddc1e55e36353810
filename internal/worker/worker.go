// Package worker implements the per-container log-tailing loop, spec §4.D's
// "dominant component": attach to one container's log stream, demultiplex
// and decode it into events, and forward those events to a sink, restarting
// through internal/supervisor whenever the engine connection drops.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/discourse/mobystash/internal/chunkreader"
	"github.com/discourse/mobystash/internal/container"
	"github.com/discourse/mobystash/internal/engine"
	"github.com/discourse/mobystash/internal/sampler"
	"github.com/discourse/mobystash/internal/supervisor"
	"github.com/discourse/mobystash/internal/syslogparse"
	"github.com/discourse/mobystash/pkg/value"
)

// Worker drives the log-streaming lifecycle for a single container (spec §3,
// §4.D). It implements supervisor.Runner; the router owns one Worker per
// tracked container and drives it via supervisor.Supervise in its own
// goroutine, cancelling the context to tear it down (spec §5).
type Worker struct {
	Descriptor *container.Descriptor
	Engine     engine.Engine
	Sink       Sink
	Metrics    Metrics
	Sampler    sampler.Sampler
	Logger     *logrus.Logger

	// Tracer, if set, wraps each streaming session in a span. Left nil,
	// the worker runs untraced.
	Tracer oteltrace.Tracer

	primed bool
}

// RunOnce performs one iteration of the loop spec §4.D describes: inspect
// the container, and either stream its logs (if running) or wait for a
// start event (if not). A nil return restarts the loop immediately; a
// transient error is retried with backoff by the supervisor; an error
// wrapping supervisor.ErrTerminal ends the worker for good (the container is
// gone).
func (w *Worker) RunOnce(ctx context.Context) error {
	if !w.primed {
		w.primeCounters()
		w.primed = true
	}

	if !w.Descriptor.CaptureLogs {
		// Step 1: a disabled container is never inspected or streamed; the
		// worker just waits to be torn down by the router.
		<-ctx.Done()
		return ctx.Err()
	}

	insp, err := w.Engine.Inspect(ctx, w.Descriptor.ID)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) || errors.Is(err, engine.ErrServerError) {
			return fmt.Errorf("worker: container gone: %w: %w", err, supervisor.ErrTerminal)
		}
		w.Metrics.IncReadEventException(w.Descriptor.Name, w.Descriptor.ID, "inspect")
		return err
	}

	if !insp.Running {
		return w.waitForStart(ctx)
	}

	return w.stream(ctx, insp)
}

// primeCounters implements spec §4.D's "counters priming": increment the
// stream-keyed counters by zero at worker start so a collector observes the
// series even for a container that never emits a line on one of its
// streams.
func (w *Worker) primeCounters() {
	streams := []string{chunkreader.StreamStdout, chunkreader.StreamStderr}
	if w.Descriptor.Tty {
		streams = []string{chunkreader.StreamTTY}
	}
	w.Metrics.PrimeCounters(w.Descriptor.Name, w.Descriptor.ID, streams)
}

// waitForStart implements the event-wait subroutine of spec §4.D step 2:
// subscribe to the engine's event feed from just after the last-seen
// timestamp, advance the cursor to each event as it arrives (so a
// subsequent retry doesn't replay events already observed here), and return
// once this container's own start event appears.
func (w *Worker) waitForStart(ctx context.Context) error {
	since, err := sinceQueryAfter(w.Descriptor.LastLogTimestamp())
	if err != nil {
		return fmt.Errorf("worker: %w: %w", err, supervisor.ErrTerminal)
	}

	events, errs := w.Engine.Events(ctx, since)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			w.Descriptor.SetLastLogTimestamp(ev.Time.Format(time.RFC3339Nano))
			if ev.Type == "container" && ev.ID == w.Descriptor.ID &&
				(ev.Action == "start" || ev.Action == "unpause") {
				return nil
			}
		case err, ok := <-errs:
			if !ok {
				continue
			}
			w.Metrics.IncReadEventException(w.Descriptor.Name, w.Descriptor.ID, "events")
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// stream implements spec §4.D step 3 onward: open the container's log
// stream from 1ns after the current cursor, decode it with chunkreader, and run
// sendEvent for every line, until the stream ends (container stopped
// normally, nil return, loop restarts at Inspect) or ctx is cancelled
// (shutdown, spec §5: "abort the current HTTP stream by closing the
// response body").
func (w *Worker) stream(ctx context.Context, insp engine.Inspect) error {
	if w.Tracer != nil {
		var span oteltrace.Span
		ctx, span = w.Tracer.Start(ctx, "worker.stream")
		defer span.End()
	}

	since, err := sinceQueryAfter(w.Descriptor.LastLogTimestamp())
	if err != nil {
		return fmt.Errorf("worker: %w: %w", err, supervisor.ErrTerminal)
	}

	rc, err := w.Engine.Logs(ctx, w.Descriptor.ID, engine.LogsQuery{
		Since:      since,
		Timestamps: true,
		Follow:     true,
		Stdout:     true,
		Stderr:     true,
	})
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) || errors.Is(err, engine.ErrServerError) {
			return fmt.Errorf("worker: %w: %w", err, supervisor.ErrTerminal)
		}
		w.Metrics.IncReadEventException(w.Descriptor.Name, w.Descriptor.ID, "logs")
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			rc.Close()
		case <-done:
		}
	}()

	parser := chunkreader.New(insp.Tty, func(line, stream string) {
		w.sendEvent(line, stream)
	})

	buf := make([]byte, 32*1024)
	for {
		n, rerr := rc.Read(buf)
		if n > 0 {
			parser.Feed(buf[:n])
		}
		if rerr == io.EOF {
			parser.Close()
			return nil
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.Metrics.IncReadEventException(w.Descriptor.Name, w.Descriptor.ID, "logs")
			return rerr
		}
	}
}

// sendEvent implements spec §4.D's sendEvent pipeline (steps 1-10): a log
// line arrives as "<RFC3339Nano timestamp> <message>" (the engine's
// Timestamps:true framing); it is parsed, cursor-advanced, optionally
// syslog-decoded and sampled, optionally filtered, assembled into an event
// tree, document-id hashed, and handed to the sink.
func (w *Worker) sendEvent(line, stream string) {
	name, id := w.Descriptor.Name, w.Descriptor.ID
	w.Metrics.IncLogEntriesRead(name, id, stream)

	idx := strings.IndexByte(line, ' ')
	if idx < 0 {
		w.Metrics.IncParseError(name, id)
		return
	}
	ts, message := line[:idx], line[idx+1:]

	if !w.Descriptor.AdvanceLogTimestamp(ts) {
		w.Metrics.IncParseError(name, id)
		return
	}

	if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		w.Metrics.ObserveLastLogEntryAt(name, id, float64(parsed.UnixNano())/1e9)
	}

	var syslogFields *value.Map
	if w.Descriptor.ParseSyslog {
		message, syslogFields = syslogparse.Parse(message)
	}

	sampleIt := w.Sampler
	if sampleIt == nil {
		sampleIt = sampler.AlwaysPass{}
	}
	passed, sampleMeta := sampleIt.Sample(message)
	if !passed {
		return
	}

	if w.Descriptor.FilterRegex != nil && w.Descriptor.FilterRegex.MatchString(message) {
		return
	}

	event := assembleEvent(message, ts, stream, syslogFields, sampleMeta, w.Descriptor.Tags)
	if _, err := marshalAndTagDocumentID(event); err != nil {
		if w.Logger != nil {
			w.Logger.WithError(err).WithFields(logrus.Fields{"container": name}).
				Warn("failed to marshal event, dropping line")
		}
		return
	}

	w.Sink.Send(event)
	w.Metrics.IncLogEntriesSent(name, id, stream)
}
