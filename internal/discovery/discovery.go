// Package discovery implements the engine-events long-poll of spec §4.E:
// watch for container start/stop and translate it into the router's
// discovery-message vocabulary.
package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/discourse/mobystash/internal/cursor"
	"github.com/discourse/mobystash/internal/engine"
)

// overlap is subtracted from the last-seen event time on reconnect, per
// spec §4.E ("advancing its own since cursor so no re-delivery beyond a
// small overlap"): favors a handful of duplicate discovery messages (which
// the router's dispatch semantics already tolerate — `created` for an
// already-tracked id and `destroyed` for an already-removed one are both
// no-ops) over missing an event that raced the reconnect.
const overlap = 2 * time.Second

// MessageType is the discovery vocabulary the router's dispatch loop
// switches on (spec §4.F).
type MessageType string

const (
	Created   MessageType = "created"
	Destroyed MessageType = "destroyed"
)

// Message is one discovery-queue entry (spec §4.F "inbound queue of
// discovery messages").
type Message struct {
	Type MessageType
	ID   string
}

// Watcher implements supervisor.Runner, long-polling the engine's event
// feed and pushing Messages onto Queue. The router owns the Queue channel
// and reads from it in its dispatch loop; the Watcher never blocks on
// anything but ctx and the queue send itself.
type Watcher struct {
	Engine engine.Engine
	Queue  chan<- Message

	mu    sync.Mutex
	since time.Time
}

// NewWatcher returns a Watcher that starts watching from start (typically
// "now" at router boot, per spec §4.F's startup sequence).
func NewWatcher(eng engine.Engine, queue chan<- Message, start time.Time) *Watcher {
	return &Watcher{Engine: eng, Queue: queue, since: start}
}

// RunOnce subscribes to the engine's event feed from the watcher's current
// cursor and forwards classified events until the feed ends (nil return,
// restarts the subscription) or errors (returned for supervisor backoff).
func (w *Watcher) RunOnce(ctx context.Context) error {
	since := cursor.Format(w.resumeFrom())

	events, errs := w.Engine.Events(ctx, since)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			w.advance(ev.Time)

			msg, ok := classify(ev)
			if !ok {
				continue
			}
			select {
			case w.Queue <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		case err, ok := <-errs:
			if !ok {
				continue
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// resumeFrom returns the cursor to subscribe from, pulled back by overlap
// so a reconnect can't silently skip an event delivered in the gap.
func (w *Watcher) resumeFrom() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.since.Add(-overlap)
}

func (w *Watcher) advance(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t.After(w.since) {
		w.since = t
	}
}

// classify maps one engine event onto the router's discovery vocabulary
// (spec §4.E): start/create -> created, die/destroy/kill -> destroyed,
// everything else is ignored here (the router only acts on container
// lifecycle events).
func classify(ev engine.Event) (Message, bool) {
	if ev.Type != "container" {
		return Message{}, false
	}
	switch ev.Action {
	case "start", "create":
		return Message{Type: Created, ID: ev.ID}, true
	case "die", "destroy", "kill":
		return Message{Type: Destroyed, ID: ev.ID}, true
	default:
		return Message{}, false
	}
}
