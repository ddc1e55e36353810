// Package router implements component F: the map from container id to
// worker, discovery-message dispatch, periodic checkpointing, and bounded
// shutdown orchestration (spec §4.F).
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/discourse/mobystash/internal/container"
	"github.com/discourse/mobystash/internal/discovery"
	"github.com/discourse/mobystash/internal/engine"
	"github.com/discourse/mobystash/internal/sampler"
	"github.com/discourse/mobystash/internal/sink"
	"github.com/discourse/mobystash/internal/statestore"
	"github.com/discourse/mobystash/internal/supervisor"
	"github.com/discourse/mobystash/internal/worker"
)

// shutdownGrace bounds how long Run waits for workers to drain on
// termination (spec §5: "the router does not wait indefinitely on a
// worker").
const shutdownGrace = 10 * time.Second

// Kind is the router's discovery-message vocabulary (spec §3, §4.F),
// a superset of discovery.MessageType with the router's own
// checkpoint/terminate messages.
type Kind string

const (
	KindCreated    Kind = "created"
	KindDestroyed  Kind = "destroyed"
	KindCheckpoint Kind = "checkpoint"
	KindTerminate  Kind = "terminate"
)

// Message is one entry on the router's inbound queue.
type Message struct {
	Kind Kind
	ID   string
}

// Router owns the id->worker map and the dispatch loop (spec §4.F).
type Router struct {
	Engine             engine.Engine
	Sink               sink.Sink
	Metrics            worker.Metrics
	Logger             *logrus.Logger
	StatePath          string
	CheckpointInterval time.Duration

	// Tracer, if set, wraps each dispatched message in a span. Left nil,
	// dispatch runs untraced (spec's core has no tracing requirement;
	// this is SPEC_FULL.md's optional ambient observability surface).
	Tracer oteltrace.Tracer

	mu      sync.Mutex
	workers map[string]*trackedWorker
	state   statestore.State
	sampler sampler.Sampler

	queue chan Message
}

type trackedWorker struct {
	descriptor *container.Descriptor
	cancel     context.CancelFunc
	done       chan struct{}
}

// New constructs a Router ready for Run.
func New(eng engine.Engine, snk sink.Sink, metrics worker.Metrics, samp sampler.Sampler, logger *logrus.Logger, statePath string, checkpointInterval time.Duration) *Router {
	if checkpointInterval <= 0 {
		checkpointInterval = 60 * time.Second
	}
	return &Router{
		Engine:             eng,
		Sink:               snk,
		Metrics:            metrics,
		Logger:             logger,
		StatePath:          statePath,
		CheckpointInterval: checkpointInterval,
		workers:            make(map[string]*trackedWorker),
		sampler:            samp,
		queue:              make(chan Message, 64),
	}
}

// SetSampler swaps the sampler applied to workers started from this point
// on (spec §6's sample ratio is reloadable via SPEC_FULL.md's sample rules
// file watch). Workers already running keep whatever sampler they were
// started with; only the next startWorker call picks up the change.
func (r *Router) SetSampler(s sampler.Sampler) {
	r.mu.Lock()
	r.sampler = s
	r.mu.Unlock()
}

func (r *Router) currentSampler() sampler.Sampler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sampler
}

// Run implements spec §4.F's startup sequence and dispatch loop. It blocks
// until a {terminate} message is processed, which happens either because
// ctx was cancelled (external shutdown funneled onto the same queue per
// spec §5) or because the caller sent one itself via Terminate.
func (r *Router) Run(ctx context.Context) error {
	r.state = statestore.Load(r.Logger, r.StatePath)

	if err := r.Sink.Run(); err != nil {
		return fmt.Errorf("router: start sink: %w", err)
	}

	watcherCtx, watcherCancel := context.WithCancel(ctx)
	defer watcherCancel()

	discoveryQueue := make(chan discovery.Message, 64)
	watcher := discovery.NewWatcher(r.Engine, discoveryQueue, time.Now())

	var bg sync.WaitGroup
	bg.Add(2)
	go func() {
		defer bg.Done()
		supervisor.Supervise(watcherCtx, watcher, supervisor.Options{
			Name:   "discovery",
			Logger: r.Logger,
			OnTransientError: func(err error) {
				r.Metrics.IncReadEventException("", "", "discovery")
			},
		})
	}()
	go func() {
		defer bg.Done()
		r.forwardDiscovery(watcherCtx, discoveryQueue)
	}()

	go r.runCheckpointTicker(watcherCtx)

	go func() {
		<-ctx.Done()
		select {
		case r.queue <- Message{Kind: KindTerminate}:
		default:
		}
	}()

	if err := r.enumerateExisting(ctx); err != nil {
		r.Logger.WithError(err).Error("router: startup enumeration failed")
	}

dispatchLoop:
	for {
		select {
		case msg := <-r.queue:
			if r.dispatch(ctx, msg) {
				break dispatchLoop
			}
		case <-ctx.Done():
			break dispatchLoop
		}
	}

	watcherCancel()
	r.shutdownWorkers()
	r.checkpoint()
	if err := r.Sink.Stop(); err != nil {
		r.Logger.WithError(err).Error("router: sink stop failed")
	}
	bg.Wait()

	return nil
}

// forwardDiscovery translates discovery.Messages into router Messages.
func (r *Router) forwardDiscovery(ctx context.Context, in <-chan discovery.Message) {
	for {
		select {
		case m, ok := <-in:
			if !ok {
				return
			}
			kind := KindCreated
			if m.Type == discovery.Destroyed {
				kind = KindDestroyed
			}
			select {
			case r.queue <- Message{Kind: kind, ID: m.ID}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *Router) runCheckpointTicker(ctx context.Context) {
	t := time.NewTicker(r.CheckpointInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			select {
			case r.queue <- Message{Kind: KindCheckpoint}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// enumerateExisting implements spec §4.F's "enumerate existing containers
// and construct a worker for each, inheriting cursors from the loaded
// state map".
func (r *Router) enumerateExisting(ctx context.Context) error {
	summaries, err := r.Engine.List(ctx)
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}
	for _, s := range summaries {
		insp, err := r.Engine.Inspect(ctx, s.ID)
		if err != nil {
			if errors.Is(err, engine.ErrNotFound) {
				continue
			}
			r.Logger.WithError(err).WithField("id", s.ID).Warn("router: inspect failed during startup enumeration")
			continue
		}
		r.startWorker(insp, r.state[s.ID])
	}
	return nil
}

// dispatch applies spec §4.F's dispatch semantics for one message, and
// reports whether the router should stop the loop.
func (r *Router) dispatch(ctx context.Context, msg Message) bool {
	if r.Tracer != nil {
		var span oteltrace.Span
		ctx, span = r.Tracer.Start(ctx, "router.dispatch."+string(msg.Kind))
		defer span.End()
	}

	switch msg.Kind {
	case KindCreated:
		r.handleCreated(ctx, msg.ID)
	case KindDestroyed:
		r.handleDestroyed(msg.ID)
	case KindCheckpoint:
		r.checkpoint()
	case KindTerminate:
		return true
	default:
		r.Logger.WithField("kind", msg.Kind).Error("router: unknown queue message, ignoring")
	}
	return false
}

func (r *Router) handleCreated(ctx context.Context, id string) {
	r.mu.Lock()
	_, exists := r.workers[id]
	r.mu.Unlock()
	if exists {
		return
	}

	insp, err := r.Engine.Inspect(ctx, id)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return
		}
		r.Logger.WithError(err).WithField("id", id).Warn("router: inspect failed for newly created container")
		return
	}

	r.startWorker(insp, r.state[id])
}

func (r *Router) handleDestroyed(id string) {
	r.mu.Lock()
	tw, exists := r.workers[id]
	if exists {
		delete(r.workers, id)
	}
	r.mu.Unlock()

	if exists {
		tw.cancel()
	}
}

func (r *Router) startWorker(insp engine.Inspect, inheritedCursor string) {
	desc := container.New(insp, inheritedCursor)

	ctx, cancel := context.WithCancel(context.Background())
	tw := &trackedWorker{descriptor: desc, cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	r.workers[desc.ID] = tw
	r.mu.Unlock()

	w := &worker.Worker{
		Descriptor: desc,
		Engine:     r.Engine,
		Sink:       r.Sink,
		Metrics:    r.Metrics,
		Sampler:    r.currentSampler(),
		Logger:     r.Logger,
		Tracer:     r.Tracer,
	}

	go func() {
		defer close(tw.done)
		supervisor.Supervise(ctx, w, supervisor.Options{
			Name:   "worker:" + desc.Name,
			Logger: r.Logger,
			OnTransientError: func(err error) {
				r.Metrics.IncReadEventException(desc.Name, desc.ID, "worker")
			},
		})
	}()
}

// checkpoint implements spec §4.F's checkpoint dispatch: snapshot every
// worker's cursor under its own mutex and persist the map.
func (r *Router) checkpoint() {
	r.mu.Lock()
	snapshot := make(statestore.State, len(r.workers))
	for id, tw := range r.workers {
		snapshot[id] = tw.descriptor.LastLogTimestamp()
	}
	r.mu.Unlock()

	if err := statestore.Save(r.StatePath, snapshot); err != nil {
		r.Logger.WithError(err).Error("router: checkpoint save failed")
	}
}

// shutdownWorkers signals every tracked worker to stop and waits up to
// shutdownGrace for them to drain (spec §5: bounded shutdown).
func (r *Router) shutdownWorkers() {
	r.mu.Lock()
	tws := make([]*trackedWorker, 0, len(r.workers))
	for _, tw := range r.workers {
		tws = append(tws, tw)
	}
	r.mu.Unlock()

	for _, tw := range tws {
		tw.cancel()
	}

	done := make(chan struct{})
	go func() {
		for _, tw := range tws {
			<-tw.done
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownGrace):
		r.Logger.Warn("router: shutdown grace period elapsed with workers still draining")
	}
}

// Terminate enqueues a {terminate} message, for callers that want to stop
// the router without cancelling the context it was run with.
func (r *Router) Terminate() {
	select {
	case r.queue <- Message{Kind: KindTerminate}:
	default:
	}
}
