package worker

import (
	"context"
	"io"
	"sync"

	"github.com/discourse/mobystash/internal/engine"
	"github.com/discourse/mobystash/pkg/value"
)

// fakeEngine is a minimal engine.Engine stub driven entirely by test-supplied
// closures/channels, so worker tests never need a real Docker daemon.
type fakeEngine struct {
	inspectFn func(ctx context.Context, id string) (engine.Inspect, error)
	logsFn    func(ctx context.Context, id string, q engine.LogsQuery) (io.ReadCloser, error)
	eventsFn  func(ctx context.Context, since string) (<-chan engine.Event, <-chan error)
}

func (f *fakeEngine) List(ctx context.Context) ([]engine.ContainerSummary, error) {
	return nil, nil
}

func (f *fakeEngine) Inspect(ctx context.Context, id string) (engine.Inspect, error) {
	return f.inspectFn(ctx, id)
}

func (f *fakeEngine) Logs(ctx context.Context, id string, q engine.LogsQuery) (io.ReadCloser, error) {
	return f.logsFn(ctx, id, q)
}

func (f *fakeEngine) Events(ctx context.Context, since string) (<-chan engine.Event, <-chan error) {
	return f.eventsFn(ctx, since)
}

// closingReader feeds a fixed sequence of chunks, then returns io.EOF.
type closingReader struct {
	chunks [][]byte
	i      int
	closed bool
}

func (r *closingReader) Read(p []byte) (int, error) {
	if r.i >= len(r.chunks) {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[r.i])
	r.i++
	return n, nil
}

func (r *closingReader) Close() error {
	r.closed = true
	return nil
}

// fakeSink records every event handed to it.
type fakeSink struct {
	mu     sync.Mutex
	events []*value.Map
}

func (s *fakeSink) Send(event *value.Map) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// fakeMetrics counts calls by method name; tests assert specific counters.
type fakeMetrics struct {
	mu     sync.Mutex
	read   int
	sent   int
	parse  int
	except int
	primed bool
}

func (m *fakeMetrics) IncLogEntriesRead(name, id, stream string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.read++
}

func (m *fakeMetrics) IncLogEntriesSent(name, id, stream string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent++
}

func (m *fakeMetrics) ObserveLastLogEntryAt(name, id string, unixSeconds float64) {}

func (m *fakeMetrics) IncReadEventException(name, id, exceptionClass string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.except++
}

func (m *fakeMetrics) IncParseError(name, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parse++
}

func (m *fakeMetrics) PrimeCounters(name, id string, streams []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.primed = true
}
