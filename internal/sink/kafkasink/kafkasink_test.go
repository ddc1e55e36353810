package kafkasink

import (
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discourse/mobystash/pkg/value"
)

type fakeProducer struct {
	input     chan *sarama.ProducerMessage
	successes chan *sarama.ProducerMessage
	errs      chan *sarama.ProducerError

	mu          sync.Mutex
	closed      bool
	asyncClosed bool
}

func newFakeProducer() *fakeProducer {
	return &fakeProducer{
		input:     make(chan *sarama.ProducerMessage, 16),
		successes: make(chan *sarama.ProducerMessage, 16),
		errs:      make(chan *sarama.ProducerError, 16),
	}
}

func (f *fakeProducer) Input() chan<- *sarama.ProducerMessage     { return f.input }
func (f *fakeProducer) Successes() <-chan *sarama.ProducerMessage { return f.successes }
func (f *fakeProducer) Errors() <-chan *sarama.ProducerError      { return f.errs }

func (f *fakeProducer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		close(f.successes)
		close(f.errs)
		f.closed = true
	}
	return nil
}

func (f *fakeProducer) AsyncClose() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asyncClosed = true
	if !f.closed {
		close(f.successes)
		close(f.errs)
		f.closed = true
	}
}

type fakeMetrics struct {
	mu      sync.Mutex
	sent    int
	errored int
	dropped int
}

func (m *fakeMetrics) IncSent()    { m.mu.Lock(); m.sent++; m.mu.Unlock() }
func (m *fakeMetrics) IncError()   { m.mu.Lock(); m.errored++; m.mu.Unlock() }
func (m *fakeMetrics) IncDropped() { m.mu.Lock(); m.dropped++; m.mu.Unlock() }

func TestNewRejectsEmptyBrokers(t *testing.T) {
	_, err := New(Config{Topic: "t"}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers")
}

func TestNewRejectsEmptyTopic(t *testing.T) {
	_, err := New(Config{Brokers: []string{"localhost:9092"}}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no topic")
}

func TestSendMarshalsEventAndKeysByDocumentID(t *testing.T) {
	prod := newFakeProducer()
	metrics := &fakeMetrics{}
	s := newWithProducer("test-topic", nil, metrics, prod)
	s.Run()

	event := value.NewMap()
	event.Set("message", "hello")
	meta := value.NewMap()
	meta.Set("document_id", "abc123")
	event.Set("@metadata", meta)

	s.Send(event)

	select {
	case msg := <-prod.input:
		assert.Equal(t, "test-topic", msg.Topic)
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "abc123", string(key))
		val, err := msg.Value.Encode()
		require.NoError(t, err)
		assert.Contains(t, string(val), "hello")
	case <-time.After(time.Second):
		t.Fatal("message was not sent to producer input")
	}

	require.NoError(t, s.Stop())
}

func TestDrainResponsesCountsSuccessesAndErrors(t *testing.T) {
	prod := newFakeProducer()
	metrics := &fakeMetrics{}
	s := newWithProducer("test-topic", nil, metrics, prod)
	s.Run()

	prod.successes <- &sarama.ProducerMessage{Topic: "test-topic"}
	prod.errs <- &sarama.ProducerError{Msg: &sarama.ProducerMessage{Topic: "test-topic"}, Err: assert.AnError}

	require.Eventually(t, func() bool {
		metrics.mu.Lock()
		defer metrics.mu.Unlock()
		return metrics.sent == 1 && metrics.errored == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
}

func TestForceDisconnectClosesProducerWithoutDraining(t *testing.T) {
	prod := newFakeProducer()
	s := newWithProducer("test-topic", nil, nil, prod)
	s.Run()

	require.NoError(t, s.ForceDisconnect())

	prod.mu.Lock()
	closed := prod.asyncClosed
	prod.mu.Unlock()
	assert.True(t, closed)

	require.NoError(t, s.Stop())
}
