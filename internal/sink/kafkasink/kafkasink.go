// Package kafkasink implements sink.Sink by forwarding events to an Apache
// Kafka topic via an async producer.
package kafkasink

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
	"github.com/xdg-go/scram"

	"github.com/discourse/mobystash/pkg/value"
)

// Metrics is the narrow counter surface this package depends on; the
// concrete internal/metricsink implementation satisfies it.
type Metrics interface {
	IncSent()
	IncError()
	IncDropped()
}

type noopMetrics struct{}

func (noopMetrics) IncSent()    {}
func (noopMetrics) IncError()   {}
func (noopMetrics) IncDropped() {}

// Config holds the sink's connection parameters. cmd/mobystash sets only
// Brokers (from LOGSTASH_SERVER) and Topic; the other fields are left at
// their zero values, which keep sarama's defaults.
type Config struct {
	Brokers         []string
	Topic           string
	RequiredAcks    sarama.RequiredAcks
	Compression     string // none, gzip, snappy, lz4, zstd
	Partitioner     string // hash, round-robin, random
	BatchSize       int
	BatchTimeout    time.Duration
	MaxMessageBytes int
	RetryMax        int
	DialTimeout     time.Duration
	QueueSize       int
	Auth            AuthConfig
}

// AuthConfig configures optional SASL authentication.
type AuthConfig struct {
	Enabled   bool
	Username  string
	Password  string
	Mechanism string // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
}

// asyncProducer is the subset of sarama.AsyncProducer this package uses,
// narrowed so tests can inject a fake instead of dialing a real broker.
type asyncProducer interface {
	Input() chan<- *sarama.ProducerMessage
	Successes() <-chan *sarama.ProducerMessage
	Errors() <-chan *sarama.ProducerError
	Close() error
	AsyncClose()
}

// Sink forwards assembled events to a Kafka topic. It implements
// internal/sink.Sink.
type Sink struct {
	topic    string
	logger   *logrus.Logger
	metrics  Metrics
	producer asyncProducer

	wg       sync.WaitGroup
	runOnce  sync.Once
	stopOnce sync.Once
}

// New builds a Sink from cfg, dialing brokers and constructing the
// underlying async producer.
func New(cfg Config, logger *logrus.Logger, metrics Metrics) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafkasink: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafkasink: no topic configured")
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	if cfg.RequiredAcks != 0 {
		saramaConfig.Producer.RequiredAcks = cfg.RequiredAcks
	}

	switch strings.ToLower(cfg.Compression) {
	case "gzip":
		saramaConfig.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		saramaConfig.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		saramaConfig.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		saramaConfig.Producer.Compression = sarama.CompressionZSTD
	default:
		saramaConfig.Producer.Compression = sarama.CompressionNone
	}

	if cfg.BatchSize > 0 {
		saramaConfig.Producer.Flush.Messages = cfg.BatchSize
	}
	if cfg.BatchTimeout > 0 {
		saramaConfig.Producer.Flush.Frequency = cfg.BatchTimeout
	}
	if cfg.MaxMessageBytes > 0 {
		saramaConfig.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	}
	if cfg.RetryMax > 0 {
		saramaConfig.Producer.Retry.Max = cfg.RetryMax
	}
	if cfg.DialTimeout > 0 {
		saramaConfig.Net.DialTimeout = cfg.DialTimeout
		saramaConfig.Net.ReadTimeout = cfg.DialTimeout
		saramaConfig.Net.WriteTimeout = cfg.DialTimeout
	}

	if cfg.Auth.Enabled {
		saramaConfig.Net.SASL.Enable = true
		saramaConfig.Net.SASL.User = cfg.Auth.Username
		saramaConfig.Net.SASL.Password = cfg.Auth.Password

		switch strings.ToUpper(cfg.Auth.Mechanism) {
		case "PLAIN":
			saramaConfig.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		case "SCRAM-SHA-256":
			saramaConfig.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			saramaConfig.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{hashGen: sha256.New}
			}
		case "SCRAM-SHA-512":
			saramaConfig.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			saramaConfig.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{hashGen: sha512.New}
			}
		}
	}

	switch strings.ToLower(cfg.Partitioner) {
	case "round-robin":
		saramaConfig.Producer.Partitioner = sarama.NewRoundRobinPartitioner
	case "random":
		saramaConfig.Producer.Partitioner = sarama.NewRandomPartitioner
	default:
		saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	}

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("kafkasink: create producer: %w", err)
	}

	return newWithProducer(cfg.Topic, logger, metrics, producer), nil
}

func newWithProducer(topic string, logger *logrus.Logger, metrics Metrics, producer asyncProducer) *Sink {
	return &Sink{
		topic:    topic,
		logger:   logger,
		metrics:  metrics,
		producer: producer,
	}
}

// Run starts the goroutine that drains the producer's success/error
// channels. Safe to call once.
func (s *Sink) Run() error {
	s.runOnce.Do(func() {
		s.wg.Add(1)
		go s.drainResponses()
	})
	return nil
}

// Send marshals event to JSON and enqueues it on the producer's input
// channel, keyed by document_id for partitioner stability. Blocks if the
// producer's internal queue is full (spec §7's accepted back-pressure
// path).
func (s *Sink) Send(event *value.Map) {
	body, err := json.Marshal(event)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Warn("kafkasink: failed to marshal event, dropping")
		}
		s.metrics.IncDropped()
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Value: sarama.ByteEncoder(body),
	}
	if key := documentID(event); key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	s.producer.Input() <- msg
}

func documentID(event *value.Map) string {
	meta, ok := event.Get("@metadata")
	if !ok {
		return ""
	}
	metaMap, ok := meta.(*value.Map)
	if !ok {
		return ""
	}
	id, _ := metaMap.Get("document_id")
	s, _ := id.(string)
	return s
}

func (s *Sink) drainResponses() {
	defer s.wg.Done()
	successes := s.producer.Successes()
	errs := s.producer.Errors()
	for successes != nil || errs != nil {
		select {
		case _, ok := <-successes:
			if !ok {
				successes = nil
				continue
			}
			s.metrics.IncSent()
		case perr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.metrics.IncError()
			if s.logger != nil {
				s.logger.WithError(perr.Err).Warn("kafkasink: failed to deliver message")
			}
		}
	}
}

// Stop gracefully closes the producer, flushing any buffered messages, and
// waits for the response-draining goroutine to finish.
func (s *Sink) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		err = s.producer.Close()
		s.wg.Wait()
	})
	return err
}

// ForceDisconnect tears down the producer's connections immediately,
// abandoning any buffered messages, without waiting for delivery
// confirmation.
func (s *Sink) ForceDisconnect() error {
	s.producer.AsyncClose()
	return nil
}

// scramClient adapts github.com/xdg-go/scram to sarama.SCRAMClient.
type scramClient struct {
	*scram.Client
	*scram.ClientConversation
	hashGen scram.HashGeneratorFcn
}

func (x *scramClient) Begin(userName, password, authzID string) error {
	client, err := x.hashGen.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	x.Client = client
	x.ClientConversation = client.NewConversation()
	return nil
}

func (x *scramClient) Step(challenge string) (string, error) {
	return x.ClientConversation.Step(challenge)
}

func (x *scramClient) Done() bool {
	return x.ClientConversation.Done()
}
