// Package metricsink implements worker.Metrics and discovery/router's
// exception counters as Prometheus collectors, served over an HTTP
// endpoint (spec §7's observability surface: read/sent counters,
// last-log-entry-at gauge, exception and parse-error counters).
package metricsink

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Sink collects the counters and gauges spec §4.D/§4.E/§7 name, keyed by
// container name/id and (where applicable) stream.
type Sink struct {
	logger   *logrus.Logger
	server   *http.Server
	registry *prometheus.Registry

	logEntriesRead      *prometheus.CounterVec
	logEntriesSent      *prometheus.CounterVec
	lastLogEntryAt      *prometheus.GaugeVec
	readEventExceptions *prometheus.CounterVec
	parseErrors         *prometheus.CounterVec

	sinkMessagesSent    prometheus.Counter
	sinkMessagesErrored prometheus.Counter
	sinkMessagesDropped prometheus.Counter
}

// New registers the collectors against a dedicated registry and wires an
// HTTP server exposing them at /metrics, bound to addr (e.g. ":9090").
// The server is not started until Run.
func New(addr string, logger *logrus.Logger) *Sink {
	registry := prometheus.NewRegistry()

	s := &Sink{
		logger:   logger,
		registry: registry,
		logEntriesRead: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "mobystash_log_entries_read_total",
			Help: "Total number of log lines read from a container's stream.",
		}, []string{"name", "id", "stream"}),
		logEntriesSent: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "mobystash_log_entries_sent_total",
			Help: "Total number of log events forwarded to the sink.",
		}, []string{"name", "id", "stream"}),
		lastLogEntryAt: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "mobystash_last_log_entry_at",
			Help: "Unix timestamp of the most recently observed log entry.",
		}, []string{"name", "id"}),
		readEventExceptions: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "mobystash_read_event_exception_total",
			Help: "Total number of transient errors encountered reading container events or logs.",
		}, []string{"name", "id", "exception_class"}),
		parseErrors: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "mobystash_parse_error_total",
			Help: "Total number of log lines that failed to parse (no timestamp separator, unparseable or backwards timestamp).",
		}, []string{"name", "id"}),
		sinkMessagesSent: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "mobystash_sink_messages_sent_total",
			Help: "Total number of events the downstream sink confirmed delivery of.",
		}),
		sinkMessagesErrored: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "mobystash_sink_messages_errored_total",
			Help: "Total number of events the downstream sink failed to deliver.",
		}),
		sinkMessagesDropped: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "mobystash_sink_messages_dropped_total",
			Help: "Total number of events dropped before being handed to the downstream sink (e.g. marshal failure).",
		}),
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.server = &http.Server{Addr: addr, Handler: router}
	return s
}

// Registry exposes the underlying Prometheus registry so other collectors
// (internal/selfstat) can register against the same /metrics endpoint.
func (s *Sink) Registry() *prometheus.Registry {
	return s.registry
}

// Run starts the metrics HTTP server in the background.
func (s *Sink) Run() error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("metricsink: server error")
		}
	}()
	return nil
}

// Stop shuts the metrics HTTP server down.
func (s *Sink) Stop() error {
	if err := s.server.Close(); err != nil {
		return fmt.Errorf("metricsink: close server: %w", err)
	}
	return nil
}

// worker.Metrics implementation.

func (s *Sink) IncLogEntriesRead(name, id, stream string) {
	s.logEntriesRead.WithLabelValues(name, id, stream).Inc()
}

func (s *Sink) IncLogEntriesSent(name, id, stream string) {
	s.logEntriesSent.WithLabelValues(name, id, stream).Inc()
}

func (s *Sink) ObserveLastLogEntryAt(name, id string, unixSeconds float64) {
	s.lastLogEntryAt.WithLabelValues(name, id).Set(unixSeconds)
}

func (s *Sink) IncReadEventException(name, id, exceptionClass string) {
	s.readEventExceptions.WithLabelValues(name, id, exceptionClass).Inc()
}

func (s *Sink) IncParseError(name, id string) {
	s.parseErrors.WithLabelValues(name, id).Inc()
}

// PrimeCounters registers the zero value for every stream-keyed counter a
// container can produce, so a collector observes the series even before
// the first line (spec §4.D's counters priming).
func (s *Sink) PrimeCounters(name, id string, streams []string) {
	for _, stream := range streams {
		s.logEntriesRead.WithLabelValues(name, id, stream)
		s.logEntriesSent.WithLabelValues(name, id, stream)
	}
}

// kafkasink.Metrics implementation, so the same registry also surfaces the
// sink's own delivery counters.

func (s *Sink) IncSent() { s.sinkMessagesSent.Inc() }

func (s *Sink) IncError() { s.sinkMessagesErrored.Inc() }

func (s *Sink) IncDropped() { s.sinkMessagesDropped.Inc() }
