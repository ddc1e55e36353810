package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/discourse/mobystash/internal/config"
	"github.com/discourse/mobystash/internal/engine"
	"github.com/discourse/mobystash/internal/metricsink"
	"github.com/discourse/mobystash/internal/router"
	"github.com/discourse/mobystash/internal/sampler"
	"github.com/discourse/mobystash/internal/selfstat"
	"github.com/discourse/mobystash/internal/sink/kafkasink"
	"github.com/discourse/mobystash/internal/tracing"
	"github.com/discourse/mobystash/internal/worker"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := run(logger); err != nil {
		logger.WithError(err).Error("mobystash: fatal error")
		os.Exit(1)
	}
}

func run(logger *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := engine.NewDockerEngine(ctx)
	if err != nil {
		return fmt.Errorf("engine error: %w", err)
	}

	var metrics *metricsink.Sink
	if cfg.EnableMetrics {
		metrics = metricsink.New(cfg.MetricsAddr, logger)
		if err := metrics.Run(); err != nil {
			return fmt.Errorf("metrics error: %w", err)
		}
		defer metrics.Stop()

		selfstatCollector, err := selfstat.New(metrics.Registry(), logger, cfg.SelfstatInterval)
		if err != nil {
			return fmt.Errorf("selfstat error: %w", err)
		}
		go selfstatCollector.Run(ctx)
	}

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:     cfg.TracingEnabled,
		ServiceName: "mobystash",
		Endpoint:    cfg.TracingEndpoint,
	}, logger)
	if err != nil {
		return fmt.Errorf("tracing error: %w", err)
	}
	defer tracer.Shutdown(context.Background())

	samp, err := buildSampler(cfg)
	if err != nil {
		return fmt.Errorf("sampler error: %w", err)
	}

	var sinkMetrics kafkasink.Metrics
	if metrics != nil {
		sinkMetrics = metrics
	}
	snk, err := kafkasink.New(kafkasink.Config{
		Brokers: []string{cfg.LogstashServer},
		Topic:   "mobystash",
	}, logger, sinkMetrics)
	if err != nil {
		return fmt.Errorf("sink error: %w", err)
	}

	r := router.New(eng, snk, metricsOrNoop(metrics), samp, logger, cfg.StateFile, cfg.StateCheckpointInterval)
	r.Tracer = tracer.Tracer()

	if cfg.SampleRulesFile != "" {
		if err := config.WatchSampleRulesFile(ctx, cfg.SampleRulesFile, logger, func(rules []config.SampleRule) {
			newSampler, err := buildSamplerFromRules(cfg.SampleRatio, rules)
			if err != nil {
				logger.WithError(err).Warn("mobystash: failed to rebuild sampler from reloaded rules")
				return
			}
			r.SetSampler(newSampler)
		}); err != nil {
			return fmt.Errorf("sample rules watch error: %w", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("mobystash: shutdown signal received")
		cancel()
	}()

	return r.Run(ctx)
}

func buildSampler(cfg config.Config) (sampler.Sampler, error) {
	return buildSamplerFromRules(cfg.SampleRatio, cfg.SampleRules)
}

func buildSamplerFromRules(baseRatio float64, rules []config.SampleRule) (sampler.Sampler, error) {
	if baseRatio >= 1.0 && len(rules) == 0 {
		return sampler.AlwaysPass{}, nil
	}

	compiled := make([]sampler.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile sample rule pattern %q: %w", rule.Pattern, err)
		}
		compiled = append(compiled, sampler.Rule{Pattern: pattern, Ratio: rule.Ratio})
	}

	return sampler.New(sampler.Config{BaseRatio: baseRatio, Rules: compiled}), nil
}

// metricsOrNoop adapts an optional *metricsink.Sink to worker.Metrics,
// falling back to a no-op implementation when metrics are disabled.
func metricsOrNoop(m *metricsink.Sink) worker.Metrics {
	if m != nil {
		return m
	}
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) IncLogEntriesRead(name, id, stream string)       {}
func (noopMetrics) IncLogEntriesSent(name, id, stream string)       {}
func (noopMetrics) ObserveLastLogEntryAt(name, id string, s float64) {}
func (noopMetrics) IncReadEventException(name, id, class string)    {}
func (noopMetrics) IncParseError(name, id string)                   {}
func (noopMetrics) PrimeCounters(name, id string, streams []string) {}
