// Package selfstat periodically samples this process's own resource usage
// (RSS, open file descriptors, goroutines) and the host's CPU percentage
// into gauges, alongside the
// metrics server (SPEC_FULL.md §10's ambient observability surface).
package selfstat

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
)

// DefaultInterval is how often gauges are resampled when Collector.Run is
// used without a caller-supplied ticker interval.
const DefaultInterval = 15 * time.Second

// Collector samples process resource gauges on a timer.
type Collector struct {
	logger   *logrus.Logger
	interval time.Duration
	proc     *process.Process

	rss         prometheus.Gauge
	openFDs     prometheus.Gauge
	cpuPercent  prometheus.Gauge
	goroutines  prometheus.Gauge
	lastCPUTime cpu.TimesStat
	lastSampled time.Time
}

// New constructs a Collector registered against registry, sampling this
// process's own stats (os.Getpid()).
func New(registry prometheus.Registerer, logger *logrus.Logger, interval time.Duration) (*Collector, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}

	factory := promauto.With(registry)
	return &Collector{
		logger:   logger,
		interval: interval,
		proc:     proc,
		rss: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mobystash_process_resident_memory_bytes",
			Help: "Resident memory size of this process, in bytes.",
		}),
		openFDs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mobystash_process_open_fds",
			Help: "Number of open file descriptors held by this process.",
		}),
		cpuPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mobystash_process_cpu_percent",
			Help: "Host-wide CPU usage percentage (all CPUs combined), sampled since the previous collection.",
		}),
		goroutines: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mobystash_goroutines",
			Help: "Number of goroutines currently running.",
		}),
	}, nil
}

// Run samples gauges immediately, then on every tick of Collector's
// interval, until ctx is done.
func (c *Collector) Run(ctx context.Context) {
	c.sample()

	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.sample()
		case <-ctx.Done():
			return
		}
	}
}

func (c *Collector) sample() {
	c.goroutines.Set(float64(runtime.NumGoroutine()))

	if memInfo, err := c.proc.MemoryInfo(); err == nil && memInfo != nil {
		c.rss.Set(float64(memInfo.RSS))
	} else if err != nil && c.logger != nil {
		c.logger.WithError(err).Debug("selfstat: failed to read memory info")
	}

	if fds, err := c.proc.NumFDs(); err == nil {
		c.openFDs.Set(float64(fds))
	} else if c.logger != nil {
		c.logger.WithError(err).Debug("selfstat: failed to read open file descriptors")
	}

	times, err := cpu.Times(false)
	if err == nil && len(times) > 0 {
		if !c.lastSampled.IsZero() {
			total := times[0].Total() - c.lastCPUTime.Total()
			idle := times[0].Idle - c.lastCPUTime.Idle
			if total > 0 {
				c.cpuPercent.Set(100.0 * (total - idle) / total)
			}
		}
		c.lastCPUTime = times[0]
		c.lastSampled = time.Now()
	}
}
