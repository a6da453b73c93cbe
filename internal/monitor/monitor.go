// Package monitor implements the periodic stats sampler and the
// coordinated shutdown sequencer: the one place that knows the exact
// order components must wind down in.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/montanaflynn/stats"
)

// State is the monitor's (and, by extension, the engine's) lifecycle
// state, advanced only via compare-and-swap so Stop is idempotent no
// matter how many callers race to invoke it.
type State int32

const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

// Depths reports the current backlog on every bounded queue in the
// pipeline, sampled once per tick.
type Depths struct {
	Frontier  int
	WorkQueue int
	Spill     int
	Parse     int
}

// DefaultInterval is the sampling period used when no override is
// configured.
const DefaultInterval = 5 * time.Second

const maxLatencySamples = 10_000

// Monitor samples pipeline depth/throughput/latency on a timer and
// owns the coordinated shutdown sequence.
type Monitor struct {
	interval time.Duration
	logger   *slog.Logger
	state    atomic.Int32

	mu         sync.Mutex
	latencies  []time.Duration
	fetchCount int64

	freshOverflowDrops int64
}

// New creates a Monitor sampling every interval (DefaultInterval if
// zero or negative).
func New(interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		interval: interval,
		logger:   logger.With("component", "monitor"),
	}
}

// RecordFetch records one completed fetch's wall-clock latency,
// feeding the periodic p50/p95/p99 sample. Safe for concurrent use by
// every fetch worker.
func (m *Monitor) RecordFetch(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	atomic.AddInt64(&m.fetchCount, 1)
	if len(m.latencies) >= maxLatencySamples {
		// Drop the oldest half rather than grow unboundedly; a recent
		// window is what the sample cares about, not full history.
		copy(m.latencies, m.latencies[len(m.latencies)/2:])
		m.latencies = m.latencies[:len(m.latencies)/2]
	}
	m.latencies = append(m.latencies, d)
}

// RecordFreshOverflowDrop counts one FRESH-mode work-queue entry
// evicted to make room for a newer one. FRESH mode has no Spill Queue
// to overflow into, so a full local deque drops its oldest entry
// instead; this counter is how an operator notices it's happening.
func (m *Monitor) RecordFreshOverflowDrop() {
	atomic.AddInt64(&m.freshOverflowDrops, 1)
}

// Run samples depths()/fetch-rate/latency every interval and logs
// them, until ctx is canceled.
func (m *Monitor) Run(ctx context.Context, depths func() Depths) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	lastCount := int64(0)
	lastTick := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			elapsed := now.Sub(lastTick)
			lastTick = now

			count := atomic.LoadInt64(&m.fetchCount)
			rate := float64(count-lastCount) / elapsed.Seconds()
			lastCount = count

			d := depths()
			p50, p95, p99 := m.percentiles()
			m.logger.Info("stats sample",
				"frontier_depth", d.Frontier,
				"workqueue_depth", d.WorkQueue,
				"spill_depth", d.Spill,
				"parse_queue_depth", d.Parse,
				"fetch_rate_per_sec", rate,
				"latency_p50_ms", p50.Milliseconds(),
				"latency_p95_ms", p95.Milliseconds(),
				"latency_p99_ms", p99.Milliseconds(),
				"dropped_fresh_overflow_total", atomic.LoadInt64(&m.freshOverflowDrops),
			)
		}
	}
}

func (m *Monitor) percentiles() (p50, p95, p99 time.Duration) {
	m.mu.Lock()
	samples := make([]float64, len(m.latencies))
	for i, d := range m.latencies {
		samples[i] = float64(d)
	}
	m.mu.Unlock()

	if len(samples) == 0 {
		return 0, 0, 0
	}
	data := stats.Float64Data(samples)
	v50, _ := data.Percentile(50)
	v95, _ := data.Percentile(95)
	v99, _ := data.Percentile(99)
	return time.Duration(v50), time.Duration(v95), time.Duration(v99)
}
