// Package ratelimit implements the Rate Limiter: 256 atomically-updated
// shards enforcing a per-host minimum inter-request gap that widens
// with consecutive failures, durably persisted by a single background
// writer draining a buffered channel of updates via internal/duragent's
// atomic temp-file-then-rename write, one file per shard as in
// internal/metadata and internal/condget.
package ratelimit

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ishaannene/crawlcore/internal/duragent"
)

const numShards = 256

const (
	baseGap        = 2 * time.Millisecond
	perFailureGap  = 5 * time.Millisecond
	maxAdaptiveGap = 20 * time.Millisecond
)

// shardState is the atomic per-shard state: hosts hashing to the same
// shard conservatively share one gap clock.
type shardState struct {
	lastRequestNanos int64
	failures         int32
}

type update struct {
	host    string
	shard   int
	lastNs  int64
	failCnt int32
}

// Limiter enforces per-host politeness gaps.
type Limiter struct {
	shards [numShards]shardState

	dir    string
	writes chan update
	done   chan struct{}
	logger *slog.Logger
}

// New creates a Limiter. If dir is non-empty, a background goroutine
// batches and durably persists shard updates; pass "" to disable
// durability (tests, fresh-mode runs that don't need cross-restart
// politeness memory).
func New(dir string, logger *slog.Logger) *Limiter {
	l := &Limiter{
		dir:    dir,
		writes: make(chan update, 4096),
		done:   make(chan struct{}),
		logger: logger.With("component", "rate_limiter"),
	}
	if dir != "" {
		l.loadAll()
		go l.writerLoop()
	} else {
		close(l.done)
	}
	return l
}

func shardIndex(host string) int {
	h := fnv.New32a()
	h.Write([]byte(host))
	return int(h.Sum32() % numShards)
}

type persistedShard struct {
	LastRequestNanos int64 `json:"last_request_nanos"`
	Failures         int32 `json:"failures"`
}

func (l *Limiter) shardPath(i int) string {
	return duragent.ShardPath(l.dir, "ratelimit", i)
}

func (l *Limiter) loadAll() {
	for i := range l.shards {
		var ps persistedShard
		ok, err := duragent.LoadJSON(l.shardPath(i), &ps)
		if err != nil {
			l.logger.Warn("rate limiter shard load failed", "shard", i, "error", err)
			continue
		}
		if !ok {
			continue
		}
		atomic.StoreInt64(&l.shards[i].lastRequestNanos, ps.LastRequestNanos)
		atomic.StoreInt32(&l.shards[i].failures, ps.Failures)
	}
}

// writerLoop drains l.writes, batching ~100 updates before persisting
// each touched shard, or flushing on a 500ms tick if fewer arrive.
func (l *Limiter) writerLoop() {
	defer close(l.done)
	const batchTarget = 100
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	dirty := make(map[int]struct{})
	pending := 0

	flush := func() {
		for shard := range dirty {
			ps := persistedShard{
				LastRequestNanos: atomic.LoadInt64(&l.shards[shard].lastRequestNanos),
				Failures:         atomic.LoadInt32(&l.shards[shard].failures),
			}
			if err := duragent.SaveJSON(l.shardPath(shard), ps); err != nil {
				l.logger.Error("rate limiter shard flush failed", "shard", shard, "error", err)
			}
		}
		dirty = make(map[int]struct{})
		pending = 0
	}

	for {
		select {
		case u, ok := <-l.writes:
			if !ok {
				flush()
				return
			}
			dirty[u.shard] = struct{}{}
			pending++
			if pending >= batchTarget {
				flush()
			}
		case <-ticker.C:
			if pending > 0 {
				flush()
			}
		}
	}
}

func (l *Limiter) enqueueWrite(host string, shard int) {
	if l.dir == "" {
		return
	}
	select {
	case l.writes <- update{host: host, shard: shard}:
	default:
		// writer is backed up; durability is best-effort, never blocks a fetch.
	}
}

// gapFor computes the minimum inter-request gap for a shard with the
// given consecutive-failure count.
func gapFor(failures int32) time.Duration {
	adaptive := time.Duration(failures) * perFailureGap
	if adaptive > maxAdaptiveGap {
		adaptive = maxAdaptiveGap
	}
	return baseGap + adaptive
}

// WaitForHost blocks until host's minimum gap has elapsed, then
// publishes a fresh timestamp. Honors ctx cancellation.
func (l *Limiter) WaitForHost(ctx context.Context, host string) error {
	i := shardIndex(host)
	sh := &l.shards[i]

	for {
		failures := atomic.LoadInt32(&sh.failures)
		gap := gapFor(failures)
		last := atomic.LoadInt64(&sh.lastRequestNanos)
		elapsed := time.Duration(time.Now().UnixNano() - last)
		if elapsed >= gap {
			break
		}
		wait := gap - elapsed
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	atomic.StoreInt64(&sh.lastRequestNanos, time.Now().UnixNano())
	l.enqueueWrite(host, i)
	return nil
}

// CanRequestNow is the non-blocking counterpart of WaitForHost.
func (l *Limiter) CanRequestNow(host string) bool {
	i := shardIndex(host)
	sh := &l.shards[i]
	gap := gapFor(atomic.LoadInt32(&sh.failures))
	last := atomic.LoadInt64(&sh.lastRequestNanos)
	return time.Duration(time.Now().UnixNano()-last) >= gap
}

// RecordSuccess resets host's consecutive-failure count.
func (l *Limiter) RecordSuccess(host string) {
	i := shardIndex(host)
	atomic.StoreInt32(&l.shards[i].failures, 0)
	l.enqueueWrite(host, i)
}

// RecordFailure increments host's consecutive-failure count.
func (l *Limiter) RecordFailure(host string) {
	i := shardIndex(host)
	atomic.AddInt32(&l.shards[i].failures, 1)
	l.enqueueWrite(host, i)
}

// ThrottleHost sets host's shard timestamp to now+seconds, so no
// request against it (or anything sharing its shard) proceeds until
// that time — used for 429/503/Retry-After responses.
func (l *Limiter) ThrottleHost(host string, seconds time.Duration) {
	i := shardIndex(host)
	atomic.StoreInt64(&l.shards[i].lastRequestNanos, time.Now().Add(seconds).UnixNano())
	l.enqueueWrite(host, i)
}

// Close stops the durability writer and waits for a final flush.
func (l *Limiter) Close() {
	if l.dir == "" {
		return
	}
	close(l.writes)
	<-l.done
}
