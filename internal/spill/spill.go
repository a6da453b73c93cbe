// Package spill implements the Spill Queue: a bounded-memory safety
// valve that durably overflows URLs the Work-Stealing Queue and
// Frontier cannot hold. Uses the same atomic temp-file-then-rename
// durable-write idiom as internal/duragent, applied per-shard as one
// append-only JSON-lines file per shard.
package spill

import (
	"bufio"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

const numShards = 16

// Queue is the sharded on-disk overflow. Disabled (all operations
// become no-ops) when dir is empty.
type Queue struct {
	dir     string
	enabled bool
	mus     [numShards]sync.Mutex
	logger  *slog.Logger

	count atomic.Int64
}

// New creates a Queue rooted at dir. Pass enabled=false for
// CrawlerMode == FRESH.
func New(dir string, enabled bool, logger *slog.Logger) *Queue {
	return &Queue{
		dir:     dir,
		enabled: enabled && dir != "",
		logger:  logger.With("component", "spill_queue"),
	}
}

func shardPath(dir string, shard int) string {
	return filepath.Join(dir, fmt.Sprintf("shard_%02d.jsonl", shard))
}

func shardIndex(url string) int {
	h := fnv.New32a()
	h.Write([]byte(url))
	return int(h.Sum32() % numShards)
}

// Save distributes urls across shards and appends each to its shard's
// file. Partial failures are logged and skipped; Save never blocks the
// caller on a disk error.
func (q *Queue) Save(urls []string) {
	if !q.enabled || len(urls) == 0 {
		return
	}

	grouped := make([][]string, numShards)
	for _, u := range urls {
		i := shardIndex(u)
		grouped[i] = append(grouped[i], u)
	}

	for i, items := range grouped {
		if len(items) == 0 {
			continue
		}
		q.appendShard(i, items)
	}
}

func (q *Queue) appendShard(shard int, urls []string) {
	q.mus[shard].Lock()
	defer q.mus[shard].Unlock()

	if err := os.MkdirAll(q.dir, 0o755); err != nil {
		q.logger.Error("spill mkdir failed", "error", err)
		return
	}
	path := shardPath(q.dir, shard)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		q.logger.Error("spill open failed", "path", path, "error", err)
		return
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	written := int64(0)
	for _, u := range urls {
		line, err := json.Marshal(u)
		if err != nil {
			continue
		}
		w.Write(line)
		w.WriteByte('\n')
		written++
	}
	if err := w.Flush(); err != nil {
		q.logger.Error("spill flush failed", "path", path, "error", err)
		return
	}
	q.count.Add(written)
}

// Load returns up to maxCount URLs, draining shards in index order
// starting from shard 0 on every call. A shard is truncated (its file removed) once fully drained.
func (q *Queue) Load(maxCount int) []string {
	if !q.enabled || maxCount <= 0 {
		return nil
	}

	var out []string
	for shard := 0; shard < numShards && len(out) < maxCount; shard++ {
		remaining := maxCount - len(out)
		urls, fullyDrained := q.drainShard(shard, remaining)
		out = append(out, urls...)
		if fullyDrained {
			q.removeShard(shard)
		}
	}
	q.count.Add(-int64(len(out)))
	return out
}

// drainShard reads up to limit URLs from shard's file. It reports
// whether the entire file was consumed (so the caller can remove it)
// — if not, the undrained remainder is rewritten back to the file.
func (q *Queue) drainShard(shard, limit int) ([]string, bool) {
	q.mus[shard].Lock()
	defer q.mus[shard].Unlock()

	path := shardPath(q.dir, shard)
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}

	var all []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var u string
		if err := json.Unmarshal(scanner.Bytes(), &u); err == nil {
			all = append(all, u)
		}
	}
	f.Close()

	if len(all) <= limit {
		return all, true
	}

	out := all[:limit]
	remainder := all[limit:]
	q.rewriteShardLocked(shard, remainder)
	return out, false
}

func (q *Queue) rewriteShardLocked(shard int, urls []string) {
	path := shardPath(q.dir, shard)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		q.logger.Error("spill rewrite failed", "path", path, "error", err)
		return
	}
	w := bufio.NewWriter(f)
	for _, u := range urls {
		line, _ := json.Marshal(u)
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		q.logger.Error("spill rewrite flush failed", "path", path, "error", err)
		return
	}
	f.Close()
	if err := os.Rename(tmp, path); err != nil {
		q.logger.Error("spill rewrite rename failed", "path", path, "error", err)
	}
}

func (q *Queue) removeShard(shard int) {
	path := shardPath(q.dir, shard)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		q.logger.Warn("spill shard remove failed", "path", path, "error", err)
	}
}

// Enabled reports whether the spill queue is active.
func (q *Queue) Enabled() bool { return q.enabled }

// Size returns the approximate number of URLs currently held in the
// Spill Queue, tracked incrementally across Save/Load rather than
// re-scanning every shard file on each call.
func (q *Queue) Size() int {
	return int(q.count.Load())
}
