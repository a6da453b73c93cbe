package metadata

import (
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"

	"github.com/ishaannene/crawlcore/internal/duragent"
)

const numShards = 256

// Store is the 256-shard durable metadata store tracking per-URL
// scheduling state. Each shard owns an in-memory LRU hot layer (so a
// long crawl does not retain unbounded decoded records) backed by a
// durable JSON file loaded lazily on first miss and flushed
// periodically by a background writer, via an atomic temp-file-then-
// rename write through internal/duragent. groupcache/lru has no
// key-enumeration method, so
// each shard keeps a small shadow key set and flushes a record to disk
// immediately when the LRU evicts it, guaranteeing nothing is lost
// between periodic Flush calls.
type Store struct {
	shards [numShards]*shard
	dir    string
	logger *slog.Logger
}

type shard struct {
	mu     sync.Mutex
	hot    *lru.Cache
	keys   map[string]struct{}
	dirty  map[string]struct{}
	loaded bool
	path   string
	logger *slog.Logger
}

// New creates a Metadata Store rooted at dir (empty dir disables
// durability — records live in memory only, useful for tests).
func New(dir string, hotEntriesPerShard int, logger *slog.Logger) *Store {
	logger = logger.With("component", "metadata_store")
	s := &Store{dir: dir, logger: logger}
	for i := range s.shards {
		sh := &shard{
			hot:    lru.New(hotEntriesPerShard),
			keys:   make(map[string]struct{}),
			dirty:  make(map[string]struct{}),
			logger: logger,
		}
		if dir != "" {
			sh.path = duragent.ShardPath(dir, "metadata", i)
		}
		sh.hot.OnEvicted = func(key lru.Key, value any) {
			rec := value.(*Record)
			delete(sh.keys, key.(string))
			if sh.path != "" {
				if err := sh.persistOne(rec); err != nil {
					sh.logger.Error("metadata record evict-flush failed", "url", rec.URL, "error", err)
				}
			}
		}
		s.shards[i] = sh
	}
	return s
}

// persistOne appends/overwrites a single record into the shard's
// durable file. Called on LRU eviction so an evicted-but-unflushed
// record is never silently lost. Callers must hold sh.mu.
func (sh *shard) persistOne(rec *Record) error {
	var onDisk map[string]*Record
	if _, err := duragent.LoadJSON(sh.path, &onDisk); err != nil {
		return err
	}
	if onDisk == nil {
		onDisk = make(map[string]*Record)
	}
	onDisk[rec.URL] = rec
	return duragent.SaveJSON(sh.path, onDisk)
}

func shardIndex(url string) int {
	h := fnv.New32a()
	h.Write([]byte(url))
	return int(h.Sum32() % numShards)
}

func (s *Store) shardFor(url string) *shard {
	return s.shards[shardIndex(url)]
}

// ensureLoaded lazy-loads a shard's durable file into the hot cache on
// first access so a shard that is never touched never pays a disk read.
func (sh *shard) ensureLoaded() {
	if sh.loaded || sh.path == "" {
		sh.loaded = true
		return
	}
	sh.loaded = true
	var records map[string]*Record
	ok, err := duragent.LoadJSON(sh.path, &records)
	if err != nil {
		sh.logger.Warn("metadata shard load failed", "path", sh.path, "error", err)
		return
	}
	if !ok {
		return
	}
	for url, rec := range records {
		sh.hot.Add(url, rec)
		sh.keys[url] = struct{}{}
	}
}

func (sh *shard) put(rec *Record) {
	sh.hot.Add(rec.URL, rec)
	sh.keys[rec.URL] = struct{}{}
	sh.dirty[rec.URL] = struct{}{}
}

func (sh *shard) getLocked(url string, now time.Time) (*Record, bool) {
	if v, ok := sh.hot.Get(url); ok {
		return v.(*Record), true
	}
	return NewRecord(url, now), false
}

// Get returns the record for url, creating it if absent. The second
// return is false only when the record was freshly created.
func (s *Store) Get(url string, now time.Time) (*Record, bool) {
	sh := s.shardFor(url)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.ensureLoaded()

	rec, existed := sh.getLocked(url, now)
	if !existed {
		sh.put(rec)
	}
	return rec.Clone(), existed
}

// UpdateAfterCrawl applies the scheduling policy to url's record.
func (s *Store) UpdateAfterCrawl(url, newHash string, now time.Time) *Record {
	sh := s.shardFor(url)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.ensureLoaded()

	rec, _ := sh.getLocked(url, now)
	rec.UpdateAfterCrawl(newHash, now)
	sh.put(rec)
	return rec.Clone()
}

// RecordFailure increments the temporary-failure count without
// otherwise touching the scheduling state.
func (s *Store) RecordFailure(url string, now time.Time) {
	sh := s.shardFor(url)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.ensureLoaded()

	rec, _ := sh.getLocked(url, now)
	rec.TempFailureCount++
	sh.put(rec)
}

// Flush durably persists every dirty record. Called periodically by
// the engine's metadata flush loop and once more during shutdown.
func (s *Store) Flush() error {
	if s.dir == "" {
		return nil
	}
	var firstErr error
	for _, sh := range s.shards {
		sh.mu.Lock()
		if len(sh.dirty) == 0 {
			sh.mu.Unlock()
			continue
		}
		records := make(map[string]*Record, len(sh.keys))
		for url := range sh.keys {
			if v, ok := sh.hot.Get(url); ok {
				records[url] = v.(*Record)
			}
		}
		path := sh.path
		sh.dirty = make(map[string]struct{})
		sh.mu.Unlock()

		// Merge with anything the eviction path already persisted so a
		// concurrent evict-flush doesn't get clobbered by this write.
		var onDisk map[string]*Record
		if _, err := duragent.LoadJSON(path, &onDisk); err == nil {
			for url, rec := range onDisk {
				if _, inMemory := records[url]; !inMemory {
					records[url] = rec
				}
			}
		}

		if err := duragent.SaveJSON(path, records); err != nil {
			s.logger.Error("metadata shard flush failed", "path", path, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Len returns the total number of in-memory (hot) records across all
// shards — used by restart-durability tests.
func (s *Store) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.keys)
		sh.mu.Unlock()
	}
	return total
}

// DueRecords returns up to limit records whose scheduled re-fetch time
// has arrived, for a rescan loop to re-admit into the Frontier. Forces
// every shard to load from disk on its first call (same lazy-load path
// Get/UpdateAfterCrawl use), so a rescan against a durable store from a
// prior run surfaces every due record, not just ones this process has
// already touched — groupcache/lru exposes no key-enumeration method,
// which is why this walks the shadow key set instead.
func (s *Store) DueRecords(now time.Time, limit int) []*Record {
	var due []*Record
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.ensureLoaded()
		for url := range sh.keys {
			if len(due) >= limit {
				sh.mu.Unlock()
				return due
			}
			v, ok := sh.hot.Get(url)
			if !ok {
				continue
			}
			rec := v.(*Record)
			if rec.IsDue(now) {
				due = append(due, rec.Clone())
			}
		}
		sh.mu.Unlock()
		if len(due) >= limit {
			return due
		}
	}
	return due
}
