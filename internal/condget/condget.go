// Package condget implements the Conditional-GET Cache: per-URL
// ETag/Last-Modified entries, an in-memory LRU hot layer backed by
// durable JSON shards. Follows internal/metadata's sharding and
// eviction-flush pattern for consistency across the two LRU-backed
// stores.
package condget

import (
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"

	"github.com/ishaannene/crawlcore/internal/duragent"
)

const numShards = 32

// Entry is the conditional-GET state for one URL.
type Entry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag"`
	LastModified string    `json:"last_modified"`
	RespondedAt  time.Time `json:"responded_at"`
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

// Cache is the sharded Conditional-GET Cache.
type Cache struct {
	shards [numShards]*shard
	dir    string
	logger *slog.Logger
}

// New creates a Cache rooted at dir ("" disables durability).
func New(dir string, hotEntriesPerShard int, logger *slog.Logger) *Cache {
	logger = logger.With("component", "condget_cache")
	c := &Cache{dir: dir, logger: logger}
	for i := range c.shards {
		sh := &shard{
			hot:    lru.New(hotEntriesPerShard),
			keys:   make(map[string]struct{}),
			dirty:  make(map[string]struct{}),
			logger: logger,
		}
		if dir != "" {
			sh.path = duragent.ShardPath(dir, "condget", i)
		}
		sh.hot.OnEvicted = func(key lru.Key, value any) {
			e := value.(*Entry)
			delete(sh.keys, key.(string))
			if sh.path != "" {
				if err := sh.persistOne(e); err != nil {
					sh.logger.Error("condget entry evict-flush failed", "url", e.URL, "error", err)
				}
			}
		}
		c.shards[i] = sh
	}
	return c
}

func (sh *shard) persistOne(e *Entry) error {
	var onDisk map[string]*Entry
	if _, err := duragent.LoadJSON(sh.path, &onDisk); err != nil {
		return err
	}
	if onDisk == nil {
		onDisk = make(map[string]*Entry)
	}
	onDisk[e.URL] = e
	return duragent.SaveJSON(sh.path, onDisk)
}

func shardIndex(url string) int {
	h := fnv.New32a()
	h.Write([]byte(url))
	return int(h.Sum32() % numShards)
}

func (c *Cache) shardFor(url string) *shard {
	return c.shards[shardIndex(url)]
}

func (sh *shard) ensureLoaded() {
	if sh.loaded || sh.path == "" {
		sh.loaded = true
		return
	}
	sh.loaded = true
	var entries map[string]*Entry
	ok, err := duragent.LoadJSON(sh.path, &entries)
	if err != nil {
		sh.logger.Warn("condget shard load failed", "path", sh.path, "error", err)
		return
	}
	if !ok {
		return
	}
	for url, e := range entries {
		sh.hot.Add(url, e)
		sh.keys[url] = struct{}{}
	}
}

// Get returns the cached conditional-GET entry for url, if any.
func (c *Cache) Get(url string) (*Entry, bool) {
	sh := c.shardFor(url)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.ensureLoaded()

	v, ok := sh.hot.Get(url)
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// Put stores or overwrites url's conditional-GET entry.
func (c *Cache) Put(url, etag, lastModified string, respondedAt time.Time) {
	sh := c.shardFor(url)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.ensureLoaded()

	e := &Entry{URL: url, ETag: etag, LastModified: lastModified, RespondedAt: respondedAt}
	sh.hot.Add(url, e)
	sh.keys[url] = struct{}{}
	sh.dirty[url] = struct{}{}
}

// Flush durably persists every dirty entry.
func (c *Cache) Flush() error {
	if c.dir == "" {
		return nil
	}
	var firstErr error
	for _, sh := range c.shards {
		sh.mu.Lock()
		if len(sh.dirty) == 0 {
			sh.mu.Unlock()
			continue
		}
		entries := make(map[string]*Entry, len(sh.keys))
		for url := range sh.keys {
			if v, ok := sh.hot.Get(url); ok {
				entries[url] = v.(*Entry)
			}
		}
		path := sh.path
		sh.dirty = make(map[string]struct{})
		sh.mu.Unlock()

		var onDisk map[string]*Entry
		if _, err := duragent.LoadJSON(path, &onDisk); err == nil {
			for url, e := range onDisk {
				if _, inMemory := entries[url]; !inMemory {
					entries[url] = e
				}
			}
		}

		if err := duragent.SaveJSON(path, entries); err != nil {
			c.logger.Error("condget shard flush failed", "path", path, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
