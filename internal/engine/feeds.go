package engine

import (
	"time"

	"github.com/ishaannene/crawlcore/internal/config"
	"github.com/ishaannene/crawlcore/internal/frontier"
	"github.com/ishaannene/crawlcore/internal/workqueue"
)

const seedPriority = 10.0

// RssCallback is invoked by an external RSS poller (out of scope here)
// to inject newly discovered URLs.
type RssCallback func(entries []RSSEntry)

// SitemapCallback is invoked by an external sitemap parser to inject
// URLs into the Frontier.
type SitemapCallback func(urls []string)

// RSSEntry is one feed item an external RSS poller hands to
// InjectFromRSS.
type RSSEntry struct {
	URL   string
	Depth int
}

// RegisterRssCallback exposes the Engine's injection point to an
// external RSS poller; the returned callback is InjectFromRSS.
func (e *Engine) RegisterRssCallback() RssCallback {
	return e.InjectFromRSS
}

// RegisterSitemapCallback exposes the Engine's injection point to an
// external sitemap parser; the returned callback is InjectFromSitemap.
func (e *Engine) RegisterSitemapCallback() SitemapCallback {
	return e.InjectFromSitemap
}

// InjectFromRSS routes entries to the Frontier in REGULAR mode, or
// directly onto a fetcher's work-stealing slot in FRESH mode, per the
// crawler's startup mode.
func (e *Engine) InjectFromRSS(entries []RSSEntry) {
	if e.cfg.Engine.Mode == config.ModeFresh {
		for _, entry := range entries {
			e.pushToWorkStealingSlot(entry.URL, entry.Depth)
		}
		return
	}

	now := time.Now()
	infos := make([]*frontier.UrlInfo, len(entries))
	for i, entry := range entries {
		infos[i] = &frontier.UrlInfo{
			URL: entry.URL, Priority: seedPriority, Depth: entry.Depth,
			DiscoveredAt: now, ScheduledFor: now,
		}
	}
	e.frontier.EnqueueBatch(infos)
}

// InjectFromSitemap always routes to the Frontier, regardless of mode.
func (e *Engine) InjectFromSitemap(urls []string) {
	now := time.Now()
	infos := make([]*frontier.UrlInfo, len(urls))
	for i, u := range urls {
		infos[i] = &frontier.UrlInfo{
			URL: u, Priority: seedPriority, Depth: 0,
			DiscoveredAt: now, ScheduledFor: now,
		}
	}
	e.frontier.EnqueueBatch(infos)
}

// pushToWorkStealingSlot round-robins across fetcher deques. FRESH mode
// has no Spill Queue, so a full deque drops its oldest entry rather
// than blocking or falling back to a Frontier that fresh-mode callers
// don't expect to accumulate in.
func (e *Engine) pushToWorkStealingSlot(url string, depth int) {
	slot := int(e.nextFetcherSlot.Add(1)-1) % e.cfg.Engine.NumFetchers
	item := workqueue.WorkItem{URL: url, Depth: depth}
	if e.workQueue.PushLocalDropOldest(slot, item) {
		e.monitor.RecordFreshOverflowDrop()
	}
}

// loadSeeds reads seeds_path and injects each seed at its configured
// depth (0 for a plain URL entry) with a fixed high priority, so a fresh crawl always starts from a known set
// rather than waiting on external RSS/sitemap collaborators.
func (e *Engine) loadSeeds() error {
	seeds, err := config.LoadSeeds(e.cfg.Engine.SeedsPath)
	if err != nil {
		return err
	}
	if len(seeds) == 0 {
		return nil
	}

	now := time.Now()
	infos := make([]*frontier.UrlInfo, len(seeds))
	for i, s := range seeds {
		infos[i] = &frontier.UrlInfo{
			URL: s.URL, Priority: seedPriority, Depth: s.Depth,
			DiscoveredAt: now, ScheduledFor: now,
		}
	}
	e.frontier.EnqueueBatch(infos)
	return nil
}
