package engine

import (
	"context"
	"time"

	"github.com/ishaannene/crawlcore/internal/frontier"
	"github.com/ishaannene/crawlcore/internal/parser"
	"github.com/ishaannene/crawlcore/internal/storage"
	"github.com/ishaannene/crawlcore/internal/workerloop"
)

// parserWorker drains the Parse Queue until ctx is canceled or the
// queue is closed. One of NumParsers instances runs concurrently.
func (e *Engine) parserWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case fr, ok := <-e.parseQueue:
			if !ok {
				return nil
			}
			e.handleFetchResult(ctx, fr)
		}
	}
}

// handleFetchResult runs one fetched page through Parse, updates its
// scheduling record, hands the enriched record to the batcher, and
// enqueues every discovered link.
func (e *Engine) handleFetchResult(ctx context.Context, fr workerloop.FetchResult) {
	e.monitor.RecordFetch(fr.FetchDuration)

	res, err := e.parser.Parse(fr.URL, fr.Body, fr.Depth)
	if err != nil {
		e.logger.Warn("parse failed", "url", fr.URL, "error", err)
		return
	}

	now := time.Now()
	rec := e.metadata.UpdateAfterCrawl(fr.URL, res.ContentHash, now)

	record := storage.EnrichedRecord{
		URL:                fr.URL,
		Domain:             fr.Host,
		Timestamp:          now,
		Depth:              fr.Depth,
		HTTPStatusCode:     fr.StatusCode,
		ContentLength:      len(fr.Body),
		ContentHash:        res.ContentHash,
		LastCrawlTime:      rec.LastFetchTime,
		PreviousChangeTime: rec.PreviousChangeTime,
		ExpectedNextCrawl:  rec.ExpectedNextFetch,
		BackoffMultiplier:  rec.BackoffMultiplier,
		CrawlCount:         rec.FetchCount,
		ChangeFrequency:    rec.ChangeFrequency,
		Content:            string(fr.Body),
	}

	select {
	case e.recordsCh <- record:
	case <-ctx.Done():
		return
	}

	e.enqueueDiscovered(fr.Host, fr.Depth, res.Links)
}

// enqueueDiscovered applies domain overrides, builds Frontier entries
// for every discovered link, and spills whatever the Frontier rejects
// (its max_queue_size is reached) to the Spill Queue.
func (e *Engine) enqueueDiscovered(referrerHost string, parentDepth int, links []parser.DiscoveredLink) {
	if len(links) == 0 {
		return
	}
	if parentDepth+1 > e.cfg.Engine.MaxDepth {
		return
	}

	now := time.Now()
	infos := make([]*frontier.UrlInfo, 0, len(links))
	for _, link := range links {
		priority := link.Priority
		if host, err := frontier.Host(link.URL); err == nil {
			if override, ok := e.domainOverrides[host]; ok {
				if !override.Enabled {
					continue
				}
				if override.PriorityMultiplier != 0 {
					priority *= override.PriorityMultiplier
				}
			}
		}
		infos = append(infos, &frontier.UrlInfo{
			URL:          link.URL,
			Priority:     priority,
			Depth:        link.Depth,
			ReferrerHost: referrerHost,
			DiscoveredAt: now,
			ScheduledFor: now,
		})
	}
	if len(infos) == 0 {
		return
	}

	rejected := e.frontier.EnqueueBatch(infos)
	if len(rejected) == 0 || !e.spillQueue.Enabled() {
		return
	}
	urls := make([]string, len(rejected))
	for i, info := range rejected {
		urls[i] = info.URL
	}
	e.spillQueue.Save(urls)
}

// recordBatcher accumulates enriched records off recordsCh and flushes
// them to the Storage Writer on a size or time trigger, whichever
// comes first. It only stops when recordsCh is closed — not on ctx
// cancellation directly — so the shutdown sequence can guarantee every
// record a parser worker already committed to send is written before
// the final storage flush: recordsCh is closed only after JoinParsers
// confirms no parser worker can still be sending to it.
func (e *Engine) recordBatcher(ctx context.Context) error {
	batchSize := e.cfg.Storage.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	flushPeriod := e.cfg.Storage.FlushPeriod
	if flushPeriod <= 0 {
		flushPeriod = 10 * time.Second
	}

	ticker := time.NewTicker(flushPeriod)
	defer ticker.Stop()

	batch := make([]storage.EnrichedRecord, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		e.writer.SaveBatch(batch)
		batch = make([]storage.EnrichedRecord, 0, batchSize)
	}

	for {
		select {
		case rec, ok := <-e.recordsCh:
			if !ok {
				flush()
				return nil
			}
			batch = append(batch, rec)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
