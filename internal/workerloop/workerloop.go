// Package workerloop implements the HTTP Fetcher Pool's per-worker
// orchestration: pop-local/steal/frontier-pull dispatch, the
// robots/blacklist/rate-limiter/conditional-GET policy checks, the
// fetch itself, and response interpretation. Built around
// sourcegraph/conc/pool instead of a raw `wg.Add(1); go worker()` loop,
// for panic-isolated workers with the same blocking pop/fetch/dispatch
// shape.
package workerloop

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/ishaannene/crawlcore/internal/blacklist"
	"github.com/ishaannene/crawlcore/internal/condget"
	"github.com/ishaannene/crawlcore/internal/fetcher"
	"github.com/ishaannene/crawlcore/internal/frontier"
	"github.com/ishaannene/crawlcore/internal/metadata"
	"github.com/ishaannene/crawlcore/internal/ratelimit"
	"github.com/ishaannene/crawlcore/internal/robots"
	"github.com/ishaannene/crawlcore/internal/types"
	"github.com/ishaannene/crawlcore/internal/workqueue"
)

// FetchResult is handed off to the Parse Queue for 2xx responses.
type FetchResult struct {
	URL           string
	Body          []byte
	Host          string
	Depth         int
	StatusCode    int
	ReferrerHost  string
	FetchedAt     time.Time
	FetchDuration time.Duration
}

// Deps bundles every component a fetch worker consults.
type Deps struct {
	Frontier    *frontier.Frontier
	WorkQueue   *workqueue.Queue
	Fetcher     fetcher.Fetcher
	Robots      *robots.Cache
	RateLimiter *ratelimit.Limiter
	Blacklist   *blacklist.Blacklist
	CondGet     *condget.Cache
	Metadata    *metadata.Store

	UserAgent                   string
	RespectRobots               bool
	ConsecutiveTimeoutThreshold int

	ParseQueue chan<- FetchResult

	Logger *slog.Logger
}

// Pool runs NumWorkers fetch loops until ctx is canceled.
type Pool struct {
	deps       Deps
	numWorkers int

	timeoutMu     sync.Mutex
	timeoutCounts map[string]int
}

// New creates a fetch worker Pool.
func New(deps Deps, numWorkers int) *Pool {
	return &Pool{deps: deps, numWorkers: numWorkers, timeoutCounts: make(map[string]int)}
}

// Run blocks until ctx is canceled, then waits for in-flight fetches
// to finish. A panicking worker is caught by conc/pool and does not
// bring down the rest of the pool.
func (p *Pool) Run(ctx context.Context) error {
	workers := pool.New().WithContext(ctx)
	for id := 0; id < p.numWorkers; id++ {
		workerID := id
		workers.Go(func(ctx context.Context) error {
			p.workerLoop(ctx, workerID)
			return nil
		})
	}
	return workers.Wait()
}

// workerLoop is the dispatch/policy/fetch/interpret loop for one fetch
// worker.
func (p *Pool) workerLoop(ctx context.Context, workerID int) {
	d := p.deps
	idleBackoff := 20 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Step 1: pop from local deque, else steal, else pull from Frontier.
		item, ok := d.WorkQueue.PopLocal(workerID)
		if !ok {
			item, ok = d.WorkQueue.TrySteal(workerID)
		}
		if !ok {
			info, found := d.Frontier.Dequeue()
			if !found {
				select {
				case <-ctx.Done():
					return
				case <-time.After(idleBackoff):
				}
				continue
			}
			item = workqueue.WorkItem{URL: info.URL, Depth: info.Depth, ReferrerHost: info.ReferrerHost}

			// Hand the item through this worker's own local deque rather
			// than processing it inline, so an idle sibling can steal it
			// via TrySteal before this worker pops it back below — this
			// is what actually exercises the steal-first dispatch path
			// outside of FRESH-mode RSS injection. If the deque is full,
			// fall back to processing directly; the item is already
			// dequeued from the Frontier and must not be dropped.
			if !d.WorkQueue.PushLocal(workerID, item) {
				p.processOne(ctx, item.URL, item.Depth, item.ReferrerHost)
				continue
			}
			item, ok = d.WorkQueue.PopLocal(workerID)
			if !ok {
				continue
			}
		}

		p.processOne(ctx, item.URL, item.Depth, item.ReferrerHost)
	}
}

func (p *Pool) processOne(ctx context.Context, url string, depth int, referrerHost string) {
	d := p.deps

	host, err := frontier.Host(url)
	if err != nil {
		return
	}

	// Step 2: blacklist.
	if d.Blacklist.IsBlacklisted(host) {
		return
	}

	// Step 3: robots.
	if d.RespectRobots {
		outcome := d.Robots.Allowed(host, pathOf(url), d.UserAgent)
		if outcome == robots.DeferredFetchStarted {
			d.Robots.FetchAndUpdate(ctx, host)
			outcome = d.Robots.Allowed(host, pathOf(url), d.UserAgent)
			if outcome == robots.DeferredFetchStarted {
				// fetch failed or is still in flight elsewhere; be permissive
				// for this single request rather than stall the worker.
				outcome = robots.Allowed
			}
		}
		if outcome == robots.Disallowed {
			return
		}
	}

	// Step 4: politeness gap.
	if err := d.RateLimiter.WaitForHost(ctx, host); err != nil {
		return
	}

	// Step 5: conditional-GET headers.
	var cond *fetcher.ConditionalHeaders
	if entry, ok := d.CondGet.Get(url); ok {
		cond = &fetcher.ConditionalHeaders{ETag: entry.ETag, LastModified: entry.LastModified}
	}

	// Step 6-7: fetch and interpret.
	resp, err := d.Fetcher.Fetch(ctx, url, cond)
	if err != nil {
		p.handleFetchError(host, url, err)
		return
	}
	// Any response ends the host's run of consecutive fetch errors.
	p.resetTimeoutCount(host)

	if resp.IsNotModified() {
		d.RateLimiter.RecordSuccess(host)
		d.Metadata.UpdateAfterCrawl(url, priorUnchangedHash(d.Metadata, url), time.Now())
		return
	}

	if resp.IsSuccess() {
		d.RateLimiter.RecordSuccess(host)
		if etag := resp.Headers.Get("ETag"); etag != "" || resp.Headers.Get("Last-Modified") != "" {
			d.CondGet.Put(url, etag, resp.Headers.Get("Last-Modified"), time.Now())
		}
		select {
		case d.ParseQueue <- FetchResult{
			URL: url, Body: resp.Body, Host: host, Depth: depth,
			StatusCode: resp.StatusCode, ReferrerHost: referrerHost, FetchedAt: resp.FetchedAt,
			FetchDuration: resp.FetchDuration,
		}:
		case <-ctx.Done():
		}
		return
	}

	if resp.IsClientError() {
		// A permanent 4xx (404, 403, 410, ...) is not a transient fetch
		// failure — treat it as a null-content fetch so the backoff
		// schedule still advances instead of being stuck retrying a page
		// that will never succeed.
		d.RateLimiter.RecordSuccess(host)
		d.Metadata.UpdateAfterCrawl(url, priorUnchangedHash(d.Metadata, url), time.Now())
		return
	}

	d.RateLimiter.RecordFailure(host)
	d.Metadata.RecordFailure(url, time.Now())
}

// handleFetchError records the failure locally. It never re-pushes url
// to the Frontier directly — re-admission happens later, through the
// engine's periodic rescan of metadata records that have come due.
func (p *Pool) handleFetchError(host, url string, err error) {
	d := p.deps

	if fe, ok := err.(*types.FetchError); ok && fe.RetryAfter > 0 {
		d.RateLimiter.ThrottleHost(host, fe.RetryAfter)
		return
	}

	d.RateLimiter.RecordFailure(host)
	d.Metadata.RecordFailure(url, time.Now())

	if p.bumpTimeoutCount(host) >= d.ConsecutiveTimeoutThreshold {
		d.Blacklist.AddTemporary(host)
		p.resetTimeoutCount(host)
	}
}

// bumpTimeoutCount increments and returns host's consecutive-failure
// count. Guarded by timeoutMu since multiple fetch workers can hit the
// same host's errors concurrently.
func (p *Pool) bumpTimeoutCount(host string) int {
	p.timeoutMu.Lock()
	defer p.timeoutMu.Unlock()
	p.timeoutCounts[host]++
	return p.timeoutCounts[host]
}

func (p *Pool) resetTimeoutCount(host string) {
	p.timeoutMu.Lock()
	defer p.timeoutMu.Unlock()
	p.timeoutCounts[host] = 0
}

func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// priorUnchangedHash is called on a 304, where there is no new body to
// hash: it preserves the metadata record's existing content hash so
// UpdateAfterCrawl's "changed" comparison correctly reads as unchanged.
func priorUnchangedHash(store *metadata.Store, url string) string {
	rec, _ := store.Get(url, time.Now())
	return rec.ContentHash
}
