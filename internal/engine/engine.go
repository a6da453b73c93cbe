// Package engine wires every component — Metadata Store, Rate
// Limiter, Robots Cache, Host Blacklist, Frontier, Spill Queue,
// Work-Stealing Queue, Parse Queue, Storage Writer, Monitor, and the
// Fetcher Pool — into one crawl, and owns its New/Run/Stop
// lifecycle and the coordinated shutdown sequence.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/ishaannene/crawlcore/internal/blacklist"
	"github.com/ishaannene/crawlcore/internal/condget"
	"github.com/ishaannene/crawlcore/internal/config"
	"github.com/ishaannene/crawlcore/internal/fetcher"
	"github.com/ishaannene/crawlcore/internal/frontier"
	"github.com/ishaannene/crawlcore/internal/metadata"
	"github.com/ishaannene/crawlcore/internal/monitor"
	"github.com/ishaannene/crawlcore/internal/parser"
	"github.com/ishaannene/crawlcore/internal/ratelimit"
	"github.com/ishaannene/crawlcore/internal/robots"
	"github.com/ishaannene/crawlcore/internal/spill"
	"github.com/ishaannene/crawlcore/internal/storage"
	"github.com/ishaannene/crawlcore/internal/workerloop"
	"github.com/ishaannene/crawlcore/internal/workqueue"
)

const metadataFlushInterval = 30 * time.Second

// Engine is the single owner of every crawl component.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	frontier    *frontier.Frontier
	workQueue   *workqueue.Queue
	spillQueue  *spill.Queue
	metadata    *metadata.Store
	rateLimiter *ratelimit.Limiter
	robots      *robots.Cache
	blacklist   *blacklist.Blacklist
	condGet     *condget.Cache
	fetcher     fetcher.Fetcher
	parser      *parser.Parser
	writer      *storage.Writer
	monitor     *monitor.Monitor
	fetchPool   *workerloop.Pool

	domainOverrides map[string]config.DomainOverride

	parseQueue chan workerloop.FetchResult
	recordsCh  chan storage.EnrichedRecord

	nextFetcherSlot atomic.Int64

	cancel context.CancelFunc
}

// New constructs every component from cfg but starts nothing; call Run
// to start the crawl.
func New(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	stateDir := cfg.Engine.StateDir
	if cfg.Engine.Mode == config.ModeFresh {
		// FRESH mode: no durable cross-restart state at all, per its
		// definition — every durable-layer constructor below treats an
		// empty dir as "memory only".
		stateDir = ""
	}

	httpFetcher, err := fetcher.NewHTTPFetcher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	userAgent := ""
	if len(cfg.Fetcher.UserAgents) > 0 {
		userAgent = cfg.Fetcher.UserAgents[0]
	}

	domainOverrides, err := config.LoadDomainConfigs(cfg.Engine.DomainConfigsPath)
	if err != nil {
		return nil, fmt.Errorf("load domain configs: %w", err)
	}
	fileHosts, err := config.LoadBlacklist("blacklist.txt")
	if err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}
	permanentHosts := append(append([]string{}, cfg.Blacklist.PermanentHosts...), fileHosts...)

	e := &Engine{
		cfg:    cfg,
		logger: logger,

		frontier:    frontier.New(cfg.Engine.MaxDepth, cfg.Engine.MaxQueueSize),
		workQueue:   workqueue.New(cfg.Engine.NumFetchers, cfg.Engine.MaxPerWorker),
		spillQueue:  spill.New(stateDir, cfg.Engine.Mode == config.ModeRegular, logger),
		metadata:    metadata.New(stateDir, 10_000, logger),
		rateLimiter: ratelimit.New(stateDir, logger),
		robots:      robots.New(stateDir, &http.Client{Timeout: 10 * time.Second}, userAgent, logger),
		blacklist:   blacklist.New(permanentHosts, cfg.Blacklist.Cooldown),
		condGet:     condget.New(stateDir, 10_000, logger),
		fetcher:     httpFetcher,
		parser:      parser.New(parser.DefaultDomainBoosts(), logger),
		monitor:     monitor.New(cfg.Engine.MonitorInterval, logger),

		domainOverrides: domainOverrides,

		parseQueue: make(chan workerloop.FetchResult, cfg.Engine.ParseQueueSize),
		recordsCh:  make(chan storage.EnrichedRecord, cfg.Engine.ParseQueueSize),
	}

	backends, err := buildBackends(cfg, logger)
	if err != nil {
		return nil, err
	}
	e.writer = storage.New(backends, logger)

	e.fetchPool = workerloop.New(workerloop.Deps{
		Frontier:                    e.frontier,
		WorkQueue:                   e.workQueue,
		Fetcher:                     e.fetcher,
		Robots:                      e.robots,
		RateLimiter:                 e.rateLimiter,
		Blacklist:                   e.blacklist,
		CondGet:                     e.condGet,
		Metadata:                    e.metadata,
		UserAgent:                   userAgent,
		RespectRobots:               cfg.Robots.Respect,
		ConsecutiveTimeoutThreshold: cfg.Fetcher.ConsecutiveTimeoutThreshold,
		ParseQueue:                  e.parseQueue,
		Logger:                      logger,
	}, cfg.Engine.NumFetchers)

	return e, nil
}

func buildBackends(cfg *config.Config, logger *slog.Logger) ([]storage.Backend, error) {
	fileBackend, err := storage.NewFileBackend(cfg.Storage.OutputPath, logger)
	if err != nil {
		return nil, fmt.Errorf("create file storage backend: %w", err)
	}
	backends := []storage.Backend{fileBackend}

	if cfg.Storage.Mongo.Enabled {
		mongoBackend, err := storage.NewMongoBackend(
			cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database, cfg.Storage.Mongo.Collection, logger)
		if err != nil {
			return nil, fmt.Errorf("create mongo storage backend: %w", err)
		}
		backends = append(backends, mongoBackend)
	}
	return backends, nil
}

// Run loads seeds, starts every background thread, and blocks until
// ctx is canceled or max_runtime_minutes elapses, then runs the
// coordinated shutdown sequence.
func (e *Engine) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	defer cancel()

	if m := e.cfg.Engine.MaxRuntimeMinutes; m > 0 {
		var rtCancel context.CancelFunc
		runCtx, rtCancel = context.WithTimeout(runCtx, time.Duration(m)*time.Minute)
		defer rtCancel()
	}

	if err := e.loadSeeds(); err != nil {
		e.logger.Warn("seed load failed", "error", err)
	}

	go e.monitor.Run(runCtx, e.depths)
	go e.blacklist.RunSweeper(runCtx, e.cfg.Blacklist.SweepInterval)
	go e.metadataFlushLoop(runCtx)
	go e.rescanLoop(runCtx)
	go e.spillDrainLoop(runCtx)

	fetchers := pool.New().WithContext(runCtx)
	fetchers.Go(e.fetchPool.Run)

	parsers := pool.New().WithContext(runCtx)
	for i := 0; i < e.cfg.Engine.NumParsers; i++ {
		parsers.Go(e.parserWorker)
	}

	recordWriter := pool.New().WithContext(runCtx)
	recordWriter.Go(e.recordBatcher)

	<-runCtx.Done()
	e.logger.Info("stop signal received, shutting down")

	return e.shutdown(fetchers, parsers, recordWriter)
}

// Stop signals Run to begin the shutdown sequence. Safe to call from
// a signal handler.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) depths() monitor.Depths {
	return monitor.Depths{
		Frontier:  e.frontier.Size(),
		WorkQueue: e.workQueue.TotalSize(),
		Spill:     e.spillQueue.Size(),
		Parse:     len(e.parseQueue),
	}
}

func (e *Engine) metadataFlushLoop(ctx context.Context) {
	ticker := time.NewTicker(metadataFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.metadata.Flush(); err != nil {
				e.logger.Error("metadata flush failed", "error", err)
			}
		}
	}
}

// rescanLoop is the Frontier's only other source of entries besides
// loadSeeds and discovered links: it turns a metadata record that has
// come due back into a Frontier entry. It fires once immediately — so
// a resumed REGULAR-mode crawl re-seeds the Frontier from durable
// metadata on startup, not only from seeds_path — and then on
// rescan_interval for the life of the crawl.
func (e *Engine) rescanLoop(ctx context.Context) {
	interval := e.cfg.Scheduling.RescanInterval
	if interval <= 0 {
		interval = time.Minute
	}
	batchSize := e.cfg.Scheduling.RescanBatchSize
	if batchSize <= 0 {
		batchSize = 1_000
	}

	e.rescanOnce(batchSize)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.rescanOnce(batchSize)
		}
	}
}

func (e *Engine) rescanOnce(batchSize int) {
	now := time.Now()
	due := e.metadata.DueRecords(now, batchSize)
	for _, rec := range due {
		e.frontier.Readmit(&frontier.UrlInfo{
			URL:          rec.URL,
			Priority:     rec.Priority(now),
			DiscoveredAt: rec.PreviousChangeTime,
			ScheduledFor: rec.ExpectedNextFetch,
		})
	}
}

// spillDrainLoop periodically promotes Spill Queue entries back into
// the Frontier once room frees up, so a durably-written overflow is not
// permanently lost to the crawl.
func (e *Engine) spillDrainLoop(ctx context.Context) {
	if !e.spillQueue.Enabled() {
		return
	}
	interval := e.cfg.Scheduling.SpillDrainInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	batchSize := e.cfg.Scheduling.SpillDrainBatchSize
	if batchSize <= 0 {
		batchSize = 1_000
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.drainSpillOnce(batchSize)
		}
	}
}

func (e *Engine) drainSpillOnce(batchSize int) {
	if e.cfg.Engine.MaxQueueSize > 0 && e.frontier.Size() >= e.cfg.Engine.MaxQueueSize {
		return
	}

	urls := e.spillQueue.Load(batchSize)
	if len(urls) == 0 {
		return
	}

	now := time.Now()
	infos := make([]*frontier.UrlInfo, len(urls))
	for i, u := range urls {
		infos[i] = &frontier.UrlInfo{URL: u, DiscoveredAt: now, ScheduledFor: now}
	}

	rejected := e.frontier.EnqueueBatch(infos)
	if len(rejected) == 0 {
		return
	}
	stillSpilled := make([]string, len(rejected))
	for i, info := range rejected {
		stillSpilled[i] = info.URL
	}
	e.spillQueue.Save(stillSpilled)
}

func (e *Engine) shutdown(fetchers, parsers, recordWriter *pool.ContextPool) error {
	seq := monitor.Sequence{
		// Every blocking wait in this engine (Frontier pull backoff,
		// rate limiter gap, Parse Queue receive) already selects on
		// ctx.Done, which Stop/the runtime cancellation already
		// triggered — there is no separate wait primitive left to wake.
		InterruptWaits: func() {},
		JoinFetchers:   joinPool(fetchers, "fetchers", e.logger),
		JoinParsers: func(budget time.Duration) bool {
			// No parser worker can still be sending to recordsCh once
			// this returns, so it's safe to close it right after —
			// the batcher then sends its last batch, which
			// JoinPersistence waits for after FlushStorage runs.
			completed := joinPool(parsers, "parsers", e.logger)(budget)
			close(e.recordsCh)
			return completed
		},
		JoinPersistence: joinPool(recordWriter, "record_batcher", e.logger),
		// This runs before JoinPersistence in the fixed sequence, so it
		// only catches batches already enqueued by the time parsers
		// stopped; the record batcher's own last batch (flushed once
		// recordsCh closes, during the JoinPersistence step) is caught
		// by the definitive Flush inside writer.Close in CloseStores.
		FlushStorage: func() {
			e.writer.MarkShutdown()
			e.writer.Flush()
		},
		CloseStores: func() error {
			e.rateLimiter.Close()
			if err := e.metadata.Flush(); err != nil {
				e.logger.Error("final metadata flush failed", "error", err)
			}
			if err := e.condGet.Flush(); err != nil {
				e.logger.Error("final conditional-GET cache flush failed", "error", err)
			}
			return e.writer.Close()
		},
	}
	return e.monitor.Shutdown(seq)
}

func joinPool(p *pool.ContextPool, name string, logger *slog.Logger) monitor.Join {
	return func(budget time.Duration) bool {
		done := make(chan error, 1)
		go func() { done <- p.Wait() }()
		select {
		case err := <-done:
			if err != nil {
				logger.Error("worker group exited with error", "group", name, "error", err)
			}
			return true
		case <-time.After(budget):
			return false
		}
	}
}

