// Package robots implements the Robots Cache: parse/cache robots.txt
// per host with a 30-day TTL, single-flight dedup for concurrent
// misses, and a disk-backed fallback layer. The line parser and
// longest-prefix-match rule follow the usual robots.txt grammar; a
// fetched-at timestamp tracks staleness against the TTL, and
// golang.org/x/sync/singleflight collapses concurrent misses for the
// same host into one fetch instead of racing duplicate requests.
package robots

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ishaannene/crawlcore/internal/duragent"
)

// Outcome is the result of an Allowed check.
type Outcome int

const (
	Allowed Outcome = iota
	Disallowed
	DeferredFetchStarted
)

const defaultTTL = 30 * 24 * time.Hour

type rule struct {
	prefix string
	allow  bool
}

// policy is a host's parsed robots.txt.
type policy struct {
	Host       string    `json:"host"`
	Body       string    `json:"body"`
	FetchedAt  time.Time `json:"fetched_at"`
	HTTPStatus int       `json:"http_status"`
	CrawlDelay float64   `json:"crawl_delay_seconds"`

	rules map[string][]rule // lowercased user-agent -> ordered rules
}

// Cache is the Robots Cache: in-memory policies keyed by host, with an
// optional durable fallback directory.
type Cache struct {
	mu       sync.RWMutex
	policies map[string]*policy
	pending  map[string]bool // placeholder set: fetch in flight

	group singleflight.Group
	dir   string
	ttl   time.Duration

	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
}

// New creates a Robots Cache. dir == "" disables durable fallback.
func New(dir string, httpClient *http.Client, userAgent string, logger *slog.Logger) *Cache {
	return &Cache{
		policies:   make(map[string]*policy),
		pending:    make(map[string]bool),
		dir:        dir,
		ttl:        defaultTTL,
		httpClient: httpClient,
		userAgent:  userAgent,
		logger:     logger.With("component", "robots_cache"),
	}
}

func (c *Cache) shardPath(host string) string {
	return duragent.ShardPath(c.dir, "robots_"+sanitizeHost(host), 0)
}

func sanitizeHost(host string) string {
	return strings.NewReplacer(":", "_", "/", "_").Replace(host)
}

// Allowed checks whether path is allowed for host under userAgent. A
// fresh, parseable cache entry answers immediately; a stale or
// error-status entry returns DeferredFetchStarted, and the caller must
// perform the fetch and call UpdateCache.
func (c *Cache) Allowed(host, path, userAgent string) Outcome {
	c.mu.RLock()
	p, ok := c.policies[host]
	c.mu.RUnlock()

	if !ok {
		if loaded := c.loadFromDisk(host); loaded != nil {
			c.mu.Lock()
			c.policies[host] = loaded
			c.mu.Unlock()
			p = loaded
			ok = true
		}
	}

	if ok && c.isFresh(p) {
		return c.evaluate(p, path, userAgent)
	}

	return c.startDeferredFetch(host)
}

func (c *Cache) isFresh(p *policy) bool {
	if p.HTTPStatus == 403 || p.HTTPStatus == 404 || p.Body == "" {
		// "allow all" per-request, but still due for refresh on expiry.
		return time.Since(p.FetchedAt) < c.ttl
	}
	if p.HTTPStatus != 200 {
		return false
	}
	return time.Since(p.FetchedAt) < c.ttl
}

// startDeferredFetch marks host as having a fetch in flight, so
// concurrent callers also see DeferredFetchStarted instead of racing
// to fetch the same robots.txt.
func (c *Cache) startDeferredFetch(host string) Outcome {
	c.mu.Lock()
	if c.pending[host] {
		c.mu.Unlock()
		return DeferredFetchStarted
	}
	c.pending[host] = true
	c.mu.Unlock()
	return DeferredFetchStarted
}

// FetchAndUpdate performs the robots.txt HTTP fetch for host (via
// singleflight so concurrent deferred-fetch callers share one request)
// and updates the cache. Callers that received DeferredFetchStarted
// from Allowed should call this, then re-check Allowed.
func (c *Cache) FetchAndUpdate(ctx context.Context, host string) {
	_, _, _ = c.group.Do(host, func() (any, error) {
		body, status := c.fetch(ctx, host)
		c.UpdateCache(host, body, status)
		return nil, nil
	})
}

func (c *Cache) fetch(ctx context.Context, host string) (string, int) {
	url := "https://" + host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("robots fetch failed", "host", host, "error", err)
		return "", 0
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return "", resp.StatusCode
	}
	return string(body), resp.StatusCode
}

// UpdateCache parses body and installs it as host's current policy,
// clearing the pending placeholder.
func (c *Cache) UpdateCache(host, body string, httpStatus int) {
	p := &policy{
		Host:       host,
		Body:       body,
		FetchedAt:  time.Now(),
		HTTPStatus: httpStatus,
		rules:      make(map[string][]rule),
	}
	if httpStatus == 200 && body != "" {
		p.rules, p.CrawlDelay = parseRobotsTxt(body)
	}

	c.mu.Lock()
	c.policies[host] = p
	delete(c.pending, host)
	c.mu.Unlock()

	if c.dir != "" {
		if err := duragent.SaveJSON(c.shardPath(host), p); err != nil {
			c.logger.Error("robots cache persist failed", "host", host, "error", err)
		}
	}
}

func (c *Cache) loadFromDisk(host string) *policy {
	if c.dir == "" {
		return nil
	}
	var p policy
	ok, err := duragent.LoadJSON(c.shardPath(host), &p)
	if err != nil || !ok {
		return nil
	}
	if p.HTTPStatus == 200 && p.Body != "" {
		p.rules, p.CrawlDelay = parseRobotsTxt(p.Body)
	} else {
		p.rules = make(map[string][]rule)
	}
	return &p
}

// InvalidateForHost forces host's next Allowed check to defer a fetch.
func (c *Cache) InvalidateForHost(host string) {
	c.mu.Lock()
	delete(c.policies, host)
	c.mu.Unlock()
}

func (c *Cache) evaluate(p *policy, path, userAgent string) Outcome {
	agents := []string{strings.ToLower(userAgent), "*"}
	var bestAllow, bestDisallow int = -1, -1

	for _, agent := range agents {
		rules, ok := p.rules[agent]
		if !ok {
			continue
		}
		for _, r := range rules {
			if !strings.HasPrefix(path, r.prefix) {
				continue
			}
			if r.allow {
				if len(r.prefix) > bestAllow {
					bestAllow = len(r.prefix)
				}
			} else {
				if len(r.prefix) > bestDisallow {
					bestDisallow = len(r.prefix)
				}
			}
		}
		if bestAllow >= 0 || bestDisallow >= 0 {
			break // a specific-UA block wins over "*" once matched
		}
	}

	if bestDisallow < 0 {
		return Allowed
	}
	if bestAllow > bestDisallow {
		return Allowed
	}
	return Disallowed
}

// parseRobotsTxt parses a robots.txt body into per-user-agent rule
// lists plus the crawl-delay (seconds, 0 if absent), grounded on the
// teacher's line-based parser.
func parseRobotsTxt(body string) (map[string][]rule, float64) {
	rules := make(map[string][]rule)
	var currentAgents []string
	var groupHasRules bool
	var crawlDelay float64

	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}

		field, value, ok := splitDirective(line)
		if !ok {
			continue
		}

		switch strings.ToLower(field) {
		case "user-agent":
			agent := strings.ToLower(value)
			if groupHasRules {
				// a rule line already closed the previous group; start fresh.
				currentAgents = nil
				groupHasRules = false
			}
			currentAgents = append(currentAgents, agent)
			if _, exists := rules[agent]; !exists {
				rules[agent] = nil
			}
		case "allow":
			groupHasRules = true
			for _, agent := range currentAgents {
				rules[agent] = append(rules[agent], rule{prefix: value, allow: true})
			}
		case "disallow":
			groupHasRules = true
			if value == "" {
				continue // empty Disallow means allow everything
			}
			for _, agent := range currentAgents {
				rules[agent] = append(rules[agent], rule{prefix: value, allow: false})
			}
		case "crawl-delay":
			if d, err := strconv.ParseFloat(value, 64); err == nil {
				crawlDelay = d
			}
		}
	}

	return rules, crawlDelay
}

func splitDirective(line string) (field, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}
