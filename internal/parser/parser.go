// Package parser implements the Parser Pool's per-body extraction
// pipeline: a content hash tolerant of boilerplate churn, iterative
// outbound-link discovery and normalization, and a priority/depth
// assignment for each discovered link. It does not touch the Frontier,
// the Metadata Store, or the Storage Writer directly — callers wire
// Parse's output into those.
package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DiscoveredLink is one outbound link found on a parsed page, already
// normalized and scored.
type DiscoveredLink struct {
	URL      string
	Priority float64
	Depth    int
}

// Result is everything the Parser Pool produces from one page body.
type Result struct {
	ContentHash string
	Title       string
	Links       []DiscoveredLink
}

// staticAssetExts are dropped during link normalization: they are
// never worth a fetch slot in a web-page crawl.
var staticAssetExts = map[string]bool{
	".css": true, ".js": true, ".json": true, ".xml": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".svg": true, ".webp": true, ".ico": true,
	".mp3": true, ".wav": true, ".ogg": true,
	".mp4": true, ".avi": true, ".mov": true, ".webm": true,
	".zip": true, ".gz": true, ".tar": true, ".rar": true, ".7z": true,
	".pdf": true, ".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
}

const maxLinkLength = 200

// DefaultDomainBoosts is a fixed priority-boost table for hosts
// generally worth crawling sooner: authoritative (government),
// educational, and news domains. Supplied at startup and freely
// replaceable by an operator's own table.
func DefaultDomainBoosts() map[string]float64 {
	return map[string]float64{
		".gov":          1.0,
		".edu":          0.8,
		"wikipedia.org": 0.6,
		"bbc.co.uk":     0.5,
		"reuters.com":   0.5,
		"apnews.com":    0.5,
		"nytimes.com":   0.4,
		".org":          0.2,
	}
}

// Parser extracts content hashes and discovered links from fetched
// page bodies.
type Parser struct {
	domainBoosts map[string]float64
	logger       *slog.Logger
}

// New creates a Parser. domainBoosts maps a host suffix to an additive
// priority boost; pass DefaultDomainBoosts() or nil for no boosting.
func New(domainBoosts map[string]float64, logger *slog.Logger) *Parser {
	return &Parser{
		domainBoosts: domainBoosts,
		logger:       logger.With("component", "parser"),
	}
}

// Parse runs the full per-task extraction pipeline over one fetched
// body: content hash, link extraction/normalization, and per-link
// priority/depth assignment. depth is the depth of pageURL itself;
// every discovered link is assigned depth+1.
func (p *Parser) Parse(pageURL string, body []byte, depth int) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		p.logger.Warn("malformed HTML, dropping links", "url", pageURL, "error", err)
		return &Result{ContentHash: p.hashBody(body)}, nil
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var links []DiscoveredLink
	// Each is an iterative callback over the matched node set — no
	// recursive descent, so adversarial nesting can't blow the stack.
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		norm, ok := normalizeLink(base, href)
		if !ok || seen[norm] {
			return
		}
		seen[norm] = true
		links = append(links, DiscoveredLink{
			URL:      norm,
			Priority: p.priorityFor(norm, depth+1),
			Depth:    depth + 1,
		})
	})

	return &Result{
		ContentHash: p.hashContent(doc, title, body),
		Title:       title,
		Links:       links,
	}, nil
}

// hashContent hashes title + first paragraph when either is present,
// falling back to the first 2KB of the raw body. Hashing the headline
// content rather than the full byte stream keeps the hash stable
// across ad-slot and boilerplate churn that doesn't represent a real
// content change.
func (p *Parser) hashContent(doc *goquery.Document, title string, body []byte) string {
	firstPara := strings.TrimSpace(doc.Find("p").First().Text())
	if title == "" && firstPara == "" {
		return p.hashBody(body)
	}
	sum := sha256.Sum256([]byte(title + "\x00" + firstPara))
	return hex.EncodeToString(sum[:])
}

func (p *Parser) hashBody(body []byte) string {
	n := len(body)
	if n > 2048 {
		n = 2048
	}
	sum := sha256.Sum256(body[:n])
	return hex.EncodeToString(sum[:])
}

// normalizeLink resolves href against base and applies the full
// normalization/rejection rule set: relative resolution, fragment
// stripping, javascript:/mailto: rejection, duplicate-slash collapse,
// trailing-slash removal, static-asset deny-list, and a 200-char cap.
func normalizeLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}

	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	switch strings.ToLower(u.Scheme) {
	case "javascript", "mailto", "tel", "data":
		return "", false
	}

	resolved := base.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	resolved.Fragment = ""

	for strings.Contains(resolved.Path, "//") {
		resolved.Path = strings.ReplaceAll(resolved.Path, "//", "/")
	}
	if len(resolved.Path) > 1 && strings.HasSuffix(resolved.Path, "/") {
		resolved.Path = strings.TrimSuffix(resolved.Path, "/")
	}

	ext := strings.ToLower(path.Ext(resolved.Path))
	if staticAssetExts[ext] {
		return "", false
	}

	out := resolved.String()
	if len(out) > maxLinkLength {
		return "", false
	}
	return out, true
}

// priorityFor scores a discovered link: a domain-boost table lifts
// authoritative/educational/news hosts, and priority decays slightly
// with depth so the crawl stays breadth-weighted toward shallow pages.
func (p *Parser) priorityFor(rawURL string, depth int) float64 {
	priority := 1.0
	if host, err := url.Parse(rawURL); err == nil {
		h := strings.ToLower(host.Hostname())
		for suffix, boost := range p.domainBoosts {
			if strings.HasSuffix(h, suffix) {
				priority += boost
				break
			}
		}
	}
	priority -= float64(depth) * 0.05
	if priority < 0.05 {
		priority = 0.05
	}
	return priority
}
