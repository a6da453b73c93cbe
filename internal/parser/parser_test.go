package parser

import (
	"log/slog"
	"strings"
	"testing"
)

func newTestParser() *Parser {
	return New(DefaultDomainBoosts(), slog.Default())
}

func TestParseExtractsTitleAndLinks(t *testing.T) {
	body := []byte(`<html><head><title>Example Page</title></head><body>
		<p>First paragraph text.</p>
		<a href="/about">About</a>
		<a href="https://other.example.com/page">Other</a>
	</body></html>`)

	result, err := newTestParser().Parse("https://example.com/index.html", body, 0)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if result.Title != "Example Page" {
		t.Fatalf("Title = %q, want %q", result.Title, "Example Page")
	}
	if len(result.Links) != 2 {
		t.Fatalf("got %d links, want 2: %+v", len(result.Links), result.Links)
	}
	if result.Links[0].URL != "https://example.com/about" {
		t.Fatalf("Links[0].URL = %q", result.Links[0].URL)
	}
	if result.Links[0].Depth != 1 {
		t.Fatalf("Links[0].Depth = %d, want 1", result.Links[0].Depth)
	}
}

func TestParseContentHashStableAcrossBoilerplateChange(t *testing.T) {
	p := newTestParser()
	a := []byte(`<title>Headline</title><p>Body text.</p><div class="ad">ad-1</div>`)
	b := []byte(`<title>Headline</title><p>Body text.</p><div class="ad">ad-2-different</div>`)

	ra, err := p.Parse("https://example.com/", a, 0)
	if err != nil {
		t.Fatal(err)
	}
	rb, err := p.Parse("https://example.com/", b, 0)
	if err != nil {
		t.Fatal(err)
	}
	if ra.ContentHash != rb.ContentHash {
		t.Fatalf("content hash changed despite identical title/paragraph: %s vs %s", ra.ContentHash, rb.ContentHash)
	}
}

func TestParseContentHashChangesOnRealChange(t *testing.T) {
	p := newTestParser()
	a := []byte(`<title>Headline</title><p>Original body text.</p>`)
	b := []byte(`<title>Headline</title><p>Completely different body text.</p>`)

	ra, _ := p.Parse("https://example.com/", a, 0)
	rb, _ := p.Parse("https://example.com/", b, 0)
	if ra.ContentHash == rb.ContentHash {
		t.Fatal("content hash did not change despite different title/paragraph content")
	}
}

func TestParseFallsBackToBodyPrefixWhenNoTitleOrParagraph(t *testing.T) {
	p := newTestParser()
	body := []byte(`<div>just a div with no title or paragraph tags</div>`)
	result, err := p.Parse("https://example.com/", body, 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.ContentHash == "" {
		t.Fatal("expected a non-empty fallback hash")
	}
}

func TestParseDropsJavascriptAndMailtoLinks(t *testing.T) {
	body := []byte(`<a href="javascript:void(0)">x</a><a href="mailto:a@b.com">y</a><a href="/ok">z</a>`)
	result, err := newTestParser().Parse("https://example.com/", body, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Links) != 1 || result.Links[0].URL != "https://example.com/ok" {
		t.Fatalf("unexpected links: %+v", result.Links)
	}
}

func TestParseDropsStaticAssetExtensions(t *testing.T) {
	body := []byte(`<a href="/style.css">c</a><a href="/app.js">j</a><a href="/image.png">i</a><a href="/page.html">p</a>`)
	result, err := newTestParser().Parse("https://example.com/", body, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Links) != 1 || result.Links[0].URL != "https://example.com/page.html" {
		t.Fatalf("unexpected links: %+v", result.Links)
	}
}

func TestParseStripsFragmentAndCollapsesSlashes(t *testing.T) {
	body := []byte(`<a href="//example.com/a//b/#section">x</a>`)
	result, err := newTestParser().Parse("https://example.com/", body, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Links) != 1 {
		t.Fatalf("expected 1 link, got %+v", result.Links)
	}
	if strings.Contains(result.Links[0].URL, "#") {
		t.Fatalf("fragment not stripped: %s", result.Links[0].URL)
	}
	if strings.Contains(result.Links[0].URL, "//b") {
		t.Fatalf("duplicate slashes not collapsed: %s", result.Links[0].URL)
	}
}

func TestParseRejectsOverlongLinks(t *testing.T) {
	long := "/p/" + strings.Repeat("a", 250)
	body := []byte(`<a href="` + long + `">x</a>`)
	result, err := newTestParser().Parse("https://example.com/", body, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Links) != 0 {
		t.Fatalf("expected overlong link to be rejected, got %+v", result.Links)
	}
}

func TestParseDedupesRepeatedLinksOnSamePage(t *testing.T) {
	body := []byte(`<a href="/x">1</a><a href="/x">2</a><a href="/x/">3</a>`)
	result, err := newTestParser().Parse("https://example.com/", body, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Links) != 1 {
		t.Fatalf("expected dedup to collapse to 1 link, got %+v", result.Links)
	}
}

func TestPriorityForBoostsAuthoritativeDomains(t *testing.T) {
	p := newTestParser()
	gov := p.priorityFor("https://data.gov/report", 1)
	plain := p.priorityFor("https://random-blog.net/report", 1)
	if gov <= plain {
		t.Fatalf(".gov priority %v should exceed plain-domain priority %v", gov, plain)
	}
}

func TestPriorityForDecaysWithDepth(t *testing.T) {
	p := newTestParser()
	shallow := p.priorityFor("https://example.com/a", 1)
	deep := p.priorityFor("https://example.com/a", 10)
	if deep >= shallow {
		t.Fatalf("deeper link priority %v should be lower than shallow %v", deep, shallow)
	}
}

func TestParseMalformedHTMLDropsLinksButReturnsHash(t *testing.T) {
	// goquery tolerates most malformed HTML rather than erroring, but the
	// fallback path (no title/paragraph found) must still produce a
	// usable result instead of failing the whole task.
	body := []byte(`<<<not really html at all>>>`)
	result, err := newTestParser().Parse("https://example.com/", body, 0)
	if err != nil {
		t.Fatalf("Parse should not hard-fail on malformed input: %v", err)
	}
	if result.ContentHash == "" {
		t.Fatal("expected a fallback content hash")
	}
}
