package robots

import (
	"log/slog"
	"net/http"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParseRobotsTxtBasicDisallow(t *testing.T) {
	body := "User-agent: *\nDisallow: /private\nAllow: /private/public\n"
	rules, _ := parseRobotsTxt(body)
	if len(rules["*"]) != 2 {
		t.Fatalf("expected 2 rules for *, got %d", len(rules["*"]))
	}
}

func TestParseRobotsTxtSeparatesGroups(t *testing.T) {
	body := "User-agent: bot-a\nDisallow: /a\nUser-agent: bot-b\nDisallow: /b\n"
	rules, _ := parseRobotsTxt(body)
	if len(rules["bot-a"]) != 1 || rules["bot-a"][0].prefix != "/a" {
		t.Fatalf("expected bot-a to only see /a, got %+v", rules["bot-a"])
	}
	if len(rules["bot-b"]) != 1 || rules["bot-b"][0].prefix != "/b" {
		t.Fatalf("expected bot-b to only see /b, got %+v", rules["bot-b"])
	}
}

func TestParseRobotsTxtCrawlDelay(t *testing.T) {
	body := "User-agent: *\nCrawl-delay: 2.5\n"
	_, delay := parseRobotsTxt(body)
	if delay != 2.5 {
		t.Fatalf("expected crawl-delay 2.5, got %v", delay)
	}
}

func TestUpdateCacheThenAllowedLongestPrefixWins(t *testing.T) {
	c := New("", http.DefaultClient, "testbot", testLogger())
	c.UpdateCache("a.example", "User-agent: *\nDisallow: /private\nAllow: /private/public\n", 200)

	if got := c.Allowed("a.example", "/private/public/page", "testbot"); got != Allowed {
		t.Fatalf("expected Allowed for longer Allow prefix, got %v", got)
	}
	if got := c.Allowed("a.example", "/private/secret", "testbot"); got != Disallowed {
		t.Fatalf("expected Disallowed, got %v", got)
	}
}

func TestAllowedDefersOnMiss(t *testing.T) {
	c := New("", http.DefaultClient, "testbot", testLogger())
	if got := c.Allowed("unknown.example", "/", "testbot"); got != DeferredFetchStarted {
		t.Fatalf("expected DeferredFetchStarted on first query, got %v", got)
	}
}

func TestAllowedTreats403And404AsAllowAll(t *testing.T) {
	c := New("", http.DefaultClient, "testbot", testLogger())
	c.UpdateCache("a.example", "", 404)
	if got := c.Allowed("a.example", "/anything", "testbot"); got != Allowed {
		t.Fatalf("expected Allowed for a 404 robots.txt, got %v", got)
	}
}

func TestDurableRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, http.DefaultClient, "testbot", testLogger())
	c.UpdateCache("a.example", "User-agent: *\nDisallow: /x\n", 200)

	c2 := New(dir, http.DefaultClient, "testbot", testLogger())
	if got := c2.Allowed("a.example", "/x/y", "testbot"); got != Disallowed {
		t.Fatalf("expected persisted policy to deny /x/y, got %v", got)
	}
}
