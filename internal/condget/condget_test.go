package condget

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestGetMissReturnsFalse(t *testing.T) {
	c := New("", 64, testLogger())
	if _, ok := c.Get("https://a.example/"); ok {
		t.Fatal("expected miss on an empty cache")
	}
}

func TestPutThenGet(t *testing.T) {
	c := New("", 64, testLogger())
	now := time.Now()
	c.Put("https://a.example/", "etag-1", "Mon, 01 Jan 2024 00:00:00 GMT", now)

	e, ok := c.Get("https://a.example/")
	if !ok {
		t.Fatal("expected hit after put")
	}
	if e.ETag != "etag-1" {
		t.Fatalf("expected etag-1, got %q", e.ETag)
	}
}

func TestFlushAndReloadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	c := New(dir, 64, testLogger())
	c.Put("https://a.example/", "etag-1", "", now)
	if err := c.Flush(); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}

	c2 := New(dir, 64, testLogger())
	e, ok := c2.Get("https://a.example/")
	if !ok {
		t.Fatal("expected entry to survive flush+reload")
	}
	if e.ETag != "etag-1" {
		t.Fatalf("expected etag-1, got %q", e.ETag)
	}
}
