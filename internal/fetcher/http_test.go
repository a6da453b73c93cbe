package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ishaannene/crawlcore/internal/config"
	"github.com/ishaannene/crawlcore/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestFetcher(t *testing.T) *HTTPFetcher {
	t.Helper()
	cfg := config.DefaultConfig()
	f, err := NewHTTPFetcher(cfg, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return f
}

func TestFetchSuccessReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	defer f.Close()

	resp, err := f.Fetch(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != "hello" {
		t.Fatalf("got %q, want %q", resp.Body, "hello")
	}
}

func TestFetchSendsConditionalHeaders(t *testing.T) {
	var gotETag, gotLastMod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotETag = r.Header.Get("If-None-Match")
		gotLastMod = r.Header.Get("If-Modified-Since")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	defer f.Close()

	_, err := f.Fetch(context.Background(), srv.URL, &ConditionalHeaders{ETag: `"abc"`, LastModified: "Mon, 01 Jan 2024 00:00:00 GMT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotETag != `"abc"` {
		t.Fatalf("expected ETag header forwarded, got %q", gotETag)
	}
	if gotLastMod == "" {
		t.Fatal("expected Last-Modified header forwarded")
	}
}

func TestFetch429ReturnsRetryableError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	defer f.Close()

	_, err := f.Fetch(context.Background(), srv.URL, nil)
	if err == nil {
		t.Fatal("expected an error for 429")
	}
	fe, ok := err.(*types.FetchError)
	if !ok {
		t.Fatalf("expected *types.FetchError, got %T", err)
	}
	if !fe.Retryable {
		t.Fatal("expected a 429 to be retryable")
	}
	if fe.RetryAfter != 2*time.Second {
		t.Fatalf("expected RetryAfter 2s, got %v", fe.RetryAfter)
	}
}

func TestDecompressReaderGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte("payload"))
	gz.Close()

	resp := &http.Response{Header: http.Header{"Content-Encoding": []string{"gzip"}}}
	reader, err := decompressReader(resp, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := make([]byte, 7)
	n, _ := reader.Read(out)
	if string(out[:n]) != "payload" {
		t.Fatalf("got %q, want %q", out[:n], "payload")
	}
}

func TestParseRetryAfterSeconds(t *testing.T) {
	d := parseRetryAfter("5")
	if d != 5*time.Second {
		t.Fatalf("got %v, want 5s", d)
	}
}

func TestParseRetryAfterCapsAtTwoMinutes(t *testing.T) {
	d := parseRetryAfter("99999")
	if d != 120*time.Second {
		t.Fatalf("got %v, want capped 120s", d)
	}
}

func TestParseRetryAfterDefaultsOnEmpty(t *testing.T) {
	d := parseRetryAfter("")
	if d != 5*time.Second {
		t.Fatalf("got %v, want default 5s", d)
	}
}

func TestIsRetryableErrorContextCanceledIsNot(t *testing.T) {
	if isRetryableError(context.Canceled) {
		t.Fatal("expected context.Canceled to not be retryable")
	}
}
