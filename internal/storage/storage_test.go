package storage

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeBackend struct {
	mu      sync.Mutex
	batches [][]EnrichedRecord
	failing bool
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Write(batch []EnrichedRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("induced failure")
	}
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func TestWriterSaveBatchThenFlushDelivers(t *testing.T) {
	backend := &fakeBackend{}
	w := New([]Backend{backend}, slog.Default())
	defer w.Close()

	w.SaveBatch([]EnrichedRecord{{URL: "https://a.example/"}})
	w.SaveBatch([]EnrichedRecord{{URL: "https://b.example/"}})
	w.Flush()

	if got := backend.count(); got != 2 {
		t.Fatalf("backend received %d batches, want 2", got)
	}
}

func TestWriterFlushIsIdempotentAndReusable(t *testing.T) {
	backend := &fakeBackend{}
	w := New([]Backend{backend}, slog.Default())
	defer w.Close()

	w.SaveBatch([]EnrichedRecord{{URL: "https://a.example/"}})
	w.Flush()
	w.SaveBatch([]EnrichedRecord{{URL: "https://b.example/"}})
	w.Flush()

	if got := backend.count(); got != 2 {
		t.Fatalf("backend received %d batches, want 2", got)
	}
}

func TestWriterCloseIsIdempotent(t *testing.T) {
	backend := &fakeBackend{}
	w := New([]Backend{backend}, slog.Default())
	w.SaveBatch([]EnrichedRecord{{URL: "https://a.example/"}})

	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}

func TestWriterContinuesAfterBackendFailure(t *testing.T) {
	backend := &fakeBackend{failing: true}
	w := New([]Backend{backend}, slog.Default())
	defer w.Close()

	w.SaveBatch([]EnrichedRecord{{URL: "https://a.example/"}})
	w.Flush() // must not hang or panic despite backend errors

	w.SaveBatch([]EnrichedRecord{{URL: "https://b.example/"}})
	w.Flush()
}

func TestSaveBatchSanitizesInvalidUTF8(t *testing.T) {
	backend := &fakeBackend{}
	w := New([]Backend{backend}, slog.Default())
	defer w.Close()

	bad := string([]byte{0xff, 0xfe, 'o', 'k'})
	w.SaveBatch([]EnrichedRecord{{URL: "https://a.example/", Content: bad}})
	w.Flush()

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(backend.batches))
	}
	got := backend.batches[0][0].Content
	if got != "??ok" {
		t.Fatalf("Content = %q, want sanitized %q", got, "??ok")
	}
}

func TestFileBackendWritesJSONArrayFile(t *testing.T) {
	dir := t.TempDir()
	fb, err := NewFileBackend(dir, slog.Default())
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}

	batch := []EnrichedRecord{
		{URL: "https://a.example/", Timestamp: time.Now().UTC(), ContentHash: "abc"},
	}
	if err := fb.Write(batch); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 file, got %d", len(entries))
	}

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var decoded []EnrichedRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode batch file: %v", err)
	}
	if len(decoded) != 1 || decoded[0].URL != "https://a.example/" {
		t.Fatalf("unexpected decoded batch: %+v", decoded)
	}
}

func TestFileBackendUsesShutdownPrefixAfterMarkShutdown(t *testing.T) {
	dir := t.TempDir()
	fb, err := NewFileBackend(dir, slog.Default())
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	fb.MarkShutdown()

	if err := fb.Write([]EnrichedRecord{{URL: "https://a.example/"}}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected 1 file, got %d", len(entries))
	}
	name := entries[0].Name()
	if len(name) < len("shutdown_batch_") || name[:len("shutdown_batch_")] != "shutdown_batch_" {
		t.Fatalf("filename %q does not use shutdown_batch_ prefix", name)
	}
}
