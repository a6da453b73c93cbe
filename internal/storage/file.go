package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// FileBackend writes each batch as a JSON array file under a base
// directory, named batch_<timestamp>_<id>.json. A final flush during
// shutdown instead uses the shutdown_batch_ prefix so operators can
// tell a clean-shutdown batch apart from mid-run output.
type FileBackend struct {
	baseDir  string
	seq      atomic.Int64
	shutdown atomic.Bool
	logger   *slog.Logger
}

// NewFileBackend creates a FileBackend rooted at baseDir, creating the
// directory if it does not exist.
func NewFileBackend(baseDir string, logger *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage output dir: %w", err)
	}
	return &FileBackend{
		baseDir: baseDir,
		logger:  logger.With("component", "file_storage"),
	}, nil
}

func (f *FileBackend) Name() string { return "file" }

// MarkShutdown switches subsequent Write calls to the shutdown_batch_
// filename prefix. Call once, just before the coordinator's final
// flush.
func (f *FileBackend) MarkShutdown() {
	f.shutdown.Store(true)
}

func (f *FileBackend) Write(batch []EnrichedRecord) error {
	prefix := "batch"
	if f.shutdown.Load() {
		prefix = "shutdown_batch"
	}
	id := f.seq.Add(1)
	name := fmt.Sprintf("%s_%s_%d.json", prefix, time.Now().UTC().Format("20060102T150405.000000Z"), id)
	path := filepath.Join(f.baseDir, name)

	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write batch file: %w", err)
	}
	f.logger.Debug("batch written", "path", path, "records", len(batch))
	return nil
}

func (f *FileBackend) Close() error { return nil }
