// Package duragent provides the atomic-temp-file-then-rename durable
// write pattern shared by the metadata, robots, rate-limiter, and
// conditional-GET stores.
package duragent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SaveJSON writes v to path as indented JSON via a temp-file-then-rename
// so a crash mid-write never corrupts the previous durable state.
func SaveJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("duragent: mkdir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("duragent: marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("duragent: write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("duragent: rename: %w", err)
	}
	return nil
}

// LoadJSON reads and unmarshals path into v. A missing file is not an
// error — v is left untouched and ok is false.
func LoadJSON(path string, v any) (ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("duragent: read: %w", err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("duragent: unmarshal: %w", err)
	}
	return true, nil
}

// ShardPath builds the conventional per-shard file path used by the
// sharded stores: <dir>/<prefix>_<n>.json.
func ShardPath(dir, prefix string, shard int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%03d.json", prefix, shard))
}
