package duragent

import (
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "data.json")

	in := sample{Name: "a", Count: 3}
	if err := SaveJSON(path, in); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	var out sample
	ok, err := LoadJSON(path, &out)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true for an existing file")
	}
	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	var out sample
	ok, err := LoadJSON(filepath.Join(dir, "missing.json"), &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for a missing file")
	}
}

func TestSaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")

	if err := SaveJSON(path, sample{Name: "first", Count: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := SaveJSON(path, sample{Name: "second", Count: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out sample
	ok, err := LoadJSON(path, &out)
	if err != nil || !ok {
		t.Fatalf("unexpected load failure: ok=%v err=%v", ok, err)
	}
	if out.Name != "second" {
		t.Fatalf("expected latest write to win, got %q", out.Name)
	}
}

func TestShardPathFormat(t *testing.T) {
	got := ShardPath("/tmp/state", "metadata", 7)
	want := "/tmp/state/metadata_007.json"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
