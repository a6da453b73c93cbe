package frontier

import "testing"

func TestCanonicalizeStripsFragmentAndDefaultPort(t *testing.T) {
	got, err := Canonicalize("HTTP://Example.com:80/Path/#section")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "http://example.com/Path"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCanonicalizeSortsQueryParams(t *testing.T) {
	a, err := Canonicalize("https://example.com/p?b=2&a=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Canonicalize("https://example.com/p?a=1&b=2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatalf("expected query-order-independent canonical form, got %q vs %q", a, b)
	}
}

func TestHostStripsWWW(t *testing.T) {
	h, err := Host("https://www.example.com/path")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h != "example.com" {
		t.Fatalf("got %q, want example.com", h)
	}
}
