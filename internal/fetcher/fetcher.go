// Package fetcher implements the HTTP Fetcher Pool's transport layer:
// a pure HTTP client that performs GET/conditional-GET and returns a
// Response or a typed error. Politeness decisions (robots, rate
// limiting, blacklist, conditional-GET header lookup) live one layer
// up in internal/workerloop — Fetch here stays a pure HTTP transport.
package fetcher

import (
	"context"

	"github.com/ishaannene/crawlcore/internal/types"
)

// ConditionalHeaders carries the If-None-Match/If-Modified-Since
// values the caller wants attached to a request, looked up from the
// Conditional-GET Cache before Fetch is called.
type ConditionalHeaders struct {
	ETag         string
	LastModified string
}

// Fetcher is the interface for all fetch implementations.
type Fetcher interface {
	// Fetch retrieves url, attaching cond's headers if non-nil.
	Fetch(ctx context.Context, url string, cond *ConditionalHeaders) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error
}
