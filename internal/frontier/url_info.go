// Package frontier implements the sharded URL Frontier. It fans a
// single container/heap-backed priority queue out into 16
// independently-locked partitions, each with its own seen-set, using a
// due/priority/depth comparator rather than a priority-only one.
package frontier

import "time"

// UrlInfo is a queued URL joined with its scheduled-fetch time for
// ordering purposes — the Frontier is the only place this pairing
// exists.
type UrlInfo struct {
	URL           string
	Priority      float64
	Depth         int
	ReferrerHost  string
	DiscoveredAt  time.Time
	ScheduledFor  time.Time // expected_next_fetch, from the Metadata Store
}
