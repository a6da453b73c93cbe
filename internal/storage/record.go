package storage

import (
	"time"
	"unicode/utf8"
)

// EnrichedRecord is one page's fully assembled crawl record, ready for
// the Storage Writer. Field names and JSON tags follow the batch file
// schema byte-for-byte so downstream consumers never need a mapping
// layer.
type EnrichedRecord struct {
	URL                string    `json:"url"`
	Domain             string    `json:"domain"`
	Timestamp          time.Time `json:"timestamp"`
	Depth              int       `json:"depth"`
	HTTPStatusCode     int       `json:"http_status_code"`
	ContentLength      int       `json:"content_length"`
	ContentHash        string    `json:"content_hash"`
	LastCrawlTime      time.Time `json:"last_crawl_time"`
	PreviousChangeTime time.Time `json:"previous_change_time"`
	ExpectedNextCrawl  time.Time `json:"expected_next_crawl"`
	BackoffMultiplier  int       `json:"backoff_multiplier"`
	CrawlCount         int       `json:"crawl_count"`
	ChangeFrequency    float64   `json:"change_frequency"`
	Content            string    `json:"content"`
}

// Sanitize coerces every string field to valid UTF-8 in place,
// replacing invalid byte sequences with "?" so a serializer never
// rejects the record outright over a single bad byte from a
// misbehaving server.
func (r *EnrichedRecord) Sanitize() {
	r.URL = sanitizeUTF8(r.URL)
	r.Domain = sanitizeUTF8(r.Domain)
	r.ContentHash = sanitizeUTF8(r.ContentHash)
	r.Content = sanitizeUTF8(r.Content)
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size <= 1 {
			out = append(out, '?')
			i++
			continue
		}
		out = append(out, s[i:i+size]...)
		i += size
	}
	return string(out)
}
