package types

import (
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Response is the result of a single HTTP fetch, handed from the
// Fetcher Pool to the Parse Queue.
type Response struct {
	URL           string
	FinalURL      string
	StatusCode    int
	Headers       http.Header
	Body          []byte
	ContentType   string
	ContentLength int64
	FetchDuration time.Duration
	FetchedAt     time.Time

	doc *goquery.Document
}

// NewResponse builds a Response from a completed http.Response and its
// already-read, already-decompressed body.
func NewResponse(url string, httpResp *http.Response, body []byte, duration time.Duration) *Response {
	finalURL := url
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		finalURL = httpResp.Request.URL.String()
	}
	return &Response{
		URL:           url,
		FinalURL:      finalURL,
		StatusCode:    httpResp.StatusCode,
		Headers:       httpResp.Header,
		Body:          body,
		ContentType:   httpResp.Header.Get("Content-Type"),
		ContentLength: int64(len(body)),
		FetchDuration: duration,
		FetchedAt:     time.Now(),
	}
}

// Document lazily parses the body as HTML via goquery.
func (r *Response) Document() (*goquery.Document, error) {
	if r.doc != nil {
		return r.doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(io.NopCloser(&bytesReader{data: r.Body}))
	if err != nil {
		return nil, err
	}
	r.doc = doc
	return doc, nil
}

func (r *Response) IsSuccess() bool      { return r.StatusCode >= 200 && r.StatusCode < 300 }
func (r *Response) IsNotModified() bool  { return r.StatusCode == 304 }
func (r *Response) IsThrottled() bool    { return r.StatusCode == 429 || r.StatusCode == 503 }
func (r *Response) IsServerError() bool  { return r.StatusCode >= 500 && r.StatusCode < 600 }
func (r *Response) IsClientError() bool  { return r.StatusCode >= 400 && r.StatusCode < 500 }

// bytesReader is a minimal io.Reader over a byte slice.
type bytesReader struct {
	data []byte
	pos  int
}

func (r *bytesReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
