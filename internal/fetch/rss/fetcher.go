// Package rss fetches and normalizes syndication feeds.
package rss

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"feedsync/internal/domain"
)

const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result holds the outcome of one feed fetch. NotModified reports that
// the server answered 304; in that case no other field is populated and
// the previously stored validators remain valid.
type Result struct {
	NotModified bool
	Feed        domain.Feed
	Articles    []domain.Article
	ETag        *string
	Modified    *string
}

// Fetcher downloads and parses syndication feeds. It never mutates
// persisted state; validators travel in and out through Fetch.
type Fetcher struct {
	client    HTTPClient
	userAgent string
}

// New creates a Fetcher with the given HTTP client. The client is
// expected to carry a request timeout.
func New(client HTTPClient, userAgent string) *Fetcher {
	if userAgent == "" {
		userAgent = "FeedSync/1.0"
	}
	return &Fetcher{client: client, userAgent: userAgent}
}

// Fetch performs a conditional GET of the feed at url. etag and modified
// are the validators stored from the previous cycle; pass nil for an
// unconditional fetch.
func (f *Fetcher) Fetch(ctx context.Context, url string, etag, modified *string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	if etag != nil && *etag != "" {
		req.Header.Set("If-None-Match", *etag)
	}
	if modified != nil && *modified != "" {
		req.Header.Set("If-Modified-Since", *modified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotModified {
		return &Result{NotModified: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.FetchError{URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &domain.FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, &domain.FormatError{URL: url, Err: err}
	}

	result := &Result{
		Feed:     feedInfo(parsed, url),
		Articles: parseEntries(parsed.Items, time.Now().UTC()),
	}
	if v := resp.Header.Get("ETag"); v != "" {
		result.ETag = &v
	}
	if v := resp.Header.Get("Last-Modified"); v != "" {
		result.Modified = &v
	}
	return result, nil
}
