package domain

import "time"

// Feed is a subscribed syndication source. URL is the stable identity.
// ETag and Modified are the conditional-fetch validators returned by the
// upstream server; both are opaque and persisted verbatim.
type Feed struct {
	ID          int64
	Name        string
	URL         string
	Link        *string
	Author      *string
	Description *string
	ImageURL    *string
	Category    *string
	ETag        *string
	Modified    *string
	CreatedAt   time.Time
	LastUpdated time.Time
}

// Category labels feeds and channels. It is independent of ingestion.
type Category struct {
	ID   int64
	Name string
}
