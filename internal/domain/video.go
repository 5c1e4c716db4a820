package domain

import "time"

// Channel is a subscribed video-platform source. ID is the external
// channel ID; UploadsID names the uploads playlist used for listing.
type Channel struct {
	ID           string
	Title        string
	Description  *string
	UploadsID    string
	ThumbnailURL *string
	Category     *string
	IsFavorited  bool
	CreatedAt    time.Time
	LastUpdated  time.Time
}

// Video is a reconciled upload. ID is the external video ID and is
// globally unique; listing entries are append-only once created.
type Video struct {
	ID           string
	ChannelID    string
	Title        string
	Description  *string
	ThumbnailURL *string
	PublishedAt  time.Time
	IsFavorited  bool
	CreatedAt    time.Time
	LastUpdated  time.Time
}
