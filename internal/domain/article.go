package domain

import "time"

// Article is a reconciled content item. Link is the natural external key
// and is globally unique; re-ingesting the same link updates the row.
// IsFavorited and IsRead are user state and are never written by ingestion.
type Article struct {
	ID          int64
	Title       string
	Link        string
	PublishedAt time.Time
	UpdatedAt   *time.Time
	Author      *string
	Summary     *string
	Content     *string
	ImageURL    *string
	Categories  []string
	IsFavorited bool
	IsRead      bool
	CreatedAt   time.Time
	LastUpdated time.Time
}

// ArticleFlags carries user-set state for a targeted update.
type ArticleFlags struct {
	IsFavorited *bool
	IsRead      *bool
}
