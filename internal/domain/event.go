package domain

import "time"

// ItemEvent announces a newly ingested content item to downstream
// consumers.
type ItemEvent struct {
	Kind        string    `json:"kind"` // "article" or "video"
	Key         string    `json:"key"`  // canonical link or video ID
	SourceKey   string    `json:"source_key"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
	IngestedAt  time.Time `json:"ingested_at"`
}
