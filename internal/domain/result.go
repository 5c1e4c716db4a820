package domain

import "time"

// ReconcileResult holds the change counts of one reconciliation.
// New + Existing equals the number of distinct identity keys in the
// deduplicated batch; NewMemberships never exceeds it.
type ReconcileResult struct {
	New            int
	Existing       int
	NewMemberships int
}

// RefreshResult describes the outcome of refreshing a single feed.
type RefreshResult struct {
	FeedID      int64
	FeedURL     string
	NotModified bool
	Skipped     bool
	New         int
	Updated     int
	Duration    time.Duration
}

// FeedError pairs a feed with the error that failed its refresh.
type FeedError struct {
	FeedID  int64
	FeedURL string
	Err     error
}

// RefreshReport collects per-feed outcomes of a refresh-all run.
// One feed's failure never aborts the rest. When the run also covers
// channels, NewVideos and ChannelsFailed carry that side's totals.
type RefreshReport struct {
	Results []RefreshResult
	Errors  []FeedError

	NewVideos      int
	ChannelsFailed int
}
