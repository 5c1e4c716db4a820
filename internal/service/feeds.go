package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"feedsync/internal/domain"
)

// FeedService orchestrates the feed lifecycle: add once, refresh on
// demand or on schedule, delete with orphan cleanup.
type FeedService struct {
	feeds      FeedStore
	categories CategoryStore
	fetcher    FeedFetcher
	reconciler *Reconciler
	txManager  TransactionManager
	logger     *slog.Logger

	// Refreshes of a feed more recent than this are idle-skipped.
	minRefreshInterval time.Duration

	// Per-feed lease so a manual refresh and the scheduled one cannot
	// reconcile the same feed concurrently. In-process only; the
	// conflict-safe upserts remain the cross-process safety net.
	mu         sync.Mutex
	refreshing map[int64]struct{}
}

func NewFeedService(
	feeds FeedStore,
	categories CategoryStore,
	fetcher FeedFetcher,
	reconciler *Reconciler,
	txManager TransactionManager,
	minRefreshInterval time.Duration,
	logger *slog.Logger,
) *FeedService {
	return &FeedService{
		feeds:              feeds,
		categories:         categories,
		fetcher:            fetcher,
		reconciler:         reconciler,
		txManager:          txManager,
		minRefreshInterval: minRefreshInterval,
		logger:             logger.With("component", "feeds"),
		refreshing:         make(map[int64]struct{}),
	}
}

// AddFeed fetches the feed once, persists it, and reconciles the
// initial article batch. A feed with the same URL already present fails
// with ConflictError.
func (s *FeedService) AddFeed(ctx context.Context, url string, category *string) (*domain.Feed, *domain.ReconcileResult, error) {
	existing, err := s.feeds.GetByURL(ctx, url)
	if err != nil && !domain.IsNotFound(err) {
		return nil, nil, fmt.Errorf("check existing feed: %w", err)
	}
	if existing != nil {
		return nil, nil, &domain.ConflictError{Kind: "feed", Key: url}
	}

	fetched, err := s.fetcher.Fetch(ctx, url, nil, nil)
	if err != nil {
		return nil, nil, err
	}

	feed := fetched.Feed
	feed.Category = category
	feed.ETag = fetched.ETag
	feed.Modified = fetched.Modified

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		id, err := s.feeds.Create(txCtx, &feed)
		if err != nil {
			return err
		}
		feed.ID = id

		if category != nil && *category != "" {
			cat, err := s.categories.EnsureByName(txCtx, *category)
			if err != nil {
				return fmt.Errorf("ensure category: %w", err)
			}
			if err := s.categories.LinkFeed(txCtx, id, cat.ID); err != nil {
				return fmt.Errorf("link category: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	result, err := s.reconciler.ReconcileArticles(ctx, feed.ID, fetched.Articles)
	if err != nil {
		return &feed, nil, fmt.Errorf("reconcile initial batch: %w", err)
	}

	s.logger.Info("feed added", "feed_id", feed.ID, "url", url, "new_articles", result.New)
	return &feed, result, nil
}

// RefreshFeed performs a conditional fetch and reconciles the delta. A
// "not modified" answer is a success no-op; a refresh more recent than
// the minimum interval is an idle-skip; a refresh already in flight for
// the same feed is skipped rather than queued.
func (s *FeedService) RefreshFeed(ctx context.Context, feedID int64) (*domain.RefreshResult, error) {
	start := time.Now()

	feed, err := s.feeds.GetByID(ctx, feedID)
	if err != nil {
		return nil, err
	}

	result := &domain.RefreshResult{FeedID: feed.ID, FeedURL: feed.URL}

	if s.minRefreshInterval > 0 && time.Since(feed.LastUpdated) < s.minRefreshInterval {
		result.Skipped = true
		result.Duration = time.Since(start)
		return result, nil
	}

	if !s.acquireRefresh(feedID) {
		result.Skipped = true
		result.Duration = time.Since(start)
		return result, nil
	}
	defer s.releaseRefresh(feedID)

	fetched, err := s.fetcher.Fetch(ctx, feed.URL, feed.ETag, feed.Modified)
	if err != nil {
		return nil, err
	}

	if fetched.NotModified {
		// No fresh validators were returned; the stored ones stay.
		result.NotModified = true
		result.Duration = time.Since(start)
		s.logger.Debug("feed not modified", "feed_id", feedID)
		return result, nil
	}

	if err := s.feeds.UpdateValidators(ctx, feedID, fetched.ETag, fetched.Modified); err != nil {
		return nil, fmt.Errorf("persist validators: %w", err)
	}

	rec, err := s.reconciler.ReconcileArticles(ctx, feedID, fetched.Articles)
	if err != nil {
		return nil, err
	}

	result.New = rec.New
	result.Updated = rec.Existing
	result.Duration = time.Since(start)

	s.logger.Info("feed refreshed",
		"feed_id", feedID,
		"new", result.New,
		"updated", result.Updated,
		"duration", result.Duration,
	)
	return result, nil
}

// RefreshAll refreshes every known feed, collecting a per-feed result
// or error. One feed's failure never aborts the rest; only a failure to
// list the feeds at all aborts the run.
func (s *FeedService) RefreshAll(ctx context.Context) (*domain.RefreshReport, error) {
	report := &domain.RefreshReport{}

	feeds, err := s.feeds.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}

	for _, feed := range feeds {
		result, err := s.RefreshFeed(ctx, feed.ID)
		if err != nil {
			s.logger.Warn("refresh failed", "feed_id", feed.ID, "url", feed.URL, "error", err)
			report.Errors = append(report.Errors, domain.FeedError{
				FeedID:  feed.ID,
				FeedURL: feed.URL,
				Err:     err,
			})
			continue
		}
		report.Results = append(report.Results, *result)
	}

	s.logger.Info("refresh all complete",
		"feeds", len(feeds),
		"succeeded", len(report.Results),
		"failed", len(report.Errors),
	)
	return report, nil
}

// DeleteFeed removes the feed, detaches its memberships, and deletes
// articles left without any remaining membership.
func (s *FeedService) DeleteFeed(ctx context.Context, feedID int64) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.feeds.Delete(txCtx, feedID)
	})
}

func (s *FeedService) acquireRefresh(feedID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.refreshing[feedID]; busy {
		return false
	}
	s.refreshing[feedID] = struct{}{}
	return true
}

func (s *FeedService) releaseRefresh(feedID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refreshing, feedID)
}
