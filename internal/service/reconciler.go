package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"feedsync/internal/domain"
)

// Reconciler turns candidate batches into persisted rows and membership
// links. Safe to run repeatedly against the same source: every write
// path is conflict-safe and re-reconciling an unchanged batch reports
// zero new items and zero new memberships.
type Reconciler struct {
	feeds     FeedStore
	articles  ArticleStore
	videos    VideoStore
	txManager TransactionManager
	publisher Publisher
	logger    *slog.Logger
}

func NewReconciler(
	feeds FeedStore,
	articles ArticleStore,
	videos VideoStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		feeds:     feeds,
		articles:  articles,
		videos:    videos,
		txManager: txManager,
		publisher: publisher,
		logger:    logger.With("component", "reconciler"),
	}
}

// ReconcileArticles deduplicates the candidates by link, upserts them,
// and asserts (feed, article) memberships. The returned counts satisfy
// New + Existing == distinct links in the batch.
//
// Duplicate links within one batch keep the first occurrence; later
// duplicates are discarded silently by policy.
func (r *Reconciler) ReconcileArticles(ctx context.Context, feedID int64, candidates []domain.Article) (*domain.ReconcileResult, error) {
	result := &domain.ReconcileResult{}
	if len(candidates) == 0 {
		return result, nil
	}

	deduped := dedupeArticles(candidates)

	var newLinks map[string]struct{}
	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		exists, err := r.feeds.Exists(txCtx, feedID)
		if err != nil {
			return fmt.Errorf("check feed: %w", err)
		}
		if !exists {
			return &domain.NotFoundError{Kind: "feed", Key: strconv.FormatInt(feedID, 10)}
		}

		links := make([]string, len(deduped))
		for i, a := range deduped {
			links[i] = a.Link
		}

		// Snapshot of pre-existing identity keys, taken inside the same
		// transaction as the upsert.
		existing, err := r.articles.ExistingLinks(txCtx, links)
		if err != nil {
			return fmt.Errorf("classify articles: %w", err)
		}

		linkToID, err := r.articles.UpsertBatch(txCtx, deduped)
		if err != nil {
			return err
		}

		articleIDs := make([]int64, 0, len(deduped))
		for _, a := range deduped {
			if id, ok := linkToID[a.Link]; ok {
				articleIDs = append(articleIDs, id)
			}
		}

		newMemberships, err := r.articles.LinkToFeed(txCtx, feedID, articleIDs)
		if err != nil {
			return err
		}

		newLinks = make(map[string]struct{})
		for link := range linkToID {
			if _, ok := existing[link]; !ok {
				newLinks[link] = struct{}{}
			}
		}
		result.New = len(newLinks)
		result.Existing = len(linkToID) - result.New
		result.NewMemberships = newMemberships
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.publishNewArticles(ctx, feedID, deduped, newLinks)

	r.logger.Info("reconciled articles",
		"feed_id", feedID,
		"candidates", len(candidates),
		"deduplicated", len(deduped),
		"new", result.New,
		"existing", result.Existing,
		"new_memberships", result.NewMemberships,
	)
	return result, nil
}

// ReconcileVideos inserts a video batch with conflict-skip semantics and
// returns how many rows were actually created. Listing entries are
// append-only; no update-on-conflict is needed here. One event is
// published per video that was actually inserted.
func (r *Reconciler) ReconcileVideos(ctx context.Context, batch []domain.Video) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	deduped := dedupeVideos(batch)
	insertedIDs, err := r.videos.InsertBatch(ctx, deduped)
	if err != nil {
		return 0, fmt.Errorf("insert video batch: %w", err)
	}

	r.publishNewVideos(ctx, deduped, insertedIDs)
	return len(insertedIDs), nil
}

func (r *Reconciler) publishNewArticles(ctx context.Context, feedID int64, articles []domain.Article, newLinks map[string]struct{}) {
	if r.publisher == nil || len(newLinks) == 0 {
		return
	}
	now := time.Now().UTC()
	for _, a := range articles {
		if _, ok := newLinks[a.Link]; !ok {
			continue
		}
		event := domain.ItemEvent{
			Kind:        "article",
			Key:         a.Link,
			SourceKey:   strconv.FormatInt(feedID, 10),
			Title:       a.Title,
			PublishedAt: a.PublishedAt,
			IngestedAt:  now,
		}
		if err := r.publisher.Publish(ctx, event); err != nil {
			r.logger.Warn("publish failed", "link", a.Link, "error", err)
		}
	}
}

func (r *Reconciler) publishNewVideos(ctx context.Context, videos []domain.Video, insertedIDs []string) {
	if r.publisher == nil || len(insertedIDs) == 0 {
		return
	}
	inserted := make(map[string]struct{}, len(insertedIDs))
	for _, id := range insertedIDs {
		inserted[id] = struct{}{}
	}
	now := time.Now().UTC()
	for _, v := range videos {
		if _, ok := inserted[v.ID]; !ok {
			continue
		}
		event := domain.ItemEvent{
			Kind:        "video",
			Key:         v.ID,
			SourceKey:   v.ChannelID,
			Title:       v.Title,
			PublishedAt: v.PublishedAt,
			IngestedAt:  now,
		}
		if err := r.publisher.Publish(ctx, event); err != nil {
			r.logger.Warn("publish failed", "video_id", v.ID, "error", err)
		}
	}
}

// dedupeArticles keeps the first occurrence per link.
func dedupeArticles(articles []domain.Article) []domain.Article {
	seen := make(map[string]struct{}, len(articles))
	deduped := make([]domain.Article, 0, len(articles))
	for _, a := range articles {
		if _, ok := seen[a.Link]; ok {
			continue
		}
		seen[a.Link] = struct{}{}
		deduped = append(deduped, a)
	}
	return deduped
}

// dedupeVideos keeps the first occurrence per video ID.
func dedupeVideos(videos []domain.Video) []domain.Video {
	seen := make(map[string]struct{}, len(videos))
	deduped := make([]domain.Video, 0, len(videos))
	for _, v := range videos {
		if _, ok := seen[v.ID]; ok {
			continue
		}
		seen[v.ID] = struct{}{}
		deduped = append(deduped, v)
	}
	return deduped
}
