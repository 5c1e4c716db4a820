package service

import (
	"context"
	"fmt"
	"log/slog"

	"feedsync/internal/domain"
)

// UploadImporter drives a paginated uploads listing into the store in
// bounded batches. A fetch failure on any page aborts the import;
// batches already flushed stay persisted (at-least-once semantics, not
// transactional across pages).
type UploadImporter struct {
	lister     ChannelLister
	reconciler *Reconciler
	batchSize  int
	logger     *slog.Logger
}

func NewUploadImporter(lister ChannelLister, reconciler *Reconciler, batchSize int, logger *slog.Logger) *UploadImporter {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &UploadImporter{
		lister:     lister,
		reconciler: reconciler,
		batchSize:  batchSize,
		logger:     logger.With("component", "importer"),
	}
}

// ImportAll pages through the channel's uploads playlist and flushes
// accumulated videos every batchSize items, with a final partial flush
// at the end. An empty first page means the channel has no uploads and
// fails with NotFoundError; an empty later page is a tolerated final
// page. Returns the number of videos actually inserted.
func (i *UploadImporter) ImportAll(ctx context.Context, channel *domain.Channel) (int, error) {
	var (
		batch     []domain.Video
		total     int
		pageToken string
		firstPage = true
		pages     int
	)

	for {
		page, err := i.lister.ListUploadsPage(ctx, channel.UploadsID, pageToken)
		if err != nil {
			return total, fmt.Errorf("list uploads page %d: %w", pages, err)
		}
		pages++

		if firstPage && page.Fetched == 0 {
			return 0, &domain.NotFoundError{Kind: "uploads", Key: channel.UploadsID}
		}
		firstPage = false

		for _, video := range page.Videos {
			batch = append(batch, video)
			if len(batch) >= i.batchSize {
				inserted, err := i.reconciler.ReconcileVideos(ctx, batch)
				total += inserted
				if err != nil {
					return total, err
				}
				batch = batch[:0]
			}
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	if len(batch) > 0 {
		inserted, err := i.reconciler.ReconcileVideos(ctx, batch)
		total += inserted
		if err != nil {
			return total, err
		}
	}

	i.logger.Info("import complete",
		"channel_id", channel.ID,
		"pages", pages,
		"inserted", total,
	)
	return total, nil
}
