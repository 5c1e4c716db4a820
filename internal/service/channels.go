package service

import (
	"context"
	"fmt"
	"log/slog"

	"feedsync/internal/domain"
)

// ImportResult reports the completion or failure of a background upload
// import.
type ImportResult struct {
	ChannelID string
	Inserted  int
	Err       error
}

// ChannelService orchestrates the channel lifecycle and drives the bulk
// uploads importer.
type ChannelService struct {
	channels   ChannelStore
	lister     ChannelLister
	importer   *UploadImporter
	reconciler *Reconciler
	logger     *slog.Logger
}

func NewChannelService(
	channels ChannelStore,
	lister ChannelLister,
	importer *UploadImporter,
	reconciler *Reconciler,
	logger *slog.Logger,
) *ChannelService {
	return &ChannelService{
		channels:   channels,
		lister:     lister,
		importer:   importer,
		reconciler: reconciler,
		logger:     logger.With("component", "channels"),
	}
}

// AddChannel resolves the channel upstream and persists it. A channel
// already present fails with ConflictError; a reference the platform
// does not know fails with NotFoundError.
func (s *ChannelService) AddChannel(ctx context.Context, ref string) (*domain.Channel, error) {
	channel, err := s.lister.LookupChannel(ctx, ref)
	if err != nil {
		return nil, err
	}

	existing, err := s.channels.GetByID(ctx, channel.ID)
	if err != nil && !domain.IsNotFound(err) {
		return nil, fmt.Errorf("check existing channel: %w", err)
	}
	if existing != nil {
		return nil, &domain.ConflictError{Kind: "channel", Key: channel.ID}
	}

	if err := s.channels.Create(ctx, channel); err != nil {
		return nil, err
	}

	s.logger.Info("channel added", "channel_id", channel.ID, "title", channel.Title)
	return channel, nil
}

// ImportAllUploads imports the channel's full upload history in bounded
// batches.
func (s *ChannelService) ImportAllUploads(ctx context.Context, channelID string) (int, error) {
	channel, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return 0, err
	}
	return s.importer.ImportAll(ctx, channel)
}

// StartImportAll runs the full import as a detached unit of work. The
// import is not cancellable by the caller once started; it runs to
// completion or failure and reports through the returned channel.
func (s *ChannelService) StartImportAll(ctx context.Context, channelID string) <-chan ImportResult {
	done := make(chan ImportResult, 1)
	detached := context.WithoutCancel(ctx)

	go func() {
		inserted, err := s.ImportAllUploads(detached, channelID)
		if err != nil {
			s.logger.Error("background import failed",
				"channel_id", channelID,
				"inserted", inserted,
				"error", err,
			)
		}
		done <- ImportResult{ChannelID: channelID, Inserted: inserted, Err: err}
	}()

	return done
}

// RefreshChannel fetches only the first page of uploads and inserts the
// new entries. Older history is covered by the bulk import.
func (s *ChannelService) RefreshChannel(ctx context.Context, channelID string) (int, error) {
	channel, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return 0, err
	}

	page, err := s.lister.ListUploadsPage(ctx, channel.UploadsID, "")
	if err != nil {
		return 0, err
	}

	inserted, err := s.reconciler.ReconcileVideos(ctx, page.Videos)
	if err != nil {
		return 0, err
	}

	s.logger.Info("channel refreshed", "channel_id", channelID, "new_videos", inserted)
	return inserted, nil
}

// RefreshAllChannels refreshes every known channel. One channel's
// failure never aborts the rest; the number of failures is returned
// alongside the total of new videos.
func (s *ChannelService) RefreshAllChannels(ctx context.Context) (inserted, failed int) {
	channels, err := s.channels.List(ctx)
	if err != nil {
		s.logger.Error("list channels", "error", err)
		return 0, 1
	}

	for _, ch := range channels {
		n, err := s.RefreshChannel(ctx, ch.ID)
		if err != nil {
			s.logger.Warn("channel refresh failed", "channel_id", ch.ID, "error", err)
			failed++
			continue
		}
		inserted += n
	}
	return inserted, failed
}

// DeleteChannel removes the channel; its videos cascade.
func (s *ChannelService) DeleteChannel(ctx context.Context, channelID string) error {
	return s.channels.Delete(ctx, channelID)
}
