// Package youtube lists channel uploads through the YouTube Data API v3.
package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"feedsync/internal/domain"
)

// Client wraps a YouTube Data API service. Construct it once at process
// start and inject it into every service that needs it.
type Client struct {
	service  *yt.Service
	pageSize int64
	logger   *slog.Logger
}

// NewClient builds an API-key authenticated client. pageSize is clamped
// to the API maximum of 50.
func NewClient(ctx context.Context, apiKey string, pageSize int64, logger *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("youtube api key required")
	}
	service, err := yt.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	if pageSize <= 0 || pageSize > 50 {
		pageSize = 50
	}
	return &Client{
		service:  service,
		pageSize: pageSize,
		logger:   logger.With("component", "youtube"),
	}, nil
}

// LookupChannel resolves a channel reference, either a channel ID
// (UC...) or a handle (@name), into channel metadata.
func (c *Client) LookupChannel(ctx context.Context, ref string) (*domain.Channel, error) {
	call := c.service.Channels.List([]string{"snippet", "contentDetails"}).Context(ctx)
	if strings.HasPrefix(ref, "@") {
		call = call.ForHandle(ref)
	} else {
		call = call.Id(ref)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, &domain.FetchError{URL: ref, Err: err}
	}
	if len(resp.Items) == 0 {
		return nil, &domain.NotFoundError{Kind: "channel", Key: ref}
	}

	item := resp.Items[0]
	if item.Id == "" || item.ContentDetails == nil || item.ContentDetails.RelatedPlaylists == nil {
		return nil, &domain.FormatError{URL: ref, Err: fmt.Errorf("channel response missing id or uploads playlist")}
	}

	ch := &domain.Channel{
		ID:        item.Id,
		UploadsID: item.ContentDetails.RelatedPlaylists.Uploads,
	}
	if item.Snippet != nil {
		ch.Title = item.Snippet.Title
		ch.Description = nonEmpty(item.Snippet.Description)
		ch.ThumbnailURL = thumbnailURL(item.Snippet.Thumbnails)
	}
	return ch, nil
}

// Page is one page of a channel uploads listing. An empty NextPageToken
// is the sole termination signal. Fetched counts the raw items the page
// carried before malformed ones were dropped.
type Page struct {
	Videos        []domain.Video
	NextPageToken string
	Fetched       int
}

// ListUploadsPage fetches one page of the uploads playlist. pageToken is
// empty on the first call. Malformed items are skipped, not fatal.
func (c *Client) ListUploadsPage(ctx context.Context, playlistID, pageToken string) (*Page, error) {
	call := c.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
		PlaylistId(playlistID).
		MaxResults(c.pageSize).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, &domain.FetchError{URL: playlistID, Err: err}
	}

	page := &Page{NextPageToken: resp.NextPageToken, Fetched: len(resp.Items)}
	for _, item := range resp.Items {
		video, ok := videoFromPlaylistItem(item)
		if !ok {
			c.logger.Warn("skipping malformed playlist item", "playlist", playlistID)
			continue
		}
		page.Videos = append(page.Videos, video)
	}
	return page, nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
