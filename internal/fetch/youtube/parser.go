package youtube

import (
	"time"

	yt "google.golang.org/api/youtube/v3"

	"feedsync/internal/domain"
)

// videoFromPlaylistItem normalizes one playlist item. The video ID lives
// in contentDetails.videoId, with snippet.resourceId.videoId as the
// documented fallback. A missing video ID or published timestamp is a
// data integrity failure for that item and reports ok=false.
func videoFromPlaylistItem(item *yt.PlaylistItem) (domain.Video, bool) {
	if item == nil || item.Snippet == nil {
		return domain.Video{}, false
	}

	videoID := ""
	if item.ContentDetails != nil {
		videoID = item.ContentDetails.VideoId
	}
	if videoID == "" && item.Snippet.ResourceId != nil {
		videoID = item.Snippet.ResourceId.VideoId
	}
	if videoID == "" {
		return domain.Video{}, false
	}

	publishedAt, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
	if err != nil {
		return domain.Video{}, false
	}

	return domain.Video{
		ID:           videoID,
		ChannelID:    item.Snippet.ChannelId,
		Title:        item.Snippet.Title,
		Description:  nonEmpty(item.Snippet.Description),
		ThumbnailURL: thumbnailURL(item.Snippet.Thumbnails),
		PublishedAt:  publishedAt.UTC(),
	}, true
}

// thumbnailURL picks the best available thumbnail: high, then medium,
// then default.
func thumbnailURL(details *yt.ThumbnailDetails) *string {
	if details == nil {
		return nil
	}
	for _, t := range []*yt.Thumbnail{details.High, details.Medium, details.Default} {
		if t != nil && t.Url != "" {
			url := t.Url
			return &url
		}
	}
	return nil
}
