package youtube

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yt "google.golang.org/api/youtube/v3"
)

func playlistItem() *yt.PlaylistItem {
	return &yt.PlaylistItem{
		ContentDetails: &yt.PlaylistItemContentDetails{VideoId: "v001"},
		Snippet: &yt.PlaylistItemSnippet{
			ChannelId:   "UC123",
			Title:       "Test Video",
			Description: "a description",
			PublishedAt: "2024-05-30T15:00:00+03:00",
			Thumbnails: &yt.ThumbnailDetails{
				Default: &yt.Thumbnail{Url: "https://img.example.com/default.jpg"},
				Medium:  &yt.Thumbnail{Url: "https://img.example.com/medium.jpg"},
				High:    &yt.Thumbnail{Url: "https://img.example.com/high.jpg"},
			},
		},
	}
}

func TestVideoFromPlaylistItem(t *testing.T) {
	video, ok := videoFromPlaylistItem(playlistItem())

	require.True(t, ok)
	assert.Equal(t, "v001", video.ID)
	assert.Equal(t, "UC123", video.ChannelID)
	assert.Equal(t, "Test Video", video.Title)
	require.NotNil(t, video.Description)
	assert.Equal(t, "a description", *video.Description)
	require.NotNil(t, video.ThumbnailURL)
	assert.Equal(t, "https://img.example.com/high.jpg", *video.ThumbnailURL)
	assert.Equal(t, time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC), video.PublishedAt)
}

func TestVideoFromPlaylistItem_ResourceIDFallback(t *testing.T) {
	item := playlistItem()
	item.ContentDetails = nil
	item.Snippet.ResourceId = &yt.ResourceId{VideoId: "v002"}

	video, ok := videoFromPlaylistItem(item)

	require.True(t, ok)
	assert.Equal(t, "v002", video.ID)
}

func TestVideoFromPlaylistItem_MissingVideoID(t *testing.T) {
	item := playlistItem()
	item.ContentDetails = nil

	_, ok := videoFromPlaylistItem(item)

	assert.False(t, ok)
}

func TestVideoFromPlaylistItem_BadTimestamp(t *testing.T) {
	item := playlistItem()
	item.Snippet.PublishedAt = "yesterday"

	_, ok := videoFromPlaylistItem(item)

	assert.False(t, ok)
}

func TestVideoFromPlaylistItem_NilSnippet(t *testing.T) {
	_, ok := videoFromPlaylistItem(&yt.PlaylistItem{})
	assert.False(t, ok)

	_, ok = videoFromPlaylistItem(nil)
	assert.False(t, ok)
}

func TestThumbnailURL_Priority(t *testing.T) {
	assert.Nil(t, thumbnailURL(nil))
	assert.Nil(t, thumbnailURL(&yt.ThumbnailDetails{}))

	details := &yt.ThumbnailDetails{
		Default: &yt.Thumbnail{Url: "https://img.example.com/default.jpg"},
	}
	require.NotNil(t, thumbnailURL(details))
	assert.Equal(t, "https://img.example.com/default.jpg", *thumbnailURL(details))

	details.Medium = &yt.Thumbnail{Url: "https://img.example.com/medium.jpg"}
	assert.Equal(t, "https://img.example.com/medium.jpg", *thumbnailURL(details))

	details.High = &yt.Thumbnail{Url: "https://img.example.com/high.jpg"}
	assert.Equal(t, "https://img.example.com/high.jpg", *thumbnailURL(details))
}
