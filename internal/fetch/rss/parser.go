package rss

import (
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"feedsync/internal/domain"
)

var imgTagRe = regexp.MustCompile(`(?is)<img[^>]*\bsrc\s*=\s*["']([^"']+)["'][^>]*/?>`)

// feedInfo extracts descriptive feed metadata. url stays the identity
// even when the feed declares a different self link.
func feedInfo(feed *gofeed.Feed, url string) domain.Feed {
	f := domain.Feed{
		Name: feed.Title,
		URL:  url,
	}
	if f.Name == "" {
		f.Name = "Unknown Feed"
	}
	f.Link = nonEmpty(feed.Link)
	f.Description = nonEmpty(feed.Description)
	if len(feed.Authors) > 0 && feed.Authors[0] != nil {
		f.Author = nonEmpty(feed.Authors[0].Name)
	}
	if feed.Image != nil {
		f.ImageURL = nonEmpty(feed.Image.URL)
	}
	return f
}

// parseEntries normalizes feed entries into articles. Entries without a
// link have no identity and are skipped; all other malformed fields are
// defaulted, never fatal.
func parseEntries(items []*gofeed.Item, now time.Time) []domain.Article {
	articles := make([]domain.Article, 0, len(items))
	for _, item := range items {
		if item == nil || item.Link == "" {
			continue
		}

		a := domain.Article{
			Title: item.Title,
			Link:  item.Link,
		}
		if a.Title == "" {
			a.Title = "No Title"
		}

		if item.PublishedParsed != nil {
			a.PublishedAt = item.PublishedParsed.UTC()
		} else {
			a.PublishedAt = now
		}
		if item.UpdatedParsed != nil {
			updated := item.UpdatedParsed.UTC()
			a.UpdatedAt = &updated
		}

		if len(item.Authors) > 0 && item.Authors[0] != nil {
			a.Author = nonEmpty(item.Authors[0].Name)
		}
		a.Summary = nonEmpty(item.Description)
		a.Categories = item.Categories

		content := item.Content
		image, content := entryImage(item, content)
		a.Content = nonEmpty(content)
		a.ImageURL = image

		articles = append(articles, a)
	}
	return articles
}

// entryImage resolves the entry image by priority: media:content of
// image type, media:thumbnail, image enclosure, explicit image field,
// then the first <img> tag embedded in the content. When the image is
// scraped out of the content the tag is removed so it is not rendered
// twice; the possibly rewritten content is returned alongside.
func entryImage(item *gofeed.Item, content string) (*string, string) {
	if media, ok := item.Extensions["media"]; ok {
		for _, e := range media["content"] {
			if strings.HasPrefix(e.Attrs["type"], "image/") && e.Attrs["url"] != "" {
				url := e.Attrs["url"]
				return &url, content
			}
		}
		for _, e := range media["thumbnail"] {
			if e.Attrs["url"] != "" {
				url := e.Attrs["url"]
				return &url, content
			}
		}
	}

	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			url := enc.URL
			return &url, content
		}
	}

	if item.Image != nil && item.Image.URL != "" {
		url := item.Image.URL
		return &url, content
	}

	if m := imgTagRe.FindStringSubmatch(content); m != nil {
		url := m[1]
		stripped := strings.Replace(content, m[0], "", 1)
		return &url, stripped
	}

	return nil, content
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
