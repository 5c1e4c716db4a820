package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"feedsync/internal/domain"
	"feedsync/internal/fetch/rss"
	"feedsync/internal/fetch/youtube"
)

type FeedStore interface {
	Create(ctx context.Context, feed *domain.Feed) (int64, error)
	GetByURL(ctx context.Context, url string) (*domain.Feed, error)
	GetByID(ctx context.Context, id int64) (*domain.Feed, error)
	List(ctx context.Context) ([]domain.Feed, error)
	Exists(ctx context.Context, id int64) (bool, error)
	UpdateValidators(ctx context.Context, id int64, etag, modified *string) error
	Delete(ctx context.Context, id int64) error
}

type ArticleStore interface {
	ExistingLinks(ctx context.Context, links []string) (map[string]struct{}, error)
	UpsertBatch(ctx context.Context, articles []domain.Article) (map[string]int64, error)
	LinkToFeed(ctx context.Context, feedID int64, articleIDs []int64) (int, error)
}

type ChannelStore interface {
	Create(ctx context.Context, ch *domain.Channel) error
	GetByID(ctx context.Context, id string) (*domain.Channel, error)
	List(ctx context.Context) ([]domain.Channel, error)
	Delete(ctx context.Context, id string) error
}

type VideoStore interface {
	InsertBatch(ctx context.Context, videos []domain.Video) ([]string, error)
}

type CategoryStore interface {
	EnsureByName(ctx context.Context, name string) (*domain.Category, error)
	LinkFeed(ctx context.Context, feedID, categoryID int64) error
}

type FeedFetcher interface {
	Fetch(ctx context.Context, url string, etag, modified *string) (*rss.Result, error)
}

type ChannelLister interface {
	LookupChannel(ctx context.Context, ref string) (*domain.Channel, error)
	ListUploadsPage(ctx context.Context, playlistID, pageToken string) (*youtube.Page, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, event domain.ItemEvent) error
	Close() error
}
