package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"feedsync/internal/domain"
	"feedsync/internal/fetch/rss"
	"feedsync/internal/service/mocks"
	"feedsync/testdata/utils"
)

type FeedServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	feeds      *mocks.MockFeedStore
	articles   *mocks.MockArticleStore
	videos     *mocks.MockVideoStore
	categories *mocks.MockCategoryStore
	fetcher    *mocks.MockFeedFetcher
	txManager  *mocks.MockTransactionManager
	publisher  *mocks.MockPublisher

	service *FeedService
	logger  *slog.Logger
}

func (s *FeedServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.feeds = mocks.NewMockFeedStore(s.ctrl)
	s.articles = mocks.NewMockArticleStore(s.ctrl)
	s.videos = mocks.NewMockVideoStore(s.ctrl)
	s.categories = mocks.NewMockCategoryStore(s.ctrl)
	s.fetcher = mocks.NewMockFeedFetcher(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	reconciler := NewReconciler(s.feeds, s.articles, s.videos, s.txManager, s.publisher, s.logger)

	s.service = NewFeedService(
		s.feeds,
		s.categories,
		s.fetcher,
		reconciler,
		s.txManager,
		15*time.Minute,
		s.logger,
	)
}

func (s *FeedServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestFeedServiceTestSuite(t *testing.T) {
	suite.Run(t, new(FeedServiceTestSuite))
}

func (s *FeedServiceTestSuite) expectTransaction(ctx context.Context) *gomock.Call {
	return s.txManager.EXPECT().WithTransaction(ctx, gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
}

func (s *FeedServiceTestSuite) TestAddFeed_Success() {
	ctx := context.Background()
	now := time.Now().UTC()
	url := "https://example.com/rss"

	fetched := &rss.Result{
		Feed: domain.Feed{Name: "Example Feed", URL: url},
		Articles: []domain.Article{
			{Title: "first", Link: "https://example.com/a", PublishedAt: now},
		},
		ETag: utils.Ptr(`"abc123"`),
	}

	s.feeds.EXPECT().GetByURL(ctx, url).Return(nil, &domain.NotFoundError{Kind: "feed", Key: url})
	s.fetcher.EXPECT().Fetch(ctx, url, nil, nil).Return(fetched, nil)

	// Feed creation and initial reconcile run in separate transactions.
	s.expectTransaction(ctx).Times(2)
	s.feeds.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, feed *domain.Feed) (int64, error) {
			s.Equal(url, feed.URL)
			s.Equal(`"abc123"`, *feed.ETag)
			return 1, nil
		},
	)

	s.feeds.EXPECT().Exists(ctx, int64(1)).Return(true, nil)
	s.articles.EXPECT().ExistingLinks(ctx, []string{"https://example.com/a"}).
		Return(map[string]struct{}{}, nil)
	s.articles.EXPECT().UpsertBatch(ctx, fetched.Articles).
		Return(map[string]int64{"https://example.com/a": 10}, nil)
	s.articles.EXPECT().LinkToFeed(ctx, int64(1), []int64{10}).Return(1, nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil)

	feed, result, err := s.service.AddFeed(ctx, url, nil)

	s.NoError(err)
	s.Equal(int64(1), feed.ID)
	s.Equal(1, result.New)
	s.Equal(1, result.NewMemberships)
}

func (s *FeedServiceTestSuite) TestAddFeed_WithCategory() {
	ctx := context.Background()
	url := "https://example.com/rss"
	category := utils.Ptr("tech")

	s.feeds.EXPECT().GetByURL(ctx, url).Return(nil, &domain.NotFoundError{Kind: "feed", Key: url})
	s.fetcher.EXPECT().Fetch(ctx, url, nil, nil).Return(&rss.Result{
		Feed: domain.Feed{Name: "Example Feed", URL: url},
	}, nil)

	s.expectTransaction(ctx)
	s.feeds.EXPECT().Create(ctx, gomock.Any()).Return(int64(1), nil)
	s.categories.EXPECT().EnsureByName(ctx, "tech").Return(&domain.Category{ID: 7, Name: "tech"}, nil)
	s.categories.EXPECT().LinkFeed(ctx, int64(1), int64(7)).Return(nil)

	feed, result, err := s.service.AddFeed(ctx, url, category)

	s.NoError(err)
	s.Equal("tech", *feed.Category)
	s.Equal(0, result.New)
}

func (s *FeedServiceTestSuite) TestAddFeed_AlreadyExists() {
	ctx := context.Background()
	url := "https://example.com/rss"

	s.feeds.EXPECT().GetByURL(ctx, url).Return(&domain.Feed{ID: 1, URL: url}, nil)

	feed, result, err := s.service.AddFeed(ctx, url, nil)

	s.Nil(feed)
	s.Nil(result)
	s.True(domain.IsConflict(err))
}

func (s *FeedServiceTestSuite) TestAddFeed_FetchFailure() {
	ctx := context.Background()
	url := "https://example.com/rss"

	s.feeds.EXPECT().GetByURL(ctx, url).Return(nil, &domain.NotFoundError{Kind: "feed", Key: url})
	s.fetcher.EXPECT().Fetch(ctx, url, nil, nil).
		Return(nil, &domain.FetchError{URL: url, Err: errors.New("status 503")})

	feed, result, err := s.service.AddFeed(ctx, url, nil)

	s.Nil(feed)
	s.Nil(result)
	s.True(domain.IsFetchError(err))
}

func (s *FeedServiceTestSuite) TestRefreshFeed_NotModified() {
	ctx := context.Background()
	stored := &domain.Feed{
		ID:          1,
		URL:         "https://example.com/rss",
		ETag:        utils.Ptr(`"abc123"`),
		Modified:    utils.Ptr("Mon, 02 Jan 2006 15:04:05 GMT"),
		LastUpdated: time.Now().Add(-time.Hour),
	}

	s.feeds.EXPECT().GetByID(ctx, int64(1)).Return(stored, nil)
	s.fetcher.EXPECT().Fetch(ctx, stored.URL, stored.ETag, stored.Modified).
		Return(&rss.Result{NotModified: true}, nil)

	result, err := s.service.RefreshFeed(ctx, 1)

	s.NoError(err)
	s.True(result.NotModified)
	s.Equal(0, result.New)
}

func (s *FeedServiceTestSuite) TestRefreshFeed_IdleSkip() {
	ctx := context.Background()
	stored := &domain.Feed{
		ID:          1,
		URL:         "https://example.com/rss",
		LastUpdated: time.Now().Add(-time.Minute),
	}

	// Refreshed a minute ago, interval is fifteen. No fetch happens.
	s.feeds.EXPECT().GetByID(ctx, int64(1)).Return(stored, nil)

	result, err := s.service.RefreshFeed(ctx, 1)

	s.NoError(err)
	s.True(result.Skipped)
}

func (s *FeedServiceTestSuite) TestRefreshFeed_NewAndExisting() {
	ctx := context.Background()
	now := time.Now().UTC()
	stored := &domain.Feed{
		ID:          1,
		URL:         "https://example.com/rss",
		LastUpdated: time.Now().Add(-time.Hour),
	}

	fetched := &rss.Result{
		Feed: domain.Feed{Name: "Example Feed", URL: stored.URL},
		Articles: []domain.Article{
			{Title: "new one", Link: "https://example.com/new", PublishedAt: now},
			{Title: "old one", Link: "https://example.com/old", PublishedAt: now},
		},
		ETag: utils.Ptr(`"def456"`),
	}

	s.feeds.EXPECT().GetByID(ctx, int64(1)).Return(stored, nil)
	s.fetcher.EXPECT().Fetch(ctx, stored.URL, nil, nil).Return(fetched, nil)
	s.feeds.EXPECT().UpdateValidators(ctx, int64(1), fetched.ETag, nil).Return(nil)

	s.expectTransaction(ctx)
	s.feeds.EXPECT().Exists(ctx, int64(1)).Return(true, nil)
	s.articles.EXPECT().ExistingLinks(ctx, []string{"https://example.com/new", "https://example.com/old"}).
		Return(map[string]struct{}{"https://example.com/old": {}}, nil)
	s.articles.EXPECT().UpsertBatch(ctx, fetched.Articles).
		Return(map[string]int64{"https://example.com/new": 10, "https://example.com/old": 11}, nil)
	s.articles.EXPECT().LinkToFeed(ctx, int64(1), []int64{10, 11}).Return(1, nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil)

	result, err := s.service.RefreshFeed(ctx, 1)

	s.NoError(err)
	s.Equal(1, result.New)
	s.Equal(1, result.Updated)
	s.False(result.NotModified)
	s.False(result.Skipped)
}

func (s *FeedServiceTestSuite) TestRefreshFeed_UnknownFeed() {
	ctx := context.Background()

	s.feeds.EXPECT().GetByID(ctx, int64(99)).
		Return(nil, &domain.NotFoundError{Kind: "feed", Key: "99"})

	result, err := s.service.RefreshFeed(ctx, 99)

	s.Nil(result)
	s.True(domain.IsNotFound(err))
}

func (s *FeedServiceTestSuite) TestRefreshAll_ErrorIsolation() {
	ctx := context.Background()

	feeds := []domain.Feed{
		{ID: 1, URL: "https://broken.example.com/rss", LastUpdated: time.Now().Add(-time.Hour)},
		{ID: 2, URL: "https://ok.example.com/rss", LastUpdated: time.Now().Add(-time.Hour)},
	}

	s.feeds.EXPECT().List(ctx).Return(feeds, nil)

	s.feeds.EXPECT().GetByID(ctx, int64(1)).Return(&feeds[0], nil)
	s.fetcher.EXPECT().Fetch(ctx, feeds[0].URL, nil, nil).
		Return(nil, &domain.FetchError{URL: feeds[0].URL, Err: errors.New("connection refused")})

	s.feeds.EXPECT().GetByID(ctx, int64(2)).Return(&feeds[1], nil)
	s.fetcher.EXPECT().Fetch(ctx, feeds[1].URL, nil, nil).
		Return(&rss.Result{NotModified: true}, nil)

	report, err := s.service.RefreshAll(ctx)

	s.NoError(err)
	s.Len(report.Results, 1)
	s.Len(report.Errors, 1)
	s.Equal(int64(1), report.Errors[0].FeedID)
	s.True(domain.IsFetchError(report.Errors[0].Err))
}

func (s *FeedServiceTestSuite) TestRefreshAll_ListFailure() {
	ctx := context.Background()
	listErr := errors.New("db gone")

	s.feeds.EXPECT().List(ctx).Return(nil, listErr)

	// A failure to enumerate the feeds aborts the run as its own error,
	// not as a per-feed entry in the report.
	report, err := s.service.RefreshAll(ctx)

	s.Nil(report)
	s.ErrorIs(err, listErr)
}

func (s *FeedServiceTestSuite) TestDeleteFeed() {
	ctx := context.Background()

	s.expectTransaction(ctx)
	s.feeds.EXPECT().Delete(ctx, int64(1)).Return(nil)

	s.NoError(s.service.DeleteFeed(ctx, 1))
}

func (s *FeedServiceTestSuite) TestDeleteFeed_Unknown() {
	ctx := context.Background()

	s.expectTransaction(ctx)
	s.feeds.EXPECT().Delete(ctx, int64(99)).
		Return(&domain.NotFoundError{Kind: "feed", Key: "99"})

	err := s.service.DeleteFeed(ctx, 99)

	s.True(domain.IsNotFound(err))
}
