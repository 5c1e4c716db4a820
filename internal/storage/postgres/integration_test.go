//go:build integration

package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"feedsync/internal/domain"
	"feedsync/testdata/utils"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_feeds.up.sql"),
			filepath.Join(migrationsPath, "002_create_articles.up.sql"),
			filepath.Join(migrationsPath, "003_create_channels.up.sql"),
			filepath.Join(migrationsPath, "004_create_categories.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM feed_categories")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM channel_categories")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM categories")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM feed_articles")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM articles")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM feeds")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM videos")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM channels")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) createFeed(url string) int64 {
	store := NewFeedStore(s.db)
	id, err := store.Create(s.ctx, &domain.Feed{Name: "Test Feed", URL: url})
	s.Require().NoError(err)
	return id
}

func testArticle(link string) domain.Article {
	return domain.Article{
		Title:       "Test Article",
		Link:        link,
		PublishedAt: time.Now().UTC().Truncate(time.Microsecond),
		Author:      utils.Ptr("Test Author"),
		Summary:     utils.Ptr("Test Summary"),
		Content:     utils.Ptr("Test Content"),
		ImageURL:    utils.Ptr("https://example.com/image.jpg"),
		Categories:  []string{"go", "infra"},
	}
}

func (s *PostgresIntegrationSuite) TestFeedStore_CreateAndGet() {
	store := NewFeedStore(s.db)

	id, err := store.Create(s.ctx, &domain.Feed{
		Name:     "Test Feed",
		URL:      "https://example.com/rss",
		Link:     utils.Ptr("https://example.com"),
		ETag:     utils.Ptr(`"abc123"`),
		Modified: utils.Ptr("Mon, 02 Jan 2006 15:04:05 GMT"),
	})
	s.NoError(err)
	s.Greater(id, int64(0))

	feed, err := store.GetByURL(s.ctx, "https://example.com/rss")
	s.NoError(err)
	s.Equal(id, feed.ID)
	s.Equal("Test Feed", feed.Name)
	s.Equal(`"abc123"`, *feed.ETag)

	exists, err := store.Exists(s.ctx, id)
	s.NoError(err)
	s.True(exists)
}

func (s *PostgresIntegrationSuite) TestFeedStore_GetByURL_NotFound() {
	store := NewFeedStore(s.db)

	feed, err := store.GetByURL(s.ctx, "https://example.com/missing")
	s.Nil(feed)
	s.True(domain.IsNotFound(err))
}

func (s *PostgresIntegrationSuite) TestFeedStore_UpdateValidators() {
	store := NewFeedStore(s.db)
	id := s.createFeed("https://example.com/rss")

	err := store.UpdateValidators(s.ctx, id, utils.Ptr(`"def456"`), nil)
	s.NoError(err)

	feed, err := store.GetByID(s.ctx, id)
	s.NoError(err)
	s.Equal(`"def456"`, *feed.ETag)
	s.Nil(feed.Modified)

	err = store.UpdateValidators(s.ctx, int64(999999), nil, nil)
	s.True(domain.IsNotFound(err))
}

func (s *PostgresIntegrationSuite) TestArticleStore_UpsertBatch_InsertThenRepeat() {
	articles := NewArticleStore(s.db)

	batch := []domain.Article{testArticle("https://example.com/a"), testArticle("https://example.com/b")}

	linkToID, err := articles.UpsertBatch(s.ctx, batch)
	s.NoError(err)
	s.Len(linkToID, 2)

	// Re-ingesting the identical batch must not create rows and must
	// resolve to the same IDs.
	again, err := articles.UpsertBatch(s.ctx, batch)
	s.NoError(err)
	s.Equal(linkToID, again)

	var count int
	s.NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM articles"))
	s.Equal(2, count)
}

func (s *PostgresIntegrationSuite) TestArticleStore_UpsertBatch_PreservesUserState() {
	articles := NewArticleStore(s.db)

	batch := []domain.Article{testArticle("https://example.com/a")}
	linkToID, err := articles.UpsertBatch(s.ctx, batch)
	s.NoError(err)
	id := linkToID["https://example.com/a"]

	s.NoError(articles.UpdateFlags(s.ctx, id, domain.ArticleFlags{
		IsFavorited: utils.Ptr(true),
		IsRead:      utils.Ptr(true),
	}))

	originalPublished := batch[0].PublishedAt

	// The source re-delivers the entry with a different title and a
	// shifted publication date.
	batch[0].Title = "Retitled"
	batch[0].PublishedAt = originalPublished.Add(time.Hour)
	_, err = articles.UpsertBatch(s.ctx, batch)
	s.NoError(err)

	stored, err := articles.GetByLink(s.ctx, "https://example.com/a")
	s.NoError(err)
	s.Equal("Retitled", stored.Title)
	s.True(stored.PublishedAt.Equal(originalPublished), "published_at must not move on re-ingest")
	s.True(stored.IsFavorited)
	s.True(stored.IsRead)
}

func (s *PostgresIntegrationSuite) TestArticleStore_UpsertBatch_StaleUpdateSkipped() {
	articles := NewArticleStore(s.db)

	fresh := testArticle("https://example.com/a")
	fresh.UpdatedAt = utils.Ptr(time.Now().UTC().Truncate(time.Microsecond))
	linkToID, err := articles.UpsertBatch(s.ctx, []domain.Article{fresh})
	s.NoError(err)

	stale := fresh
	stale.Title = "Stale Title"
	stale.UpdatedAt = utils.Ptr(fresh.UpdatedAt.Add(-time.Hour))

	again, err := articles.UpsertBatch(s.ctx, []domain.Article{stale})
	s.NoError(err)
	// The skipped row still resolves to its ID for membership linking.
	s.Equal(linkToID, again)

	stored, err := articles.GetByLink(s.ctx, "https://example.com/a")
	s.NoError(err)
	s.Equal("Test Article", stored.Title)
}

func (s *PostgresIntegrationSuite) TestArticleStore_LinkToFeed_CountsOnlyNew() {
	articles := NewArticleStore(s.db)
	feedID := s.createFeed("https://example.com/rss")

	linkToID, err := articles.UpsertBatch(s.ctx, []domain.Article{
		testArticle("https://example.com/a"),
		testArticle("https://example.com/b"),
	})
	s.NoError(err)

	ids := make([]int64, 0, len(linkToID))
	for _, id := range linkToID {
		ids = append(ids, id)
	}

	inserted, err := articles.LinkToFeed(s.ctx, feedID, ids)
	s.NoError(err)
	s.Equal(2, inserted)

	inserted, err = articles.LinkToFeed(s.ctx, feedID, ids)
	s.NoError(err)
	s.Equal(0, inserted)
}

func (s *PostgresIntegrationSuite) TestArticleStore_SharedAcrossFeeds() {
	articles := NewArticleStore(s.db)
	feed1 := s.createFeed("https://one.example.com/rss")
	feed2 := s.createFeed("https://two.example.com/rss")

	linkToID, err := articles.UpsertBatch(s.ctx, []domain.Article{testArticle("https://example.com/shared")})
	s.NoError(err)
	id := linkToID["https://example.com/shared"]

	_, err = articles.LinkToFeed(s.ctx, feed1, []int64{id})
	s.NoError(err)
	_, err = articles.LinkToFeed(s.ctx, feed2, []int64{id})
	s.NoError(err)

	feedIDs, err := articles.FeedIDsByArticle(s.ctx, id)
	s.NoError(err)
	s.ElementsMatch([]int64{feed1, feed2}, feedIDs)

	var count int
	s.NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM articles"))
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestFeedStore_Delete_CleansOrphans() {
	articles := NewArticleStore(s.db)
	feeds := NewFeedStore(s.db)
	feed1 := s.createFeed("https://one.example.com/rss")
	feed2 := s.createFeed("https://two.example.com/rss")

	linkToID, err := articles.UpsertBatch(s.ctx, []domain.Article{
		testArticle("https://example.com/only-feed1"),
		testArticle("https://example.com/shared"),
	})
	s.NoError(err)

	_, err = articles.LinkToFeed(s.ctx, feed1, []int64{
		linkToID["https://example.com/only-feed1"],
		linkToID["https://example.com/shared"],
	})
	s.NoError(err)
	_, err = articles.LinkToFeed(s.ctx, feed2, []int64{linkToID["https://example.com/shared"]})
	s.NoError(err)

	s.NoError(feeds.Delete(s.ctx, feed1))

	// The exclusively-owned article is gone, the shared one survives.
	_, err = articles.GetByLink(s.ctx, "https://example.com/only-feed1")
	s.True(domain.IsNotFound(err))

	shared, err := articles.GetByLink(s.ctx, "https://example.com/shared")
	s.NoError(err)
	s.NotNil(shared)
}

func (s *PostgresIntegrationSuite) TestVideoStore_InsertBatch_ConflictSkip() {
	channels := NewChannelStore(s.db)
	videos := NewVideoStore(s.db)

	s.Require().NoError(channels.Create(s.ctx, &domain.Channel{
		ID:        "UC123",
		Title:     "Test Channel",
		UploadsID: "UU123",
	}))

	now := time.Now().UTC().Truncate(time.Microsecond)
	batch := []domain.Video{
		{ID: "v1", ChannelID: "UC123", Title: "one", PublishedAt: now},
		{ID: "v2", ChannelID: "UC123", Title: "two", PublishedAt: now},
	}

	inserted, err := videos.InsertBatch(s.ctx, batch)
	s.NoError(err)
	s.ElementsMatch([]string{"v1", "v2"}, inserted)

	// A second pass over an overlapping batch reports only the new row.
	batch = append(batch, domain.Video{ID: "v3", ChannelID: "UC123", Title: "three", PublishedAt: now})
	inserted, err = videos.InsertBatch(s.ctx, batch)
	s.NoError(err)
	s.Equal([]string{"v3"}, inserted)

	listed, err := videos.ListByChannel(s.ctx, "UC123")
	s.NoError(err)
	s.Len(listed, 3)
}

func (s *PostgresIntegrationSuite) TestChannelStore_DeleteCascadesVideos() {
	channels := NewChannelStore(s.db)
	videos := NewVideoStore(s.db)

	s.Require().NoError(channels.Create(s.ctx, &domain.Channel{
		ID:        "UC123",
		Title:     "Test Channel",
		UploadsID: "UU123",
	}))
	_, err := videos.InsertBatch(s.ctx, []domain.Video{
		{ID: "v1", ChannelID: "UC123", PublishedAt: time.Now().UTC()},
	})
	s.NoError(err)

	s.NoError(channels.Delete(s.ctx, "UC123"))

	_, err = videos.GetByID(s.ctx, "v1")
	s.True(domain.IsNotFound(err))

	err = channels.Delete(s.ctx, "UC123")
	s.True(domain.IsNotFound(err))
}

func (s *PostgresIntegrationSuite) TestCategoryStore_EnsureIdempotent() {
	categories := NewCategoryStore(s.db)
	feedID := s.createFeed("https://example.com/rss")

	first, err := categories.EnsureByName(s.ctx, "tech")
	s.NoError(err)
	second, err := categories.EnsureByName(s.ctx, "tech")
	s.NoError(err)
	s.Equal(first.ID, second.ID)

	s.NoError(categories.LinkFeed(s.ctx, feedID, first.ID))
	s.NoError(categories.LinkFeed(s.ctx, feedID, first.ID))

	listed, err := categories.ListByFeed(s.ctx, feedID)
	s.NoError(err)
	s.Len(listed, 1)
	s.Equal("tech", listed[0].Name)
}

func (s *PostgresIntegrationSuite) TestTransactionManager_RollsBackOnError() {
	feeds := NewFeedStore(s.db)
	txManager := NewTransactionManager(s.db)

	err := txManager.WithTransaction(s.ctx, func(txCtx context.Context) error {
		if _, err := feeds.Create(txCtx, &domain.Feed{Name: "doomed", URL: "https://doomed.example.com/rss"}); err != nil {
			return err
		}
		return context.Canceled
	})
	s.Error(err)

	feed, err := feeds.GetByURL(s.ctx, "https://doomed.example.com/rss")
	s.Nil(feed)
	s.True(domain.IsNotFound(err))
}
