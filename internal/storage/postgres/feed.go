package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"

	"feedsync/internal/domain"
)

type feedRow struct {
	ID          int64          `db:"id"`
	Name        string         `db:"name"`
	URL         string         `db:"url"`
	Link        sql.NullString `db:"link"`
	Author      sql.NullString `db:"author"`
	Description sql.NullString `db:"description"`
	ImageURL    sql.NullString `db:"image_url"`
	Category    sql.NullString `db:"category"`
	ETag        sql.NullString `db:"etag"`
	Modified    sql.NullString `db:"modified"`
	CreatedAt   sql.NullTime   `db:"created_at"`
	LastUpdated sql.NullTime   `db:"last_updated"`
}

func (r feedRow) toDomain() domain.Feed {
	f := domain.Feed{
		ID:          r.ID,
		Name:        r.Name,
		URL:         r.URL,
		Link:        fromNullString(r.Link),
		Author:      fromNullString(r.Author),
		Description: fromNullString(r.Description),
		ImageURL:    fromNullString(r.ImageURL),
		Category:    fromNullString(r.Category),
		ETag:        fromNullString(r.ETag),
		Modified:    fromNullString(r.Modified),
	}
	if r.CreatedAt.Valid {
		f.CreatedAt = r.CreatedAt.Time
	}
	if r.LastUpdated.Valid {
		f.LastUpdated = r.LastUpdated.Time
	}
	return f
}

const feedColumns = `id, name, url, link, author, description, image_url, category, etag, modified, created_at, last_updated`

type FeedStore struct {
	db *sqlx.DB
}

func NewFeedStore(db *sqlx.DB) *FeedStore {
	return &FeedStore{db: db}
}

func (s *FeedStore) Create(ctx context.Context, feed *domain.Feed) (int64, error) {
	query := `
		INSERT INTO feeds (name, url, link, author, description, image_url, category, etag, modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		feed.Name,
		feed.URL,
		feed.Link,
		feed.Author,
		feed.Description,
		feed.ImageURL,
		feed.Category,
		feed.ETag,
		feed.Modified,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert feed: %w", err)
	}
	return id, nil
}

func (s *FeedStore) GetByURL(ctx context.Context, url string) (*domain.Feed, error) {
	var row feedRow
	query := `SELECT ` + feedColumns + ` FROM feeds WHERE url = $1`
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "feed", Key: url}
	}
	if err != nil {
		return nil, err
	}
	feed := row.toDomain()
	return &feed, nil
}

func (s *FeedStore) GetByID(ctx context.Context, id int64) (*domain.Feed, error) {
	var row feedRow
	query := `SELECT ` + feedColumns + ` FROM feeds WHERE id = $1`
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "feed", Key: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return nil, err
	}
	feed := row.toDomain()
	return &feed, nil
}

func (s *FeedStore) List(ctx context.Context) ([]domain.Feed, error) {
	var rows []feedRow
	query := `SELECT ` + feedColumns + ` FROM feeds ORDER BY id`
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query); err != nil {
		return nil, err
	}
	feeds := make([]domain.Feed, 0, len(rows))
	for _, row := range rows {
		feeds = append(feeds, row.toDomain())
	}
	return feeds, nil
}

func (s *FeedStore) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &exists,
		`SELECT EXISTS (SELECT 1 FROM feeds WHERE id = $1)`, id)
	return exists, err
}

// UpdateValidators persists fresh conditional-fetch validators and bumps
// last_updated. Only called after a fetch that returned fresh data.
func (s *FeedStore) UpdateValidators(ctx context.Context, id int64, etag, modified *string) error {
	result, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`UPDATE feeds SET etag = $2, modified = $3, last_updated = now() WHERE id = $1`,
		id, etag, modified,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &domain.NotFoundError{Kind: "feed", Key: strconv.FormatInt(id, 10)}
	}
	return nil
}

// Delete removes the feed, its memberships, and any articles left with
// zero remaining memberships. Articles still linked to another feed are
// kept. Runs as a single transaction when called through the manager.
func (s *FeedStore) Delete(ctx context.Context, id int64) error {
	exec := GetExecutor(ctx, s.db)

	result, err := exec.ExecContext(ctx, `DELETE FROM feeds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &domain.NotFoundError{Kind: "feed", Key: strconv.FormatInt(id, 10)}
	}

	// Membership rows cascade with the feed; what remains is orphaned
	// articles that no other feed links to.
	_, err = exec.ExecContext(ctx, `
		DELETE FROM articles a
		WHERE NOT EXISTS (
			SELECT 1 FROM feed_articles fa WHERE fa.article_id = a.id
		)`)
	if err != nil {
		return fmt.Errorf("delete orphaned articles: %w", err)
	}
	return nil
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
