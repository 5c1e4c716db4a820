package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"feedsync/internal/domain"
)

// CategoryStore manages labels and their feed/channel junctions. It is
// independent of the ingestion pipeline.
type CategoryStore struct {
	db *sqlx.DB
}

func NewCategoryStore(db *sqlx.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

// EnsureByName returns the category with the given name, creating it if
// absent. Safe under concurrent callers.
func (s *CategoryStore) EnsureByName(ctx context.Context, name string) (*domain.Category, error) {
	exec := GetExecutor(ctx, s.db)

	_, err := exec.ExecContext(ctx,
		`INSERT INTO categories (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		return nil, fmt.Errorf("insert category: %w", err)
	}

	var cat domain.Category
	err = exec.QueryRowxContext(ctx,
		`SELECT id, name FROM categories WHERE name = $1`, name,
	).Scan(&cat.ID, &cat.Name)
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

func (s *CategoryStore) LinkFeed(ctx context.Context, feedID, categoryID int64) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO feed_categories (feed_id, category_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		feedID, categoryID,
	)
	return err
}

func (s *CategoryStore) LinkChannel(ctx context.Context, channelID string, categoryID int64) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO channel_categories (channel_id, category_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		channelID, categoryID,
	)
	return err
}

func (s *CategoryStore) ListByFeed(ctx context.Context, feedID int64) ([]domain.Category, error) {
	var cats []domain.Category
	query := `
		SELECT c.id, c.name
		FROM categories c
		INNER JOIN feed_categories fc ON fc.category_id = c.id
		WHERE fc.feed_id = $1
		ORDER BY c.name`
	rows, err := GetExecutor(ctx, s.db).QueryContext(ctx, query, feedID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var cat domain.Category
		if err := rows.Scan(&cat.ID, &cat.Name); err != nil {
			return nil, err
		}
		cats = append(cats, cat)
	}
	return cats, rows.Err()
}
