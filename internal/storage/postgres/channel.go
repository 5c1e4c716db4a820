package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"feedsync/internal/domain"
)

type channelRow struct {
	ID           string         `db:"id"`
	Title        string         `db:"title"`
	Description  sql.NullString `db:"description"`
	UploadsID    string         `db:"uploads_id"`
	ThumbnailURL sql.NullString `db:"thumbnail_url"`
	Category     sql.NullString `db:"category"`
	IsFavorited  bool           `db:"is_favorited"`
	CreatedAt    time.Time      `db:"created_at"`
	LastUpdated  time.Time      `db:"last_updated"`
}

func (r channelRow) toDomain() domain.Channel {
	return domain.Channel{
		ID:           r.ID,
		Title:        r.Title,
		Description:  fromNullString(r.Description),
		UploadsID:    r.UploadsID,
		ThumbnailURL: fromNullString(r.ThumbnailURL),
		Category:     fromNullString(r.Category),
		IsFavorited:  r.IsFavorited,
		CreatedAt:    r.CreatedAt,
		LastUpdated:  r.LastUpdated,
	}
}

const channelColumns = `id, title, description, uploads_id, thumbnail_url, category, is_favorited, created_at, last_updated`

type ChannelStore struct {
	db *sqlx.DB
}

func NewChannelStore(db *sqlx.DB) *ChannelStore {
	return &ChannelStore{db: db}
}

func (s *ChannelStore) Create(ctx context.Context, ch *domain.Channel) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO channels (id, title, description, uploads_id, thumbnail_url, category)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ch.ID, ch.Title, ch.Description, ch.UploadsID, ch.ThumbnailURL, ch.Category,
	)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

func (s *ChannelStore) GetByID(ctx context.Context, id string) (*domain.Channel, error) {
	var row channelRow
	query := `SELECT ` + channelColumns + ` FROM channels WHERE id = $1`
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "channel", Key: id}
	}
	if err != nil {
		return nil, err
	}
	ch := row.toDomain()
	return &ch, nil
}

func (s *ChannelStore) List(ctx context.Context) ([]domain.Channel, error) {
	var rows []channelRow
	query := `SELECT ` + channelColumns + ` FROM channels ORDER BY id`
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query); err != nil {
		return nil, err
	}
	channels := make([]domain.Channel, 0, len(rows))
	for _, row := range rows {
		channels = append(channels, row.toDomain())
	}
	return channels, nil
}

// Delete removes the channel; its videos cascade at the schema level.
func (s *ChannelStore) Delete(ctx context.Context, id string) error {
	result, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &domain.NotFoundError{Kind: "channel", Key: id}
	}
	return nil
}
