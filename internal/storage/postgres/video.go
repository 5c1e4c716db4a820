package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"feedsync/internal/domain"
)

type videoRow struct {
	ID           string         `db:"id"`
	ChannelID    string         `db:"channel_id"`
	Title        string         `db:"title"`
	Description  sql.NullString `db:"description"`
	ThumbnailURL sql.NullString `db:"thumbnail_url"`
	PublishedAt  time.Time      `db:"published_at"`
	IsFavorited  bool           `db:"is_favorited"`
	CreatedAt    time.Time      `db:"created_at"`
	LastUpdated  time.Time      `db:"last_updated"`
}

func (r videoRow) toDomain() domain.Video {
	return domain.Video{
		ID:           r.ID,
		ChannelID:    r.ChannelID,
		Title:        r.Title,
		Description:  fromNullString(r.Description),
		ThumbnailURL: fromNullString(r.ThumbnailURL),
		PublishedAt:  r.PublishedAt,
		IsFavorited:  r.IsFavorited,
		CreatedAt:    r.CreatedAt,
		LastUpdated:  r.LastUpdated,
	}
}

const videoColumns = `id, channel_id, title, description, thumbnail_url, published_at, is_favorited, created_at, last_updated`

type VideoStore struct {
	db *sqlx.DB
}

func NewVideoStore(db *sqlx.DB) *VideoStore {
	return &VideoStore{db: db}
}

// InsertBatch inserts videos with conflict-skip semantics on the video
// ID: listing entries are append-only once created. Returns the IDs of
// the rows actually inserted, so re-importing reports none.
func (s *VideoStore) InsertBatch(ctx context.Context, videos []domain.Video) ([]string, error) {
	if len(videos) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO videos (id, channel_id, title, description, thumbnail_url, published_at)
		VALUES `)
	args := make([]interface{}, 0, len(videos)*6)
	for i, v := range videos {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 6
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6)
		args = append(args, v.ID, v.ChannelID, v.Title, v.Description, v.ThumbnailURL, v.PublishedAt)
	}
	sb.WriteString(` ON CONFLICT (id) DO NOTHING RETURNING id`)

	rows, err := GetExecutor(ctx, s.db).QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("insert videos: %w", err)
	}
	defer rows.Close()

	var inserted []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		inserted = append(inserted, id)
	}
	return inserted, rows.Err()
}

func (s *VideoStore) GetByID(ctx context.Context, id string) (*domain.Video, error) {
	var row videoRow
	query := `SELECT ` + videoColumns + ` FROM videos WHERE id = $1`
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "video", Key: id}
	}
	if err != nil {
		return nil, err
	}
	video := row.toDomain()
	return &video, nil
}

// ListByChannel is the items-by-source lookup for the video side.
func (s *VideoStore) ListByChannel(ctx context.Context, channelID string) ([]domain.Video, error) {
	var rows []videoRow
	query := `SELECT ` + videoColumns + ` FROM videos WHERE channel_id = $1 ORDER BY published_at DESC`
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, channelID); err != nil {
		return nil, err
	}
	videos := make([]domain.Video, 0, len(rows))
	for _, row := range rows {
		videos = append(videos, row.toDomain())
	}
	return videos, nil
}
