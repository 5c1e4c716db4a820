package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"feedsync/internal/domain"
)

type articleRow struct {
	ID          int64          `db:"id"`
	Title       string         `db:"title"`
	Link        string         `db:"link"`
	PublishedAt time.Time      `db:"published_at"`
	UpdatedAt   sql.NullTime   `db:"updated_at"`
	Author      sql.NullString `db:"author"`
	Summary     sql.NullString `db:"summary"`
	Content     sql.NullString `db:"content"`
	ImageURL    sql.NullString `db:"image_url"`
	Categories  pq.StringArray `db:"categories"`
	IsFavorited bool           `db:"is_favorited"`
	IsRead      bool           `db:"is_read"`
	CreatedAt   time.Time      `db:"created_at"`
	LastUpdated time.Time      `db:"last_updated"`
}

func (r articleRow) toDomain() domain.Article {
	a := domain.Article{
		ID:          r.ID,
		Title:       r.Title,
		Link:        r.Link,
		PublishedAt: r.PublishedAt,
		Author:      fromNullString(r.Author),
		Summary:     fromNullString(r.Summary),
		Content:     fromNullString(r.Content),
		ImageURL:    fromNullString(r.ImageURL),
		Categories:  r.Categories,
		IsFavorited: r.IsFavorited,
		IsRead:      r.IsRead,
		CreatedAt:   r.CreatedAt,
		LastUpdated: r.LastUpdated,
	}
	if r.UpdatedAt.Valid {
		t := r.UpdatedAt.Time
		a.UpdatedAt = &t
	}
	return a
}

const articleColumns = `id, title, link, published_at, updated_at, author, summary, content, image_url, categories, is_favorited, is_read, created_at, last_updated`

type ArticleStore struct {
	db *sqlx.DB
}

func NewArticleStore(db *sqlx.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

// ExistingLinks reports which of the given links already have a row.
// Call it inside the same transaction as UpsertBatch so the
// new-vs-existing classification is consistent with the write.
func (s *ArticleStore) ExistingLinks(ctx context.Context, links []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(links) == 0 {
		return existing, nil
	}

	rows, err := GetExecutor(ctx, s.db).QueryContext(ctx,
		`SELECT link FROM articles WHERE link = ANY($1)`, pq.Array(links))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, err
		}
		existing[link] = struct{}{}
	}
	return existing, rows.Err()
}

// UpsertBatch inserts the articles, updating the mutable descriptive
// fields on link conflict. published_at is immutable once recorded and
// the user flags are never touched. An existing row whose updated_at is
// strictly newer than the candidate's is left as is. Returns link to
// row ID for every article in the batch.
func (s *ArticleStore) UpsertBatch(ctx context.Context, articles []domain.Article) (map[string]int64, error) {
	linkToID := make(map[string]int64, len(articles))
	if len(articles) == 0 {
		return linkToID, nil
	}

	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO articles (title, link, published_at, updated_at, author, summary, content, image_url, categories)
		VALUES `)
	args := make([]interface{}, 0, len(articles)*9)
	for i, a := range articles {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 9
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9)
		args = append(args,
			a.Title, a.Link, a.PublishedAt, a.UpdatedAt,
			a.Author, a.Summary, a.Content, a.ImageURL, pq.Array(a.Categories),
		)
	}
	sb.WriteString(`
		ON CONFLICT (link) DO UPDATE SET
			title = EXCLUDED.title,
			updated_at = EXCLUDED.updated_at,
			author = EXCLUDED.author,
			summary = EXCLUDED.summary,
			content = EXCLUDED.content,
			image_url = EXCLUDED.image_url,
			categories = EXCLUDED.categories,
			last_updated = now()
		WHERE articles.updated_at IS NULL
			OR EXCLUDED.updated_at IS NULL
			OR articles.updated_at <= EXCLUDED.updated_at
		RETURNING id, link`)

	rows, err := GetExecutor(ctx, s.db).QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("upsert articles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var link string
		if err := rows.Scan(&id, &link); err != nil {
			return nil, err
		}
		linkToID[link] = id
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rows skipped by the staleness guard are not returned; resolve
	// their IDs so membership linking still covers the whole batch.
	var missing []string
	for _, a := range articles {
		if _, ok := linkToID[a.Link]; !ok {
			missing = append(missing, a.Link)
		}
	}
	if len(missing) > 0 {
		rows, err := GetExecutor(ctx, s.db).QueryContext(ctx,
			`SELECT id, link FROM articles WHERE link = ANY($1)`, pq.Array(missing))
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			var link string
			if err := rows.Scan(&id, &link); err != nil {
				return nil, err
			}
			linkToID[link] = id
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	return linkToID, nil
}

// LinkToFeed asserts (feed, article) memberships with conflict-do-nothing
// semantics and returns how many rows were actually inserted.
// Re-asserting an existing pair is a no-op, never an error.
func (s *ArticleStore) LinkToFeed(ctx context.Context, feedID int64, articleIDs []int64) (int, error) {
	if len(articleIDs) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO feed_articles (feed_id, article_id) VALUES `)
	args := make([]interface{}, 0, len(articleIDs)+1)
	args = append(args, feedID)
	for i, id := range articleIDs {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($1, $%d)", i+2)
		args = append(args, id)
	}
	sb.WriteString(` ON CONFLICT DO NOTHING RETURNING article_id`)

	rows, err := GetExecutor(ctx, s.db).QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("link articles to feed: %w", err)
	}
	defer rows.Close()

	inserted := 0
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		inserted++
	}
	return inserted, rows.Err()
}

func (s *ArticleStore) GetByLink(ctx context.Context, link string) (*domain.Article, error) {
	var row articleRow
	query := `SELECT ` + articleColumns + ` FROM articles WHERE link = $1`
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, link)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "article", Key: link}
	}
	if err != nil {
		return nil, err
	}
	article := row.toDomain()
	return &article, nil
}

// ListByFeed is the items-by-source direction of the junction.
func (s *ArticleStore) ListByFeed(ctx context.Context, feedID int64) ([]domain.Article, error) {
	var rows []articleRow
	query := `
		SELECT ` + prefixedArticleColumns("a") + `
		FROM articles a
		INNER JOIN feed_articles fa ON fa.article_id = a.id
		WHERE fa.feed_id = $1
		ORDER BY a.published_at DESC`
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, feedID); err != nil {
		return nil, err
	}
	articles := make([]domain.Article, 0, len(rows))
	for _, row := range rows {
		articles = append(articles, row.toDomain())
	}
	return articles, nil
}

// FeedIDsByArticle is the sources-by-item direction of the junction.
func (s *ArticleStore) FeedIDsByArticle(ctx context.Context, articleID int64) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &ids,
		`SELECT feed_id FROM feed_articles WHERE article_id = $1 ORDER BY feed_id`, articleID)
	return ids, err
}

// UpdateFlags applies a targeted write of the user-set flags. Fields
// left nil are untouched.
func (s *ArticleStore) UpdateFlags(ctx context.Context, id int64, flags domain.ArticleFlags) error {
	sets := make([]string, 0, 2)
	args := make([]interface{}, 0, 3)
	args = append(args, id)
	if flags.IsFavorited != nil {
		args = append(args, *flags.IsFavorited)
		sets = append(sets, fmt.Sprintf("is_favorited = $%d", len(args)))
	}
	if flags.IsRead != nil {
		args = append(args, *flags.IsRead)
		sets = append(sets, fmt.Sprintf("is_read = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf(`UPDATE articles SET %s WHERE id = $1`, strings.Join(sets, ", "))
	result, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &domain.NotFoundError{Kind: "article", Key: fmt.Sprintf("%d", id)}
	}
	return nil
}

func prefixedArticleColumns(alias string) string {
	cols := strings.Split(articleColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}
