package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

const articlesTable = "news_articles"

// Dialect names a supported relational backend.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

var articleColumns = []string{
	"id",
	"source_group",
	"source_message_id",
	"original_content",
	"processed_content",
	"is_approved",
	"is_posted",
	"rewrite_attempts",
	"created_at",
	"posted_at",
}

// SQLStore persists articles in the news_articles table of Postgres or SQLite.
type SQLStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	now     func() time.Time
}

var _ ports.ArticleStore = (*SQLStore)(nil)

// NewSQLStore wires a migrated sql.DB; placeholders follow the dialect.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	var format sq.PlaceholderFormat = sq.Question
	if dialect == DialectPostgres {
		format = sq.Dollar
	}

	return &SQLStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(format),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source used for created_at and posted_at.
func (s *SQLStore) WithClock(now func() time.Time) *SQLStore {
	s.now = now
	return s
}

// Create inserts a collected article and returns its id.
func (s *SQLStore) Create(ctx context.Context, source, original, sourceMessageID string) (int64, error) {
	query, args, err := s.builder.
		Insert(articlesTable).
		Columns("source_group", "source_message_id", "original_content", "created_at").
		Values(source, nullString(sourceMessageID), original, s.now()).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert article: %w", err)
	}

	return id, nil
}

// SetProcessedContent stores the rewritten text. Blank text is refused.
func (s *SQLStore) SetProcessedContent(ctx context.Context, id int64, text string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		return false, domain.ErrEmptyContent
	}
	return s.update(ctx, s.builder.Update(articlesTable).
		Set("processed_content", text).
		Where(sq.Eq{"id": id}))
}

// RecordRewriteFailure increments the failed-rewrite counter.
func (s *SQLStore) RecordRewriteFailure(ctx context.Context, id int64) (bool, error) {
	return s.update(ctx, s.builder.Update(articlesTable).
		Set("rewrite_attempts", sq.Expr("rewrite_attempts + 1")).
		Where(sq.Eq{"id": id}))
}

// Approve flags the article for publication; approving twice is a no-op.
func (s *SQLStore) Approve(ctx context.Context, id int64) (bool, error) {
	return s.update(ctx, s.builder.Update(articlesTable).
		Set("is_approved", true).
		Where(sq.Eq{"id": id}))
}

// MarkPosted flags an approved article as delivered. The first posted_at is kept.
func (s *SQLStore) MarkPosted(ctx context.Context, id int64) (bool, error) {
	ok, err := s.update(ctx, s.builder.Update(articlesTable).
		Set("is_posted", true).
		Set("posted_at", sq.Expr("COALESCE(posted_at, ?)", s.now())).
		Where(sq.Eq{"id": id, "is_approved": true}))
	if err != nil || ok {
		return ok, err
	}

	_, found, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if found {
		return false, domain.ErrNotApproved
	}
	return false, nil
}

// Get loads one article.
func (s *SQLStore) Get(ctx context.Context, id int64) (domain.Article, bool, error) {
	query, args, err := s.builder.
		Select(articleColumns...).
		From(articlesTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Article{}, false, fmt.Errorf("build select: %w", err)
	}

	article, err := scanArticle(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Article{}, false, nil
	}
	if err != nil {
		return domain.Article{}, false, fmt.Errorf("get article %d: %w", id, err)
	}

	return article, true, nil
}

// ListPending returns rewritten, unapproved articles newest first.
func (s *SQLStore) ListPending(ctx context.Context, limit int) ([]domain.Article, error) {
	return s.list(ctx, sq.And{
		sq.Eq{"is_approved": false},
		sq.NotEq{"processed_content": nil},
	}, "created_at DESC, id DESC", limit)
}

// ListApprovedUnposted returns the publication queue oldest first.
func (s *SQLStore) ListApprovedUnposted(ctx context.Context, limit int) ([]domain.Article, error) {
	return s.list(ctx, sq.Eq{"is_approved": true, "is_posted": false}, "created_at ASC, id ASC", limit)
}

// ListUnprocessed returns articles whose rewrite has not succeeded yet and may be retried.
func (s *SQLStore) ListUnprocessed(ctx context.Context, maxAttempts, limit int) ([]domain.Article, error) {
	return s.list(ctx, sq.And{
		sq.Eq{"processed_content": nil},
		sq.Lt{"rewrite_attempts": maxAttempts},
	}, "created_at ASC, id ASC", limit)
}

// AlreadyIngested returns the subset of message ids already stored for the source.
func (s *SQLStore) AlreadyIngested(ctx context.Context, source string, messageIDs []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(messageIDs) == 0 {
		return result, nil
	}

	query, args, err := s.builder.
		Select("source_message_id").
		From(articlesTable).
		Where(sq.Eq{"source_group": source, "source_message_id": messageIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ingested query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ingested: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan message id: %w", err)
		}
		result[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return result, nil
}

// Stats counts articles per workflow state.
func (s *SQLStore) Stats(ctx context.Context) (domain.Stats, error) {
	query, args, err := s.builder.
		Select(
			"COUNT(*)",
			"COALESCE(SUM(CASE WHEN is_approved = FALSE AND processed_content IS NOT NULL THEN 1 ELSE 0 END), 0)",
			"COALESCE(SUM(CASE WHEN is_approved = TRUE AND is_posted = FALSE THEN 1 ELSE 0 END), 0)",
			"COALESCE(SUM(CASE WHEN is_posted = TRUE THEN 1 ELSE 0 END), 0)",
		).
		From(articlesTable).
		ToSql()
	if err != nil {
		return domain.Stats{}, fmt.Errorf("build stats: %w", err)
	}

	var stats domain.Stats
	err = s.db.QueryRowContext(ctx, query, args...).
		Scan(&stats.Total, &stats.Pending, &stats.ApprovedUnposted, &stats.Posted)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("query stats: %w", err)
	}

	return stats, nil
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) update(ctx context.Context, stmt sq.UpdateBuilder) (bool, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update article: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return affected > 0, nil
}

func (s *SQLStore) list(ctx context.Context, where sq.Sqlizer, orderBy string, limit int) ([]domain.Article, error) {
	stmt := s.builder.
		Select(articleColumns...).
		From(articlesTable).
		Where(where).
		OrderBy(orderBy)
	if limit > 0 {
		stmt = stmt.Limit(uint64(limit))
	}

	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return articles, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (domain.Article, error) {
	var (
		article   domain.Article
		messageID sql.NullString
		processed sql.NullString
		createdAt dbTime
		postedAt  dbTime
	)

	err := row.Scan(
		&article.ID,
		&article.Source,
		&messageID,
		&article.OriginalContent,
		&processed,
		&article.IsApproved,
		&article.IsPosted,
		&article.RewriteAttempts,
		&createdAt,
		&postedAt,
	)
	if err != nil {
		return domain.Article{}, err
	}

	article.SourceMessageID = messageID.String
	if processed.Valid {
		text := processed.String
		article.ProcessedContent = &text
	}
	if createdAt.Valid {
		article.CreatedAt = createdAt.Time
	}
	if postedAt.Valid {
		t := postedAt.Time
		article.PostedAt = &t
	}

	return article, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
