package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/deusflow/technews/internal/news"
)

// PostgresStore keeps articles in PostgreSQL.
type PostgresStore struct {
	db  *sql.DB
	log *slog.Logger
}

var (
	_ Store         = (*PostgresStore)(nil)
	_ StatsReporter = (*PostgresStore)(nil)
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Body is deliberately absent from list projections.
var listColumns = []string{
	"id", "title", "summary", "category", "companies", "source", "source_url", "image_url",
	"published_at", "created_at", "translated_title", "translated_summary", "translation_lang",
}

const schema = `
CREATE TABLE IF NOT EXISTS articles (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT '',
	category VARCHAR(32) NOT NULL,
	companies TEXT[] NOT NULL DEFAULT '{}',
	source VARCHAR(200) NOT NULL DEFAULT '',
	source_url TEXT UNIQUE NOT NULL,
	image_url TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	translated_title TEXT NOT NULL DEFAULT '',
	translated_summary TEXT NOT NULL DEFAULT '',
	translation_lang VARCHAR(16) NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at DESC);
CREATE INDEX IF NOT EXISTS idx_articles_category ON articles(category);

CREATE TABLE IF NOT EXISTS ai_cache (
	cache_key VARCHAR(128) PRIMARY KEY,
	value TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	use_count INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_ai_cache_expires_at ON ai_cache(expires_at);
`

// NewPostgresStore connects, pings and creates the schema.
func NewPostgresStore(ctx context.Context, dsn string, log *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &PostgresStore{db: db, log: log}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	log.Info("postgres store ready")
	return s, nil
}

func buildQuery(f Filter, limit int) (string, []any, error) {
	q := psql.Select(listColumns...).
		From("articles").
		OrderBy("published_at DESC", "source_url ASC").
		Limit(uint64(limit + 1))
	if len(f.Categories) > 0 {
		q = q.Where(sq.Eq{"category": storedCategoryNames(f.Categories)})
	}
	if !f.PublishedAfter.IsZero() {
		q = q.Where(sq.GtOrEq{"published_at": f.PublishedAfter})
	}
	switch {
	case f.Cursor.IsZero():
	case f.CursorURL == "":
		q = q.Where(sq.Lt{"published_at": f.Cursor})
	default:
		q = q.Where(sq.Or{
			sq.Lt{"published_at": f.Cursor},
			sq.And{sq.Eq{"published_at": f.Cursor}, sq.Gt{"source_url": f.CursorURL}},
		})
	}
	return q.ToSql()
}

func (s *PostgresStore) Query(ctx context.Context, f Filter, limit int) (Page, error) {
	limit = clampLimit(limit)
	query, args, err := buildQuery(f, limit)
	if err != nil {
		return Page{}, fmt.Errorf("build query: %w", err)
	}
	items, err := s.queryArticles(ctx, query, args...)
	if err != nil {
		return Page{}, err
	}
	return finishPage(items, limit), nil
}

func (s *PostgresStore) queryArticles(ctx context.Context, query string, args ...any) ([]news.Article, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var items []news.Article
	for rows.Next() {
		var (
			a         news.Article
			category  string
			companies pq.StringArray
		)
		if err := rows.Scan(
			&a.ID, &a.Title, &a.Summary, &category, &companies, &a.Source, &a.SourceURL, &a.ImageURL,
			&a.PublishedAt, &a.CreatedAt, &a.TranslatedTitle, &a.TranslatedSummary, &a.TranslationLang,
		); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		a.Category = canonical(category)
		a.Companies = []string(companies)
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return items, nil
}

func buildInsert(articles []news.Article, now time.Time) (string, []any, error) {
	q := psql.Insert("articles").Columns(
		"id", "title", "summary", "body", "category", "companies", "source", "source_url",
		"image_url", "published_at", "created_at",
	)
	for _, a := range articles {
		id := a.ID
		if id == "" {
			id = uuid.NewString()
		}
		created := a.CreatedAt
		if created.IsZero() {
			created = now
		}
		companies := a.Companies
		if companies == nil {
			companies = []string{}
		}
		q = q.Values(id, a.Title, a.Summary, a.Body, string(a.Category), pq.StringArray(companies),
			a.Source, a.SourceURL, a.ImageURL, a.PublishedAt, created)
	}
	return q.Suffix("ON CONFLICT (source_url) DO NOTHING RETURNING source_url").ToSql()
}

func (s *PostgresStore) UpsertBatch(ctx context.Context, articles []news.Article) ([]string, error) {
	var valid []news.Article
	for _, a := range articles {
		if a.SourceURL != "" {
			valid = append(valid, a)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}
	query, args, err := buildInsert(valid, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert articles: %w", err)
	}
	defer rows.Close()

	var inserted []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan inserted url: %w", err)
		}
		inserted = append(inserted, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) ExistsByURLs(ctx context.Context, urls []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if len(urls) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_url FROM articles WHERE source_url = ANY($1)`, pq.StringArray(urls))
	if err != nil {
		return nil, fmt.Errorf("query existing urls: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		out[u] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func buildEnrichment(sourceURL string, e Enrichment) (string, []any, bool, error) {
	u := psql.Update("articles").Where(sq.Eq{"source_url": sourceURL})
	changed := false
	if e.TranslatedTitle != "" {
		u = u.Set("translated_title", e.TranslatedTitle)
		changed = true
	}
	if e.TranslatedSummary != "" {
		u = u.Set("translated_summary", e.TranslatedSummary)
		changed = true
	}
	if e.TranslationLang != "" {
		u = u.Set("translation_lang", e.TranslationLang)
		changed = true
	}
	if len(e.Companies) > 0 {
		u = u.Set("companies", sq.Expr(
			"CASE WHEN cardinality(companies) = 0 THEN ? ELSE companies END", pq.StringArray(e.Companies)))
		changed = true
	}
	query, args, err := u.ToSql()
	return query, args, changed, err
}

func (s *PostgresStore) ApplyEnrichment(ctx context.Context, sourceURL string, e Enrichment) error {
	query, args, changed, err := buildEnrichment(sourceURL, e)
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if !changed {
		return nil
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update article: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MissingCompanies(ctx context.Context, limit int) ([]news.Article, error) {
	query, args, err := psql.Select(listColumns...).
		From("articles").
		Where("cardinality(companies) = 0").
		OrderBy("published_at DESC").
		Limit(uint64(clampLimit(limit))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return s.queryArticles(ctx, query, args...)
}

// Stats returns the article count per canonical category.
func (s *PostgresStore) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM articles GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := map[string]int{}
	total := 0
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats["category_"+string(canonical(category))] += count
		total += count
	}
	stats["total_articles"] = total
	return stats, rows.Err()
}

// KV exposes the ai_cache table as a key-value cache backend.
func (s *PostgresStore) KV() *PostgresKV {
	return &PostgresKV{db: s.db}
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// PostgresKV is a TTL key-value table used to cache AI responses.
type PostgresKV struct {
	db *sql.DB
}

func (kv *PostgresKV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := kv.db.QueryRowContext(ctx,
		`UPDATE ai_cache SET use_count = use_count + 1
		 WHERE cache_key = $1 AND expires_at > NOW()
		 RETURNING value`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get cache entry: %w", err)
	}
	return value, true, nil
}

func (kv *PostgresKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := kv.db.ExecContext(ctx, `
		INSERT INTO ai_cache (cache_key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (cache_key) DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at`,
		key, value, time.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("set cache entry: %w", err)
	}
	return nil
}

// Cleanup removes expired cache rows.
func (kv *PostgresKV) Cleanup(ctx context.Context) (int64, error) {
	res, err := kv.db.ExecContext(ctx, `DELETE FROM ai_cache WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("cleanup cache: %w", err)
	}
	return res.RowsAffected()
}
