// Package postgres provides the Postgres-backed persistence
// implementation of the store contracts.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/feedwise/feedwise/internal/config"
	"github.com/feedwise/feedwise/internal/feed"
	"github.com/feedwise/feedwise/internal/store"
)

// querier is the slice of pgxpool.Pool the store uses. pgxmock
// satisfies it, which keeps the queries testable without a database.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store implements store.Store on Postgres.
type Store struct {
	pool   querier
	logger *zap.Logger
}

// New connects a pool and pings it to verify the database is
// reachable.
func New(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewWithPool(pool, logger), nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(pool querier, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetProfile loads the user's identikit from the profiles table.
func (s *Store) GetProfile(ctx context.Context, userID string) (feed.Profile, error) {
	query := `SELECT identikit FROM profiles WHERE user_id = $1;`

	var raw []byte
	if err := s.pool.QueryRow(ctx, query, userID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return feed.Profile{}, store.ErrNotFound
		}
		return feed.Profile{}, fmt.Errorf("get profile: %w", err)
	}

	var profile feed.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return feed.Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return profile, nil
}

// PutProfile creates or replaces the user's identikit.
func (s *Store) PutProfile(ctx context.Context, userID string, profile feed.Profile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	query := `
		INSERT INTO profiles (user_id, identikit, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET identikit = EXCLUDED.identikit, updated_at = NOW();
	`
	if _, err := s.pool.Exec(ctx, query, userID, raw); err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	return nil
}

// FindFingerprints returns the subset of fingerprints already stored
// for the user.
func (s *Store) FindFingerprints(ctx context.Context, userID string, fingerprints []string) (map[string]struct{}, error) {
	known := make(map[string]struct{}, len(fingerprints))
	if len(fingerprints) == 0 {
		return known, nil
	}

	query := `SELECT url_hash FROM articles WHERE user_id = $1 AND url_hash = ANY($2);`
	rows, err := s.pool.Query(ctx, query, userID, fingerprints)
	if err != nil {
		return nil, fmt.Errorf("find fingerprints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		known[fp] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find fingerprints: %w", err)
	}
	return known, nil
}

const articleColumns = `id, user_id, url, url_hash, title, description, summary,
	personalized_content, raw_content, translated_title, tags,
	relevance_score, source, published_at, created_at, updated_at`

// UpsertArticle inserts the article, or refreshes the mutable fields
// when the (user, fingerprint) pair already exists.
func (s *Store) UpsertArticle(ctx context.Context, a store.Article) (store.Article, error) {
	query := `
		INSERT INTO articles (user_id, url, url_hash, title, description, summary,
			personalized_content, raw_content, translated_title, tags,
			relevance_score, source, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, url_hash) DO UPDATE
		SET summary = EXCLUDED.summary,
			personalized_content = EXCLUDED.personalized_content,
			raw_content = EXCLUDED.raw_content,
			translated_title = EXCLUDED.translated_title,
			tags = EXCLUDED.tags,
			relevance_score = EXCLUDED.relevance_score,
			updated_at = NOW()
		RETURNING ` + articleColumns + `;`

	row := s.pool.QueryRow(ctx, query,
		a.UserID, a.URL, a.Fingerprint, a.Title, a.Description, a.Summary,
		a.PersonalizedContent, a.RawContent, a.TranslatedTitle, a.Tags,
		a.RelevanceScore, a.Source, a.PublishedAt,
	)
	persisted, err := scanArticle(row)
	if err != nil {
		return store.Article{}, fmt.Errorf("upsert article: %w", err)
	}
	return persisted, nil
}

// ListTopArticles returns the user's best-scoring articles, newest
// first among equals.
func (s *Store) ListTopArticles(ctx context.Context, userID string, limit int) ([]store.Article, error) {
	query := `
		SELECT ` + articleColumns + `
		FROM articles
		WHERE user_id = $1
		ORDER BY relevance_score DESC, updated_at DESC
		LIMIT $2;`

	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var articles []store.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return articles, nil
}

// GetArticle loads one article by ID scoped to the user.
func (s *Store) GetArticle(ctx context.Context, userID, id string) (store.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE user_id = $1 AND id = $2;`

	a, err := scanArticle(s.pool.QueryRow(ctx, query, userID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Article{}, store.ErrNotFound
		}
		return store.Article{}, fmt.Errorf("get article: %w", err)
	}
	return a, nil
}

// DeleteArticle removes one article by ID scoped to the user.
func (s *Store) DeleteArticle(ctx context.Context, userID, id string) error {
	query := `DELETE FROM articles WHERE user_id = $1 AND id = $2;`

	tag, err := s.pool.Exec(ctx, query, userID, id)
	if err != nil {
		return fmt.Errorf("delete article: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanArticle(row pgx.Row) (store.Article, error) {
	var a store.Article
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.URL,
		&a.Fingerprint,
		&a.Title,
		&a.Description,
		&a.Summary,
		&a.PersonalizedContent,
		&a.RawContent,
		&a.TranslatedTitle,
		&a.Tags,
		&a.RelevanceScore,
		&a.Source,
		&a.PublishedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}
