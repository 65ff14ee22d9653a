// Package store defines the persistence contracts for user profiles
// and enriched articles. Implementations live in subpackages so the
// pipeline depends only on these interfaces.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/feedwise/feedwise/internal/feed"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Article is the persisted unit produced by enrichment. A user owns at
// most one row per fingerprint; re-processing the same URL updates the
// row in place.
type Article struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"userId"`
	URL                 string     `json:"url"`
	Fingerprint         string     `json:"urlHash"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	Summary             string     `json:"summary"`
	PersonalizedContent *string    `json:"personalizedContent"`
	RawContent          *string    `json:"rawContent"`
	TranslatedTitle     string     `json:"translatedTitle"`
	Tags                []string   `json:"tags"`
	RelevanceScore      int        `json:"relevanceScore"`
	Source              string     `json:"source"`
	PublishedAt         *time.Time `json:"publishedAt"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// ProfileStore reads and writes per-user identikits.
type ProfileStore interface {
	// GetProfile returns the user's profile or ErrNotFound.
	GetProfile(ctx context.Context, userID string) (feed.Profile, error)

	// PutProfile creates or replaces the user's profile.
	PutProfile(ctx context.Context, userID string, profile feed.Profile) error
}

// ArticleStore persists enriched articles keyed by (user, fingerprint).
type ArticleStore interface {
	// FindFingerprints returns the subset of fingerprints already
	// persisted for the user.
	FindFingerprints(ctx context.Context, userID string, fingerprints []string) (map[string]struct{}, error)

	// UpsertArticle inserts the article or, when the (user,
	// fingerprint) pair exists, updates its score/summary/content
	// fields in place. The persisted row is returned either way.
	UpsertArticle(ctx context.Context, article Article) (Article, error)

	// ListTopArticles returns up to limit articles for the user,
	// ordered by relevance score descending.
	ListTopArticles(ctx context.Context, userID string, limit int) ([]Article, error)

	// GetArticle returns one article by ID scoped to the user, or
	// ErrNotFound.
	GetArticle(ctx context.Context, userID, id string) (Article, error)

	// DeleteArticle removes one article by ID scoped to the user.
	// Deleting an absent article returns ErrNotFound.
	DeleteArticle(ctx context.Context, userID, id string) error
}

// Store is the full persistence surface used by the service.
type Store interface {
	ProfileStore
	ArticleStore

	// Close releases the underlying connection pool.
	Close()
}
