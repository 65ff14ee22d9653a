package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/feedwise/feedwise/internal/config"
	"github.com/feedwise/feedwise/internal/extcall"
	"github.com/feedwise/feedwise/internal/feed"
)

const queryTermsPerField = 4

// NewsAPISource discovers candidates through a search-API "everything"
// endpoint, querying the top few profile terms over a recent window.
type NewsAPISource struct {
	cfg    config.NewsAPIConfig
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewNewsAPISource builds the source. A nil client falls back to
// http.DefaultClient.
func NewNewsAPISource(cfg config.NewsAPIConfig, client *http.Client, logger *zap.Logger) *NewsAPISource {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NewsAPISource{cfg: cfg, client: client, logger: logger, now: time.Now}
}

// Name identifies the source in logs and origin tags.
func (s *NewsAPISource) Name() string { return string(feed.SourceNewsAPI) }

type newsAPIResponse struct {
	Articles []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		Description string `json:"description"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// Discover queries the search API with a profile-derived query. An
// unset API key or an empty profile yields zero candidates without
// error.
func (s *NewsAPISource) Discover(ctx context.Context, profile feed.Profile) ([]feed.Candidate, error) {
	if s.cfg.APIKey == "" {
		s.logger.Debug("newsapi key not set, skipping source")
		return nil, nil
	}
	query := buildQuery(profile)
	if query == "" {
		return nil, nil
	}

	from := s.now().Add(-time.Duration(s.cfg.WindowHours) * time.Hour).Format("2006-01-02")
	endpoint := fmt.Sprintf(
		"%s/v2/everything?q=%s&language=en&sortBy=publishedAt&pageSize=%d&from=%s",
		strings.TrimRight(s.cfg.BaseURL, "/"),
		url.QueryEscape(query),
		s.cfg.PageSize,
		from,
	)

	body, err := extcall.Get(ctx, s.client, endpoint, map[string]string{"X-Api-Key": s.cfg.APIKey}, s.cfg.Timeout())
	if err != nil {
		return nil, fmt.Errorf("newsapi query: %w", err)
	}

	var resp newsAPIResponse
	if err := extcall.DecodeJSON(body, &resp); err != nil {
		return nil, fmt.Errorf("newsapi response: %w", err)
	}

	candidates := make([]feed.Candidate, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		if a.URL == "" || a.Title == "" || a.Title == "[Removed]" || strings.Contains(a.URL, "[Removed]") {
			continue
		}
		candidates = append(candidates, feed.Candidate{
			URL:         a.URL,
			Title:       a.Title,
			Description: truncate(a.Description, maxDescriptionLen),
			Source:      s.Name(),
			PublishedAt: parseTimestamp(a.PublishedAt),
		})
	}
	s.logger.Debug("newsapi discovery complete",
		zap.String("query", query),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// buildQuery ORs together the top skills and interests.
func buildQuery(profile feed.Profile) string {
	var parts []string
	if terms := topTerms(profile.Skills, queryTermsPerField); terms != "" {
		parts = append(parts, terms)
	}
	if terms := topTerms(profile.Interests, queryTermsPerField); terms != "" {
		parts = append(parts, terms)
	}
	return strings.Join(parts, " OR ")
}

func topTerms(terms []string, n int) string {
	if len(terms) > n {
		terms = terms[:n]
	}
	var kept []string
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, " OR ")
}

func parseTimestamp(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, time.RFC1123Z, time.RFC1123} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}
	return nil
}
