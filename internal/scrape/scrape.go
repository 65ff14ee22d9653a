// Package scrape implements the client for the external
// content-extraction service that turns an article URL into its main
// text content.
package scrape

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/feedwise/feedwise/internal/config"
	"github.com/feedwise/feedwise/internal/extcall"
)

// Client talks to a Firecrawl-compatible scrape endpoint.
type Client struct {
	cfg        config.ScraperConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// New builds a Client. A nil httpClient falls back to
// http.DefaultClient.
func New(cfg config.ScraperConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, httpClient: httpClient, logger: logger}
}

type scrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

type scrapeResponse struct {
	Data struct {
		Markdown string `json:"markdown"`
	} `json:"data"`
}

// Extract fetches the main content of the article as markdown,
// truncated to the configured maximum length. Errors are returned for
// the caller to decide; enrichment maps them to empty content.
func (c *Client) Extract(ctx context.Context, articleURL string) (string, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/scrape"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	payload := scrapeRequest{
		URL:             articleURL,
		Formats:         []string{"markdown"},
		OnlyMainContent: true,
	}

	body, err := extcall.PostJSON(ctx, c.httpClient, endpoint, payload, headers, c.cfg.Timeout())
	if err != nil {
		return "", fmt.Errorf("scrape call: %w", err)
	}

	var resp scrapeResponse
	if err := extcall.DecodeJSON(body, &resp); err != nil {
		return "", fmt.Errorf("scrape response: %w", err)
	}

	content := resp.Data.Markdown
	if c.cfg.MaxContentLen > 0 {
		// Truncate on rune boundaries; markdown is arbitrary UTF-8.
		if runes := []rune(content); len(runes) > c.cfg.MaxContentLen {
			content = string(runes[:c.cfg.MaxContentLen])
		}
	}
	return content, nil
}
