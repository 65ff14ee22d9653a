package discovery

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/feedwise/feedwise/internal/config"
	"github.com/feedwise/feedwise/internal/extcall"
	"github.com/feedwise/feedwise/internal/feed"
)

const maxDescriptionLen = 300

// RSSSource discovers candidates from syndication feeds selected from
// the static catalog by profile keywords.
type RSSSource struct {
	cfg    config.FeedsConfig
	client *http.Client
	logger *zap.Logger
}

// NewRSSSource builds the source. A nil client falls back to
// http.DefaultClient.
func NewRSSSource(cfg config.FeedsConfig, client *http.Client, logger *zap.Logger) *RSSSource {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RSSSource{cfg: cfg, client: client, logger: logger}
}

// Name identifies the source in logs.
func (s *RSSSource) Name() string { return string(feed.SourceRSS) }

// Discover fetches every selected feed concurrently and merges their
// items in feed-selection order. A feed that fails to fetch or parse
// contributes zero candidates and never fails the call.
func (s *RSSSource) Discover(ctx context.Context, profile feed.Profile) ([]feed.Candidate, error) {
	feedURLs := PickFeeds(profile.Interests, profile.Skills, profile.Role, s.cfg.MaxFeeds)
	s.logger.Debug("feeds selected", zap.Int("count", len(feedURLs)))

	perFeed := make([][]feed.Candidate, len(feedURLs))
	var wg sync.WaitGroup
	for i, feedURL := range feedURLs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, err := s.fetchFeed(ctx, feedURL)
			if err != nil {
				s.logger.Warn("feed fetch failed", zap.String("feed", feedURL), zap.Error(err))
				return
			}
			perFeed[i] = items
		}()
	}
	wg.Wait()

	var candidates []feed.Candidate
	for _, items := range perFeed {
		candidates = append(candidates, items...)
	}
	return candidates, nil
}

func (s *RSSSource) fetchFeed(ctx context.Context, feedURL string) ([]feed.Candidate, error) {
	body, err := extcall.Get(ctx, s.client, feedURL, nil, s.cfg.Timeout())
	if err != nil {
		return nil, err
	}
	return parseFeed(body, feedHost(feedURL), s.cfg.ItemsPerFeed)
}

// parseFeed extracts item/entry blocks from an RSS or Atom document.
// Items without a link or title are skipped.
func parseFeed(body []byte, sourceName string, maxItems int) ([]feed.Candidate, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed body: %w", err)
	}

	nodes := xmlquery.Find(doc, "//item")
	if len(nodes) == 0 {
		nodes = xmlquery.Find(doc, "//entry")
	}
	if len(nodes) > maxItems {
		nodes = nodes[:maxItems]
	}

	var items []feed.Candidate
	for _, node := range nodes {
		link := itemLink(node)
		title := strings.TrimSpace(elementText(node, "title"))
		if link == "" || title == "" {
			continue
		}
		desc := elementText(node, "description")
		if desc == "" {
			desc = elementText(node, "summary")
		}
		items = append(items, feed.Candidate{
			URL:         link,
			Title:       title,
			Description: truncate(stripHTML(desc), maxDescriptionLen),
			Source:      sourceName,
			PublishedAt: itemTimestamp(node),
		})
	}
	return items, nil
}

// itemLink resolves the article URL across RSS (<link>text</link>,
// <guid> fallback) and Atom (<link href="...">) conventions.
func itemLink(node *xmlquery.Node) string {
	if link := node.SelectElement("link"); link != nil {
		if href := link.SelectAttr("href"); href != "" {
			return strings.TrimSpace(href)
		}
		if text := strings.TrimSpace(link.InnerText()); strings.HasPrefix(text, "http") {
			return text
		}
	}
	if guid := strings.TrimSpace(elementText(node, "guid")); strings.HasPrefix(guid, "http") {
		return guid
	}
	return ""
}

func itemTimestamp(node *xmlquery.Node) *time.Time {
	for _, name := range []string{"pubDate", "published", "updated"} {
		if raw := strings.TrimSpace(elementText(node, name)); raw != "" {
			if ts := parseTimestamp(raw); ts != nil {
				return ts
			}
		}
	}
	return nil
}

func elementText(node *xmlquery.Node, name string) string {
	if el := node.SelectElement(name); el != nil {
		return el.InnerText()
	}
	return ""
}

// stripHTML flattens any markup in feed descriptions to plain text.
func stripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func feedHost(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return string(feed.SourceRSS)
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
