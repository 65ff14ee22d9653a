// Package enrich turns a ranked candidate into a persisted article:
// scrape the source, generate the personalized write-up, upsert.
package enrich

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/feedwise/feedwise/internal/feed"
	"github.com/feedwise/feedwise/internal/llm"
	"github.com/feedwise/feedwise/internal/metrics"
	"github.com/feedwise/feedwise/internal/scrape"
	"github.com/feedwise/feedwise/internal/store"
)

// maxPromptContent bounds how much scraped text is fed to the
// generation prompt. Scraped content may be up to 10000 chars; the
// prompt gets at most this much.
const maxPromptContent = 8000

const personalizeMaxTokens = 1500

// Enricher runs the scrape+personalize+persist sequence for one item.
// Scrape and personalization failures degrade to empty content; a
// persistence failure fails the item.
type Enricher struct {
	scraper  *scrape.Client
	llm      *llm.Client
	articles store.ArticleStore
	logger   *zap.Logger
}

// New builds an Enricher.
func New(scraper *scrape.Client, llmClient *llm.Client, articles store.ArticleStore, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{scraper: scraper, llm: llmClient, articles: articles, logger: logger}
}

// Enrich processes one ranked item for the user and returns the
// persisted article. Only the upsert can fail the call.
func (e *Enricher) Enrich(ctx context.Context, userID string, item feed.Ranked, profile feed.Profile) (store.Article, error) {
	content, err := e.scraper.Extract(ctx, item.URL)
	if err != nil {
		e.logger.Warn("content extraction failed, continuing without body",
			zap.String("url", item.URL), zap.Error(err))
		content = ""
	}

	personalized := e.personalize(ctx, item, profile, content)

	article := store.Article{
		UserID:              userID,
		URL:                 item.URL,
		Fingerprint:         item.Fingerprint,
		Title:               item.Title,
		Description:         item.Description,
		Summary:             item.Summary,
		PersonalizedContent: optional(personalized),
		RawContent:          optional(content),
		TranslatedTitle:     item.TranslatedTitle,
		Tags:                item.Tags,
		RelevanceScore:      item.Score,
		Source:              item.Source,
		PublishedAt:         item.PublishedAt,
	}

	persisted, err := e.articles.UpsertArticle(ctx, article)
	if err != nil {
		metrics.ObserveEnriched("failed")
		return store.Article{}, fmt.Errorf("persist article %s: %w", item.Fingerprint, err)
	}
	metrics.ObserveEnriched("ok")
	return persisted, nil
}

// personalize asks the generation service for the two-section write-up.
// Any failure degrades to an empty string; the article is persisted
// without it.
func (e *Enricher) personalize(ctx context.Context, item feed.Ranked, profile feed.Profile, content string) string {
	basis := content
	if basis == "" {
		basis = item.Description
	}
	if basis == "" {
		return ""
	}
	if runes := []rune(basis); len(runes) > maxPromptContent {
		basis = string(runes[:maxPromptContent])
	}

	cfg := e.llm.Config()
	out, err := e.llm.Complete(ctx, buildPersonalizePrompt(item, profile, basis), llm.CompletionOptions{
		Temperature: cfg.PersonalizeTemperature,
		MaxTokens:   personalizeMaxTokens,
		Timeout:     cfg.PersonalizeTimeout(),
	})
	if err != nil {
		e.logger.Warn("personalization failed, persisting without it",
			zap.String("url", item.URL), zap.Error(err))
		return ""
	}
	return out
}

func buildPersonalizePrompt(item feed.Ranked, profile feed.Profile, content string) string {
	var b strings.Builder
	b.WriteString("You are a personal news assistant. Rewrite the article below for this reader.\n\n")
	b.WriteString("Reader profile:\n")
	b.WriteString(profileSection(profile))
	b.WriteString("\n\nArticle title: ")
	b.WriteString(item.Title)
	b.WriteString("\n\nArticle content:\n")
	b.WriteString(content)
	b.WriteString("\n\nRespond in markdown with exactly these two sections:\n")
	b.WriteString("## Riepilogo\nA concise summary of the article's facts.\n\n")
	b.WriteString("## Approfondimento personalizzato\n")
	b.WriteString("Why this matters for the reader given their role, skills and interests, with concrete takeaways.\n")
	return b.String()
}

func profileSection(profile feed.Profile) string {
	if profile.Narrative != "" {
		return profile.Narrative
	}
	return fmt.Sprintf("Role: %s\nSkills: %s\nInterests: %s\nTopics to avoid: %s",
		profile.Role,
		strings.Join(profile.Skills, ", "),
		strings.Join(profile.Interests, ", "),
		strings.Join(profile.AvoidTopics, ", "))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
