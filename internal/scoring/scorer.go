// Package scoring sends candidate articles to the judgment service in
// bounded batches and parses a structured verdict per article. Scoring
// never fails a pipeline run: any batch-level failure degrades to
// neutral fallback results.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/feedwise/feedwise/internal/feed"
	"github.com/feedwise/feedwise/internal/llm"
	"github.com/feedwise/feedwise/internal/metrics"
)

const scoreMaxTokens = 8000

// Scorer batches candidates against the judgment service.
type Scorer struct {
	client    *llm.Client
	batchSize int
	logger    *zap.Logger
}

// NewScorer builds a Scorer that splits work into batchSize chunks.
func NewScorer(client *llm.Client, batchSize int, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{client: client, batchSize: batchSize, logger: logger}
}

// Score returns exactly one result per candidate, index-aligned with
// the input. Batches run sequentially; a failed batch yields fallback
// results for every item in it. notify, when non-nil, is invoked
// before each batch with its 1-based index and the total batch count.
func (s *Scorer) Score(ctx context.Context, candidates []feed.Candidate, profile feed.Profile, notify func(batch, total int)) []feed.ScoreResult {
	results := make([]feed.ScoreResult, 0, len(candidates))
	total := (len(candidates) + s.batchSize - 1) / s.batchSize
	for i := 0; i < len(candidates); i += s.batchSize {
		end := min(i+s.batchSize, len(candidates))
		batch := candidates[i:end]
		if notify != nil {
			notify(i/s.batchSize+1, total)
		}
		results = append(results, s.scoreBatch(ctx, batch, profile)...)
	}
	return results
}

func (s *Scorer) scoreBatch(ctx context.Context, batch []feed.Candidate, profile feed.Profile) []feed.ScoreResult {
	prompt := buildScorePrompt(batch, profile)
	cfg := s.client.Config()

	raw, err := s.client.Complete(ctx, prompt, llm.CompletionOptions{
		Temperature: cfg.ScoreTemperature,
		MaxTokens:   scoreMaxTokens,
		Timeout:     cfg.ScoreTimeout(),
	})
	if err != nil {
		s.logger.Warn("scoring batch failed, using fallback scores",
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
		metrics.ObserveScoringBatch("fallback")
		return fallbackBatch(len(batch))
	}

	results, err := parseScores(raw, len(batch))
	if err != nil {
		s.logger.Warn("scoring response unparseable, using fallback scores",
			zap.Int("batch_size", len(batch)),
			zap.String("raw_prefix", truncateForLog(raw)),
			zap.Error(err),
		)
		metrics.ObserveScoringBatch("fallback")
		return fallbackBatch(len(batch))
	}
	metrics.ObserveScoringBatch("ok")
	return results
}

func fallbackBatch(n int) []feed.ScoreResult {
	out := make([]feed.ScoreResult, n)
	for i := range out {
		out[i] = feed.FallbackScore()
	}
	return out
}

type promptArticle struct {
	Index       int    `json:"i"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func buildScorePrompt(batch []feed.Candidate, profile feed.Profile) string {
	list := make([]promptArticle, 0, len(batch))
	for i, c := range batch {
		list = append(list, promptArticle{Index: i, Title: c.Title, Description: c.Description})
	}
	// Prompt inputs are plain structs; marshaling cannot fail.
	listJSON, _ := json.Marshal(list)

	var b strings.Builder
	b.WriteString("You are a news curation assistant. User profile:\n")
	b.WriteString(profileSection(profile))
	b.WriteString("\n\nFor each article in the JSON list, assign a relevance score from 1 to 10, ")
	b.WriteString("write a very short one-sentence summary, translate the title into the user's language, ")
	b.WriteString("and add 2-3 relevant category tags.\n\nRules:\n")
	b.WriteString("- Score 9-10: article perfectly matches the profile\n")
	b.WriteString("- Score 1-3: topic irrelevant or explicitly avoided\n")
	b.WriteString("- MUST return a valid JSON array ONLY, without wrapping markdown blocks, in this exact format:\n")
	b.WriteString(`[{"score": 9, "summary": "...", "translatedTitle": "...", "tags": ["Tech", "AI"]}, ...]`)
	b.WriteString("\n\nArticle list:\n")
	b.Write(listJSON)
	return b.String()
}

func profileSection(p feed.Profile) string {
	if p.Narrative != "" {
		return fmt.Sprintf(
			"Narrative profile:\n%q\n\nTechnical details:\n- Role: %s\n- Skills: %s\n- Topics to ABSOLUTELY avoid: %s",
			p.Narrative, p.Role, strings.Join(p.Skills, ", "), strings.Join(p.AvoidTopics, ", "),
		)
	}
	return fmt.Sprintf(
		"- Role: %s\n- Skills: %s\n- Interests: %s\n- Topics to ABSOLUTELY avoid: %s",
		p.Role, strings.Join(p.Skills, ", "), strings.Join(p.Interests, ", "), strings.Join(p.AvoidTopics, ", "),
	)
}

// parseScores decodes the service reply, tolerating a wrapping code
// fence and per-item shape drift. The returned slice always has
// exactly n entries.
func parseScores(raw string, n int) ([]feed.ScoreResult, error) {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var parsed []map[string]any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("decode score array: %w", err)
	}

	results := make([]feed.ScoreResult, n)
	for i := range results {
		if i < len(parsed) {
			results[i] = coerceScore(parsed[i])
		} else {
			results[i] = feed.FallbackScore()
		}
	}
	return results, nil
}

// coerceScore validates each field individually, defaulting anything
// with an unexpected shape.
func coerceScore(item map[string]any) feed.ScoreResult {
	result := feed.FallbackScore()
	if v, ok := item["score"].(float64); ok {
		result.Score = clampScore(int(math.Round(v)))
	}
	if v, ok := item["summary"].(string); ok {
		result.Summary = v
	}
	if v, ok := item["translatedTitle"].(string); ok {
		result.TranslatedTitle = v
	}
	if v, ok := item["tags"].([]any); ok {
		tags := make([]string, 0, len(v))
		for _, tag := range v {
			if s, ok := tag.(string); ok {
				tags = append(tags, s)
			}
		}
		result.Tags = tags
	}
	return result
}

func clampScore(score int) int {
	switch {
	case score < 1:
		return 1
	case score > 10:
		return 10
	default:
		return score
	}
}

const logSnippetLen = 200

func truncateForLog(s string) string {
	if len(s) <= logSnippetLen {
		return s
	}
	return s[:logSnippetLen] + "…"
}
