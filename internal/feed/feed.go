// Package feed defines the core domain types shared by the refresh
// pipeline stages. By keeping these in one leaf package, the stage
// packages depend on a stable vocabulary instead of on each other.
package feed

import "time"

// Source identifies where a candidate article was discovered.
type Source string

// Supported discovery sources.
const (
	SourceNewsAPI Source = "newsapi"
	SourceRSS     Source = "rss"
)

// Candidate is an unscored, unpersisted article produced by discovery.
// It lives only for the duration of one pipeline run.
type Candidate struct {
	// URL is the canonical article link and the sole dedup key source.
	URL string
	// Title as reported by the source.
	Title string
	// Description is HTML-stripped and truncated to 300 characters.
	Description string
	// Source tags the discovery origin (newsapi or the feed host).
	Source string
	// PublishedAt is optional; sources do not always report it.
	PublishedAt *time.Time
}

// Profile is the per-user identikit that drives scoring and
// personalization. It is read-only to the pipeline.
type Profile struct {
	Role        string   `json:"role"`
	Skills      []string `json:"skills"`
	Interests   []string `json:"interests"`
	AvoidTopics []string `json:"avoidTopics"`
	// Narrative is an optional free-text description of the user that,
	// when present, takes precedence over the structured fields in
	// prompts.
	Narrative string `json:"aiProfile,omitempty"`
}

// ScoreResult is the judgment service's verdict for one candidate.
// Exactly one exists per scored candidate, fallback or not.
type ScoreResult struct {
	// Score is the relevance score clamped to 1-10, rounded if the
	// service returned a fraction.
	Score int `json:"score"`
	// Summary is a one-sentence summary in the user's language.
	Summary string `json:"summary"`
	// TranslatedTitle is the title localized for the user.
	TranslatedTitle string `json:"translatedTitle"`
	// Tags holds 0-3 short topic labels.
	Tags []string `json:"tags"`
}

// FallbackScore is the neutral result substituted when scoring a batch
// fails or its response cannot be parsed. The pipeline never aborts
// because scoring degraded.
func FallbackScore() ScoreResult {
	return ScoreResult{Score: 5}
}

// Ranked merges a candidate with its aligned score and fingerprint.
// Only items at or above the relevance threshold survive ranking.
type Ranked struct {
	Candidate
	ScoreResult
	Fingerprint string
}
