package scoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/feedwise/feedwise/internal/config"
	"github.com/feedwise/feedwise/internal/feed"
	"github.com/feedwise/feedwise/internal/llm"
)

func scorerFor(t *testing.T, handler http.HandlerFunc, batchSize int) *Scorer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.LLMConfig{
		BaseURL:             srv.URL,
		APIKey:              "sk-test",
		Model:               "deepseek-chat",
		ScoreTimeoutSeconds: 2,
		ScoreTemperature:    0.2,
	}
	return NewScorer(llm.New(cfg, srv.Client(), zap.NewNop()), batchSize, zap.NewNop())
}

func candidates(n int) []feed.Candidate {
	out := make([]feed.Candidate, n)
	for i := range out {
		out[i] = feed.Candidate{Title: "t", Description: "d", URL: "https://example.com"}
	}
	return out
}

func completionBody(content string) string {
	return `{"choices":[{"message":{"content":` + content + `}}]}`
}

func TestScoreParsesStructuredVerdicts(t *testing.T) {
	t.Parallel()

	s := scorerFor(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(completionBody(`"[{\"score\": 9, \"summary\": \"great\", \"translatedTitle\": \"Titolo\", \"tags\": [\"AI\"]}, {\"score\": 3.6, \"summary\": \"meh\", \"translatedTitle\": \"\", \"tags\": []}]"`)))
	}, 30)

	got := s.Score(context.Background(), candidates(2), feed.Profile{}, nil)
	require.Len(t, got, 2)
	assert.Equal(t, feed.ScoreResult{Score: 9, Summary: "great", TranslatedTitle: "Titolo", Tags: []string{"AI"}}, got[0])
	// Fractional score rounds.
	assert.Equal(t, 4, got[1].Score)
}

func TestScoreToleratesCodeFence(t *testing.T) {
	t.Parallel()

	s := scorerFor(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(completionBody(`"` + "```json\\n[{\\\"score\\\": 7, \\\"summary\\\": \\\"s\\\", \\\"translatedTitle\\\": \\\"t\\\", \\\"tags\\\": []}]\\n```" + `"`)))
	}, 30)

	got := s.Score(context.Background(), candidates(1), feed.Profile{}, nil)
	require.Len(t, got, 1)
	assert.Equal(t, 7, got[0].Score)
}

func TestScoreFallsBackOnHTTP500(t *testing.T) {
	t.Parallel()

	s := scorerFor(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}, 30)

	got := s.Score(context.Background(), candidates(3), feed.Profile{}, nil)
	require.Len(t, got, 3)
	for _, r := range got {
		assert.Equal(t, feed.ScoreResult{Score: 5}, r)
	}
}

func TestScoreFallsBackOnUnparseableBody(t *testing.T) {
	t.Parallel()

	s := scorerFor(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(completionBody(`"sorry, I cannot help with that"`)))
	}, 30)

	got := s.Score(context.Background(), candidates(2), feed.Profile{}, nil)
	require.Len(t, got, 2)
	assert.Equal(t, 5, got[0].Score)
}

func TestScoreIndexAlignmentWithShortReply(t *testing.T) {
	t.Parallel()

	// Service only answered for one of three items; the rest default.
	s := scorerFor(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(completionBody(`"[{\"score\": 8, \"summary\": \"only\", \"translatedTitle\": \"\", \"tags\": []}]"`)))
	}, 30)

	got := s.Score(context.Background(), candidates(3), feed.Profile{}, nil)
	require.Len(t, got, 3)
	assert.Equal(t, 8, got[0].Score)
	assert.Equal(t, 5, got[1].Score)
	assert.Equal(t, 5, got[2].Score)
}

func TestScoreBatchesSequentiallyAndNotifies(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s := scorerFor(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(completionBody(`"[]"`)))
	}, 10)

	var notified [][2]int
	got := s.Score(context.Background(), candidates(25), feed.Profile{}, func(batch, total int) {
		notified = append(notified, [2]int{batch, total})
	})

	require.Len(t, got, 25)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, notified)
}

func TestScoreClampsOutOfRangeScores(t *testing.T) {
	t.Parallel()

	s := scorerFor(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(completionBody(`"[{\"score\": 42, \"summary\": \"\", \"translatedTitle\": \"\", \"tags\": []}, {\"score\": -3, \"summary\": \"\", \"translatedTitle\": \"\", \"tags\": []}]"`)))
	}, 30)

	got := s.Score(context.Background(), candidates(2), feed.Profile{}, nil)
	require.Len(t, got, 2)
	assert.Equal(t, 10, got[0].Score)
	assert.Equal(t, 1, got[1].Score)
}

func TestCoerceScoreDefaultsWrongShapes(t *testing.T) {
	t.Parallel()

	got := coerceScore(map[string]any{
		"score":           "nine",
		"summary":         42,
		"translatedTitle": []any{"x"},
		"tags":            "Tech",
	})
	assert.Equal(t, feed.ScoreResult{Score: 5}, got)
}
