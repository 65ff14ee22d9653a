// Package rank merges scored candidates and applies the relevance
// threshold. Both operations are pure; ordering is deterministic.
package rank

import (
	"sort"

	"github.com/feedwise/feedwise/internal/feed"
	"github.com/feedwise/feedwise/internal/hash/urlhash"
)

// Merge zips candidates with their index-aligned scores and attaches
// each item's fingerprint. Inputs must be the same length; a scorer
// that honors its contract guarantees this.
func Merge(candidates []feed.Candidate, scores []feed.ScoreResult) []feed.Ranked {
	merged := make([]feed.Ranked, 0, len(candidates))
	for i, c := range candidates {
		score := feed.FallbackScore()
		if i < len(scores) {
			score = scores[i]
		}
		merged = append(merged, feed.Ranked{
			Candidate:   c,
			ScoreResult: score,
			Fingerprint: urlhash.Fingerprint(c.URL),
		})
	}
	return merged
}

// FilterRank drops items scoring below minScore and sorts survivors
// by score descending. The sort is stable: ties keep their discovery
// insertion order, which makes output order reproducible.
func FilterRank(items []feed.Ranked, minScore int) []feed.Ranked {
	survivors := make([]feed.Ranked, 0, len(items))
	for _, item := range items {
		if item.Score >= minScore {
			survivors = append(survivors, item)
		}
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].Score > survivors[j].Score
	})
	return survivors
}
