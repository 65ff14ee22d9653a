// Package discovery merges candidate articles from independent
// sources into one deduplicated, capped list. Source failures are
// swallowed here; the pipeline only ever sees the surviving
// candidates.
package discovery

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/feedwise/feedwise/internal/feed"
	"github.com/feedwise/feedwise/internal/metrics"
)

// Source produces candidate articles for one discovery origin.
type Source interface {
	Name() string
	Discover(ctx context.Context, profile feed.Profile) ([]feed.Candidate, error)
}

// Aggregator fans out to every registered source concurrently and
// joins best-effort: a failing source contributes zero candidates.
type Aggregator struct {
	sources []Source
	cap     int
	logger  *zap.Logger
}

// NewAggregator registers sources in priority order; earlier sources
// win URL-dedup conflicts and fill the cap first.
func NewAggregator(maxCandidates int, logger *zap.Logger, sources ...Source) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{sources: sources, cap: maxCandidates, logger: logger}
}

// Discover runs all sources concurrently, merges their results in
// registration order, deduplicates by exact URL (first writer wins),
// and caps the total. It never returns an error; total source failure
// simply yields an empty list.
func (a *Aggregator) Discover(ctx context.Context, profile feed.Profile) []feed.Candidate {
	perSource := make([][]feed.Candidate, len(a.sources))
	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			candidates, err := src.Discover(ctx, profile)
			if err != nil {
				a.logger.Warn("discovery source failed",
					zap.String("source", src.Name()),
					zap.Error(err),
				)
				return
			}
			perSource[i] = candidates
		}()
	}
	wg.Wait()

	seen := make(map[string]struct{})
	var merged []feed.Candidate
	for i, candidates := range perSource {
		fresh := 0
		for _, c := range candidates {
			if _, dup := seen[c.URL]; dup {
				continue
			}
			seen[c.URL] = struct{}{}
			merged = append(merged, c)
			fresh++
		}
		metrics.ObserveDiscovered(a.sources[i].Name(), fresh)
	}

	if len(merged) > a.cap {
		merged = merged[:a.cap]
	}
	a.logger.Info("discovery complete", zap.Int("candidates", len(merged)))
	return merged
}
