// Package pipeline orchestrates one refresh run: discover candidates,
// drop known ones, score the rest, then enrich the survivors in
// bounded waves while streaming progress events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/feedwise/feedwise/internal/config"
	"github.com/feedwise/feedwise/internal/feed"
	"github.com/feedwise/feedwise/internal/hash/urlhash"
	"github.com/feedwise/feedwise/internal/metrics"
	"github.com/feedwise/feedwise/internal/progress"
	"github.com/feedwise/feedwise/internal/rank"
	"github.com/feedwise/feedwise/internal/store"
)

const maxTitleLen = 55

// Discoverer produces the merged candidate list for a profile.
type Discoverer interface {
	Discover(ctx context.Context, profile feed.Profile) []feed.Candidate
}

// Scorer judges candidates against the profile, one result per input.
type Scorer interface {
	Score(ctx context.Context, candidates []feed.Candidate, profile feed.Profile, notify func(batch, total int)) []feed.ScoreResult
}

// Enricher runs scrape+personalize+persist for one ranked item.
type Enricher interface {
	Enrich(ctx context.Context, userID string, item feed.Ranked, profile feed.Profile) (store.Article, error)
}

// Pipeline wires the refresh stages together. One Pipeline serves all
// runs; per-run state lives on the stack of Run.
type Pipeline struct {
	cfg        config.PipelineConfig
	profiles   store.ProfileStore
	articles   store.ArticleStore
	discoverer Discoverer
	scorer     Scorer
	enricher   Enricher
	logger     *zap.Logger
}

// New builds a Pipeline.
func New(
	cfg config.PipelineConfig,
	profiles store.ProfileStore,
	articles store.ArticleStore,
	discoverer Discoverer,
	scorer Scorer,
	enricher Enricher,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:        cfg,
		profiles:   profiles,
		articles:   articles,
		discoverer: discoverer,
		scorer:     scorer,
		enricher:   enricher,
		logger:     logger,
	}
}

// Run executes one refresh for the user, emitting ordered events on
// stream until a terminal done or error event. The stream is always
// closed before Run returns. Context cancellation abandons remaining
// work; items already persisted stay persisted.
func (p *Pipeline) Run(ctx context.Context, userID string, stream *progress.Stream) {
	defer stream.Close()
	started := time.Now()

	logger := p.logger.With(zap.String("user_id", userID))
	logger.Info("refresh run starting")

	if err := p.run(ctx, userID, stream, logger); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			metrics.ObserveRefreshRun("canceled")
			logger.Info("refresh run canceled", zap.Duration("elapsed", time.Since(started)))
			return
		}
		metrics.ObserveRefreshRun("error")
		logger.Error("refresh run failed", zap.Error(err))
		// Best effort; the consumer may already be gone.
		_ = stream.Emit(ctx, progress.Error(err.Error()))
		return
	}

	metrics.ObserveRefreshRun("ok")
	logger.Info("refresh run finished", zap.Duration("elapsed", time.Since(started)))
}

func (p *Pipeline) run(ctx context.Context, userID string, stream *progress.Stream, logger *zap.Logger) error {
	profile, err := p.profiles.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no profile found: complete your profile before refreshing")
		}
		return fmt.Errorf("load profile: %w", err)
	}

	if err := stream.Emit(ctx, progress.Status("🔍", "Looking for fresh articles...")); err != nil {
		return err
	}

	discoverStart := time.Now()
	candidates := p.discoverer.Discover(ctx, profile)
	metrics.ObserveStage("discover", time.Since(discoverStart))

	if len(candidates) == 0 {
		if err := stream.Emit(ctx, progress.Status("🤷", "No articles found from any source")); err != nil {
			return err
		}
		return stream.Emit(ctx, progress.Done(0))
	}

	fresh, err := p.dropKnown(ctx, userID, candidates)
	if err != nil {
		return err
	}

	if len(fresh) == 0 {
		return p.replay(ctx, userID, stream)
	}

	if len(fresh) > p.cfg.MaxFresh {
		fresh = fresh[:p.cfg.MaxFresh]
		msg := fmt.Sprintf("Limiting this run to the %d most recent articles", p.cfg.MaxFresh)
		if err := stream.Emit(ctx, progress.Status("✂️", msg)); err != nil {
			return err
		}
	}

	msg := fmt.Sprintf("Analyzing %d new articles...", len(fresh))
	if err := stream.Emit(ctx, progress.Status("🧠", msg)); err != nil {
		return err
	}

	scoreStart := time.Now()
	scores := p.score(ctx, fresh, profile, stream)
	metrics.ObserveStage("score", time.Since(scoreStart))
	if ctx.Err() != nil {
		return ctx.Err()
	}

	survivors := rank.FilterRank(rank.Merge(fresh, scores), p.cfg.MinScore)
	msg = fmt.Sprintf("%d relevant articles found, %d discarded", len(survivors), len(fresh)-len(survivors))
	if err := stream.Emit(ctx, progress.Status("📊", msg)); err != nil {
		return err
	}

	if len(survivors) > 0 {
		enrichStart := time.Now()
		err := p.enrichWaves(ctx, userID, survivors, profile, stream)
		metrics.ObserveStage("enrich", time.Since(enrichStart))
		if err != nil {
			return err
		}
	}

	// Processed counts everything scored this run, not just survivors.
	return stream.Emit(ctx, progress.Done(len(fresh)))
}

// dropKnown filters out candidates whose fingerprint is already
// persisted for the user.
func (p *Pipeline) dropKnown(ctx context.Context, userID string, candidates []feed.Candidate) ([]feed.Candidate, error) {
	fingerprints := make([]string, len(candidates))
	for i, c := range candidates {
		fingerprints[i] = urlhash.Fingerprint(c.URL)
	}

	known, err := p.articles.FindFingerprints(ctx, userID, fingerprints)
	if err != nil {
		return nil, fmt.Errorf("check known articles: %w", err)
	}

	fresh := make([]feed.Candidate, 0, len(candidates))
	for i, c := range candidates {
		if _, dup := known[fingerprints[i]]; dup {
			continue
		}
		fresh = append(fresh, c)
	}
	return fresh, nil
}

// replay handles the all-duplicates run: nothing new to process, so
// the user's best persisted articles are streamed back instead.
func (p *Pipeline) replay(ctx context.Context, userID string, stream *progress.Stream) error {
	if err := stream.Emit(ctx, progress.Status("📚", "No new articles; here are your recent highlights")); err != nil {
		return err
	}

	articles, err := p.articles.ListTopArticles(ctx, userID, p.cfg.ReplayLimit)
	if err != nil {
		return fmt.Errorf("load existing articles: %w", err)
	}
	for i := range articles {
		if err := stream.Emit(ctx, progress.ArticleReady(&articles[i])); err != nil {
			return err
		}
	}
	return stream.Emit(ctx, progress.Done(0))
}

// score runs the batched scorer, surfacing per-batch progress when
// more than one batch is needed.
func (p *Pipeline) score(ctx context.Context, fresh []feed.Candidate, profile feed.Profile, stream *progress.Stream) []feed.ScoreResult {
	return p.scorer.Score(ctx, fresh, profile, func(batch, total int) {
		if total <= 1 {
			return
		}
		msg := fmt.Sprintf("Analyzing batch %d of %d...", batch, total)
		_ = stream.Emit(ctx, progress.Status("🧠", msg))
	})
}

// enrichWaves processes survivors in fixed-size waves. A wave resolves
// fully before the next one starts; any enrichment error aborts the
// run. Each item announces itself before its scrape and streams its
// article_ready as soon as it is persisted, without waiting for its
// wave-mates.
func (p *Pipeline) enrichWaves(ctx context.Context, userID string, survivors []feed.Ranked, profile feed.Profile, stream *progress.Stream) error {
	completed := 0
	for start := 0; start < len(survivors); start += p.cfg.WaveSize {
		end := min(start+p.cfg.WaveSize, len(survivors))
		wave := survivors[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, item := range wave {
			g.Go(func() error {
				evt := progress.Article("✨", truncateTitle(item.Title), item.Score)
				if err := stream.Emit(gctx, evt); err != nil {
					return err
				}
				article, err := p.enricher.Enrich(gctx, userID, item, profile)
				if err != nil {
					return err
				}
				return stream.Emit(gctx, progress.ArticleReady(&article))
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("enrich wave: %w", err)
		}

		completed += len(wave)
		if end < len(survivors) {
			msg := fmt.Sprintf("%d/%d completed", completed, len(survivors))
			if err := stream.Emit(ctx, progress.Status("⚡", msg)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ProcessURL enriches one user-supplied URL on demand, outside a
// refresh run. The article gets a neutral score; re-processing a known
// URL updates the stored row.
func (p *Pipeline) ProcessURL(ctx context.Context, userID, articleURL string) (store.Article, error) {
	profile, err := p.profiles.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Article{}, fmt.Errorf("no profile found: complete your profile first")
		}
		return store.Article{}, fmt.Errorf("load profile: %w", err)
	}

	item := feed.Ranked{
		Candidate: feed.Candidate{
			URL:    articleURL,
			Title:  articleURL,
			Source: "manual",
		},
		ScoreResult: feed.FallbackScore(),
		Fingerprint: urlhash.Fingerprint(articleURL),
	}
	return p.enricher.Enrich(ctx, userID, item, profile)
}

func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= maxTitleLen {
		return title
	}
	return string(runes[:maxTitleLen]) + "…"
}
