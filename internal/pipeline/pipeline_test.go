package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/feedwise/feedwise/internal/config"
	"github.com/feedwise/feedwise/internal/feed"
	"github.com/feedwise/feedwise/internal/hash/urlhash"
	"github.com/feedwise/feedwise/internal/progress"
	"github.com/feedwise/feedwise/internal/store"
)

type fakeProfiles struct {
	profile feed.Profile
	err     error
}

func (f *fakeProfiles) GetProfile(context.Context, string) (feed.Profile, error) {
	return f.profile, f.err
}

func (f *fakeProfiles) PutProfile(context.Context, string, feed.Profile) error { return nil }

type fakeArticles struct {
	knownURLs []string
	top       []store.Article
	upsertErr error
	findErr   error

	upserted []store.Article
}

func (f *fakeArticles) FindFingerprints(_ context.Context, _ string, fps []string) (map[string]struct{}, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	known := make(map[string]struct{})
	for _, u := range f.knownURLs {
		known[urlhash.Fingerprint(u)] = struct{}{}
	}
	out := make(map[string]struct{})
	for _, fp := range fps {
		if _, ok := known[fp]; ok {
			out[fp] = struct{}{}
		}
	}
	return out, nil
}

func (f *fakeArticles) UpsertArticle(_ context.Context, a store.Article) (store.Article, error) {
	if f.upsertErr != nil {
		return store.Article{}, f.upsertErr
	}
	a.ID = fmt.Sprintf("art-%d", len(f.upserted)+1)
	f.upserted = append(f.upserted, a)
	return a, nil
}

func (f *fakeArticles) ListTopArticles(context.Context, string, int) ([]store.Article, error) {
	return f.top, nil
}

func (f *fakeArticles) GetArticle(context.Context, string, string) (store.Article, error) {
	return store.Article{}, store.ErrNotFound
}

func (f *fakeArticles) DeleteArticle(context.Context, string, string) error { return nil }

type fakeDiscoverer struct {
	candidates []feed.Candidate
}

func (f *fakeDiscoverer) Discover(context.Context, feed.Profile) []feed.Candidate {
	return f.candidates
}

// fakeScorer assigns scores from the queue in order, notifying as the
// real scorer would for the given batch size.
type fakeScorer struct {
	scores    []int
	batchSize int
}

func (f *fakeScorer) Score(_ context.Context, candidates []feed.Candidate, _ feed.Profile, notify func(batch, total int)) []feed.ScoreResult {
	batchSize := f.batchSize
	if batchSize == 0 {
		batchSize = 30
	}
	total := (len(candidates) + batchSize - 1) / batchSize
	out := make([]feed.ScoreResult, len(candidates))
	for i := range candidates {
		if i%batchSize == 0 && notify != nil {
			notify(i/batchSize+1, total)
		}
		score := 5
		if i < len(f.scores) {
			score = f.scores[i]
		}
		out[i] = feed.ScoreResult{Score: score, Summary: "s"}
	}
	return out
}

type fakeEnricher struct {
	err error
}

func (f *fakeEnricher) Enrich(_ context.Context, userID string, item feed.Ranked, _ feed.Profile) (store.Article, error) {
	if f.err != nil {
		return store.Article{}, f.err
	}
	return store.Article{
		ID:             "art-" + item.Fingerprint,
		UserID:         userID,
		URL:            item.URL,
		Fingerprint:    item.Fingerprint,
		Title:          item.Title,
		RelevanceScore: item.Score,
	}, nil
}

func testConfig() config.PipelineConfig {
	return config.PipelineConfig{
		MaxCandidates:  40,
		MaxFresh:       30,
		ScoreBatchSize: 30,
		MinScore:       5,
		WaveSize:       5,
		ReplayLimit:    50,
	}
}

func candidateList(n int) []feed.Candidate {
	out := make([]feed.Candidate, n)
	for i := range out {
		out[i] = feed.Candidate{
			URL:   fmt.Sprintf("https://example.com/%d", i),
			Title: fmt.Sprintf("Article %d", i),
		}
	}
	return out
}

// collectEvents runs the pipeline to completion and returns every
// event in emission order.
func collectEvents(t *testing.T, p *Pipeline, userID string) []progress.Event {
	t.Helper()
	stream := progress.NewStream()
	done := make(chan struct{})
	var events []progress.Event
	go func() {
		defer close(done)
		for evt := range stream.Events() {
			events = append(events, evt)
		}
	}()
	p.Run(context.Background(), userID, stream)
	<-done
	return events
}

func eventTypes(events []progress.Event) []progress.Type {
	out := make([]progress.Type, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func newPipeline(profiles *fakeProfiles, articles *fakeArticles, disc *fakeDiscoverer, scorer *fakeScorer, enricher Enricher) *Pipeline {
	return New(testConfig(), profiles, articles, disc, scorer, enricher, zap.NewNop())
}

func TestRunWithoutProfileEmitsError(t *testing.T) {
	t.Parallel()

	p := newPipeline(
		&fakeProfiles{err: store.ErrNotFound},
		&fakeArticles{}, &fakeDiscoverer{}, &fakeScorer{}, &fakeEnricher{},
	)

	events := collectEvents(t, p, "user-1")
	require.Len(t, events, 1)
	assert.Equal(t, progress.TypeError, events[0].Type)
	assert.Contains(t, events[0].Message, "profile")
}

func TestRunHappyPathEventOrder(t *testing.T) {
	t.Parallel()

	articles := &fakeArticles{}
	p := newPipeline(
		&fakeProfiles{profile: feed.Profile{Role: "dev"}},
		articles,
		&fakeDiscoverer{candidates: candidateList(3)},
		&fakeScorer{scores: []int{9, 3, 7}},
		&fakeEnricher{},
	)

	events := collectEvents(t, p, "user-1")
	require.Len(t, events, 8)

	// The three pre-enrichment statuses and the terminal event are
	// strictly ordered; the wave interior interleaves per item.
	assert.Equal(t, progress.TypeStatus, events[0].Type)
	assert.Equal(t, progress.TypeStatus, events[1].Type)
	assert.Equal(t, progress.TypeStatus, events[2].Type)
	assert.Contains(t, events[2].Message, "2 relevant")
	assert.Contains(t, events[2].Message, "1 discarded")
	assert.Equal(t, progress.TypeDone, events[7].Type)

	// Each survivor announces itself before its article_ready, and the
	// discarded score 3 never appears.
	announced := map[int]int{}
	ready := map[int]int{}
	for i, e := range events {
		switch e.Type {
		case progress.TypeArticle:
			announced[e.Score] = i
		case progress.TypeArticleReady:
			ready[e.Article.RelevanceScore] = i
		}
	}
	require.Len(t, announced, 2)
	require.Len(t, ready, 2)
	for _, score := range []int{9, 7} {
		require.Contains(t, announced, score)
		require.Contains(t, ready, score)
		assert.Less(t, announced[score], ready[score])
	}
	assert.NotContains(t, announced, 3)

	// Done counts everything scored, not just survivors.
	assert.Equal(t, 3, events[7].Processed)
}

// gatedEnricher blocks the item whose title matches hold until the
// gate opens; everything else enriches immediately.
type gatedEnricher struct {
	hold string
	gate chan struct{}
}

func (g *gatedEnricher) Enrich(ctx context.Context, userID string, item feed.Ranked, _ feed.Profile) (store.Article, error) {
	if item.Title == g.hold {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return store.Article{}, ctx.Err()
		}
	}
	return store.Article{
		ID:             "art-" + item.Fingerprint,
		UserID:         userID,
		URL:            item.URL,
		Fingerprint:    item.Fingerprint,
		Title:          item.Title,
		RelevanceScore: item.Score,
	}, nil
}

func TestRunStreamsReadyWithoutWaitingForWaveMates(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	var openOnce sync.Once
	open := func() { openOnce.Do(func() { close(gate) }) }
	defer open()

	// Safety valve: if the run wrongly holds the fast item's
	// article_ready back until the whole wave resolves, release the
	// held wave-mate so the test fails on forced instead of hanging.
	var forced atomic.Bool
	timer := time.AfterFunc(2*time.Second, func() {
		forced.Store(true)
		open()
	})
	defer timer.Stop()

	p := newPipeline(
		&fakeProfiles{}, &fakeArticles{},
		&fakeDiscoverer{candidates: []feed.Candidate{
			{URL: "https://example.com/fast", Title: "fast"},
			{URL: "https://example.com/held", Title: "held"},
		}},
		&fakeScorer{scores: []int{9, 8}},
		&gatedEnricher{hold: "held", gate: gate},
	)

	stream := progress.NewStream()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		p.Run(context.Background(), "user-1", stream)
	}()

	var events []progress.Event
	for evt := range stream.Events() {
		events = append(events, evt)
		if evt.Type == progress.TypeArticleReady && evt.Article.Title == "fast" {
			break
		}
	}
	assert.False(t, forced.Load(), "article_ready for a finished item must not wait for its wave-mates")

	open()
	for evt := range stream.Events() {
		events = append(events, evt)
	}
	<-runDone

	var readyTitles []string
	for _, e := range events {
		if e.Type == progress.TypeArticleReady {
			readyTitles = append(readyTitles, e.Article.Title)
		}
	}
	assert.Equal(t, []string{"fast", "held"}, readyTitles)
}

func TestRunNoCandidates(t *testing.T) {
	t.Parallel()

	p := newPipeline(
		&fakeProfiles{},
		&fakeArticles{}, &fakeDiscoverer{}, &fakeScorer{}, &fakeEnricher{},
	)

	events := collectEvents(t, p, "user-1")
	types := eventTypes(events)
	require.Equal(t, progress.TypeDone, types[len(types)-1])
	assert.Equal(t, 0, events[len(events)-1].Processed)
}

func TestRunAllDuplicatesReplaysExisting(t *testing.T) {
	t.Parallel()

	candidates := candidateList(2)
	articles := &fakeArticles{
		knownURLs: []string{candidates[0].URL, candidates[1].URL},
		top: []store.Article{
			{ID: "old-1", RelevanceScore: 9},
			{ID: "old-2", RelevanceScore: 8},
		},
	}
	p := newPipeline(
		&fakeProfiles{}, articles,
		&fakeDiscoverer{candidates: candidates},
		&fakeScorer{}, &fakeEnricher{},
	)

	events := collectEvents(t, p, "user-1")
	assert.Equal(t, []progress.Type{
		progress.TypeStatus, // searching
		progress.TypeStatus, // replay notice
		progress.TypeArticleReady,
		progress.TypeArticleReady,
		progress.TypeDone,
	}, eventTypes(events))
	assert.Equal(t, "old-1", events[2].Article.ID)
	assert.Equal(t, 0, events[len(events)-1].Processed)
	// Nothing was re-enriched.
	assert.Empty(t, articles.upserted)
}

func TestRunCapsFreshSet(t *testing.T) {
	t.Parallel()

	// 35 fresh candidates, low scores so no enrichment noise.
	p := newPipeline(
		&fakeProfiles{}, &fakeArticles{},
		&fakeDiscoverer{candidates: candidateList(35)},
		&fakeScorer{}, &fakeEnricher{},
	)
	p.cfg.MinScore = 6

	events := collectEvents(t, p, "user-1")

	var sawCap bool
	for _, e := range events {
		if e.Type == progress.TypeStatus && strings.Contains(e.Message, "30 most recent") {
			sawCap = true
		}
	}
	assert.True(t, sawCap, "expected truncation status event")
	assert.Equal(t, 30, events[len(events)-1].Processed)
}

func TestRunEmitsBatchProgress(t *testing.T) {
	t.Parallel()

	p := newPipeline(
		&fakeProfiles{}, &fakeArticles{},
		&fakeDiscoverer{candidates: candidateList(25)},
		&fakeScorer{batchSize: 10}, &fakeEnricher{},
	)
	p.cfg.MinScore = 6

	events := collectEvents(t, p, "user-1")

	var batches []string
	for _, e := range events {
		if e.Type == progress.TypeStatus && strings.Contains(e.Message, "batch") {
			batches = append(batches, e.Message)
		}
	}
	require.Len(t, batches, 3)
	assert.Contains(t, batches[0], "batch 1 of 3")
	assert.Contains(t, batches[2], "batch 3 of 3")
}

func TestRunEmitsWaveProgressBetweenWavesOnly(t *testing.T) {
	t.Parallel()

	scores := make([]int, 7)
	for i := range scores {
		scores[i] = 8
	}
	p := newPipeline(
		&fakeProfiles{}, &fakeArticles{},
		&fakeDiscoverer{candidates: candidateList(7)},
		&fakeScorer{scores: scores}, &fakeEnricher{},
	)

	events := collectEvents(t, p, "user-1")

	var waves []string
	for _, e := range events {
		if e.Type == progress.TypeStatus && strings.Contains(e.Message, "completed") {
			waves = append(waves, e.Message)
		}
	}
	// Two waves (5+2): one status between them, none after the last.
	require.Len(t, waves, 1)
	assert.Equal(t, "5/7 completed", waves[0])

	ready := 0
	for _, e := range events {
		if e.Type == progress.TypeArticleReady {
			ready++
		}
	}
	assert.Equal(t, 7, ready)
}

func TestRunEnrichFailureEmitsError(t *testing.T) {
	t.Parallel()

	p := newPipeline(
		&fakeProfiles{}, &fakeArticles{},
		&fakeDiscoverer{candidates: candidateList(2)},
		&fakeScorer{scores: []int{9, 8}},
		&fakeEnricher{err: errors.New("db down")},
	)

	events := collectEvents(t, p, "user-1")
	last := events[len(events)-1]
	assert.Equal(t, progress.TypeError, last.Type)
	assert.Contains(t, last.Message, "db down")
}

func TestRunTruncatesLongTitles(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 80)
	p := newPipeline(
		&fakeProfiles{}, &fakeArticles{},
		&fakeDiscoverer{candidates: []feed.Candidate{{URL: "https://x", Title: long}}},
		&fakeScorer{scores: []int{9}}, &fakeEnricher{},
	)

	events := collectEvents(t, p, "user-1")
	for _, e := range events {
		if e.Type == progress.TypeArticle {
			assert.Equal(t, strings.Repeat("a", 55)+"…", e.Message)
			return
		}
	}
	t.Fatal("no article event emitted")
}

func TestTruncateTitleShortTitlesUntouched(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncateTitle("short"))
	exact := strings.Repeat("b", 55)
	assert.Equal(t, exact, truncateTitle(exact))
}

func TestProcessURLEnrichesSingleItem(t *testing.T) {
	t.Parallel()

	p := newPipeline(
		&fakeProfiles{profile: feed.Profile{Role: "dev"}},
		&fakeArticles{}, &fakeDiscoverer{}, &fakeScorer{}, &fakeEnricher{},
	)

	got, err := p.ProcessURL(context.Background(), "user-1", "https://example.com/manual")
	require.NoError(t, err)
	assert.Equal(t, urlhash.Fingerprint("https://example.com/manual"), got.Fingerprint)
	assert.Equal(t, 5, got.RelevanceScore)
}

func TestProcessURLWithoutProfile(t *testing.T) {
	t.Parallel()

	p := newPipeline(
		&fakeProfiles{err: store.ErrNotFound},
		&fakeArticles{}, &fakeDiscoverer{}, &fakeScorer{}, &fakeEnricher{},
	)

	_, err := p.ProcessURL(context.Background(), "user-1", "https://example.com")
	assert.ErrorContains(t, err, "profile")
}
