package progress

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedwise/feedwise/internal/store"
)

func TestEventWireShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		evt  Event
		want string
	}{
		{
			name: "status",
			evt:  Status("🔍", "searching"),
			want: `{"type":"status","icon":"🔍","message":"searching"}`,
		},
		{
			name: "article",
			evt:  Article("🔥", "Big launch", 9),
			want: `{"type":"article","icon":"🔥","message":"Big launch","score":9}`,
		},
		{
			name: "done zero processed",
			evt:  Done(0),
			want: `{"type":"done","processed":0}`,
		},
		{
			name: "error",
			evt:  Error("no profile"),
			want: `{"type":"error","message":"no profile"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data, err := json.Marshal(tt.evt)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestArticleReadyCarriesRecord(t *testing.T) {
	t.Parallel()

	art := &store.Article{ID: "a1", UserID: "u1", Fingerprint: "abcd", RelevanceScore: 8}
	data, err := json.Marshal(ArticleReady(art))
	require.NoError(t, err)

	var decoded struct {
		Type    string        `json:"type"`
		Article store.Article `json:"article"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "article_ready", decoded.Type)
	assert.Equal(t, "abcd", decoded.Article.Fingerprint)
	assert.Equal(t, 8, decoded.Article.RelevanceScore)
}

func TestValidateRejectsMalformedEvents(t *testing.T) {
	t.Parallel()

	assert.Error(t, Event{Type: TypeStatus}.Validate())
	assert.Error(t, Event{Type: TypeArticle, Message: "x", Score: 0}.Validate())
	assert.Error(t, Event{Type: TypeArticleReady}.Validate())
	assert.Error(t, Event{Type: "bogus"}.Validate())
	assert.NoError(t, Done(0).Validate())
}

func TestTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, Done(3).Terminal())
	assert.True(t, Error("x").Terminal())
	assert.False(t, Status("i", "m").Terminal())
}

func TestStreamPreservesOrder(t *testing.T) {
	t.Parallel()

	s := NewStream()
	ctx := context.Background()

	go func() {
		_ = s.Emit(ctx, Status("1", "one"))
		_ = s.Emit(ctx, Status("2", "two"))
		_ = s.Emit(ctx, Done(2))
		s.Close()
	}()

	var got []Event
	for evt := range s.Events() {
		got = append(got, evt)
	}
	require.Len(t, got, 3)
	assert.Equal(t, "one", got[0].Message)
	assert.Equal(t, "two", got[1].Message)
	assert.Equal(t, TypeDone, got[2].Type)
}

func TestStreamEmitHonorsCancellation(t *testing.T) {
	t.Parallel()

	s := NewStream()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Fill the buffer so Emit has to block, then expect ctx error.
	for range defaultBuffer {
		require.NoError(t, s.Emit(context.Background(), Status("i", "fill")))
	}
	err := s.Emit(ctx, Status("i", "overflow"))
	assert.ErrorIs(t, err, context.Canceled)
}

type recordingTap struct {
	seen []Type
}

func (r *recordingTap) Observe(evt Event) {
	r.seen = append(r.seen, evt.Type)
}

func TestStreamNotifiesTaps(t *testing.T) {
	t.Parallel()

	tap := &recordingTap{}
	s := NewStream(tap)
	require.NoError(t, s.Emit(context.Background(), Status("i", "m")))
	require.NoError(t, s.Emit(context.Background(), Done(0)))
	assert.Equal(t, []Type{TypeStatus, TypeDone}, tap.seen)
}
