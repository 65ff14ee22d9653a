// Package progress defines the event stream emitted by one refresh
// pipeline run. Events form a single total order as observed by the
// consumer; the stream always terminates with exactly one done or
// error event.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/feedwise/feedwise/internal/store"
)

// Type discriminates the closed set of progress event variants.
type Type string

// Supported progress event types.
const (
	TypeStatus       Type = "status"
	TypeArticle      Type = "article"
	TypeArticleReady Type = "article_ready"
	TypeDone         Type = "done"
	TypeError        Type = "error"
)

// Event is one tagged progress variant. Only the fields belonging to
// its Type are meaningful; use the constructors below rather than
// building Events by hand.
type Event struct {
	Type Type

	// Icon and Message accompany status and article events.
	Icon    string
	Message string

	// Score travels with article events announcing enrichment.
	Score int

	// Article carries the persisted record on article_ready events.
	Article *store.Article

	// Processed carries the count of newly processed items on done.
	Processed int
}

// Status builds a status event with a display icon and message.
func Status(icon, message string) Event {
	return Event{Type: TypeStatus, Icon: icon, Message: message}
}

// Article announces an item entering enrichment along with its score.
func Article(icon, message string, score int) Event {
	return Event{Type: TypeArticle, Icon: icon, Message: message, Score: score}
}

// ArticleReady carries a fully persisted article to the consumer.
func ArticleReady(article *store.Article) Event {
	return Event{Type: TypeArticleReady, Article: article}
}

// Done terminates the stream with the count of newly processed items.
func Done(processed int) Event {
	return Event{Type: TypeDone, Processed: processed}
}

// Error terminates the stream with a human-readable message.
func Error(message string) Event {
	return Event{Type: TypeError, Message: message}
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	switch e.Type {
	case TypeStatus:
		if e.Message == "" {
			return errors.New("status event requires a message")
		}
	case TypeArticle:
		if e.Message == "" {
			return errors.New("article event requires a message")
		}
		if e.Score < 1 || e.Score > 10 {
			return fmt.Errorf("article event score %d out of range", e.Score)
		}
	case TypeArticleReady:
		if e.Article == nil {
			return errors.New("article_ready event requires an article")
		}
	case TypeDone:
		if e.Processed < 0 {
			return errors.New("done event processed count must be >= 0")
		}
	case TypeError:
		if e.Message == "" {
			return errors.New("error event requires a message")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == TypeDone || e.Type == TypeError
}

// MarshalJSON emits the exact wire shape for each variant, matching
// one JSON object per server-push line.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case TypeStatus:
		return json.Marshal(struct {
			Type    Type   `json:"type"`
			Icon    string `json:"icon"`
			Message string `json:"message"`
		}{e.Type, e.Icon, e.Message})
	case TypeArticle:
		return json.Marshal(struct {
			Type    Type   `json:"type"`
			Icon    string `json:"icon"`
			Message string `json:"message"`
			Score   int    `json:"score"`
		}{e.Type, e.Icon, e.Message, e.Score})
	case TypeArticleReady:
		return json.Marshal(struct {
			Type    Type           `json:"type"`
			Article *store.Article `json:"article"`
		}{e.Type, e.Article})
	case TypeDone:
		return json.Marshal(struct {
			Type      Type `json:"type"`
			Processed int  `json:"processed"`
		}{e.Type, e.Processed})
	case TypeError:
		return json.Marshal(struct {
			Type    Type   `json:"type"`
			Message string `json:"message"`
		}{e.Type, e.Message})
	default:
		return nil, fmt.Errorf("cannot marshal unknown event type %q", e.Type)
	}
}
