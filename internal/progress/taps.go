package progress

import (
	"go.uber.org/zap"

	"github.com/feedwise/feedwise/internal/metrics"
)

// LogTap mirrors stream events into structured logs for debugging a
// run without attaching to its SSE stream.
type LogTap struct {
	logger *zap.Logger
}

// NewLogTap wires a zap logger to the Tap interface.
func NewLogTap(logger *zap.Logger) *LogTap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTap{logger: logger}
}

// Observe logs one event with its type-specific fields.
func (t *LogTap) Observe(evt Event) {
	fields := []zap.Field{zap.String("type", string(evt.Type))}
	switch evt.Type {
	case TypeStatus, TypeError:
		fields = append(fields, zap.String("message", evt.Message))
	case TypeArticle:
		fields = append(fields, zap.String("message", evt.Message), zap.Int("score", evt.Score))
	case TypeArticleReady:
		if evt.Article != nil {
			fields = append(fields,
				zap.String("fingerprint", evt.Article.Fingerprint),
				zap.Int("score", evt.Article.RelevanceScore),
			)
		}
	case TypeDone:
		fields = append(fields, zap.Int("processed", evt.Processed))
	}
	t.logger.Debug("progress event", fields...)
}

// MetricsTap counts emitted events by type.
type MetricsTap struct{}

// Observe increments the per-type event counter.
func (MetricsTap) Observe(evt Event) {
	metrics.ObserveProgressEvent(string(evt.Type))
}
