package notify

import (
	"context"
	"log/slog"
)

// LogSink writes events to the structured log. Used in development and as the
// fallback when no queue is configured.
type LogSink struct {
	Logger *slog.Logger
}

// Emit logs the event.
func (s LogSink) Emit(ctx context.Context, event Event) error {
	if s.Logger == nil {
		return nil
	}
	s.Logger.Info("workflow event",
		slog.String("type", event.Type),
		slog.Int64("mrf_id", event.MRFID),
		slog.Int64("rfq_id", event.RFQID),
		slog.String("event_id", event.ID.String()),
	)
	return nil
}

// CollectorSink records events in memory. Test helper.
type CollectorSink struct {
	Events []Event
}

// Emit appends the event.
func (s *CollectorSink) Emit(ctx context.Context, event Event) error {
	s.Events = append(s.Events, event)
	return nil
}
