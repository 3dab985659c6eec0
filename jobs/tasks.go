// Package jobs hosts the asynq worker, queue client and background task
// handlers for deferred event delivery and deadline reminders.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-procure/meridian-procure/internal/notify"
	"github.com/meridian-procure/meridian-procure/internal/observability"
)

// QueueDefault is the default queue name for background jobs.
const QueueDefault = "default"

// EventDelivery drains queued workflow events and hands them to the
// configured delivery sinks. The HTTP tier enqueues events through
// notify.AsynqSink; this is the consuming end.
type EventDelivery struct {
	sink    notify.Sink
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewEventDelivery constructs the event delivery handler.
func NewEventDelivery(sink notify.Sink, metrics *observability.Metrics, logger *slog.Logger) *EventDelivery {
	return &EventDelivery{sink: sink, metrics: metrics, logger: logger}
}

// Handle processes a single queued event task.
func (d *EventDelivery) Handle(ctx context.Context, t *asynq.Task) error {
	var event notify.Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		d.logger.Warn("event delivery: bad payload", slog.Any("error", err))
		return asynq.SkipRetry
	}
	if err := d.sink.Emit(ctx, event); err != nil {
		d.metrics.RecordJob(notify.TaskTypeEvent, "failure")
		d.logger.Error("event delivery",
			slog.String("type", event.Type),
			slog.Int64("mrf_id", event.MRFID),
			slog.Any("error", err))
		return err
	}
	d.metrics.RecordJob(notify.TaskTypeEvent, "success")
	return nil
}
