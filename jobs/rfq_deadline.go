package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-procure/meridian-procure/internal/notify"
	"github.com/meridian-procure/meridian-procure/internal/observability"
	"github.com/meridian-procure/meridian-procure/internal/rfq"
)

// TaskRFQDeadlineScan scans for RFQs approaching their submission deadline
// and emits reminder events for invited vendors.
const TaskRFQDeadlineScan = "rfq:deadline_scan"

const deadlineEmitConcurrency = 4

// DeadlineScanPayload carries the lookahead window for a scan run.
type DeadlineScanPayload struct {
	Window string `json:"window"`
}

// NewDeadlineScanTask builds a deadline scan task for the given window.
func NewDeadlineScanTask(window time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(DeadlineScanPayload{Window: window.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRFQDeadlineScan, body, asynq.Queue(QueueDefault)), nil
}

// DeadlineSource lists open RFQs closing within a window.
type DeadlineSource interface {
	DueSoon(ctx context.Context, within time.Duration) ([]rfq.RFQ, error)
}

// RFQDeadlineJob emits rfq.deadline_due events for open RFQs that close
// within the configured window. Reminders are advisory; quotations are only
// cut off at the deadline itself.
type RFQDeadlineJob struct {
	source  DeadlineSource
	sink    notify.Sink
	metrics *observability.Metrics
	logger  *slog.Logger
	window  time.Duration
}

// NewRFQDeadlineJob constructs the deadline reminder job.
func NewRFQDeadlineJob(source DeadlineSource, sink notify.Sink, metrics *observability.Metrics, logger *slog.Logger, window time.Duration) *RFQDeadlineJob {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &RFQDeadlineJob{source: source, sink: sink, metrics: metrics, logger: logger, window: window}
}

// Handle runs a single scan.
func (j *RFQDeadlineJob) Handle(ctx context.Context, t *asynq.Task) error {
	window := j.window
	var payload DeadlineScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.Window != "" {
			parsed, err := time.ParseDuration(payload.Window)
			if err != nil || parsed <= 0 {
				return asynq.SkipRetry
			}
			window = parsed
		}
	}

	due, err := j.source.DueSoon(ctx, window)
	if err != nil {
		j.metrics.RecordJob(TaskRFQDeadlineScan, "failure")
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deadlineEmitConcurrency)
	for i := range due {
		r := due[i]
		g.Go(func() error {
			event := notify.NewEvent(notify.EventRFQDeadlineDue, r.MRFID, r.ID, map[string]any{
				"deadline": r.Deadline.UTC().Format(time.RFC3339),
				"vendors":  len(r.VendorIDs),
			})
			if err := j.sink.Emit(gctx, event); err != nil {
				j.logger.Warn("deadline reminder emit",
					slog.Int64("rfq_id", r.ID),
					slog.Any("error", err))
			}
			return nil
		})
	}
	_ = g.Wait()

	j.metrics.RecordJob(TaskRFQDeadlineScan, "success")
	j.logger.Info("rfq deadline scan",
		slog.Duration("window", window),
		slog.Int("due", len(due)))
	return nil
}
