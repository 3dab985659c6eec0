package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TaskTypeEvent is the asynq task type carrying a workflow event to the
// notification dashboards.
const TaskTypeEvent = "notify:event"

// QueueDefault is the queue notification tasks are enqueued on.
const QueueDefault = "default"

// NewEventTask wraps an event into an asynq task.
func NewEventTask(event Event) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeEvent, data, asynq.Queue(QueueDefault)), nil
}

// AsynqSink enqueues events for background delivery.
type AsynqSink struct {
	client *asynq.Client
}

// NewAsynqSink constructs an AsynqSink.
func NewAsynqSink(client *asynq.Client) *AsynqSink {
	return &AsynqSink{client: client}
}

// Emit enqueues the event task.
func (s *AsynqSink) Emit(ctx context.Context, event Event) error {
	task, err := NewEventTask(event)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}
	if _, err := s.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("notify: enqueue event: %w", err)
	}
	return nil
}
