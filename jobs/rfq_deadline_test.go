package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/meridian-procure/meridian-procure/internal/notify"
	"github.com/meridian-procure/meridian-procure/internal/rfq"
	_ "github.com/meridian-procure/meridian-procure/testing"
)

type fakeDeadlineSource struct {
	due    []rfq.RFQ
	window time.Duration
	err    error
}

func (f *fakeDeadlineSource) DueSoon(ctx context.Context, within time.Duration) ([]rfq.RFQ, error) {
	f.window = within
	return f.due, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRFQDeadlineScanEmitsReminders(t *testing.T) {
	source := &fakeDeadlineSource{due: []rfq.RFQ{
		{ID: 7, MRFID: 3, Deadline: time.Now().Add(6 * time.Hour), VendorIDs: []int64{10, 20}},
		{ID: 8, MRFID: 4, Deadline: time.Now().Add(20 * time.Hour), VendorIDs: []int64{30}},
	}}
	collector := &notify.CollectorSink{}
	job := NewRFQDeadlineJob(source, collector, nil, discardLogger(), 24*time.Hour)

	task, err := NewDeadlineScanTask(24 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, collector.Events, 2)
	seen := map[int64]bool{}
	for _, event := range collector.Events {
		require.Equal(t, notify.EventRFQDeadlineDue, event.Type)
		seen[event.RFQID] = true
	}
	require.True(t, seen[7])
	require.True(t, seen[8])
	require.Equal(t, 24*time.Hour, source.window)
}

func TestRFQDeadlineScanWindowOverride(t *testing.T) {
	source := &fakeDeadlineSource{}
	job := NewRFQDeadlineJob(source, &notify.CollectorSink{}, nil, discardLogger(), 24*time.Hour)

	task, err := NewDeadlineScanTask(2 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 2*time.Hour, source.window)
}

func TestRFQDeadlineScanBadPayload(t *testing.T) {
	job := NewRFQDeadlineJob(&fakeDeadlineSource{}, &notify.CollectorSink{}, nil, discardLogger(), time.Hour)
	task := asynq.NewTask(TaskRFQDeadlineScan, []byte("{"))
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}

func TestRFQDeadlineScanSourceError(t *testing.T) {
	boom := errors.New("db down")
	job := NewRFQDeadlineJob(&fakeDeadlineSource{err: boom}, &notify.CollectorSink{}, nil, discardLogger(), time.Hour)
	task, err := NewDeadlineScanTask(time.Hour)
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestEventDeliveryHandlesQueuedEvent(t *testing.T) {
	collector := &notify.CollectorSink{}
	delivery := NewEventDelivery(collector, nil, discardLogger())

	event := notify.NewEvent(notify.EventRFQAwarded, 3, 7, map[string]any{"quotation_id": 12})
	body, err := json.Marshal(event)
	require.NoError(t, err)

	task := asynq.NewTask(notify.TaskTypeEvent, body)
	require.NoError(t, delivery.Handle(context.Background(), task))
	require.Len(t, collector.Events, 1)
	require.Equal(t, event.ID, collector.Events[0].ID)
}

func TestEventDeliveryBadPayload(t *testing.T) {
	delivery := NewEventDelivery(&notify.CollectorSink{}, nil, discardLogger())
	task := asynq.NewTask(notify.TaskTypeEvent, []byte("not json"))
	require.ErrorIs(t, delivery.Handle(context.Background(), task), asynq.SkipRetry)
}
