package notify

import "context"

// MultiSink fans one event out to several sinks. Delivery stays best effort:
// the first error is returned for logging, later sinks still run.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) error {
	var first error
	for _, s := range m {
		if err := s.Emit(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// WorkflowCounters is the slice of the metrics surface the sink needs.
type WorkflowCounters interface {
	RecordTransition(stage, action string)
	RecordAward()
}

// MetricsSink turns workflow events into Prometheus counters.
type MetricsSink struct {
	Counters WorkflowCounters
}

func (s MetricsSink) Emit(_ context.Context, event Event) error {
	if s.Counters == nil {
		return nil
	}
	switch event.Type {
	case EventMRFApproved, EventMRFCompleted:
		s.Counters.RecordTransition(payloadString(event, "stage"), "approved")
	case EventMRFRejected:
		s.Counters.RecordTransition(payloadString(event, "stage"), "rejected")
	case EventRFQAwarded:
		s.Counters.RecordAward()
	}
	return nil
}

func payloadString(event Event, key string) string {
	v, _ := event.Payload[key].(string)
	return v
}
