// Package notify carries workflow events to the user-facing notification
// subsystem. Delivery is best effort: a failed emit is logged by the caller
// and never rolls back a committed state transition.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the workflow engine.
const (
	EventMRFSubmitted    = "mrf.submitted"
	EventMRFApproved     = "mrf.approved"
	EventMRFRejected     = "mrf.rejected"
	EventMRFCompleted    = "mrf.completed"
	EventRFQCreated      = "rfq.created"
	EventRFQInvitation   = "rfq.invitation"
	EventRFQClosed       = "rfq.closed"
	EventRFQDeadlineDue  = "rfq.deadline_due"
	EventQuotationPlaced = "quotation.submitted"
	EventRFQAwarded      = "rfq.awarded"
	EventPOUploaded      = "po.uploaded"
	EventPOSigned        = "po.signed"
	EventPORejected      = "po.rejected"
)

// Event is a single workflow notification.
type Event struct {
	ID      uuid.UUID      `json:"id"`
	Type    string         `json:"type"`
	MRFID   int64          `json:"mrf_id,omitempty"`
	RFQID   int64          `json:"rfq_id,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	At      time.Time      `json:"at"`
}

// NewEvent stamps identity and time onto an event.
func NewEvent(eventType string, mrfID, rfqID int64, payload map[string]any) Event {
	return Event{
		ID:      uuid.New(),
		Type:    eventType,
		MRFID:   mrfID,
		RFQID:   rfqID,
		Payload: payload,
		At:      time.Now().UTC(),
	}
}

// Sink receives workflow events.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}
