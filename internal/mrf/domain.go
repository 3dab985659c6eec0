// Package mrf holds the material requisition aggregate and the approval gate
// that drives it through the workflow.
package mrf

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-procure/meridian-procure/internal/docs"
	"github.com/meridian-procure/meridian-procure/internal/identity"
	"github.com/meridian-procure/meridian-procure/internal/shared"
	"github.com/meridian-procure/meridian-procure/internal/workflow"
)

// Urgency of a requisition.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// HistoryEntry is one immutable approval record. Stage is the desk at which
// the action happened; Next is the stage the FSM moved the requisition to.
// The pair makes the current stage derivable from history alone.
type HistoryEntry struct {
	Seq       int             `json:"seq"`
	Stage     workflow.Stage  `json:"stage"`
	Next      workflow.Stage  `json:"next"`
	ActorID   int64           `json:"actor_id"`
	ActorName string          `json:"actor_name"`
	Role      identity.Role   `json:"role"`
	Action    workflow.Action `json:"action"`
	Remarks   string          `json:"remarks,omitempty"`
	At        time.Time       `json:"at"`
}

// MRF is the material/service requisition aggregate, the sole writable root
// for workflow state.
type MRF struct {
	ID            int64           `json:"id"`
	ControlNumber string          `json:"control_number"`
	Title         string          `json:"title"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
	Quantity      int             `json:"quantity"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	Urgency       Urgency         `json:"urgency"`
	Justification string          `json:"justification"`
	Department    string          `json:"department"`
	RequesterID   int64           `json:"requester_id"`
	RequesterName string          `json:"requester_name"`

	CurrentStage    workflow.Stage `json:"current_stage"`
	History         []HistoryEntry `json:"approval_history"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	IsResubmission  bool           `json:"is_resubmission"`
	OriginalID      int64          `json:"original_id,omitempty"`

	// Escalated records the chairman-routing decision taken once, at the
	// executive approval, from the cost at that moment.
	Escalated         bool `json:"escalated"`
	EscalationDecided bool `json:"escalation_decided"`

	// Purchase order lifecycle.
	AwardedQuotationID int64    `json:"awarded_quotation_id,omitempty"`
	PONumber           string   `json:"po_number,omitempty"`
	UnsignedPOURL      docs.Ref `json:"unsigned_po_url,omitempty"`
	SignedPOURL        docs.Ref `json:"signed_po_url,omitempty"`
	POVersion          int      `json:"po_version"`
	PORejectionReason  string   `json:"po_rejection_reason,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Awarded reports whether a winning quotation has been selected.
func (m *MRF) Awarded() bool {
	return m.AwardedQuotationID != 0
}

// CanUploadUnsignedPO reports whether an unsigned purchase order may be
// attached now.
func (m *MRF) CanUploadUnsignedPO() bool {
	if !m.Awarded() || m.SignedPOURL != "" || m.UnsignedPOURL != "" {
		return false
	}
	return m.CurrentStage == workflow.StageSupplyChain || m.CurrentStage == workflow.StageProcurement
}

// CanUploadSignedPO reports whether the signature upload is legal now.
func (m *MRF) CanUploadSignedPO() bool {
	return m.UnsignedPOURL != "" && m.SignedPOURL == "" && m.CurrentStage == workflow.StageSupplyChain
}

// CanRejectPO reports whether the purchase order may be sent back.
func (m *MRF) CanRejectPO() bool {
	return m.UnsignedPOURL != "" && m.SignedPOURL == "" && m.CurrentStage == workflow.StageSupplyChain
}

// VerifyHistory checks the audit invariant: history is append-only with
// contiguous sequence numbers and the current stage equals the stage implied
// by the last entry.
func VerifyHistory(m *MRF) error {
	implied := workflow.StageSubmitted
	for i, entry := range m.History {
		if entry.Seq != i+1 {
			return fmt.Errorf("history entry %d has seq %d", i, entry.Seq)
		}
		if entry.Stage != implied {
			return fmt.Errorf("history entry %d acted at stage %s, expected %s", i, entry.Stage, implied)
		}
		implied = entry.Next
	}
	if m.CurrentStage != implied {
		return fmt.Errorf("current stage %s diverges from history-implied stage %s", m.CurrentStage, implied)
	}
	return nil
}

func (u Urgency) known() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	}
	return false
}

func validate(m MRF) error {
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("title is required: %w", shared.ErrValidation)
	}
	if strings.TrimSpace(m.Category) == "" {
		return fmt.Errorf("category is required: %w", shared.ErrValidation)
	}
	if m.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive: %w", shared.ErrValidation)
	}
	if m.EstimatedCost.IsNegative() {
		return fmt.Errorf("estimated cost must be non-negative: %w", shared.ErrValidation)
	}
	if !m.Urgency.known() {
		return fmt.Errorf("urgency %q is not one of low/medium/high: %w", m.Urgency, shared.ErrValidation)
	}
	return nil
}
