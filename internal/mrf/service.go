package mrf

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-procure/meridian-procure/internal/identity"
	"github.com/meridian-procure/meridian-procure/internal/notify"
	"github.com/meridian-procure/meridian-procure/internal/shared"
	"github.com/meridian-procure/meridian-procure/internal/workflow"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (MRF, error)
	List(ctx context.Context, filters ListFilters) ([]MRF, int, error)
}

// TxRepository exposes transactional operations on the aggregate.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (MRF, error)
	Create(ctx context.Context, m MRF) (int64, error)
	NextControlSeq(ctx context.Context, year int) (int, error)
	AppendHistory(ctx context.Context, mrfID int64, entry HistoryEntry) error
	// UpdateWorkflow persists stage/escalation/PO fields guarded by the
	// optimistic version; a stale version yields ErrConcurrentModification.
	UpdateWorkflow(ctx context.Context, m MRF) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ListFilters narrows requisition listings.
type ListFilters struct {
	Stage      workflow.Stage
	Department string
	Search     string
	Limit      int
	Offset     int
}

// Service is the approval gate: it wraps the workflow state machine with
// authorization and immutable history recording.
type Service struct {
	repo      RepositoryPort
	sink      notify.Sink
	audit     AuditPort
	logger    *slog.Logger
	threshold decimal.Decimal
}

// NewService constructs the approval gate.
func NewService(repo RepositoryPort, sink notify.Sink, audit AuditPort, logger *slog.Logger, threshold decimal.Decimal) *Service {
	if threshold.IsZero() {
		threshold = workflow.DefaultHighValueThreshold
	}
	return &Service{repo: repo, sink: sink, audit: audit, logger: logger, threshold: threshold}
}

// SubmitInput describes a new requisition.
type SubmitInput struct {
	Title         string          `json:"title" validate:"required"`
	Category      string          `json:"category" validate:"required"`
	Description   string          `json:"description"`
	Quantity      int             `json:"quantity" validate:"gt=0"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	Urgency       Urgency         `json:"urgency" validate:"oneof=low medium high"`
	Justification string          `json:"justification"`
	Department    string          `json:"department" validate:"required"`
}

// Submit creates a requisition at the submitted stage.
func (s *Service) Submit(ctx context.Context, input SubmitInput, actor identity.Actor) (MRF, error) {
	return s.create(ctx, input, actor, 0)
}

// Resubmit creates a fresh requisition referencing a rejected original.
func (s *Service) Resubmit(ctx context.Context, originalID int64, input SubmitInput, actor identity.Actor) (MRF, error) {
	original, err := s.repo.Get(ctx, originalID)
	if err != nil {
		return MRF{}, err
	}
	if original.CurrentStage != workflow.StageRejected {
		return MRF{}, fmt.Errorf("requisition %s is at stage %s, only rejected requisitions can be resubmitted: %w",
			original.ControlNumber, original.CurrentStage, shared.ErrInvalidTransition)
	}
	return s.create(ctx, input, actor, originalID)
}

func (s *Service) create(ctx context.Context, input SubmitInput, actor identity.Actor, originalID int64) (MRF, error) {
	now := time.Now()
	m := MRF{
		Title:          strings.TrimSpace(input.Title),
		Category:       strings.TrimSpace(input.Category),
		Description:    input.Description,
		Quantity:       input.Quantity,
		EstimatedCost:  input.EstimatedCost,
		Urgency:        input.Urgency,
		Justification:  input.Justification,
		Department:     input.Department,
		RequesterID:    actor.ID,
		RequesterName:  actor.Name,
		CurrentStage:   workflow.StageSubmitted,
		IsResubmission: originalID != 0,
		OriginalID:     originalID,
		POVersion:      1,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := validate(m); err != nil {
		return MRF{}, err
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextControlSeq(ctx, now.Year())
		if err != nil {
			return err
		}
		m.ControlNumber = fmt.Sprintf("MRF-%d-%04d", now.Year(), seq)
		id, err := tx.Create(ctx, m)
		if err != nil {
			return err
		}
		m.ID = id
		return nil
	})
	if err != nil {
		return MRF{}, err
	}

	s.recordAudit(ctx, actor, "MRF_SUBMIT", m.ID, map[string]any{"control_number": m.ControlNumber, "resubmission": m.IsResubmission})
	s.emit(ctx, notify.NewEvent(notify.EventMRFSubmitted, m.ID, 0, map[string]any{
		"control_number": m.ControlNumber,
		"department":     m.Department,
	}))
	return m, nil
}

// Approve records the approval of the actor responsible for the current stage
// and advances the requisition. History append and stage mutation commit in
// one transaction.
func (s *Service) Approve(ctx context.Context, mrfID int64, actor identity.Actor, remarks string) (MRF, error) {
	var updated MRF
	var event notify.Event
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetForUpdate(ctx, mrfID)
		if err != nil {
			return err
		}
		if err := s.authorize(m, actor); err != nil {
			return err
		}
		if m.CurrentStage == workflow.StageProcurement && m.Awarded() {
			return fmt.Errorf("requisition %s awaits purchase order re-issue, not a forwarding approval: %w",
				m.ControlNumber, shared.ErrInvalidTransition)
		}

		// The chairman-routing guard runs exactly once, on the executive's
		// approval, against the cost recorded at that moment.
		if m.CurrentStage == workflow.StageExecutive && !m.EscalationDecided {
			m.Escalated = workflow.HighValue(m.EstimatedCost, s.threshold)
			m.EscalationDecided = true
		}

		next, err := workflow.Next(m.CurrentStage, m.Escalated)
		if err != nil {
			return err
		}

		entry := HistoryEntry{
			Seq:       len(m.History) + 1,
			Stage:     m.CurrentStage,
			Next:      next,
			ActorID:   actor.ID,
			ActorName: actor.Name,
			Role:      actor.Role,
			Action:    workflow.ActionApproved,
			Remarks:   remarks,
			At:        time.Now(),
		}
		if err := tx.AppendHistory(ctx, m.ID, entry); err != nil {
			return err
		}
		m.History = append(m.History, entry)
		m.CurrentStage = next
		if err := tx.UpdateWorkflow(ctx, m); err != nil {
			return err
		}

		updated = m
		eventType := notify.EventMRFApproved
		if next == workflow.StageCompleted {
			eventType = notify.EventMRFCompleted
		}
		event = notify.NewEvent(eventType, m.ID, 0, map[string]any{
			"control_number": m.ControlNumber,
			"stage":          string(entry.Stage),
			"next_stage":     string(next),
		})
		return nil
	})
	if err != nil {
		return MRF{}, err
	}

	s.recordAudit(ctx, actor, "MRF_APPROVE", updated.ID, map[string]any{"stage": string(updated.CurrentStage)})
	s.emit(ctx, event)
	return updated, nil
}

// Reject marks the requisition rejected with a mandatory reason.
func (s *Service) Reject(ctx context.Context, mrfID int64, actor identity.Actor, reason string) (MRF, error) {
	if strings.TrimSpace(reason) == "" {
		return MRF{}, fmt.Errorf("rejection reason is required: %w", shared.ErrValidation)
	}

	var updated MRF
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetForUpdate(ctx, mrfID)
		if err != nil {
			return err
		}
		if err := s.authorize(m, actor); err != nil {
			return err
		}
		next, err := workflow.Reject(m.CurrentStage)
		if err != nil {
			return err
		}

		entry := HistoryEntry{
			Seq:       len(m.History) + 1,
			Stage:     m.CurrentStage,
			Next:      next,
			ActorID:   actor.ID,
			ActorName: actor.Name,
			Role:      actor.Role,
			Action:    workflow.ActionRejected,
			Remarks:   reason,
			At:        time.Now(),
		}
		if err := tx.AppendHistory(ctx, m.ID, entry); err != nil {
			return err
		}
		m.History = append(m.History, entry)
		m.CurrentStage = next
		m.RejectionReason = reason
		if err := tx.UpdateWorkflow(ctx, m); err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		return MRF{}, err
	}

	s.recordAudit(ctx, actor, "MRF_REJECT", updated.ID, map[string]any{"reason": reason})
	s.emit(ctx, notify.NewEvent(notify.EventMRFRejected, updated.ID, 0, map[string]any{
		"control_number": updated.ControlNumber,
		"stage":          string(updated.History[len(updated.History)-1].Stage),
		"reason":         reason,
	}))
	return updated, nil
}

// Get returns one requisition with its history.
func (s *Service) Get(ctx context.Context, id int64) (MRF, error) {
	return s.repo.Get(ctx, id)
}

// List returns requisitions matching filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]MRF, int, error) {
	return s.repo.List(ctx, filters)
}

// authorize checks that the actor holds the single role permitted to act at
// the requisition's current stage.
func (s *Service) authorize(m MRF, actor identity.Actor) error {
	if m.CurrentStage.Terminal() {
		return fmt.Errorf("requisition %s is %s: %w", m.ControlNumber, m.CurrentStage, shared.ErrInvalidTransition)
	}
	required, ok := workflow.RoleFor(m.CurrentStage)
	if !ok {
		return fmt.Errorf("no approver for stage %s: %w", m.CurrentStage, shared.ErrInvalidTransition)
	}
	if actor.Role != required {
		return fmt.Errorf("stage %s requires role %s, actor %q holds %s: %w",
			m.CurrentStage, required, actor.Name, actor.Role, shared.ErrUnauthorized)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor identity.Actor, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actor.ID,
		ActorRole: string(actor.Role),
		Action:    action,
		Entity:    "mrf",
		EntityID:  fmt.Sprintf("%d", entityID),
		Meta:      meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("record audit", slog.Any("error", err))
	}
}

// emit delivers the event best effort; a sink failure never fails a committed
// transition.
func (s *Service) emit(ctx context.Context, event notify.Event) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.Warn("emit event", slog.String("type", event.Type), slog.Any("error", err))
	}
}
