// Package award drives the post-sourcing half of a requisition: selecting
// the winning quotation and walking the purchase order through its
// issue/sign/reject loop.
package award

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meridian-procure/meridian-procure/internal/docs"
	"github.com/meridian-procure/meridian-procure/internal/identity"
	"github.com/meridian-procure/meridian-procure/internal/mrf"
	"github.com/meridian-procure/meridian-procure/internal/notify"
	"github.com/meridian-procure/meridian-procure/internal/rfq"
	"github.com/meridian-procure/meridian-procure/internal/shared"
	"github.com/meridian-procure/meridian-procure/internal/workflow"
)

// RepositoryPort describes repository operations used by Service. Award
// mutations always span the requisition and its RFQ, so the transactional
// surface covers both aggregates.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the cross-aggregate operations of one award
// transaction.
type TxRepository interface {
	Requisition(ctx context.Context, id int64) (mrf.MRF, error)
	AppendHistory(ctx context.Context, mrfID int64, entry mrf.HistoryEntry) error
	UpdateRequisition(ctx context.Context, m mrf.MRF) error
	RFQ(ctx context.Context, id int64) (rfq.RFQ, error)
	UpdateRFQStatus(ctx context.Context, id int64, status rfq.Status) error
	Quotations(ctx context.Context, rfqID int64) ([]rfq.Quotation, error)
	UpdateQuotationStatus(ctx context.Context, id int64, status rfq.QuotationStatus) error
}

// Locker serializes concurrent awards on one RFQ.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the award and purchase order lifecycle controller.
type Service struct {
	repo   RepositoryPort
	locks  Locker
	sink   notify.Sink
	audit  AuditPort
	logger *slog.Logger

	// poRejectionSoftCap emits an escalation signal once poVersion passes
	// it. Zero disables the cap; the loop itself stays unbounded.
	poRejectionSoftCap int
}

// NewService constructs the award controller.
func NewService(repo RepositoryPort, locks Locker, sink notify.Sink, audit AuditPort, logger *slog.Logger, poRejectionSoftCap int) *Service {
	return &Service{repo: repo, locks: locks, sink: sink, audit: audit, logger: logger, poRejectionSoftCap: poRejectionSoftCap}
}

// SelectVendor awards the RFQ to one quotation. The RFQ flips to Awarded,
// the chosen quotation to Approved, every sibling to Rejected, and the
// requisition records the winner, all in one transaction. A Redis lock plus
// the requisition's optimistic version guarantee at most one concurrent
// award succeeds.
func (s *Service) SelectVendor(ctx context.Context, rfqID, quotationID int64, actor identity.Actor) (rfq.RFQ, error) {
	if actor.Role != identity.RoleProcurementManager {
		return rfq.RFQ{}, fmt.Errorf("awarding requires role %s, actor %q holds %s: %w",
			identity.RoleProcurementManager, actor.Name, actor.Role, shared.ErrUnauthorized)
	}

	if s.locks != nil {
		release, err := s.locks.Acquire(ctx, shared.AwardLockKey(rfqID))
		if err != nil {
			if errors.Is(err, shared.ErrLockHeld) {
				return rfq.RFQ{}, fmt.Errorf("rfq %d award already in flight: %w", rfqID, shared.ErrConcurrentModification)
			}
			return rfq.RFQ{}, err
		}
		defer release()
	}

	var (
		awarded rfq.RFQ
		winner  rfq.Quotation
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		r, err := tx.RFQ(ctx, rfqID)
		if err != nil {
			return err
		}
		if r.Status != rfq.StatusOpen {
			return fmt.Errorf("rfq %d is %s, awarding needs an open RFQ: %w", r.ID, r.Status, shared.ErrInvalidState)
		}

		m, err := tx.Requisition(ctx, r.MRFID)
		if err != nil {
			return err
		}
		if m.CurrentStage != workflow.StageSupplyChain {
			return fmt.Errorf("requisition %s is at stage %s, vendor selection needs executive sign-off first: %w",
				m.ControlNumber, m.CurrentStage, shared.ErrInvalidState)
		}
		if m.Awarded() {
			return fmt.Errorf("requisition %s already has an awarded quotation: %w", m.ControlNumber, shared.ErrInvalidState)
		}

		quotations, err := tx.Quotations(ctx, r.ID)
		if err != nil {
			return err
		}
		var found bool
		for _, q := range quotations {
			if q.ID == quotationID {
				winner, found = q, true
				break
			}
		}
		if !found {
			return fmt.Errorf("quotation %d does not belong to rfq %d: %w", quotationID, r.ID, shared.ErrNotFound)
		}
		if winner.Status != rfq.QuotationPending {
			return fmt.Errorf("quotation %d is %s, only pending quotations win: %w", winner.ID, winner.Status, shared.ErrInvalidState)
		}

		if err := tx.UpdateRFQStatus(ctx, r.ID, rfq.StatusAwarded); err != nil {
			return err
		}
		if err := tx.UpdateQuotationStatus(ctx, winner.ID, rfq.QuotationApproved); err != nil {
			return err
		}
		for _, q := range quotations {
			if q.ID != winner.ID && q.Status == rfq.QuotationPending {
				if err := tx.UpdateQuotationStatus(ctx, q.ID, rfq.QuotationRejected); err != nil {
					return err
				}
			}
		}

		m.AwardedQuotationID = winner.ID
		if err := tx.UpdateRequisition(ctx, m); err != nil {
			return err
		}

		r.Status = rfq.StatusAwarded
		awarded = r
		return nil
	})
	if err != nil {
		return rfq.RFQ{}, err
	}

	s.recordAudit(ctx, actor, "RFQ_AWARD", awarded.MRFID, map[string]any{
		"rfq_id":       awarded.ID,
		"quotation_id": winner.ID,
		"vendor_name":  winner.VendorName,
	})
	s.emit(ctx, notify.NewEvent(notify.EventRFQAwarded, awarded.MRFID, awarded.ID, map[string]any{
		"control_number": awarded.MRFControlNumber,
		"quotation_id":   winner.ID,
		"vendor_name":    winner.VendorName,
	}))
	return awarded, nil
}

// UploadUnsignedPO attaches the draft purchase order. On the rework path,
// where a rejected PO bounced the requisition to the procurement desk, the
// re-issue also moves it back to the supply chain desk for signature.
func (s *Service) UploadUnsignedPO(ctx context.Context, mrfID int64, poNumber, fileRef string, actor identity.Actor) (mrf.MRF, error) {
	if actor.Role != identity.RoleProcurementManager {
		return mrf.MRF{}, fmt.Errorf("issuing a purchase order requires role %s: %w",
			identity.RoleProcurementManager, shared.ErrUnauthorized)
	}
	if strings.TrimSpace(poNumber) == "" {
		return mrf.MRF{}, fmt.Errorf("purchase order number is required: %w", shared.ErrValidation)
	}
	ref, err := docs.ParseRef(fileRef)
	if err != nil {
		return mrf.MRF{}, err
	}

	var updated mrf.MRF
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.Requisition(ctx, mrfID)
		if err != nil {
			return err
		}
		if !m.CanUploadUnsignedPO() {
			return fmt.Errorf("requisition %s cannot take an unsigned purchase order now (stage %s): %w",
				m.ControlNumber, m.CurrentStage, shared.ErrInvalidState)
		}

		if m.CurrentStage == workflow.StageProcurement {
			next, err := workflow.ReissuePO(m.CurrentStage)
			if err != nil {
				return err
			}
			entry := mrf.HistoryEntry{
				Seq:       len(m.History) + 1,
				Stage:     m.CurrentStage,
				Next:      next,
				ActorID:   actor.ID,
				ActorName: actor.Name,
				Role:      actor.Role,
				Action:    workflow.ActionApproved,
				Remarks:   fmt.Sprintf("purchase order %s re-issued (version %d)", poNumber, m.POVersion),
				At:        time.Now(),
			}
			if err := tx.AppendHistory(ctx, m.ID, entry); err != nil {
				return err
			}
			m.History = append(m.History, entry)
			m.CurrentStage = next
		}

		m.PONumber = poNumber
		m.UnsignedPOURL = ref
		if err := tx.UpdateRequisition(ctx, m); err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		return mrf.MRF{}, err
	}

	s.recordAudit(ctx, actor, "PO_UPLOAD", updated.ID, map[string]any{"po_number": poNumber, "po_version": updated.POVersion})
	s.emit(ctx, notify.NewEvent(notify.EventPOUploaded, updated.ID, 0, map[string]any{
		"control_number": updated.ControlNumber,
		"po_number":      poNumber,
		"po_version":     updated.POVersion,
	}))
	return updated, nil
}

// UploadSignedPO records the supply chain director's signature and advances
// the requisition to the finance desk.
func (s *Service) UploadSignedPO(ctx context.Context, mrfID int64, fileRef string, actor identity.Actor) (mrf.MRF, error) {
	if actor.Role != identity.RoleSupplyChainDirector {
		return mrf.MRF{}, fmt.Errorf("signing a purchase order requires role %s: %w",
			identity.RoleSupplyChainDirector, shared.ErrUnauthorized)
	}
	ref, err := docs.ParseRef(fileRef)
	if err != nil {
		return mrf.MRF{}, err
	}

	var updated mrf.MRF
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.Requisition(ctx, mrfID)
		if err != nil {
			return err
		}
		if !m.CanUploadSignedPO() {
			return fmt.Errorf("requisition %s has no unsigned purchase order awaiting signature: %w",
				m.ControlNumber, shared.ErrInvalidState)
		}
		next, err := workflow.SignPO(m.CurrentStage)
		if err != nil {
			return err
		}

		entry := mrf.HistoryEntry{
			Seq:       len(m.History) + 1,
			Stage:     m.CurrentStage,
			Next:      next,
			ActorID:   actor.ID,
			ActorName: actor.Name,
			Role:      actor.Role,
			Action:    workflow.ActionApproved,
			Remarks:   fmt.Sprintf("purchase order %s signed", m.PONumber),
			At:        time.Now(),
		}
		if err := tx.AppendHistory(ctx, m.ID, entry); err != nil {
			return err
		}
		m.History = append(m.History, entry)
		m.CurrentStage = next
		m.SignedPOURL = ref
		if err := tx.UpdateRequisition(ctx, m); err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		return mrf.MRF{}, err
	}

	s.recordAudit(ctx, actor, "PO_SIGN", updated.ID, map[string]any{"po_number": updated.PONumber})
	s.emit(ctx, notify.NewEvent(notify.EventPOSigned, updated.ID, 0, map[string]any{
		"control_number": updated.ControlNumber,
		"po_number":      updated.PONumber,
	}))
	return updated, nil
}

// RejectPO bounces the unsigned purchase order back to the procurement desk
// for rework: the version ticks up, both document references clear, and a
// fresh unsigned upload is required before signature can be attempted again.
func (s *Service) RejectPO(ctx context.Context, mrfID int64, reason, comments string, actor identity.Actor) (mrf.MRF, error) {
	if actor.Role != identity.RoleSupplyChainDirector {
		return mrf.MRF{}, fmt.Errorf("rejecting a purchase order requires role %s: %w",
			identity.RoleSupplyChainDirector, shared.ErrUnauthorized)
	}
	if strings.TrimSpace(reason) == "" {
		return mrf.MRF{}, fmt.Errorf("rejection reason is required: %w", shared.ErrValidation)
	}

	var updated mrf.MRF
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.Requisition(ctx, mrfID)
		if err != nil {
			return err
		}
		if !m.CanRejectPO() {
			return fmt.Errorf("requisition %s has no rejectable purchase order: %w", m.ControlNumber, shared.ErrInvalidState)
		}
		next, err := workflow.RejectPO(m.CurrentStage)
		if err != nil {
			return err
		}

		remarks := reason
		if strings.TrimSpace(comments) != "" {
			remarks = reason + ": " + comments
		}
		entry := mrf.HistoryEntry{
			Seq:       len(m.History) + 1,
			Stage:     m.CurrentStage,
			Next:      next,
			ActorID:   actor.ID,
			ActorName: actor.Name,
			Role:      actor.Role,
			Action:    workflow.ActionRejected,
			Remarks:   remarks,
			At:        time.Now(),
		}
		if err := tx.AppendHistory(ctx, m.ID, entry); err != nil {
			return err
		}
		m.History = append(m.History, entry)
		m.CurrentStage = next
		m.POVersion++
		m.UnsignedPOURL = ""
		m.SignedPOURL = ""
		m.PORejectionReason = reason
		if err := tx.UpdateRequisition(ctx, m); err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		return mrf.MRF{}, err
	}

	s.recordAudit(ctx, actor, "PO_REJECT", updated.ID, map[string]any{"reason": reason, "po_version": updated.POVersion})
	payload := map[string]any{
		"control_number": updated.ControlNumber,
		"reason":         reason,
		"po_version":     updated.POVersion,
	}
	if s.poRejectionSoftCap > 0 && updated.POVersion > s.poRejectionSoftCap {
		payload["escalate"] = true
	}
	s.emit(ctx, notify.NewEvent(notify.EventPORejected, updated.ID, 0, payload))
	return updated, nil
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

func (s *Service) emit(ctx context.Context, event notify.Event) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.Warn("emit event", slog.String("type", event.Type), slog.Any("error", err))
	}
}
