package rfq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meridian-procure/meridian-procure/internal/identity"
	"github.com/meridian-procure/meridian-procure/internal/mrf"
	"github.com/meridian-procure/meridian-procure/internal/notify"
	"github.com/meridian-procure/meridian-procure/internal/shared"
	"github.com/meridian-procure/meridian-procure/internal/vendors"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRFQ(ctx context.Context, id int64) (RFQ, error)
	ListRFQs(ctx context.Context, filters ListFilters) ([]RFQ, int, error)
	ListQuotations(ctx context.Context, rfqID int64) ([]Quotation, error)
	// DueSoon returns open RFQs whose deadline falls within the window.
	DueSoon(ctx context.Context, within time.Duration) ([]RFQ, error)
}

// TxRepository exposes transactional operations on RFQs and quotations.
type TxRepository interface {
	GetRFQForUpdate(ctx context.Context, id int64) (RFQ, error)
	// ActiveRFQForMRF returns the non-closed RFQ of a requisition, if any.
	ActiveRFQForMRF(ctx context.Context, mrfID int64) (RFQ, bool, error)
	CreateRFQ(ctx context.Context, r RFQ) (int64, error)
	UpdateRFQStatus(ctx context.Context, id int64, status Status) error
	GetQuotationForUpdate(ctx context.Context, id int64) (Quotation, error)
	// OpenQuotationForVendor returns the vendor's pending quotation on the
	// RFQ, if one exists.
	OpenQuotationForVendor(ctx context.Context, rfqID, vendorID int64) (Quotation, bool, error)
	CreateQuotation(ctx context.Context, q Quotation) (int64, error)
	ListQuotations(ctx context.Context, rfqID int64) ([]Quotation, error)
	UpdateQuotationStatus(ctx context.Context, id int64, status QuotationStatus) error
}

// RequisitionSource provides the requisitions RFQs are dispatched for.
// Satisfied by the mrf service.
type RequisitionSource interface {
	Get(ctx context.Context, id int64) (mrf.MRF, error)
}

// IdempotencyPort deduplicates invitation fan-out across redeliveries.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
}

// ListFilters narrows RFQ listings.
type ListFilters struct {
	MRFID  int64
	Status Status
	Limit  int
	Offset int
}

// Service is the dispatch engine plus quotation intake for RFQs.
type Service struct {
	repo        RepositoryPort
	requisition RequisitionSource
	directory   vendors.Directory
	sink        notify.Sink
	idempotency IdempotencyPort
	logger      *slog.Logger
}

// NewService constructs the RFQ service.
func NewService(repo RepositoryPort, requisition RequisitionSource, directory vendors.Directory, sink notify.Sink, idempotency IdempotencyPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, requisition: requisition, directory: directory, sink: sink, idempotency: idempotency, logger: logger}
}

// CreateInput describes a dispatch request.
type CreateInput struct {
	MRFID       int64     `json:"mrf_id" validate:"required,gt=0"`
	Description string    `json:"description"`
	Deadline    time.Time `json:"deadline" validate:"required"`
	Strategy    Strategy  `json:"strategy"`
}

// Create dispatches an RFQ for a requisition: resolves the vendor set with
// the chosen strategy, persists the RFQ Open, and fans one invitation event
// out per vendor. Redelivered calls do not duplicate invitations.
func (s *Service) Create(ctx context.Context, input CreateInput, actor identity.Actor) (RFQ, error) {
	if actor.Role != identity.RoleProcurementManager {
		return RFQ{}, fmt.Errorf("dispatching an RFQ requires role %s, actor %q holds %s: %w",
			identity.RoleProcurementManager, actor.Name, actor.Role, shared.ErrUnauthorized)
	}
	now := time.Now()
	if !input.Deadline.After(now) {
		return RFQ{}, fmt.Errorf("deadline %s is not after now: %w", input.Deadline.Format(time.RFC3339), shared.ErrValidation)
	}

	m, err := s.requisition.Get(ctx, input.MRFID)
	if err != nil {
		return RFQ{}, err
	}
	if !m.CurrentStage.ProcurementEligible() {
		return RFQ{}, fmt.Errorf("requisition %s at stage %s is not open for sourcing: %w",
			m.ControlNumber, m.CurrentStage, shared.ErrInvalidState)
	}

	strategy := input.Strategy
	if strategy.Kind == "" {
		strategy.Kind = StrategyManual
	}
	resolved, err := strategy.Resolve(ctx, s.directory, m.Category)
	if err != nil {
		return RFQ{}, err
	}

	r := RFQ{
		MRFID:            m.ID,
		MRFControlNumber: m.ControlNumber,
		MRFTitle:         m.Title,
		EstimatedCost:    m.EstimatedCost,
		Description:      strings.TrimSpace(input.Description),
		Quantity:         m.Quantity,
		Deadline:         input.Deadline,
		Status:           StatusOpen,
		CreatedBy:        actor.ID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, v := range resolved {
		r.VendorIDs = append(r.VendorIDs, v.ID)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if existing, ok, err := tx.ActiveRFQForMRF(ctx, m.ID); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("requisition %s already has RFQ %d (%s): %w",
				m.ControlNumber, existing.ID, existing.Status, shared.ErrDuplicateRFQ)
		}
		id, err := tx.CreateRFQ(ctx, r)
		if err != nil {
			return err
		}
		r.ID = id
		return nil
	})
	if err != nil {
		return RFQ{}, err
	}

	s.emit(ctx, notify.NewEvent(notify.EventRFQCreated, m.ID, r.ID, map[string]any{
		"control_number": m.ControlNumber,
		"vendor_count":   len(resolved),
		"deadline":       r.Deadline,
	}))
	s.invite(ctx, r, resolved)
	return r, nil
}

// invite fans invitation events out, one per vendor, keyed so a redelivered
// dispatch cannot invite a vendor twice.
func (s *Service) invite(ctx context.Context, r RFQ, resolved []vendors.Vendor) {
	for _, v := range resolved {
		if s.idempotency != nil {
			key := fmt.Sprintf("rfq:%d:invite:%d", r.ID, v.ID)
			if err := s.idempotency.CheckAndInsert(ctx, key, "rfq"); err != nil {
				if !errors.Is(err, shared.ErrIdempotencyConflict) && s.logger != nil {
					s.logger.Warn("invitation dedupe", slog.Int64("vendor_id", v.ID), slog.Any("error", err))
				}
				continue
			}
		}
		s.emit(ctx, notify.NewEvent(notify.EventRFQInvitation, r.MRFID, r.ID, map[string]any{
			"vendor_id":    v.ID,
			"vendor_name":  v.Name,
			"vendor_email": v.Email,
			"deadline":     r.Deadline,
		}))
	}
}

// QuotationInput describes a vendor bid.
type QuotationInput struct {
	RFQID          int64      `json:"rfq_id" validate:"required,gt=0"`
	VendorID       int64      `json:"vendor_id" validate:"required,gt=0"`
	Price          string     `json:"price" validate:"required"`
	DeliveryDate   time.Time  `json:"delivery_date" validate:"required"`
	PaymentTerms   string     `json:"payment_terms"`
	ValidityDays   int        `json:"validity_days"`
	WarrantyMonths int        `json:"warranty_months"`
	Notes          string     `json:"notes"`
	Items          []LineItem `json:"items"`
}

// SubmitQuotation records a vendor bid. The RFQ must still be Open and inside
// its deadline; a vendor may hold one pending bid per RFQ at a time.
func (s *Service) SubmitQuotation(ctx context.Context, q Quotation) (Quotation, error) {
	if q.Price.IsNegative() {
		return Quotation{}, fmt.Errorf("price must be non-negative: %w", shared.ErrValidation)
	}
	vendor, err := s.directory.Get(ctx, q.VendorID)
	if err != nil {
		return Quotation{}, err
	}

	now := time.Now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		r, err := tx.GetRFQForUpdate(ctx, q.RFQID)
		if err != nil {
			return err
		}
		if r.Status != StatusOpen {
			return fmt.Errorf("rfq %d is %s, bidding is over: %w", r.ID, r.Status, shared.ErrInvalidState)
		}
		if now.After(r.Deadline) {
			return fmt.Errorf("rfq %d deadline %s has passed: %w", r.ID, r.Deadline.Format(time.RFC3339), shared.ErrInvalidState)
		}
		if !r.invited(q.VendorID) {
			return fmt.Errorf("vendor %s was not invited to rfq %d: %w", vendor.Name, r.ID, shared.ErrUnauthorized)
		}
		if existing, ok, err := tx.OpenQuotationForVendor(ctx, r.ID, q.VendorID); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("vendor %s already has open quotation %d on rfq %d: %w",
				vendor.Name, existing.ID, r.ID, shared.ErrInvalidState)
		}

		q.VendorName = vendor.Name
		q.Status = QuotationPending
		q.SubmittedAt = now
		q.UpdatedAt = now
		id, err := tx.CreateQuotation(ctx, q)
		if err != nil {
			return err
		}
		q.ID = id
		return nil
	})
	if err != nil {
		return Quotation{}, err
	}

	s.emit(ctx, notify.NewEvent(notify.EventQuotationPlaced, 0, q.RFQID, map[string]any{
		"quotation_id": q.ID,
		"vendor_name":  q.VendorName,
	}))
	return q, nil
}

// CloseQuotation withdraws a pending bid so the vendor can submit a fresh
// one. Only the owning vendor may close it.
func (s *Service) CloseQuotation(ctx context.Context, quotationID, vendorID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetQuotationForUpdate(ctx, quotationID)
		if err != nil {
			return err
		}
		if q.VendorID != vendorID {
			return fmt.Errorf("quotation %d belongs to another vendor: %w", q.ID, shared.ErrUnauthorized)
		}
		if !q.Open() {
			return fmt.Errorf("quotation %d is %s, only pending quotations close: %w", q.ID, q.Status, shared.ErrInvalidState)
		}
		return tx.UpdateQuotationStatus(ctx, q.ID, QuotationClosed)
	})
}

// ReopenQuotation restores a closed bid, subject to the one-open-bid rule and
// the RFQ still accepting bids.
func (s *Service) ReopenQuotation(ctx context.Context, quotationID, vendorID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetQuotationForUpdate(ctx, quotationID)
		if err != nil {
			return err
		}
		if q.VendorID != vendorID {
			return fmt.Errorf("quotation %d belongs to another vendor: %w", q.ID, shared.ErrUnauthorized)
		}
		if q.Status != QuotationClosed {
			return fmt.Errorf("quotation %d is %s, only closed quotations reopen: %w", q.ID, q.Status, shared.ErrInvalidState)
		}
		r, err := tx.GetRFQForUpdate(ctx, q.RFQID)
		if err != nil {
			return err
		}
		if r.Status != StatusOpen || time.Now().After(r.Deadline) {
			return fmt.Errorf("rfq %d no longer accepts bids: %w", r.ID, shared.ErrInvalidState)
		}
		if _, ok, err := tx.OpenQuotationForVendor(ctx, q.RFQID, vendorID); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("vendor already has an open quotation on rfq %d: %w", q.RFQID, shared.ErrInvalidState)
		}
		return tx.UpdateQuotationStatus(ctx, q.ID, QuotationPending)
	})
}

// Close abandons an open RFQ. Awarded RFQs stay awarded.
func (s *Service) Close(ctx context.Context, rfqID int64, actor identity.Actor) error {
	if actor.Role != identity.RoleProcurementManager {
		return fmt.Errorf("closing an RFQ requires role %s: %w", identity.RoleProcurementManager, shared.ErrUnauthorized)
	}
	var closed RFQ
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		r, err := tx.GetRFQForUpdate(ctx, rfqID)
		if err != nil {
			return err
		}
		if r.Status != StatusOpen {
			return fmt.Errorf("rfq %d is %s, only open RFQs close: %w", r.ID, r.Status, shared.ErrInvalidState)
		}
		closed = r
		return tx.UpdateRFQStatus(ctx, r.ID, StatusClosed)
	})
	if err != nil {
		return err
	}
	s.emit(ctx, notify.NewEvent(notify.EventRFQClosed, closed.MRFID, closed.ID, map[string]any{
		"control_number": closed.MRFControlNumber,
	}))
	return nil
}

// Evaluate scores every pending quotation on the RFQ against the vendor
// directory's current ratings. Read-only; callable any number of times.
func (s *Service) Evaluate(ctx context.Context, rfqID int64) ([]ScoredQuotation, error) {
	r, err := s.repo.GetRFQ(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	all, err := s.repo.ListQuotations(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	open := all[:0:0]
	for _, q := range all {
		if q.Open() {
			open = append(open, q)
		}
	}
	if len(open) == 0 {
		return nil, fmt.Errorf("rfq %d has no open quotations to evaluate: %w", r.ID, shared.ErrValidation)
	}

	ratings := make(map[int64]float64, len(open))
	for _, q := range open {
		if _, ok := ratings[q.VendorID]; ok {
			continue
		}
		v, err := s.directory.Get(ctx, q.VendorID)
		if err != nil {
			return nil, err
		}
		ratings[q.VendorID] = v.Rating
	}
	return Score(open, ratings, time.Now())
}

// Get returns one RFQ.
func (s *Service) Get(ctx context.Context, id int64) (RFQ, error) {
	return s.repo.GetRFQ(ctx, id)
}

// List returns RFQs matching filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]RFQ, int, error) {
	return s.repo.ListRFQs(ctx, filters)
}

// Quotations returns all bids on an RFQ, every status.
func (s *Service) Quotations(ctx context.Context, rfqID int64) ([]Quotation, error) {
	if _, err := s.repo.GetRFQ(ctx, rfqID); err != nil {
		return nil, err
	}
	return s.repo.ListQuotations(ctx, rfqID)
}

// DueSoon lists open RFQs closing within the window, for deadline reminders.
func (s *Service) DueSoon(ctx context.Context, within time.Duration) ([]RFQ, error) {
	return s.repo.DueSoon(ctx, within)
}

func (r *RFQ) invited(vendorID int64) bool {
	for _, id := range r.VendorIDs {
		if id == vendorID {
			return true
		}
	}
	return false
}

func (s *Service) emit(ctx context.Context, event notify.Event) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.Warn("emit event", slog.String("type", event.Type), slog.Any("error", err))
	}
}
