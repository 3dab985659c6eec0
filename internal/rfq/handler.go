package rfq

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-procure/meridian-procure/internal/identity"
	"github.com/meridian-procure/meridian-procure/internal/platform/httpx"
)

// Handler manages RFQ and quotation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers RFQ routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Post("/{id}/close", h.close)
	r.Get("/{id}/quotations", h.quotations)
	r.Post("/{id}/quotations", h.submitQuotation)
	r.Get("/{id}/evaluation", h.evaluation)
	r.Post("/quotations/{quotationID}/close", h.closeQuotation)
	r.Post("/quotations/{quotationID}/reopen", h.reopenQuotation)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	mrfID, _ := strconv.ParseInt(r.URL.Query().Get("mrf_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	items, total, err := h.service.List(r.Context(), ListFilters{
		MRFID:  mrfID,
		Status: Status(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.logger.Error("list rfqs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rfqs": items, "total": total})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.param(w, r, "id")
	if !ok {
		return
	}
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusForbidden, "Unauthorized", "no actor resolved for request")
		return
	}
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), input, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	id, ok := h.param(w, r, "id")
	if !ok {
		return
	}
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusForbidden, "Unauthorized", "no actor resolved for request")
		return
	}
	if err := h.service.Close(r.Context(), id, actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(StatusClosed)})
}

func (h *Handler) quotations(w http.ResponseWriter, r *http.Request) {
	id, ok := h.param(w, r, "id")
	if !ok {
		return
	}
	items, err := h.service.Quotations(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"quotations": items})
}

func (h *Handler) submitQuotation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.param(w, r, "id")
	if !ok {
		return
	}
	var input QuotationInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	input.RFQID = id
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	price, err := decimal.NewFromString(input.Price)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "price is not a valid decimal")
		return
	}
	q, err := h.service.SubmitQuotation(r.Context(), Quotation{
		RFQID:          input.RFQID,
		VendorID:       input.VendorID,
		Price:          price,
		DeliveryDate:   input.DeliveryDate,
		PaymentTerms:   input.PaymentTerms,
		ValidityDays:   input.ValidityDays,
		WarrantyMonths: input.WarrantyMonths,
		Notes:          input.Notes,
		Items:          input.Items,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) evaluation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.param(w, r, "id")
	if !ok {
		return
	}
	scored, err := h.service.Evaluate(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"scores": scored})
}

type quotationOwnerRequest struct {
	VendorID int64 `json:"vendor_id" validate:"required,gt=0"`
}

func (h *Handler) closeQuotation(w http.ResponseWriter, r *http.Request) {
	h.quotationStatusChange(w, r, h.service.CloseQuotation)
}

func (h *Handler) reopenQuotation(w http.ResponseWriter, r *http.Request) {
	h.quotationStatusChange(w, r, h.service.ReopenQuotation)
}

func (h *Handler) quotationStatusChange(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, quotationID, vendorID int64) error) {
	id, ok := h.param(w, r, "quotationID")
	if !ok {
		return
	}
	var req quotationOwnerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := fn(r.Context(), id, req.VendorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+name)
		return 0, false
	}
	return id, true
}
