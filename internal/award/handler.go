package award

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-procure/meridian-procure/internal/identity"
	"github.com/meridian-procure/meridian-procure/internal/platform/httpx"
)

// Handler manages award and purchase order endpoints. Routes mount under the
// requisition and RFQ subtrees.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRFQRoutes registers the award action under /rfqs.
func (h *Handler) MountRFQRoutes(r chi.Router) {
	r.Post("/{id}/award", h.selectVendor)
}

// MountMRFRoutes registers purchase order actions under /mrfs.
func (h *Handler) MountMRFRoutes(r chi.Router) {
	r.Post("/{id}/po/unsigned", h.uploadUnsignedPO)
	r.Post("/{id}/po/signed", h.uploadSignedPO)
	r.Post("/{id}/po/reject", h.rejectPO)
}

type awardRequest struct {
	QuotationID int64 `json:"quotation_id" validate:"required,gt=0"`
}

func (h *Handler) selectVendor(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.idAndActor(w, r)
	if !ok {
		return
	}
	var req awardRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	awarded, err := h.service.SelectVendor(r.Context(), id, req.QuotationID, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, awarded)
}

type unsignedPORequest struct {
	PONumber string `json:"po_number" validate:"required"`
	FileURL  string `json:"file_url" validate:"required"`
}

func (h *Handler) uploadUnsignedPO(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.idAndActor(w, r)
	if !ok {
		return
	}
	var req unsignedPORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	m, err := h.service.UploadUnsignedPO(r.Context(), id, req.PONumber, req.FileURL, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

type signedPORequest struct {
	FileURL string `json:"file_url" validate:"required"`
}

func (h *Handler) uploadSignedPO(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.idAndActor(w, r)
	if !ok {
		return
	}
	var req signedPORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	m, err := h.service.UploadSignedPO(r.Context(), id, req.FileURL, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

type rejectPORequest struct {
	Reason   string `json:"reason" validate:"required"`
	Comments string `json:"comments"`
}

func (h *Handler) rejectPO(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.idAndActor(w, r)
	if !ok {
		return
	}
	var req rejectPORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	m, err := h.service.RejectPO(r.Context(), id, req.Reason, req.Comments, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) idAndActor(w http.ResponseWriter, r *http.Request) (int64, identity.Actor, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, identity.Actor{}, false
	}
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusForbidden, "Unauthorized", "no actor resolved for request")
		return 0, identity.Actor{}, false
	}
	return id, actor, true
}
