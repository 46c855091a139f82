package proposal

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-proposals/internal/billing"
	"github.com/noah-isme/backend-proposals/internal/common"
	"github.com/noah-isme/backend-proposals/internal/repo"
)

// Handler wires proposal services to HTTP.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type depositPayload struct {
	Override   *billing.DepositConfig `json:"override"`
	OptionName string                 `json:"optionName" validate:"omitempty,max=100"`
}

// Generate handles POST /estimates/{id}/proposal.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "proposal service not configured", nil)
		return
	}
	result, err := h.Svc.GenerateForEstimate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Provenance == ProvenanceExisting {
		status = http.StatusOK
	}
	body := proposalBody(result.Proposal)
	body["provenance"] = result.Provenance
	common.JSONData(w, status, body)
}

// Get handles GET /proposals/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "proposal service not configured", nil)
		return
	}
	p, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, proposalBody(p))
}

// PreviewDeposit handles POST /proposals/{id}/deposit/preview.
func (h *Handler) PreviewDeposit(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "proposal service not configured", nil)
		return
	}
	var payload depositPayload
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
			return
		}
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", err.Error())
			return
		}
	}
	deposit, err := h.Svc.PreviewDeposit(r.Context(), chi.URLParam(r, "id"), payload.Override, payload.OptionName)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, map[string]any{
		"amount": deposit.Amount,
		"config": deposit.Config,
	})
}

// SetDeposit handles PUT /proposals/{id}/deposit.
func (h *Handler) SetDeposit(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "proposal service not configured", nil)
		return
	}
	var payload depositPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", err.Error())
			return
		}
	}
	updated, err := h.Svc.SetDeposit(r.Context(), chi.URLParam(r, "id"), payload.Override, payload.OptionName)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, proposalBody(updated))
}

// Send handles POST /proposals/{id}/send.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "proposal service not configured", nil)
		return
	}
	sent, err := h.Svc.Send(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, proposalBody(sent))
}

func proposalBody(p repo.Proposal) map[string]any {
	return map[string]any{
		"id":             repo.UUIDString(p.ID),
		"estimateId":     repo.UUIDString(p.EstimateID),
		"clientId":       repo.UUIDString(p.ClientID),
		"options":        p.Options,
		"totals":         p.Totals,
		"depositConfig":  p.DepositConfig,
		"depositAmount":  p.DepositAmount,
		"status":         p.Status,
		"provenance":     p.Provenance,
		"paymentLinkUrl": p.PaymentLinkURL,
		"createdAt":      p.CreatedAt,
		"updatedAt":      p.UpdatedAt,
	}
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
}
