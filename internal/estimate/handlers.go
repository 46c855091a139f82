package estimate

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-proposals/internal/common"
	"github.com/noah-isme/backend-proposals/internal/pricing"
	"github.com/noah-isme/backend-proposals/internal/repo"
)

// Handler wires estimate services to HTTP.
type Handler struct {
	Svc       *Service
	Validate  *validator.Validate
	PageLimit int
	MaxLimit  int
}

type createPayload struct {
	ClientID  string             `json:"clientId" validate:"required,uuid4"`
	Title     string             `json:"title" validate:"required,max=200"`
	LineItems []pricing.LineItem `json:"lineItems" validate:"required,min=1,dive"`
}

type updatePayload struct {
	Title     *string            `json:"title" validate:"omitempty,max=200"`
	LineItems []pricing.LineItem `json:"lineItems"`
}

// Create handles POST /estimates.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "estimate service not configured", nil)
		return
	}
	var payload createPayload
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
	created, err := h.Svc.Create(r.Context(), payload.ClientID, payload.Title, payload.LineItems)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusCreated, estimateBody(created))
}

// Get handles GET /estimates/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "estimate service not configured", nil)
		return
	}
	e, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, estimateBody(e))
}

// List handles GET /estimates.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "estimate service not configured", nil)
		return
	}
	page := common.ParsePage(r, h.PageLimit, h.MaxLimit)
	items, err := h.Svc.List(r.Context(), page)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, e := range items {
		out = append(out, estimateBody(e))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": out,
		"meta": map[string]any{"page": page.Number, "limit": page.Limit},
	})
}

// Update handles PATCH /estimates/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "estimate service not configured", nil)
		return
	}
	var payload updatePayload
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
	updated, err := h.Svc.Update(r.Context(), chi.URLParam(r, "id"), payload.Title, payload.LineItems)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, estimateBody(updated))
}

func estimateBody(e repo.Estimate) map[string]any {
	return map[string]any{
		"id":        repo.UUIDString(e.ID),
		"clientId":  repo.UUIDString(e.ClientID),
		"title":     e.Title,
		"lineItems": e.LineItems,
		"createdAt": e.CreatedAt,
		"updatedAt": e.UpdatedAt,
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
