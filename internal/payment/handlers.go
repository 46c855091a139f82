package payment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-proposals/internal/common"
	"github.com/noah-isme/backend-proposals/internal/repo"
)

// Handler wires payment services to HTTP.
type Handler struct {
	Svc *Service
}

type checkoutPayload struct {
	IsFinanced bool `json:"isFinanced"`
}

// CreateCheckout handles POST /proposals/{id}/checkout.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "payment service not configured", nil)
		return
	}
	var payload checkoutPayload
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
			return
		}
	}
	checkout, err := h.Svc.CreateCheckout(r.Context(), chi.URLParam(r, "id"), payload.IsFinanced)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusCreated, map[string]any{
		"paymentId":   repo.UUIDString(checkout.Payment.ID),
		"provider":    checkout.Session.Provider,
		"checkoutUrl": checkout.Session.URL,
		"amount":      checkout.Payment.Amount,
		"feePercent":  checkout.Payment.FeePercent,
		"expiresAt":   checkout.Session.ExpiresAt,
	})
}

// FeePreview handles GET /billing/fee-preview.
func (h *Handler) FeePreview(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "payment service not configured", nil)
		return
	}
	isFinanced := r.URL.Query().Get("financed") == "true"
	common.JSONData(w, http.StatusOK, map[string]any{
		"feePercent": h.Svc.FeePercent(r.Context(), isFinanced),
		"isFinanced": isFinanced,
	})
}

// Webhook handles POST /webhooks/payment/{provider}.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Svc.Provider == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "payment service not configured", nil)
		return
	}
	if chi.URLParam(r, "provider") != h.Svc.Provider.Name() {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "unknown payment provider", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unable to read body", nil)
		return
	}
	if err := h.Svc.HandleWebhook(r.Context(), r, body); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"received": true})
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
}
