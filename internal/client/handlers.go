package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-proposals/internal/common"
	"github.com/noah-isme/backend-proposals/internal/repo"
)

// Repo enumerates the client persistence operations handlers need.
type Repo interface {
	Create(ctx context.Context, arg repo.CreateClientParams) (repo.Client, error)
	Get(ctx context.Context, id string) (repo.Client, error)
	List(ctx context.Context, limit, offset int32) ([]repo.Client, error)
}

// Handler wires client CRUD to HTTP. The surface is small enough that no
// separate service layer earns its keep.
type Handler struct {
	Repo      Repo
	Validate  *validator.Validate
	PageLimit int
	MaxLimit  int
}

type createPayload struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

// Create handles POST /clients.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Repo == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "client repo not configured", nil)
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
	created, err := h.Repo.Create(r.Context(), repo.CreateClientParams{
		Name:  payload.Name,
		Email: payload.Email,
		Phone: payload.Phone,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusCreated, clientBody(created))
}

// Get handles GET /clients/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Repo == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "client repo not configured", nil)
		return
	}
	c, err := h.Repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, clientBody(c))
}

// List handles GET /clients.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Repo == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "client repo not configured", nil)
		return
	}
	page := common.ParsePage(r, h.PageLimit, h.MaxLimit)
	items, err := h.Repo.List(r.Context(), int32(page.Limit), int32(page.Offset))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, c := range items {
		out = append(out, clientBody(c))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": out,
		"meta": map[string]any{"page": page.Number, "limit": page.Limit},
	})
}

func clientBody(c repo.Client) map[string]any {
	return map[string]any{
		"id":        repo.UUIDString(c.ID),
		"name":      c.Name,
		"email":     c.Email,
		"phone":     c.Phone,
		"createdAt": c.CreatedAt,
	}
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "client not found", nil)
		return
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
}
