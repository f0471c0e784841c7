package adminstock

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/SanmishaTech/clinicminds-sub002/internal/authz"
	"github.com/SanmishaTech/clinicminds-sub002/internal/platform/httpx"
	"github.com/SanmishaTech/clinicminds-sub002/internal/shared"
)

// Handler exposes admin stock endpoints. All routes are admin-only.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers admin stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(authz.RequireRole(authz.RoleAdmin))
		r.Post("/admin-stocks/refill", h.refill)
		r.Get("/admin-stocks/rows", h.listRows)
	})
}

func (h *Handler) refill(w http.ResponseWriter, r *http.Request) {
	ac, ok := authz.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	var input RefillInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	input.ActorID = ac.UserID

	if err := h.service.Refill(r.Context(), input); err != nil {
		switch {
		case errors.Is(err, ErrExpiryTooSoon), errors.Is(err, ErrDuplicateBatchInRequest):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		case errors.Is(err, ErrBatchExpiryMismatch):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err.Error()))
		default:
			h.logger.Error("admin stock refill failed", "error", err)
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"items": len(input.Items)})
}

func (h *Handler) listRows(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePageRequest(r, 50, 200)
	filter := RowFilter{Search: page.Search, Limit: page.PerPage, Offset: page.Offset()}
	if raw := r.URL.Query().Get("medicine_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			filter.MedicineID = id
		}
	}

	rows, total, err := h.service.ListRows(r.Context(), filter)
	if err != nil {
		h.logger.Error("list admin stock rows failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	p := shared.NewPagination(page.Page, page.PerPage, total)
	httpx.List(w, rows, p.Page, p.PerPage, p.Total, p.TotalPages)
}
