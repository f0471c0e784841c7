package franchises

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

// Handler exposes franchise master endpoints. All routes are admin-only.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers franchise routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(authz.RequireRole(authz.RoleAdmin))
		r.Get("/franchises", h.list)
		r.Get("/franchises/{id}", h.get)
		r.Post("/franchises", h.create)
		r.Put("/franchises/{id}", h.update)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePageRequest(r, 50, 200)
	rows, total, err := h.service.List(r.Context(), page.Search, page.PerPage, page.Offset())
	if err != nil {
		h.logger.Error("list franchises failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	p := shared.NewPagination(page.Page, page.PerPage, total)
	httpx.List(w, rows, p.Page, p.PerPage, p.Total, p.TotalPages)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid franchise id", httpx.ErrValidation))
		return
	}
	f, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("get franchise failed", "error", err, "franchise_id", id)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input Input
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	f, err := h.service.Create(r.Context(), input)
	if err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrDuplicate, err.Error()))
			return
		}
		h.logger.Error("create franchise failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, f)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid franchise id", httpx.ErrValidation))
		return
	}
	var input Input
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	f, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpx.RespondError(w, httpx.ErrNotFound)
		case errors.Is(err, ErrDuplicateCode):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrDuplicate, err.Error()))
		default:
			h.logger.Error("update franchise failed", "error", err, "franchise_id", id)
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}
