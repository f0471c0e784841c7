package sales

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

// Handler exposes sale endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers sale routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(authz.RequireRole(authz.RoleAdmin))
		r.Post("/sales", h.createSale)
		r.Get("/sales", h.listSales)
	})
	r.Get("/sales/{id}", h.getSale)
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	ac, ok := authz.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	input.ActorID = ac.UserID

	sale, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("create sale failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePageRequest(r, 50, 200)
	filter := Filter{Search: page.Search, Limit: page.PerPage, Offset: page.Offset()}
	if raw := r.URL.Query().Get("franchise_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			filter.FranchiseID = id
		}
	}

	rows, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list sales failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	p := shared.NewPagination(page.Page, page.PerPage, total)
	httpx.List(w, rows, p.Page, p.PerPage, p.Total, p.TotalPages)
}

// getSale serves one sale. Franchise callers may only read sales addressed
// to their own franchise.
func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	ac, ok := authz.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid sale id", httpx.ErrValidation))
		return
	}

	sale, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrSaleNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("get sale failed", "error", err, "sale_id", id)
		httpx.RespondError(w, err)
		return
	}
	if !ac.IsAdmin() && sale.Sale.FranchiseID != ac.FranchiseID {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}
