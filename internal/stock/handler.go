package stock

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

// Handler exposes the closing stock report and recall endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers stock routes. The router is expected to run behind
// the session and authz resolve middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/closing-stock-report", h.closingStockReport)

	r.Group(func(r chi.Router) {
		r.Use(authz.RequireRole(authz.RoleAdmin))
		r.Get("/recalls", h.listRecalls)
		r.Post("/recalls", h.createRecall)
	})
}

// closingStockReport serves per-franchise balances. Franchise callers are
// pinned to their own franchise regardless of query parameters.
func (h *Handler) closingStockReport(w http.ResponseWriter, r *http.Request) {
	ac, ok := authz.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	page := shared.ParsePageRequest(r, 50, 200)
	filter := ClosingStockFilter{
		Search: page.Search,
		Limit:  page.PerPage,
		Offset: page.Offset(),
	}
	if ac.IsAdmin() {
		if raw := r.URL.Query().Get("franchise_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				httpx.RespondError(w, fmt.Errorf("%w: franchise_id must be a positive integer", httpx.ErrValidation))
				return
			}
			filter.FranchiseID = id
		}
	} else {
		filter.FranchiseID = ac.FranchiseID
	}

	rows, total, err := h.service.ClosingStock(r.Context(), filter, page.Page, page.PerPage)
	if err != nil {
		h.logger.Error("closing stock report failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	p := shared.NewPagination(page.Page, page.PerPage, total)
	httpx.List(w, rows, p.Page, p.PerPage, p.Total, p.TotalPages)
}

func (h *Handler) listRecalls(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePageRequest(r, 50, 200)
	filter := RecallFilter{Limit: page.PerPage, Offset: page.Offset()}
	if raw := r.URL.Query().Get("franchise_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			filter.FranchiseID = id
		}
	}
	if raw := r.URL.Query().Get("medicine_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			filter.MedicineID = id
		}
	}

	rows, total, err := h.service.ListRecalls(r.Context(), filter)
	if err != nil {
		h.logger.Error("list recalls failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	p := shared.NewPagination(page.Page, page.PerPage, total)
	httpx.List(w, rows, p.Page, p.PerPage, p.Total, p.TotalPages)
}

func (h *Handler) createRecall(w http.ResponseWriter, r *http.Request) {
	ac, ok := authz.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	var input RecallInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	input.ActorID = ac.UserID

	rec, err := h.service.RecordRecall(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientBatchStock):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err.Error()))
		case errors.Is(err, ErrInvalidQuantity):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		default:
			h.logger.Error("record recall failed", "error", err)
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}
