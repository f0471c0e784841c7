package transport

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
	"github.com/SanmishaTech/clinicminds-sub002/internal/sales"
	"github.com/SanmishaTech/clinicminds-sub002/internal/shared"
)

const idempotencyHeader = "Idempotency-Key"

// Handler exposes transport endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validate    *validator.Validate
	idempotency *shared.IdempotencyStore
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, validate: validate, idempotency: idempotency}
}

// MountRoutes registers transport routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(authz.RequireRole(authz.RoleAdmin))
		r.Post("/transports", h.createTransport)
	})
	r.Get("/transports", h.listTransports)
	r.Get("/transports/{id}", h.getTransport)
	r.Patch("/transports/{id}", h.updateTransport)
}

func (h *Handler) createTransport(w http.ResponseWriter, r *http.Request) {
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

	idemKey := r.Header.Get(idempotencyHeader)
	if idemKey != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), idemKey, "transport"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err.Error()))
				return
			}
			h.logger.Error("idempotency check failed", "error", err)
			httpx.RespondError(w, err)
			return
		}
	}

	t, err := h.service.Create(r.Context(), input)
	if err != nil {
		if idemKey != "" && h.idempotency != nil {
			if delErr := h.idempotency.Delete(r.Context(), idemKey); delErr != nil {
				h.logger.Warn("idempotency key rollback failed", "error", delErr)
			}
		}
		switch {
		case errors.Is(err, sales.ErrSaleNotFound):
			httpx.RespondError(w, httpx.ErrNotFound)
		case errors.Is(err, ErrSaleAlreadyAssigned):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err.Error()))
		default:
			h.logger.Error("create transport failed", "error", err)
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) listTransports(w http.ResponseWriter, r *http.Request) {
	ac, ok := authz.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	page := shared.ParsePageRequest(r, 50, 200)
	filter := Filter{Limit: page.PerPage, Offset: page.Offset()}
	if raw := Status(r.URL.Query().Get("status")); raw != "" {
		if !raw.IsValid() {
			httpx.RespondError(w, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, raw))
			return
		}
		filter.Status = raw
	}
	if ac.IsAdmin() {
		if raw := r.URL.Query().Get("franchise_id"); raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
				filter.FranchiseID = id
			}
		}
	} else {
		filter.FranchiseID = ac.FranchiseID
	}

	rows, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list transports failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	p := shared.NewPagination(page.Page, page.PerPage, total)
	httpx.List(w, rows, p.Page, p.PerPage, p.Total, p.TotalPages)
}

func (h *Handler) getTransport(w http.ResponseWriter, r *http.Request) {
	ac, ok := authz.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrTransportNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("get transport failed", "error", err, "transport_id", id)
		httpx.RespondError(w, err)
		return
	}
	if !ac.IsAdmin() && t.FranchiseID != ac.FranchiseID {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

// updateTransport branches on the caller's role. A franchise may only
// confirm delivery with a body of exactly {"status":"DELIVERED"}; an admin
// edits detail fields and may move the status forward short of DELIVERED.
func (h *Handler) updateTransport(w http.ResponseWriter, r *http.Request) {
	ac, ok := authz.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	var input AdminUpdateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}

	if !ac.IsAdmin() {
		if !isDeliveryOnly(input) {
			httpx.RespondError(w, fmt.Errorf("%w: franchise may only set status to DELIVERED", httpx.ErrValidation))
			return
		}
		t, err := h.service.MarkDelivered(r.Context(), id, ac)
		if err != nil {
			h.respondDeliveryError(w, err, id)
			return
		}
		httpx.JSON(w, http.StatusOK, t)
		return
	}

	t, err := h.service.AdminUpdate(r.Context(), id, input)
	if err != nil {
		switch {
		case errors.Is(err, ErrTransportNotFound):
			httpx.RespondError(w, httpx.ErrNotFound)
		case errors.Is(err, ErrStatusReserved):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		case errors.Is(err, ErrDeliveredTerminal), errors.Is(err, ErrBackwardTransition):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err.Error()))
		default:
			h.logger.Error("update transport failed", "error", err, "transport_id", id)
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) respondDeliveryError(w http.ResponseWriter, err error, id int64) {
	var short *InsufficientStockError
	switch {
	case errors.Is(err, ErrTransportNotFound), errors.Is(err, sales.ErrSaleNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrNotOwner):
		httpx.RespondError(w, httpx.ErrForbidden)
	case errors.Is(err, ErrNotDispatched):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err.Error()))
	case errors.As(err, &short):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, short.Error()))
	default:
		h.logger.Error("delivery confirmation failed", "error", err, "transport_id", id)
		httpx.RespondError(w, err)
	}
}

// isDeliveryOnly accepts only the status field set to DELIVERED.
func isDeliveryOnly(input AdminUpdateInput) bool {
	if input.Status == nil || *input.Status != StatusDelivered {
		return false
	}
	return input.TransportFee == nil && input.TransporterName == nil && input.CompanyName == nil &&
		input.ReceiptNumber == nil && input.VehicleNumber == nil && input.TrackingNumber == nil &&
		input.Notes == nil
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid transport id", httpx.ErrValidation)
	}
	return id, nil
}
