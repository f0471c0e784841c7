package authz

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/SanmishaTech/clinicminds-sub002/internal/platform/httpx"
	"github.com/SanmishaTech/clinicminds-sub002/internal/shared"
)

// ContextResolver resolves a user ID into an authorization context.
type ContextResolver interface {
	Resolve(ctx context.Context, userID int64) (Context, error)
}

// Middleware wires identity resolution and role guards for HTTP handlers.
type Middleware struct {
	Resolver ContextResolver
	Logger   *slog.Logger
}

// Resolve authenticates the session user and stores the authorization
// context on the request. Resolution happens exactly once per request;
// downstream guards and handlers read the stored context.
func (m Middleware) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		userID, err := strconv.ParseInt(sess.User(), 10, 64)
		if err != nil {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		ac, err := m.Resolver.Resolve(r.Context(), userID)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("resolve authorization context", slog.Int64("user_id", userID), slog.Any("error", err))
			}
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), ac)))
	})
}

// RequireRole allows only callers holding one of the listed roles.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := FromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			for _, role := range roles {
				if ac.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}
