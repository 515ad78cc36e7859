package rbac

import (
	"log/slog"
	"net/http"

	"github.com/melodium-shop/melodium/internal/platform/httpx"
	"github.com/melodium-shop/melodium/internal/shared"
)

// Middleware guards routes with permission checks. Checks hit the
// database on every request; there is no grant cache, so revocations are
// immediate.
type Middleware struct {
	logger  *slog.Logger
	service *Service
}

// NewMiddleware builds Middleware instance.
func NewMiddleware(logger *slog.Logger, service *Service) Middleware {
	return Middleware{logger: logger, service: service}
}

// RequireAny admits requests whose person holds at least one of the
// permissions.
func (m Middleware) RequireAny(permissions ...string) func(http.Handler) http.Handler {
	return m.require(false, permissions)
}

// RequireAll admits requests whose person holds every permission.
func (m Middleware) RequireAll(permissions ...string) func(http.Handler) http.Handler {
	return m.require(true, permissions)
}

func (m Middleware) require(all bool, permissions []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			personID, ok := shared.PersonIDFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
				return
			}
			allowed, err := m.check(r, personID, all, permissions)
			if err != nil {
				m.logger.Error("permission check failed", slog.Int64("person_id", personID), slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
			if !allowed {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) check(r *http.Request, personID int64, all bool, permissions []string) (bool, error) {
	if !all {
		return m.service.HasAnyPermission(r.Context(), personID, permissions...)
	}
	for _, p := range permissions {
		ok, err := m.service.HasPermission(r.Context(), personID, p)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
