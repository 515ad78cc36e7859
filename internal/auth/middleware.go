package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/melodium-shop/melodium/internal/platform/httpx"
	"github.com/melodium-shop/melodium/internal/shared"
)

// SessionLoader resolves the session cookie into a person id in the
// request context. Requests without a session pass through untouched;
// route-level guards decide whether that is acceptable.
func SessionLoader(logger *slog.Logger, sessions *shared.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			personID, err := sessions.Resolve(r.Context(), r)
			switch {
			case err == nil:
				r = r.WithContext(shared.ContextWithPersonID(r.Context(), personID))
			case errors.Is(err, shared.ErrNoSession):
				// Anonymous request.
			default:
				logger.Error("session resolve failed", slog.Any("error", err))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession rejects anonymous requests.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.PersonIDFromContext(r.Context()); !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
