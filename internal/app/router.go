package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/melodium-shop/melodium/internal/auth"
	"github.com/melodium-shop/melodium/internal/catalog"
	"github.com/melodium-shop/melodium/internal/commerce/cart"
	"github.com/melodium-shop/melodium/internal/commerce/coupons"
	"github.com/melodium-shop/melodium/internal/commerce/orders"
	"github.com/melodium-shop/melodium/internal/identity"
	"github.com/melodium-shop/melodium/internal/observability"
	"github.com/melodium-shop/melodium/internal/rbac"
	"github.com/melodium-shop/melodium/internal/shared"
	"github.com/melodium-shop/melodium/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	SessionManager  *shared.SessionManager
	AuthHandler     *auth.Handler
	IdentityHandler *identity.Handler
	RBACHandler     *rbac.Handler
	CatalogHandler  *catalog.Handler
	CartHandler     *cart.Handler
	CouponsHandler  *coupons.Handler
	OrdersHandler   *orders.Handler
	JobsHandler     *jobs.Handler
	Metrics         *observability.Metrics
	Pool            *pgxpool.Pool
}

// NewRouter constructs the chi.Router with storefront defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
	}) {
		r.Use(mw)
	}
	if params.Metrics != nil {
		r.Use(params.Metrics.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	r.Route("/identity", params.IdentityHandler.MountRoutes)
	r.Route("/rbac", params.RBACHandler.MountRoutes)
	r.Route("/catalog", params.CatalogHandler.MountRoutes)
	r.Route("/coupons", params.CouponsHandler.MountRoutes)

	r.Route("/cart", func(r chi.Router) {
		r.Use(auth.RequireSession)
		params.CartHandler.MountRoutes(r)
	})
	r.Route("/orders", params.OrdersHandler.MountRoutes)

	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
