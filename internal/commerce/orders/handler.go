package orders

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/melodium-shop/melodium/internal/platform/httpx"
	"github.com/melodium-shop/melodium/internal/rbac"
	"github.com/melodium-shop/melodium/internal/shared"
)

// Handler manages checkout and order endpoints. Customer routes derive
// the person from the session; staff routes are permission-guarded.
type Handler struct {
	service  *Service
	validate *validator.Validate
	guard    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(service *Service, validate *validator.Validate, guard rbac.Middleware) *Handler {
	return &Handler{service: service, validate: validate, guard: guard}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/preview", h.preview)
	r.Post("/checkout", h.checkout)
	r.Get("/", h.listMine)
	r.Get("/{orderID}", h.getMine)

	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermOrdersManage))
		r.Get("/admin/{orderID}", h.getAny)
		r.Post("/admin/{orderID}/status", h.updateStatus)
	})
}

type checkoutRequest struct {
	CouponCode string  `json:"coupon_code" validate:"omitempty,max=32"`
	Note       *string `json:"note" validate:"omitempty,max=500"`
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	personID, ok := requirePerson(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	quote, err := h.service.Preview(r.Context(), personID, req.CouponCode)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	personID, ok := requirePerson(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.Checkout(r.Context(), personID, req.CouponCode, req.Note)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	personID, ok := requirePerson(w, r)
	if !ok {
		return
	}
	out, err := h.service.ListByPerson(r.Context(), personID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getMine(w http.ResponseWriter, r *http.Request) {
	personID, ok := requirePerson(w, r)
	if !ok {
		return
	}
	orderID, ok := pathOrderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), orderID, personID, true)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) getAny(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathOrderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), orderID, 0, false)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathOrderID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status Status `json:"status" validate:"required"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.UpdateStatus(r.Context(), orderID, req.Status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func requirePerson(w http.ResponseWriter, r *http.Request) (int64, bool) {
	personID, ok := shared.PersonIDFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return 0, false
	}
	return personID, true
}

func pathOrderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return 0, false
	}
	return id, true
}
