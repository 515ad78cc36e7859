package coupons

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/melodium-shop/melodium/internal/platform/httpx"
	"github.com/melodium-shop/melodium/internal/rbac"
	"github.com/melodium-shop/melodium/internal/shared"
)

// Handler manages the coupon admin endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	guard    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validate, guard: guard}
}

// MountRoutes registers coupon routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermCouponsManage))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Post("/{couponID}/deactivate", h.deactivate)
		r.Delete("/{couponID}", h.delete)
	})
}

type createRequest struct {
	Code          string       `json:"code" validate:"required,min=2,max=32"`
	Description   string       `json:"description" validate:"max=255"`
	DiscountType  DiscountType `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue float64      `json:"discount_value" validate:"required,gt=0"`
	MinPurchase   *float64     `json:"min_purchase" validate:"omitempty,gte=0"`
	MaxDiscount   *float64     `json:"max_discount" validate:"omitempty,gt=0"`
	CreatedByKind CreatorKind  `json:"created_by_kind" validate:"required,oneof=admin vendor artist"`
	ValidFrom     *time.Time   `json:"valid_from"`
	ValidUntil    *time.Time   `json:"valid_until"`
	MaxUses       *int64       `json:"max_uses" validate:"omitempty,gt=0"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	creator, _ := shared.PersonIDFromContext(r.Context())
	coupon, err := h.service.Create(r.Context(), CreateInput{
		Code:          req.Code,
		Description:   req.Description,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		MinPurchase:   req.MinPurchase,
		MaxDiscount:   req.MaxDiscount,
		CreatedByKind: req.CreatedByKind,
		CreatedBy:     creator,
		ValidFrom:     req.ValidFrom,
		ValidUntil:    req.ValidUntil,
		MaxUses:       req.MaxUses,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("coupon created", slog.String("code", coupon.Code), slog.Int64("coupon_id", coupon.ID))
	httpx.JSON(w, http.StatusCreated, coupon)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	out, err := h.service.List(r.Context(), activeOnly)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Deactivate(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "couponID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid coupon id")
		return 0, false
	}
	return id, true
}
