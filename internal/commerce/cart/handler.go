package cart

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/melodium-shop/melodium/internal/platform/httpx"
	"github.com/melodium-shop/melodium/internal/shared"
)

// Handler manages the signed-in customer's cart endpoints. The person id
// always comes from the session; it is never client-supplied.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(service *Service, validate *validator.Validate) *Handler {
	return &Handler{service: service, validate: validate}
}

// MountRoutes registers cart routes. The session middleware guarding
// these routes guarantees a person id in context.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.items)
	r.Get("/count", h.count)
	r.Post("/items", h.add)
	r.Delete("/items/{itemID}", h.remove)
	r.Delete("/", h.clear)
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	personID, ok := requirePerson(w, r)
	if !ok {
		return
	}
	var req struct {
		ProductID *int64 `json:"product_id" validate:"omitempty,gt=0"`
		SongID    *int64 `json:"song_id" validate:"omitempty,gt=0"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	item, err := h.service.Add(r.Context(), personID, req.ProductID, req.SongID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) items(w http.ResponseWriter, r *http.Request) {
	personID, ok := requirePerson(w, r)
	if !ok {
		return
	}
	items, err := h.service.Items(r.Context(), personID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) count(w http.ResponseWriter, r *http.Request) {
	personID, ok := requirePerson(w, r)
	if !ok {
		return
	}
	n, err := h.service.Count(r.Context(), personID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	personID, ok := requirePerson(w, r)
	if !ok {
		return
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil || itemID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid cart line id")
		return
	}
	if err := h.service.Remove(r.Context(), personID, itemID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	personID, ok := requirePerson(w, r)
	if !ok {
		return
	}
	if err := h.service.Clear(r.Context(), personID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requirePerson(w http.ResponseWriter, r *http.Request) (int64, bool) {
	personID, ok := shared.PersonIDFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return 0, false
	}
	return personID, true
}
