package identity

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

// Handler manages identity endpoints: public registration plus staff
// administration of people, artists and email history.
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

// MountRoutes registers identity routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.register)

	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermIdentityView, shared.PermIdentityManage))
		r.Get("/people/{personID}", h.getPerson)
		r.Get("/people/{personID}/profile", h.profile)
		r.Get("/people/{personID}/email", h.activeEmail)
		r.Get("/people/{personID}/emails", h.emailHistory)
		r.Get("/artists/duplicates", h.duplicateArtists)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermIdentityManage))
		r.Post("/employees", h.createEmployee)
		r.Post("/artists", h.createArtist)
		r.Post("/artists/merge", h.mergeArtists)
		r.Put("/people/{personID}/email", h.updateEmail)
		r.Post("/people/{personID}/deactivate", h.deactivate)
		r.Post("/people/{personID}/activate", h.activate)
	})
}

type registerRequest struct {
	GivenName  string     `json:"given_name" validate:"required,max=100"`
	FamilyName string     `json:"family_name" validate:"max=100"`
	Username   string     `json:"username" validate:"required,min=3,max=50"`
	Password   string     `json:"password" validate:"required,min=8,max=128"`
	Email      string     `json:"email" validate:"required,email"`
	BirthDate  *time.Time `json:"birth_date"`
	Gender     *Gender    `json:"gender"`
	Phone      *string    `json:"phone" validate:"omitempty,max=32"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	person, err := h.service.RegisterCustomer(r.Context(), RegisterCustomerInput{
		GivenName:  req.GivenName,
		FamilyName: req.FamilyName,
		Username:   req.Username,
		Password:   req.Password,
		Email:      req.Email,
		BirthDate:  req.BirthDate,
		Gender:     req.Gender,
		Phone:      req.Phone,
	})
	if err != nil {
		h.logger.Info("registration rejected", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, person)
}

type createEmployeeRequest struct {
	GivenName  string  `json:"given_name" validate:"required,max=100"`
	FamilyName string  `json:"family_name" validate:"max=100"`
	Email      string  `json:"email" validate:"required,email"`
	JobTitle   string  `json:"job_title" validate:"required,max=100"`
	Department *string `json:"department" validate:"omitempty,max=100"`
}

func (h *Handler) createEmployee(w http.ResponseWriter, r *http.Request) {
	var req createEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, _ := shared.PersonIDFromContext(r.Context())
	person, err := h.service.CreateEmployee(r.Context(), CreateEmployeeInput{
		GivenName:  req.GivenName,
		FamilyName: req.FamilyName,
		Email:      req.Email,
		JobTitle:   req.JobTitle,
		Department: req.Department,
		CreatedBy:  actor,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, person)
}

type createArtistRequest struct {
	StageName string  `json:"stage_name" validate:"required,max=200"`
	GivenName string  `json:"given_name" validate:"max=100"`
	Bio       *string `json:"bio"`
	Website   *string `json:"website" validate:"omitempty,url"`
	DebutYear *int    `json:"debut_year" validate:"omitempty,gte=1900,lte=2100"`
}

func (h *Handler) createArtist(w http.ResponseWriter, r *http.Request) {
	var req createArtistRequest
	if !h.decode(w, r, &req) {
		return
	}
	artist, err := h.service.CreateArtist(r.Context(), CreateArtistInput{
		StageName: req.StageName,
		GivenName: req.GivenName,
		Bio:       req.Bio,
		Website:   req.Website,
		DebutYear: req.DebutYear,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, artist)
}

func (h *Handler) mergeArtists(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CanonicalID int64 `json:"canonical_id" validate:"required,gt=0"`
		DuplicateID int64 `json:"duplicate_id" validate:"required,gt=0"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.MergeArtists(r.Context(), req.CanonicalID, req.DuplicateID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("artists merged",
		slog.Int64("canonical_id", req.CanonicalID),
		slog.Int64("duplicate_id", req.DuplicateID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) duplicateArtists(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.DuplicateArtistGroups(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (h *Handler) getPerson(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathPersonID(w, r)
	if !ok {
		return
	}
	person, err := h.service.GetPerson(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, person)
}

func (h *Handler) activeEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathPersonID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.ActiveEmail(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathPersonID(w, r)
	if !ok {
		return
	}
	profile, err := h.service.Profile(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *Handler) emailHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathPersonID(w, r)
	if !ok {
		return
	}
	history, err := h.service.EmailHistory(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, history)
}

func (h *Handler) updateEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathPersonID(w, r)
	if !ok {
		return
	}
	var req struct {
		Email  string       `json:"email" validate:"required,email"`
		Reason ChangeReason `json:"reason" validate:"required"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.UpdateEmail(r.Context(), id, req.Email, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathPersonID(w, r)
	if !ok {
		return
	}
	if err := h.service.Deactivate(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathPersonID(w, r)
	if !ok {
		return
	}
	if err := h.service.Activate(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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

func (h *Handler) pathPersonID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "personID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid person id")
		return 0, false
	}
	return id, true
}
