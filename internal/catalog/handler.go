package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/melodium-shop/melodium/internal/platform/httpx"
	"github.com/melodium-shop/melodium/internal/rbac"
	"github.com/melodium-shop/melodium/internal/shared"
)

// Handler manages catalog endpoints: public browsing plus staff-only
// product entry and bridge maintenance.
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

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/products/{productID}/tracks", h.tracklist)
	r.Get("/songs/{songID}", h.getSong)

	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermCatalogManage))
		r.Post("/products", h.createProduct)
		r.Put("/products/{productID}", h.updateProduct)
		r.Delete("/products/{productID}", h.deleteProduct)
		r.Post("/products/{productID}/stock", h.adjustStock)
		r.Post("/products/{productID}/tracks", h.linkSong)
		r.Delete("/products/{productID}/tracks/{songID}", h.unlinkSong)
		r.Post("/songs", h.createSong)
		r.Delete("/songs/{songID}", h.deleteSong)
		r.Get("/songs/orphans", h.orphanSongs)
		r.Get("/songs/multi-album", h.multiAlbumSongs)
	})
}

type songRequest struct {
	Title       string  `json:"title" validate:"required,max=200"`
	ISRC        *string `json:"isrc" validate:"omitempty,len=12"`
	Duration    int     `json:"duration_seconds" validate:"required,gt=0"`
	BPM         *int    `json:"bpm" validate:"omitempty,gt=0"`
	IsExplicit  bool    `json:"is_explicit"`
	Genre       *string `json:"genre"`
	AudioPath   *string `json:"audio_path"`
	AudioFormat *string `json:"audio_format"`
	AudioSize   *int64  `json:"audio_size" validate:"omitempty,gt=0"`
	Price       float64 `json:"price" validate:"gte=0"`
	TrackNumber int     `json:"track_number" validate:"gte=0"`
	DiscNumber  int     `json:"disc_number" validate:"gte=0"`
}

func (r songRequest) toInput() SongInput {
	return SongInput{
		Title:       r.Title,
		ISRC:        r.ISRC,
		Duration:    r.Duration,
		BPM:         r.BPM,
		IsExplicit:  r.IsExplicit,
		Genre:       r.Genre,
		AudioPath:   r.AudioPath,
		AudioFormat: r.AudioFormat,
		AudioSize:   r.AudioSize,
		Price:       r.Price,
		TrackNumber: r.TrackNumber,
		DiscNumber:  r.DiscNumber,
	}
}

type createProductRequest struct {
	Title       string        `json:"title" validate:"required,max=200"`
	ArtistName  string        `json:"artist_name" validate:"required,max=200"`
	Price       float64       `json:"price" validate:"gte=0"`
	ImagePath   *string       `json:"image_path"`
	ReleaseYear *int          `json:"release_year" validate:"omitempty,gte=1900,lte=2100"`
	Genre       *string       `json:"genre"`
	Stock       int           `json:"stock" validate:"gte=0"`
	Type        ProductType   `json:"product_type" validate:"required"`
	Songs       []songRequest `json:"songs" validate:"dive"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := CreateProductInput{
		Title:       req.Title,
		ArtistName:  req.ArtistName,
		Price:       req.Price,
		ImagePath:   req.ImagePath,
		ReleaseYear: req.ReleaseYear,
		Genre:       req.Genre,
		Stock:       req.Stock,
		Type:        req.Type,
	}
	for _, s := range req.Songs {
		in.Songs = append(in.Songs, s.toInput())
	}
	product, err := h.service.CreateProduct(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("product created",
		slog.Int64("product_id", product.ID),
		slog.String("type", string(product.Type)),
		slog.Int("songs", len(req.Songs)))
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "productID")
	if !ok {
		return
	}
	var req struct {
		Title       string  `json:"title" validate:"required,max=200"`
		ArtistName  string  `json:"artist_name" validate:"required,max=200"`
		Price       float64 `json:"price" validate:"gte=0"`
		ImagePath   *string `json:"image_path"`
		ReleaseYear *int    `json:"release_year" validate:"omitempty,gte=1900,lte=2100"`
		Genre       *string `json:"genre"`
		Stock       int     `json:"stock" validate:"gte=0"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), id, UpdateProductInput{
		Title:       req.Title,
		ArtistName:  req.ArtistName,
		Price:       req.Price,
		ImagePath:   req.ImagePath,
		ReleaseYear: req.ReleaseYear,
		Genre:       req.Genre,
		Stock:       req.Stock,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	filter := ProductFilter{
		Type:  ProductType(r.URL.Query().Get("type")),
		Genre: r.URL.Query().Get("genre"),
	}
	products, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "productID")
	if !ok {
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "productID")
	if !ok {
		return
	}
	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "productID")
	if !ok {
		return
	}
	var req struct {
		Delta int `json:"delta" validate:"required"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.AdjustStock(r.Context(), id, req.Delta); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) tracklist(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "productID")
	if !ok {
		return
	}
	links, err := h.service.Tracklist(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, links)
}

func (h *Handler) linkSong(w http.ResponseWriter, r *http.Request) {
	albumID, ok := h.pathID(w, r, "productID")
	if !ok {
		return
	}
	var req struct {
		SongID      int64 `json:"song_id" validate:"required,gt=0"`
		TrackNumber int   `json:"track_number" validate:"gte=0"`
		DiscNumber  int   `json:"disc_number" validate:"gte=0"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	link, err := h.service.LinkSong(r.Context(), albumID, req.SongID, req.TrackNumber, req.DiscNumber)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, link)
}

func (h *Handler) unlinkSong(w http.ResponseWriter, r *http.Request) {
	albumID, ok := h.pathID(w, r, "productID")
	if !ok {
		return
	}
	songID, ok := h.pathID(w, r, "songID")
	if !ok {
		return
	}
	if err := h.service.UnlinkSong(r.Context(), albumID, songID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createSong(w http.ResponseWriter, r *http.Request) {
	var req struct {
		songRequest
		ArtistName string `json:"artist_name" validate:"omitempty,max=200"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	song, err := h.service.CreateSong(r.Context(), req.toInput(), req.ArtistName)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, song)
}

func (h *Handler) getSong(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "songID")
	if !ok {
		return
	}
	song, err := h.service.GetSong(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, song)
}

func (h *Handler) deleteSong(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "songID")
	if !ok {
		return
	}
	if err := h.service.DeleteSong(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) orphanSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := h.service.OrphanSongs(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, songs)
}

func (h *Handler) multiAlbumSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := h.service.MultiAlbumSongs(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, songs)
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

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+name)
		return 0, false
	}
	return id, true
}
