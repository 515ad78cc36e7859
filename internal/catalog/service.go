package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/melodium-shop/melodium/internal/identity"
	"github.com/melodium-shop/melodium/internal/platform/db"
	"github.com/melodium-shop/melodium/internal/shared"
)

// ArtistResolver maps a free-text display name onto an artist identity,
// creating one when no match exists. Satisfied by the identity service.
type ArtistResolver interface {
	ResolveArtist(ctx context.Context, displayName string) (identity.Artist, error)
}

// Service implements catalog management: product and song CRUD plus
// bridge maintenance between releases and tracks.
type Service struct {
	repo    Repository
	artists ArtistResolver
}

// NewService builds a Service instance.
func NewService(repo Repository, artists ArtistResolver) *Service {
	return &Service{repo: repo, artists: artists}
}

// SongInput is one track supplied with a product or created standalone.
// TrackNumber 0 means "next free slot on the disc".
type SongInput struct {
	Title       string
	ISRC        *string
	Duration    int
	BPM         *int
	IsExplicit  bool
	Genre       *string
	AudioPath   *string
	AudioFormat *string
	AudioSize   *int64
	Price       float64
	TrackNumber int
	DiscNumber  int
}

// CreateProductInput carries a product-entry request. ArtistName is free
// text; it is resolved to an identity before anything is written.
type CreateProductInput struct {
	Title       string
	ArtistName  string
	Price       float64
	ImagePath   *string
	ReleaseYear *int
	Genre       *string
	Stock       int
	Type        ProductType
	Songs       []SongInput
}

// CreateProduct validates type-dependent requirements, resolves the
// artist identity from the display name, then inserts the product, its
// nested songs and their bridge rows in one transaction.
func (s *Service) CreateProduct(ctx context.Context, in CreateProductInput) (Product, error) {
	if err := validateProduct(in); err != nil {
		return Product{}, err
	}
	artist, err := s.artists.ResolveArtist(ctx, in.ArtistName)
	if err != nil {
		return Product{}, err
	}

	var product Product
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		product = Product{
			Title:         strings.TrimSpace(in.Title),
			DisplayArtist: artist.StageName,
			ArtistID:      &artist.PersonID,
			Price:         in.Price,
			ImagePath:     in.ImagePath,
			ReleaseYear:   in.ReleaseYear,
			Genre:         in.Genre,
			Stock:         in.Stock,
			Type:          in.Type,
		}
		id, err := repo.CreateProduct(ctx, product)
		if err != nil {
			return err
		}
		product.ID = id

		nextTrack := map[int]int{}
		for i, song := range in.Songs {
			if err := validateSong(song); err != nil {
				return fmt.Errorf("song %d: %w", i+1, err)
			}
			songID, err := repo.CreateSong(ctx, Song{
				Title:       strings.TrimSpace(song.Title),
				ISRC:        song.ISRC,
				Duration:    song.Duration,
				BPM:         song.BPM,
				IsExplicit:  song.IsExplicit,
				Genre:       song.Genre,
				ArtistID:    &artist.PersonID,
				AudioPath:   song.AudioPath,
				AudioFormat: song.AudioFormat,
				AudioSize:   song.AudioSize,
				Price:       song.Price,
			})
			if err != nil {
				return err
			}
			disc := song.DiscNumber
			if disc <= 0 {
				disc = 1
			}
			track := song.TrackNumber
			if track <= 0 {
				nextTrack[disc]++
				track = nextTrack[disc]
			} else if track > nextTrack[disc] {
				nextTrack[disc] = track
			}
			if err := repo.LinkSong(ctx, AlbumSong{
				AlbumID:     product.ID,
				SongID:      songID,
				TrackNumber: track,
				DiscNumber:  disc,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Product{}, mapStoreErr(err)
	}
	return product, nil
}

// UpdateProductInput carries the mutable fields of a product. The
// product type is fixed at creation.
type UpdateProductInput struct {
	Title       string
	ArtistName  string
	Price       float64
	ImagePath   *string
	ReleaseYear *int
	Genre       *string
	Stock       int
}

// UpdateProduct replaces a product's mutable fields, re-resolving the
// artist identity when the display name changed.
func (s *Service) UpdateProduct(ctx context.Context, id int64, in UpdateProductInput) (Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, notFoundOr(err, "product %d", id)
	}
	if err := validateProduct(CreateProductInput{
		Title:       in.Title,
		ArtistName:  in.ArtistName,
		Price:       in.Price,
		ReleaseYear: in.ReleaseYear,
		Genre:       in.Genre,
		Stock:       in.Stock,
		Type:        product.Type,
	}); err != nil {
		return Product{}, err
	}
	if in.ArtistName != product.DisplayArtist {
		artist, err := s.artists.ResolveArtist(ctx, in.ArtistName)
		if err != nil {
			return Product{}, err
		}
		product.DisplayArtist = artist.StageName
		product.ArtistID = &artist.PersonID
	}
	product.Title = strings.TrimSpace(in.Title)
	product.Price = in.Price
	product.ImagePath = in.ImagePath
	product.ReleaseYear = in.ReleaseYear
	product.Genre = in.Genre
	product.Stock = in.Stock
	if err := s.repo.UpdateProduct(ctx, product); err != nil {
		return Product{}, mapStoreErr(notFoundOr(err, "product %d", id))
	}
	return product, nil
}

// GetProduct fetches a product by id.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, notFoundOr(err, "product %d", id)
	}
	return p, nil
}

// ListProducts returns products matching the filter.
func (s *Service) ListProducts(ctx context.Context, f ProductFilter) ([]Product, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown product type %q", shared.ErrValidation, f.Type)
	}
	if f.Genre != "" && !ValidGenre(f.Genre) {
		return nil, fmt.Errorf("%w: unknown genre %q", shared.ErrValidation, f.Genre)
	}
	return s.repo.ListProducts(ctx, f)
}

// DeleteProduct removes a product. Bridge rows cascade at the schema
// level; songs survive because a song is not owned by any single release.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return notFoundOr(err, "product %d", id)
	}
	return nil
}

// AdjustStock applies a signed stock delta. The schema rejects drops
// below zero.
func (s *Service) AdjustStock(ctx context.Context, id int64, delta int) error {
	err := s.repo.AdjustStock(ctx, id, delta)
	if db.IsCheckViolation(err) {
		return fmt.Errorf("%w: stock for product %d cannot go negative", shared.ErrConflict, id)
	}
	return notFoundOrNil(err, "product %d", id)
}

// CreateSong creates a standalone song, resolving the artist when a
// display name is supplied.
func (s *Service) CreateSong(ctx context.Context, in SongInput, artistName string) (Song, error) {
	if err := validateSong(in); err != nil {
		return Song{}, err
	}
	song := Song{
		Title:       strings.TrimSpace(in.Title),
		ISRC:        in.ISRC,
		Duration:    in.Duration,
		BPM:         in.BPM,
		IsExplicit:  in.IsExplicit,
		Genre:       in.Genre,
		AudioPath:   in.AudioPath,
		AudioFormat: in.AudioFormat,
		AudioSize:   in.AudioSize,
		Price:       in.Price,
	}
	if strings.TrimSpace(artistName) != "" {
		artist, err := s.artists.ResolveArtist(ctx, artistName)
		if err != nil {
			return Song{}, err
		}
		song.ArtistID = &artist.PersonID
	}
	id, err := s.repo.CreateSong(ctx, song)
	if err != nil {
		return Song{}, mapStoreErr(err)
	}
	song.ID = id
	return song, nil
}

// GetSong fetches a song by id.
func (s *Service) GetSong(ctx context.Context, id int64) (Song, error) {
	song, err := s.repo.GetSong(ctx, id)
	if err != nil {
		return Song{}, notFoundOr(err, "song %d", id)
	}
	return song, nil
}

// DeleteSong removes a song from every release it appears on; its bridge
// rows cascade at the schema level.
func (s *Service) DeleteSong(ctx context.Context, id int64) error {
	if err := s.repo.DeleteSong(ctx, id); err != nil {
		return notFoundOr(err, "song %d", id)
	}
	return nil
}

// LinkSong attaches an existing song to a music product. A zero track
// number appends after the disc's current highest track. Linking an
// already-linked pair is a conflict, not a reorder.
func (s *Service) LinkSong(ctx context.Context, albumID, songID int64, trackNumber, discNumber int) (AlbumSong, error) {
	product, err := s.repo.GetProduct(ctx, albumID)
	if err != nil {
		return AlbumSong{}, notFoundOr(err, "product %d", albumID)
	}
	if !product.Type.IsMusic() {
		return AlbumSong{}, fmt.Errorf("%w: cannot add tracks to %s product %d", shared.ErrValidation, product.Type, albumID)
	}
	if _, err := s.repo.GetSong(ctx, songID); err != nil {
		return AlbumSong{}, notFoundOr(err, "song %d", songID)
	}
	if discNumber <= 0 {
		discNumber = 1
	}
	if trackNumber <= 0 {
		max, err := s.repo.MaxTrackNumber(ctx, albumID, int64(discNumber))
		if err != nil {
			return AlbumSong{}, err
		}
		trackNumber = max + 1
	}
	link := AlbumSong{AlbumID: albumID, SongID: songID, TrackNumber: trackNumber, DiscNumber: discNumber}
	if err := s.repo.LinkSong(ctx, link); err != nil {
		if db.IsUniqueViolation(err) {
			return AlbumSong{}, fmt.Errorf("%w: song %d is already on product %d", shared.ErrConflict, songID, albumID)
		}
		return AlbumSong{}, err
	}
	return link, nil
}

// UnlinkSong removes a bridge row.
func (s *Service) UnlinkSong(ctx context.Context, albumID, songID int64) error {
	if err := s.repo.UnlinkSong(ctx, albumID, songID); err != nil {
		return notFoundOr(err, "song %d on product %d", songID, albumID)
	}
	return nil
}

// Tracklist returns a product's bridge rows in play order.
func (s *Service) Tracklist(ctx context.Context, albumID int64) ([]AlbumSong, error) {
	if _, err := s.repo.GetProduct(ctx, albumID); err != nil {
		return nil, notFoundOr(err, "product %d", albumID)
	}
	return s.repo.AlbumSongs(ctx, albumID)
}

// OrphanSongs returns songs not linked to any release.
func (s *Service) OrphanSongs(ctx context.Context) ([]Song, error) {
	return s.repo.OrphanSongs(ctx)
}

// MultiAlbumSongs returns songs appearing on more than one release.
func (s *Service) MultiAlbumSongs(ctx context.Context) ([]MultiAlbumSong, error) {
	return s.repo.MultiAlbumSongs(ctx)
}

func validateProduct(in CreateProductInput) error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return fmt.Errorf("%w: title is required", shared.ErrValidation)
	case strings.TrimSpace(in.ArtistName) == "":
		return fmt.Errorf("%w: artist name is required", shared.ErrValidation)
	case in.Price < 0:
		return fmt.Errorf("%w: price cannot be negative", shared.ErrValidation)
	case in.Stock < 0:
		return fmt.Errorf("%w: stock cannot be negative", shared.ErrValidation)
	case !in.Type.Valid():
		return fmt.Errorf("%w: unknown product type %q", shared.ErrValidation, in.Type)
	}
	if in.Type.IsMusic() {
		if in.ReleaseYear == nil {
			return fmt.Errorf("%w: %s requires a release year", shared.ErrValidation, in.Type)
		}
		if in.Genre == nil {
			return fmt.Errorf("%w: %s requires a genre", shared.ErrValidation, in.Type)
		}
	} else if len(in.Songs) > 0 {
		return fmt.Errorf("%w: %s products cannot carry a tracklist", shared.ErrValidation, in.Type)
	}
	if in.Genre != nil && !ValidGenre(*in.Genre) {
		return fmt.Errorf("%w: unknown genre %q", shared.ErrValidation, *in.Genre)
	}
	return nil
}

func validateSong(in SongInput) error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return fmt.Errorf("%w: song title is required", shared.ErrValidation)
	case in.Duration <= 0:
		return fmt.Errorf("%w: duration must be positive", shared.ErrValidation)
	case in.Price < 0:
		return fmt.Errorf("%w: price cannot be negative", shared.ErrValidation)
	}
	if in.Genre != nil && !ValidGenre(*in.Genre) {
		return fmt.Errorf("%w: unknown genre %q", shared.ErrValidation, *in.Genre)
	}
	return nil
}

func mapStoreErr(err error) error {
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", shared.ErrConflict, err)
	}
	return err
}

func notFoundOr(err error, format string, args ...any) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: "+format, append([]any{shared.ErrNotFound}, args...)...)
	}
	return err
}

func notFoundOrNil(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return notFoundOr(err, format, args...)
}
