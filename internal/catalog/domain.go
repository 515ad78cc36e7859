package catalog

import "time"

// ProductType enumerates the sellable unit kinds.
type ProductType string

const (
	ProductTypeAlbum  ProductType = "Album"
	ProductTypeSingle ProductType = "Single"
	ProductTypeEP     ProductType = "EP"
	ProductTypeMerch  ProductType = "Merch"
)

// IsMusic reports whether the type represents a music release, which
// requires a release year and genre.
func (t ProductType) IsMusic() bool {
	return t == ProductTypeAlbum || t == ProductTypeSingle || t == ProductTypeEP
}

// Valid reports whether the type is one of the known kinds.
func (t ProductType) Valid() bool {
	switch t {
	case ProductTypeAlbum, ProductTypeSingle, ProductTypeEP, ProductTypeMerch:
		return true
	}
	return false
}

// Product represents a sellable unit: album, single, EP or merchandise.
// DisplayArtist is a denormalized cache of the linked artist's stage name;
// ArtistID is the authoritative identity reference.
type Product struct {
	ID            int64       `json:"id"`
	Title         string      `json:"title"`
	DisplayArtist string      `json:"display_artist"`
	ArtistID      *int64      `json:"artist_id,omitempty"`
	Price         float64     `json:"price"`
	ImagePath     *string     `json:"image_path,omitempty"`
	ReleaseYear   *int        `json:"release_year,omitempty"`
	Genre         *string     `json:"genre,omitempty"`
	Stock         int         `json:"stock"`
	Type          ProductType `json:"product_type"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Song is a first-class entity independent of any single release.
type Song struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	ISRC        *string   `json:"isrc,omitempty"`
	Duration    int       `json:"duration_seconds"`
	BPM         *int      `json:"bpm,omitempty"`
	IsExplicit  bool      `json:"is_explicit"`
	Genre       *string   `json:"genre,omitempty"`
	ArtistID    *int64    `json:"artist_id,omitempty"`
	AudioPath   *string   `json:"audio_path,omitempty"`
	AudioFormat *string   `json:"audio_format,omitempty"`
	AudioSize   *int64    `json:"audio_size,omitempty"`
	Price       float64   `json:"price"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AlbumSong is the bridge row linking a song onto a release. The
// (album, song) pair is the primary key; track and disc numbers are
// ordering attributes, not identity.
type AlbumSong struct {
	AlbumID     int64 `json:"album_id"`
	SongID      int64 `json:"song_id"`
	TrackNumber int   `json:"track_number"`
	DiscNumber  int   `json:"disc_number"`
}
