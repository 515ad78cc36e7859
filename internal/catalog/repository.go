package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/melodium-shop/melodium/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for products, songs
// and the album-song bridge. WithTx yields a repository bound to a single
// transaction so product-with-tracklist creation commits as one unit.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	CreateProduct(ctx context.Context, p Product) (int64, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context, f ProductFilter) ([]Product, error)
	UpdateProduct(ctx context.Context, p Product) error
	AdjustStock(ctx context.Context, id int64, delta int) error
	DeleteProduct(ctx context.Context, id int64) error

	CreateSong(ctx context.Context, s Song) (int64, error)
	GetSong(ctx context.Context, id int64) (Song, error)
	ListSongs(ctx context.Context) ([]Song, error)
	DeleteSong(ctx context.Context, id int64) error

	LinkSong(ctx context.Context, link AlbumSong) error
	UnlinkSong(ctx context.Context, albumID, songID int64) error
	AlbumSongs(ctx context.Context, albumID int64) ([]AlbumSong, error)
	MaxTrackNumber(ctx context.Context, albumID, discNumber int64) (int, error)

	OrphanSongs(ctx context.Context) ([]Song, error)
	MultiAlbumSongs(ctx context.Context) ([]MultiAlbumSong, error)
}

// ProductFilter narrows ListProducts. Zero values mean no filtering.
type ProductFilter struct {
	Type  ProductType
	Genre string
}

// MultiAlbumSong is a song together with the number of releases it
// appears on.
type MultiAlbumSong struct {
	Song       Song `json:"song"`
	AlbumCount int  `json:"album_count"`
}

// ErrNotFound indicates the catalog record does not exist.
var ErrNotFound = errors.New("catalog: record not found")

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const productColumns = `id, title, display_artist, artist_id, price, image_path, release_year, genre, stock, product_type, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Title, &p.DisplayArtist, &p.ArtistID, &p.Price, &p.ImagePath,
		&p.ReleaseYear, &p.Genre, &p.Stock, &p.Type, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

func (r *repository) CreateProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO products (title, display_artist, artist_id, price, image_path, release_year, genre, stock, product_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		p.Title, p.DisplayArtist, p.ArtistID, p.Price, p.ImagePath, p.ReleaseYear, p.Genre, p.Stock, p.Type,
	).Scan(&id)
	return id, err
}

func (r *repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.db.QueryRow(ctx, `
		SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (r *repository) ListProducts(ctx context.Context, f ProductFilter) ([]Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE ($1 = '' OR product_type = $1)
		  AND ($2 = '' OR genre = $2)
		ORDER BY title`, string(f.Type), f.Genre)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *repository) UpdateProduct(ctx context.Context, p Product) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE products
		SET title = $1, display_artist = $2, artist_id = $3, price = $4, image_path = $5,
		    release_year = $6, genre = $7, stock = $8, updated_at = now()
		WHERE id = $9`,
		p.Title, p.DisplayArtist, p.ArtistID, p.Price, p.ImagePath, p.ReleaseYear, p.Genre, p.Stock, p.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) AdjustStock(ctx context.Context, id int64, delta int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE products SET stock = stock + $1, updated_at = now() WHERE id = $2`, delta, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const songColumns = `id, title, isrc, duration_seconds, bpm, is_explicit, genre, artist_id, audio_path, audio_format, audio_size, price, created_at, updated_at`

func scanSong(row pgx.Row) (Song, error) {
	var s Song
	err := row.Scan(&s.ID, &s.Title, &s.ISRC, &s.Duration, &s.BPM, &s.IsExplicit, &s.Genre,
		&s.ArtistID, &s.AudioPath, &s.AudioFormat, &s.AudioSize, &s.Price, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Song{}, ErrNotFound
	}
	return s, err
}

func (r *repository) CreateSong(ctx context.Context, s Song) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO songs (title, isrc, duration_seconds, bpm, is_explicit, genre, artist_id, audio_path, audio_format, audio_size, price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		s.Title, s.ISRC, s.Duration, s.BPM, s.IsExplicit, s.Genre, s.ArtistID, s.AudioPath, s.AudioFormat, s.AudioSize, s.Price,
	).Scan(&id)
	return id, err
}

func (r *repository) GetSong(ctx context.Context, id int64) (Song, error) {
	return scanSong(r.db.QueryRow(ctx, `
		SELECT `+songColumns+` FROM songs WHERE id = $1`, id))
}

func (r *repository) ListSongs(ctx context.Context) ([]Song, error) {
	rows, err := r.db.Query(ctx, `SELECT `+songColumns+` FROM songs ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSongs(rows)
}

func (r *repository) DeleteSong(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM songs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) LinkSong(ctx context.Context, link AlbumSong) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO album_songs (album_id, song_id, track_number, disc_number)
		VALUES ($1, $2, $3, $4)`,
		link.AlbumID, link.SongID, link.TrackNumber, link.DiscNumber)
	return err
}

func (r *repository) UnlinkSong(ctx context.Context, albumID, songID int64) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM album_songs WHERE album_id = $1 AND song_id = $2`, albumID, songID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) AlbumSongs(ctx context.Context, albumID int64) ([]AlbumSong, error) {
	rows, err := r.db.Query(ctx, `
		SELECT album_id, song_id, track_number, disc_number
		FROM album_songs WHERE album_id = $1
		ORDER BY disc_number, track_number`, albumID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var links []AlbumSong
	for rows.Next() {
		var l AlbumSong
		if err := rows.Scan(&l.AlbumID, &l.SongID, &l.TrackNumber, &l.DiscNumber); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (r *repository) MaxTrackNumber(ctx context.Context, albumID, discNumber int64) (int, error) {
	var max int
	err := r.db.QueryRow(ctx, `
		SELECT coalesce(max(track_number), 0)
		FROM album_songs WHERE album_id = $1 AND disc_number = $2`, albumID, discNumber,
	).Scan(&max)
	return max, err
}

// OrphanSongs returns songs with zero bridge rows. NOT EXISTS is used over
// a left-join null check for planner efficiency on larger catalogs.
func (r *repository) OrphanSongs(ctx context.Context) ([]Song, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+songColumns+` FROM songs s
		WHERE NOT EXISTS (SELECT 1 FROM album_songs a WHERE a.song_id = s.id)
		ORDER BY s.title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSongs(rows)
}

func (r *repository) MultiAlbumSongs(ctx context.Context) ([]MultiAlbumSong, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+prefixedSongColumns("s")+`, count(DISTINCT a.album_id) AS album_count
		FROM songs s
		JOIN album_songs a ON a.song_id = s.id
		GROUP BY s.id
		HAVING count(DISTINCT a.album_id) > 1
		ORDER BY album_count DESC, s.title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MultiAlbumSong
	for rows.Next() {
		var m MultiAlbumSong
		s := &m.Song
		if err := rows.Scan(&s.ID, &s.Title, &s.ISRC, &s.Duration, &s.BPM, &s.IsExplicit, &s.Genre,
			&s.ArtistID, &s.AudioPath, &s.AudioFormat, &s.AudioSize, &s.Price, &s.CreatedAt, &s.UpdatedAt,
			&m.AlbumCount); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func collectSongs(rows pgx.Rows) ([]Song, error) {
	var songs []Song
	for rows.Next() {
		s, err := scanSong(rows)
		if err != nil {
			return nil, err
		}
		songs = append(songs, s)
	}
	return songs, rows.Err()
}

func prefixedSongColumns(alias string) string {
	return alias + ".id, " + alias + ".title, " + alias + ".isrc, " + alias + ".duration_seconds, " +
		alias + ".bpm, " + alias + ".is_explicit, " + alias + ".genre, " + alias + ".artist_id, " +
		alias + ".audio_path, " + alias + ".audio_format, " + alias + ".audio_size, " + alias + ".price, " +
		alias + ".created_at, " + alias + ".updated_at"
}
