package catalog

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/melodium-shop/melodium/internal/identity"
	"github.com/melodium-shop/melodium/internal/shared"
)

type bridgeKey struct {
	albumID, songID int64
}

// fakeRepo is an in-memory Repository mirroring the schema's cascade and
// uniqueness rules. WithTx runs the callback against the same store.
type fakeRepo struct {
	nextID   int64
	products map[int64]Product
	songs    map[int64]Song
	bridge   map[bridgeKey]AlbumSong
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		products: map[int64]Product{},
		songs:    map[int64]Song{},
		bridge:   map[bridgeKey]AlbumSong{},
	}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) CreateProduct(ctx context.Context, p Product) (int64, error) {
	f.nextID++
	p.ID = f.nextID
	f.products[p.ID] = p
	return p.ID, nil
}

func (f *fakeRepo) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, ok := f.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	var out []Product
	for id := int64(1); id <= f.nextID; id++ {
		p, ok := f.products[id]
		if !ok {
			continue
		}
		if filter.Type != "" && p.Type != filter.Type {
			continue
		}
		if filter.Genre != "" && (p.Genre == nil || *p.Genre != filter.Genre) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeRepo) UpdateProduct(ctx context.Context, p Product) error {
	if _, ok := f.products[p.ID]; !ok {
		return ErrNotFound
	}
	f.products[p.ID] = p
	return nil
}

func (f *fakeRepo) AdjustStock(ctx context.Context, id int64, delta int) error {
	p, ok := f.products[id]
	if !ok {
		return ErrNotFound
	}
	if p.Stock+delta < 0 {
		return &pgconn.PgError{Code: "23514"}
	}
	p.Stock += delta
	f.products[id] = p
	return nil
}

func (f *fakeRepo) DeleteProduct(ctx context.Context, id int64) error {
	if _, ok := f.products[id]; !ok {
		return ErrNotFound
	}
	delete(f.products, id)
	for k := range f.bridge {
		if k.albumID == id {
			delete(f.bridge, k)
		}
	}
	return nil
}

func (f *fakeRepo) CreateSong(ctx context.Context, s Song) (int64, error) {
	if s.ISRC != nil {
		for _, existing := range f.songs {
			if existing.ISRC != nil && *existing.ISRC == *s.ISRC {
				return 0, &pgconn.PgError{Code: "23505"}
			}
		}
	}
	f.nextID++
	s.ID = f.nextID
	f.songs[s.ID] = s
	return s.ID, nil
}

func (f *fakeRepo) GetSong(ctx context.Context, id int64) (Song, error) {
	s, ok := f.songs[id]
	if !ok {
		return Song{}, ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) ListSongs(ctx context.Context) ([]Song, error) {
	var out []Song
	for id := int64(1); id <= f.nextID; id++ {
		if s, ok := f.songs[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) DeleteSong(ctx context.Context, id int64) error {
	if _, ok := f.songs[id]; !ok {
		return ErrNotFound
	}
	delete(f.songs, id)
	for k := range f.bridge {
		if k.songID == id {
			delete(f.bridge, k)
		}
	}
	return nil
}

func (f *fakeRepo) LinkSong(ctx context.Context, link AlbumSong) error {
	key := bridgeKey{link.AlbumID, link.SongID}
	if _, exists := f.bridge[key]; exists {
		return &pgconn.PgError{Code: "23505"}
	}
	f.bridge[key] = link
	return nil
}

func (f *fakeRepo) UnlinkSong(ctx context.Context, albumID, songID int64) error {
	key := bridgeKey{albumID, songID}
	if _, exists := f.bridge[key]; !exists {
		return ErrNotFound
	}
	delete(f.bridge, key)
	return nil
}

func (f *fakeRepo) AlbumSongs(ctx context.Context, albumID int64) ([]AlbumSong, error) {
	var out []AlbumSong
	for _, l := range f.bridge {
		if l.AlbumID == albumID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepo) MaxTrackNumber(ctx context.Context, albumID, discNumber int64) (int, error) {
	max := 0
	for _, l := range f.bridge {
		if l.AlbumID == albumID && int64(l.DiscNumber) == discNumber && l.TrackNumber > max {
			max = l.TrackNumber
		}
	}
	return max, nil
}

func (f *fakeRepo) OrphanSongs(ctx context.Context) ([]Song, error) {
	linked := map[int64]bool{}
	for k := range f.bridge {
		linked[k.songID] = true
	}
	var out []Song
	for id := int64(1); id <= f.nextID; id++ {
		if s, ok := f.songs[id]; ok && !linked[id] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) MultiAlbumSongs(ctx context.Context) ([]MultiAlbumSong, error) {
	counts := map[int64]map[int64]bool{}
	for k := range f.bridge {
		if counts[k.songID] == nil {
			counts[k.songID] = map[int64]bool{}
		}
		counts[k.songID][k.albumID] = true
	}
	var out []MultiAlbumSong
	for id := int64(1); id <= f.nextID; id++ {
		if albums := counts[id]; len(albums) > 1 {
			out = append(out, MultiAlbumSong{Song: f.songs[id], AlbumCount: len(albums)})
		}
	}
	return out, nil
}

// fakeResolver hands out one identity per distinct lowercase name.
type fakeResolver struct {
	nextID  int64
	artists map[string]identity.Artist
}

func (f *fakeResolver) ResolveArtist(ctx context.Context, displayName string) (identity.Artist, error) {
	name := identity.NormalizeStageName(displayName)
	key := identity.FoldStageName(name)
	if f.artists == nil {
		f.artists = map[string]identity.Artist{}
	}
	if a, ok := f.artists[key]; ok {
		return a, nil
	}
	f.nextID++
	a := identity.Artist{PersonID: f.nextID, StageName: name}
	f.artists[key] = a
	return a, nil
}

func setup() (*fakeRepo, *fakeResolver, *Service) {
	repo := newFakeRepo()
	resolver := &fakeResolver{}
	return repo, resolver, NewService(repo, resolver)
}

func strptr(s string) *string { return &s }
func intptr(i int) *int       { return &i }

func albumInput(songs ...SongInput) CreateProductInput {
	return CreateProductInput{
		Title:       "Discovery",
		ArtistName:  "Daft Punk",
		Price:       14.99,
		ReleaseYear: intptr(2001),
		Genre:       strptr("Electronic"),
		Stock:       25,
		Type:        ProductTypeAlbum,
		Songs:       songs,
	}
}

func TestCreateProductWithNestedSongs(t *testing.T) {
	repo, _, svc := setup()
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, albumInput(
		SongInput{Title: "One More Time", Duration: 320, Price: 1.29},
		SongInput{Title: "Aerodynamic", Duration: 207, Price: 1.29},
		SongInput{Title: "Digital Love", Duration: 301, Price: 1.29},
	))
	require.NoError(t, err)
	require.NotZero(t, product.ID)
	require.Equal(t, "Daft Punk", product.DisplayArtist)
	require.NotNil(t, product.ArtistID)

	links, err := repo.AlbumSongs(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, links, 3)

	// Sequential fallback numbering on disc 1.
	tracks := map[int]bool{}
	for _, l := range links {
		require.Equal(t, 1, l.DiscNumber)
		tracks[l.TrackNumber] = true
	}
	require.Equal(t, map[int]bool{1: true, 2: true, 3: true}, tracks)

	for _, s := range repo.songs {
		require.Equal(t, product.ArtistID, s.ArtistID)
	}
}

func TestCreateProductValidation(t *testing.T) {
	_, _, svc := setup()
	ctx := context.Background()

	in := albumInput()
	in.ReleaseYear = nil
	_, err := svc.CreateProduct(ctx, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in = albumInput()
	in.Genre = nil
	_, err = svc.CreateProduct(ctx, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in = albumInput()
	in.Genre = strptr("Vaporwave")
	_, err = svc.CreateProduct(ctx, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	// Merch needs neither year nor genre, but cannot carry a tracklist.
	_, err = svc.CreateProduct(ctx, CreateProductInput{
		Title: "Tour Shirt", ArtistName: "Daft Punk", Price: 25, Stock: 100, Type: ProductTypeMerch,
	})
	require.NoError(t, err)

	_, err = svc.CreateProduct(ctx, CreateProductInput{
		Title: "Tour Shirt XL", ArtistName: "Daft Punk", Price: 25, Stock: 100, Type: ProductTypeMerch,
		Songs: []SongInput{{Title: "Hidden Track", Duration: 60}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateProductReusesArtistIdentity(t *testing.T) {
	_, resolver, svc := setup()
	ctx := context.Background()

	first, err := svc.CreateProduct(ctx, albumInput())
	require.NoError(t, err)

	in := albumInput()
	in.Title = "Homework"
	in.ArtistName = "daft punk"
	second, err := svc.CreateProduct(ctx, in)
	require.NoError(t, err)

	require.Equal(t, *first.ArtistID, *second.ArtistID)
	require.Len(t, resolver.artists, 1)
}

func TestDeleteProductLeavesSongsOrphaned(t *testing.T) {
	repo, _, svc := setup()
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, albumInput(
		SongInput{Title: "One More Time", Duration: 320, Price: 1.29},
		SongInput{Title: "Aerodynamic", Duration: 207, Price: 1.29},
	))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteProduct(ctx, product.ID))

	require.Len(t, repo.songs, 2, "songs are not owned by the release")
	orphans, err := svc.OrphanSongs(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 2)

	require.ErrorIs(t, svc.DeleteProduct(ctx, product.ID), shared.ErrNotFound)
}

func TestLinkSongConflictsAndAppends(t *testing.T) {
	_, _, svc := setup()
	ctx := context.Background()

	album, err := svc.CreateProduct(ctx, albumInput(
		SongInput{Title: "One More Time", Duration: 320, Price: 1.29},
	))
	require.NoError(t, err)
	single, err := svc.CreateSong(ctx, SongInput{Title: "Around the World", Duration: 429, Price: 1.29}, "Daft Punk")
	require.NoError(t, err)

	link, err := svc.LinkSong(ctx, album.ID, single.ID, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 2, link.TrackNumber, "appends after the existing track")
	require.Equal(t, 1, link.DiscNumber)

	_, err = svc.LinkSong(ctx, album.ID, single.ID, 5, 1)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.LinkSong(ctx, album.ID, 999, 0, 0)
	require.ErrorIs(t, err, shared.ErrNotFound)

	merch, err := svc.CreateProduct(ctx, CreateProductInput{
		Title: "Poster", ArtistName: "Daft Punk", Price: 10, Type: ProductTypeMerch,
	})
	require.NoError(t, err)
	_, err = svc.LinkSong(ctx, merch.ID, single.ID, 0, 0)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUnlinkSong(t *testing.T) {
	_, _, svc := setup()
	ctx := context.Background()

	album, err := svc.CreateProduct(ctx, albumInput(
		SongInput{Title: "One More Time", Duration: 320, Price: 1.29},
	))
	require.NoError(t, err)
	links, err := svc.Tracklist(ctx, album.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)

	require.NoError(t, svc.UnlinkSong(ctx, album.ID, links[0].SongID))
	require.ErrorIs(t, svc.UnlinkSong(ctx, album.ID, links[0].SongID), shared.ErrNotFound)
}

func TestMultiAlbumSongs(t *testing.T) {
	_, _, svc := setup()
	ctx := context.Background()

	album, err := svc.CreateProduct(ctx, albumInput(
		SongInput{Title: "One More Time", Duration: 320, Price: 1.29},
	))
	require.NoError(t, err)
	tracks, err := svc.Tracklist(ctx, album.ID)
	require.NoError(t, err)

	in := albumInput()
	in.Title = "Greatest Hits"
	compilation, err := svc.CreateProduct(ctx, in)
	require.NoError(t, err)
	_, err = svc.LinkSong(ctx, compilation.ID, tracks[0].SongID, 0, 0)
	require.NoError(t, err)

	multi, err := svc.MultiAlbumSongs(ctx)
	require.NoError(t, err)
	require.Len(t, multi, 1)
	require.Equal(t, 2, multi[0].AlbumCount)
	require.Equal(t, tracks[0].SongID, multi[0].Song.ID)

	orphans, err := svc.OrphanSongs(ctx)
	require.NoError(t, err)
	require.Empty(t, orphans)
}

func TestCreateSongDuplicateISRC(t *testing.T) {
	_, _, svc := setup()
	ctx := context.Background()

	isrc := "USQX91300108"
	_, err := svc.CreateSong(ctx, SongInput{Title: "Get Lucky", Duration: 369, Price: 1.29, ISRC: &isrc}, "Daft Punk")
	require.NoError(t, err)
	_, err = svc.CreateSong(ctx, SongInput{Title: "Get Lucky (copy)", Duration: 369, Price: 1.29, ISRC: &isrc}, "Daft Punk")
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestAdjustStock(t *testing.T) {
	_, _, svc := setup()
	ctx := context.Background()

	merch, err := svc.CreateProduct(ctx, CreateProductInput{
		Title: "Poster", ArtistName: "Daft Punk", Price: 10, Stock: 3, Type: ProductTypeMerch,
	})
	require.NoError(t, err)

	require.NoError(t, svc.AdjustStock(ctx, merch.ID, -3))
	require.ErrorIs(t, svc.AdjustStock(ctx, merch.ID, -1), shared.ErrConflict)
	require.ErrorIs(t, svc.AdjustStock(ctx, 999, 1), shared.ErrNotFound)
}

func TestUpdateProductReResolvesArtist(t *testing.T) {
	repo, resolver, svc := setup()
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, albumInput())
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(ctx, product.ID, UpdateProductInput{
		Title:       "Discovery (Remastered)",
		ArtistName:  "Justice",
		Price:       19.99,
		ReleaseYear: intptr(2001),
		Genre:       strptr("Electronic"),
		Stock:       40,
	})
	require.NoError(t, err)
	require.Equal(t, "Discovery (Remastered)", updated.Title)
	require.Equal(t, "Justice", updated.DisplayArtist)
	require.NotEqual(t, product.ArtistID, updated.ArtistID)
	require.Len(t, resolver.artists, 2)

	stored, err := repo.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, 19.99, stored.Price)
	require.Equal(t, 40, stored.Stock)
}

func TestUpdateProductKeepsTypeRules(t *testing.T) {
	_, _, svc := setup()
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, albumInput())
	require.NoError(t, err)

	// Albums keep requiring a release year even on update.
	_, err = svc.UpdateProduct(ctx, product.ID, UpdateProductInput{
		Title:      "Discovery",
		ArtistName: "Daft Punk",
		Price:      14.99,
		Genre:      strptr("Electronic"),
		Stock:      25,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.UpdateProduct(ctx, 999, UpdateProductInput{
		Title: "Ghost", ArtistName: "Nobody", Price: 1, Stock: 1,
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
