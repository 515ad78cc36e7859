package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/melodium-shop/melodium/internal/shared"
)

// fakeRepo is an in-memory Repository. WithTx runs the callback against
// the same store; transactional atomicity is the database's concern and is
// not simulated here.
type fakeRepo struct {
	nextPersonID int64
	nextEmailID  int64

	persons   map[int64]Person
	customers map[int64]Customer
	employees map[int64]Employee
	artists   map[int64]Artist
	emails    []EmailRecord
	roles     map[int64][]string

	reassigned [][2]int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		persons:   map[int64]Person{},
		customers: map[int64]Customer{},
		employees: map[int64]Employee{},
		artists:   map[int64]Artist{},
		roles:     map[int64][]string{},
	}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) CreatePerson(ctx context.Context, p Person) (int64, error) {
	f.nextPersonID++
	p.ID = f.nextPersonID
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	f.persons[p.ID] = p
	return p.ID, nil
}

func (f *fakeRepo) GetPerson(ctx context.Context, id int64) (Person, error) {
	p, ok := f.persons[id]
	if !ok {
		return Person{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) SetPersonActive(ctx context.Context, id int64, active bool) error {
	p, ok := f.persons[id]
	if !ok {
		return ErrNotFound
	}
	p.IsActive = active
	f.persons[id] = p
	return nil
}

func (f *fakeRepo) DeletePerson(ctx context.Context, id int64) error {
	if _, ok := f.persons[id]; !ok {
		return ErrNotFound
	}
	delete(f.persons, id)
	return nil
}

func (f *fakeRepo) CreateCustomer(ctx context.Context, c Customer) error {
	f.customers[c.PersonID] = c
	return nil
}

func (f *fakeRepo) GetCustomer(ctx context.Context, personID int64) (Customer, error) {
	c, ok := f.customers[personID]
	if !ok {
		return Customer{}, ErrNotFound
	}
	return c, nil
}

func (f *fakeRepo) GetCustomerByUsername(ctx context.Context, username string) (Customer, error) {
	for _, c := range f.customers {
		if c.Username == username {
			return c, nil
		}
	}
	return Customer{}, ErrNotFound
}

func (f *fakeRepo) AddLoyaltyPoints(ctx context.Context, personID int64, points int64) error {
	c, ok := f.customers[personID]
	if !ok {
		return ErrNotFound
	}
	c.LoyaltyPoints += points
	f.customers[personID] = c
	return nil
}

func (f *fakeRepo) CreateEmployee(ctx context.Context, e Employee) error {
	f.employees[e.PersonID] = e
	return nil
}

func (f *fakeRepo) GetEmployee(ctx context.Context, personID int64) (Employee, error) {
	e, ok := f.employees[personID]
	if !ok {
		return Employee{}, ErrNotFound
	}
	return e, nil
}

func (f *fakeRepo) CreateArtist(ctx context.Context, a Artist) error {
	f.artists[a.PersonID] = a
	return nil
}

func (f *fakeRepo) GetArtist(ctx context.Context, personID int64) (Artist, error) {
	a, ok := f.artists[personID]
	if !ok {
		return Artist{}, ErrNotFound
	}
	return a, nil
}

func (f *fakeRepo) GetArtistByName(ctx context.Context, stageName string) (Artist, error) {
	for _, a := range f.artists {
		if equalFoldASCII(a.StageName, stageName) {
			return a, nil
		}
	}
	return Artist{}, ErrNotFound
}

func (f *fakeRepo) ListArtists(ctx context.Context) ([]Artist, error) {
	var out []Artist
	for id := int64(1); id <= f.nextPersonID; id++ {
		if a, ok := f.artists[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) DeleteArtist(ctx context.Context, personID int64) error {
	if _, ok := f.artists[personID]; !ok {
		return ErrNotFound
	}
	delete(f.artists, personID)
	return nil
}

func (f *fakeRepo) ReassignArtistRefs(ctx context.Context, fromPersonID, toPersonID int64) error {
	f.reassigned = append(f.reassigned, [2]int64{fromPersonID, toPersonID})
	return nil
}

func (f *fakeRepo) ActiveEmail(ctx context.Context, personID int64) (EmailRecord, error) {
	for _, rec := range f.emails {
		if rec.PersonID == personID && rec.EffectiveTo == nil {
			return rec, nil
		}
	}
	return EmailRecord{}, ErrNotFound
}

func (f *fakeRepo) ActiveEmailOwner(ctx context.Context, email string) (int64, error) {
	for _, rec := range f.emails {
		if rec.EffectiveTo == nil && equalFoldASCII(rec.Email, email) {
			return rec.PersonID, nil
		}
	}
	return 0, ErrNotFound
}

func (f *fakeRepo) CloseEmail(ctx context.Context, recordID int64, at time.Time) error {
	for i := range f.emails {
		if f.emails[i].ID == recordID && f.emails[i].EffectiveTo == nil {
			t := at
			f.emails[i].EffectiveTo = &t
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRepo) InsertEmail(ctx context.Context, rec EmailRecord) (int64, error) {
	f.nextEmailID++
	rec.ID = f.nextEmailID
	f.emails = append(f.emails, rec)
	return rec.ID, nil
}

func (f *fakeRepo) EmailHistory(ctx context.Context, personID int64) ([]EmailRecord, error) {
	var out []EmailRecord
	for _, rec := range f.emails {
		if rec.PersonID == personID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRepo) DeleteEmailHistory(ctx context.Context, personID int64) error {
	kept := f.emails[:0]
	for _, rec := range f.emails {
		if rec.PersonID != personID {
			kept = append(kept, rec)
		}
	}
	f.emails = kept
	return nil
}

func (f *fakeRepo) AssignRoleByName(ctx context.Context, personID int64, roleName string, assignedBy *int64) error {
	f.roles[personID] = append(f.roles[personID], roleName)
	return nil
}

func (f *fakeRepo) DeleteRoleAssignments(ctx context.Context, personID int64) error {
	delete(f.roles, personID)
	return nil
}

func (f *fakeRepo) HasOtherRoleRecords(ctx context.Context, personID int64) (bool, error) {
	_, isCustomer := f.customers[personID]
	_, isEmployee := f.employees[personID]
	return isCustomer || isEmployee, nil
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func TestRegisterCustomerCreatesFullIdentity(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	person, err := svc.RegisterCustomer(context.Background(), RegisterCustomerInput{
		GivenName:  "Ada",
		FamilyName: "Lovelace",
		Username:   "ada",
		Password:   "correct horse",
		Email:      "ada@example.com",
	})
	require.NoError(t, err)
	require.True(t, person.IsActive)

	cust, err := repo.GetCustomer(context.Background(), person.ID)
	require.NoError(t, err)
	require.Equal(t, "ada", cust.Username)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(cust.PasswordHash), []byte("correct horse")))

	active, err := repo.ActiveEmail(context.Background(), person.ID)
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", active.Email)
	require.Equal(t, ReasonInitial, active.ChangeReason)

	require.Equal(t, []string{RoleCustomer}, repo.roles[person.ID])
}

func TestRegisterCustomerRejectsDuplicates(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.RegisterCustomer(ctx, RegisterCustomerInput{
		GivenName: "Ada", Username: "ada", Password: "correct horse", Email: "ada@example.com",
	})
	require.NoError(t, err)

	_, err = svc.RegisterCustomer(ctx, RegisterCustomerInput{
		GivenName: "Adah", Username: "ada", Password: "correct horse", Email: "adah@example.com",
	})
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.RegisterCustomer(ctx, RegisterCustomerInput{
		GivenName: "Adah", Username: "adah", Password: "correct horse", Email: "ada@example.com",
	})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestRegisterCustomerValidation(t *testing.T) {
	svc := NewService(newFakeRepo())
	ctx := context.Background()

	cases := []RegisterCustomerInput{
		{Username: "x", Password: "longenough", Email: "x@example.com"},
		{GivenName: "X", Password: "longenough", Email: "x@example.com"},
		{GivenName: "X", Username: "x", Password: "short", Email: "x@example.com"},
		{GivenName: "X", Username: "x", Password: "longenough", Email: "not-an-email"},
	}
	for _, in := range cases {
		_, err := svc.RegisterCustomer(ctx, in)
		require.ErrorIs(t, err, shared.ErrValidation)
	}
}

func TestUpdateEmailClosesThenInserts(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	person, err := svc.RegisterCustomer(ctx, RegisterCustomerInput{
		GivenName: "Ada", Username: "ada", Password: "correct horse", Email: "old@example.com",
	})
	require.NoError(t, err)

	rec, err := svc.UpdateEmail(ctx, person.ID, "new@example.com", ReasonUserUpdated)
	require.NoError(t, err)
	require.Equal(t, "new@example.com", rec.Email)

	history, err := svc.EmailHistory(ctx, person.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.NotNil(t, history[0].EffectiveTo, "previous row must be closed")
	require.Nil(t, history[1].EffectiveTo)
	require.Equal(t, *history[0].EffectiveTo, history[1].EffectiveFrom)
}

func TestUpdateEmailRejectsForeignActiveEmail(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	a, err := svc.RegisterCustomer(ctx, RegisterCustomerInput{
		GivenName: "Ada", Username: "ada", Password: "correct horse", Email: "ada@example.com",
	})
	require.NoError(t, err)
	_, err = svc.RegisterCustomer(ctx, RegisterCustomerInput{
		GivenName: "Grace", Username: "grace", Password: "correct horse", Email: "grace@example.com",
	})
	require.NoError(t, err)

	_, err = svc.UpdateEmail(ctx, a.ID, "grace@example.com", ReasonUserUpdated)
	require.ErrorIs(t, err, shared.ErrConflict)

	// Re-asserting your own active address is not a conflict.
	_, err = svc.UpdateEmail(ctx, a.ID, "ada@example.com", ReasonVerification)
	require.NoError(t, err)
}

func TestUpdateEmailValidatesReason(t *testing.T) {
	svc := NewService(newFakeRepo())
	_, err := svc.UpdateEmail(context.Background(), 1, "x@example.com", ChangeReason("whim"))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestResolveArtistReusesCaseInsensitiveMatch(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	first, err := svc.ResolveArtist(ctx, "Daft Punk")
	require.NoError(t, err)

	again, err := svc.ResolveArtist(ctx, "  daft   PUNK ")
	require.NoError(t, err)
	require.Equal(t, first.PersonID, again.PersonID)

	other, err := svc.ResolveArtist(ctx, "Justice")
	require.NoError(t, err)
	require.NotEqual(t, first.PersonID, other.PersonID)
}

func TestCreateArtistRejectsTakenStageName(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.CreateArtist(ctx, CreateArtistInput{StageName: "Björk"})
	require.NoError(t, err)

	_, err = svc.CreateArtist(ctx, CreateArtistInput{StageName: "Björk"})
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.CreateArtist(ctx, CreateArtistInput{StageName: "   "})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestMergeArtists(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	canonical, err := svc.CreateArtist(ctx, CreateArtistInput{StageName: "The Beatles"})
	require.NoError(t, err)
	dup, err := svc.CreateArtist(ctx, CreateArtistInput{StageName: "Beatles"})
	require.NoError(t, err)

	require.NoError(t, svc.MergeArtists(ctx, canonical.PersonID, dup.PersonID))

	require.Equal(t, [][2]int64{{dup.PersonID, canonical.PersonID}}, repo.reassigned)
	_, err = repo.GetArtist(ctx, dup.PersonID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetPerson(ctx, dup.PersonID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetArtist(ctx, canonical.PersonID)
	require.NoError(t, err)
}

func TestMergeArtistsRefusesMultiRolePerson(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	canonical, err := svc.CreateArtist(ctx, CreateArtistInput{StageName: "Prince"})
	require.NoError(t, err)
	dup, err := svc.CreateArtist(ctx, CreateArtistInput{StageName: "The Artist"})
	require.NoError(t, err)

	// The duplicate is also a customer; merging would destroy that identity.
	require.NoError(t, repo.CreateCustomer(ctx, Customer{PersonID: dup.PersonID, Username: "prince"}))

	err = svc.MergeArtists(ctx, canonical.PersonID, dup.PersonID)
	require.ErrorIs(t, err, shared.ErrConflict)
	_, getErr := repo.GetArtist(ctx, dup.PersonID)
	require.NoError(t, getErr)

	require.ErrorIs(t, svc.MergeArtists(ctx, canonical.PersonID, canonical.PersonID), shared.ErrValidation)
	require.ErrorIs(t, svc.MergeArtists(ctx, 999, dup.PersonID), shared.ErrNotFound)
}

func TestDuplicateArtistGroups(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	for _, name := range []string{"Beyoncé", "Beyonce", "Mitski"} {
		id, err := repo.CreatePerson(ctx, Person{GivenName: name, IsActive: true})
		require.NoError(t, err)
		require.NoError(t, repo.CreateArtist(ctx, Artist{PersonID: id, StageName: name}))
	}

	groups, err := svc.DuplicateArtistGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0], 2)
}

func TestDeactivate(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	person, err := svc.RegisterCustomer(ctx, RegisterCustomerInput{
		GivenName: "Ada", Username: "ada", Password: "correct horse", Email: "ada@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, person.ID))
	got, err := svc.GetPerson(ctx, person.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	require.ErrorIs(t, svc.Deactivate(ctx, 999), shared.ErrNotFound)
}

func TestProfileAssemblesCapabilities(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	person, err := svc.RegisterCustomer(ctx, RegisterCustomerInput{
		GivenName: "Ada", Username: "ada", Password: "correct horse", Email: "ada@example.com",
	})
	require.NoError(t, err)
	require.NoError(t, repo.CreateArtist(ctx, Artist{PersonID: person.ID, StageName: "Ada Live"}))

	profile, err := svc.Profile(ctx, person.ID)
	require.NoError(t, err)
	require.Equal(t, person.ID, profile.Person.ID)
	require.NotNil(t, profile.Customer)
	require.Equal(t, "ada", profile.Customer.Username)
	require.NotNil(t, profile.Artist)
	require.Equal(t, "Ada Live", profile.Artist.StageName)
	require.Nil(t, profile.Employee)

	_, err = svc.Profile(ctx, 999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAwardLoyalty(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	person, err := svc.RegisterCustomer(ctx, RegisterCustomerInput{
		GivenName: "Ada", Username: "ada", Password: "correct horse", Email: "ada@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, svc.AwardLoyalty(ctx, person.ID, 54))
	require.NoError(t, svc.AwardLoyalty(ctx, person.ID, 10))
	c, err := repo.GetCustomer(ctx, person.ID)
	require.NoError(t, err)
	require.EqualValues(t, 64, c.LoyaltyPoints)

	require.ErrorIs(t, svc.AwardLoyalty(ctx, person.ID, 0), shared.ErrValidation)
	require.ErrorIs(t, svc.AwardLoyalty(ctx, 999, 5), shared.ErrNotFound)
}
