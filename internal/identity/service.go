package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/melodium-shop/melodium/internal/platform/db"
	"github.com/melodium-shop/melodium/internal/shared"
)

// Role names granted by the identity flows. The role catalog itself lives
// in the rbac module; registration references roles by name.
const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
	RoleArtist   = "artist"
)

// Service enforces the identity invariants across every mutation path.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// RegisterCustomerInput carries a registration request.
type RegisterCustomerInput struct {
	GivenName  string
	FamilyName string
	Username   string
	Password   string
	Email      string
	BirthDate  *time.Time
	Gender     *Gender
	Phone      *string
}

// RegisterCustomer creates the person row, the customer capability record,
// the initial email history row and the default role assignment as one
// transaction. Partial completion is a data-integrity defect, so any
// failure rolls the whole sequence back.
func (s *Service) RegisterCustomer(ctx context.Context, in RegisterCustomerInput) (Person, error) {
	if err := validateRegistration(in); err != nil {
		return Person{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return Person{}, fmt.Errorf("identity: hash password: %w", err)
	}

	var person Person
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.GetCustomerByUsername(ctx, in.Username); err == nil {
			return fmt.Errorf("%w: username %q", shared.ErrConflict, in.Username)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if _, err := repo.ActiveEmailOwner(ctx, in.Email); err == nil {
			return fmt.Errorf("%w: email %q is already in use", shared.ErrConflict, in.Email)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		personID, err := repo.CreatePerson(ctx, Person{
			GivenName:  strings.TrimSpace(in.GivenName),
			FamilyName: strings.TrimSpace(in.FamilyName),
			BirthDate:  in.BirthDate,
			Gender:     in.Gender,
			Phone:      in.Phone,
			IsActive:   true,
		})
		if err != nil {
			return err
		}
		if err := repo.CreateCustomer(ctx, Customer{
			PersonID:     personID,
			Username:     in.Username,
			PasswordHash: string(hash),
		}); err != nil {
			return err
		}
		if _, err := repo.InsertEmail(ctx, EmailRecord{
			PersonID:      personID,
			Email:         in.Email,
			EffectiveFrom: s.now(),
			ChangeReason:  ReasonInitial,
		}); err != nil {
			return err
		}
		if err := repo.AssignRoleByName(ctx, personID, RoleCustomer, nil); err != nil {
			return err
		}
		person, err = repo.GetPerson(ctx, personID)
		return err
	})
	if err != nil {
		return Person{}, conflictOr(err)
	}
	return person, nil
}

// CreateEmployeeInput carries an admin employee-creation request.
type CreateEmployeeInput struct {
	GivenName  string
	FamilyName string
	Email      string
	JobTitle   string
	Department *string
	CreatedBy  int64
}

// CreateEmployee provisions a staff identity with the same transactional
// discipline as registration.
func (s *Service) CreateEmployee(ctx context.Context, in CreateEmployeeInput) (Person, error) {
	if strings.TrimSpace(in.GivenName) == "" || strings.TrimSpace(in.JobTitle) == "" || strings.TrimSpace(in.Email) == "" {
		return Person{}, fmt.Errorf("%w: given name, job title and email are required", shared.ErrValidation)
	}

	var person Person
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.ActiveEmailOwner(ctx, in.Email); err == nil {
			return fmt.Errorf("%w: email %q is already in use", shared.ErrConflict, in.Email)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		personID, err := repo.CreatePerson(ctx, Person{
			GivenName:  strings.TrimSpace(in.GivenName),
			FamilyName: strings.TrimSpace(in.FamilyName),
			IsActive:   true,
		})
		if err != nil {
			return err
		}
		if err := repo.CreateEmployee(ctx, Employee{
			PersonID:   personID,
			JobTitle:   strings.TrimSpace(in.JobTitle),
			Department: in.Department,
			HiredAt:    s.now(),
		}); err != nil {
			return err
		}
		if _, err := repo.InsertEmail(ctx, EmailRecord{
			PersonID:      personID,
			Email:         in.Email,
			EffectiveFrom: s.now(),
			ChangeReason:  ReasonAdminUpdated,
		}); err != nil {
			return err
		}
		if err := repo.AssignRoleByName(ctx, personID, RoleStaff, &in.CreatedBy); err != nil {
			return err
		}
		person, err = repo.GetPerson(ctx, personID)
		return err
	})
	if err != nil {
		return Person{}, conflictOr(err)
	}
	return person, nil
}

// CreateArtistInput carries an explicit artist-creation request.
type CreateArtistInput struct {
	StageName string
	GivenName string
	Bio       *string
	Website   *string
	DebutYear *int
}

// CreateArtist creates a person plus artist capability record. Stage name
// uniqueness is pre-checked case-insensitively and backstopped by the
// schema constraint.
func (s *Service) CreateArtist(ctx context.Context, in CreateArtistInput) (Artist, error) {
	stageName := NormalizeStageName(in.StageName)
	if stageName == "" {
		return Artist{}, fmt.Errorf("%w: stage name is required", shared.ErrValidation)
	}

	var artist Artist
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if existing, err := repo.GetArtistByName(ctx, stageName); err == nil {
			return fmt.Errorf("%w: stage name %q is taken by artist %d", shared.ErrConflict, existing.StageName, existing.PersonID)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		given := strings.TrimSpace(in.GivenName)
		if given == "" {
			given = stageName
		}
		personID, err := repo.CreatePerson(ctx, Person{GivenName: given, IsActive: true})
		if err != nil {
			return err
		}
		artist = Artist{
			PersonID:  personID,
			StageName: stageName,
			Bio:       in.Bio,
			Website:   in.Website,
			DebutYear: in.DebutYear,
		}
		return repo.CreateArtist(ctx, artist)
	})
	if err != nil {
		return Artist{}, conflictOr(err)
	}
	return artist, nil
}

// ResolveArtist maps a free-text display name to an artist person id,
// creating the identity when no case-insensitive match exists. Known
// limitation: whitespace and unicode representation are normalized, but
// "The " prefixes, stylized capitalization and misspellings still create
// distinct identities; MergeArtists is the manual repair path.
func (s *Service) ResolveArtist(ctx context.Context, displayName string) (Artist, error) {
	stageName := NormalizeStageName(displayName)
	if stageName == "" {
		return Artist{}, fmt.Errorf("%w: artist name is required", shared.ErrValidation)
	}
	artist, err := s.repo.GetArtistByName(ctx, stageName)
	if err == nil {
		return artist, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Artist{}, err
	}
	return s.CreateArtist(ctx, CreateArtistInput{StageName: stageName})
}

// MergeArtists reassigns every catalog and order reference from the
// duplicate artist to the canonical one, then deletes the duplicate's
// artist and person rows. The duplicate must carry no other role records.
func (s *Service) MergeArtists(ctx context.Context, canonicalID, duplicateID int64) error {
	if canonicalID == duplicateID {
		return fmt.Errorf("%w: cannot merge an artist into itself", shared.ErrValidation)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.GetArtist(ctx, canonicalID); err != nil {
			return notFoundOr(err, "canonical artist %d", canonicalID)
		}
		if _, err := repo.GetArtist(ctx, duplicateID); err != nil {
			return notFoundOr(err, "duplicate artist %d", duplicateID)
		}
		other, err := repo.HasOtherRoleRecords(ctx, duplicateID)
		if err != nil {
			return err
		}
		if other {
			return fmt.Errorf("%w: person %d holds customer or employee records and cannot be merged away", shared.ErrConflict, duplicateID)
		}
		if err := repo.ReassignArtistRefs(ctx, duplicateID, canonicalID); err != nil {
			return err
		}
		if err := repo.DeleteArtist(ctx, duplicateID); err != nil {
			return err
		}
		if err := repo.DeleteRoleAssignments(ctx, duplicateID); err != nil {
			return err
		}
		if err := repo.DeleteEmailHistory(ctx, duplicateID); err != nil {
			return err
		}
		return repo.DeletePerson(ctx, duplicateID)
	})
}

// DuplicateArtistGroups returns artists whose stage names collide under
// diacritic- and case-folding: candidates for a manual merge. Automatic
// merging is deliberately not offered — two real people can share a folded
// name.
func (s *Service) DuplicateArtistGroups(ctx context.Context) ([][]Artist, error) {
	artists, err := s.repo.ListArtists(ctx)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string][]Artist)
	var order []string
	for _, a := range artists {
		key := FoldStageName(a.StageName)
		if len(byKey[key]) == 0 {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], a)
	}
	var groups [][]Artist
	for _, key := range order {
		if len(byKey[key]) > 1 {
			groups = append(groups, byKey[key])
		}
	}
	return groups, nil
}

// UpdateEmail appends a new email history row after closing the current
// one. Email values are never mutated in place.
func (s *Service) UpdateEmail(ctx context.Context, personID int64, email string, reason ChangeReason) (EmailRecord, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return EmailRecord{}, fmt.Errorf("%w: a valid email is required", shared.ErrValidation)
	}
	switch reason {
	case ReasonUserUpdated, ReasonAdminUpdated, ReasonVerification:
	default:
		return EmailRecord{}, fmt.Errorf("%w: invalid change reason %q", shared.ErrValidation, reason)
	}

	var out EmailRecord
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.GetPerson(ctx, personID); err != nil {
			return notFoundOr(err, "person %d", personID)
		}
		if owner, err := repo.ActiveEmailOwner(ctx, email); err == nil && owner != personID {
			return fmt.Errorf("%w: email %q is active for another person", shared.ErrConflict, email)
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		now := s.now()
		current, err := repo.ActiveEmail(ctx, personID)
		switch {
		case err == nil:
			if err := repo.CloseEmail(ctx, current.ID, now); err != nil {
				return err
			}
		case errors.Is(err, ErrNotFound):
			// No active row yet; the insert below opens the history.
		default:
			return err
		}

		id, err := repo.InsertEmail(ctx, EmailRecord{
			PersonID:      personID,
			Email:         email,
			IsVerified:    reason == ReasonVerification,
			EffectiveFrom: now,
			ChangeReason:  reason,
		})
		if err != nil {
			return err
		}
		out = EmailRecord{
			ID:            id,
			PersonID:      personID,
			Email:         email,
			IsVerified:    reason == ReasonVerification,
			EffectiveFrom: now,
			ChangeReason:  reason,
		}
		return nil
	})
	if err != nil {
		return EmailRecord{}, conflictOr(err)
	}
	return out, nil
}

// ActiveEmail returns the currently effective email for a person.
func (s *Service) ActiveEmail(ctx context.Context, personID int64) (EmailRecord, error) {
	rec, err := s.repo.ActiveEmail(ctx, personID)
	if err != nil {
		return EmailRecord{}, notFoundOr(err, "active email for person %d", personID)
	}
	return rec, nil
}

// EmailHistory returns the full append-only log for a person.
func (s *Service) EmailHistory(ctx context.Context, personID int64) ([]EmailRecord, error) {
	return s.repo.EmailHistory(ctx, personID)
}

// GetPerson fetches a person by id.
func (s *Service) GetPerson(ctx context.Context, id int64) (Person, error) {
	p, err := s.repo.GetPerson(ctx, id)
	if err != nil {
		return Person{}, notFoundOr(err, "person %d", id)
	}
	return p, nil
}

// Profile is a person together with whichever capability records they
// hold. Absent capabilities are nil.
type Profile struct {
	Person   Person    `json:"person"`
	Customer *Customer `json:"customer,omitempty"`
	Employee *Employee `json:"employee,omitempty"`
	Artist   *Artist   `json:"artist,omitempty"`
}

// Profile assembles a person with their customer, employee, and artist
// records.
func (s *Service) Profile(ctx context.Context, id int64) (Profile, error) {
	p, err := s.repo.GetPerson(ctx, id)
	if err != nil {
		return Profile{}, notFoundOr(err, "person %d", id)
	}
	out := Profile{Person: p}
	if c, err := s.repo.GetCustomer(ctx, id); err == nil {
		out.Customer = &c
	} else if !errors.Is(err, ErrNotFound) {
		return Profile{}, err
	}
	if e, err := s.repo.GetEmployee(ctx, id); err == nil {
		out.Employee = &e
	} else if !errors.Is(err, ErrNotFound) {
		return Profile{}, err
	}
	if a, err := s.repo.GetArtist(ctx, id); err == nil {
		out.Artist = &a
	} else if !errors.Is(err, ErrNotFound) {
		return Profile{}, err
	}
	return out, nil
}

// AwardLoyalty adds points to a customer's loyalty counter. Fails with
// not-found for persons without a customer record.
func (s *Service) AwardLoyalty(ctx context.Context, personID, points int64) error {
	if points <= 0 {
		return fmt.Errorf("%w: points must be positive", shared.ErrValidation)
	}
	if err := s.repo.AddLoyaltyPoints(ctx, personID, points); err != nil {
		return notFoundOr(err, "customer %d", personID)
	}
	return nil
}

// Deactivate soft-disables a person. Referenced identities are never hard
// deleted.
func (s *Service) Deactivate(ctx context.Context, personID int64) error {
	if err := s.repo.SetPersonActive(ctx, personID, false); err != nil {
		return notFoundOr(err, "person %d", personID)
	}
	return nil
}

// Activate re-enables a person.
func (s *Service) Activate(ctx context.Context, personID int64) error {
	if err := s.repo.SetPersonActive(ctx, personID, true); err != nil {
		return notFoundOr(err, "person %d", personID)
	}
	return nil
}

func validateRegistration(in RegisterCustomerInput) error {
	switch {
	case strings.TrimSpace(in.GivenName) == "":
		return fmt.Errorf("%w: given name is required", shared.ErrValidation)
	case strings.TrimSpace(in.Username) == "":
		return fmt.Errorf("%w: username is required", shared.ErrValidation)
	case len(in.Password) < 8:
		return fmt.Errorf("%w: password must be at least 8 characters", shared.ErrValidation)
	case !strings.Contains(in.Email, "@"):
		return fmt.Errorf("%w: a valid email is required", shared.ErrValidation)
	}
	if in.Gender != nil {
		switch *in.Gender {
		case GenderFemale, GenderMale, GenderNonbinary, GenderUnspecified:
		default:
			return fmt.Errorf("%w: invalid gender %q", shared.ErrValidation, *in.Gender)
		}
	}
	return nil
}

// conflictOr converts storage-level uniqueness races into the conflict
// kind; anything else passes through.
func conflictOr(err error) error {
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
