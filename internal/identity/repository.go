package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/melodium-shop/melodium/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the identity
// model. WithTx yields a repository bound to a single transaction so the
// multi-row mutations (registration, email update, merge) commit or roll
// back as one unit.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	CreatePerson(ctx context.Context, p Person) (int64, error)
	GetPerson(ctx context.Context, id int64) (Person, error)
	SetPersonActive(ctx context.Context, id int64, active bool) error
	DeletePerson(ctx context.Context, id int64) error

	CreateCustomer(ctx context.Context, c Customer) error
	GetCustomer(ctx context.Context, personID int64) (Customer, error)
	GetCustomerByUsername(ctx context.Context, username string) (Customer, error)
	AddLoyaltyPoints(ctx context.Context, personID int64, points int64) error

	CreateEmployee(ctx context.Context, e Employee) error
	GetEmployee(ctx context.Context, personID int64) (Employee, error)

	CreateArtist(ctx context.Context, a Artist) error
	GetArtist(ctx context.Context, personID int64) (Artist, error)
	GetArtistByName(ctx context.Context, stageName string) (Artist, error)
	ListArtists(ctx context.Context) ([]Artist, error)
	DeleteArtist(ctx context.Context, personID int64) error
	ReassignArtistRefs(ctx context.Context, fromPersonID, toPersonID int64) error

	ActiveEmail(ctx context.Context, personID int64) (EmailRecord, error)
	ActiveEmailOwner(ctx context.Context, email string) (int64, error)
	CloseEmail(ctx context.Context, recordID int64, at time.Time) error
	InsertEmail(ctx context.Context, rec EmailRecord) (int64, error)
	EmailHistory(ctx context.Context, personID int64) ([]EmailRecord, error)
	DeleteEmailHistory(ctx context.Context, personID int64) error

	AssignRoleByName(ctx context.Context, personID int64, roleName string, assignedBy *int64) error
	DeleteRoleAssignments(ctx context.Context, personID int64) error
	HasOtherRoleRecords(ctx context.Context, personID int64) (bool, error)
}

// ErrNotFound indicates the identity record does not exist.
var ErrNotFound = errors.New("identity: record not found")

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

func (r *repository) CreatePerson(ctx context.Context, p Person) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO persons (given_name, family_name, birth_date, gender, phone, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		p.GivenName, p.FamilyName, p.BirthDate, p.Gender, p.Phone, p.IsActive,
	).Scan(&id)
	return id, err
}

func (r *repository) GetPerson(ctx context.Context, id int64) (Person, error) {
	var p Person
	err := r.db.QueryRow(ctx, `
		SELECT id, given_name, family_name, birth_date, gender, phone, is_active, created_at, updated_at
		FROM persons WHERE id = $1`, id,
	).Scan(&p.ID, &p.GivenName, &p.FamilyName, &p.BirthDate, &p.Gender, &p.Phone, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Person{}, ErrNotFound
	}
	return p, err
}

func (r *repository) SetPersonActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE persons SET is_active = $1, updated_at = now() WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeletePerson(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM persons WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) CreateCustomer(ctx context.Context, c Customer) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO customers (person_id, username, password_hash, loyalty_points)
		VALUES ($1, $2, $3, $4)`,
		c.PersonID, c.Username, c.PasswordHash, c.LoyaltyPoints)
	return err
}

func (r *repository) GetCustomer(ctx context.Context, personID int64) (Customer, error) {
	var c Customer
	err := r.db.QueryRow(ctx, `
		SELECT person_id, username, password_hash, loyalty_points
		FROM customers WHERE person_id = $1`, personID,
	).Scan(&c.PersonID, &c.Username, &c.PasswordHash, &c.LoyaltyPoints)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	return c, err
}

func (r *repository) GetCustomerByUsername(ctx context.Context, username string) (Customer, error) {
	var c Customer
	err := r.db.QueryRow(ctx, `
		SELECT person_id, username, password_hash, loyalty_points
		FROM customers WHERE username = $1`, username,
	).Scan(&c.PersonID, &c.Username, &c.PasswordHash, &c.LoyaltyPoints)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	return c, err
}

func (r *repository) AddLoyaltyPoints(ctx context.Context, personID int64, points int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE customers SET loyalty_points = loyalty_points + $1 WHERE person_id = $2`,
		points, personID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) CreateEmployee(ctx context.Context, e Employee) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO employees (person_id, job_title, department, hired_at)
		VALUES ($1, $2, $3, $4)`,
		e.PersonID, e.JobTitle, e.Department, e.HiredAt)
	return err
}

func (r *repository) GetEmployee(ctx context.Context, personID int64) (Employee, error) {
	var e Employee
	err := r.db.QueryRow(ctx, `
		SELECT person_id, job_title, department, hired_at
		FROM employees WHERE person_id = $1`, personID,
	).Scan(&e.PersonID, &e.JobTitle, &e.Department, &e.HiredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrNotFound
	}
	return e, err
}

func (r *repository) CreateArtist(ctx context.Context, a Artist) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO artists (person_id, stage_name, bio, website, debut_year)
		VALUES ($1, $2, $3, $4, $5)`,
		a.PersonID, a.StageName, a.Bio, a.Website, a.DebutYear)
	return err
}

func (r *repository) GetArtist(ctx context.Context, personID int64) (Artist, error) {
	var a Artist
	err := r.db.QueryRow(ctx, `
		SELECT person_id, stage_name, bio, website, debut_year
		FROM artists WHERE person_id = $1`, personID,
	).Scan(&a.PersonID, &a.StageName, &a.Bio, &a.Website, &a.DebutYear)
	if errors.Is(err, pgx.ErrNoRows) {
		return Artist{}, ErrNotFound
	}
	return a, err
}

func (r *repository) GetArtistByName(ctx context.Context, stageName string) (Artist, error) {
	var a Artist
	err := r.db.QueryRow(ctx, `
		SELECT person_id, stage_name, bio, website, debut_year
		FROM artists WHERE lower(stage_name) = lower($1)`, stageName,
	).Scan(&a.PersonID, &a.StageName, &a.Bio, &a.Website, &a.DebutYear)
	if errors.Is(err, pgx.ErrNoRows) {
		return Artist{}, ErrNotFound
	}
	return a, err
}

func (r *repository) ListArtists(ctx context.Context) ([]Artist, error) {
	rows, err := r.db.Query(ctx, `
		SELECT person_id, stage_name, bio, website, debut_year
		FROM artists ORDER BY stage_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var artists []Artist
	for rows.Next() {
		var a Artist
		if err := rows.Scan(&a.PersonID, &a.StageName, &a.Bio, &a.Website, &a.DebutYear); err != nil {
			return nil, err
		}
		artists = append(artists, a)
	}
	return artists, rows.Err()
}

func (r *repository) DeleteArtist(ctx context.Context, personID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM artists WHERE person_id = $1`, personID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ReassignArtistRefs(ctx context.Context, fromPersonID, toPersonID int64) error {
	stmts := []string{
		`UPDATE products SET artist_id = $2 WHERE artist_id = $1`,
		`UPDATE songs SET artist_id = $2 WHERE artist_id = $1`,
		`UPDATE order_items SET artist_id = $2 WHERE artist_id = $1`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(ctx, s, fromPersonID, toPersonID); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) ActiveEmail(ctx context.Context, personID int64) (EmailRecord, error) {
	var rec EmailRecord
	err := r.db.QueryRow(ctx, `
		SELECT id, person_id, email, is_verified, effective_from, effective_to, change_reason
		FROM email_history WHERE person_id = $1 AND effective_to IS NULL`, personID,
	).Scan(&rec.ID, &rec.PersonID, &rec.Email, &rec.IsVerified, &rec.EffectiveFrom, &rec.EffectiveTo, &rec.ChangeReason)
	if errors.Is(err, pgx.ErrNoRows) {
		return EmailRecord{}, ErrNotFound
	}
	return rec, err
}

func (r *repository) ActiveEmailOwner(ctx context.Context, email string) (int64, error) {
	var personID int64
	err := r.db.QueryRow(ctx, `
		SELECT person_id FROM email_history
		WHERE lower(email) = lower($1) AND effective_to IS NULL`, email,
	).Scan(&personID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return personID, err
}

func (r *repository) CloseEmail(ctx context.Context, recordID int64, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE email_history SET effective_to = $1 WHERE id = $2 AND effective_to IS NULL`,
		at, recordID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) InsertEmail(ctx context.Context, rec EmailRecord) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO email_history (person_id, email, is_verified, effective_from, change_reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		rec.PersonID, rec.Email, rec.IsVerified, rec.EffectiveFrom, rec.ChangeReason,
	).Scan(&id)
	return id, err
}

func (r *repository) EmailHistory(ctx context.Context, personID int64) ([]EmailRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, person_id, email, is_verified, effective_from, effective_to, change_reason
		FROM email_history WHERE person_id = $1 ORDER BY effective_from`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []EmailRecord
	for rows.Next() {
		var rec EmailRecord
		if err := rows.Scan(&rec.ID, &rec.PersonID, &rec.Email, &rec.IsVerified, &rec.EffectiveFrom, &rec.EffectiveTo, &rec.ChangeReason); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *repository) DeleteEmailHistory(ctx context.Context, personID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM email_history WHERE person_id = $1`, personID)
	return err
}

func (r *repository) AssignRoleByName(ctx context.Context, personID int64, roleName string, assignedBy *int64) error {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO person_roles (person_id, role_id, assigned_by)
		SELECT $1, id, $3 FROM roles WHERE name = $2`,
		personID, roleName, assignedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteRoleAssignments(ctx context.Context, personID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM person_roles WHERE person_id = $1`, personID)
	return err
}

func (r *repository) HasOtherRoleRecords(ctx context.Context, personID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM customers WHERE person_id = $1)
			OR EXISTS (SELECT 1 FROM employees WHERE person_id = $1)`, personID,
	).Scan(&exists)
	return exists, err
}
