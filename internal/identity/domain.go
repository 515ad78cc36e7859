// Package identity holds the human-centric identity model: a base person
// record, optional role sub-records (customer, employee, artist) keyed by
// the same person id, and an append-only temporal email history.
package identity

import "time"

// Gender is an optional enumerated attribute on a person.
type Gender string

const (
	GenderFemale      Gender = "female"
	GenderMale        Gender = "male"
	GenderNonbinary   Gender = "nonbinary"
	GenderUnspecified Gender = "unspecified"
)

// ChangeReason enumerates why an email history row was written.
type ChangeReason string

const (
	ReasonInitial      ChangeReason = "initial"
	ReasonUserUpdated  ChangeReason = "user_updated"
	ReasonAdminUpdated ChangeReason = "admin_updated"
	ReasonVerification ChangeReason = "verification"
)

// Person is the base identity record, independent of any role. A person is
// soft-deactivated via IsActive, never hard-deleted while referenced.
type Person struct {
	ID         int64      `json:"id"`
	GivenName  string     `json:"given_name"`
	FamilyName string     `json:"family_name"`
	BirthDate  *time.Time `json:"birth_date,omitempty"`
	Gender     *Gender    `json:"gender,omitempty"`
	Phone      *string    `json:"phone,omitempty"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Customer is the storefront capability record: credentials plus a loyalty
// counter.
type Customer struct {
	PersonID      int64  `json:"person_id"`
	Username      string `json:"username"`
	PasswordHash  string `json:"-"`
	LoyaltyPoints int64  `json:"loyalty_points"`
}

// Employee carries job metadata.
type Employee struct {
	PersonID   int64     `json:"person_id"`
	JobTitle   string    `json:"job_title"`
	Department *string   `json:"department,omitempty"`
	HiredAt    time.Time `json:"hired_at"`
}

// Artist carries the public performing identity. StageName is globally
// unique at the schema level.
type Artist struct {
	PersonID  int64   `json:"person_id"`
	StageName string  `json:"stage_name"`
	Bio       *string `json:"bio,omitempty"`
	Website   *string `json:"website,omitempty"`
	DebutYear *int    `json:"debut_year,omitempty"`
}

// EmailRecord is one row of the append-only email log. The row with a nil
// EffectiveTo is the currently active address; email values are never
// mutated in place.
type EmailRecord struct {
	ID            int64        `json:"id"`
	PersonID      int64        `json:"person_id"`
	Email         string       `json:"email"`
	IsVerified    bool         `json:"is_verified"`
	EffectiveFrom time.Time    `json:"effective_from"`
	EffectiveTo   *time.Time   `json:"effective_to,omitempty"`
	ChangeReason  ChangeReason `json:"change_reason"`
}
