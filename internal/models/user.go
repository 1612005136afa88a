package models

import "time"

// UnlimitedCredits is the balance written for admin accounts. Admins are never
// debited, so the value is informational.
const UnlimitedCredits = -1.0

// DefaultCredits is granted to accounts created without an explicit balance.
const DefaultCredits = 60.0

// User represents an account in the database.
type User struct {
	ID             int64     `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	Username       string    `db:"username" json:"username"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	IsAdmin        bool      `db:"is_admin" json:"is_admin"`
	Credits        float64   `db:"credits" json:"credits"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	CreatedBy      *int64    `db:"created_by" json:"created_by,omitempty"`
}

// CreditExempt reports whether the account bypasses credit admission and debit.
func (u *User) CreditExempt() bool {
	return u.IsAdmin
}

// HasCredits reports whether a non-exempt account may start a new conversion.
func (u *User) HasCredits() bool {
	return u.CreditExempt() || u.Credits > 0
}

// UserPatch lists the fields an admin may change on an account. Only fields
// with Set == true are applied.
type UserPatch struct {
	Email    Field[string]  `json:"email"`
	Username Field[string]  `json:"username"`
	Password Field[string]  `json:"password"`
	IsActive Field[bool]    `json:"is_active"`
	IsAdmin  Field[bool]    `json:"is_admin"`
	Credits  Field[float64] `json:"credits"`
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return !p.Email.Set && !p.Username.Set && !p.Password.Set &&
		!p.IsActive.Set && !p.IsAdmin.Set && !p.Credits.Set
}

// Apply returns a copy of u with the patch's present fields written over it.
// Password is not applied here since it needs hashing.
func (p UserPatch) Apply(u User) User {
	u.Email = p.Email.Or(u.Email)
	u.Username = p.Username.Or(u.Username)
	u.IsActive = p.IsActive.Or(u.IsActive)
	u.IsAdmin = p.IsAdmin.Or(u.IsAdmin)
	u.Credits = p.Credits.Or(u.Credits)
	return u
}
