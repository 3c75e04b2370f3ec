package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a user account. A record always carries at least one of
// PasswordHash or GoogleID; anonymous users are never persisted.
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash *string   `json:"-" db:"password_hash"`
	GoogleID     *string   `json:"-" db:"google_id"`
	Secret       *string   `json:"secret,omitempty" db:"secret"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// HasSecret reports whether the user has posted a non-empty secret.
func (u *User) HasSecret() bool {
	return u.Secret != nil && *u.Secret != ""
}

// SecretText returns the posted secret, or the empty string when none is set.
func (u *User) SecretText() string {
	if u.Secret == nil {
		return ""
	}
	return *u.Secret
}

// Session represents an authenticated user session held server-side.
// Expiry is enforced by the session store's TTL.
type Session struct {
	ID        string    `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
