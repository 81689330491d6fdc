package types

import "time"

// Role values assignable to a user.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an account in the system.
// It contains identity, role, and audit metadata.
type User struct {
	// ID is the opaque, immutable identifier of the user.
	ID string `json:"id" db:"id"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Email is the user's email address. Unique across all users.
	Email string `json:"email" db:"email"`

	// Username is an optional unique login name. Nil when the user
	// signed up through an external identity provider only.
	Username *string `json:"username,omitempty" db:"username"`

	// PasswordHash stores the hashed representation of the user's password.
	// Nil for accounts that only authenticate via an external provider.
	// This field is never exposed in API responses.
	PasswordHash *string `json:"-" db:"password_hash"`

	// Role indicates the user's authorization level within the
	// system (e.g., "admin", "user").
	Role string `json:"role" db:"role"`

	// AvatarKey is the object-storage key of the user's avatar, if any.
	AvatarKey *string `json:"avatar_key,omitempty" db:"avatar_key"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UserPatch describes a partial update to a user. Nil fields keep
// their stored value.
type UserPatch struct {
	Name         *string
	Email        *string
	Username     *string
	PasswordHash *string
	Role         *string
	AvatarKey    *string
}
