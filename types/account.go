package types

import "time"

// Account links a user to a third-party identity provider account.
// The (Provider, ProviderAccountID) pair is unique and an account
// cannot outlive its owning user.
type Account struct {
	// Provider is the identity provider name, e.g. "google" or "github".
	Provider string `json:"provider" db:"provider"`

	// ProviderAccountID is the user's identifier on the provider side.
	ProviderAccountID string `json:"provider_account_id" db:"provider_account_id"`

	// UserID is the owning user's identifier.
	UserID string `json:"user_id" db:"user_id"`

	// AccessToken and RefreshToken are provider-issued credentials.
	// Never exposed in API responses.
	AccessToken  *string `json:"-" db:"access_token"`
	RefreshToken *string `json:"-" db:"refresh_token"`

	// ExpiresAt is when the provider access token expires, if known.
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
