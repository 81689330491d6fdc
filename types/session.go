package types

import "time"

// Session binds an opaque token to a user until its expiry instant.
// Expired rows are treated as non-existent at query time.
type Session struct {
	// Token is the opaque session token presented as a bearer credential.
	Token string `json:"session_token" db:"session_token"`

	// UserID is the authenticated user's identifier.
	UserID string `json:"user_id" db:"user_id"`

	// Expires is the absolute instant after which the session is invalid.
	Expires time.Time `json:"expires" db:"expires"`
}

// VerificationToken is a one-time token for flows such as email
// verification or password reset. Consuming it is an atomic
// delete-and-return, so a second consume of the same pair fails.
type VerificationToken struct {
	// Identifier addresses the subject of the flow, typically an email.
	Identifier string `json:"identifier" db:"identifier"`

	// Token is the random one-time secret.
	Token string `json:"token" db:"token"`

	// Expires is the absolute instant after which the token is unusable.
	Expires time.Time `json:"expires" db:"expires"`
}
