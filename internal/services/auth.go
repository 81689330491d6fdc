package services

import (
	"context"
	"errors"
	"time"

	"github.com/beacon-site/apiserver/internal/auth"
	"github.com/beacon-site/apiserver/internal/notify"
	"github.com/beacon-site/apiserver/internal/store"
	"github.com/beacon-site/apiserver/types"
	"github.com/google/uuid"
)

const (
	defaultSessionTTL = 30 * 24 * time.Hour
	verificationTTL   = 24 * time.Hour
	minPasswordLength = 8
)

// Credential and signup failures surfaced by AuthService. Login failures
// are deliberately generic so callers cannot tell a missing account from
// a wrong password.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// SessionRepository defines persistence operations for sessions.
type SessionRepository interface {
	Create(ctx context.Context, token, userID string, expires time.Time) (types.Session, error)
	GetWithUser(ctx context.Context, token string) (types.Session, types.User, error)
	UpdateExpiry(ctx context.Context, token string, expires time.Time) (types.Session, error)
	Delete(ctx context.Context, token string) error
}

// VerificationRepository defines persistence operations for one-time tokens.
type VerificationRepository interface {
	Create(ctx context.Context, identifier, token string, expires time.Time) (types.VerificationToken, error)
	Consume(ctx context.Context, identifier, token string) (types.VerificationToken, error)
}

// VerificationPublisher delivers verification events to the mailer.
type VerificationPublisher interface {
	PublishVerification(ctx context.Context, event notify.VerificationEvent) (string, error)
}

// AuthService orchestrates credential login, signup, sessions, and
// one-time verification flows.
type AuthService struct {
	users         UserRepository
	sessions      SessionRepository
	verifications VerificationRepository
	hasher        *auth.Hasher
	publisher     VerificationPublisher
	sessionTTL    time.Duration
}

// NewAuthService constructs an AuthService. publisher may be nil when no
// notification backend is configured.
func NewAuthService(
	users UserRepository,
	sessions SessionRepository,
	verifications VerificationRepository,
	hasher *auth.Hasher,
	publisher VerificationPublisher,
	sessionTTL time.Duration,
) *AuthService {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	return &AuthService{
		users:         users,
		sessions:      sessions,
		verifications: verifications,
		hasher:        hasher,
		publisher:     publisher,
		sessionTTL:    sessionTTL,
	}
}

// Login verifies credentials against the stored hash and issues a
// session in the same step. Every failure mode that is about the
// credentials themselves returns ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, login, password string) (types.User, types.Session, error) {
	user, err := s.users.GetByEmail(ctx, login)
	if errors.Is(err, store.ErrNotFound) {
		user, err = s.users.GetByUsername(ctx, login)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a hash comparison so a miss costs the same as a mismatch.
			s.hasher.DummyVerify(password)
			return types.User{}, types.Session{}, ErrInvalidCredentials
		}
		return types.User{}, types.Session{}, err
	}

	if user.PasswordHash == nil {
		// External-provider-only account: fail closed, never null-match.
		s.hasher.DummyVerify(password)
		return types.User{}, types.Session{}, ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, *user.PasswordHash) {
		return types.User{}, types.Session{}, ErrInvalidCredentials
	}

	session, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return types.User{}, types.Session{}, err
	}
	return user, session, nil
}

// Signup registers a new credential-based account and logs it in.
// Duplicate email/username is reported specifically; this is a signup
// context, so revealing the conflict is safe.
func (s *AuthService) Signup(ctx context.Context, email, username, name, password string) (types.User, types.Session, error) {
	if len(password) < minPasswordLength {
		return types.User{}, types.Session{}, ErrWeakPassword
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return types.User{}, types.Session{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, types.Session{}, err
	}

	var usernamePtr *string
	if username != "" {
		if _, err := s.users.GetByUsername(ctx, username); err == nil {
			return types.User{}, types.Session{}, ErrUsernameTaken
		} else if !errors.Is(err, store.ErrNotFound) {
			return types.User{}, types.Session{}, err
		}
		usernamePtr = &username
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return types.User{}, types.Session{}, err
	}

	user, err := s.users.Create(ctx, types.User{
		Name:         name,
		Email:        email,
		Username:     usernamePtr,
		PasswordHash: &hash,
		Role:         types.RoleUser,
	})
	if err != nil {
		// A concurrent signup can win the race between the lookup and the
		// insert; the unique constraint surfaces it as a conflict. Re-check
		// the email to report the field that actually collided.
		if errors.Is(err, store.ErrConflict) {
			if _, lookupErr := s.users.GetByEmail(ctx, email); lookupErr == nil {
				return types.User{}, types.Session{}, ErrEmailTaken
			}
			if usernamePtr != nil {
				return types.User{}, types.Session{}, ErrUsernameTaken
			}
			return types.User{}, types.Session{}, ErrEmailTaken
		}
		return types.User{}, types.Session{}, err
	}

	session, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return types.User{}, types.Session{}, err
	}
	return user, session, nil
}

// Logout revokes the session. Revoking an unknown token is a no-op.
func (s *AuthService) Logout(ctx context.Context, sessionToken string) error {
	return s.sessions.Delete(ctx, sessionToken)
}

// UserFromSession resolves a non-expired session token to its user.
func (s *AuthService) UserFromSession(ctx context.Context, sessionToken string) (types.User, error) {
	_, user, err := s.sessions.GetWithUser(ctx, sessionToken)
	return user, err
}

// StartVerification creates a one-time token for the given email and
// hands it to the mailer. The token is returned for flows that deliver
// it out of band.
func (s *AuthService) StartVerification(ctx context.Context, email, purpose string) (types.VerificationToken, error) {
	token := uuid.NewString()
	vt, err := s.verifications.Create(ctx, email, token, time.Now().Add(verificationTTL))
	if err != nil {
		return types.VerificationToken{}, err
	}

	if s.publisher != nil {
		_, err = s.publisher.PublishVerification(ctx, notify.VerificationEvent{
			Email:   email,
			Token:   token,
			Purpose: purpose,
		})
		if err != nil {
			return types.VerificationToken{}, err
		}
	}
	return vt, nil
}

// ConfirmVerification consumes a one-time token. The consume is an
// atomic delete-and-return, so replaying the same pair fails.
func (s *AuthService) ConfirmVerification(ctx context.Context, identifier, token string) error {
	_, err := s.verifications.Consume(ctx, identifier, token)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidToken
	}
	return err
}

// ResetPassword consumes a password-reset token and replaces the stored
// hash for the account it addresses.
func (s *AuthService) ResetPassword(ctx context.Context, identifier, token, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return ErrWeakPassword
	}
	if _, err := s.verifications.Consume(ctx, identifier, token); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}

	user, err := s.users.GetByEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	_, err = s.users.Update(ctx, user.ID, types.UserPatch{PasswordHash: &hash})
	return err
}

func (s *AuthService) issueSession(ctx context.Context, userID string) (types.Session, error) {
	token := uuid.NewString()
	return s.sessions.Create(ctx, token, userID, time.Now().Add(s.sessionTTL))
}
