package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/beacon-site/apiserver/types"
)

// SessionRepository handles persistence for sessions.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, token, userID string, expires time.Time) (types.Session, error) {
	const query = `
		INSERT INTO sessions (session_token, user_id, expires)
		VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, token, userID, expires); err != nil {
		return types.Session{}, mapError(err)
	}
	return types.Session{Token: token, UserID: userID, Expires: expires}, nil
}

// GetWithUser returns the session and its user. Expired sessions are
// filtered at query time; the stale row may still exist physically.
func (r *SessionRepository) GetWithUser(ctx context.Context, token string) (types.Session, types.User, error) {
	const query = `
		SELECT s.session_token, s.user_id, s.expires,
			u.id, u.name, u.email, u.username, u.password_hash, u.role, u.avatar_key, u.created_at, u.updated_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.session_token = $1 AND s.expires > now()`
	var (
		session types.Session
		user    types.User
	)
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&session.Token,
		&session.UserID,
		&session.Expires,
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.Role,
		&user.AvatarKey,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Session{}, types.User{}, ErrNotFound
		}
		return types.Session{}, types.User{}, err
	}
	return session, user, nil
}

func (r *SessionRepository) UpdateExpiry(ctx context.Context, token string, expires time.Time) (types.Session, error) {
	const query = `
		UPDATE sessions
		SET expires = $1
		WHERE session_token = $2
		RETURNING session_token, user_id, expires`
	var session types.Session
	err := r.db.QueryRowContext(ctx, query, expires, token).Scan(
		&session.Token,
		&session.UserID,
		&session.Expires,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Session{}, ErrNotFound
		}
		return types.Session{}, err
	}
	return session, nil
}

// Delete removes a session. Deleting an absent session is not an error.
func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	const query = `DELETE FROM sessions WHERE session_token = $1`
	_, err := r.db.ExecContext(ctx, query, token)
	return err
}
