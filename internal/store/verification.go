package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/beacon-site/apiserver/types"
)

// VerificationTokenRepository handles persistence for one-time tokens.
type VerificationTokenRepository struct {
	db *sql.DB
}

func NewVerificationTokenRepository(db *sql.DB) *VerificationTokenRepository {
	return &VerificationTokenRepository{db: db}
}

func (r *VerificationTokenRepository) Create(ctx context.Context, identifier, token string, expires time.Time) (types.VerificationToken, error) {
	const query = `
		INSERT INTO verification_tokens (identifier, token, expires)
		VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, identifier, token, expires); err != nil {
		return types.VerificationToken{}, mapError(err)
	}
	return types.VerificationToken{Identifier: identifier, Token: token, Expires: expires}, nil
}

// Consume atomically deletes and returns the token. A second consume of
// the same (identifier, token) pair finds nothing. Expired tokens are
// treated as absent.
func (r *VerificationTokenRepository) Consume(ctx context.Context, identifier, token string) (types.VerificationToken, error) {
	const query = `
		DELETE FROM verification_tokens
		WHERE identifier = $1 AND token = $2 AND expires > now()
		RETURNING identifier, token, expires`
	var vt types.VerificationToken
	err := r.db.QueryRowContext(ctx, query, identifier, token).Scan(
		&vt.Identifier,
		&vt.Token,
		&vt.Expires,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.VerificationToken{}, ErrNotFound
		}
		return types.VerificationToken{}, err
	}
	return vt, nil
}
