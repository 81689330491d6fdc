package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/beacon-site/apiserver/types"
)

// AccountRepository handles persistence for linked provider accounts.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Link(ctx context.Context, account types.Account) error {
	account.CreatedAt = time.Now()

	const query = `
		INSERT INTO accounts (provider, provider_account_id, user_id, access_token, refresh_token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		account.Provider,
		account.ProviderAccountID,
		account.UserID,
		account.AccessToken,
		account.RefreshToken,
		account.ExpiresAt,
		account.CreatedAt,
	)
	return mapError(err)
}

// Unlink removes a linked account. Removing an absent link is not an error.
func (r *AccountRepository) Unlink(ctx context.Context, provider, providerAccountID string) error {
	const query = `
		DELETE FROM accounts
		WHERE provider = $1 AND provider_account_id = $2`
	_, err := r.db.ExecContext(ctx, query, provider, providerAccountID)
	return err
}

// GetUserByAccount resolves the owning user of a linked provider account.
func (r *AccountRepository) GetUserByAccount(ctx context.Context, provider, providerAccountID string) (types.User, error) {
	const query = `
		SELECT u.id, u.name, u.email, u.username, u.password_hash, u.role, u.avatar_key, u.created_at, u.updated_at
		FROM accounts a
		JOIN users u ON u.id = a.user_id
		WHERE a.provider = $1 AND a.provider_account_id = $2`
	return scanUser(r.db.QueryRowContext(ctx, query, provider, providerAccountID))
}
