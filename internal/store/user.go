package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/beacon-site/apiserver/types"
	"github.com/google/uuid"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, name, email, username, password_hash, role, avatar_key, created_at, updated_at`

func scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
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
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = types.RoleUser
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (id, name, email, username, password_hash, role, avatar_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Name,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.Role,
		user.AvatarKey,
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		return types.User{}, mapError(err)
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE username = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

// Update applies a partial update: nil patch fields keep the stored value.
func (r *UserRepository) Update(ctx context.Context, id string, patch types.UserPatch) (types.User, error) {
	const query = `
		UPDATE users
		SET name = COALESCE($1, name),
			email = COALESCE($2, email),
			username = COALESCE($3, username),
			password_hash = COALESCE($4, password_hash),
			role = COALESCE($5, role),
			avatar_key = COALESCE($6, avatar_key),
			updated_at = $7
		WHERE id = $8
		RETURNING ` + userColumns
	row := r.db.QueryRowContext(
		ctx,
		query,
		patch.Name,
		patch.Email,
		patch.Username,
		patch.PasswordHash,
		patch.Role,
		patch.AvatarKey,
		time.Now(),
		id,
	)
	user, err := scanUser(row)
	if err != nil {
		return types.User{}, mapError(err)
	}
	return user, nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]types.User, int, error) {
	const countQuery = `SELECT count(*) FROM users`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	const query = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at DESC
		OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		var user types.User
		if err := rows.Scan(
			&user.ID,
			&user.Name,
			&user.Email,
			&user.Username,
			&user.PasswordHash,
			&user.Role,
			&user.AvatarKey,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}
