package services

import (
	"context"
	"io"

	"github.com/beacon-site/apiserver/internal/storage"
	"github.com/beacon-site/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user types.User) (types.User, error)
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Update(ctx context.Context, id string, patch types.UserPatch) (types.User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, offset, limit int) ([]types.User, int, error)
}

// AccountRepository defines persistence operations for linked provider accounts.
type AccountRepository interface {
	Link(ctx context.Context, account types.Account) error
	Unlink(ctx context.Context, provider, providerAccountID string) error
	GetUserByAccount(ctx context.Context, provider, providerAccountID string) (types.User, error)
}

// UserService encapsulates user profile use-cases.
type UserService struct {
	repo     UserRepository
	accounts AccountRepository
	avatars  *storage.Avatars
}

// NewUserService constructs a UserService. avatars may be nil when no
// storage backend is configured.
func NewUserService(repo UserRepository, accounts AccountRepository, avatars *storage.Avatars) *UserService {
	return &UserService{repo: repo, accounts: accounts, avatars: avatars}
}

func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) Update(ctx context.Context, id string, patch types.UserPatch) (types.User, error) {
	return s.repo.Update(ctx, id, patch)
}

func (s *UserService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *UserService) List(ctx context.Context, offset, limit int) ([]types.User, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, offset, limit)
}

// LinkAccount associates a provider account with a user.
func (s *UserService) LinkAccount(ctx context.Context, account types.Account) error {
	return s.accounts.Link(ctx, account)
}

// UnlinkAccount removes a provider account association.
func (s *UserService) UnlinkAccount(ctx context.Context, provider, providerAccountID string) error {
	return s.accounts.Unlink(ctx, provider, providerAccountID)
}

// GetUserByAccount resolves the user owning a linked provider account.
func (s *UserService) GetUserByAccount(ctx context.Context, provider, providerAccountID string) (types.User, error) {
	return s.accounts.GetUserByAccount(ctx, provider, providerAccountID)
}

// SaveAvatar uploads the user's avatar and records its storage key.
func (s *UserService) SaveAvatar(ctx context.Context, userID string, r io.Reader, size int64, contentType string) (types.User, error) {
	if s.avatars == nil {
		return types.User{}, ErrStorageUnavailable
	}
	key, err := s.avatars.Save(ctx, userID, r, size, contentType)
	if err != nil {
		return types.User{}, err
	}
	return s.repo.Update(ctx, userID, types.UserPatch{AvatarKey: &key})
}

// OpenAvatar reads a stored avatar by key.
func (s *UserService) OpenAvatar(ctx context.Context, key string) (io.ReadCloser, error) {
	if s.avatars == nil {
		return nil, ErrStorageUnavailable
	}
	return s.avatars.Open(ctx, key)
}
