package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/beacon-site/apiserver/internal/storage"
	"github.com/beacon-site/apiserver/internal/store"
	"github.com/beacon-site/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccountRepo struct {
	users *fakeUserRepo
	byKey map[string]types.Account
}

func newFakeAccountRepo(users *fakeUserRepo) *fakeAccountRepo {
	return &fakeAccountRepo{users: users, byKey: map[string]types.Account{}}
}

func accountKey(provider, providerAccountID string) string {
	return provider + "\x00" + providerAccountID
}

func (r *fakeAccountRepo) Link(_ context.Context, account types.Account) error {
	key := accountKey(account.Provider, account.ProviderAccountID)
	if _, ok := r.byKey[key]; ok {
		return store.ErrConflict
	}
	r.byKey[key] = account
	return nil
}

func (r *fakeAccountRepo) Unlink(_ context.Context, provider, providerAccountID string) error {
	delete(r.byKey, accountKey(provider, providerAccountID))
	return nil
}

func (r *fakeAccountRepo) GetUserByAccount(ctx context.Context, provider, providerAccountID string) (types.User, error) {
	account, ok := r.byKey[accountKey(provider, providerAccountID)]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return r.users.GetByID(ctx, account.UserID)
}

type fakeObjectStorage struct {
	objects map[string][]byte
}

func newFakeObjectStorage() *fakeObjectStorage {
	return &fakeObjectStorage{objects: map[string][]byte{}}
}

func (s *fakeObjectStorage) EnsureBucket(_ context.Context) error { return nil }

func (s *fakeObjectStorage) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = data
	return nil
}

func (s *fakeObjectStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeObjectStorage) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

func (s *fakeObjectStorage) Bucket() string { return "test-bucket" }

func newTestUserService(t *testing.T, avatars *storage.Avatars) (*UserService, *fakeUserRepo, *fakeAccountRepo) {
	t.Helper()
	users := newFakeUserRepo()
	accounts := newFakeAccountRepo(users)
	return NewUserService(users, accounts, avatars), users, accounts
}

func seedUser(t *testing.T, users *fakeUserRepo, email string) types.User {
	t.Helper()
	user, err := users.Create(context.Background(), types.User{Name: "Test", Email: email, Role: types.RoleUser})
	require.NoError(t, err)
	return user
}

func TestUserService_LinkAccountLifecycle(t *testing.T) {
	t.Parallel()

	service, users, _ := newTestUserService(t, nil)
	ctx := context.Background()
	user := seedUser(t, users, "a@x.com")

	account := types.Account{Provider: "google", ProviderAccountID: "g-123", UserID: user.ID}
	require.NoError(t, service.LinkAccount(ctx, account))

	resolved, err := service.GetUserByAccount(ctx, "google", "g-123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)

	// The (provider, provider account id) pair is unique.
	other := seedUser(t, users, "b@x.com")
	err = service.LinkAccount(ctx, types.Account{Provider: "google", ProviderAccountID: "g-123", UserID: other.ID})
	assert.ErrorIs(t, err, store.ErrConflict)

	// The same provider-side account under a different provider is distinct.
	require.NoError(t, service.LinkAccount(ctx, types.Account{Provider: "github", ProviderAccountID: "g-123", UserID: user.ID}))

	require.NoError(t, service.UnlinkAccount(ctx, "google", "g-123"))
	_, err = service.GetUserByAccount(ctx, "google", "g-123")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Unlinking an absent association is a no-op.
	assert.NoError(t, service.UnlinkAccount(ctx, "google", "g-123"))
}

func TestUserService_GetUserByAccountMiss(t *testing.T) {
	t.Parallel()

	service, _, _ := newTestUserService(t, nil)

	_, err := service.GetUserByAccount(context.Background(), "google", "never-linked")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUserService_AvatarRoundTrip(t *testing.T) {
	t.Parallel()

	backend := newFakeObjectStorage()
	service, users, _ := newTestUserService(t, storage.NewAvatars(backend))
	ctx := context.Background()
	user := seedUser(t, users, "a@x.com")

	image := []byte("png-bytes")
	updated, err := service.SaveAvatar(ctx, user.ID, bytes.NewReader(image), int64(len(image)), "image/png")
	require.NoError(t, err)
	require.NotNil(t, updated.AvatarKey)
	assert.Equal(t, "avatars/"+user.ID, *updated.AvatarKey)

	object, err := service.OpenAvatar(ctx, *updated.AvatarKey)
	require.NoError(t, err)
	defer object.Close()

	data, err := io.ReadAll(object)
	require.NoError(t, err)
	assert.Equal(t, image, data)
}

func TestUserService_AvatarWithoutStorageBackend(t *testing.T) {
	t.Parallel()

	service, users, _ := newTestUserService(t, nil)
	ctx := context.Background()
	user := seedUser(t, users, "a@x.com")

	_, err := service.SaveAvatar(ctx, user.ID, bytes.NewReader(nil), 0, "image/png")
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = service.OpenAvatar(ctx, "avatars/"+user.ID)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestUserService_DeleteRemovesUser(t *testing.T) {
	t.Parallel()

	service, users, _ := newTestUserService(t, nil)
	ctx := context.Background()
	user := seedUser(t, users, "a@x.com")

	require.NoError(t, service.Delete(ctx, user.ID))

	_, err := service.GetByID(ctx, user.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
