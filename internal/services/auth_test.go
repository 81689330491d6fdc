package services

import (
	"context"
	"testing"
	"time"

	"github.com/beacon-site/apiserver/internal/auth"
	"github.com/beacon-site/apiserver/internal/notify"
	"github.com/beacon-site/apiserver/internal/store"
	"github.com/beacon-site/apiserver/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct {
	byID map[string]types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[string]types.User{}}
}

func (r *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	for _, existing := range r.byID {
		if existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
		if user.Username != nil && existing.Username != nil && *existing.Username == *user.Username {
			return types.User{}, store.ErrConflict
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.byID[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (types.User, error) {
	user, ok := r.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, user := range r.byID {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (types.User, error) {
	for _, user := range r.byID {
		if user.Username != nil && *user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Update(_ context.Context, id string, patch types.UserPatch) (types.User, error) {
	user, ok := r.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if patch.Name != nil {
		user.Name = *patch.Name
	}
	if patch.Email != nil {
		user.Email = *patch.Email
	}
	if patch.Username != nil {
		user.Username = patch.Username
	}
	if patch.PasswordHash != nil {
		user.PasswordHash = patch.PasswordHash
	}
	if patch.Role != nil {
		user.Role = *patch.Role
	}
	if patch.AvatarKey != nil {
		user.AvatarKey = patch.AvatarKey
	}
	user.UpdatedAt = time.Now()
	r.byID[id] = user
	return user, nil
}

func (r *fakeUserRepo) Delete(_ context.Context, id string) error {
	delete(r.byID, id)
	return nil
}

func (r *fakeUserRepo) List(_ context.Context, offset, limit int) ([]types.User, int, error) {
	var users []types.User
	for _, user := range r.byID {
		users = append(users, user)
	}
	return users, len(users), nil
}

type fakeSessionRepo struct {
	byToken map[string]types.Session
	users   *fakeUserRepo
	calls   int
}

func newFakeSessionRepo(users *fakeUserRepo) *fakeSessionRepo {
	return &fakeSessionRepo{byToken: map[string]types.Session{}, users: users}
}

func (r *fakeSessionRepo) Create(_ context.Context, token, userID string, expires time.Time) (types.Session, error) {
	r.calls++
	session := types.Session{Token: token, UserID: userID, Expires: expires}
	r.byToken[token] = session
	return session, nil
}

func (r *fakeSessionRepo) GetWithUser(ctx context.Context, token string) (types.Session, types.User, error) {
	session, ok := r.byToken[token]
	if !ok || !session.Expires.After(time.Now()) {
		return types.Session{}, types.User{}, store.ErrNotFound
	}
	user, err := r.users.GetByID(ctx, session.UserID)
	if err != nil {
		return types.Session{}, types.User{}, err
	}
	return session, user, nil
}

func (r *fakeSessionRepo) UpdateExpiry(_ context.Context, token string, expires time.Time) (types.Session, error) {
	session, ok := r.byToken[token]
	if !ok {
		return types.Session{}, store.ErrNotFound
	}
	session.Expires = expires
	r.byToken[token] = session
	return session, nil
}

func (r *fakeSessionRepo) Delete(_ context.Context, token string) error {
	delete(r.byToken, token)
	return nil
}

type fakeVerificationRepo struct {
	byPair map[string]types.VerificationToken
}

func newFakeVerificationRepo() *fakeVerificationRepo {
	return &fakeVerificationRepo{byPair: map[string]types.VerificationToken{}}
}

func (r *fakeVerificationRepo) Create(_ context.Context, identifier, token string, expires time.Time) (types.VerificationToken, error) {
	vt := types.VerificationToken{Identifier: identifier, Token: token, Expires: expires}
	r.byPair[identifier+"\x00"+token] = vt
	return vt, nil
}

func (r *fakeVerificationRepo) Consume(_ context.Context, identifier, token string) (types.VerificationToken, error) {
	key := identifier + "\x00" + token
	vt, ok := r.byPair[key]
	if !ok || !vt.Expires.After(time.Now()) {
		return types.VerificationToken{}, store.ErrNotFound
	}
	delete(r.byPair, key)
	return vt, nil
}

type fakePublisher struct {
	events []notify.VerificationEvent
}

func (p *fakePublisher) PublishVerification(_ context.Context, event notify.VerificationEvent) (string, error) {
	p.events = append(p.events, event)
	return "msg-1", nil
}

func newTestAuthService(t *testing.T) (*AuthService, *fakeUserRepo, *fakeSessionRepo, *fakePublisher) {
	t.Helper()
	users := newFakeUserRepo()
	sessions := newFakeSessionRepo(users)
	publisher := &fakePublisher{}
	service := NewAuthService(
		users, sessions, newFakeVerificationRepo(), auth.NewHasher(4), publisher, time.Hour,
	)
	return service, users, sessions, publisher
}

func TestAuthService_SignupAndLogin(t *testing.T) {
	t.Parallel()

	service, _, sessions, _ := newTestAuthService(t)
	ctx := context.Background()

	user, session, err := service.Signup(ctx, "a@x.com", "alice", "Alice", "longenough1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", user.Email)
	assert.Equal(t, types.RoleUser, user.Role)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, 1, sessions.calls, "signup issues the session in the same step")

	loggedIn, loginSession, err := service.Login(ctx, "a@x.com", "longenough1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
	assert.NotEqual(t, session.Token, loginSession.Token)

	// Username works as the login identifier too.
	_, _, err = service.Login(ctx, "alice", "longenough1")
	require.NoError(t, err)
}

func TestAuthService_SignupConflicts(t *testing.T) {
	t.Parallel()

	service, _, _, _ := newTestAuthService(t)
	ctx := context.Background()

	_, _, err := service.Signup(ctx, "a@x.com", "alice", "Alice", "longenough1")
	require.NoError(t, err)

	_, _, err = service.Signup(ctx, "a@x.com", "other", "Other", "longenough1")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, _, err = service.Signup(ctx, "b@x.com", "alice", "Other", "longenough1")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, _, err = service.Signup(ctx, "c@x.com", "carol", "Carol", "short")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

// racingUserRepo simulates a concurrent signup that wins between the
// pre-insert lookup and the insert: the configured lookups miss, the
// insert then hits the unique constraint.
type racingUserRepo struct {
	*fakeUserRepo
	hideEmail    string
	hideUsername string
}

func (r *racingUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	if email == r.hideEmail {
		return types.User{}, store.ErrNotFound
	}
	return r.fakeUserRepo.GetByEmail(ctx, email)
}

func (r *racingUserRepo) GetByUsername(ctx context.Context, username string) (types.User, error) {
	if username == r.hideUsername {
		return types.User{}, store.ErrNotFound
	}
	return r.fakeUserRepo.GetByUsername(ctx, username)
}

func TestAuthService_SignupInsertRaceReportsCollidingField(t *testing.T) {
	t.Parallel()

	t.Run("username collision", func(t *testing.T) {
		users := newFakeUserRepo()
		racing := &racingUserRepo{fakeUserRepo: users, hideUsername: "alice"}
		service := NewAuthService(
			racing, newFakeSessionRepo(users), newFakeVerificationRepo(), auth.NewHasher(4), nil, time.Hour,
		)
		ctx := context.Background()

		username := "alice"
		_, err := users.Create(ctx, types.User{Name: "Alice", Email: "a@x.com", Username: &username})
		require.NoError(t, err)

		_, _, err = service.Signup(ctx, "b@x.com", "alice", "Bob", "longenough1")
		assert.ErrorIs(t, err, ErrUsernameTaken)
	})

	t.Run("email collision", func(t *testing.T) {
		users := newFakeUserRepo()
		racing := &racingUserRepo{fakeUserRepo: users, hideEmail: "a@x.com"}
		service := NewAuthService(
			racing, newFakeSessionRepo(users), newFakeVerificationRepo(), auth.NewHasher(4), nil, time.Hour,
		)
		ctx := context.Background()

		_, err := users.Create(ctx, types.User{Name: "Alice", Email: "a@x.com"})
		require.NoError(t, err)

		_, _, err = service.Signup(ctx, "a@x.com", "", "Bob", "longenough1")
		assert.ErrorIs(t, err, ErrEmailTaken)
	})
}

func TestAuthService_LoginFailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()

	service, _, _, _ := newTestAuthService(t)
	ctx := context.Background()

	_, _, err := service.Signup(ctx, "a@x.com", "alice", "Alice", "longenough1")
	require.NoError(t, err)

	_, _, wrongPassword := service.Login(ctx, "a@x.com", "wrongpassword")
	_, _, unknownEmail := service.Login(ctx, "nobody@x.com", "whatever123")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword, unknownEmail, "failure shape must not reveal which part was wrong")
}

func TestAuthService_PasswordlessAccountFailsClosed(t *testing.T) {
	t.Parallel()

	service, users, _, _ := newTestAuthService(t)
	ctx := context.Background()

	// An account provisioned through an external provider has no hash.
	_, err := users.Create(ctx, types.User{
		Name:  "External Eve",
		Email: "eve@x.com",
		Role:  types.RoleUser,
	})
	require.NoError(t, err)

	_, _, err = service.Login(ctx, "eve@x.com", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = service.Login(ctx, "eve@x.com", "anything")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_LogoutRevokesSession(t *testing.T) {
	t.Parallel()

	service, _, _, _ := newTestAuthService(t)
	ctx := context.Background()

	_, session, err := service.Signup(ctx, "a@x.com", "", "Alice", "longenough1")
	require.NoError(t, err)

	user, err := service.UserFromSession(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", user.Email)

	require.NoError(t, service.Logout(ctx, session.Token))

	_, err = service.UserFromSession(ctx, session.Token)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Revoking an unknown token is a no-op.
	assert.NoError(t, service.Logout(ctx, "gone"))
}

func TestAuthService_VerificationFlow(t *testing.T) {
	t.Parallel()

	service, _, _, publisher := newTestAuthService(t)
	ctx := context.Background()

	vt, err := service.StartVerification(ctx, "a@x.com", notify.PurposeEmailVerify)
	require.NoError(t, err)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, "a@x.com", publisher.events[0].Email)
	assert.Equal(t, vt.Token, publisher.events[0].Token)

	require.NoError(t, service.ConfirmVerification(ctx, "a@x.com", vt.Token))

	// The consume is atomic delete-and-return; replay finds nothing.
	err = service.ConfirmVerification(ctx, "a@x.com", vt.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_ResetPassword(t *testing.T) {
	t.Parallel()

	service, _, _, _ := newTestAuthService(t)
	ctx := context.Background()

	_, _, err := service.Signup(ctx, "a@x.com", "", "Alice", "oldpassword1")
	require.NoError(t, err)

	vt, err := service.StartVerification(ctx, "a@x.com", notify.PurposePasswordReset)
	require.NoError(t, err)

	require.NoError(t, service.ResetPassword(ctx, "a@x.com", vt.Token, "newpassword1"))

	_, _, err = service.Login(ctx, "a@x.com", "oldpassword1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = service.Login(ctx, "a@x.com", "newpassword1")
	assert.NoError(t, err)

	// The reset token is gone after use.
	err = service.ResetPassword(ctx, "a@x.com", vt.Token, "another-pass1")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
