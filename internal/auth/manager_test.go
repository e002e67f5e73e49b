package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pageza/pantrycam/internal/mocks"
	"github.com/pageza/pantrycam/internal/session"
	"github.com/pageza/pantrycam/internal/types"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func newTestManager(t *testing.T) (*Manager, *session.MemoryStore, *mocks.MockAuthAPI) {
	t.Helper()
	store := session.NewMemoryStore()
	api := new(mocks.MockAuthAPI)
	m := NewManager(store, zerolog.Nop())
	m.SetAPI(api)
	return m, store, api
}

func TestLoginPersistsSession(t *testing.T) {
	ctx := context.Background()
	m, store, api := newTestManager(t)

	token := signedToken(t, time.Now().Add(time.Hour))
	req := types.LoginRequest{Email: "cook@example.com", Password: "secret"}
	api.On("Login", mock.Anything, req).Return(&types.AuthResponse{
		Token: token,
		User:  types.User{ID: "user-1", Email: "cook@example.com", Name: "Cook"},
	}, nil)

	var seen []*types.User
	m.Subscribe(func(u *types.User) { seen = append(seen, u) })

	user, err := m.Login(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "Cook", user.Name)
	assert.True(t, m.IsAuthenticated())
	assert.Equal(t, token, m.Token())

	stored, ok, err := store.Get(ctx, session.KeyToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, token, stored)

	rawUser, ok, err := store.Get(ctx, session.KeyUser)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"id":"user-1","email":"cook@example.com","name":"Cook"}`, rawUser)

	require.Len(t, seen, 1)
	assert.Equal(t, "user-1", seen[0].ID)
	api.AssertExpectations(t)
}

func TestLoginFailureKeepsLoggedOut(t *testing.T) {
	m, store, api := newTestManager(t)
	req := types.LoginRequest{Email: "cook@example.com", Password: "wrong"}
	api.On("Login", mock.Anything, req).Return(nil, errors.New("invalid credentials"))

	_, err := m.Login(context.Background(), req)
	require.Error(t, err)
	assert.False(t, m.IsAuthenticated())

	_, ok, _ := store.Get(context.Background(), session.KeyToken)
	assert.False(t, ok)
}

func TestRegister(t *testing.T) {
	m, _, api := newTestManager(t)
	req := types.RegisterRequest{Email: "new@example.com", Password: "secret1", Name: "New"}
	api.On("Register", mock.Anything, req).Return(&types.AuthResponse{
		Token: "opaque-token",
		User:  types.User{ID: "user-2", Email: "new@example.com", Name: "New"},
	}, nil)

	user, err := m.Register(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "user-2", user.ID)
	assert.True(t, m.IsAuthenticated())
}

func TestLoginWithoutAPI(t *testing.T) {
	m := NewManager(session.NewMemoryStore(), zerolog.Nop())
	_, err := m.Login(context.Background(), types.LoginRequest{})
	assert.Error(t, err)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("valid session", func(t *testing.T) {
		m, store, _ := newTestManager(t)
		token := signedToken(t, time.Now().Add(time.Hour))
		require.NoError(t, store.Set(ctx, session.KeyToken, token))
		require.NoError(t, store.Set(ctx, session.KeyUser, `{"id":"u","email":"a@b.c","name":"A"}`))

		require.NoError(t, m.Restore(ctx))
		user, ok := m.User()
		assert.True(t, ok)
		assert.Equal(t, "a@b.c", user.Email)
		assert.True(t, m.IsAuthenticated())
	})

	t.Run("corrupt user clears store", func(t *testing.T) {
		m, store, _ := newTestManager(t)
		require.NoError(t, store.Set(ctx, session.KeyToken, "opaque"))
		require.NoError(t, store.Set(ctx, session.KeyUser, "{not json"))

		require.NoError(t, m.Restore(ctx))
		assert.False(t, m.IsAuthenticated())

		_, ok, _ := store.Get(ctx, session.KeyToken)
		assert.False(t, ok)
		_, ok, _ = store.Get(ctx, session.KeyUser)
		assert.False(t, ok)
	})

	t.Run("token without user", func(t *testing.T) {
		m, store, _ := newTestManager(t)
		require.NoError(t, store.Set(ctx, session.KeyToken, "opaque"))

		require.NoError(t, m.Restore(ctx))
		assert.False(t, m.IsAuthenticated())
		_, ok, _ := store.Get(ctx, session.KeyToken)
		assert.False(t, ok)
	})

	t.Run("expired token", func(t *testing.T) {
		m, store, _ := newTestManager(t)
		require.NoError(t, store.Set(ctx, session.KeyToken, signedToken(t, time.Now().Add(-time.Minute))))
		require.NoError(t, store.Set(ctx, session.KeyUser, `{"id":"u","email":"a@b.c","name":"A"}`))

		require.NoError(t, m.Restore(ctx))
		assert.False(t, m.IsAuthenticated())
		assert.Empty(t, m.Token())
	})
}

func TestTokenExpiresWhileHeld(t *testing.T) {
	m, _, api := newTestManager(t)
	now := time.Now()
	m.now = func() time.Time { return now }

	api.On("Login", mock.Anything, mock.Anything).Return(&types.AuthResponse{
		Token: signedToken(t, now.Add(time.Minute)),
		User:  types.User{ID: "u"},
	}, nil)
	_, err := m.Login(context.Background(), types.LoginRequest{Email: "a@b.c", Password: "x"})
	require.NoError(t, err)
	assert.True(t, m.IsAuthenticated())

	m.now = func() time.Time { return now.Add(2 * time.Minute) }
	assert.False(t, m.IsAuthenticated())
}

func TestHandleUnauthorizedLogsOut(t *testing.T) {
	ctx := context.Background()
	m, store, api := newTestManager(t)
	api.On("Login", mock.Anything, mock.Anything).Return(&types.AuthResponse{
		Token: "opaque",
		User:  types.User{ID: "u"},
	}, nil)
	_, err := m.Login(ctx, types.LoginRequest{Email: "a@b.c", Password: "x"})
	require.NoError(t, err)

	var last *types.User
	calls := 0
	unsubscribe := m.Subscribe(func(u *types.User) {
		last = u
		calls++
	})

	m.HandleUnauthorized()
	assert.False(t, m.IsAuthenticated())
	assert.Nil(t, last)
	assert.Equal(t, 1, calls)

	_, ok, _ := store.Get(ctx, session.KeyToken)
	assert.False(t, ok)

	// already logged out: no further notification
	m.HandleUnauthorized()
	assert.Equal(t, 1, calls)

	unsubscribe()
	require.NoError(t, m.Logout(ctx))
	assert.Equal(t, 1, calls)
}
