// Package auth keeps the authenticated session: it logs in and out through the
// API, persists the token and profile in a session.Store and restores them at
// start-up.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/pageza/pantrycam/internal/session"
	"github.com/pageza/pantrycam/internal/types"
)

// ErrNotLoggedIn is returned by operations that need a session.
var ErrNotLoggedIn = errors.New("not logged in")

// API is the subset of the gateway used for authentication.
type API interface {
	Login(ctx context.Context, req types.LoginRequest) (*types.AuthResponse, error)
	Register(ctx context.Context, req types.RegisterRequest) (*types.AuthResponse, error)
}

// Manager owns the current session. It is safe for concurrent use and
// implements gateway.TokenSource.
type Manager struct {
	mu      sync.RWMutex
	api     API
	store   session.Store
	token   string
	user    *types.User
	subs    map[int]func(*types.User)
	nextSub int
	log     zerolog.Logger
	now     func() time.Time
}

// NewManager creates a logged-out Manager backed by store.
func NewManager(store session.Store, log zerolog.Logger) *Manager {
	return &Manager{
		store: store,
		subs:  make(map[int]func(*types.User)),
		log:   log,
		now:   time.Now,
	}
}

// SetAPI binds the gateway used by Login and Register. The gateway itself
// takes the Manager as its token source, so the two are wired in two steps.
func (m *Manager) SetAPI(api API) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.api = api
}

// Restore loads a previously stored session. Missing, corrupt or expired data
// leaves the manager logged out and clears the store.
func (m *Manager) Restore(ctx context.Context) error {
	token, okToken, err := m.store.Get(ctx, session.KeyToken)
	if err != nil {
		return fmt.Errorf("failed to read stored session: %w", err)
	}
	rawUser, okUser, err := m.store.Get(ctx, session.KeyUser)
	if err != nil {
		return fmt.Errorf("failed to read stored session: %w", err)
	}

	if !okToken || !okUser || token == "" {
		return m.discard(ctx, "no stored session")
	}

	var user types.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return m.discard(ctx, "corrupt stored user")
	}
	if m.expired(token) {
		return m.discard(ctx, "stored token expired")
	}

	m.set(token, &user)
	m.log.Info().Str("user", user.Email).Msg("session restored")
	return nil
}

// Login authenticates and persists the session.
func (m *Manager) Login(ctx context.Context, req types.LoginRequest) (*types.User, error) {
	api, err := m.boundAPI()
	if err != nil {
		return nil, err
	}
	resp, err := api.Login(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.establish(ctx, resp)
}

// Register creates an account and persists the resulting session.
func (m *Manager) Register(ctx context.Context, req types.RegisterRequest) (*types.User, error) {
	api, err := m.boundAPI()
	if err != nil {
		return nil, err
	}
	resp, err := api.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.establish(ctx, resp)
}

// Logout forgets the session locally and in the store.
func (m *Manager) Logout(ctx context.Context) error {
	m.set("", nil)
	if err := m.store.Clear(ctx, session.KeyToken, session.KeyUser); err != nil {
		return err
	}
	m.log.Info().Msg("logged out")
	return nil
}

// HandleUnauthorized forces a logout after the server rejected the token.
func (m *Manager) HandleUnauthorized() {
	if !m.IsAuthenticated() {
		return
	}
	m.log.Warn().Msg("token rejected by server, logging out")
	if err := m.Logout(context.Background()); err != nil {
		m.log.Error().Err(err).Msg("failed to clear session")
	}
}

// Token returns the bearer token, or "" when logged out.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// User returns the logged-in profile.
func (m *Manager) User() (types.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return types.User{}, false
	}
	return *m.user, true
}

// IsAuthenticated reports whether a non-expired session is held.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	token, user := m.token, m.user
	m.mu.RUnlock()
	return user != nil && token != "" && !m.expired(token)
}

// Subscribe registers fn to be called with the new user (nil on logout)
// whenever the session changes. The returned func unsubscribes.
func (m *Manager) Subscribe(fn func(*types.User)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) establish(ctx context.Context, resp *types.AuthResponse) (*types.User, error) {
	data, err := json.Marshal(resp.User)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user: %w", err)
	}
	if err := m.store.Set(ctx, session.KeyToken, resp.Token); err != nil {
		return nil, err
	}
	if err := m.store.Set(ctx, session.KeyUser, string(data)); err != nil {
		return nil, err
	}

	user := resp.User
	m.set(resp.Token, &user)
	m.log.Info().Str("user", user.Email).Msg("logged in")
	return &user, nil
}

func (m *Manager) discard(ctx context.Context, reason string) error {
	m.log.Debug().Str("reason", reason).Msg("starting logged out")
	m.set("", nil)
	return m.store.Clear(ctx, session.KeyToken, session.KeyUser)
}

func (m *Manager) set(token string, user *types.User) {
	m.mu.Lock()
	m.token = token
	m.user = user
	subs := make([]func(*types.User), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(user)
	}
}

func (m *Manager) boundAPI() (API, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.api == nil {
		return nil, errors.New("auth manager has no API bound")
	}
	return m.api, nil
}

// expired reads the exp claim without verifying the signature; the client
// never holds the signing key. Opaque tokens never expire locally.
func (m *Manager) expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !m.now().Before(exp.Time)
}
