package api

import (
	"context"
	"sync"

	"github.com/theirongolddev/sitebook/internal/model"
)

// Storage keys shared by every TokenStore implementation.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
)

// TokenStore persists the session across runs.
type TokenStore interface {
	Tokens(ctx context.Context) (model.Tokens, error)
	SetTokens(ctx context.Context, t model.Tokens) error
	// User returns the cached user, or nil when none is stored.
	User(ctx context.Context) (*model.User, error)
	SetUser(ctx context.Context, u *model.User) error
	// Clear removes the tokens and the cached user.
	Clear(ctx context.Context) error
}

// MemoryTokenStore keeps the session in memory for the life of the process.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens model.Tokens
	user   *model.User
}

// NewMemoryTokenStore returns an empty store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (m *MemoryTokenStore) Tokens(context.Context) (model.Tokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens, nil
}

func (m *MemoryTokenStore) SetTokens(_ context.Context, t model.Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = t
	return nil
}

func (m *MemoryTokenStore) User(context.Context) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil, nil
	}
	u := *m.user
	return &u, nil
}

func (m *MemoryTokenStore) SetUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u == nil {
		m.user = nil
		return nil
	}
	cp := *u
	m.user = &cp
	return nil
}

func (m *MemoryTokenStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = model.Tokens{}
	m.user = nil
	return nil
}
