// Package provider owns the process-wide session and dashboard snapshot.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/theirongolddev/sitebook/internal/api"
	"github.com/theirongolddev/sitebook/internal/logging"
	"github.com/theirongolddev/sitebook/internal/model"
)

// Authenticator performs the auth calls against the backend.
type Authenticator interface {
	Login(ctx context.Context, username, password string) model.AuthResult
	Logout(ctx context.Context) model.AuthResult
	// CurrentUser returns the user of a stored session, or nil.
	CurrentUser(ctx context.Context) (*model.User, error)
}

// DashboardSource fetches a fresh snapshot.
type DashboardSource interface {
	Fetch(ctx context.Context) (model.Snapshot, error)
}

// SnapshotCache keeps an offline copy of the last applied snapshot.
type SnapshotCache interface {
	SaveSnapshot(ctx context.Context, snap model.Snapshot, fetchedAt time.Time) error
	LoadSnapshot(ctx context.Context) (model.Snapshot, time.Time, bool, error)
	ClearSnapshot(ctx context.Context) error
}

// RefreshObserver is told about every completed fetch.
type RefreshObserver interface {
	RecordRefresh(ctx context.Context, d time.Duration, err error)
}

// State is what the presentation layer renders.
type State struct {
	User        *model.User
	Loading     bool
	Snapshot    model.Snapshot
	LastRefresh time.Time
	LastError   string
}

// LoggedIn reports whether a user is set.
func (s State) LoggedIn() bool {
	return s.User != nil
}

// Options configures a Provider. Auth and Source are required.
type Options struct {
	Auth     Authenticator
	Source   DashboardSource
	Cache    SnapshotCache
	Observer RefreshObserver
	Logger   *zap.Logger
	Now      func() time.Time
}

// Provider holds {user, loading, snapshot} and publishes every change to
// subscribers.
//
// Refreshes are ordered by a generation taken when the fetch starts: a result
// is applied only if nothing newer has been applied and no logout happened
// since it started.
type Provider struct {
	auth     Authenticator
	source   DashboardSource
	cache    SnapshotCache
	observer RefreshObserver
	log      *zap.Logger
	now      func() time.Time

	mu      sync.RWMutex
	state   State
	loading int
	gen     uint64 // last generation handed out
	applied uint64 // generation of the snapshot currently held
	floor   uint64 // generations at or below this were invalidated by logout
	subs    map[int]chan State
	nextSub int
}

// New creates a provider in the loading state with an empty snapshot.
func New(opts Options) *Provider {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Provider{
		auth:     opts.Auth,
		source:   opts.Source,
		cache:    opts.Cache,
		observer: opts.Observer,
		log:      logging.OrNop(opts.Logger).Named(logging.ComponentProvider),
		now:      now,
		state:    State{Loading: true, Snapshot: model.Empty()},
		subs:     make(map[int]chan State),
	}
}

// Get returns the current state.
func (p *Provider) Get() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Snapshot returns the current snapshot. Callers must not modify it; use
// Clone for a mutable copy.
func (p *Provider) Snapshot() model.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Snapshot
}

// SetSnapshot replaces the snapshot with a locally computed one. Refreshes
// that started before this call are dropped when they complete.
func (p *Provider) SetSnapshot(snap model.Snapshot) {
	snap.Normalize()
	p.mu.Lock()
	p.state.Snapshot = snap
	p.applied = p.gen
	p.publishLocked()
	p.mu.Unlock()
}

// Subscribe returns a channel receiving every state change. Slow subscribers
// miss updates rather than block the provider. cancel closes the channel.
func (p *Provider) Subscribe(buffer int) (<-chan State, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan State, buffer)

	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			close(ch)
			p.mu.Unlock()
		})
	}
}

// publishLocked sends the state to every subscriber. p.mu must be held.
func (p *Provider) publishLocked() {
	st := p.state
	for _, ch := range p.subs {
		select {
		case ch <- st:
		default:
		}
	}
}

// Login authenticates, stores the user and loads the dashboard. Failures are
// reported in the result.
func (p *Provider) Login(ctx context.Context, username, password string) model.AuthResult {
	res := p.auth.Login(ctx, username, password)
	if !res.Success {
		p.log.Info("login failed", zap.String(logging.FieldUser, username), zap.String("reason", res.Error))
		return res
	}

	p.mu.Lock()
	p.state.User = res.User
	p.publishLocked()
	p.mu.Unlock()

	_ = p.RefreshData(ctx, false)
	return res
}

// Logout ends the session on the server (best effort) and always resets local
// state: no user, an empty snapshot and no offline copy. In-flight refreshes
// are invalidated.
func (p *Provider) Logout(ctx context.Context) {
	if res := p.auth.Logout(ctx); !res.Success {
		p.log.Warn("logout call failed", zap.String(logging.FieldOperation, logging.OpLogout), zap.String("reason", res.Error))
	}

	p.mu.Lock()
	p.resetLocked("")
	p.publishLocked()
	p.mu.Unlock()
	p.clearOffline(ctx)
}

// ExpireSession drops the local session after the backend rejected the
// stored tokens: the same local reset as Logout, without the server call.
// LastError keeps the reason so the UI can say why the user was signed out.
func (p *Provider) ExpireSession(ctx context.Context, reason error) {
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	p.mu.Lock()
	p.resetLocked(msg)
	p.publishLocked()
	p.mu.Unlock()
	p.log.Warn("session expired, signed out",
		zap.String(logging.FieldOperation, logging.OpLogout), zap.String("reason", msg))
	p.clearOffline(ctx)
}

// resetLocked clears the user and snapshot and invalidates every refresh
// started so far. p.mu must be held.
func (p *Provider) resetLocked(lastErr string) {
	p.floor = p.gen
	p.applied = p.gen
	p.state.User = nil
	p.state.Snapshot = model.Empty()
	p.state.LastRefresh = time.Time{}
	p.state.LastError = lastErr
}

func (p *Provider) clearOffline(ctx context.Context) {
	if p.cache == nil {
		return
	}
	if err := p.cache.ClearSnapshot(ctx); err != nil {
		p.log.Warn("clearing offline snapshot", zap.Error(err))
	}
}

// RefreshData fetches a new snapshot. A non-silent refresh raises Loading for
// its duration. On failure the previous snapshot is kept, the error is logged
// and recorded in LastError, and also returned. An expired session instead
// signs the user out locally, as ExpireSession does.
func (p *Provider) RefreshData(ctx context.Context, silent bool) error {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	if !silent {
		p.loading++
		p.state.Loading = true
		p.publishLocked()
	}
	p.mu.Unlock()

	start := p.now()
	snap, err := p.source.Fetch(ctx)
	elapsed := p.now().Sub(start)
	if p.observer != nil {
		p.observer.RecordRefresh(ctx, elapsed, err)
	}

	p.mu.Lock()
	if !silent {
		p.loading--
		p.state.Loading = p.loading > 0
	}

	if err != nil {
		expired := errors.Is(err, api.ErrSessionExpired)
		p.state.LastError = err.Error()
		if expired {
			p.resetLocked(err.Error())
		}
		p.publishLocked()
		p.mu.Unlock()
		p.log.Error("refresh failed",
			zap.String(logging.FieldOperation, logging.OpRefresh),
			zap.Bool(logging.FieldSilent, silent),
			zap.Bool("session_expired", expired),
			zap.Error(err))
		if expired {
			p.clearOffline(ctx)
		}
		return fmt.Errorf("refreshing dashboard: %w", err)
	}

	if gen <= p.floor || gen <= p.applied {
		p.publishLocked()
		p.mu.Unlock()
		p.log.Debug("dropping stale refresh",
			zap.Uint64(logging.FieldGeneration, gen))
		return nil
	}

	snap.Normalize()
	fetchedAt := p.now()
	p.applied = gen
	p.state.Snapshot = snap
	p.state.LastRefresh = fetchedAt
	p.state.LastError = ""
	p.publishLocked()
	p.mu.Unlock()

	if p.cache != nil {
		if err := p.cache.SaveSnapshot(ctx, snap, fetchedAt); err != nil {
			p.log.Warn("saving offline snapshot",
				zap.String(logging.FieldOperation, logging.OpCacheSnapshot), zap.Error(err))
		}
	}
	return nil
}

// Init restores a stored session: the cached user, then the offline snapshot
// if any, then a fresh fetch. Without a session it just clears Loading.
func (p *Provider) Init(ctx context.Context) error {
	user, err := p.auth.CurrentUser(ctx)
	if err != nil {
		p.log.Warn("reading stored session", zap.Error(err))
	}
	if user == nil {
		p.mu.Lock()
		p.state.Loading = p.loading > 0
		p.state.Snapshot = model.Empty()
		p.publishLocked()
		p.mu.Unlock()
		return nil
	}

	p.mu.Lock()
	p.state.User = user
	p.publishLocked()
	p.mu.Unlock()

	if p.cache != nil {
		snap, at, ok, err := p.cache.LoadSnapshot(ctx)
		switch {
		case err != nil:
			p.log.Warn("loading offline snapshot", zap.Error(err))
		case ok:
			snap.Normalize()
			p.mu.Lock()
			if p.applied == 0 {
				p.state.Snapshot = snap
				p.state.LastRefresh = at
				p.publishLocked()
			}
			p.mu.Unlock()
		}
	}

	return p.RefreshData(ctx, false)
}
