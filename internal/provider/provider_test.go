package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/theirongolddev/sitebook/internal/api"
	"github.com/theirongolddev/sitebook/internal/model"
)

type fakeAuth struct {
	loginRes  model.AuthResult
	logoutRes model.AuthResult
	user      *model.User
	logouts   atomic.Int32
}

func (f *fakeAuth) Login(context.Context, string, string) model.AuthResult { return f.loginRes }

func (f *fakeAuth) Logout(context.Context) model.AuthResult {
	f.logouts.Add(1)
	return f.logoutRes
}

func (f *fakeAuth) CurrentUser(context.Context) (*model.User, error) { return f.user, nil }

type fakeSource struct {
	calls atomic.Int32
	fn    func(ctx context.Context, call int) (model.Snapshot, error)
}

func (f *fakeSource) Fetch(ctx context.Context) (model.Snapshot, error) {
	n := int(f.calls.Add(1))
	return f.fn(ctx, n)
}

type memCache struct {
	mu      sync.Mutex
	snap    *model.Snapshot
	at      time.Time
	cleared bool
}

func (m *memCache) SaveSnapshot(_ context.Context, snap model.Snapshot, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap, m.at = &snap, at
	return nil
}

func (m *memCache) LoadSnapshot(context.Context) (model.Snapshot, time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return model.Snapshot{}, time.Time{}, false, nil
	}
	return *m.snap, m.at, true, nil
}

func (m *memCache) ClearSnapshot(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap, m.cleared = nil, true
	return nil
}

func snapshotNamed(name string) model.Snapshot {
	s := model.Empty()
	s.Project = &model.Project{ID: 1, Name: name, TotalBudget: 1000000}
	s.Phases = []model.Phase{{ID: 1, Name: "Foundation", Status: model.StatusCompleted}}
	return s
}

func constSource(snap model.Snapshot) *fakeSource {
	return &fakeSource{fn: func(context.Context, int) (model.Snapshot, error) { return snap, nil }}
}

func TestLoginLoadsDashboard(t *testing.T) {
	user := &model.User{ID: 1, Username: "ravi"}
	auth := &fakeAuth{loginRes: model.AuthResult{Success: true, User: user}}
	want := snapshotNamed("Villa")
	p := New(Options{Auth: auth, Source: constSource(want)})

	res := p.Login(context.Background(), "ravi", "pw")
	if !res.Success {
		t.Fatalf("Login = %+v", res)
	}
	st := p.Get()
	if st.User == nil || st.User.Username != "ravi" {
		t.Fatalf("user = %+v", st.User)
	}
	if st.Loading {
		t.Fatal("Loading still set after login refresh")
	}
	if diff := cmp.Diff(want, st.Snapshot); diff != "" {
		t.Fatalf("snapshot (-want +got):\n%s", diff)
	}
}

func TestLoginFailureDoesNotFetch(t *testing.T) {
	auth := &fakeAuth{loginRes: model.AuthResult{Error: "Invalid credentials"}}
	src := constSource(snapshotNamed("x"))
	p := New(Options{Auth: auth, Source: src})

	res := p.Login(context.Background(), "ravi", "bad")
	if res.Success || res.Error != "Invalid credentials" {
		t.Fatalf("Login = %+v", res)
	}
	if src.calls.Load() != 0 {
		t.Fatal("dashboard fetched after failed login")
	}
	if p.Get().User != nil {
		t.Fatal("user set after failed login")
	}
}

func TestLogoutClearsEvenWhenServerFails(t *testing.T) {
	auth := &fakeAuth{
		loginRes:  model.AuthResult{Success: true, User: &model.User{ID: 1}},
		logoutRes: model.AuthResult{Error: "network down"},
	}
	cache := &memCache{}
	p := New(Options{Auth: auth, Source: constSource(snapshotNamed("Villa")), Cache: cache})
	ctx := context.Background()
	p.Login(ctx, "u", "p")

	p.Logout(ctx)

	st := p.Get()
	if st.User != nil {
		t.Fatalf("user = %+v after logout", st.User)
	}
	if diff := cmp.Diff(model.Empty(), st.Snapshot); diff != "" {
		t.Fatalf("snapshot not emptied (-want +got):\n%s", diff)
	}
	if !cache.cleared {
		t.Fatal("offline snapshot not cleared")
	}
	if auth.logouts.Load() != 1 {
		t.Fatalf("logout calls = %d", auth.logouts.Load())
	}
}

func TestRefreshFailureKeepsLastSnapshot(t *testing.T) {
	boom := errors.New("backend down")
	good := snapshotNamed("Villa")
	src := &fakeSource{fn: func(_ context.Context, call int) (model.Snapshot, error) {
		if call == 1 {
			return good, nil
		}
		return model.Snapshot{}, boom
	}}
	p := New(Options{Auth: &fakeAuth{}, Source: src})
	ctx := context.Background()

	if err := p.RefreshData(ctx, false); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	err := p.RefreshData(ctx, false)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	st := p.Get()
	if st.LastError == "" {
		t.Fatal("LastError not recorded")
	}
	if st.Loading {
		t.Fatal("Loading left set after failure")
	}
	if diff := cmp.Diff(good, st.Snapshot); diff != "" {
		t.Fatalf("snapshot changed on failure (-want +got):\n%s", diff)
	}
}

func TestExpiredSessionSignsOutOnRefresh(t *testing.T) {
	auth := &fakeAuth{loginRes: model.AuthResult{Success: true, User: &model.User{ID: 1, Username: "ram"}}}
	src := &fakeSource{fn: func(_ context.Context, call int) (model.Snapshot, error) {
		if call == 1 {
			return snapshotNamed("Villa"), nil
		}
		return model.Snapshot{}, fmt.Errorf("GET /dashboard/combined/: %w", api.ErrSessionExpired)
	}}
	cache := &memCache{}
	p := New(Options{Auth: auth, Source: src, Cache: cache})
	ctx := context.Background()
	p.Login(ctx, "ram", "pw")

	err := p.RefreshData(ctx, true)
	if !errors.Is(err, api.ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}

	st := p.Get()
	if st.User != nil {
		t.Fatalf("user = %+v after expired session", st.User)
	}
	if diff := cmp.Diff(model.Empty(), st.Snapshot); diff != "" {
		t.Fatalf("snapshot not emptied (-want +got):\n%s", diff)
	}
	if !cache.cleared {
		t.Fatal("offline snapshot not cleared")
	}
	if st.LastError == "" {
		t.Fatal("expiry reason not kept in LastError")
	}
	if auth.logouts.Load() != 0 {
		t.Fatalf("server logout called %d times for an expired session", auth.logouts.Load())
	}
}

func TestExpireSessionDropsInFlightRefresh(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	src := &fakeSource{fn: func(context.Context, int) (model.Snapshot, error) {
		close(started)
		<-release
		return snapshotNamed("Late"), nil
	}}
	p := New(Options{Auth: &fakeAuth{}, Source: src})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- p.RefreshData(ctx, true) }()
	<-started
	p.ExpireSession(ctx, api.ErrSessionExpired)
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("RefreshData: %v", err)
	}
	if p.Get().Snapshot.Project != nil {
		t.Fatal("refresh started before expiry repopulated the snapshot")
	}
}

func TestSilentRefreshLeavesLoading(t *testing.T) {
	seen := make(chan bool, 1)
	var p *Provider
	src := &fakeSource{fn: func(context.Context, int) (model.Snapshot, error) {
		seen <- p.Get().Loading
		return model.Empty(), nil
	}}
	p = New(Options{Auth: &fakeAuth{}, Source: src})
	_ = p.Init(context.Background()) // no session: Loading=false

	if err := p.RefreshData(context.Background(), true); err != nil {
		t.Fatalf("RefreshData: %v", err)
	}
	if <-seen {
		t.Fatal("silent refresh raised Loading")
	}

	if err := p.RefreshData(context.Background(), false); err != nil {
		t.Fatalf("RefreshData: %v", err)
	}
	if !<-seen {
		t.Fatal("non-silent refresh did not raise Loading")
	}
}

// blockingSource blocks the first fetch until release is closed.
func blockingSource(first, second model.Snapshot) (src *fakeSource, started, release chan struct{}) {
	started = make(chan struct{})
	release = make(chan struct{})
	src = &fakeSource{fn: func(ctx context.Context, call int) (model.Snapshot, error) {
		if call == 1 {
			close(started)
			<-release
			return first, nil
		}
		return second, nil
	}}
	return src, started, release
}

func TestStaleRefreshDoesNotOverwriteNewer(t *testing.T) {
	defer goleak.VerifyNone(t)

	older, newer := snapshotNamed("older"), snapshotNamed("newer")
	src, started, release := blockingSource(older, newer)
	p := New(Options{Auth: &fakeAuth{}, Source: src})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- p.RefreshData(ctx, true) }()
	<-started

	if err := p.RefreshData(ctx, true); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	if got := p.Snapshot().Project.Name; got != "newer" {
		t.Fatalf("project = %q, want the later-issued refresh to win", got)
	}
}

func TestLogoutInvalidatesInflightRefresh(t *testing.T) {
	defer goleak.VerifyNone(t)

	src, started, release := blockingSource(snapshotNamed("late"), model.Empty())
	p := New(Options{Auth: &fakeAuth{logoutRes: model.AuthResult{Success: true}}, Source: src})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- p.RefreshData(ctx, false) }()
	<-started

	p.Logout(ctx)
	close(release)
	<-done

	if snap := p.Snapshot(); snap.Project != nil {
		t.Fatalf("in-flight refresh repopulated a logged-out session: %+v", snap.Project)
	}
}

func TestSetSnapshotDropsEarlierRefresh(t *testing.T) {
	defer goleak.VerifyNone(t)

	src, started, release := blockingSource(snapshotNamed("server"), model.Empty())
	p := New(Options{Auth: &fakeAuth{}, Source: src})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- p.RefreshData(ctx, true) }()
	<-started

	p.SetSnapshot(snapshotNamed("local"))
	close(release)
	<-done

	if got := p.Snapshot().Project.Name; got != "local" {
		t.Fatalf("project = %q, want local patch kept", got)
	}
}

func TestInitRestoresSessionFromCache(t *testing.T) {
	cached := snapshotNamed("cached")
	fresh := snapshotNamed("fresh")
	cache := &memCache{}
	_ = cache.SaveSnapshot(context.Background(), cached, time.Unix(100, 0))

	var sawCached atomic.Bool
	var p *Provider
	src := &fakeSource{fn: func(context.Context, int) (model.Snapshot, error) {
		if s := p.Snapshot(); s.Project != nil && s.Project.Name == "cached" {
			sawCached.Store(true)
		}
		return fresh, nil
	}}
	p = New(Options{Auth: &fakeAuth{user: &model.User{ID: 9}}, Source: src, Cache: cache})

	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !sawCached.Load() {
		t.Fatal("offline snapshot not shown while fetching")
	}
	st := p.Get()
	if st.User == nil || st.User.ID != 9 || st.Snapshot.Project.Name != "fresh" {
		t.Fatalf("state = %+v", st)
	}
}

func TestInitWithoutSession(t *testing.T) {
	src := constSource(snapshotNamed("x"))
	p := New(Options{Auth: &fakeAuth{}, Source: src})
	if !p.Get().Loading {
		t.Fatal("provider should start loading")
	}
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	st := p.Get()
	if st.Loading || st.User != nil || src.calls.Load() != 0 {
		t.Fatalf("state = %+v, fetches = %d", st, src.calls.Load())
	}
}

func TestSubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := New(Options{Auth: &fakeAuth{}, Source: constSource(snapshotNamed("Villa"))})
	ch, cancel := p.Subscribe(8)

	if err := p.RefreshData(context.Background(), false); err != nil {
		t.Fatalf("RefreshData: %v", err)
	}

	var last State
	for i := 0; i < 2; i++ {
		select {
		case last = <-ch:
		case <-time.After(time.Second):
			t.Fatal("no state published")
		}
	}
	if last.Loading || last.Snapshot.Project == nil {
		t.Fatalf("last published state = %+v", last)
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed after cancel")
	}
}
