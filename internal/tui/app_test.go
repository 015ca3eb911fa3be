package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/theirongolddev/sitebook/internal/config"
	"github.com/theirongolddev/sitebook/internal/model"
	"github.com/theirongolddev/sitebook/internal/provider"
)

type fakeSession struct {
	state provider.State
	ch    chan provider.State
}

func newFakeSession(st provider.State) *fakeSession {
	return &fakeSession{state: st, ch: make(chan provider.State, 1)}
}

func (s *fakeSession) Get() provider.State { return s.state }

func (s *fakeSession) Subscribe(int) (<-chan provider.State, func()) {
	return s.ch, func() {}
}

func (s *fakeSession) Init(context.Context) error { return nil }

func (s *fakeSession) Login(context.Context, string, string) model.AuthResult {
	return model.AuthResult{Success: true}
}

func (s *fakeSession) Logout(context.Context) {}

func (s *fakeSession) RefreshData(context.Context, bool) error { return nil }

type call struct {
	kind   string
	id     int64
	status string
}

type fakeMutator struct {
	mu    sync.Mutex
	calls []call
}

func (m *fakeMutator) record(kind string, id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call{kind, id, status})
	return nil
}

func (m *fakeMutator) UpdateTaskStatus(_ context.Context, id int64, status string) error {
	return m.record("task", id, status)
}

func (m *fakeMutator) UpdatePhaseStatus(_ context.Context, id int64, status string) error {
	return m.record("phase", id, status)
}

func (m *fakeMutator) UpdatePermitStatus(_ context.Context, id int64, status string) error {
	return m.record("permit", id, status)
}

var testNow = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

func siteState() provider.State {
	snap := model.Empty()
	snap.Project = &model.Project{ID: 1, Name: "Lakeview House", TotalBudget: 5000000}
	snap.Phases = []model.Phase{
		{ID: 2, Name: "Slab", Status: model.StatusPending, Order: 2},
		{ID: 1, Name: "Foundation", Status: model.StatusCompleted, Order: 1},
	}
	snap.Tasks = []model.Task{
		{ID: 10, Title: "Pour footing", Status: model.StatusCompleted, Phase: 1},
		{ID: 11, Title: "Order steel", Status: model.StatusPending, Phase: 2},
		{ID: 12, Title: "Shuttering", Status: model.StatusInProgress, Phase: 2},
	}
	snap.Materials = []model.Material{
		{ID: 5, Name: "Cement", Unit: "bags", CurrentStock: 10, MinStockLevel: 20},
	}
	snap.PermitSteps = []model.PermitStep{
		{ID: 31, Title: "Site plan approval", Status: model.StatusApproved, Order: 1},
		{ID: 32, Title: "Structural sign-off", Status: model.StatusInProgress, Order: 2},
	}
	return provider.State{
		User:     &model.User{ID: 1, Username: "asha"},
		Snapshot: snap,
	}
}

func newTestApp(t *testing.T, st provider.State, m Mutator) App {
	t.Helper()
	cfg := config.DefaultConfig()
	a := NewApp(Options{
		Session: newFakeSession(st),
		Mutator: m,
		Config:  cfg,
		Now:     func() time.Time { return testNow },
	})
	a.initialized = true
	a.width = 140
	a.height = 40
	t.Cleanup(a.shutdown)
	return a
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func press(t *testing.T, a App, keys ...string) (App, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var m tea.Model
		m, cmd = a.Update(keyMsg(k))
		a = m.(App)
	}
	return a, cmd
}

func TestTabKeys(t *testing.T) {
	a := newTestApp(t, siteState(), nil)

	tests := []struct {
		key  string
		want int
	}{
		{"b", tabBudget},
		{"t", tabTasks},
		{"h", tabPhases},
		{"i", tabInventory},
		{"m", tabPermits},
		{"right", tabOverview},
		{"left", tabPermits},
		{"o", tabOverview},
	}
	for _, tt := range tests {
		a, _ = press(t, a, tt.key)
		if a.activeTab != tt.want {
			t.Fatalf("after %q activeTab = %d, want %d", tt.key, a.activeTab, tt.want)
		}
	}
}

func TestCursorStaysInRange(t *testing.T) {
	a := newTestApp(t, siteState(), nil)
	a, _ = press(t, a, "t", "j", "j", "j", "j")
	if got := a.cursors[tabTasks]; got != 2 {
		t.Fatalf("cursor = %d, want 2", got)
	}
	a, _ = press(t, a, "k", "k", "k", "k")
	if got := a.cursors[tabTasks]; got != 0 {
		t.Fatalf("cursor = %d, want 0", got)
	}
	a, _ = press(t, a, "G")
	if got := a.cursors[tabTasks]; got != 2 {
		t.Fatalf("G cursor = %d, want 2", got)
	}
}

func TestTaskFilterCycles(t *testing.T) {
	a := newTestApp(t, siteState(), nil)
	a, _ = press(t, a, "t", "f")
	if a.taskFilter != model.StatusPending {
		t.Fatalf("taskFilter = %q", a.taskFilter)
	}
	if got := a.visibleTasks(); len(got) != 1 || got[0].ID != 11 {
		t.Fatalf("visibleTasks = %+v", got)
	}
	a, _ = press(t, a, "f", "f", "f", "f")
	if a.taskFilter != "" {
		t.Fatalf("filter did not wrap to all, got %q", a.taskFilter)
	}
}

func TestEnterAdvancesSelectedStatus(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want call
	}{
		{"task", []string{"t", "j"}, call{"task", 11, model.StatusInProgress}},
		// Phases are listed by order, so the first row is Foundation.
		{"phase", []string{"h"}, call{"phase", 1, model.StatusHalted}},
		{"permit", []string{"m", "j"}, call{"permit", 32, model.StatusApproved}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMutator{}
			a := newTestApp(t, siteState(), m)
			a, _ = press(t, a, tt.keys...)
			a, cmd := press(t, a, "enter")
			if cmd == nil {
				t.Fatal("enter returned no command")
			}
			msg := cmd()
			done, ok := msg.(mutationDoneMsg)
			if !ok {
				t.Fatalf("cmd returned %T", msg)
			}
			if done.err != nil {
				t.Fatalf("mutation err: %v", done.err)
			}
			if len(m.calls) != 1 || m.calls[0] != tt.want {
				t.Fatalf("calls = %+v, want %+v", m.calls, tt.want)
			}
			_ = a
		})
	}
}

func TestEnterWithoutMutator(t *testing.T) {
	a := newTestApp(t, siteState(), nil)
	a, cmd := press(t, a, "t", "enter")
	if cmd != nil {
		t.Fatal("expected no command without a mutator")
	}
	_ = a
}

func TestStateMsgClampsCursors(t *testing.T) {
	a := newTestApp(t, siteState(), nil)
	a, _ = press(t, a, "t", "G")

	st := siteState()
	st.Snapshot.Tasks = st.Snapshot.Tasks[:1]
	m, _ := a.Update(stateMsg(st))
	a = m.(App)
	if got := a.cursors[tabTasks]; got != 0 {
		t.Fatalf("cursor = %d after shrink, want 0", got)
	}
	if a.derived.Stats.TotalPhases != 2 {
		t.Fatalf("derived stats not recomputed: %+v", a.derived.Stats)
	}
}

func TestMutationFailureFlashes(t *testing.T) {
	a := newTestApp(t, siteState(), nil)
	m, _ := a.Update(mutationDoneMsg{what: "update task", err: context.DeadlineExceeded})
	a = m.(App)
	if !strings.Contains(a.flash, "update task failed") {
		t.Fatalf("flash = %q", a.flash)
	}
}

func TestExpiredSessionReopensLogin(t *testing.T) {
	a := newTestApp(t, siteState(), nil)
	a.activeTab = tabTasks
	sess := a.session.(*fakeSession)
	sess.state = provider.State{Snapshot: model.Empty(), LastError: "api: session expired"}

	m, _ := a.Update(refreshDoneMsg{err: errors.New("refreshing dashboard: api: session expired")})
	a = m.(App)
	if a.loginForm == nil {
		t.Fatal("login form not reopened after the session expired")
	}
	if a.activeTab != tabOverview {
		t.Errorf("activeTab = %d, want overview", a.activeTab)
	}
	if !strings.Contains(a.flash, "session expired") {
		t.Errorf("flash = %q", a.flash)
	}
}

func TestStateMsgWithoutUserReopensLogin(t *testing.T) {
	a := newTestApp(t, siteState(), nil)
	m, _ := a.Update(stateMsg(provider.State{Snapshot: model.Empty(), LastError: "api: session expired"}))
	a = m.(App)
	if a.loginForm == nil {
		t.Fatal("login form not opened")
	}
	if !strings.Contains(a.flash, "Signed out") {
		t.Errorf("flash = %q", a.flash)
	}
}

func TestNextStatus(t *testing.T) {
	tests := []struct {
		cur  string
		want string
	}{
		{model.StatusPending, model.StatusInProgress},
		{model.StatusBlocked, model.StatusPending},
		{"", model.StatusPending},
		{"UNKNOWN", model.StatusPending},
	}
	for _, tt := range tests {
		if got := nextStatus(tt.cur, model.TaskStatuses); got != tt.want {
			t.Errorf("nextStatus(%q) = %q, want %q", tt.cur, got, tt.want)
		}
	}
}

func TestVisibleRange(t *testing.T) {
	tests := []struct {
		cursor, n, height int
		start, end        int
	}{
		{0, 10, 5, 0, 5},
		{4, 10, 5, 0, 5},
		{5, 10, 5, 1, 6},
		{9, 10, 5, 5, 10},
		{2, 3, 5, 0, 3},
		{0, 0, 5, 0, 0},
	}
	for _, tt := range tests {
		start, end := visibleRange(tt.cursor, tt.n, tt.height)
		if start != tt.start || end != tt.end {
			t.Errorf("visibleRange(%d, %d, %d) = [%d, %d), want [%d, %d)",
				tt.cursor, tt.n, tt.height, start, end, tt.start, tt.end)
		}
	}
}

func TestViewRendersEveryTab(t *testing.T) {
	a := newTestApp(t, siteState(), nil)
	want := []string{"Lakeview House", "Budget", "Order steel", "Foundation", "Cement", "Site plan approval"}
	for tab := range want {
		a.activeTab = tab
		view := stripStyles(a.View())
		if !strings.Contains(view, want[tab]) {
			t.Errorf("tab %d view missing %q", tab, want[tab])
		}
	}
}

func TestSortedPermits(t *testing.T) {
	in := []model.PermitStep{{ID: 3, Order: 2}, {ID: 2, Order: 1}, {ID: 1, Order: 2}}
	got := sortedPermits(in)
	ids := []int64{got[0].ID, got[1].ID, got[2].ID}
	if ids[0] != 2 || ids[1] != 1 || ids[2] != 3 {
		t.Fatalf("order = %v", ids)
	}
	if in[0].ID != 3 {
		t.Fatal("input was reordered")
	}
}
