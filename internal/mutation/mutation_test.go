package mutation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/theirongolddev/sitebook/internal/api"
	"github.com/theirongolddev/sitebook/internal/model"
)

type fakeStore struct {
	mu         sync.Mutex
	snap       model.Snapshot
	refreshes  int
	refreshErr error
	expired    []error
}

func (s *fakeStore) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *fakeStore) SetSnapshot(snap model.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

func (s *fakeStore) RefreshData(context.Context, bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	return s.refreshErr
}

func (s *fakeStore) ExpireSession(_ context.Context, reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired = append(s.expired, reason)
	s.snap = model.Empty()
}

type call struct {
	method  string
	res     api.Resource
	id      int64
	payload any
}

type fakeBackend struct {
	calls  []call
	err    error
	during func()
}

func (b *fakeBackend) Update(_ context.Context, res api.Resource, id int64, patch, _ any) error {
	b.calls = append(b.calls, call{"PATCH", res, id, patch})
	if b.during != nil {
		b.during()
	}
	return b.err
}

func (b *fakeBackend) Replace(_ context.Context, res api.Resource, id int64, payload, _ any) error {
	b.calls = append(b.calls, call{"PUT", res, id, payload})
	if b.during != nil {
		b.during()
	}
	return b.err
}

type fakeRecorder struct {
	events []model.MutationEvent
	err    error
}

func (r *fakeRecorder) RecordMutation(_ context.Context, ev model.MutationEvent) error {
	r.events = append(r.events, ev)
	return r.err
}

func sampleSnapshot() model.Snapshot {
	due := model.NewDate(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	snap := model.Snapshot{
		Tasks: []model.Task{
			{ID: 1, Title: "Pour slab", Status: model.StatusPending, Phase: 10, EstimatedCost: 150000, DueDate: due},
			{ID: 2, Title: "Order rebar", Status: model.StatusCompleted, Phase: 10, EstimatedCost: 42000.5},
		},
		Phases: []model.Phase{
			{ID: 10, Name: "Foundation", Status: model.StatusInProgress, Order: 1, EstimatedBudget: 500000},
		},
		PermitSteps: []model.PermitStep{
			{ID: 7, Title: "Layout approval", Status: model.StatusPending, Order: 1},
		},
	}
	snap.Normalize()
	return snap
}

func newService(store *fakeStore, backend *fakeBackend, rec *fakeRecorder) *Service {
	var recorders []Recorder
	if rec != nil {
		recorders = append(recorders, rec)
	}
	return NewService(NewRunner(store, zap.NewNop(), recorders...), backend)
}

func TestUpdateTaskStatusRollsBackOnFailure(t *testing.T) {
	store := &fakeStore{snap: sampleSnapshot()}
	before := store.Snapshot().Clone().Tasks
	injected := errors.New("backend unavailable")

	var during string
	backend := &fakeBackend{err: injected}
	backend.during = func() { during = store.Snapshot().Tasks[0].Status }
	rec := &fakeRecorder{}

	err := newService(store, backend, rec).UpdateTaskStatus(context.Background(), 1, "in progress")
	if !errors.Is(err, injected) {
		t.Fatalf("err = %v, want %v", err, injected)
	}
	if during != model.StatusInProgress {
		t.Errorf("status during commit = %q, want optimistic %q", during, model.StatusInProgress)
	}
	if diff := cmp.Diff(before, store.Snapshot().Tasks); diff != "" {
		t.Errorf("tasks not restored (-want +got):\n%s", diff)
	}
	if store.refreshes != 0 {
		t.Errorf("refreshes = %d, want 0", store.refreshes)
	}
	if len(rec.events) != 1 || rec.events[0].Outcome != model.OutcomeRolledBack {
		t.Fatalf("events = %+v, want one rolled_back", rec.events)
	}
	if rec.events[0].Error == "" || rec.events[0].ID == "" {
		t.Errorf("event missing id or error: %+v", rec.events[0])
	}
}

func TestUpdateTaskStatusCommits(t *testing.T) {
	store := &fakeStore{snap: sampleSnapshot()}
	backend := &fakeBackend{}
	rec := &fakeRecorder{}

	if err := newService(store, backend, rec).UpdateTaskStatus(context.Background(), 1, model.StatusCompleted); err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}

	want := sampleSnapshot().Tasks
	want[0].Status = model.StatusCompleted
	if diff := cmp.Diff(want, store.Snapshot().Tasks); diff != "" {
		t.Errorf("tasks (-want +got):\n%s", diff)
	}
	if len(backend.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(backend.calls))
	}
	c := backend.calls[0]
	if c.method != "PATCH" || c.res != api.Tasks || c.id != 1 {
		t.Errorf("call = %+v", c)
	}
	if diff := cmp.Diff(map[string]any{"status": model.StatusCompleted}, c.payload); diff != "" {
		t.Errorf("payload (-want +got):\n%s", diff)
	}
	if store.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", store.refreshes)
	}
	if len(rec.events) != 1 || rec.events[0].Outcome != model.OutcomeCommitted {
		t.Errorf("events = %+v, want one committed", rec.events)
	}
}

func TestUnknownIDStillCommits(t *testing.T) {
	store := &fakeStore{snap: sampleSnapshot()}
	backend := &fakeBackend{}

	if err := newService(store, backend, nil).UpdatePhase(context.Background(), 99, map[string]any{"name": "Roof"}); err != nil {
		t.Fatalf("UpdatePhase: %v", err)
	}
	if diff := cmp.Diff(sampleSnapshot(), store.Snapshot()); diff != "" {
		t.Errorf("snapshot changed (-want +got):\n%s", diff)
	}
	if len(backend.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(backend.calls))
	}
}

func TestUpdatePhaseMergesShallow(t *testing.T) {
	store := &fakeStore{snap: sampleSnapshot()}
	patch := map[string]any{"name": "Footings", "estimated_budget": "650000.00"}

	if err := newService(store, &fakeBackend{}, nil).UpdatePhase(context.Background(), 10, patch); err != nil {
		t.Fatalf("UpdatePhase: %v", err)
	}
	got := store.Snapshot().Phases[0]
	want := model.Phase{ID: 10, Name: "Footings", Status: model.StatusInProgress, Order: 1, EstimatedBudget: 650000}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("phase (-want +got):\n%s", diff)
	}
}

func TestInvalidStatusIsRejectedBeforeCommit(t *testing.T) {
	store := &fakeStore{snap: sampleSnapshot()}
	backend := &fakeBackend{}
	svc := newService(store, backend, nil)

	tests := []struct {
		name string
		run  func() error
	}{
		{"task", func() error { return svc.UpdateTaskStatus(context.Background(), 1, "approved") }},
		{"phase", func() error { return svc.UpdatePhaseStatus(context.Background(), 10, "blocked") }},
		{"permit", func() error { return svc.UpdatePermitStatus(context.Background(), 7, "halted") }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var verr *api.ValidationError
			if err := tt.run(); !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}
	if len(backend.calls) != 0 {
		t.Errorf("calls = %d, want 0", len(backend.calls))
	}
}

func TestBadPatchValueFailsWithoutCommit(t *testing.T) {
	store := &fakeStore{snap: sampleSnapshot()}
	backend := &fakeBackend{}

	err := newService(store, backend, nil).UpdateTask(context.Background(), 1, map[string]any{"estimated_cost": "lots"})
	if !errors.Is(err, model.ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
	if len(backend.calls) != 0 {
		t.Errorf("calls = %d, want 0", len(backend.calls))
	}
	if diff := cmp.Diff(sampleSnapshot(), store.Snapshot()); diff != "" {
		t.Errorf("snapshot changed (-want +got):\n%s", diff)
	}
}

func TestUpdatePermitStatusHasNoOptimisticPatch(t *testing.T) {
	store := &fakeStore{snap: sampleSnapshot()}
	var during string
	backend := &fakeBackend{}
	backend.during = func() { during = store.Snapshot().PermitSteps[0].Status }

	if err := newService(store, backend, nil).UpdatePermitStatus(context.Background(), 7, "approved"); err != nil {
		t.Fatalf("UpdatePermitStatus: %v", err)
	}
	if during != model.StatusPending {
		t.Errorf("status during commit = %q, want unchanged %q", during, model.StatusPending)
	}
	c := backend.calls[0]
	if c.method != "PUT" || c.res != api.PermitSteps || c.id != 7 {
		t.Errorf("call = %+v", c)
	}
	if store.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", store.refreshes)
	}
}

func TestPermitFailureIsRecordedAsFailed(t *testing.T) {
	store := &fakeStore{snap: sampleSnapshot()}
	rec := &fakeRecorder{}
	backend := &fakeBackend{err: api.ErrForbidden}

	err := newService(store, backend, rec).UpdatePermitStatus(context.Background(), 7, model.StatusApproved)
	if !errors.Is(err, api.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if len(rec.events) != 1 || rec.events[0].Outcome != model.OutcomeFailed {
		t.Errorf("events = %+v, want one failed", rec.events)
	}
}

func TestExpiredSessionSignsOut(t *testing.T) {
	store := &fakeStore{snap: sampleSnapshot()}
	rec := &fakeRecorder{}
	backend := &fakeBackend{err: fmt.Errorf("PATCH /tasks/1/: %w", api.ErrSessionExpired)}

	err := newService(store, backend, rec).UpdateTaskStatus(context.Background(), 1, model.StatusCompleted)
	if !errors.Is(err, api.ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if len(store.expired) != 1 || !errors.Is(store.expired[0], api.ErrSessionExpired) {
		t.Fatalf("ExpireSession calls = %v, want one with ErrSessionExpired", store.expired)
	}
	if len(rec.events) != 1 || rec.events[0].Outcome != model.OutcomeRolledBack {
		t.Errorf("events = %+v, want one rolled_back", rec.events)
	}
	if store.refreshes != 0 {
		t.Errorf("refreshes = %d, want 0", store.refreshes)
	}
}

func TestOtherFailuresKeepSession(t *testing.T) {
	store := &fakeStore{snap: sampleSnapshot()}
	backend := &fakeBackend{err: api.ErrForbidden}

	_ = newService(store, backend, nil).UpdateTaskStatus(context.Background(), 1, model.StatusCompleted)
	if len(store.expired) != 0 {
		t.Errorf("ExpireSession called for a non-auth failure: %v", store.expired)
	}
}

func TestRecorderAndRefreshErrorsDoNotChangeOutcome(t *testing.T) {
	store := &fakeStore{snap: sampleSnapshot(), refreshErr: errors.New("offline")}
	rec := &fakeRecorder{err: errors.New("disk full")}

	if err := newService(store, &fakeBackend{}, rec).UpdateTaskStatus(context.Background(), 2, model.StatusBlocked); err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}
	if got := store.Snapshot().Tasks[1].Status; got != model.StatusBlocked {
		t.Errorf("status = %q, want %q", got, model.StatusBlocked)
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct{ in, want string }{
		{"in progress", "IN_PROGRESS"},
		{"in-progress", "IN_PROGRESS"},
		{" Completed ", "COMPLETED"},
		{"BLOCKED", "BLOCKED"},
	}
	for _, tt := range tests {
		if got := normalizeStatus(tt.in); got != tt.want {
			t.Errorf("normalizeStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
