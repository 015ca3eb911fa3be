package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/theirongolddev/sitebook/internal/model"
	"github.com/theirongolddev/sitebook/internal/provider"
)

type fakeSource struct {
	mu    sync.Mutex
	state provider.State
	err   error
	polls int
}

func (f *fakeSource) RefreshData(context.Context, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return f.err
}

func (f *fakeSource) Get() provider.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSource) set(snap model.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap.Normalize()
	f.state.Snapshot = snap
}

type fakeBudget struct{ calls int }

func (b *fakeBudget) RecordBudget(context.Context, model.BudgetStats) { b.calls++ }

type fakePublisher struct{ payloads []any }

func (p *fakePublisher) PublishDashboard(_ context.Context, v any) error {
	p.payloads = append(p.payloads, v)
	return nil
}

func siteSnapshot() model.Snapshot {
	return model.Snapshot{
		Project: &model.Project{ID: 1, Name: "Bhaktapur house", TotalBudget: 1000000},
		Phases: []model.Phase{
			{ID: 1, Name: "Foundation", Status: model.StatusCompleted, Order: 1},
			{ID: 2, Name: "Walls", Status: model.StatusInProgress, Order: 2},
		},
		Tasks: []model.Task{
			{ID: 1, Title: "Pour slab", Status: model.StatusCompleted},
			{ID: 2, Title: "Lay bricks", Status: model.StatusInProgress},
		},
		Expenses: []model.Expense{{ID: 1, Title: "Cement", Amount: 250000}},
		Materials: []model.Material{
			{ID: 1, Name: "Cement", CurrentStock: 2, MinStockLevel: 10},
		},
	}
}

func TestDiffSummaries(t *testing.T) {
	prev := Summary{Progress: 25, CompletedPhases: 1, TotalSpent: 10.5, TotalFunded: 100, LowStock: 2, OpenTasks: 7}
	curr := Summary{Progress: 50, CompletedPhases: 2, TotalSpent: 13.1, TotalFunded: 100, LowStock: 1, OpenTasks: 5}

	delta := diffSummaries(prev, curr)
	if delta.Progress != 25 {
		t.Fatalf("Progress delta = %d, want 25", delta.Progress)
	}
	if delta.CompletedPhases != 1 {
		t.Fatalf("CompletedPhases delta = %d, want 1", delta.CompletedPhases)
	}
	if delta.LowStock != -1 {
		t.Fatalf("LowStock delta = %d, want -1", delta.LowStock)
	}
	if delta.OpenTasks != -2 {
		t.Fatalf("OpenTasks delta = %d, want -2", delta.OpenTasks)
	}
	if math.Abs(delta.TotalSpent-2.6) > 1e-9 {
		t.Fatalf("Spent delta = %.2f, want 2.60", delta.TotalSpent)
	}
	if delta.isZero() {
		t.Fatal("delta unexpectedly reported as zero")
	}
	if !diffSummaries(curr, curr).isZero() {
		t.Fatal("identical summaries produced a non-zero delta")
	}
}

func TestPublishEventRingBuffer(t *testing.T) {
	s := New(Config{Interval: 10 * time.Second, EventsBuffer: 2}, &fakeSource{})

	s.publishEvent(Event{ID: 1})
	s.publishEvent(Event{ID: 2})
	s.publishEvent(Event{ID: 3})

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) != 2 {
		t.Fatalf("events len = %d, want 2", len(s.events))
	}
	if s.events[0].ID != 2 || s.events[1].ID != 3 {
		t.Fatalf("events ring contains IDs [%d, %d], want [2, 3]", s.events[0].ID, s.events[1].ID)
	}
}

func TestPollEmitsSnapshotThenDeltas(t *testing.T) {
	src := &fakeSource{}
	src.set(siteSnapshot())
	budget := &fakeBudget{}
	pub := &fakePublisher{}
	s := New(Config{Budget: budget, Publisher: pub}, src)
	ctx := context.Background()

	s.pollOnce(ctx)
	s.pollOnce(ctx) // unchanged: no event

	snap := siteSnapshot()
	snap.Phases[1].Status = model.StatusCompleted
	snap.Tasks[1].Status = model.StatusCompleted
	src.set(snap)
	s.pollOnce(ctx)

	s.mu.RLock()
	events := append([]Event(nil), s.events...)
	polls := s.pollCount
	s.mu.RUnlock()

	if polls != 3 {
		t.Fatalf("pollCount = %d, want 3", polls)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	first, second := events[0], events[1]
	if first.Type != EventSnapshot || first.Summary.Project != "Bhaktapur house" {
		t.Errorf("first event = %+v", first)
	}
	if first.Summary.Progress != 50 || first.Summary.OpenTasks != 1 || first.Summary.LowStock != 1 {
		t.Errorf("first summary = %+v", first.Summary)
	}
	if math.Abs(first.Summary.BudgetPercent-25) > 1e-9 {
		t.Errorf("BudgetPercent = %v, want 25", first.Summary.BudgetPercent)
	}
	if second.Type != EventDelta || second.Delta.Progress != 50 || second.Delta.OpenTasks != -1 {
		t.Errorf("second event = %+v", second)
	}
	if budget.calls != 3 {
		t.Errorf("budget observations = %d, want 3", budget.calls)
	}
	if len(pub.payloads) != 2 {
		t.Errorf("published = %d, want 2", len(pub.payloads))
	}
}

func TestPollErrorIsRecorded(t *testing.T) {
	src := &fakeSource{err: errors.New("api: session expired")}
	s := New(Config{}, src)

	s.pollOnce(context.Background())

	st := s.snapshotStatus()
	if st.LastError != "api: session expired" || st.PollCount != 1 || st.EventCount != 0 {
		t.Fatalf("status = %+v", st)
	}
}

func TestStatusAndDashboardEndpoints(t *testing.T) {
	src := &fakeSource{}
	src.set(siteSnapshot())
	s := New(Config{}, src)
	s.pollOnce(context.Background())
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/dashboard", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("dashboard without user: status %d, want 503", rec.Code)
	}

	src.mu.Lock()
	src.state.User = &model.User{ID: 1, Username: "ram"}
	src.mu.Unlock()

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/dashboard", nil))
	var derived model.Derived
	if err := json.Unmarshal(rec.Body.Bytes(), &derived); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if derived.Stats.TotalPhases != 2 || derived.Budget.TotalSpent != 250000 {
		t.Errorf("derived = %+v", derived.Stats)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	var st Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.User != "ram" || st.PollCount != 1 || st.Summary.TotalPhases != 2 {
		t.Errorf("status = %+v", st)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Body.String() != "ok\n" {
		t.Errorf("healthz = %q", rec.Body.String())
	}
}

func TestStreamSendsCurrentSummary(t *testing.T) {
	src := &fakeSource{}
	src.set(siteSnapshot())
	s := New(Config{}, src)
	s.pollOnce(context.Background())

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(line) != "event: snapshot" {
		t.Fatalf("first line = %q", line)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := &fakeSource{}
	s := New(Config{Addr: "127.0.0.1:0"}, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		src.mu.Lock()
		polled := src.polls > 0
		src.mu.Unlock()
		if polled {
			break
		}
		select {
		case <-deadline:
			t.Fatal("daemon never polled")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
