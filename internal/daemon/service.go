// Package daemon provides the long-running background dashboard poller.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/theirongolddev/sitebook/internal/logging"
	"github.com/theirongolddev/sitebook/internal/model"
	"github.com/theirongolddev/sitebook/internal/pipeline"
	"github.com/theirongolddev/sitebook/internal/provider"
)

// Source is the session the daemon polls.
type Source interface {
	RefreshData(ctx context.Context, silent bool) error
	Get() provider.State
}

// BudgetObserver receives the budget figures after every successful poll.
type BudgetObserver interface {
	RecordBudget(ctx context.Context, b model.BudgetStats)
}

// DashboardPublisher forwards dashboard changes to an external bus.
type DashboardPublisher interface {
	PublishDashboard(ctx context.Context, summary any) error
}

// Config controls the daemon runtime behavior.
type Config struct {
	Interval     time.Duration
	Addr         string
	EventsBuffer int

	Budget    BudgetObserver
	Publisher DashboardPublisher
	Logger    *zap.Logger
}

// Summary is a compact dashboard state for status/event payloads.
type Summary struct {
	At              time.Time `json:"at"`
	Project         string    `json:"project,omitempty"`
	Progress        int       `json:"progress"`
	CompletedPhases int       `json:"completed_phases"`
	TotalPhases     int       `json:"total_phases"`
	CurrentPhase    string    `json:"current_phase,omitempty"`
	TotalBudget     float64   `json:"total_budget"`
	TotalSpent      float64   `json:"total_spent"`
	BudgetPercent   float64   `json:"budget_percent"`
	TotalFunded     float64   `json:"total_funded"`
	LowStock        int       `json:"low_stock"`
	OpenTasks       int       `json:"open_tasks"`
	Health          string    `json:"health"`
}

// Delta captures summary changes between polls.
type Delta struct {
	Progress        int     `json:"progress"`
	CompletedPhases int     `json:"completed_phases"`
	TotalSpent      float64 `json:"total_spent"`
	TotalFunded     float64 `json:"total_funded"`
	LowStock        int     `json:"low_stock"`
	OpenTasks       int     `json:"open_tasks"`
}

func (d Delta) isZero() bool {
	return d.Progress == 0 &&
		d.CompletedPhases == 0 &&
		d.TotalSpent == 0 &&
		d.TotalFunded == 0 &&
		d.LowStock == 0 &&
		d.OpenTasks == 0
}

// Event types.
const (
	EventSnapshot = "snapshot"
	EventDelta    = "dashboard_delta"
)

// Event is emitted whenever the dashboard summary changes.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Summary   Summary   `json:"summary"`
	Delta     Delta     `json:"delta"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time `json:"started_at"`
	LastPollAt      time.Time `json:"last_poll_at"`
	PollIntervalSec int       `json:"poll_interval_sec"`
	PollCount       int64     `json:"poll_count"`
	User            string    `json:"user,omitempty"`
	Summary         Summary   `json:"summary"`
	LastError       string    `json:"last_error,omitempty"`
	EventCount      int       `json:"event_count"`
	SubscriberCount int       `json:"subscriber_count"`
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg Config
	src Source
	log *zap.Logger
	now func() time.Time

	mu          sync.RWMutex
	startedAt   time.Time
	lastPollAt  time.Time
	pollCount   int64
	lastError   string
	hasSummary  bool
	summary     Summary
	nextEventID int64
	events      []Event

	nextSubID int
	subs      map[int]chan Event
}

// New returns a daemon polling src.
func New(cfg Config, src Source) *Service {
	if cfg.Interval < 2*time.Second {
		cfg.Interval = 30 * time.Second
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}

	return &Service{
		cfg:       cfg,
		src:       src,
		log:       logging.OrNop(cfg.Logger).Named(logging.ComponentDaemon),
		now:       time.Now,
		startedAt: time.Now(),
		subs:      make(map[int]chan Event),
	}
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/dashboard", s.handleDashboard)
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.HandleFunc("/v1/stream", s.handleStream)
	return mux
}

// Run serves the HTTP API and polls until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", zap.String(logging.FieldAddr, s.cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("daemon http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		s.pollOnce(gctx)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				s.pollOnce(gctx)
			}
		}
	})
	return g.Wait()
}

func (s *Service) pollOnce(ctx context.Context) {
	err := s.src.RefreshData(ctx, true)
	now := s.now()
	if err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.lastPollAt = now
		s.pollCount++
		s.mu.Unlock()
		s.log.Warn("poll failed", zap.String(logging.FieldOperation, logging.OpPoll), zap.Error(err))
		return
	}

	st := s.src.Get()
	derived := pipeline.Derive(st.Snapshot, now)
	sum := summarize(st.Snapshot, derived, now)

	var (
		ev      Event
		publish bool
	)

	s.mu.Lock()
	prev := s.summary
	prevExists := s.hasSummary

	s.hasSummary = true
	s.summary = sum
	s.lastPollAt = now
	s.pollCount++
	s.lastError = ""

	if !prevExists {
		s.nextEventID++
		ev = Event{ID: s.nextEventID, Type: EventSnapshot, Timestamp: now, Summary: sum}
		publish = true
	} else if delta := diffSummaries(prev, sum); !delta.isZero() {
		s.nextEventID++
		ev = Event{ID: s.nextEventID, Type: EventDelta, Timestamp: now, Summary: sum, Delta: delta}
		publish = true
	}
	s.mu.Unlock()

	if s.cfg.Budget != nil {
		s.cfg.Budget.RecordBudget(ctx, derived.Budget)
	}
	if publish {
		s.publishEvent(ev)
		if s.cfg.Publisher != nil {
			if err := s.cfg.Publisher.PublishDashboard(ctx, ev); err != nil {
				s.log.Warn("publishing dashboard event", zap.String(logging.FieldOperation, logging.OpPublish), zap.Error(err))
			}
		}
	}
}

func summarize(snap model.Snapshot, d model.Derived, at time.Time) Summary {
	sum := Summary{
		At:              at,
		Progress:        d.Stats.Progress,
		CompletedPhases: d.Stats.CompletedPhases,
		TotalPhases:     d.Stats.TotalPhases,
		CurrentPhase:    d.Stats.CurrentPhase,
		TotalBudget:     d.Budget.TotalBudget,
		TotalSpent:      d.Budget.TotalSpent,
		BudgetPercent:   d.Budget.BudgetPercent,
		TotalFunded:     d.Budget.TotalFunded,
		LowStock:        len(d.Budget.LowStockItems),
		Health:          d.Budget.Health.Status,
	}
	if snap.Project != nil {
		sum.Project = snap.Project.Name
	}
	for _, t := range snap.Tasks {
		if t.Status != model.StatusCompleted {
			sum.OpenTasks++
		}
	}
	return sum
}

func diffSummaries(prev, curr Summary) Delta {
	return Delta{
		Progress:        curr.Progress - prev.Progress,
		CompletedPhases: curr.CompletedPhases - prev.CompletedPhases,
		TotalSpent:      curr.TotalSpent - prev.TotalSpent,
		TotalFunded:     curr.TotalFunded - prev.TotalFunded,
		LowStock:        curr.LowStock - prev.LowStock,
		OpenTasks:       curr.OpenTasks - prev.OpenTasks,
	}
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	var user string
	if u := s.src.Get().User; u != nil {
		user = u.Username
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:       s.startedAt,
		LastPollAt:      s.lastPollAt,
		PollIntervalSec: int(s.cfg.Interval.Seconds()),
		PollCount:       s.pollCount,
		User:            user,
		Summary:         s.summary,
		LastError:       s.lastError,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.snapshotStatus())
}

func (s *Service) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	st := s.src.Get()
	if !st.LoggedIn() {
		http.Error(w, "not logged in", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, pipeline.Derive(st.Snapshot, s.now()))
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	writeJSON(w, events)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	writeSSE(w, Event{
		Type:      EventSnapshot,
		Timestamp: s.now(),
		Summary:   s.snapshotStatus().Summary,
	})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
