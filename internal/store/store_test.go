package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/theirongolddev/sitebook/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sitebook.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tok, err := s.Tokens(ctx)
	if err != nil || tok != (model.Tokens{}) {
		t.Fatalf("empty store Tokens() = %+v, %v", tok, err)
	}

	if err := s.SetTokens(ctx, model.Tokens{Access: "a", Refresh: "r"}); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	want := &model.User{ID: 3, Username: "meera", Role: "OWNER"}
	if err := s.SetUser(ctx, want); err != nil {
		t.Fatalf("SetUser: %v", err)
	}

	tok, _ = s.Tokens(ctx)
	if tok.Access != "a" || tok.Refresh != "r" {
		t.Fatalf("Tokens() = %+v", tok)
	}
	got, err := s.User(ctx)
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("user mismatch (-want +got):\n%s", diff)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	tok, _ = s.Tokens(ctx)
	got, _ = s.User(ctx)
	if tok != (model.Tokens{}) || got != nil {
		t.Fatalf("after Clear: %+v %+v", tok, got)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "sitebook.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SetTokens(context.Background(), model.Tokens{Access: "keep"}); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	_ = s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	tok, _ := s.Tokens(context.Background())
	if tok.Access != "keep" {
		t.Fatalf("Access = %q after reopen", tok.Access)
	}
}

func TestSnapshotCache(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, _, ok, err := s.LoadSnapshot(ctx); ok || err != nil {
		t.Fatalf("empty LoadSnapshot ok=%v err=%v", ok, err)
	}

	start, _ := model.ParseDate("2024-01-15")
	snap := model.Empty()
	snap.Project = &model.Project{ID: 1, Name: "Villa", TotalBudget: 2500000, StartDate: start}
	snap.Phases = []model.Phase{{ID: 1, Name: "Foundation", Status: model.StatusCompleted}}
	snap.Expenses = []model.Expense{{ID: 9, Title: "Cement", Amount: 12000.5, Category: 2}}
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := s.SaveSnapshot(ctx, snap, at); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	got, gotAt, ok, err := s.LoadSnapshot(ctx)
	if err != nil || !ok {
		t.Fatalf("LoadSnapshot ok=%v err=%v", ok, err)
	}
	if !gotAt.Equal(at) {
		t.Fatalf("fetchedAt = %v, want %v", gotAt, at)
	}
	if diff := cmp.Diff(snap, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	if err := s.ClearSnapshot(ctx); err != nil {
		t.Fatalf("ClearSnapshot: %v", err)
	}
	if _, _, ok, _ := s.LoadSnapshot(ctx); ok {
		t.Fatal("snapshot still cached after ClearSnapshot")
	}
}

func TestMutationLog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	events := []model.MutationEvent{
		{ID: "m1", Kind: "update_task", EntityID: 4, Outcome: model.OutcomeCommitted, At: model.NewDate(base)},
		{ID: "m2", Kind: "update_phase", EntityID: 2, Outcome: model.OutcomeRolledBack, Error: "api: forbidden", At: model.NewDate(base.Add(time.Minute))},
	}
	for _, ev := range events {
		if err := s.RecordMutation(ctx, ev); err != nil {
			t.Fatalf("RecordMutation: %v", err)
		}
	}

	got, err := s.RecentMutations(ctx, 10)
	if err != nil {
		t.Fatalf("RecentMutations: %v", err)
	}
	want := []model.MutationEvent{events[1], events[0]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("log mismatch (-want +got):\n%s", diff)
	}
}
