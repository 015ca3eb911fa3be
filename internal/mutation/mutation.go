// Package mutation applies optimistic updates to the dashboard snapshot:
// patch locally, commit to the backend, then reconcile or roll back.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/theirongolddev/sitebook/internal/api"
	"github.com/theirongolddev/sitebook/internal/logging"
	"github.com/theirongolddev/sitebook/internal/model"
)

// Store is the snapshot holder mutations operate on.
type Store interface {
	Snapshot() model.Snapshot
	SetSnapshot(model.Snapshot)
	RefreshData(ctx context.Context, silent bool) error
	// ExpireSession signs the user out locally after the backend rejected
	// the stored tokens.
	ExpireSession(ctx context.Context, reason error)
}

// Recorder receives every mutation outcome after the fact.
type Recorder interface {
	RecordMutation(ctx context.Context, ev model.MutationEvent) error
}

// Command is one optimistic mutation.
type Command struct {
	Kind     string
	EntityID int64
	// Apply patches a private copy of the snapshot. nil means no optimistic
	// patch: the snapshot only changes through the reconciling refresh.
	Apply func(*model.Snapshot) error
	// Commit performs the network call.
	Commit func(ctx context.Context) error
}

// Runner executes commands against a store.
type Runner struct {
	store     Store
	recorders []Recorder
	log       *zap.Logger
	now       func() time.Time
}

// NewRunner creates a runner. Nil recorders are skipped.
func NewRunner(store Store, logger *zap.Logger, recorders ...Recorder) *Runner {
	r := &Runner{
		store: store,
		log:   logging.OrNop(logger).Named(logging.ComponentMutation),
		now:   time.Now,
	}
	for _, rec := range recorders {
		if rec != nil {
			r.recorders = append(r.recorders, rec)
		}
	}
	return r
}

// Run executes cmd:
//  1. capture the current snapshot,
//  2. apply the patch to a clone and publish it,
//  3. commit,
//  4. on success refresh silently; on failure restore the captured snapshot,
//     and sign out locally when the session has expired.
//
// The returned error wraps the commit error.
func (r *Runner) Run(ctx context.Context, cmd Command) error {
	prev := r.store.Snapshot()

	if cmd.Apply != nil {
		next := prev.Clone()
		if err := cmd.Apply(&next); err != nil {
			return fmt.Errorf("%s %d: %w", cmd.Kind, cmd.EntityID, err)
		}
		r.store.SetSnapshot(next)
	}

	if err := cmd.Commit(ctx); err != nil {
		outcome := model.OutcomeFailed
		if cmd.Apply != nil {
			r.store.SetSnapshot(prev)
			outcome = model.OutcomeRolledBack
		}
		r.log.Error("mutation failed",
			zap.String(logging.FieldOperation, cmd.Kind),
			zap.Int64(logging.FieldEntityID, cmd.EntityID),
			zap.String(logging.FieldOutcome, outcome),
			zap.Error(err))
		r.record(ctx, cmd, outcome, err)
		if errors.Is(err, api.ErrSessionExpired) {
			r.store.ExpireSession(ctx, err)
		}
		return fmt.Errorf("%s %d: %w", cmd.Kind, cmd.EntityID, err)
	}

	r.record(ctx, cmd, model.OutcomeCommitted, nil)
	if err := r.store.RefreshData(ctx, true); err != nil {
		r.log.Warn("reconciling refresh failed",
			zap.String(logging.FieldOperation, cmd.Kind), zap.Error(err))
	}
	return nil
}

func (r *Runner) record(ctx context.Context, cmd Command, outcome string, cause error) {
	if len(r.recorders) == 0 {
		return
	}
	ev := model.MutationEvent{
		ID:       uuid.NewString(),
		Kind:     cmd.Kind,
		EntityID: cmd.EntityID,
		Outcome:  outcome,
		At:       model.NewDate(r.now()),
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	for _, rec := range r.recorders {
		if err := rec.RecordMutation(ctx, ev); err != nil {
			r.log.Warn("recording mutation", zap.String("id", ev.ID), zap.Error(err))
		}
	}
}
