package mutation

import (
	"context"
	"slices"
	"strings"

	"github.com/theirongolddev/sitebook/internal/api"
	"github.com/theirongolddev/sitebook/internal/model"
)

// Mutation kinds, used in logs and the audit trail.
const (
	KindUpdatePhase        = "update_phase"
	KindUpdateTask         = "update_task"
	KindUpdatePermitStatus = "update_permit_status"
)

// Backend is the subset of the API client mutations commit through.
type Backend interface {
	Update(ctx context.Context, res api.Resource, id int64, patch, out any) error
	Replace(ctx context.Context, res api.Resource, id int64, payload, out any) error
}

// Service exposes the domain mutations.
type Service struct {
	runner  *Runner
	backend Backend
}

// NewService binds a runner to a backend.
func NewService(runner *Runner, backend Backend) *Service {
	return &Service{runner: runner, backend: backend}
}

// UpdatePhase patches a phase locally, then PATCHes it on the backend.
func (s *Service) UpdatePhase(ctx context.Context, id int64, patch map[string]any) error {
	if st, ok := patch["status"].(string); ok {
		if err := checkStatus(st, model.PhaseStatuses); err != nil {
			return err
		}
	}
	return s.runner.Run(ctx, Command{
		Kind:     KindUpdatePhase,
		EntityID: id,
		Apply: func(snap *model.Snapshot) error {
			return mergeByID(snap.Phases, id, func(p model.Phase) int64 { return p.ID }, patch)
		},
		Commit: func(ctx context.Context) error {
			return s.backend.Update(ctx, api.Phases, id, patch, nil)
		},
	})
}

// UpdatePhaseStatus is UpdatePhase with a single status field.
func (s *Service) UpdatePhaseStatus(ctx context.Context, id int64, status string) error {
	return s.UpdatePhase(ctx, id, map[string]any{"status": normalizeStatus(status)})
}

// UpdateTask patches a task locally, then PATCHes it on the backend.
func (s *Service) UpdateTask(ctx context.Context, id int64, patch map[string]any) error {
	if st, ok := patch["status"].(string); ok {
		if err := checkStatus(st, model.TaskStatuses); err != nil {
			return err
		}
	}
	return s.runner.Run(ctx, Command{
		Kind:     KindUpdateTask,
		EntityID: id,
		Apply: func(snap *model.Snapshot) error {
			return mergeByID(snap.Tasks, id, func(t model.Task) int64 { return t.ID }, patch)
		},
		Commit: func(ctx context.Context) error {
			return s.backend.Update(ctx, api.Tasks, id, patch, nil)
		},
	})
}

// UpdateTaskStatus is UpdateTask with a single status field.
func (s *Service) UpdateTaskStatus(ctx context.Context, id int64, status string) error {
	return s.UpdateTask(ctx, id, map[string]any{"status": normalizeStatus(status)})
}

// UpdatePermitStatus replaces a permit step's status. There is no local patch;
// the change shows up after the reconciling refresh.
func (s *Service) UpdatePermitStatus(ctx context.Context, id int64, status string) error {
	status = normalizeStatus(status)
	if err := checkStatus(status, model.PermitStatuses); err != nil {
		return err
	}
	return s.runner.Run(ctx, Command{
		Kind:     KindUpdatePermitStatus,
		EntityID: id,
		Commit: func(ctx context.Context) error {
			return s.backend.Replace(ctx, api.PermitSteps, id, map[string]any{"status": status}, nil)
		},
	})
}

// normalizeStatus accepts "in progress", "in-progress" and "IN_PROGRESS".
func normalizeStatus(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func checkStatus(status string, allowed []string) error {
	if slices.Contains(allowed, status) {
		return nil
	}
	return &api.ValidationError{
		Field:   "status",
		Message: status + " is not one of " + strings.Join(allowed, ", "),
	}
}
