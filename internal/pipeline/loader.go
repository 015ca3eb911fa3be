package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/theirongolddev/sitebook/internal/api"
	"github.com/theirongolddev/sitebook/internal/logging"
	"github.com/theirongolddev/sitebook/internal/model"
)

// Fetcher is the subset of the API client the loader needs.
type Fetcher interface {
	Dashboard(ctx context.Context) (model.Snapshot, error)
	List(ctx context.Context, res api.Resource, query url.Values, out any) error
}

// ProgressFunc is called as per-resource fetches complete.
// current is the number of resources fetched so far, total is the total count.
type ProgressFunc func(current, total int)

// Loader fetches dashboard snapshots. It uses the combined endpoint and, when
// the backend does not serve it, assembles the snapshot from the individual
// collections with a bounded worker pool.
type Loader struct {
	fetcher  Fetcher
	workers  int
	progress ProgressFunc
	log      *zap.Logger
}

// NewLoader creates a loader. workers <= 0 means GOMAXPROCS.
func NewLoader(f Fetcher, workers int, progress ProgressFunc, logger *zap.Logger) *Loader {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Loader{
		fetcher:  f,
		workers:  workers,
		progress: progress,
		log:      logging.OrNop(logger).Named(logging.ComponentLoader),
	}
}

// Fetch returns a normalized snapshot.
func (l *Loader) Fetch(ctx context.Context) (model.Snapshot, error) {
	snap, err := l.fetcher.Dashboard(ctx)
	if err == nil {
		snap.Normalize()
		return snap, nil
	}
	if !fallbackWorthy(err) {
		return model.Snapshot{}, err
	}

	l.log.Info("combined dashboard unavailable, loading per resource",
		zap.String(logging.FieldOperation, logging.OpLoadSnapshot), zap.Error(err))
	return l.fetchEach(ctx)
}

// fallbackWorthy reports whether the combined endpoint is missing or broken,
// as opposed to the session being invalid.
func fallbackWorthy(err error) bool {
	if errors.Is(err, api.ErrNotFound) {
		return true
	}
	var se *api.StatusError
	return errors.As(err, &se) && se.Code >= http.StatusInternalServerError
}

type part struct {
	res  api.Resource
	dest any
}

func (l *Loader) fetchEach(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	var projects []model.Project

	parts := []part{
		{api.Projects, &projects},
		{api.Rooms, &snap.Rooms},
		{api.Tasks, &snap.Tasks},
		{api.Phases, &snap.Phases},
		{api.Expenses, &snap.Expenses},
		{api.Materials, &snap.Materials},
		{api.Contractors, &snap.Contractors},
		{api.BudgetCategories, &snap.BudgetCategories},
		{api.Suppliers, &snap.Suppliers},
		{api.Floors, &snap.Floors},
		{api.PermitSteps, &snap.PermitSteps},
		{api.FundingSources, &snap.Funding},
		{api.MaterialTransactions, &snap.Transactions},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	var done atomic.Int64

	for _, pt := range parts {
		pt := pt
		g.Go(func() error {
			if err := l.fetcher.List(gctx, pt.res, nil, pt.dest); err != nil {
				return fmt.Errorf("loading %s: %w", pt.res, err)
			}
			n := done.Add(1)
			if l.progress != nil {
				l.progress(int(n), len(parts))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.Snapshot{}, err
	}

	if len(projects) > 0 {
		p := projects[0]
		snap.Project = &p
	}
	snap.Normalize()
	return snap, nil
}
