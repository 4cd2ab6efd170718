// Package scheduler drives automatic transitions. It owns no business
// rules; each tick fans out engine.Transition calls and collects results.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"phaseline/internal/domain"
	"phaseline/internal/engine"
	"phaseline/internal/telemetry"
)

const defaultWorkers = 4

// Transitioner is the slice of the engine a tick needs.
type Transitioner interface {
	Transition(ctx context.Context, req engine.TransitionRequest) (engine.TransitionResult, error)
}

// Lister enumerates projects eligible for automatic evaluation.
type Lister interface {
	ListAutoTransitionProjects(ctx context.Context) ([]string, error)
}

type Scheduler struct {
	Engine  Transitioner
	Lister  Lister
	Workers int
	// Timeout bounds a whole tick; zero means no bound beyond ctx.
	Timeout time.Duration
	Logger  hclog.Logger
	Metrics telemetry.Instruments
	Now     func() time.Time
}

// ProjectResult is the outcome of one project within a tick.
type ProjectResult struct {
	ProjectID string           `json:"project_id"`
	Applied   bool             `json:"applied"`
	Phase     domain.Phase     `json:"phase,omitempty"`
	Blockers  []domain.Blocker `json:"blockers,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// RunReport summarizes a tick. Errors holds one entry per failed project.
type RunReport struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Visited    int             `json:"visited"`
	Applied    int             `json:"applied"`
	Failed     int             `json:"failed"`
	Results    []ProjectResult `json:"results"`
	Errors     []error         `json:"-"`
}

func (s Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Scheduler) logger() hclog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return hclog.NewNullLogger()
}

// Tick evaluates every eligible project once. A failing project never stops
// the others; its error is collected in the report. The returned error is
// non-nil only when the project list itself could not be read.
func (s Scheduler) Tick(ctx context.Context) (RunReport, error) {
	report := RunReport{StartedAt: s.now().UTC(), Results: []ProjectResult{}}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	ids, err := s.Lister.ListAutoTransitionProjects(ctx)
	if err != nil {
		return report, fmt.Errorf("list auto-transition projects: %w", err)
	}

	workers := s.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var (
		mu      sync.Mutex
		errs    *multierror.Error
		results = make([]ProjectResult, 0, len(ids))
	)
	for _, id := range ids {
		g.Go(func() error {
			pr, err := s.visit(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			results = append(results, pr)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("project %s: %w", id, err))
			}
			// Per-project failures never cancel the group.
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].ProjectID < results[j].ProjectID })
	report.Results = results
	report.Visited = len(results)
	for _, r := range results {
		if r.Applied {
			report.Applied++
		}
	}
	if errs != nil {
		report.Errors = errs.Errors
	}
	report.Failed = len(report.Errors)
	report.FinishedAt = s.now().UTC()

	s.logger().Info("scheduler tick finished", "visited", report.Visited, "applied", report.Applied, "failed", report.Failed,
		"duration", report.FinishedAt.Sub(report.StartedAt))
	if err := errs.ErrorOrNil(); err != nil {
		s.logger().Warn("scheduler tick had failures", "error", err)
	}
	return report, nil
}

// visit runs one project's automatic transition, converting a panic into an
// error so a single bad project cannot take down the tick.
func (s Scheduler) visit(ctx context.Context, id string) (pr ProjectResult, err error) {
	pr = ProjectResult{ProjectID: id}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			pr.Applied = false
			pr.Error = err.Error()
		}
		s.Metrics.RecordSchedulerProject(ctx, err != nil)
	}()
	if err := ctx.Err(); err != nil {
		return pr, err
	}
	res, err := s.Engine.Transition(ctx, engine.TransitionRequest{
		ProjectID:   id,
		RequestedBy: domain.TriggerAutomatic,
		ActorID:     "scheduler",
	})
	pr.Applied = res.Applied
	pr.Phase = res.Phase
	pr.Blockers = res.Blockers
	if errors.Is(err, domain.ErrConcurrencyConflict) {
		s.logger().Debug("automatic transition lost race", "project", id)
	}
	return pr, err
}

// Run ticks every interval until ctx is done.
func (s Scheduler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.logger().Error("scheduler tick failed", "error", err)
			}
		}
	}
}
