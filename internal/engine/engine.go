package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"phaseline/internal/config"
	"phaseline/internal/domain"
	"phaseline/internal/overrides"
	"phaseline/internal/readiness"
	"phaseline/internal/repo"
	"phaseline/internal/telemetry"
)

// ProjectReader reads the project record.
type ProjectReader interface {
	GetProject(ctx context.Context, id string) (domain.Project, error)
}

// ReadinessProvider recomputes a project's readiness snapshot on demand.
type ReadinessProvider interface {
	Refresh(ctx context.Context, projectID string) (domain.ReadinessSnapshot, error)
}

// TimecardSignal answers whether all timecards of a project are terminal.
type TimecardSignal interface {
	AllTimecardsTerminal(ctx context.Context, projectID string) (bool, error)
}

// PhaseWriter performs the conditional phase update together with the
// audit append. It returns domain.ErrConcurrencyConflict when the project
// changed since read.
type PhaseWriter interface {
	AdvancePhase(ctx context.Context, read domain.Project, next domain.Phase, at time.Time, rec domain.TransitionRecord) (domain.TransitionRecord, error)
}

// AuditLog appends and pages TransitionRecords.
type AuditLog interface {
	Append(ctx context.Context, rec domain.TransitionRecord) (domain.TransitionRecord, error)
	History(ctx context.Context, projectID string, limit, offset int) ([]domain.TransitionRecord, error)
}

// ConfigurationStore reads and writes PhaseConfiguration overrides.
type ConfigurationStore interface {
	Get(ctx context.Context, projectID string) (domain.PhaseConfiguration, error)
	Set(ctx context.Context, projectID string, cfg domain.PhaseConfiguration) (domain.PhaseConfiguration, error)
}

// Engine decides which phase a project is in, whether it may advance and
// what blocks it. It holds no state between calls.
type Engine struct {
	Projects  ProjectReader
	Readiness ReadinessProvider
	Timecards TimecardSignal
	Writer    PhaseWriter
	Audit     AuditLog
	Configs   ConfigurationStore
	Defaults  config.PhaseDefaults
	Logger    hclog.Logger
	Metrics   telemetry.Instruments
	Now       func() time.Time
}

// New wires an Engine to the SQL-backed collaborators.
func New(r repo.Repo, cfg *config.Config, logger hclog.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	minimums := map[domain.Category]int{}
	for _, c := range domain.Categories() {
		if m := cfg.Readiness.Minimum(string(c)); m > 0 {
			minimums[c] = m
		}
	}
	return Engine{
		Projects: r,
		Readiness: readiness.Aggregator{
			Source:   r,
			Store:    r,
			Minimums: minimums,
			Logger:   logger.Named("readiness"),
		},
		Timecards: r,
		Writer:    r,
		Audit:     r.Audit,
		Configs:   overrides.Store{Repo: r, Logger: logger.Named("overrides")},
		Defaults:  cfg.Phases,
		Logger:    logger.Named("engine"),
		Metrics:   telemetry.NewInstruments(telemetry.Meter()),
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() hclog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return hclog.NewNullLogger()
}

// Evaluation is the side-effect-free answer to "may this project advance?".
type Evaluation struct {
	ProjectID     string           `json:"project_id"`
	Phase         domain.Phase     `json:"phase"`
	CanTransition bool             `json:"can_transition"`
	TargetPhase   *domain.Phase    `json:"target_phase,omitempty"`
	Blockers      []domain.Blocker `json:"blockers"`
}

// TransitionRequest names the project and who asked for the transition.
type TransitionRequest struct {
	ProjectID   string
	RequestedBy domain.Trigger
	ActorID     string
}

// TransitionResult reports what a transition call did. Phase is the
// project's phase after the call.
type TransitionResult struct {
	ProjectID string                   `json:"project_id"`
	Applied   bool                     `json:"applied"`
	Phase     domain.Phase             `json:"phase"`
	NewPhase  *domain.Phase            `json:"new_phase,omitempty"`
	Blockers  []domain.Blocker         `json:"blockers"`
	Record    *domain.TransitionRecord `json:"record,omitempty"`
}

// GetCurrentPhase returns the stored phase.
func (e Engine) GetCurrentPhase(ctx context.Context, projectID string) (domain.Phase, error) {
	p, err := e.Projects.GetProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	return p.Phase, nil
}

// Evaluate computes whether the next phase's entry conditions hold. It is a
// preview: complete -> archived always reports manual_action_required since
// only a manual Transition call satisfies it. Collaborator failures fail
// closed with a data_unavailable blocker instead of an error.
func (e Engine) Evaluate(ctx context.Context, projectID string) (Evaluation, error) {
	p, err := e.Projects.GetProject(ctx, projectID)
	if err != nil {
		return Evaluation{}, err
	}
	ev, err := e.evaluate(ctx, p, domain.TriggerManual, false)
	if err != nil {
		e.logger().Warn("evaluation failed closed", "project", projectID, "error", err)
	}
	return ev, nil
}

// ActionItems renders the current blockers for operators.
func (e Engine) ActionItems(ctx context.Context, projectID string) ([]domain.ActionItem, error) {
	ev, err := e.Evaluate(ctx, projectID)
	if err != nil {
		return nil, err
	}
	items := make([]domain.ActionItem, 0, len(ev.Blockers))
	for _, b := range ev.Blockers {
		items = append(items, b.ActionItem())
	}
	return items, nil
}

// Transition re-evaluates and, when eligible, advances the project exactly
// one phase with a conditional write. The phase write and its audit record
// commit together or not at all.
//
// A lost race returns a result with the concurrent_transition_lost blocker
// and domain.ErrConcurrencyConflict. A collaborator failure returns a result
// with the data_unavailable blocker and an error matching
// domain.ErrCollaboratorUnavailable. Blocked transitions are not errors.
func (e Engine) Transition(ctx context.Context, req TransitionRequest) (TransitionResult, error) {
	trigger, err := domain.ParseTrigger(string(req.RequestedBy))
	if err != nil {
		return TransitionResult{}, err
	}
	p, err := e.Projects.GetProject(ctx, req.ProjectID)
	if err != nil {
		return TransitionResult{}, err
	}
	res := TransitionResult{ProjectID: p.ID, Phase: p.Phase}
	actor := req.ActorID
	if actor == "" && trigger == domain.TriggerAutomatic {
		actor = "scheduler"
	}
	rec := domain.TransitionRecord{
		ProjectID:   p.ID,
		FromPhase:   p.Phase,
		TriggeredBy: trigger,
		ActorID:     actor,
	}

	ev, evalErr := e.evaluate(ctx, p, trigger, trigger == domain.TriggerManual)
	res.Blockers = ev.Blockers
	if evalErr != nil {
		rec.Outcome = domain.OutcomeError
		rec.Blockers = ev.Blockers
		rec.Message = evalErr.Error()
		e.logger().Warn("transition evaluation failed closed", "project", p.ID, "trigger", trigger, "error", evalErr)
		e.Metrics.RecordTransition(ctx, string(trigger), string(rec.Outcome), "")
		saved, auditErr := e.Audit.Append(ctx, rec)
		if auditErr != nil {
			return res, multierror.Append(evalErr, fmt.Errorf("audit: %w", auditErr))
		}
		res.Record = &saved
		return res, evalErr
	}

	if !ev.CanTransition {
		rec.Outcome = domain.OutcomeBlocked
		rec.Blockers = ev.Blockers
		saved, err := e.Audit.Append(ctx, rec)
		if err != nil {
			return res, err
		}
		e.Metrics.RecordTransition(ctx, string(trigger), string(rec.Outcome), "")
		e.logger().Debug("transition blocked", "project", p.ID, "phase", p.Phase, "trigger", trigger, "blockers", ev.Blockers)
		res.Record = &saved
		return res, nil
	}

	target := *ev.TargetPhase
	rec.ToPhase = target.Ptr()
	rec.Outcome = domain.OutcomeApplied
	saved, err := e.Writer.AdvancePhase(ctx, p, target, e.now().UTC(), rec)
	if errors.Is(err, domain.ErrConcurrencyConflict) {
		return e.lostRace(ctx, p, trigger, actor)
	}
	if err != nil {
		e.logger().Error("phase write failed", "project", p.ID, "to", target, "error", err)
		return res, fmt.Errorf("advance %s to %s: %w", p.ID, target, err)
	}
	e.Metrics.RecordTransition(ctx, string(trigger), string(rec.Outcome), string(target))
	e.logger().Info("phase advanced", "project", p.ID, "from", p.Phase, "to", target, "trigger", trigger, "actor", actor)
	res.Applied = true
	res.Phase = target
	res.NewPhase = target.Ptr()
	res.Blockers = []domain.Blocker{}
	res.Record = &saved
	return res, nil
}

// lostRace re-reads the now-current phase and reports the no-op. It does
// not retry; the next tick or manual call evaluates from the new state.
func (e Engine) lostRace(ctx context.Context, read domain.Project, trigger domain.Trigger, actor string) (TransitionResult, error) {
	blockers := []domain.Blocker{domain.BlockerConcurrentTransitionLost}
	res := TransitionResult{ProjectID: read.ID, Phase: read.Phase, Blockers: blockers}
	if current, err := e.Projects.GetProject(ctx, read.ID); err == nil {
		res.Phase = current.Phase
	}
	e.logger().Warn("transition lost a concurrent race", "project", read.ID, "read_phase", read.Phase, "current_phase", res.Phase, "trigger", trigger)
	e.Metrics.RecordTransition(ctx, string(trigger), string(domain.OutcomeBlocked), "")
	saved, err := e.Audit.Append(ctx, domain.TransitionRecord{
		ProjectID:   read.ID,
		FromPhase:   read.Phase,
		TriggeredBy: trigger,
		ActorID:     actor,
		Outcome:     domain.OutcomeBlocked,
		Blockers:    blockers,
	})
	if err != nil {
		return res, multierror.Append(domain.ErrConcurrencyConflict, fmt.Errorf("audit: %w", err))
	}
	res.Record = &saved
	return res, domain.ErrConcurrencyConflict
}

// History pages the audit trail newest first.
func (e Engine) History(ctx context.Context, projectID string, limit, offset int) ([]domain.TransitionRecord, error) {
	if _, err := e.Projects.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return e.Audit.History(ctx, projectID, limit, offset)
}

// SetConfiguration validates and stores overrides without evaluating.
func (e Engine) SetConfiguration(ctx context.Context, projectID string, cfg domain.PhaseConfiguration) (domain.PhaseConfiguration, error) {
	return e.Configs.Set(ctx, projectID, cfg)
}

func (e Engine) GetConfiguration(ctx context.Context, projectID string) (domain.PhaseConfiguration, error) {
	return e.Configs.Get(ctx, projectID)
}

// RefreshReadiness recomputes and returns the project's readiness snapshot.
func (e Engine) RefreshReadiness(ctx context.Context, projectID string) (domain.ReadinessSnapshot, error) {
	if _, err := e.Projects.GetProject(ctx, projectID); err != nil {
		return domain.ReadinessSnapshot{}, err
	}
	return e.Readiness.Refresh(ctx, projectID)
}
