package engine

import (
	"context"
	"time"

	"phaseline/internal/domain"
	"phaseline/internal/overrides"
)

// evaluate applies the entry conditions of p's next phase. It never writes
// phase state; refreshing the readiness snapshot is its only side effect.
// explicit is true only for a manual transition call, which is the one
// thing that satisfies complete -> archived.
// On a collaborator failure it returns the data_unavailable evaluation
// together with the error.
func (e Engine) evaluate(ctx context.Context, p domain.Project, trigger domain.Trigger, explicit bool) (Evaluation, error) {
	started := time.Now()
	defer e.Metrics.RecordEvaluation(ctx, started, string(p.Phase))

	ev := Evaluation{ProjectID: p.ID, Phase: p.Phase, Blockers: []domain.Blocker{}}
	next, ok := p.Phase.Next()
	if !ok {
		ev.Blockers = []domain.Blocker{domain.BlockerTerminalPhase}
		return ev, nil
	}
	ev.TargetPhase = next.Ptr()

	cfg, err := e.Configs.Get(ctx, p.ID)
	if err != nil {
		return failClosed(ev), domain.CollaboratorError{Source: "phase configuration", Err: err}
	}
	eff := overrides.Resolve(p, cfg, e.Defaults)

	if trigger == domain.TriggerAutomatic {
		explicit = false
		if !eff.AutoTransitionsEnabled {
			ev.Blockers = []domain.Blocker{domain.BlockerAutomationDisabled}
			return ev, nil
		}
	}

	blockers, err := e.conditions(ctx, p.ID, next, eff, explicit)
	if err != nil {
		return failClosed(ev), err
	}
	ev.Blockers = blockers
	ev.CanTransition = len(blockers) == 0
	return ev, nil
}

func failClosed(ev Evaluation) Evaluation {
	ev.CanTransition = false
	ev.Blockers = []domain.Blocker{domain.BlockerDataUnavailable}
	return ev
}

// conditions returns the unmet entry conditions of next. An empty list
// means the transition is eligible.
func (e Engine) conditions(ctx context.Context, projectID string, next domain.Phase, eff overrides.Effective, explicit bool) ([]domain.Blocker, error) {
	blockers := []domain.Blocker{}
	switch next {
	case domain.PhaseStaffing, domain.PhasePreShow:
		snap, err := e.Readiness.Refresh(ctx, projectID)
		if err != nil {
			return nil, domain.CollaboratorError{Source: "readiness", Err: err}
		}
		required := []domain.Category{domain.CategoryRoles, domain.CategoryLocations}
		if next == domain.PhasePreShow {
			required = []domain.Category{domain.CategoryTeam, domain.CategoryTalent}
		}
		for _, c := range required {
			if snap.Category(c).Status != domain.StatusFinalized {
				blockers = append(blockers, domain.NotFinalizedBlocker(c))
			}
		}

	case domain.PhaseActive:
		if b, ok := e.dateReached(eff, eff.RehearsalStartDate, domain.BlockerRehearsalDateMissing, domain.BlockerRehearsalNotStarted, startOfDay, eff.ActiveGrace); !ok {
			blockers = append(blockers, b)
		}

	case domain.PhasePostShow:
		if b, ok := e.dateReached(eff, eff.ShowEndDate, domain.BlockerShowEndDateMissing, domain.BlockerShowNotEnded, endOfDay, eff.PostShowGrace); !ok {
			blockers = append(blockers, b)
		}

	case domain.PhaseComplete:
		done, err := e.Timecards.AllTimecardsTerminal(ctx, projectID)
		if err != nil {
			return nil, domain.CollaboratorError{Source: "timecards", Err: err}
		}
		if !done {
			blockers = append(blockers, domain.BlockerTimecardsPending)
		}

	case domain.PhaseArchived:
		if !explicit {
			blockers = append(blockers, domain.BlockerManualActionRequired)
		}
	}
	return blockers, nil
}

// dateReached reports whether the project-local boundary of date, shifted by
// grace, has passed. The blocker is meaningful only when ok is false.
func (e Engine) dateReached(eff overrides.Effective, date string, missing, pending domain.Blocker, boundary func(time.Time, *time.Location) time.Time, grace time.Duration) (domain.Blocker, bool) {
	if eff.LocationErr != nil || eff.Location == nil {
		return domain.BlockerInvalidTimezone, false
	}
	if date == "" {
		return missing, false
	}
	day, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return domain.BlockerInvalidDate, false
	}
	if e.now().Before(boundary(day, eff.Location).Add(grace)) {
		return pending, false
	}
	return "", true
}

// startOfDay is local midnight of day in loc.
func startOfDay(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
}

// endOfDay is the first instant after day in loc, i.e. the next local
// midnight. Being at or past it means the day has ended.
func endOfDay(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc)
}
