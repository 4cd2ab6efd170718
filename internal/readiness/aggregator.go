// Package readiness turns raw collaborator counts into per-category and
// overall readiness. It knows nothing about phases.
package readiness

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"phaseline/internal/domain"
)

// Source reads the raw counts and finalize flags.
type Source interface {
	ReadinessInputs(ctx context.Context, projectID string) (domain.ReadinessInputs, error)
}

// SnapshotStore persists the derived snapshot.
type SnapshotStore interface {
	ReplaceSnapshot(ctx context.Context, s domain.ReadinessSnapshot) error
}

type Aggregator struct {
	Source Source
	// Store is optional; without it Refresh only computes.
	Store    SnapshotStore
	Minimums map[domain.Category]int
	Now      func() time.Time
	Logger   hclog.Logger
}

func (a Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a Aggregator) logger() hclog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return hclog.NewNullLogger()
}

// Refresh reads the current inputs, derives a snapshot and replaces the
// stored one. Read failures come back as domain.CollaboratorError.
func (a Aggregator) Refresh(ctx context.Context, projectID string) (domain.ReadinessSnapshot, error) {
	in, err := a.Source.ReadinessInputs(ctx, projectID)
	if err != nil {
		return domain.ReadinessSnapshot{}, domain.CollaboratorError{Source: "readiness counts", Err: err}
	}
	in.ProjectID = projectID
	snap := Derive(in, a.Minimums, a.now().UTC())
	if a.Store != nil {
		if err := a.Store.ReplaceSnapshot(ctx, snap); err != nil {
			return snap, fmt.Errorf("store readiness snapshot: %w", err)
		}
	}
	a.logger().Debug("readiness refreshed", "project", projectID, "overall", snap.Overall)
	return snap, nil
}

// Derive is the pure readiness rule.
func Derive(in domain.ReadinessInputs, minimums map[domain.Category]int, at time.Time) domain.ReadinessSnapshot {
	cat := func(c domain.Category) domain.CategoryReadiness {
		ci := in.Category(c)
		return domain.CategoryReadiness{
			Status:    CategoryStatus(ci, minimums[c]),
			Count:     ci.Count,
			Finalized: ci.Finalized,
		}
	}
	s := domain.ReadinessSnapshot{
		ProjectID:  in.ProjectID,
		Locations:  cat(domain.CategoryLocations),
		Roles:      cat(domain.CategoryRoles),
		Team:       cat(domain.CategoryTeam),
		Talent:     cat(domain.CategoryTalent),
		ComputedAt: at,
	}
	s.Overall = Overall(s)
	return s
}

// CategoryStatus applies the per-category rule. Only an explicit finalize
// yields finalized; counts never do. A positive minimum enables configured.
func CategoryStatus(in domain.CategoryInput, minimum int) domain.CategoryStatus {
	switch {
	case in.Finalized:
		return domain.StatusFinalized
	case in.Count <= 0:
		return domain.StatusNone
	case minimum > 0 && in.Count >= minimum:
		return domain.StatusConfigured
	default:
		return domain.StatusPartial
	}
}

// Overall rolls the categories up. production-ready requires every category
// finalized plus at least one team and one talent record.
func Overall(s domain.ReadinessSnapshot) domain.OverallStatus {
	staffed := s.Team.Count > 0 && s.Talent.Count > 0
	if !staffed {
		return domain.OverallGettingStarted
	}
	for _, c := range domain.Categories() {
		if s.Category(c).Status != domain.StatusFinalized {
			return domain.OverallOperational
		}
	}
	return domain.OverallProductionReady
}
