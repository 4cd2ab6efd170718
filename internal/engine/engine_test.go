package engine_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phaseline/internal/config"
	"phaseline/internal/db"
	"phaseline/internal/domain"
	"phaseline/internal/engine"
	"phaseline/internal/migrate"
	"phaseline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Repo   repo.Repo
	Ctx    context.Context
	clock  *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	r := repo.New(conn)
	r.Now = func() time.Time { return clock }
	eng := engine.New(r, config.Default(), nil)
	eng.Now = func() time.Time { return clock }
	return testEnv{Engine: eng, Repo: r, Ctx: ctx, clock: &clock}
}

func (env testEnv) setNow(t time.Time) { *env.clock = t }

func (env testEnv) project(t *testing.T, p domain.Project) domain.Project {
	t.Helper()
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	p, err := env.Repo.InsertProject(env.Ctx, p)
	require.NoError(t, err)
	return p
}

func (env testEnv) finalize(t *testing.T, projectID string, cats ...domain.Category) {
	t.Helper()
	for _, c := range cats {
		_, err := env.Repo.RecordCategoryEntry(env.Ctx, projectID, c, "entry-"+string(c))
		require.NoError(t, err)
		require.NoError(t, env.Repo.FinalizeCategory(env.Ctx, projectID, c, "tester"))
	}
}

func (env testEnv) manual(t *testing.T, projectID string) engine.TransitionResult {
	t.Helper()
	res, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{ProjectID: projectID, RequestedBy: domain.TriggerManual, ActorID: "tester"})
	require.NoError(t, err)
	return res
}

func (env testEnv) automatic(t *testing.T, projectID string) engine.TransitionResult {
	t.Helper()
	res, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{ProjectID: projectID, RequestedBy: domain.TriggerAutomatic})
	require.NoError(t, err)
	return res
}

func TestTransitionWalksEveryPhaseInOrder(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, domain.Project{ID: "proj-1", RehearsalStartDate: "2025-06-01", ShowEndDate: "2025-06-03"})
	env.finalize(t, p.ID, domain.Categories()...)
	tc, err := env.Repo.AddTimecard(env.Ctx, p.ID, "submitted")
	require.NoError(t, err)
	require.NoError(t, env.Repo.SetTimecardStatus(env.Ctx, tc, "approved"))

	want := []domain.Phase{
		domain.PhaseStaffing, domain.PhasePreShow, domain.PhaseActive,
		domain.PhasePostShow, domain.PhaseComplete, domain.PhaseArchived,
	}
	for _, next := range want {
		res := env.manual(t, p.ID)
		require.True(t, res.Applied, "to %s: blockers %v", next, res.Blockers)
		require.Equal(t, next, res.Phase)
		require.NotNil(t, res.Record)
		assert.Equal(t, domain.OutcomeApplied, res.Record.Outcome)
	}

	res := env.manual(t, p.ID)
	assert.False(t, res.Applied)
	assert.Equal(t, domain.PhaseArchived, res.Phase)
	assert.Equal(t, []domain.Blocker{domain.BlockerTerminalPhase}, res.Blockers)

	history, err := env.Engine.History(env.Ctx, p.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 7)
	// Newest first; applied records step forward exactly one phase.
	for _, rec := range history[1:] {
		require.NotNil(t, rec.ToPhase)
		assert.Equal(t, rec.FromPhase.Index()+1, rec.ToPhase.Index())
		assert.Equal(t, "tester", rec.ActorID)
	}
}

func TestEvaluateRolesFinalizedLocationsNot(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, domain.Project{ID: "proj-1"})
	env.finalize(t, p.ID, domain.CategoryRoles)
	_, err := env.Repo.RecordCategoryEntry(env.Ctx, p.ID, domain.CategoryLocations, "stage-a")
	require.NoError(t, err)

	ev, err := env.Engine.Evaluate(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, ev.CanTransition)
	require.NotNil(t, ev.TargetPhase)
	assert.Equal(t, domain.PhaseStaffing, *ev.TargetPhase)
	assert.Equal(t, []domain.Blocker{domain.BlockerLocationsNotFinalized}, ev.Blockers)

	items, err := env.Engine.ActionItems(env.Ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.CategoryLocations, items[0].Category)
	assert.NotEmpty(t, items[0].Description)
}

func TestEvaluateDoesNotChangePhase(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, domain.Project{ID: "proj-1"})
	env.finalize(t, p.ID, domain.CategoryRoles, domain.CategoryLocations)

	ev, err := env.Engine.Evaluate(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ev.CanTransition)

	phase, err := env.Engine.GetCurrentPhase(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePrep, phase)
	history, err := env.Engine.History(env.Ctx, p.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestEveryPhaseBlocksWhenNothingIsMet(t *testing.T) {
	env := newTestEnv(t)
	for _, phase := range domain.Phases() {
		if phase.Terminal() {
			continue
		}
		id := "proj-" + string(phase)
		env.project(t, domain.Project{ID: id, Phase: phase})
		if phase == domain.PhasePostShow {
			_, err := env.Repo.AddTimecard(env.Ctx, id, "submitted")
			require.NoError(t, err)
		}
		ev, err := env.Engine.Evaluate(env.Ctx, id)
		require.NoError(t, err)
		assert.False(t, ev.CanTransition, phase)
		assert.NotEmpty(t, ev.Blockers, phase)
	}
}

func TestRehearsalStartUsesProjectTimezone(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, domain.Project{
		ID:                 "proj-la",
		Phase:              domain.PhasePreShow,
		Timezone:           "America/Los_Angeles",
		RehearsalStartDate: "2025-06-01",
	})

	env.setNow(time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC))
	ev, err := env.Engine.Evaluate(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, ev.CanTransition)
	assert.Equal(t, []domain.Blocker{domain.BlockerRehearsalNotStarted}, ev.Blockers)

	env.setNow(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	ev, err = env.Engine.Evaluate(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ev.CanTransition)
	assert.Empty(t, ev.Blockers)
}

func TestShowEndRequiresTheWholeDayToPass(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, domain.Project{ID: "proj-1", Phase: domain.PhaseActive, ShowEndDate: "2025-06-03"})

	env.setNow(time.Date(2025, 6, 3, 23, 59, 59, 0, time.UTC))
	ev, err := env.Engine.Evaluate(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Blocker{domain.BlockerShowNotEnded}, ev.Blockers)

	env.setNow(time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC))
	ev, err = env.Engine.Evaluate(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ev.CanTransition)
}

func TestTemporalBlockers(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		p    domain.Project
		want domain.Blocker
	}{
		{"missing rehearsal", domain.Project{ID: "a", Phase: domain.PhasePreShow}, domain.BlockerRehearsalDateMissing},
		{"missing show end", domain.Project{ID: "b", Phase: domain.PhaseActive}, domain.BlockerShowEndDateMissing},
		{"bad timezone", domain.Project{ID: "c", Phase: domain.PhasePreShow, Timezone: "Mars/Olympus_Mons", RehearsalStartDate: "2025-06-01"}, domain.BlockerInvalidTimezone},
		{"bad date", domain.Project{ID: "d", Phase: domain.PhaseActive, ShowEndDate: "2025-02-30"}, domain.BlockerInvalidDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env.project(t, tc.p)
			ev, err := env.Engine.Evaluate(env.Ctx, tc.p.ID)
			require.NoError(t, err)
			assert.False(t, ev.CanTransition)
			assert.Equal(t, []domain.Blocker{tc.want}, ev.Blockers)
		})
	}
}

func TestInvalidTimezoneOnlyBlocksTemporalTransitions(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, domain.Project{ID: "proj-1", Timezone: "Not/AZone"})
	env.finalize(t, p.ID, domain.CategoryRoles, domain.CategoryLocations)

	res := env.manual(t, p.ID)
	assert.True(t, res.Applied)
	assert.Equal(t, domain.PhaseStaffing, res.Phase)
}

func TestConfigurationOverridesApplyToEvaluation(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, domain.Project{ID: "proj-1", Phase: domain.PhasePreShow, RehearsalStartDate: "2025-06-01"})
	tz := "America/New_York"
	grace := 2 * time.Hour
	_, err := env.Engine.SetConfiguration(env.Ctx, p.ID, domain.PhaseConfiguration{Timezone: &tz, ActiveGrace: &grace})
	require.NoError(t, err)

	// New York midnight is 04:00Z in June; grace pushes eligibility to 06:00Z.
	env.setNow(time.Date(2025, 6, 1, 5, 0, 0, 0, time.UTC))
	ev, err := env.Engine.Evaluate(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Blocker{domain.BlockerRehearsalNotStarted}, ev.Blockers)

	env.setNow(time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC))
	ev, err = env.Engine.Evaluate(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ev.CanTransition)

	cfg, err := env.Engine.GetConfiguration(env.Ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, cfg.Timezone)
	assert.Equal(t, tz, *cfg.Timezone)
}

func TestSetConfigurationRejectsInvalidValues(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, domain.Project{ID: "proj-1"})
	bad := "Nowhere/Special"
	_, err := env.Engine.SetConfiguration(env.Ctx, p.ID, domain.PhaseConfiguration{Timezone: &bad})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.Engine.SetConfiguration(env.Ctx, "missing", domain.PhaseConfiguration{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestArchiveIsNeverAutomatic(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, domain.Project{ID: "proj-1", Phase: domain.PhaseComplete, AutoTransitionsEnabled: true})

	res := env.automatic(t, p.ID)
	assert.False(t, res.Applied)
	assert.Equal(t, []domain.Blocker{domain.BlockerManualActionRequired}, res.Blockers)
	assert.Equal(t, "scheduler", res.Record.ActorID)

	ev, err := env.Engine.Evaluate(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, ev.CanTransition)
	assert.Equal(t, []domain.Blocker{domain.BlockerManualActionRequired}, ev.Blockers)

	res = env.manual(t, p.ID)
	assert.True(t, res.Applied)
	assert.Equal(t, domain.PhaseArchived, res.Phase)
}

func TestAutomaticTransitionsHonorOptOut(t *testing.T) {
	env := newTestEnv(t)
	off := env.project(t, domain.Project{ID: "off"})
	env.finalize(t, off.ID, domain.CategoryRoles, domain.CategoryLocations)

	res := env.automatic(t, off.ID)
	assert.False(t, res.Applied)
	assert.Equal(t, []domain.Blocker{domain.BlockerAutomationDisabled}, res.Blockers)
	assert.True(t, env.manual(t, off.ID).Applied)

	on := env.project(t, domain.Project{ID: "on", AutoTransitionsEnabled: true})
	env.finalize(t, on.ID, domain.CategoryRoles, domain.CategoryLocations)
	disabled := false
	_, err := env.Engine.SetConfiguration(env.Ctx, on.ID, domain.PhaseConfiguration{AutoTransitionsEnabled: &disabled})
	require.NoError(t, err)
	res = env.automatic(t, on.ID)
	assert.Equal(t, []domain.Blocker{domain.BlockerAutomationDisabled}, res.Blockers)
}

func TestBlockedTransitionIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, domain.Project{ID: "proj-1"})

	first := env.manual(t, p.ID)
	second := env.manual(t, p.ID)
	assert.False(t, first.Applied)
	assert.False(t, second.Applied)
	assert.Equal(t, first.Blockers, second.Blockers)
	assert.Equal(t, []domain.Blocker{domain.BlockerRolesNotFinalized, domain.BlockerLocationsNotFinalized}, first.Blockers)

	phase, err := env.Engine.GetCurrentPhase(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePrep, phase)

	history, err := env.Engine.History(env.Ctx, p.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, rec := range history {
		assert.Equal(t, domain.OutcomeBlocked, rec.Outcome)
		assert.Nil(t, rec.ToPhase)
	}
}

func TestRepeatedEligibleTransitionAdvancesOnce(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, domain.Project{ID: "proj-1"})
	env.finalize(t, p.ID, domain.CategoryRoles, domain.CategoryLocations)

	first := env.manual(t, p.ID)
	second := env.manual(t, p.ID)
	require.True(t, first.Applied)
	assert.Equal(t, domain.PhaseStaffing, first.Phase)
	assert.False(t, second.Applied)
	assert.Equal(t, domain.PhaseStaffing, second.Phase)
	assert.ElementsMatch(t, []domain.Blocker{domain.BlockerTeamNotFinalized, domain.BlockerTalentNotFinalized}, second.Blockers)

	phase, err := env.Engine.GetCurrentPhase(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseStaffing, phase)
}

func TestBackToBackTransitionsNeverSkipAPhase(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, domain.Project{ID: "proj-1"})
	env.finalize(t, p.ID, domain.Categories()...)

	var phases []domain.Phase
	for i := 0; i < 3; i++ {
		phases = append(phases, env.manual(t, p.ID).Phase)
	}
	assert.Equal(t, []domain.Phase{domain.PhaseStaffing, domain.PhasePreShow, domain.PhasePreShow}, phases)

	history, err := env.Engine.History(env.Ctx, p.ID, 0, 0)
	require.NoError(t, err)
	for _, rec := range history {
		if rec.Outcome != domain.OutcomeApplied {
			continue
		}
		require.NotNil(t, rec.ToPhase)
		next, ok := rec.FromPhase.Next()
		require.True(t, ok)
		assert.Equal(t, next, *rec.ToPhase)
	}
}

func TestHostZoneIsAnInvalidProjectZone(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, domain.Project{ID: "proj-1", Phase: domain.PhasePreShow, Timezone: "Local", RehearsalStartDate: "2025-06-01"})
	env.setNow(time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC))

	ev, err := env.Engine.Evaluate(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, ev.CanTransition)
	assert.Equal(t, []domain.Blocker{domain.BlockerInvalidTimezone}, ev.Blockers)
}

func TestTransitionErrors(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{ProjectID: "missing", RequestedBy: domain.TriggerManual})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	env.project(t, domain.Project{ID: "proj-1"})
	_, err = env.Engine.Transition(env.Ctx, engine.TransitionRequest{ProjectID: "proj-1", RequestedBy: "cron"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.Engine.Evaluate(env.Ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// barrierReader holds the first two project reads until both happened, so
// two transitions evaluate the same state before either writes.
type barrierReader struct {
	inner engine.ProjectReader
	calls atomic.Int32
	wg    *sync.WaitGroup
}

func (b *barrierReader) GetProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := b.inner.GetProject(ctx, id)
	if b.calls.Add(1) <= 2 {
		b.wg.Done()
		b.wg.Wait()
	}
	return p, err
}

func TestConcurrentTransitionsApplyOnce(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, domain.Project{ID: "proj-1", AutoTransitionsEnabled: true})
	env.finalize(t, p.ID, domain.CategoryRoles, domain.CategoryLocations)

	var wg sync.WaitGroup
	wg.Add(2)
	eng := env.Engine
	eng.Projects = &barrierReader{inner: env.Repo, wg: &wg}

	triggers := []domain.Trigger{domain.TriggerManual, domain.TriggerAutomatic}
	results := make([]engine.TransitionResult, 2)
	errs := make([]error, 2)
	var done sync.WaitGroup
	for i := range triggers {
		done.Add(1)
		go func(i int) {
			defer done.Done()
			results[i], errs[i] = eng.Transition(env.Ctx, engine.TransitionRequest{ProjectID: p.ID, RequestedBy: triggers[i]})
		}(i)
	}
	done.Wait()

	applied, lost := 0, 0
	for i, res := range results {
		if res.Applied {
			applied++
			assert.NoError(t, errs[i])
			continue
		}
		lost++
		assert.ErrorIs(t, errs[i], domain.ErrConcurrencyConflict)
		assert.Equal(t, []domain.Blocker{domain.BlockerConcurrentTransitionLost}, res.Blockers)
		assert.Equal(t, domain.PhaseStaffing, res.Phase)
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, lost)

	phase, err := env.Engine.GetCurrentPhase(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseStaffing, phase)

	history, err := env.Engine.History(env.Ctx, p.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	outcomes := []domain.Outcome{history[0].Outcome, history[1].Outcome}
	assert.ElementsMatch(t, []domain.Outcome{domain.OutcomeApplied, domain.OutcomeBlocked}, outcomes)
}

func TestReadinessRefreshStoresSnapshot(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, domain.Project{ID: "proj-1"})
	env.finalize(t, p.ID, domain.Categories()...)

	snap, err := env.Engine.RefreshReadiness(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OverallProductionReady, snap.Overall)

	stored, err := env.Repo.GetSnapshot(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.Overall, stored.Overall)
	assert.Equal(t, domain.StatusFinalized, stored.Talent.Status)
}
