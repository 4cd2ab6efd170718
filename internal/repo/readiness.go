package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"phaseline/internal/domain"
)

// ReadinessInputs reads per-category counts and finalize flags in one query.
func (r Repo) ReadinessInputs(ctx context.Context, projectID string) (domain.ReadinessInputs, error) {
	in := domain.ReadinessInputs{ProjectID: projectID}
	var locFin, roleFin, teamFin, talentFin int
	err := r.DB.QueryRowContext(ctx, `SELECT
  (SELECT COUNT(*) FROM project_locations WHERE project_id=?1),
  (SELECT COUNT(*) FROM project_roles WHERE project_id=?1),
  (SELECT COUNT(*) FROM team_assignments WHERE project_id=?1),
  (SELECT COUNT(*) FROM talent_assignments WHERE project_id=?1),
  EXISTS(SELECT 1 FROM readiness_finalizations WHERE project_id=?1 AND category='locations'),
  EXISTS(SELECT 1 FROM readiness_finalizations WHERE project_id=?1 AND category='roles'),
  EXISTS(SELECT 1 FROM readiness_finalizations WHERE project_id=?1 AND category='team'),
  EXISTS(SELECT 1 FROM readiness_finalizations WHERE project_id=?1 AND category='talent')`, projectID).
		Scan(&in.Locations.Count, &in.Roles.Count, &in.Team.Count, &in.Talent.Count, &locFin, &roleFin, &teamFin, &talentFin)
	if err != nil {
		return in, fmt.Errorf("read readiness inputs: %w", err)
	}
	in.Locations.Finalized = locFin != 0
	in.Roles.Finalized = roleFin != 0
	in.Team.Finalized = teamFin != 0
	in.Talent.Finalized = talentFin != 0
	return in, nil
}

// AllTimecardsTerminal reports whether every timecard of the project is
// approved or rejected. A project without timecards has nothing pending.
func (r Repo) AllTimecardsTerminal(ctx context.Context, projectID string) (bool, error) {
	var pending int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM timecards WHERE project_id=? AND status NOT IN ('approved','rejected')`, projectID).Scan(&pending)
	if err != nil {
		return false, fmt.Errorf("read timecard status: %w", err)
	}
	return pending == 0, nil
}

var categoryTables = map[domain.Category]struct{ table, column string }{
	domain.CategoryLocations: {"project_locations", "name"},
	domain.CategoryRoles:     {"project_roles", "name"},
	domain.CategoryTeam:      {"team_assignments", "staff_id"},
	domain.CategoryTalent:    {"talent_assignments", "talent_id"},
}

// RecordCategoryEntry adds one location, role, team assignment or talent
// assignment. These tables belong to the record-keeping side of the
// application; the engine only counts them.
func (r Repo) RecordCategoryEntry(ctx context.Context, projectID string, c domain.Category, ref string) (string, error) {
	t, ok := categoryTables[c]
	if !ok {
		return "", domain.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", c)}
	}
	if ref == "" {
		return "", domain.ValidationError{Field: t.column, Reason: "required"}
	}
	id := uuid.New().String()
	_, err := r.DB.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s(id,project_id,%s,created_at) VALUES (?,?,?,?)`, t.table, t.column),
		id, projectID, ref, formatTS(r.now()))
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", t.table, err)
	}
	return id, nil
}

// FinalizeCategory records the explicit finalize action for a category.
func (r Repo) FinalizeCategory(ctx context.Context, projectID string, c domain.Category, actorID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO readiness_finalizations(project_id,category,finalized_by,finalized_at) VALUES (?,?,?,?)
ON CONFLICT(project_id,category) DO NOTHING`, projectID, string(c), nullable(actorID), formatTS(r.now()))
	return err
}

// ReopenCategory removes a finalize flag.
func (r Repo) ReopenCategory(ctx context.Context, projectID string, c domain.Category) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM readiness_finalizations WHERE project_id=? AND category=?`, projectID, string(c))
	return err
}

func (r Repo) AddTimecard(ctx context.Context, projectID, status string) (string, error) {
	id := uuid.New().String()
	_, err := r.DB.ExecContext(ctx, `INSERT INTO timecards(id,project_id,status,created_at) VALUES (?,?,?,?)`,
		id, projectID, status, formatTS(r.now()))
	if err != nil {
		return "", fmt.Errorf("insert timecard: %w", err)
	}
	return id, nil
}

func (r Repo) SetTimecardStatus(ctx context.Context, id, status string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE timecards SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundError{Kind: "timecard", ID: id}
	}
	return nil
}

// ReplaceSnapshot overwrites the stored snapshot for the project.
func (r Repo) ReplaceSnapshot(ctx context.Context, s domain.ReadinessSnapshot) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO readiness_snapshots(project_id,
  locations_status,locations_count,locations_finalized,
  roles_status,roles_count,roles_finalized,
  team_status,team_count,team_finalized,
  talent_status,talent_count,talent_finalized,
  overall_status,computed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(project_id) DO UPDATE SET
  locations_status=excluded.locations_status, locations_count=excluded.locations_count, locations_finalized=excluded.locations_finalized,
  roles_status=excluded.roles_status, roles_count=excluded.roles_count, roles_finalized=excluded.roles_finalized,
  team_status=excluded.team_status, team_count=excluded.team_count, team_finalized=excluded.team_finalized,
  talent_status=excluded.talent_status, talent_count=excluded.talent_count, talent_finalized=excluded.talent_finalized,
  overall_status=excluded.overall_status, computed_at=excluded.computed_at`,
		s.ProjectID,
		string(s.Locations.Status), s.Locations.Count, boolInt(s.Locations.Finalized),
		string(s.Roles.Status), s.Roles.Count, boolInt(s.Roles.Finalized),
		string(s.Team.Status), s.Team.Count, boolInt(s.Team.Finalized),
		string(s.Talent.Status), s.Talent.Count, boolInt(s.Talent.Finalized),
		string(s.Overall), formatTS(s.ComputedAt))
	if err != nil {
		return fmt.Errorf("replace readiness snapshot: %w", err)
	}
	return nil
}

func (r Repo) GetSnapshot(ctx context.Context, projectID string) (domain.ReadinessSnapshot, error) {
	s := domain.ReadinessSnapshot{ProjectID: projectID}
	var (
		locFin, roleFin, teamFin, talentFin int
		computedAt                          string
	)
	err := r.DB.QueryRowContext(ctx, `SELECT locations_status,locations_count,locations_finalized,
  roles_status,roles_count,roles_finalized,
  team_status,team_count,team_finalized,
  talent_status,talent_count,talent_finalized,
  overall_status,computed_at
FROM readiness_snapshots WHERE project_id=?`, projectID).Scan(
		&s.Locations.Status, &s.Locations.Count, &locFin,
		&s.Roles.Status, &s.Roles.Count, &roleFin,
		&s.Team.Status, &s.Team.Count, &teamFin,
		&s.Talent.Status, &s.Talent.Count, &talentFin,
		&s.Overall, &computedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, domain.NotFoundError{Kind: "readiness snapshot", ID: projectID}
	}
	if err != nil {
		return s, err
	}
	s.Locations.Finalized = locFin != 0
	s.Roles.Finalized = roleFin != 0
	s.Team.Finalized = teamFin != 0
	s.Talent.Finalized = talentFin != 0
	if s.ComputedAt, err = parseTS(computedAt); err != nil {
		return s, err
	}
	return s, nil
}
