package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"phaseline/internal/audit"
	"phaseline/internal/domain"
)

// Repo is the SQL implementation of the collaborator contracts the phase
// engine reads from and writes to.
type Repo struct {
	DB    *sql.DB
	Audit audit.Recorder
	Now   func() time.Time
}

func New(db *sql.DB) Repo {
	return Repo{DB: db, Audit: audit.Recorder{DB: db}, Now: time.Now}
}

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

const projectColumns = `id,COALESCE(name,''),phase,phase_updated_at,COALESCE(timezone,''),COALESCE(rehearsal_start_date,''),COALESCE(show_end_date,''),auto_transitions_enabled,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (domain.Project, error) {
	var (
		p         domain.Project
		phase     string
		updatedAt string
		createdAt string
		auto      int
	)
	if err := row.Scan(&p.ID, &p.Name, &phase, &updatedAt, &p.Timezone, &p.RehearsalStartDate, &p.ShowEndDate, &auto, &createdAt); err != nil {
		return p, err
	}
	p.Phase = domain.Phase(phase)
	p.AutoTransitionsEnabled = auto != 0
	var err error
	if p.PhaseUpdatedAt, err = parseTS(updatedAt); err != nil {
		return p, fmt.Errorf("project %s phase_updated_at: %w", p.ID, err)
	}
	if p.CreatedAt, err = parseTS(createdAt); err != nil {
		return p, fmt.Errorf("project %s created_at: %w", p.ID, err)
	}
	return p, nil
}

// InsertProject registers a project. Project setup is owned by an external
// system; this exists for the CLI and tests.
func (r Repo) InsertProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	if strings.TrimSpace(p.ID) == "" {
		return p, domain.ValidationError{Field: "id", Reason: "required"}
	}
	if p.Phase == "" {
		p.Phase = domain.PhasePrep
	}
	if p.Phase.Index() < 0 {
		return p, domain.ValidationError{Field: "phase", Reason: fmt.Sprintf("unknown phase %q", p.Phase)}
	}
	now := r.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.PhaseUpdatedAt.IsZero() {
		p.PhaseUpdatedAt = now
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO projects(id,name,phase,phase_updated_at,timezone,rehearsal_start_date,show_end_date,auto_transitions_enabled,created_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		p.ID, nullable(p.Name), string(p.Phase), formatTS(p.PhaseUpdatedAt), nullable(p.Timezone),
		nullable(p.RehearsalStartDate), nullable(p.ShowEndDate), boolInt(p.AutoTransitionsEnabled), formatTS(p.CreatedAt))
	if err != nil {
		return p, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, domain.NotFoundError{Kind: "project", ID: id}
	}
	return p, err
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ListAutoTransitionProjects returns ids of projects the scheduler should
// visit: automation enabled and not archived.
func (r Repo) ListAutoTransitionProjects(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM projects WHERE auto_transitions_enabled=1 AND phase<>'archived' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ProjectScheduleUpdate changes the non-phase project fields. Nil leaves a
// field untouched; an empty string clears it.
type ProjectScheduleUpdate struct {
	Name                   *string
	Timezone               *string
	RehearsalStartDate     *string
	ShowEndDate            *string
	AutoTransitionsEnabled *bool
}

func (r Repo) UpdateProjectSchedule(ctx context.Context, id string, u ProjectScheduleUpdate) error {
	var (
		fields []string
		args   []any
	)
	set := func(col string, v *string) {
		if v != nil {
			fields = append(fields, col+"=?")
			args = append(args, nullable(*v))
		}
	}
	set("name", u.Name)
	set("timezone", u.Timezone)
	set("rehearsal_start_date", u.RehearsalStartDate)
	set("show_end_date", u.ShowEndDate)
	if u.AutoTransitionsEnabled != nil {
		fields = append(fields, "auto_transitions_enabled=?")
		args = append(args, boolInt(*u.AutoTransitionsEnabled))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundError{Kind: "project", ID: id}
	}
	return nil
}

func formatTS(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
