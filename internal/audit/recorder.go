// Package audit is the append-only log of phase transition attempts.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"phaseline/internal/domain"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Recorder writes and reads TransitionRecords. It exposes no update or
// delete; the table also rejects them with triggers.
type Recorder struct {
	DB  *sql.DB
	Now func() time.Time
}

func (r Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Append writes rec in its own statement.
func (r Recorder) Append(ctx context.Context, rec domain.TransitionRecord) (domain.TransitionRecord, error) {
	return r.insert(ctx, r.DB, rec)
}

// AppendTx writes rec inside tx so it commits or rolls back with the phase write.
func (r Recorder) AppendTx(ctx context.Context, tx *sql.Tx, rec domain.TransitionRecord) (domain.TransitionRecord, error) {
	return r.insert(ctx, tx, rec)
}

func (r Recorder) insert(ctx context.Context, ex execer, rec domain.TransitionRecord) (domain.TransitionRecord, error) {
	if rec.ProjectID == "" {
		return rec, domain.ValidationError{Field: "project_id", Reason: "required"}
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC()
	}
	if rec.Blockers == nil {
		rec.Blockers = []domain.Blocker{}
	}
	blockers, err := json.Marshal(rec.Blockers)
	if err != nil {
		return rec, fmt.Errorf("marshal blockers: %w", err)
	}
	var to any
	if rec.ToPhase != nil {
		to = string(*rec.ToPhase)
	}
	res, err := ex.ExecContext(ctx, `INSERT INTO transition_records(id,project_id,from_phase,to_phase,triggered_by,actor_id,outcome,blockers_json,message,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.ProjectID, string(rec.FromPhase), to, string(rec.TriggeredBy), nullable(rec.ActorID),
		string(rec.Outcome), string(blockers), nullable(rec.Message), rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return rec, fmt.Errorf("append transition record: %w", err)
	}
	if seq, err := res.LastInsertId(); err == nil {
		rec.Seq = seq
	}
	return rec, nil
}

const selectColumns = `seq,id,project_id,from_phase,to_phase,triggered_by,COALESCE(actor_id,''),outcome,blockers_json,COALESCE(message,''),created_at`

// History returns records for a project, newest first.
func (r Recorder) History(ctx context.Context, projectID string, limit, offset int) ([]domain.TransitionRecord, error) {
	limit = NormalizeLimit(limit)
	if offset < 0 {
		offset = 0
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+selectColumns+` FROM transition_records
WHERE project_id=? ORDER BY seq DESC LIMIT ? OFFSET ?`, projectID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// AppliedAfter returns applied records with seq greater than cursor, oldest first.
func (r Recorder) AppliedAfter(ctx context.Context, cursor int64, limit int) ([]domain.TransitionRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+selectColumns+` FROM transition_records
WHERE seq > ? AND outcome='applied' ORDER BY seq ASC LIMIT ?`, cursor, NormalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// LatestSeq returns the highest sequence written so far, or 0.
func (r Recorder) LatestSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(seq) FROM transition_records`).Scan(&seq); err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

func scanRecords(rows *sql.Rows) ([]domain.TransitionRecord, error) {
	var res []domain.TransitionRecord
	for rows.Next() {
		var (
			rec       domain.TransitionRecord
			to        sql.NullString
			blockers  string
			createdAt string
		)
		if err := rows.Scan(&rec.Seq, &rec.ID, &rec.ProjectID, &rec.FromPhase, &to, &rec.TriggeredBy,
			&rec.ActorID, &rec.Outcome, &blockers, &rec.Message, &createdAt); err != nil {
			return nil, err
		}
		if to.Valid {
			rec.ToPhase = domain.Phase(to.String).Ptr()
		}
		if err := json.Unmarshal([]byte(blockers), &rec.Blockers); err != nil {
			return nil, fmt.Errorf("decode blockers for %s: %w", rec.ID, err)
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("decode created_at for %s: %w", rec.ID, err)
		}
		rec.CreatedAt = ts
		res = append(res, rec)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
