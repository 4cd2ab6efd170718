package repo

import (
	"context"
	"fmt"
	"time"

	"phaseline/internal/domain"
)

// AdvancePhase moves a project from the phase it had when read to next and
// appends rec, in one transaction. The update only matches if the row still
// carries the phase and phase_updated_at that were read; otherwise nothing is
// written and ErrConcurrencyConflict is returned.
func (r Repo) AdvancePhase(ctx context.Context, read domain.Project, next domain.Phase, at time.Time, rec domain.TransitionRecord) (domain.TransitionRecord, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return rec, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE projects SET phase=?, phase_updated_at=?
WHERE id=? AND phase=? AND phase_updated_at=?`,
		string(next), formatTS(at), read.ID, string(read.Phase), formatTS(read.PhaseUpdatedAt))
	if err != nil {
		return rec, fmt.Errorf("update project phase: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return rec, err
	}
	if n == 0 {
		return rec, domain.ErrConcurrencyConflict
	}
	rec, err = r.Audit.AppendTx(ctx, tx, rec)
	if err != nil {
		return rec, err
	}
	if err := tx.Commit(); err != nil {
		return rec, err
	}
	return rec, nil
}
