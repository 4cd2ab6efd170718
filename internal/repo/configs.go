package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"phaseline/internal/domain"
)

// UpsertPhaseConfig stores the override row for a project. Validation is
// the caller's job.
func (r Repo) UpsertPhaseConfig(ctx context.Context, cfg domain.PhaseConfiguration) (domain.PhaseConfiguration, error) {
	if cfg.ProjectID == "" {
		return cfg, domain.ValidationError{Field: "project_id", Reason: "required"}
	}
	cfg.UpdatedAt = r.now().UTC()
	payload, err := json.Marshal(cfg)
	if err != nil {
		return cfg, err
	}
	now := formatTS(cfg.UpdatedAt)
	_, err = r.DB.ExecContext(ctx, `INSERT INTO phase_configs(project_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(project_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`,
		cfg.ProjectID, string(payload), now, now)
	if err != nil {
		return cfg, fmt.Errorf("upsert phase config: %w", err)
	}
	return cfg, nil
}

// GetPhaseConfig returns the stored override row or a NotFoundError.
func (r Repo) GetPhaseConfig(ctx context.Context, projectID string) (domain.PhaseConfiguration, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM phase_configs WHERE project_id=?`, projectID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PhaseConfiguration{}, domain.NotFoundError{Kind: "phase configuration", ID: projectID}
	}
	if err != nil {
		return domain.PhaseConfiguration{}, err
	}
	var cfg domain.PhaseConfiguration
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return cfg, fmt.Errorf("decode phase config %s: %w", projectID, err)
	}
	cfg.ProjectID = projectID
	return cfg, nil
}
