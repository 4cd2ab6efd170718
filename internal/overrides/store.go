// Package overrides validates and stores per-project PhaseConfiguration rows
// and resolves them against project fields and global defaults.
package overrides

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/hashicorp/go-hclog"

	"phaseline/internal/config"
	"phaseline/internal/domain"
)

// Repository is the persistence the store needs.
type Repository interface {
	GetProject(ctx context.Context, id string) (domain.Project, error)
	GetPhaseConfig(ctx context.Context, projectID string) (domain.PhaseConfiguration, error)
	UpsertPhaseConfig(ctx context.Context, cfg domain.PhaseConfiguration) (domain.PhaseConfiguration, error)
}

type Store struct {
	Repo   Repository
	Logger hclog.Logger
}

func (s Store) logger() hclog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return hclog.NewNullLogger()
}

// Get returns the override row for a project, or an empty configuration
// when none was stored.
func (s Store) Get(ctx context.Context, projectID string) (domain.PhaseConfiguration, error) {
	cfg, err := s.Repo.GetPhaseConfig(ctx, projectID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return cfg, err
	}
	if _, err := s.Repo.GetProject(ctx, projectID); err != nil {
		return domain.PhaseConfiguration{}, err
	}
	return domain.PhaseConfiguration{ProjectID: projectID}, nil
}

// Set validates and stores overrides. It does not trigger an evaluation.
func (s Store) Set(ctx context.Context, projectID string, cfg domain.PhaseConfiguration) (domain.PhaseConfiguration, error) {
	cfg.ProjectID = projectID
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	if _, err := s.Repo.GetProject(ctx, projectID); err != nil {
		return cfg, err
	}
	saved, err := s.Repo.UpsertPhaseConfig(ctx, cfg)
	if err != nil {
		return saved, err
	}
	s.logger().Info("phase configuration stored", "project", projectID)
	return saved, nil
}

// Validate checks override values without touching storage.
func Validate(cfg domain.PhaseConfiguration) error {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return domain.ValidationError{Field: "project_id", Reason: "required"}
	}
	if cfg.Timezone != nil {
		if err := ValidateTimezone(*cfg.Timezone); err != nil {
			return err
		}
	}
	if cfg.RehearsalStartDate != nil {
		if _, err := time.Parse(domain.DateLayout, *cfg.RehearsalStartDate); err != nil {
			return domain.ValidationError{Field: "rehearsal_start_date", Reason: "must be a YYYY-MM-DD date"}
		}
	}
	if cfg.ShowEndDate != nil {
		if _, err := time.Parse(domain.DateLayout, *cfg.ShowEndDate); err != nil {
			return domain.ValidationError{Field: "show_end_date", Reason: "must be a YYYY-MM-DD date"}
		}
	}
	if cfg.RehearsalStartDate != nil && cfg.ShowEndDate != nil && *cfg.ShowEndDate < *cfg.RehearsalStartDate {
		return domain.ValidationError{Field: "show_end_date", Reason: "must not precede rehearsal_start_date"}
	}
	if cfg.ActiveGrace != nil && *cfg.ActiveGrace < 0 {
		return domain.ValidationError{Field: "active_grace", Reason: "must be a non-negative duration"}
	}
	if cfg.PostShowGrace != nil && *cfg.PostShowGrace < 0 {
		return domain.ValidationError{Field: "post_show_grace", Reason: "must be a non-negative duration"}
	}
	return nil
}

// ValidateTimezone accepts IANA zone identifiers only.
func ValidateTimezone(tz string) error {
	if strings.TrimSpace(tz) == "" || tz == "Local" {
		return domain.ValidationError{Field: "timezone", Reason: "must be a zone identifier"}
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return domain.ValidationError{Field: "timezone", Reason: fmt.Sprintf("unrecognized zone %q", tz)}
	}
	return nil
}

// Effective is a project's configuration after applying overrides and
// defaults. LocationErr is set when the zone could not be loaded; the engine
// reports that as a blocker.
type Effective struct {
	TimezoneName           string
	Location               *time.Location
	LocationErr            error
	RehearsalStartDate     string
	ShowEndDate            string
	AutoTransitionsEnabled bool
	ActiveGrace            time.Duration
	PostShowGrace          time.Duration
}

// Resolve layers cfg over p over defaults. An override can only switch
// automation off; it never enables what the project disabled.
func Resolve(p domain.Project, cfg domain.PhaseConfiguration, defaults config.PhaseDefaults) Effective {
	eff := Effective{
		TimezoneName:           p.Timezone,
		RehearsalStartDate:     p.RehearsalStartDate,
		ShowEndDate:            p.ShowEndDate,
		AutoTransitionsEnabled: p.AutoTransitionsEnabled,
		ActiveGrace:            defaults.ActiveGrace,
		PostShowGrace:          defaults.PostShowGrace,
	}
	if cfg.Timezone != nil {
		eff.TimezoneName = *cfg.Timezone
	}
	if eff.TimezoneName == "" {
		eff.TimezoneName = defaults.DefaultTimezone
	}
	if eff.TimezoneName == "" {
		eff.TimezoneName = "UTC"
	}
	if eff.TimezoneName == "Local" {
		// "Local" would silently mean the host zone.
		eff.LocationErr = fmt.Errorf("timezone %q is not a zone identifier", eff.TimezoneName)
	} else {
		eff.Location, eff.LocationErr = time.LoadLocation(eff.TimezoneName)
	}
	if cfg.RehearsalStartDate != nil {
		eff.RehearsalStartDate = *cfg.RehearsalStartDate
	}
	if cfg.ShowEndDate != nil {
		eff.ShowEndDate = *cfg.ShowEndDate
	}
	if cfg.AutoTransitionsEnabled != nil && !*cfg.AutoTransitionsEnabled {
		eff.AutoTransitionsEnabled = false
	}
	if cfg.ActiveGrace != nil {
		eff.ActiveGrace = *cfg.ActiveGrace
	}
	if cfg.PostShowGrace != nil {
		eff.PostShowGrace = *cfg.PostShowGrace
	}
	return eff
}
