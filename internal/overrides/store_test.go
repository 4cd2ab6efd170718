package overrides

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phaseline/internal/config"
	"phaseline/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestValidate(t *testing.T) {
	neg := -time.Minute
	cases := []struct {
		name  string
		cfg   domain.PhaseConfiguration
		field string
	}{
		{"missing project", domain.PhaseConfiguration{}, "project_id"},
		{"empty zone", domain.PhaseConfiguration{ProjectID: "p", Timezone: strPtr("")}, "timezone"},
		{"local zone", domain.PhaseConfiguration{ProjectID: "p", Timezone: strPtr("Local")}, "timezone"},
		{"unknown zone", domain.PhaseConfiguration{ProjectID: "p", Timezone: strPtr("Mars/Olympus")}, "timezone"},
		{"bad rehearsal", domain.PhaseConfiguration{ProjectID: "p", RehearsalStartDate: strPtr("2025-02-30")}, "rehearsal_start_date"},
		{"bad show end", domain.PhaseConfiguration{ProjectID: "p", ShowEndDate: strPtr("June 1")}, "show_end_date"},
		{"end before start", domain.PhaseConfiguration{ProjectID: "p", RehearsalStartDate: strPtr("2025-06-10"), ShowEndDate: strPtr("2025-06-01")}, "show_end_date"},
		{"negative grace", domain.PhaseConfiguration{ProjectID: "p", ActiveGrace: &neg}, "active_grace"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.cfg)
			var verr domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	ok := domain.PhaseConfiguration{
		ProjectID:          "p",
		Timezone:           strPtr("Asia/Tokyo"),
		RehearsalStartDate: strPtr("2025-06-01"),
		ShowEndDate:        strPtr("2025-06-01"),
	}
	assert.NoError(t, Validate(ok))
}

func TestResolveLayersOverrides(t *testing.T) {
	defaults := config.PhaseDefaults{DefaultTimezone: "Europe/London", ActiveGrace: time.Hour}
	p := domain.Project{ID: "p", RehearsalStartDate: "2025-06-01", ShowEndDate: "2025-06-20", AutoTransitionsEnabled: true}

	eff := Resolve(p, domain.PhaseConfiguration{}, defaults)
	assert.Equal(t, "Europe/London", eff.TimezoneName)
	require.NoError(t, eff.LocationErr)
	assert.Equal(t, "2025-06-01", eff.RehearsalStartDate)
	assert.Equal(t, time.Hour, eff.ActiveGrace)
	assert.True(t, eff.AutoTransitionsEnabled)

	grace := 30 * time.Minute
	off := false
	eff = Resolve(p, domain.PhaseConfiguration{
		Timezone:               strPtr("America/Chicago"),
		ShowEndDate:            strPtr("2025-06-22"),
		AutoTransitionsEnabled: &off,
		PostShowGrace:          &grace,
	}, defaults)
	assert.Equal(t, "America/Chicago", eff.Location.String())
	assert.Equal(t, "2025-06-22", eff.ShowEndDate)
	assert.False(t, eff.AutoTransitionsEnabled)
	assert.Equal(t, grace, eff.PostShowGrace)
}

func TestResolveNeverEnablesAutomation(t *testing.T) {
	on := true
	eff := Resolve(domain.Project{ID: "p"}, domain.PhaseConfiguration{AutoTransitionsEnabled: &on}, config.PhaseDefaults{})
	assert.False(t, eff.AutoTransitionsEnabled)
	assert.Equal(t, "UTC", eff.TimezoneName)
}

func TestResolveKeepsBadProjectZone(t *testing.T) {
	eff := Resolve(domain.Project{ID: "p", Timezone: "Nowhere/Land"}, domain.PhaseConfiguration{}, config.PhaseDefaults{})
	assert.Error(t, eff.LocationErr)
}

func TestResolveRejectsHostZone(t *testing.T) {
	eff := Resolve(domain.Project{ID: "p", Timezone: "Local"}, domain.PhaseConfiguration{}, config.PhaseDefaults{})
	assert.Error(t, eff.LocationErr)
	assert.Nil(t, eff.Location)

	eff = Resolve(domain.Project{ID: "p"}, domain.PhaseConfiguration{}, config.PhaseDefaults{DefaultTimezone: "Local"})
	assert.Error(t, eff.LocationErr)
}
