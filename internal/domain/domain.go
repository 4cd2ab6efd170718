package domain

import "time"

// DateLayout is the calendar-date format used for zone-less project dates.
const DateLayout = "2006-01-02"

type Project struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name,omitempty"`
	Phase                  Phase     `json:"phase"`
	PhaseUpdatedAt         time.Time `json:"phase_updated_at" format:"date-time"`
	Timezone               string    `json:"timezone,omitempty"`
	RehearsalStartDate     string    `json:"rehearsal_start_date,omitempty" format:"date"`
	ShowEndDate            string    `json:"show_end_date,omitempty" format:"date"`
	AutoTransitionsEnabled bool      `json:"auto_transitions_enabled"`
	CreatedAt              time.Time `json:"created_at" format:"date-time"`
}

// CategoryInput is the raw collaborator signal for one readiness category.
type CategoryInput struct {
	Count     int  `json:"count"`
	Finalized bool `json:"finalized"`
}

// ReadinessInputs holds per-category counts and finalize flags read from the
// collaborator tables.
type ReadinessInputs struct {
	ProjectID string        `json:"project_id"`
	Locations CategoryInput `json:"locations"`
	Roles     CategoryInput `json:"roles"`
	Team      CategoryInput `json:"team"`
	Talent    CategoryInput `json:"talent"`
}

func (in ReadinessInputs) Category(c Category) CategoryInput {
	switch c {
	case CategoryLocations:
		return in.Locations
	case CategoryRoles:
		return in.Roles
	case CategoryTeam:
		return in.Team
	case CategoryTalent:
		return in.Talent
	}
	return CategoryInput{}
}

type CategoryReadiness struct {
	Status    CategoryStatus `json:"status" enum:"none,partial,configured,finalized"`
	Count     int            `json:"count"`
	Finalized bool           `json:"finalized"`
}

// ReadinessSnapshot is derived state; it is always replaced as a whole.
type ReadinessSnapshot struct {
	ProjectID  string            `json:"project_id"`
	Locations  CategoryReadiness `json:"locations"`
	Roles      CategoryReadiness `json:"roles"`
	Team       CategoryReadiness `json:"team"`
	Talent     CategoryReadiness `json:"talent"`
	Overall    OverallStatus     `json:"overall_status" enum:"getting-started,operational,production-ready"`
	ComputedAt time.Time         `json:"computed_at" format:"date-time"`
}

func (s ReadinessSnapshot) Category(c Category) CategoryReadiness {
	switch c {
	case CategoryLocations:
		return s.Locations
	case CategoryRoles:
		return s.Roles
	case CategoryTeam:
		return s.Team
	case CategoryTalent:
		return s.Talent
	}
	return CategoryReadiness{Status: StatusNone}
}

// TransitionRecord is an immutable audit entry. ToPhase is nil when the
// attempt did not move the project.
type TransitionRecord struct {
	Seq         int64     `json:"seq"`
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	FromPhase   Phase     `json:"from_phase"`
	ToPhase     *Phase    `json:"to_phase,omitempty"`
	TriggeredBy Trigger   `json:"triggered_by" enum:"manual,automatic"`
	ActorID     string    `json:"actor_id,omitempty"`
	Outcome     Outcome   `json:"outcome" enum:"applied,blocked,error"`
	Blockers    []Blocker `json:"blockers,omitempty"`
	Message     string    `json:"message,omitempty"`
	CreatedAt   time.Time `json:"created_at" format:"date-time"`
}

// PhaseConfiguration carries optional per-project overrides. A nil field
// means "use the project value or the global default".
type PhaseConfiguration struct {
	ProjectID              string         `json:"project_id"`
	Timezone               *string        `json:"timezone,omitempty"`
	RehearsalStartDate     *string        `json:"rehearsal_start_date,omitempty"`
	ShowEndDate            *string        `json:"show_end_date,omitempty"`
	AutoTransitionsEnabled *bool          `json:"auto_transitions_enabled,omitempty"`
	ActiveGrace            *time.Duration `json:"active_grace,omitempty"`
	PostShowGrace          *time.Duration `json:"post_show_grace,omitempty"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

// ActionItem is an operator-facing rendering of a blocker.
type ActionItem struct {
	Code        Blocker  `json:"code"`
	Category    Category `json:"category,omitempty"`
	Description string   `json:"description"`
}
