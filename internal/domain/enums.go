package domain

import "fmt"

type Phase string

const (
	PhasePrep     Phase = "prep"
	PhaseStaffing Phase = "staffing"
	PhasePreShow  Phase = "pre_show"
	PhaseActive   Phase = "active"
	PhasePostShow Phase = "post_show"
	PhaseComplete Phase = "complete"
	PhaseArchived Phase = "archived"
)

var phaseOrder = []Phase{
	PhasePrep,
	PhaseStaffing,
	PhasePreShow,
	PhaseActive,
	PhasePostShow,
	PhaseComplete,
	PhaseArchived,
}

// Phases returns the lifecycle in order.
func Phases() []Phase {
	out := make([]Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if p.Index() < 0 {
		return "", ValidationError{Field: "phase", Reason: fmt.Sprintf("unknown phase %q", s)}
	}
	return p, nil
}

// Index is the position of p in the lifecycle, or -1 if p is not a phase.
func (p Phase) Index() int {
	for i, v := range phaseOrder {
		if v == p {
			return i
		}
	}
	return -1
}

// Next returns the only phase p may advance to.
func (p Phase) Next() (Phase, bool) {
	i := p.Index()
	if i < 0 || i == len(phaseOrder)-1 {
		return "", false
	}
	return phaseOrder[i+1], true
}

func (p Phase) Terminal() bool { return p == PhaseArchived }

func (p Phase) Ptr() *Phase { return &p }

type Category string

const (
	CategoryLocations Category = "locations"
	CategoryRoles     Category = "roles"
	CategoryTeam      Category = "team"
	CategoryTalent    Category = "talent"
)

// Categories returns every readiness category in display order.
func Categories() []Category {
	return []Category{CategoryLocations, CategoryRoles, CategoryTeam, CategoryTalent}
}

func ParseCategory(s string) (Category, error) {
	for _, c := range Categories() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", s)}
}

type CategoryStatus string

const (
	StatusNone       CategoryStatus = "none"
	StatusPartial    CategoryStatus = "partial"
	StatusConfigured CategoryStatus = "configured"
	StatusFinalized  CategoryStatus = "finalized"
)

type OverallStatus string

const (
	OverallGettingStarted  OverallStatus = "getting-started"
	OverallOperational     OverallStatus = "operational"
	OverallProductionReady OverallStatus = "production-ready"
)

type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerAutomatic Trigger = "automatic"
)

func ParseTrigger(s string) (Trigger, error) {
	switch Trigger(s) {
	case TriggerManual, TriggerAutomatic:
		return Trigger(s), nil
	}
	return "", ValidationError{Field: "requested_by", Reason: fmt.Sprintf("must be manual or automatic, got %q", s)}
}

type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeBlocked Outcome = "blocked"
	OutcomeError   Outcome = "error"
)
