package domain

// Blocker is a stable, machine-readable reason a transition cannot proceed.
type Blocker string

const (
	BlockerLocationsNotFinalized    Blocker = "locations_not_finalized"
	BlockerRolesNotFinalized        Blocker = "roles_not_finalized"
	BlockerTeamNotFinalized         Blocker = "team_not_finalized"
	BlockerTalentNotFinalized       Blocker = "talent_not_finalized"
	BlockerRehearsalDateMissing     Blocker = "rehearsal_start_date_missing"
	BlockerRehearsalNotStarted      Blocker = "rehearsal_not_started"
	BlockerShowEndDateMissing       Blocker = "show_end_date_missing"
	BlockerShowNotEnded             Blocker = "show_not_ended"
	BlockerInvalidDate              Blocker = "invalid_date"
	BlockerInvalidTimezone          Blocker = "invalid_timezone"
	BlockerTimecardsPending         Blocker = "timecards_not_terminal"
	BlockerManualActionRequired     Blocker = "manual_action_required"
	BlockerAutomationDisabled       Blocker = "automation_disabled"
	BlockerTerminalPhase            Blocker = "terminal_phase"
	BlockerDataUnavailable          Blocker = "data_unavailable"
	BlockerConcurrentTransitionLost Blocker = "concurrent_transition_lost"
)

var blockerDescriptions = map[Blocker]string{
	BlockerLocationsNotFinalized:    "Finalize the project locations",
	BlockerRolesNotFinalized:        "Finalize the project roles",
	BlockerTeamNotFinalized:         "Finalize the team assignments",
	BlockerTalentNotFinalized:       "Finalize the talent roster",
	BlockerRehearsalDateMissing:     "Set the rehearsal start date",
	BlockerRehearsalNotStarted:      "Rehearsals have not started yet in the project timezone",
	BlockerShowEndDateMissing:       "Set the show end date",
	BlockerShowNotEnded:             "The show has not ended yet in the project timezone",
	BlockerInvalidDate:              "A project date is not a valid calendar date",
	BlockerInvalidTimezone:          "The project timezone is not a recognized zone identifier",
	BlockerTimecardsPending:         "Approve or reject every outstanding timecard",
	BlockerManualActionRequired:     "Archiving requires an explicit manual action",
	BlockerAutomationDisabled:       "Automatic transitions are disabled for this project",
	BlockerTerminalPhase:            "The project is archived",
	BlockerDataUnavailable:          "Readiness data could not be read; try again later",
	BlockerConcurrentTransitionLost: "Another transition was applied concurrently; re-evaluate",
}

func (b Blocker) Description() string {
	if d, ok := blockerDescriptions[b]; ok {
		return d
	}
	return string(b)
}

// Category returns the readiness category a blocker refers to, if any.
func (b Blocker) Category() Category {
	switch b {
	case BlockerLocationsNotFinalized:
		return CategoryLocations
	case BlockerRolesNotFinalized:
		return CategoryRoles
	case BlockerTeamNotFinalized:
		return CategoryTeam
	case BlockerTalentNotFinalized:
		return CategoryTalent
	}
	return ""
}

// NotFinalizedBlocker maps a category to its blocker code.
func NotFinalizedBlocker(c Category) Blocker {
	return Blocker(string(c) + "_not_finalized")
}

func (b Blocker) ActionItem() ActionItem {
	return ActionItem{Code: b, Category: b.Category(), Description: b.Description()}
}
