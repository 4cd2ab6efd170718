package server

import (
	"time"

	"phaseline/internal/domain"
	"phaseline/internal/engine"
	"phaseline/internal/scheduler"
)

// Request payloads

type TransitionRequestBody struct {
	RequestedBy string `json:"requested_by" doc:"manual or automatic" example:"manual"`
	ActorID     string `json:"actor_id,omitempty" example:"stage-manager"`
}

// PhaseConfigurationBody replaces a project's overrides. Omitted or null
// fields carry no override; durations use Go syntax such as 90m.
type PhaseConfigurationBody struct {
	Timezone               *string `json:"timezone,omitempty" example:"America/Los_Angeles"`
	RehearsalStartDate     *string `json:"rehearsal_start_date,omitempty" example:"2025-06-01"`
	ShowEndDate            *string `json:"show_end_date,omitempty" example:"2025-06-21"`
	AutoTransitionsEnabled *bool   `json:"auto_transitions_enabled,omitempty"`
	ActiveGrace            *string `json:"active_grace,omitempty" example:"2h"`
	PostShowGrace          *string `json:"post_show_grace,omitempty" example:"0s"`
}

// Response payloads

type PhaseResponse struct {
	ProjectID      string `json:"project_id"`
	Phase          string `json:"phase" example:"pre_show"`
	PhaseUpdatedAt string `json:"phase_updated_at"`
}

type BlockerResponse struct {
	Code        string `json:"code" example:"locations_not_finalized"`
	Category    string `json:"category,omitempty" example:"locations"`
	Description string `json:"description"`
}

type EvaluationResponse struct {
	ProjectID     string            `json:"project_id"`
	Phase         string            `json:"phase"`
	CanTransition bool              `json:"can_transition"`
	TargetPhase   *string           `json:"target_phase"`
	Blockers      []BlockerResponse `json:"blockers"`
}

type TransitionRecordResponse struct {
	Seq         int64             `json:"seq"`
	ID          string            `json:"id"`
	ProjectID   string            `json:"project_id"`
	FromPhase   string            `json:"from_phase"`
	ToPhase     *string           `json:"to_phase"`
	TriggeredBy string            `json:"triggered_by"`
	ActorID     string            `json:"actor_id,omitempty"`
	Outcome     string            `json:"outcome"`
	Blockers    []BlockerResponse `json:"blockers"`
	Message     string            `json:"message,omitempty"`
	CreatedAt   string            `json:"created_at"`
}

type TransitionResponse struct {
	ProjectID string                    `json:"project_id"`
	Applied   bool                      `json:"applied"`
	Phase     string                    `json:"phase"`
	NewPhase  *string                   `json:"new_phase"`
	Blockers  []BlockerResponse         `json:"blockers"`
	Record    *TransitionRecordResponse `json:"record,omitempty"`
}

type ActionItemsResponse struct {
	ProjectID string            `json:"project_id"`
	Items     []BlockerResponse `json:"items"`
}

type HistoryResponse struct {
	Items  []TransitionRecordResponse `json:"items"`
	Limit  int                        `json:"limit"`
	Offset int                        `json:"offset"`
}

type PhaseConfigurationResponse struct {
	ProjectID              string  `json:"project_id"`
	Timezone               *string `json:"timezone"`
	RehearsalStartDate     *string `json:"rehearsal_start_date"`
	ShowEndDate            *string `json:"show_end_date"`
	AutoTransitionsEnabled *bool   `json:"auto_transitions_enabled"`
	ActiveGrace            *string `json:"active_grace"`
	PostShowGrace          *string `json:"post_show_grace"`
	UpdatedAt              string  `json:"updated_at,omitempty"`
}

type CategoryReadinessResponse struct {
	Status    string `json:"status" example:"partial"`
	Count     int    `json:"count"`
	Finalized bool   `json:"finalized"`
}

type ReadinessResponse struct {
	ProjectID  string                    `json:"project_id"`
	Locations  CategoryReadinessResponse `json:"locations"`
	Roles      CategoryReadinessResponse `json:"roles"`
	Team       CategoryReadinessResponse `json:"team"`
	Talent     CategoryReadinessResponse `json:"talent"`
	Overall    string                    `json:"overall" example:"operational"`
	ComputedAt string                    `json:"computed_at"`
}

type TickResultResponse struct {
	ProjectID string   `json:"project_id"`
	Applied   bool     `json:"applied"`
	Phase     string   `json:"phase,omitempty"`
	Blockers  []string `json:"blockers,omitempty"`
	Error     string   `json:"error,omitempty"`
}

type TickResponse struct {
	StartedAt  string               `json:"started_at"`
	FinishedAt string               `json:"finished_at"`
	Visited    int                  `json:"visited"`
	Applied    int                  `json:"applied"`
	Failed     int                  `json:"failed"`
	Results    []TickResultResponse `json:"results"`
	Errors     []string             `json:"errors"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func phasePtr(p *domain.Phase) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}

func blockerResponses(bs []domain.Blocker) []BlockerResponse {
	out := make([]BlockerResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, blockerResponse(b.ActionItem()))
	}
	return out
}

func blockerResponse(item domain.ActionItem) BlockerResponse {
	return BlockerResponse{Code: string(item.Code), Category: string(item.Category), Description: item.Description}
}

func phaseResponse(p domain.Project) PhaseResponse {
	return PhaseResponse{ProjectID: p.ID, Phase: string(p.Phase), PhaseUpdatedAt: formatTime(p.PhaseUpdatedAt)}
}

func evaluationResponse(ev engine.Evaluation) EvaluationResponse {
	return EvaluationResponse{
		ProjectID:     ev.ProjectID,
		Phase:         string(ev.Phase),
		CanTransition: ev.CanTransition,
		TargetPhase:   phasePtr(ev.TargetPhase),
		Blockers:      blockerResponses(ev.Blockers),
	}
}

func recordResponse(rec domain.TransitionRecord) TransitionRecordResponse {
	return TransitionRecordResponse{
		Seq:         rec.Seq,
		ID:          rec.ID,
		ProjectID:   rec.ProjectID,
		FromPhase:   string(rec.FromPhase),
		ToPhase:     phasePtr(rec.ToPhase),
		TriggeredBy: string(rec.TriggeredBy),
		ActorID:     rec.ActorID,
		Outcome:     string(rec.Outcome),
		Blockers:    blockerResponses(rec.Blockers),
		Message:     rec.Message,
		CreatedAt:   formatTime(rec.CreatedAt),
	}
}

func transitionResponse(res engine.TransitionResult) TransitionResponse {
	out := TransitionResponse{
		ProjectID: res.ProjectID,
		Applied:   res.Applied,
		Phase:     string(res.Phase),
		NewPhase:  phasePtr(res.NewPhase),
		Blockers:  blockerResponses(res.Blockers),
	}
	if res.Record != nil {
		rec := recordResponse(*res.Record)
		out.Record = &rec
	}
	return out
}

func mapRecords(items []domain.TransitionRecord) []TransitionRecordResponse {
	out := make([]TransitionRecordResponse, 0, len(items))
	for _, rec := range items {
		out = append(out, recordResponse(rec))
	}
	return out
}

func durationPtr(d *time.Duration) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func configurationResponse(cfg domain.PhaseConfiguration) PhaseConfigurationResponse {
	return PhaseConfigurationResponse{
		ProjectID:              cfg.ProjectID,
		Timezone:               cfg.Timezone,
		RehearsalStartDate:     cfg.RehearsalStartDate,
		ShowEndDate:            cfg.ShowEndDate,
		AutoTransitionsEnabled: cfg.AutoTransitionsEnabled,
		ActiveGrace:            durationPtr(cfg.ActiveGrace),
		PostShowGrace:          durationPtr(cfg.PostShowGrace),
		UpdatedAt:              formatTime(cfg.UpdatedAt),
	}
}

// toConfiguration parses the body; only duration syntax is checked here,
// everything else is validated by the store.
func toConfiguration(projectID string, body PhaseConfigurationBody) (domain.PhaseConfiguration, error) {
	cfg := domain.PhaseConfiguration{
		ProjectID:              projectID,
		Timezone:               body.Timezone,
		RehearsalStartDate:     body.RehearsalStartDate,
		ShowEndDate:            body.ShowEndDate,
		AutoTransitionsEnabled: body.AutoTransitionsEnabled,
	}
	parse := func(field string, raw *string) (*time.Duration, error) {
		if raw == nil {
			return nil, nil
		}
		d, err := time.ParseDuration(*raw)
		if err != nil {
			return nil, domain.ValidationError{Field: field, Reason: "must be a duration such as 90m"}
		}
		return &d, nil
	}
	var err error
	if cfg.ActiveGrace, err = parse("active_grace", body.ActiveGrace); err != nil {
		return cfg, err
	}
	if cfg.PostShowGrace, err = parse("post_show_grace", body.PostShowGrace); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func categoryResponse(c domain.CategoryReadiness) CategoryReadinessResponse {
	return CategoryReadinessResponse{Status: string(c.Status), Count: c.Count, Finalized: c.Finalized}
}

func readinessResponse(s domain.ReadinessSnapshot) ReadinessResponse {
	return ReadinessResponse{
		ProjectID:  s.ProjectID,
		Locations:  categoryResponse(s.Locations),
		Roles:      categoryResponse(s.Roles),
		Team:       categoryResponse(s.Team),
		Talent:     categoryResponse(s.Talent),
		Overall:    string(s.Overall),
		ComputedAt: formatTime(s.ComputedAt),
	}
}

func tickResponse(r scheduler.RunReport) TickResponse {
	out := TickResponse{
		StartedAt:  formatTime(r.StartedAt),
		FinishedAt: formatTime(r.FinishedAt),
		Visited:    r.Visited,
		Applied:    r.Applied,
		Failed:     r.Failed,
		Results:    make([]TickResultResponse, 0, len(r.Results)),
		Errors:     make([]string, 0, len(r.Errors)),
	}
	for _, pr := range r.Results {
		blockers := make([]string, 0, len(pr.Blockers))
		for _, b := range pr.Blockers {
			blockers = append(blockers, string(b))
		}
		out.Results = append(out.Results, TickResultResponse{
			ProjectID: pr.ProjectID,
			Applied:   pr.Applied,
			Phase:     string(pr.Phase),
			Blockers:  blockers,
			Error:     pr.Error,
		})
	}
	for _, err := range r.Errors {
		out.Errors = append(out.Errors, err.Error())
	}
	return out
}
