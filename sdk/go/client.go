package phaselinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Phaseline HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, e.g. http://localhost:8080/v1.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type Phase struct {
	ProjectID      string `json:"project_id"`
	Phase          string `json:"phase"`
	PhaseUpdatedAt string `json:"phase_updated_at"`
}

// Blocker is an unmet condition with a human-readable action.
type Blocker struct {
	Code        string `json:"code"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description"`
}

type Evaluation struct {
	ProjectID     string    `json:"project_id"`
	Phase         string    `json:"phase"`
	CanTransition bool      `json:"can_transition"`
	TargetPhase   *string   `json:"target_phase"`
	Blockers      []Blocker `json:"blockers"`
}

// TransitionRecord is one entry of a project's phase history.
type TransitionRecord struct {
	Seq         int64     `json:"seq"`
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	FromPhase   string    `json:"from_phase"`
	ToPhase     *string   `json:"to_phase"`
	TriggeredBy string    `json:"triggered_by"`
	ActorID     string    `json:"actor_id,omitempty"`
	Outcome     string    `json:"outcome"`
	Blockers    []Blocker `json:"blockers"`
	Message     string    `json:"message,omitempty"`
	CreatedAt   string    `json:"created_at"`
}

type Transition struct {
	ProjectID string            `json:"project_id"`
	Applied   bool              `json:"applied"`
	Phase     string            `json:"phase"`
	NewPhase  *string           `json:"new_phase"`
	Blockers  []Blocker         `json:"blockers"`
	Record    *TransitionRecord `json:"record,omitempty"`
}

// PhaseConfiguration holds per-project overrides. Nil fields carry no
// override. Durations use Go syntax such as 90m.
type PhaseConfiguration struct {
	ProjectID              string  `json:"project_id,omitempty"`
	Timezone               *string `json:"timezone,omitempty"`
	RehearsalStartDate     *string `json:"rehearsal_start_date,omitempty"`
	ShowEndDate            *string `json:"show_end_date,omitempty"`
	AutoTransitionsEnabled *bool   `json:"auto_transitions_enabled,omitempty"`
	ActiveGrace            *string `json:"active_grace,omitempty"`
	PostShowGrace          *string `json:"post_show_grace,omitempty"`
	UpdatedAt              string  `json:"updated_at,omitempty"`
}

type CategoryReadiness struct {
	Status    string `json:"status"`
	Count     int    `json:"count"`
	Finalized bool   `json:"finalized"`
}

type Readiness struct {
	ProjectID  string            `json:"project_id"`
	Locations  CategoryReadiness `json:"locations"`
	Roles      CategoryReadiness `json:"roles"`
	Team       CategoryReadiness `json:"team"`
	Talent     CategoryReadiness `json:"talent"`
	Overall    string            `json:"overall"`
	ComputedAt string            `json:"computed_at"`
}

type TickResult struct {
	ProjectID string   `json:"project_id"`
	Applied   bool     `json:"applied"`
	Phase     string   `json:"phase,omitempty"`
	Blockers  []string `json:"blockers,omitempty"`
	Error     string   `json:"error,omitempty"`
}

type Tick struct {
	StartedAt  string       `json:"started_at"`
	FinishedAt string       `json:"finished_at"`
	Visited    int          `json:"visited"`
	Applied    int          `json:"applied"`
	Failed     int          `json:"failed"`
	Results    []TickResult `json:"results"`
	Errors     []string     `json:"errors"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// GetPhase returns the project's current phase.
func (c *Client) GetPhase(ctx context.Context, projectID string) (Phase, error) {
	var resp Phase
	err := c.do(ctx, http.MethodGet, projectPath(projectID, "phase"), nil, &resp)
	return resp, err
}

// Evaluate reports whether the next transition is possible without changing
// anything.
func (c *Client) Evaluate(ctx context.Context, projectID string) (Evaluation, error) {
	var resp Evaluation
	err := c.do(ctx, http.MethodGet, projectPath(projectID, "phase/evaluation"), nil, &resp)
	return resp, err
}

// Transition asks for the next phase. requestedBy is manual or automatic.
func (c *Client) Transition(ctx context.Context, projectID, requestedBy, actorID string) (Transition, error) {
	body := map[string]any{
		"requested_by": requestedBy,
		"actor_id":     actorID,
	}
	var resp Transition
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "phase/transitions"), body, &resp)
	return resp, err
}

// ActionItems lists what blocks the next transition.
func (c *Client) ActionItems(ctx context.Context, projectID string) ([]Blocker, error) {
	var resp struct {
		Items []Blocker `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, projectPath(projectID, "phase/action-items"), nil, &resp)
	return resp.Items, err
}

// History returns transition records newest first.
func (c *Client) History(ctx context.Context, projectID string, limit, offset int) ([]TransitionRecord, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if offset > 0 {
		q.Set("offset", fmt.Sprint(offset))
	}
	endpoint := projectPath(projectID, "phase/history")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []TransitionRecord `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) GetConfiguration(ctx context.Context, projectID string) (PhaseConfiguration, error) {
	var resp PhaseConfiguration
	err := c.do(ctx, http.MethodGet, projectPath(projectID, "phase/configuration"), nil, &resp)
	return resp, err
}

// SetConfiguration replaces the project's overrides.
func (c *Client) SetConfiguration(ctx context.Context, projectID string, cfg PhaseConfiguration) (PhaseConfiguration, error) {
	cfg.ProjectID = ""
	cfg.UpdatedAt = ""
	var resp PhaseConfiguration
	err := c.do(ctx, http.MethodPut, projectPath(projectID, "phase/configuration"), cfg, &resp)
	return resp, err
}

func (c *Client) Readiness(ctx context.Context, projectID string) (Readiness, error) {
	var resp Readiness
	err := c.do(ctx, http.MethodGet, projectPath(projectID, "readiness"), nil, &resp)
	return resp, err
}

// Tick runs one scheduler pass on the server.
func (c *Client) Tick(ctx context.Context) (Tick, error) {
	var resp Tick
	err := c.do(ctx, http.MethodPost, "scheduler/ticks", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func projectPath(projectID, p string) string {
	return fmt.Sprintf("projects/%s/%s", url.PathEscape(projectID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
