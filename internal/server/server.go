package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"

	"phaseline/internal/domain"
	"phaseline/internal/engine"
	"phaseline/internal/scheduler"
)

// Ticker runs one scheduler pass.
type Ticker interface {
	Tick(ctx context.Context) (scheduler.RunReport, error)
}

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	// Scheduler enables POST /scheduler/ticks when set.
	Scheduler Ticker
	Logger    hclog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"project p-1 not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Phaseline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Schema and request validation failures are client errors.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			msgs := make([]string, 0, len(errs))
			for _, err := range errs {
				msgs = append(msgs, err.Error())
			}
			details = map[string]any{"errors": msgs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))
	hcfg := huma.DefaultConfig("Phaseline API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerPhase(group, cfg.Engine)
	registerConfiguration(group, cfg.Engine)
	registerReadiness(group, cfg.Engine)
	if cfg.Scheduler != nil {
		registerScheduler(group, cfg.Scheduler)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(logger hclog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(),
				"duration", time.Since(start), "request_id", middleware.GetReqID(r.Context()))
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps the domain error taxonomy onto HTTP statuses. Blocked
// transitions and lost races never reach here; they are 200 responses.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve domain.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"field": ve.Field})
	}
	var nf domain.NotFoundError
	if errors.As(err, &nf) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), map[string]any{"kind": nf.Kind, "id": nf.ID})
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrValidation):
		return newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), nil)
	case errors.Is(err, domain.ErrCollaboratorUnavailable):
		return newAPIError(http.StatusServiceUnavailable, "data_unavailable", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_failed"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusServiceUnavailable:
		return "data_unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join(basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.Schemas != nil {
		oas.Components.Schemas.Map()["ApiError"] = &huma.Schema{
			Type: "object",
			Properties: map[string]*huma.Schema{
				"error": {
					Type: "object",
					Properties: map[string]*huma.Schema{
						"code":    {Type: "string"},
						"message": {Type: "string"},
						"details": {Type: "object"},
					},
				},
			},
		}
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Phaseline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type projectPath struct {
	ProjectID string `path:"project_id"`
}

func registerPhase(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-phase",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/phase",
		Summary:     "Current phase",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body PhaseResponse `json:"body"`
	}, error) {
		p, err := e.Projects.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PhaseResponse `json:"body"`
		}{Body: phaseResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "evaluate-transition",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/phase/evaluation",
		Summary:     "Evaluate the next transition without applying it",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body EvaluationResponse `json:"body"`
	}, error) {
		ev, err := e.Evaluate(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EvaluationResponse `json:"body"`
		}{Body: evaluationResponse(ev)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-phase",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/phase/transitions",
		Summary:     "Attempt to advance the project one phase",
		Description: "Blocked attempts and lost races return 200 with applied=false.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ProjectID string                `path:"project_id"`
		Body      TransitionRequestBody `json:"body"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		res, err := e.Transition(ctx, engine.TransitionRequest{
			ProjectID:   input.ProjectID,
			RequestedBy: domain.Trigger(input.Body.RequestedBy),
			ActorID:     input.Body.ActorID,
		})
		if errors.Is(err, domain.ErrCollaboratorUnavailable) {
			details := map[string]any{"blockers": blockerResponses(res.Blockers)}
			if res.Record != nil {
				details["record_id"] = res.Record.ID
			}
			return nil, newAPIError(http.StatusServiceUnavailable, "data_unavailable", err.Error(), details)
		}
		if err != nil && !errors.Is(err, domain.ErrConcurrencyConflict) {
			return nil, handleError(err)
		}
		return &struct {
			Body TransitionResponse `json:"body"`
		}{Body: transitionResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "action-items",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/phase/action-items",
		Summary:     "Blockers of the next transition as action items",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body ActionItemsResponse `json:"body"`
	}, error) {
		items, err := e.ActionItems(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]BlockerResponse, 0, len(items))
		for _, item := range items {
			out = append(out, blockerResponse(item))
		}
		return &struct {
			Body ActionItemsResponse `json:"body"`
		}{Body: ActionItemsResponse{ProjectID: input.ProjectID, Items: out}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "phase-history",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/phase/history",
		Summary:     "Transition attempts, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Limit     int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
		Offset    int    `query:"offset" default:"0" minimum:"0"`
	}) (*struct {
		Body HistoryResponse `json:"body"`
	}, error) {
		items, err := e.History(ctx, input.ProjectID, input.Limit, input.Offset)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HistoryResponse `json:"body"`
		}{Body: HistoryResponse{Items: mapRecords(items), Limit: input.Limit, Offset: input.Offset}}, nil
	})
}

func registerConfiguration(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-phase-configuration",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/phase/configuration",
		Summary:     "Per-project phase overrides",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body PhaseConfigurationResponse `json:"body"`
	}, error) {
		cfg, err := e.GetConfiguration(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PhaseConfigurationResponse `json:"body"`
		}{Body: configurationResponse(cfg)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-phase-configuration",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/phase/configuration",
		Summary:     "Replace per-project phase overrides",
		Description: "Stores the overrides without evaluating a transition.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string                 `path:"project_id"`
		Body      PhaseConfigurationBody `json:"body"`
	}) (*struct {
		Body PhaseConfigurationResponse `json:"body"`
	}, error) {
		cfg, err := toConfiguration(input.ProjectID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		saved, err := e.SetConfiguration(ctx, input.ProjectID, cfg)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PhaseConfigurationResponse `json:"body"`
		}{Body: configurationResponse(saved)}, nil
	})
}

func registerReadiness(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-readiness",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/readiness",
		Summary:     "Recompute and return the readiness snapshot",
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body ReadinessResponse `json:"body"`
	}, error) {
		snap, err := e.RefreshReadiness(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReadinessResponse `json:"body"`
		}{Body: readinessResponse(snap)}, nil
	})
}

func registerScheduler(api huma.API, s Ticker) {
	huma.Register(api, huma.Operation{
		OperationID: "scheduler-tick",
		Method:      http.MethodPost,
		Path:        "/scheduler/ticks",
		Summary:     "Run one automatic transition pass over all eligible projects",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body TickResponse `json:"body"`
	}, error) {
		report, err := s.Tick(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TickResponse `json:"body"`
		}{Body: tickResponse(report)}, nil
	})
}
