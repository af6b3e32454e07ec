package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atworkflow/engine/internal/api/response"
	"github.com/atworkflow/engine/internal/compiler"
	"github.com/atworkflow/engine/internal/engine"
	"github.com/atworkflow/engine/internal/executionlog"
	"github.com/atworkflow/engine/internal/runtime"
	"github.com/atworkflow/engine/internal/schedule"
	"github.com/atworkflow/engine/internal/workflow"
	"github.com/atworkflow/engine/internal/workflowstore"
)

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, a.logger, http.StatusOK, healthResponse{
		Status: "ok", Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

type validateResponse struct {
	Valid    bool                `json:"valid"`
	Errors   []compilerError     `json:"errors,omitempty"`
	Warnings []compilerWarning   `json:"warnings,omitempty"`
}

type compilerError struct {
	Code   string `json:"code"`
	NodeID string `json:"node_id,omitempty"`
	Detail string `json:"detail,omitempty"`
}

type compilerWarning struct {
	Code   string `json:"code"`
	NodeID string `json:"node_id,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (a *App) handleValidate(w http.ResponseWriter, r *http.Request) {
	var desc workflow.Description
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		response.Error(w, a.logger, http.StatusInternalServerError, "invalid request body", response.ErrCodeBadRequest)
		return
	}

	warnings, errs := a.compiler.Validate(desc)
	response.JSON(w, a.logger, http.StatusOK, validateResponse{
		Valid:    len(errs) == 0,
		Errors:   toCompilerErrors(errs),
		Warnings: toCompilerWarnings(warnings),
	})
}

type compileResponse struct {
	Success  bool              `json:"success"`
	Graph    interface{}       `json:"graph,omitempty"`
	Errors   []compilerError   `json:"errors,omitempty"`
	Warnings []compilerWarning `json:"warnings,omitempty"`
}

func (a *App) handleCompile(w http.ResponseWriter, r *http.Request) {
	var desc workflow.Description
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		response.Error(w, a.logger, http.StatusBadRequest, "invalid request body", response.ErrCodeBadRequest)
		return
	}

	graph, warnings, errs := a.compiler.Compile(desc)
	if len(errs) > 0 {
		response.JSON(w, a.logger, http.StatusBadRequest, compileResponse{
			Success: false, Errors: toCompilerErrors(errs), Warnings: toCompilerWarnings(warnings),
		})
		return
	}

	response.JSON(w, a.logger, http.StatusOK, compileResponse{
		Success: true, Graph: graph, Warnings: toCompilerWarnings(warnings),
	})
}

type executeRequest struct {
	Workflow       workflow.Description   `json:"workflow"`
	TriggerPayload map[string]interface{} `json:"trigger_payload"`
	SessionID      string                 `json:"session_id,omitempty"`
	Options        *executeOptions        `json:"options,omitempty"`
}

type executeOptions struct {
	MaxExecutionMs int64 `json:"max_execution_ms"`
	EnableRetries  bool  `json:"enable_retries"`
}

type executeResponse struct {
	ExecutionID string                         `json:"execution_id"`
	Status      engine.State                   `json:"status"`
	Output      map[string]interface{}         `json:"output,omitempty"`
	Error       *runtime.NodeError             `json:"error,omitempty"`
	NodeResults []runtime.NodeExecutionResult  `json:"node_results"`
	DurationMs  int64                          `json:"duration_ms"`
	SessionID   string                         `json:"session_id,omitempty"`
}

func (a *App) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, a.logger, http.StatusBadRequest, "invalid request body", response.ErrCodeBadRequest)
		return
	}

	graph, _, errs := a.compiler.Compile(req.Workflow)
	if len(errs) > 0 {
		response.JSON(w, a.logger, http.StatusBadRequest, compileResponse{Success: false, Errors: toCompilerErrors(errs)})
		return
	}

	var sessHandle *runtime.SessionHandle
	if req.SessionID != "" {
		rec, err := a.sessions.Get(req.SessionID)
		if err != nil {
			response.Error(w, a.logger, http.StatusInternalServerError, err.Error(), response.ErrCodeInternal)
			return
		}
		if rec != nil {
			sessHandle = &runtime.SessionHandle{
				SessionID: rec.SessionID, Channel: rec.Channel, Subscriber: rec.Subscriber, Data: rec.Data, Active: rec.Active,
			}
		}
	}

	opts := engine.Options{EnableRetries: true}
	if req.Options != nil {
		opts.MaxExecutionMs = req.Options.MaxExecutionMs
		opts.EnableRetries = req.Options.EnableRetries
	}

	start := time.Now()
	result, err := a.engine.Execute(r.Context(), graph, req.TriggerPayload, sessHandle, opts)
	if err != nil {
		response.Error(w, a.logger, http.StatusInternalServerError, err.Error(), response.ErrCodeInternal)
		return
	}

	if result.State == engine.StateFailed && a.alerts != nil {
		code, msg := "execution_failed", "invocation failed"
		if result.Err != nil {
			code, msg = result.Err.Code, result.Err.Message
		}
		go a.alerts.ExecutionFailed(r.Context(), result.ExecutionID, req.Workflow.Metadata.ID, code, msg)
	}

	response.JSON(w, a.logger, http.StatusOK, executeResponse{
		ExecutionID: result.ExecutionID,
		Status:      result.State,
		Output:      result.Output,
		Error:       result.Err,
		NodeResults: result.Results,
		DurationMs:  time.Since(start).Milliseconds(),
		SessionID:   req.SessionID,
	})
}

func (a *App) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	log, err := a.executionLog.Get(id)
	if err != nil {
		response.Error(w, a.logger, http.StatusInternalServerError, err.Error(), response.ErrCodeInternal)
		return
	}
	if log == nil {
		response.Error(w, a.logger, http.StatusNotFound, "execution not found", response.ErrCodeNotFound)
		return
	}
	response.JSON(w, a.logger, http.StatusOK, log)
}

func (a *App) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	q := executionlog.Query{
		WorkflowID: r.URL.Query().Get("workflow_id"),
		State:      executionlog.State(r.URL.Query().Get("state")),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			q.Limit = n
		}
	}
	if from := r.URL.Query().Get("started_at_from"); from != "" {
		if ts, err := time.Parse(time.RFC3339, from); err == nil {
			q.StartedAtFrom = &ts
		}
	}
	if to := r.URL.Query().Get("started_at_to"); to != "" {
		if ts, err := time.Parse(time.RFC3339, to); err == nil {
			q.StartedAtTo = &ts
		}
	}

	logs, err := a.executionLog.Query(q)
	if err != nil {
		response.Error(w, a.logger, http.StatusInternalServerError, err.Error(), response.ErrCodeInternal)
		return
	}
	response.JSON(w, a.logger, http.StatusOK, map[string]interface{}{"executions": logs})
}

type saveWorkflowResponse struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}

// handleSaveWorkflow persists a workflow description, compiling it first so
// the store only ever holds executable versions. Saved workflows with a
// scheduled trigger are registered with the ticker immediately.
func (a *App) handleSaveWorkflow(w http.ResponseWriter, r *http.Request) {
	var desc workflow.Description
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		response.Error(w, a.logger, http.StatusBadRequest, "invalid request body", response.ErrCodeBadRequest)
		return
	}

	graph, warnings, errs := a.compiler.Compile(desc)
	if len(errs) > 0 {
		response.JSON(w, a.logger, http.StatusBadRequest, compileResponse{
			Success: false, Errors: toCompilerErrors(errs), Warnings: toCompilerWarnings(warnings),
		})
		return
	}

	if err := a.workflows.Save(desc); err != nil {
		response.Error(w, a.logger, http.StatusInternalServerError, err.Error(), response.ErrCodeInternal)
		return
	}

	if desc.Trigger.Type == "scheduled" {
		expr, _ := desc.Trigger.Config["cron_expression"].(string)
		sw := &schedule.ScheduledWorkflow{WorkflowID: desc.Metadata.ID, CronExpression: expr, Graph: graph}
		if err := a.scheduler.Register(sw); err != nil {
			response.Error(w, a.logger, http.StatusInternalServerError, err.Error(), response.ErrCodeInternal)
			return
		}
	}

	response.JSON(w, a.logger, http.StatusCreated, saveWorkflowResponse{ID: desc.Metadata.ID, Version: desc.Metadata.Version})
}

func (a *App) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	desc, err := a.workflows.Latest(id)
	if errors.Is(err, workflowstore.ErrNotFound) {
		response.Error(w, a.logger, http.StatusNotFound, "workflow not found", response.ErrCodeNotFound)
		return
	}
	if err != nil {
		response.Error(w, a.logger, http.StatusInternalServerError, err.Error(), response.ErrCodeInternal)
		return
	}
	response.JSON(w, a.logger, http.StatusOK, desc)
}

func toCompilerErrors(errs []compiler.Error) []compilerError {
	out := make([]compilerError, 0, len(errs))
	for _, e := range errs {
		out = append(out, compilerError{Code: string(e.Code), NodeID: e.NodeID, Detail: e.Detail})
	}
	return out
}

func toCompilerWarnings(warnings []compiler.Warning) []compilerWarning {
	out := make([]compilerWarning, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, compilerWarning{Code: string(w.Code), NodeID: w.NodeID, Detail: w.Detail})
	}
	return out
}
