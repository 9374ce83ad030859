// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/fordela/internal/app"
	"github.com/hylla/fordela/internal/domain"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// errInvalidBody marks malformed request payloads.
var errInvalidBody = errors.New("invalid request body")

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	engine *app.Service
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter over the lifecycle engine.
func NewHandler(engine *app.Service) *Handler {
	return &Handler{engine: engine}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segments := splitPath(r.URL.Path)
	switch {
	case matchRoute(segments, "projects"):
		switch r.Method {
		case http.MethodGet:
			h.handleListProjects(w, r)
		case http.MethodPost:
			h.handleCreateProject(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case matchRoute(segments, "projects", "*"):
		switch r.Method {
		case http.MethodGet:
			h.handleGetProject(w, r, segments[1])
		case http.MethodPatch:
			h.handleUpdateProject(w, r, segments[1])
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPatch)
		}
	case matchRoute(segments, "projects", "*", "archive"):
		requirePost(w, r, func() { h.handleArchiveProject(w, r, segments[1]) })
	case matchRoute(segments, "projects", "*", "tasks"):
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListTasks(w, r, segments[1])
	case matchRoute(segments, "tasks"):
		requirePost(w, r, func() { h.handleCreateTask(w, r) })
	case matchRoute(segments, "tasks", "*"):
		switch r.Method {
		case http.MethodGet:
			h.handleGetTask(w, r, segments[1])
		case http.MethodPatch:
			h.handleUpdateTask(w, r, segments[1])
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPatch)
		}
	case matchRoute(segments, "tasks", "*", "assign"):
		requirePost(w, r, func() { h.handleAssignTask(w, r, segments[1]) })
	case matchRoute(segments, "tasks", "*", "complete"):
		requirePost(w, r, func() { h.handleCompleteTask(w, r, segments[1]) })
	case matchRoute(segments, "tasks", "*", "unassign"):
		requirePost(w, r, func() { h.handleUnassignTask(w, r, segments[1]) })
	case matchRoute(segments, "recommendations"):
		requirePost(w, r, func() { h.handleRecommendations(w, r) })
	case matchRoute(segments, "engineers"):
		switch r.Method {
		case http.MethodGet:
			h.handleListEngineers(w, r)
		case http.MethodPost:
			h.handleCreateEngineer(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case matchRoute(segments, "engineers", "*", "current-task"):
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleCurrentTask(w, r, segments[1])
	case matchRoute(segments, "engineers", "*", "history"):
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleTaskHistory(w, r, segments[1])
	case matchRoute(segments, "dashboard", "stats"):
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleDashboardStats(w, r)
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	}
}

type projectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type projectJSON struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Archived    bool       `json:"archived"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}

type projectSummaryJSON struct {
	projectJSON
	TotalTasks     int `json:"total_tasks"`
	CompletedTasks int `json:"completed_tasks"`
}

type taskJSON struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	AssigneeID  string    `json:"assignee_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type engineerJSON struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Availability string    `json:"availability,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toProjectJSON(p domain.Project) projectJSON {
	return projectJSON{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Archived:    p.Archived,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		ArchivedAt:  p.ArchivedAt,
	}
}

func toTaskJSON(t domain.Task) taskJSON {
	return taskJSON{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		AssigneeID:  t.AssigneeID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func toTaskListJSON(tasks []domain.Task) []taskJSON {
	out := make([]taskJSON, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskJSON(t))
	}
	return out
}

// handleCreateProject serves POST `/projects`.
func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	project, err := h.engine.CreateProject(r.Context(), req.Name, req.Description)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectJSON(project))
}

// handleListProjects serves GET `/projects`.
func (h *Handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	pageReq, err := parsePageRequest(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	archived := r.URL.Query().Get("archived") == "true"
	page, err := h.engine.ListProjectSummaries(r.Context(), archived, pageReq)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	items := make([]projectSummaryJSON, 0, len(page.Items))
	for _, s := range page.Items {
		items = append(items, projectSummaryJSON{
			projectJSON:    toProjectJSON(s.Project),
			TotalTasks:     s.TotalTasks,
			CompletedTasks: s.CompletedTasks,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_count": page.TotalCount,
		"projects":    items,
	})
}

// handleGetProject serves GET `/projects/{id}`.
func (h *Handler) handleGetProject(w http.ResponseWriter, r *http.Request, projectID string) {
	project, err := h.engine.GetProject(r.Context(), projectID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectJSON(project))
}

// handleUpdateProject serves PATCH `/projects/{id}`.
func (h *Handler) handleUpdateProject(w http.ResponseWriter, r *http.Request, projectID string) {
	var req projectRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	project, err := h.engine.UpdateProject(r.Context(), projectID, req.Name, req.Description)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectJSON(project))
}

// handleArchiveProject serves POST `/projects/{id}/archive`.
func (h *Handler) handleArchiveProject(w http.ResponseWriter, r *http.Request, projectID string) {
	result, err := h.engine.ArchiveProject(r.Context(), projectID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"archived_task_count": result.ArchivedTaskCount,
	})
}

// handleListTasks serves GET `/projects/{id}/tasks`.
func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request, projectID string) {
	pageReq, err := parsePageRequest(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	page, err := h.engine.ListTasks(r.Context(), projectID, pageReq)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_count": page.TotalCount,
		"tasks":       toTaskListJSON(page.Items),
	})
}

type createTaskRequest struct {
	ProjectID   string `json:"project_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// handleCreateTask serves POST `/tasks`.
func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	task, err := h.engine.CreateTask(r.Context(), app.CreateTaskInput{
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    domain.Priority(req.Priority),
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskJSON(task))
}

// handleGetTask serves GET `/tasks/{id}`.
func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request, taskID string) {
	task, err := h.engine.GetTask(r.Context(), taskID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskJSON(task))
}

type taskPatchRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
	Status      *string `json:"status"`
	AssigneeID  *string `json:"assignee_id"`
}

func (r taskPatchRequest) toPatch() app.TaskPatch {
	patch := app.TaskPatch{
		Title:       r.Title,
		Description: r.Description,
		AssigneeID:  r.AssigneeID,
	}
	if r.Priority != nil {
		p := domain.Priority(*r.Priority)
		patch.Priority = &p
	}
	if r.Status != nil {
		s := domain.Status(*r.Status)
		patch.Status = &s
	}
	return patch
}

// handleUpdateTask serves PATCH `/tasks/{id}`.
func (h *Handler) handleUpdateTask(w http.ResponseWriter, r *http.Request, taskID string) {
	var req taskPatchRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	task, err := h.engine.UpdateTask(r.Context(), taskID, req.toPatch())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskJSON(task))
}

type assignRequest struct {
	EngineerID string `json:"engineer_id"`
}

// handleAssignTask serves POST `/tasks/{id}/assign`.
func (h *Handler) handleAssignTask(w http.ResponseWriter, r *http.Request, taskID string) {
	var req assignRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	task, err := h.engine.AssignTask(r.Context(), taskID, req.EngineerID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskJSON(task))
}

// handleCompleteTask serves POST `/tasks/{id}/complete`.
func (h *Handler) handleCompleteTask(w http.ResponseWriter, r *http.Request, taskID string) {
	task, err := h.engine.CompleteTask(r.Context(), taskID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskJSON(task))
}

// handleUnassignTask serves POST `/tasks/{id}/unassign`.
func (h *Handler) handleUnassignTask(w http.ResponseWriter, r *http.Request, taskID string) {
	task, err := h.engine.UnassignTask(r.Context(), taskID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskJSON(task))
}

type recommendationsRequest struct {
	TaskID string `json:"task_id"`
	Limit  int    `json:"limit"`
}

// handleRecommendations serves POST `/recommendations`.
func (h *Handler) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	var req recommendationsRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	recs, err := h.engine.Recommendations(r.Context(), req.TaskID, req.Limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	items := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		items = append(items, map[string]any{
			"engineer_id": rec.EngineerID,
			"score":       rec.Score,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"recommendations": items,
	})
}

type engineerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// handleCreateEngineer serves POST `/engineers`.
func (h *Handler) handleCreateEngineer(w http.ResponseWriter, r *http.Request) {
	var req engineerRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	engineer, err := h.engine.CreateEngineer(r.Context(), req.Name, req.Email)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, engineerJSON{
		ID:        engineer.ID,
		Name:      engineer.Name,
		Email:     engineer.Email,
		CreatedAt: engineer.CreatedAt,
		UpdatedAt: engineer.UpdatedAt,
	})
}

// handleListEngineers serves GET `/engineers`.
func (h *Handler) handleListEngineers(w http.ResponseWriter, r *http.Request) {
	team, err := h.engine.ListEngineers(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	items := make([]engineerJSON, 0, len(team))
	for _, member := range team {
		items = append(items, engineerJSON{
			ID:           member.Engineer.ID,
			Name:         member.Engineer.Name,
			Email:        member.Engineer.Email,
			Availability: string(member.Availability),
			CreatedAt:    member.Engineer.CreatedAt,
			UpdatedAt:    member.Engineer.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"engineers": items,
	})
}

// handleCurrentTask serves GET `/engineers/{id}/current-task`.
func (h *Handler) handleCurrentTask(w http.ResponseWriter, r *http.Request, engineerID string) {
	task, ok, err := h.engine.CurrentTask(r.Context(), engineerID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"task": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": toTaskJSON(task)})
}

// handleTaskHistory serves GET `/engineers/{id}/history`.
func (h *Handler) handleTaskHistory(w http.ResponseWriter, r *http.Request, engineerID string) {
	pageReq, err := parsePageRequest(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	search := r.URL.Query().Get("search")
	page, err := h.engine.TaskHistory(r.Context(), engineerID, search, pageReq)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_count": page.TotalCount,
		"tasks":       toTaskListJSON(page.Items),
	})
}

// handleDashboardStats serves GET `/dashboard/stats`.
func (h *Handler) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active_projects":     stats.ActiveProjects,
		"open_tasks":          stats.OpenTasks,
		"available_engineers": stats.AvailableEngineers,
		"total_engineers":     stats.TotalEngineers,
	})
}

// parsePageRequest reads the page_id/page_size query parameters.
func parsePageRequest(r *http.Request) (app.PageRequest, error) {
	req := app.PageRequest{}
	if raw := strings.TrimSpace(r.URL.Query().Get("page_id")); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return app.PageRequest{}, fmt.Errorf("page_id: %w", errors.Join(errInvalidBody, err))
		}
		req.ID = id
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return app.PageRequest{}, fmt.Errorf("page_size: %w", errors.Join(errInvalidBody, err))
		}
		req.Size = size
	}
	return req, nil
}

// splitPath canonicalizes one request path into route segments.
func splitPath(path string) []string {
	trimmed := strings.Trim(strings.TrimSpace(path), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// matchRoute matches segments against a pattern where "*" binds any single
// non-empty segment.
func matchRoute(segments []string, pattern ...string) bool {
	if len(segments) != len(pattern) {
		return false
	}
	for i, p := range pattern {
		if p == "*" {
			if segments[i] == "" {
				return false
			}
			continue
		}
		if segments[i] != p {
			return false
		}
	}
	return true
}

func requirePost(w http.ResponseWriter, r *http.Request, fn func()) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	fn()
}

// writeErrorFrom maps engine errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, domain.ErrInvalidTransition):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "invalid_transition",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrEngineerUnavailable):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "engineer_unavailable",
			Message: err.Error(),
			Hint:    "Pick another engineer or wait for the current task to finish.",
		})
	case errors.Is(err, domain.ErrAlreadyArchived):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "already_archived",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrProjectArchived):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "project_archived",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrMutationInProgress):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "mutation_in_progress",
			Message: err.Error(),
			Hint:    "Another mutation for this task is in flight; retry shortly.",
		})
	case errors.Is(err, domain.ErrGatewayUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "gateway_unavailable",
			Message: err.Error(),
			Hint:    "Recommendations are down; direct assignment still works.",
		})
	case errors.Is(err, app.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case isInvalidArgument(err):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_argument",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// isInvalidArgument groups the input-validation sentinels behind one code.
func isInvalidArgument(err error) bool {
	for _, sentinel := range []error{
		errInvalidBody,
		app.ErrEmptyPatch,
		app.ErrInvalidPage,
		app.ErrInvalidLimit,
		domain.ErrInvalidID,
		domain.ErrInvalidName,
		domain.ErrInvalidTitle,
		domain.ErrInvalidPriority,
		domain.ErrInvalidStatus,
		domain.ErrInvalidEngineerID,
		domain.ErrInvalidEmail,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(errInvalidBody, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", errInvalidBody)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
