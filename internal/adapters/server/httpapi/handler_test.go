package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hylla/fordela/internal/adapters/storage/sqlite"
	"github.com/hylla/fordela/internal/app"
	"github.com/hylla/fordela/internal/domain"
)

type stubGateway struct {
	recs []domain.Recommendation
	err  error
}

func (g *stubGateway) Recommend(_ context.Context, _ string, _ int) ([]domain.Recommendation, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.recs, nil
}

func newTestHandler(t *testing.T, gateway app.RecommendationGateway) *Handler {
	t.Helper()
	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "fordela.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	seq := 0
	idGen := func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		seq++
		return base.Add(time.Duration(seq) * time.Second)
	}
	return NewHandler(app.NewService(repo, gateway, idGen, clock))
}

func doJSON(t *testing.T, h *Handler, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	decoded := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, decoded
}

func errorCode(t *testing.T, payload map[string]any) string {
	t.Helper()
	envelope, ok := payload["error"].(map[string]any)
	if !ok {
		t.Fatalf("payload %v is not an error envelope", payload)
	}
	code, _ := envelope["code"].(string)
	return code
}

func seedProjectAndEngineer(t *testing.T, h *Handler) (projectID, engineerID string) {
	t.Helper()
	status, project := doJSON(t, h, http.MethodPost, "/projects", map[string]string{
		"name": "Billing", "description": "Invoicing rework",
	})
	if status != http.StatusCreated {
		t.Fatalf("create project status = %d, body %v", status, project)
	}
	status, engineer := doJSON(t, h, http.MethodPost, "/engineers", map[string]string{
		"name": "Maja Lind", "email": "maja@example.com",
	})
	if status != http.StatusCreated {
		t.Fatalf("create engineer status = %d, body %v", status, engineer)
	}
	return project["id"].(string), engineer["id"].(string)
}

func createTask(t *testing.T, h *Handler, projectID, title string) string {
	t.Helper()
	status, task := doJSON(t, h, http.MethodPost, "/tasks", map[string]string{
		"project_id": projectID, "title": title, "priority": "high",
	})
	if status != http.StatusCreated {
		t.Fatalf("create task status = %d, body %v", status, task)
	}
	return task["id"].(string)
}

func TestHandlerTaskLifecycle(t *testing.T) {
	h := newTestHandler(t, nil)
	projectID, engineerID := seedProjectAndEngineer(t, h)
	taskID := createTask(t, h, projectID, "Wire invoice export")

	status, task := doJSON(t, h, http.MethodPost, "/tasks/"+taskID+"/assign", map[string]string{
		"engineer_id": engineerID,
	})
	if status != http.StatusOK {
		t.Fatalf("assign status = %d, body %v", status, task)
	}
	if task["status"] != "in_progress" || task["assignee_id"] != engineerID {
		t.Fatalf("assign response = %v, want in_progress with assignee", task)
	}

	status, current := doJSON(t, h, http.MethodGet, "/engineers/"+engineerID+"/current-task", nil)
	if status != http.StatusOK {
		t.Fatalf("current-task status = %d", status)
	}
	currentTask, ok := current["task"].(map[string]any)
	if !ok || currentTask["id"] != taskID {
		t.Fatalf("current-task = %v, want task %q", current, taskID)
	}

	status, task = doJSON(t, h, http.MethodPost, "/tasks/"+taskID+"/complete", nil)
	if status != http.StatusOK || task["status"] != "done" {
		t.Fatalf("complete status = %d, body %v", status, task)
	}
	if task["assignee_id"] != engineerID {
		t.Fatalf("complete cleared assignee: %v", task)
	}

	status, current = doJSON(t, h, http.MethodGet, "/engineers/"+engineerID+"/current-task", nil)
	if status != http.StatusOK || current["task"] != nil {
		t.Fatalf("current-task after completion = %v, want null", current)
	}

	status, history := doJSON(t, h, http.MethodGet, "/engineers/"+engineerID+"/history?search=invoice", nil)
	if status != http.StatusOK {
		t.Fatalf("history status = %d", status)
	}
	if history["total_count"].(float64) != 1 {
		t.Fatalf("history = %v, want one completed task", history)
	}
}

func TestHandlerAssignBusyEngineerConflicts(t *testing.T) {
	h := newTestHandler(t, nil)
	projectID, engineerID := seedProjectAndEngineer(t, h)
	first := createTask(t, h, projectID, "First")
	second := createTask(t, h, projectID, "Second")

	if status, body := doJSON(t, h, http.MethodPost, "/tasks/"+first+"/assign", map[string]string{"engineer_id": engineerID}); status != http.StatusOK {
		t.Fatalf("first assign status = %d, body %v", status, body)
	}
	status, body := doJSON(t, h, http.MethodPost, "/tasks/"+second+"/assign", map[string]string{"engineer_id": engineerID})
	if status != http.StatusConflict || errorCode(t, body) != "engineer_unavailable" {
		t.Fatalf("second assign = %d %v, want 409 engineer_unavailable", status, body)
	}

	if status, _ := doJSON(t, h, http.MethodPost, "/tasks/"+first+"/unassign", nil); status != http.StatusOK {
		t.Fatalf("unassign status = %d", status)
	}
	if status, _ := doJSON(t, h, http.MethodPost, "/tasks/"+second+"/assign", map[string]string{"engineer_id": engineerID}); status != http.StatusOK {
		t.Fatalf("assign after unassign status = %d", status)
	}
}

func TestHandlerArchiveCascade(t *testing.T) {
	h := newTestHandler(t, nil)
	projectID, _ := seedProjectAndEngineer(t, h)
	taskID := createTask(t, h, projectID, "Frozen")
	createTask(t, h, projectID, "Also frozen")

	status, body := doJSON(t, h, http.MethodPost, "/projects/"+projectID+"/archive", nil)
	if status != http.StatusOK {
		t.Fatalf("archive status = %d, body %v", status, body)
	}
	if body["archived_task_count"].(float64) != 2 {
		t.Fatalf("archive body = %v, want archived_task_count 2", body)
	}

	status, body = doJSON(t, h, http.MethodPost, "/projects/"+projectID+"/archive", nil)
	if status != http.StatusConflict || errorCode(t, body) != "already_archived" {
		t.Fatalf("second archive = %d %v, want 409 already_archived", status, body)
	}

	title := "Renamed"
	status, body = doJSON(t, h, http.MethodPatch, "/tasks/"+taskID, map[string]string{"title": title})
	if status != http.StatusConflict || errorCode(t, body) != "project_archived" {
		t.Fatalf("patch frozen task = %d %v, want 409 project_archived", status, body)
	}

	status, body = doJSON(t, h, http.MethodPost, "/tasks", map[string]string{
		"project_id": projectID, "title": "Too late",
	})
	if status != http.StatusConflict || errorCode(t, body) != "project_archived" {
		t.Fatalf("create in archived project = %d %v, want 409 project_archived", status, body)
	}
}

func TestHandlerInvalidTransition(t *testing.T) {
	h := newTestHandler(t, nil)
	projectID, _ := seedProjectAndEngineer(t, h)
	taskID := createTask(t, h, projectID, "Open task")

	status, body := doJSON(t, h, http.MethodPost, "/tasks/"+taskID+"/complete", nil)
	if status != http.StatusConflict || errorCode(t, body) != "invalid_transition" {
		t.Fatalf("complete open task = %d %v, want 409 invalid_transition", status, body)
	}

	inProgress := "in_progress"
	status, body = doJSON(t, h, http.MethodPatch, "/tasks/"+taskID, map[string]string{"status": inProgress})
	if status != http.StatusConflict || errorCode(t, body) != "invalid_transition" {
		t.Fatalf("status-only move to in_progress = %d %v, want 409 invalid_transition", status, body)
	}
}

func TestHandlerRecommendations(t *testing.T) {
	gateway := &stubGateway{recs: []domain.Recommendation{
		{EngineerID: "e-low", Score: 0.2},
		{EngineerID: "e-high", Score: 0.9},
	}}
	h := newTestHandler(t, gateway)
	projectID, _ := seedProjectAndEngineer(t, h)
	taskID := createTask(t, h, projectID, "Rank me")

	status, body := doJSON(t, h, http.MethodPost, "/recommendations", map[string]any{
		"task_id": taskID, "limit": 5,
	})
	if status != http.StatusOK {
		t.Fatalf("recommendations status = %d, body %v", status, body)
	}
	recs := body["recommendations"].([]any)
	if len(recs) != 2 {
		t.Fatalf("recommendations = %v, want 2", recs)
	}
	if recs[0].(map[string]any)["engineer_id"] != "e-high" {
		t.Fatalf("recommendations[0] = %v, want highest score first", recs[0])
	}

	gateway.recs = nil
	status, body = doJSON(t, h, http.MethodPost, "/recommendations", map[string]any{"task_id": taskID})
	if status != http.StatusOK {
		t.Fatalf("empty recommendations status = %d, body %v", status, body)
	}
	if len(body["recommendations"].([]any)) != 0 {
		t.Fatalf("empty recommendations body = %v, want empty list", body)
	}

	gateway.err = domain.ErrGatewayUnavailable
	status, body = doJSON(t, h, http.MethodPost, "/recommendations", map[string]any{"task_id": taskID})
	if status != http.StatusServiceUnavailable || errorCode(t, body) != "gateway_unavailable" {
		t.Fatalf("gateway down = %d %v, want 503 gateway_unavailable", status, body)
	}
}

func TestHandlerProjectListingAndStats(t *testing.T) {
	h := newTestHandler(t, nil)
	projectID, engineerID := seedProjectAndEngineer(t, h)
	taskID := createTask(t, h, projectID, "Open one")
	createTask(t, h, projectID, "Open two")
	if status, _ := doJSON(t, h, http.MethodPost, "/tasks/"+taskID+"/assign", map[string]string{"engineer_id": engineerID}); status != http.StatusOK {
		t.Fatalf("assign failed")
	}
	if status, _ := doJSON(t, h, http.MethodPost, "/tasks/"+taskID+"/complete", nil); status != http.StatusOK {
		t.Fatalf("complete failed")
	}

	status, body := doJSON(t, h, http.MethodGet, "/projects?page_id=1&page_size=10", nil)
	if status != http.StatusOK {
		t.Fatalf("list projects status = %d", status)
	}
	projects := body["projects"].([]any)
	if len(projects) != 1 {
		t.Fatalf("projects = %v, want 1", projects)
	}
	summary := projects[0].(map[string]any)
	if summary["total_tasks"].(float64) != 2 || summary["completed_tasks"].(float64) != 1 {
		t.Fatalf("summary = %v, want 2 total 1 completed", summary)
	}

	status, body = doJSON(t, h, http.MethodGet, "/projects/"+projectID+"/tasks", nil)
	if status != http.StatusOK || body["total_count"].(float64) != 2 {
		t.Fatalf("list tasks = %d %v, want 2 tasks", status, body)
	}

	status, body = doJSON(t, h, http.MethodGet, "/dashboard/stats", nil)
	if status != http.StatusOK {
		t.Fatalf("stats status = %d", status)
	}
	if body["active_projects"].(float64) != 1 || body["open_tasks"].(float64) != 1 {
		t.Fatalf("stats = %v, want 1 active project and 1 open task", body)
	}
	if body["available_engineers"].(float64) != 1 || body["total_engineers"].(float64) != 1 {
		t.Fatalf("stats = %v, want 1 available of 1 engineer", body)
	}
}

func TestHandlerRequestValidation(t *testing.T) {
	h := newTestHandler(t, nil)

	status, body := doJSON(t, h, http.MethodGet, "/nope", nil)
	if status != http.StatusNotFound || errorCode(t, body) != "not_found" {
		t.Fatalf("unknown route = %d %v, want 404 not_found", status, body)
	}

	status, body = doJSON(t, h, http.MethodDelete, "/projects", nil)
	if status != http.StatusMethodNotAllowed || errorCode(t, body) != "method_not_allowed" {
		t.Fatalf("bad method = %d %v, want 405", status, body)
	}

	req := httptest.NewRequest(http.MethodPost, "/projects", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d, want 400", rec.Code)
	}

	status, body = doJSON(t, h, http.MethodGet, "/tasks/missing", nil)
	if status != http.StatusNotFound || errorCode(t, body) != "not_found" {
		t.Fatalf("missing task = %d %v, want 404", status, body)
	}

	status, body = doJSON(t, h, http.MethodPost, "/projects", map[string]string{"name": "   "})
	if status != http.StatusBadRequest || errorCode(t, body) != "invalid_argument" {
		t.Fatalf("blank name = %d %v, want 400 invalid_argument", status, body)
	}

	status, body = doJSON(t, h, http.MethodGet, "/projects?page_id=zero", nil)
	if status != http.StatusBadRequest || errorCode(t, body) != "invalid_argument" {
		t.Fatalf("bad page_id = %d %v, want 400 invalid_argument", status, body)
	}
}
