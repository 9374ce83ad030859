// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hylla/fordela/internal/app"
	"github.com/hylla/fordela/internal/domain"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the lifecycle engine
// as tools.
func NewHandler(cfg Config, engine *app.Service) (*Handler, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerProjectTools(mcpSrv, engine)
	registerTaskTools(mcpSrv, engine)
	registerEngineerTools(mcpSrv, engine)
	registerRecommendationTool(mcpSrv, engine)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "fordela"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerProjectTools registers project create/list/archive tools.
func registerProjectTools(srv *mcpserver.MCPServer, engine *app.Service) {
	srv.AddTool(
		mcp.NewTool(
			"fordela.create_project",
			mcp.WithDescription("Create a new active project."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Project name")),
			mcp.WithString("description", mcp.Description("Optional project description")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			name, err := req.RequireString("name")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			project, err := engine.CreateProject(ctx, name, req.GetString("description", ""))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("create_project", project)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"fordela.list_projects",
			mcp.WithDescription("List projects with task counts, newest first."),
			mcp.WithBoolean("archived", mcp.Description("List archived projects instead of active ones")),
			mcp.WithNumber("page_id", mcp.Description("1-based page number")),
			mcp.WithNumber("page_size", mcp.Description("Page size")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			page, err := engine.ListProjectSummaries(ctx, req.GetBool("archived", false), app.PageRequest{
				ID:   req.GetInt("page_id", 0),
				Size: req.GetInt("page_size", 0),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("list_projects", map[string]any{
				"total_count": page.TotalCount,
				"projects":    page.Items,
			})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"fordela.archive_project",
			mcp.WithDescription("Archive a project and freeze all of its tasks. Irreversible."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			projectID, err := req.RequireString("project_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			result, err := engine.ArchiveProject(ctx, projectID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("archive_project", map[string]any{
				"archived_task_count": result.ArchivedTaskCount,
			})
		},
	)
}

// registerTaskTools registers task create/list/assign/complete/unassign tools.
func registerTaskTools(srv *mcpserver.MCPServer, engine *app.Service) {
	srv.AddTool(
		mcp.NewTool(
			"fordela.create_task",
			mcp.WithDescription("Create an open, unassigned task inside an active project."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Owning project identifier")),
			mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
			mcp.WithString("description", mcp.Description("Free-text description, also the skill-matching input")),
			mcp.WithString("priority", mcp.Description("Task priority"), mcp.Enum("low", "medium", "high", "critical")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			projectID, err := req.RequireString("project_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			title, err := req.RequireString("title")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			task, err := engine.CreateTask(ctx, app.CreateTaskInput{
				ProjectID:   projectID,
				Title:       title,
				Description: req.GetString("description", ""),
				Priority:    domain.Priority(req.GetString("priority", "")),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("create_task", task)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"fordela.list_tasks",
			mcp.WithDescription("List a project's tasks, oldest first."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
			mcp.WithNumber("page_id", mcp.Description("1-based page number")),
			mcp.WithNumber("page_size", mcp.Description("Page size")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			projectID, err := req.RequireString("project_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			page, err := engine.ListTasks(ctx, projectID, app.PageRequest{
				ID:   req.GetInt("page_id", 0),
				Size: req.GetInt("page_size", 0),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("list_tasks", map[string]any{
				"total_count": page.TotalCount,
				"tasks":       page.Items,
			})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"fordela.assign_task",
			mcp.WithDescription("Assign an open task to an available engineer, moving it to in_progress."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task identifier")),
			mcp.WithString("engineer_id", mcp.Required(), mcp.Description("Engineer identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			taskID, err := req.RequireString("task_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			engineerID, err := req.RequireString("engineer_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			task, err := engine.AssignTask(ctx, taskID, engineerID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("assign_task", task)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"fordela.complete_task",
			mcp.WithDescription("Complete an in_progress task, freeing its engineer."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			taskID, err := req.RequireString("task_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			task, err := engine.CompleteTask(ctx, taskID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("complete_task", task)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"fordela.unassign_task",
			mcp.WithDescription("Return an in_progress task to open, freeing its engineer."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			taskID, err := req.RequireString("task_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			task, err := engine.UnassignTask(ctx, taskID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("unassign_task", task)
		},
	)
}

// registerEngineerTools registers team listing and per-engineer views.
func registerEngineerTools(srv *mcpserver.MCPServer, engine *app.Service) {
	srv.AddTool(
		mcp.NewTool(
			"fordela.list_engineers",
			mcp.WithDescription("List the team with derived availability."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			team, err := engine.ListEngineers(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("list_engineers", map[string]any{
				"engineers": team,
			})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"fordela.current_task",
			mcp.WithDescription("Return an engineer's single in_progress task, if any."),
			mcp.WithString("engineer_id", mcp.Required(), mcp.Description("Engineer identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			engineerID, err := req.RequireString("engineer_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			task, ok, err := engine.CurrentTask(ctx, engineerID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			if !ok {
				return encodeToolResult("current_task", map[string]any{"task": nil})
			}
			return encodeToolResult("current_task", map[string]any{"task": task})
		},
	)
}

// registerRecommendationTool registers the assignment recommendation tool.
func registerRecommendationTool(srv *mcpserver.MCPServer, engine *app.Service) {
	srv.AddTool(
		mcp.NewTool(
			"fordela.get_recommendations",
			mcp.WithDescription("Fetch ranked engineer candidates for an open task. Suggestions are advisory; availability is re-checked at assignment."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task identifier")),
			mcp.WithNumber("limit", mcp.Description("Maximum candidates to return")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			taskID, err := req.RequireString("task_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			recs, err := engine.Recommendations(ctx, taskID, req.GetInt("limit", 0))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("get_recommendations", map[string]any{
				"recommendations": recs,
			})
		},
	)
}

// encodeToolResult wraps one payload as a JSON tool result.
func encodeToolResult(tool string, payload any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", tool, err)
	}
	return result, nil
}

// toolResultFromError maps engine errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, domain.ErrInvalidTransition):
		return mcp.NewToolResultError("invalid_transition: " + err.Error())
	case errors.Is(err, domain.ErrEngineerUnavailable):
		return mcp.NewToolResultError("engineer_unavailable: " + err.Error())
	case errors.Is(err, domain.ErrAlreadyArchived):
		return mcp.NewToolResultError("already_archived: " + err.Error())
	case errors.Is(err, domain.ErrProjectArchived):
		return mcp.NewToolResultError("project_archived: " + err.Error())
	case errors.Is(err, domain.ErrMutationInProgress):
		return mcp.NewToolResultError("mutation_in_progress: " + err.Error())
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return mcp.NewToolResultError("gateway_unavailable: " + err.Error())
	case errors.Is(err, app.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case isInvalidArgument(err):
		return mcp.NewToolResultError("invalid_argument: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}

// isInvalidArgument groups the input-validation sentinels behind one code.
func isInvalidArgument(err error) bool {
	for _, sentinel := range []error{
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
