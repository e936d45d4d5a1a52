// Package mcpapi exposes the workflow service as MCP tools, served over SSE.
package mcpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/trezcool/flowboard/core"
	"github.com/trezcool/flowboard/core/workflow"
)

// BasePath is where the SSE endpoints are mounted: BasePath+"/sse" and BasePath+"/message".
const BasePath = "/mcp"

type Server struct {
	mcpServer *server.MCPServer
	svc       *workflow.Service
	logger    core.Logger
}

func NewServer(conf *core.Config, svc *workflow.Service, logger core.Logger) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			conf.AppName,
			conf.Build,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
		svc:    svc,
		logger: logger,
	}
	s.registerTools()
	return s
}

func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Handler serves the SSE transport under BasePath.
func (s *Server) Handler() http.Handler {
	return server.NewSSEServer(s.mcpServer, server.WithStaticBasePath(BasePath))
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_workflows",
			mcp.WithDescription("List workflows ordered by sequence then name"),
			mcp.WithString("search", mcp.Description("Case-insensitive match on name or description")),
			mcp.WithBoolean("active_only", mcp.Description("Only list active workflows")),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleListWorkflows,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_workflow",
			mcp.WithDescription("Get a workflow with its stage count and progress percentage"),
			mcp.WithString("id", mcp.Required(), mcp.Description("The ID of the workflow")),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleGetWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_stages",
			mcp.WithDescription("List the stages of a workflow"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow")),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleListStages,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"execute_stage",
			mcp.WithDescription("Resolve the action of a stage into an action descriptor"),
			mcp.WithString("stage_id", mcp.Required(), mcp.Description("The ID of the stage")),
		),
		s.handleExecuteStage,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"transition_to_next",
			mcp.WithDescription("Open the first next stage of a stage"),
			mcp.WithString("stage_id", mcp.Required(), mcp.Description("The ID of the stage")),
		),
		s.handleTransitionToNext,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"execute_transition",
			mcp.WithDescription("Check the guard of a transition, then resolve its action"),
			mcp.WithString("transition_id", mcp.Required(), mcp.Description("The ID of the transition")),
			mcp.WithObject("context", mcp.Description("Values the guard is evaluated against")),
		),
		s.handleExecuteTransition,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"refresh_analytics",
			mcp.WithDescription("Recount the records of every stage of a workflow"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow")),
		),
		s.handleRefreshAnalytics,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"analytics_digest",
			mcp.WithDescription("Summarize the analytics of the active workflows"),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleAnalyticsDigest,
	)
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := workflow.QueryFilter{Search: request.GetString("search", "")}
	if request.GetBool("active_only", false) {
		active := true
		filter.Active = &active
	}
	workflows, err := s.svc.QueryWorkflows(ctx, filter)
	if err != nil {
		return s.toolError("list workflows", err), nil
	}
	if workflows == nil {
		workflows = []workflow.Workflow{}
	}
	return jsonResult(workflows)
}

func (s *Server) handleGetWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.GetWorkflowDetail(ctx, id)
	if err != nil {
		return s.toolError("get workflow", err), nil
	}
	return jsonResult(detail)
}

func (s *Server) handleListStages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stages, err := s.svc.QueryStages(ctx, id)
	if err != nil {
		return s.toolError("list stages", err), nil
	}
	if stages == nil {
		stages = []workflow.Stage{}
	}
	return jsonResult(stages)
}

func (s *Server) handleExecuteStage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("stage_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := s.svc.ExecuteStage(ctx, id)
	if err != nil {
		return s.toolError("execute stage", err), nil
	}
	return jsonResult(a)
}

func (s *Server) handleTransitionToNext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("stage_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := s.svc.TransitionToNext(ctx, id)
	if err != nil {
		return s.toolError("transition to next stage", err), nil
	}
	if a == nil {
		return mcp.NewToolResultText("The stage has no next stage."), nil
	}
	return jsonResult(a)
}

func (s *Server) handleExecuteTransition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("transition_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	vars, _ := request.GetArguments()["context"].(map[string]interface{})
	a, err := s.svc.ExecuteTransition(ctx, id, vars)
	if err != nil {
		return s.toolError("execute transition", err), nil
	}
	return jsonResult(a)
}

func (s *Server) handleRefreshAnalytics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	records, err := s.svc.RefreshWorkflowAnalytics(ctx, id)
	if err != nil {
		return s.toolError("refresh analytics", err), nil
	}
	return jsonResult(records)
}

func (s *Server) handleAnalyticsDigest(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	digest, err := s.svc.BuildDigest(ctx)
	if err != nil {
		return s.toolError("build digest", err), nil
	}
	return jsonResult(digest)
}

// toolError reports err to the caller. Unexpected errors are logged too.
func (s *Server) toolError(action string, err error) *mcp.CallToolResult {
	if !workflow.IsNotFound(err) && !core.IsValidationError(err) {
		s.logger.Error(fmt.Sprintf("mcp: %s: %v", action, err), err)
	}
	return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: %v", action, err))
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}
