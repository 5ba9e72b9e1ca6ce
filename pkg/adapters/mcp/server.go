// Package mcp exposes a weft engine to MCP clients: tools to list
// workflows, start runs and inspect, signal or cancel them.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/internal/presentation/graph"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Engine is the part of weft.Engine the MCP server needs.
type Engine interface {
	ListWorkflows(ctx context.Context) ([]domain.WorkflowMetadata, error)
	Definition(ctx context.Context, name domain.WorkflowName) (*domain.WorkflowDefinition, error)
	Start(ctx context.Context, name domain.WorkflowName, vars map[string]any) (*domain.Run, error)
	Status(ctx context.Context, id string) (*domain.Run, error)
	Cancel(ctx context.Context, id string) error
	Signal(ctx context.Context, id, name string) error
	Logs(ctx context.Context, id string, query domain.LogQuery) ([]domain.LogEntry, error)
}

// RunResponse is returned by the tools that act on a run.
type RunResponse struct {
	Run *domain.Run `json:"run" jsonschema_description:"The run after the operation"`
}

// WorkflowsResponse is returned by list_workflows.
type WorkflowsResponse struct {
	Workflows []domain.WorkflowMetadata `json:"workflows" jsonschema_description:"Workflows known to the engine"`
}

// LogsResponse is returned by get_logs.
type LogsResponse struct {
	Entries []domain.LogEntry `json:"entries" jsonschema_description:"Log lines of the run, oldest first"`
}

// Server wraps the weft Engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		engine:    engine,
		logger:    logger,
		mcpServer: server.NewMCPServer("weft-mcp", strings.TrimSpace(version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_workflows",
		mcp.WithDescription("List the workflows available to start, with their parameters."),
		mcp.WithOutputSchema[WorkflowsResponse](),
	), mcp.NewStructuredToolHandler(s.handleListWorkflows))

	s.mcpServer.AddTool(mcp.NewTool("start_run",
		mcp.WithDescription("Start a run of a workflow in the background and return it."),
		mcp.WithString("workflow", mcp.Required(), mcp.Description("Workflow name")),
		mcp.WithString("vars", mcp.Description("JSON object of run variables (optional)")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleStartRun))

	s.mcpServer.AddTool(mcp.NewTool("get_run",
		mcp.WithDescription("Get the status, current state, context and history of a run."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run ID")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetRun))

	s.mcpServer.AddTool(mcp.NewTool("get_logs",
		mcp.WithDescription("Read the log lines of a run."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run ID")),
		mcp.WithNumber("tail", mcp.Description("Only the last N lines (optional)")),
		mcp.WithString("level", mcp.Description("Minimum level: debug, info, warn or error (optional)")),
		mcp.WithOutputSchema[LogsResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetLogs))

	s.mcpServer.AddTool(mcp.NewTool("cancel_run",
		mcp.WithDescription("Cancel a run that has not finished."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run ID")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleCancelRun))

	s.mcpServer.AddTool(mcp.NewTool("send_signal",
		mcp.WithDescription("Deliver a named signal to a run waiting for it."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run ID")),
		mcp.WithString("signal", mcp.Required(), mcp.Description("Signal name")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleSignal))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the mermaid diagram of a workflow, optionally with a run's progress."),
		mcp.WithString("workflow", mcp.Required(), mcp.Description("Workflow name")),
		mcp.WithString("run_id", mcp.Description("Run whose progress is overlaid (optional)")),
	), s.handleGetGraph)
}

// Handler methods for structured tools

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (WorkflowsResponse, error) {
	list, err := s.engine.ListWorkflows(ctx)
	if err != nil {
		return WorkflowsResponse{}, fmt.Errorf("list failed: %w", err)
	}
	return WorkflowsResponse{Workflows: list}, nil
}

func (s *Server) handleStartRun(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RunResponse, error) {
	name, _ := args["workflow"].(string)
	if name == "" {
		return RunResponse{}, errors.New("workflow is required")
	}
	var vars map[string]any
	if raw, ok := args["vars"].(string); ok && strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &vars); err != nil {
			return RunResponse{}, fmt.Errorf("vars must be a JSON object: %w", err)
		}
	}
	// The run outlives the tool call.
	run, err := s.engine.Start(context.WithoutCancel(ctx), domain.WorkflowName(name), vars)
	if err != nil {
		return RunResponse{}, fmt.Errorf("start failed: %w", err)
	}
	s.logger.Info("MCP: run started", "run_id", run.ID, "workflow", name)
	return RunResponse{Run: run}, nil
}

func (s *Server) handleGetRun(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RunResponse, error) {
	run, err := s.engine.Status(ctx, runID(args))
	if err != nil {
		return RunResponse{}, err
	}
	return RunResponse{Run: run}, nil
}

func (s *Server) handleGetLogs(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (LogsResponse, error) {
	id := runID(args)
	if _, err := s.engine.Status(ctx, id); err != nil {
		return LogsResponse{}, err
	}
	var query domain.LogQuery
	if tail, ok := args["tail"].(float64); ok && tail > 0 {
		query.Tail = int(tail)
	}
	if lvl, ok := args["level"].(string); ok && lvl != "" {
		level, err := logging.ParseLevel(lvl)
		if err != nil {
			return LogsResponse{}, err
		}
		query.MinLevel = level
	}
	entries, err := s.engine.Logs(ctx, id, query)
	if err != nil {
		return LogsResponse{}, err
	}
	return LogsResponse{Entries: entries}, nil
}

func (s *Server) handleCancelRun(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RunResponse, error) {
	id := runID(args)
	if err := s.engine.Cancel(ctx, id); err != nil {
		return RunResponse{}, fmt.Errorf("cancel failed: %w", err)
	}
	return s.handleGetRun(ctx, request, args)
}

func (s *Server) handleSignal(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RunResponse, error) {
	signal, _ := args["signal"].(string)
	if signal == "" {
		return RunResponse{}, errors.New("signal is required")
	}
	if err := s.engine.Signal(ctx, runID(args), signal); err != nil {
		return RunResponse{}, fmt.Errorf("signal failed: %w", err)
	}
	return s.handleGetRun(ctx, request, args)
}

func (s *Server) handleGetGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	name, _ := args["workflow"].(string)
	def, err := s.engine.Definition(ctx, domain.WorkflowName(name))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow %q: %v", name, err)), nil
	}
	var overlay *graph.GraphOverlay
	if id := runID(args); id != "" {
		run, err := s.engine.Status(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run %q: %v", id, err)), nil
		}
		if run.Definition != nil {
			def = run.Definition
		}
		overlay = graph.OverlayFromRun(run)
	}
	return mcp.NewToolResultText(graph.RenderDiagram(def, overlay)), nil
}

func runID(args map[string]interface{}) string {
	id, _ := args["run_id"].(string)
	return strings.TrimSpace(id)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("weft://workflows", "Available Workflows",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list, err := s.engine.ListWorkflows(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list workflows: %w", err)
		}
		jsonBytes, _ := json.Marshal(list)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "weft://workflows",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
