package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/lendflow/internal/engine"
	"github.com/rendis/lendflow/internal/logging"
	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/internal/streaming"
	"github.com/rendis/lendflow/internal/validation"
	"github.com/rendis/lendflow/pkg/schema"
)

// Runner starts runs. Satisfied by *engine.Executor.
type Runner interface {
	Execute(ctx context.Context, req schema.TriggerRequest) (string, error)
	HandleEvent(ctx context.Context, event schema.TriggerEvent) ([]string, error)
}

// Sweeper runs one sweep. Satisfied by *engine.Sweeper.
type Sweeper interface {
	Sweep(ctx context.Context) (*schema.SweepSummary, error)
}

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Store   store.Store
	Catalog *engine.Catalog
	Ledger  *engine.Ledger
	Runner  Runner
	Sweeper Sweeper
	Hub     streaming.EventHub // nil disables run watching
	Logger  *slog.Logger
}

// Server wraps an MCP server with the lendflow tool handlers.
type Server struct {
	store     store.Store
	catalog   *engine.Catalog
	ledger    *engine.Ledger
	runner    Runner
	sweeper   Sweeper
	hub       streaming.EventHub
	validate  *validator.Validate
	sessions  *SessionRegistry
	notifier  *RunNotifier
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with all five tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &Server{
		store:    deps.Store,
		catalog:  deps.Catalog,
		ledger:   deps.Ledger,
		runner:   deps.Runner,
		sweeper:  deps.Sweeper,
		hub:      deps.Hub,
		validate: validation.NewRequestValidator(),
		sessions: NewSessionRegistry(),
		logger:   logging.WithModule(logger, "mcp"),
	}

	mcpSrv := server.NewMCPServer(
		"lendflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Lendflow runs commercial-lending workflow automations. Use lendflow.define to register a workflow, lendflow.trigger to start a run (or fan an event out to matching workflows), lendflow.sweep to execute due delayed actions, lendflow.status to inspect a run, and lendflow.query to list workflows, runs, scheduled actions or notifications."),
	)
	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewRunNotifier(mcpSrv, s.sessions, s.logger)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or
// stdin closes. Run events are forwarded to watching sessions meanwhile.
func (s *Server) Serve(ctx context.Context) error {
	if s.hub != nil {
		ch, cancel, err := s.hub.Subscribe(ctx, streaming.EventFilter{})
		if err != nil {
			return err
		}
		defer cancel()
		go s.notifier.Forward(ctx, ch)
	}
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: triggerTool(), Handler: s.handleTrigger},
		{Tool: sweepTool(), Handler: s.handleSweep},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func triggerTool() mcp.Tool {
	return mcp.NewTool("lendflow.trigger",
		mcp.WithDescription("Start a workflow run, or fan an event out to every matching active workflow when workflow_id is omitted"),
		mcp.WithString("workflow_id", mcp.Description("ID of the workflow to run")),
		mcp.WithString("trigger_type", mcp.Description("Trigger type; required when workflow_id is omitted")),
		mcp.WithObject("trigger_data", mcp.Description("Trigger payload; keys are available as {{key}} placeholders")),
		mcp.WithArray("actions", mcp.Description("Action definitions replacing the stored list for this run only")),
		mcp.WithBoolean("watch", mcp.Description("Push this run's events to the calling session")),
	)
}

func sweepTool() mcp.Tool {
	return mcp.NewTool("lendflow.sweep",
		mcp.WithDescription("Execute every due delayed action once"),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("lendflow.status",
		mcp.WithDescription("Get a run's status and ordered action results"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the run to query")),
	)
}

func defineTool() mcp.Tool {
	return mcp.NewTool("lendflow.define",
		mcp.WithDescription("Validate and store a workflow definition"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Workflow definition: name, triggerType, triggerConfig, conditions, actions")),
		mcp.WithString("id", mcp.Description("Workflow ID (default: generated)")),
		mcp.WithBoolean("active", mcp.Description("Whether the workflow may run (default: true)")),
		mcp.WithBoolean("replace", mcp.Description("Overwrite an existing workflow with the same ID")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("lendflow.query",
		mcp.WithDescription("Query workflows, runs, scheduled actions, or notifications"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("workflows", "runs", "scheduled_actions", "notifications"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (trigger_type, active, workflow_id, run_id, status, user_id, deal_id, limit)")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("lendflow.diagram",
		mcp.WithDescription("Render a workflow as Mermaid, ASCII art, or a PNG image, optionally overlaid with a run's results"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to render")),
		mcp.WithString("run_id", mcp.Description("Run whose action results are overlaid")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "image"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), or image (PNG)"),
		),
	)
}
