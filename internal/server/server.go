// Package server exposes the action router over MCP, on stdio or SSE.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/aura-assistant/aura-core/internal/apptype"
	"github.com/aura-assistant/aura-core/internal/buildinfo"
	"github.com/aura-assistant/aura-core/internal/database"
	"github.com/aura-assistant/aura-core/internal/logging"
	"github.com/aura-assistant/aura-core/internal/metrics"
	"github.com/aura-assistant/aura-core/internal/router"
)

// MCPServer handles MCP protocol communication for the action router.
type MCPServer struct {
	server *mcp.Server
	store  *database.Store
	router *router.Router
	log    *zap.Logger
}

// Option configures an MCPServer.
type Option func(*MCPServer)

// WithLogger attaches a logger; the default is a nop logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *MCPServer) { s.log = l }
}

// NewMCPServer creates the MCP server and registers all tools.
func NewMCPServer(store *database.Store, rt *router.Router, opts ...Option) *MCPServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "aura-router",
		Version: buildinfo.Version,
	}, nil)

	s := &MCPServer{
		server: server,
		store:  store,
		router: rt,
		log:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	metrics.InitFromEnv()
	s.setupToolHandlers()
	return s
}

// setupToolHandlers registers all MCP tools.
func (s *MCPServer) setupToolHandlers() {
	processInputSchema, err := jsonschema.For[apptype.ProcessUtteranceArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for ProcessUtteranceArgs: %v", err))
	}
	processOutputSchema, err := jsonschema.For[apptype.ProcessUtteranceResult]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for ProcessUtteranceResult: %v", err))
	}
	showListsInputSchema, err := jsonschema.For[apptype.ShowListsArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for ShowListsArgs: %v", err))
	}
	overviewOutputSchema, err := jsonschema.For[apptype.OverviewResult]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for OverviewResult: %v", err))
	}
	showTasksInputSchema, err := jsonschema.For[apptype.ShowTasksArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for ShowTasksArgs: %v", err))
	}
	showTasksOutputSchema, err := jsonschema.For[apptype.OverviewResult]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for OverviewResult (show_tasks): %v", err))
	}
	searchInputSchema, err := jsonschema.For[apptype.SearchTasksArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for SearchTasksArgs: %v", err))
	}
	searchOutputSchema, err := jsonschema.For[apptype.TaskListingResult]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for TaskListingResult (search): %v", err))
	}
	listingInputSchema, err := jsonschema.For[apptype.TaskListingArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for TaskListingArgs: %v", err))
	}
	completedOutputSchema, err := jsonschema.For[apptype.TaskListingResult]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for TaskListingResult (completed): %v", err))
	}
	deletedListingInputSchema, err := jsonschema.For[apptype.TaskListingArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for TaskListingArgs (deleted): %v", err))
	}
	deletedOutputSchema, err := jsonschema.For[apptype.TaskListingResult]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for TaskListingResult (deleted): %v", err))
	}
	auditInputSchema, err := jsonschema.For[apptype.AuditTrailArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for AuditTrailArgs: %v", err))
	}
	healthInputSchema, err := jsonschema.For[apptype.HealthArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for HealthArgs: %v", err))
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "process_utterance",
		Title:        "Process Utterance",
		Description:  "Interpret a natural-language request, validate and resolve the extracted actions, and apply them against the entity store.",
		InputSchema:  processInputSchema,
		OutputSchema: processOutputSchema,
	}, s.handleProcessUtterance)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "show_lists",
		Title:        "Show Lists",
		Description:  "Return every active list with its open tasks.",
		InputSchema:  showListsInputSchema,
		OutputSchema: overviewOutputSchema,
	}, s.handleShowLists)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "show_tasks",
		Title:        "Show Tasks",
		Description:  "Return the open tasks of one list, resolved by title.",
		InputSchema:  showTasksInputSchema,
		OutputSchema: showTasksOutputSchema,
	}, s.handleShowTasks)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "search_tasks",
		Title:        "Search Tasks",
		Description:  "Find active tasks whose title contains a substring.",
		InputSchema:  searchInputSchema,
		OutputSchema: searchOutputSchema,
	}, s.handleSearchTasks)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "completed_tasks",
		Title:        "Completed Tasks",
		Description:  "Return done tasks with the list each one came from.",
		InputSchema:  listingInputSchema,
		OutputSchema: completedOutputSchema,
	}, s.handleCompletedTasks)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "deleted_tasks",
		Title:        "Deleted Tasks",
		Description:  "Return soft-deleted and archived tasks that can be restored.",
		InputSchema:  deletedListingInputSchema,
		OutputSchema: deletedOutputSchema,
	}, s.handleDeletedTasks)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "audit_trail",
		Title:       "Audit Trail",
		Description: "Return the mutation history of one entity.",
		InputSchema: auditInputSchema,
	}, s.handleAuditTrail)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "health_check",
		Title:       "Health Check",
		Description: "Report server liveness and build information.",
		InputSchema: healthInputSchema,
	}, s.handleHealthCheck)
}

func (s *MCPServer) handleProcessUtterance(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.ProcessUtteranceArgs],
) (*mcp.CallToolResultFor[apptype.ProcessUtteranceResult], error) {
	done := metrics.TimeTool("process_utterance")
	success := false
	defer func() { done(success) }()

	owner := params.Arguments.OwnerID
	cctx, err := s.router.Context(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to build conversation context: %w", err)
	}
	cctx.LastList = params.Arguments.LastList
	cctx.PendingDelete = params.Arguments.PendingDelete
	if history := params.Arguments.History; len(history) > 5 {
		cctx.History = history[len(history)-5:]
	} else {
		cctx.History = history
	}

	results, err := s.router.HandleUtterance(ctx, owner, params.Arguments.Utterance, cctx)
	if err != nil {
		if errors.Is(err, apptype.ErrModelUnavailable) {
			return nil, fmt.Errorf("language model unavailable: %w", err)
		}
		return nil, err
	}
	success = true
	return &mcp.CallToolResultFor[apptype.ProcessUtteranceResult]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Applied %d action(s)", len(results))},
		},
		StructuredContent: apptype.ProcessUtteranceResult{Results: results},
	}, nil
}

func (s *MCPServer) handleShowLists(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.ShowListsArgs],
) (*mcp.CallToolResultFor[apptype.OverviewResult], error) {
	done := metrics.TimeTool("show_lists")
	success := false
	defer func() { done(success) }()

	recap, err := s.store.Overview(ctx, params.Arguments.OwnerID)
	if err != nil {
		return nil, err
	}
	success = true
	return &mcp.CallToolResultFor[apptype.OverviewResult]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%d active list(s)", len(recap))},
		},
		StructuredContent: apptype.OverviewResult{Lists: recap},
	}, nil
}

func (s *MCPServer) handleShowTasks(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.ShowTasksArgs],
) (*mcp.CallToolResultFor[apptype.OverviewResult], error) {
	done := metrics.TimeTool("show_tasks")
	success := false
	defer func() { done(success) }()

	result, err := s.router.Apply(ctx, params.Arguments.OwnerID, apptype.Action{
		Kind: apptype.ActionShowTasks,
		List: params.Arguments.List,
	})
	if err != nil {
		return nil, err
	}
	if result.Outcome != apptype.OutcomeApplied {
		return nil, fmt.Errorf("list %q: %s", params.Arguments.List, result.Outcome)
	}
	success = true
	return &mcp.CallToolResultFor[apptype.OverviewResult]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%d open task(s)", len(result.Recap[0].Tasks))},
		},
		StructuredContent: apptype.OverviewResult{Lists: result.Recap},
	}, nil
}

func (s *MCPServer) handleSearchTasks(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.SearchTasksArgs],
) (*mcp.CallToolResultFor[apptype.TaskListingResult], error) {
	done := metrics.TimeTool("search_tasks")
	success := false
	defer func() { done(success) }()

	tasks, err := s.store.SearchTasks(ctx, params.Arguments.OwnerID, params.Arguments.Pattern)
	if err != nil {
		return nil, err
	}
	success = true
	return &mcp.CallToolResultFor[apptype.TaskListingResult]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%d match(es)", len(tasks))},
		},
		StructuredContent: apptype.TaskListingResult{Tasks: tasks},
	}, nil
}

func (s *MCPServer) handleCompletedTasks(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.TaskListingArgs],
) (*mcp.CallToolResultFor[apptype.TaskListingResult], error) {
	done := metrics.TimeTool("completed_tasks")
	success := false
	defer func() { done(success) }()

	tasks, err := s.store.CompletedTasks(ctx, params.Arguments.OwnerID)
	if err != nil {
		return nil, err
	}
	success = true
	return &mcp.CallToolResultFor[apptype.TaskListingResult]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%d completed task(s)", len(tasks))},
		},
		StructuredContent: apptype.TaskListingResult{Tasks: tasks},
	}, nil
}

func (s *MCPServer) handleDeletedTasks(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.TaskListingArgs],
) (*mcp.CallToolResultFor[apptype.TaskListingResult], error) {
	done := metrics.TimeTool("deleted_tasks")
	success := false
	defer func() { done(success) }()

	tasks, err := s.store.DeletedTasks(ctx, params.Arguments.OwnerID)
	if err != nil {
		return nil, err
	}
	success = true
	return &mcp.CallToolResultFor[apptype.TaskListingResult]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%d deleted task(s)", len(tasks))},
		},
		StructuredContent: apptype.TaskListingResult{Tasks: tasks},
	}, nil
}

func (s *MCPServer) handleAuditTrail(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.AuditTrailArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeTool("audit_trail")
	success := false
	defer func() { done(success) }()

	trail, err := s.store.AuditTrail(ctx, params.Arguments.EntityID, params.Arguments.OwnerID)
	if err != nil {
		return nil, err
	}
	payload, err := json.MarshalIndent(trail, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit trail: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(payload)},
		},
	}, nil
}

func (s *MCPServer) handleHealthCheck(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.HealthArgs],
) (*mcp.CallToolResultFor[any], error) {
	inUse, idle := s.store.PoolStats()
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("ok version=%s revision=%s pool_in_use=%d pool_idle=%d",
					buildinfo.Version, buildinfo.Revision, inUse, idle),
			},
		},
	}, nil
}

// Run serves MCP over stdio until ctx is canceled.
func (s *MCPServer) Run(ctx context.Context) error {
	s.reportPoolStats(ctx)
	transport := mcp.NewStdioTransport()
	return s.server.Run(ctx, transport)
}

// RunSSE starts the MCP server over SSE at the given address and endpoint.
func (s *MCPServer) RunSSE(ctx context.Context, addr, endpoint string) error {
	s.reportPoolStats(ctx)
	handler := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server { return s.server })
	mux := http.NewServeMux()
	mux.Handle(endpoint, handler)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("SSE MCP server listening", zap.String("addr", addr), zap.String("endpoint", endpoint))
	return srv.ListenAndServe()
}

// reportPoolStats publishes connection pool gauges every few seconds.
func (s *MCPServer) reportPoolStats(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				inUse, idle := s.store.PoolStats()
				metrics.Default().ObservePoolStats(inUse, idle)
			}
		}
	}()
}
