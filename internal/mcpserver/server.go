// Package mcpserver exposes cortexkg's hybrid search, agent-memory, and
// graph-mutation operations as MCP tools, using the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk). Server is the MCP server
// cortexkg's own agent-facing tool surface runs on.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cortexkg/cortexkg/internal/agentmemory"
	"github.com/cortexkg/cortexkg/internal/config"
	"github.com/cortexkg/cortexkg/internal/graph"
	"github.com/cortexkg/cortexkg/internal/hybrid"
	"github.com/cortexkg/cortexkg/internal/observe"
	"github.com/cortexkg/cortexkg/internal/query"
	"github.com/cortexkg/cortexkg/internal/txn"
)

// serverName and serverVersion identify cortexkg to connecting MCP clients.
const (
	serverName    = "cortexkg"
	serverVersion = "1.0.0"
)

// Deps is every subsystem a tool handler needs. New wires tool handlers
// directly against these; Deps itself does not own their lifecycle.
type Deps struct {
	Graph    *graph.Store
	Txn      *txn.Manager
	Search   *hybrid.Orchestrator
	Decay    *agentmemory.DecayEngine
	Salience *agentmemory.Engine
	Context  *agentmemory.Manager
	Access   *agentmemory.Tracker
	Metrics  *observe.Metrics
	Logger   *slog.Logger

	// Analyzer, Planner, and Temporal back the kg.ask tool. Left nil, New fills in stateless defaults.
	Analyzer *query.Analyzer
	Planner  *query.Planner
	Temporal *query.TemporalParser
}

// Server wraps an *mcpsdk.Server configured with cortexkg's tool surface.
//
// The zero value is not usable; construct with [New].
type Server struct {
	deps   Deps
	cfg    config.MCPConfig
	mcp    *mcpsdk.Server
	logger *slog.Logger
}

// New builds a Server and registers the full agent integration tool
// surface: search, ask, add_entity, add_relation, remember, recall,
// reinforce, end_session, and session_chain.
func New(deps Deps, cfg config.MCPConfig) (*Server, error) {
	if deps.Graph == nil || deps.Txn == nil || deps.Search == nil {
		return nil, fmt.Errorf("mcpserver: Deps.Graph, Deps.Txn, and Deps.Search are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Analyzer == nil {
		deps.Analyzer = query.NewAnalyzer(nil)
	}
	if deps.Planner == nil {
		deps.Planner = query.NewPlanner()
	}
	if deps.Temporal == nil {
		deps.Temporal = query.NewTemporalParser(nil)
	}

	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		mcp: mcpsdk.NewServer(&mcpsdk.Implementation{
			Name:    serverName,
			Version: serverVersion,
		}, nil),
	}
	s.registerTools()
	return s, nil
}

// Serve runs the server until ctx is cancelled. When cfg.ListenAddr is
// set, tools are exposed over streamable HTTP at that address; otherwise
// the server speaks MCP over stdio, the default for agent hosts that
// spawn cortexkg as a subprocess.
func (s *Server) Serve(ctx context.Context) error {
	if s.cfg.ListenAddr != "" {
		return s.serveHTTP(ctx)
	}
	return s.serveStdio(ctx)
}

func (s *Server) serveStdio(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio")
	return s.mcp.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) serveHTTP(ctx context.Context) error {
	handler := mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return s.mcp
	}, nil)

	httpServer := &http.Server{Addr: s.cfg.ListenAddr, Handler: handler}
	s.logger.Info("mcp server listening on streamable-http", "addr", s.cfg.ListenAddr)

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return httpServer.Shutdown(context.Background())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("mcpserver: http serve: %w", err)
		}
		return nil
	}
}
