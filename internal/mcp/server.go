package mcp

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/cryptique-io-codehub/cryptique-sub010/internal/retrieval"
)

const (
	// ServerName is the MCP server name
	ServerName = "cryptique-rag"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp          *server.MCPServer
	orchestrator *retrieval.Orchestrator
	logger       *slog.Logger
	now          func() time.Time
}

// NewServer creates a new MCP server over an orchestrator built by the caller
func NewServer(orchestrator *retrieval.Orchestrator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:          mcpServer,
		orchestrator: orchestrator,
		logger:       logger.With("component", "mcp"),
		now:          time.Now,
	}

	s.registerTools()
	return s
}

// Serve runs the MCP server on stdio until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("serving MCP over stdio", "name", ServerName, "version", ServerVersion)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(ingestAnalyticsTool(), s.handleIngestAnalytics)
	s.mcp.AddTool(searchAnalyticsTool(), s.handleSearchAnalytics)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(purgeExpiredTool(), s.handlePurgeExpired)
}
