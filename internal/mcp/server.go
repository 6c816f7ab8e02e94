package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/treenteq/harbor/internal/model"
	"github.com/treenteq/harbor/internal/quote"
)

// Catalog is the read-only slice of the dataset registry the MCP tools need.
type Catalog interface {
	FindByTag(ctx context.Context, tag string) ([]uint64, error)
	Metadata(ctx context.Context, tokenID uint64) (*model.Dataset, error)
}

// MCPServer wraps the mcp-go server with Harbor-specific tool and resource
// registrations. It exposes the on-chain dataset catalog as MCP tools so AI
// agents can discover datasets and obtain redeemable quotes. Purchases stay
// on the authenticated HTTP API; every MCP tool here is read-only.
type MCPServer struct {
	catalog Catalog
	quotes  *quote.Cache
	logger  *slog.Logger
	server  *server.MCPServer
}

// NewMCPServer creates an MCPServer pre-loaded with all Harbor tools and
// resources. The returned server is ready to serve over stdio or HTTP.
func NewMCPServer(catalog Catalog, quotes *quote.Cache, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		catalog: catalog,
		quotes:  quotes,
		logger:  logger,
	}

	mcpServer := server.NewMCPServer(
		"Harbor Dataset API",
		"0.1.0",
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance. Useful for
// advanced configuration or testing.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode. This is the primary
// integration path for MCP clients that launch the server as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

// ServeHTTP starts the MCP server in Streamable HTTP mode, listening on
// the given address (e.g. ":3001"). This is suitable for remote MCP clients.
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return httpServer.Start(addr)
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
