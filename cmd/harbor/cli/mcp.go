package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/treenteq/harbor/internal/config"
	"github.com/treenteq/harbor/internal/ledger"
	hmcp "github.com/treenteq/harbor/internal/mcp"
	"github.com/treenteq/harbor/internal/quote"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes the dataset
catalog as read-only tools for AI agents. Supports stdio (default) and HTTP
transports.

In stdio mode, the MCP server communicates over stdin/stdout using JSON-RPC,
suitable for direct integration with Claude Desktop or other MCP clients.

In HTTP mode, the server listens on the specified port for streamable HTTP
connections.`,
		Example: `  harbor mcp                               # stdio mode (for Claude Desktop)
  harbor mcp --transport http --port 3001  # HTTP mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")

	return cmd
}

func runMCP(transport string, port int) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := config.FromViper()
	if cfg.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is not configured (set HARBOR_CHAIN_RPC_URL or harbor.yaml)")
	}
	if cfg.Chain.RegistryContract == "" {
		return fmt.Errorf("chain.registry_contract is not configured")
	}

	registry := ledger.NewRegistry(cfg.Chain.RPCURL, cfg.Chain.RegistryContract, ledger.Options{
		ChainID:         cfg.Chain.ChainID,
		ConfirmTimeout:  cfg.Chain.ConfirmTimeout,
		ConfirmInterval: cfg.Chain.ConfirmInterval,
	})
	quotes := quote.NewCache(quote.WithTTL(cfg.Quote.TTL))

	mcpSrv := hmcp.NewMCPServer(registry, quotes, logger)

	switch transport {
	case "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		addr := fmt.Sprintf(":%d", port)
		logger.Info("starting MCP HTTP server", "addr", addr)
		return mcpSrv.ServeHTTP(addr)
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}
}
