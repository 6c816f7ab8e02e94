package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	// -------------------------------------------------------------------
	// harbor://dataset/{tokenId} — registry metadata for one dataset
	// -------------------------------------------------------------------
	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"harbor://dataset/{tokenId}",
			"Dataset Metadata",
			mcp.WithTemplateDescription(
				"Registry metadata for a single tokenized dataset: name, "+
					"description, content hash, content locator, price in wei, and tags.",
			),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleDatasetResource,
	)
}

// handleDatasetResource returns the registry metadata for one dataset.
func (s *MCPServer) handleDatasetResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	// Extract the token ID from the URI: "harbor://dataset/{tokenId}"
	uri := request.Params.URI
	idStr := strings.TrimPrefix(uri, "harbor://dataset/")
	if idStr == "" || idStr == uri {
		return nil, fmt.Errorf("invalid dataset URI %q: expected harbor://dataset/{tokenId}", uri)
	}
	tokenID, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid token ID %q in URI: %w", idStr, err)
	}

	ds, err := s.catalog.Metadata(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("dataset %d not found in the registry: %w", tokenID, err)
	}

	b, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dataset: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
