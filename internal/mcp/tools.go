package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/treenteq/harbor/internal/model"
	"github.com/treenteq/harbor/internal/quote"
)

// registerTools registers all Harbor MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Discovery tools -----

	srv.AddTool(
		mcp.NewTool("harbor_search_datasets",
			mcp.WithDescription(
				"Search the on-chain dataset registry by tag. Returns each matching "+
					"dataset's token ID, name, description, price in wei, and tags. "+
					"Use this first to discover available datasets.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("tag",
				mcp.Required(),
				mcp.Description("Tag to search for (e.g. \"climate\" or \"finance\")"),
			),
		),
		s.handleSearchDatasets,
	)

	srv.AddTool(
		mcp.NewTool("harbor_get_dataset",
			mcp.WithDescription(
				"Get the full registry metadata for a single dataset by its token ID, "+
					"including name, description, content hash, content locator, price "+
					"in wei, and tags.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithNumber("tokenId",
				mcp.Required(),
				mcp.Description("Token ID of the dataset to look up"),
			),
		),
		s.handleGetDataset,
	)

	// ----- Quote tool -----

	srv.AddTool(
		mcp.NewTool("harbor_request_quote",
			mcp.WithDescription(
				"Request a priced quote for all datasets matching a tag. Returns the "+
					"dataset list and a short-lived quote hash. The hash can be redeemed "+
					"via the authenticated HTTP API (POST /datasets) with an API key "+
					"that carries the datasets:purchase permission. Quotes expire "+
					"quickly; request a fresh one right before redeeming.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("tag",
				mcp.Required(),
				mcp.Description("Tag to quote datasets for"),
			),
		),
		s.handleRequestQuote,
	)
}

// =========================================================================
// Tool handlers
// =========================================================================

// handleSearchDatasets resolves a tag against the registry and returns the
// priced metadata for every match.
func (s *MCPServer) handleSearchDatasets(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	tag, err := requireString(request, "tag")
	if err != nil {
		return toolError("%v", err)
	}

	datasets, err := s.lookupByTag(ctx, tag)
	if err != nil {
		return toolError("Registry search for tag %q failed: %v", tag, err)
	}
	if len(datasets) == 0 {
		return toolError("No datasets found for tag %q. Try a broader tag.", tag)
	}

	return successJSON(datasets)
}

// handleGetDataset returns the registry metadata for one token ID.
func (s *MCPServer) handleGetDataset(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	tokenID, err := requireNumber(request, "tokenId")
	if err != nil {
		return toolError("%v", err)
	}
	if tokenID < 0 {
		return toolError("tokenId must be non-negative, got %d", tokenID)
	}

	ds, err := s.catalog.Metadata(ctx, uint64(tokenID))
	if err != nil {
		return toolError("Dataset %d not found in the registry: %v", tokenID, err)
	}

	return successJSON(ds)
}

// handleRequestQuote prices every dataset matching a tag and caches the
// result under a redeemable quote hash.
func (s *MCPServer) handleRequestQuote(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	tag, err := requireString(request, "tag")
	if err != nil {
		return toolError("%v", err)
	}

	datasets, err := s.lookupByTag(ctx, tag)
	if err != nil {
		return toolError("Registry search for tag %q failed: %v", tag, err)
	}
	if len(datasets) == 0 {
		return toolError("No datasets found for tag %q; nothing to quote.", tag)
	}

	hash, err := s.quotes.Put(datasets)
	if err != nil {
		return toolError("Failed to issue quote: %v", err)
	}

	return successJSON(map[string]interface{}{
		"quoteHash":        hash,
		"datasets":         datasets,
		"expiresInSeconds": int(quote.DefaultTTL.Seconds()),
		"redeemVia":        "POST /datasets with {\"quoteHash\": ..., \"tokenIds\": [...]}",
	})
}

// lookupByTag resolves a tag to its full dataset metadata list.
func (s *MCPServer) lookupByTag(ctx context.Context, tag string) ([]model.Dataset, error) {
	ids, err := s.catalog.FindByTag(ctx, tag)
	if err != nil {
		return nil, err
	}
	datasets := make([]model.Dataset, 0, len(ids))
	for _, id := range ids {
		ds, err := s.catalog.Metadata(ctx, id)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, *ds)
	}
	return datasets, nil
}
