package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/meheroob/stremlit-agentic-ai/internal/ingest"
	"github.com/meheroob/stremlit-agentic-ai/internal/retrieval"
	"github.com/meheroob/stremlit-agentic-ai/internal/storage"
)

const recentInteractionsLimit = 10

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Corpus    CorpusCounter
	Retriever Searcher
}

// NewMCPServer creates an MCP server exposing the pension reference corpus
// and recent advisor activity.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"advisor",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("advisor: search the pension reference corpus and inspect recent customer interactions."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("search_corpus",
			mcp.WithDescription("Semantically search the pension reference corpus and return the best matching chunks with scores."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("top_k", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchCorpus(deps),
	)

	s.AddTool(
		mcp.NewTool("corpus_stats",
			mcp.WithDescription("Report the number of corpus rows and the last completed build."),
		),
		mcpCorpusStats(deps),
	)

	s.AddTool(
		mcp.NewTool("rebuild_corpus",
			mcp.WithDescription("Queue a rebuild of the reference corpus from the document store."),
			mcp.WithString("prefix", mcp.Description("Document prefix to read (default from configuration)")),
		),
		mcpRebuildCorpus(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"interactions://recent",
			"Recent Interactions",
			mcp.WithResourceDescription("Last 10 answered chat turns"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpSearchCorpus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || query == "" {
			return mcpError("query is required"), nil
		}

		topK := req.GetInt("top_k", defaultSearchTopK)
		if topK <= 0 {
			topK = defaultSearchTopK
		}
		topK = min(topK, maxSearchTopK)

		results, err := deps.Retriever.Retrieve(ctx, query, topK)
		if errors.Is(err, retrieval.ErrEmptyCorpus) {
			return mcpError("the corpus has not been built yet"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		b, err := json.Marshal(newSearchHits(results))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCorpusStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := loadCorpusStats(ctx, deps.Store, deps.Corpus)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read corpus stats: %v", err)), nil
		}
		b, err := json.Marshal(stats)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRebuildCorpus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := ingest.EnqueueRebuild(deps.Store, req.GetString("prefix", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to queue rebuild: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Queued corpus rebuild job %s", id)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		interactions, err := deps.Store.GetRecentInteractions(recentInteractionsLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent interactions: %w", err)
		}

		type interactionSummary struct {
			ID         string `json:"id"`
			CreatedAt  string `json:"created_at"`
			CustomerID string `json:"customer_id"`
			Domain     string `json:"domain"`
			Query      string `json:"query"`
			Fallback   bool   `json:"fallback"`
		}

		summaries := make([]interactionSummary, len(interactions))
		for i, ix := range interactions {
			query := ix.UserQuery
			if utf8.RuneCountInString(query) > 200 {
				runes := []rune(query)
				query = string(runes[:200]) + "..."
			}
			summaries[i] = interactionSummary{
				ID:         ix.ID,
				CreatedAt:  ix.CreatedAt.Format(time.RFC3339),
				CustomerID: ix.CustomerID,
				Domain:     ix.Domain,
				Query:      query,
				Fallback:   ix.Fallback,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal interactions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
