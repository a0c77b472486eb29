package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/recap/internal/workflow"
)

// MCPDeps holds dependencies for the MCP tool server. It reuses the API's
// consumer interfaces so the same wiring serves both surfaces.
type MCPDeps struct {
	Store     Store
	Sync      Synchronizer
	Workflows WorkflowRunner
}

// NewMCPServer creates an MCP server exposing summary generation, sync, and
// preference inspection to agent clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"recap",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("recap is a workspace chat summarizer: sync Slack history and generate EOD/EOW summaries."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("generate_summary",
			mcp.WithDescription("Generate an EOD or EOW summary from stored Slack messages."),
			mcp.WithString("type", mcp.Description("Summary type: EOD or EOW"), mcp.Required()),
			mcp.WithString("style", mcp.Description("Summary style: technical, executive, or detailed")),
			mcp.WithArray("channels", mcp.Description("Optional channel IDs to restrict the summary to")),
		),
		mcpGenerateSummary(deps),
	)

	s.AddTool(
		mcp.NewTool("sync_messages",
			mcp.WithDescription("Pull recent Slack channel history into local storage."),
			mcp.WithNumber("window_hours", mcp.Description("How far back to sync (default 24)")),
		),
		mcpSyncMessages(deps),
	)

	s.AddTool(
		mcp.NewTool("get_preferences",
			mcp.WithDescription("Read the current summarization preferences."),
		),
		mcpGetPreferences(deps),
	)

	s.AddTool(
		mcp.NewTool("list_summaries",
			mcp.WithDescription("List recently generated summaries with previews."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpListSummaries(deps),
	)

	return s
}

func mcpGenerateSummary(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		summaryType, err := req.RequireString("type")
		if err != nil {
			return mcpError("type is required"), nil
		}
		if summaryType != "EOD" && summaryType != "EOW" {
			return mcpError("type must be EOD or EOW"), nil
		}

		summary, err := deps.Workflows.Run(ctx, workflow.Request{
			Type:     summaryType,
			Style:    req.GetString("style", ""),
			Channels: req.GetStringSlice("channels", nil),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("summary generation failed: %v", err)), nil
		}
		if summary == nil {
			return mcpText("No messages found in the requested window."), nil
		}

		b, err := json.Marshal(summaryResponse(*summary))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal summary: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSyncMessages(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		hours := req.GetInt("window_hours", 24)
		if hours <= 0 || hours > 24*30 {
			return mcpError("window_hours must be between 1 and 720"), nil
		}

		res, err := deps.Sync.Sync(ctx, time.Duration(hours)*time.Hour)
		if err != nil {
			return mcpError(fmt.Sprintf("sync failed: %v", err)), nil
		}

		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetPreferences(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prefs, err := deps.Store.GetPreferences()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load preferences: %v", err)), nil
		}
		b, err := json.Marshal(preferencesResponse(prefs))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal preferences: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListSummaries(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 50 {
			limit = 50
		}

		summaries, err := deps.Store.ListSummaries(limit, 0)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list summaries: %v", err)), nil
		}
		if len(summaries) == 0 {
			return mcpText("[]"), nil
		}

		type summaryPreview struct {
			ID           string `json:"id"`
			Type         string `json:"type"`
			Preview      string `json:"preview"`
			MessageCount int    `json:"message_count"`
			GeneratedAt  string `json:"generated_at"`
		}
		out := make([]summaryPreview, len(summaries))
		for i, s := range summaries {
			out[i] = summaryPreview{
				ID:           s.ID,
				Type:         s.Type,
				Preview:      truncateRunes(s.SummaryText, summaryPreviewLen),
				MessageCount: s.MessageCount,
				GeneratedAt:  s.GeneratedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal summaries: %v", err)), nil
		}
		return mcpText(string(b)), nil
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
