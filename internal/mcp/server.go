package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wesm/chatvault/internal/chatdb"
	"github.com/wesm/chatvault/internal/hybrid"
)

// Tool name constants.
const (
	ToolSearchMessages = "search_messages"
	ToolListChats      = "list_chats"
	ToolListMessages   = "list_messages"
	ToolGetMessage     = "get_message"
	ToolGetIndexStats  = "get_index_stats"
)

// Common argument helpers for recurring tool option definitions.

func withLimit(defaultDesc string) mcp.ToolOption {
	return mcp.WithNumber("limit",
		mcp.Description("Maximum results to return (default "+defaultDesc+")"),
	)
}

func withOffset() mcp.ToolOption {
	return mcp.WithNumber("offset",
		mcp.Description("Number of results to skip for pagination (default 0)"),
	)
}

func withAfter() mcp.ToolOption {
	return mcp.WithString("after",
		mcp.Description("Only messages after this date (YYYY-MM-DD)"),
	)
}

func withBefore() mcp.ToolOption {
	return mcp.WithString("before",
		mcp.Description("Only messages before this date (YYYY-MM-DD)"),
	)
}

func withChat() mcp.ToolOption {
	return mcp.WithString("chat",
		mcp.Description("Chat id, phone number, or email address to scope the search"),
	)
}

// Serve creates an MCP server with message archive tools and serves over
// stdio. It blocks until stdin is closed or the context is cancelled.
func Serve(ctx context.Context, store *chatdb.Store, searcher *hybrid.Searcher) error {
	s := server.NewMCPServer(
		"chatvault",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	h := &handlers{store: store, searcher: searcher}

	s.AddTool(searchMessagesTool(), h.searchMessages)
	s.AddTool(listChatsTool(), h.listChats)
	s.AddTool(listMessagesTool(), h.listMessages)
	s.AddTool(getMessageTool(), h.getMessage)
	s.AddTool(getIndexStatsTool(), h.getIndexStats)

	stdio := server.NewStdioServer(s)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func searchMessagesTool() mcp.Tool {
	return mcp.NewTool(ToolSearchMessages,
		mcp.WithDescription("Search messages. Hybrid mode combines exact substring, keyword (FTS5), stemmed, and semantic strategies; single modes run one strategy."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query. Keyword and stemmed modes support FTS5 syntax (AND, OR, NOT, \"phrases\")."),
		),
		mcp.WithString("mode",
			mcp.Description("Search mode (default hybrid)"),
			mcp.Enum("substring", "keyword", "stemmed", "semantic", "hybrid"),
		),
		withChat(),
		withAfter(),
		withBefore(),
		withLimit("20"),
	)
}

func listChatsTool() mcp.Tool {
	return mcp.NewTool(ToolListChats,
		mcp.WithDescription("List conversations sorted by most recent activity, with message counts."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("search",
			mcp.Description("Filter chats by identifier or display name substring"),
		),
		withLimit("50"),
	)
}

func listMessagesTool() mcp.Tool {
	return mcp.NewTool(ToolListMessages,
		mcp.WithDescription("List reconstructed messages for a chat in chronological order, with reactions and edit history folded in."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("chat",
			mcp.Required(),
			mcp.Description("Chat id, phone number, or email address"),
		),
		withAfter(),
		withBefore(),
		mcp.WithBoolean("include_unsent",
			mcp.Description("Include messages the sender retracted"),
		),
		withLimit("50"),
		withOffset(),
	)
}

func getMessageTool() mcp.Tool {
	return mcp.NewTool(ToolGetMessage,
		mcp.WithDescription("Get one reconstructed message by ID, including reactions, edit history, and reply linkage."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Message ID"),
		),
	)
}

func getIndexStatsTool() mcp.Tool {
	return mcp.NewTool(ToolGetIndexStats,
		mcp.WithDescription("Get search index statistics: indexed and embedded message counts, index sizes, and capability flags."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}
