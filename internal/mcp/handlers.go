package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wesm/chatvault/internal/chatdb"
	"github.com/wesm/chatvault/internal/hybrid"
	"github.com/wesm/chatvault/internal/searchindex"
	"github.com/wesm/chatvault/internal/semantic"
)

const maxLimit = 1000

type handlers struct {
	store    *chatdb.Store
	searcher *hybrid.Searcher
}

// getIDArg extracts a required positive integer ID from the arguments map.
func getIDArg(args map[string]any, key string) (int64, error) {
	v, ok := args[key].(float64)
	if !ok {
		return 0, fmt.Errorf("%s parameter is required", key)
	}
	if v != math.Trunc(v) || v < 1 || v > math.MaxInt64 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return int64(v), nil
}

// getDateArg extracts an optional date (YYYY-MM-DD) from the arguments map.
func getDateArg(args map[string]any, key string) (*time.Time, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s date %q: expected YYYY-MM-DD", key, v)
	}
	return &t, nil
}

// resolveChatArg turns an optional chat reference into chat ids.
// An absent argument means no chat filter.
func (h *handlers) resolveChatArg(args map[string]any, key string) ([]int64, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return nil, nil
	}
	return h.store.ResolveChats(v)
}

func (h *handlers) searchMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	queryStr, _ := args["query"].(string)
	if queryStr == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	mode := hybrid.ModeHybrid
	if v, ok := args["mode"].(string); ok && v != "" {
		var err error
		if mode, err = hybrid.ParseMode(v); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	opts := hybrid.Options{Limit: limitArg(args, "limit", 20)}
	var err error
	if opts.ChatIDs, err = h.resolveChatArg(args, "chat"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if opts.After, err = getDateArg(args, "after"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if opts.Before, err = getDateArg(args, "before"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	hits, err := h.searcher.Search(ctx, queryStr, mode, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return jsonResult(hits)
}

func (h *handlers) listChats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	opts := chatdb.ChatOptions{Limit: limitArg(args, "limit", 50)}
	if v, ok := args["search"].(string); ok {
		opts.Search = v
	}

	chats, err := h.store.Chats(opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list chats failed: %v", err)), nil
	}
	return jsonResult(chats)
}

func (h *handlers) listMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	chatRef, _ := args["chat"].(string)
	if chatRef == "" {
		return mcp.NewToolResultError("chat parameter is required"), nil
	}
	chatIDs, err := h.store.ResolveChats(chatRef)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("resolve chat: %v", err)), nil
	}

	opts := chatdb.MessageOptions{
		ChatIDs: chatIDs,
		Limit:   limitArg(args, "limit", 50),
		Offset:  limitArg(args, "offset", 0),
	}
	if v, ok := args["include_unsent"].(bool); ok {
		opts.IncludeUnsent = v
	}
	if opts.After, err = getDateArg(args, "after"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if opts.Before, err = getDateArg(args, "before"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	msgs, err := h.store.Messages(opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	return jsonResult(msgs)
}

func (h *handlers) getMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	id, err := getIDArg(args, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	msg, err := h.store.Message(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("message not found: %v", err)), nil
	}
	return jsonResult(msg)
}

func (h *handlers) getIndexStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp := struct {
		FTS      *searchindex.Stats `json:"fts,omitempty"`
		Semantic *semantic.Stats    `json:"semantic,omitempty"`
	}{}

	if h.searcher.Index != nil {
		st, err := h.searcher.Index.Stats()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("fts stats failed: %v", err)), nil
		}
		resp.FTS = &st
	}
	if h.searcher.Vectors != nil {
		st, err := h.searcher.Vectors.Stats()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("semantic stats failed: %v", err)), nil
		}
		resp.Semantic = &st
	}
	return jsonResult(resp)
}

// limitArg extracts a non-negative integer limit from a map, with a default.
// JSON numbers arrive as float64. Clamps to maxLimit to prevent excessive
// result sets.
func limitArg(args map[string]any, key string, def int) int {
	v, ok := args[key].(float64)
	if !ok {
		return def
	}
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) || v > float64(maxLimit) {
		return maxLimit
	}
	return int(v)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
