package cmd

import (
	"github.com/spf13/cobra"

	"github.com/wesm/chatvault/internal/hybrid"
	mcpserver "github.com/wesm/chatvault/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run MCP server for Claude Desktop integration",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

This allows Claude Desktop (or any MCP client) to query your message
archive using tools like search_messages, list_chats, list_messages,
get_message, and get_index_stats.

Add to Claude Desktop config:
  {
    "mcpServers": {
      "chatvault": {
        "command": "chatvault",
        "args": ["mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		// Missing indexes degrade to substring-only search rather than
		// blocking the server.
		searcher, closeIndexes, err := openSearcher(s, hybrid.ModeHybrid)
		if err != nil {
			return err
		}
		defer closeIndexes()

		return mcpserver.Serve(cmd.Context(), s, searcher)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
