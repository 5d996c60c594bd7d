package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wesm/chatvault/internal/hybrid"
)

var (
	searchMode   string
	searchChat   string
	searchAfter  string
	searchBefore string
	searchLimit  int
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search messages across all strategies",
	Long: `Search your message archive.

Modes:
  substring  Exact text containment, scanned from the source database
  keyword    FTS5 keyword search against the index (supports AND, OR,
             NOT, NEAR, and "quoted phrases")
  stemmed    FTS5 over stemmed text, so 'running' matches run/runs/runner
  semantic   Embedding similarity for meaning-based queries
  hybrid     All of the above with weighted score fusion (default)

Keyword, stemmed, and semantic modes need an index; run
'chatvault index' first. Substring mode works without one.

Examples:
  chatvault search "dinner plans"
  chatvault search running --mode stemmed
  chatvault search "what time should we meet" --mode semantic
  chatvault search lunch --chat "+15551234567"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		queryStr := strings.Join(args, " ")

		mode, err := hybrid.ParseMode(searchMode)
		if err != nil {
			return err
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		searcher, closeIndexes, err := openSearcher(s, mode)
		if err != nil {
			return err
		}
		defer closeIndexes()

		limit := searchLimit
		if limit <= 0 {
			limit = cfg.Search.DefaultLimit
		}
		opts := hybrid.Options{Limit: limit}
		if searchChat != "" {
			if opts.ChatIDs, err = s.ResolveChats(searchChat); err != nil {
				return err
			}
		}
		if opts.After, err = parseDateFlag(searchAfter, "after"); err != nil {
			return err
		}
		if opts.Before, err = parseDateFlag(searchBefore, "before"); err != nil {
			return err
		}

		hits, err := searcher.Search(cmd.Context(), queryStr, mode, opts)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		if len(hits) == 0 {
			fmt.Println("No messages found.")
			return nil
		}
		if searchJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(hits)
		}
		return outputHitsTable(hits)
	},
}

func outputHitsTable(hits []hybrid.Hit) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tSCORE\tFOUND BY\tTEXT")
	fmt.Fprintln(w, "──\t────\t─────\t────────\t────")

	for _, h := range hits {
		text := h.Snippet
		if text == "" {
			text = h.Text
		}
		text = strings.ReplaceAll(text, "\n", " ")
		fmt.Fprintf(w, "%d\t%s\t%.2f\t%s\t%s\n",
			h.MessageID,
			h.Date.Format("2006-01-02"),
			h.Combined,
			strings.Join(h.FoundBy, ","),
			truncate(text, 60))
	}

	w.Flush()
	fmt.Printf("\nShowing %d results\n", len(hits))
	return nil
}

func init() {
	searchCmd.Flags().StringVar(&searchMode, "mode", string(hybrid.ModeHybrid), "search mode (substring, keyword, stemmed, semantic, hybrid)")
	searchCmd.Flags().StringVar(&searchChat, "chat", "", "limit to a chat (id, phone number, or email)")
	searchCmd.Flags().StringVar(&searchAfter, "after", "", "only messages after this date (YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchBefore, "before", "", "only messages before this date (YYYY-MM-DD)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum results (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(searchCmd)
}
