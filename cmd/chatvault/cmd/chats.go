package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wesm/chatvault/internal/chatdb"
	"github.com/wesm/chatvault/internal/model"
)

var (
	chatsSearch string
	chatsLimit  int
	chatsJSON   bool
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List conversations",
	Long: `List conversations sorted by most recent activity.

Group chats show their stored display name; one-on-one chats show the
contact name when contact resolution is enabled, otherwise the phone
number or email address.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		chats, err := s.Chats(chatdb.ChatOptions{
			Search: chatsSearch,
			Limit:  chatsLimit,
		})
		if err != nil {
			return fmt.Errorf("list chats: %w", err)
		}

		if len(chats) == 0 {
			fmt.Println("No chats found.")
			return nil
		}
		if chatsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(chats)
		}
		return outputChatsTable(chats)
	},
}

func outputChatsTable(chats []model.ChatSummary) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSERVICE\tMESSAGES\tLAST ACTIVITY")
	fmt.Fprintln(w, "──\t────\t───────\t────────\t─────────────")

	for _, c := range chats {
		name := c.DisplayName
		if name == "" {
			name = c.Identifier
		}
		last := ""
		if !c.LastMessageDate.IsZero() {
			last = c.LastMessageDate.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
			c.ID, truncate(name, 40), c.Service, c.MessageCount, last)
	}

	w.Flush()
	fmt.Printf("\nShowing %d chats\n", len(chats))
	return nil
}

func init() {
	chatsCmd.Flags().StringVar(&chatsSearch, "search", "", "filter by identifier or display name substring")
	chatsCmd.Flags().IntVar(&chatsLimit, "limit", 50, "maximum chats to list")
	chatsCmd.Flags().BoolVar(&chatsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(chatsCmd)
}
