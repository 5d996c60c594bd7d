package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wesm/chatvault/internal/chatdb"
	"github.com/wesm/chatvault/internal/model"
)

var (
	messagesAfter         string
	messagesBefore        string
	messagesLimit         int
	messagesOffset        int
	messagesIncludeUnsent bool
	messagesReverse       bool
	messagesJSON          bool
)

var messagesCmd = &cobra.Command{
	Use:   "messages <chat>",
	Short: "List messages in a conversation",
	Long: `List reconstructed messages for a chat in chronological order.

The chat argument is a numeric chat id (from 'chatvault chats'), a phone
number, or an email address. Phone numbers match regardless of
formatting: +1 (555) 123-4567 finds the same chat as 5551234567.

Reactions and edit history are folded into each message; edited messages
show their newest text.

Examples:
  chatvault messages 42
  chatvault messages "+15551234567" --limit 20
  chatvault messages alice@example.com --after 2024-06-01`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		chatIDs, err := s.ResolveChats(args[0])
		if err != nil {
			return err
		}

		opts := chatdb.MessageOptions{
			ChatIDs:       chatIDs,
			Limit:         messagesLimit,
			Offset:        messagesOffset,
			IncludeUnsent: messagesIncludeUnsent,
			Reverse:       messagesReverse,
		}
		if opts.After, err = parseDateFlag(messagesAfter, "after"); err != nil {
			return err
		}
		if opts.Before, err = parseDateFlag(messagesBefore, "before"); err != nil {
			return err
		}

		msgs, err := s.Messages(opts)
		if err != nil {
			return fmt.Errorf("list messages: %w", err)
		}

		if len(msgs) == 0 {
			fmt.Println("No messages found.")
			return nil
		}
		if messagesJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(msgs)
		}
		for _, m := range msgs {
			printMessage(m)
		}
		fmt.Printf("\nShowing %d messages\n", len(msgs))
		return nil
	},
}

// printMessage renders one message in conversation form.
func printMessage(m model.Message) {
	sender := "Me"
	if !m.IsFromMe {
		sender = "Unknown"
		if m.Sender != nil {
			sender = m.Sender.DisplayName
			if sender == "" {
				sender = m.Sender.Identifier
			}
		}
	}

	var marks []string
	if m.IsEdited {
		marks = append(marks, "edited")
	}
	if m.IsUnsent {
		marks = append(marks, "unsent")
	}
	if m.ReplyToID != 0 {
		marks = append(marks, fmt.Sprintf("reply to %d", m.ReplyToID))
	}
	if m.Effect != "" {
		marks = append(marks, string(m.Effect))
	}
	suffix := ""
	if len(marks) > 0 {
		suffix = " (" + strings.Join(marks, ", ") + ")"
	}

	fmt.Printf("[%d] %s  %s%s\n", m.ID, m.Date.Format("2006-01-02 15:04"), sender, suffix)
	if m.Text != "" {
		fmt.Printf("    %s\n", m.Text)
	}
	if m.HasAttachments {
		fmt.Println("    [attachment]")
	}
	for _, r := range m.Reactions {
		who := r.Sender.DisplayName
		if who == "" {
			who = r.Sender.Identifier
		}
		fmt.Printf("    %s %s\n", r.Kind, who)
	}
}

func init() {
	messagesCmd.Flags().StringVar(&messagesAfter, "after", "", "only messages after this date (YYYY-MM-DD)")
	messagesCmd.Flags().StringVar(&messagesBefore, "before", "", "only messages before this date (YYYY-MM-DD)")
	messagesCmd.Flags().IntVar(&messagesLimit, "limit", 50, "maximum messages to list")
	messagesCmd.Flags().IntVar(&messagesOffset, "offset", 0, "messages to skip for pagination")
	messagesCmd.Flags().BoolVar(&messagesIncludeUnsent, "include-unsent", false, "include retracted messages")
	messagesCmd.Flags().BoolVar(&messagesReverse, "reverse", false, "newest messages first")
	messagesCmd.Flags().BoolVar(&messagesJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(messagesCmd)
}
