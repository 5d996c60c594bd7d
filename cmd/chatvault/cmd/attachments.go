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
	attachmentsChat  string
	attachmentsMime  string
	attachmentsLimit int
	attachmentsJSON  bool
)

var attachmentsCmd = &cobra.Command{
	Use:   "attachments",
	Short: "List attachments",
	Long: `List attachment records, newest first. Paths point into the
source Messages data; files are not copied.

The --mime filter accepts exact types or glob patterns:

  chatvault attachments --mime image/jpeg
  chatvault attachments --mime 'image/*' --chat 42`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		opts := chatdb.AttachmentOptions{
			MimeType: attachmentsMime,
			Limit:    attachmentsLimit,
		}
		if attachmentsChat != "" {
			if opts.ChatIDs, err = s.ResolveChats(attachmentsChat); err != nil {
				return err
			}
		}

		atts, err := s.Attachments(opts)
		if err != nil {
			return fmt.Errorf("list attachments: %w", err)
		}

		if len(atts) == 0 {
			fmt.Println("No attachments found.")
			return nil
		}
		if attachmentsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(atts)
		}
		return outputAttachmentsTable(atts)
	},
}

func outputAttachmentsTable(atts []model.Attachment) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMESSAGE\tDATE\tTYPE\tSIZE\tNAME")
	fmt.Fprintln(w, "──\t───────\t────\t────\t────\t────")

	for _, a := range atts {
		date := ""
		if !a.Date.IsZero() {
			date = a.Date.Format("2006-01-02")
		}
		name := a.TransferName
		if name == "" {
			name = a.Filename
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n",
			a.ID, a.MessageID, date, a.MimeType, formatSize(a.TotalBytes), truncate(name, 40))
	}

	w.Flush()
	fmt.Printf("\nShowing %d attachments\n", len(atts))
	return nil
}

func init() {
	attachmentsCmd.Flags().StringVar(&attachmentsChat, "chat", "", "limit to a chat (id, phone number, or email)")
	attachmentsCmd.Flags().StringVar(&attachmentsMime, "mime", "", "filter by MIME type (supports globs like image/*)")
	attachmentsCmd.Flags().IntVar(&attachmentsLimit, "limit", 50, "maximum attachments to list")
	attachmentsCmd.Flags().BoolVar(&attachmentsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(attachmentsCmd)
}
