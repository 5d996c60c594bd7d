package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var showMessageJSON bool

var showMessageCmd = &cobra.Command{
	Use:   "show-message <id>",
	Short: "Show one message with full detail",
	Long: `Show a single reconstructed message: text, sender, reactions,
edit history, effect, and reply linkage.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id < 1 {
			return fmt.Errorf("invalid message id %q", args[0])
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		msg, err := s.Message(id)
		if err != nil {
			return err
		}

		if showMessageJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(msg)
		}

		printMessage(msg)
		if len(msg.EditHistory) > 0 {
			fmt.Println("    edit history (newest first):")
			for _, e := range msg.EditHistory {
				fmt.Printf("      %s  %s\n", e.Date.Format("2006-01-02 15:04"), e.Text)
			}
		}
		return nil
	},
}

func init() {
	showMessageCmd.Flags().BoolVar(&showMessageJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(showMessageCmd)
}
