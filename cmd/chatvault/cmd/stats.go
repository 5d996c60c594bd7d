package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wesm/chatvault/internal/searchindex"
	"github.com/wesm/chatvault/internal/semantic"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show search index statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var ftsStats *searchindex.Stats
		var semStats *semantic.Stats

		if _, err := os.Stat(cfg.SearchIndexPath()); err == nil {
			ix, err := searchindex.Open(cfg.SearchIndexPath())
			if err != nil {
				return fmt.Errorf("open search index: %w", err)
			}
			defer ix.Close()
			st, err := ix.Stats()
			if err != nil {
				return err
			}
			ftsStats = &st
		}

		if _, err := os.Stat(cfg.VectorIndexPath()); err == nil {
			vix, err := semantic.Open(cfg.VectorIndexPath())
			if err != nil {
				return fmt.Errorf("open embedding index: %w", err)
			}
			defer vix.Close()
			st, err := vix.Stats()
			if err != nil {
				return err
			}
			semStats = &st
		}

		if statsJSON {
			out := struct {
				FTS      *searchindex.Stats `json:"fts,omitempty"`
				Semantic *semantic.Stats    `json:"semantic,omitempty"`
			}{ftsStats, semStats}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		if ftsStats == nil && semStats == nil {
			fmt.Println("No indexes built yet. Run 'chatvault index' first.")
			return nil
		}
		if ftsStats != nil {
			fmt.Println("Full-text index:")
			fmt.Printf("  Indexed messages:  %d\n", ftsStats.IndexedMessages)
			if !ftsStats.LastMessageDate.IsZero() {
				fmt.Printf("  Newest message:    %s\n", ftsStats.LastMessageDate.Format("2006-01-02 15:04"))
			}
			fmt.Printf("  Size:              %s\n", formatSize(ftsStats.SizeBytes))
			fmt.Printf("  FTS5 available:    %v\n", ftsStats.FTS5Available)
		}
		if semStats != nil {
			fmt.Println("Embedding index:")
			fmt.Printf("  Embedded messages: %d\n", semStats.EmbeddedMessages)
			if semStats.Model != "" {
				fmt.Printf("  Model:             %s\n", semStats.Model)
			}
			fmt.Printf("  Size:              %s\n", formatSize(semStats.SizeBytes))
			fmt.Printf("  Vector extension:  %v\n", semStats.VecExtension)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statsCmd)
}
