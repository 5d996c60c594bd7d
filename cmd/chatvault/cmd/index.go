package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wesm/chatvault/internal/chatdb"
	"github.com/wesm/chatvault/internal/scheduler"
	"github.com/wesm/chatvault/internal/searchindex"
	"github.com/wesm/chatvault/internal/semantic"
)

var (
	indexFull        bool
	indexSemantic    bool
	indexSchedule    string
	indexRemoveStops bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or update the search indexes",
	Long: `Build the full-text search index, and optionally the semantic
embedding index, from the Messages database. Builds are incremental:
only messages not yet indexed are added.

The semantic index needs an embedding model served by Ollama (see the
[embeddings] section of the config file).

With --schedule the command keeps running and rebuilds on the given
cron schedule (standard five-field cron syntax):

  chatvault index --schedule "0 3 * * *"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if indexSchedule == "" {
			return buildIndexes(cmd.Context(), s)
		}

		sched := scheduler.New(func(ctx context.Context) error {
			return buildIndexes(ctx, s)
		}).WithLogger(logger)

		if err := sched.Schedule(indexSchedule); err != nil {
			return err
		}
		sched.Start()
		// Run once up front so a fresh install is searchable before the
		// first scheduled tick.
		if err := sched.TriggerNow(); err != nil {
			return err
		}

		<-cmd.Context().Done()
		<-sched.Stop().Done()
		return nil
	},
}

// buildIndexes runs one incremental (or full) build of the configured
// indexes.
func buildIndexes(ctx context.Context, s *chatdb.Store) error {
	ix, err := searchindex.Open(cfg.SearchIndexPath())
	if err != nil {
		return fmt.Errorf("open search index: %w", err)
	}
	defer ix.Close()

	src := searchindex.FuncSource(func(sinceDate int64) ([]searchindex.Row, error) {
		rows, err := s.TextRows(sinceDate)
		if err != nil {
			return nil, err
		}
		out := make([]searchindex.Row, len(rows))
		for i, r := range rows {
			out[i] = searchindex.Row{
				MessageID: r.MessageID,
				ChatID:    r.ChatID,
				Date:      r.Date,
				IsFromMe:  r.IsFromMe,
				Text:      r.Text,
			}
		}
		return out, nil
	})

	fmt.Fprintf(os.Stderr, "Indexing...")
	count, err := ix.Build(src, searchindex.BuildOptions{
		FullRebuild:     indexFull,
		RemoveStopWords: indexRemoveStops,
		Progress: func(indexed int) {
			fmt.Fprintf(os.Stderr, "\rIndexing... %d", indexed)
		},
	})
	fmt.Fprintf(os.Stderr, "\r")
	if err != nil {
		return fmt.Errorf("build search index: %w", err)
	}
	logger.Info("full-text index updated", "new_messages", count)

	if !indexSemantic {
		return nil
	}

	vix, err := semantic.Open(cfg.VectorIndexPath())
	if err != nil {
		return fmt.Errorf("open embedding index: %w", err)
	}
	defer vix.Close()

	emb, err := semantic.NewOllamaEmbedder(cfg.Embed.Server, cfg.Embed.Model, cfg.Embed.Dimension)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}

	vsrc := semantic.FuncSource(func(sinceDate int64) ([]semantic.Row, error) {
		rows, err := s.TextRows(sinceDate)
		if err != nil {
			return nil, err
		}
		out := make([]semantic.Row, len(rows))
		for i, r := range rows {
			out[i] = semantic.Row{
				MessageID: r.MessageID,
				ChatID:    r.ChatID,
				Date:      r.Date,
				IsFromMe:  r.IsFromMe,
				Text:      r.Text,
			}
		}
		return out, nil
	})

	fmt.Fprintf(os.Stderr, "Embedding...")
	count, err = vix.Build(ctx, vsrc, emb, semantic.BuildOptions{
		FullRebuild: indexFull,
		Progress: func(embedded int) {
			fmt.Fprintf(os.Stderr, "\rEmbedding... %d", embedded)
		},
	})
	fmt.Fprintf(os.Stderr, "\r")
	if err != nil {
		return fmt.Errorf("build embedding index: %w", err)
	}
	logger.Info("embedding index updated", "new_messages", count)
	return nil
}

func init() {
	indexCmd.Flags().BoolVar(&indexFull, "full", false, "rebuild from scratch instead of incrementally")
	indexCmd.Flags().BoolVar(&indexSemantic, "semantic", false, "also build the embedding index")
	indexCmd.Flags().StringVar(&indexSchedule, "schedule", "", "keep running and rebuild on this cron schedule")
	indexCmd.Flags().BoolVar(&indexRemoveStops, "remove-stop-words", false, "drop common English stop words from the stemmed index")
	rootCmd.AddCommand(indexCmd)
}
