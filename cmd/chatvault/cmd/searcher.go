package cmd

import (
	"fmt"
	"os"

	"github.com/wesm/chatvault/internal/chatdb"
	"github.com/wesm/chatvault/internal/hybrid"
	"github.com/wesm/chatvault/internal/searchindex"
	"github.com/wesm/chatvault/internal/semantic"
)

// openSearcher assembles a hybrid.Searcher around the store and whichever
// indexes the requested mode needs. In hybrid mode a missing index just
// drops that strategy; in a single-index mode it is an error. The
// returned func closes any opened index databases.
func openSearcher(store *chatdb.Store, mode hybrid.Mode) (*hybrid.Searcher, func(), error) {
	searcher := &hybrid.Searcher{
		Store: store,
		Weights: hybrid.Weights{
			Substring: cfg.Search.SubstringWeight,
			Keyword:   cfg.Search.KeywordWeight,
			Stemmed:   cfg.Search.StemmedWeight,
			Semantic:  cfg.Search.SemanticWeight,
		},
		MinSimilarity: cfg.Search.MinSimilarity,
		Logger:        logger,
	}

	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	needFTS := mode == hybrid.ModeKeyword || mode == hybrid.ModeStemmed || mode == hybrid.ModeHybrid
	needSemantic := mode == hybrid.ModeSemantic || mode == hybrid.ModeHybrid

	if needFTS {
		path := cfg.SearchIndexPath()
		if _, err := os.Stat(path); err == nil {
			ix, err := searchindex.Open(path)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("open search index: %w", err)
			}
			closers = append(closers, ix.Close)
			searcher.Index = ix
		} else if mode != hybrid.ModeHybrid {
			return nil, nil, fmt.Errorf("search index not built; run 'chatvault index' first")
		}
	}

	if needSemantic {
		path := cfg.VectorIndexPath()
		if _, err := os.Stat(path); err == nil {
			vix, err := semantic.Open(path)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("open embedding index: %w", err)
			}
			closers = append(closers, vix.Close)
			searcher.Vectors = vix

			emb, err := semantic.NewOllamaEmbedder(cfg.Embed.Server, cfg.Embed.Model, cfg.Embed.Dimension)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("create embedder: %w", err)
			}
			searcher.Embedder = emb
		} else if mode == hybrid.ModeSemantic {
			return nil, nil, fmt.Errorf("embedding index not built; run 'chatvault index --semantic' first")
		}
	}

	return searcher, closeAll, nil
}
