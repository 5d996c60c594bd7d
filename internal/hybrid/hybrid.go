// Package hybrid fuses the individual search strategies into one ranked
// result list. Substring search gives exact matches, FTS gives keyword
// relevance, the stemmed index matches word variants, and the embedding
// index matches meaning; hybrid mode runs all of them and combines their
// scores.
package hybrid

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/wesm/chatvault/internal/chatdb"
	"github.com/wesm/chatvault/internal/searchindex"
	"github.com/wesm/chatvault/internal/semantic"
)

// Mode selects which strategies run.
type Mode string

const (
	ModeSubstring Mode = "substring"
	ModeKeyword   Mode = "keyword"
	ModeStemmed   Mode = "stemmed"
	ModeSemantic  Mode = "semantic"
	ModeHybrid    Mode = "hybrid"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeSubstring, ModeKeyword, ModeStemmed, ModeSemantic, ModeHybrid:
		return m, nil
	}
	return "", fmt.Errorf("unknown search mode %q (substring, keyword, stemmed, semantic, hybrid)", s)
}

// Weights control each strategy's share of the combined score in hybrid
// mode.
type Weights struct {
	Substring float64
	Keyword   float64
	Stemmed   float64
	Semantic  float64
}

// DefaultWeights weight exact and semantic evidence slightly above their
// fuzzier counterparts.
var DefaultWeights = Weights{
	Substring: 0.2,
	Keyword:   0.3,
	Stemmed:   0.2,
	Semantic:  0.3,
}

// Hit is one fused search result. Per-strategy scores are on a 0-1
// scale, higher is better; a zero score means the strategy did not find
// the message.
type Hit struct {
	MessageID int64     `json:"message_id"`
	ChatID    int64     `json:"chat_id"`
	Text      string    `json:"text"`
	Date      time.Time `json:"date"`
	IsFromMe  bool      `json:"is_from_me"`

	SubstringScore float64 `json:"substring_score,omitempty"`
	KeywordScore   float64 `json:"keyword_score,omitempty"`
	StemmedScore   float64 `json:"stemmed_score,omitempty"`
	SemanticScore  float64 `json:"semantic_score,omitempty"`
	Combined       float64 `json:"combined_score"`

	// FoundBy lists the strategies that located this message.
	FoundBy []string `json:"found_by"`
	// Snippet is the FTS match context, when a keyword strategy found
	// the message.
	Snippet string `json:"snippet,omitempty"`
}

// Options bound a search across all strategies.
type Options struct {
	ChatIDs []int64
	After   *time.Time
	Before  *time.Time
	Limit   int
}

// Searcher orchestrates the strategies. Any source may be nil; a missing
// source simply contributes no hits. Strategy errors are logged and
// skipped so one broken index does not take down the whole search.
type Searcher struct {
	Store    *chatdb.Store
	Index    *searchindex.Index
	Vectors  *semantic.Index
	Embedder semantic.Embedder

	Weights Weights
	// MinSimilarity is the floor for semantic hits.
	MinSimilarity float64
	Logger        *slog.Logger
}

const defaultLimit = 50

// Search runs the strategies selected by mode and returns fused hits,
// best first.
func (s *Searcher) Search(ctx context.Context, query string, mode Mode, opts Options) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	// Each strategy over-fetches so messages found by several
	// strategies still leave enough distinct hits after merging.
	perStrategy := limit * 2

	hits := make(map[int64]*Hit)

	if mode == ModeSubstring || mode == ModeHybrid {
		s.addSubstring(query, opts, perStrategy, hits)
	}
	if mode == ModeKeyword || mode == ModeHybrid {
		s.addFTS(query, opts, perStrategy, false, hits)
	}
	if mode == ModeStemmed || mode == ModeHybrid {
		s.addFTS(query, opts, perStrategy, true, hits)
	}
	if mode == ModeSemantic || mode == ModeHybrid {
		s.addSemantic(ctx, query, opts, perStrategy, hits)
	}

	weights := s.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights
	}

	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		switch mode {
		case ModeSubstring:
			h.Combined = h.SubstringScore
		case ModeKeyword:
			h.Combined = h.KeywordScore
		case ModeStemmed:
			h.Combined = h.StemmedScore
		case ModeSemantic:
			h.Combined = h.SemanticScore
		default:
			h.Combined = h.SubstringScore*weights.Substring +
				h.KeywordScore*weights.Keyword +
				h.StemmedScore*weights.Stemmed +
				h.SemanticScore*weights.Semantic
		}
		out = append(out, *h)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Combined != out[j].Combined {
			return out[i].Combined > out[j].Combined
		}
		return out[i].Date.After(out[j].Date)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Searcher) addSubstring(query string, opts Options, limit int, hits map[int64]*Hit) {
	if s.Store == nil {
		return
	}
	msgs, err := s.Store.SubstringSearch(query, chatdb.SearchScope{
		ChatIDs: opts.ChatIDs,
		After:   opts.After,
		Before:  opts.Before,
		Limit:   limit,
	})
	if err != nil {
		s.logger().Warn("substring search failed", "error", err)
		return
	}
	for _, m := range msgs {
		h := hits[m.ID]
		if h == nil {
			h = &Hit{
				MessageID: m.ID,
				ChatID:    m.ChatID,
				Text:      m.Text,
				Date:      m.Date,
				IsFromMe:  m.IsFromMe,
			}
			hits[m.ID] = h
		}
		// Exact containment is binary evidence.
		h.SubstringScore = 1.0
		h.FoundBy = append(h.FoundBy, string(ModeSubstring))
	}
}

func (s *Searcher) addFTS(query string, opts Options, limit int, stemmed bool, hits map[int64]*Hit) {
	if s.Index == nil {
		return
	}
	results, err := s.Index.Search(query, searchindex.SearchOptions{
		ChatIDs: opts.ChatIDs,
		After:   opts.After,
		Before:  opts.Before,
		Limit:   limit,
		Stemmed: stemmed,
	})
	if err != nil {
		s.logger().Warn("fts search failed", "stemmed", stemmed, "error", err)
		return
	}
	strategy := ModeKeyword
	if stemmed {
		strategy = ModeStemmed
	}
	for _, r := range results {
		h := hits[r.MessageID]
		if h == nil {
			h = &Hit{
				MessageID: r.MessageID,
				ChatID:    r.ChatID,
				Text:      r.Text,
				Date:      r.Date,
				IsFromMe:  r.IsFromMe,
			}
			hits[r.MessageID] = h
		}
		score := normalizeBM25(r.Rank)
		if stemmed {
			h.StemmedScore = score
		} else {
			h.KeywordScore = score
		}
		if h.Snippet == "" {
			h.Snippet = r.Snippet
		}
		h.FoundBy = appendUnique(h.FoundBy, string(strategy))
	}
}

func (s *Searcher) addSemantic(ctx context.Context, query string, opts Options, limit int, hits map[int64]*Hit) {
	if s.Vectors == nil || s.Embedder == nil {
		return
	}
	minSim := s.MinSimilarity
	if minSim == 0 {
		minSim = 0.2
	}
	results, err := s.Vectors.Search(ctx, query, s.Embedder, semantic.SearchOptions{
		ChatIDs:       opts.ChatIDs,
		After:         opts.After,
		Before:        opts.Before,
		Limit:         limit,
		MinSimilarity: minSim,
	})
	if err != nil {
		s.logger().Warn("semantic search failed", "error", err)
		return
	}
	for _, r := range results {
		h := hits[r.MessageID]
		if h == nil {
			h = &Hit{
				MessageID: r.MessageID,
				ChatID:    r.ChatID,
				Text:      r.Text,
				Date:      r.Date,
				IsFromMe:  r.IsFromMe,
			}
			hits[r.MessageID] = h
		}
		h.SemanticScore = r.Similarity
		h.FoundBy = appendUnique(h.FoundBy, string(ModeSemantic))
	}
}

func (s *Searcher) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// normalizeBM25 maps a raw BM25 rank onto a 0-1 relevance scale. SQLite
// reports BM25 as negative-is-better, with typical scores in [-10, 0];
// a rank of exactly 0 carries no signal and maps to 0.5.
func normalizeBM25(rank float64) float64 {
	if rank == 0 {
		return 0.5
	}
	score := (10 + rank) / 10
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
