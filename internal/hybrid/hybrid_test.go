package hybrid

import (
	"context"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wesm/chatvault/internal/searchindex"
	"github.com/wesm/chatvault/internal/semantic"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"substring", ModeSubstring, false},
		{"keyword", ModeKeyword, false},
		{"stemmed", ModeStemmed, false},
		{"semantic", ModeSemantic, false},
		{"hybrid", ModeHybrid, false},
		{"HYBRID", ModeHybrid, false},
		{"Keyword", ModeKeyword, false},
		{"fuzzy", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeBM25(t *testing.T) {
	tests := []struct {
		rank float64
		want float64
	}{
		{0, 0.5},       // no signal
		{-1, 0.9},      // mild relevance
		{-5, 0.5},      // middling
		{-10, 0},       // floor
		{-25, 0},       // clamped below
		{2, 1},         // clamped above
		{-0.001, 0.9999},
	}
	for _, tt := range tests {
		got := normalizeBM25(tt.rank)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("normalizeBM25(%v) = %v, want %v", tt.rank, got, tt.want)
		}
	}
}

func TestAppendUnique(t *testing.T) {
	list := appendUnique(nil, "keyword")
	list = appendUnique(list, "stemmed")
	list = appendUnique(list, "keyword")
	if len(list) != 2 || list[0] != "keyword" || list[1] != "stemmed" {
		t.Errorf("list = %v, want [keyword stemmed]", list)
	}
}

// topicEmbedder is a deterministic Embedder keyed on topic words.
type topicEmbedder struct{}

var embedTopics = [][]string{
	{"pizza", "dinner", "food", "eat"},
	{"game", "score", "team"},
}

func (topicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, len(embedTopics)+1)
	lower := strings.ToLower(text)
	for i, words := range embedTopics {
		for _, w := range words {
			vec[i] += float32(strings.Count(lower, w))
		}
	}
	vec[len(vec)-1] = 0.1
	return vec, nil
}

func (topicEmbedder) Model() string  { return "topic-test" }
func (topicEmbedder) Dimension() int { return len(embedTopics) + 1 }

type corpusRow struct {
	id   int64
	chat int64
	date int64
	text string
}

var corpus = []corpusRow{
	{1, 1, 1_000_000_000_000, "pizza for lunch tomorrow?"},
	{2, 1, 2_000_000_000_000, "the team won the game"},
	{3, 2, 3_000_000_000_000, "lunch meetings are running long"},
}

// newTestSearcher builds a Searcher over the fixture corpus with a
// full-text index and an embedding index but no source database, so the
// substring strategy contributes nothing.
func newTestSearcher(t *testing.T) *Searcher {
	t.Helper()
	dir := t.TempDir()

	ix, err := searchindex.Open(filepath.Join(dir, "search_index.db"))
	if err != nil {
		t.Fatalf("open search index: %v", err)
	}
	t.Cleanup(func() { ix.Close() })

	if ix.FTS5Available() {
		src := searchindex.FuncSource(func(sinceDate int64) ([]searchindex.Row, error) {
			var out []searchindex.Row
			for _, r := range corpus {
				out = append(out, searchindex.Row{
					MessageID: r.id, ChatID: r.chat, Date: r.date, Text: r.text,
				})
			}
			return out, nil
		})
		if _, err := ix.Build(src, searchindex.BuildOptions{}); err != nil {
			t.Fatalf("build search index: %v", err)
		}
	}

	vx, err := semantic.Open(filepath.Join(dir, "embedding_index.db"))
	if err != nil {
		t.Fatalf("open embedding index: %v", err)
	}
	t.Cleanup(func() { vx.Close() })

	vsrc := semantic.FuncSource(func(sinceDate int64) ([]semantic.Row, error) {
		var out []semantic.Row
		for _, r := range corpus {
			out = append(out, semantic.Row{
				MessageID: r.id, ChatID: r.chat, Date: r.date, Text: r.text,
			})
		}
		return out, nil
	})
	if _, err := vx.Build(context.Background(), vsrc, topicEmbedder{}, semantic.BuildOptions{}); err != nil {
		t.Fatalf("build embedding index: %v", err)
	}

	return &Searcher{
		Index:    ix,
		Vectors:  vx,
		Embedder: topicEmbedder{},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	s := &Searcher{}
	if _, err := s.Search(context.Background(), "  ", ModeHybrid, Options{}); err == nil {
		t.Error("Search() with blank query = nil error")
	}
}

func TestSearchAllSourcesNil(t *testing.T) {
	s := &Searcher{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	hits, err := s.Search(context.Background(), "anything", ModeHybrid, Options{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits with no sources, want 0", len(hits))
	}
}

func TestSearchSemanticMode(t *testing.T) {
	s := newTestSearcher(t)

	hits, err := s.Search(context.Background(), "pizza dinner food", ModeSemantic, Options{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits")
	}
	top := hits[0]
	if top.MessageID != 1 {
		t.Errorf("top hit = message %d, want the food message", top.MessageID)
	}
	if top.Combined != top.SemanticScore {
		t.Errorf("Combined = %v, want the semantic score %v in single-strategy mode",
			top.Combined, top.SemanticScore)
	}
	if len(top.FoundBy) != 1 || top.FoundBy[0] != "semantic" {
		t.Errorf("FoundBy = %v, want [semantic]", top.FoundBy)
	}
}

func TestSearchHybridFusesScores(t *testing.T) {
	s := newTestSearcher(t)
	if !s.Index.FTS5Available() {
		t.Skip("FTS5 not available in this SQLite build")
	}

	hits, err := s.Search(context.Background(), "pizza OR lunch", ModeHybrid, Options{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits")
	}

	for _, h := range hits {
		want := h.SubstringScore*DefaultWeights.Substring +
			h.KeywordScore*DefaultWeights.Keyword +
			h.StemmedScore*DefaultWeights.Stemmed +
			h.SemanticScore*DefaultWeights.Semantic
		if math.Abs(h.Combined-want) > 1e-9 {
			t.Errorf("message %d: Combined = %v, want weighted sum %v", h.MessageID, h.Combined, want)
		}
	}

	// Both lunch messages surface; the one carrying keyword, stemmed,
	// and semantic evidence outranks the keyword-and-stemmed-only one.
	if hits[0].MessageID != 1 {
		t.Errorf("top hit = message %d, want message 1", hits[0].MessageID)
	}
	var found3 *Hit
	for i := range hits {
		if hits[i].MessageID == 3 {
			found3 = &hits[i]
		}
	}
	if found3 == nil {
		t.Fatal("message 3 missing from hybrid results")
	}
	if hits[0].Combined <= found3.Combined {
		t.Errorf("multi-strategy hit (%v) should outrank fewer-strategy hit (%v)",
			hits[0].Combined, found3.Combined)
	}
}

func TestSearchHybridFoundByDeduped(t *testing.T) {
	s := newTestSearcher(t)
	if !s.Index.FTS5Available() {
		t.Skip("FTS5 not available in this SQLite build")
	}

	hits, err := s.Search(context.Background(), "lunch", ModeHybrid, Options{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, h := range hits {
		seen := make(map[string]bool)
		for _, strat := range h.FoundBy {
			if seen[strat] {
				t.Errorf("message %d: FoundBy lists %q twice: %v", h.MessageID, strat, h.FoundBy)
			}
			seen[strat] = true
		}
	}
}

func TestSearchCustomWeights(t *testing.T) {
	s := newTestSearcher(t)
	s.Weights = Weights{Semantic: 1}

	hits, err := s.Search(context.Background(), "pizza lunch", ModeHybrid, Options{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, h := range hits {
		if math.Abs(h.Combined-h.SemanticScore) > 1e-9 {
			t.Errorf("message %d: Combined = %v, want pure semantic score %v",
				h.MessageID, h.Combined, h.SemanticScore)
		}
	}
}

func TestSearchLimit(t *testing.T) {
	s := newTestSearcher(t)

	hits, err := s.Search(context.Background(), "lunch game pizza team", ModeHybrid, Options{Limit: 1})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) > 1 {
		t.Errorf("got %d hits, want at most 1", len(hits))
	}
}

func TestSearchChatScope(t *testing.T) {
	s := newTestSearcher(t)

	hits, err := s.Search(context.Background(), "lunch", ModeHybrid, Options{ChatIDs: []int64{2}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, h := range hits {
		if h.ChatID != 2 {
			t.Errorf("hit in chat %d leaked past the scope filter", h.ChatID)
		}
	}
}
