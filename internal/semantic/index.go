// Package semantic maintains an embedding index over message text and
// answers meaning-based similarity queries. Vectors come from an
// external embedding model; similarity is cosine, computed in SQL when
// the sqlite-vec extension is compiled in and in Go otherwise.
package semantic

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wesm/chatvault/internal/model"
)

//go:embed schema.sql
var schemaSQL string

const defaultSQLiteParams = "?_journal_mode=WAL&_busy_timeout=5000"

// Row is one message's worth of embedding input.
type Row struct {
	MessageID int64
	ChatID    int64
	Date      int64 // Apple-epoch nanoseconds
	IsFromMe  bool
	Text      string
}

// Source supplies rows to embed. sinceDate bounds the scan to rows dated
// strictly after the given Apple-epoch timestamp; 0 means everything.
type Source interface {
	TextRows(sinceDate int64) ([]Row, error)
}

// FuncSource adapts a function to the Source interface.
type FuncSource func(sinceDate int64) ([]Row, error)

func (f FuncSource) TextRows(sinceDate int64) ([]Row, error) { return f(sinceDate) }

// Index is a persistent embedding index.
type Index struct {
	db   *sql.DB
	path string
}

// Open opens or creates the embedding index at path.
func Open(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+defaultSQLiteParams)
	if err != nil {
		return nil, fmt.Errorf("open embedding index: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping embedding index: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init embedding schema: %w", err)
	}

	return &Index{db: db, path: path}, nil
}

// Close closes the index database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// BuildOptions configures an embedding build.
type BuildOptions struct {
	FullRebuild bool
	// Progress, when set, is called after each committed batch with the
	// running total of newly embedded messages.
	Progress func(embedded int)
}

// Build embeds messages from src that are not yet in the index.
//
// Vectors from different models do not compare, so the index is bound to
// the first model that writes to it; building with a different model
// fails unless FullRebuild is set. Returns the number of newly embedded
// messages.
func (ix *Index) Build(ctx context.Context, src Source, emb Embedder, opts BuildOptions) (int, error) {
	if opts.FullRebuild {
		if err := ix.clear(); err != nil {
			return 0, err
		}
	}

	stored, err := ix.metadata("model")
	if err != nil {
		return 0, err
	}
	if stored != "" && stored != emb.Model() {
		return 0, fmt.Errorf("index was built with model %s; rebuild with --full to switch to %s", stored, emb.Model())
	}
	if err := ix.setMetadata("model", emb.Model()); err != nil {
		return 0, err
	}

	embedded, err := ix.embeddedIDs()
	if err != nil {
		return 0, err
	}

	rows, err := src.TextRows(0)
	if err != nil {
		return 0, fmt.Errorf("read source rows: %w", err)
	}

	const batchSize = 100
	var batch []Row
	var vectors [][]float32
	count := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ix.storeBatch(batch, vectors); err != nil {
			return err
		}
		count += len(batch)
		if opts.Progress != nil {
			opts.Progress(count)
		}
		batch, vectors = batch[:0], vectors[:0]
		return nil
	}

	for _, row := range rows {
		if embedded[row.MessageID] || strings.TrimSpace(row.Text) == "" {
			continue
		}
		vec, err := emb.Embed(ctx, row.Text)
		if err != nil {
			return count, fmt.Errorf("embed message %d: %w", row.MessageID, err)
		}
		batch = append(batch, row)
		vectors = append(vectors, vec)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return count, err
			}
		}
	}
	if err := flush(); err != nil {
		return count, err
	}
	return count, nil
}

func (ix *Index) embeddedIDs() (map[int64]bool, error) {
	rows, err := ix.db.Query(`SELECT message_id FROM embedded_messages`)
	if err != nil {
		return nil, fmt.Errorf("read embedded ids: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (ix *Index) storeBatch(batch []Row, vectors [][]float32) error {
	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, row := range batch {
		var isFromMe int64
		if row.IsFromMe {
			isFromMe = 1
		}
		_, err := tx.Exec(`
			INSERT INTO embedded_messages
			    (message_id, chat_id, date, is_from_me, text, vector)
			VALUES (?, ?, ?, ?, ?, ?)`,
			row.MessageID, row.ChatID, row.Date, isFromMe,
			row.Text, serializeVector(vectors[i]))
		if err != nil {
			return fmt.Errorf("store embedding: %w", err)
		}
	}
	return tx.Commit()
}

func (ix *Index) clear() error {
	for _, stmt := range []string{
		`DELETE FROM embedded_messages`,
		`DELETE FROM embedding_metadata`,
	} {
		if _, err := ix.db.Exec(stmt); err != nil {
			return fmt.Errorf("clear embedding index: %w", err)
		}
	}
	return nil
}

func (ix *Index) metadata(key string) (string, error) {
	var value string
	err := ix.db.QueryRow(`SELECT value FROM embedding_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (ix *Index) setMetadata(key, value string) error {
	_, err := ix.db.Exec(`
		INSERT INTO embedding_metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Result is one semantic search hit.
type Result struct {
	MessageID int64
	ChatID    int64
	Text      string
	Date      time.Time
	IsFromMe  bool
	// Similarity is cosine similarity in [-1, 1]; in practice [0, 1] for
	// sentence embeddings.
	Similarity float64
}

// SearchOptions bounds a semantic search.
type SearchOptions struct {
	ChatIDs []int64
	After   *time.Time
	Before  *time.Time
	Limit   int
	// MinSimilarity drops hits scoring below the threshold.
	MinSimilarity float64
}

// Search embeds the query and returns the most similar messages, best
// first. An empty index returns no results.
func (ix *Index) Search(ctx context.Context, query string, emb Embedder, opts SearchOptions) ([]Result, error) {
	queryVec, err := emb.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if vecExtensionAvailable {
		return ix.searchSQL(ctx, queryVec, opts)
	}
	return ix.searchGo(ctx, queryVec, opts)
}

// searchSQL ranks inside SQLite with vec_distance_cosine. Distance is
// 1 - similarity.
func (ix *Index) searchSQL(ctx context.Context, queryVec []float32, opts SearchOptions) ([]Result, error) {
	blob := serializeVector(queryVec)

	query := `
		SELECT message_id, chat_id, text, date, is_from_me,
		       1.0 - vec_distance_cosine(vector, ?) AS similarity
		FROM embedded_messages
		WHERE 1=1`
	args := []interface{}{blob}
	query, args = applyFilters(query, args, opts)

	if opts.MinSimilarity > 0 {
		query += ` AND (1.0 - vec_distance_cosine(vector, ?)) >= ?`
		args = append(args, blob, opts.MinSimilarity)
	}

	query += ` ORDER BY similarity DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := ix.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		var date, isFromMe int64
		if err := rows.Scan(&r.MessageID, &r.ChatID, &r.Text, &date, &isFromMe, &r.Similarity); err != nil {
			return nil, err
		}
		r.Date = model.FromAppleTime(date)
		r.IsFromMe = isFromMe != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// searchGo scans candidate vectors and ranks in Go.
func (ix *Index) searchGo(ctx context.Context, queryVec []float32, opts SearchOptions) ([]Result, error) {
	query := `
		SELECT message_id, chat_id, text, date, is_from_me, vector
		FROM embedded_messages
		WHERE 1=1`
	var args []interface{}
	query, args = applyFilters(query, args, opts)

	rows, err := ix.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scan embeddings: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		var date, isFromMe int64
		var blob []byte
		if err := rows.Scan(&r.MessageID, &r.ChatID, &r.Text, &date, &isFromMe, &blob); err != nil {
			return nil, err
		}
		r.Similarity = cosineSimilarity(queryVec, deserializeVector(blob))
		if opts.MinSimilarity > 0 && r.Similarity < opts.MinSimilarity {
			continue
		}
		r.Date = model.FromAppleTime(date)
		r.IsFromMe = isFromMe != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func applyFilters(query string, args []interface{}, opts SearchOptions) (string, []interface{}) {
	if len(opts.ChatIDs) > 0 {
		query += ` AND chat_id IN (` + strings.TrimSuffix(strings.Repeat("?,", len(opts.ChatIDs)), ",") + `)`
		for _, id := range opts.ChatIDs {
			args = append(args, id)
		}
	}
	if opts.After != nil {
		query += ` AND date > ?`
		args = append(args, model.ToAppleTime(*opts.After))
	}
	if opts.Before != nil {
		query += ` AND date < ?`
		args = append(args, model.ToAppleTime(*opts.Before))
	}
	return query, args
}

// Stats describes the current state of the embedding index.
type Stats struct {
	EmbeddedMessages int64  `json:"embedded_messages"`
	Model            string `json:"model,omitempty"`
	Path             string `json:"path"`
	SizeBytes        int64  `json:"size_bytes"`
	VecExtension     bool   `json:"vec_extension"`
}

// Stats reports index size and the model it is bound to.
func (ix *Index) Stats() (Stats, error) {
	st := Stats{Path: ix.path, VecExtension: vecExtensionAvailable}

	if err := ix.db.QueryRow(`SELECT COUNT(*) FROM embedded_messages`).Scan(&st.EmbeddedMessages); err != nil {
		return st, fmt.Errorf("count embedded: %w", err)
	}
	name, err := ix.metadata("model")
	if err != nil {
		return st, err
	}
	st.Model = name

	if fi, err := os.Stat(ix.path); err == nil {
		st.SizeBytes = fi.Size()
	}
	return st, nil
}
