// Package searchindex maintains a persistent FTS5 index over message
// text. The index lives in its own database so the source Messages
// database stays read-only; builds are incremental and searches rank
// with BM25.
package searchindex

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/wesm/chatvault/internal/model"
	"github.com/wesm/chatvault/internal/textproc"
)

//go:embed schema.sql schema_fts.sql
var schemaFS embed.FS

const defaultSQLiteParams = "?_journal_mode=WAL&_busy_timeout=5000"

// Row is one message's worth of index input.
type Row struct {
	MessageID int64
	ChatID    int64
	Date      int64 // Apple-epoch nanoseconds
	IsFromMe  bool
	Text      string
}

// Source supplies rows to index. sinceDate bounds the scan to rows dated
// strictly after the given Apple-epoch timestamp; 0 means everything.
type Source interface {
	TextRows(sinceDate int64) ([]Row, error)
}

// FuncSource adapts a function to the Source interface.
type FuncSource func(sinceDate int64) ([]Row, error)

func (f FuncSource) TextRows(sinceDate int64) ([]Row, error) { return f(sinceDate) }

// Index is a full-text search index over message text.
type Index struct {
	db            *sql.DB
	path          string
	fts5Available bool
}

func isSQLiteError(err error, substr string) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), substr)
	}
	var sqliteErrPtr *sqlite3.Error
	if errors.As(err, &sqliteErrPtr) && sqliteErrPtr != nil {
		return strings.Contains(sqliteErrPtr.Error(), substr)
	}
	return false
}

// Open opens or creates the index database at path.
func Open(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+defaultSQLiteParams)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping index: %w", err)
	}

	ix := &Index{db: db, path: path}
	if err := ix.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return ix, nil
}

// Close closes the index database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// FTS5Available reports whether the SQLite build supports FTS5. Without
// it the index degrades to empty results rather than failing.
func (ix *Index) FTS5Available() bool {
	return ix.fts5Available
}

func (ix *Index) initSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema.sql: %w", err)
	}
	if _, err := ix.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("execute schema.sql: %w", err)
	}

	ftsSchema, err := schemaFS.ReadFile("schema_fts.sql")
	if err != nil {
		return fmt.Errorf("read schema_fts.sql: %w", err)
	}
	if _, err := ix.db.Exec(string(ftsSchema)); err != nil {
		if isSQLiteError(err, "no such module: fts5") {
			ix.fts5Available = false
			return nil
		}
		return fmt.Errorf("init fts5 schema: %w", err)
	}
	ix.fts5Available = true
	return nil
}

// BuildOptions configures an index build.
type BuildOptions struct {
	// FullRebuild drops the existing index before building.
	FullRebuild bool
	// Progress, when set, is called after each committed batch with the
	// running total of newly indexed messages.
	Progress func(indexed int)
	// RemoveStopWords drops common English stop words from the stemmed
	// column. Quoted-phrase searches on the stemmed table lose their
	// stop words against an index built this way.
	RemoveStopWords bool
}

// Build indexes messages from src that are not yet in the index.
// Returns the number of newly indexed messages.
func (ix *Index) Build(src Source, opts BuildOptions) (int, error) {
	if !ix.fts5Available {
		return 0, fmt.Errorf("sqlite build lacks fts5; full-text indexing unavailable")
	}

	if opts.FullRebuild {
		if err := ix.clear(); err != nil {
			return 0, err
		}
	}

	indexed, err := ix.indexedIDs()
	if err != nil {
		return 0, err
	}

	rows, err := src.TextRows(0)
	if err != nil {
		return 0, fmt.Errorf("read source rows: %w", err)
	}

	const batchSize = 1000
	var batch []Row
	count := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ix.indexBatch(batch, opts.RemoveStopWords); err != nil {
			return err
		}
		count += len(batch)
		if opts.Progress != nil {
			opts.Progress(count)
		}
		batch = batch[:0]
		return nil
	}

	for _, row := range rows {
		if indexed[row.MessageID] || row.Text == "" {
			continue
		}
		batch = append(batch, row)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return count, err
			}
		}
	}
	if err := flush(); err != nil {
		return count, err
	}

	if err := ix.setMetadata("last_build", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return count, err
	}
	return count, nil
}

func (ix *Index) indexedIDs() (map[int64]bool, error) {
	rows, err := ix.db.Query(`SELECT message_id FROM indexed_messages`)
	if err != nil {
		return nil, fmt.Errorf("read indexed ids: %w", err)
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

func (ix *Index) indexBatch(batch []Row, removeStops bool) error {
	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stem := textproc.StemForIndex
	if removeStops {
		stem = textproc.StemForIndexFiltered
	}

	for _, row := range batch {
		res, err := tx.Exec(`INSERT INTO messages_fts(text) VALUES (?)`, row.Text)
		if err != nil {
			return fmt.Errorf("insert fts row: %w", err)
		}
		ftsRowID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		res, err = tx.Exec(`INSERT INTO messages_fts_stemmed(text) VALUES (?)`,
			stem(row.Text))
		if err != nil {
			return fmt.Errorf("insert stemmed fts row: %w", err)
		}
		stemmedRowID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		_, err = tx.Exec(`
			INSERT INTO indexed_messages
			    (message_id, chat_id, date, is_from_me, text, fts_rowid, fts_stemmed_rowid)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			row.MessageID, row.ChatID, row.Date, boolToInt(row.IsFromMe),
			row.Text, ftsRowID, stemmedRowID)
		if err != nil {
			return fmt.Errorf("insert index metadata: %w", err)
		}
	}

	return tx.Commit()
}

func (ix *Index) clear() error {
	stmts := []string{
		`DROP TABLE IF EXISTS messages_fts`,
		`DROP TABLE IF EXISTS messages_fts_stemmed`,
		`DELETE FROM indexed_messages`,
	}
	for _, stmt := range stmts {
		if _, err := ix.db.Exec(stmt); err != nil {
			return fmt.Errorf("clear index: %w", err)
		}
	}
	ftsSchema, err := schemaFS.ReadFile("schema_fts.sql")
	if err != nil {
		return err
	}
	if _, err := ix.db.Exec(string(ftsSchema)); err != nil {
		return fmt.Errorf("recreate fts tables: %w", err)
	}
	return nil
}

func (ix *Index) setMetadata(key, value string) error {
	_, err := ix.db.Exec(`
		INSERT INTO index_metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Result is one full-text search hit.
type Result struct {
	MessageID int64
	ChatID    int64
	Text      string
	// Snippet is the matched context with hit terms wrapped in >>> <<<.
	Snippet  string
	Date     time.Time
	IsFromMe bool
	// Rank is the raw BM25 score; more negative means more relevant.
	Rank float64
}

// SearchOptions bounds a full-text search.
type SearchOptions struct {
	ChatIDs []int64
	After   *time.Time
	Before  *time.Time
	Limit   int
	// Stemmed searches the stemmed table with a stemmed query, matching
	// word variants of the query terms.
	Stemmed bool
}

// Search runs an FTS5 query against the index, most relevant first.
// The query supports FTS5 syntax (AND, OR, NOT, NEAR, "phrases"); a query
// that fails to parse is retried as a quoted phrase. Without FTS5 support
// the result is empty, not an error.
func (ix *Index) Search(query string, opts SearchOptions) ([]Result, error) {
	if !ix.fts5Available || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	table, rowidCol := "messages_fts", "fts_rowid"
	ftsQuery := query
	if opts.Stemmed {
		table, rowidCol = "messages_fts_stemmed", "fts_stemmed_rowid"
		ftsQuery = textproc.StemQuery(query)
		if ftsQuery == "" {
			return nil, nil
		}
	}

	sqlText := fmt.Sprintf(`
		SELECT im.message_id, im.chat_id, im.text, im.date, im.is_from_me,
		       snippet(%[1]s, 0, '>>>', '<<<', '...', 32),
		       bm25(%[1]s)
		FROM %[1]s
		JOIN indexed_messages im ON %[1]s.rowid = im.%[2]s
		WHERE %[1]s MATCH ?`, table, rowidCol)
	args := []interface{}{ftsQuery}

	if len(opts.ChatIDs) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(opts.ChatIDs)), ",")
		sqlText += ` AND im.chat_id IN (` + marks + `)`
		for _, id := range opts.ChatIDs {
			args = append(args, id)
		}
	}
	if opts.After != nil {
		sqlText += ` AND im.date > ?`
		args = append(args, model.ToAppleTime(*opts.After))
	}
	if opts.Before != nil {
		sqlText += ` AND im.date < ?`
		args = append(args, model.ToAppleTime(*opts.Before))
	}

	sqlText += ` ORDER BY bm25(` + table + `)`
	if opts.Limit > 0 {
		sqlText += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	results, err := ix.collect(sqlText, args)
	if err != nil {
		// Unbalanced quotes and stray operators are routine in
		// user-typed queries; retry as a literal phrase.
		if isSQLiteError(err, "fts5") {
			args[0] = `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
			return ix.collect(sqlText, args)
		}
		return nil, fmt.Errorf("fts search: %w", err)
	}
	return results, nil
}

func (ix *Index) collect(query string, args []interface{}) ([]Result, error) {
	rows, err := ix.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		var date, isFromMe int64
		if err := rows.Scan(&r.MessageID, &r.ChatID, &r.Text, &date, &isFromMe, &r.Snippet, &r.Rank); err != nil {
			return nil, err
		}
		r.Date = model.FromAppleTime(date)
		r.IsFromMe = isFromMe != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats describes the current state of the index.
type Stats struct {
	IndexedMessages int64     `json:"indexed_messages"`
	LastMessageDate time.Time `json:"last_message_date,omitzero"`
	Path            string    `json:"path"`
	SizeBytes       int64     `json:"size_bytes"`
	FTS5Available   bool      `json:"fts5_available"`
}

// Stats reports index size and coverage.
func (ix *Index) Stats() (Stats, error) {
	st := Stats{Path: ix.path, FTS5Available: ix.fts5Available}

	if err := ix.db.QueryRow(`SELECT COUNT(*) FROM indexed_messages`).Scan(&st.IndexedMessages); err != nil {
		return st, fmt.Errorf("count indexed: %w", err)
	}

	var lastDate sql.NullInt64
	if err := ix.db.QueryRow(`SELECT MAX(date) FROM indexed_messages`).Scan(&lastDate); err != nil {
		return st, fmt.Errorf("max indexed date: %w", err)
	}
	if lastDate.Valid && lastDate.Int64 != 0 {
		st.LastMessageDate = model.FromAppleTime(lastDate.Int64)
	}

	if fi, err := os.Stat(ix.path); err == nil {
		st.SizeBytes = fi.Size()
	}
	return st, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
