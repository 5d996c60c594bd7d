// Package chatdb provides read-only access to the Messages database and
// materializes reconstructed conversation entities from it.
package chatdb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/wesm/chatvault/internal/contacts"
	"github.com/wesm/chatvault/internal/model"
	"github.com/wesm/chatvault/internal/reconstruct"
)

// ErrNotFound is returned when a requested chat or message id does not
// exist in the database.
var ErrNotFound = errors.New("not found")

// Store is a read-only connection to a Messages database (chat.db).
type Store struct {
	db     *sql.DB
	dbPath string
	region string
	rec    *reconstruct.Reconstructor

	handleCache map[int64]model.Handle
}

// isSQLiteError checks if err is a sqlite3.Error whose message contains
// substr. Type-asserts through errors.As rather than matching on
// err.Error() directly. Handles both value and pointer forms.
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

// Open opens the Messages database at dbPath in read-only mode.
// region is the default phone region for identifier matching; resolver
// supplies contact display names (contacts.None{} disables resolution).
func Open(dbPath, region string, resolver contacts.Resolver) (*Store, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database not found: %s", dbPath)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The source is a live database owned by another process; one reader
	// keeps us out of its way.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		if isSQLiteError(err, "unable to open") {
			return nil, fmt.Errorf("cannot read Messages database at %s; grant Full Disk Access to your terminal in System Settings > Privacy & Security", dbPath)
		}
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{
		db:          db,
		dbPath:      dbPath,
		region:      region,
		handleCache: make(map[int64]model.Handle),
	}
	if resolver == nil {
		resolver = contacts.None{}
	}
	s.rec = &reconstruct.Reconstructor{
		Handles:  s.handle,
		Contacts: resolver,
		Region:   region,
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// handle looks up a handle row by ROWID. Results are cached for the life
// of the store; the source is opened read-only so rows cannot change
// underneath us.
func (s *Store) handle(id int64) (model.Handle, bool) {
	if h, ok := s.handleCache[id]; ok {
		return h, true
	}

	var h model.Handle
	err := s.db.QueryRow(
		`SELECT ROWID, id, service FROM handle WHERE ROWID = ?`, id,
	).Scan(&h.ID, &h.Identifier, &h.Service)
	if err != nil {
		return model.Handle{}, false
	}

	s.handleCache[id] = h
	return h, true
}

// queryInChunks executes a parameterized IN-query in chunks to stay within
// SQLite's parameter limit. queryTemplate must contain a single %s
// placeholder for the comma-separated "?" list.
func queryInChunks[T any](db *sql.DB, ids []T, queryTemplate string, fn func(*sql.Rows) error) error {
	const chunkSize = 500
	for i := 0; i < len(ids); i += chunkSize {
		end := i + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[i:end]

		placeholders := make([]string, len(chunk))
		args := make([]interface{}, 0, len(chunk))
		for j, id := range chunk {
			placeholders[j] = "?"
			args = append(args, id)
		}

		query := fmt.Sprintf(queryTemplate, strings.Join(placeholders, ","))
		rows, err := db.Query(query, args...)
		if err != nil {
			return err
		}

		for rows.Next() {
			if err := fn(rows); err != nil {
				rows.Close()
				return err
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
	}
	return nil
}

// escapeLike escapes LIKE wildcards in a user-supplied pattern so it
// matches literally. Callers must append "ESCAPE '\'" to the clause.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
