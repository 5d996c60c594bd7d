package chatdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/wesm/chatvault/internal/archive"
	"github.com/wesm/chatvault/internal/model"
)

// rawRowColumns is the column list scanned by scanRawRow, qualified on the
// message table alias m.
const rawRowColumns = `m.ROWID, m.guid, COALESCE(m.text, ''), m.attributedBody,
	COALESCE(m.date, 0), COALESCE(m.is_from_me, 0), COALESCE(m.handle_id, 0),
	COALESCE(m.cache_has_attachments, 0), COALESCE(m.associated_message_type, 0),
	COALESCE(m.associated_message_guid, ''), COALESCE(m.expressive_send_style_id, ''),
	COALESCE(m.date_edited, 0), COALESCE(m.date_retracted, 0),
	COALESCE(m.thread_originator_guid, '')`

// scanRawRow scans one message row plus a trailing chat_id column.
func scanRawRow(rows *sql.Rows) (model.RawMessageRow, error) {
	var r model.RawMessageRow
	var isFromMe, hasAttachments int64
	err := rows.Scan(
		&r.ID, &r.GUID, &r.Text, &r.AttributedBody,
		&r.Date, &isFromMe, &r.HandleID,
		&hasAttachments, &r.AssociatedType,
		&r.AssociatedGUID, &r.ExpressiveStyleID,
		&r.DateEdited, &r.DateRetracted,
		&r.ThreadOriginatorGUID,
		&r.ChatID,
	)
	if err != nil {
		return model.RawMessageRow{}, err
	}
	r.IsFromMe = isFromMe != 0
	r.HasAttachments = hasAttachments != 0
	return r, nil
}

// MessageOptions filters a message listing.
type MessageOptions struct {
	// ChatIDs restricts the listing to the given chats. Required (resolve
	// identifiers to chat ids with ChatByIdentifier first).
	ChatIDs []int64
	After   *time.Time
	Before  *time.Time
	Limit   int // 0 means no limit
	Offset  int
	// IncludeUnsent controls whether retracted messages are listed.
	// They are reconstructed either way; this only filters the listing.
	IncludeUnsent bool
	// Reverse returns newest messages first.
	Reverse bool
}

// Messages lists reconstructed messages for one or more chats in
// chronological order (newest first with Reverse). Reaction and edit rows
// are folded into the messages they decorate.
func (s *Store) Messages(opts MessageOptions) ([]model.Message, error) {
	if len(opts.ChatIDs) == 0 {
		return nil, fmt.Errorf("no chat ids given")
	}
	for _, id := range opts.ChatIDs {
		if err := s.chatExists(id); err != nil {
			return nil, err
		}
	}

	query := `
		SELECT ` + rawRowColumns + `, cmj.chat_id
		FROM message m
		JOIN chat_message_join cmj ON m.ROWID = cmj.message_id
		WHERE cmj.chat_id IN (` + placeholders(len(opts.ChatIDs)) + `)
		  AND COALESCE(m.associated_message_type, 0) = 0`
	args := make([]interface{}, 0, len(opts.ChatIDs)+4)
	for _, id := range opts.ChatIDs {
		args = append(args, id)
	}

	if !opts.IncludeUnsent {
		query += ` AND COALESCE(m.date_retracted, 0) = 0`
	}
	if opts.After != nil {
		query += ` AND m.date > ?`
		args = append(args, model.ToAppleTime(*opts.After))
	}
	if opts.Before != nil {
		query += ` AND m.date < ?`
		args = append(args, model.ToAppleTime(*opts.Before))
	}

	if opts.Reverse {
		query += ` ORDER BY m.date DESC, m.ROWID DESC`
	} else {
		query += ` ORDER BY m.date ASC, m.ROWID ASC`
	}
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	ordinary, err := s.collectRawRows(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	return s.reconstructWithDecorations(ordinary, opts.Reverse)
}

// Message fetches a single reconstructed message by id.
func (s *Store) Message(id int64) (model.Message, error) {
	query := `
		SELECT ` + rawRowColumns + `, COALESCE(cmj.chat_id, 0)
		FROM message m
		LEFT JOIN chat_message_join cmj ON m.ROWID = cmj.message_id
		WHERE m.ROWID = ?`

	found, err := s.collectRawRows(query, id)
	if err != nil {
		return model.Message{}, fmt.Errorf("get message: %w", err)
	}
	if len(found) == 0 {
		return model.Message{}, fmt.Errorf("message %d: %w", id, ErrNotFound)
	}

	msgs, err := s.reconstructWithDecorations(found[:1], false)
	if err != nil {
		return model.Message{}, err
	}
	msg := msgs[0]

	// Reply linkage resolves against the whole table here, not just the
	// fetched batch.
	if guid := found[0].ThreadOriginatorGUID; guid != "" && msg.ReplyToID == 0 {
		if rid, ok := s.rowIDForGUID(guid); ok {
			msg.ReplyToID = rid
		}
	}
	return msg, nil
}

// SearchScope bounds a substring search.
type SearchScope struct {
	ChatIDs []int64 // empty means all chats
	After   *time.Time
	Before  *time.Time
	Limit   int
}

// SubstringSearch lists reconstructed messages whose text contains the
// query, case-insensitively, newest first. This is the exact-match search
// strategy: every hit is equally relevant, so order is purely
// chronological.
func (s *Store) SubstringSearch(text string, scope SearchScope) ([]model.Message, error) {
	query := `
		SELECT ` + rawRowColumns + `, COALESCE(cmj.chat_id, 0)
		FROM message m
		LEFT JOIN chat_message_join cmj ON m.ROWID = cmj.message_id
		WHERE m.text LIKE ? ESCAPE '\'
		  AND COALESCE(m.associated_message_type, 0) = 0`
	args := []interface{}{"%" + escapeLike(text) + "%"}

	if len(scope.ChatIDs) > 0 {
		query += ` AND cmj.chat_id IN (` + placeholders(len(scope.ChatIDs)) + `)`
		for _, id := range scope.ChatIDs {
			args = append(args, id)
		}
	}
	if scope.After != nil {
		query += ` AND m.date > ?`
		args = append(args, model.ToAppleTime(*scope.After))
	}
	if scope.Before != nil {
		query += ` AND m.date < ?`
		args = append(args, model.ToAppleTime(*scope.Before))
	}

	query += ` ORDER BY m.date DESC, m.ROWID DESC`
	if scope.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, scope.Limit)
	}

	ordinary, err := s.collectRawRows(query, args...)
	if err != nil {
		return nil, fmt.Errorf("substring search: %w", err)
	}

	return s.reconstructWithDecorations(ordinary, true)
}

// TextRow is the minimal row shape consumed by the index builders.
type TextRow struct {
	MessageID int64
	ChatID    int64
	Date      int64 // Apple-epoch nanoseconds
	IsFromMe  bool
	Text      string
}

// TextRows returns ordinary rows with resolved text dated strictly after
// sinceDate (Apple-epoch nanoseconds; 0 means everything), oldest first.
// Rows whose text cannot be resolved from either column are skipped.
// This feeds batch index construction and is not part of the query path.
func (s *Store) TextRows(sinceDate int64) ([]TextRow, error) {
	query := `
		SELECT m.ROWID, cmj.chat_id, COALESCE(m.date, 0), COALESCE(m.is_from_me, 0),
		       COALESCE(m.text, ''), m.attributedBody
		FROM message m
		JOIN chat_message_join cmj ON m.ROWID = cmj.message_id
		WHERE COALESCE(m.associated_message_type, 0) = 0
		  AND m.date > ?
		ORDER BY m.date ASC`

	rows, err := s.db.Query(query, sinceDate)
	if err != nil {
		return nil, fmt.Errorf("list text rows: %w", err)
	}
	defer rows.Close()

	var out []TextRow
	for rows.Next() {
		var tr TextRow
		var isFromMe int64
		var body []byte
		if err := rows.Scan(&tr.MessageID, &tr.ChatID, &tr.Date, &isFromMe, &tr.Text, &body); err != nil {
			return nil, err
		}
		tr.IsFromMe = isFromMe != 0
		if tr.Text == "" {
			tr.Text = archive.Decode(body)
		}
		if tr.Text == "" {
			continue
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// collectRawRows runs a query whose columns match scanRawRow.
func (s *Store) collectRawRows(query string, args ...interface{}) ([]model.RawMessageRow, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RawMessageRow
	for rows.Next() {
		r, err := scanRawRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// reconstructWithDecorations fetches the decoration rows referencing the
// given ordinary rows and folds everything into messages. reverse flips
// the reconstructor's ascending output to newest-first.
func (s *Store) reconstructWithDecorations(ordinary []model.RawMessageRow, reverse bool) ([]model.Message, error) {
	if len(ordinary) == 0 {
		return nil, nil
	}

	guids := make([]string, 0, len(ordinary))
	for _, r := range ordinary {
		if r.GUID != "" {
			guids = append(guids, r.GUID)
		}
	}

	all := ordinary
	if len(guids) > 0 {
		template := `
			SELECT ` + rawRowColumns + `, 0
			FROM message m
			WHERE COALESCE(m.associated_message_type, 0) != 0
			  AND m.associated_message_guid IN (%s)`
		err := queryInChunks(s.db, guids, template, func(rows *sql.Rows) error {
			r, err := scanRawRow(rows)
			if err != nil {
				return err
			}
			all = append(all, r)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("fetch decorations: %w", err)
		}
	}

	msgs := s.rec.Reconstruct(all)
	if reverse {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}
	return msgs, nil
}

// rowIDForGUID resolves a message GUID to its ROWID.
func (s *Store) rowIDForGUID(guid string) (int64, bool) {
	var id int64
	err := s.db.QueryRow(`SELECT ROWID FROM message WHERE guid = ?`, guid).Scan(&id)
	if err != nil {
		return 0, false
	}
	return id, true
}

// placeholders returns n comma-separated "?" markers.
func placeholders(n int) string {
	if n == 1 {
		return "?"
	}
	b := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
