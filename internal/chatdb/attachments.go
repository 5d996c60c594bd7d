package chatdb

import (
	"fmt"
	"path"
	"strings"

	"github.com/wesm/chatvault/internal/model"
)

// AttachmentOptions filters an attachment listing.
type AttachmentOptions struct {
	ChatIDs []int64
	// MimeType filters by MIME type. Supports glob patterns like
	// "image/*".
	MimeType string
	Limit    int
	Offset   int
}

// Attachments lists attachment records, newest first.
func (s *Store) Attachments(opts AttachmentOptions) ([]model.Attachment, error) {
	query := `
		SELECT a.ROWID, maj.message_id, COALESCE(a.filename, ''),
		       COALESCE(a.transfer_name, ''), COALESCE(a.mime_type, ''),
		       COALESCE(a.total_bytes, 0), COALESCE(a.is_sticker, 0),
		       COALESCE(m.date, 0)
		FROM attachment a
		JOIN message_attachment_join maj ON a.ROWID = maj.attachment_id
		JOIN message m ON maj.message_id = m.ROWID`
	var args []interface{}

	if len(opts.ChatIDs) > 0 {
		query += `
		JOIN chat_message_join cmj ON m.ROWID = cmj.message_id
		WHERE cmj.chat_id IN (` + placeholders(len(opts.ChatIDs)) + `)`
		for _, id := range opts.ChatIDs {
			args = append(args, id)
		}
	} else {
		query += `
		WHERE 1=1`
	}

	// Glob patterns filter in Go after the scan; exact types filter in SQL.
	mimeGlob := strings.ContainsAny(opts.MimeType, "*?[")
	if opts.MimeType != "" && !mimeGlob {
		query += ` AND a.mime_type = ?`
		args = append(args, opts.MimeType)
	}

	query += ` ORDER BY m.date DESC, a.ROWID DESC`
	if opts.Limit > 0 && !mimeGlob {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var out []model.Attachment
	skipped := 0
	for rows.Next() {
		var a model.Attachment
		var isSticker, date int64
		if err := rows.Scan(&a.ID, &a.MessageID, &a.Filename, &a.TransferName, &a.MimeType, &a.TotalBytes, &isSticker, &date); err != nil {
			return nil, err
		}
		a.IsSticker = isSticker != 0
		if date != 0 {
			a.Date = model.FromAppleTime(date)
		}
		if a.Filename == "" {
			a.Filename = a.TransferName
		}
		if mimeGlob && !mimeMatch(opts.MimeType, a.MimeType) {
			continue
		}
		if mimeGlob && skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, a)
		if mimeGlob && opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, rows.Err()
}

// mimeMatch reports whether a MIME type matches a glob pattern like
// "image/*". A malformed pattern matches nothing.
func mimeMatch(pattern, mimeType string) bool {
	if mimeType == "" {
		return false
	}
	ok, err := path.Match(pattern, mimeType)
	return err == nil && ok
}
