package chatdb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wesm/chatvault/internal/identity"
	"github.com/wesm/chatvault/internal/model"
)

// ChatOptions filters a chat listing.
type ChatOptions struct {
	// Search matches against the chat identifier and display name,
	// case-insensitively.
	Search string
	Limit  int
	Offset int
}

// Chats lists chat summaries ordered by most recent activity. Reaction
// and edit rows are folded into other messages, so they are excluded
// from the count and the activity date.
func (s *Store) Chats(opts ChatOptions) ([]model.ChatSummary, error) {
	query := `
		SELECT c.ROWID, COALESCE(c.chat_identifier, ''), COALESCE(c.display_name, ''),
		       COALESCE(c.service_name, ''),
		       COUNT(m.ROWID), COALESCE(MAX(m.date), 0)
		FROM chat c
		LEFT JOIN chat_message_join cmj ON c.ROWID = cmj.chat_id
		LEFT JOIN message m ON cmj.message_id = m.ROWID
		     AND COALESCE(m.associated_message_type, 0) = 0
		WHERE 1=1`
	var args []interface{}

	if opts.Search != "" {
		query += ` AND (c.chat_identifier LIKE ? ESCAPE '\' OR c.display_name LIKE ? ESCAPE '\')`
		pattern := "%" + escapeLike(opts.Search) + "%"
		args = append(args, pattern, pattern)
	}

	query += `
		GROUP BY c.ROWID
		ORDER BY COALESCE(MAX(m.date), 0) DESC, c.ROWID ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var out []model.ChatSummary
	for rows.Next() {
		var c model.ChatSummary
		var lastDate int64
		if err := rows.Scan(&c.ID, &c.Identifier, &c.DisplayName, &c.Service, &c.MessageCount, &lastDate); err != nil {
			return nil, err
		}
		if lastDate != 0 {
			c.LastMessageDate = model.FromAppleTime(lastDate)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// The store holds a single connection, so name resolution, which
	// queries the handle tables, must wait until the listing cursor is
	// released.
	rows.Close()

	for i := range out {
		if out[i].DisplayName == "" {
			out[i].DisplayName = s.resolveChatName(out[i].ID, out[i].Identifier)
		}
	}
	return out, nil
}

// Chat fetches one chat with its participant handles.
func (s *Store) Chat(id int64) (model.Chat, error) {
	var c model.Chat
	err := s.db.QueryRow(`
		SELECT ROWID, COALESCE(chat_identifier, ''), COALESCE(display_name, ''),
		       COALESCE(service_name, '')
		FROM chat WHERE ROWID = ?`, id,
	).Scan(&c.ID, &c.Identifier, &c.DisplayName, &c.Service)
	if err != nil {
		return model.Chat{}, fmt.Errorf("chat %d: %w", id, ErrNotFound)
	}

	parts, err := s.participants(id)
	if err != nil {
		return model.Chat{}, fmt.Errorf("chat %d participants: %w", id, err)
	}
	c.Participants = parts
	if c.DisplayName == "" {
		c.DisplayName = displayNameFromParticipants(parts)
	}
	return c, nil
}

// ChatsByIdentifier finds chats whose identifier, or any participant
// handle, matches the given phone number or email address. Phone numbers
// match across formatting differences.
func (s *Store) ChatsByIdentifier(query string) ([]model.ChatSummary, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT c.ROWID, COALESCE(c.chat_identifier, ''), COALESCE(h.id, '')
		FROM chat c
		LEFT JOIN chat_handle_join chj ON c.ROWID = chj.chat_id
		LEFT JOIN handle h ON chj.handle_id = h.ROWID`)
	if err != nil {
		return nil, fmt.Errorf("scan chat identifiers: %w", err)
	}
	defer rows.Close()

	matched := make(map[int64]bool)
	for rows.Next() {
		var chatID int64
		var chatIdent, handleIdent string
		if err := rows.Scan(&chatID, &chatIdent, &handleIdent); err != nil {
			return nil, err
		}
		if matched[chatID] {
			continue
		}
		if identity.MatchRaw(query, chatIdent, s.region) ||
			identity.MatchRaw(query, handleIdent, s.region) {
			matched[chatID] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if len(matched) == 0 {
		return nil, nil
	}

	all, err := s.Chats(ChatOptions{})
	if err != nil {
		return nil, err
	}
	var out []model.ChatSummary
	for _, c := range all {
		if matched[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

// ResolveChats turns a chat reference, either a numeric id or a
// phone/email identifier, into concrete chat ids.
func (s *Store) ResolveChats(ref string) ([]int64, error) {
	if id, ok := parseInt(ref); ok {
		if err := s.chatExists(id); err != nil {
			return nil, err
		}
		return []int64{id}, nil
	}

	chats, err := s.ChatsByIdentifier(ref)
	if err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return nil, fmt.Errorf("chat %q: %w", ref, ErrNotFound)
	}
	ids := make([]int64, len(chats))
	for i, c := range chats {
		ids[i] = c.ID
	}
	return ids, nil
}

// chatExists reports ErrNotFound when the chat id is absent.
func (s *Store) chatExists(id int64) error {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM chat WHERE ROWID = ?`, id).Scan(&one)
	if err != nil {
		return fmt.Errorf("chat %d: %w", id, ErrNotFound)
	}
	return nil
}

// participants lists the handles joined to a chat, with contact names
// resolved.
func (s *Store) participants(chatID int64) ([]model.Handle, error) {
	rows, err := s.db.Query(`
		SELECT h.ROWID
		FROM chat_handle_join chj
		JOIN handle h ON chj.handle_id = h.ROWID
		WHERE chj.chat_id = ?
		ORDER BY h.ROWID`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Handle lookups query on the same single connection; release the
	// cursor first.
	rows.Close()

	var out []model.Handle
	for _, id := range ids {
		if h, ok := s.rec.ResolveHandle(id); ok {
			out = append(out, h)
		}
	}
	return out, nil
}

// resolveChatName derives a display name for a chat that has none stored:
// the resolved participant names for small chats, else the raw identifier.
func (s *Store) resolveChatName(chatID int64, identifier string) string {
	parts, err := s.participants(chatID)
	if err != nil || len(parts) == 0 {
		return identifier
	}
	if name := displayNameFromParticipants(parts); name != "" {
		return name
	}
	return identifier
}

func displayNameFromParticipants(parts []model.Handle) string {
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.DisplayName != "" {
			names = append(names, p.DisplayName)
		}
	}
	if len(names) != len(parts) || len(names) == 0 {
		return ""
	}
	return strings.Join(names, ", ")
}

func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
