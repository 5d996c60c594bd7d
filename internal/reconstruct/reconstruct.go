// Package reconstruct materializes conversation entities from raw message
// rows.
//
// The Messages schema stores tapbacks and edit revisions as message rows of
// their own, tagged with a non-zero associated type and the GUID of the
// message they decorate. Reconstruction folds those decoration rows back
// into the ordinary messages they reference, resolves each message's text
// (plain column first, archived payload second), and emits one entity per
// ordinary row in chronological order.
package reconstruct

import (
	"sort"

	"github.com/wesm/chatvault/internal/archive"
	"github.com/wesm/chatvault/internal/contacts"
	"github.com/wesm/chatvault/internal/identity"
	"github.com/wesm/chatvault/internal/model"
)

// HandleLookup resolves a handle ROWID to the stored handle record.
// The second return is false when the handle is unknown.
type HandleLookup func(id int64) (model.Handle, bool)

// Reconstructor folds raw rows into model.Message values.
type Reconstructor struct {
	// Handles resolves handle references on rows. nil disables sender
	// resolution.
	Handles HandleLookup
	// Contacts enriches senders with display names. nil leaves names empty.
	Contacts contacts.Resolver
	// Region is the default phone region for identifier normalization.
	Region string
}

// Reconstruct turns a sequence of raw rows into materialized messages.
//
// Rows are partitioned by associated type: ordinary rows each produce
// exactly one Message; decoration rows are folded into the message whose
// GUID they reference. Decorations referencing a GUID outside the supplied
// rows are dropped silently — partial exports produce them routinely.
// Output is ordered by date ascending, ties broken by row id ascending.
func (r *Reconstructor) Reconstruct(rows []model.RawMessageRow) []model.Message {
	var ordinary []model.RawMessageRow
	decorations := make(map[string][]model.RawMessageRow)
	rowIDByGUID := make(map[string]int64)

	for _, row := range rows {
		if row.Kind() == model.KindOrdinary {
			ordinary = append(ordinary, row)
			if row.GUID != "" {
				rowIDByGUID[row.GUID] = row.ID
			}
			continue
		}
		if row.AssociatedGUID == "" {
			continue
		}
		decorations[row.AssociatedGUID] = append(decorations[row.AssociatedGUID], row)
	}

	messages := make([]model.Message, 0, len(ordinary))
	for _, row := range ordinary {
		messages = append(messages, r.build(row, decorations[row.GUID], rowIDByGUID))
	}

	sort.SliceStable(messages, func(i, j int) bool {
		if !messages[i].Date.Equal(messages[j].Date) {
			return messages[i].Date.Before(messages[j].Date)
		}
		return messages[i].ID < messages[j].ID
	})

	return messages
}

// build materializes one ordinary row with its decorations folded in.
func (r *Reconstructor) build(row model.RawMessageRow, decs []model.RawMessageRow, rowIDByGUID map[string]int64) model.Message {
	msg := model.Message{
		ID:             row.ID,
		ChatID:         row.ChatID,
		Text:           resolveText(row),
		Date:           model.FromAppleTime(row.Date),
		IsFromMe:       row.IsFromMe,
		HasAttachments: row.HasAttachments,
		Effect:         model.EffectForStyle(row.ExpressiveStyleID),
		IsEdited:       row.DateEdited != 0,
		IsUnsent:       row.DateRetracted != 0,
	}

	if !row.IsFromMe && row.HandleID != 0 {
		if h, ok := r.ResolveHandle(row.HandleID); ok {
			msg.Sender = &h
		}
	}

	if row.ThreadOriginatorGUID != "" {
		if id, ok := rowIDByGUID[row.ThreadOriginatorGUID]; ok {
			msg.ReplyToID = id
		}
	}

	r.fold(&msg, decs)
	return msg
}

// fold applies decoration rows to a message. Reaction removals and
// unrecognized tags are skipped; a removal means the tapback no longer
// applies, and an unknown tag is a schema addition this code does not yet
// understand.
func (r *Reconstructor) fold(msg *model.Message, decs []model.RawMessageRow) {
	for _, dec := range decs {
		kind, reaction := model.ClassifyAssociatedType(dec.AssociatedType)
		switch kind {
		case model.KindReactionAdd:
			sender, ok := r.ResolveHandle(dec.HandleID)
			if !ok {
				continue
			}
			msg.Reactions = append(msg.Reactions, model.Reaction{
				Kind:   reaction,
				Sender: sender,
				Date:   model.FromAppleTime(dec.Date),
			})
		case model.KindEdit:
			text := resolveText(dec)
			if text == "" {
				continue
			}
			msg.EditHistory = append(msg.EditHistory, model.EditRecord{
				Text: text,
				Date: model.FromAppleTime(dec.Date),
			})
		}
	}

	sort.SliceStable(msg.Reactions, func(i, j int) bool {
		return msg.Reactions[i].Date.Before(msg.Reactions[j].Date)
	})

	if len(msg.EditHistory) > 0 {
		// Newest first; the entity's displayed text is the newest revision.
		sort.SliceStable(msg.EditHistory, func(i, j int) bool {
			return msg.EditHistory[i].Date.After(msg.EditHistory[j].Date)
		})
		msg.Text = msg.EditHistory[0].Text
		msg.IsEdited = true
	}
}

// ResolveHandle looks up a handle and enriches it with a contact display
// name. Name resolution is best-effort: failures leave DisplayName empty.
func (r *Reconstructor) ResolveHandle(handleID int64) (model.Handle, bool) {
	if r.Handles == nil || handleID == 0 {
		return model.Handle{}, false
	}
	h, ok := r.Handles(handleID)
	if !ok {
		return model.Handle{}, false
	}
	if r.Contacts != nil {
		if id, err := identity.Normalize(h.Identifier, r.Region); err == nil {
			h.DisplayName = r.Contacts.Resolve(id)
		}
	}
	return h, true
}

// resolveText returns a row's display text: the plain column when present,
// otherwise whatever the archived payload yields. Empty means "no text",
// which is a valid state, not an error.
func resolveText(row model.RawMessageRow) string {
	if row.Text != "" {
		return row.Text
	}
	return archive.Decode(row.AttributedBody)
}
