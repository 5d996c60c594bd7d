// Package model defines the reconstructed conversation types shared by
// the store, search, and output layers.
package model

import "time"

// AppleEpoch is the reference epoch used by the Messages database:
// 2001-01-01 00:00:00 UTC. Timestamps are stored as nanoseconds since
// this instant.
var AppleEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// FromAppleTime converts nanoseconds since the Apple epoch to a time.Time.
// Pure arithmetic: 0 is exactly the epoch instant. Callers scanning
// nullable date columns decide separately whether 0 means "no date".
func FromAppleTime(ns int64) time.Time {
	return AppleEpoch.Add(time.Duration(ns))
}

// ToAppleTime converts a time.Time to nanoseconds since the Apple epoch.
func ToAppleTime(t time.Time) int64 {
	return t.Sub(AppleEpoch).Nanoseconds()
}

// ReactionKind is a tapback type.
type ReactionKind string

const (
	ReactionLove     ReactionKind = "love"
	ReactionLike     ReactionKind = "like"
	ReactionDislike  ReactionKind = "dislike"
	ReactionLaugh    ReactionKind = "ha-ha"
	ReactionEmphasis ReactionKind = "emphasis"
	ReactionQuestion ReactionKind = "question"
)

// AssociatedKind classifies a raw message row by its associated_message_type
// tag. The raw integer is mapped to this type at the reconstruction boundary
// so new tag values surface as KindUnknown instead of silently
// misclassifying.
type AssociatedKind int

const (
	// KindOrdinary is a standalone conversational message.
	KindOrdinary AssociatedKind = iota
	// KindReactionAdd adds a tapback to another message.
	KindReactionAdd
	// KindReactionRemove retracts a previously added tapback.
	KindReactionRemove
	// KindEdit carries a revision of another message's text.
	KindEdit
	// KindUnknown is any unrecognized non-zero tag.
	KindUnknown
)

func (k AssociatedKind) String() string {
	switch k {
	case KindOrdinary:
		return "ordinary"
	case KindReactionAdd:
		return "reaction"
	case KindReactionRemove:
		return "reaction-remove"
	case KindEdit:
		return "edit"
	default:
		return "unknown"
	}
}

// Associated message type tags used by the Messages schema.
// 2000-2005 add a tapback, 3000-3005 remove one, 2 marks an edit revision.
const (
	associatedEdit     = 2
	reactionAddBase    = 2000
	reactionRemoveBase = 3000
	reactionKindLimit  = 6
)

var reactionKinds = [reactionKindLimit]ReactionKind{
	ReactionLove,
	ReactionLike,
	ReactionDislike,
	ReactionLaugh,
	ReactionEmphasis,
	ReactionQuestion,
}

// ClassifyAssociatedType maps a raw associated_message_type value to an
// AssociatedKind and, for reactions, the tapback kind.
func ClassifyAssociatedType(tag int64) (AssociatedKind, ReactionKind) {
	switch {
	case tag == 0:
		return KindOrdinary, ""
	case tag == associatedEdit:
		return KindEdit, ""
	case tag >= reactionAddBase && tag < reactionAddBase+reactionKindLimit:
		return KindReactionAdd, reactionKinds[tag-reactionAddBase]
	case tag >= reactionRemoveBase && tag < reactionRemoveBase+reactionKindLimit:
		return KindReactionRemove, reactionKinds[tag-reactionRemoveBase]
	default:
		return KindUnknown, ""
	}
}

// Effect is an iMessage bubble or screen effect.
type Effect string

const (
	EffectSlam         Effect = "slam"
	EffectLoud         Effect = "loud"
	EffectGentle       Effect = "gentle"
	EffectInvisibleInk Effect = "invisible_ink"
	EffectEcho         Effect = "echo"
	EffectSpotlight    Effect = "spotlight"
	EffectBalloons     Effect = "balloons"
	EffectConfetti     Effect = "confetti"
	EffectLove         Effect = "love_effect"
	EffectLasers       Effect = "lasers"
	EffectFireworks    Effect = "fireworks"
	EffectCelebration  Effect = "celebration"
)

// effectStyles maps expressive_send_style_id values to effects.
var effectStyles = map[string]Effect{
	"com.apple.MobileSMS.expressivesend.slam":         EffectSlam,
	"com.apple.MobileSMS.expressivesend.loud":         EffectLoud,
	"com.apple.MobileSMS.expressivesend.gentle":       EffectGentle,
	"com.apple.MobileSMS.expressivesend.invisibleink": EffectInvisibleInk,
	"com.apple.messages.effect.CKEchoEffect":          EffectEcho,
	"com.apple.messages.effect.CKSpotlightEffect":     EffectSpotlight,
	"com.apple.messages.effect.CKHappyBirthdayEffect": EffectBalloons,
	"com.apple.messages.effect.CKConfettiEffect":      EffectConfetti,
	"com.apple.messages.effect.CKHeartEffect":         EffectLove,
	"com.apple.messages.effect.CKLasersEffect":        EffectLasers,
	"com.apple.messages.effect.CKFireworksEffect":     EffectFireworks,
	"com.apple.messages.effect.CKSparklesEffect":      EffectCelebration,
}

// EffectForStyle returns the effect for an expressive_send_style_id, or ""
// when the style is empty or unrecognized.
func EffectForStyle(styleID string) Effect {
	return effectStyles[styleID]
}

// Handle is a contact identifier (phone number or email) as stored.
type Handle struct {
	ID          int64  `json:"id"`
	Identifier  string `json:"identifier"`
	Service     string `json:"service"`
	DisplayName string `json:"display_name,omitempty"`
}

// Chat is a conversation with full details.
type Chat struct {
	ID           int64    `json:"id"`
	Identifier   string   `json:"identifier"`
	DisplayName  string   `json:"display_name,omitempty"`
	Service      string   `json:"service"`
	Participants []Handle `json:"participants,omitempty"`
}

// ChatSummary is lightweight chat info for listing.
type ChatSummary struct {
	ID              int64     `json:"id"`
	Identifier      string    `json:"identifier"`
	DisplayName     string    `json:"display_name,omitempty"`
	Service         string    `json:"service"`
	MessageCount    int64     `json:"message_count"`
	LastMessageDate time.Time `json:"last_message_date,omitzero"`
}

// Reaction is a tapback attached to a message.
type Reaction struct {
	Kind   ReactionKind `json:"kind"`
	Sender Handle       `json:"sender"`
	Date   time.Time    `json:"date"`
}

// EditRecord is a single revision in a message's edit history.
type EditRecord struct {
	Text string    `json:"text"`
	Date time.Time `json:"date"`
}

// Message is a reconstructed conversation entity. Exactly one Message
// exists per ordinary raw row; reaction and edit rows are folded into the
// message they reference and never appear as standalone entities.
type Message struct {
	ID             int64        `json:"id"`
	ChatID         int64        `json:"chat_id"`
	Text           string       `json:"text,omitempty"`
	Date           time.Time    `json:"date"`
	IsFromMe       bool         `json:"is_from_me"`
	Sender         *Handle      `json:"sender,omitempty"`
	HasAttachments bool         `json:"has_attachments"`
	Reactions      []Reaction   `json:"reactions,omitempty"`
	Effect         Effect       `json:"effect,omitempty"`
	EditHistory    []EditRecord `json:"edit_history,omitempty"`
	IsEdited       bool         `json:"is_edited"`
	IsUnsent       bool         `json:"is_unsent"`
	Transcription  string       `json:"transcription,omitempty"`
	ReplyToID      int64        `json:"reply_to_id,omitempty"`
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID           int64     `json:"id"`
	MessageID    int64     `json:"message_id"`
	Filename     string    `json:"filename"`
	TransferName string    `json:"transfer_name,omitempty"`
	MimeType     string    `json:"mime_type,omitempty"`
	TotalBytes   int64     `json:"total_bytes"`
	IsSticker    bool      `json:"is_sticker"`
	Date         time.Time `json:"date,omitzero"`
}
