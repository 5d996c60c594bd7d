package model

// RawMessageRow is a message-table row exactly as stored, before
// reconstruction. Ordinary rows (AssociatedType == 0) become Messages;
// non-zero rows decorate the message named by AssociatedGUID and never
// surface as standalone entities.
type RawMessageRow struct {
	ID                   int64
	GUID                 string
	ChatID               int64
	Text                 string // plain text column; "" when NULL
	AttributedBody       []byte // keyed-archive payload; nil when NULL
	Date                 int64  // nanoseconds since the Apple epoch
	IsFromMe             bool
	HandleID             int64 // 0 when NULL
	HasAttachments       bool
	AssociatedType       int64
	AssociatedGUID       string
	ExpressiveStyleID    string
	DateEdited           int64
	DateRetracted        int64
	ThreadOriginatorGUID string
}

// Kind classifies the row by its associated type tag.
func (r RawMessageRow) Kind() AssociatedKind {
	k, _ := ClassifyAssociatedType(r.AssociatedType)
	return k
}
