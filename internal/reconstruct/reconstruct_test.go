package reconstruct

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wesm/chatvault/internal/contacts"
	"github.com/wesm/chatvault/internal/model"
)

// testHandles is a HandleLookup over a fixed handle table.
func testHandles(handles map[int64]model.Handle) HandleLookup {
	return func(id int64) (model.Handle, bool) {
		h, ok := handles[id]
		return h, ok
	}
}

var fixtureHandles = map[int64]model.Handle{
	1: {ID: 1, Identifier: "+15551234567", Service: "iMessage"},
	2: {ID: 2, Identifier: "bob@example.com", Service: "iMessage"},
}

func newTestReconstructor() *Reconstructor {
	return &Reconstructor{
		Handles: testHandles(fixtureHandles),
		Region:  "US",
	}
}

func appleNS(secs int64) int64 { return secs * 1_000_000_000 }

func TestReconstructOrdinaryRows(t *testing.T) {
	r := newTestReconstructor()

	rows := []model.RawMessageRow{
		{ID: 1, GUID: "g1", ChatID: 10, Text: "first", Date: appleNS(100), HandleID: 1},
		{ID: 2, GUID: "g2", ChatID: 10, Text: "second", Date: appleNS(200), IsFromMe: true},
	}

	msgs := r.Reconstruct(rows)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}

	if msgs[0].Text != "first" || msgs[1].Text != "second" {
		t.Errorf("texts = %q, %q", msgs[0].Text, msgs[1].Text)
	}
	if msgs[0].Sender == nil || msgs[0].Sender.Identifier != "+15551234567" {
		t.Errorf("msgs[0].Sender = %+v, want handle 1", msgs[0].Sender)
	}
	if msgs[1].Sender != nil {
		t.Errorf("msgs[1].Sender = %+v, want nil for own message", msgs[1].Sender)
	}
	if want := model.FromAppleTime(appleNS(100)); !msgs[0].Date.Equal(want) {
		t.Errorf("msgs[0].Date = %v, want %v", msgs[0].Date, want)
	}
}

func TestReconstructOrdersByDate(t *testing.T) {
	r := newTestReconstructor()

	rows := []model.RawMessageRow{
		{ID: 3, GUID: "g3", Text: "late", Date: appleNS(300), IsFromMe: true},
		{ID: 1, GUID: "g1", Text: "early", Date: appleNS(100), IsFromMe: true},
		{ID: 2, GUID: "g2", Text: "tie-low-id", Date: appleNS(300), IsFromMe: true},
	}

	msgs := r.Reconstruct(rows)
	var got []string
	for _, m := range msgs {
		got = append(got, m.Text)
	}
	want := []string{"early", "tie-low-id", "late"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestReconstructFoldsReactions(t *testing.T) {
	r := newTestReconstructor()

	rows := []model.RawMessageRow{
		{ID: 1, GUID: "g1", Text: "pizza tonight?", Date: appleNS(100), IsFromMe: true},
		{ID: 2, GUID: "g2", Date: appleNS(120), HandleID: 1, AssociatedType: 2000, AssociatedGUID: "g1"},
		{ID: 3, GUID: "g3", Date: appleNS(110), HandleID: 2, AssociatedType: 2003, AssociatedGUID: "g1"},
	}

	msgs := r.Reconstruct(rows)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1: decorations must not surface as messages", len(msgs))
	}

	reactions := msgs[0].Reactions
	if len(reactions) != 2 {
		t.Fatalf("got %d reactions, want 2", len(reactions))
	}
	// Sorted by date ascending.
	if reactions[0].Kind != model.ReactionLaugh || reactions[1].Kind != model.ReactionLove {
		t.Errorf("reaction kinds = %q, %q; want ha-ha then love", reactions[0].Kind, reactions[1].Kind)
	}
	if reactions[0].Sender.Identifier != "bob@example.com" {
		t.Errorf("reactions[0].Sender = %q", reactions[0].Sender.Identifier)
	}
}

func TestReconstructSkipsReactionRemovals(t *testing.T) {
	r := newTestReconstructor()

	rows := []model.RawMessageRow{
		{ID: 1, GUID: "g1", Text: "hello", Date: appleNS(100), IsFromMe: true},
		{ID: 2, GUID: "g2", Date: appleNS(110), HandleID: 1, AssociatedType: 3000, AssociatedGUID: "g1"},
	}

	msgs := r.Reconstruct(rows)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if len(msgs[0].Reactions) != 0 {
		t.Errorf("got %d reactions, want 0: removals must not fold in", len(msgs[0].Reactions))
	}
}

func TestReconstructSkipsUnknownTags(t *testing.T) {
	r := newTestReconstructor()

	rows := []model.RawMessageRow{
		{ID: 1, GUID: "g1", Text: "hello", Date: appleNS(100), IsFromMe: true},
		{ID: 2, GUID: "g2", Date: appleNS(110), HandleID: 1, AssociatedType: 9000, AssociatedGUID: "g1"},
	}

	msgs := r.Reconstruct(rows)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if len(msgs[0].Reactions) != 0 || len(msgs[0].EditHistory) != 0 {
		t.Error("unknown decoration tag leaked into the message")
	}
}

func TestReconstructFoldsEdits(t *testing.T) {
	r := newTestReconstructor()

	rows := []model.RawMessageRow{
		{ID: 1, GUID: "g1", Text: "original", Date: appleNS(100), IsFromMe: true},
		{ID: 2, GUID: "g2", Text: "first revision", Date: appleNS(110), AssociatedType: 2, AssociatedGUID: "g1"},
		{ID: 3, GUID: "g3", Text: "final revision", Date: appleNS(120), AssociatedType: 2, AssociatedGUID: "g1"},
	}

	msgs := r.Reconstruct(rows)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}

	msg := msgs[0]
	if msg.Text != "final revision" {
		t.Errorf("Text = %q, want the newest revision", msg.Text)
	}
	if !msg.IsEdited {
		t.Error("IsEdited = false, want true")
	}
	if len(msg.EditHistory) != 2 {
		t.Fatalf("got %d edit records, want 2", len(msg.EditHistory))
	}
	if msg.EditHistory[0].Text != "final revision" || msg.EditHistory[1].Text != "first revision" {
		t.Errorf("EditHistory order = %q, %q; want newest first",
			msg.EditHistory[0].Text, msg.EditHistory[1].Text)
	}
}

func TestReconstructDropsOrphanDecorations(t *testing.T) {
	r := newTestReconstructor()

	rows := []model.RawMessageRow{
		{ID: 1, GUID: "g1", Text: "hello", Date: appleNS(100), IsFromMe: true},
		{ID: 2, GUID: "g2", Date: appleNS(110), HandleID: 1, AssociatedType: 2001, AssociatedGUID: "missing"},
	}

	msgs := r.Reconstruct(rows)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if len(msgs[0].Reactions) != 0 {
		t.Error("orphan reaction attached to an unrelated message")
	}
}

func TestReconstructReplyLinkage(t *testing.T) {
	r := newTestReconstructor()

	rows := []model.RawMessageRow{
		{ID: 1, GUID: "g1", Text: "question?", Date: appleNS(100), IsFromMe: true},
		{ID: 2, GUID: "g2", Text: "answer", Date: appleNS(110), HandleID: 1, ThreadOriginatorGUID: "g1"},
		{ID: 3, GUID: "g3", Text: "aside", Date: appleNS(120), HandleID: 1, ThreadOriginatorGUID: "not-here"},
	}

	msgs := r.Reconstruct(rows)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[1].ReplyToID != 1 {
		t.Errorf("ReplyToID = %d, want 1", msgs[1].ReplyToID)
	}
	if msgs[2].ReplyToID != 0 {
		t.Errorf("ReplyToID = %d, want 0 for unresolvable thread originator", msgs[2].ReplyToID)
	}
}

func TestReconstructEditedAndUnsentFlags(t *testing.T) {
	r := newTestReconstructor()

	rows := []model.RawMessageRow{
		{ID: 1, GUID: "g1", Text: "edited elsewhere", Date: appleNS(100), IsFromMe: true, DateEdited: appleNS(150)},
		{ID: 2, GUID: "g2", Date: appleNS(200), IsFromMe: true, DateRetracted: appleNS(210)},
	}

	msgs := r.Reconstruct(rows)
	if !msgs[0].IsEdited {
		t.Error("IsEdited = false for row with date_edited set")
	}
	if !msgs[1].IsUnsent {
		t.Error("IsUnsent = false for row with date_retracted set")
	}
	if msgs[1].Text != "" {
		t.Errorf("unsent Text = %q, want empty", msgs[1].Text)
	}
}

func TestReconstructContactNames(t *testing.T) {
	r := newTestReconstructor()
	r.Contacts = contacts.Static{"+15551234567": "Alice"}

	rows := []model.RawMessageRow{
		{ID: 1, GUID: "g1", Text: "hi", Date: appleNS(100), HandleID: 1},
		{ID: 2, GUID: "g2", Text: "hello", Date: appleNS(110), HandleID: 2},
	}

	msgs := r.Reconstruct(rows)
	if got := msgs[0].Sender.DisplayName; got != "Alice" {
		t.Errorf("DisplayName = %q, want Alice", got)
	}
	if got := msgs[1].Sender.DisplayName; got != "" {
		t.Errorf("DisplayName = %q, want empty for unknown contact", got)
	}
}

func TestReconstructExpressiveEffect(t *testing.T) {
	r := newTestReconstructor()

	rows := []model.RawMessageRow{
		{ID: 1, GUID: "g1", Text: "HAPPY BIRTHDAY", Date: appleNS(100), IsFromMe: true,
			ExpressiveStyleID: "com.apple.messages.effect.CKConfettiEffect"},
	}

	msgs := r.Reconstruct(rows)
	if msgs[0].Effect != model.EffectConfetti {
		t.Errorf("Effect = %q, want confetti", msgs[0].Effect)
	}
}

func TestResolveHandle(t *testing.T) {
	r := newTestReconstructor()

	h, ok := r.ResolveHandle(1)
	if !ok || h.Identifier != "+15551234567" {
		t.Errorf("ResolveHandle(1) = %+v, %v", h, ok)
	}

	if _, ok := r.ResolveHandle(99); ok {
		t.Error("ResolveHandle(99) = true for unknown handle")
	}
	if _, ok := r.ResolveHandle(0); ok {
		t.Error("ResolveHandle(0) = true, want false")
	}

	r.Handles = nil
	if _, ok := r.ResolveHandle(1); ok {
		t.Error("ResolveHandle with nil lookup = true, want false")
	}
}

func TestReconstructEmptyInput(t *testing.T) {
	r := newTestReconstructor()

	msgs := r.Reconstruct(nil)
	if len(msgs) != 0 {
		t.Errorf("got %d messages from empty input", len(msgs))
	}
}

// Ensures Date conversion goes through the 2001 epoch, not the Unix epoch.
func TestReconstructAppleEpoch(t *testing.T) {
	r := newTestReconstructor()

	rows := []model.RawMessageRow{
		{ID: 1, GUID: "g1", Text: "epoch check", Date: 0, IsFromMe: true},
	}
	msgs := r.Reconstruct(rows)
	want := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	if !msgs[0].Date.Equal(want) {
		t.Errorf("Date = %v, want %v", msgs[0].Date, want)
	}
}
