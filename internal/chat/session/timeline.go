package session

import (
	"fmt"
)

// timeline holds the active room's ordered message sequence.
//
// Seed replaces the whole sequence with a fetched backlog page; Append adds
// streamed messages in arrival order without re-sorting, since the gateway
// delivers events in send order per room. Messages are de-duplicated on
// sender and timestamp: the protocol carries no server-assigned message id,
// and the timeline only ever holds one room, so the room id stays out of
// the key.
type timeline struct {
	msgs []Message
	seen map[string]struct{}
}

func dedupeKey(msg Message) string {
	return fmt.Sprintf("%d|%d", msg.SenderID, msg.SentAt.UnixNano())
}

// Reset discards all messages, typically because the active room changed.
func (t *timeline) Reset() {
	t.msgs = nil
	t.seen = nil
}

// Seed replaces the timeline with a backlog page, preserving page order.
func (t *timeline) Seed(page []Message) {
	t.msgs = make([]Message, 0, len(page))
	t.seen = make(map[string]struct{}, len(page))
	for _, msg := range page {
		key := dedupeKey(msg)
		if _, dup := t.seen[key]; dup {
			continue
		}
		t.seen[key] = struct{}{}
		t.msgs = append(t.msgs, msg)
	}
}

// Append adds one streamed message and reports whether the timeline
// changed. Duplicates, such as events re-delivered around a reconnect, are
// dropped.
func (t *timeline) Append(msg Message) bool {
	key := dedupeKey(msg)
	if _, dup := t.seen[key]; dup {
		return false
	}
	if t.seen == nil {
		t.seen = make(map[string]struct{})
	}
	t.seen[key] = struct{}{}
	t.msgs = append(t.msgs, msg)
	return true
}

// Snapshot returns a copy of the current sequence for observers.
func (t *timeline) Snapshot() []Message {
	out := make([]Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}
