package room

import "github.com/ashureev/pairroom/internal/domain"

// transcript is a fixed-size ring of chat messages. When full, appending
// overwrites the oldest entry. Callers serialize access with the session lock.
type transcript struct {
	buf  []domain.ChatMessage
	size int
	head int // next write position once the ring is full
	full bool
}

func newTranscript(size int) *transcript {
	if size <= 0 {
		size = DefaultChatMaxHistory
	}
	return &transcript{size: size}
}

// Append records msg, evicting the oldest message when the ring is full.
func (t *transcript) Append(msg domain.ChatMessage) {
	if !t.full {
		t.buf = append(t.buf, msg)
		if len(t.buf) == t.size {
			t.full = true
		}
		return
	}
	t.buf[t.head] = msg
	t.head = (t.head + 1) % t.size
}

// Messages returns a copy of the ring in receipt order.
func (t *transcript) Messages() []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(t.buf))
	if !t.full {
		return append(out, t.buf...)
	}
	// Wrap-around: head -> end + start -> head
	out = append(out, t.buf[t.head:]...)
	return append(out, t.buf[:t.head]...)
}

// Len returns the number of stored messages.
func (t *transcript) Len() int {
	return len(t.buf)
}

// Capacity returns the maximum number of stored messages.
func (t *transcript) Capacity() int {
	return t.size
}
