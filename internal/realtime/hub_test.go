package realtime

import (
	"testing"
	"time"

	"github.com/ashureev/pairroom/internal/protocol"
)

func receive(t *testing.T, c *Client) protocol.Envelope {
	t.Helper()
	select {
	case data := <-c.Outbound():
		env, err := protocol.Decode(data)
		if err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatalf("no frame for %s", c.ID())
	}
	return protocol.Envelope{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Outbound():
		t.Fatalf("unexpected frame for %s: %s", c.ID(), data)
	default:
	}
}

func TestHub_PublishExcludesSender(t *testing.T) {
	t.Parallel()

	h := NewHub(8)
	a := h.Register("a")
	b := h.Register("b")
	outsider := h.Register("x")
	h.Subscribe("ABC123", "a")
	h.Subscribe("ABC123", "b")

	h.Publish("ABC123", protocol.EventChatMessage, map[string]string{"message": "hi"}, "a")

	if env := receive(t, b); env.Type != protocol.EventChatMessage {
		t.Fatalf("expected chat-message, got %q", env.Type)
	}
	expectNothing(t, a)
	expectNothing(t, outsider)

	h.Publish("ABC123", protocol.EventTimerUpdate, nil, "")
	receive(t, a)
	receive(t, b)
}

func TestHub_Send(t *testing.T) {
	t.Parallel()

	h := NewHub(8)
	a := h.Register("a")
	b := h.Register("b")

	h.Send("a", protocol.EventError, protocol.Error{Message: "Room is full"})
	h.Send("missing", protocol.EventError, protocol.Error{Message: "ignored"})

	env := receive(t, a)
	var got protocol.Error
	if err := env.DecodePayload(&got); err != nil || got.Message != "Room is full" {
		t.Fatalf("unexpected error frame %+v (%v)", got, err)
	}
	expectNothing(t, b)
}

func TestHub_UnsubscribeAndCloseRoom(t *testing.T) {
	t.Parallel()

	h := NewHub(8)
	a := h.Register("a")
	b := h.Register("b")
	h.Subscribe("ABC123", "a")
	h.Subscribe("ABC123", "b")

	h.Unsubscribe("ABC123", "a")
	h.Publish("ABC123", protocol.EventTimerUpdate, nil, "")
	expectNothing(t, a)
	receive(t, b)

	h.CloseRoom("ABC123")
	h.Publish("ABC123", protocol.EventTimerUpdate, nil, "")
	expectNothing(t, b)
	if subs := h.Subscribers("ABC123"); len(subs) != 0 {
		t.Fatalf("expected no subscribers, got %v", subs)
	}
	if h.ConnectionCount() != 2 {
		t.Fatal("closing a room must not drop connections")
	}
}

func TestHub_DropsSlowConsumer(t *testing.T) {
	t.Parallel()

	h := NewHub(1)
	slow := h.Register("slow")
	fast := h.Register("fast")
	h.Subscribe("ABC123", "slow")
	h.Subscribe("ABC123", "fast")

	h.Publish("ABC123", protocol.EventTimerUpdate, nil, "")
	receive(t, fast)
	h.Publish("ABC123", protocol.EventTimerUpdate, nil, "")

	select {
	case <-slow.Done():
	case <-time.After(time.Second):
		t.Fatal("slow consumer was not dropped")
	}
	select {
	case <-fast.Done():
		t.Fatal("fast consumer must stay connected")
	default:
	}
	if subs := h.Subscribers("ABC123"); len(subs) != 1 || subs[0] != "fast" {
		t.Fatalf("expected only fast subscribed, got %v", subs)
	}
}

func TestHub_RegisterReplacesConnection(t *testing.T) {
	t.Parallel()

	h := NewHub(8)
	old := h.Register("a")
	h.Subscribe("ABC123", "a")
	fresh := h.Register("a")

	select {
	case <-old.Done():
	default:
		t.Fatal("replaced connection must be closed")
	}

	// Unregistering the stale client must not evict its replacement.
	h.Unregister(old)
	if h.ConnectionCount() != 1 {
		t.Fatalf("expected replacement to stay registered, got %d", h.ConnectionCount())
	}
	h.Send("a", protocol.EventPong, nil)
	receive(t, fresh)
}

func TestHub_Shutdown(t *testing.T) {
	t.Parallel()

	h := NewHub(8)
	a := h.Register("a")
	h.Subscribe("ABC123", "a")
	h.Shutdown()

	select {
	case <-a.Done():
	default:
		t.Fatal("shutdown must close connections")
	}
	if h.ConnectionCount() != 0 || len(h.Subscribers("ABC123")) != 0 {
		t.Fatal("shutdown must clear the hub")
	}
}
