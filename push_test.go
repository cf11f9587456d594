package vibechat

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"
)

func (b *fakeBackend) pushHello() []byte {
	b.wsMu.Lock()
	defer b.wsMu.Unlock()
	return b.wsHello
}

func newTestPush(t *testing.T, b *fakeBackend, config PushConfig) *PushChannel {
	p := NewPushChannel(b.client(), &config)
	t.Cleanup(func() { _ = p.Disconnect() })
	return p
}

func TestPushHandshake(t *testing.T) {
	b := newFakeBackend(t)
	p := newTestPush(t, b, PushConfig{Token: "alice"})

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if p.State() != PushConnected {
		t.Fatalf("State = %q", p.State())
	}

	waitFor(t, time.Second, "handshake frame", func() bool {
		return b.pushHello() != nil
	})
	var hello pushHandshake
	if err := json.Unmarshal(b.pushHello(), &hello); err != nil {
		t.Fatalf("handshake not JSON: %v", err)
	}
	if hello.Type != "auth" || hello.Payload.Token != "alice" {
		t.Fatalf("unexpected handshake: %s", b.pushHello())
	}
}

func TestPushDispatch(t *testing.T) {
	b := newFakeBackend(t)
	p := newTestPush(t, b, PushConfig{Token: "alice"})

	var typed, generic atomic.Value
	p.OnNewMessage(func(payload NewMessagePayload) { typed.Store(payload.ChatID) })
	p.OnEvent(func(ev PushEvent) { generic.Store(ev.Type) })

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	b.pushFrame(`{"type":"new_message","payload":{"chat_id":"c1"}}`)

	waitFor(t, time.Second, "typed handler", func() bool {
		v, _ := typed.Load().(string)
		return v == "c1"
	})
	waitFor(t, time.Second, "generic handler", func() bool {
		v, _ := generic.Load().(string)
		return v == EventNewMessage
	})
}

func TestPushSkipsMalformedFrames(t *testing.T) {
	b := newFakeBackend(t)
	p := newTestPush(t, b, PushConfig{Token: "alice"})

	var got atomic.Value
	p.OnEvent(func(ev PushEvent) { got.Store(ev.Type) })

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	b.pushFrame(`this is not json`)
	b.pushFrame(`{"payload":{"chat_id":"c1"}}`) // no type
	b.pushFrame(`{"type":"presence_changed","payload":{}}`)

	waitFor(t, time.Second, "well-formed frame", func() bool {
		v, _ := got.Load().(string)
		return v == "presence_changed"
	})
	if p.State() != PushConnected {
		t.Fatalf("State = %q after malformed frames", p.State())
	}
}

func TestPushReconnects(t *testing.T) {
	b := newFakeBackend(t)
	p := newTestPush(t, b, PushConfig{
		Token:              "alice",
		AutoReconnect:      true,
		ReconnectBaseDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:  50 * time.Millisecond,
	})

	var reconnecting, dropped atomic.Bool
	p.OnReconnecting(func(attempt int, delay time.Duration) { reconnecting.Store(true) })
	p.OnDisconnected(func(reason string) { dropped.Store(true) })

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	b.dropPush()

	waitFor(t, 2*time.Second, "reconnection", func() bool {
		return b.pushConnections() >= 2 && p.State() == PushConnected
	})
	if !reconnecting.Load() || !dropped.Load() {
		t.Errorf("meta-events missed: reconnecting=%v dropped=%v", reconnecting.Load(), dropped.Load())
	}
}

func TestPushDisconnectIsFinal(t *testing.T) {
	b := newFakeBackend(t)
	p := newTestPush(t, b, PushConfig{
		Token:              "alice",
		AutoReconnect:      true,
		ReconnectBaseDelay: 10 * time.Millisecond,
	})

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, time.Second, "connection", func() bool {
		return b.pushConnections() == 1
	})

	if err := p.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if got := b.pushConnections(); got != 1 {
		t.Fatalf("reconnected after intentional close: %d connections", got)
	}
	if p.State() != PushDisconnected {
		t.Fatalf("State = %q", p.State())
	}
}

func TestReconnectorBackoff(t *testing.T) {
	r := newReconnector(&PushConfig{
		ReconnectBaseDelay:   100 * time.Millisecond,
		ReconnectMaxDelay:    time.Second,
		MaxReconnectAttempts: 3,
	})

	var prev time.Duration
	for i := 0; i < 3; i++ {
		if !r.shouldReconnect() {
			t.Fatalf("gave up at attempt %d", i)
		}
		d := r.nextDelay()
		if d < prev {
			t.Fatalf("delay shrank: %v after %v", d, prev)
		}
		if d > time.Second {
			t.Fatalf("delay exceeds cap: %v", d)
		}
		prev = d
	}
	if r.shouldReconnect() {
		t.Fatal("attempt limit not enforced")
	}
}
