package vibechat

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestChatListRefresh(t *testing.T) {
	b := newFakeBackend(t)
	b.addUser(User{ID: "u1", Username: "alice", DisplayName: "Alice"})
	b.addUser(User{ID: "u2", Username: "bob", DisplayName: "Bob"})
	b.addChat(Chat{ID: "c1", Participants: []string{"u1", "u2"}, LastMessagePreview: "ciao"})

	client := b.client()
	profiles := NewProfileCache(client)
	var notified int
	list := NewChatListSync(client, profiles, func() { notified++ })

	me := Identity{Username: "alice", DisplayName: "Alice"}
	if err := list.Refresh(context.Background(), me); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	chats := list.Chats()
	if len(chats) != 1 || chats[0].ID != "c1" {
		t.Fatalf("unexpected chats: %+v", chats)
	}
	if notified != 1 {
		t.Errorf("notified %d times, want 1", notified)
	}

	// Participants referenced by the list get resolved in the background.
	waitFor(t, time.Second, "participants resolved", func() bool {
		return profiles.Len() == 2
	})

	// A second refresh over unchanged server state converges to the same
	// local state.
	if err := list.Refresh(context.Background(), me); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	if again := list.Chats(); !reflect.DeepEqual(chats, again) {
		t.Fatalf("refresh not idempotent: %+v vs %+v", chats, again)
	}
}

func TestChatListRetainsOnError(t *testing.T) {
	b := newFakeBackend(t)
	b.addChat(Chat{ID: "c1", Participants: []string{"u1", "u2"}})

	client := b.client()
	list := NewChatListSync(client, NewProfileCache(client), nil)
	me := Identity{Username: "alice"}

	if err := list.Refresh(context.Background(), me); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	b.mu.Lock()
	b.failChats = true
	b.mu.Unlock()

	if err := list.Refresh(context.Background(), me); err == nil {
		t.Fatal("expected error from failing refresh")
	}
	if chats := list.Chats(); len(chats) != 1 || chats[0].ID != "c1" {
		t.Fatalf("previous list not retained: %+v", chats)
	}
}

func TestChatListClearDiscardsInflight(t *testing.T) {
	b := newFakeBackend(t)
	b.addChat(Chat{ID: "c1", Participants: []string{"u1", "u2"}})
	gate := make(chan struct{})
	b.chatsGate = gate

	client := b.client()
	list := NewChatListSync(client, NewProfileCache(client), nil)

	// A refresh on the wire when Clear runs must not re-seat the list
	// when its response finally lands.
	done := make(chan error, 1)
	go func() {
		done <- list.Refresh(context.Background(), Identity{Username: "alice"})
	}()
	waitFor(t, time.Second, "refresh to start", func() bool {
		return b.chatListFetches() == 1
	})
	list.Clear()
	close(gate)

	if err := <-done; err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := list.Chats(); len(got) != 0 {
		t.Fatalf("stale refresh re-seated the list: %+v", got)
	}

	// The next refresh works as usual.
	if err := list.Refresh(context.Background(), Identity{Username: "alice"}); err != nil {
		t.Fatalf("Refresh after Clear: %v", err)
	}
	if got := list.Chats(); len(got) != 1 {
		t.Fatalf("post-Clear refresh did not land: %+v", got)
	}
}

func TestChatListClear(t *testing.T) {
	b := newFakeBackend(t)
	b.addChat(Chat{ID: "c1", Participants: []string{"u1", "u2"}})

	client := b.client()
	list := NewChatListSync(client, NewProfileCache(client), nil)
	if err := list.Refresh(context.Background(), Identity{Username: "alice"}); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	list.Clear()
	if got := list.Chats(); len(got) != 0 {
		t.Fatalf("Clear left %d chats", len(got))
	}
}
