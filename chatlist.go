package vibechat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// ChatListSync keeps the signed-in user's chat list current and the profile
// cache populated for every participant those chats reference.
type ChatListSync struct {
	client   *Client
	profiles *ProfileCache
	log      zerolog.Logger
	notify   func()

	mu    sync.Mutex
	epoch uint64
	chats []Chat
}

// NewChatListSync creates a synchronizer that feeds resolved participants
// into profiles. notify, if non-nil, is invoked after each successful
// replacement of the list.
func NewChatListSync(client *Client, profiles *ProfileCache, notify func()) *ChatListSync {
	return &ChatListSync{
		client:   client,
		profiles: profiles,
		log:      client.log.With().Str("component", "chatlist").Logger(),
		notify:   notify,
	}
}

// Refresh fetches the chat list for identity and fully replaces the local
// copy. It is safe to call concurrently with itself: overlapping calls race
// on the network only, and whichever response completes last wins — there is
// no partial merge. On transport error the previous list is retained and the
// error is returned as non-fatal. A response that lands after Clear belongs
// to the previous identity and is discarded.
func (s *ChatListSync) Refresh(ctx context.Context, identity Identity) error {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	chats, err := s.client.Chats(ctx, identity.Username)
	if err != nil {
		s.log.Warn().Err(err).Msg("chat list refresh failed, keeping previous list")
		return err
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		s.log.Debug().Msg("discarding chat list response from a cleared session")
		return nil
	}
	s.chats = chats
	s.mu.Unlock()

	// Kick off resolution for every participant referenced by the new list.
	seen := make(map[string]struct{})
	var ids []string
	for _, c := range chats {
		for _, id := range c.Participants {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	s.profiles.Resolve(ids)

	if s.notify != nil {
		s.notify()
	}
	return nil
}

// Chats returns a copy of the current chat list in server order.
func (s *ChatListSync) Chats() []Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Chat, len(s.chats))
	copy(out, s.chats)
	return out
}

// Clear drops the local chat list and invalidates in-flight refreshes.
func (s *ChatListSync) Clear() {
	s.mu.Lock()
	s.epoch++
	s.chats = nil
	s.mu.Unlock()
}
