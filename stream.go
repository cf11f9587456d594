package vibechat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPollInterval is the message polling cadence while a chat is open.
const DefaultPollInterval = 2 * time.Second

// Authorship classifies who sent a message relative to the viewer.
type Authorship int

const (
	AuthorUnknown Authorship = iota
	AuthorMine
	AuthorTheirs
)

func (a Authorship) String() string {
	switch a {
	case AuthorMine:
		return "mine"
	case AuthorTheirs:
		return "theirs"
	default:
		return "unknown"
	}
}

// MessageStream maintains the message history of the one currently selected
// chat, refreshed by an immediate fetch on selection plus a silent polling
// ticker. At most one polling loop exists at any instant: selecting a new
// chat cancels the previous loop before the next one starts.
//
// Every selection is tagged with a generation id. Fetch responses that
// arrive after the selection has moved on carry a stale generation and are
// discarded instead of applied.
type MessageStream struct {
	client   *Client
	profiles *ProfileCache
	log      zerolog.Logger
	interval time.Duration
	notify   func()

	mu       sync.Mutex
	chatID   string
	gen      uint64
	cancel   context.CancelFunc
	messages []Message
}

// NewMessageStream creates an idle stream. notify, if non-nil, is invoked
// after each applied message replacement.
func NewMessageStream(client *Client, profiles *ProfileCache, interval time.Duration, notify func()) *MessageStream {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &MessageStream{
		client:   client,
		profiles: profiles,
		log:      client.log.With().Str("component", "stream").Logger(),
		interval: interval,
		notify:   notify,
	}
}

// Select makes chatID the active chat: the previous chat's polling loop is
// cancelled synchronously, the local history is reset, and a fresh
// fetch-then-poll loop starts for the new chat.
func (s *MessageStream) Select(chatID string) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	gen := s.gen
	s.chatID = chatID
	s.messages = nil
	if chatID == "" {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go s.pollLoop(ctx, chatID, gen)
}

// Deselect returns the stream to idle: polling stops and no further fetches
// are issued. In-flight responses for the abandoned chat will be discarded
// by their stale generation.
func (s *MessageStream) Deselect() {
	s.Select("")
}

// ChatID returns the currently selected chat id, or "" when idle.
func (s *MessageStream) ChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// Messages returns a copy of the current history, in server order.
func (s *MessageStream) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Fetch refreshes the current selection once, outside the polling cadence.
// Push events and post-send refreshes land here. No-op while idle.
func (s *MessageStream) Fetch(ctx context.Context) error {
	s.mu.Lock()
	chatID, gen := s.chatID, s.gen
	s.mu.Unlock()
	if chatID == "" {
		return nil
	}
	return s.fetchOnce(ctx, chatID, gen)
}

// ClassifyAuthor reports whether m was sent by viewer. The sender's profile
// must already be resolved; until it is, the result is AuthorUnknown rather
// than a guess.
func (s *MessageStream) ClassifyAuthor(viewer Identity, m Message) Authorship {
	sender, ok := s.profiles.Get(m.SenderID)
	if !ok {
		return AuthorUnknown
	}
	if sender.Username == viewer.Username {
		return AuthorMine
	}
	return AuthorTheirs
}

func (s *MessageStream) pollLoop(ctx context.Context, chatID string, gen uint64) {
	if err := s.fetchOnce(ctx, chatID, gen); err != nil {
		s.log.Warn().Err(err).Str("chat_id", chatID).Msg("initial message fetch failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Silent refresh: same entry point as the initial fetch,
			// errors keep the last-known-good history.
			if err := s.fetchOnce(ctx, chatID, gen); err != nil {
				s.log.Warn().Err(err).Str("chat_id", chatID).Msg("message poll failed")
			}
		}
	}
}

func (s *MessageStream) fetchOnce(ctx context.Context, chatID string, gen uint64) error {
	msgs, err := s.client.Messages(ctx, chatID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.log.Debug().Str("chat_id", chatID).Msg("discarding stale message response")
		return nil
	}
	s.messages = msgs
	s.mu.Unlock()

	if s.notify != nil {
		s.notify()
	}
	return nil
}
