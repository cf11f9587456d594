package vibechat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultNoticeTTL is how long a transient notice stays visible.
const DefaultNoticeTTL = 3 * time.Second

// Notice is a transient, auto-expiring user-facing error or info message.
type Notice struct {
	ID   string
	Text string
	At   time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithPollInterval sets the message polling cadence for the open chat.
func WithPollInterval(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.pollInterval = d }
}

// WithNoticeTTL sets how long transient notices stay visible.
func WithNoticeTTL(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.noticeTTL = d }
}

// WithPushConfig overrides the push channel configuration. The Token field
// is filled in at sign-in.
func WithPushConfig(cfg PushConfig) CoordinatorOption {
	return func(c *Coordinator) { c.pushConfig = cfg }
}

// Coordinator owns the session: the current identity, the chat selection,
// and the lifecycles of the chat-list synchronizer, the message stream, and
// the push channel. All state mutations are full replacements performed by
// the components it owns; refresh entry points are idempotent, so push
// events and poll ticks may overlap freely.
type Coordinator struct {
	client       *Client
	log          zerolog.Logger
	pollInterval time.Duration
	noticeTTL    time.Duration
	pushConfig   PushConfig

	profiles *ProfileCache
	chatList *ChatListSync
	stream   *MessageStream

	mu       sync.Mutex
	identity *Identity
	selected string
	push     *PushChannel
	notice   *Notice

	handlerMu sync.RWMutex
	onUpdate  []func()
	onNotice  []func(Notice)
}

// NewCoordinator wires a full sync engine around client.
func NewCoordinator(client *Client, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		client:       client,
		log:          client.log.With().Str("component", "coordinator").Logger(),
		pollInterval: DefaultPollInterval,
		noticeTTL:    DefaultNoticeTTL,
		pushConfig:   PushConfig{AutoReconnect: true},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.profiles = NewProfileCache(client)
	c.chatList = NewChatListSync(client, c.profiles, c.emitUpdate)
	c.stream = NewMessageStream(client, c.profiles, c.pollInterval, c.emitUpdate)
	return c
}

// OnUpdate registers a callback fired after any state replacement (chat
// list, message list, notice change). The rendering layer re-reads the
// accessors from it.
func (c *Coordinator) OnUpdate(h func()) {
	c.handlerMu.Lock()
	c.onUpdate = append(c.onUpdate, h)
	c.handlerMu.Unlock()
}

// OnNotice registers a callback for transient notices.
func (c *Coordinator) OnNotice(h func(Notice)) {
	c.handlerMu.Lock()
	c.onNotice = append(c.onNotice, h)
	c.handlerMu.Unlock()
}

// ============================================================================
// Identity lifecycle
// ============================================================================

// SignIn establishes the session identity: it upserts the user on the
// server, then starts the chat-list synchronizer and opens the push channel.
// A push connect failure is not fatal — polling covers the gap.
func (c *Coordinator) SignIn(ctx context.Context, username, displayName string) error {
	username = strings.TrimSpace(username)
	displayName = strings.TrimSpace(displayName)
	if username == "" || displayName == "" {
		return fmt.Errorf("username and display name are required")
	}

	id := Identity{Username: username, DisplayName: displayName}
	if err := c.client.UpsertUser(ctx, id); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	cfg := c.pushConfig
	cfg.Token = username
	push := NewPushChannel(c.client, &cfg)
	push.OnEvent(c.handlePush)

	c.mu.Lock()
	c.identity = &id
	c.push = push
	c.mu.Unlock()

	go func() {
		_ = c.chatList.Refresh(context.Background(), id)
	}()
	if err := push.Connect(ctx); err != nil {
		c.log.Warn().Err(err).Msg("push channel unavailable, relying on polling")
	}
	return nil
}

// SignOut destroys the session: the push channel is closed, polling stops,
// and every piece of cached state — chats, messages, selection, profiles,
// notices — is cleared. Profiles are not preserved across identities.
func (c *Coordinator) SignOut() {
	c.mu.Lock()
	push := c.push
	c.push = nil
	c.identity = nil
	c.selected = ""
	c.notice = nil
	c.mu.Unlock()

	if push != nil {
		_ = push.Disconnect()
	}
	c.stream.Deselect()
	c.chatList.Clear()
	c.profiles.Clear()
	c.emitUpdate()
}

// Identity returns the session identity, if signed in.
func (c *Coordinator) Identity() (Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return Identity{}, false
	}
	return *c.identity, true
}

// ============================================================================
// Selection
// ============================================================================

// SelectChat makes chat the open chat: its history is fetched immediately
// and then kept fresh by the polling loop, replacing any previous selection.
func (c *Coordinator) SelectChat(chat Chat) {
	c.SelectChatID(chat.ID)
}

// SelectChatID is SelectChat for a bare chat id.
func (c *Coordinator) SelectChatID(chatID string) {
	c.mu.Lock()
	c.selected = chatID
	c.mu.Unlock()
	c.stream.Select(chatID)
}

// Deselect closes the open chat; polling stops.
func (c *Coordinator) Deselect() {
	c.SelectChatID("")
}

// SelectedChatID returns the open chat id, or "" when none is selected.
func (c *Coordinator) SelectedChatID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// ============================================================================
// Actions
// ============================================================================

// Send submits a text message to the open chat, then refreshes the message
// list and the chat list regardless of whether the submit succeeded — a
// failed send surfaces through the returned error, never by blocking the
// refresh. Callers clear their compose buffer before Send returns
// (latency-hiding choice); on error they may restore it.
func (c *Coordinator) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	id, ok := c.Identity()
	if !ok {
		return fmt.Errorf("not signed in")
	}
	chatID := c.SelectedChatID()
	if chatID == "" {
		return fmt.Errorf("no chat selected")
	}

	_, sendErr := c.client.SendMessage(ctx, SendMessageOptions{
		ChatID:         chatID,
		SenderUsername: id.Username,
		Content:        content,
		Kind:           KindText,
	})
	if sendErr != nil {
		c.log.Warn().Err(sendErr).Str("chat_id", chatID).Msg("message submit failed")
	}

	if err := c.stream.Fetch(ctx); err != nil {
		c.log.Warn().Err(err).Msg("post-send message fetch failed")
	}
	_ = c.chatList.Refresh(ctx, id)

	return sendErr
}

// SendMedia uploads an image or audio file as a message to the open chat,
// with the same refresh-regardless-of-outcome behavior as Send.
func (c *Coordinator) SendMedia(ctx context.Context, kind Kind, fileName string, data []byte) error {
	id, ok := c.Identity()
	if !ok {
		return fmt.Errorf("not signed in")
	}
	chatID := c.SelectedChatID()
	if chatID == "" {
		return fmt.Errorf("no chat selected")
	}

	_, sendErr := c.client.UploadMedia(ctx, UploadMediaOptions{
		ChatID:         chatID,
		SenderUsername: id.Username,
		Kind:           kind,
		FileName:       fileName,
		Data:           data,
	})
	if sendErr != nil {
		c.log.Warn().Err(sendErr).Str("chat_id", chatID).Msg("media upload failed")
	}

	if err := c.stream.Fetch(ctx); err != nil {
		c.log.Warn().Err(err).Msg("post-upload message fetch failed")
	}
	_ = c.chatList.Refresh(ctx, id)

	return sendErr
}

// CreateChat requests a direct chat with otherUsername. A backend rejection
// (e.g. unknown user) becomes a transient auto-expiring notice and leaves
// the chat list untouched; on success the list is refreshed.
func (c *Coordinator) CreateChat(ctx context.Context, otherUsername string) error {
	otherUsername = strings.TrimSpace(otherUsername)
	if otherUsername == "" {
		return nil
	}
	id, ok := c.Identity()
	if !ok {
		return fmt.Errorf("not signed in")
	}

	_, err := c.client.CreateChat(ctx, []string{id.Username, otherUsername})
	if err != nil {
		text := "Impossibile creare la chat"
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Detail != "" {
			text = apiErr.Detail
		}
		c.setNotice(text)
		return err
	}
	return c.chatList.Refresh(ctx, id)
}

// SearchUsers finds users matching q.
func (c *Coordinator) SearchUsers(ctx context.Context, q string) ([]User, error) {
	return c.client.SearchUsers(ctx, q)
}

// RefreshChats forces a chat-list refresh outside the push/poll triggers.
func (c *Coordinator) RefreshChats(ctx context.Context) error {
	id, ok := c.Identity()
	if !ok {
		return fmt.Errorf("not signed in")
	}
	return c.chatList.Refresh(ctx, id)
}

// ============================================================================
// Read accessors
// ============================================================================

// Chats returns the current chat list in server order.
func (c *Coordinator) Chats() []Chat { return c.chatList.Chats() }

// Messages returns the open chat's history in server order.
func (c *Coordinator) Messages() []Message { return c.stream.Messages() }

// Profile looks up a participant profile in the cache.
func (c *Coordinator) Profile(id string) (User, bool) { return c.profiles.Get(id) }

// Profiles exposes the cache for synchronous resolution by one-shot
// rendering code.
func (c *Coordinator) Profiles() *ProfileCache { return c.profiles }

// Notice returns the currently visible transient notice, if any.
func (c *Coordinator) Notice() *Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notice == nil {
		return nil
	}
	n := *c.notice
	return &n
}

// PushState reports the push channel state, PushDisconnected when signed out.
func (c *Coordinator) PushState() PushState {
	c.mu.Lock()
	push := c.push
	c.mu.Unlock()
	if push == nil {
		return PushDisconnected
	}
	return push.State()
}

// ClassifyAuthor reports whether m was sent by the session identity.
// Unresolved senders classify as AuthorUnknown, never as a guess.
func (c *Coordinator) ClassifyAuthor(m Message) Authorship {
	id, ok := c.Identity()
	if !ok {
		return AuthorUnknown
	}
	return c.stream.ClassifyAuthor(id, m)
}

// DisplayTitle derives the rendered title of a chat. Group chats show their
// size regardless of profile resolution; direct chats show the other
// participant's name with an online marker, falling back to a neutral title
// while the profile is unresolved.
func (c *Coordinator) DisplayTitle(chat Chat) string {
	if chat.IsGroup() {
		return fmt.Sprintf("Gruppo (%d)", len(chat.Participants))
	}
	me, _ := c.Identity()
	for _, pid := range chat.Participants {
		u, ok := c.profiles.Get(pid)
		if !ok || u.Username == me.Username {
			continue
		}
		name := u.DisplayName
		if name == "" {
			name = u.Username
		}
		if u.Online {
			return name + " • Online"
		}
		return name
	}
	return "Chat privata"
}

// ============================================================================
// Internal
// ============================================================================

// handlePush routes a push event: a new_message for the open chat refreshes
// both the message stream and the chat list; anything else — other chats,
// unrecognized event types — refreshes only the chat list, since previews
// and ordering may have changed.
func (c *Coordinator) handlePush(ev PushEvent) {
	id, ok := c.Identity()
	if !ok {
		return
	}
	ctx := context.Background()

	if ev.Type == EventNewMessage {
		var payload NewMessagePayload
		if json.Unmarshal(ev.Payload, &payload) == nil && payload.ChatID != "" && payload.ChatID == c.SelectedChatID() {
			if err := c.stream.Fetch(ctx); err != nil {
				c.log.Warn().Err(err).Msg("push-triggered message fetch failed")
			}
		}
	}
	_ = c.chatList.Refresh(ctx, id)
}

func (c *Coordinator) setNotice(text string) {
	n := &Notice{ID: uuid.NewString(), Text: text, At: time.Now()}
	c.mu.Lock()
	c.notice = n
	c.mu.Unlock()

	c.handlerMu.RLock()
	handlers := append([]func(Notice){}, c.onNotice...)
	c.handlerMu.RUnlock()
	for _, h := range handlers {
		go h(*n)
	}
	c.emitUpdate()

	time.AfterFunc(c.noticeTTL, func() {
		c.mu.Lock()
		cleared := false
		if c.notice != nil && c.notice.ID == n.ID {
			c.notice = nil
			cleared = true
		}
		c.mu.Unlock()
		if cleared {
			c.emitUpdate()
		}
	})
}

func (c *Coordinator) emitUpdate() {
	c.handlerMu.RLock()
	handlers := append([]func(){}, c.onUpdate...)
	c.handlerMu.RUnlock()
	for _, h := range handlers {
		h()
	}
}
