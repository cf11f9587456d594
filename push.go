package vibechat

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// ============================================================================
// Wire format
// ============================================================================

// PushEvent is the envelope for all server-to-client push notifications.
// Events carry a hint about what changed, never authoritative data; the
// receiver re-fetches through the REST API.
type PushEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EventNewMessage signals that a chat received a new message.
const EventNewMessage = "new_message"

// NewMessagePayload identifies the chat a new_message event refers to.
type NewMessagePayload struct {
	ChatID string `json:"chat_id"`
}

type pushHandshake struct {
	Type    string `json:"type"`
	Payload struct {
		Token string `json:"token"`
	} `json:"payload"`
}

// ============================================================================
// Configuration
// ============================================================================

// PushConfig configures the push channel.
type PushConfig struct {
	// Token is sent in the handshake frame on open.
	Token string

	// AutoReconnect enables bounded exponential-backoff reconnection with
	// jitter after an unexpected close. Even with it disabled the engine
	// stays live: polling is the fallback for anything the channel misses.
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
}

func (c *PushConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
}

// PushState represents the connection state.
type PushState string

const (
	PushDisconnected PushState = "disconnected"
	PushConnecting   PushState = "connecting"
	PushConnected    PushState = "connected"
	PushReconnecting PushState = "reconnecting"
)

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(config *PushConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	// A connection that held for a minute resets the backoff ladder.
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

// ============================================================================
// PushChannel
// ============================================================================

// PushChannel is the single long-lived duplex connection over which the
// server signals changes. Malformed frames are skipped silently; the polling
// fallback covers whatever the channel drops.
type PushChannel struct {
	baseURL string
	config  *PushConfig
	log     zerolog.Logger

	mu               sync.Mutex
	conn             *websocket.Conn
	state            PushState
	intentionalClose bool
	cancelFn         context.CancelFunc
	recon            *reconnector

	handlerMu      sync.RWMutex
	onEvent        []func(PushEvent)
	onNewMessage   []func(NewMessagePayload)
	onConnected    []func()
	onDisconnected []func(reason string)
	onReconnecting []func(attempt int, delay time.Duration)
}

// NewPushChannel creates a disconnected channel against the client's server.
func NewPushChannel(client *Client, config *PushConfig) *PushChannel {
	cfg := *config
	cfg.defaults()
	return &PushChannel{
		baseURL: client.baseURL,
		config:  &cfg,
		log:     client.log.With().Str("component", "push").Logger(),
		state:   PushDisconnected,
		recon:   newReconnector(&cfg),
	}
}

// OnEvent registers a handler invoked for every well-formed event.
func (p *PushChannel) OnEvent(h func(PushEvent)) {
	p.handlerMu.Lock()
	p.onEvent = append(p.onEvent, h)
	p.handlerMu.Unlock()
}

// OnNewMessage registers a handler for new_message events.
func (p *PushChannel) OnNewMessage(h func(NewMessagePayload)) {
	p.handlerMu.Lock()
	p.onNewMessage = append(p.onNewMessage, h)
	p.handlerMu.Unlock()
}

// OnConnected registers a handler for the connected meta-event.
func (p *PushChannel) OnConnected(h func()) {
	p.handlerMu.Lock()
	p.onConnected = append(p.onConnected, h)
	p.handlerMu.Unlock()
}

// OnDisconnected registers a handler for the disconnected meta-event.
func (p *PushChannel) OnDisconnected(h func(reason string)) {
	p.handlerMu.Lock()
	p.onDisconnected = append(p.onDisconnected, h)
	p.handlerMu.Unlock()
}

// OnReconnecting registers a handler for the reconnecting meta-event.
func (p *PushChannel) OnReconnecting(h func(attempt int, delay time.Duration)) {
	p.handlerMu.Lock()
	p.onReconnecting = append(p.onReconnecting, h)
	p.handlerMu.Unlock()
}

// State returns the current connection state.
func (p *PushChannel) State() PushState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Connect dials the push endpoint and sends the handshake frame. Returns
// once the read loop is running.
func (p *PushChannel) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.state == PushConnected || p.state == PushConnecting {
		p.mu.Unlock()
		return nil
	}
	p.state = PushConnecting
	p.intentionalClose = false
	p.mu.Unlock()

	wsURL := strings.Replace(p.baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/ws"

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		p.mu.Lock()
		p.state = PushDisconnected
		p.mu.Unlock()
		return fmt.Errorf("websocket dial: %w", err)
	}

	var hello pushHandshake
	hello.Type = "auth"
	hello.Payload.Token = p.config.Token
	data, _ := json.Marshal(hello)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		p.mu.Lock()
		p.state = PushDisconnected
		p.mu.Unlock()
		return fmt.Errorf("handshake: %w", err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.conn = conn
	p.state = PushConnected
	p.cancelFn = cancel
	p.mu.Unlock()
	p.recon.markConnected()

	p.emitConnected()
	go p.readLoop(connCtx, conn)

	return nil
}

// Disconnect gracefully closes the channel. No reconnection follows.
func (p *PushChannel) Disconnect() error {
	p.mu.Lock()
	p.intentionalClose = true
	if p.cancelFn != nil {
		p.cancelFn()
		p.cancelFn = nil
	}
	conn := p.conn
	p.conn = nil
	p.state = PushDisconnected
	p.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	return nil
}

func (p *PushChannel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			p.mu.Lock()
			intentional := p.intentionalClose
			p.mu.Unlock()
			if intentional {
				return
			}

			p.mu.Lock()
			p.state = PushDisconnected
			p.conn = nil
			p.mu.Unlock()

			p.log.Warn().Err(err).Msg("push channel closed")
			p.emitDisconnected(err.Error())

			if p.config.AutoReconnect && p.recon.shouldReconnect() {
				p.scheduleReconnect()
			}
			return
		}

		var ev PushEvent
		if json.Unmarshal(data, &ev) != nil || ev.Type == "" {
			// Malformed frames are dropped, not surfaced.
			p.log.Debug().Msg("skipping malformed push frame")
			continue
		}
		p.dispatch(ev)
	}
}

func (p *PushChannel) dispatch(ev PushEvent) {
	p.handlerMu.RLock()
	defer p.handlerMu.RUnlock()

	if ev.Type == EventNewMessage {
		var payload NewMessagePayload
		if json.Unmarshal(ev.Payload, &payload) == nil {
			for _, h := range p.onNewMessage {
				go h(payload)
			}
		}
	}
	for _, h := range p.onEvent {
		handler := h
		go handler(ev)
	}
}

func (p *PushChannel) scheduleReconnect() {
	delay := p.recon.nextDelay()
	p.mu.Lock()
	p.state = PushReconnecting
	p.mu.Unlock()

	p.log.Info().Int("attempt", p.recon.attempt).Dur("delay", delay).Msg("push reconnect scheduled")
	p.emitReconnecting(p.recon.attempt, delay)

	time.Sleep(delay)

	p.mu.Lock()
	if p.intentionalClose {
		p.mu.Unlock()
		return
	}
	p.state = PushDisconnected
	p.mu.Unlock()

	if err := p.Connect(context.Background()); err != nil {
		if p.config.AutoReconnect && p.recon.shouldReconnect() {
			p.scheduleReconnect()
		} else {
			p.mu.Lock()
			p.state = PushDisconnected
			p.mu.Unlock()
		}
	}
}

func (p *PushChannel) emitConnected() {
	p.handlerMu.RLock()
	handlers := append([]func(){}, p.onConnected...)
	p.handlerMu.RUnlock()
	for _, h := range handlers {
		go h()
	}
}

func (p *PushChannel) emitDisconnected(reason string) {
	p.handlerMu.RLock()
	handlers := append([]func(string){}, p.onDisconnected...)
	p.handlerMu.RUnlock()
	for _, h := range handlers {
		go h(reason)
	}
}

func (p *PushChannel) emitReconnecting(attempt int, delay time.Duration) {
	p.handlerMu.RLock()
	handlers := append([]func(int, time.Duration){}, p.onReconnecting...)
	p.handlerMu.RUnlock()
	for _, h := range handlers {
		go h(attempt, delay)
	}
}
