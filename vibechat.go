// Package vibechat provides the Go client for the Vibe Chat service.
//
// It covers the REST API (users, chats, messages, media upload) and the
// synchronization engine that keeps a local view of the signed-in user's
// chats, the open chat's messages, and participant presence consistent with
// the server, using a push channel plus a polling fallback.
//
// Example:
//
//	client := vibechat.NewClient(vibechat.WithBaseURL("http://localhost:8000"))
//	coord := vibechat.NewCoordinator(client)
//
//	_ = coord.SignIn(ctx, "alice", "Alice")
//	coord.OnUpdate(func() { redraw(coord.Chats(), coord.Messages()) })
//	coord.SelectChat(chat)
//	_ = coord.Send(ctx, "hello!")
package vibechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client is the HTTP API client. All sync-engine components fetch through it.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithLogger attaches a logger. The client is silent by default.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a new Vibe Chat client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured server base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) do(ctx context.Context, method, path string, body interface{}, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	reqID := uuid.NewString()
	c.log.Debug().Str("request_id", reqID).Str("method", method).Str("path", path).Msg("api request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var detail struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(data, &detail) == nil {
			apiErr.Detail = detail.Detail
		}
		c.log.Debug().Str("request_id", reqID).Int("status", resp.StatusCode).Str("detail", apiErr.Detail).Msg("api rejection")
		return nil, apiErr
	}
	return data, nil
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

func decodeJSONSlice[T any](data []byte) ([]T, error) {
	var result []T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return result, nil
}

// ============================================================================
// Users
// ============================================================================

// UpsertUser registers or refreshes the identity on the server.
func (c *Client) UpsertUser(ctx context.Context, identity Identity) error {
	_, err := c.do(ctx, "POST", "/api/users", identity, nil)
	return err
}

// UsersByIDs fetches profiles for a set of user ids.
func (c *Client) UsersByIDs(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	data, err := c.do(ctx, "GET", "/api/users/by_ids", nil, map[string]string{
		"ids": strings.Join(ids, ","),
	})
	if err != nil {
		return nil, err
	}
	return decodeJSONSlice[User](data)
}

// SearchUsers finds users whose username or display name matches q.
func (c *Client) SearchUsers(ctx context.Context, q string) ([]User, error) {
	data, err := c.do(ctx, "GET", "/api/users", nil, map[string]string{"q": q})
	if err != nil {
		return nil, err
	}
	return decodeJSONSlice[User](data)
}

// ============================================================================
// Chats
// ============================================================================

// Chats returns the chats visible to username, in server order.
func (c *Client) Chats(ctx context.Context, username string) ([]Chat, error) {
	data, err := c.do(ctx, "GET", "/api/chats", nil, map[string]string{"username": username})
	if err != nil {
		return nil, err
	}
	return decodeJSONSlice[Chat](data)
}

// CreateChat creates a chat between the given usernames. The backend rejects
// unknown participants with a 4xx {detail} body, returned as *APIError.
func (c *Client) CreateChat(ctx context.Context, participantUsernames []string) (*Chat, error) {
	payload := map[string][]string{"participant_usernames": participantUsernames}
	data, err := c.do(ctx, "POST", "/api/chats", payload, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Chat](data)
}

// ============================================================================
// Messages
// ============================================================================

// Messages returns the full message history of a chat, in server order.
// The order is treated as authoritative; callers must not re-sort.
func (c *Client) Messages(ctx context.Context, chatID string) ([]Message, error) {
	data, err := c.do(ctx, "GET", "/api/messages", nil, map[string]string{"chat_id": chatID})
	if err != nil {
		return nil, err
	}
	return decodeJSONSlice[Message](data)
}

// SendMessage submits a text message.
func (c *Client) SendMessage(ctx context.Context, opts SendMessageOptions) (*Message, error) {
	if opts.Kind == "" {
		opts.Kind = KindText
	}
	data, err := c.do(ctx, "POST", "/api/messages", opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Message](data)
}

// UploadMedia submits an image or audio message as a multipart form.
// The created message references the stored media by URL.
func (c *Client) UploadMedia(ctx context.Context, opts UploadMediaOptions) (*Message, error) {
	if opts.FileName == "" {
		return nil, fmt.Errorf("file name is required")
	}
	if opts.Kind != KindImage && opts.Kind != KindAudio {
		return nil, fmt.Errorf("unsupported media kind %q", opts.Kind)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("chat_id", opts.ChatID)
	_ = w.WriteField("sender_username", opts.SenderUsername)
	_ = w.WriteField("kind", string(opts.Kind))
	part, err := w.CreateFormFile("file", opts.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(opts.Data); err != nil {
		return nil, fmt.Errorf("failed to write file data: %w", err)
	}
	_ = w.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/messages/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var detail struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(data, &detail) == nil {
			apiErr.Detail = detail.Detail
		}
		return nil, apiErr
	}
	return decodeJSON[Message](data)
}
