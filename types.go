package vibechat

import (
	"errors"
	"fmt"
	"time"
)

// ============================================================================
// Core Entities
// ============================================================================

// Identity is the signed-in user for the current session. It is established
// once at sign-in and destroyed at sign-out; it never mutates in between.
type Identity struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// User is a participant profile as served by the backend.
type User struct {
	ID          string     `json:"_id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	Online      bool       `json:"online"`
	LastSeen    *time.Time `json:"last_seen"`
}

// Chat is a conversation between two or more participants. The participant
// list is fixed after creation; membership changes are not modeled.
type Chat struct {
	ID                 string   `json:"_id"`
	Participants       []string `json:"participants"`
	LastMessagePreview string   `json:"last_message_preview"`
}

// IsGroup reports whether the chat has three or more participants.
func (c Chat) IsGroup() bool { return len(c.Participants) > 2 }

// Kind is the message content kind.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// Message is a single chat message. Messages are append-only and immutable;
// Content is set for text messages, MediaURL for image and audio messages.
type Message struct {
	ID       string `json:"_id"`
	ChatID   string `json:"chat_id"`
	SenderID string `json:"sender_id"`
	Content  string `json:"content,omitempty"`
	Kind     Kind   `json:"kind"`
	MediaURL string `json:"media_url,omitempty"`
}

// ============================================================================
// Request Options
// ============================================================================

// SendMessageOptions is the payload for posting a text message.
type SendMessageOptions struct {
	ChatID         string `json:"chat_id"`
	SenderUsername string `json:"sender_username"`
	Content        string `json:"content"`
	Kind           Kind   `json:"kind"`
}

// UploadMediaOptions describes a media message submitted as a multipart form.
type UploadMediaOptions struct {
	ChatID         string
	SenderUsername string
	Kind           Kind
	FileName       string
	Data           []byte
}

// ============================================================================
// Errors
// ============================================================================

// APIError is a non-2xx response from the backend, carrying the decoded
// {detail} body when present.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: HTTP %d: %s", e.StatusCode, e.Detail)
}

// IsValidation reports whether err is a 4xx rejection from the backend, as
// opposed to a transport failure or a server-side error. Validation errors
// are surfaced to the user; everything else is logged and retried on the
// next scheduled refresh.
func IsValidation(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
	}
	return false
}
