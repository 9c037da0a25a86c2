package models

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Conversation represents a chat conversation
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Source is a web citation returned by a grounded search
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// ResponseImage is an image suggestion derived from an [image: ...] marker
type ResponseImage struct {
	URL string `json:"url"`
	Alt string `json:"alt"`
}

// Message represents a message in a conversation
type Message struct {
	ID             string          `json:"id"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	Role           Role            `json:"role"`
	Text           string          `json:"text"`
	Image          string          `json:"image,omitempty"` // data URL of the user's attachment
	Sources        []Source        `json:"sources"`         // nil unless answered by the trend path
	ResponseImages []ResponseImage `json:"response_images,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Attachment is a decoded image sent along with a user turn
type Attachment struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// DataURL renders the attachment as an embeddable data URL
func (a *Attachment) DataURL() string {
	return "data:" + a.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// ConversationState is the snapshot the UI renders
type ConversationState struct {
	ID           uuid.UUID `json:"id"`
	Messages     []Message `json:"messages"`
	Loading      bool      `json:"loading"`
	Error        string    `json:"error,omitempty"`
	QuickReplies []string  `json:"quick_replies,omitempty"`
}

// ImagePayload is an image attachment in a JSON request body
type ImagePayload struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"` // base64, optionally as a data URL
}

// SendMessageRequest is the request body for sending a message
type SendMessageRequest struct {
	Text  string        `json:"text"`
	Image *ImagePayload `json:"image,omitempty"`
}

// ChatResponse is the response for a chat turn
type ChatResponse struct {
	UserMessage  *Message          `json:"user_message,omitempty"`
	ModelMessage Message           `json:"model_message"`
	Error        string            `json:"error,omitempty"`
	State        ConversationState `json:"state"`
}

// ParseDataURL decodes a base64 data URL back into an attachment
func ParseDataURL(s string) (*Attachment, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, errors.New("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, errors.New("malformed data URL")
	}
	mimeType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, errors.New("data URL is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data URL: %w", err)
	}
	return &Attachment{MIMEType: mimeType, Data: data}, nil
}
