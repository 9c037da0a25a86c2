package store

import (
	"context"
	"slices"
	"sync"

	"aura-chat/models"

	"github.com/google/uuid"
)

// Memory keeps conversations for the lifetime of the process
type Memory struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]models.Conversation
	messages      map[uuid.UUID][]models.Message
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[uuid.UUID]models.Conversation),
		messages:      make(map[uuid.UUID][]models.Message),
	}
}

// CreateConversation records a new conversation
func (m *Memory) CreateConversation(_ context.Context, conv models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[conv.ID] = conv
	return nil
}

// ConversationExists reports whether a conversation is stored
func (m *Memory) ConversationExists(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.conversations[id]
	return ok, nil
}

// ListConversations returns conversations newest first
func (m *Memory) ListConversations(_ context.Context) ([]models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conversations := make([]models.Conversation, 0, len(m.conversations))
	for _, conv := range m.conversations {
		conversations = append(conversations, conv)
	}
	slices.SortFunc(conversations, func(a, b models.Conversation) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return conversations, nil
}

// AppendMessage adds a message to the end of its conversation log
func (m *Memory) AppendMessage(_ context.Context, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)
	return nil
}

// DeleteMessage removes a single message by id
func (m *Memory) DeleteMessage(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for convID, msgs := range m.messages {
		m.messages[convID] = slices.DeleteFunc(msgs, func(msg models.Message) bool { return msg.ID == id })
	}
	return nil
}

// Messages returns the log in insertion order
func (m *Memory) Messages(_ context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.messages[conversationID]), nil
}

// DeleteConversation drops a conversation and its messages
func (m *Memory) DeleteConversation(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conversations, id)
	delete(m.messages, id)
	return nil
}
