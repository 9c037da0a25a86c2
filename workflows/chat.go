package workflows

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"aura-chat/models"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/google/uuid"
)

// ErrConversationNotFound is returned for unknown conversation ids
var ErrConversationNotFound = errors.New("conversation not found")

// MessageStore persists conversations and their message logs
type MessageStore interface {
	CreateConversation(ctx context.Context, conv models.Conversation) error
	ConversationExists(ctx context.Context, id uuid.UUID) (bool, error)
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	AppendMessage(ctx context.Context, msg models.Message) error
	DeleteMessage(ctx context.Context, id string) error
	Messages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error)
	DeleteConversation(ctx context.Context, id uuid.UUID) error
}

// SessionFactory opens a fresh chat session for a conversation
type SessionFactory func(ctx context.Context, persona *models.Persona, history []models.Message) (ChatSession, error)

// ChatWorkflows runs chat turns for live conversations and keeps the store
// in step with them
type ChatWorkflows struct {
	store      MessageStore
	persona    *models.Persona
	newSession SessionFactory
	trends     TrendReporter

	mu            sync.Mutex
	conversations map[uuid.UUID]*Conversation
}

// NewChatWorkflows creates a new ChatWorkflows instance
func NewChatWorkflows(store MessageStore, persona *models.Persona, newSession SessionFactory, trends TrendReporter) *ChatWorkflows {
	return &ChatWorkflows{
		store:         store,
		persona:       persona,
		newSession:    newSession,
		trends:        trends,
		conversations: make(map[uuid.UUID]*Conversation),
	}
}

// SendMessageInput contains the input for the SendMessage workflow
type SendMessageInput struct {
	ConversationID uuid.UUID
	Text           string
	Image          *models.Attachment
}

// SendMessageOutput contains the output of the SendMessage workflow
type SendMessageOutput struct {
	UserMessage models.Message
	Outcome     Outcome
}

// CreateConversation opens a new conversation with its own chat session
func (w *ChatWorkflows) CreateConversation(ctx context.Context) (*Conversation, error) {
	session, err := w.newSession(ctx, w.persona, nil)
	if err != nil {
		return nil, err
	}

	conv := NewConversation(uuid.New(), w.persona, session, w.trends, nil)
	if err := w.store.CreateConversation(ctx, conv.Info()); err != nil {
		return nil, fmt.Errorf("failed to save conversation: %w", err)
	}
	for _, msg := range conv.Messages() {
		if err := w.store.AppendMessage(ctx, msg); err != nil {
			return nil, fmt.Errorf("failed to save greeting: %w", err)
		}
	}

	w.mu.Lock()
	w.conversations[conv.ID()] = conv
	w.mu.Unlock()
	return conv, nil
}

// Conversation returns a live conversation, resuming it from the store when
// it is not loaded
func (w *ChatWorkflows) Conversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if conv, ok := w.conversations[id]; ok {
		return conv, nil
	}

	exists, err := w.store.ConversationExists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}
	if !exists {
		return nil, ErrConversationNotFound
	}

	history, err := w.store.Messages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	session, err := w.newSession(ctx, w.persona, history)
	if err != nil {
		return nil, err
	}

	conv := NewConversation(id, w.persona, session, w.trends, history)
	w.conversations[id] = conv
	log.Printf("Resumed conversation %s with %d messages", id, len(history))
	return conv, nil
}

// ListConversations lists stored conversations
func (w *ChatWorkflows) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	return w.store.ListConversations(ctx)
}

// Messages returns the message log of a conversation
func (w *ChatWorkflows) Messages(ctx context.Context, id uuid.UUID) ([]models.Message, error) {
	w.mu.Lock()
	conv, ok := w.conversations[id]
	w.mu.Unlock()
	if ok {
		return conv.Messages(), nil
	}

	exists, err := w.store.ConversationExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrConversationNotFound
	}
	return w.store.Messages(ctx, id)
}

// DeleteConversation drops a conversation and its messages
func (w *ChatWorkflows) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	w.mu.Lock()
	conv, ok := w.conversations[id]
	delete(w.conversations, id)
	w.mu.Unlock()
	if ok {
		conv.Close()
	}
	return w.store.DeleteConversation(ctx, id)
}

// SendMessage runs a turn directly
func (w *ChatWorkflows) SendMessage(ctx context.Context, input SendMessageInput) (SendMessageOutput, error) {
	conv, err := w.Conversation(ctx, input.ConversationID)
	if err != nil {
		return SendMessageOutput{}, err
	}

	turn, err := w.beginTurn(ctx, conv, input)
	if err != nil {
		return SendMessageOutput{}, err
	}
	return SendMessageOutput{
		UserMessage: turn.UserMessage,
		Outcome:     w.completeTurn(ctx, conv, turn),
	}, nil
}

// SendMessageWorkflow is the durable version of SendMessage. Accepting the
// turn and answering it are separate steps, each followed by a write to the
// store.
func (w *ChatWorkflows) SendMessageWorkflow(ctx dbos.DBOSContext, input SendMessageInput) (SendMessageOutput, error) {
	var output SendMessageOutput

	conv, err := w.Conversation(ctx, input.ConversationID)
	if err != nil {
		return output, err
	}

	// Step 1: accept the turn and save the user message
	turn, err := dbos.RunAsStep(ctx, func(stepCtx context.Context) (Turn, error) {
		return w.beginTurn(stepCtx, conv, input)
	})
	if err != nil {
		return output, err
	}
	output.UserMessage = turn.UserMessage

	// Step 2: answer it and save the reply
	outcome, err := dbos.RunAsStep(ctx, func(stepCtx context.Context) (Outcome, error) {
		return w.completeTurn(stepCtx, conv, turn), nil
	})
	if err != nil {
		return output, err
	}
	output.Outcome = outcome

	return output, nil
}

// CreateConversationWorkflow creates a new conversation durably
func (w *ChatWorkflows) CreateConversationWorkflow(ctx dbos.DBOSContext, _ string) (models.Conversation, error) {
	return dbos.RunAsStep(ctx, func(stepCtx context.Context) (models.Conversation, error) {
		conv, err := w.CreateConversation(stepCtx)
		if err != nil {
			return models.Conversation{}, err
		}
		return conv.Info(), nil
	})
}

// DeleteConversationWorkflow deletes a conversation and its messages durably
func (w *ChatWorkflows) DeleteConversationWorkflow(ctx dbos.DBOSContext, conversationID uuid.UUID) (bool, error) {
	return dbos.RunAsStep(ctx, func(stepCtx context.Context) (bool, error) {
		err := w.DeleteConversation(stepCtx, conversationID)
		return err == nil, err
	})
}

// beginTurn accepts the turn in memory first; a failed write is logged
// because the live conversation stays authoritative.
func (w *ChatWorkflows) beginTurn(ctx context.Context, conv *Conversation, input SendMessageInput) (Turn, error) {
	turn, err := conv.Begin(input.Text, input.Image)
	if err != nil {
		return Turn{}, err
	}
	if err := w.store.AppendMessage(ctx, turn.UserMessage); err != nil {
		log.Printf("Conversation %s: failed to save user message: %v", conv.ID(), err)
	}
	return turn, nil
}

func (w *ChatWorkflows) completeTurn(ctx context.Context, conv *Conversation, turn Turn) Outcome {
	outcome := conv.Complete(ctx, turn)
	if outcome.RolledBack {
		if err := w.store.DeleteMessage(ctx, turn.UserMessage.ID); err != nil {
			log.Printf("Conversation %s: failed to roll back user message: %v", conv.ID(), err)
		}
	}
	if err := w.store.AppendMessage(ctx, outcome.Reply); err != nil {
		log.Printf("Conversation %s: failed to save reply: %v", conv.ID(), err)
	}
	return outcome
}
