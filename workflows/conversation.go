package workflows

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"aura-chat/models"
	"aura-chat/services"

	"github.com/google/uuid"
)

var (
	ErrEmptyTurn             = errors.New("message text or image is required")
	ErrTurnInProgress        = errors.New("a turn is already in progress")
	ErrAttachment            = errors.New("unreadable image attachment")
	ErrSessionNotInitialized = errors.New("chat session not initialized")
	ErrNoTrendReporter       = errors.New("trend reporter not configured")
)

// ChatSession is a persistent conversation with the model
type ChatSession interface {
	SendMessage(ctx context.Context, text string, image *models.Attachment) (string, error)
}

// TrendReporter answers trend questions from a grounded web search. It
// recovers from its own failures.
type TrendReporter interface {
	TrendReport(ctx context.Context, query string) (string, []models.Source)
}

// Route is the path a user turn is answered through
type Route string

const (
	RouteConversation Route = "conversation"
	RouteTrend        Route = "trend"
)

// ChooseRoute sends keyword matches to the trend path unless an image is
// attached; images always go through the conversation.
func ChooseRoute(persona *models.Persona, text string, hasImage bool) Route {
	if hasImage {
		return RouteConversation
	}
	lower := strings.ToLower(text)
	for _, kw := range persona.TrendKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return RouteTrend
		}
	}
	return RouteConversation
}

// Turn is an accepted user turn waiting for its reply
type Turn struct {
	UserMessage models.Message
	Route       Route
	Prompt      string
	Image       *models.Attachment
}

// Outcome is how a turn settled
type Outcome struct {
	Reply      models.Message
	Failed     bool
	Error      string
	RolledBack bool
}

// ImageFile is an uploaded image that has not been read yet
type ImageFile struct {
	MIMEType string
	Reader   io.Reader
}

// Conversation owns the message log and the turn state of one chat. At most
// one turn is in flight; Begin refuses new turns until Complete runs.
type Conversation struct {
	id      uuid.UUID
	persona *models.Persona
	session ChatSession
	trends  TrendReporter
	extract func(string) (string, []models.ResponseImage)
	now     func() time.Time
	created time.Time

	mu               sync.Mutex
	messages         []models.Message
	loading          bool
	err              string
	showQuickReplies bool
	subscribers      map[int]chan models.ConversationState
	nextSubscriber   int
}

// NewConversation starts a conversation. An empty history is replaced by the
// persona's greetings.
func NewConversation(id uuid.UUID, persona *models.Persona, session ChatSession, trends TrendReporter, history []models.Message) *Conversation {
	c := &Conversation{
		id:               id,
		persona:          persona,
		session:          session,
		trends:           trends,
		extract:          services.ExtractResponseImages,
		now:              time.Now,
		messages:         slices.Clone(history),
		showQuickReplies: len(history) == 0,
		subscribers:      make(map[int]chan models.ConversationState),
	}
	if len(history) > 0 {
		c.created = history[0].CreatedAt
	} else {
		c.created = c.now()
		for _, text := range persona.Greetings {
			msg := c.newMessage(models.RoleModel, text)
			msg.CreatedAt = c.created
			c.messages = append(c.messages, msg)
		}
	}
	return c
}

// ID returns the conversation id
func (c *Conversation) ID() uuid.UUID {
	return c.id
}

// Info describes the conversation for listings
func (c *Conversation) Info() models.Conversation {
	return models.Conversation{ID: c.id, CreatedAt: c.created}
}

// PrepareAttachment reads an uploaded image. A failure aborts the turn before
// it starts: the error banner is set and nothing is appended.
func (c *Conversation) PrepareAttachment(file *ImageFile) (*models.Attachment, error) {
	if file == nil {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading {
		return nil, ErrTurnInProgress
	}

	img, err := readImage(file)
	if err != nil {
		log.Printf("Conversation %s: error reading image: %v", c.id, err)
		c.err = c.persona.AttachmentError
		c.showQuickReplies = false
		c.notifyLocked()
		return nil, fmt.Errorf("%w: %v", ErrAttachment, err)
	}
	return img, nil
}

func readImage(file *ImageFile) (*models.Attachment, error) {
	if file.Reader == nil {
		return nil, errors.New("no image data")
	}
	data, err := io.ReadAll(file.Reader)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("image is empty")
	}

	mimeType := file.MIMEType
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("unsupported content type %q", mimeType)
	}
	return &models.Attachment{MIMEType: mimeType, Data: data}, nil
}

// Begin accepts a user turn: the loading flag is raised, the error cleared,
// quick replies hidden and the user message appended right away.
func (c *Conversation) Begin(text string, image *models.Attachment) (Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" && image == nil {
		return Turn{}, ErrEmptyTurn
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading {
		return Turn{}, ErrTurnInProgress
	}

	c.loading = true
	c.err = ""
	c.showQuickReplies = false

	msg := c.newMessage(models.RoleUser, text)
	if image != nil {
		msg.Image = image.DataURL()
	}
	c.messages = append(c.messages, msg)
	c.notifyLocked()

	turn := Turn{
		UserMessage: msg,
		Route:       RouteConversation,
		Prompt:      text,
		Image:       image,
	}
	// without a reporter trend questions go to the chat like any other turn
	if c.trends != nil {
		turn.Route = ChooseRoute(c.persona, text, image != nil)
	}
	if image != nil && text == "" {
		turn.Prompt = c.persona.DefaultImagePrompt
	}
	return turn, nil
}

// Complete answers an accepted turn and appends exactly one model message:
// the shaped reply, or the persona's fallback when the turn failed.
func (c *Conversation) Complete(ctx context.Context, turn Turn) Outcome {
	text, sources, err := c.respond(ctx, turn)

	c.mu.Lock()
	defer c.mu.Unlock()

	var out Outcome
	if err != nil {
		log.Printf("Conversation %s: turn failed: %v", c.id, err)
		c.err = c.persona.TurnError
		if c.persona.RollbackOnFailure {
			out.RolledBack = c.removeLocked(turn.UserMessage.ID)
		}
		out.Failed = true
		out.Error = c.err
		out.Reply = c.newMessage(models.RoleModel, c.persona.TurnFallback)
	} else {
		cleaned, images := c.extract(text)
		out.Reply = c.newMessage(models.RoleModel, cleaned)
		out.Reply.ResponseImages = images
		out.Reply.Sources = sources
	}

	c.messages = append(c.messages, out.Reply)
	c.loading = false
	c.notifyLocked()
	return out
}

// Send runs a whole turn
func (c *Conversation) Send(ctx context.Context, text string, image *models.Attachment) (Turn, Outcome, error) {
	turn, err := c.Begin(text, image)
	if err != nil {
		return Turn{}, Outcome{}, err
	}
	return turn, c.Complete(ctx, turn), nil
}

func (c *Conversation) respond(ctx context.Context, turn Turn) (string, []models.Source, error) {
	if turn.Route == RouteTrend {
		if c.trends == nil {
			return "", nil, ErrNoTrendReporter
		}
		text, sources := c.trends.TrendReport(ctx, turn.Prompt)
		if sources == nil {
			sources = []models.Source{}
		}
		return text, sources, nil
	}

	if c.session == nil {
		return "", nil, ErrSessionNotInitialized
	}
	text, err := c.session.SendMessage(ctx, turn.Prompt, turn.Image)
	if err != nil {
		return "", nil, err
	}
	return text, nil, nil
}

// State returns a snapshot for rendering
func (c *Conversation) State() models.ConversationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Messages returns a copy of the message log
func (c *Conversation) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.messages)
}

// Subscribe delivers a snapshot now and after every state change. Slow
// subscribers only see the latest snapshot.
func (c *Conversation) Subscribe() (<-chan models.ConversationState, func()) {
	ch := make(chan models.ConversationState, 4)

	c.mu.Lock()
	id := c.nextSubscriber
	c.nextSubscriber++
	c.subscribers[id] = ch
	ch <- c.stateLocked()
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(sub)
		}
	}
}

// Close ends all subscriptions
func (c *Conversation) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
}

func (c *Conversation) stateLocked() models.ConversationState {
	st := models.ConversationState{
		ID:       c.id,
		Messages: slices.Clone(c.messages),
		Loading:  c.loading,
		Error:    c.err,
	}
	if c.showQuickReplies && len(c.messages) <= 1 {
		st.QuickReplies = slices.Clone(c.persona.QuickReplies)
	}
	return st
}

func (c *Conversation) notifyLocked() {
	st := c.stateLocked()
	for _, ch := range c.subscribers {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
}

func (c *Conversation) removeLocked(id string) bool {
	i := slices.IndexFunc(c.messages, func(m models.Message) bool { return m.ID == id })
	if i < 0 {
		return false
	}
	c.messages = slices.Delete(c.messages, i, i+1)
	return true
}

func (c *Conversation) newMessage(role models.Role, text string) models.Message {
	return models.Message{
		ID:             uuid.NewString(),
		ConversationID: c.id,
		Role:           role,
		Text:           text,
		CreatedAt:      c.now(),
	}
}
