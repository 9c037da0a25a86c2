package workflows

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"aura-chat/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeSession struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
	text  string
	image *models.Attachment
	block chan struct{}
}

func (f *fakeSession) SendMessage(_ context.Context, text string, image *models.Attachment) (string, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.text = text
	f.image = image
	return f.reply, f.err
}

type fakeTrends struct {
	text    string
	sources []models.Source
	calls   int
	query   string
}

func (f *fakeTrends) TrendReport(_ context.Context, query string) (string, []models.Source) {
	f.calls++
	f.query = query
	return f.text, f.sources
}

func testPersona() *models.Persona {
	return &models.Persona{
		Name:               "Aura",
		SystemInstruction:  "Be chic.",
		Greetings:          []string{"Hi, I'm Aura."},
		QuickReplies:       []string{"Style an item for me.", "What are this season's trends?"},
		DefaultImagePrompt: "Analyze this mood board.",
		TrendKeywords:      []string{"trend", "trending", "season"},
		TurnFallback:       "Oh no, my circuits are in a tangle!",
		TurnError:          "Sorry, I'm having a bit of trouble right now.",
		AttachmentError:    "Sorry, there was a problem with your image.",
	}
}

func newTestConversation(persona *models.Persona, session ChatSession, trends TrendReporter) *Conversation {
	return NewConversation(uuid.New(), persona, session, trends, nil)
}

func TestChooseRoute(t *testing.T) {
	p := testPersona()
	assert.Equal(t, RouteTrend, ChooseRoute(p, "What are this season's trends?", false))
	assert.Equal(t, RouteTrend, ChooseRoute(p, "TRENDING colors", false))
	assert.Equal(t, RouteConversation, ChooseRoute(p, "trendy sunglasses", true))
	assert.Equal(t, RouteConversation, ChooseRoute(p, "Help me pack for a trip.", false))
}

func TestNewConversation_Greeting(t *testing.T) {
	conv := newTestConversation(testPersona(), &fakeSession{}, &fakeTrends{})

	st := conv.State()
	require.Len(t, st.Messages, 1)
	assert.Equal(t, models.RoleModel, st.Messages[0].Role)
	assert.Equal(t, "Hi, I'm Aura.", st.Messages[0].Text)
	assert.False(t, st.Loading)
	assert.Equal(t, []string{"Style an item for me.", "What are this season's trends?"}, st.QuickReplies)
}

func TestSend_ConversationPath(t *testing.T) {
	session := &fakeSession{reply: "A trench coat is a must. [image: beige trench coat]"}
	trends := &fakeTrends{}
	conv := newTestConversation(testPersona(), session, trends)

	turn, out, err := conv.Send(context.Background(), "  What coat should I buy?  ", nil)
	require.NoError(t, err)

	assert.Equal(t, RouteConversation, turn.Route)
	assert.Equal(t, 1, session.calls)
	assert.Equal(t, 0, trends.calls)
	assert.Equal(t, "What coat should I buy?", session.text)
	assert.False(t, out.Failed)
	assert.Equal(t, "A trench coat is a must.", out.Reply.Text)
	require.Len(t, out.Reply.ResponseImages, 1)
	assert.Equal(t, "beige trench coat", out.Reply.ResponseImages[0].Alt)
	assert.Nil(t, out.Reply.Sources)

	st := conv.State()
	require.Len(t, st.Messages, 3)
	assert.Equal(t, models.RoleUser, st.Messages[1].Role)
	assert.Equal(t, "What coat should I buy?", st.Messages[1].Text)
	assert.Equal(t, out.Reply.ID, st.Messages[2].ID)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)
	assert.Empty(t, st.QuickReplies)
}

func TestSend_TrendPath(t *testing.T) {
	session := &fakeSession{reply: "unused"}
	trends := &fakeTrends{
		text:    "Butter yellow is everywhere. [image: butter yellow dress]",
		sources: []models.Source{{URI: "https://vogue.example", Title: "Vogue"}},
	}
	conv := newTestConversation(testPersona(), session, trends)

	turn, out, err := conv.Send(context.Background(), "What are this season's trends?", nil)
	require.NoError(t, err)

	assert.Equal(t, RouteTrend, turn.Route)
	assert.Equal(t, 0, session.calls)
	assert.Equal(t, 1, trends.calls)
	assert.Equal(t, "What are this season's trends?", trends.query)
	assert.Equal(t, "Butter yellow is everywhere.", out.Reply.Text)
	assert.Equal(t, trends.sources, out.Reply.Sources)
	require.Len(t, out.Reply.ResponseImages, 1)
}

func TestSend_TrendFallbackIsNotAFailure(t *testing.T) {
	trends := &fakeTrends{text: "Trend reports are down, try later."}
	conv := newTestConversation(testPersona(), &fakeSession{}, trends)

	_, out, err := conv.Send(context.Background(), "trending now", nil)
	require.NoError(t, err)

	assert.False(t, out.Failed)
	assert.Equal(t, "Trend reports are down, try later.", out.Reply.Text)
	assert.NotNil(t, out.Reply.Sources)
	assert.Empty(t, out.Reply.Sources)
	assert.Empty(t, conv.State().Error)
}

func TestSend_ImageForcesConversation(t *testing.T) {
	session := &fakeSession{reply: "Love these."}
	trends := &fakeTrends{}
	conv := newTestConversation(testPersona(), session, trends)
	img := &models.Attachment{MIMEType: "image/png", Data: pngHeader}

	turn, _, err := conv.Send(context.Background(), "trendy sunglasses", img)
	require.NoError(t, err)

	assert.Equal(t, RouteConversation, turn.Route)
	assert.Equal(t, 0, trends.calls)
	assert.Equal(t, "trendy sunglasses", session.text)
	assert.Same(t, img, session.image)
	assert.Equal(t, img.DataURL(), conv.Messages()[1].Image)
}

func TestSend_ImageOnlyUsesDefaultPrompt(t *testing.T) {
	session := &fakeSession{reply: "Very gallery opening."}
	conv := newTestConversation(testPersona(), session, &fakeTrends{})

	_, _, err := conv.Send(context.Background(), "", &models.Attachment{MIMEType: "image/png", Data: pngHeader})
	require.NoError(t, err)

	assert.Equal(t, "Analyze this mood board.", session.text)
	assert.Equal(t, "", conv.Messages()[1].Text)
}

func TestSend_EmptyTurn(t *testing.T) {
	conv := newTestConversation(testPersona(), &fakeSession{}, &fakeTrends{})

	_, _, err := conv.Send(context.Background(), "   ", nil)
	require.ErrorIs(t, err, ErrEmptyTurn)
	assert.Len(t, conv.Messages(), 1)
	assert.NotEmpty(t, conv.State().QuickReplies)
}

func TestSend_FailureKeepsUserMessage(t *testing.T) {
	session := &fakeSession{err: errors.New("network down")}
	conv := newTestConversation(testPersona(), session, &fakeTrends{})

	_, out, err := conv.Send(context.Background(), "Style my jeans", nil)
	require.NoError(t, err)

	assert.True(t, out.Failed)
	assert.False(t, out.RolledBack)
	assert.Equal(t, "Sorry, I'm having a bit of trouble right now.", out.Error)

	st := conv.State()
	require.Len(t, st.Messages, 3)
	assert.Equal(t, "Style my jeans", st.Messages[1].Text)
	assert.Equal(t, models.RoleModel, st.Messages[2].Role)
	assert.Equal(t, "Oh no, my circuits are in a tangle!", st.Messages[2].Text)
	assert.Equal(t, "Sorry, I'm having a bit of trouble right now.", st.Error)
	assert.False(t, st.Loading)

	// the input stays usable: the next turn clears the error
	session.err = nil
	session.reply = "Try a cuffed hem."
	_, out, err = conv.Send(context.Background(), "Again?", nil)
	require.NoError(t, err)
	assert.False(t, out.Failed)
	assert.Empty(t, conv.State().Error)
	assert.Len(t, conv.Messages(), 5)
}

func TestSend_FailureWithRollback(t *testing.T) {
	persona := testPersona()
	persona.RollbackOnFailure = true
	conv := newTestConversation(persona, &fakeSession{err: errors.New("network down")}, &fakeTrends{})

	_, out, err := conv.Send(context.Background(), "Style my jeans", nil)
	require.NoError(t, err)

	assert.True(t, out.Failed)
	assert.True(t, out.RolledBack)
	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hi, I'm Aura.", msgs[0].Text)
	assert.Equal(t, "Oh no, my circuits are in a tangle!", msgs[1].Text)
}

func TestSend_MissingSession(t *testing.T) {
	conv := newTestConversation(testPersona(), nil, &fakeTrends{})

	_, out, err := conv.Send(context.Background(), "Hello", nil)
	require.NoError(t, err)
	assert.True(t, out.Failed)
	assert.Len(t, conv.Messages(), 3)
}

func TestSend_NoTrendReporter(t *testing.T) {
	session := &fakeSession{reply: "Think sheer layers."}
	conv := newTestConversation(testPersona(), session, nil)

	turn, out, err := conv.Send(context.Background(), "What's trending?", nil)
	require.NoError(t, err)

	assert.Equal(t, RouteConversation, turn.Route)
	assert.Equal(t, 1, session.calls)
	assert.False(t, out.Failed)
	assert.Equal(t, "Think sheer layers.", out.Reply.Text)
	assert.Nil(t, out.Reply.Sources)
}

func TestComplete_TrendRouteWithoutReporter(t *testing.T) {
	session := &fakeSession{reply: "chat answer"}
	conv := newTestConversation(testPersona(), session, nil)

	turn, err := conv.Begin("What's trending?", nil)
	require.NoError(t, err)
	turn.Route = RouteTrend

	out := conv.Complete(context.Background(), turn)
	assert.True(t, out.Failed)
	assert.Equal(t, 0, session.calls)
	assert.Equal(t, "Oh no, my circuits are in a tangle!", out.Reply.Text)
}

func TestSend_OneTurnAtATime(t *testing.T) {
	session := &fakeSession{reply: "done", block: make(chan struct{})}
	conv := newTestConversation(testPersona(), session, &fakeTrends{})

	turn, err := conv.Begin("first", nil)
	require.NoError(t, err)
	assert.True(t, conv.State().Loading)

	_, err = conv.Begin("second", nil)
	require.ErrorIs(t, err, ErrTurnInProgress)
	_, err = conv.PrepareAttachment(&ImageFile{Reader: bytes.NewReader(pngHeader)})
	require.ErrorIs(t, err, ErrTurnInProgress)

	close(session.block)
	conv.Complete(context.Background(), turn)

	assert.False(t, conv.State().Loading)
	assert.Len(t, conv.Messages(), 3)
	_, err = conv.Begin("second", nil)
	require.NoError(t, err)
}

func TestSend_UniqueIDs(t *testing.T) {
	conv := newTestConversation(testPersona(), &fakeSession{reply: "ok"}, &fakeTrends{})
	for i := 0; i < 5; i++ {
		_, _, err := conv.Send(context.Background(), "hi", nil)
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	for _, msg := range conv.Messages() {
		assert.False(t, seen[msg.ID], "duplicate id %s", msg.ID)
		seen[msg.ID] = true
	}
	assert.Len(t, seen, 11)
}

func TestPrepareAttachment(t *testing.T) {
	conv := newTestConversation(testPersona(), &fakeSession{}, &fakeTrends{})

	img, err := conv.PrepareAttachment(nil)
	require.NoError(t, err)
	assert.Nil(t, img)

	img, err = conv.PrepareAttachment(&ImageFile{Reader: bytes.NewReader(pngHeader)})
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, pngHeader, img.Data)

	img, err = conv.PrepareAttachment(&ImageFile{MIMEType: "image/webp", Reader: strings.NewReader("webp-bytes")})
	require.NoError(t, err)
	assert.Equal(t, "image/webp", img.MIMEType)
}

func TestPrepareAttachment_Failure(t *testing.T) {
	files := map[string]*ImageFile{
		"read error": {MIMEType: "image/png", Reader: iotest.ErrReader(errors.New("disk gone"))},
		"empty":      {MIMEType: "image/png", Reader: strings.NewReader("")},
		"not image":  {Reader: strings.NewReader("just some text")},
		"no reader":  {MIMEType: "image/png"},
	}
	for name, file := range files {
		t.Run(name, func(t *testing.T) {
			conv := newTestConversation(testPersona(), &fakeSession{}, &fakeTrends{})

			_, err := conv.PrepareAttachment(file)
			require.ErrorIs(t, err, ErrAttachment)

			st := conv.State()
			assert.Equal(t, "Sorry, there was a problem with your image.", st.Error)
			assert.Len(t, st.Messages, 1)
			assert.False(t, st.Loading)
		})
	}
}

func TestSubscribe(t *testing.T) {
	conv := newTestConversation(testPersona(), &fakeSession{reply: "ok"}, &fakeTrends{})

	states, cancel := conv.Subscribe()
	defer cancel()

	first := <-states
	assert.Len(t, first.Messages, 1)

	_, _, err := conv.Send(context.Background(), "hi", nil)
	require.NoError(t, err)

	sending := <-states
	assert.True(t, sending.Loading)
	assert.Len(t, sending.Messages, 2)

	settled := <-states
	assert.False(t, settled.Loading)
	assert.Len(t, settled.Messages, 3)

	conv.Close()
	_, ok := <-states
	assert.False(t, ok)
}
