package handlers

import (
	"encoding/base64"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"aura-chat/models"
	"aura-chat/workflows"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ChatHandler handles chat-related HTTP requests
type ChatHandler struct {
	workflows *workflows.ChatWorkflows
	dbosCtx   dbos.DBOSContext // nil runs turns directly
}

// NewChatHandler creates a new chat handler
func NewChatHandler(wf *workflows.ChatWorkflows, dbosCtx dbos.DBOSContext) *ChatHandler {
	return &ChatHandler{
		workflows: wf,
		dbosCtx:   dbosCtx,
	}
}

// CreateConversation opens a conversation with a fresh chat session
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	var id uuid.UUID
	if h.dbosCtx != nil {
		handle, err := dbos.RunWorkflow(h.dbosCtx, h.workflows.CreateConversationWorkflow, "")
		if err != nil {
			log.Printf("Failed to start CreateConversation workflow: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create conversation"})
			return
		}
		info, err := handle.GetResult()
		if err != nil {
			log.Printf("CreateConversation workflow failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create conversation"})
			return
		}
		id = info.ID
	} else {
		conv, err := h.workflows.CreateConversation(c.Request.Context())
		if err != nil {
			log.Printf("Failed to create conversation: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create conversation"})
			return
		}
		id = conv.ID()
	}

	conv, ok := h.lookup(c, id)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, conv.State())
}

// ListConversations lists all conversations
func (h *ChatHandler) ListConversations(c *gin.Context) {
	conversations, err := h.workflows.ListConversations(c.Request.Context())
	if err != nil {
		log.Printf("Failed to list conversations: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list conversations"})
		return
	}
	c.JSON(http.StatusOK, conversations)
}

// GetConversation returns the current state of a conversation
func (h *ChatHandler) GetConversation(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	conv, ok := h.lookup(c, id)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, conv.State())
}

// DeleteConversation deletes a conversation
func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}

	var err error
	if h.dbosCtx != nil {
		handle, runErr := dbos.RunWorkflow(h.dbosCtx, h.workflows.DeleteConversationWorkflow, id)
		if err = runErr; err == nil {
			_, err = handle.GetResult()
		}
	} else {
		err = h.workflows.DeleteConversation(c.Request.Context(), id)
	}
	if err != nil {
		log.Printf("Failed to delete conversation %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted"})
}

// SendMessage submits a user turn and returns the reply. Failed turns still
// answer 200: the reply is the fallback message and error carries the banner.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	conv, ok := h.lookup(c, id)
	if !ok {
		return
	}

	text, file, closeFile, err := readTurnRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	defer closeFile()

	image, err := conv.PrepareAttachment(file)
	if err != nil {
		h.turnError(c, conv, err)
		return
	}

	input := workflows.SendMessageInput{ConversationID: id, Text: text, Image: image}
	if strings.TrimSpace(input.Text) == "" && input.Image == nil {
		h.turnError(c, conv, workflows.ErrEmptyTurn)
		return
	}
	if conv.State().Loading {
		h.turnError(c, conv, workflows.ErrTurnInProgress)
		return
	}

	var output workflows.SendMessageOutput
	if h.dbosCtx != nil {
		handle, runErr := dbos.RunWorkflow(h.dbosCtx, h.workflows.SendMessageWorkflow, input)
		if err = runErr; err == nil {
			output, err = handle.GetResult()
		}
	} else {
		output, err = h.workflows.SendMessage(c.Request.Context(), input)
	}
	if err != nil {
		h.turnError(c, conv, err)
		return
	}

	resp := models.ChatResponse{
		ModelMessage: output.Outcome.Reply,
		Error:        output.Outcome.Error,
		State:        conv.State(),
	}
	if !output.Outcome.RolledBack {
		resp.UserMessage = &output.UserMessage
	}
	c.JSON(http.StatusOK, resp)
}

// GetMessages retrieves all messages for a conversation
func (h *ChatHandler) GetMessages(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}

	messages, err := h.workflows.Messages(c.Request.Context(), id)
	if errors.Is(err, workflows.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}
	if err != nil {
		log.Printf("Failed to get messages for %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get messages"})
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	c.JSON(http.StatusOK, messages)
}

// StreamEvents pushes a "state" event after every change to the conversation
func (h *ChatHandler) StreamEvents(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	conv, ok := h.lookup(c, id)
	if !ok {
		return
	}

	states, cancel := conv.Subscribe()
	defer cancel()

	c.Stream(func(w io.Writer) bool {
		select {
		case st, ok := <-states:
			if !ok {
				return false
			}
			c.SSEvent("state", st)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *ChatHandler) lookup(c *gin.Context, id uuid.UUID) (*workflows.Conversation, bool) {
	conv, err := h.workflows.Conversation(c.Request.Context(), id)
	if errors.Is(err, workflows.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return nil, false
	}
	if err != nil {
		log.Printf("Failed to load conversation %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversation"})
		return nil, false
	}
	return conv, true
}

func (h *ChatHandler) turnError(c *gin.Context, conv *workflows.Conversation, err error) {
	state := conv.State()
	switch {
	case errors.Is(err, workflows.ErrAttachment):
		c.JSON(http.StatusBadRequest, gin.H{"error": state.Error, "state": state})
	case errors.Is(err, workflows.ErrEmptyTurn):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message text or image is required", "state": state})
	case errors.Is(err, workflows.ErrTurnInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "Please wait for the current reply", "state": state})
	default:
		log.Printf("SendMessage failed for %s: %v", conv.ID(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message", "state": state})
	}
}

func conversationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return uuid.Nil, false
	}
	return id, true
}

// readTurnRequest accepts either a JSON body or a multipart form with a
// "text" field and an optional "image" file
func readTurnRequest(c *gin.Context) (string, *workflows.ImageFile, func(), error) {
	noop := func() {}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		text := c.PostForm("text")
		header, err := c.FormFile("image")
		if errors.Is(err, http.ErrMissingFile) {
			return text, nil, noop, nil
		}
		if err != nil {
			return "", nil, noop, err
		}

		file := &workflows.ImageFile{MIMEType: header.Header.Get("Content-Type")}
		f, err := header.Open()
		if err != nil {
			// left unread; PrepareAttachment reports it as a bad image
			return text, file, noop, nil
		}
		file.Reader = f
		return text, file, func() { f.Close() }, nil
	}

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return "", nil, noop, err
	}
	if req.Image == nil {
		return req.Text, nil, noop, nil
	}

	mimeType, data := req.Image.MIMEType, req.Image.Data
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		meta, payload, _ := strings.Cut(rest, ",")
		if mimeType == "" {
			mimeType = strings.TrimSuffix(meta, ";base64")
		}
		data = payload
	}
	return req.Text, &workflows.ImageFile{
		MIMEType: mimeType,
		Reader:   base64.NewDecoder(base64.StdEncoding, strings.NewReader(data)),
	}, noop, nil
}
