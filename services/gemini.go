package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"aura-chat/models"

	"google.golang.org/genai"
)

// DefaultTrendFallback is answered when the grounded search cannot be reached
const DefaultTrendFallback = "Oh, it seems I'm having a little trouble connecting to the trend reports right now. Let's try again in a bit!"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type chatSender interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatOpener func(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSender, error)

// GeminiService handles communication with the Gemini API
type GeminiService struct {
	model    string
	models   contentGenerator
	openChat chatOpener

	// TrendFallback replaces the trend report when the search fails.
	TrendFallback string
}

// NewGeminiService creates a Gemini client bound to one model
func NewGeminiService(ctx context.Context, apiKey, model string) (*GeminiService, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiService{
		model:  model,
		models: client.Models,
		openChat: func(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSender, error) {
			chat, err := client.Chats.Create(ctx, model, config, history)
			if err != nil {
				return nil, err
			}
			return chat, nil
		},
		TrendFallback: DefaultTrendFallback,
	}, nil
}

// ChatSession is a persistent conversation with the model
type ChatSession struct {
	chat chatSender
}

// NewChatSession opens a chat fixed to the persona's system instruction.
// history seeds the chat when a stored conversation is resumed.
func (s *GeminiService) NewChatSession(ctx context.Context, persona *models.Persona, history []models.Message) (*ChatSession, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				genai.NewPartFromText(persona.SystemInstruction),
			},
		},
	}

	chat, err := s.openChat(ctx, s.model, config, historyContents(history))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}
	return &ChatSession{chat: chat}, nil
}

// SendMessage sends a user turn and returns the raw model text. With an
// image the request carries a text part followed by an inline image part.
func (c *ChatSession) SendMessage(ctx context.Context, text string, image *models.Attachment) (string, error) {
	parts := []genai.Part{*genai.NewPartFromText(text)}
	if image != nil {
		parts = append(parts, *genai.NewPartFromBytes(image.Data, image.MIMEType))
	}

	resp, err := c.chat.SendMessage(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("failed to send message to Gemini: %w", err)
	}
	if resp == nil {
		return "", errors.New("empty response from Gemini")
	}

	reply := resp.Text()
	if reply == "" {
		return "", errors.New("empty response from Gemini")
	}
	return reply, nil
}

// TrendReport answers a query with Google Search grounding, outside of any
// chat session. It never fails: errors are logged and the fallback text is
// returned with no sources.
func (s *GeminiService) TrendReport(ctx context.Context, query string) (string, []models.Source) {
	resp, err := s.models.GenerateContent(ctx, s.model, genai.Text(query), &genai.GenerateContentConfig{
		Tools: []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
		},
	})
	if err != nil {
		log.Printf("Error getting trend report: %v", err)
		return s.trendFallback(), []models.Source{}
	}
	if resp == nil {
		log.Printf("Error getting trend report: empty response")
		return s.trendFallback(), []models.Source{}
	}

	text := resp.Text()
	if text == "" {
		log.Printf("Error getting trend report: no text in response")
		return s.trendFallback(), []models.Source{}
	}
	return text, groundingSources(resp)
}

func (s *GeminiService) trendFallback() string {
	if s.TrendFallback == "" {
		return DefaultTrendFallback
	}
	return s.TrendFallback
}

// groundingSources collects one source per web chunk of the first candidate,
// in chunk order. Chunks without a web URI are skipped.
func groundingSources(resp *genai.GenerateContentResponse) []models.Source {
	sources := []models.Source{}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].GroundingMetadata == nil {
		return sources
	}

	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		sources = append(sources, models.Source{URI: chunk.Web.URI, Title: chunk.Web.Title})
	}
	return sources
}

// historyContents converts a stored message log into chat history. Greetings
// before the first user message are not part of the model's history.
func historyContents(messages []models.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		if len(contents) == 0 && msg.Role != models.RoleUser {
			continue
		}

		role := "user"
		if msg.Role == models.RoleModel {
			role = "model"
		}

		var parts []*genai.Part
		if msg.Text != "" {
			parts = append(parts, genai.NewPartFromText(msg.Text))
		}
		if msg.Image != "" {
			if img, err := models.ParseDataURL(msg.Image); err == nil {
				parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}
