package config

import (
	"errors"
	"fmt"
	"os"

	"aura-chat/models"

	"gopkg.in/yaml.v3"
)

const defaultModel = "gemini-2.5-flash"

// ErrMissingAPIKey is returned when no Gemini credential is configured
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY (or API_KEY) environment variable is required")

// Config holds process configuration read from the environment
type Config struct {
	APIKey      string
	Model       string
	Port        string
	DatabaseURL string // optional; enables Postgres and DBOS workflows
	Persona     models.Persona
}

// Load reads the configuration from the environment. The persona is the
// built-in one unless AURA_PERSONA_FILE points at a YAML override.
func Load() (*Config, error) {
	cfg := &Config{
		APIKey:      os.Getenv("GEMINI_API_KEY"),
		Model:       os.Getenv("GEMINI_MODEL"),
		Port:        os.Getenv("PORT"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Persona:     DefaultPersona(),
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	if path := os.Getenv("AURA_PERSONA_FILE"); path != "" {
		persona, err := LoadPersona(path)
		if err != nil {
			return nil, err
		}
		cfg.Persona = persona
	}
	return cfg, nil
}

// LoadPersona reads a YAML persona file. Fields left empty keep the values
// of the built-in persona.
func LoadPersona(path string) (models.Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Persona{}, fmt.Errorf("failed to read persona file: %w", err)
	}
	return ParsePersona(data)
}

// ParsePersona decodes a YAML persona on top of the built-in one
func ParsePersona(data []byte) (models.Persona, error) {
	var override models.Persona
	if err := yaml.Unmarshal(data, &override); err != nil {
		return models.Persona{}, fmt.Errorf("failed to parse persona: %w", err)
	}

	p := DefaultPersona()
	if override.Name != "" {
		p.Name = override.Name
	}
	if override.SystemInstruction != "" {
		p.SystemInstruction = override.SystemInstruction
	}
	if override.Greetings != nil {
		p.Greetings = override.Greetings
	}
	if override.QuickReplies != nil {
		p.QuickReplies = override.QuickReplies
	}
	if override.DefaultImagePrompt != "" {
		p.DefaultImagePrompt = override.DefaultImagePrompt
	}
	if len(override.TrendKeywords) > 0 {
		p.TrendKeywords = override.TrendKeywords
	}
	if override.TrendFallback != "" {
		p.TrendFallback = override.TrendFallback
	}
	if override.TurnFallback != "" {
		p.TurnFallback = override.TurnFallback
	}
	if override.TurnError != "" {
		p.TurnError = override.TurnError
	}
	if override.AttachmentError != "" {
		p.AttachmentError = override.AttachmentError
	}
	p.RollbackOnFailure = override.RollbackOnFailure
	return p, nil
}
