package models

// Persona configures the assistant's voice and the turn policy of a conversation
type Persona struct {
	Name              string   `yaml:"name" json:"name"`
	SystemInstruction string   `yaml:"system_instruction" json:"-"`
	Greetings         []string `yaml:"greetings" json:"greetings"`
	QuickReplies      []string `yaml:"quick_replies" json:"quick_replies"`
	// DefaultImagePrompt is sent when a turn carries an image but no text.
	DefaultImagePrompt string   `yaml:"default_image_prompt" json:"-"`
	TrendKeywords      []string `yaml:"trend_keywords" json:"-"`
	TrendFallback      string   `yaml:"trend_fallback" json:"-"`
	TurnFallback       string   `yaml:"turn_fallback" json:"-"`
	TurnError          string   `yaml:"turn_error" json:"-"`
	AttachmentError    string   `yaml:"attachment_error" json:"-"`
	RollbackOnFailure  bool     `yaml:"rollback_on_failure" json:"-"`
}
