package model

// ================ Config ================
type ConversationConfig struct {
	TTL          string `envconfig:"CONVERSATION_TTL" default:"24h"`
	Window       int    `envconfig:"CONVERSATION_WINDOW" default:"8"`
	ContextTurns int    `envconfig:"CONVERSATION_CONTEXT_TURNS" default:"4"`
	Language     string `envconfig:"DEFAULT_LANGUAGE" default:"ko"`
	Retrieval    struct {
		TopK    int `envconfig:"RETRIEVAL_TOP_K" default:"3"`
		MaxDocs int `envconfig:"RETRIEVAL_MAX_DOCS" default:"3"`
	}
}

type ClassifierModelConfig struct {
	Model       string  `envconfig:"CLASSIFIER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"CLASSIFIER_MAX_TOKENS" default:"256"`
	Temperature float32 `envconfig:"CLASSIFIER_TEMPERATURE" default:"0"`
}

type ResponseModelConfig struct {
	Model          string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens      int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2000"`
	Temperature    float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.2"`
	ThinkingBudget int32   `envconfig:"RESPONSE_THINKING_BUDGET" default:"1024"`
}

type EmbeddingConfig struct {
	Model string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
}

type PromptConfig struct {
	Organization string `envconfig:"PROMPT_ORGANIZATION" default:"국립공주대학교"`
	Variant      string `envconfig:"PROMPT_VARIANT" default:"standard"`
}

const (
	// MinWindow keeps the current question and its reply.
	MinWindow           = 2
	DefaultWindow       = 8
	DefaultContextTurns = 4
	DefaultTopK         = 3
	DefaultMaxDocs      = 3
)

// Normalize replaces invalid values with defaults.
func (c ConversationConfig) Normalize() ConversationConfig {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Window < MinWindow {
		c.Window = MinWindow
	}
	if c.ContextTurns <= 0 {
		c.ContextTurns = DefaultContextTurns
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = DefaultTopK
	}
	if c.Retrieval.MaxDocs <= 0 {
		c.Retrieval.MaxDocs = DefaultMaxDocs
	}
	c.Language = string(ParseLanguage(c.Language))
	return c
}
