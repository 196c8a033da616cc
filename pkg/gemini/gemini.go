package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

type Config struct {
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`
}

// ClientConfig returns the genai configuration for the Gemini API backend.
func (c *Config) ClientConfig() *genai.ClientConfig {
	cfg := &genai.ClientConfig{
		APIKey:  c.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.BaseURL != "" {
		cfg.HTTPOptions.BaseURL = c.BaseURL
	}
	return cfg
}

func (c *Config) New(ctx context.Context) (*genai.Client, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, c.ClientConfig())
	if err != nil {
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}
