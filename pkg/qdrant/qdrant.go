package qdrant

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

const defaultGRPCPort = 6334

type Config struct {
	URL        string `envconfig:"QDRANT_URL" default:"http://localhost:6334"`
	APIKey     string `envconfig:"QDRANT_API_KEY"`
	Collection string `envconfig:"QDRANT_COLLECTION" default:"knu_documents"`
	// Payload layout of the indexed chunks.
	ContentKey  string `envconfig:"QDRANT_CONTENT_KEY" default:"page_content"`
	MetadataKey string `envconfig:"QDRANT_METADATA_KEY" default:"metadata"`
}

// ClientConfig parses URL into the go-client connection settings.
func (c *Config) ClientConfig() (*qdrant.Config, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}

	raw := c.URL
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse qdrant url: %w", err)
	}

	port := defaultGRPCPort
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
		port = p
	}

	return &qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: u.Scheme == "https",
	}, nil
}

func (c *Config) New() (*qdrant.Client, error) {
	cfg, err := c.ClientConfig()
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return client, nil
}
