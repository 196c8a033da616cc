package retrieval

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"google.golang.org/genai"
)

// ContentEmbedder is the subset of genai.Models used for embeddings.
type ContentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GenAIEmbedder implements embedding.Embedder with the Gemini embeddings API.
type GenAIEmbedder struct {
	models ContentEmbedder
	model  string
}

func NewGenAIEmbedder(client *genai.Client, model string) (*GenAIEmbedder, error) {
	if client == nil {
		return nil, fmt.Errorf("genai client is required")
	}
	return newGenAIEmbedder(client.Models, model), nil
}

func newGenAIEmbedder(models ContentEmbedder, model string) *GenAIEmbedder {
	if model == "" {
		model = "gemini-embedding-001"
	}
	return &GenAIEmbedder{models: models, model: model}
}

// EmbedStrings embeds texts as retrieval queries, one vector per text.
func (e *GenAIEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := e.models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType: "RETRIEVAL_QUERY",
	})
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}
	if result == nil || len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("GenAI embed returned %d embeddings for %d texts", embeddingCount(result), len(texts))
	}

	out := make([][]float64, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vec := make([]float64, len(emb.Values))
		for j, v := range emb.Values {
			vec[j] = float64(v)
		}
		out[i] = vec
	}
	return out, nil
}

func embeddingCount(r *genai.EmbedContentResponse) int {
	if r == nil {
		return 0
	}
	return len(r.Embeddings)
}

var _ embedding.Embedder = (*GenAIEmbedder)(nil)
