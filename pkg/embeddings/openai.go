package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sanonone/kektorindex/pkg/metrics"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	Model  string
	client *openai.Client
}

// NewOpenAIEmbedder creates an embedder. baseURL is the API root (for example
// "https://api.openai.com/v1"); empty means the official endpoint.
func NewOpenAIEmbedder(baseURL, model, apiKey string, timeout time.Duration) *OpenAIEmbedder {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIEmbedder{
		Model:  model,
		client: openai.NewClientWithConfig(cfg),
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embed(ctx, text)
	metrics.ObserveEmbedding(ProviderOpenAI, err)
	return vec, err
}

func (e *OpenAIEmbedder) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.Model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp.Data[0].Embedding, nil
}
