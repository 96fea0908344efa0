package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sanonone/kektorindex/pkg/metrics"
)

// DefaultOllamaURL is the embeddings endpoint of a local Ollama server.
const DefaultOllamaURL = "http://localhost:11434/api/embeddings"

// OllamaEmbedder implements the Embedder interface using a remote Ollama instance.
type OllamaEmbedder struct {
	URL    string
	Model  string
	Client *http.Client
}

func NewOllamaEmbedder(url, model string, timeout time.Duration) *OllamaEmbedder {
	if url == "" {
		url = DefaultOllamaURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaEmbedder{
		URL:    url,
		Model:  model,
		Client: &http.Client{Timeout: timeout},
	}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embed(ctx, text)
	metrics.ObserveEmbedding(ProviderOllama, err)
	return vec, err
}

func (e *OllamaEmbedder) embed(ctx context.Context, text string) ([]float32, error) {
	jsonData, err := json.Marshal(map[string]string{
		"model":  e.Model,
		"prompt": text,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama returned status %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	var ollamaResp struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to decode ollama response: %w", err)
	}
	if len(ollamaResp.Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return ollamaResp.Embedding, nil
}
