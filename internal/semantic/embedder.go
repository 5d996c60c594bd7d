package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dimension() int
}

// OllamaEmbedder generates embeddings through an Ollama server's
// embeddings API.
type OllamaEmbedder struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
}

// NewOllamaEmbedder creates an embedder for the given server and model.
// dimension must match the model's output dimension.
func NewOllamaEmbedder(serverURL, model string, dimension int) (*OllamaEmbedder, error) {
	if serverURL == "" {
		serverURL = "http://localhost:11434"
	}
	if !strings.HasPrefix(serverURL, "http://") && !strings.HasPrefix(serverURL, "https://") {
		serverURL = "http://" + serverURL
	}
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", serverURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q: missing host", serverURL)
	}
	if model == "" {
		return nil, fmt.Errorf("embedding model required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dimension)
	}
	return &OllamaEmbedder{
		baseURL:   strings.TrimSuffix(u.String(), "/"),
		model:     model,
		dimension: dimension,
		client:    &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (e *OllamaEmbedder) Model() string  { return e.model }
func (e *OllamaEmbedder) Dimension() int { return e.dimension }

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed requests an embedding for text from the server.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var er embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(er.Embedding) != e.dimension {
		return nil, fmt.Errorf("model %s returned dimension %d, expected %d",
			e.model, len(er.Embedding), e.dimension)
	}

	vec := make([]float32, len(er.Embedding))
	for i, v := range er.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
