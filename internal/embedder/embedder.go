// Package embedder implements the Embedder Client: text to vector via an
// Ollama embeddings endpoint, degrading to a zero vector on failure rather
// than failing the caller's add()/search() operation.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sony/gobreaker/v2"
)

// Client embeds text via an Ollama embeddings endpoint.
type Client struct {
	baseURL string
	model   string
	dims    int
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]float64]
}

// New constructs an Embedder Client. dims is the fixed embedding width used
// for the degraded zero-vector fallback.
func New(baseURL, embedModel string, dims int, timeout time.Duration, breakerSettings gobreaker.Settings) *Client {
	breakerSettings.Name = "embedder"
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   embedModel,
		dims:    dims,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[[]float64](breakerSettings),
	}
}

type embeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingsResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the embedding vector for text. On failure it logs a
// ProviderDegraded condition and returns a zero vector of the configured
// dimensionality; it never returns an error.
func (c *Client) Embed(ctx context.Context, text string) []float64 {
	vec, err := c.breaker.Execute(func() ([]float64, error) {
		return c.embedViaLLM(ctx, text)
	})
	if err != nil {
		log.Warn("embedding degraded, returning zero vector", "err", err)
		return make([]float64, c.dims)
	}
	return vec
}

func (c *Client) embedViaLLM(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(embeddingsRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("embedder: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedder: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedder: unexpected status %d", resp.StatusCode)
	}

	var er embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("embedder: decode response: %w", err)
	}
	if len(er.Embedding) == 0 {
		return nil, fmt.Errorf("embedder: empty embedding returned")
	}
	return er.Embedding, nil
}
