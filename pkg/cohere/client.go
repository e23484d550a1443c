// Package cohere provides the production Embedder and Generator adapters
// over the Cohere HTTP API. The client rate-limits outbound calls and maps
// transport and API failures onto the domain error taxonomy so the pipeline
// can branch on them without knowing the wire format.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/retriva/retriva/engine/domain"
)

// DefaultBaseURL is the public Cohere API endpoint.
const DefaultBaseURL = "https://api.cohere.com"

// Config holds everything the client needs; nothing is read from the
// environment here.
type Config struct {
	BaseURL    string
	APIKey     string
	EmbedModel string // e.g. "embed-english-v3.0"
	ChatModel  string // e.g. "command-r-plus"
	Timeout    time.Duration
	// RatePerSec caps outbound calls; 0 disables limiting.
	RatePerSec float64
	Burst      int
}

// Client talks to the Cohere embed and chat endpoints.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

type embedRequest struct {
	Model     string   `json:"model"`
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type chatRequest struct {
	Model   string `json:"model"`
	Message string `json:"message"`
}

type chatResponse struct {
	Text string `json:"text"`
}

type apiError struct {
	Message string `json:"message"`
}

// Embed returns the query embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embed(ctx, []string{text}, "search_query")
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocuments embeds a batch of document chunks for ingestion.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return c.embed(ctx, texts, "search_document")
}

func (c *Client) embed(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	body, status, err := c.post(ctx, "/v1/embed", embedRequest{
		Model:     c.cfg.EmbedModel,
		Texts:     texts,
		InputType: inputType,
	})
	if err != nil {
		return nil, fmt.Errorf("cohere embed: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("cohere embed: status %d: %s", status, apiMessage(body))
	}

	var result embedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("cohere embed decode: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("cohere embed: got %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}
	return result.Embeddings, nil
}

// Generate sends one prompt to the chat endpoint and returns the reply.
// Transport failures map to domain.ErrGenerationUnavailable; explicit API
// error payloads map to domain.ErrGenerationFailed with the upstream
// message preserved.
func (c *Client) Generate(ctx context.Context, promptText string) (string, error) {
	if promptText == "" {
		return "", fmt.Errorf("cohere chat: %w: empty prompt", domain.ErrGenerationFailed)
	}

	body, status, err := c.post(ctx, "/v1/chat", chatRequest{
		Model:   c.cfg.ChatModel,
		Message: promptText,
	})
	if err != nil {
		return "", fmt.Errorf("cohere chat: %w: %w", domain.ErrGenerationUnavailable, err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("cohere chat: %w: status %d: %s", domain.ErrGenerationFailed, status, apiMessage(body))
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("cohere chat: %w: decode: %w", domain.ErrGenerationFailed, err)
	}
	return result.Text, nil
}

// post sends a JSON request and returns the raw response body and status.
// The error return covers transport-level failures only.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func apiMessage(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return string(body)
}
