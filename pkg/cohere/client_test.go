package cohere

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/retriva/retriva/engine/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		EmbedModel: "embed-english-v3.0",
		ChatModel:  "command-r-plus",
		Timeout:    2 * time.Second,
	})
}

func TestEmbed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embed" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.InputType != "search_query" {
			t.Errorf("input_type = %s", req.InputType)
		}
		if len(req.Texts) != 1 || req.Texts[0] != "hello" {
			t.Errorf("texts = %v", req.Texts)
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0.1, 0.2, 0.3}}})
	})

	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("vector = %v", vec)
	}
}

func TestEmbedDocuments_BatchAndInputType(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.InputType != "search_document" {
			t.Errorf("input_type = %s", req.InputType)
		}
		out := make([][]float32, len(req.Texts))
		for i := range out {
			out[i] = []float32{float32(i)}
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: out})
	})

	vecs, err := c.EmbedDocuments(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
}

func TestEmbedDocuments_Empty(t *testing.T) {
	c := New(Config{BaseURL: "http://unreachable.invalid"})
	vecs, err := c.EmbedDocuments(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("empty batch should short-circuit, got %v, %v", vecs, err)
	}
}

func TestEmbed_CountMismatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embeddings: nil})
	})
	if _, err := c.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error on embedding count mismatch")
	}
}

func TestGenerate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "command-r-plus" {
			t.Errorf("model = %s", req.Model)
		}
		if !strings.Contains(req.Message, "the prompt") {
			t.Errorf("message = %q", req.Message)
		}
		json.NewEncoder(w).Encode(chatResponse{Text: "the answer"})
	})

	text, err := c.Generate(context.Background(), "the prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "the answer" {
		t.Errorf("text = %q", text)
	}
}

func TestGenerate_APIErrorIsGenerationFailed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(apiError{Message: "model overloaded"})
	})

	_, err := c.Generate(context.Background(), "prompt")
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("got %v, want ErrGenerationFailed", err)
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("upstream message lost: %v", err)
	}
}

func TestGenerate_TransportErrorIsUnavailable(t *testing.T) {
	c := New(Config{
		BaseURL:   "http://127.0.0.1:1", // nothing listens here
		ChatModel: "command-r-plus",
		Timeout:   200 * time.Millisecond,
	})

	_, err := c.Generate(context.Background(), "prompt")
	if !errors.Is(err, domain.ErrGenerationUnavailable) {
		t.Fatalf("got %v, want ErrGenerationUnavailable", err)
	}
}

func TestGenerate_EmptyPrompt(t *testing.T) {
	c := New(Config{})
	if _, err := c.Generate(context.Background(), ""); !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("got %v, want ErrGenerationFailed", err)
	}
}

func TestRateLimiterApplied(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		json.NewEncoder(w).Encode(chatResponse{Text: "ok"})
	})
	c.limiter = nil // baseline: no limiter means no waiting

	if _, err := c.Generate(context.Background(), "p"); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}
