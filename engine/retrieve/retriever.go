// Package retrieve turns a user question into an ordered set of relevant
// documents: embed the question, run a nearest-neighbor query against the
// vector store, and hand back the matches in the store's ascending-distance
// order.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/retriva/retriva/engine/domain"
)

// Embedder converts text into a fixed-dimension vector. Deterministic for
// identical input within a deployment.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore ranks stored documents by distance to a query vector.
// Queries are read-only; results arrive in ascending distance order with
// at most k entries.
type VectorStore interface {
	Nearest(ctx context.Context, vector []float32, k int) ([]domain.ScoredMatch, error)
}

// Retriever orchestrates embed-then-rank for a single question.
type Retriever struct {
	embedder Embedder
	store    VectorStore
	logger   *slog.Logger
}

// New creates a Retriever.
func New(embedder Embedder, store VectorStore, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, store: store, logger: logger}
}

// Retrieve returns up to k documents closest to the question, ascending by
// distance. Ties keep the store's order; nothing is re-sorted here. An empty
// corpus yields an empty slice and no error.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]domain.ScoredMatch, error) {
	question = strings.TrimSpace(question)
	if err := domain.ValidateQuestion(question, k); err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("retrieve: embed query: %w: %w", domain.ErrEmbedding, err)
	}

	matches, err := r.store.Nearest(ctx, vector, k)
	if err != nil {
		if errors.Is(err, domain.ErrDimensionMismatch) {
			return nil, fmt.Errorf("retrieve: %w", err)
		}
		return nil, fmt.Errorf("retrieve: nearest: %w: %w", domain.ErrRetrievalUnavailable, err)
	}

	r.logger.Debug("retrieve done", "question_len", len(question), "k", k, "matches", len(matches))
	return matches, nil
}
