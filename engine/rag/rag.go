// Package rag coordinates the Retrieval-Augmented Generation pipeline.
// It accepts a user question, retrieves relevant documents, assembles a
// bounded context block, builds the augmented prompt, and calls the
// generation backend for the final answer.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/retriva/retriva/engine/domain"
	"github.com/retriva/retriva/engine/prompt"
)

// Retriever abstracts the embed-then-rank step.
type Retriever interface {
	Retrieve(ctx context.Context, question string, k int) ([]domain.ScoredMatch, error)
}

// Generator abstracts the generation backend. Implementations wrap transport
// failures in domain.ErrGenerationUnavailable and explicit upstream error
// payloads in domain.ErrGenerationFailed.
type Generator interface {
	Generate(ctx context.Context, promptText string) (string, error)
}

// Status tells callers how an Answer was produced.
type Status string

const (
	// StatusAnswered means generation ran over retrieved context.
	StatusAnswered Status = "answered"
	// StatusNoContext means retrieval found nothing relevant and
	// generation was skipped entirely.
	StatusNoContext Status = "no_context"
)

// Source is a citation backing the answer.
type Source struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Distance float32 `json:"distance"`
}

// Answer is the structured outcome of one pipeline traversal.
type Answer struct {
	Text    string   `json:"text"`
	Status  Status   `json:"status"`
	Sources []Source `json:"sources,omitempty"`
}

// NoContextText is returned verbatim when the corpus held nothing relevant.
// It is a fixed string, never generator output.
const NoContextText = "No relevant context found for this question."

// Options configures pipeline behaviour.
type Options struct {
	TopK            int
	ContextBudget   int
	RetrieveTimeout time.Duration
	GenerateTimeout time.Duration
}

// DefaultOptions returns the defaults used by the servers and the CLI.
func DefaultOptions() Options {
	return Options{
		TopK:            domain.DefaultTopK,
		ContextBudget:   prompt.DefaultBudget,
		RetrieveTimeout: 5 * time.Second,
		GenerateTimeout: 30 * time.Second,
	}
}

// Pipeline runs one question through retrieve → assemble → generate.
// A Pipeline holds no per-request state, so a single instance serves
// concurrent callers as long as its collaborators do.
type Pipeline struct {
	retriever Retriever
	assembler *prompt.Assembler
	generator Generator
	opts      Options
	logger    *slog.Logger
}

// New creates a Pipeline.
func New(retriever Retriever, generator Generator, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = domain.DefaultTopK
	}
	return &Pipeline{
		retriever: retriever,
		assembler: prompt.NewAssembler(opts.ContextBudget),
		generator: generator,
		opts:      opts,
		logger:    logger,
	}
}

// Ask runs the full pipeline for one question. k overrides the configured
// TopK when positive. The traversal is strictly linear: retrieving,
// assembling, then either a short-circuit answer on empty context or exactly
// one generation call. Errors surface with the originating domain sentinel
// intact; the pipeline itself never retries.
func (p *Pipeline) Ask(ctx context.Context, question string, k int) (*Answer, error) {
	if k <= 0 {
		k = p.opts.TopK
	}
	p.logger.Info("ask start", "question_len", len(question), "k", k)

	retrieveCtx := ctx
	if p.opts.RetrieveTimeout > 0 {
		var cancel context.CancelFunc
		retrieveCtx, cancel = context.WithTimeout(ctx, p.opts.RetrieveTimeout)
		defer cancel()
	}
	matches, err := p.retriever.Retrieve(retrieveCtx, question, k)
	if err != nil {
		return nil, fmt.Errorf("rag: %w", err)
	}

	contextBlock := p.assembler.Assemble(matches)
	if contextBlock == "" {
		p.logger.Info("ask short-circuit", "reason", "empty context")
		return &Answer{Text: NoContextText, Status: StatusNoContext}, nil
	}

	generateCtx := ctx
	if p.opts.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		generateCtx, cancel = context.WithTimeout(ctx, p.opts.GenerateTimeout)
		defer cancel()
	}
	text, err := p.generator.Generate(generateCtx, prompt.Build(contextBlock, question))
	if err != nil {
		return nil, fmt.Errorf("rag: generate: %w", err)
	}

	sources := make([]Source, len(matches))
	for i, m := range matches {
		sources[i] = Source{ID: m.Document.ID, Title: m.Document.Title, Distance: m.Distance}
	}

	p.logger.Info("ask done", "sources", len(sources))
	return &Answer{Text: text, Status: StatusAnswered, Sources: sources}, nil
}
