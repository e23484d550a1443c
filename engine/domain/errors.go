package domain

import "errors"

// Failure taxonomy for the query pipeline. Every stage wraps its sentinel
// with %w so callers can branch with errors.Is while the originating cause
// stays in the chain.
var (
	// ErrEmbedding means the query embedding could not be computed.
	ErrEmbedding = errors.New("embedding failed")

	// ErrRetrievalUnavailable means the vector store was unreachable or
	// timed out.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrDimensionMismatch means the query vector dimension differs from
	// the collection dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrGenerationUnavailable means the generation backend was
	// unreachable or timed out.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrGenerationFailed means the generation backend answered with an
	// explicit error payload. The upstream message is preserved in the
	// wrapping error.
	ErrGenerationFailed = errors.New("generation failed")
)

// Validation sentinels.
var (
	ErrEmptyQuestion  = errors.New("question is empty")
	ErrTopKOutOfRange = errors.New("top-k out of range")
	ErrInvalidArticle = errors.New("invalid article")
)
