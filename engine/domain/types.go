// Package domain defines core types, constants, and validation for the
// Retriva query and ingestion pipelines. It acts as the validation gate at
// pipeline entry points.
package domain

import "time"

// Document is a stored article fragment as the vector store returns it.
// Immutable once stored; the store owns the canonical copy.
type Document struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ScoredMatch pairs a document with its distance to the query embedding.
// Smaller distance means more similar. Transient, produced per query.
type ScoredMatch struct {
	Document Document `json:"document"`
	Distance float32  `json:"distance"`
}

// Article is the ingestion input: a full article before chunking.
type Article struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Topic       string    `json:"topic,omitempty"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

const (
	// MaxTopK bounds a single retrieval so a bad caller cannot force an
	// unbounded scan of the collection.
	MaxTopK = 50

	// DefaultTopK matches the original knowledge-retriever behaviour.
	DefaultTopK = 3
)

// Sorted reports whether matches are in non-decreasing distance order,
// the invariant every retrieval result must satisfy.
func Sorted(matches []ScoredMatch) bool {
	for i := 1; i < len(matches); i++ {
		if matches[i].Distance < matches[i-1].Distance {
			return false
		}
	}
	return true
}
