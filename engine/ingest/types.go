package ingest

import "github.com/retriva/retriva/engine/domain"

// ParsedDoc is an article prepared for chunking.
type ParsedDoc struct {
	ID        string
	Source    string
	Topic     string
	Title     string
	Body      string
	URL       string
	Sentences []string
}

// Chunk is a text segment ready for embedding.
type Chunk struct {
	Text  string
	Index int
	DocID string
}

// ChunkedDoc is a parsed article split into embeddable chunks.
type ChunkedDoc struct {
	ParsedDoc
	Chunks []Chunk
}

// EmbeddedDoc pairs each chunk with its embedding, index-aligned.
type EmbeddedDoc struct {
	ChunkedDoc
	Embeddings [][]float32
}

func parsedDocFromArticle(a domain.Article) ParsedDoc {
	return ParsedDoc{
		ID:        a.ID,
		Source:    a.Source,
		Topic:     a.Topic,
		Title:     a.Title,
		Body:      a.Body,
		URL:       a.URL,
		Sentences: splitSentences(a.Body),
	}
}
