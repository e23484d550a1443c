package ingest

import (
	"strings"
	"unicode"
)

const (
	// DefaultChunkSize is the target number of words per chunk.
	DefaultChunkSize = 512
	// DefaultOverlap is the number of words repeated between adjacent chunks.
	DefaultOverlap = 50
)

// splitSentences breaks text on sentence punctuation and newlines.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if r != '.' && r != '!' && r != '?' && r != '\n' {
			continue
		}
		// Only split when the punctuation actually ends the sentence.
		if r == '\n' || i == len(text)-1 || (i+1 < len(text) && unicode.IsSpace(rune(text[i+1]))) {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// chunkSentences packs sentences into chunks of about chunkSize words, with
// overlap words repeated at each boundary so retrieval does not lose context
// that straddles a cut.
func chunkSentences(docID string, sentences []string, chunkSize, overlap int) []Chunk {
	if len(sentences) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}

	var chunks []Chunk
	start := 0

	for start < len(sentences) {
		var buf strings.Builder
		words := 0
		end := start

		for end < len(sentences) {
			n := wordCount(sentences[end])
			if words > 0 && words+n > chunkSize {
				break
			}
			if buf.Len() > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(sentences[end])
			words += n
			end++
		}

		chunks = append(chunks, Chunk{
			Text:  buf.String(),
			Index: len(chunks),
			DocID: docID,
		})

		// Back the window up by the overlap, but always move forward.
		next := end
		carried := 0
		for next > start+1 && carried < overlap {
			next--
			carried += wordCount(sentences[next])
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
