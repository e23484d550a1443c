package ingest

import (
	"strings"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "basic punctuation",
			text: "First sentence. Second one! Third?",
			want: []string{"First sentence.", "Second one!", "Third?"},
		},
		{
			name: "newline splits",
			text: "line one\nline two",
			want: []string{"line one", "line two"},
		},
		{
			name: "abbreviation dot not followed by space",
			text: "Version 1.2 shipped. Done.",
			want: []string{"Version 1.2 shipped.", "Done."},
		},
		{
			name: "trailing text without punctuation",
			text: "Complete sentence. trailing fragment",
			want: []string{"Complete sentence.", "trailing fragment"},
		},
		{
			name: "empty",
			text: "",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitSentences(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d sentences %v, want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sentence %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestChunkSentences_SingleChunk(t *testing.T) {
	sentences := []string{"One two three.", "Four five."}
	chunks := chunkSentences("doc1", sentences, 100, 10)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != "One two three. Four five." {
		t.Errorf("text = %q", chunks[0].Text)
	}
	if chunks[0].DocID != "doc1" || chunks[0].Index != 0 {
		t.Errorf("chunk meta = %+v", chunks[0])
	}
}

func TestChunkSentences_SplitsAtBudget(t *testing.T) {
	var sentences []string
	for range 10 {
		sentences = append(sentences, "alpha beta gamma delta epsilon.")
	}
	chunks := chunkSentences("doc1", sentences, 12, 0)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if n := wordCount(c.Text); n > 12 && strings.Count(c.Text, ".") > 1 {
			t.Errorf("chunk %d has %d words across multiple sentences", i, n)
		}
	}
}

func TestChunkSentences_Overlap(t *testing.T) {
	sentences := []string{
		"one two three four five.",
		"six seven eight nine ten.",
		"eleven twelve thirteen fourteen fifteen.",
	}
	chunks := chunkSentences("doc1", sentences, 10, 5)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	// The second chunk must repeat the last sentence of the first.
	if !strings.Contains(chunks[1].Text, "six seven eight nine ten.") {
		t.Errorf("overlap missing: chunk 1 = %q", chunks[1].Text)
	}
}

func TestChunkSentences_AlwaysTerminates(t *testing.T) {
	// Overlap larger than the chunk budget must still make progress.
	sentences := []string{
		"a b c d e f g h.",
		"i j k l m n o p.",
		"q r s t u v w x.",
	}
	chunks := chunkSentences("doc1", sentences, 4, 100)
	if len(chunks) == 0 || len(chunks) > 10 {
		t.Fatalf("suspicious chunk count %d", len(chunks))
	}
}

func TestChunkSentences_Empty(t *testing.T) {
	if chunks := chunkSentences("doc1", nil, 10, 2); chunks != nil {
		t.Errorf("expected nil, got %v", chunks)
	}
}
