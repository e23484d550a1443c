package domain

import (
	"errors"
	"testing"
)

func TestValidateQuestion(t *testing.T) {
	tests := []struct {
		name     string
		question string
		k        int
		wantErr  error
	}{
		{"valid", "how does a heat pump work", 3, nil},
		{"empty", "", 3, ErrEmptyQuestion},
		{"whitespace only", "   \t\n", 3, ErrEmptyQuestion},
		{"k zero", "question", 0, ErrTopKOutOfRange},
		{"k negative", "question", -1, ErrTopKOutOfRange},
		{"k at max", "question", MaxTopK, nil},
		{"k over max", "question", MaxTopK + 1, ErrTopKOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuestion(tt.question, tt.k)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateArticle(t *testing.T) {
	valid := Article{ID: "a-1", Source: "wiki", Title: "Thermodynamics", Body: "Heat flows."}
	if err := ValidateArticle(valid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Article)
	}{
		{"missing id", func(a *Article) { a.ID = "" }},
		{"missing source", func(a *Article) { a.Source = "" }},
		{"missing title", func(a *Article) { a.Title = "" }},
		{"blank body", func(a *Article) { a.Body = "  \n" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid
			tt.mutate(&a)
			if err := ValidateArticle(a); !errors.Is(err, ErrInvalidArticle) {
				t.Fatalf("got %v, want ErrInvalidArticle", err)
			}
		})
	}
}

func TestSorted(t *testing.T) {
	doc := Document{ID: "d"}
	if !Sorted(nil) {
		t.Error("nil slice should be sorted")
	}
	if !Sorted([]ScoredMatch{{doc, 0.1}, {doc, 0.1}, {doc, 0.4}}) {
		t.Error("non-decreasing distances should be sorted")
	}
	if Sorted([]ScoredMatch{{doc, 0.4}, {doc, 0.1}}) {
		t.Error("decreasing distances should not be sorted")
	}
}
