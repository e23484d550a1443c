package domain

import (
	"fmt"
	"strings"
)

// ValidateQuestion checks a user question and top-k before retrieval.
func ValidateQuestion(question string, k int) error {
	if strings.TrimSpace(question) == "" {
		return ErrEmptyQuestion
	}
	if k < 1 || k > MaxTopK {
		return fmt.Errorf("k=%d must be in [1,%d]: %w", k, MaxTopK, ErrTopKOutOfRange)
	}
	return nil
}

// ValidateArticle checks an article before ingestion.
func ValidateArticle(a Article) error {
	if a.ID == "" {
		return fmt.Errorf("%w: id is empty", ErrInvalidArticle)
	}
	if a.Source == "" {
		return fmt.Errorf("%w: source is empty", ErrInvalidArticle)
	}
	if a.Title == "" {
		return fmt.Errorf("%w: title is empty", ErrInvalidArticle)
	}
	if strings.TrimSpace(a.Body) == "" {
		return fmt.Errorf("%w: body is empty", ErrInvalidArticle)
	}
	return nil
}
