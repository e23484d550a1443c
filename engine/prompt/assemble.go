// Package prompt builds the textual context block from retrieved documents
// and merges it with the user question into the final generation prompt.
package prompt

import (
	"fmt"
	"strings"

	"github.com/retriva/retriva/engine/domain"
)

// DefaultBudget is the default character budget for the assembled context.
const DefaultBudget = 8000

// recordSeparator joins records; records themselves never contain it twice
// in a row because titles and bodies are trimmed on ingestion.
const recordSeparator = "\n\n"

// Assembler concatenates retrieved documents into a bounded context block.
type Assembler struct {
	budget int
}

// NewAssembler creates an Assembler with the given character budget.
// A non-positive budget falls back to DefaultBudget.
func NewAssembler(budget int) *Assembler {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Assembler{budget: budget}
}

// Budget returns the configured character budget.
func (a *Assembler) Budget() int { return a.budget }

// Assemble renders matches closest-first as "Title: Body" records separated
// by blank lines. The output never exceeds the budget: once the next record
// would cross it, assembly stops at the last complete record. A record is
// never truncated mid-text. Empty input yields an empty string, which is a
// normal outcome the caller must handle by short-circuiting generation.
func (a *Assembler) Assemble(matches []domain.ScoredMatch) string {
	if len(matches) == 0 {
		return ""
	}

	var b strings.Builder
	for _, m := range matches {
		record := formatRecord(m.Document)
		need := len(record)
		if b.Len() > 0 {
			need += len(recordSeparator)
		}
		if b.Len()+need > a.budget {
			break
		}
		if b.Len() > 0 {
			b.WriteString(recordSeparator)
		}
		b.WriteString(record)
	}
	return b.String()
}

func formatRecord(d domain.Document) string {
	return fmt.Sprintf("%s: %s", d.Title, d.Body)
}

// instructions is the fixed preamble of every augmented prompt.
const instructions = "Answer the question using only the provided context. " +
	"If the context does not contain the answer, say so."

// Build merges the fixed instructions, the assembled context, and the user
// question into the single prompt string sent to generation.
func Build(contextBlock, question string) string {
	return fmt.Sprintf("%s\n\nUsing this context:\n%s\n\nAnswer the question: %s",
		instructions, contextBlock, question)
}
