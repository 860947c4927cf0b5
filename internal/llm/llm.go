package llm

import (
	"context"
	"fmt"

	"insurekb/internal/document"
)

// Generator produces a natural-language answer from a prompt. Generation is
// read-only with respect to the index, so callers may retry freely.
type Generator interface {
	Generate(ctx context.Context, prompt, systemPrompt string) (document.Generation, error)
}

// RetryableError indicates a transient failure (rate limit, upstream 5xx)
// that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
