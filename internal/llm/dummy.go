package llm

import (
	"context"

	"insurekb/internal/document"
)

// Dummy answers with a fixed message. It keeps the service bootable when no
// LLM credentials are configured, and stands in for the real provider in
// tests.
type Dummy struct{}

const dummyAnswer = "Esta é uma resposta de teste. O provider real não está configurado."

func (Dummy) Generate(ctx context.Context, prompt, systemPrompt string) (document.Generation, error) {
	return document.Generation{
		Answer:           dummyAnswer,
		Model:            "dummy",
		TokensPrompt:     estimateTokens(prompt),
		TokensCompletion: estimateTokens(dummyAnswer),
		LatencyMS:        0,
	}, nil
}

// estimateTokens approximates a token count at ~4 characters per token.
func estimateTokens(text string) int {
	return len(text) / 4
}
