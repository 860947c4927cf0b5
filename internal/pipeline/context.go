package pipeline

import (
	"fmt"
	"strings"

	"insurekb/internal/document"
)

// Fixed user-facing answers for the short-circuit statuses.
const (
	refusalAnswer   = "Desculpe, a sua pergunta contém conteúdo bloqueado. Por favor, reformule a pergunta."
	noResultsAnswer = "Não encontrei informação relevante na base de conhecimento para responder à sua pergunta. Por favor, tente reformular ou fazer uma pergunta sobre produtos de seguro."
)

const truncationMarker = "\n\n[... contexto truncado ...]"

const systemPrompt = `És um assistente especializado em produtos de seguro.

Regras importantes:
1. Responde APENAS com base nas fontes fornecidas no contexto
2. Se a pergunta estiver fora do âmbito de produtos de seguro, indica que não sabes
3. Inclui SEMPRE citações das fontes (título e página)
4. Evita linguagem especulativa ou inventar informação
5. Se não encontrares resposta no contexto, diz claramente que não tens essa informação

Formato da resposta:
## Resposta
[Tua resposta aqui]

## Fontes
• [Título do documento] (p. [número])
• [Título do documento] (p. [número])
`

// buildContext concatenates the retained passages as labeled source blocks
// in rank order. Oversized context is hard-truncated after assembly; whole
// passages are never dropped to fit.
func buildContext(passages []document.Passage, maxChars int) string {
	parts := make([]string, 0, len(passages))
	for i, p := range passages {
		header := fmt.Sprintf("\n--- Fonte %d: %s (Página %d)", i+1, p.Title, p.Page)
		if p.Section != "" {
			header += " - " + p.Section
		}
		header += " ---\n"
		parts = append(parts, header+p.Text)
	}

	context := strings.Join(parts, "\n")
	if runes := []rune(context); len(runes) > maxChars {
		// Cut on a rune boundary so accented text is never split mid-character.
		context = string(runes[:maxChars]) + truncationMarker
	}
	return context
}

func buildPrompt(query, context string) string {
	return fmt.Sprintf(`Com base no seguinte contexto de documentos de produtos de seguro, responde à pergunta do utilizador.

CONTEXTO:
%s

PERGUNTA: %s

Responde de forma clara e estruturada, citando sempre as fontes.`, context, query)
}

// extractCitations deduplicates passages by (title, page) in rank order and
// keeps at most the first three distinct sources, each with a short excerpt.
// The cited score is the rerank score when scoring succeeded, otherwise the
// retrieval similarity.
func extractCitations(passages []document.Passage, scored bool) []document.Citation {
	type key struct {
		title string
		page  int
	}

	citations := make([]document.Citation, 0, 3)
	seen := make(map[key]bool)

	for _, p := range passages {
		k := key{title: p.Title, page: p.Page}
		if seen[k] {
			continue
		}
		seen[k] = true

		score := p.Score
		if scored {
			score = p.RerankScore
		}
		citations = append(citations, document.Citation{
			DocID:   p.DocID,
			Title:   p.Title,
			Section: p.Section,
			Page:    p.Page,
			Score:   score,
			Excerpt: excerpt(p.Text, 200),
		})
		if len(citations) == 3 {
			break
		}
	}
	return citations
}

func excerpt(text string, n int) string {
	if runes := []rune(text); len(runes) > n {
		text = string(runes[:n])
	}
	return text + "..."
}
