// Package guardrail screens incoming queries before they reach retrieval.
// It is a best-effort heuristic filter, not a security boundary: it catches
// obvious blocked terms and common prompt-injection phrasings, nothing more.
package guardrail

import (
	"log/slog"
	"regexp"
	"strings"
)

// Sanitizer truncates and classifies query strings.
type Sanitizer struct {
	maxLength    int
	blockedTerms []string
	log          *slog.Logger
}

func New(maxLength int, blockedTerms []string, log *slog.Logger) *Sanitizer {
	return &Sanitizer{
		maxLength:    maxLength,
		blockedTerms: blockedTerms,
		log:          log,
	}
}

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`ignore\s+(previous|above|all)\s+instructions`),
	regexp.MustCompile(`you\s+are\s+(now|a)\s+\w+`),
	regexp.MustCompile(`system\s*:\s*`),
	regexp.MustCompile(`<\|im_start\|>`),
	regexp.MustCompile(`<\|endoftext\|>`),
}

// Sanitize truncates the query to the configured maximum length and reports
// whether it is safe to process. Unsafe queries must never reach embedding,
// search, or generation.
func (s *Sanitizer) Sanitize(query string) (string, bool) {
	if runes := []rune(query); len(runes) > s.maxLength {
		query = string(runes[:s.maxLength])
	}

	lower := strings.ToLower(query)

	for _, term := range s.blockedTerms {
		if strings.Contains(lower, term) {
			s.log.Warn("blocked term detected in query", "term", term)
			return query, false
		}
	}

	for _, pattern := range injectionPatterns {
		if pattern.MatchString(lower) {
			s.log.Warn("potential prompt injection detected", "pattern", pattern.String())
			return query, false
		}
	}

	return query, true
}
