package extractor

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"insurekb/internal/document"
)

// TextExtractor handles plain text files. A file is split into page-like
// units on form feeds if any are present, otherwise on runs of the ═
// box-drawing rule some of our fixture documents use as a section separator.
// Files with neither become a single unit.
type TextExtractor struct{}

var boxRuleRe = regexp.MustCompile(`═{3,}`)

func (e *TextExtractor) Extract(path string) ([]document.SourceUnit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read txt: %w", err)
	}
	content := string(data)

	var parts []string
	switch {
	case strings.Contains(content, "\f"):
		parts = strings.Split(content, "\f")
	case strings.Contains(content, "═══"):
		parts = boxRuleRe.Split(content, -1)
	default:
		parts = []string{content}
	}

	title := Title(path)
	var units []document.SourceUnit
	for i, part := range parts {
		text := strings.TrimSpace(part)
		if text == "" {
			continue
		}
		units = append(units, document.SourceUnit{
			Text:  text,
			Page:  i + 1,
			Title: title,
		})
	}

	return units, nil
}
