package extractor

import (
	"fmt"
	"os"
	"strings"

	"github.com/fumiama/go-docx"

	"insurekb/internal/document"
)

// DOCXExtractor produces one SourceUnit per non-empty paragraph. The Page
// field holds the 1-based paragraph ordinal, not a true page number; DOCX
// files carry no page layout and citations for DOCX content intentionally
// show this ordinal.
type DOCXExtractor struct{}

func (e *DOCXExtractor) Extract(path string) ([]document.SourceUnit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat docx: %w", err)
	}

	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	title := Title(path)
	var units []document.SourceUnit

	// The ordinal counts every paragraph, empty ones included, so it stays
	// stable when blank paragraphs separate content.
	ordinal := 0
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		ordinal++

		text := paragraphText(para)
		if text == "" {
			continue
		}
		units = append(units, document.SourceUnit{
			Text:  text,
			Page:  ordinal,
			Title: title,
		})
	}

	return units, nil
}

func paragraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
