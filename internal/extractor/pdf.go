package extractor

import (
	"fmt"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"insurekb/internal/document"
)

// PDFExtractor produces one SourceUnit per PDF page. Pages whose extracted
// text is empty or whitespace-only are dropped.
type PDFExtractor struct{}

func (e *PDFExtractor) Extract(path string) ([]document.SourceUnit, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	title := Title(path)
	var units []document.SourceUnit

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not sink the document.
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		units = append(units, document.SourceUnit{
			Text:  text,
			Page:  i,
			Title: title,
		})
	}

	return units, nil
}
