package extractor

import (
	"fmt"
	"path/filepath"
	"strings"

	"insurekb/internal/document"
)

// Extractor converts one source file into an ordered sequence of SourceUnits.
// Implementations must be restartable: Extract may be called more than once
// for the same path.
type Extractor interface {
	Extract(path string) ([]document.SourceUnit, error)
}

// SupportedExtensions lists file extensions this service can ingest.
var SupportedExtensions = map[string]bool{
	".pdf":      true,
	".docx":     true,
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
}

// ForFile returns the appropriate extractor for a filename.
func ForFile(path string) (Extractor, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return &PDFExtractor{}, nil
	case ".docx":
		return &DOCXExtractor{}, nil
	case ".txt":
		return &TextExtractor{}, nil
	case ".md", ".markdown":
		return &MarkdownExtractor{}, nil
	case ".html", ".htm":
		return &HTMLExtractor{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", filepath.Ext(path))
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(path string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Title derives the document title from a file path (the filename stem).
func Title(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
