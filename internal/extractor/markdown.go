package extractor

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"insurekb/internal/document"
)

// MarkdownExtractor produces one SourceUnit per heading-delimited section,
// using goldmark's AST. The heading line itself is kept at the top of the
// unit text so the chunker can pick it up as a section label. The Page field
// is the 1-based section ordinal, the same known imprecision as DOCX.
type MarkdownExtractor struct{}

func (e *MarkdownExtractor) Extract(path string) ([]document.SourceUnit, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}

	md := goldmark.New()
	doc := md.Parser().Parse(gmtext.NewReader(src))

	title := Title(path)
	var units []document.SourceUnit
	var current strings.Builder

	flush := func() {
		text := strings.TrimSpace(current.String())
		current.Reset()
		if text == "" {
			return
		}
		units = append(units, document.SourceUnit{
			Text:  text,
			Page:  len(units) + 1,
			Title: title,
		})
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			flush()
			// Re-prefix with '#' so the heading survives as a heading
			// candidate for the chunker.
			current.WriteString("# " + string(h.Text(src)) + "\n")
			continue
		}
		if t := blockText(n, src); t != "" {
			if current.Len() > 0 {
				current.WriteString("\n")
			}
			current.WriteString(t)
		}
	}
	flush()

	return units, nil
}

// blockText gets the text content of a goldmark AST node. Blocks with raw
// source lines use those directly; container blocks recurse.
func blockText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		return strings.TrimSpace(buf.String())
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t := blockText(c, src); t != "" {
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(t)
		}
	}
	return strings.TrimSpace(buf.String())
}
