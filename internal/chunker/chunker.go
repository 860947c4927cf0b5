package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"insurekb/internal/document"
)

// Config controls chunking behavior. Sizes are in characters.
type Config struct {
	ChunkSize int
	Overlap   int
}

// ChunkUnit splits one SourceUnit into heading-aware chunks. The unit's text
// is scanned line by line: heading candidates flush the accumulated body
// under the previous section label and become the new label. nextIndex is the
// running chunk counter for the whole ingestion run; assigned indices start
// there and the caller advances it by the number of chunks returned.
func ChunkUnit(unit document.SourceUnit, sourcePath string, cfg Config, nextIndex int) []document.Chunk {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 800
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}

	var chunks []document.Chunk
	section := ""
	var body []string

	flush := func() {
		if len(body) == 0 {
			return
		}
		for _, part := range SplitText(strings.Join(body, " "), cfg.ChunkSize, cfg.Overlap) {
			chunks = append(chunks, document.Chunk{
				Text:       part,
				Title:      unit.Title,
				Section:    section,
				Page:       unit.Page,
				SourcePath: sourcePath,
				Index:      nextIndex,
			})
			nextIndex++
		}
		body = body[:0]
	}

	for _, line := range strings.Split(unit.Text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if IsHeading(line) {
			// Flush accumulated body under the previous label. A heading
			// before any body produces no empty preamble chunk.
			flush()
			section = line
			continue
		}
		body = append(body, line)
	}
	flush()

	return chunks
}

// IsHeading reports whether a trimmed line looks like a section heading:
// shorter than 80 characters and either ending with ':', fully upper-case,
// or starting with '#'.
func IsHeading(line string) bool {
	if utf8.RuneCountInString(line) >= 80 {
		return false
	}
	return strings.HasSuffix(line, ":") || isAllUpper(line) || strings.HasPrefix(line, "#")
}

// isAllUpper reports whether the string contains at least one letter and no
// lower-case letters.
func isAllUpper(s string) bool {
	hasUpper := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasUpper = true
		}
	}
	return hasUpper
}

// SplitText slides a chunkSize window over text, preferring a sentence
// boundary found in the last 100 characters of the window over a hard cut,
// and advancing so that consecutive chunks share overlap characters. Texts
// that fit in one window are returned unchanged as a single chunk. Sizes
// count runes, never bytes, so a cut can never land inside a multi-byte
// character.
func SplitText(text string, chunkSize, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end < len(runes) {
			from := end - 100
			if from < start {
				from = start
			}
			if idx := lastSentenceEnd(runes[from:end]); idx != -1 {
				end = from + idx + 1
			}
		}
		sliceEnd := end
		if sliceEnd > len(runes) {
			sliceEnd = len(runes)
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[start:sliceEnd])))

		next := end - overlap
		if next <= start {
			// Degenerate overlap config; never stall the window.
			next = sliceEnd
		}
		start = next
	}

	return chunks
}

// lastSentenceEnd returns the index of the last '.' immediately followed by
// a space in rs, or -1 when there is no sentence boundary.
func lastSentenceEnd(rs []rune) int {
	for i := len(rs) - 2; i >= 0; i-- {
		if rs[i] == '.' && rs[i+1] == ' ' {
			return i
		}
	}
	return -1
}
