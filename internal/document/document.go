package document

// SourceUnit is one page-like unit of a source document: a PDF page, a DOCX
// paragraph, or a TXT/Markdown/HTML section.
type SourceUnit struct {
	Text  string
	Page  int // 1-based page or unit ordinal within the source file
	Title string
}

// Chunk is a sized span of unit text prepared for embedding.
type Chunk struct {
	Text       string
	Title      string
	Section    string // most recent heading; empty before the first one
	Page       int
	SourcePath string
	Index      int // global position within one ingestion run
}

// Passage is one vector-search hit: an indexed chunk plus scores. It lives
// for the duration of a single query.
type Passage struct {
	ID          string
	Text        string
	DocID       string
	Title       string
	Section     string
	Page        int
	SourcePath  string
	ChunkIndex  int
	Score       float64 // similarity from the vector search
	RerankScore float64 // set by the reranking pass
}

// Citation grounds an answer in a source document.
type Citation struct {
	DocID   string  `json:"doc_id"`
	Title   string  `json:"title"`
	Section string  `json:"section"`
	Page    int     `json:"page"`
	Score   float64 `json:"score"`
	Excerpt string  `json:"excerpt"`
}

// Generation is the result of one LLM call.
type Generation struct {
	Answer           string
	Model            string
	TokensPrompt     int
	TokensCompletion int
	LatencyMS        int64
}
