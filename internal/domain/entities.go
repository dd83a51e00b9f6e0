package domain

import "time"

// Document is one ingested PDF, identified by its upload name and the
// content hash of its extracted text.
type Document struct {
	Name        string    `json:"name"`
	ContentHash string    `json:"content_hash"`
	ChunkCount  int       `json:"chunk_count"`
	Pages       int       `json:"pages"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Chunk is a contiguous span of one document's text, the unit of indexing
// and retrieval. Chunks of a document are totally ordered by Seq.
type Chunk struct {
	ID         string `json:"id"`
	DocName    string `json:"doc_name"`
	Seq        int    `json:"seq"`
	Text       string `json:"text"`
	Page       int    `json:"page"`
	Section    string `json:"section"`
	TokenCount int    `json:"token_count"`
}

// PageText is one page of raw extracted text, the output of the PDF
// extraction boundary.
type PageText struct {
	Page int
	Text string
}

// TOCEntry is one table-of-contents item of a document.
type TOCEntry struct {
	Title string
	Level int
	Page  int
}

// IndexRecord is the unit stored in both the lexical index and the vector
// store. A chunk present in one index must be present in the other.
type IndexRecord struct {
	ChunkID string
	DocName string
	Seq     int
	Page    int
	Section string
	Text    string
	Vector  []float32
}

// RetrievalCandidate is a fused search hit, produced transiently per query.
// LexScore and VecScore are normalized single-source scores; nil means the
// chunk was absent from that index's result list.
type RetrievalCandidate struct {
	Chunk    Chunk
	LexScore *float64
	VecScore *float64
	Fused    float64
}

// RankedChunk is a chunk with a final relevance score, either a reranker
// confidence in [0,1] or a fused retrieval score.
type RankedChunk struct {
	Chunk Chunk
	Score float64
}

// Citation points an answer back at a contributing chunk.
type Citation struct {
	DocName    string  `json:"doc_name"`
	Page       int     `json:"page"`
	Section    string  `json:"toc_section"`
	Confidence float64 `json:"confidence"`
}

// Answer is the result of one ask request.
type Answer struct {
	Question string     `json:"question"`
	Text     string     `json:"answer"`
	Sources  []Citation `json:"sources"`
	Reranked bool       `json:"reranked"`
}

// DocumentInfo is the listing view of a document.
type DocumentInfo struct {
	Name       string `json:"name"`
	ChunkCount int    `json:"chunk_count"`
}

// Stats describes the indexed corpus, used by BM25 length normalization.
type Stats struct {
	TotalChunks int
	AvgChunkLen float64
}
