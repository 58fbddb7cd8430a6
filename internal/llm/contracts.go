package llm

import (
	"context"

	"github.com/joseph-ayodele/people-extractor/internal/entity"
)

// AnalysisRequest is one unit of text plus the metadata embedded in the prompt.
type AnalysisRequest struct {
	Text           string
	ExtractionType string
	Source         string
	Description    string

	// ChunkIndex and TotalChunks are set when Text is one piece of a larger
	// document; TotalChunks == 0 means unchunked.
	ChunkIndex  int
	TotalChunks int
}

// AnalysisResult is the merged outcome of an analysis.
type AnalysisResult struct {
	People          []entity.PersonRecord
	Confidence      float64
	Summary         string
	TotalChunks     int
	ProcessedChunks int
}

// Partial is the increment produced by one successfully parsed request.
type Partial struct {
	ChunkIndex  int
	TotalChunks int
	People      []entity.PersonRecord
}

// PartialSink consumes increments as soon as each request succeeds. A
// returned error aborts the analysis.
type PartialSink interface {
	Consume(ctx context.Context, p Partial) error
}

// SinkFunc adapts a function to PartialSink.
type SinkFunc func(ctx context.Context, p Partial) error

func (f SinkFunc) Consume(ctx context.Context, p Partial) error { return f(ctx, p) }

// Analyzer is what the orchestrator and scheduler depend on.
type Analyzer interface {
	// Analyze picks the single or chunked path based on text size.
	Analyze(ctx context.Context, req AnalysisRequest, sink PartialSink) (AnalysisResult, error)
	// AnalyzeSingle always issues one logical request (with retries).
	AnalyzeSingle(ctx context.Context, req AnalysisRequest) (AnalysisResult, error)
}
