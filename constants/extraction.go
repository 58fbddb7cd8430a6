package constants

import "time"

const (
	// ChunkSize bounds a single provider request, in bytes of text.
	ChunkSize = 50_000
	// MultiChunkThreshold is the text size above which analysis is chunked.
	MultiChunkThreshold = 50_000

	DefaultExtractionType = "contacts"
	DefaultSource         = "upload"

	// DefaultTickInterval paces the background scheduler.
	DefaultTickInterval = 2 * time.Minute
)

// Confidence levels assigned when the provider did not supply one.
const (
	ConfidenceFailed    = 0.1
	ConfidenceTruncated = 0.8
	ConfidenceRepaired  = 0.7
	ConfidenceDefault   = 0.5
)
