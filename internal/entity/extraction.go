package entity

import "time"

// ExtractionMeta describes what a submission is and where it came from.
type ExtractionMeta struct {
	ExtractionType string `json:"extraction_type"`
	Source         string `json:"source"`
	Description    string `json:"description,omitempty"`
}

// ResultMetadata summarises one extraction.
type ResultMetadata struct {
	TotalPeople    int       `json:"total_people"`
	ExtractionType string    `json:"extraction_type"`
	Source         string    `json:"source"`
	ProcessedAt    time.Time `json:"processed_at"`
	Confidence     float64   `json:"confidence"`
	BatchID        string    `json:"batch_id"`
	TotalChunks    int       `json:"total_chunks"`
	FromCache      bool      `json:"from_cache"`
}

// ExtractionResult is what the synchronous extract operation returns.
type ExtractionResult struct {
	Success        bool           `json:"success"`
	People         []PersonRecord `json:"people"`
	Metadata       ResultMetadata `json:"metadata"`
	Message        string         `json:"message"`
	ProcessingTime time.Duration  `json:"processing_time"`
}

// SearchFilter narrows a record search. Empty fields are ignored.
type SearchFilter struct {
	Text     string `json:"text,omitempty"`
	Company  string `json:"company,omitempty"`
	Position string `json:"position,omitempty"`
	Status   string `json:"status,omitempty"`
	BatchID  string `json:"batch_id,omitempty"`
	Limit    int    `json:"limit"`
	Offset   int    `json:"offset"`
}

// SearchPage is one page of search results.
type SearchPage struct {
	Records []ScopedPersonRecord `json:"records"`
	Total   int                  `json:"total"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}
