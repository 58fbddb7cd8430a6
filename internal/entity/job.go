package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/people-extractor/constants"
)

// BackgroundJob tracks chunk-by-chunk processing of a large text source.
type BackgroundJob struct {
	ID              uuid.UUID           `json:"id"`
	SourcePath      string              `json:"-"`
	FileName        string              `json:"file_name,omitempty"`
	ExtractionType  string              `json:"extraction_type"`
	Source          string              `json:"source"`
	Description     string              `json:"description,omitempty"`
	Status          constants.JobStatus `json:"status"`
	TotalChunks     int                 `json:"total_chunks"`
	ProcessedChunks int                 `json:"processed_chunks"`
	PeopleFound     int                 `json:"people_found"`
	CreatedAt       time.Time           `json:"created_at"`
	StartedAt       *time.Time          `json:"started_at,omitempty"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
	ErrorMessage    string              `json:"error_message,omitempty"`
}

// BatchID is the batch under which the job's records are persisted.
func (j BackgroundJob) BatchID() string {
	return "job-" + j.ID.String()
}
