package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/people-extractor/constants"
)

// PersonRecord is one extracted person for data transfer between layers.
type PersonRecord struct {
	ID             uuid.UUID              `json:"id"`
	Name           string                 `json:"name"`
	Email          string                 `json:"email,omitempty"`
	Position       string                 `json:"position,omitempty"`
	Company        string                 `json:"company,omitempty"`
	Phone          string                 `json:"phone,omitempty"`
	Location       string                 `json:"location,omitempty"`
	Department     string                 `json:"department,omitempty"`
	LinkedIn       string                 `json:"linkedin,omitempty"`
	Website        string                 `json:"website,omitempty"`
	AdditionalInfo string                 `json:"additional_info,omitempty"`
	Confidence     float64                `json:"confidence"`
	Source         string                 `json:"source,omitempty"`
	ExtractionType string                 `json:"extraction_type,omitempty"`
	Status         constants.RecordStatus `json:"status,omitempty"`
	BatchID        string                 `json:"batch_id,omitempty"`
	ChunkIndex     int                    `json:"chunk_index"`
	TotalChunks    int                    `json:"total_chunks"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// ScopedPersonRecord is a PersonRecord owned by a single user's corpus.
type ScopedPersonRecord struct {
	PersonRecord
	UserID              string     `json:"user_id"`
	IsDuplicateInMaster bool       `json:"is_duplicate_in_master"`
	MasterReferenceID   *uuid.UUID `json:"master_reference_id,omitempty"`
}

// DedupeKey identifies a person inside one analysis: the lowercased email when
// present, otherwise "name-company" lowercased.
func (p PersonRecord) DedupeKey() string {
	if e := strings.ToLower(strings.TrimSpace(p.Email)); e != "" {
		return e
	}
	return strings.ToLower(strings.TrimSpace(p.Name)) + "-" + strings.ToLower(strings.TrimSpace(p.Company))
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
