package entity

import "time"

// Batch is the record of one content submission within a scope.
type Batch struct {
	ID          string     `json:"batch_id"`
	ContentHash string     `json:"content_hash"`
	Scope       Scope      `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Processed reports whether analysis of the batch ran to completion, even if
// it found nobody.
func (b Batch) Processed() bool {
	return b.ProcessedAt != nil
}
