package constants

// RecordStatus is the lifecycle status stored on extracted person rows.
type RecordStatus string

// Stable values (store these exact strings in DB).
const (
	RecordStatusPending   RecordStatus = "pending"
	RecordStatusProcessed RecordStatus = "processed"
	RecordStatusFailed    RecordStatus = "failed"
)

// JobStatus is the canonical status for background extraction jobs.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing" // picked by at least one tick
	JobStatusCompleted  JobStatus = "completed"  // terminal
	JobStatusFailed     JobStatus = "failed"     // terminal
)

// Terminal reports whether no further tick may touch a job in this state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Eligible reports whether the scheduler may pick a job in this state.
func (s JobStatus) Eligible() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}
