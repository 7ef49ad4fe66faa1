package constants

// JobStatus is the canonical status for rows in the extractions table.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	StatusPending    JobStatus = "PENDING"    // accepted, not yet started
	StatusProcessing JobStatus = "PROCESSING" // pipeline running
	StatusCompleted  JobStatus = "COMPLETED"  // result JSON stored
	StatusFailed     JobStatus = "FAILED"     // terminal failure
)

// Terminal reports whether the status will not change again.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
