package domain

import "time"

// UploadStatus is the lifecycle state of one upload job.
type UploadStatus string

const (
	UploadQueued    UploadStatus = "queued"
	UploadUploading UploadStatus = "uploading"
	UploadSucceeded UploadStatus = "succeeded"
	UploadFailed    UploadStatus = "failed"
)

// UploadJob is one durable unit of work moving a recorded file to the
// remote video platform. Succeeded is immutable once reached; Failed
// requires explicit re-submission.
type UploadJob struct {
	ID           string
	VideoPath    string
	StreamName   string
	Status       UploadStatus
	AttemptCount int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Terminal reports whether the job has reached a terminal state.
func (j *UploadJob) Terminal() bool {
	return j.Status == UploadSucceeded || j.Status == UploadFailed
}
