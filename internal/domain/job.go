package domain

import (
	"fmt"
	"time"
)

type JobStatus string

const (
	JobStatusUnknown JobStatus = "unknown"
	JobStatusPending JobStatus = "pending"
	JobStatusSent    JobStatus = "sent"
	JobStatusFailed  JobStatus = "failed"
)

// DownloadJob is the persisted record tracking one link-download request.
type DownloadJob struct {
	ID          string    `db:"id"`
	SourceURL   string    `db:"source_url"`
	Status      JobStatus `db:"status"`
	OwnerID     int64     `db:"owner_id"`
	RequestedAt time.Time `db:"requested_at"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// DownloadRequest is the queue payload submitted for one download job. The
// originating message is referenced by its platform-stable identifier only;
// completion handlers must re-resolve the live message from it.
type DownloadRequest struct {
	JobKey      string    `json:"job_key"`
	URL         string    `json:"url"`
	DownloadID  string    `json:"download_id"`
	MessageID   string    `json:"message_id"`
	ChatID      string    `json:"chat_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// JobKey derives the queue job key for a message: second-resolution timestamp
// plus conversation identity, giving a natural per-conversation
// de-duplication window.
func JobKey(ts time.Time, chatID string) string {
	return fmt.Sprintf("%d-%s", ts.Unix(), chatID)
}

const (
	ResultCompleted = "completed"
	ResultFailed    = "failed"
)

// Artifact is one downloaded file reported by a worker.
type Artifact struct {
	Path     string `json:"path"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// DownloadResult is the completion or failure report for one queue job.
type DownloadResult struct {
	JobKey     string     `json:"job_key"`
	Status     string     `json:"status"`
	DownloadID string     `json:"download_id"`
	MessageID  string     `json:"message_id"`
	ChatID     string     `json:"chat_id"`
	Artifacts  []Artifact `json:"artifacts,omitempty"`
	Error      string     `json:"error,omitempty"`
	Attempts   int        `json:"attempts"`
}
