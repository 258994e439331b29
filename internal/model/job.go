package model

import (
	"time"
)

// Job kinds
const (
	KindSingle = "single" // one video URL
	KindBatch  = "batch"  // spreadsheet of URLs
)

// Job statuses. Terminal statuses never transition again.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusStopping   = "stopping" // cancel requested, final state not yet settled
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// statusRank orders statuses along the lifecycle. A job may only move to a
// status of equal or higher rank; all terminal statuses share the top rank.
var statusRank = map[string]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusStopping:   2,
	StatusCompleted:  3,
	StatusFailed:     3,
	StatusCancelled:  3,
}

// Job is one tracked analysis request, single or batch. The ID is issued by
// the remote analysis service at submission and never changes.
type Job struct {
	ID                    string     `gorm:"primaryKey;size:64" json:"id"`
	Kind                  string     `gorm:"size:10;not null;index" json:"kind"`
	OwnerID               string     `gorm:"size:64;index" json:"owner_id"`
	Status                string     `gorm:"size:20;default:pending;index" json:"status"`
	SourceURL             string     `gorm:"size:500" json:"source_url,omitempty"`   // single kind
	SourceFile            string     `gorm:"size:255" json:"source_file,omitempty"`  // batch kind, display name only
	TranscriptionLanguage string     `gorm:"size:10" json:"transcription_language,omitempty"`
	TargetLanguage        string     `gorm:"size:10" json:"target_language,omitempty"`
	TotalItems            int        `json:"total_items"`
	ProcessedItems        int        `json:"processed_items"`
	FailedItems           int        `json:"failed_items"`
	ProgressPercent       int        `json:"progress_percent"`
	CurrentItem           string     `gorm:"size:500" json:"current_item,omitempty"` // only meaningful while processing
	ErrorMessage          string     `gorm:"type:text" json:"error_message,omitempty"`
	Results               ResultList `gorm:"type:json" json:"results,omitempty"`
	ArchiveURL            string     `gorm:"size:500" json:"archive_url,omitempty"`
	CreatedAt             time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
}

func (Job) TableName() string {
	return "jobs"
}

// IsTerminal reports whether no further status transition can occur.
func (j *Job) IsTerminal() bool {
	return IsTerminalStatus(j.Status)
}

func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusCancelled
}

// IsKnownStatus reports whether the remote service sent a status we model.
func IsKnownStatus(status string) bool {
	_, ok := statusRank[status]
	return ok
}

// CanTransition reports whether a job may move from one status to another.
// Transitions only run forward; staying put is always allowed.
func CanTransition(from, to string) bool {
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	if from == to {
		return true
	}
	if IsTerminalStatus(from) {
		return false
	}
	return toRank > fromRank
}

// CanStop reports whether a cancel request makes sense for this status.
func CanStop(status string) bool {
	return status == StatusPending || status == StatusProcessing
}

// CanDelete mirrors what the UI offers: deletion of settled jobs only.
// The server remains the authority; this is a display hint.
func CanDelete(status string) bool {
	return IsTerminalStatus(status) || status == StatusStopping
}

// Progress derives a percentage from counts when the server did not send one.
func (j *Job) Progress() int {
	if j.ProgressPercent > 0 {
		return j.ProgressPercent
	}
	if j.TotalItems <= 0 {
		return 0
	}
	return (j.ProcessedItems + j.FailedItems) * 100 / j.TotalItems
}
