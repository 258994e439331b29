package dto

import (
	"time"

	"github.com/qzr8/dealer_go_portal/internal/model"
)

// LoginRequest carries dealer credentials, forwarded to the analysis service.
type LoginRequest struct {
	Username string `json:"username" binding:"required,max=100"`
	Password string `json:"password" binding:"required,max=200"`
}

// SessionResponse describes the authenticated session.
type SessionResponse struct {
	User      model.User `json:"user"`
	ExpiresAt string     `json:"expires_at"`
}

// SubmitSingleRequest submits one video URL for analysis.
type SubmitSingleRequest struct {
	VideoURL              string `json:"video_url" binding:"required,url,max=500"`
	TranscriptionLanguage string `json:"transcription_language" binding:"required,max=10"`
	TargetLanguage        string `json:"target_language" binding:"required,max=10"`
}

// JobItem is one job in portal responses.
type JobItem struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	Status          string `json:"status"`
	SourceURL       string `json:"source_url,omitempty"`
	SourceFile      string `json:"source_file,omitempty"`
	TargetLanguage  string `json:"target_language,omitempty"`
	TotalItems      int    `json:"total_items"`
	ProcessedItems  int    `json:"processed_items"`
	FailedItems     int    `json:"failed_items"`
	ProgressPercent int    `json:"progress_percent"`
	CurrentItem     string `json:"current_item,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	ArchiveURL      string `json:"archive_url,omitempty"`
	Tracking        bool   `json:"tracking"`
	CanCancel       bool   `json:"can_cancel"`
	CanDelete       bool   `json:"can_delete"`
	CreatedAt       string `json:"created_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
}

// FromJob converts a job record to its response shape.
func FromJob(job *model.Job, tracking bool) JobItem {
	item := JobItem{
		ID:              job.ID,
		Kind:            job.Kind,
		Status:          job.Status,
		SourceURL:       job.SourceURL,
		SourceFile:      job.SourceFile,
		TargetLanguage:  job.TargetLanguage,
		TotalItems:      job.TotalItems,
		ProcessedItems:  job.ProcessedItems,
		FailedItems:     job.FailedItems,
		ProgressPercent: job.Progress(),
		CurrentItem:     job.CurrentItem,
		ErrorMessage:    job.ErrorMessage,
		ArchiveURL:      job.ArchiveURL,
		Tracking:        tracking,
		CanCancel:       job.Kind == model.KindBatch && model.CanStop(job.Status),
		CanDelete:       model.CanDelete(job.Status),
		CreatedAt:       job.CreatedAt.Format(time.RFC3339),
	}
	if job.CompletedAt != nil {
		item.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	return item
}

// JobListResponse is the job listing payload.
type JobListResponse struct {
	Jobs     []JobItem `json:"jobs"`
	Degraded bool      `json:"degraded"` // true when the server list was unreachable
}

// ResultsResponse carries a job's per-video results.
type ResultsResponse struct {
	JobID   string         `json:"job_id"`
	Results []model.Result `json:"results"`
}
