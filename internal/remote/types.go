package remote

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/qzr8/dealer_go_portal/internal/model"
)

// The remote analysis service grew organically and is not consistent about
// field names: batch endpoints mix batchId/batch_id, filename and
// original_filename, processed and processed_urls. Everything crossing the
// wire is normalized here, once, so the rest of the portal only ever sees
// the canonical model.

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	DealerID string `json:"dealer_id"`
	Email    string `json:"email"`
}

type analyzeResponse struct {
	TaskID string `json:"task_id"`
}

type bulkStartResponse struct {
	BatchID    string `json:"batch_id"`
	BatchIDAlt string `json:"batchId"`
	TotalURLs  int    `json:"total_urls"`
}

func (r *bulkStartResponse) ID() string {
	if r.BatchID != "" {
		return r.BatchID
	}
	return r.BatchIDAlt
}

// BatchStatus is the raw status payload of a batch job.
type BatchStatus struct {
	BatchID          string  `json:"batch_id"`
	BatchIDAlt       string  `json:"batchId"`
	Status           string  `json:"status"`
	TotalURLs        int     `json:"total_urls"`
	ProcessedURLs    int     `json:"processed_urls"`
	Processed        int     `json:"processed"`
	FailedURLs       int     `json:"failed_urls"`
	Progress         float64 `json:"progress_percentage"`
	CurrentURL       string  `json:"current_url"`
	Filename         string  `json:"filename"`
	OriginalFilename string  `json:"original_filename"`
	TargetLanguage   string  `json:"target_language"`
	DealerID         string  `json:"dealer_id"`
	Error            string  `json:"error"`
	CreatedAt        string  `json:"created_at"`
}

func (s *BatchStatus) ID() string {
	if s.BatchID != "" {
		return s.BatchID
	}
	return s.BatchIDAlt
}

func (s *BatchStatus) ProcessedCount() int {
	if s.ProcessedURLs > 0 {
		return s.ProcessedURLs
	}
	return s.Processed
}

func (s *BatchStatus) File() string {
	if s.OriginalFilename != "" {
		return s.OriginalFilename
	}
	return s.Filename
}

// TaskStatus is the raw status payload of a single-video job.
type TaskStatus struct {
	TaskID   string          `json:"task_id"`
	Status   string          `json:"status"`
	URL      string          `json:"citnow_url"`
	Error    string          `json:"error"`
	Result   json.RawMessage `json:"result"`
	Progress float64         `json:"progress"`
}

// TaskSummary is one row of /dealer/my-analysis-tasks.
type TaskSummary struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	URL       string `json:"citnow_url"`
	Error     string `json:"error"`
	CreatedAt string `json:"created_at"`
}

// NormalizeStatus maps the remote service's status vocabulary onto ours.
// Unknown values degrade to processing so a live job keeps being polled.
func NormalizeStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "queued", "waiting":
		return model.StatusPending
	case "processing", "running", "in_progress", "started":
		return model.StatusProcessing
	case "stopping", "cancelling", "canceling":
		return model.StatusStopping
	case "completed", "complete", "done", "success":
		return model.StatusCompleted
	case "failed", "error":
		return model.StatusFailed
	case "cancelled", "canceled", "stopped":
		return model.StatusCancelled
	default:
		return model.StatusProcessing
	}
}

func parseCreatedAt(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ApplyToJob copies a batch status snapshot onto a job without violating the
// forward-only status order. It reports whether anything changed.
func (s *BatchStatus) ApplyToJob(job *model.Job) bool {
	changed := false
	status := NormalizeStatus(s.Status)
	if status != job.Status && model.CanTransition(job.Status, status) {
		job.Status = status
		changed = true
		if model.IsTerminalStatus(status) && job.CompletedAt == nil {
			now := time.Now()
			job.CompletedAt = &now
		}
	}
	// counts merge as a unit and must keep processed+failed <= total;
	// a snapshot whose numbers cannot add up is dropped, not applied
	total := job.TotalItems
	if s.TotalURLs > 0 {
		total = s.TotalURLs
	}
	processed := job.ProcessedItems
	if p := s.ProcessedCount(); p > processed {
		processed = p
	}
	failed := job.FailedItems
	if s.FailedURLs > failed {
		failed = s.FailedURLs
	}
	if total > 0 && processed+failed > total {
		log.Printf("Remote: batch %s sent inconsistent counts (total=%d processed=%d failed=%d), keeping previous counts", s.ID(), total, processed, failed)
	} else {
		if total != job.TotalItems {
			job.TotalItems = total
			changed = true
		}
		if processed != job.ProcessedItems {
			job.ProcessedItems = processed
			changed = true
		}
		if failed != job.FailedItems {
			job.FailedItems = failed
			changed = true
		}
	}
	if pct := int(s.Progress); pct > job.ProgressPercent {
		job.ProgressPercent = pct
		changed = true
	}
	if job.Status == model.StatusProcessing || job.Status == model.StatusStopping {
		if s.CurrentURL != job.CurrentItem {
			job.CurrentItem = s.CurrentURL
			changed = true
		}
	} else if job.CurrentItem != "" {
		job.CurrentItem = ""
		changed = true
	}
	if s.Error != "" && s.Error != job.ErrorMessage {
		job.ErrorMessage = s.Error
		changed = true
	}
	if f := s.File(); f != "" && job.SourceFile == "" {
		job.SourceFile = f
		changed = true
	}
	return changed
}

// ToJob builds a fresh job record from a batch listing entry.
func (s *BatchStatus) ToJob(ownerID string) *model.Job {
	job := &model.Job{
		ID:             s.ID(),
		Kind:           model.KindBatch,
		OwnerID:        ownerID,
		Status:         model.StatusPending,
		SourceFile:     s.File(),
		TargetLanguage: s.TargetLanguage,
	}
	if created := parseCreatedAt(s.CreatedAt); !created.IsZero() {
		job.CreatedAt = created
	}
	s.ApplyToJob(job)
	return job
}

// ApplyToJob copies a single-task status snapshot onto a job.
func (s *TaskStatus) ApplyToJob(job *model.Job) bool {
	changed := false
	status := NormalizeStatus(s.Status)
	if status != job.Status && model.CanTransition(job.Status, status) {
		job.Status = status
		changed = true
		if model.IsTerminalStatus(status) && job.CompletedAt == nil {
			now := time.Now()
			job.CompletedAt = &now
		}
	}
	if s.Error != "" && s.Error != job.ErrorMessage {
		job.ErrorMessage = s.Error
		changed = true
	}
	if s.URL != "" && job.SourceURL == "" {
		job.SourceURL = s.URL
		changed = true
	}
	if job.Status == model.StatusCompleted {
		if job.TotalItems == 0 {
			job.TotalItems = 1
		}
		if job.ProcessedItems == 0 {
			job.ProcessedItems = 1
		}
		if job.ProgressPercent < 100 {
			job.ProgressPercent = 100
		}
	}
	return changed
}

// ToJob builds a fresh job record from a task listing entry.
func (s *TaskSummary) ToJob(ownerID string) *model.Job {
	job := &model.Job{
		ID:         s.TaskID,
		Kind:       model.KindSingle,
		OwnerID:    ownerID,
		Status:     model.StatusPending,
		SourceURL:  s.URL,
		TotalItems: 1,
	}
	if created := parseCreatedAt(s.CreatedAt); !created.IsZero() {
		job.CreatedAt = created
	}
	status := NormalizeStatus(s.Status)
	if model.CanTransition(job.Status, status) {
		job.Status = status
	}
	if s.Error != "" {
		job.ErrorMessage = s.Error
	}
	if job.Status == model.StatusCompleted {
		job.ProcessedItems = 1
		job.ProgressPercent = 100
	}
	return job
}
