package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qzr8/dealer_go_portal/internal/model"
)

// TestJob creates a tracked job with sensible defaults.
func TestJob(t *testing.T, db *gorm.DB, opts ...func(*model.Job)) *model.Job {
	t.Helper()

	job := &model.Job{
		ID:             fmt.Sprintf("job-%d", time.Now().UnixNano()),
		Kind:           model.KindBatch,
		OwnerID:        "dealer-1",
		Status:         model.StatusPending,
		SourceFile:     "urls.xlsx",
		TargetLanguage: "en",
		TotalItems:     10,
	}

	for _, opt := range opts {
		opt(job)
	}

	if err := db.Create(job).Error; err != nil {
		t.Fatalf("Failed to create test job: %v", err)
	}

	return job
}

// WithID sets the job ID.
func WithID(id string) func(*model.Job) {
	return func(j *model.Job) {
		j.ID = id
	}
}

// WithOwner sets the owning dealer account.
func WithOwner(ownerID string) func(*model.Job) {
	return func(j *model.Job) {
		j.OwnerID = ownerID
	}
}

// WithKind sets the job kind.
func WithKind(kind string) func(*model.Job) {
	return func(j *model.Job) {
		j.Kind = kind
		if kind == model.KindSingle {
			j.SourceFile = ""
			j.SourceURL = "https://example.com/video"
			j.TotalItems = 1
		}
	}
}

// WithStatus sets the job status.
func WithStatus(status string) func(*model.Job) {
	return func(j *model.Job) {
		j.Status = status
	}
}

// WithProgress sets the progress counters.
func WithProgress(processed, failed int) func(*model.Job) {
	return func(j *model.Job) {
		j.ProcessedItems = processed
		j.FailedItems = failed
	}
}
