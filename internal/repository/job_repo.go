package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qzr8/dealer_go_portal/internal/model"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(job *model.Job) error {
	return r.db.Create(job).Error
}

func (r *JobRepository) GetByID(id string) (*model.Job, error) {
	var job model.Job
	err := r.db.Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *JobRepository) Update(job *model.Job) error {
	return r.db.Save(job).Error
}

func (r *JobRepository) UpdateStatus(id string, status string) error {
	return r.db.Model(&model.Job{}).Where("id = ?", id).Update("status", status).Error
}

func (r *JobRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&model.Job{}).Error
}

// ListByOwner returns the owner's jobs, newest first.
func (r *JobRepository) ListByOwner(ownerID string) ([]*model.Job, error) {
	var jobs []*model.Job
	err := r.db.Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&jobs).Error
	return jobs, err
}

// ListActive returns every job still in a live status, any owner. Used to
// restart pollers after a process restart.
func (r *JobRepository) ListActive() ([]*model.Job, error) {
	var jobs []*model.Job
	err := r.db.Where("status IN ?", []string{model.StatusPending, model.StatusProcessing, model.StatusStopping}).
		Order("created_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// ReplaceForOwner swaps the owner's jobs for the server-provided set in one
// transaction. The server list is authoritative on reconciliation.
func (r *JobRepository) ReplaceForOwner(ownerID string, jobs []*model.Job) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_id = ?", ownerID).Delete(&model.Job{}).Error; err != nil {
			return err
		}
		for _, job := range jobs {
			job.OwnerID = ownerID
			if err := tx.Create(job).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteTerminalBefore prunes settled jobs older than the cutoff and returns
// how many rows went away.
func (r *JobRepository) DeleteTerminalBefore(cutoff time.Time) (int64, error) {
	result := r.db.Where("status IN ? AND updated_at < ?",
		[]string{model.StatusCompleted, model.StatusFailed, model.StatusCancelled}, cutoff).
		Delete(&model.Job{})
	return result.RowsAffected, result.Error
}

// CountTerminalBefore reports how many settled jobs a retention pass would
// remove, without removing them.
func (r *JobRepository) CountTerminalBefore(cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&model.Job{}).
		Where("status IN ? AND updated_at < ?",
			[]string{model.StatusCompleted, model.StatusFailed, model.StatusCancelled}, cutoff).
		Count(&count).Error
	return count, err
}
