package handler

import (
	"errors"
	"log"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qzr8/dealer_go_portal/config"
	"github.com/qzr8/dealer_go_portal/internal/api/middleware"
	"github.com/qzr8/dealer_go_portal/internal/model"
	"github.com/qzr8/dealer_go_portal/internal/model/dto"
	"github.com/qzr8/dealer_go_portal/internal/pkg/response"
	"github.com/qzr8/dealer_go_portal/internal/remote"
	"github.com/qzr8/dealer_go_portal/internal/repository"
	"github.com/qzr8/dealer_go_portal/internal/tracker"
)

type JobHandler struct {
	tracker *tracker.Tracker
	jobRepo *repository.JobRepository
	upload  config.UploadConfig
}

func NewJobHandler(tr *tracker.Tracker, jobRepo *repository.JobRepository, upload config.UploadConfig) *JobHandler {
	return &JobHandler{
		tracker: tr,
		jobRepo: jobRepo,
		upload:  upload,
	}
}

// SubmitSingle submits one video URL for analysis.
// POST /api/v1/jobs/single
func (h *JobHandler) SubmitSingle(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.SubmitSingleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	job, err := h.tracker.SubmitSingle(c.Request.Context(), session.User.ID,
		req.VideoURL, req.TranscriptionLanguage, req.TargetLanguage)
	if err != nil {
		h.submitError(c, err)
		return
	}

	response.SuccessWithMessage(c, "analysis started", dto.FromJob(job, h.tracker.Polling(job.ID)))
}

// SubmitBatch uploads a spreadsheet of video URLs for analysis.
// POST /api/v1/jobs/batch
func (h *JobHandler) SubmitBatch(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.ParamError(c, "spreadsheet file is required")
		return
	}
	targetLang := c.PostForm("target_language")
	if targetLang == "" {
		response.ParamError(c, "target_language is required")
		return
	}

	if h.upload.MaxSize > 0 && fileHeader.Size > h.upload.MaxSize {
		response.ParamError(c, "file too large")
		return
	}
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !h.allowedExtension(ext) {
		response.ParamError(c, "unsupported file type: "+ext)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.ServerError(c, "")
		return
	}
	defer file.Close()

	job, err := h.tracker.SubmitBatch(c.Request.Context(), session.User.ID,
		fileHeader.Filename, file, targetLang)
	if err != nil {
		h.submitError(c, err)
		return
	}

	response.SuccessWithMessage(c, "batch started", dto.FromJob(job, h.tracker.Polling(job.ID)))
}

// List reconciles with the server and returns the owner's jobs. When the
// server is unreachable the last known local state is returned, flagged
// degraded.
// GET /api/v1/jobs
func (h *JobHandler) List(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	jobs, degraded, err := h.tracker.Resume(c.Request.Context(), session.User.ID)
	if err != nil {
		log.Printf("List jobs: %v", err)
		response.ServerError(c, "")
		return
	}

	items := make([]dto.JobItem, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, dto.FromJob(job, h.tracker.Polling(job.ID)))
	}
	response.Success(c, dto.JobListResponse{Jobs: items, Degraded: degraded})
}

// Get returns one job.
// GET /api/v1/jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}
	response.Success(c, dto.FromJob(job, h.tracker.Polling(job.ID)))
}

// Cancel asks the server to stop a running batch.
// POST /api/v1/jobs/:id/cancel
func (h *JobHandler) Cancel(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}

	if err := h.tracker.Cancel(c.Request.Context(), job.ID); err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			response.NotFoundError(c, "job no longer exists on the server")
			return
		}
		var cancelErr *remote.CancellationError
		if errors.As(err, &cancelErr) {
			response.RemoteError(c, cancelErr.Error())
			return
		}
		log.Printf("Cancel %s: %v", job.ID, err)
		response.ServerError(c, "")
		return
	}

	response.SuccessWithMessage(c, "cancel requested", nil)
}

// Delete removes the job on the server and locally.
// DELETE /api/v1/jobs/:id
func (h *JobHandler) Delete(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}

	if err := h.tracker.Delete(c.Request.Context(), job.ID); err != nil {
		log.Printf("Delete %s: %v", job.ID, err)
		response.RemoteError(c, "failed to delete job")
		return
	}

	response.SuccessWithMessage(c, "job deleted", nil)
}

// Results returns the job's per-video results.
// GET /api/v1/jobs/:id/results
func (h *JobHandler) Results(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}

	results, err := h.tracker.FetchResults(c.Request.Context(), job.ID)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			response.NotFoundError(c, "results no longer exist on the server")
			return
		}
		log.Printf("Results %s: %v", job.ID, err)
		response.RemoteError(c, "failed to fetch results")
		return
	}

	response.Success(c, dto.ResultsResponse{JobID: job.ID, Results: results})
}

// Track restarts polling for a live job. A no-op when a poller already runs.
// POST /api/v1/jobs/:id/track
func (h *JobHandler) Track(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}

	h.tracker.Track(job)
	response.Success(c, dto.FromJob(job, h.tracker.Polling(job.ID)))
}

// ownedJob loads the job in the path and enforces ownership.
func (h *JobHandler) ownedJob(c *gin.Context) (*model.Job, bool) {
	session, ok := middleware.GetSession(c)
	if !ok {
		response.AuthError(c, "")
		return nil, false
	}

	job, err := h.jobRepo.GetByID(c.Param("id"))
	if err != nil {
		response.NotFoundError(c, "job not found")
		return nil, false
	}
	if job.OwnerID != session.User.ID {
		response.PermissionError(c, "")
		return nil, false
	}
	return job, true
}

func (h *JobHandler) allowedExtension(ext string) bool {
	if len(h.upload.AllowedExtensions) == 0 {
		return ext == ".xlsx" || ext == ".xls"
	}
	for _, allowed := range h.upload.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func (h *JobHandler) submitError(c *gin.Context, err error) {
	if errors.Is(err, tracker.ErrNoSession) {
		response.AuthError(c, "")
		return
	}
	var subErr *remote.SubmissionError
	if errors.As(err, &subErr) {
		var apiErr *remote.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			response.ParamError(c, apiErr.Detail)
			return
		}
		response.RemoteError(c, "")
		return
	}
	log.Printf("Submit: %v", err)
	response.ServerError(c, "")
}
