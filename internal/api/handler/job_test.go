package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qzr8/dealer_go_portal/config"
	"github.com/qzr8/dealer_go_portal/internal/api/middleware"
	"github.com/qzr8/dealer_go_portal/internal/model"
	"github.com/qzr8/dealer_go_portal/internal/model/dto"
	"github.com/qzr8/dealer_go_portal/internal/pkg/response"
	"github.com/qzr8/dealer_go_portal/internal/remote"
	"github.com/qzr8/dealer_go_portal/internal/repository"
	"github.com/qzr8/dealer_go_portal/internal/testutil"
	"github.com/qzr8/dealer_go_portal/internal/tracker"
)

// stubRemote is a minimal analysis-service stand-in for handler tests.
type stubRemote struct {
	batches   []remote.BatchStatus
	tasks     []remote.TaskSummary
	results   map[string][]model.Result
	cancelled []string
	deleted   []string
}

func (s *stubRemote) SubmitSingle(ctx context.Context, videoURL, transcriptionLang, targetLang string) (string, error) {
	return "task-new", nil
}

func (s *stubRemote) SubmitBatch(ctx context.Context, filename string, file io.Reader, targetLang string) (string, int, error) {
	return "batch-new", 7, nil
}

func (s *stubRemote) SingleStatus(ctx context.Context, taskID string) (*remote.TaskStatus, error) {
	return &remote.TaskStatus{TaskID: taskID, Status: "processing"}, nil
}

func (s *stubRemote) BatchState(ctx context.Context, batchID string) (*remote.BatchStatus, error) {
	return &remote.BatchStatus{BatchID: batchID, Status: "processing"}, nil
}

func (s *stubRemote) BatchResults(ctx context.Context, batchID string) ([]model.Result, error) {
	return s.results[batchID], nil
}

func (s *stubRemote) CancelBatch(ctx context.Context, batchID string) error {
	s.cancelled = append(s.cancelled, batchID)
	return nil
}

func (s *stubRemote) DeleteBatch(ctx context.Context, batchID string) error {
	s.deleted = append(s.deleted, batchID)
	return nil
}

func (s *stubRemote) DeleteSingleResult(ctx context.Context, resultID string) error {
	s.deleted = append(s.deleted, resultID)
	return nil
}

func (s *stubRemote) ListBatches(ctx context.Context) ([]remote.BatchStatus, error) {
	return s.batches, nil
}

func (s *stubRemote) ListTasks(ctx context.Context) ([]remote.TaskSummary, error) {
	return s.tasks, nil
}

type jobTestContext struct {
	DB      *gorm.DB
	Repo    *repository.JobRepository
	Tracker *tracker.Tracker
	Remote  *stubRemote
}

func setupJobHandler(t *testing.T) (*JobHandler, *jobTestContext, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	repo := repository.NewJobRepository(db)

	tr := tracker.New(repo, nil, &config.PollingConfig{
		BatchInterval:  time.Hour, // handler tests drive state directly
		SingleInterval: time.Hour,
		CancelSettle:   time.Hour,
	})
	rm := &stubRemote{results: make(map[string][]model.Result)}
	tr.SetClient("dealer-1", rm)

	h := NewJobHandler(tr, repo, config.UploadConfig{
		MaxSize:           1 << 20,
		AllowedExtensions: []string{".xlsx", ".xls"},
	})

	ctx := &jobTestContext{DB: db, Repo: repo, Tracker: tr, Remote: rm}
	cleanup := func() {
		tr.Shutdown()
		testutil.CleanupTestDB(t, db)
	}
	return h, ctx, cleanup
}

// mockSession injects an authenticated session.
func mockSession(ownerID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.SessionKey, &model.Session{
			User:      model.User{ID: ownerID, Username: ownerID},
			ExpiresAt: time.Now().Add(time.Hour),
		})
		c.Next()
	}
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func TestJobHandler_SubmitSingle_Success(t *testing.T) {
	h, ctx, cleanup := setupJobHandler(t)
	defer cleanup()

	router := gin.New()
	router.Use(mockSession("dealer-1"))
	router.POST("/jobs/single", h.SubmitSingle)

	req := dto.SubmitSingleRequest{
		VideoURL:              "https://example.com/video",
		TranscriptionLanguage: "en",
		TargetLanguage:        "de",
	}

	w := performRequest(router, "POST", "/jobs/single", req)
	resp := parseResponse(t, w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	job, err := ctx.Repo.GetByID("task-new")
	require.NoError(t, err)
	assert.Equal(t, "dealer-1", job.OwnerID)
	assert.Equal(t, model.KindSingle, job.Kind)
	assert.True(t, ctx.Tracker.Polling("task-new"))
}

func TestJobHandler_SubmitSingle_InvalidBody(t *testing.T) {
	h, _, cleanup := setupJobHandler(t)
	defer cleanup()

	router := gin.New()
	router.Use(mockSession("dealer-1"))
	router.POST("/jobs/single", h.SubmitSingle)

	w := performRequest(router, "POST", "/jobs/single", map[string]string{
		"video_url": "not a url",
	})
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestJobHandler_SubmitBatch_Success(t *testing.T) {
	h, ctx, cleanup := setupJobHandler(t)
	defer cleanup()

	router := gin.New()
	router.Use(mockSession("dealer-1"))
	router.POST("/jobs/batch", h.SubmitBatch)

	w := performMultipart(t, router, "/jobs/batch", "urls.xlsx", "fake-sheet", "de")
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	job, err := ctx.Repo.GetByID("batch-new")
	require.NoError(t, err)
	assert.Equal(t, model.KindBatch, job.Kind)
	assert.Equal(t, 7, job.TotalItems)
	assert.Equal(t, "urls.xlsx", job.SourceFile)
}

func TestJobHandler_SubmitBatch_BadExtension(t *testing.T) {
	h, _, cleanup := setupJobHandler(t)
	defer cleanup()

	router := gin.New()
	router.Use(mockSession("dealer-1"))
	router.POST("/jobs/batch", h.SubmitBatch)

	w := performMultipart(t, router, "/jobs/batch", "urls.txt", "not-a-sheet", "de")
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestJobHandler_List_ReconcilesWithServer(t *testing.T) {
	h, ctx, cleanup := setupJobHandler(t)
	defer cleanup()

	// a stale local job the server no longer lists
	testutil.TestJob(t, ctx.DB, testutil.WithID("stale-1"), testutil.WithOwner("dealer-1"))

	ctx.Remote.batches = []remote.BatchStatus{
		{BatchID: "b1", Status: "running", TotalURLs: 4, ProcessedURLs: 1},
	}
	ctx.Remote.tasks = []remote.TaskSummary{
		{TaskID: "t1", Status: "completed", URL: "https://example.com/v"},
	}

	router := gin.New()
	router.Use(mockSession("dealer-1"))
	router.GET("/jobs", h.List)

	w := performRequest(router, "GET", "/jobs", nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var list dto.JobListResponse
	require.NoError(t, json.Unmarshal(data, &list))

	assert.False(t, list.Degraded)
	require.Len(t, list.Jobs, 2)
	ids := []string{list.Jobs[0].ID, list.Jobs[1].ID}
	assert.ElementsMatch(t, []string{"b1", "t1"}, ids)
}

func TestJobHandler_Get_OwnershipEnforced(t *testing.T) {
	h, ctx, cleanup := setupJobHandler(t)
	defer cleanup()

	testutil.TestJob(t, ctx.DB, testutil.WithID("other-1"), testutil.WithOwner("dealer-2"))

	router := gin.New()
	router.Use(mockSession("dealer-1"))
	router.GET("/jobs/:id", h.Get)

	w := performRequest(router, "GET", "/jobs/other-1", nil)
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodePermissionDenied, resp.Code)
}

func TestJobHandler_Cancel_Batch(t *testing.T) {
	h, ctx, cleanup := setupJobHandler(t)
	defer cleanup()

	testutil.TestJob(t, ctx.DB, testutil.WithID("b1"), testutil.WithStatus(model.StatusProcessing))

	router := gin.New()
	router.Use(mockSession("dealer-1"))
	router.POST("/jobs/:id/cancel", h.Cancel)

	w := performRequest(router, "POST", "/jobs/b1/cancel", nil)
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	job, err := ctx.Repo.GetByID("b1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusStopping, job.Status)
	assert.Contains(t, ctx.Remote.cancelled, "b1")
}

func TestJobHandler_Cancel_SingleRejected(t *testing.T) {
	h, ctx, cleanup := setupJobHandler(t)
	defer cleanup()

	testutil.TestJob(t, ctx.DB, testutil.WithID("t1"), testutil.WithKind(model.KindSingle), testutil.WithStatus(model.StatusProcessing))

	router := gin.New()
	router.Use(mockSession("dealer-1"))
	router.POST("/jobs/:id/cancel", h.Cancel)

	w := performRequest(router, "POST", "/jobs/t1/cancel", nil)
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeRemoteError, resp.Code)
}

func TestJobHandler_Delete(t *testing.T) {
	h, ctx, cleanup := setupJobHandler(t)
	defer cleanup()

	testutil.TestJob(t, ctx.DB, testutil.WithID("b1"), testutil.WithStatus(model.StatusCompleted))

	router := gin.New()
	router.Use(mockSession("dealer-1"))
	router.DELETE("/jobs/:id", h.Delete)

	w := performRequest(router, "DELETE", "/jobs/b1", nil)
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	assert.Contains(t, ctx.Remote.deleted, "b1")
	_, err := ctx.Repo.GetByID("b1")
	assert.Error(t, err)
}

func TestJobHandler_Results(t *testing.T) {
	h, ctx, cleanup := setupJobHandler(t)
	defer cleanup()

	testutil.TestJob(t, ctx.DB, testutil.WithID("b1"), testutil.WithStatus(model.StatusCompleted))
	ctx.Remote.results["b1"] = []model.Result{{ID: "r1"}, {ID: "r2"}}

	router := gin.New()
	router.Use(mockSession("dealer-1"))
	router.GET("/jobs/:id/results", h.Results)

	w := performRequest(router, "GET", "/jobs/b1/results", nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var results dto.ResultsResponse
	require.NoError(t, json.Unmarshal(data, &results))
	assert.Len(t, results.Results, 2)
}

func TestJobHandler_Track_Idempotent(t *testing.T) {
	h, ctx, cleanup := setupJobHandler(t)
	defer cleanup()

	testutil.TestJob(t, ctx.DB, testutil.WithID("b1"), testutil.WithStatus(model.StatusProcessing))

	router := gin.New()
	router.Use(mockSession("dealer-1"))
	router.POST("/jobs/:id/track", h.Track)

	for i := 0; i < 2; i++ {
		w := performRequest(router, "POST", "/jobs/b1/track", nil)
		resp := parseResponse(t, w)
		assert.Equal(t, response.CodeSuccess, resp.Code)
	}
	assert.True(t, ctx.Tracker.Polling("b1"))
}

func performMultipart(t *testing.T, r http.Handler, path, filename, content, targetLang string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("target_language", targetLang))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
