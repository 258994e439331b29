package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/qzr8/dealer_go_portal/internal/model"
)

// Client talks to the remote analysis service. All authenticated calls go
// through an oauth2 transport so token injection stays out of request code.
type Client struct {
	baseURL string
	http    *http.Client
	plain   *http.Client // login only, no token
}

// New builds a client whose authenticated requests draw bearer tokens from
// the given source. A nil source yields a client that can only log in.
func New(baseURL string, timeout time.Duration, source oauth2.TokenSource) *Client {
	plain := &http.Client{Timeout: timeout}
	authed := plain
	if source != nil {
		authed = oauth2.NewClient(context.Background(), source)
		authed.Timeout = timeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    authed,
		plain:   plain,
	}
}

// Login exchanges dealer credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/dealer/login", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.plain.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}
	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", &APIError{StatusCode: resp.StatusCode, Detail: "empty access token"}
	}
	return out.AccessToken, nil
}

// CurrentUser fetches the account behind the current token.
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	var out userResponse
	if err := c.getJSON(ctx, "/users/me", &out); err != nil {
		return nil, err
	}
	return &model.User{ID: out.ID, Username: out.Username, DealerID: out.DealerID, Email: out.Email}, nil
}

// SubmitSingle submits one video URL for analysis and returns the task ID.
func (c *Client) SubmitSingle(ctx context.Context, videoURL, transcriptionLang, targetLang string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"citnow_url":             videoURL,
		"transcription_language": transcriptionLang,
		"target_language":        targetLang,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return "", &SubmissionError{Kind: model.KindSingle, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	var out analyzeResponse
	if err := c.doJSON(req, &out); err != nil {
		return "", &SubmissionError{Kind: model.KindSingle, Err: err}
	}
	if out.TaskID == "" {
		return "", &SubmissionError{Kind: model.KindSingle, Err: fmt.Errorf("no task id in response")}
	}
	return out.TaskID, nil
}

// SubmitBatch uploads a spreadsheet of video URLs and returns the batch ID
// and the number of URLs the server found in it.
func (c *Client) SubmitBatch(ctx context.Context, filename string, file io.Reader, targetLang string) (string, int, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", 0, &SubmissionError{Kind: model.KindBatch, Err: err}
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", 0, &SubmissionError{Kind: model.KindBatch, Err: err}
	}
	if err := w.WriteField("target_language", targetLang); err != nil {
		return "", 0, &SubmissionError{Kind: model.KindBatch, Err: err}
	}
	if err := w.Close(); err != nil {
		return "", 0, &SubmissionError{Kind: model.KindBatch, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bulk-analyze", &buf)
	if err != nil {
		return "", 0, &SubmissionError{Kind: model.KindBatch, Err: err}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out bulkStartResponse
	if err := c.doJSON(req, &out); err != nil {
		return "", 0, &SubmissionError{Kind: model.KindBatch, Err: err}
	}
	if out.ID() == "" {
		return "", 0, &SubmissionError{Kind: model.KindBatch, Err: fmt.Errorf("no batch id in response")}
	}
	return out.ID(), out.TotalURLs, nil
}

// SingleStatus fetches the current status of a single-video task.
func (c *Client) SingleStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	var out TaskStatus
	if err := c.getJSON(ctx, "/analyze-status/"+url.PathEscape(taskID), &out); err != nil {
		return nil, err
	}
	if out.TaskID == "" {
		out.TaskID = taskID
	}
	return &out, nil
}

// BatchState fetches the current status of a batch job.
func (c *Client) BatchState(ctx context.Context, batchID string) (*BatchStatus, error) {
	var out BatchStatus
	if err := c.getJSON(ctx, "/bulk-status/"+url.PathEscape(batchID), &out); err != nil {
		return nil, err
	}
	if out.ID() == "" {
		out.BatchID = batchID
	}
	return &out, nil
}

// BatchResults fetches the per-video results of a batch job.
func (c *Client) BatchResults(ctx context.Context, batchID string) ([]model.Result, error) {
	var out struct {
		Results []model.Result `json:"results"`
	}
	if err := c.getJSON(ctx, "/bulk-results/"+url.PathEscape(batchID), &out); err != nil {
		return nil, &ResultFetchError{JobID: batchID, Err: err}
	}
	return out.Results, nil
}

// CancelBatch asks the server to stop a running batch.
func (c *Client) CancelBatch(ctx context.Context, batchID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bulk-cancel/"+url.PathEscape(batchID), nil)
	if err != nil {
		return &CancellationError{JobID: batchID, Err: err}
	}
	if err := c.doJSON(req, nil); err != nil {
		return &CancellationError{JobID: batchID, Err: err}
	}
	return nil
}

// DeleteBatch removes a batch job and its results on the server.
func (c *Client) DeleteBatch(ctx context.Context, batchID string) error {
	return c.delete(ctx, "/bulk-job/"+url.PathEscape(batchID))
}

// DeleteSingleResult removes a single-video analysis result on the server.
func (c *Client) DeleteSingleResult(ctx context.Context, resultID string) error {
	return c.delete(ctx, "/dealer/results/"+url.PathEscape(resultID))
}

// ListBatches fetches every batch job the dealer owns.
func (c *Client) ListBatches(ctx context.Context) ([]BatchStatus, error) {
	var out struct {
		Batches []BatchStatus `json:"batches"`
	}
	if err := c.getJSON(ctx, "/bulk-batches", &out); err != nil {
		return nil, err
	}
	return out.Batches, nil
}

// ListTasks fetches every single-video task the dealer owns.
func (c *Client) ListTasks(ctx context.Context) ([]TaskSummary, error) {
	var out struct {
		Tasks []TaskSummary `json:"tasks"`
	}
	if err := c.getJSON(ctx, "/dealer/my-analysis-tasks", &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

func (c *Client) delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, nil)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	}
	var body struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	detail := ""
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil {
		detail = body.Detail
		if detail == "" {
			detail = body.Message
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Detail: detail}
}
