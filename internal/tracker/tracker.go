package tracker

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/qzr8/dealer_go_portal/config"
	"github.com/qzr8/dealer_go_portal/internal/model"
	"github.com/qzr8/dealer_go_portal/internal/pkg/archive"
	"github.com/qzr8/dealer_go_portal/internal/remote"
	"github.com/qzr8/dealer_go_portal/internal/repository"
)

// Remote is the slice of the analysis service API the tracker needs.
// *remote.Client satisfies it; tests plug in fakes.
type Remote interface {
	SubmitSingle(ctx context.Context, videoURL, transcriptionLang, targetLang string) (string, error)
	SubmitBatch(ctx context.Context, filename string, file io.Reader, targetLang string) (string, int, error)
	SingleStatus(ctx context.Context, taskID string) (*remote.TaskStatus, error)
	BatchState(ctx context.Context, batchID string) (*remote.BatchStatus, error)
	BatchResults(ctx context.Context, batchID string) ([]model.Result, error)
	CancelBatch(ctx context.Context, batchID string) error
	DeleteBatch(ctx context.Context, batchID string) error
	DeleteSingleResult(ctx context.Context, resultID string) error
	ListBatches(ctx context.Context) ([]remote.BatchStatus, error)
	ListTasks(ctx context.Context) ([]remote.TaskSummary, error)
}

// Event is a tracker notification. Removed marks jobs pruned locally, either
// after a delete or after the server answered 404.
type Event struct {
	Job     *model.Job
	Removed bool
}

var ErrNoSession = errors.New("tracker: no authenticated client for owner")

// Tracker owns the asynchronous job lifecycle: it submits work to the remote
// analysis service, polls every live job on its own timer, keeps the job
// store in sync, and fans out change events.
type Tracker struct {
	repo    *repository.JobRepository
	archive archive.Store
	cfg     *config.PollingConfig

	mu        sync.Mutex
	clients   map[string]Remote        // ownerID -> authenticated client
	pollers   map[string]chan struct{} // jobID -> stop channel
	seq       map[string]uint64        // jobID -> latest poll sequence
	listeners []func(Event)

	wg sync.WaitGroup
}

func New(repo *repository.JobRepository, store archive.Store, cfg *config.PollingConfig) *Tracker {
	return &Tracker{
		repo:    repo,
		archive: store,
		cfg:     cfg,
		clients: make(map[string]Remote),
		pollers: make(map[string]chan struct{}),
		seq:     make(map[string]uint64),
	}
}

// AddListener registers a change listener. Listeners run on poller
// goroutines and must not block.
func (t *Tracker) AddListener(fn func(Event)) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// SetClient binds an authenticated client to an owner and wakes up pollers
// for any of the owner's jobs that are still live. Called at login.
func (t *Tracker) SetClient(ownerID string, client Remote) {
	t.mu.Lock()
	t.clients[ownerID] = client
	t.mu.Unlock()

	jobs, err := t.repo.ListByOwner(ownerID)
	if err != nil {
		log.Printf("Tracker: list jobs for owner %s: %v", ownerID, err)
		return
	}
	for _, job := range jobs {
		if !job.IsTerminal() {
			t.Track(job)
		}
	}
}

// RemoveClient drops the owner's client. Running pollers stop on their next
// tick when they find no client.
func (t *Tracker) RemoveClient(ownerID string) {
	t.mu.Lock()
	delete(t.clients, ownerID)
	t.mu.Unlock()
}

func (t *Tracker) client(ownerID string) (Remote, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.clients[ownerID]
	return c, ok
}

// SubmitSingle submits one video URL, records the job, and starts polling.
func (t *Tracker) SubmitSingle(ctx context.Context, ownerID, videoURL, transcriptionLang, targetLang string) (*model.Job, error) {
	client, ok := t.client(ownerID)
	if !ok {
		return nil, ErrNoSession
	}

	taskID, err := client.SubmitSingle(ctx, videoURL, transcriptionLang, targetLang)
	if err != nil {
		return nil, err
	}

	job := &model.Job{
		ID:                    taskID,
		Kind:                  model.KindSingle,
		OwnerID:               ownerID,
		Status:                model.StatusPending,
		SourceURL:             videoURL,
		TranscriptionLanguage: transcriptionLang,
		TargetLanguage:        targetLang,
		TotalItems:            1,
	}
	if err := t.repo.Create(job); err != nil {
		return nil, err
	}

	t.notify(Event{Job: job})
	t.Track(job)
	return job, nil
}

// SubmitBatch uploads a spreadsheet, records the batch job, and starts
// polling.
func (t *Tracker) SubmitBatch(ctx context.Context, ownerID, filename string, file io.Reader, targetLang string) (*model.Job, error) {
	client, ok := t.client(ownerID)
	if !ok {
		return nil, ErrNoSession
	}

	batchID, total, err := client.SubmitBatch(ctx, filename, file, targetLang)
	if err != nil {
		return nil, err
	}

	job := &model.Job{
		ID:             batchID,
		Kind:           model.KindBatch,
		OwnerID:        ownerID,
		Status:         model.StatusPending,
		SourceFile:     filename,
		TargetLanguage: targetLang,
		TotalItems:     total,
	}
	if err := t.repo.Create(job); err != nil {
		return nil, err
	}

	t.notify(Event{Job: job})
	t.Track(job)
	return job, nil
}

// Track starts a poller for the job. Idempotent: a second call while the
// first poller runs is a no-op. Terminal jobs are never polled.
func (t *Tracker) Track(job *model.Job) {
	if job.IsTerminal() {
		return
	}

	t.mu.Lock()
	if _, running := t.pollers[job.ID]; running {
		t.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	t.pollers[job.ID] = stop
	t.mu.Unlock()

	interval := t.cfg.BatchInterval
	if job.Kind == model.KindSingle {
		interval = t.cfg.SingleInterval
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	t.wg.Add(1)
	go t.pollLoop(job.ID, job.Kind, job.OwnerID, interval, stop)
}

func (t *Tracker) pollLoop(jobID, kind, ownerID string, interval time.Duration, stop chan struct{}) {
	defer t.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			client, ok := t.client(ownerID)
			if !ok {
				// owner logged out; polling resumes on the next login
				t.stopPolling(jobID)
				return
			}
			if done := t.pollOnce(client, jobID, kind); done {
				return
			}
		}
	}
}

// pollOnce fetches the current remote state and applies it. Returns true
// when polling should end (terminal state or prune).
func (t *Tracker) pollOnce(client Remote, jobID, kind string) bool {
	seq := t.nextSeq(jobID)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var apply func(*model.Job) bool
	var err error
	if kind == model.KindSingle {
		var st *remote.TaskStatus
		st, err = client.SingleStatus(ctx, jobID)
		if err == nil {
			apply = st.ApplyToJob
		}
	} else {
		var st *remote.BatchStatus
		st, err = client.BatchState(ctx, jobID)
		if err == nil {
			apply = st.ApplyToJob
		}
	}

	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			// the server forgot the job; its word is final
			t.prune(jobID)
			return true
		}
		// transient failures are retried on the next tick, indefinitely
		log.Printf("Tracker: poll %s: %v", jobID, err)
		return false
	}

	if !t.currentSeq(jobID, seq) {
		// a cancel or settle fetch superseded this response in flight
		return false
	}

	return t.applyUpdate(jobID, apply)
}

// applyUpdate loads, mutates, persists, and fans out. Returns true when the
// job settled.
func (t *Tracker) applyUpdate(jobID string, apply func(*model.Job) bool) bool {
	job, err := t.repo.GetByID(jobID)
	if err != nil {
		// row gone locally (concurrent delete); stop quietly
		t.stopPolling(jobID)
		return true
	}

	if apply(job) {
		if err := t.repo.Update(job); err != nil {
			log.Printf("Tracker: persist %s: %v", jobID, err)
		}
		t.notify(Event{Job: job})
	}

	if job.IsTerminal() {
		t.stopPolling(jobID)
		t.finalize(job)
		return true
	}
	return false
}

// finalize pulls results for a settled job and archives completed ones.
func (t *Tracker) finalize(job *model.Job) {
	if job.Status != model.StatusCompleted {
		return
	}
	client, ok := t.client(job.OwnerID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if _, err := t.fetchResults(ctx, client, job); err != nil {
		log.Printf("Tracker: finalize %s: %v", job.ID, err)
	}
}

// Cancel asks the server to stop a batch. The local status flips to
// stopping right away, the poll timer stops, and one follow-up fetch after
// the settle delay learns whether the server finished or cancelled first.
// Single jobs cannot be cancelled.
func (t *Tracker) Cancel(ctx context.Context, jobID string) error {
	job, err := t.repo.GetByID(jobID)
	if err != nil {
		return err
	}
	if job.Kind == model.KindSingle {
		return &remote.CancellationError{JobID: jobID, Err: errors.New("single jobs cannot be cancelled")}
	}
	if !model.CanStop(job.Status) {
		return &remote.CancellationError{JobID: jobID, Err: errors.New("job is not running")}
	}
	client, ok := t.client(job.OwnerID)
	if !ok {
		return ErrNoSession
	}

	// optimistic: show stopping immediately, silence the poller, and
	// invalidate any in-flight poll response
	t.nextSeq(jobID)
	t.stopPolling(jobID)
	job.Status = model.StatusStopping
	if err := t.repo.Update(job); err != nil {
		return err
	}
	t.notify(Event{Job: job})

	if err := client.CancelBatch(ctx, jobID); err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			t.prune(jobID)
			return err
		}
		// optimism was wrong; ask the server what the job really looks like
		t.settleFetch(jobID, job.Kind, job.OwnerID, true)
		return err
	}

	settle := t.cfg.CancelSettle
	if settle <= 0 {
		settle = 5 * time.Second
	}
	time.AfterFunc(settle, func() {
		t.settleFetch(jobID, job.Kind, job.OwnerID, false)
	})
	return nil
}

// settleFetch performs one explicit status fetch outside the poll loop.
// With force set the server state overwrites the local status even against
// the forward-only order, which undoes a failed optimistic cancel.
func (t *Tracker) settleFetch(jobID, kind, ownerID string, force bool) {
	client, ok := t.client(ownerID)
	if !ok {
		return
	}
	seq := t.nextSeq(jobID)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var rawStatus string
	var apply func(*model.Job) bool
	if kind == model.KindSingle {
		st, err := client.SingleStatus(ctx, jobID)
		if err != nil {
			t.settleFetchErr(jobID, err)
			return
		}
		rawStatus = st.Status
		apply = st.ApplyToJob
	} else {
		st, err := client.BatchState(ctx, jobID)
		if err != nil {
			t.settleFetchErr(jobID, err)
			return
		}
		rawStatus = st.Status
		apply = st.ApplyToJob
	}

	if !t.currentSeq(jobID, seq) {
		return
	}

	job, err := t.repo.GetByID(jobID)
	if err != nil {
		return
	}

	changed := apply(job)
	if force {
		if status := remote.NormalizeStatus(rawStatus); job.Status != status {
			job.Status = status
			changed = true
		}
	}
	if changed {
		if err := t.repo.Update(job); err != nil {
			log.Printf("Tracker: persist %s: %v", jobID, err)
		}
		t.notify(Event{Job: job})
	}

	if job.IsTerminal() {
		t.finalize(job)
	} else {
		// the job is still live; hand it back to the regular poller
		t.Track(job)
	}
}

func (t *Tracker) settleFetchErr(jobID string, err error) {
	if errors.Is(err, remote.ErrNotFound) {
		t.prune(jobID)
		return
	}
	log.Printf("Tracker: settle fetch %s: %v", jobID, err)
}

// Delete removes the job on the server and then locally. The server decides
// whether deletion is allowed; a 404 still clears the local row.
func (t *Tracker) Delete(ctx context.Context, jobID string) error {
	job, err := t.repo.GetByID(jobID)
	if err != nil {
		return err
	}
	client, ok := t.client(job.OwnerID)
	if !ok {
		return ErrNoSession
	}

	if job.Kind == model.KindSingle {
		err = client.DeleteSingleResult(ctx, jobID)
	} else {
		err = client.DeleteBatch(ctx, jobID)
	}
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		return err
	}

	if job.ArchiveURL != "" && t.archive != nil {
		if aerr := t.archive.Delete(job.ArchiveURL); aerr != nil {
			log.Printf("Tracker: delete archive for %s: %v", jobID, aerr)
		}
	}
	t.prune(jobID)
	return nil
}

// FetchResults returns the job's results, fetching and caching them on
// first access. Completed batches get exported to the archive store.
func (t *Tracker) FetchResults(ctx context.Context, jobID string) ([]model.Result, error) {
	job, err := t.repo.GetByID(jobID)
	if err != nil {
		return nil, err
	}
	if len(job.Results) > 0 {
		return job.Results, nil
	}
	client, ok := t.client(job.OwnerID)
	if !ok {
		return nil, ErrNoSession
	}
	return t.fetchResults(ctx, client, job)
}

func (t *Tracker) fetchResults(ctx context.Context, client Remote, job *model.Job) ([]model.Result, error) {
	var results []model.Result
	if job.Kind == model.KindSingle {
		st, err := client.SingleStatus(ctx, job.ID)
		if err != nil {
			if errors.Is(err, remote.ErrNotFound) {
				t.prune(job.ID)
			}
			return nil, &remote.ResultFetchError{JobID: job.ID, Err: err}
		}
		if len(st.Result) > 0 {
			results = []model.Result{{ID: job.ID, URL: job.SourceURL, Status: job.Status, VideoAnalysis: st.Result}}
		}
	} else {
		var err error
		results, err = client.BatchResults(ctx, job.ID)
		if err != nil {
			if errors.Is(err, remote.ErrNotFound) {
				t.prune(job.ID)
			}
			return nil, err
		}
	}

	job.Results = results
	if job.Status == model.StatusCompleted && job.ArchiveURL == "" && t.archive != nil && len(results) > 0 {
		location, err := t.archive.SaveResults(job, results)
		if err != nil {
			log.Printf("Tracker: archive %s: %v", job.ID, err)
		} else {
			job.ArchiveURL = location
		}
	}
	if err := t.repo.Update(job); err != nil {
		log.Printf("Tracker: persist results %s: %v", job.ID, err)
	}
	return results, nil
}

// Resume reconciles the owner's local jobs with the server's lists. On
// success the server lists replace local state wholesale. If either list
// cannot be fetched the local rows are returned as-is, flagged degraded,
// and pollers restart for the live ones.
func (t *Tracker) Resume(ctx context.Context, ownerID string) ([]*model.Job, bool, error) {
	client, ok := t.client(ownerID)
	if !ok {
		jobs, err := t.repo.ListByOwner(ownerID)
		return jobs, true, err
	}

	batches, berr := client.ListBatches(ctx)
	tasks, terr := client.ListTasks(ctx)
	if berr != nil || terr != nil {
		if berr != nil {
			log.Printf("Tracker: resume owner %s: list batches: %v", ownerID, berr)
		}
		if terr != nil {
			log.Printf("Tracker: resume owner %s: list tasks: %v", ownerID, terr)
		}
		jobs, err := t.repo.ListByOwner(ownerID)
		// the client is still good even though the lists are not; keep
		// polling whatever the local store says is live
		for _, job := range jobs {
			if !job.IsTerminal() {
				t.Track(job)
			}
		}
		return jobs, true, err
	}

	existing := make(map[string]*model.Job)
	if local, err := t.repo.ListByOwner(ownerID); err == nil {
		for _, j := range local {
			existing[j.ID] = j
		}
	}

	jobs := make([]*model.Job, 0, len(batches)+len(tasks))
	for i := range batches {
		job := batches[i].ToJob(ownerID)
		carryLocal(job, existing[job.ID])
		jobs = append(jobs, job)
	}
	for i := range tasks {
		job := tasks[i].ToJob(ownerID)
		carryLocal(job, existing[job.ID])
		jobs = append(jobs, job)
	}

	if err := t.repo.ReplaceForOwner(ownerID, jobs); err != nil {
		return nil, false, err
	}

	for _, job := range jobs {
		if !job.IsTerminal() {
			t.Track(job)
		}
	}
	return jobs, false, nil
}

// carryLocal keeps fields the server lists do not carry: cached results,
// archive locations, submission parameters.
func carryLocal(job *model.Job, local *model.Job) {
	if local == nil {
		return
	}
	if len(job.Results) == 0 {
		job.Results = local.Results
	}
	if job.ArchiveURL == "" {
		job.ArchiveURL = local.ArchiveURL
	}
	if job.TargetLanguage == "" {
		job.TargetLanguage = local.TargetLanguage
	}
	if job.TranscriptionLanguage == "" {
		job.TranscriptionLanguage = local.TranscriptionLanguage
	}
	if job.SourceFile == "" {
		job.SourceFile = local.SourceFile
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = local.CreatedAt
	}
}

// ReconcileAll re-runs Resume for every owner with a bound client. The cron
// service calls this periodically to catch drift between polls.
func (t *Tracker) ReconcileAll(ctx context.Context) {
	t.mu.Lock()
	owners := make([]string, 0, len(t.clients))
	for id := range t.clients {
		owners = append(owners, id)
	}
	t.mu.Unlock()

	for _, ownerID := range owners {
		if _, degraded, err := t.Resume(ctx, ownerID); err != nil {
			log.Printf("Tracker: reconcile owner %s: %v", ownerID, err)
		} else if degraded {
			log.Printf("Tracker: reconcile owner %s: degraded, kept local state", ownerID)
		}
	}
}

// prune drops the job locally and stops its poller. Used after deletes and
// after the server answered 404.
func (t *Tracker) prune(jobID string) {
	job, err := t.repo.GetByID(jobID)
	t.stopPolling(jobID)
	if derr := t.repo.Delete(jobID); derr != nil {
		log.Printf("Tracker: prune %s: %v", jobID, derr)
	}
	if err == nil {
		t.notify(Event{Job: job, Removed: true})
	}
}

func (t *Tracker) stopPolling(jobID string) {
	t.mu.Lock()
	if stop, ok := t.pollers[jobID]; ok {
		close(stop)
		delete(t.pollers, jobID)
	}
	t.mu.Unlock()
}

// Polling reports whether a poller is currently running for the job.
func (t *Tracker) Polling(jobID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pollers[jobID]
	return ok
}

func (t *Tracker) nextSeq(jobID string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq[jobID]++
	return t.seq[jobID]
}

func (t *Tracker) currentSeq(jobID string, seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seq[jobID] == seq
}

func (t *Tracker) notify(event Event) {
	t.mu.Lock()
	listeners := make([]func(Event), len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()
	for _, fn := range listeners {
		fn(event)
	}
}

// Shutdown stops every poller and waits for them to drain.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	for id, stop := range t.pollers {
		close(stop)
		delete(t.pollers, id)
	}
	t.mu.Unlock()
	t.wg.Wait()
}
