package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qzr8/dealer_go_portal/config"
	"github.com/qzr8/dealer_go_portal/internal/auth"
	"github.com/qzr8/dealer_go_portal/internal/model"
	"github.com/qzr8/dealer_go_portal/internal/repository"
	"github.com/qzr8/dealer_go_portal/internal/testutil"
	"github.com/qzr8/dealer_go_portal/internal/tracker"
)

func TestPruneOldJobs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := repository.NewJobRepository(db)

	old := testutil.TestJob(t, db, testutil.WithID("old-done"), testutil.WithStatus(model.StatusCompleted))
	require.NoError(t, db.Model(old).UpdateColumn("updated_at", time.Now().AddDate(0, 0, -45)).Error)
	testutil.TestJob(t, db, testutil.WithID("fresh-done"), testutil.WithStatus(model.StatusCompleted))

	live := testutil.TestJob(t, db, testutil.WithID("old-live"), testutil.WithStatus(model.StatusProcessing))
	require.NoError(t, db.Model(live).UpdateColumn("updated_at", time.Now().AddDate(0, 0, -45)).Error)

	tr := tracker.New(repo, nil, &config.PollingConfig{})
	svc := NewService(tr, repo, auth.NewStore(time.Hour), time.Minute, 30)
	svc.pruneOldJobs()

	_, err := repo.GetByID("old-done")
	assert.Error(t, err)
	_, err = repo.GetByID("fresh-done")
	assert.NoError(t, err)
	_, err = repo.GetByID("old-live")
	assert.NoError(t, err, "live jobs are exempt from retention")
}

func TestStartStop(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := repository.NewJobRepository(db)

	tr := tracker.New(repo, nil, &config.PollingConfig{})
	svc := NewService(tr, repo, auth.NewStore(time.Hour), time.Minute, 30)
	svc.Start()
	svc.Stop()
}
