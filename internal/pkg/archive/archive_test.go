package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qzr8/dealer_go_portal/config"
	"github.com/qzr8/dealer_go_portal/internal/model"
)

func TestLocalStore_SaveAndDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	job := &model.Job{
		ID:      "batch-1",
		Kind:    model.KindBatch,
		OwnerID: "dealer-1",
		Status:  model.StatusCompleted,
	}
	results := []model.Result{{ID: "r1", URL: "https://example.com/v1"}}

	location, err := store.SaveResults(job, results)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "dealer-1", "batch-1.json"), location)

	data, err := os.ReadFile(location)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "batch-1", doc["job_id"])
	assert.Equal(t, "dealer-1", doc["owner_id"])

	require.NoError(t, store.Delete(location))
	_, err = os.Stat(location)
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStore_DeleteOutsideDir(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	err = store.Delete("/etc/passwd")
	assert.Error(t, err)
}

func TestLocalStore_DeleteMissingIsNoop(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	assert.NoError(t, store.Delete(filepath.Join(dir, "dealer-1", "gone.json")))
}

func TestNewPicksLocalWithoutOSSConfig(t *testing.T) {
	store, err := New(&config.ArchiveConfig{LocalDir: t.TempDir()})
	require.NoError(t, err)
	_, ok := store.(*LocalStore)
	assert.True(t, ok)
}
