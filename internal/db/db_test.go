package db

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/foliosim/internal/config"
)

// setupTestDB creates a test database connection
// Skips test if DATABASE_URL is not set
func setupTestDB(t *testing.T) (*DB, func()) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping database test: DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := New(ctx, config.DatabaseConfig{})
	if err != nil {
		t.Skipf("Skipping database test: failed to connect: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return db, cleanup
}

func TestNew(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	assert.NotNil(t, db)
	assert.NotNil(t, db.Pool())
}

func TestClose(t *testing.T) {
	db, _ := setupTestDB(t)

	// Close doesn't return error
	db.Close()
}

func TestPing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	err := db.Ping(ctx)
	assert.NoError(t, err)
}

func TestHealth(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	err := db.Health(ctx)
	assert.NoError(t, err)
}

// TestRunStore_Lifecycle walks a run through its full lifecycle against a
// live database.
func TestRunStore_Lifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunStoreWithDB(db)

	run := &Run{
		Name:   "lifecycle test",
		Config: json.RawMessage(`{"days":5}`),
	}
	require.NoError(t, store.CreateRun(ctx, run))
	defer func() { _ = store.DeleteRun(ctx, run.ID) }()

	fetched, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusPending, fetched.Status)
	assert.Nil(t, fetched.StartedAt)

	require.NoError(t, store.UpdateRunStatus(ctx, run.ID, RunStatusRunning))

	fetched, err = store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, fetched.Status)
	assert.NotNil(t, fetched.StartedAt)

	summary := RunSummary{
		FinalCapital: 104.2,
		TotalReturn:  0.042,
		MaxDrawdown:  0.01,
		TotalCycles:  5,
	}
	require.NoError(t, store.SaveResult(ctx, run.ID, json.RawMessage(`{"total_cycles":5}`), summary))

	fetched, err = store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, fetched.Status)
	require.NotNil(t, fetched.FinalCapital)
	assert.InDelta(t, 104.2, *fetched.FinalCapital, 1e-9)
	assert.NotNil(t, fetched.CompletedAt)

	runs, err := store.ListRuns(ctx, 10, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, runs)

	require.NoError(t, store.DeleteRun(ctx, run.ID))
	_, err = store.GetRun(ctx, run.ID)
	assert.ErrorIs(t, err, ErrRunNotFound)
}
