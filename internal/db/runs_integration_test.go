package db_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/foliosim/internal/db"
	"github.com/ajitpratap0/foliosim/internal/db/testhelpers"
)

// TestRunStoreLifecycleIntegration walks a run through its full life
// against a real PostgreSQL instance.
func TestRunStoreLifecycleIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	store := db.NewRunStoreWithDB(tc.DB)

	require.NoError(t, tc.DB.Ping(ctx))
	require.NoError(t, tc.DB.Health(ctx))

	run := &db.Run{
		Name:   "integration run",
		Config: json.RawMessage(`{"days": 30}`),
	}
	require.NoError(t, store.CreateRun(ctx, run))
	assert.NotEqual(t, uuid.Nil, run.ID)

	t.Run("create defaults to pending", func(t *testing.T) {
		got, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, db.RunStatusPending, got.Status)
		assert.Equal(t, "integration run", got.Name)
		assert.JSONEq(t, `{"days": 30}`, string(got.Config))
		assert.Nil(t, got.StartedAt)
		assert.Nil(t, got.CompletedAt)
		assert.Nil(t, got.FinalCapital)
	})

	t.Run("first transition to running stamps started_at", func(t *testing.T) {
		require.NoError(t, store.UpdateRunStatus(ctx, run.ID, db.RunStatusRunning))

		got, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, db.RunStatusRunning, got.Status)
		require.NotNil(t, got.StartedAt)
		assert.WithinDuration(t, time.Now(), *got.StartedAt, time.Minute)

		// A second transition keeps the original timestamp
		first := *got.StartedAt
		require.NoError(t, store.UpdateRunStatus(ctx, run.ID, db.RunStatusRunning))
		got, err = store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.True(t, got.StartedAt.Equal(first))
	})

	t.Run("save result completes the run", func(t *testing.T) {
		summary := db.RunSummary{
			FinalCapital:      118.4,
			TotalReturn:       0.184,
			MaxDrawdown:       0.062,
			TotalCycles:       30,
			ProtectionEntries: 1,
			ProtectionExits:   1,
		}
		require.NoError(t, store.SaveResult(ctx, run.ID, json.RawMessage(`{"success": true}`), summary))

		got, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, db.RunStatusCompleted, got.Status)
		assert.JSONEq(t, `{"success": true}`, string(got.Result))
		require.NotNil(t, got.FinalCapital)
		assert.InDelta(t, 118.4, *got.FinalCapital, 1e-9)
		require.NotNil(t, got.TotalReturn)
		assert.InDelta(t, 0.184, *got.TotalReturn, 1e-9)
		require.NotNil(t, got.MaxDrawdown)
		assert.InDelta(t, 0.062, *got.MaxDrawdown, 1e-9)
		require.NotNil(t, got.TotalCycles)
		assert.Equal(t, 30, *got.TotalCycles)
		require.NotNil(t, got.ProtectionEntries)
		assert.Equal(t, 1, *got.ProtectionEntries)
		require.NotNil(t, got.CompletedAt)
	})

	t.Run("failed runs keep the reason", func(t *testing.T) {
		failed := &db.Run{Name: "doomed", Config: json.RawMessage(`{}`)}
		require.NoError(t, store.CreateRun(ctx, failed))
		require.NoError(t, store.FailRun(ctx, failed.ID, "all symbols rejected"))

		got, err := store.GetRun(ctx, failed.ID)
		require.NoError(t, err)
		assert.Equal(t, db.RunStatusFailed, got.Status)
		require.NotNil(t, got.Error)
		assert.Equal(t, "all symbols rejected", *got.Error)
		require.NotNil(t, got.CompletedAt)
	})

	t.Run("list orders newest first and paginates", func(t *testing.T) {
		runs, err := store.ListRuns(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "doomed", runs[0].Name)
		assert.Equal(t, "integration run", runs[1].Name)

		page, err := store.ListRuns(ctx, 1, 1)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "integration run", page[0].Name)
	})

	t.Run("delete removes the run", func(t *testing.T) {
		require.NoError(t, store.DeleteRun(ctx, run.ID))

		_, err := store.GetRun(ctx, run.ID)
		assert.ErrorIs(t, err, db.ErrRunNotFound)
	})

	t.Run("operations on unknown runs report not found", func(t *testing.T) {
		missing := uuid.New()
		assert.ErrorIs(t, store.UpdateRunStatus(ctx, missing, db.RunStatusRunning), db.ErrRunNotFound)
		assert.ErrorIs(t, store.FailRun(ctx, missing, "whatever"), db.ErrRunNotFound)
		assert.ErrorIs(t, store.DeleteRun(ctx, missing), db.ErrRunNotFound)
	})
}

// TestMigratorIntegration applies the real migration files twice and
// expects the second pass to be a no-op.
func TestMigratorIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	var count int
	err := tc.DB.Pool().QueryRow(context.Background(),
		"SELECT COUNT(*) FROM runs").Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count)
}
