package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRunStore()
	require.NoError(t, store.CreateRun(ctx, scraper.Run{ID: "run-1", Queries: []string{"Engineer", "Sales"}}))
	require.Error(t, store.CreateRun(ctx, scraper.Run{ID: "run-1"}))

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, scraper.RunStatusQueued, run.Status)
	require.False(t, run.CreatedAt.IsZero())

	require.NoError(t, store.MarkRunning(ctx, "run-1"))
	require.NoError(t, store.AppendJob(ctx, "run-1", scraper.JobRecord{JobID: "1", Title: "Go Engineer"}))
	require.NoError(t, store.AppendJob(ctx, "run-1", scraper.JobRecord{JobID: "2", Title: "Account Executive"}))
	require.NoError(t, store.RecordMetrics(ctx, "run-1", scraper.Metrics{Processed: 2, Failed: 1}))
	require.NoError(t, store.RecordError(ctx, "run-1"))
	require.NoError(t, store.FinishRun(ctx, "run-1", scraper.RunStatusSucceeded, ""))
	require.NoError(t, store.FinishRun(ctx, "run-1", scraper.RunStatusFailed, "late"))

	run, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, scraper.RunStatusSucceeded, run.Status)
	require.Empty(t, run.ErrorText)
	require.Equal(t, 2, run.Jobs)
	require.Equal(t, 1, run.Errors)
	require.Equal(t, 2, run.Metrics.Processed)
	require.NotNil(t, run.StartedAt)
	require.NotNil(t, run.FinishedAt)

	jobs, err := store.ListJobs(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, "1", jobs[0].JobID)
}

func TestRunStoreUnknownRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRunStore()
	_, err := store.GetRun(ctx, "nope")
	require.ErrorIs(t, err, scraper.ErrRunNotFound)
	_, err = store.ListJobs(ctx, "nope")
	require.ErrorIs(t, err, scraper.ErrRunNotFound)
	require.ErrorIs(t, store.AppendJob(ctx, "nope", scraper.JobRecord{}), scraper.ErrRunNotFound)
	require.ErrorIs(t, store.MarkRunning(ctx, "nope"), scraper.ErrRunNotFound)
	require.Error(t, store.FinishRun(ctx, "nope", scraper.RunStatusRunning, ""))
}
