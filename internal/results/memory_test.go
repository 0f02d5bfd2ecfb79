package results

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scrapekit/scrapper/internal/scrape"
)

func TestMemoryRunLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemory()
	now := time.Unix(1700000000, 0).UTC()

	run := scrape.Run{
		ID:        "run-1",
		ProjectID: "proj-1",
		Status:    scrape.RunStatusQueued,
		Trigger:   scrape.TriggerManual,
		Submitted: now,
	}
	require.NoError(t, store.CreateRun(ctx, run))
	require.ErrorIs(t, store.CreateRun(ctx, run), scrape.ErrAlreadyExists)

	require.NoError(t, store.UpdateRunStatus(ctx, "run-1", scrape.RunStatusRunning, "", scrape.RunCounters{}))
	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, scrape.RunStatusRunning, got.Status)
	require.NotNil(t, got.Started)
	require.Nil(t, got.Finished)

	counters := scrape.RunCounters{PagesFetched: 2, RecordsNew: 5}
	require.NoError(t, store.UpdateRunStatus(ctx, "run-1", scrape.RunStatusSucceeded, "", counters))
	got, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, counters, got.Counters)
	require.NotNil(t, got.Finished)

	require.ErrorIs(t, store.UpdateRunStatus(ctx, "missing", scrape.RunStatusFailed, "x", scrape.RunCounters{}), scrape.ErrNotFound)
	_, err = store.GetRun(ctx, "missing")
	require.ErrorIs(t, err, scrape.ErrNotFound)
}

func TestMemoryListAndLatestRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemory()
	base := time.Unix(1700000000, 0).UTC()

	for i := 0; i < 3; i++ {
		run := scrape.Run{
			ID:        fmt.Sprintf("run-%d", i),
			ProjectID: "proj-1",
			Status:    scrape.RunStatusQueued,
			Submitted: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.CreateRun(ctx, run))
	}
	require.NoError(t, store.CreateRun(ctx, scrape.Run{
		ID: "other", ProjectID: "proj-2", Submitted: base.Add(time.Hour),
	}))

	runs, err := store.ListRuns(ctx, "proj-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	require.Equal(t, "run-2", runs[0].ID)

	runs, err = store.ListRuns(ctx, "proj-1", 2, 1)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-1", runs[0].ID)

	runs, err = store.ListRuns(ctx, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, runs, 4)

	latest, err := store.LatestRun(ctx, "proj-1")
	require.NoError(t, err)
	require.Equal(t, "run-2", latest.ID)

	_, err = store.LatestRun(ctx, "proj-9")
	require.ErrorIs(t, err, scrape.ErrNotFound)
}

func TestMemoryListWithoutLimitReturnsEverything(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemory()
	base := time.Unix(1700000000, 0).UTC()

	for i := 0; i < 60; i++ {
		require.NoError(t, store.CreateRun(ctx, scrape.Run{
			ID:        fmt.Sprintf("run-%03d", i),
			ProjectID: "proj-1",
			Submitted: base.Add(time.Duration(i) * time.Second),
		}))
	}
	for i := 0; i < 120; i++ {
		inserted, err := store.InsertRecord(ctx, scrape.Record{
			ID:          fmt.Sprintf("rec-%03d", i),
			ProjectID:   "proj-1",
			DedupKey:    fmt.Sprintf("key-%03d", i),
			ExtractedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
		require.True(t, inserted)
	}

	runs, err := store.ListRuns(ctx, "proj-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, runs, 60)

	records, err := store.ListRecords(ctx, "proj-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 120)

	records, err = store.ListRecords(ctx, "proj-1", 0, 100)
	require.NoError(t, err)
	require.Len(t, records, 20)
}

func TestMemoryRecordDedup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemory()
	now := time.Unix(1700000000, 0).UTC()

	record := scrape.Record{
		ID:          "rec-1",
		ProjectID:   "proj-1",
		DedupKey:    "key-1",
		Fields:      map[string]string{"project_name": "Sunrise Towers"},
		ExtractedAt: now,
	}
	inserted, err := store.InsertRecord(ctx, record)
	require.NoError(t, err)
	require.True(t, inserted)

	// Same key again, even from another run, is a duplicate.
	record.ID = "rec-2"
	record.RunID = "run-2"
	inserted, err = store.InsertRecord(ctx, record)
	require.NoError(t, err)
	require.False(t, inserted)

	// Same key under another project is independent.
	record.ProjectID = "proj-2"
	inserted, err = store.InsertRecord(ctx, record)
	require.NoError(t, err)
	require.True(t, inserted)

	count, err := store.CountRecords(ctx, "proj-1")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	records, err := store.ListRecords(ctx, "proj-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "rec-1", records[0].ID)
}

func TestMemoryRecordFetch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemory()
	fetch := scrape.FetchResult{RunID: "run-1", URL: "https://example.com"}

	require.NoError(t, store.RecordFetch(ctx, fetch))
	fetches := store.Fetches()
	require.Len(t, fetches, 1)
	require.Equal(t, "run-1", fetches[0].RunID)
}
