package badger

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/marketsearch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRepository(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()
	ctx := context.Background()

	got, err := repos.Checkpoints.LoadCheckpoint(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	chk := &core.Checkpoint{JobID: "job-1", SourceKind: "product", Cursor: "41", Indexed: 41, State: core.JobRunning}
	require.NoError(t, repos.Checkpoints.SaveCheckpoint(ctx, chk))
	assert.False(t, chk.UpdatedAt.IsZero())

	got, err = repos.Checkpoints.LoadCheckpoint(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "41", got.Cursor)
	assert.Equal(t, core.JobRunning, got.State)

	require.NoError(t, repos.Checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{JobID: "job-2", SourceKind: "service"}))
	all, err := repos.Checkpoints.ListCheckpoints(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, repos.Checkpoints.DeleteCheckpoint(ctx, "job-1"))
	require.NoError(t, repos.Checkpoints.DeleteCheckpoint(ctx, "job-1"))
	got, err = repos.Checkpoints.LoadCheckpoint(ctx, "job-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueryLogRepository(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, q := range []string{"tomatoes", "onions", strings.Repeat("q", 600)} {
		require.NoError(t, repos.QueryLogs.AddQueryLog(ctx, &core.QueryLog{
			QueryText:    q,
			ResultsFound: i,
			Strategy:     core.StrategyKeyword,
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	logs, err := repos.QueryLogs.RecentQueryLogs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Len(t, logs[0].QueryText, core.MaxQueryTextLength)
	assert.Equal(t, "onions", logs[1].QueryText)
	assert.NotZero(t, logs[0].Id)

	logs, err = repos.QueryLogs.RecentQueryLogs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}

func TestOutboxRepository(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()
	ctx := context.Background()

	first, err := repos.Outbox.Enqueue(ctx, &core.Event{Op: core.EventIndex, SourceKind: "Product", SourceID: "1"})
	require.NoError(t, err)
	assert.NotZero(t, first.Id)
	assert.Equal(t, "product", first.SourceKind)

	second, err := repos.Outbox.Enqueue(ctx, &core.Event{Op: core.EventDeindex, SourceKind: "product", SourceID: "2"})
	require.NoError(t, err)

	pending, err := repos.Outbox.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.Id, pending[0].Id)

	require.NoError(t, repos.Outbox.Retry(ctx, second.Id, "provider down"))
	require.NoError(t, repos.Outbox.Ack(ctx, first.Id))

	pending, err = repos.Outbox.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "provider down", pending[0].LastError)

	assert.Error(t, repos.Outbox.Retry(ctx, first.Id, "gone"))
}
