package rebuild_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/marketsearch/ai"
	"github.com/poiesic/marketsearch/ai/mock"
	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/index"
	"github.com/poiesic/marketsearch/index/indextest"
	"github.com/poiesic/marketsearch/rebuild"
	"github.com/poiesic/marketsearch/storage"
	"github.com/poiesic/marketsearch/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repos   *storage.Repositories
	indexer *index.Indexer
	source  *indextest.Source
}

func newFixture(t *testing.T, embedder *mock.MockEmbedder, n int) *fixture {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	ix, err := index.NewIndexer(repos.Index, mock.NewMockProviderWithEmbedder(embedder))
	require.NoError(t, err)

	source := indextest.NewSource()
	for i := 1; i <= n; i++ {
		source.Put(&indextest.Entity{Kind: "product", ID: fmt.Sprint(i), Title: fmt.Sprintf("Product %d", i)})
	}
	require.NoError(t, ix.Registry().Register("product", source))
	return &fixture{repos: repos, indexer: ix, source: source}
}

func (f *fixture) manager(t *testing.T, opts ...rebuild.Option) *rebuild.Manager {
	t.Helper()
	config := &rebuild.Config{BatchSize: 2, ReportInterval: 1, MaxRetries: 2, RetryDelay: time.Millisecond, PoolSize: 2}
	opts = append([]rebuild.Option{rebuild.WithConfig(config)}, opts...)
	m, err := rebuild.NewManager(f.indexer, f.repos.Checkpoints, opts...)
	require.NoError(t, err)
	t.Cleanup(m.Release)
	return m
}

func TestNewManager_RequiresDependencies(t *testing.T) {
	f := newFixture(t, mock.NewMockEmbedder(4), 0)

	_, err := rebuild.NewManager(nil, f.repos.Checkpoints)
	assert.ErrorIs(t, err, rebuild.ErrIndexerRequired)
	_, err = rebuild.NewManager(f.indexer, nil)
	assert.ErrorIs(t, err, rebuild.ErrCheckpointsRequired)
	_, err = rebuild.NewManager(f.indexer, f.repos.Checkpoints, rebuild.WithConfig(&rebuild.Config{BatchSize: 0}))
	assert.Error(t, err)
}

func TestManager_StartCompletesAndSweeps(t *testing.T) {
	f := newFixture(t, mock.NewMockEmbedder(4), 5)
	f.source.Put(&indextest.Entity{Kind: "product", ID: "6", Err: errors.New("broken")})
	ctx := context.Background()

	_, err := f.repos.Index.Upsert(ctx, &core.IndexEntry{SourceKind: "product", SourceID: "gone", Title: "Deleted product"})
	require.NoError(t, err)
	_, err = f.repos.Index.Upsert(ctx, &core.IndexEntry{SourceKind: "service", SourceID: "1", Title: "Delivery"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	m := f.manager(t)
	started, err := m.Start(ctx, "Product")
	require.NoError(t, err)
	assert.NotEmpty(t, started.JobID)
	assert.Equal(t, "product", started.SourceKind)
	m.Wait()

	status, err := m.Status(ctx, started.JobID)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, status.State)
	assert.Equal(t, 5, status.Indexed)
	assert.Equal(t, 1, status.Skipped)
	assert.Equal(t, "6", status.Cursor)

	_, err = f.repos.Index.GetBySource(ctx, "product", "gone")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.repos.Index.GetBySource(ctx, "service", "1")
	assert.NoError(t, err, "other kinds are untouched")

	count, err := f.repos.Index.Count(ctx, "product")
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	jobs, err := m.Jobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestManager_UnknownKind(t *testing.T) {
	f := newFixture(t, mock.NewMockEmbedder(4), 0)
	_, err := f.manager(t).Start(context.Background(), "vehicle")
	assert.ErrorIs(t, err, index.ErrUnknownKind)
}

func TestManager_RejectsConcurrentRebuildOfKind(t *testing.T) {
	f := newFixture(t, mock.NewMockEmbedder(4), 1)
	m := f.manager(t)

	unlock := f.indexer.Locks().Lock("product")
	_, err := m.Start(context.Background(), "product")
	assert.ErrorIs(t, err, rebuild.ErrRebuildInProgress)
	unlock()

	_, err = m.Start(context.Background(), "product")
	assert.NoError(t, err)
}

func TestManager_CancelAndResume(t *testing.T) {
	var calls atomic.Int32
	var block atomic.Bool
	block.Store(true)
	reached := make(chan struct{})
	embedder := mock.NewMockEmbedder(4).WithEmbedTextFunc(func(ctx context.Context, text string, task ai.TaskType) ([]float32, error) {
		if calls.Add(1) == 3 && block.Load() {
			close(reached)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []float32{1, 0, 0, 0}, nil
	})
	f := newFixture(t, embedder, 5)
	m := f.manager(t)
	ctx := context.Background()

	started, err := m.Start(ctx, "product")
	require.NoError(t, err)
	<-reached
	require.NoError(t, m.Cancel(ctx, started.JobID))

	status, err := m.Status(ctx, started.JobID)
	require.NoError(t, err)
	assert.Equal(t, core.JobCancelled, status.State)
	assert.Equal(t, 2, status.Indexed)
	assert.Equal(t, "2", status.Cursor)

	block.Store(false)
	_, err = m.Resume(ctx, started.JobID)
	require.NoError(t, err)
	m.Wait()

	status, err = m.Status(ctx, started.JobID)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, status.State)
	assert.Equal(t, 5, status.Indexed)

	count, err := f.repos.Index.Count(ctx, "product")
	require.NoError(t, err)
	assert.Equal(t, 5, count, "entries indexed before the cancel survive the sweep")

	_, err = m.Resume(ctx, started.JobID)
	assert.ErrorIs(t, err, rebuild.ErrJobFinished)
	assert.ErrorIs(t, m.Cancel(ctx, started.JobID), rebuild.ErrJobFinished)
}

func TestManager_FailedJobCanBeResumed(t *testing.T) {
	f := newFixture(t, mock.NewMockEmbedder(4), 3)
	f.source.SetListErr(errors.New("db down"))
	m := f.manager(t)
	ctx := context.Background()

	started, err := m.Start(ctx, "product")
	require.NoError(t, err)
	m.Wait()

	status, err := m.Status(ctx, started.JobID)
	require.NoError(t, err)
	assert.Equal(t, core.JobFailed, status.State)
	assert.Contains(t, status.Error, "db down")
	assert.Equal(t, 2, f.source.ListCalls(), "page fetches are retried")

	f.source.SetListErr(nil)
	_, err = m.Resume(ctx, started.JobID)
	require.NoError(t, err)
	m.Wait()

	status, err = m.Status(ctx, started.JobID)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, status.State)
	assert.Empty(t, status.Error)
	assert.Equal(t, 3, status.Indexed)
}

func TestManager_PurgeFirst(t *testing.T) {
	f := newFixture(t, mock.NewMockEmbedder(4), 1)
	m := f.manager(t)
	ctx := context.Background()

	original, err := f.indexer.IndexKey(ctx, "product", "1")
	require.NoError(t, err)

	_, err = m.Run(ctx, "product")
	require.NoError(t, err)
	swept, err := f.repos.Index.GetBySource(ctx, "product", "1")
	require.NoError(t, err)
	assert.Equal(t, original.Id, swept.Id, "a sweeping rebuild updates entries in place")

	_, err = m.Run(ctx, "product", rebuild.PurgeFirst())
	require.NoError(t, err)
	purged, err := f.repos.Index.GetBySource(ctx, "product", "1")
	require.NoError(t, err)
	assert.NotEqual(t, original.Id, purged.Id, "a purging rebuild recreates entries")
}

func TestManager_RunReportsProgress(t *testing.T) {
	f := newFixture(t, mock.NewMockEmbedder(4), 3)
	var buf bytes.Buffer
	m := f.manager(t, rebuild.WithProgress(&buf))

	cp, err := m.Run(context.Background(), "product")
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, cp.State)
	assert.Contains(t, buf.String(), "3 indexed")
}

func TestManager_RunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	embedder := mock.NewMockEmbedder(4).WithEmbedTextFunc(func(context.Context, string, ai.TaskType) ([]float32, error) {
		cancel()
		return []float32{1, 0, 0, 0}, nil
	})
	f := newFixture(t, embedder, 4)

	cp, err := f.manager(t).Run(ctx, "product")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, core.JobCancelled, cp.State)
	assert.Less(t, cp.Indexed, 4)
}

func TestManager_StatusUnknownJob(t *testing.T) {
	f := newFixture(t, mock.NewMockEmbedder(4), 0)
	m := f.manager(t)

	_, err := m.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, rebuild.ErrJobNotFound)
	assert.ErrorIs(t, m.Cancel(context.Background(), "missing"), rebuild.ErrJobNotFound)
	_, err = m.Resume(context.Background(), "missing")
	assert.ErrorIs(t, err, rebuild.ErrJobNotFound)
}

func TestManager_ReleasedRejectsJobs(t *testing.T) {
	f := newFixture(t, mock.NewMockEmbedder(4), 1)
	m := f.manager(t)
	m.Release()

	_, err := m.Start(context.Background(), "product")
	assert.ErrorIs(t, err, rebuild.ErrManagerClosed)
}
