package index_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/marketsearch/ai"
	"github.com/poiesic/marketsearch/ai/mock"
	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/index"
	"github.com/poiesic/marketsearch/index/indextest"
	"github.com/poiesic/marketsearch/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyRepository fails the first n upserts.
type flakyRepository struct {
	storage.IndexRepository
	failures atomic.Int32
}

func (r *flakyRepository) Upsert(ctx context.Context, entry *core.IndexEntry) (*core.IndexEntry, error) {
	if r.failures.Add(-1) >= 0 {
		return nil, errors.New("transient write failure")
	}
	return r.IndexRepository.Upsert(ctx, entry)
}

// recordingOutbox keeps a copy of every enqueued event.
type recordingOutbox struct {
	storage.OutboxRepository
	mu     sync.Mutex
	events []core.Event
}

func (o *recordingOutbox) Enqueue(ctx context.Context, event *core.Event) (*core.Event, error) {
	o.mu.Lock()
	o.events = append(o.events, *event)
	o.mu.Unlock()
	return o.OutboxRepository.Enqueue(ctx, event)
}

func (o *recordingOutbox) enqueued() []core.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.events)
}

func newDispatcher(t *testing.T, ix *index.Indexer, outbox storage.OutboxRepository, opts ...index.DispatcherOption) *index.Dispatcher {
	t.Helper()
	opts = append([]index.DispatcherOption{index.WithPoolSize(2), index.WithRetryPolicy(3, time.Millisecond)}, opts...)
	d, err := index.NewDispatcher(ix, outbox, opts...)
	require.NoError(t, err)
	t.Cleanup(d.Release)
	return d
}

func TestNewDispatcher_RequiresDependencies(t *testing.T) {
	ix, repos := setup(t, mock.NewMockEmbedder(4))

	_, err := index.NewDispatcher(nil, repos.Outbox)
	assert.ErrorIs(t, err, index.ErrRepositoryRequired)
	_, err = index.NewDispatcher(ix, nil)
	assert.ErrorIs(t, err, index.ErrOutboxRequired)
	_, err = index.NewDispatcher(ix, repos.Outbox, index.WithRetryPolicy(0, time.Second))
	assert.ErrorIs(t, err, index.ErrInvalidMaxAttempts)
}

func TestDispatcher_AppliesEventsAsynchronously(t *testing.T) {
	ix, repos := setup(t, mock.NewMockEmbedder(4))
	ctx := context.Background()
	source := indextest.NewSource()
	require.NoError(t, ix.Registry().Register("product", source))
	d := newDispatcher(t, ix, repos.Outbox)

	entity := product("1", "Widget")
	source.Put(entity)
	require.NoError(t, d.OnCreate(ctx, entity))
	d.Wait()

	got, err := repos.Index.GetBySource(ctx, "product", "1")
	require.NoError(t, err)
	assert.Equal(t, "Widget", got.Title)

	updated := product("1", "Blue Widget")
	source.Put(updated)
	require.NoError(t, d.OnUpdate(ctx, updated))
	d.Wait()

	got, err = repos.Index.GetBySource(ctx, "product", "1")
	require.NoError(t, err)
	assert.Equal(t, "Blue Widget", got.Title)

	source.Remove("1")
	require.NoError(t, d.OnDelete(ctx, updated))
	d.Wait()

	_, err = repos.Index.GetBySource(ctx, "product", "1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	pending, err := repos.Outbox.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatcher_IndexesLatestSourceState(t *testing.T) {
	ix, repos := setup(t, mock.NewMockEmbedder(4))
	ctx := context.Background()
	source := indextest.NewSource(product("1", "Current title"))
	require.NoError(t, ix.Registry().Register("product", source))
	d := newDispatcher(t, ix, repos.Outbox)

	require.NoError(t, d.OnUpdate(ctx, product("1", "Stale title")))
	d.Wait()

	got, err := repos.Index.GetBySource(ctx, "product", "1")
	require.NoError(t, err)
	assert.Equal(t, "Current title", got.Title)
}

func TestDispatcher_DeletedSourceIsDeindexed(t *testing.T) {
	ix, repos := setup(t, mock.NewMockEmbedder(4))
	ctx := context.Background()
	require.NoError(t, ix.Registry().Register("product", indextest.NewSource()))
	_, err := repos.Index.Upsert(ctx, &core.IndexEntry{SourceKind: "product", SourceID: "1", Title: "Old"})
	require.NoError(t, err)
	d := newDispatcher(t, ix, repos.Outbox)

	require.NoError(t, d.OnUpdate(ctx, product("1", "Old")))
	d.Wait()

	_, err = repos.Index.GetBySource(ctx, "product", "1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDispatcher_UnregisteredKindUsesCallerEntity(t *testing.T) {
	ix, repos := setup(t, mock.NewMockEmbedder(4))
	ctx := context.Background()
	d := newDispatcher(t, ix, repos.Outbox)

	require.NoError(t, d.OnCreate(ctx, &indextest.Entity{Kind: "service", ID: "9", Title: "Delivery"}))
	d.Wait()

	got, err := repos.Index.GetBySource(ctx, "service", "9")
	require.NoError(t, err)
	assert.Equal(t, "Delivery", got.Title)
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	_, repos := setup(t, mock.NewMockEmbedder(4))
	flaky := &flakyRepository{IndexRepository: repos.Index}
	flaky.failures.Store(2)
	ix, err := index.NewIndexer(flaky, mock.NewMockProvider(4))
	require.NoError(t, err)
	d := newDispatcher(t, ix, repos.Outbox)
	ctx := context.Background()

	require.NoError(t, d.OnCreate(ctx, product("1", "Widget")))
	d.Wait()

	_, err = repos.Index.GetBySource(ctx, "product", "1")
	require.NoError(t, err)
	pending, err := repos.Outbox.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatcher_ExhaustedEventsStayInOutboxForReplay(t *testing.T) {
	_, repos := setup(t, mock.NewMockEmbedder(4))
	flaky := &flakyRepository{IndexRepository: repos.Index}
	flaky.failures.Store(3)
	ix, err := index.NewIndexer(flaky, mock.NewMockProvider(4))
	require.NoError(t, err)
	d := newDispatcher(t, ix, repos.Outbox)
	ctx := context.Background()

	require.NoError(t, d.OnCreate(ctx, product("1", "Widget")))
	d.Wait()

	pending, err := repos.Outbox.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Contains(t, pending[0].LastError, "transient write failure")

	submitted, err := d.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, submitted)
	d.Wait()

	_, err = repos.Index.GetBySource(ctx, "product", "1")
	require.NoError(t, err)
	pending, err = repos.Outbox.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatcher_ReplayAfterRestart(t *testing.T) {
	ix, repos := setup(t, mock.NewMockEmbedder(4))
	ctx := context.Background()
	require.NoError(t, ix.Registry().Register("product", indextest.NewSource(product("1", "Widget"), product("2", "Gadget"))))

	for _, id := range []string{"1", "2"} {
		_, err := repos.Outbox.Enqueue(ctx, &core.Event{Op: core.EventIndex, SourceKind: "product", SourceID: id})
		require.NoError(t, err)
	}

	d := newDispatcher(t, ix, repos.Outbox)
	submitted, err := d.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, submitted)
	d.Wait()

	count, err := repos.Index.Count(ctx, "product")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDispatcher_ReplayUsesPayloadForUnregisteredKind(t *testing.T) {
	ix, repos := setup(t, mock.NewMockEmbedder(4))
	ctx := context.Background()

	entity := &indextest.Entity{Kind: "service", ID: "7", Title: "Delivery", Metadata: map[string]any{"price": 20.0}}
	doc, err := entity.ToSearchDocument()
	require.NoError(t, err)
	payload, err := core.EncodeDocument(doc)
	require.NoError(t, err)
	_, err = repos.Outbox.Enqueue(ctx, &core.Event{Op: core.EventIndex, SourceKind: "service", SourceID: "7", Payload: payload})
	require.NoError(t, err)
	_, err = repos.Outbox.Enqueue(ctx, &core.Event{Op: core.EventIndex, SourceKind: "service", SourceID: "8"})
	require.NoError(t, err)

	d := newDispatcher(t, ix, repos.Outbox)
	submitted, err := d.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, submitted)
	d.Wait()

	got, err := repos.Index.GetBySource(ctx, "service", "7")
	require.NoError(t, err)
	assert.Equal(t, "Delivery", got.Title)
	assert.Equal(t, 20.0, got.Metadata["price"])

	_, err = repos.Index.GetBySource(ctx, "service", "8")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	pending, err := repos.Outbox.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatcher_EnqueueCapturesPayload(t *testing.T) {
	ix, repos := setup(t, mock.NewMockEmbedder(4))
	outbox := &recordingOutbox{OutboxRepository: repos.Outbox}
	d := newDispatcher(t, ix, outbox)
	ctx := context.Background()

	require.NoError(t, d.OnCreate(ctx, &indextest.Entity{Kind: "service", ID: "3", Title: "Repair"}))
	require.NoError(t, d.OnDelete(ctx, &indextest.Entity{Kind: "service", ID: "4"}))
	d.Wait()

	events := outbox.enqueued()
	require.Len(t, events, 2)
	doc, err := core.DecodeDocument(events[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "Repair", doc.Title)
	assert.Nil(t, events[1].Payload)
}

func TestDispatcher_InvalidEntityIsDropped(t *testing.T) {
	ix, repos := setup(t, mock.NewMockEmbedder(4))
	ctx := context.Background()
	d := newDispatcher(t, ix, repos.Outbox)

	assert.ErrorIs(t, d.OnCreate(ctx, nil), core.ErrInvalidEntity)
	assert.ErrorIs(t, d.OnCreate(ctx, &indextest.Entity{Kind: "product"}), core.ErrInvalidEntity)

	require.NoError(t, d.OnCreate(ctx, &indextest.Entity{Kind: "service", ID: "1", Err: errors.New("broken")}))
	d.Wait()

	pending, err := repos.Outbox.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending, "events that can never succeed are not retried forever")
}

func TestDispatcher_ReleasedRejectsEvents(t *testing.T) {
	ix, repos := setup(t, mock.NewMockEmbedder(4))
	d, err := index.NewDispatcher(ix, repos.Outbox)
	require.NoError(t, err)
	d.Release()

	err = d.OnCreate(context.Background(), product("1", "Widget"))
	assert.ErrorIs(t, err, index.ErrDispatcherClosed)
}

func TestSyncHooks(t *testing.T) {
	embedder := mock.NewMockEmbedder(4).WithEmbedTextFunc(func(ctx context.Context, text string, task ai.TaskType) ([]float32, error) {
		assert.Equal(t, ai.TaskDocument, task)
		return []float32{1, 0, 0, 0}, nil
	})
	ix, repos := setup(t, embedder)
	hooks := index.NewSyncHooks(ix)
	ctx := context.Background()

	entity := product("1", "Widget")
	require.NoError(t, hooks.OnCreate(ctx, entity))
	entity.Title = "Blue Widget"
	require.NoError(t, hooks.OnUpdate(ctx, entity))

	got, err := repos.Index.GetBySource(ctx, "product", "1")
	require.NoError(t, err)
	assert.Equal(t, "Blue Widget", got.Title)
	assert.Equal(t, []float32{1, 0, 0, 0}, got.Embedding)

	require.NoError(t, hooks.OnDelete(ctx, entity))
	require.NoError(t, hooks.OnDelete(ctx, entity))
	_, err = repos.Index.GetBySource(ctx, "product", "1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
