package refresh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trueclassic/oosflow/internal/core/orders"
	"github.com/trueclassic/oosflow/internal/shell/store"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeSyncer struct {
	mu         sync.Mutex
	ensureErr  error
	syncErr    map[orders.Source]error
	synced     map[orders.Source][]map[string]any
	ensureRuns int
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{
		syncErr: map[orders.Source]error{},
		synced:  map[orders.Source][]map[string]any{},
	}
}

func (f *fakeSyncer) EnsureTables(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureRuns++
	return f.ensureErr
}

func (f *fakeSyncer) SyncRawOrders(ctx context.Context, source orders.Source, raws []map[string]any, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.syncErr[source]; err != nil {
		return err
	}
	f.synced[source] = raws
	return nil
}

func (f *fakeSyncer) syncedOrders(source orders.Source) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.synced[source]
}

type fakeJournal struct {
	mu   sync.Mutex
	jobs map[string]*store.RefreshJob
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{jobs: map[string]*store.RefreshJob{}}
}

func (f *fakeJournal) CreateJob(ctx context.Context, job *store.RefreshJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *job
	if copied.Status == "" {
		copied.Status = store.JobStatusRunning
	}
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeJournal) FinishJob(ctx context.Context, id string, status store.JobStatus, found int, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	job.Status = status
	job.OrdersFound = found
	job.Error = errMsg
	return nil
}

func (f *fakeJournal) GetJob(ctx context.Context, id string) (*store.RefreshJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJournal) ListJobs(ctx context.Context, limit int) ([]store.RefreshJob, error) {
	return nil, nil
}

func (f *fakeJournal) Close() error { return nil }

// =============================================================================
// Helpers
// =============================================================================

func staticFetcher(raws []map[string]any, err error) OrderFetcher {
	return OrderFetcherFunc(func(ctx context.Context) ([]map[string]any, error) {
		return raws, err
	})
}

func oosStordOrder(orderNumber string) map[string]any {
	return map[string]any{
		"order_number": orderNumber,
		"sales_order_lines": []any{
			map[string]any{
				"status": "backordered",
				"order_line_items": []any{
					map[string]any{"item_sku": "SKU-1", "item_quantity": float64(1)},
				},
			},
		},
	}
}

func fulfilledStordOrder(orderNumber string) map[string]any {
	return map[string]any{
		"order_number": orderNumber,
		"sales_order_lines": []any{
			map[string]any{"status": "shipped"},
		},
	}
}

func newTestRefresher(fetchers map[orders.Source]OrderFetcher, syncer Syncer, journal store.Store) *Refresher {
	return NewRefresher(fetchers, syncer, journal, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func waitForIdle(t *testing.T, r *Refresher) {
	t.Helper()
	require.Eventually(t, func() bool { return !r.Running() }, 5*time.Second, 5*time.Millisecond)
}

// =============================================================================
// Tests
// =============================================================================

func TestTriggerFiltersAndSyncs(t *testing.T) {
	syncer := newFakeSyncer()
	journal := newFakeJournal()
	r := newTestRefresher(map[orders.Source]OrderFetcher{
		orders.SourceStord: staticFetcher([]map[string]any{
			oosStordOrder("TC-1"),
			fulfilledStordOrder("TC-2"),
			oosStordOrder("TC-3"),
		}, nil),
	}, syncer, journal)

	jobID, err := r.Trigger("manual", orders.SourceStord)
	require.NoError(t, err)
	waitForIdle(t, r)

	synced := syncer.syncedOrders(orders.SourceStord)
	require.Len(t, synced, 2)
	assert.Equal(t, "TC-1", synced[0]["order_number"])
	assert.Equal(t, "TC-3", synced[1]["order_number"])

	job, err := journal.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusSucceeded, job.Status)
	assert.Equal(t, 2, job.OrdersFound)
	assert.Equal(t, "manual", job.Trigger)
}

func TestTriggerRejectsConcurrentRuns(t *testing.T) {
	release := make(chan struct{})
	syncer := newFakeSyncer()
	r := newTestRefresher(map[orders.Source]OrderFetcher{
		orders.SourceStord: OrderFetcherFunc(func(ctx context.Context) ([]map[string]any, error) {
			<-release
			return nil, nil
		}),
	}, syncer, newFakeJournal())

	_, err := r.Trigger("manual", orders.SourceStord)
	require.NoError(t, err)

	_, err = r.Trigger("manual", orders.SourceStord)
	assert.ErrorIs(t, err, ErrRefreshInProgress)

	close(release)
	waitForIdle(t, r)

	// Once idle, triggers are accepted again.
	_, err = r.Trigger("manual", orders.SourceStord)
	assert.NoError(t, err)
	waitForIdle(t, r)
}

func TestSourceFailuresAreIsolated(t *testing.T) {
	syncer := newFakeSyncer()
	journal := newFakeJournal()
	r := newTestRefresher(map[orders.Source]OrderFetcher{
		orders.SourceStord:   staticFetcher(nil, errors.New("stord is down")),
		orders.SourceShipbob: staticFetcher(nil, nil),
	}, syncer, journal)

	jobID, err := r.Trigger("manual", orders.SourceStord, orders.SourceShipbob)
	require.NoError(t, err)
	waitForIdle(t, r)

	// ShipBob synced despite the Stord failure (empty batch resolves open
	// exceptions).
	assert.NotNil(t, syncer.synced)
	_, shipbobSynced := syncer.synced[orders.SourceShipbob]
	assert.True(t, shipbobSynced)

	job, err := journal.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusPartial, job.Status)
	assert.Contains(t, job.Error, "stord is down")
}

func TestAllSourcesFailing(t *testing.T) {
	journal := newFakeJournal()
	r := newTestRefresher(map[orders.Source]OrderFetcher{
		orders.SourceStord: staticFetcher(nil, errors.New("boom")),
	}, newFakeSyncer(), journal)

	jobID, err := r.Trigger("manual", orders.SourceStord)
	require.NoError(t, err)
	waitForIdle(t, r)

	job, err := journal.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusFailed, job.Status)
}

func TestEnsureTablesFailureAborts(t *testing.T) {
	syncer := newFakeSyncer()
	syncer.ensureErr = errors.New("dataset create denied")
	journal := newFakeJournal()
	r := newTestRefresher(map[orders.Source]OrderFetcher{
		orders.SourceStord: staticFetcher([]map[string]any{oosStordOrder("TC-1")}, nil),
	}, syncer, journal)

	jobID, err := r.Trigger("manual", orders.SourceStord)
	require.NoError(t, err)
	waitForIdle(t, r)

	assert.Empty(t, syncer.syncedOrders(orders.SourceStord))

	job, err := journal.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "dataset create denied")
}

func TestTriggerDefaultsToAllSources(t *testing.T) {
	syncer := newFakeSyncer()
	r := newTestRefresher(map[orders.Source]OrderFetcher{
		orders.SourceStord:   staticFetcher(nil, nil),
		orders.SourceShipbob: staticFetcher(nil, nil),
	}, syncer, newFakeJournal())

	_, err := r.Trigger("scheduled")
	require.NoError(t, err)
	waitForIdle(t, r)

	syncer.mu.Lock()
	defer syncer.mu.Unlock()
	assert.Len(t, syncer.synced, 2)
}

func TestRefresherWithoutJournal(t *testing.T) {
	syncer := newFakeSyncer()
	r := newTestRefresher(map[orders.Source]OrderFetcher{
		orders.SourceStord: staticFetcher(nil, nil),
	}, syncer, nil)

	_, err := r.Trigger("manual", orders.SourceStord)
	require.NoError(t, err)
	waitForIdle(t, r)
}
