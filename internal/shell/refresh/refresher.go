// Package refresh runs the background data refresh: pull orders from the
// fulfillment partners, keep only the out-of-stock ones, and reconcile the
// warehouse snapshot tables. Each run is journaled in the local store.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/trueclassic/oosflow/internal/core/orders"
	"github.com/trueclassic/oosflow/internal/shell/store"
)

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// OrderFetcher pulls the full raw order listing for one source.
type OrderFetcher interface {
	Orders(ctx context.Context) ([]map[string]any, error)
}

// OrderFetcherFunc adapts a function to OrderFetcher.
type OrderFetcherFunc func(ctx context.Context) ([]map[string]any, error)

func (f OrderFetcherFunc) Orders(ctx context.Context) ([]map[string]any, error) {
	return f(ctx)
}

// Syncer is the warehouse surface the refresher needs.
type Syncer interface {
	EnsureTables(ctx context.Context) error
	SyncRawOrders(ctx context.Context, source orders.Source, raws []map[string]any, ts time.Time) error
}

// =============================================================================
// Refresher
// =============================================================================

// ErrRefreshInProgress is returned when a trigger arrives while a refresh is
// already running.
var ErrRefreshInProgress = fmt.Errorf("refresh already in progress")

// Refresher coordinates refresh runs. Only one run executes at a time; extra
// triggers are rejected rather than queued.
type Refresher struct {
	fetchers map[orders.Source]OrderFetcher
	syncer   Syncer
	journal  store.Store
	logger   *slog.Logger

	running atomic.Bool
}

// NewRefresher creates a refresher. journal may be nil when no local store is
// configured.
func NewRefresher(fetchers map[orders.Source]OrderFetcher, syncer Syncer, journal store.Store, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		fetchers: fetchers,
		syncer:   syncer,
		journal:  journal,
		logger:   logger,
	}
}

// Running reports whether a refresh is currently executing.
func (r *Refresher) Running() bool {
	return r.running.Load()
}

// Trigger starts a refresh of the given sources in a new goroutine and
// returns its journal ID. ErrRefreshInProgress if a run is already active.
// An empty source list means every configured source.
func (r *Refresher) Trigger(trigger string, sources ...orders.Source) (string, error) {
	if !r.running.CompareAndSwap(false, true) {
		return "", ErrRefreshInProgress
	}

	if len(sources) == 0 {
		for src := range r.fetchers {
			sources = append(sources, src)
		}
	}

	jobID := uuid.New().String()
	r.journalStart(jobID, trigger, sources)

	go func() {
		defer r.running.Store(false)
		// Detached from the request that triggered it.
		r.run(context.Background(), jobID, sources)
	}()

	return jobID, nil
}

// run executes the refresh. Source failures are isolated: one partner being
// down must not block the other's sync.
func (r *Refresher) run(ctx context.Context, jobID string, sources []orders.Source) {
	r.logger.Info("refresh started", "job_id", jobID, "sources", sourceList(sources))

	if err := r.syncer.EnsureTables(ctx); err != nil {
		r.logger.Error("refresh aborted, table setup failed", "job_id", jobID, "error", err)
		r.journalFinish(jobID, store.JobStatusFailed, 0, err.Error())
		return
	}

	totalFound := 0
	var failures []string
	for _, src := range sources {
		found, err := r.refreshSource(ctx, src)
		if err != nil {
			r.logger.Error("source refresh failed", "job_id", jobID, "source", src, "error", err)
			failures = append(failures, fmt.Sprintf("%s: %v", src, err))
			continue
		}
		totalFound += found
	}

	status := store.JobStatusSucceeded
	switch {
	case len(failures) == len(sources):
		status = store.JobStatusFailed
	case len(failures) > 0:
		status = store.JobStatusPartial
	}
	r.journalFinish(jobID, status, totalFound, strings.Join(failures, "; "))
	r.logger.Info("refresh finished", "job_id", jobID, "status", status, "oos_orders", totalFound)
}

// refreshSource pulls one partner's orders, filters to OOS, and syncs.
// Returns the number of OOS orders found.
func (r *Refresher) refreshSource(ctx context.Context, src orders.Source) (int, error) {
	fetcher, ok := r.fetchers[src]
	if !ok {
		return 0, fmt.Errorf("no fetcher configured for source %q", src)
	}

	raws, err := fetcher.Orders(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching orders: %w", err)
	}
	r.logger.Info("fetched raw orders", "source", src, "orders", len(raws))

	oos := orders.FilterOOS(src, raws)
	r.logger.Info("filtered oos orders", "source", src, "oos_orders", len(oos))

	// Syncing an empty batch is deliberate: it resolves every open
	// exception for the source.
	if err := r.syncer.SyncRawOrders(ctx, src, oos, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("syncing warehouse: %w", err)
	}
	return len(oos), nil
}

// =============================================================================
// Journal Writes
// =============================================================================

func (r *Refresher) journalStart(jobID, trigger string, sources []orders.Source) {
	if r.journal == nil {
		return
	}
	err := r.journal.CreateJob(context.Background(), &store.RefreshJob{
		ID:      jobID,
		Trigger: trigger,
		Sources: sourceList(sources),
	})
	if err != nil {
		r.logger.Warn("journaling refresh start failed", "job_id", jobID, "error", err)
	}
}

func (r *Refresher) journalFinish(jobID string, status store.JobStatus, found int, errMsg string) {
	if r.journal == nil {
		return
	}
	if err := r.journal.FinishJob(context.Background(), jobID, status, found, errMsg); err != nil {
		r.logger.Warn("journaling refresh finish failed", "job_id", jobID, "error", err)
	}
}

func sourceList(sources []orders.Source) string {
	parts := make([]string, 0, len(sources))
	for _, s := range sources {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, ",")
}
