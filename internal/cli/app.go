// Package cli wires the offline-resilience components together behind a
// small interactive shell for field technicians.
package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wasteops/fieldsync/internal/common"
	"github.com/wasteops/fieldsync/internal/config"
	"github.com/wasteops/fieldsync/internal/connectivity"
	"github.com/wasteops/fieldsync/internal/kvstore"
	"github.com/wasteops/fieldsync/internal/logging"
	"github.com/wasteops/fieldsync/internal/offline"
	"github.com/wasteops/fieldsync/internal/syncqueue"
	"github.com/wasteops/fieldsync/internal/timetrack"
	"github.com/wasteops/fieldsync/internal/transport"
	"github.com/wasteops/fieldsync/internal/validation"

	_ "modernc.org/sqlite"
)

// App is the orchestrator: the only place that touches more than one of the
// offline-resilience stores. Every mutating command passes the offline
// compliance gate first.
type App struct {
	cfg     *config.Config
	log     logging.Logger
	db      *sql.DB
	watcher *connectivity.Watcher
	tracker *offline.Tracker
	queue   *syncqueue.Queue
	issues  *validation.Reconciler
	times   *timetrack.Tracker
	out     io.Writer

	mu         sync.Mutex
	wasSyncing bool
}

// NewApp opens the local database and constructs the full component stack
// against the real backend transport.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	db, err := kvstore.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	client := transport.NewClient(cfg.BackendURL, log)
	watcher := connectivity.NewWatcher(client, cfg.OnlineCheckInterval, log)

	app, err := newApp(ctx, cfg, log, kvstore.NewSQLiteKV(db), client, watcher)
	if err != nil {
		db.Close()
		return nil, err
	}
	app.db = db
	app.watcher = watcher
	return app, nil
}

// newApp is the seam used by tests: storage, transport, connectivity and the
// offline clock are injectable.
func newApp(ctx context.Context, cfg *config.Config, log logging.Logger, kv kvstore.KV, sender syncqueue.Sender, monitor connectivity.Monitor, offlineOpts ...offline.Option) (*App, error) {
	opts := append([]offline.Option{offline.WithThresholds(offline.Thresholds{
		Warning:  cfg.OfflineWarning,
		Orange:   cfg.OfflineOrange,
		Critical: cfg.OfflineCritical,
		Ceiling:  cfg.OfflineCeiling,
	})}, offlineOpts...)
	tracker, err := offline.NewTracker(ctx, kv, monitor, log, opts...)
	if err != nil {
		return nil, err
	}

	queue, err := syncqueue.NewQueue(ctx, kv, sender, monitor, log,
		syncqueue.WithBackoff(cfg.SyncBackoffBase, cfg.SyncBackoffCap))
	if err != nil {
		return nil, err
	}

	issues, err := validation.NewReconciler(ctx, kv, log)
	if err != nil {
		return nil, err
	}

	times, err := timetrack.NewTracker(ctx, kv, log)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		log:     log,
		tracker: tracker,
		queue:   queue,
		issues:  issues,
		times:   times,
		out:     os.Stdout,
	}
	queue.OnStatusChange(a.onQueueStatus)
	return a, nil
}

// onQueueStatus refreshes the last-sync timestamp once a drain that actually
// delivered something finishes with an empty queue.
func (a *App) onQueueStatus(s syncqueue.Status) {
	a.mu.Lock()
	switch {
	case s.State == syncqueue.StateSyncing:
		a.wasSyncing = true
		a.mu.Unlock()
	case s.State == syncqueue.StateSynced && a.wasSyncing:
		a.wasSyncing = false
		a.mu.Unlock()
		a.tracker.RecordSyncSuccess(context.Background())
	default:
		a.mu.Unlock()
	}
}

// Run starts the background loops and the interactive shell, and blocks
// until the shell exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if a.db != nil {
		defer a.db.Close()
	}

	g, ctx := errgroup.WithContext(ctx)
	if a.watcher != nil {
		g.Go(func() error { a.watcher.Run(ctx); return nil })
	}
	g.Go(func() error { a.queue.Run(ctx); return nil })
	g.Go(func() error { a.tracker.Run(ctx); return nil })

	a.Root(ctx)
	cancel()
	return g.Wait()
}

// guardMutation is the compliance gate: past the offline ceiling every
// mutating action is refused until connectivity returns.
func (a *App) guardMutation() error {
	if a.tracker.GetStatus().IsBlocked {
		return fmt.Errorf("%w: reconnect to continue working", common.ErrBlocked)
	}
	return nil
}

// Status prints connectivity, offline countdown and queue state.
func (a *App) Status(ctx context.Context) error {
	st := a.tracker.GetStatus()
	qs := a.queue.Status()

	if st.IsOnline {
		fmt.Fprintln(a.out, "connectivity: online")
	} else {
		fmt.Fprintf(a.out, "connectivity: offline for %s (level %s)\n",
			st.OfflineDuration.Round(time.Minute), st.WarningLevel)
	}
	if !st.LastSyncAt.IsZero() {
		fmt.Fprintf(a.out, "last sync: %s\n", st.LastSyncAt.Format(time.RFC3339))
	}
	fmt.Fprintf(a.out, "queue: %s (%d pending)\n", qs.State, qs.PendingCount)
	return nil
}

// AddContainer queues a container pickup for an order.
func (a *App) AddContainer(ctx context.Context, orderNumber, containerID string) error {
	if err := a.guardMutation(); err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]string{
		"order_number": orderNumber,
		"container_id": containerID,
	})
	if err != nil {
		return err
	}
	op := a.queue.Add(ctx, syncqueue.KindContainer, payload)
	fmt.Fprintf(a.out, "container %s queued for order %s (op %d)\n", containerID, orderNumber, op.ID)
	return nil
}

// AddMaterial queues a consumed material for an order.
func (a *App) AddMaterial(ctx context.Context, orderNumber, material string, kg float64) error {
	if err := a.guardMutation(); err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]any{
		"order_number": orderNumber,
		"material":     material,
		"kg":           kg,
	})
	if err != nil {
		return err
	}
	op := a.queue.Add(ctx, syncqueue.KindMaterial, payload)
	fmt.Fprintf(a.out, "material %s (%.1f kg) queued for order %s (op %d)\n", material, kg, orderNumber, op.ID)
	return nil
}

// Sign queues a customer signature for an order.
func (a *App) Sign(ctx context.Context, orderNumber, signer string) error {
	if err := a.guardMutation(); err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]string{
		"order_number": orderNumber,
		"signed_by":    signer,
	})
	if err != nil {
		return err
	}
	op := a.queue.Add(ctx, syncqueue.KindSignature, payload)
	fmt.Fprintf(a.out, "signature by %s queued for order %s (op %d)\n", signer, orderNumber, op.ID)
	return nil
}

// StartService begins (or resumes) working a service type on an order.
func (a *App) StartService(ctx context.Context, orderNumber, serviceTypeID string) error {
	if err := a.guardMutation(); err != nil {
		return err
	}
	if active, ok := a.times.ActiveEntry(orderNumber); ok && active.ServiceTypeID != serviceTypeID {
		return fmt.Errorf("service type %s is still running; stop it first", active.ServiceTypeID)
	}
	e, err := a.times.Start(ctx, orderNumber, serviceTypeID, a.cfg.Technician)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "started %s on order %s at %s\n",
		serviceTypeID, orderNumber, timetrack.FormatTime(*e.Start))
	return nil
}

// StopService ends the active service type on an order.
func (a *App) StopService(ctx context.Context, orderNumber, serviceTypeID string) error {
	if err := a.guardMutation(); err != nil {
		return err
	}
	e, err := a.times.End(ctx, orderNumber, serviceTypeID)
	if err != nil {
		return err
	}
	if m := e.DurationMinutes(); m != nil {
		fmt.Fprintf(a.out, "stopped %s on order %s after %s\n",
			serviceTypeID, orderNumber, timetrack.FormatDuration(*m))
	}
	return nil
}

// Adjust applies a manual "HH:MM" correction to a time entry. Validation
// errors are printed, not returned: they are user feedback.
func (a *App) Adjust(ctx context.Context, orderNumber, serviceTypeID, startStr, endStr string) error {
	if err := a.guardMutation(); err != nil {
		return err
	}

	entry, ok := a.times.Entry(orderNumber, serviceTypeID)
	if !ok {
		return fmt.Errorf("%w: no time entry for %s on order %s", common.ErrorNotFound, serviceTypeID, orderNumber)
	}
	ref := time.Now()
	if entry.Start != nil {
		ref = *entry.Start
	}

	patch := timetrack.Patch{}
	if startStr != "" {
		t, err := parseClock(startStr, ref)
		if err != nil {
			return err
		}
		patch.Start = &t
	}
	if endStr != "" {
		t, err := parseClock(endStr, ref)
		if err != nil {
			return err
		}
		patch.End = &t
	}

	e, res, err := a.times.Update(ctx, orderNumber, serviceTypeID, ref, patch)
	if err != nil {
		return err
	}
	if !res.Valid {
		for _, msg := range res.Errors {
			fmt.Fprintf(a.out, "rejected: %s\n", msg)
		}
		return nil
	}
	for _, msg := range res.Warnings {
		fmt.Fprintf(a.out, "warning: %s\n", msg)
	}
	if m := e.DurationMinutes(); m != nil {
		fmt.Fprintf(a.out, "entry %s now %s\n", serviceTypeID, timetrack.FormatDuration(*m))
	}
	return nil
}

// Entries lists the order's time entries and the total.
func (a *App) Entries(ctx context.Context, orderNumber string) error {
	entries := a.times.Entries(orderNumber)
	if len(entries) == 0 {
		fmt.Fprintf(a.out, "no time entries for order %s\n", orderNumber)
		return nil
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s: %s-", e.ServiceTypeID, timetrack.FormatTime(*e.Start))
		if e.End != nil {
			line += timetrack.FormatTime(*e.End)
			line += fmt.Sprintf(" (%s)", timetrack.FormatDuration(*e.DurationMinutes()))
		} else {
			line += " (running)"
		}
		fmt.Fprintln(a.out, line)
	}
	fmt.Fprintf(a.out, "total: %s\n", timetrack.FormatDuration(a.times.TotalDuration(orderNumber)))
	return nil
}

// Issues prints the merged (current plus persisted) issue set for an order.
func (a *App) Issues(ctx context.Context, orderNumber string) error {
	merged := a.issues.Merge(orderNumber, a.computeIssues(orderNumber))
	if len(merged) == 0 {
		fmt.Fprintf(a.out, "no open issues for order %s\n", orderNumber)
		return nil
	}
	for _, is := range merged {
		fmt.Fprintf(a.out, "[%s] %s (%s)\n", is.Severity, is.Message, is.Screen)
	}
	return nil
}

// Complete gates order completion on the reconciled issue set: errors block
// it outright, warnings require the acknowledged flag. On success the
// completion is queued and the order's local validation state is cleared.
func (a *App) Complete(ctx context.Context, orderNumber string, acknowledged bool) error {
	if err := a.guardMutation(); err != nil {
		return err
	}

	set, err := a.issues.Update(ctx, orderNumber, a.computeIssues(orderNumber))
	if err != nil {
		return err
	}
	if validation.HasBlocking(set) {
		for _, is := range set {
			if is.Severity == validation.SeverityError {
				fmt.Fprintf(a.out, "blocking: %s\n", is.Message)
			}
		}
		return fmt.Errorf("order %s cannot be completed with open errors", orderNumber)
	}
	if validation.NeedsAcknowledgment(set) && !acknowledged {
		for _, is := range set {
			fmt.Fprintf(a.out, "[%s] %s\n", is.Severity, is.Message)
		}
		return fmt.Errorf("order %s has warnings; repeat with 'ack' to acknowledge", orderNumber)
	}

	payload, err := json.Marshal(map[string]any{
		"order_number":  orderNumber,
		"total_minutes": a.times.TotalDuration(orderNumber),
		"completed_at":  time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	op := a.queue.Add(ctx, syncqueue.KindCompletion, payload)

	if err := a.issues.Clear(ctx, orderNumber); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "order %s completed (op %d)\n", orderNumber, op.ID)
	return nil
}

// Sync forces an immediate drain attempt.
func (a *App) Sync(ctx context.Context) error {
	if err := a.queue.ManualSync(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "sync complete")
	return nil
}

// computeIssues derives the fresh issue set for an order from live workflow
// state. The reconciler merges it with whatever was persisted earlier.
func (a *App) computeIssues(orderNumber string) []validation.Issue {
	var issues []validation.Issue
	if active, ok := a.times.ActiveEntry(orderNumber); ok {
		issues = append(issues, validation.Issue{
			ID:       "active-service-type",
			Message:  fmt.Sprintf("service type %s is still running", active.ServiceTypeID),
			Severity: validation.SeverityError,
			Screen:   "time",
		})
	} else if a.times.TotalDuration(orderNumber) == 0 {
		issues = append(issues, validation.Issue{
			ID:       "no-time-recorded",
			Message:  "no working time recorded",
			Severity: validation.SeverityWarning,
			Screen:   "time",
		})
	}
	return issues
}

// parseClock combines an "HH:MM" string with the reference day.
func parseClock(s string, ref time.Time) (time.Time, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour(), t.Minute(), 0, 0, ref.Location()), nil
}
