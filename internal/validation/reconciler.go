package validation

import (
	"context"

	"github.com/wasteops/fieldsync/internal/kvstore"
	"github.com/wasteops/fieldsync/internal/logging"
)

const storagePrefix = "validation_issues/"

// Reconciler stores the last-known issue set per order and reconciles it
// with freshly computed sets.
//
// The contract is deliberately two-phase: Merge only unions for display and
// never writes, while Update is the single call that prunes. A persisted
// issue disappears exclusively when an Update arrives whose current set no
// longer contains its id, which means a recomputation gap right after a
// restart cannot silently drop a real unresolved issue.
type Reconciler struct {
	store *kvstore.Keyed[[]Issue]
	log   logging.Logger
}

// NewReconciler loads every persisted issue set into the in-memory cache so
// reads never block on storage.
func NewReconciler(ctx context.Context, kv kvstore.KV, log logging.Logger) (*Reconciler, error) {
	store := kvstore.NewKeyed[[]Issue](kv, storagePrefix)
	if err := store.Load(ctx); err != nil {
		return nil, err
	}
	return &Reconciler{store: store, log: log}, nil
}

// PersistedIssues returns the last persisted set for an order. Never nil.
func (r *Reconciler) PersistedIssues(orderNumber string) []Issue {
	persisted, _ := r.store.Get(orderNumber)
	return append([]Issue(nil), persisted...)
}

// Merge returns the externally visible set for an order: the fresh current
// issues plus every persisted issue whose id the current set does not carry.
// It does not write; call Update to persist and prune.
func (r *Reconciler) Merge(orderNumber string, current []Issue) []Issue {
	merged := dedupe(current)
	seen := make(map[string]struct{}, len(merged))
	for _, is := range merged {
		seen[is.ID] = struct{}{}
	}
	for _, is := range r.PersistedIssues(orderNumber) {
		if _, ok := seen[is.ID]; !ok {
			merged = append(merged, is)
		}
	}
	return merged
}

// Update replaces the persisted set for an order with the deduplicated
// current set and returns it. Persisted issues absent from current are
// pruned here and nowhere else: the caller confirms their resolution by
// recomputing without them.
func (r *Reconciler) Update(ctx context.Context, orderNumber string, current []Issue) ([]Issue, error) {
	next, err := r.store.Mutate(ctx, orderNumber, func([]Issue) ([]Issue, error) {
		return dedupe(current), nil
	})
	if err != nil {
		return nil, err
	}
	r.log.Debug(ctx, "validation issues updated", "order", orderNumber, "count", len(next))
	return next, nil
}

// Clear wipes all persisted issues for an order. Called on completion or
// cancellation.
func (r *Reconciler) Clear(ctx context.Context, orderNumber string) error {
	if err := r.store.Delete(ctx, orderNumber); err != nil {
		return err
	}
	r.log.Debug(ctx, "validation issues cleared", "order", orderNumber)
	return nil
}

// Orders returns every order number with a persisted issue set.
func (r *Reconciler) Orders() []string {
	return r.store.Keys()
}

// dedupe keeps the first occurrence of each id, preserving order.
func dedupe(issues []Issue) []Issue {
	out := make([]Issue, 0, len(issues))
	seen := make(map[string]struct{}, len(issues))
	for _, is := range issues {
		if _, ok := seen[is.ID]; ok {
			continue
		}
		seen[is.ID] = struct{}{}
		out = append(out, is)
	}
	return out
}
