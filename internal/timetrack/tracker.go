package timetrack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wasteops/fieldsync/internal/common"
	"github.com/wasteops/fieldsync/internal/kvstore"
	"github.com/wasteops/fieldsync/internal/logging"
)

const storagePrefix = "time_entries/"

// errNotValid aborts a Mutate when validation rejects the proposed times.
// It never escapes this package: the caller gets the Result instead.
var errNotValid = errors.New("time entry not valid")

// Tracker stores time entries per order, one entry per service type, and
// serializes mutations per order so overlap checks always run against the
// latest known siblings.
type Tracker struct {
	store *kvstore.Keyed[[]Entry]
	log   logging.Logger
	now   func() time.Time
}

type Option func(*Tracker)

// WithNow injects a clock for tests.
func WithNow(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker loads every persisted entry set into the in-memory cache.
func NewTracker(ctx context.Context, kv kvstore.KV, log logging.Logger, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		store: kvstore.NewKeyed[[]Entry](kv, storagePrefix),
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := t.store.Load(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Start creates or resumes the entry for a service type, stamping the start
// time if absent. A completed entry cannot be restarted.
func (t *Tracker) Start(ctx context.Context, orderNumber, serviceTypeID, user string) (Entry, error) {
	var started Entry
	_, err := t.store.Mutate(ctx, orderNumber, func(entries []Entry) ([]Entry, error) {
		i := indexOf(entries, serviceTypeID)
		if i < 0 {
			now := t.now()
			started = Entry{
				OrderNumber:   orderNumber,
				ServiceTypeID: serviceTypeID,
				Start:         &now,
				StartedBy:     user,
			}
			return append(entries, started), nil
		}
		if entries[i].Completed() {
			return nil, fmt.Errorf("%w: service type %s on order %s", common.ErrAlreadyCompleted, serviceTypeID, orderNumber)
		}
		started = entries[i]
		return entries, nil
	})
	if err != nil {
		return Entry{}, err
	}
	t.log.Info(ctx, "service type started", "order", orderNumber, "service_type", serviceTypeID, "user", user)
	return started, nil
}

// End stamps the end time on the active entry for a service type.
func (t *Tracker) End(ctx context.Context, orderNumber, serviceTypeID string) (Entry, error) {
	var ended Entry
	_, err := t.store.Mutate(ctx, orderNumber, func(entries []Entry) ([]Entry, error) {
		i := indexOf(entries, serviceTypeID)
		if i < 0 || !entries[i].Active() {
			return nil, fmt.Errorf("%w: service type %s on order %s", common.ErrNoActiveEntry, serviceTypeID, orderNumber)
		}
		now := t.now()
		entries[i].End = &now
		ended = entries[i]
		return entries, nil
	})
	if err != nil {
		return Entry{}, err
	}
	t.log.Info(ctx, "service type ended", "order", orderNumber, "service_type", serviceTypeID)
	return ended, nil
}

// Patch carries a manual time correction. A nil field leaves the current
// value untouched.
type Patch struct {
	Start *time.Time
	End   *time.Time
}

// Update applies a manual correction after validating the proposed times
// against the service date and the order's other entries. A validation
// rejection is returned as data in the Result, not as an error; the entry
// stays unchanged. Warnings commit and are returned for the caller to
// surface.
func (t *Tracker) Update(ctx context.Context, orderNumber, serviceTypeID string, referenceDate time.Time, patch Patch) (Entry, Result, error) {
	var (
		updated Entry
		result  Result
	)
	_, err := t.store.Mutate(ctx, orderNumber, func(entries []Entry) ([]Entry, error) {
		i := indexOf(entries, serviceTypeID)
		if i < 0 {
			return nil, fmt.Errorf("%w: service type %s on order %s", common.ErrorNotFound, serviceTypeID, orderNumber)
		}

		start, end := entries[i].Start, entries[i].End
		if patch.Start != nil {
			start = patch.Start
		}
		if patch.End != nil {
			end = patch.End
		}

		others := make([]Entry, 0, len(entries)-1)
		for j, e := range entries {
			if j != i {
				others = append(others, e)
			}
		}

		result = Validate(start, end, referenceDate, others)
		if !result.Valid {
			return nil, errNotValid
		}

		entries[i].Start = start
		entries[i].End = end
		updated = entries[i]
		return entries, nil
	})
	if errors.Is(err, errNotValid) {
		current, _ := t.Entry(orderNumber, serviceTypeID)
		return current, result, nil
	}
	if err != nil {
		return Entry{}, Result{}, err
	}
	t.log.Info(ctx, "time entry updated", "order", orderNumber, "service_type", serviceTypeID,
		"warnings", len(result.Warnings))
	return updated, result, nil
}

// Entry returns the cached entry for a service type.
func (t *Tracker) Entry(orderNumber, serviceTypeID string) (Entry, bool) {
	entries, _ := t.store.Get(orderNumber)
	i := indexOf(entries, serviceTypeID)
	if i < 0 {
		return Entry{}, false
	}
	return entries[i], true
}

// Entries returns all entries for an order in creation order. Never nil.
func (t *Tracker) Entries(orderNumber string) []Entry {
	entries, _ := t.store.Get(orderNumber)
	return append([]Entry(nil), entries...)
}

// ActiveEntry returns the entry currently in progress for an order, if any.
func (t *Tracker) ActiveEntry(orderNumber string) (Entry, bool) {
	for _, e := range t.Entries(orderNumber) {
		if e.Active() {
			return e, true
		}
	}
	return Entry{}, false
}

// TotalDuration sums the derived durations of the order's completed entries,
// in minutes.
func (t *Tracker) TotalDuration(orderNumber string) int {
	total := 0
	for _, e := range t.Entries(orderNumber) {
		if m := e.DurationMinutes(); m != nil {
			total += *m
		}
	}
	return total
}

// Clear drops every entry for an order.
func (t *Tracker) Clear(ctx context.Context, orderNumber string) error {
	return t.store.Delete(ctx, orderNumber)
}

func indexOf(entries []Entry, serviceTypeID string) int {
	for i, e := range entries {
		if e.ServiceTypeID == serviceTypeID {
			return i
		}
	}
	return -1
}
