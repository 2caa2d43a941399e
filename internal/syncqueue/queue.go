// Package syncqueue implements the durable FIFO queue of locally captured
// mutations awaiting backend acknowledgment, and the background drain loop
// that delivers them in enqueue order once connectivity allows.
package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/wasteops/fieldsync/internal/common"
	"github.com/wasteops/fieldsync/internal/connectivity"
	"github.com/wasteops/fieldsync/internal/kvstore"
	"github.com/wasteops/fieldsync/internal/logging"
)

// Kind categorizes a captured mutation.
type Kind string

const (
	KindContainer  Kind = "container"
	KindOrder      Kind = "order"
	KindMaterial   Kind = "material"
	KindSignature  Kind = "signature"
	KindCompletion Kind = "completion"
)

// Operation is one locally captured mutation not yet acknowledged by the
// backend. Only Attempts and LastError change after creation.
type Operation struct {
	ID             int64           `json:"id"`
	Kind           Kind            `json:"kind"`
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
	Attempts       int             `json:"attempts"`
	LastError      string          `json:"last_error,omitempty"`
}

// Sender delivers one operation to the backend. transport.Client satisfies
// it.
type Sender interface {
	Submit(ctx context.Context, kind string, idempotencyKey string, payload []byte) error
}

const storageKey = "pending_operations"

// errDrainInProgress reports that another goroutine holds the drain. It
// never escapes the package: ManualSync waits the pass out and Run simply
// goes back to sleep.
var errDrainInProgress = errors.New("drain already in progress")

// Queue is the sync engine: a durable, strictly ordered queue drained one
// operation at a time so the backend sees a single technician's actions in
// causal order.
type Queue struct {
	kv      kvstore.KV
	sender  Sender
	monitor connectivity.Monitor
	log     logging.Logger
	now     func() time.Time

	backoffBase time.Duration
	backoffCap  time.Duration

	mu       sync.Mutex
	drained  *sync.Cond // signalled when draining flips back to false
	ops      []Operation
	nextID   int64
	draining bool
	subs     map[int]func(Status)
	nextSub  int

	wake chan struct{}
}

type Option func(*Queue)

// WithNow injects a clock for tests.
func WithNow(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithBackoff overrides the drain retry backoff (exponential from base,
// capped at cap).
func WithBackoff(base, cap time.Duration) Option {
	return func(q *Queue) {
		q.backoffBase = base
		q.backoffCap = cap
	}
}

// NewQueue restores the persisted queue and subscribes to connectivity so a
// reconnect immediately wakes the drain loop.
func NewQueue(ctx context.Context, kv kvstore.KV, sender Sender, monitor connectivity.Monitor, log logging.Logger, opts ...Option) (*Queue, error) {
	q := &Queue{
		kv:          kv,
		sender:      sender,
		monitor:     monitor,
		log:         log,
		now:         time.Now,
		backoffBase: time.Second,
		backoffCap:  2 * time.Minute,
		nextID:      1,
		subs:        make(map[int]func(Status)),
		wake:        make(chan struct{}, 1),
	}
	q.drained = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}

	raw, err := kv.GetItem(ctx, storageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending operations: %w", err)
	}
	if raw != nil {
		if err := json.Unmarshal(raw, &q.ops); err != nil {
			return nil, fmt.Errorf("failed to decode pending operations: %w", err)
		}
		for _, op := range q.ops {
			if op.ID >= q.nextID {
				q.nextID = op.ID + 1
			}
		}
	}

	monitor.Subscribe(func(online bool) {
		if online {
			q.nudge()
		}
		q.notify()
	})

	return q, nil
}

// Add captures a mutation. It never rejects: a storage write failure is
// logged and retried on the next persist while the in-memory operation
// stays queued.
func (q *Queue) Add(ctx context.Context, kind Kind, payload json.RawMessage) Operation {
	q.mu.Lock()
	op := Operation{
		ID:             q.nextID,
		Kind:           kind,
		IdempotencyKey: uuid.NewString(),
		Payload:        payload,
		CreatedAt:      q.now(),
	}
	q.nextID++
	q.ops = append(q.ops, op)
	q.mu.Unlock()

	if err := q.persist(ctx); err != nil {
		q.log.Error(ctx, "failed to persist pending operation", "id", op.ID, "error", err)
	}
	q.log.Debug(ctx, "operation captured", "id", op.ID, "kind", op.Kind)

	q.notify()
	q.nudge()
	return op
}

// ManualSync forces an immediate drain attempt so the UI can give direct
// feedback. If a background pass is already in flight it waits for that
// pass to finish and then drains whatever is left itself, so a returned
// nil always means the queue was seen empty. A failure leaves the queue
// untouched; the background loop keeps retrying on its own schedule.
func (q *Queue) ManualSync(ctx context.Context) error {
	if !q.monitor.Online() {
		return common.ErrOffline
	}
	for {
		err := q.drain(ctx)
		if errors.Is(err, errDrainInProgress) {
			q.mu.Lock()
			for q.draining {
				q.drained.Wait()
			}
			q.mu.Unlock()
			continue
		}
		if err != nil {
			return fmt.Errorf("manual sync failed: %w", err)
		}
		return nil
	}
}

// PendingCount returns the current queue length.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Snapshot returns a copy of the queued operations in delivery order.
func (q *Queue) Snapshot() []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Operation, len(q.ops))
	copy(out, q.ops)
	return out
}

// Status returns the derived aggregate state.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statusLocked()
}

// OnStatusChange registers fn, pushes the current status to it immediately,
// and then streams every change. The returned unsubscribe function is
// idempotent.
func (q *Queue) OnStatusChange(fn func(Status)) func() {
	q.mu.Lock()
	id := q.nextSub
	q.nextSub++
	q.subs[id] = fn
	status := q.statusLocked()
	q.mu.Unlock()

	fn(status)

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.subs, id)
	}
}

// Run drains in the background until ctx is cancelled. It wakes on Add, on
// connectivity return, and on a capped exponential backoff timer while the
// head operation keeps failing.
func (q *Queue) Run(ctx context.Context) {
	backoff := q.newBackoff()

	for {
		err := q.drain(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case err == nil, errors.Is(err, common.ErrOffline), errors.Is(err, errDrainInProgress):
			backoff = q.newBackoff()
			select {
			case <-q.wake:
			case <-ctx.Done():
				return
			}
		default:
			delay, _ := backoff.Next()
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-q.wake:
				timer.Stop()
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}
}

func (q *Queue) newBackoff() retry.Backoff {
	return retry.WithCappedDuration(q.backoffCap, retry.NewExponential(q.backoffBase))
}

// drain delivers queued operations head-first until the queue is empty, the
// head fails, or connectivity drops. The head is never skipped: a failing
// operation keeps its position so per-order causality is preserved.
func (q *Queue) drain(ctx context.Context) error {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return errDrainInProgress
	}
	if len(q.ops) == 0 {
		q.mu.Unlock()
		return nil
	}
	if !q.monitor.Online() {
		q.mu.Unlock()
		return common.ErrOffline
	}
	q.draining = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.drained.Broadcast()
		q.mu.Unlock()
		q.notify()
	}()
	q.notify()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		q.mu.Lock()
		if len(q.ops) == 0 {
			q.mu.Unlock()
			return nil
		}
		if !q.monitor.Online() {
			q.mu.Unlock()
			return common.ErrOffline
		}
		head := q.ops[0]
		q.mu.Unlock()

		if err := q.sender.Submit(ctx, string(head.Kind), head.IdempotencyKey, head.Payload); err != nil {
			q.mu.Lock()
			if len(q.ops) > 0 && q.ops[0].ID == head.ID {
				q.ops[0].Attempts++
				q.ops[0].LastError = err.Error()
			}
			q.mu.Unlock()

			if perr := q.persist(ctx); perr != nil {
				q.log.Error(ctx, "failed to persist queue", "error", perr)
			}
			q.log.Warn(ctx, "operation delivery failed",
				"id", head.ID, "kind", head.Kind, "attempts", head.Attempts+1, "error", err)
			return err
		}

		q.mu.Lock()
		if len(q.ops) > 0 && q.ops[0].ID == head.ID {
			q.ops = q.ops[1:]
		}
		q.mu.Unlock()

		if perr := q.persist(ctx); perr != nil {
			q.log.Error(ctx, "failed to persist queue", "error", perr)
		}
		q.log.Info(ctx, "operation delivered", "id", head.ID, "kind", head.Kind)
		q.notify()
	}
}

func (q *Queue) persist(ctx context.Context) error {
	q.mu.Lock()
	ops := make([]Operation, len(q.ops))
	copy(ops, q.ops)
	q.mu.Unlock()

	raw, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("failed to encode pending operations: %w", err)
	}
	if err := q.kv.SetItem(ctx, storageKey, raw); err != nil {
		return fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	return nil
}

func (q *Queue) notify() {
	q.mu.Lock()
	status := q.statusLocked()
	subs := make([]func(Status), 0, len(q.subs))
	for _, fn := range q.subs {
		subs = append(subs, fn)
	}
	q.mu.Unlock()

	for _, fn := range subs {
		fn(status)
	}
}

func (q *Queue) nudge() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
