// Package offline tracks how long the technician has been working without
// connectivity and derives the graduated compliance warning level, up to the
// hard block that refuses further offline work.
package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wasteops/fieldsync/internal/common"
	"github.com/wasteops/fieldsync/internal/connectivity"
	"github.com/wasteops/fieldsync/internal/kvstore"
	"github.com/wasteops/fieldsync/internal/logging"
)

// Level is the graduated warning severity for continuous offline work.
type Level int

const (
	LevelNone Level = iota
	LevelWarning
	LevelOrange
	LevelCritical
	LevelBlocked
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelOrange:
		return "orange"
	case LevelCritical:
		return "critical"
	case LevelBlocked:
		return "blocked"
	default:
		return "none"
	}
}

// Thresholds defines when each warning level starts. Ceiling is the hard
// stop: once reached, every mutating action is refused until connectivity
// returns.
type Thresholds struct {
	Warning  time.Duration
	Orange   time.Duration
	Critical time.Duration
	Ceiling  time.Duration
}

// DefaultThresholds mirrors current compliance policy: graduated warnings
// from 8 hours and a hard block at 10 hours of continuous offline work.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Warning:  8 * time.Hour,
		Orange:   9 * time.Hour,
		Critical: 9*time.Hour + 30*time.Minute,
		Ceiling:  10 * time.Hour,
	}
}

// Level maps a continuous offline duration to its warning level.
func (t Thresholds) Level(offline time.Duration) Level {
	switch {
	case offline >= t.Ceiling:
		return LevelBlocked
	case offline >= t.Critical:
		return LevelCritical
	case offline >= t.Orange:
		return LevelOrange
	case offline >= t.Warning:
		return LevelWarning
	default:
		return LevelNone
	}
}

// Status is a point-in-time snapshot of the offline state.
type Status struct {
	IsOnline        bool
	IsBlocked       bool
	OfflineSince    time.Time // zero while online
	OfflineDuration time.Duration
	WarningLevel    Level
	LastSyncAt      time.Time
}

const storageKey = "offline_status"

// persisted is the durable slice of tracker state: enough to resume the
// countdown after an app restart while still disconnected.
type persisted struct {
	OfflineSince time.Time `json:"offline_since"`
	LastSyncAt   time.Time `json:"last_sync_at"`
}

// Tracker consumes connectivity transitions and maintains the continuous
// offline duration and warning level.
type Tracker struct {
	kv         kvstore.KV
	thresholds Thresholds
	log        logging.Logger
	now        func() time.Time
	tick       time.Duration

	mu           sync.Mutex
	online       bool
	offlineSince time.Time
	lastSyncAt   time.Time
	lastLevel    Level
	subs         map[int]func(Status)
	nextSubID    int
}

type Option func(*Tracker)

// WithNow injects a clock, letting tests simulate hours of offline work
// without real time passing.
func WithNow(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithThresholds overrides the default warning thresholds.
func WithThresholds(th Thresholds) Option {
	return func(t *Tracker) { t.thresholds = th }
}

// WithTickInterval overrides the minute-granularity refresh interval.
func WithTickInterval(d time.Duration) Option {
	return func(t *Tracker) { t.tick = d }
}

// NewTracker restores persisted state and subscribes to monitor transitions.
// If the app was killed while disconnected, the countdown resumes from the
// persisted OfflineSince instead of restarting at zero.
func NewTracker(ctx context.Context, kv kvstore.KV, monitor connectivity.Monitor, log logging.Logger, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		kv:         kv,
		thresholds: DefaultThresholds(),
		log:        log,
		now:        time.Now,
		tick:       time.Minute,
		subs:       make(map[int]func(Status)),
	}
	for _, opt := range opts {
		opt(t)
	}

	raw, err := kv.GetItem(ctx, storageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load offline state: %w", err)
	}
	if raw != nil {
		var p persisted
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode offline state: %w", err)
		}
		t.offlineSince = p.OfflineSince
		t.lastSyncAt = p.LastSyncAt
	}

	t.online = monitor.Online()
	if t.online {
		t.offlineSince = time.Time{}
	} else if t.offlineSince.IsZero() {
		t.offlineSince = t.now()
	}

	monitor.Subscribe(t.onConnectivity)

	if err := t.persist(ctx); err != nil {
		t.log.Error(ctx, "failed to persist offline state", "error", err)
	}
	return t, nil
}

// GetStatus returns the current snapshot. It never blocks on I/O.
func (t *Tracker) GetStatus() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

// OnStatusChange registers fn, pushes the current snapshot to it
// immediately, and then streams every subsequent change. The returned
// unsubscribe function is idempotent.
func (t *Tracker) OnStatusChange(fn func(Status)) func() {
	t.mu.Lock()
	id := t.nextSubID
	t.nextSubID++
	t.subs[id] = fn
	status := t.statusLocked()
	t.mu.Unlock()

	fn(status)

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

// RecordSyncSuccess refreshes LastSyncAt after the queue fully drains.
func (t *Tracker) RecordSyncSuccess(ctx context.Context) {
	t.mu.Lock()
	t.lastSyncAt = t.now()
	t.mu.Unlock()

	if err := t.persist(ctx); err != nil {
		t.log.Error(ctx, "failed to persist offline state", "error", err)
	}
	t.notify()
}

// Refresh recomputes the offline duration and pushes the snapshot to
// subscribers. The minute ticker calls it while offline so countdown UIs
// stay current.
func (t *Tracker) Refresh() {
	t.mu.Lock()
	if t.online {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.notify()
}

// Run emits minute-granularity refreshes while offline until ctx is
// cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Refresh()
		case <-ctx.Done():
			return
		}
	}
}

func (t *Tracker) onConnectivity(online bool) {
	ctx := context.Background()

	t.mu.Lock()
	if t.online == online {
		t.mu.Unlock()
		return
	}
	t.online = online
	if online {
		t.offlineSince = time.Time{}
		t.lastLevel = LevelNone
	} else {
		t.offlineSince = t.now()
	}
	t.mu.Unlock()

	if err := t.persist(ctx); err != nil {
		t.log.Error(ctx, "failed to persist offline state", "error", err)
	}
	t.notify()
}

// statusLocked derives the snapshot. The level never regresses without a
// connectivity event, even if the injected clock jumps backwards.
func (t *Tracker) statusLocked() Status {
	s := Status{IsOnline: t.online, LastSyncAt: t.lastSyncAt}
	if t.online {
		return s
	}

	s.OfflineSince = t.offlineSince
	s.OfflineDuration = t.now().Sub(t.offlineSince)
	s.WarningLevel = t.thresholds.Level(s.OfflineDuration)
	if s.WarningLevel < t.lastLevel {
		s.WarningLevel = t.lastLevel
	}
	t.lastLevel = s.WarningLevel
	s.IsBlocked = s.WarningLevel == LevelBlocked
	return s
}

func (t *Tracker) notify() {
	t.mu.Lock()
	status := t.statusLocked()
	subs := make([]func(Status), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(status)
	}
}

func (t *Tracker) persist(ctx context.Context) error {
	t.mu.Lock()
	p := persisted{OfflineSince: t.offlineSince, LastSyncAt: t.lastSyncAt}
	t.mu.Unlock()

	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode offline state: %w", err)
	}
	if err := t.kv.SetItem(ctx, storageKey, raw); err != nil {
		return fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	return nil
}
