// Package connectivity observes backend reachability and broadcasts
// online/offline transitions to the components that depend on them.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/wasteops/fieldsync/internal/logging"
)

// Monitor reports the current connectivity state and notifies subscribers
// about transitions.
type Monitor interface {
	// Online reports the last observed reachability state.
	Online() bool

	// Subscribe registers fn for transition events. The returned function
	// removes the subscription and is safe to call more than once.
	Subscribe(fn func(online bool)) func()
}

// Pinger probes the backend. transport.Client satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Watcher is a ticker-driven Monitor: it probes the backend on an interval
// and flips between online and offline on probe outcome changes.
type Watcher struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	log      logging.Logger

	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	nextID int
}

// NewWatcher returns a Watcher probing pinger every interval. The state is
// offline until the first successful probe.
func NewWatcher(pinger Pinger, interval time.Duration, log logging.Logger) *Watcher {
	return &Watcher{
		pinger:   pinger,
		interval: interval,
		timeout:  3 * time.Second,
		log:      log,
		subs:     make(map[int]func(bool)),
	}
}

func (w *Watcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

func (w *Watcher) Subscribe(fn func(online bool)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.subs[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.subs, id)
	}
}

// Probe performs a single reachability check and flips the state on change.
func (w *Watcher) Probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.pinger.Ping(pctx)
	cancel()
	w.set(ctx, err == nil)
}

// Run probes immediately and then on a ticker until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	w.Probe(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) set(ctx context.Context, online bool) {
	w.mu.Lock()
	if w.online == online {
		w.mu.Unlock()
		return
	}
	w.online = online
	subs := make([]func(bool), 0, len(w.subs))
	for _, fn := range w.subs {
		subs = append(subs, fn)
	}
	w.mu.Unlock()

	if online {
		w.log.Info(ctx, "connectivity restored")
	} else {
		w.log.Warn(ctx, "connectivity lost")
	}
	for _, fn := range subs {
		fn(online)
	}
}
