// Package connectivity watches network reachability and publishes
// online/offline transitions on a channel, decoupled from any UI or
// platform lifecycle.
package connectivity

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/jhamf/actasync/internal/logging"
)

// Event is published on every online/offline transition.
type Event struct {
	Online bool
	At     time.Time
}

// Watcher periodically dials a probe target and reports transitions.
// It implements the sync engine's ConnectivityChecker.
type Watcher struct {
	target   string
	interval time.Duration
	timeout  time.Duration

	mu      sync.RWMutex
	online  bool
	started bool

	events chan Event
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWatcher creates a Watcher that dials target (host:port) every
// interval.
func NewWatcher(target string, interval time.Duration) *Watcher {
	return &Watcher{
		target:   target,
		interval: interval,
		timeout:  5 * time.Second,
		// Buffered so a slow consumer never blocks the probe loop;
		// transitions are rare.
		events: make(chan Event, 8),
		stopCh: make(chan struct{}),
	}
}

// Events returns the transition channel. Only state changes are
// published, not every probe.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Online returns the result of the most recent probe.
func (w *Watcher) Online() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.online
}

// Start probes once synchronously to seed the state, then keeps
// probing in the background until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.online = w.probe()
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop(ctx)

	logging.Info("Connectivity watcher started", map[string]interface{}{
		"target": w.target,
		"online": w.Online(),
	})
}

// Stop stops the background probing.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check runs one probe and publishes an event if the state flipped.
func (w *Watcher) check() {
	online := w.probe()

	w.mu.Lock()
	changed := online != w.online
	w.online = online
	w.mu.Unlock()

	if !changed {
		return
	}

	logging.Info("Connectivity changed", map[string]interface{}{
		"online": online,
	})

	select {
	case w.events <- Event{Online: online, At: time.Now()}:
	default:
		// Channel full; the consumer will see the state via Online().
	}
}

func (w *Watcher) probe() bool {
	conn, err := net.DialTimeout("tcp", w.target, w.timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
