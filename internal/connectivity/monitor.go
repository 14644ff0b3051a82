// Package connectivity tracks whether the remote store is reachable and
// notifies subscribers on transitions. The transition to online is what
// triggers a reconciliation pass.
package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Probe reports whether the remote side currently looks reachable.
type Probe func(ctx context.Context) bool

type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   []func(online bool)

	// probe loop lifecycle
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a monitor with the given initial state.
func New(initiallyOnline bool) *Monitor {
	return &Monitor{online: initiallyOnline}
}

// IsOnline returns the last observed connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a callback invoked on every online/offline transition.
// Callbacks run synchronously on the goroutine that observed the change.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// SetOnline records a connectivity observation. Subscribers fire only when
// the state actually changes.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	slog.Info("Connectivity changed", "online", online)
	for _, fn := range subs {
		fn(online)
	}
}

// Start begins the periodic probe loop. Returns an error if already running.
func (m *Monitor) Start(ctx context.Context, probe Probe, interval time.Duration) error {
	if probe == nil {
		return fmt.Errorf("connectivity probe is required")
	}
	if interval <= 0 {
		return fmt.Errorf("invalid probe interval: %v", interval)
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("connectivity monitor is already running")
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	go m.runLoop(ctx, probe, interval, stopCh, doneCh)

	slog.InfoContext(ctx, "Connectivity monitor started", "probe_interval", interval)
	return nil
}

// Stop halts the probe loop and waits for it to finish.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	close(stopCh)

	// The loop resets the running flag before closing doneCh.
	select {
	case <-doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (m *Monitor) runLoop(ctx context.Context, probe Probe, interval time.Duration, stopCh, doneCh chan struct{}) {
	// Exiting via ctx cancellation must leave the monitor restartable.
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		close(doneCh)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Observe immediately on startup
	m.SetOnline(probe(ctx))

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetOnline(probe(ctx))
		}
	}
}
