// Package memory is an in-memory remote store used by tests and by builds
// that run without any remote backend configured.
package memory

import (
	"context"
	"sync"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/remote"
)

type Store struct {
	mu        sync.Mutex
	snapshots map[string]core.AppData
	latency   time.Duration

	fetchErr error
	saveErr  error
	saves    int
	fetches  int
}

var _ remote.Store = (*Store)(nil)

func New() *Store {
	return &Store{snapshots: make(map[string]core.AppData)}
}

// SetLatency adds a fixed delay to every operation.
func (s *Store) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// FailFetch makes subsequent Fetch calls return err (nil restores normal
// operation).
func (s *Store) FailFetch(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = err
}

// FailSave makes subsequent Save calls return err.
func (s *Store) FailSave(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

func (s *Store) Fetch(ctx context.Context, scope string) (core.AppData, bool, error) {
	if err := s.delay(ctx); err != nil {
		return core.AppData{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.fetchErr != nil {
		return core.AppData{}, false, s.fetchErr
	}
	data, ok := s.snapshots[scope]
	if !ok {
		return core.AppData{}, false, nil
	}
	return data.Clone(), true, nil
}

func (s *Store) Save(ctx context.Context, scope string, data core.AppData) error {
	if err := s.delay(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snapshots[scope] = data.Clone()
	s.saves++
	return nil
}

// Snapshot returns a copy of what the remote currently holds for the scope.
func (s *Store) Snapshot(scope string) (core.AppData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.snapshots[scope]
	if !ok {
		return core.AppData{}, false
	}
	return data.Clone(), true
}

// Counts reports how many fetches and successful saves have happened.
func (s *Store) Counts() (fetches, saves int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches, s.saves
}

func (s *Store) delay(ctx context.Context) error {
	s.mu.Lock()
	d := s.latency
	s.mu.Unlock()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
