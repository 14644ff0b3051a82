// Package file is the simulated remote store: one JSON document per scope
// under a directory, with a fixed artificial latency on every operation as a
// stand-in for a real network round-trip.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/remote"
)

type Store struct {
	dir     string
	latency time.Duration
}

var _ remote.Store = (*Store)(nil)

func New(dir string, latency time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create remote directory: %w", err)
	}
	return &Store{dir: dir, latency: latency}, nil
}

func (s *Store) Fetch(ctx context.Context, scope string) (core.AppData, bool, error) {
	if err := s.delay(ctx); err != nil {
		return core.AppData{}, false, err
	}

	blob, err := os.ReadFile(s.path(scope))
	if os.IsNotExist(err) {
		return core.AppData{}, false, nil
	}
	if err != nil {
		return core.AppData{}, false, fmt.Errorf("fetch remote data: %w", err)
	}

	var data core.AppData
	if err := json.Unmarshal(blob, &data); err != nil {
		return core.AppData{}, false, fmt.Errorf("decode remote data: %w", err)
	}
	return data, true, nil
}

func (s *Store) Save(ctx context.Context, scope string, data core.AppData) error {
	if err := s.delay(ctx); err != nil {
		return err
	}

	blob, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode remote data: %w", err)
	}

	// Write-then-rename so a crash mid-save never leaves a torn document.
	tmp := s.path(scope) + ".tmp"
	if err := os.WriteFile(tmp, blob, 0644); err != nil {
		return fmt.Errorf("write remote data: %w", err)
	}
	if err := os.Rename(tmp, s.path(scope)); err != nil {
		return fmt.Errorf("commit remote data: %w", err)
	}

	slog.DebugContext(ctx, "Remote snapshot saved",
		"scope", scope,
		"incomes", len(data.Incomes),
		"expenses", len(data.Expenses),
		"segments", len(data.Segments))
	return nil
}

func (s *Store) delay(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Store) path(scope string) string {
	// Scopes are uuids or plain identifiers; flatten anything else.
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, scope)
	return filepath.Join(s.dir, safe+".json")
}
