package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bilancio/internal/remote"
	"bilancio/internal/remote/file"
	gremote "bilancio/internal/remote/google"
	"bilancio/internal/remote/memory"
)

var errMissingDir = errors.New("remote directory is required for file backend")

func errInvalidKind(k Kind) error {
	return fmt.Errorf("invalid backend kind: %s", k)
}

// New creates the configured remote store.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (remote.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case FileBackend:
		store, err := file.New(cfg.RemoteDir, cfg.RemoteLatency)
		if err != nil {
			return nil, fmt.Errorf("initialize file remote: %w", err)
		}
		logger.Info("Initialized file remote store",
			"dir", cfg.RemoteDir,
			"latency", cfg.RemoteLatency)
		return store, nil

	case SheetsBackend:
		cli, err := gremote.NewFromEnv(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialize Google Sheets remote: %w", err)
		}
		logger.Info("Initialized Google Sheets remote store")
		return cli, nil

	case MemoryBackend:
		logger.Info("Initialized in-memory remote store")
		return memory.New(), nil

	default:
		return nil, errInvalidKind(cfg.Kind)
	}
}
