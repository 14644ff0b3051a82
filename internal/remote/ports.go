// Package remote defines the port to the remote durable data sink: the
// boundary where a real backend is substituted without touching the sync
// engine.
package remote

import (
	"context"

	"bilancio/internal/core"
)

// Store is the remote snapshot store. Fetch reports found=false when the
// remote holds nothing yet for the scope. Both operations are expected to
// cross a network (or simulate one) and must honor context cancellation.
type Store interface {
	Fetch(ctx context.Context, scope string) (data core.AppData, found bool, err error)
	Save(ctx context.Context, scope string, data core.AppData) error
}
