package dedupe

import (
	"context"
	"errors"

	"github.com/bakkerme/relaypipe/internal/core"
)

// ErrSeenStoreUnavailable wraps lookup failures that abort a cycle.
var ErrSeenStoreUnavailable = errors.New("seen store unavailable")

// SeenStore tracks previously relayed item identities.
type SeenStore = core.SeenStore

// Pruner is implemented by stores that expire records. Pruning is a
// separate maintenance step; lookups never delete.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

var (
	_ Pruner    = (*SQLiteStore)(nil)
	_ SeenStore = (*MemoryStore)(nil)
	_ SeenStore = (*SQLiteStore)(nil)
	_ SeenStore = (*BadgerStore)(nil)
)
