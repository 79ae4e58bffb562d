package dedupe

import (
	"context"
	"fmt"

	"github.com/bakkerme/relaypipe/internal/core"
)

// Filter returns, in snapshot order, the items whose identity the store has
// not seen. It only reads from the store. Two copies of an unseen identity in
// the same snapshot both pass; the relay sink settles them against the remote.
func Filter(ctx context.Context, snapshot core.Snapshot, store SeenStore) ([]core.Item, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: no store configured", ErrSeenStoreUnavailable)
	}
	fresh := make([]core.Item, 0, len(snapshot))
	for _, item := range snapshot {
		seen, err := store.HasSeen(ctx, item.ID())
		if err != nil {
			return nil, fmt.Errorf("%w: lookup %q: %v", ErrSeenStoreUnavailable, item.ID(), err)
		}
		if seen {
			continue
		}
		fresh = append(fresh, item)
	}
	return fresh, nil
}
