package txlog

import (
	"context"
	"log/slog"
)

// Mirror copies every entry of log into store. Entries already stored are
// skipped, so it is safe to call after each trade.
func Mirror(ctx context.Context, log *Log, store *Store) (int, error) {
	added := 0
	for _, tx := range log.All() {
		ok, err := store.Insert(ctx, tx)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	slog.Debug("mirrored transactions", "added", added)
	return added, nil
}
