package recent

import "context"

// KV is the persistent string store backing the recently-viewed cache.
// It mirrors the origin-scoped key-value storage of a browser: no
// transactions, no cross-key atomicity, last writer wins.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
