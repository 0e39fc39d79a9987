package agentports

import "context"

// Cache is a byte-oriented cache with per-entry TTL. A ttlSeconds of
// zero or less stores the entry without expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
