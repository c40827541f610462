package store

import (
	"context"
	"time"
)

// Store is the shared-store surface the coordination services run on:
// sessions, reservation locks, breaker counters and the retry-queue index
// all live here. Every operation is atomic on the backing store so
// concurrent orchestrator instances never need in-process coordination.
//
// A ttl of zero means no expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores the value only when the key is absent. This is the
	// conditional-set primitive reservation locks are built on.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	// CompareAndDelete removes the key only while it still holds expected.
	// Used for lock release so a holder can never delete a lock that
	// expired and was re-acquired by someone else.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	// Incr atomically increments a counter, applying ttl when the counter
	// is created by this call.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Sorted-set index operations, used by the retry queue's due-time index.
	ZAdd(ctx context.Context, key, member string, score float64) error
	ZRangeByScoreAsc(ctx context.Context, key string, max float64, limit int64) ([]string, error)
	ZRem(ctx context.Context, key string, members ...string) error
}
