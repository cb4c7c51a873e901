package modelcache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistributedMarker coordinates model residency across multiple StreamKit
// engine processes sharing a device pool: before a process pays the cost of
// loading a large model, it asks Redis which peer (if any) already holds
// it, so a fleet of engines can route nodes needing the same model toward
// the process that already has it resident instead of duplicating the
// load. It does not hold the model bytes themselves — those stay in the
// local Cache — only the "who has this key" directory.
type DistributedMarker struct {
	rdb    *redis.Client
	ttl    time.Duration
	selfID string
}

// NewDistributedMarker wraps a Redis client. selfID identifies this engine
// process (e.g. hostname:pid) in the shared directory.
func NewDistributedMarker(rdb *redis.Client, selfID string, ttl time.Duration) *DistributedMarker {
	return &DistributedMarker{rdb: rdb, ttl: ttl, selfID: selfID}
}

func markerKey(key Key) string {
	return "streamkit:modelcache:" + key.String()
}

// Claim registers this process as holding key for the marker's TTL. Each
// call re-sets the claim with a fresh TTL; Cache.Acquire does not call it.
func (d *DistributedMarker) Claim(ctx context.Context, key Key) error {
	if err := d.rdb.Set(ctx, markerKey(key), d.selfID, d.ttl).Err(); err != nil {
		return fmt.Errorf("modelcache: claim %s: %w", key, err)
	}
	return nil
}

// Holder returns the process ID currently claiming key, or "" if none.
func (d *DistributedMarker) Holder(ctx context.Context, key Key) (string, error) {
	v, err := d.rdb.Get(ctx, markerKey(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("modelcache: holder %s: %w", key, err)
	}
	return v, nil
}

// Release removes this process's claim, but only if it is still the
// current holder (a stale Release from a process that lost and regained
// the claim must not evict a newer holder's entry).
func (d *DistributedMarker) Release(ctx context.Context, key Key) error {
	// Compare and delete in one server-side step, so another process's claim
	// made between the check and the delete is never removed.
	release := redis.NewScript(`if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) end return 0`)
	if err := release.Run(ctx, d.rdb, []string{markerKey(key)}, d.selfID).Err(); err != nil {
		return fmt.Errorf("modelcache: release %s: %w", key, err)
	}
	return nil
}
