package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aelexs/time-engine/internal/domain"
	redisclient "github.com/aelexs/time-engine/internal/redis"
	"github.com/aelexs/time-engine/internal/timeengine/app"
)

// snapshotKeyPrefix is the Redis key prefix for engine snapshots.
// Key pattern: time_engine:snapshot:{user_id}.
const snapshotKeyPrefix = "time_engine:snapshot:"

// Compile-time check: RedisSnapshotCache satisfies app.SnapshotCache.
var _ app.SnapshotCache = (*RedisSnapshotCache)(nil)

// RedisSnapshotCache keeps one JSON snapshot per key in Redis. Slots never
// expire; every save overwrites the whole slot.
type RedisSnapshotCache struct {
	cmd redisclient.Cmdable
}

// NewRedisSnapshotCache creates a RedisSnapshotCache that uses cmd for Redis operations.
func NewRedisSnapshotCache(cmd redisclient.Cmdable) *RedisSnapshotCache {
	return &RedisSnapshotCache{cmd: cmd}
}

func startRedisSpan(ctx context.Context, name, operation string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", operation),
	)
	return ctx, span
}

// Load reads the snapshot stored under key.
// Returns domain.ErrNotFound when the slot is empty.
func (c *RedisSnapshotCache) Load(ctx context.Context, key string) (domain.Snapshot, error) {
	ctx, span := startRedisSpan(ctx, "redis.snapshot.load", "GET")
	defer span.End()

	raw, err := c.cmd.Get(ctx, snapshotKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redisclient.Nil) {
			return domain.Snapshot{}, fmt.Errorf("load snapshot %q: %w", key, domain.ErrNotFound)
		}
		failSpan(span, err)
		return domain.Snapshot{}, fmt.Errorf("load snapshot %q: %w", key, err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		failSpan(span, err)
		return domain.Snapshot{}, fmt.Errorf("decode snapshot %q: %w", key, err)
	}
	return snap, nil
}

// Save overwrites the slot under key.
func (c *RedisSnapshotCache) Save(ctx context.Context, key string, snap domain.Snapshot) error {
	ctx, span := startRedisSpan(ctx, "redis.snapshot.save", "SET")
	defer span.End()

	raw, err := json.Marshal(snap)
	if err != nil {
		failSpan(span, err)
		return fmt.Errorf("encode snapshot %q: %w", key, err)
	}

	if err := c.cmd.Set(ctx, snapshotKeyPrefix+key, raw, 0).Err(); err != nil {
		failSpan(span, err)
		return fmt.Errorf("save snapshot %q: %w", key, err)
	}
	return nil
}
