package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aelexs/time-engine/internal/config"
	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/internal/redis"
	"github.com/aelexs/time-engine/internal/timeengine/adapter"
	"github.com/aelexs/time-engine/internal/timeengine/app"
)

func runSnapshot(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("snapshot", stderr)
	backend := fs.String("backend", config.SnapshotBackendSQLite, "cache backend: sqlite or redis")
	path := fs.String("path", "time-engine.db", "SQLite database path")
	addr := fs.String("addr", "localhost:6379", "Redis address")
	key := fs.String("user", "", "snapshot key (user id or \"anonymous\"); empty lists keys (sqlite only)")
	asJSON := fs.Bool("json", false, "print the raw snapshot as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var cache app.SnapshotCache
	switch *backend {
	case config.SnapshotBackendSQLite:
		sqlite, err := adapter.OpenSQLiteSnapshotCache(ctx, *path, domain.RealClock{})
		if err != nil {
			return err
		}
		defer sqlite.Close()
		if *key == "" {
			return listSnapshots(ctx, sqlite, stdout)
		}
		cache = sqlite

	case config.SnapshotBackendRedis:
		if *key == "" {
			return fmt.Errorf("-user is required for the redis backend: %w", errUsage)
		}
		client := redis.NewClient(redis.Config{
			Addr:         *addr,
			ReadTimeout:  domain.RedisTimeout,
			WriteTimeout: domain.RedisTimeout,
		})
		defer client.Close()
		cache = adapter.NewRedisSnapshotCache(client.RDB)

	default:
		return fmt.Errorf("unknown backend %q: %w", *backend, errUsage)
	}

	snap, err := cache.Load(ctx, *key)
	if err != nil {
		return fmt.Errorf("snapshot %q: %w", *key, err)
	}
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	printSnapshot(stdout, *key, snap)
	return nil
}

func listSnapshots(ctx context.Context, cache *adapter.SQLiteSnapshotCache, w io.Writer) error {
	infos, err := cache.List(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		dimColor.Fprintln(w, "no snapshots")
		return nil
	}
	for _, info := range infos {
		valueColor.Fprintf(w, "%-40s", info.Key)
		dimColor.Fprintln(w, info.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

func printSnapshot(w io.Writer, key string, snap domain.Snapshot) {
	field(w, "key", key)
	field(w, "timezone", snap.Timezone)

	labelColor.Fprintf(w, "\nstopwatch (%d)\n", len(snap.Stopwatch))
	for _, e := range snap.Stopwatch {
		fmt.Fprintf(w, "  %s  %s  %s  %s\n", e.ID, domain.FormatInstant(e.StartUTC),
			time.Duration(e.DurationMs)*time.Millisecond, e.Heading)
	}

	labelColor.Fprintf(w, "\nbedtime (%d)\n", len(snap.Bedtime))
	for _, e := range snap.Bedtime {
		fmt.Fprintf(w, "  %s  %s  %s\n", e.ID, e.DateLabel, time.Duration(e.DurationMs)*time.Millisecond)
	}

	labelColor.Fprintf(w, "\nalarms (%d)\n", len(snap.Alarms))
	for _, a := range snap.Alarms {
		status := valueColor
		if a.Status != domain.AlarmStatusActive {
			status = dimColor
		}
		fmt.Fprintf(w, "  %s  %s  ", a.ID, domain.FormatInstant(a.TriggerUTC))
		status.Fprintf(w, "%-9s", a.Status)
		fmt.Fprintf(w, "  %s\n", a.Title)
	}
}
