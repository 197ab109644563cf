package app

import (
	"cmp"
	"slices"
	"time"

	"github.com/aelexs/time-engine/internal/domain"
)

// Collections are ordered most-recent-first. Applying an entry that is
// already present replaces it, so replaying an apply step never duplicates.

func upsertFront[T any](items []T, item T, id func(T) string) []T {
	key := id(item)
	out := make([]T, 0, len(items)+1)
	out = append(out, item)
	for _, it := range items {
		if id(it) != key {
			out = append(out, it)
		}
	}
	return out
}

func removeByID[T any](items []T, key string, id func(T) string) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if id(it) != key {
			out = append(out, it)
		}
	}
	return out
}

// patchByID applies fn to the entry with the given id and reports whether
// one was found. Other entries are left untouched.
func patchByID[T any](items []T, key string, id func(T) string, fn func(*T)) bool {
	for i := range items {
		if id(items[i]) == key {
			fn(&items[i])
			return true
		}
	}
	return false
}

func newestFirst[T any](items []T, createdAt func(T) time.Time) []T {
	out := slices.Clone(items)
	if out == nil {
		out = []T{}
	}
	slices.SortStableFunc(out, func(a, b T) int {
		return cmp.Compare(createdAt(b).UnixNano(), createdAt(a).UnixNano())
	})
	return out
}

func stopwatchID(e domain.StopwatchEntry) string { return e.ID }
func bedtimeID(e domain.BedtimeEntry) string     { return e.ID }
func alarmID(a domain.AlarmEntry) string         { return a.ID }

func stopwatchCreated(e domain.StopwatchEntry) time.Time { return e.CreatedAt }
func bedtimeCreated(e domain.BedtimeEntry) time.Time     { return e.CreatedAt }
func alarmCreated(a domain.AlarmEntry) time.Time         { return a.CreatedAt }
