package adapter

import (
	"context"
	"fmt"

	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/internal/dynamo"
	"github.com/aelexs/time-engine/internal/timeengine/app"
)

// Compile-time check: StopwatchStore satisfies app.StopwatchStore.
var _ app.StopwatchStore = (*StopwatchStore)(nil)

// stopwatchItem is the DynamoDB item shape for the stopwatch_sessions table.
type stopwatchItem struct {
	ID           string `dynamodbav:"id"`
	UserID       string `dynamodbav:"user_id"`
	Heading      string `dynamodbav:"heading"`
	Purpose      string `dynamodbav:"purpose"`
	StartTimeUTC string `dynamodbav:"start_time_utc"`
	EndTimeUTC   string `dynamodbav:"end_time_utc"`
	DurationMs   int64  `dynamodbav:"duration_ms"`
	Timezone     string `dynamodbav:"timezone"`
	CreatedAt    string `dynamodbav:"created_at"`
}

func toStopwatchItem(e domain.StopwatchEntry) stopwatchItem {
	return stopwatchItem{
		ID:           e.ID,
		UserID:       e.UserID,
		Heading:      e.Heading,
		Purpose:      e.Purpose,
		StartTimeUTC: formatInstant(e.StartUTC),
		EndTimeUTC:   formatInstant(e.EndUTC),
		DurationMs:   e.DurationMs,
		Timezone:     e.Timezone,
		CreatedAt:    formatInstant(e.CreatedAt),
	}
}

func fromStopwatchItem(item stopwatchItem) (domain.StopwatchEntry, error) {
	start, err := parseInstant("start_time_utc", item.StartTimeUTC)
	if err != nil {
		return domain.StopwatchEntry{}, err
	}
	end, err := parseInstant("end_time_utc", item.EndTimeUTC)
	if err != nil {
		return domain.StopwatchEntry{}, err
	}
	created, err := parseInstant("created_at", item.CreatedAt)
	if err != nil {
		return domain.StopwatchEntry{}, err
	}

	return domain.StopwatchEntry{
		ID:         item.ID,
		UserID:     item.UserID,
		Heading:    item.Heading,
		Purpose:    item.Purpose,
		StartUTC:   start,
		EndUTC:     end,
		DurationMs: item.DurationMs,
		Timezone:   item.Timezone,
		CreatedAt:  created,
	}, nil
}

// StopwatchStore persists stopwatch sessions in DynamoDB.
type StopwatchStore struct {
	db        entityDynamoDB
	tableName string
	clock     domain.Clock
	newID     func() string
}

// NewStopwatchStore creates a StopwatchStore backed by the given DynamoDB client.
func NewStopwatchStore(db entityDynamoDB, tableName string, clock domain.Clock) *StopwatchStore {
	return &StopwatchStore{
		db:        db,
		tableName: tableName,
		clock:     clock,
		newID:     func() string { return domain.GenerateEntryID().String() },
	}
}

// Create assigns an ID and creation time and writes the session.
func (s *StopwatchStore) Create(ctx context.Context, entry domain.StopwatchEntry) (domain.StopwatchEntry, error) {
	ctx, span := startDynamoSpan(ctx, "dynamo.stopwatch.create", "PutItem")
	defer span.End()

	entry.ID = s.newID()
	entry.CreatedAt = domain.NowUTC(s.clock)

	if err := putNew(ctx, s.db, s.tableName, toStopwatchItem(entry)); err != nil {
		failSpan(span, err)
		return domain.StopwatchEntry{}, fmt.Errorf("stopwatch store: create: %w", err)
	}
	return entry, nil
}

// ListByUser returns the user's sessions newest first.
func (s *StopwatchStore) ListByUser(ctx context.Context, userID string) ([]domain.StopwatchEntry, error) {
	ctx, span := startDynamoSpan(ctx, "dynamo.stopwatch.list_by_user", "Query")
	defer span.End()

	items, err := queryByUser(ctx, s.db, s.tableName, userID)
	if err != nil {
		failSpan(span, err)
		return nil, fmt.Errorf("stopwatch store: list by user: %w", err)
	}

	entries := make([]domain.StopwatchEntry, 0, len(items))
	for _, av := range items {
		var item stopwatchItem
		if err := dynamo.UnmarshalMap(av, &item); err != nil {
			return nil, fmt.Errorf("stopwatch store: unmarshal session: %w", err)
		}
		entry, err := fromStopwatchItem(item)
		if err != nil {
			return nil, fmt.Errorf("stopwatch store: decode session %s: %w", item.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Delete removes a session owned by userID.
// Returns domain.ErrNotFound when no such session exists for the user.
func (s *StopwatchStore) Delete(ctx context.Context, userID, id string) error {
	ctx, span := startDynamoSpan(ctx, "dynamo.stopwatch.delete", "DeleteItem")
	defer span.End()

	if err := deleteOwned(ctx, s.db, s.tableName, userID, id); err != nil {
		failSpan(span, err)
		return fmt.Errorf("stopwatch store: delete: %w", err)
	}
	return nil
}
