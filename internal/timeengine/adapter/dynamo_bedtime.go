package adapter

import (
	"context"
	"fmt"

	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/internal/dynamo"
	"github.com/aelexs/time-engine/internal/timeengine/app"
)

// Compile-time check: BedtimeStore satisfies app.BedtimeStore.
var _ app.BedtimeStore = (*BedtimeStore)(nil)

// bedtimeItem is the DynamoDB item shape for the bedtime_logs table.
type bedtimeItem struct {
	ID           string `dynamodbav:"id"`
	UserID       string `dynamodbav:"user_id"`
	SleepTimeUTC string `dynamodbav:"sleep_time_utc"`
	WakeTimeUTC  string `dynamodbav:"wake_time_utc"`
	DurationMs   int64  `dynamodbav:"duration_ms"`
	DateLabel    string `dynamodbav:"date_label"`
	Timezone     string `dynamodbav:"timezone"`
	Notes        string `dynamodbav:"notes,omitempty"`
	CreatedAt    string `dynamodbav:"created_at"`
}

func toBedtimeItem(e domain.BedtimeEntry) bedtimeItem {
	return bedtimeItem{
		ID:           e.ID,
		UserID:       e.UserID,
		SleepTimeUTC: formatInstant(e.SleepUTC),
		WakeTimeUTC:  formatInstant(e.WakeUTC),
		DurationMs:   e.DurationMs,
		DateLabel:    e.DateLabel,
		Timezone:     e.Timezone,
		Notes:        e.Notes,
		CreatedAt:    formatInstant(e.CreatedAt),
	}
}

func fromBedtimeItem(item bedtimeItem) (domain.BedtimeEntry, error) {
	sleep, err := parseInstant("sleep_time_utc", item.SleepTimeUTC)
	if err != nil {
		return domain.BedtimeEntry{}, err
	}
	wake, err := parseInstant("wake_time_utc", item.WakeTimeUTC)
	if err != nil {
		return domain.BedtimeEntry{}, err
	}
	created, err := parseInstant("created_at", item.CreatedAt)
	if err != nil {
		return domain.BedtimeEntry{}, err
	}

	return domain.BedtimeEntry{
		ID:         item.ID,
		UserID:     item.UserID,
		SleepUTC:   sleep,
		WakeUTC:    wake,
		DurationMs: item.DurationMs,
		DateLabel:  item.DateLabel,
		Timezone:   item.Timezone,
		Notes:      item.Notes,
		CreatedAt:  created,
	}, nil
}

// BedtimeStore persists sleep logs in DynamoDB.
type BedtimeStore struct {
	db        entityDynamoDB
	tableName string
	clock     domain.Clock
	newID     func() string
}

// NewBedtimeStore creates a BedtimeStore backed by the given DynamoDB client.
func NewBedtimeStore(db entityDynamoDB, tableName string, clock domain.Clock) *BedtimeStore {
	return &BedtimeStore{
		db:        db,
		tableName: tableName,
		clock:     clock,
		newID:     func() string { return domain.GenerateEntryID().String() },
	}
}

// Create assigns an ID and creation time and writes the log.
func (s *BedtimeStore) Create(ctx context.Context, entry domain.BedtimeEntry) (domain.BedtimeEntry, error) {
	ctx, span := startDynamoSpan(ctx, "dynamo.bedtime.create", "PutItem")
	defer span.End()

	entry.ID = s.newID()
	entry.CreatedAt = domain.NowUTC(s.clock)

	if err := putNew(ctx, s.db, s.tableName, toBedtimeItem(entry)); err != nil {
		failSpan(span, err)
		return domain.BedtimeEntry{}, fmt.Errorf("bedtime store: create: %w", err)
	}
	return entry, nil
}

// ListByUser returns the user's logs newest first.
func (s *BedtimeStore) ListByUser(ctx context.Context, userID string) ([]domain.BedtimeEntry, error) {
	ctx, span := startDynamoSpan(ctx, "dynamo.bedtime.list_by_user", "Query")
	defer span.End()

	items, err := queryByUser(ctx, s.db, s.tableName, userID)
	if err != nil {
		failSpan(span, err)
		return nil, fmt.Errorf("bedtime store: list by user: %w", err)
	}

	entries := make([]domain.BedtimeEntry, 0, len(items))
	for _, av := range items {
		var item bedtimeItem
		if err := dynamo.UnmarshalMap(av, &item); err != nil {
			return nil, fmt.Errorf("bedtime store: unmarshal log: %w", err)
		}
		entry, err := fromBedtimeItem(item)
		if err != nil {
			return nil, fmt.Errorf("bedtime store: decode log %s: %w", item.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Delete removes a log owned by userID.
func (s *BedtimeStore) Delete(ctx context.Context, userID, id string) error {
	ctx, span := startDynamoSpan(ctx, "dynamo.bedtime.delete", "DeleteItem")
	defer span.End()

	if err := deleteOwned(ctx, s.db, s.tableName, userID, id); err != nil {
		failSpan(span, err)
		return fmt.Errorf("bedtime store: delete: %w", err)
	}
	return nil
}
