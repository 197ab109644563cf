package adapter

import (
	"context"
	"fmt"

	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/internal/dynamo"
	"github.com/aelexs/time-engine/internal/timeengine/app"
)

// Compile-time check: AlarmStore satisfies app.AlarmStore.
var _ app.AlarmStore = (*AlarmStore)(nil)

// repeatPatternItem is stored as a nested map and never interpreted.
type repeatPatternItem struct {
	Frequency  string `dynamodbav:"frequency"`
	Interval   int    `dynamodbav:"interval,omitempty"`
	DaysOfWeek []int  `dynamodbav:"days_of_week,omitempty"`
}

// alarmItem is the DynamoDB item shape for the alarms table.
type alarmItem struct {
	ID                    string             `dynamodbav:"id"`
	UserID                string             `dynamodbav:"user_id"`
	Title                 string             `dynamodbav:"title"`
	SourceType            string             `dynamodbav:"source_type"`
	SourceID              string             `dynamodbav:"source_id,omitempty"`
	TriggerTimeUTC        string             `dynamodbav:"trigger_time_utc"`
	Status                string             `dynamodbav:"status"`
	Timezone              string             `dynamodbav:"timezone"`
	RepeatPattern         *repeatPatternItem `dynamodbav:"repeat_pattern,omitempty"`
	SnoozeDurationMinutes int                `dynamodbav:"snooze_duration_minutes"`
	CreatedAt             string             `dynamodbav:"created_at"`
	UpdatedAt             string             `dynamodbav:"updated_at"`
}

func toAlarmItem(a domain.AlarmEntry) alarmItem {
	item := alarmItem{
		ID:                    a.ID,
		UserID:                a.UserID,
		Title:                 a.Title,
		SourceType:            string(a.Source),
		SourceID:              a.SourceID,
		TriggerTimeUTC:        formatInstant(a.TriggerUTC),
		Status:                string(a.Status),
		Timezone:              a.Timezone,
		SnoozeDurationMinutes: a.SnoozeMinutes,
		CreatedAt:             formatInstant(a.CreatedAt),
		UpdatedAt:             formatInstant(a.UpdatedAt),
	}
	if p := a.RepeatPattern; p != nil {
		item.RepeatPattern = &repeatPatternItem{
			Frequency:  p.Frequency,
			Interval:   p.Interval,
			DaysOfWeek: p.DaysOfWeek,
		}
	}
	return item
}

func fromAlarmItem(item alarmItem) (domain.AlarmEntry, error) {
	trigger, err := parseInstant("trigger_time_utc", item.TriggerTimeUTC)
	if err != nil {
		return domain.AlarmEntry{}, err
	}
	created, err := parseInstant("created_at", item.CreatedAt)
	if err != nil {
		return domain.AlarmEntry{}, err
	}
	updated, err := parseInstant("updated_at", item.UpdatedAt)
	if err != nil {
		return domain.AlarmEntry{}, err
	}
	status, err := domain.ParseAlarmStatus(item.Status)
	if err != nil {
		return domain.AlarmEntry{}, err
	}
	source, err := domain.ParseAlarmSource(item.SourceType)
	if err != nil {
		return domain.AlarmEntry{}, err
	}

	a := domain.AlarmEntry{
		ID:            item.ID,
		UserID:        item.UserID,
		Title:         item.Title,
		Source:        source,
		SourceID:      item.SourceID,
		TriggerUTC:    trigger,
		Status:        status,
		Timezone:      item.Timezone,
		SnoozeMinutes: item.SnoozeDurationMinutes,
		CreatedAt:     created,
		UpdatedAt:     updated,
	}
	if p := item.RepeatPattern; p != nil {
		a.RepeatPattern = (&domain.RepeatPattern{
			Frequency:  p.Frequency,
			Interval:   p.Interval,
			DaysOfWeek: p.DaysOfWeek,
		}).Clone()
	}
	return a, nil
}

// AlarmStore persists alarms in DynamoDB.
type AlarmStore struct {
	db        entityDynamoDB
	tableName string
	clock     domain.Clock
	newID     func() string
}

// NewAlarmStore creates an AlarmStore backed by the given DynamoDB client.
func NewAlarmStore(db entityDynamoDB, tableName string, clock domain.Clock) *AlarmStore {
	return &AlarmStore{
		db:        db,
		tableName: tableName,
		clock:     clock,
		newID:     func() string { return domain.GenerateEntryID().String() },
	}
}

// Create assigns an ID and both timestamps and writes the alarm.
func (s *AlarmStore) Create(ctx context.Context, alarm domain.AlarmEntry) (domain.AlarmEntry, error) {
	ctx, span := startDynamoSpan(ctx, "dynamo.alarms.create", "PutItem")
	defer span.End()

	now := domain.NowUTC(s.clock)
	alarm.ID = s.newID()
	alarm.CreatedAt = now
	alarm.UpdatedAt = now

	if err := putNew(ctx, s.db, s.tableName, toAlarmItem(alarm)); err != nil {
		failSpan(span, err)
		return domain.AlarmEntry{}, fmt.Errorf("alarm store: create: %w", err)
	}
	return alarm, nil
}

// ListByUser returns the user's alarms newest first.
func (s *AlarmStore) ListByUser(ctx context.Context, userID string) ([]domain.AlarmEntry, error) {
	ctx, span := startDynamoSpan(ctx, "dynamo.alarms.list_by_user", "Query")
	defer span.End()

	items, err := queryByUser(ctx, s.db, s.tableName, userID)
	if err != nil {
		failSpan(span, err)
		return nil, fmt.Errorf("alarm store: list by user: %w", err)
	}

	alarms := make([]domain.AlarmEntry, 0, len(items))
	for _, av := range items {
		var item alarmItem
		if err := dynamo.UnmarshalMap(av, &item); err != nil {
			return nil, fmt.Errorf("alarm store: unmarshal alarm: %w", err)
		}
		a, err := fromAlarmItem(item)
		if err != nil {
			return nil, fmt.Errorf("alarm store: decode alarm %s: %w", item.ID, err)
		}
		alarms = append(alarms, a)
	}
	return alarms, nil
}

// UpdateStatus sets status and updated_at, and trigger_time_utc when a new
// trigger is supplied. The update is conditioned on ownership.
// Returns domain.ErrNotFound when the alarm does not exist for the user.
func (s *AlarmStore) UpdateStatus(ctx context.Context, u app.AlarmStatusUpdate) error {
	ctx, span := startDynamoSpan(ctx, "dynamo.alarms.update_status", "UpdateItem")
	defer span.End()

	update := dynamo.Set(dynamo.Name("status"), dynamo.Value(string(u.Status))).
		Set(dynamo.Name("updated_at"), dynamo.Value(formatInstant(u.UpdatedAt)))
	if u.TriggerUTC != nil {
		update = update.Set(dynamo.Name("trigger_time_utc"), dynamo.Value(formatInstant(*u.TriggerUTC)))
	}
	cond := dynamo.Name("user_id").Equal(dynamo.Value(u.UserID))

	expr, err := dynamo.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		failSpan(span, err)
		return fmt.Errorf("alarm store: update status: build expression: %w", err)
	}

	_, err = s.db.UpdateItem(ctx, &dynamo.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]dynamo.AttributeValue{
			"id": &dynamo.AttributeValueMemberS{Value: u.ID},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return fmt.Errorf("alarm store: update status: %w", domain.ErrNotFound)
		}
		err = classify(err)
		failSpan(span, err)
		return fmt.Errorf("alarm store: update status: %w", err)
	}
	return nil
}

// Delete removes an alarm owned by userID.
func (s *AlarmStore) Delete(ctx context.Context, userID, id string) error {
	ctx, span := startDynamoSpan(ctx, "dynamo.alarms.delete", "DeleteItem")
	defer span.End()

	if err := deleteOwned(ctx, s.db, s.tableName, userID, id); err != nil {
		failSpan(span, err)
		return fmt.Errorf("alarm store: delete: %w", err)
	}
	return nil
}
