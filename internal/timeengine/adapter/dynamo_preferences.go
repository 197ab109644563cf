package adapter

import (
	"context"
	"fmt"

	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/internal/dynamo"
	"github.com/aelexs/time-engine/internal/timeengine/app"
)

// Compile-time check: PreferenceStore satisfies app.PreferenceStore.
var _ app.PreferenceStore = (*PreferenceStore)(nil)

// preferenceDynamoDB is a narrow, consumer-defined interface for the
// user_preferences table.
type preferenceDynamoDB interface {
	GetItem(ctx context.Context, params *dynamo.GetItemInput, optFns ...func(*dynamo.Options)) (*dynamo.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamo.PutItemInput, optFns ...func(*dynamo.Options)) (*dynamo.PutItemOutput, error)
}

// preferenceItem is the DynamoDB item shape for the user_preferences table.
type preferenceItem struct {
	UserID    string `dynamodbav:"user_id"`
	Timezone  string `dynamodbav:"timezone"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

// PreferenceStore persists one timezone preference per user.
type PreferenceStore struct {
	db        preferenceDynamoDB
	tableName string
	clock     domain.Clock
}

// NewPreferenceStore creates a PreferenceStore backed by the given DynamoDB client.
func NewPreferenceStore(db preferenceDynamoDB, tableName string, clock domain.Clock) *PreferenceStore {
	return &PreferenceStore{
		db:        db,
		tableName: tableName,
		clock:     clock,
	}
}

// Get returns the stored zone using a strongly consistent read.
// Returns domain.ErrNotFound when the user has no preference.
func (s *PreferenceStore) Get(ctx context.Context, userID string) (string, error) {
	ctx, span := startDynamoSpan(ctx, "dynamo.preferences.get", "GetItem")
	defer span.End()

	out, err := s.db.GetItem(ctx, &dynamo.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]dynamo.AttributeValue{
			"user_id": &dynamo.AttributeValueMemberS{Value: userID},
		},
		ConsistentRead: dynamo.Bool(true),
	})
	if err != nil {
		err = classify(err)
		failSpan(span, err)
		return "", fmt.Errorf("preference store: get: %w", err)
	}
	if out.Item == nil {
		return "", fmt.Errorf("preference store: get: %w", domain.ErrNotFound)
	}

	var item preferenceItem
	if err := dynamo.UnmarshalMap(out.Item, &item); err != nil {
		return "", fmt.Errorf("preference store: unmarshal preference: %w", err)
	}
	if item.Timezone == "" {
		return "", fmt.Errorf("preference store: get: %w", domain.ErrNotFound)
	}
	return item.Timezone, nil
}

// Put upserts the user's zone.
func (s *PreferenceStore) Put(ctx context.Context, userID, timezone string) error {
	ctx, span := startDynamoSpan(ctx, "dynamo.preferences.put", "PutItem")
	defer span.End()

	av, err := dynamo.MarshalMap(preferenceItem{
		UserID:    userID,
		Timezone:  timezone,
		UpdatedAt: domain.FormatInstant(domain.NowUTC(s.clock)),
	})
	if err != nil {
		failSpan(span, err)
		return fmt.Errorf("preference store: marshal preference: %w", err)
	}

	if _, err := s.db.PutItem(ctx, &dynamo.PutItemInput{
		TableName: &s.tableName,
		Item:      av,
	}); err != nil {
		err = classify(err)
		failSpan(span, err)
		return fmt.Errorf("preference store: put: %w", err)
	}
	return nil
}
