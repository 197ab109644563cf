package adapter

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/internal/dynamo"
)

// userCreatedIndex is the GSI every entity table carries for per-user,
// newest-first listing.
const userCreatedIndex = "user_id-created_at-index"

// entityDynamoDB is a narrow, consumer-defined interface for the DynamoDB
// operations the entity stores need. The *dynamodb.Client satisfies it.
type entityDynamoDB interface {
	PutItem(ctx context.Context, params *dynamo.PutItemInput, optFns ...func(*dynamo.Options)) (*dynamo.PutItemOutput, error)
	Query(ctx context.Context, params *dynamo.QueryInput, optFns ...func(*dynamo.Options)) (*dynamo.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamo.UpdateItemInput, optFns ...func(*dynamo.Options)) (*dynamo.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamo.DeleteItemInput, optFns ...func(*dynamo.Options)) (*dynamo.DeleteItemOutput, error)
}

func startDynamoSpan(ctx context.Context, name, operation string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("db.system", "dynamodb"),
		attribute.String("db.operation", operation),
	)
	return ctx, span
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// classify marks throttling as a transient domain error.
func classify(err error) error {
	if dynamo.IsThrottled(err) {
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
	return err
}

// putNew writes item only if no row with the same id exists.
func putNew(ctx context.Context, db entityDynamoDB, table string, item any) error {
	av, err := dynamo.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	_, err = db.PutItem(ctx, &dynamo.PutItemInput{
		TableName:           &table,
		Item:                av,
		ConditionExpression: dynamo.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return domain.ErrAlreadyExists
		}
		return classify(err)
	}
	return nil
}

// queryByUser reads every row owned by userID from the user/created_at
// index, newest first, following pagination.
func queryByUser(ctx context.Context, db entityDynamoDB, table, userID string) ([]map[string]dynamo.AttributeValue, error) {
	keyCond := dynamo.KeyEqual(dynamo.Key("user_id"), dynamo.Value(userID))
	expr, err := dynamo.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("build key condition: %w", err)
	}

	index := userCreatedIndex
	var (
		items []map[string]dynamo.AttributeValue
		start map[string]dynamo.AttributeValue
	)
	for {
		out, err := db.Query(ctx, &dynamo.QueryInput{
			TableName:                 &table,
			IndexName:                 &index,
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ScanIndexForward:          dynamo.Bool(false),
			ExclusiveStartKey:         start,
		})
		if err != nil {
			return nil, classify(err)
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		start = out.LastEvaluatedKey
	}
}

// deleteOwned removes the row with id when it belongs to userID. A missing
// row and a foreign owner are indistinguishable and both map to
// domain.ErrNotFound.
func deleteOwned(ctx context.Context, db entityDynamoDB, table, userID, id string) error {
	cond := dynamo.Name("user_id").Equal(dynamo.Value(userID))
	expr, err := dynamo.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("build condition: %w", err)
	}

	_, err = db.DeleteItem(ctx, &dynamo.DeleteItemInput{
		TableName: &table,
		Key: map[string]dynamo.AttributeValue{
			"id": &dynamo.AttributeValueMemberS{Value: id},
		},
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return domain.ErrNotFound
		}
		return classify(err)
	}
	return nil
}

func formatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return domain.FormatInstant(t)
}

func parseInstant(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := domain.ParseInstant(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	return t, nil
}
