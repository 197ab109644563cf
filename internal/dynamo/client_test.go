package dynamo_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/time-engine/internal/dynamo"
)

func TestNewClientWithEndpoint(t *testing.T) {
	ctx := context.Background()

	client, err := dynamo.NewClient(ctx, dynamo.Config{
		Endpoint: "http://localhost:4566",
		Region:   "us-east-2",
		Timeout:  5 * time.Second,
	})

	require.NoError(t, err)
	require.NotNil(t, client)
	require.NotNil(t, client.DB)
}

func TestNewClientWithDefaultEndpoint(t *testing.T) {
	ctx := context.Background()

	client, err := dynamo.NewClient(ctx, dynamo.Config{
		Region:  "us-east-2",
		Timeout: 5 * time.Second,
	})

	require.NoError(t, err)
	require.NotNil(t, client)
	require.NotNil(t, client.DB)
}

func TestIsConditionalCheckFailed(t *testing.T) {
	assert.True(t, dynamo.IsConditionalCheckFailed(dynamo.ErrConditionalCheckFailed()))
	assert.True(t, dynamo.IsConditionalCheckFailed(fmt.Errorf("wrapped: %w", dynamo.ErrConditionalCheckFailed())))
	assert.False(t, dynamo.IsConditionalCheckFailed(errors.New("boom")))
	assert.False(t, dynamo.IsConditionalCheckFailed(nil))
}

func TestIsThrottled(t *testing.T) {
	assert.True(t, dynamo.IsThrottled(fmt.Errorf("put: %w", dynamo.ErrThrottled())))
	assert.False(t, dynamo.IsThrottled(dynamo.ErrConditionalCheckFailed()))
}

func TestExpressionBuilder(t *testing.T) {
	update := dynamo.Set(dynamo.Name("status"), dynamo.Value("Snoozed"))
	cond := dynamo.Name("user_id").Equal(dynamo.Value("u-1"))

	expr, err := dynamo.NewBuilder().WithUpdate(update).WithCondition(cond).Build()

	require.NoError(t, err)
	require.NotNil(t, expr.Update())
	require.NotNil(t, expr.Condition())
	assert.Len(t, expr.Names(), 2)
	assert.Len(t, expr.Values(), 2)
}
