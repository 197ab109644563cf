package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/internal/dynamo"
)

const bedtimeTable = "bedtime_logs"

func sampleBedtimeEntry() domain.BedtimeEntry {
	sleep := time.Date(2024, 3, 9, 22, 30, 0, 0, time.UTC)
	wake := sleep.Add(6*time.Hour + 45*time.Minute)
	return domain.BedtimeEntry{
		UserID:     testUserID,
		SleepUTC:   sleep,
		WakeUTC:    wake,
		DurationMs: domain.DurationMs(sleep, wake),
		DateLabel:  "2024-03-09",
		Timezone:   "UTC",
	}
}

func newTestBedtimeStore(db *stubDynamo) *BedtimeStore {
	store := NewBedtimeStore(db, bedtimeTable, fixedClock())
	store.newID = func() string { return "bt-1" }
	return store
}

func TestBedtimeStore_Create(t *testing.T) {
	t.Run("omits empty notes", func(t *testing.T) {
		db := &stubDynamo{
			putItemFn: func(_ context.Context, params *dynamo.PutItemInput, _ ...func(*dynamo.Options)) (*dynamo.PutItemOutput, error) {
				assert.Equal(t, bedtimeTable, *params.TableName)
				assert.NotContains(t, params.Item, "notes")
				assert.Equal(t, "2024-03-09", stringAttr(t, params.Item, "date_label"))
				assert.Equal(t, "2024-03-10T05:15:00.000Z", stringAttr(t, params.Item, "wake_time_utc"))
				return &dynamo.PutItemOutput{}, nil
			},
		}

		got, err := newTestBedtimeStore(db).Create(context.Background(), sampleBedtimeEntry())

		require.NoError(t, err)
		assert.Equal(t, "bt-1", got.ID)
		assert.Equal(t, fixedTime(), got.CreatedAt)
		assert.Equal(t, int64(24_300_000), got.DurationMs)
	})

	t.Run("stores notes when present", func(t *testing.T) {
		entry := sampleBedtimeEntry()
		entry.Notes = "late coffee"
		db := &stubDynamo{
			putItemFn: func(_ context.Context, params *dynamo.PutItemInput, _ ...func(*dynamo.Options)) (*dynamo.PutItemOutput, error) {
				assert.Equal(t, "late coffee", stringAttr(t, params.Item, "notes"))
				return &dynamo.PutItemOutput{}, nil
			},
		}

		_, err := newTestBedtimeStore(db).Create(context.Background(), entry)

		require.NoError(t, err)
	})

	t.Run("dynamo error - wraps with context", func(t *testing.T) {
		db := &stubDynamo{
			putItemFn: func(_ context.Context, _ *dynamo.PutItemInput, _ ...func(*dynamo.Options)) (*dynamo.PutItemOutput, error) {
				return nil, errors.New("connection refused")
			},
		}

		_, err := newTestBedtimeStore(db).Create(context.Background(), sampleBedtimeEntry())

		assert.ErrorContains(t, err, "bedtime store: create: connection refused")
	})
}

func TestBedtimeStore_ListByUser(t *testing.T) {
	item := toBedtimeItem(sampleBedtimeEntry())
	item.ID = "bt-1"
	item.CreatedAt = "2024-03-10T05:20:00.000Z"

	db := &stubDynamo{
		queryFn: func(_ context.Context, params *dynamo.QueryInput, _ ...func(*dynamo.Options)) (*dynamo.QueryOutput, error) {
			assert.Equal(t, bedtimeTable, *params.TableName)
			av, err := dynamo.MarshalMap(item)
			require.NoError(t, err)
			return &dynamo.QueryOutput{Items: []map[string]dynamo.AttributeValue{av}}, nil
		},
	}

	got, err := newTestBedtimeStore(db).ListByUser(context.Background(), testUserID)

	require.NoError(t, err)
	require.Len(t, got, 1)
	want := sampleBedtimeEntry()
	want.ID = "bt-1"
	want.CreatedAt = time.Date(2024, 3, 10, 5, 20, 0, 0, time.UTC)
	assert.Equal(t, want, got[0])
}

func TestBedtimeStore_Delete(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db := &stubDynamo{
			deleteItemFn: func(_ context.Context, params *dynamo.DeleteItemInput, _ ...func(*dynamo.Options)) (*dynamo.DeleteItemOutput, error) {
				assert.Equal(t, bedtimeTable, *params.TableName)
				assert.Equal(t, "bt-1", stringAttr(t, params.Key, "id"))
				return &dynamo.DeleteItemOutput{}, nil
			},
		}

		require.NoError(t, newTestBedtimeStore(db).Delete(context.Background(), testUserID, "bt-1"))
	})

	t.Run("throttled - returns ErrUnavailable", func(t *testing.T) {
		db := &stubDynamo{
			deleteItemFn: func(_ context.Context, _ *dynamo.DeleteItemInput, _ ...func(*dynamo.Options)) (*dynamo.DeleteItemOutput, error) {
				return nil, dynamo.ErrThrottled()
			},
		}

		err := newTestBedtimeStore(db).Delete(context.Background(), testUserID, "bt-1")

		assert.ErrorIs(t, err, domain.ErrUnavailable)
	})
}
