package cache

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/hitline/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPublishRoundTrip needs a reachable Redis; set REDIS_ADDR to run it.
func TestPublishRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := Connect(ctx, addr, 0)
	require.NoError(t, err)
	defer rdb.Close()

	queue := "hitline_test_" + uuid.NewString()
	defer rdb.Del(ctx, queue)

	p := NewPublisher(rdb, queue, nil)
	rec := telemetry.Record{ID: uuid.New(), Kind: telemetry.KindAction, Action: "room.create", OK: true, Timestamp: time.Now().UnixMilli()}
	require.NoError(t, p.Publish(ctx, rec))

	raw, err := rdb.LPop(ctx, queue).Result()
	require.NoError(t, err)
	var got telemetry.Record
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "room.create", got.Action)
}

func TestNewPublisherDefaultsQueue(t *testing.T) {
	p := NewPublisher(nil, "", nil)
	assert.Equal(t, DefaultQueueName, p.queue)
}
