// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/hitline/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list (queue) name for telemetry records.
const DefaultQueueName = "hitline_telemetry"

// Connect builds a Redis client and verifies it with a PING.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Publisher pushes telemetry records onto a Redis list for the historian.
type Publisher struct {
	rdb     redis.Cmdable
	queue   string
	timeout time.Duration
	logger  logrus.FieldLogger
}

// NewPublisher returns a Publisher writing to the given queue.
func NewPublisher(rdb redis.Cmdable, queue string, logger logrus.FieldLogger) *Publisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Publisher{rdb: rdb, queue: queue, timeout: 2 * time.Second, logger: logger}
}

// Record publishes asynchronously so the caller never waits on the network.
func (p *Publisher) Record(rec telemetry.Record) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.Publish(ctx, rec); err != nil && p.logger != nil {
			p.logger.WithField("action", rec.Action).Warnf("telemetry publish failed: %v", err)
		}
	}()
}

// Publish serializes the record to JSON and RPUSHes it onto the queue.
func (p *Publisher) Publish(ctx context.Context, rec telemetry.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry record: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}
