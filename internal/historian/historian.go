// Package historian drains telemetry records from the Redis queue and
// archives them in Postgres in batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/hitline/internal/database"
	"github.com/jason-s-yu/hitline/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	popTimeout      = 3 * time.Second
	maxPendingRatio = 50
)

// Queue yields raw queued records. ok is false when the wait timed out.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (payload string, ok bool, err error)
}

// Store persists a batch of records.
type Store interface {
	Store(ctx context.Context, recs []telemetry.Record) error
}

// RedisQueue pops from a Redis list with BLPOP.
type RedisQueue struct {
	Client redis.Cmdable
	Name   string
}

func (q RedisQueue) Pop(ctx context.Context, timeout time.Duration) (string, bool, error) {
	res, err := q.Client.BLPop(ctx, timeout, q.Name).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	// res[0] is the list name, res[1] the payload.
	if len(res) < 2 {
		return "", false, nil
	}
	return res[1], true, nil
}

// PostgresStore writes batches with database.InsertRecords.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

func (s PostgresStore) Store(ctx context.Context, recs []telemetry.Record) error {
	return database.InsertRecords(ctx, s.Pool, recs)
}

// Service accumulates records and flushes them when the batch fills or
// the flush interval elapses. A failed flush keeps the batch for the next
// attempt; inserts are idempotent on record id.
type Service struct {
	queue         Queue
	store         Store
	batchSize     int
	flushInterval time.Duration
	logger        *logrus.Logger

	batchMu sync.Mutex
	batch   []telemetry.Record
}

func NewService(queue Queue, store Store, batchSize int, flushInterval time.Duration, logger *logrus.Logger) *Service {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Service{
		queue:         queue,
		store:         store,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
		batch:         make([]telemetry.Record, 0, batchSize),
	}
}

// Run pops until ctx is canceled, then makes a final flush.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	s.logger.Info("historian started")

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.Flush(flushCtx)
			cancel()
			s.logger.Info("historian stopped")
			return
		case <-ticker.C:
			s.Flush(ctx)
		default:
			payload, ok, err := s.queue.Pop(ctx, popTimeout)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Errorf("queue pop: %v", err)
				}
				continue
			}
			if ok {
				s.Add(ctx, payload)
			}
		}
	}
}

// Add parses one queued payload and flushes if the batch is full.
func (s *Service) Add(ctx context.Context, payload string) {
	var rec telemetry.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		s.logger.Warnf("invalid telemetry record: %v", err)
		return
	}

	s.batchMu.Lock()
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.batchSize
	s.batchMu.Unlock()

	if full {
		s.Flush(ctx)
	}
}

// Flush writes the pending batch. It returns the number of records written.
func (s *Service) Flush(ctx context.Context) int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	if len(s.batch) == 0 {
		return 0
	}
	pending := make([]telemetry.Record, len(s.batch))
	copy(pending, s.batch)

	if err := s.store.Store(ctx, pending); err != nil {
		s.logger.WithField("pending", len(pending)).Errorf("flush failed: %v", err)
		if limit := s.batchSize * maxPendingRatio; len(s.batch) > limit {
			dropped := len(s.batch) - limit
			s.batch = append(s.batch[:0], s.batch[dropped:]...)
			s.logger.Warnf("dropped %d oldest telemetry records", dropped)
		}
		return 0
	}
	s.batch = s.batch[:0]
	s.logger.Debugf("flushed %d telemetry records", len(pending))
	return len(pending)
}

// Pending returns the number of records waiting to be flushed.
func (s *Service) Pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}
