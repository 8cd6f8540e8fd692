// internal/database/telemetry.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/hitline/internal/telemetry"
)

// Schema creates the telemetry archive table if it is missing.
const Schema = `
CREATE TABLE IF NOT EXISTS telemetry_records (
	id          UUID PRIMARY KEY,
	kind        TEXT NOT NULL,
	action      TEXT NOT NULL,
	room_code   TEXT,
	actor       TEXT,
	role        TEXT,
	phase       TEXT,
	ok          BOOLEAN NOT NULL,
	code        TEXT,
	payload     JSONB,
	recorded_at TIMESTAMPTZ NOT NULL
);
ALTER TABLE telemetry_records ADD COLUMN IF NOT EXISTS record_index BIGINT NOT NULL DEFAULT 0;
CREATE INDEX IF NOT EXISTS telemetry_records_room_idx ON telemetry_records (room_code, record_index);
`

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db TxBeginner) error {
	return BeginTxFunc(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, Schema)
		return err
	})
}

const insertRecordQ = `
	INSERT INTO telemetry_records (
		id, kind, action, room_code, actor, role, phase, ok, code, payload, recorded_at, record_index
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO NOTHING
`

// InsertRecords writes a batch of records in one transaction. Records
// already archived are skipped, so a redelivered batch is harmless.
func InsertRecords(ctx context.Context, db TxBeginner, recs []telemetry.Record) error {
	if len(recs) == 0 {
		return nil
	}
	return BeginTxFunc(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range recs {
			var payload []byte
			if len(rec.Payload) > 0 {
				var err error
				if payload, err = json.Marshal(rec.Payload); err != nil {
					return fmt.Errorf("marshal payload for %s: %w", rec.ID, err)
				}
			}
			batch.Queue(insertRecordQ,
				rec.ID, string(rec.Kind), rec.Action,
				nullable(rec.RoomCode), nullable(rec.Actor), nullable(rec.Role), nullable(rec.Phase),
				rec.OK, nullable(rec.Code), payload, time.UnixMilli(rec.Timestamp).UTC(), rec.Index,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
