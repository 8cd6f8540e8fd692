// Package telemetry carries structured action and transition records out of
// the engine. Sinks are fire-and-forget: a failing sink never changes game behavior.
package telemetry

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Kind distinguishes inbound actions from state-machine transitions.
type Kind string

const (
	KindAction     Kind = "action"
	KindTransition Kind = "transition"
)

// Record is one telemetry entry.
type Record struct {
	ID        uuid.UUID              `json:"id"`
	Kind      Kind                   `json:"kind"`
	Action    string                 `json:"action"`
	RoomCode  string                 `json:"room_code,omitempty"`
	Actor     string                 `json:"actor,omitempty"`
	Role      string                 `json:"role,omitempty"`
	Phase     string                 `json:"phase,omitempty"`
	OK        bool                   `json:"ok"`
	Code      string                 `json:"code,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp int64                  `json:"timestamp"`

	// Index orders records within a room, starting at 1. Zero for records
	// with no live room.
	Index int64 `json:"index,omitempty"`
}

// Sink receives records. Implementations must not block the caller on I/O.
type Sink interface {
	Record(rec Record)
}

// Nop drops every record.
type Nop struct{}

func (Nop) Record(Record) {}

// Log writes records to a logrus logger at debug level.
type Log struct {
	Logger logrus.FieldLogger
}

func (l Log) Record(rec Record) {
	l.Logger.WithFields(logrus.Fields{
		"kind":   rec.Kind,
		"room":   rec.RoomCode,
		"actor":  rec.Actor,
		"phase":  rec.Phase,
		"ok":     rec.OK,
		"code":   rec.Code,
		"record": rec.ID,
		"index":  rec.Index,
	}).Debug(rec.Action)
}

// Fanout forwards each record to every sink in order.
type Fanout []Sink

func (f Fanout) Record(rec Record) {
	for _, s := range f {
		s.Record(rec)
	}
}

// Safe wraps a sink so that a nil sink or a panicking sink is absorbed.
type Safe struct {
	Sink   Sink
	Logger logrus.FieldLogger
}

func (s Safe) Record(rec Record) {
	if s.Sink == nil {
		return
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().UnixMilli()
	}
	defer func() {
		if r := recover(); r != nil && s.Logger != nil {
			s.Logger.WithField("action", rec.Action).Warnf("telemetry sink panicked: %v", r)
		}
	}()
	s.Sink.Record(rec)
}
