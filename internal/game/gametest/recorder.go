// Package gametest provides fakes for driving a game.Runtime in tests.
package gametest

import (
	"fmt"
	"sync"

	"github.com/jason-s-yu/hitline/internal/game"
	"github.com/jason-s-yu/hitline/internal/models"
	"github.com/jason-s-yu/hitline/internal/telemetry"
)

// Recorder is a game.Transport that collects events instead of writing them to sockets.
type Recorder struct {
	mu           sync.Mutex
	groups       map[string]map[string]bool // room code -> conn ids
	inbox        map[string][]game.Event    // events delivered to each conn
	broadcasts   map[string][]game.Event    // events broadcast to each room
	disconnected map[string]int
}

func NewRecorder() *Recorder {
	r := &Recorder{}
	r.Clear()
	return r
}

// Clear forgets every recorded event. Group membership is kept.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.groups == nil {
		r.groups = make(map[string]map[string]bool)
	}
	r.inbox = make(map[string][]game.Event)
	r.broadcasts = make(map[string][]game.Event)
	r.disconnected = make(map[string]int)
}

func (r *Recorder) Join(connID, roomCode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[roomCode]
	if !ok {
		g = make(map[string]bool)
		r.groups[roomCode] = g
	}
	g[connID] = true
}

func (r *Recorder) Leave(connID, roomCode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.groups[roomCode], connID)
}

func (r *Recorder) Broadcast(roomCode string, ev game.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts[roomCode] = append(r.broadcasts[roomCode], ev)
	for c := range r.groups[roomCode] {
		r.inbox[c] = append(r.inbox[c], ev)
	}
}

func (r *Recorder) Send(connID string, ev game.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inbox[connID] = append(r.inbox[connID], ev)
}

func (r *Recorder) Disconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected[connID]++
	for _, g := range r.groups {
		delete(g, connID)
	}
}

// Events returns everything delivered to connID, in order.
func (r *Recorder) Events(connID string) []game.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]game.Event(nil), r.inbox[connID]...)
}

// Broadcasts returns everything broadcast to a room, in order.
func (r *Recorder) Broadcasts(roomCode string) []game.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]game.Event(nil), r.broadcasts[roomCode]...)
}

// Last returns the most recent event of type t delivered to connID.
func (r *Recorder) Last(connID string, t game.EventType) (game.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	evs := r.inbox[connID]
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == t {
			return evs[i], true
		}
	}
	return game.Event{}, false
}

// LastBroadcast returns the most recent broadcast of type t to a room.
func (r *Recorder) LastBroadcast(roomCode string, t game.EventType) (game.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	evs := r.broadcasts[roomCode]
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == t {
			return evs[i], true
		}
	}
	return game.Event{}, false
}

// Count returns how many events of type t were delivered to connID.
func (r *Recorder) Count(connID string, t game.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.inbox[connID] {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// CountBroadcast returns how many events of type t were broadcast to a room.
func (r *Recorder) CountBroadcast(roomCode string, t game.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.broadcasts[roomCode] {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// Disconnected reports whether connID was force-closed.
func (r *Recorder) Disconnected(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnected[connID] > 0
}

// Member reports whether connID is currently joined to the room's group.
func (r *Recorder) Member(connID, roomCode string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.groups[roomCode][connID]
}

// Deck returns n distinct cards with strictly increasing years starting at 1950.
func Deck(n int) []models.Card {
	cards := make([]models.Card, n)
	for i := range cards {
		cards[i] = models.Card{
			Title:  fmt.Sprintf("Song %d", i+1),
			Artist: fmt.Sprintf("Artist %d", i+1),
			Year:   1950 + i,
		}
	}
	return cards
}

// ZeroReader is an io.Reader of endless zero bytes, making crypto/rand draws deterministic.
type ZeroReader struct{}

func (ZeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// Sink is a telemetry.Sink that keeps every record in order of arrival.
type Sink struct {
	mu   sync.Mutex
	recs []telemetry.Record
}

func (s *Sink) Record(rec telemetry.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
}

// Room returns the records tagged with roomCode.
func (s *Sink) Room(roomCode string) []telemetry.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []telemetry.Record
	for _, rec := range s.recs {
		if rec.RoomCode == roomCode {
			out = append(out, rec)
		}
	}
	return out
}
