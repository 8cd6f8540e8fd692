// internal/game/store.go
package game

import (
	"github.com/jason-s-yu/hitline/internal/models"
)

// ConnEntry binds a live connection to its role in a room.
type ConnEntry struct {
	Role     models.Role
	RoomCode string
	PlayerID string
}

type playerSession struct {
	RoomCode string
	PlayerID string
}

// store holds the process-wide indices of one Runtime. It has no lock of its
// own; the Runtime's Mu guards it.
type store struct {
	rooms          map[string]*Room
	hostSessions   map[string]string // token -> room code
	playerSessions map[string]playerSession
	conns          map[string]ConnEntry

	terminatedByCode  map[string]*models.TerminationRecord
	terminatedByToken map[string]*models.TerminationRecord
}

func newStore() *store {
	return &store{
		rooms:             make(map[string]*Room),
		hostSessions:      make(map[string]string),
		playerSessions:    make(map[string]playerSession),
		conns:             make(map[string]ConnEntry),
		terminatedByCode:  make(map[string]*models.TerminationRecord),
		terminatedByToken: make(map[string]*models.TerminationRecord),
	}
}

func (s *store) addRoom(r *Room) {
	s.rooms[r.Code] = r
}

func (s *store) getRoom(code string) (*Room, bool) {
	r, ok := s.rooms[code]
	return r, ok
}

// deleteRoom removes the room and every session index pointing into it.
func (s *store) deleteRoom(r *Room) {
	if cur, ok := s.rooms[r.Code]; ok && cur == r {
		delete(s.rooms, r.Code)
	}
	for _, tok := range r.sessionTokens() {
		delete(s.hostSessions, tok)
		delete(s.playerSessions, tok)
	}
}

func (s *store) bindConn(connID string, e ConnEntry) {
	s.conns[connID] = e
}

func (s *store) conn(connID string) (ConnEntry, bool) {
	e, ok := s.conns[connID]
	return e, ok
}

func (s *store) unbindConn(connID string) {
	delete(s.conns, connID)
}

func (s *store) addTermination(rec *models.TerminationRecord, tokens []string) {
	s.terminatedByCode[rec.RoomCode] = rec
	for _, tok := range tokens {
		s.terminatedByToken[tok] = rec
	}
}

// evictTermination drops rec from both caches, leaving newer records for the same keys alone.
func (s *store) evictTermination(rec *models.TerminationRecord) {
	if cur, ok := s.terminatedByCode[rec.RoomCode]; ok && cur == rec {
		delete(s.terminatedByCode, rec.RoomCode)
	}
	for tok, cur := range s.terminatedByToken {
		if cur == rec {
			delete(s.terminatedByToken, tok)
		}
	}
}
