package models

import "time"

// Phase is a room's stage in the turn state machine.
type Phase string

const (
	PhaseLobby  Phase = "LOBBY"
	PhaseDeal   Phase = "DEAL"
	PhasePlace  Phase = "PLACE"
	PhaseLock   Phase = "LOCK"
	PhaseReveal Phase = "REVEAL"
	PhaseEnd    Phase = "END"
)

// InGame reports whether the phase belongs to a running turn loop.
func (p Phase) InGame() bool {
	switch p {
	case PhaseDeal, PhasePlace, PhaseLock, PhaseReveal:
		return true
	}
	return false
}

// Role identifies which kind of session a connection is bound to.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// TerminationRecord remembers a forcibly ended room so late reconnects can be told why.
type TerminationRecord struct {
	RoomCode     string    `json:"roomCode"`
	Reason       string    `json:"reason"`
	TerminatedAt time.Time `json:"terminatedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Expired reports whether the record outlived its TTL at the given instant.
func (r *TerminationRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
