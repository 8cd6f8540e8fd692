// internal/game/events.go
package game

import (
	"github.com/jason-s-yu/hitline/internal/models"
)

// EventType names an outbound event on the wire.
type EventType string

const (
	EventRoomSnapshot   EventType = "room.snapshot"
	EventRoomClosed     EventType = "room.closed"
	EventGameStarted    EventType = "game.started"
	EventGameEnded      EventType = "game.ended"
	EventGameTerminated EventType = "game.terminated"
	EventTurnDealt      EventType = "turn.dealt"        // public
	EventTurnDealtHost  EventType = "turn.dealt.host"   // host only: face-up card and every timeline
	EventTurnDealtPlyr  EventType = "turn.dealt.player" // active player only: own timeline
	EventTurnPlaced     EventType = "turn.placed"
	EventTurnRemoved    EventType = "turn.removed"
	EventTurnReveal     EventType = "turn.reveal"
	EventPlayerKicked   EventType = "player.kicked"
)

// Event is a single outbound message. Data is one of the payload structs below.
type Event struct {
	Type EventType   `json:"event"`
	Data interface{} `json:"data"`
}

// Reasons attached to game.ended, game.terminated, room.closed and turn.reveal.
const (
	ReasonWin           = "WIN"
	ReasonDeckEmpty     = "DECK_EMPTY"
	ReasonNoPlayers     = "NO_PLAYERS"
	ReasonHostLeft      = "HOST_LEFT"
	ReasonHostDeleted   = "HOST_DELETED"
	ReasonHostTerminate = "HOST_TERMINATED"

	RevealLock    = "LOCK"
	RevealTimeout = "TIMEOUT"
)

type PlayerView struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Connected      bool   `json:"connected"`
	TimelineLength int    `json:"timelineLength"`
}

// Snapshot is the public, role-agnostic projection of a room.
type Snapshot struct {
	Code                  string       `json:"code"`
	Seq                   int64        `json:"seq"`
	Phase                 models.Phase `json:"phase"`
	ActivePlayerID        *string      `json:"activePlayerId"`
	TurnNumber            int          `json:"turnNumber"`
	TurnExpiresAt         *int64       `json:"turnExpiresAt"`
	Paused                bool         `json:"paused"`
	PausedTurnRemainingMs *int64       `json:"pausedTurnRemainingMs,omitempty"`
	HostConnected         bool         `json:"hostConnected"`
	Players               []PlayerView `json:"players"`
}

type RoomClosed struct {
	Reason string `json:"reason"`
}

type GameStarted struct {
	TurnOrder      []string                 `json:"turnOrder"`
	ActivePlayerID string                   `json:"activePlayerId"`
	TurnNumber     int                      `json:"turnNumber"`
	Timelines      map[string][]models.Card `json:"timelines"`
}

type GameEnded struct {
	WinnerID *string `json:"winnerId,omitempty"`
	Reason   string  `json:"reason"`
}

type GameTerminated struct {
	RoomCode     string `json:"roomCode"`
	Reason       string `json:"reason"`
	TerminatedAt int64  `json:"terminatedAt"`
}

type TurnDealt struct {
	ActivePlayerID string `json:"activePlayerId"`
	TurnNumber     int    `json:"turnNumber"`
	ExpiresAt      int64  `json:"expiresAt,omitempty"`

	PausedRemainingMs *int64 `json:"pausedRemainingMs,omitempty"`
}

type TurnDealtHost struct {
	TurnDealt
	Card      models.Card              `json:"card"`
	Timelines map[string][]models.Card `json:"timelines"`
}

type TurnDealtPlayer struct {
	TurnDealt
	Timeline []models.Card `json:"timeline"`
}

type TurnPlaced struct {
	PlayerID       string `json:"playerId"`
	PlacementIndex int    `json:"placementIndex"`
}

type TurnRemoved struct {
	PlayerID string `json:"playerId"`
}

type TurnReveal struct {
	PlayerID       string         `json:"playerId"`
	Card           models.Card    `json:"card"`
	Correct        bool           `json:"correct"`
	PlacementIndex int            `json:"placementIndex"`
	Timeline       []models.Card  `json:"timeline"`
	Scores         map[string]int `json:"scores"`
	Reason         string         `json:"reason"`
}

type PlayerKicked struct {
	PlayerID string `json:"playerId"`
}
