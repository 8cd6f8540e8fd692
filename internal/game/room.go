// internal/game/room.go
package game

import (
	"fmt"
	"time"

	"github.com/jason-s-yu/hitline/internal/clock"
	"github.com/jason-s-yu/hitline/internal/models"
)

// Room holds the entire state of a single game instance in memory.
// Every field is guarded by the owning Runtime's Mu.
type Room struct {
	Code      string
	Seq       int64
	Phase     models.Phase
	CreatedAt time.Time

	TerminatedAt      *time.Time
	TerminationReason string

	Host    *models.Host
	Players []*models.Player

	// NextPlayerNumber drives player-id allocation. Never reused, even after kicks.
	NextPlayerNumber int

	// Turn logic
	TurnOrder      []string
	ActiveIndex    int
	TurnNumber     int
	Deck           []models.Card
	CurrentCard    *models.Card
	TentativeIndex *int

	TurnExpiresAt   *time.Time
	RevealExpiresAt *time.Time
	turnTask        clock.Task
	revealTask      clock.Task

	Paused                bool
	PausedTurnRemaining   *time.Duration
	PausedRevealRemaining *time.Duration

	// last telemetry index handed out for this room
	recordIndex int64
}

func newRoom(code string, host *models.Host, now time.Time) *Room {
	return &Room{
		Code:             code,
		Phase:            models.PhaseLobby,
		CreatedAt:        now,
		Host:             host,
		NextPlayerNumber: 1,
	}
}

// Terminated reports whether the room was forcibly ended.
func (r *Room) Terminated() bool {
	return r.TerminatedAt != nil
}

// Player returns the player with the given id, or nil.
func (r *Room) Player(id string) *models.Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// allocatePlayerID returns the next zero-padded sequential id.
func (r *Room) allocatePlayerID() string {
	id := fmt.Sprintf("%02d", r.NextPlayerNumber)
	r.NextPlayerNumber++
	return id
}

// removePlayer drops the player record. It returns the removed player or nil.
func (r *Room) removePlayer(id string) *models.Player {
	for i, p := range r.Players {
		if p.ID == id {
			r.Players = append(r.Players[:i:i], r.Players[i+1:]...)
			return p
		}
	}
	return nil
}

// removeFromTurnOrder splices id out of the turn order and shifts the active
// index so it keeps pointing at the same player, or at the successor when the
// active player is the one removed. It returns the removed position or -1.
func (r *Room) removeFromTurnOrder(id string) int {
	pos := -1
	for i, pid := range r.TurnOrder {
		if pid == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return -1
	}
	r.TurnOrder = append(r.TurnOrder[:pos:pos], r.TurnOrder[pos+1:]...)
	switch {
	case len(r.TurnOrder) == 0:
		r.ActiveIndex = 0
	case pos < r.ActiveIndex:
		r.ActiveIndex--
	case r.ActiveIndex >= len(r.TurnOrder):
		r.ActiveIndex = 0
	}
	return pos
}

// hasTimer reports whether either turn or reveal task is armed.
func (r *Room) hasTimer() bool {
	return r.turnTask != nil || r.revealTask != nil
}

// scores maps every player id to timeline length.
func (r *Room) scores() map[string]int {
	out := make(map[string]int, len(r.Players))
	for _, p := range r.Players {
		out[p.ID] = len(p.Timeline)
	}
	return out
}

// timelines returns a by-value copy of every player's timeline.
func (r *Room) timelines() map[string][]models.Card {
	out := make(map[string][]models.Card, len(r.Players))
	for _, p := range r.Players {
		out[p.ID] = p.TimelineCopy()
	}
	return out
}

// sessionTokens returns the host token followed by every player token.
func (r *Room) sessionTokens() []string {
	tokens := make([]string, 0, len(r.Players)+1)
	if r.Host != nil && r.Host.SessionToken != "" {
		tokens = append(tokens, r.Host.SessionToken)
	}
	for _, p := range r.Players {
		if p.SessionToken != "" {
			tokens = append(tokens, p.SessionToken)
		}
	}
	return tokens
}
