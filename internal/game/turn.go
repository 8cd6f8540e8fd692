// internal/game/turn.go
package game

import (
	"time"

	"github.com/jason-s-yu/hitline/internal/models"
	"github.com/sirupsen/logrus"
)

// TurnRuntime drives the per-room phase machine on top of a Runtime:
// dealing, the placement window, lock and reveal, pause and resume, and
// game end. Every method assumes rt.Mu is held.
type TurnRuntime struct {
	rt  *Runtime
	log logrus.FieldLogger
}

// NewTurnRuntime binds a TurnRuntime to its Runtime.
func NewTurnRuntime(rt *Runtime) *TurnRuntime {
	return &TurnRuntime{
		rt:  rt,
		log: rt.log.WithField("component", "turns"),
	}
}

// IsCorrectPlacement reports whether inserting card at idx keeps the
// timeline in non-decreasing year order. Equal years are accepted on both sides.
func IsCorrectPlacement(timeline []models.Card, card models.Card, idx int) bool {
	if idx < 0 || idx > len(timeline) {
		return false
	}
	if idx > 0 && card.Year < timeline[idx-1].Year {
		return false
	}
	if idx < len(timeline) && card.Year > timeline[idx].Year {
		return false
	}
	return true
}

// insertCard returns a new timeline with card at idx. The input is not modified.
func insertCard(timeline []models.Card, card models.Card, idx int) []models.Card {
	out := make([]models.Card, 0, len(timeline)+1)
	out = append(out, timeline[:idx]...)
	out = append(out, card)
	return append(out, timeline[idx:]...)
}

func (t *TurnRuntime) setPhase(room *Room, to models.Phase) {
	if room.Phase == to {
		return
	}
	from := room.Phase
	room.Phase = to
	t.rt.RecordTransition(room, from, string(to), nil)
}

// BeginGame resets the room and starts the turn loop. Preconditions
// (phase, player floor) are the caller's.
func (t *TurnRuntime) BeginGame(room *Room) error {
	deck, err := t.rt.ShuffleDeck()
	if err != nil {
		return err
	}

	order := make([]string, 0, len(room.Players))
	for _, p := range room.Players {
		p.Timeline = nil
		order = append(order, p.ID)
	}
	room.TurnOrder = order
	room.ActiveIndex = 0
	room.TurnNumber = 0
	room.Deck = deck
	room.CurrentCard = nil
	room.TentativeIndex = nil
	room.Paused = false
	room.PausedTurnRemaining = nil
	room.PausedRevealRemaining = nil
	t.rt.ClearTimers(room)

	t.setPhase(room, models.PhaseDeal)
	t.SeedTimelines(room)

	first := t.rt.ActivePlayer(room)
	started := GameStarted{
		TurnOrder:  append([]string(nil), room.TurnOrder...),
		TurnNumber: room.TurnNumber + 1,
		Timelines:  room.timelines(),
	}
	if first != nil {
		started.ActivePlayerID = first.ID
	}
	t.rt.Broadcast(room, EventGameStarted, started)
	t.log.WithFields(logrus.Fields{"room": room.Code, "players": len(order), "deck": len(room.Deck)}).Info("game started")

	t.StartTurn(room)
	return nil
}

// SeedTimelines deals one card from the deck into every player's timeline.
func (t *TurnRuntime) SeedTimelines(room *Room) {
	for _, p := range room.Players {
		if len(room.Deck) == 0 {
			t.log.WithField("room", room.Code).Warn("deck exhausted while seeding timelines")
			return
		}
		p.Timeline = []models.Card{room.Deck[0]}
		room.Deck = room.Deck[1:]
	}
}

// StartTurn deals the next card to the active player and arms the turn timer.
// It ends the game when nobody is left to play or the deck ran out.
func (t *TurnRuntime) StartTurn(room *Room) {
	if room.Terminated() || room.Paused {
		return
	}
	t.rt.ClearTimers(room)

	p := t.rt.ActivePlayer(room)
	if p == nil {
		t.EndGame(room, "", ReasonNoPlayers)
		return
	}
	if len(room.Deck) == 0 {
		t.EndGame(room, "", ReasonDeckEmpty)
		return
	}

	card := room.Deck[0]
	room.Deck = room.Deck[1:]
	room.CurrentCard = &card
	room.TentativeIndex = nil
	room.RevealExpiresAt = nil
	room.TurnNumber++

	t.setPhase(room, models.PhaseDeal)
	t.setPhase(room, models.PhasePlace)

	d := t.rt.opts.TurnDuration
	expires := t.rt.clock.Now().Add(d)
	room.TurnExpiresAt = &expires

	dealt := t.turnDealt(room, p)
	t.rt.Broadcast(room, EventTurnDealt, dealt)
	t.rt.SendHost(room, EventTurnDealtHost, TurnDealtHost{TurnDealt: dealt, Card: card, Timelines: room.timelines()})
	t.rt.SendPlayer(p, EventTurnDealtPlyr, TurnDealtPlayer{TurnDealt: dealt, Timeline: p.TimelineCopy()})

	t.rt.armTurn(room, d, t.HandleTurnTimeout)
	t.rt.BroadcastSnapshot(room)

	t.log.WithFields(logrus.Fields{"room": room.Code, "player": p.ID, "turn": room.TurnNumber}).Debug("turn dealt")
}

// turnDealt builds the public deal payload. A paused turn carries its frozen
// remaining time instead of an expiry.
func (t *TurnRuntime) turnDealt(room *Room, p *models.Player) TurnDealt {
	d := TurnDealt{ActivePlayerID: p.ID, TurnNumber: room.TurnNumber}
	switch {
	case room.Paused:
		if r := room.PausedTurnRemaining; r != nil {
			ms := r.Milliseconds()
			d.PausedRemainingMs = &ms
		}
	case room.TurnExpiresAt != nil:
		d.ExpiresAt = room.TurnExpiresAt.UnixMilli()
	}
	return d
}

// ResolveLock commits the tentative placement and broadcasts the reveal.
// It reports false when there is nothing to resolve.
func (t *TurnRuntime) ResolveLock(room *Room, reason string) bool {
	if room.Terminated() || room.Paused {
		return false
	}
	p := t.rt.ActivePlayer(room)
	if p == nil || room.CurrentCard == nil || room.TentativeIndex == nil {
		return false
	}
	t.rt.ClearTimers(room)

	card := *room.CurrentCard
	idx := *room.TentativeIndex
	t.setPhase(room, models.PhaseLock)

	correct := IsCorrectPlacement(p.Timeline, card, idx)
	if correct {
		p.Timeline = insertCard(p.Timeline, card, idx)
	}
	room.CurrentCard = nil
	room.TentativeIndex = nil
	room.TurnExpiresAt = nil

	t.setPhase(room, models.PhaseReveal)
	t.rt.Broadcast(room, EventTurnReveal, TurnReveal{
		PlayerID:       p.ID,
		Card:           card,
		Correct:        correct,
		PlacementIndex: idx,
		Timeline:       p.TimelineCopy(),
		Scores:         room.scores(),
		Reason:         reason,
	})
	t.log.WithFields(logrus.Fields{
		"room":    room.Code,
		"player":  p.ID,
		"correct": correct,
		"reason":  reason,
	}).Debug("turn revealed")

	if len(p.Timeline) >= t.rt.opts.WinCardCount {
		t.EndGame(room, p.ID, ReasonWin)
		return true
	}

	d := t.rt.opts.RevealDuration
	expires := t.rt.clock.Now().Add(d)
	room.RevealExpiresAt = &expires
	t.rt.armReveal(room, d, t.handleRevealElapsed)
	t.rt.BroadcastSnapshot(room)
	return true
}

// HandleTurnTimeout resolves an idle turn by appending the card to the end
// of the active player's timeline.
func (t *TurnRuntime) HandleTurnTimeout(room *Room) {
	if room.Terminated() || room.Paused || room.CurrentCard == nil {
		return
	}
	p := t.rt.ActivePlayer(room)
	if p == nil {
		return
	}
	if room.TentativeIndex == nil {
		n := len(p.Timeline)
		room.TentativeIndex = &n
	}
	t.ResolveLock(room, RevealTimeout)
}

func (t *TurnRuntime) handleRevealElapsed(room *Room) {
	room.RevealExpiresAt = nil
	if room.Phase != models.PhaseReveal {
		return
	}
	t.AdvanceToNextPlayer(room)
	t.StartTurn(room)
}

// AdvanceToNextPlayer moves the active index one slot forward, wrapping.
func (t *TurnRuntime) AdvanceToNextPlayer(room *Room) {
	n := len(room.TurnOrder)
	if n == 0 {
		return
	}
	room.ActiveIndex = (room.ActiveIndex + 1) % n
}

// PauseRoom freezes whichever timer is armed and stops it.
func (t *TurnRuntime) PauseRoom(room *Room) {
	now := t.rt.clock.Now()
	room.PausedTurnRemaining = nil
	room.PausedRevealRemaining = nil
	if room.turnTask != nil && room.TurnExpiresAt != nil {
		r := remaining(*room.TurnExpiresAt, now)
		room.PausedTurnRemaining = &r
	}
	if room.revealTask != nil && room.RevealExpiresAt != nil {
		r := remaining(*room.RevealExpiresAt, now)
		room.PausedRevealRemaining = &r
	}
	t.rt.ClearTimers(room)
	room.Paused = true

	t.rt.RecordTransition(room, room.Phase, "paused", nil)
	t.rt.BroadcastSnapshot(room)
}

// ResumeRoom re-arms the frozen timer with its captured remaining time,
// measured from now. A mid-game room with nothing frozen gets a fresh turn.
func (t *TurnRuntime) ResumeRoom(room *Room) {
	room.Paused = false
	now := t.rt.clock.Now()
	turnLeft, revealLeft := room.PausedTurnRemaining, room.PausedRevealRemaining
	room.PausedTurnRemaining = nil
	room.PausedRevealRemaining = nil
	t.rt.RecordTransition(room, room.Phase, "resumed", nil)

	switch {
	case revealLeft != nil:
		expires := now.Add(*revealLeft)
		room.RevealExpiresAt = &expires
		t.rt.armReveal(room, *revealLeft, t.handleRevealElapsed)
	case turnLeft != nil:
		expires := now.Add(*turnLeft)
		room.TurnExpiresAt = &expires
		t.rt.armTurn(room, *turnLeft, t.HandleTurnTimeout)
	case room.Phase.InGame() && !room.hasTimer():
		t.StartTurn(room)
		return
	}
	t.rt.BroadcastSnapshot(room)
}

// DropActiveTurn abandons the current turn after its player was removed.
// While paused the dealt card is discarded and the room waits in DEAL
// until resume deals a fresh turn.
func (t *TurnRuntime) DropActiveTurn(room *Room) {
	t.rt.ClearTimers(room)
	room.TentativeIndex = nil
	if room.Paused {
		room.CurrentCard = nil
		room.TurnExpiresAt = nil
		room.RevealExpiresAt = nil
		room.PausedTurnRemaining = nil
		room.PausedRevealRemaining = nil
		t.setPhase(room, models.PhaseDeal)
		return
	}
	t.StartTurn(room)
}

// EndGame moves the room to END. winnerID is empty when nobody won.
func (t *TurnRuntime) EndGame(room *Room, winnerID, reason string) {
	t.rt.ClearTimers(room)
	room.CurrentCard = nil
	room.TentativeIndex = nil
	room.TurnExpiresAt = nil
	room.RevealExpiresAt = nil
	room.Paused = false
	room.PausedTurnRemaining = nil
	room.PausedRevealRemaining = nil

	t.setPhase(room, models.PhaseEnd)
	ended := GameEnded{Reason: reason}
	if winnerID != "" {
		ended.WinnerID = &winnerID
	}
	t.rt.Broadcast(room, EventGameEnded, ended)
	t.rt.BroadcastSnapshot(room)
	t.log.WithFields(logrus.Fields{"room": room.Code, "winner": winnerID, "reason": reason}).Info("game ended")
}

// ReplayTurn sends a reconnecting connection the turn events its role is
// entitled to, if a placement window is open.
func (t *TurnRuntime) ReplayTurn(room *Room, connID string, role models.Role, playerID string) {
	if room.Phase != models.PhasePlace || room.CurrentCard == nil {
		return
	}
	p := t.rt.ActivePlayer(room)
	if p == nil {
		return
	}
	dealt := t.turnDealt(room, p)
	if role == models.RoleHost {
		t.rt.Send(connID, EventTurnDealtHost, TurnDealtHost{TurnDealt: dealt, Card: *room.CurrentCard, Timelines: room.timelines()})
	} else {
		t.rt.Send(connID, EventTurnDealt, dealt)
		if playerID == p.ID {
			t.rt.Send(connID, EventTurnDealtPlyr, TurnDealtPlayer{TurnDealt: dealt, Timeline: p.TimelineCopy()})
		}
	}
	if room.TentativeIndex != nil {
		t.rt.Send(connID, EventTurnPlaced, TurnPlaced{PlayerID: p.ID, PlacementIndex: *room.TentativeIndex})
	}
}

func remaining(expires, now time.Time) time.Duration {
	if r := expires.Sub(now); r > 0 {
		return r
	}
	return 0
}
