// internal/command/turns.go
package command

import (
	"strings"

	"github.com/jason-s-yu/hitline/internal/game"
	"github.com/jason-s-yu/hitline/internal/models"
)

const maxReasonLength = 64

type PauseRequest struct {
	RoomCode string `json:"roomCode"`
}

type TerminateRequest struct {
	Reason string `json:"reason"`
}

type PlaceRequest struct {
	PlacementIndex *int `json:"placementIndex"`
}

// GameStart fixes the turn order, deals the opening cards and starts the first turn.
func (a *API) GameStart(c Conn) Ack {
	return a.run(c, ActionGameStart, func() (map[string]interface{}, *Error) {
		s, err := a.asHost(c)
		if err != nil {
			return nil, err
		}
		if s.room.Phase != models.PhaseLobby {
			return nil, errorf(CodeInvalidPhase, "game can only start from the lobby")
		}
		if floor := a.rt.Options().MinPlayers; len(s.room.Players) < floor {
			return nil, errorf(CodeNotEnoughPlayers, "need at least %d player(s)", floor)
		}
		if err := a.turns.BeginGame(s.room); err != nil {
			a.log.WithError(err).WithField("room", s.room.Code).Error("failed to start game")
			return nil, errorf(CodeInternal, "could not start game")
		}
		return map[string]interface{}{
			"turnOrder": append([]string(nil), s.room.TurnOrder...),
		}, nil
	})
}

// checkRoomCode rejects a payload that names a different room than the caller's.
func checkRoomCode(s session, code string) *Error {
	if code = strings.TrimSpace(code); code != "" && code != s.room.Code {
		return errorf(CodeInvalidPayload, "roomCode does not match your room")
	}
	return nil
}

// GamePause freezes the running turn or reveal clock.
func (a *API) GamePause(c Conn, req PauseRequest) Ack {
	return a.run(c, ActionGamePause, func() (map[string]interface{}, *Error) {
		s, err := a.asHost(c)
		if err != nil {
			return nil, err
		}
		if !s.room.Phase.InGame() {
			return nil, errorf(CodeInvalidPhase, "no game in progress")
		}
		if s.room.Paused {
			return nil, errorf(CodeAlreadyPaused, "game is already paused")
		}
		if err := checkRoomCode(s, req.RoomCode); err != nil {
			return nil, err
		}
		a.turns.PauseRoom(s.room)
		data := map[string]interface{}{"paused": true}
		if r := s.room.PausedTurnRemaining; r != nil {
			data["pausedTurnRemainingMs"] = r.Milliseconds()
		}
		return data, nil
	})
}

// GameResume restarts the frozen clock with the time it had left.
func (a *API) GameResume(c Conn, req PauseRequest) Ack {
	return a.run(c, ActionGameResume, func() (map[string]interface{}, *Error) {
		s, err := a.asHost(c)
		if err != nil {
			return nil, err
		}
		if !s.room.Phase.InGame() {
			return nil, errorf(CodeInvalidPhase, "no game in progress")
		}
		if !s.room.Paused {
			return nil, errorf(CodeNotPaused, "game is not paused")
		}
		if err := checkRoomCode(s, req.RoomCode); err != nil {
			return nil, err
		}
		a.turns.ResumeRoom(s.room)
		return map[string]interface{}{"paused": false}, nil
	})
}

// GameTerminate force-ends the room. A second call hits ROOM_TERMINATED in
// the shared preconditions and broadcasts nothing.
func (a *API) GameTerminate(c Conn, req TerminateRequest) Ack {
	return a.run(c, ActionGameTerminate, func() (map[string]interface{}, *Error) {
		s, err := a.asHost(c)
		if err != nil {
			return nil, err
		}
		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			reason = game.ReasonHostTerminate
		}
		if len(reason) > maxReasonLength {
			return nil, errorf(CodeInvalidPayload, "reason is too long")
		}
		a.rt.Terminate(s.room, reason)
		return map[string]interface{}{
			"roomCode": s.room.Code,
			"reason":   reason,
		}, nil
	})
}

// TurnPlace sets or moves the active player's tentative placement.
func (a *API) TurnPlace(c Conn, req PlaceRequest) Ack {
	return a.run(c, ActionTurnPlace, func() (map[string]interface{}, *Error) {
		s, err := a.asActivePlayer(c)
		if err != nil {
			return nil, err
		}
		if req.PlacementIndex == nil {
			return nil, errorf(CodeInvalidPayload, "placementIndex is required")
		}
		idx := *req.PlacementIndex
		if idx < 0 || idx > len(s.player.Timeline) {
			return nil, errorf(CodeInvalidPlacement, "placementIndex must be between 0 and %d", len(s.player.Timeline))
		}
		s.room.TentativeIndex = &idx
		a.rt.Touch(s.room)
		a.rt.Broadcast(s.room, game.EventTurnPlaced, game.TurnPlaced{PlayerID: s.player.ID, PlacementIndex: idx})
		return map[string]interface{}{"placementIndex": idx}, nil
	})
}

// TurnRemove clears the tentative placement. With nothing placed it acks
// without broadcasting.
func (a *API) TurnRemove(c Conn) Ack {
	return a.run(c, ActionTurnRemove, func() (map[string]interface{}, *Error) {
		s, err := a.asActivePlayer(c)
		if err != nil {
			return nil, err
		}
		if s.room.TentativeIndex == nil {
			return nil, nil
		}
		s.room.TentativeIndex = nil
		a.rt.Touch(s.room)
		a.rt.Broadcast(s.room, game.EventTurnRemoved, game.TurnRemoved{PlayerID: s.player.ID})
		return nil, nil
	})
}

// TurnReveal locks in the tentative placement. turn.lock is the same command.
func (a *API) TurnReveal(c Conn) Ack {
	return a.run(c, ActionTurnReveal, func() (map[string]interface{}, *Error) {
		s, err := a.asActivePlayer(c)
		if err != nil {
			return nil, err
		}
		if s.room.TentativeIndex == nil {
			return nil, errorf(CodeNoPlacement, "place the card before revealing")
		}
		if !a.turns.ResolveLock(s.room, game.RevealLock) {
			return nil, errorf(CodeInvalidPhase, "turn could not be resolved")
		}
		return nil, nil
	})
}
