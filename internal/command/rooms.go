// internal/command/rooms.go
package command

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/jason-s-yu/hitline/internal/game"
	"github.com/jason-s-yu/hitline/internal/models"
	"github.com/sirupsen/logrus"
)

const maxNameRunes = 24

type JoinRequest struct {
	RoomCode string `json:"roomCode"`
	Name     string `json:"name"`
}

type HostResumeRequest struct {
	HostSessionToken string `json:"hostSessionToken"`
}

type PlayerResumeRequest struct {
	PlayerSessionToken string `json:"playerSessionToken"`
}

type KickRequest struct {
	PlayerID string `json:"playerId"`
}

// RoomCreate opens a new LOBBY room with the caller as host.
func (a *API) RoomCreate(c Conn) Ack {
	return a.run(c, ActionRoomCreate, func() (map[string]interface{}, *Error) {
		room, err := a.rt.CreateRoom()
		if errors.Is(err, game.ErrRoomCodeExhausted) {
			return nil, errorf(CodeRoomCodeExhausted, "no free room code, try again")
		}
		if err != nil {
			a.log.WithError(err).Error("failed to create room")
			return nil, errorf(CodeInternal, "could not create room")
		}
		a.rt.BindHost(room, c.ID)
		a.rt.BroadcastSnapshot(room)
		return map[string]interface{}{
			"roomCode":         room.Code,
			"hostSessionToken": room.Host.SessionToken,
		}, nil
	})
}

// RoomJoin adds the caller to a LOBBY room as a new player.
func (a *API) RoomJoin(c Conn, req JoinRequest) Ack {
	return a.run(c, ActionRoomJoin, func() (map[string]interface{}, *Error) {
		code := strings.TrimSpace(req.RoomCode)
		name := strings.TrimSpace(req.Name)
		if code == "" {
			return nil, errorf(CodeInvalidPayload, "roomCode is required")
		}
		if name == "" || utf8.RuneCountInString(name) > maxNameRunes {
			return nil, errorf(CodeInvalidPayload, "name must be 1 to %d characters", maxNameRunes)
		}
		if rec := a.rt.TerminationByCode(code); rec != nil {
			return nil, errorf(CodeRoomTerminated, "room was terminated: %s", rec.Reason)
		}
		room, live := a.rt.Room(code)
		if !live {
			return nil, errorf(CodeRoomNotFound, "room %s not found", code)
		}
		if room.Terminated() {
			return nil, errorf(CodeRoomTerminated, "room was terminated: %s", room.TerminationReason)
		}
		if room.Phase != models.PhaseLobby {
			return nil, errorf(CodeRoomLocked, "game already in progress")
		}
		if !isMobile(c.UserAgent) {
			return nil, errorf(CodeNonMobileDevice, "join from a phone or tablet")
		}

		p, err := a.rt.AddPlayer(room, name)
		if err != nil {
			a.log.WithError(err).Error("failed to add player")
			return nil, errorf(CodeInternal, "could not join room")
		}
		a.rt.BindPlayer(room, p, c.ID)
		a.rt.BroadcastSnapshot(room)
		return map[string]interface{}{
			"roomCode":           room.Code,
			"playerId":           p.ID,
			"playerSessionToken": p.SessionToken,
		}, nil
	})
}

// HostResume rebinds a host session to the calling connection.
func (a *API) HostResume(c Conn, req HostResumeRequest) Ack {
	return a.run(c, ActionHostResume, func() (map[string]interface{}, *Error) {
		token := strings.TrimSpace(req.HostSessionToken)
		if token == "" {
			return nil, errorf(CodeInvalidPayload, "hostSessionToken is required")
		}
		if err := a.rt.VerifySession(token, models.RoleHost); err != nil {
			a.log.WithField("session", game.TokenFingerprint(token)).Debugf("rejected host token: %v", err)
			return nil, errorf(CodeSessionNotFound, "unknown host session")
		}
		if rec := a.rt.TerminationByToken(token); rec != nil {
			return nil, errorf(CodeRoomTerminated, "room %s was terminated: %s", rec.RoomCode, rec.Reason)
		}
		room, found := a.rt.HostSession(token)
		if !found {
			return nil, errorf(CodeSessionNotFound, "unknown host session")
		}

		a.rt.BindHost(room, c.ID)
		a.rt.BroadcastSnapshot(room)
		a.turns.ReplayTurn(room, c.ID, models.RoleHost, "")
		a.log.WithFields(logrus.Fields{
			"room":    room.Code,
			"session": game.TokenFingerprint(token),
		}).Info("host resumed")
		return map[string]interface{}{
			"roomCode": room.Code,
			"phase":    room.Phase,
		}, nil
	})
}

// PlayerResume rebinds a player session to the calling connection.
func (a *API) PlayerResume(c Conn, req PlayerResumeRequest) Ack {
	return a.run(c, ActionPlayerResume, func() (map[string]interface{}, *Error) {
		token := strings.TrimSpace(req.PlayerSessionToken)
		if token == "" {
			return nil, errorf(CodeInvalidPayload, "playerSessionToken is required")
		}
		if err := a.rt.VerifySession(token, models.RolePlayer); err != nil {
			a.log.WithField("session", game.TokenFingerprint(token)).Debugf("rejected player token: %v", err)
			return nil, errorf(CodeSessionNotFound, "unknown player session")
		}
		if rec := a.rt.TerminationByToken(token); rec != nil {
			return nil, errorf(CodeRoomTerminated, "room %s was terminated: %s", rec.RoomCode, rec.Reason)
		}
		room, p, found := a.rt.PlayerSession(token)
		if !found {
			return nil, errorf(CodeSessionNotFound, "unknown player session")
		}

		a.rt.BindPlayer(room, p, c.ID)
		a.rt.BroadcastSnapshot(room)
		a.turns.ReplayTurn(room, c.ID, models.RolePlayer, p.ID)
		a.log.WithFields(logrus.Fields{
			"room":    room.Code,
			"player":  p.ID,
			"session": game.TokenFingerprint(token),
		}).Info("player resumed")
		return map[string]interface{}{
			"roomCode": room.Code,
			"playerId": p.ID,
			"phase":    room.Phase,
			"timeline": p.TimelineCopy(),
		}, nil
	})
}

// RoomLeave removes the caller. A host leaving ends the room for everyone;
// players may only leave from the lobby.
func (a *API) RoomLeave(c Conn) Ack {
	return a.run(c, ActionRoomLeave, func() (map[string]interface{}, *Error) {
		s, err := a.bound(c)
		if err != nil {
			return nil, err
		}
		if s.entry.Role == models.RoleHost {
			a.endByHost(s.room, game.ReasonHostLeft)
			return nil, nil
		}
		if s.room.Phase != models.PhaseLobby {
			return nil, errorf(CodeInvalidPhase, "players can only leave from the lobby")
		}
		a.rt.DetachConn(c.ID)
		a.rt.RemovePlayer(s.room, s.player.ID)
		a.rt.BroadcastSnapshot(s.room)
		return nil, nil
	})
}

// RoomDelete is the host's explicit teardown of the room.
func (a *API) RoomDelete(c Conn) Ack {
	return a.run(c, ActionRoomDelete, func() (map[string]interface{}, *Error) {
		s, err := a.asHost(c)
		if err != nil {
			return nil, err
		}
		a.endByHost(s.room, game.ReasonHostDeleted)
		return nil, nil
	})
}

// endByHost closes a room that has no game running and terminates one that does.
func (a *API) endByHost(room *game.Room, reason string) {
	if room.Phase.InGame() {
		a.rt.Terminate(room, reason)
		return
	}
	a.rt.Close(room, reason)
}

// KickPlayer removes a player at the host's request. If the kicked player
// held the turn, the next player's turn starts at once.
func (a *API) KickPlayer(c Conn, req KickRequest) Ack {
	return a.run(c, ActionKickPlayer, func() (map[string]interface{}, *Error) {
		s, err := a.asHost(c)
		if err != nil {
			return nil, err
		}
		id := strings.TrimSpace(req.PlayerID)
		if id == "" {
			return nil, errorf(CodeInvalidPayload, "playerId is required")
		}
		room := s.room
		target := room.Player(id)
		if target == nil {
			return nil, errorf(CodePlayerNotFound, "player %s not found", id)
		}

		wasActive := false
		if room.Phase.InGame() {
			if active := a.rt.ActivePlayer(room); active != nil && active.ID == id {
				wasActive = true
			}
		}

		connID := target.ConnID
		a.rt.RemovePlayer(room, id)
		if connID != "" {
			a.rt.Send(connID, game.EventPlayerKicked, game.PlayerKicked{PlayerID: id})
			a.rt.DisconnectConn(connID)
		}
		a.log.WithFields(logrus.Fields{"room": room.Code, "player": id, "active": wasActive}).Info("player kicked")

		if room.Phase.InGame() {
			if len(room.TurnOrder) == 0 {
				a.rt.Terminate(room, game.ReasonNoPlayers)
				return map[string]interface{}{"playerId": id}, nil
			}
			if wasActive {
				a.turns.DropActiveTurn(room)
			}
		}
		a.rt.BroadcastSnapshot(room)
		return map[string]interface{}{"playerId": id}, nil
	})
}
