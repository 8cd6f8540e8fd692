// internal/command/api.go
package command

import (
	"runtime/debug"

	"github.com/jason-s-yu/hitline/internal/game"
	"github.com/jason-s-yu/hitline/internal/models"
	"github.com/jason-s-yu/hitline/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// Inbound action names as they appear on the wire.
const (
	ActionRoomCreate    = "room.create"
	ActionRoomJoin      = "room.join"
	ActionHostResume    = "host.resume"
	ActionPlayerResume  = "player.resume"
	ActionRoomLeave     = "room.leave"
	ActionRoomDelete    = "room.delete"
	ActionGameStart     = "game.start"
	ActionGamePause     = "game.pause"
	ActionGameResume    = "game.resume"
	ActionGameTerminate = "game.terminate"
	ActionTurnPlace     = "turn.place"
	ActionTurnRemove    = "turn.remove"
	ActionTurnReveal    = "turn.reveal"
	ActionTurnLock      = "turn.lock"
	ActionKickPlayer    = "kickPlayer"
	ActionDisconnect    = "disconnect"
)

// Conn identifies the caller of a command.
type Conn struct {
	ID        string
	UserAgent string
}

// API validates and applies inbound commands. Each method runs under the
// runtime lock and returns its Ack synchronously.
type API struct {
	rt    *game.Runtime
	turns *game.TurnRuntime
	log   logrus.FieldLogger
}

func NewAPI(rt *game.Runtime, turns *game.TurnRuntime) *API {
	return &API{
		rt:    rt,
		turns: turns,
		log:   rt.Logger().WithField("component", "command"),
	}
}

// session is the caller's resolved binding.
type session struct {
	entry  game.ConnEntry
	room   *game.Room
	player *models.Player
}

// run serializes fn against every other command and timer callback,
// converts its result into an Ack and records telemetry. A panic in fn
// becomes an INTERNAL_ERROR ack.
func (a *API) run(c Conn, action string, fn func() (map[string]interface{}, *Error)) (ack Ack) {
	a.rt.Mu.Lock()
	defer a.rt.Mu.Unlock()

	before, _ := a.rt.Conn(c.ID)
	defer func() {
		if r := recover(); r != nil {
			a.log.WithFields(logrus.Fields{
				"action": action,
				"conn":   c.ID,
			}).Errorf("panic handling command: %v\n%s", r, debug.Stack())
			ack = fail(errorf(CodeInternal, "internal error"))
		}
		a.record(c, action, before, ack)
	}()

	data, err := fn()
	if err != nil {
		a.log.WithFields(logrus.Fields{
			"action": action,
			"conn":   c.ID,
			"code":   err.Code,
		}).Debug(err.Message)
		return fail(err)
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	return ok(data)
}

func (a *API) record(c Conn, action string, before game.ConnEntry, ack Ack) {
	entry := before
	if after, bound := a.rt.Conn(c.ID); bound {
		entry = after
	}
	rec := telemetry.Record{
		Kind:      telemetry.KindAction,
		Action:    action,
		RoomCode:  entry.RoomCode,
		Role:      string(entry.Role),
		OK:        ack.OK,
		Code:      string(ack.Code),
		Timestamp: a.rt.Now().UnixMilli(),
	}
	switch entry.Role {
	case models.RoleHost:
		rec.Actor = string(models.RoleHost)
	case models.RolePlayer:
		rec.Actor = entry.PlayerID
	}
	if room, live := a.rt.Room(entry.RoomCode); live {
		rec.Phase = string(room.Phase)
		a.rt.RecordFor(room, rec)
		return
	}
	a.rt.Record(rec)
}

// bound resolves the caller's connection, room and (for players) player record.
func (a *API) bound(c Conn) (session, *Error) {
	e, ok := a.rt.Conn(c.ID)
	if !ok {
		return session{}, errorf(CodeNotInRoom, "connection is not bound to a room")
	}
	room, ok := a.rt.Room(e.RoomCode)
	if !ok {
		return session{}, errorf(CodeRoomNotFound, "room %s not found", e.RoomCode)
	}
	if room.Terminated() {
		return session{}, errorf(CodeRoomTerminated, "room was terminated: %s", room.TerminationReason)
	}
	s := session{entry: e, room: room}
	if e.Role == models.RolePlayer {
		s.player = room.Player(e.PlayerID)
		if s.player == nil {
			return session{}, errorf(CodeNotInRoom, "player %s is no longer in the room", e.PlayerID)
		}
	}
	return s, nil
}

func (a *API) asHost(c Conn) (session, *Error) {
	s, err := a.bound(c)
	if err != nil {
		return s, err
	}
	if s.entry.Role != models.RoleHost {
		return s, errorf(CodeForbidden, "only the host can do that")
	}
	return s, nil
}

// asActivePlayer requires an open, unpaused placement window owned by the caller.
func (a *API) asActivePlayer(c Conn) (session, *Error) {
	s, err := a.bound(c)
	if err != nil {
		return s, err
	}
	if s.entry.Role != models.RolePlayer {
		return s, errorf(CodeForbidden, "only players can place cards")
	}
	if s.room.Phase != models.PhasePlace || s.room.Paused {
		return s, errorf(CodeInvalidPhase, "no placement window is open")
	}
	active := a.rt.ActivePlayer(s.room)
	if active == nil || active.ID != s.player.ID {
		return s, errorf(CodeNotActivePlayer, "it is not your turn")
	}
	return s, nil
}

// Disconnect marks the caller's session as disconnected. The player keeps
// their seat and turn slot.
func (a *API) Disconnect(connID string) {
	a.run(Conn{ID: connID}, ActionDisconnect, func() (map[string]interface{}, *Error) {
		e, ok := a.rt.DetachConn(connID)
		if !ok {
			return nil, nil
		}
		if room, live := a.rt.Room(e.RoomCode); live && !room.Terminated() {
			a.rt.BroadcastSnapshot(room)
		}
		return nil, nil
	})
}
