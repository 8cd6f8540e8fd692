// internal/handlers/router.go
package handlers

import (
	"encoding/json"

	"github.com/jason-s-yu/hitline/internal/command"
)

// Inbound is one client message: {"event": ..., "id": ..., "data": {...}}.
type Inbound struct {
	Event string          `json:"event"`
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Dispatch maps a wire event name onto its command. It carries no game rules.
func Dispatch(api *command.API, c command.Conn, in Inbound) command.Ack {
	switch in.Event {
	case command.ActionRoomCreate:
		return api.RoomCreate(c)
	case command.ActionRoomJoin:
		var req command.JoinRequest
		if !decode(in.Data, &req) {
			return invalidPayload()
		}
		return api.RoomJoin(c, req)
	case command.ActionHostResume:
		var req command.HostResumeRequest
		if !decode(in.Data, &req) {
			return invalidPayload()
		}
		return api.HostResume(c, req)
	case command.ActionPlayerResume:
		var req command.PlayerResumeRequest
		if !decode(in.Data, &req) {
			return invalidPayload()
		}
		return api.PlayerResume(c, req)
	case command.ActionRoomLeave:
		return api.RoomLeave(c)
	case command.ActionRoomDelete:
		return api.RoomDelete(c)
	case command.ActionGameStart:
		return api.GameStart(c)
	case command.ActionGamePause, command.ActionGameResume:
		var req command.PauseRequest
		if !decode(in.Data, &req) {
			return invalidPayload()
		}
		if in.Event == command.ActionGamePause {
			return api.GamePause(c, req)
		}
		return api.GameResume(c, req)
	case command.ActionGameTerminate:
		var req command.TerminateRequest
		if !decode(in.Data, &req) {
			return invalidPayload()
		}
		return api.GameTerminate(c, req)
	case command.ActionTurnPlace:
		var req command.PlaceRequest
		if !decode(in.Data, &req) {
			return invalidPayload()
		}
		return api.TurnPlace(c, req)
	case command.ActionTurnRemove:
		return api.TurnRemove(c)
	case command.ActionTurnReveal, command.ActionTurnLock:
		return api.TurnReveal(c)
	case command.ActionKickPlayer:
		var req command.KickRequest
		if !decode(in.Data, &req) {
			return invalidPayload()
		}
		return api.KickPlayer(c, req)
	}
	return command.Ack{OK: false, Code: command.CodeInvalidPayload, Message: "unknown event: " + in.Event}
}

// decode accepts an absent body as an empty object.
func decode(raw json.RawMessage, v interface{}) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return true
	}
	return json.Unmarshal(raw, v) == nil
}

func invalidPayload() command.Ack {
	return command.Ack{OK: false, Code: command.CodeInvalidPayload, Message: "malformed data"}
}

// ackMessage is the wire form of an Ack addressed to the request id.
func ackMessage(id string, ack command.Ack) map[string]interface{} {
	msg := ack.Fields()
	msg["event"] = "ack"
	msg["id"] = id
	return msg
}
