// internal/command/errors.go
package command

import "fmt"

// Code is the closed set of failure codes carried by a negative Ack.
type Code string

const (
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotInRoom         Code = "NOT_IN_ROOM"
	CodeRoomNotFound      Code = "ROOM_NOT_FOUND"
	CodeRoomTerminated    Code = "ROOM_TERMINATED"
	CodeInvalidPhase      Code = "INVALID_PHASE"
	CodeRoomLocked        Code = "ROOM_LOCKED"
	CodeNotActivePlayer   Code = "NOT_ACTIVE_PLAYER"
	CodeInvalidPayload    Code = "INVALID_PAYLOAD"
	CodeInvalidPlacement  Code = "INVALID_PLACEMENT"
	CodeAlreadyPaused     Code = "ALREADY_PAUSED"
	CodeNotPaused         Code = "NOT_PAUSED"
	CodeNoPlacement       Code = "NO_PLACEMENT"
	CodeSessionNotFound   Code = "SESSION_NOT_FOUND"
	CodePlayerNotFound    Code = "PLAYER_NOT_FOUND"
	CodeNonMobileDevice   Code = "NON_MOBILE_DEVICE"
	CodeRoomCodeExhausted Code = "ROOM_CODE_EXHAUSTED"
	CodeNotEnoughPlayers  Code = "NOT_ENOUGH_PLAYERS"
	CodeInternal          Code = "INTERNAL_ERROR"
)

// Error is a typed command failure. It never mutates room state.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
