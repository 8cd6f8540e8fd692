// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes sent by the room transport.
const (
	// ForcedDisconnectCode closes a socket the engine released: the player was
	// kicked, the session was resumed elsewhere, or the room was torn down.
	ForcedDisconnectCode websocket.StatusCode = 4000
)
