// internal/handlers/server.go
package handlers

import (
	"encoding/json"
	"net/http"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/jason-s-yu/hitline/internal/command"
	"github.com/jason-s-yu/hitline/internal/game"
	"github.com/jason-s-yu/hitline/internal/middleware"
	"github.com/sirupsen/logrus"
)

// NewRouter wires the WebSocket endpoint and health check behind request
// logging and panic recovery.
func NewRouter(logger *logrus.Logger, hub *Hub, api *command.API, rt *game.Runtime) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", RoomWSHandler(logger, hub, api))
	mux.Handle("/healthz", HealthHandler(hub, rt))

	var h http.Handler = mux
	h = middleware.LogMiddleware(logger)(h)
	h = gorillahandlers.RecoveryHandler(
		gorillahandlers.RecoveryLogger(logger),
		gorillahandlers.PrintRecoveryStack(true),
	)(h)
	return gorillahandlers.ProxyHeaders(h)
}

// HealthHandler reports liveness with a few gauges.
func HealthHandler(hub *Hub, rt *game.Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "ok",
			"rooms":       rt.RoomCount(),
			"connections": hub.Count(),
		})
	}
}
