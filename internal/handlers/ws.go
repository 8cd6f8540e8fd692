// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/hitline/internal/command"
	"github.com/jason-s-yu/hitline/internal/middleware"
	"github.com/sirupsen/logrus"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	pingTimeout  = 15 * time.Second
	readLimit    = 16 << 10
)

// RoomWSHandler accepts a WebSocket and bridges it to the command API.
// Hosts and players share the endpoint; the first command binds the role.
func RoomWSHandler(logger *logrus.Logger, hub *Hub, api *command.API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")
		c.SetReadLimit(readLimit)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		client := &Client{
			ID:        uuid.NewString(),
			UserAgent: r.UserAgent(),
			Remote:    r.RemoteAddr,
			OutChan:   make(chan interface{}, outQueueSize),
			Cancel:    cancel,
		}
		hub.Register(client)
		middleware.LogWebSocketConnect(logger, client.Remote, r.URL.Path)

		go writePump(ctx, c, client, logger)
		readErr := readPump(ctx, c, hub, api, client, logger)

		// Disconnect is not leave: the session keeps its seat until resumed.
		api.Disconnect(client.ID)
		hub.Unregister(client.ID)
		middleware.LogWebSocketDisconnect(logger, client.Remote, r.URL.Path, readErr)
	}
}

// readPump decodes inbound messages and runs each command to completion
// before reading the next. It returns the error that ended the loop.
func readPump(ctx context.Context, c *websocket.Conn, hub *Hub, api *command.API, client *Client, logger *logrus.Logger) error {
	conn := command.Conn{ID: client.ID, UserAgent: client.UserAgent}
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway, ForcedDisconnectCode:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			logger.WithField("conn", client.ID).Warnf("ignoring non-text message type %d", typ)
			continue
		}

		var in Inbound
		if err := json.Unmarshal(msg, &in); err != nil || in.Event == "" {
			hub.reply(client, ackMessage(in.ID, invalidPayload()))
			continue
		}
		ack := Dispatch(api, conn, in)
		hub.reply(client, ackMessage(in.ID, ack))
	}
}

// writePump serializes OutChan to the socket and keeps the connection alive with pings.
func writePump(ctx context.Context, c *websocket.Conn, client *Client, logger *logrus.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer client.Cancel()

	log := logger.WithField("conn", client.ID)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-client.OutChan:
			if cf, ok := msg.(closeFrame); ok {
				_ = c.Close(websocket.StatusCode(cf.code), cf.reason)
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				log.Warnf("failed to marshal outgoing message: %v", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				log.Warnf("failed to write to websocket: %v", err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Warnf("ping failed, assuming disconnect: %v", err)
				return
			}
		}
	}
}
