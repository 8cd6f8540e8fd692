// internal/game/runtime.go
package game

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/hitline/internal/auth"
	"github.com/jason-s-yu/hitline/internal/clock"
	"github.com/jason-s-yu/hitline/internal/models"
	"github.com/jason-s-yu/hitline/internal/telemetry"
	"github.com/sirupsen/logrus"
)

const (
	roomCodeLength  = 6
	maxCodeAttempts = 20
)

var (
	ErrRoomCodeExhausted = errors.New("room code space exhausted")
	ErrSessionIssue      = errors.New("failed to issue session token")
)

// Transport delivers events to live connections. Implementations must not
// block on I/O and must not call back into the Runtime.
type Transport interface {
	Join(connID, roomCode string)
	Leave(connID, roomCode string)
	Broadcast(roomCode string, ev Event)
	Send(connID string, ev Event)
	// Disconnect closes the connection after anything already queued for it is written.
	Disconnect(connID string)
}

// SessionIssuer mints opaque session tokens.
type SessionIssuer interface {
	NewSessionToken(role models.Role, roomCode, playerID string) (string, error)
}

// SessionVerifier is implemented by issuers that can check a token without the index.
type SessionVerifier interface {
	VerifySession(token string, role models.Role) error
}

// Options are the externally validated tunables consumed by the engine.
type Options struct {
	TurnDuration   time.Duration
	RevealDuration time.Duration
	WinCardCount   int
	MinPlayers     int
	TerminationTTL time.Duration
	TeardownDelay  time.Duration
}

// Deps are the Runtime's collaborators. Nil fields get working defaults.
type Deps struct {
	Transport Transport
	Sessions  SessionIssuer
	Clock     clock.Clock
	Telemetry telemetry.Sink
	Logger    logrus.FieldLogger
	Random    io.Reader
}

// Runtime owns the room registry, session indices, room-code allocation,
// snapshots and termination bookkeeping. It contains no phase logic.
//
// Mu serializes every mutation: command handlers hold it for their whole
// run and timer callbacks acquire it before touching a room. Methods below
// assume Mu is held unless stated otherwise.
type Runtime struct {
	Mu sync.Mutex

	opts     Options
	baseDeck []models.Card
	store    *store

	transport Transport
	sessions  SessionIssuer
	clock     clock.Clock
	telemetry telemetry.Sink
	random    io.Reader
	log       logrus.FieldLogger
}

// NewRuntime builds an independent engine instance over an immutable base deck.
func NewRuntime(opts Options, baseDeck []models.Card, deps Deps) *Runtime {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Random == nil {
		deps.Random = rand.Reader
	}
	if deps.Transport == nil {
		deps.Transport = nopTransport{}
	}
	if deps.Sessions == nil {
		deps.Sessions = uuidSessions{}
	}
	log := deps.Logger.WithField("component", "runtime")
	return &Runtime{
		opts:      opts,
		baseDeck:  baseDeck,
		store:     newStore(),
		transport: deps.Transport,
		sessions:  deps.Sessions,
		clock:     deps.Clock,
		telemetry: telemetry.Safe{Sink: deps.Telemetry, Logger: log},
		random:    deps.Random,
		log:       log,
	}
}

// Options returns the tunables the runtime was built with.
func (rt *Runtime) Options() Options { return rt.opts }

// Now reads the runtime clock.
func (rt *Runtime) Now() time.Time { return rt.clock.Now() }

// Logger returns the runtime's component logger.
func (rt *Runtime) Logger() logrus.FieldLogger { return rt.log }

// --- Registry ---

// Room looks up a live room by code.
func (rt *Runtime) Room(code string) (*Room, bool) {
	return rt.store.getRoom(code)
}

// Conn resolves a connection to its binding.
func (rt *Runtime) Conn(connID string) (ConnEntry, bool) {
	return rt.store.conn(connID)
}

// HostSession resolves a host session token to its room.
func (rt *Runtime) HostSession(token string) (*Room, bool) {
	code, ok := rt.store.hostSessions[token]
	if !ok {
		return nil, false
	}
	return rt.store.getRoom(code)
}

// VerifySession rejects tokens the issuer did not sign for role. Issuers
// without verification accept every token and leave it to the index lookup.
func (rt *Runtime) VerifySession(token string, role models.Role) error {
	v, ok := rt.sessions.(SessionVerifier)
	if !ok {
		return nil
	}
	return v.VerifySession(token, role)
}

// PlayerSession resolves a player session token to its room and player.
func (rt *Runtime) PlayerSession(token string) (*Room, *models.Player, bool) {
	ps, ok := rt.store.playerSessions[token]
	if !ok {
		return nil, nil, false
	}
	room, ok := rt.store.getRoom(ps.RoomCode)
	if !ok {
		return nil, nil, false
	}
	p := room.Player(ps.PlayerID)
	if p == nil {
		return nil, nil, false
	}
	return room, p, true
}

// RoomCount returns the number of live rooms. Unlike the rest of the
// registry accessors it takes Mu itself.
func (rt *Runtime) RoomCount() int {
	rt.Mu.Lock()
	defer rt.Mu.Unlock()
	return len(rt.store.rooms)
}

// AllocateRoomCode draws random numeric codes until one is free in both the
// live registry and the termination cache.
func (rt *Runtime) AllocateRoomCode() (string, error) {
	space := big.NewInt(1_000_000)
	for i := 0; i < maxCodeAttempts; i++ {
		n, err := rand.Int(rt.random, space)
		if err != nil {
			return "", fmt.Errorf("room code: %w", err)
		}
		code := fmt.Sprintf("%0*d", roomCodeLength, n.Int64())
		if _, live := rt.store.getRoom(code); live {
			continue
		}
		if rt.TerminationByCode(code) != nil {
			continue
		}
		return code, nil
	}
	return "", ErrRoomCodeExhausted
}

// CreateRoom allocates a code and host session and registers an empty LOBBY room.
func (rt *Runtime) CreateRoom() (*Room, error) {
	code, err := rt.AllocateRoomCode()
	if err != nil {
		return nil, err
	}
	token, err := rt.sessions.NewSessionToken(models.RoleHost, code, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionIssue, err)
	}
	room := newRoom(code, &models.Host{SessionToken: token}, rt.clock.Now())
	rt.store.addRoom(room)
	rt.store.hostSessions[token] = code
	rt.log.WithField("room", code).Info("room created")
	return room, nil
}

// AddPlayer appends a new player with a fresh id and session token.
func (rt *Runtime) AddPlayer(room *Room, name string) (*models.Player, error) {
	id := room.allocatePlayerID()
	token, err := rt.sessions.NewSessionToken(models.RolePlayer, room.Code, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionIssue, err)
	}
	p := &models.Player{ID: id, Name: name, SessionToken: token}
	room.Players = append(room.Players, p)
	rt.store.playerSessions[token] = playerSession{RoomCode: room.Code, PlayerID: id}
	rt.log.WithFields(logrus.Fields{"room": room.Code, "player": id}).Info("player joined")
	return p, nil
}

// RemovePlayer drops the player record, its session and its turn-order slot.
// The player's connection is left for the caller to notify and release.
func (rt *Runtime) RemovePlayer(room *Room, playerID string) *models.Player {
	p := room.removePlayer(playerID)
	if p == nil {
		return nil
	}
	room.removeFromTurnOrder(playerID)
	delete(rt.store.playerSessions, p.SessionToken)
	rt.log.WithFields(logrus.Fields{"room": room.Code, "player": playerID}).Info("player removed")
	return p
}

// --- Connections ---

// BindHost attaches connID to the room's host session, force-disconnecting
// any other live connection still bound to it.
func (rt *Runtime) BindHost(room *Room, connID string) {
	rt.DetachConn(connID)
	if old := room.Host.ConnID; old != "" && old != connID {
		rt.DisconnectConn(old)
	}
	room.Host.Bind(connID)
	rt.store.bindConn(connID, ConnEntry{Role: models.RoleHost, RoomCode: room.Code})
	rt.transport.Join(connID, room.Code)
}

// BindPlayer attaches connID to the player's session, force-disconnecting
// any other live connection still bound to it.
func (rt *Runtime) BindPlayer(room *Room, p *models.Player, connID string) {
	rt.DetachConn(connID)
	if old := p.ConnID; old != "" && old != connID {
		rt.DisconnectConn(old)
	}
	p.Bind(connID)
	rt.store.bindConn(connID, ConnEntry{Role: models.RolePlayer, RoomCode: room.Code, PlayerID: p.ID})
	rt.transport.Join(connID, room.Code)
}

// DetachConn unbinds a connection without closing it and marks the session
// it held as disconnected. It reports whether the connection was bound.
func (rt *Runtime) DetachConn(connID string) (ConnEntry, bool) {
	e, ok := rt.store.conn(connID)
	if !ok {
		return e, false
	}
	rt.store.unbindConn(connID)
	rt.transport.Leave(connID, e.RoomCode)
	if room, ok := rt.store.getRoom(e.RoomCode); ok {
		switch e.Role {
		case models.RoleHost:
			if room.Host.ConnID == connID {
				room.Host.Bind("")
			}
		case models.RolePlayer:
			if p := room.Player(e.PlayerID); p != nil && p.ConnID == connID {
				p.Bind("")
			}
		}
	}
	return e, true
}

// DisconnectConn forcibly closes a connection and removes its index entry.
// Safe to call on connections that are already gone.
func (rt *Runtime) DisconnectConn(connID string) {
	if connID == "" {
		return
	}
	rt.DetachConn(connID)
	rt.transport.Disconnect(connID)
}

// --- Emission ---

// Snapshot projects a room to its public view.
func (rt *Runtime) Snapshot(room *Room) Snapshot {
	s := Snapshot{
		Code:          room.Code,
		Seq:           room.Seq,
		Phase:         room.Phase,
		TurnNumber:    room.TurnNumber,
		Paused:        room.Paused,
		HostConnected: room.Host != nil && room.Host.Connected,
		Players:       make([]PlayerView, 0, len(room.Players)),
	}
	if room.Phase.InGame() {
		if p := rt.ActivePlayer(room); p != nil {
			id := p.ID
			s.ActivePlayerID = &id
		}
	}
	if room.Paused {
		if room.PausedTurnRemaining != nil {
			ms := room.PausedTurnRemaining.Milliseconds()
			s.PausedTurnRemainingMs = &ms
		}
	} else if room.TurnExpiresAt != nil {
		ms := room.TurnExpiresAt.UnixMilli()
		s.TurnExpiresAt = &ms
	}
	for _, p := range room.Players {
		s.Players = append(s.Players, PlayerView{
			ID:             p.ID,
			Name:           p.Name,
			Connected:      p.Connected,
			TimelineLength: len(p.Timeline),
		})
	}
	return s
}

// Touch bumps the room sequence number after an externally visible change.
func (rt *Runtime) Touch(room *Room) {
	room.Seq++
}

// BroadcastSnapshot bumps seq and sends the public projection to the room.
func (rt *Runtime) BroadcastSnapshot(room *Room) {
	rt.Touch(room)
	rt.Broadcast(room, EventRoomSnapshot, rt.Snapshot(room))
}

// Broadcast sends an event to every connection joined to the room.
func (rt *Runtime) Broadcast(room *Room, t EventType, data interface{}) {
	rt.transport.Broadcast(room.Code, Event{Type: t, Data: data})
}

// Send sends an event to a single connection.
func (rt *Runtime) Send(connID string, t EventType, data interface{}) {
	if connID == "" {
		return
	}
	rt.transport.Send(connID, Event{Type: t, Data: data})
}

// SendHost sends an event to the host if connected.
func (rt *Runtime) SendHost(room *Room, t EventType, data interface{}) {
	if room.Host != nil && room.Host.Connected {
		rt.Send(room.Host.ConnID, t, data)
	}
}

// SendPlayer sends an event to a player if connected.
func (rt *Runtime) SendPlayer(p *models.Player, t EventType, data interface{}) {
	if p != nil && p.Connected {
		rt.Send(p.ConnID, t, data)
	}
}

// --- Turn order ---

// ActivePlayer returns the first existing player in turn order, scanning
// cyclically from the stored index, and stores the index it landed on.
func (rt *Runtime) ActivePlayer(room *Room) *models.Player {
	n := len(room.TurnOrder)
	if n == 0 {
		return nil
	}
	if room.ActiveIndex < 0 || room.ActiveIndex >= n {
		room.ActiveIndex = 0
	}
	for i := 0; i < n; i++ {
		idx := (room.ActiveIndex + i) % n
		if p := room.Player(room.TurnOrder[idx]); p != nil {
			room.ActiveIndex = idx
			return p
		}
	}
	return nil
}

// ShuffleDeck returns a Fisher–Yates shuffled copy of the base deck.
func (rt *Runtime) ShuffleDeck() ([]models.Card, error) {
	deck := make([]models.Card, len(rt.baseDeck))
	copy(deck, rt.baseDeck)
	if err := shuffle(deck, rt.random); err != nil {
		return nil, err
	}
	return deck, nil
}

func shuffle(cards []models.Card, rnd io.Reader) error {
	for i := len(cards) - 1; i > 0; i-- {
		j, err := rand.Int(rnd, big.NewInt(int64(i+1)))
		if err != nil {
			return fmt.Errorf("shuffle: %w", err)
		}
		k := int(j.Int64())
		cards[i], cards[k] = cards[k], cards[i]
	}
	return nil
}

// --- Timers ---

// armTurn schedules fire after d as the room's turn timer. A callback whose
// handle is no longer the room's current one, or whose room vanished, was
// terminated or paused, does nothing.
func (rt *Runtime) armTurn(room *Room, d time.Duration, fire func(*Room)) {
	rt.cancelTurn(room)
	var task clock.Task
	task = rt.clock.AfterFunc(d, func() {
		rt.Mu.Lock()
		defer rt.Mu.Unlock()
		if !rt.current(room) || room.turnTask != task {
			rt.log.WithField("room", room.Code).Debug("stale turn timer ignored")
			return
		}
		room.turnTask = nil
		if room.Terminated() || room.Paused {
			return
		}
		fire(room)
	})
	room.turnTask = task
}

// armReveal is armTurn for the reveal-delay timer.
func (rt *Runtime) armReveal(room *Room, d time.Duration, fire func(*Room)) {
	rt.cancelReveal(room)
	var task clock.Task
	task = rt.clock.AfterFunc(d, func() {
		rt.Mu.Lock()
		defer rt.Mu.Unlock()
		if !rt.current(room) || room.revealTask != task {
			rt.log.WithField("room", room.Code).Debug("stale reveal timer ignored")
			return
		}
		room.revealTask = nil
		if room.Terminated() || room.Paused {
			return
		}
		fire(room)
	})
	room.revealTask = task
}

func (rt *Runtime) cancelTurn(room *Room) {
	if room.turnTask != nil {
		room.turnTask.Cancel()
		room.turnTask = nil
	}
}

func (rt *Runtime) cancelReveal(room *Room) {
	if room.revealTask != nil {
		room.revealTask.Cancel()
		room.revealTask = nil
	}
}

// ClearTimers cancels both the turn and the reveal timer.
func (rt *Runtime) ClearTimers(room *Room) {
	rt.cancelTurn(room)
	rt.cancelReveal(room)
}

// current reports whether room is still the registered instance for its code.
func (rt *Runtime) current(room *Room) bool {
	cur, ok := rt.store.getRoom(room.Code)
	return ok && cur == room
}

// --- Termination ---

// TerminationByCode returns a live termination record for the code, evicting it if expired.
func (rt *Runtime) TerminationByCode(code string) *models.TerminationRecord {
	rec, ok := rt.store.terminatedByCode[code]
	if !ok {
		return nil
	}
	if rec.Expired(rt.clock.Now()) {
		rt.store.evictTermination(rec)
		return nil
	}
	return rec
}

// TerminationByToken returns a live termination record for a session token, evicting it if expired.
func (rt *Runtime) TerminationByToken(token string) *models.TerminationRecord {
	rec, ok := rt.store.terminatedByToken[token]
	if !ok {
		return nil
	}
	if rec.Expired(rt.clock.Now()) {
		rt.store.evictTermination(rec)
		return nil
	}
	return rec
}

// Close ends a room that never needs a termination record: it broadcasts
// room.closed and releases the room at once. Connections stay open but
// leave the room.
func (rt *Runtime) Close(room *Room, reason string) {
	rt.ClearTimers(room)
	rt.Broadcast(room, EventRoomClosed, RoomClosed{Reason: reason})
	rt.releaseConns(room, false)
	rt.store.deleteRoom(room)
	rt.RecordTransition(room, room.Phase, "closed", map[string]interface{}{"reason": reason})
	rt.log.WithFields(logrus.Fields{"room": room.Code, "reason": reason}).Info("room closed")
}

// Terminate forcibly ends an in-progress room. It reports false if the room
// was already terminated. Sockets are force-disconnected only after
// TeardownDelay so the termination broadcast is written first.
func (rt *Runtime) Terminate(room *Room, reason string) bool {
	if room.Terminated() {
		return false
	}
	now := rt.clock.Now()
	rt.ClearTimers(room)

	from := room.Phase
	room.Phase = models.PhaseEnd
	room.TerminatedAt = &now
	room.TerminationReason = reason
	room.Paused = false
	room.PausedTurnRemaining = nil
	room.PausedRevealRemaining = nil
	room.CurrentCard = nil
	room.TentativeIndex = nil
	room.TurnExpiresAt = nil
	room.RevealExpiresAt = nil

	rt.BroadcastSnapshot(room)
	rt.Broadcast(room, EventGameTerminated, GameTerminated{
		RoomCode:     room.Code,
		Reason:       reason,
		TerminatedAt: now.UnixMilli(),
	})

	rec := &models.TerminationRecord{
		RoomCode:     room.Code,
		Reason:       reason,
		TerminatedAt: now,
		ExpiresAt:    now.Add(rt.opts.TerminationTTL),
	}
	rt.store.addTermination(rec, room.sessionTokens())
	rt.clock.AfterFunc(rt.opts.TerminationTTL, func() {
		rt.Mu.Lock()
		defer rt.Mu.Unlock()
		rt.store.evictTermination(rec)
	})
	rt.clock.AfterFunc(rt.opts.TeardownDelay, func() {
		rt.Mu.Lock()
		defer rt.Mu.Unlock()
		rt.teardown(room)
	})

	rt.RecordTransition(room, from, string(models.PhaseEnd), map[string]interface{}{"reason": reason, "terminated": true})
	rt.log.WithFields(logrus.Fields{"room": room.Code, "reason": reason}).Info("room terminated")
	return true
}

// teardown releases a terminated room. A no-op if the room is already gone.
func (rt *Runtime) teardown(room *Room) {
	if !rt.current(room) {
		return
	}
	rt.releaseConns(room, true)
	rt.store.deleteRoom(room)
	rt.log.WithField("room", room.Code).Debug("room torn down")
}

func (rt *Runtime) releaseConns(room *Room, force bool) {
	conns := make([]string, 0, len(room.Players)+1)
	if room.Host != nil && room.Host.ConnID != "" {
		conns = append(conns, room.Host.ConnID)
	}
	for _, p := range room.Players {
		if p.ConnID != "" {
			conns = append(conns, p.ConnID)
		}
	}
	for _, c := range conns {
		if force {
			rt.DisconnectConn(c)
		} else {
			rt.DetachConn(c)
		}
	}
}

// --- Telemetry ---

// Record forwards a telemetry record. Sink failures are absorbed.
func (rt *Runtime) Record(rec telemetry.Record) {
	rt.telemetry.Record(rec)
}

// RecordFor stamps rec with the room's next record index and forwards it.
// The publisher may reorder records in flight; the index restores room order.
func (rt *Runtime) RecordFor(room *Room, rec telemetry.Record) {
	room.recordIndex++
	rec.Index = room.recordIndex
	rt.Record(rec)
}

// RecordTransition emits a phase-transition record for the room.
func (rt *Runtime) RecordTransition(room *Room, from models.Phase, to string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["from"] = string(from)
	rt.RecordFor(room, telemetry.Record{
		Kind:      telemetry.KindTransition,
		Action:    to,
		RoomCode:  room.Code,
		Phase:     string(room.Phase),
		OK:        true,
		Payload:   payload,
		Timestamp: rt.clock.Now().UnixMilli(),
	})
}

// TokenFingerprint is the log-safe form of a session token.
func TokenFingerprint(token string) string {
	return auth.Fingerprint(token)
}

type nopTransport struct{}

func (nopTransport) Join(string, string)     {}
func (nopTransport) Leave(string, string)    {}
func (nopTransport) Broadcast(string, Event) {}
func (nopTransport) Send(string, Event)      {}
func (nopTransport) Disconnect(string)       {}

type uuidSessions struct{}

func (uuidSessions) NewSessionToken(models.Role, string, string) (string, error) {
	return uuid.NewString(), nil
}
