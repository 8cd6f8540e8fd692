// internal/game/runtime_test.go
package game_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/jason-s-yu/hitline/internal/clock"
	"github.com/jason-s-yu/hitline/internal/game"
	"github.com/jason-s-yu/hitline/internal/game/gametest"
	"github.com/jason-s-yu/hitline/internal/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testOptions() game.Options {
	return game.Options{
		TurnDuration:   30 * time.Second,
		RevealDuration: 5 * time.Second,
		WinCardCount:   10,
		MinPlayers:     1,
		TerminationTTL: 15 * time.Minute,
		TeardownDelay:  500 * time.Millisecond,
	}
}

type harness struct {
	rt    *game.Runtime
	turns *game.TurnRuntime
	rec   *gametest.Recorder
	clk   *clock.Manual
}

func setupRuntime(t *testing.T, opts game.Options, deck []models.Card, deps game.Deps) *harness {
	t.Helper()
	logger, _ := test.NewNullLogger()
	rec := gametest.NewRecorder()
	clk := clock.NewManual(testStart)
	deps.Transport = rec
	deps.Clock = clk
	deps.Logger = logger
	rt := game.NewRuntime(opts, deck, deps)
	return &harness{rt: rt, turns: game.NewTurnRuntime(rt), rec: rec, clk: clk}
}

// seedRoom creates a room bound to conn "host" with n players bound to conns c1..cn.
func (h *harness) seedRoom(t *testing.T, n int) *game.Room {
	t.Helper()
	h.rt.Mu.Lock()
	defer h.rt.Mu.Unlock()
	room, err := h.rt.CreateRoom()
	require.NoError(t, err)
	h.rt.BindHost(room, "host")
	for i := 1; i <= n; i++ {
		p, err := h.rt.AddPlayer(room, fmt.Sprintf("Player %d", i))
		require.NoError(t, err)
		h.rt.BindPlayer(room, p, fmt.Sprintf("c%d", i))
	}
	return room
}

func (h *harness) locked(fn func()) {
	h.rt.Mu.Lock()
	defer h.rt.Mu.Unlock()
	fn()
}

func TestAllocateRoomCodeExhausted(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{Random: gametest.ZeroReader{}})
	room := h.seedRoom(t, 0)
	assert.Equal(t, "000000", room.Code)

	h.locked(func() {
		_, err := h.rt.AllocateRoomCode()
		assert.ErrorIs(t, err, game.ErrRoomCodeExhausted)
	})
}

func TestAllocateRoomCodeWaitsForTerminationTTL(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{Random: gametest.ZeroReader{}})
	room := h.seedRoom(t, 1)

	h.locked(func() {
		require.True(t, h.rt.Terminate(room, game.ReasonHostTerminate))
	})
	h.clk.Advance(time.Second)

	h.locked(func() {
		_, live := h.rt.Room(room.Code)
		assert.False(t, live, "room should be torn down")
		_, err := h.rt.AllocateRoomCode()
		assert.ErrorIs(t, err, game.ErrRoomCodeExhausted, "code is reserved while its termination record lives")
	})

	h.clk.Advance(15 * time.Minute)
	h.locked(func() {
		code, err := h.rt.AllocateRoomCode()
		require.NoError(t, err)
		assert.Equal(t, "000000", code)
	})
}

func TestShuffleIsPermutation(t *testing.T) {
	base := gametest.Deck(5)
	orig := append([]models.Card(nil), base...)
	h := setupRuntime(t, testOptions(), base, game.Deps{})

	const trials = 10000
	counts := make(map[string][]int)
	for _, c := range base {
		counts[c.Title] = make([]int, len(base))
	}
	for i := 0; i < trials; i++ {
		deck, err := h.rt.ShuffleDeck()
		require.NoError(t, err)
		require.ElementsMatch(t, base, deck)
		for pos, c := range deck {
			counts[c.Title][pos]++
		}
	}
	assert.Equal(t, orig, base, "base deck must not be mutated")

	// Expected 2000 per cell; the standard deviation is 40.
	for title, perPos := range counts {
		for pos, n := range perPos {
			assert.InDelta(t, trials/len(base), n, 300, "card %s at position %d", title, pos)
		}
	}
}

func TestTerminationRecordLifecycle(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{})
	room := h.seedRoom(t, 2)
	hostToken := room.Host.SessionToken
	playerToken := room.Players[0].SessionToken

	h.locked(func() {
		require.True(t, h.rt.Terminate(room, game.ReasonHostTerminate))
		assert.False(t, h.rt.Terminate(room, game.ReasonHostTerminate), "second terminate is a no-op")
		assert.Equal(t, models.PhaseEnd, room.Phase)
	})
	assert.Equal(t, 1, h.rec.CountBroadcast(room.Code, game.EventGameTerminated))
	assert.False(t, h.rec.Disconnected("c1"), "sockets stay open until teardown")

	h.clk.Advance(500 * time.Millisecond)
	assert.True(t, h.rec.Disconnected("host"))
	assert.True(t, h.rec.Disconnected("c1"))
	assert.True(t, h.rec.Disconnected("c2"))

	h.locked(func() {
		_, live := h.rt.Room(room.Code)
		assert.False(t, live)
		for _, rec := range []*models.TerminationRecord{
			h.rt.TerminationByCode(room.Code),
			h.rt.TerminationByToken(hostToken),
			h.rt.TerminationByToken(playerToken),
		} {
			require.NotNil(t, rec)
			assert.Equal(t, game.ReasonHostTerminate, rec.Reason)
		}
	})

	h.clk.Advance(15 * time.Minute)
	h.locked(func() {
		assert.Nil(t, h.rt.TerminationByCode(room.Code))
		assert.Nil(t, h.rt.TerminationByToken(hostToken))
		assert.Nil(t, h.rt.TerminationByToken(playerToken))
	})
}

func TestTerminationLazyEviction(t *testing.T) {
	opts := testOptions()
	h := setupRuntime(t, opts, gametest.Deck(24), game.Deps{})
	room := h.seedRoom(t, 1)
	token := room.Players[0].SessionToken

	h.locked(func() {
		h.rt.Terminate(room, game.ReasonNoPlayers)
	})
	// Advance in one step; both the scheduled eviction and the read path agree.
	h.clk.Advance(opts.TerminationTTL)
	h.locked(func() {
		assert.Nil(t, h.rt.TerminationByToken(token))
	})
}

func TestActivePlayerResolution(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{})
	room := h.seedRoom(t, 3)

	h.locked(func() {
		room.TurnOrder = []string{"01", "99", "03"}
		room.ActiveIndex = 1
		p := h.rt.ActivePlayer(room)
		require.NotNil(t, p)
		assert.Equal(t, "03", p.ID)
		assert.Equal(t, 2, room.ActiveIndex)

		room.TurnOrder = nil
		assert.Nil(t, h.rt.ActivePlayer(room))
	})
}

func TestRemovePlayerShiftsActiveIndex(t *testing.T) {
	tests := []struct {
		name       string
		active     int
		remove     string
		wantActive string
		wantIndex  int
	}{
		{"before active", 1, "01", "02", 0},
		{"at active", 1, "02", "03", 1},
		{"after active", 1, "03", "02", 1},
		{"active is last", 2, "03", "01", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{})
			room := h.seedRoom(t, 3)
			h.locked(func() {
				room.TurnOrder = []string{"01", "02", "03"}
				room.ActiveIndex = tc.active

				removed := h.rt.RemovePlayer(room, tc.remove)
				require.NotNil(t, removed)
				assert.Len(t, room.TurnOrder, 2)
				assert.Equal(t, tc.wantIndex, room.ActiveIndex)
				assert.Equal(t, tc.wantActive, h.rt.ActivePlayer(room).ID)

				_, _, ok := h.rt.PlayerSession(removed.SessionToken)
				assert.False(t, ok, "session is dropped")
			})
		})
	}
}

func TestRemoveOnlyPlayerEmptiesOrder(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{})
	room := h.seedRoom(t, 1)
	h.locked(func() {
		room.TurnOrder = []string{"01"}
		h.rt.RemovePlayer(room, "01")
		assert.Empty(t, room.TurnOrder)
		assert.Equal(t, 0, room.ActiveIndex)
		assert.Nil(t, h.rt.ActivePlayer(room))
	})
}

func TestPlayerIDsAreNeverReused(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{})
	room := h.seedRoom(t, 2)
	h.locked(func() {
		h.rt.RemovePlayer(room, "02")
		p, err := h.rt.AddPlayer(room, "Late")
		require.NoError(t, err)
		assert.Equal(t, "03", p.ID)
	})
}

func TestSnapshotProjection(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{})
	room := h.seedRoom(t, 2)
	h.locked(func() {
		room.Players[0].Timeline = gametest.Deck(3)
		before := room.Seq
		h.rt.BroadcastSnapshot(room)
		assert.Equal(t, before+1, room.Seq)
	})

	ev, ok := h.rec.Last("c2", game.EventRoomSnapshot)
	require.True(t, ok)
	snap := ev.Data.(game.Snapshot)
	assert.Equal(t, room.Code, snap.Code)
	assert.Equal(t, models.PhaseLobby, snap.Phase)
	assert.True(t, snap.HostConnected)
	assert.Nil(t, snap.ActivePlayerID)
	assert.Nil(t, snap.PausedTurnRemainingMs)
	require.Len(t, snap.Players, 2)
	assert.Equal(t, 3, snap.Players[0].TimelineLength)
	assert.True(t, snap.Players[1].Connected)
}

func TestRebindDisconnectsStaleConnection(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{})
	room := h.seedRoom(t, 1)
	h.locked(func() {
		p := room.Players[0]
		h.rt.BindPlayer(room, p, "c1-new")
		assert.Equal(t, "c1-new", p.ConnID)
		_, ok := h.rt.Conn("c1")
		assert.False(t, ok)
		e, ok := h.rt.Conn("c1-new")
		require.True(t, ok)
		assert.Equal(t, "01", e.PlayerID)
	})
	assert.True(t, h.rec.Disconnected("c1"))
	assert.True(t, h.rec.Member("c1-new", room.Code))
}

func TestDetachMarksSessionDisconnected(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{})
	room := h.seedRoom(t, 1)
	h.locked(func() {
		e, ok := h.rt.DetachConn("c1")
		require.True(t, ok)
		assert.Equal(t, models.RolePlayer, e.Role)
		assert.False(t, room.Players[0].Connected)
		assert.Len(t, room.Players, 1, "disconnect is not leave")

		_, ok = h.rt.DetachConn("c1")
		assert.False(t, ok)
		h.rt.DisconnectConn("c1")
	})
	assert.False(t, h.rec.Member("c1", room.Code))
}

func TestCloseReleasesRoom(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{})
	room := h.seedRoom(t, 1)
	hostToken := room.Host.SessionToken
	h.locked(func() {
		h.rt.Close(room, game.ReasonHostLeft)
		_, live := h.rt.Room(room.Code)
		assert.False(t, live)
		_, ok := h.rt.HostSession(hostToken)
		assert.False(t, ok)
		assert.Nil(t, h.rt.TerminationByCode(room.Code), "close leaves no termination record")
	})
	ev, ok := h.rec.Last("c1", game.EventRoomClosed)
	require.True(t, ok)
	assert.Equal(t, game.ReasonHostLeft, ev.Data.(game.RoomClosed).Reason)
	assert.False(t, h.rec.Disconnected("c1"))
	assert.False(t, h.rec.Member("c1", room.Code))
}
