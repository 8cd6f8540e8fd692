// internal/game/turn_test.go
package game_test

import (
	"testing"
	"time"

	"github.com/jason-s-yu/hitline/internal/game"
	"github.com/jason-s-yu/hitline/internal/game/gametest"
	"github.com/jason-s-yu/hitline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsCorrectPlacement(t *testing.T) {
	timeline := []models.Card{{Year: 1970}, {Year: 1980}, {Year: 1990}}
	tests := []struct {
		name string
		year int
		idx  int
		want bool
	}{
		{"front", 1960, 0, true},
		{"front too late", 1975, 0, false},
		{"middle", 1975, 1, true},
		{"middle too early", 1965, 1, false},
		{"middle too late", 1985, 1, false},
		{"end", 2000, 3, true},
		{"end too early", 1985, 3, false},
		{"tie with previous", 1980, 2, true},
		{"tie with next", 1980, 1, true},
		{"negative index", 1960, -1, false},
		{"past end", 2000, 4, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := game.IsCorrectPlacement(timeline, models.Card{Year: tc.year}, tc.idx)
			assert.Equal(t, tc.want, got)
		})
	}

	assert.True(t, game.IsCorrectPlacement(nil, models.Card{Year: 1999}, 0), "empty timeline accepts index 0")
}

// correctIndex finds the first index where card keeps the timeline sorted.
func correctIndex(timeline []models.Card, card models.Card) int {
	i := 0
	for i < len(timeline) && timeline[i].Year <= card.Year {
		i++
	}
	return i
}

func (h *harness) begin(t *testing.T, room *game.Room) {
	t.Helper()
	h.locked(func() {
		require.NoError(t, h.turns.BeginGame(room))
	})
}

func TestBeginGameDealsFirstTurn(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{})
	room := h.seedRoom(t, 2)
	h.begin(t, room)

	started, ok := h.rec.LastBroadcast(room.Code, game.EventGameStarted)
	require.True(t, ok)
	gs := started.Data.(game.GameStarted)
	assert.Equal(t, []string{"01", "02"}, gs.TurnOrder)
	assert.Equal(t, "01", gs.ActivePlayerID)
	assert.Equal(t, 1, gs.TurnNumber)
	assert.Len(t, gs.Timelines["01"], 1)
	assert.Len(t, gs.Timelines["02"], 1)

	ev, ok := h.rec.Last("c1", game.EventTurnDealtPlyr)
	require.True(t, ok)
	dealt := ev.Data.(game.TurnDealtPlayer)
	assert.Equal(t, "01", dealt.ActivePlayerID)
	assert.Equal(t, 1, dealt.TurnNumber)
	assert.Len(t, dealt.Timeline, 1)
	assert.Equal(t, testStart.Add(30*time.Second).UnixMilli(), dealt.ExpiresAt)

	_, ok = h.rec.Last("c2", game.EventTurnDealtPlyr)
	assert.False(t, ok, "only the active player gets their private deal")
	_, ok = h.rec.Last("c2", game.EventTurnDealt)
	assert.True(t, ok)

	hostEv, ok := h.rec.Last("host", game.EventTurnDealtHost)
	require.True(t, ok)
	hd := hostEv.Data.(game.TurnDealtHost)
	require.NotNil(t, room.CurrentCard)
	assert.Equal(t, *room.CurrentCard, hd.Card)
	assert.Len(t, hd.Timelines, 2)

	assert.Equal(t, models.PhasePlace, room.Phase)
	assert.Len(t, room.Deck, 24-2-1)
	assert.Equal(t, 1, h.clk.Pending())
}

func TestTurnTimeoutAppendsAndAdvances(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{})
	room := h.seedRoom(t, 2)
	h.begin(t, room)

	h.clk.Advance(30 * time.Second)

	ev, ok := h.rec.LastBroadcast(room.Code, game.EventTurnReveal)
	require.True(t, ok)
	reveal := ev.Data.(game.TurnReveal)
	assert.Equal(t, game.RevealTimeout, reveal.Reason)
	assert.Equal(t, "01", reveal.PlayerID)
	assert.Equal(t, 1, reveal.PlacementIndex, "idle placement appends to the timeline")
	assert.Equal(t, models.PhaseReveal, room.Phase)

	h.clk.Advance(5 * time.Second)
	h.locked(func() {
		assert.Equal(t, models.PhasePlace, room.Phase)
		assert.Equal(t, 2, room.TurnNumber)
		assert.Equal(t, "02", h.rt.ActivePlayer(room).ID)
	})
	_, ok = h.rec.Last("c2", game.EventTurnDealtPlyr)
	assert.True(t, ok)
}

func TestResolveLockWithoutPlacement(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{})
	room := h.seedRoom(t, 1)
	h.begin(t, room)
	h.locked(func() {
		assert.False(t, h.turns.ResolveLock(room, game.RevealLock))
		assert.Equal(t, models.PhasePlace, room.Phase)
	})
}

func TestCorrectPlacementGrowsTimeline(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{})
	room := h.seedRoom(t, 1)
	h.begin(t, room)

	h.locked(func() {
		p := room.Players[0]
		before := p.Timeline
		idx := correctIndex(p.Timeline, *room.CurrentCard)
		room.TentativeIndex = &idx
		require.True(t, h.turns.ResolveLock(room, game.RevealLock))
		assert.Len(t, p.Timeline, 2)
		assert.Len(t, before, 1, "old timeline is replaced, not mutated")
		assert.Nil(t, room.CurrentCard)
		assert.Nil(t, room.TentativeIndex)
		require.NotNil(t, room.RevealExpiresAt)
	})

	ev, ok := h.rec.LastBroadcast(room.Code, game.EventTurnReveal)
	require.True(t, ok)
	reveal := ev.Data.(game.TurnReveal)
	assert.True(t, reveal.Correct)
	assert.Equal(t, game.RevealLock, reveal.Reason)
	assert.Equal(t, 2, reveal.Scores["01"])
}

func TestWinThresholdEndsGame(t *testing.T) {
	opts := testOptions()
	opts.WinCardCount = 2
	h := setupRuntime(t, opts, gametest.Deck(24), game.Deps{})
	room := h.seedRoom(t, 2)
	h.begin(t, room)

	h.locked(func() {
		idx := correctIndex(room.Players[0].Timeline, *room.CurrentCard)
		room.TentativeIndex = &idx
		h.turns.ResolveLock(room, game.RevealLock)
		assert.Equal(t, models.PhaseEnd, room.Phase)
	})

	ev, ok := h.rec.LastBroadcast(room.Code, game.EventGameEnded)
	require.True(t, ok)
	ended := ev.Data.(game.GameEnded)
	assert.Equal(t, game.ReasonWin, ended.Reason)
	require.NotNil(t, ended.WinnerID)
	assert.Equal(t, "01", *ended.WinnerID)
	assert.Equal(t, 0, h.clk.Pending(), "no timers survive the end of the game")
}

func TestDeckEmptyEndsGame(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(2), game.Deps{})
	room := h.seedRoom(t, 1)
	h.begin(t, room)
	assert.Empty(t, room.Deck)

	h.clk.Advance(30 * time.Second)
	h.clk.Advance(5 * time.Second)

	ev, ok := h.rec.LastBroadcast(room.Code, game.EventGameEnded)
	require.True(t, ok)
	ended := ev.Data.(game.GameEnded)
	assert.Equal(t, game.ReasonDeckEmpty, ended.Reason)
	assert.Nil(t, ended.WinnerID)
	assert.Equal(t, models.PhaseEnd, room.Phase)
}

func TestPauseResumePreservesRemainingTurnTime(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{})
	room := h.seedRoom(t, 1)
	h.begin(t, room)

	h.clk.Advance(5 * time.Second)
	h.locked(func() {
		h.turns.PauseRoom(room)
		require.NotNil(t, room.PausedTurnRemaining)
		assert.Equal(t, 25*time.Second, *room.PausedTurnRemaining)
	})
	ev, ok := h.rec.LastBroadcast(room.Code, game.EventRoomSnapshot)
	require.True(t, ok)
	snap := ev.Data.(game.Snapshot)
	assert.True(t, snap.Paused)
	require.NotNil(t, snap.PausedTurnRemainingMs)
	assert.EqualValues(t, 25000, *snap.PausedTurnRemainingMs)
	assert.Nil(t, snap.TurnExpiresAt)

	// Time spent paused does not count against the turn.
	h.clk.Advance(5 * time.Second)
	assert.Equal(t, 0, h.rec.CountBroadcast(room.Code, game.EventTurnReveal))

	h.locked(func() {
		h.turns.ResumeRoom(room)
		require.NotNil(t, room.TurnExpiresAt)
		assert.Equal(t, h.clk.Now().Add(25*time.Second), *room.TurnExpiresAt)
		assert.Nil(t, room.PausedTurnRemaining)
	})

	h.clk.Advance(24 * time.Second)
	assert.Equal(t, 0, h.rec.CountBroadcast(room.Code, game.EventTurnReveal))
	h.clk.Advance(time.Second)
	assert.Equal(t, 1, h.rec.CountBroadcast(room.Code, game.EventTurnReveal))
}

func TestPauseDuringReveal(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{})
	room := h.seedRoom(t, 1)
	h.begin(t, room)

	h.clk.Advance(30 * time.Second)
	h.clk.Advance(2 * time.Second)
	h.locked(func() {
		require.Equal(t, models.PhaseReveal, room.Phase)
		h.turns.PauseRoom(room)
		require.NotNil(t, room.PausedRevealRemaining)
		assert.Equal(t, 3*time.Second, *room.PausedRevealRemaining)
		assert.Nil(t, room.PausedTurnRemaining)
	})

	h.clk.Advance(time.Minute)
	h.locked(func() {
		assert.Equal(t, 1, room.TurnNumber)
		h.turns.ResumeRoom(room)
	})
	h.clk.Advance(3 * time.Second)
	h.locked(func() {
		assert.Equal(t, 2, room.TurnNumber)
		assert.Equal(t, models.PhasePlace, room.Phase)
	})
}

func TestDropActiveTurnWhilePaused(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{})
	room := h.seedRoom(t, 2)
	h.begin(t, room)

	h.locked(func() {
		h.turns.PauseRoom(room)
		h.rt.RemovePlayer(room, "01")
		h.turns.DropActiveTurn(room)
		assert.Nil(t, room.PausedTurnRemaining, "frozen timer is discarded")
		assert.Nil(t, room.CurrentCard, "dealt card is discarded")
		assert.Nil(t, room.TurnExpiresAt)
		assert.Equal(t, models.PhaseDeal, room.Phase)
		assert.Equal(t, 1, room.TurnNumber)

		h.rec.Clear()
		h.turns.ReplayTurn(room, "host", models.RoleHost, "")
		h.turns.ReplayTurn(room, "c2", models.RolePlayer, "02")
		assert.Empty(t, h.rec.Events("host"), "no turn to replay until resume")
		assert.Empty(t, h.rec.Events("c2"))

		h.turns.ResumeRoom(room)
		assert.Equal(t, 2, room.TurnNumber)
		assert.Equal(t, "02", h.rt.ActivePlayer(room).ID)
		assert.False(t, room.Paused)
	})
	_, ok := h.rec.Last("c2", game.EventTurnDealtPlyr)
	assert.True(t, ok)
}

func TestTerminateStopsTurnTimers(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{})
	room := h.seedRoom(t, 1)
	h.begin(t, room)

	h.locked(func() {
		h.rt.Terminate(room, game.ReasonHostTerminate)
	})
	h.clk.Advance(time.Minute)
	assert.Equal(t, 0, h.rec.CountBroadcast(room.Code, game.EventTurnReveal))
}

func TestReplayTurnByRole(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{})
	room := h.seedRoom(t, 2)
	h.begin(t, room)
	h.rec.Clear()

	h.locked(func() {
		idx := 0
		room.TentativeIndex = &idx
		h.turns.ReplayTurn(room, "host", models.RoleHost, "")
		h.turns.ReplayTurn(room, "c1", models.RolePlayer, "01")
		h.turns.ReplayTurn(room, "c2", models.RolePlayer, "02")
	})

	assert.Equal(t, 1, h.rec.Count("host", game.EventTurnDealtHost))
	assert.Equal(t, 0, h.rec.Count("host", game.EventTurnDealt))
	assert.Equal(t, 1, h.rec.Count("c1", game.EventTurnDealt))
	assert.Equal(t, 1, h.rec.Count("c1", game.EventTurnDealtPlyr))
	assert.Equal(t, 1, h.rec.Count("c2", game.EventTurnDealt))
	assert.Equal(t, 0, h.rec.Count("c2", game.EventTurnDealtPlyr))
	assert.Equal(t, 1, h.rec.Count("c2", game.EventTurnPlaced))
}

func TestReplayWhilePausedCarriesFrozenTime(t *testing.T) {
	h := setupRuntime(t, testOptions(), gametest.Deck(24), game.Deps{})
	room := h.seedRoom(t, 1)
	h.begin(t, room)
	h.clk.Advance(10 * time.Second)
	h.rec.Clear()

	h.locked(func() {
		h.turns.PauseRoom(room)
		h.turns.ReplayTurn(room, "c1", models.RolePlayer, "01")
	})

	ev, ok := h.rec.Last("c1", game.EventTurnDealt)
	require.True(t, ok)
	dealt := ev.Data.(game.TurnDealt)
	assert.Zero(t, dealt.ExpiresAt)
	require.NotNil(t, dealt.PausedRemainingMs)
	assert.EqualValues(t, 20000, *dealt.PausedRemainingMs)
}
