package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ychleo102615/hanahuda-sub006/pkg/hanafuda"
	"github.com/ychleo102615/hanahuda-sub006/pkg/server/internal/db"
)

// fakeDB implements Database with in-memory maps for testing.
type fakeDB struct {
	mu       sync.Mutex
	games    map[string]*db.GameRecord
	players  map[string][]*db.PlayerRecord
	gameLog  map[string][]*db.LogRecord
	commands []string
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		games:   make(map[string]*db.GameRecord),
		players: make(map[string][]*db.PlayerRecord),
		gameLog: make(map[string][]*db.LogRecord),
	}
}

func (f *fakeDB) SaveGame(game *db.GameRecord, players []*db.PlayerRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *game
	f.games[game.ID] = &cp
	f.players[game.ID] = players
	return nil
}

func (f *fakeDB) LoadGame(gameID string) (*db.GameRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.games[gameID]
	if !ok {
		return nil, errors.New("game record not found")
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeDB) AppendGameLog(gameID string, seq uint64, eventType, eventID string, at time.Time, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gameLog[gameID] = append(f.gameLog[gameID], &db.LogRecord{
		SequenceNumber: seq,
		GameID:         gameID,
		EventType:      eventType,
		EventID:        eventID,
		Payload:        payload,
		CreatedAt:      at,
	})
	return nil
}

func (f *fakeDB) LoadGameLog(gameID string) ([]*db.LogRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gameLog[gameID], nil
}

func (f *fakeDB) AppendCommandLog(gameID, playerID, command string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	return nil
}

func (f *fakeDB) commandNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.commands))
	copy(out, f.commands)
	return out
}

func (f *fakeDB) Close() error { return nil }

func (f *fakeDB) savedStatus(gameID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.games[gameID]
	if !ok {
		return ""
	}
	return rec.Status
}

func newTestServer(t *testing.T, mutate func(*Config)) (*Server, *fakeDB) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Seed = 7
	cfg.ActionTimeout = time.Hour
	cfg.AcceleratedActionTimeout = 20 * time.Millisecond
	cfg.DisplayTimeout = 20 * time.Millisecond
	cfg.DisconnectTimeout = time.Hour
	cfg.MatchmakingTimeout = time.Hour
	if mutate != nil {
		mutate(cfg)
	}
	fdb := newFakeDB()
	s := NewServer(cfg, fdb, testLogger())
	s.Start()
	t.Cleanup(s.Stop)
	return s, fdb
}

// collector drains a subscriber channel until it closes, keeping every
// event for later assertions. Draining keeps the buffered channel from
// overflowing during long playouts.
type collector struct {
	mu     sync.Mutex
	events []*Event
	done   chan struct{}
}

func collect(sub *subscriber) *collector {
	c := &collector{done: make(chan struct{})}
	go func() {
		defer close(c.done)
		for e := range sub.ch {
			c.mu.Lock()
			c.events = append(c.events, e)
			c.mu.Unlock()
		}
	}()
	return c
}

func (c *collector) byType(typ EventType) []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*Event
	for _, e := range c.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (c *collector) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(10 * time.Second):
		t.Fatal("subscriber stream never closed")
	}
}

// startTwoPlayerGame runs the connect handshake for two human players
// and returns the started game with both event streams collected.
func startTwoPlayerGame(t *testing.T, s *Server) (gameID string, subs map[string]*collector) {
	t.Helper()
	ctx := context.Background()

	r1, err := s.Connect(ctx, "p1", "Alice", "", "")
	require.NoError(t, err)
	require.Equal(t, ResponseTypeGameWaiting, r1.Initial.ResponseType)
	require.True(t, r1.Stream)
	gameID = r1.GameID

	r2, err := s.Connect(ctx, "p2", "Bob", "", "")
	require.NoError(t, err)
	require.Equal(t, gameID, r2.GameID, "second player joins the waiting room")

	subs = make(map[string]*collector)
	for _, playerID := range []string{"p1", "p2"} {
		sub := s.conns.Subscribe(gameID, playerID)
		subs[playerID] = collect(sub)
		require.NoError(t, s.PlayerConnected(ctx, gameID, playerID))
	}

	g, ok := s.store.Get(gameID)
	require.True(t, ok)
	require.Equal(t, hanafuda.StatusInProgress, g.Status)
	return gameID, subs
}

func TestMatchmakingStartsGameWhenBothConnected(t *testing.T) {
	s, fdb := newTestServer(t, nil)
	gameID, subs := startTwoPlayerGame(t, s)

	// Both streams saw the start and the personalized deal.
	require.Eventually(t, func() bool {
		return len(subs["p1"].byType(EventTypeGameStarted)) == 1 &&
			len(subs["p1"].byType(EventTypeRoundDealt)) == 1 &&
			len(subs["p2"].byType(EventTypeRoundDealt)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	dealt := subs["p1"].byType(EventTypeRoundDealt)[0]
	payload, ok := dealt.PayloadFor("p1").(*RoundDealtPayload)
	require.True(t, ok)
	assert.Len(t, payload.Hand, 8)
	assert.Equal(t, 8, payload.OpponentHandCount)
	assert.Empty(t, payload.Hands, "full hands stay out of the per-player view")

	assert.Equal(t, string(hanafuda.StatusInProgress), fdb.savedStatus(gameID))
}

func TestReconnectSnapshotHidesOpponentHand(t *testing.T) {
	s, _ := newTestServer(t, nil)
	gameID, _ := startTwoPlayerGame(t, s)

	res, err := s.Connect(context.Background(), "p1", "Alice", gameID, "")
	require.NoError(t, err)
	require.Equal(t, ResponseTypeSnapshot, res.Initial.ResponseType)
	require.True(t, res.Stream)

	snap := res.Initial.Snapshot
	require.NotNil(t, snap)
	assert.Equal(t, string(hanafuda.StatusInProgress), snap.GameStatus)
	assert.NotEmpty(t, snap.Self.Hand)
	assert.Equal(t, len(snap.Self.Hand), snap.Opponent.HandCount)
	assert.NotEmpty(t, snap.FieldCards)
	assert.NotEmpty(t, snap.ActivePlayerID)
}

func TestConnectRejectsUnseatedPlayer(t *testing.T) {
	s, _ := newTestServer(t, nil)
	gameID, _ := startTwoPlayerGame(t, s)

	_, err := s.Connect(context.Background(), "stranger", "Eve", gameID, "")
	require.Error(t, err)
	assert.Equal(t, CodePlayerNotInGame, ErrCode(err))
}

func TestConnectUnknownGameReportsExpired(t *testing.T) {
	s, _ := newTestServer(t, nil)

	res, err := s.Connect(context.Background(), "p1", "Alice", "no-such-game", "")
	require.NoError(t, err)
	assert.Equal(t, ResponseTypeGameExpired, res.Initial.ResponseType)
	assert.False(t, res.Stream)
}

func TestWaitingRoomExpires(t *testing.T) {
	s, fdb := newTestServer(t, func(cfg *Config) {
		cfg.MatchmakingTimeout = 30 * time.Millisecond
	})
	ctx := context.Background()

	res, err := s.Connect(ctx, "p1", "Alice", "", "")
	require.NoError(t, err)
	gameID := res.GameID
	sub := s.conns.Subscribe(gameID, "p1")
	require.NoError(t, s.PlayerConnected(ctx, gameID, "p1"))

	require.Eventually(t, func() bool {
		_, ok := s.store.Get(gameID)
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "EXPIRED", fdb.savedStatus(gameID))

	_, open := <-sub.ch
	assert.False(t, open, "expired room closes its stream")

	// A later connect with the stale id reports expiry, no stream.
	res, err = s.Connect(ctx, "p1", "Alice", gameID, "")
	require.NoError(t, err)
	assert.Equal(t, ResponseTypeGameExpired, res.Initial.ResponseType)
}

func TestLeaveWaitingRoomPersistsExpired(t *testing.T) {
	s, fdb := newTestServer(t, nil)
	ctx := context.Background()

	res, err := s.Connect(ctx, "p1", "Alice", "", "")
	require.NoError(t, err)
	gameID := res.GameID
	require.NoError(t, s.PlayerConnected(ctx, gameID, "p1"))

	require.NoError(t, s.LeaveGame(ctx, gameID, "p1"))

	_, ok := s.store.Get(gameID)
	assert.False(t, ok, "abandoned waiting room is dropped")
	assert.Equal(t, "EXPIRED", fdb.savedStatus(gameID))
}

func TestConnectCommandsAudited(t *testing.T) {
	s, fdb := newTestServer(t, nil)
	ctx := context.Background()

	r1, err := s.Connect(ctx, "p1", "Alice", "", "")
	require.NoError(t, err)
	_, err = s.Connect(ctx, "p2", "Bob", "", "")
	require.NoError(t, err)
	_, err = s.Connect(ctx, "p1", "Alice", r1.GameID, "")
	require.NoError(t, err)

	// Command logging is asynchronous.
	require.Eventually(t, func() bool {
		seen := make(map[string]bool)
		for _, name := range fdb.commandNames() {
			seen[name] = true
		}
		return seen["CreateGame"] && seen["JoinExistingGame"] && seen["ReconnectGame"]
	}, 2*time.Second, 5*time.Millisecond)
}

func TestAIRoomSeatsOpponentImmediately(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ctx := context.Background()

	res, err := s.Connect(ctx, "p1", "Alice", "", RoomTypeAI)
	require.NoError(t, err)
	gameID := res.GameID

	g, ok := s.store.Get(gameID)
	require.True(t, ok)
	require.Len(t, g.Players, 2)
	var aiSeats int
	for _, p := range g.Players {
		if p.IsAI {
			aiSeats++
		}
	}
	assert.Equal(t, 1, aiSeats)

	// The game waits for the human stream before starting.
	assert.Equal(t, hanafuda.StatusWaiting, g.Status)
	sub := s.conns.Subscribe(gameID, "p1")
	c := collect(sub)
	require.NoError(t, s.PlayerConnected(ctx, gameID, "p1"))

	g, ok = s.store.Get(gameID)
	require.True(t, ok)
	assert.Equal(t, hanafuda.StatusInProgress, g.Status)
	require.Eventually(t, func() bool {
		return len(c.byType(EventTypeGameStarted)) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

// playOut drives a game to completion with the deterministic auto move,
// the same move the action clock would serve.
func playOut(t *testing.T, s *Server, gameID string) {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(15 * time.Second)

	for time.Now().Before(deadline) {
		_, release := s.locks.Acquire(ctx, gameID)
		g, ok := s.store.Get(gameID)
		if !ok {
			release()
			return
		}
		var active string
		acting := false
		if round := g.CurrentRound; round != nil && round.FlowState != hanafuda.FlowRoundEnded {
			active = round.ActivePlayerID
			acting = true
		}
		release()

		if acting {
			err := s.AutoAction(ctx, gameID, active)
			if err != nil {
				switch ErrCode(err) {
				case CodeGameNotFound:
					return
				case CodeInvalidState, CodeWrongPlayer:
					// A timer-driven transition won the race; retry.
				default:
					t.Fatalf("auto action failed: %v", err)
				}
			}
			continue
		}
		// Round boundary: the display timer deals the next round.
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("game never finished")
}

func TestFullPlayoutFinishesGame(t *testing.T) {
	s, fdb := newTestServer(t, nil)
	gameID, subs := startTwoPlayerGame(t, s)

	playOut(t, s, gameID)
	subs["p1"].wait(t)
	subs["p2"].wait(t)

	finished := subs["p1"].byType(EventTypeGameFinished)
	require.Len(t, finished, 1)
	payload := finished[0].Payload.(*GameFinishedPayload)
	assert.Equal(t, string(hanafuda.FinishCompleted), payload.Reason)
	assert.Equal(t, s.cfg.TotalRounds, payload.RoundsPlayed)

	rounds := subs["p2"].byType(EventTypeRoundEnded)
	assert.Len(t, rounds, s.cfg.TotalRounds)

	assert.Equal(t, string(hanafuda.StatusFinished), fdb.savedStatus(gameID))

	// A post-game connect replays the stored result.
	res, err := s.Connect(context.Background(), "p1", "Alice", gameID, "")
	require.NoError(t, err)
	assert.Equal(t, ResponseTypeGameFinished, res.Initial.ResponseType)
	require.NotNil(t, res.Initial.Finished)
	assert.Equal(t, payload.Reason, res.Initial.Finished.Reason)
	assert.False(t, res.Stream)
}

func TestGameLogCapturesPlayout(t *testing.T) {
	s, fdb := newTestServer(t, nil)
	gameID, subs := startTwoPlayerGame(t, s)

	playOut(t, s, gameID)
	subs["p1"].wait(t)
	s.Stop()

	records, err := fdb.LoadGameLog(gameID)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, string(EventTypeGameStarted), records[0].EventType)
	assert.Equal(t, string(EventTypeGameFinished), records[len(records)-1].EventType)
	for i, rec := range records {
		assert.Equal(t, uint64(i+1), rec.SequenceNumber)
		assert.NotEmpty(t, rec.Payload)
	}
}

func dropCard(cards []hanafuda.Card, card hanafuda.Card) []hanafuda.Card {
	for i, c := range cards {
		if c == card {
			return append(append([]hanafuda.Card(nil), cards[:i]...), cards[i+1:]...)
		}
	}
	return cards
}

func hasCard(cards []hanafuda.Card, card hanafuda.Card) bool {
	for _, c := range cards {
		if c == card {
			return true
		}
	}
	return false
}

// replayedRound folds the logged events from the latest deal back into
// the per-seat card layout they describe.
type replayedRound struct {
	hands map[string][]hanafuda.Card
	deps  map[string][]hanafuda.Card
	field []hanafuda.Card
	deck  int
	next  NextState
}

func replayGameLog(t *testing.T, records []*db.LogRecord) *replayedRound {
	t.Helper()

	start := -1
	for i, rec := range records {
		if rec.EventType == string(EventTypeRoundDealt) {
			start = i
		}
	}
	require.NotEqual(t, -1, start, "no deal in the game log")

	r := &replayedRound{
		hands: make(map[string][]hanafuda.Card),
		deps:  make(map[string][]hanafuda.Card),
	}
	for _, rec := range records[start:] {
		switch EventType(rec.EventType) {
		case EventTypeRoundDealt:
			var p RoundDealtPayload
			require.NoError(t, json.Unmarshal(rec.Payload, &p))
			require.NotEmpty(t, p.Hands, "logged deal must carry both hands")
			for id, hand := range p.Hands {
				r.hands[id] = append([]hanafuda.Card(nil), hand...)
			}
			r.field = p.FieldCards
			r.deck = p.DeckCount
			r.next = p.NextState

		case EventTypeTurnCompleted:
			var p TurnCompletedPayload
			require.NoError(t, json.Unmarshal(rec.Payload, &p))
			if p.HandCard != "" {
				r.hands[p.PlayerID] = dropCard(r.hands[p.PlayerID], p.HandCard)
			}
			r.deps[p.PlayerID] = append(r.deps[p.PlayerID], p.HandCaptured...)
			r.deps[p.PlayerID] = append(r.deps[p.PlayerID], p.DrawCaptured...)
			r.field = p.FieldCards
			r.deck = p.DeckCount
			r.next = p.NextState

		case EventTypeTurnProgressAfterSelection:
			var p TurnProgressAfterSelectionPayload
			require.NoError(t, json.Unmarshal(rec.Payload, &p))
			if hasCard(r.hands[p.PlayerID], p.SourceCard) {
				r.hands[p.PlayerID] = dropCard(r.hands[p.PlayerID], p.SourceCard)
				r.deps[p.PlayerID] = append(r.deps[p.PlayerID], p.Captured...)
				r.deps[p.PlayerID] = append(r.deps[p.PlayerID], p.DrawCaptured...)
			} else {
				// The selection came off the draw flip; Captured and
				// DrawCaptured name the same cards.
				r.deps[p.PlayerID] = append(r.deps[p.PlayerID], p.DrawCaptured...)
			}
			r.field = p.FieldCards
			r.deck = p.DeckCount
			r.next = p.NextState

		case EventTypeSelectionRequired:
			var p SelectionRequiredPayload
			require.NoError(t, json.Unmarshal(rec.Payload, &p))
			r.next = p.NextState

		case EventTypeDecisionRequired:
			var p DecisionRequiredPayload
			require.NoError(t, json.Unmarshal(rec.Payload, &p))
			r.next = p.NextState

		case EventTypeDecisionMade:
			var p DecisionMadePayload
			require.NoError(t, json.Unmarshal(rec.Payload, &p))
			r.next = p.NextState
		}
	}
	return r
}

func TestGameLogReplayMatchesSnapshot(t *testing.T) {
	s, fdb := newTestServer(t, nil)
	gameID, _ := startTwoPlayerGame(t, s)
	ctx := context.Background()

	// Advance a few turns, stopping short of the first koi-koi decision
	// so the round stays open.
	for i := 0; i < 8; i++ {
		_, release := s.locks.Acquire(ctx, gameID)
		g, ok := s.store.Get(gameID)
		require.True(t, ok)
		round := g.CurrentRound
		require.NotNil(t, round)
		state := round.FlowState
		active := round.ActivePlayerID
		release()

		if state == hanafuda.FlowAwaitingDecision || state == hanafuda.FlowRoundEnded {
			break
		}
		require.NoError(t, s.AutoAction(ctx, gameID, active))
	}

	_, release := s.locks.Acquire(ctx, gameID)
	g, ok := s.store.Get(gameID)
	require.True(t, ok)
	snap := BuildSnapshot(g, "p1", 0)
	release()

	s.Stop() // flush the log queue

	records, err := fdb.LoadGameLog(gameID)
	require.NoError(t, err)
	replay := replayGameLog(t, records)

	assert.Equal(t, snap.FlowState, replay.next.FlowState)
	assert.Equal(t, snap.ActivePlayerID, replay.next.ActivePlayerID)
	assert.Equal(t, snap.DeckCount, replay.deck)
	assert.ElementsMatch(t, snap.FieldCards, replay.field)
	assert.ElementsMatch(t, snap.Self.Hand, replay.hands["p1"])
	assert.ElementsMatch(t, snap.Self.Depository, replay.deps["p1"])
	assert.Equal(t, snap.Opponent.HandCount, len(replay.hands["p2"]))
	assert.ElementsMatch(t, snap.Opponent.Depository, replay.deps["p2"])
}

func TestLeaveForfeitsToOpponent(t *testing.T) {
	s, fdb := newTestServer(t, nil)
	gameID, subs := startTwoPlayerGame(t, s)

	require.NoError(t, s.LeaveGame(context.Background(), gameID, "p1"))

	// No immediate finish: the leaver is auto-served to the round boundary
	// while the opponent keeps playing.
	if _, ok := s.store.Get(gameID); ok {
		playOut(t, s, gameID)
	}
	subs["p2"].wait(t)

	rounds := subs["p2"].byType(EventTypeRoundEnded)
	require.NotEmpty(t, rounds)
	last := rounds[len(rounds)-1].Payload.(*RoundEndedPayload)
	assert.Equal(t, string(hanafuda.EndOpponentLeft), last.Reason)
	assert.Equal(t, "p2", last.WinnerID)
	assert.False(t, last.MoreRounds)

	finished := subs["p2"].byType(EventTypeGameFinished)
	require.Len(t, finished, 1)
	payload := finished[0].Payload.(*GameFinishedPayload)
	assert.Equal(t, string(hanafuda.FinishOpponentLeft), payload.Reason)
	assert.Equal(t, "p2", payload.WinnerID)

	assert.Equal(t, string(hanafuda.StatusFinished), fdb.savedStatus(gameID))

	// The finished result is all the leaver can get back.
	res, err := s.Connect(context.Background(), "p1", "Alice", gameID, "")
	require.NoError(t, err)
	assert.Equal(t, ResponseTypeGameFinished, res.Initial.ResponseType)
}

func TestLeaveTwiceRejected(t *testing.T) {
	s, _ := newTestServer(t, nil)
	gameID, subs := startTwoPlayerGame(t, s)

	require.NoError(t, s.LeaveGame(context.Background(), gameID, "p1"))
	err := s.LeaveGame(context.Background(), gameID, "p1")
	require.Error(t, err)
	assert.Contains(t, []ErrorCode{CodeInvalidState, CodeGameNotFound}, ErrCode(err))

	if _, ok := s.store.Get(gameID); ok {
		playOut(t, s, gameID)
	}
	subs["p2"].wait(t)
}

func TestActionsValidateTurnAndInput(t *testing.T) {
	s, _ := newTestServer(t, nil)
	gameID, _ := startTwoPlayerGame(t, s)

	g, ok := s.store.Get(gameID)
	require.True(t, ok)
	round := g.CurrentRound
	require.NotNil(t, round)
	active := round.ActivePlayerID
	idle := g.OpponentID(active)

	err := s.PlayHandCard(context.Background(), gameID, active, "bogus")
	assert.Equal(t, CodeInvalidInput, ErrCode(err))

	card := round.Areas[idle].Hand[0]
	err = s.PlayHandCard(context.Background(), gameID, idle, string(card))
	assert.Equal(t, CodeWrongPlayer, ErrCode(err))

	err = s.MakeDecision(context.Background(), gameID, active, "MAYBE")
	assert.Equal(t, CodeInvalidInput, ErrCode(err))

	err = s.ConfirmContinue(context.Background(), gameID, active, ContinueResume)
	assert.Equal(t, CodeConfirmationNotRequired, ErrCode(err))

	err = s.PlayHandCard(context.Background(), "missing", active, "0111")
	assert.Equal(t, CodeGameNotFound, ErrCode(err))
}

func TestRejectedOutsiderCommandKeepsActionClock(t *testing.T) {
	s, _ := newTestServer(t, nil)
	gameID, _ := startTwoPlayerGame(t, s)
	require.True(t, s.timeouts.Has(gameID, "", TimerAction))

	// An authenticated session aiming at someone else's game is turned
	// away before it can touch the action clock.
	err := s.LeaveGame(context.Background(), gameID, "stranger")
	require.Error(t, err)
	assert.Equal(t, CodePlayerNotInGame, ErrCode(err))
	assert.True(t, s.timeouts.Has(gameID, "", TimerAction))

	err = s.PlayHandCard(context.Background(), gameID, "stranger", "0111")
	assert.Equal(t, CodePlayerNotInGame, ErrCode(err))
	assert.True(t, s.timeouts.Has(gameID, "", TimerAction))
}

func TestDisconnectTimeoutForfeits(t *testing.T) {
	s, _ := newTestServer(t, func(cfg *Config) {
		cfg.DisconnectTimeout = 30 * time.Millisecond
	})
	gameID, subs := startTwoPlayerGame(t, s)

	s.PlayerDisconnected(context.Background(), gameID, "p1")
	assert.Equal(t, hanafuda.ConnDisconnected, connStatus(s, gameID, "p1"))

	// Grace expires without a reconnect; the seat is abandoned.
	require.Eventually(t, func() bool {
		return connStatus(s, gameID, "p1") == hanafuda.ConnLeft
	}, 2*time.Second, 5*time.Millisecond)

	if _, ok := s.store.Get(gameID); ok {
		playOut(t, s, gameID)
	}
	subs["p2"].wait(t)
	finished := subs["p2"].byType(EventTypeGameFinished)
	require.Len(t, finished, 1)
	payload := finished[0].Payload.(*GameFinishedPayload)
	assert.Equal(t, "p2", payload.WinnerID)
	assert.Equal(t, string(hanafuda.FinishOpponentLeft), payload.Reason)
}

func connStatus(s *Server, gameID, playerID string) hanafuda.ConnectionStatus {
	_, release := s.locks.Acquire(context.Background(), gameID)
	defer release()
	g, ok := s.store.Get(gameID)
	if !ok {
		return hanafuda.ConnLeft
	}
	return g.ConnStatuses[playerID]
}

func TestReconnectClearsDisconnectTimer(t *testing.T) {
	s, _ := newTestServer(t, nil)
	gameID, _ := startTwoPlayerGame(t, s)

	s.PlayerDisconnected(context.Background(), gameID, "p1")
	require.True(t, s.timeouts.Has(gameID, "p1", TimerDisconnect))

	_, err := s.Connect(context.Background(), "p1", "Alice", gameID, "")
	require.NoError(t, err)
	assert.False(t, s.timeouts.Has(gameID, "p1", TimerDisconnect))

	g, ok := s.store.Get(gameID)
	require.True(t, ok)
	assert.Equal(t, hanafuda.ConnConnected, g.ConnStatuses["p1"])
}
