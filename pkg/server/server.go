package server

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"

	"github.com/ychleo102615/hanahuda-sub006/pkg/hanafuda"
)

// RoomTypeAI requests a machine opponent instead of matchmaking.
const RoomTypeAI = "ai"

// Server owns every live game and all the machinery around them. One
// instance serves the whole process; the HTTP layer is a thin shell
// over its use-case methods.
type Server struct {
	cfg *Config
	log slog.Logger
	db  Database

	store    *GameStore
	locks    *GameLocks
	timeouts *TimeoutManager
	flow     *TurnFlowService
	conns    *ConnectionStore
	bus      *OpponentBus
	gameLog  *gameLogWriter
	pub      *CompositePublisher

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewServer wires the full stack. The turn-flow service gets the server
// itself as its driver after construction.
func NewServer(cfg *Config, db Database, log slog.Logger) *Server {
	s := &Server{
		cfg: cfg,
		log: log,
		db:  db,
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s.rng = rand.New(rand.NewSource(seed))

	s.store = NewGameStore()
	s.locks = NewGameLocks()
	s.timeouts = NewTimeoutManager(log)
	s.flow = NewTurnFlowService(cfg, s.timeouts, log)
	s.conns = NewConnectionStore(log)
	s.bus = NewOpponentBus(log)
	s.gameLog = newGameLogWriter(db, log, 1000)
	s.pub = NewCompositePublisher(log, s.conns, s.bus, s.gameLog)

	s.flow.SetDriver(s)
	return s
}

// Start begins background processing.
func (s *Server) Start() {
	s.gameLog.Start()
	s.log.Infof("Game server started")
}

// Stop drains the game log and cancels every timer.
func (s *Server) Stop() {
	s.gameLog.Stop()
	s.log.Infof("Game server stopped")
}

func (s *Server) newRNG() *rand.Rand {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return rand.New(rand.NewSource(s.rng.Int63()))
}

// ConnectResult tells the SSE handler what to send first and whether to
// keep the stream open.
type ConnectResult struct {
	GameID   string
	PlayerID string
	Initial  *InitialStatePayload
	Stream   bool
}

// Connect resolves a player's SSE connection request: reconnection to a
// live seat, re-attachment to a waiting room, or matchmaking into a new
// or existing game.
func (s *Server) Connect(ctx context.Context, playerID, playerName, gameID, roomType string) (*ConnectResult, error) {
	if gameID != "" {
		s.logCommand(gameID, playerID, "ReconnectGame", map[string]string{
			"player_name": playerName,
		})
		return s.connectExisting(ctx, playerID, gameID)
	}
	return s.connectMatchmake(ctx, playerID, playerName, roomType)
}

func (s *Server) connectExisting(ctx context.Context, playerID, gameID string) (*ConnectResult, error) {
	ctx, release := s.locks.Acquire(ctx, gameID)
	defer release()

	g, ok := s.store.Get(gameID)
	if !ok {
		return s.connectAbsent(playerID, gameID)
	}

	if _, seated := g.PlayerByID(playerID); !seated {
		return nil, NewGameError(CodePlayerNotInGame, "player is not seated in this game")
	}
	if g.ConnStatuses[playerID] == hanafuda.ConnLeft {
		return nil, NewGameError(CodeGameAlreadyFinished, "player has left this game")
	}

	res := &ConnectResult{GameID: gameID, PlayerID: playerID}
	switch g.Status {
	case hanafuda.StatusWaiting:
		res.Initial = &InitialStatePayload{
			ResponseType: ResponseTypeGameWaiting,
			GameID:       gameID,
			PlayerID:     playerID,
			Players:      playerInfos(g),
		}
		res.Stream = true

	case hanafuda.StatusInProgress:
		// Reconnection: presence flips back, the disconnect clock stops,
		// but the action clock keeps whatever time it had.
		g.SetConnStatus(playerID, hanafuda.ConnConnected)
		s.timeouts.Clear(gameID, playerID, TimerDisconnect)
		snap := BuildSnapshot(g, playerID, s.flow.RemainingActionSeconds(gameID))
		res.Initial = &InitialStatePayload{
			ResponseType: ResponseTypeSnapshot,
			GameID:       gameID,
			PlayerID:     playerID,
			Players:      playerInfos(g),
			Snapshot:     snap,
		}
		res.Stream = true

	case hanafuda.StatusFinished:
		res.Initial = &InitialStatePayload{
			ResponseType: ResponseTypeGameFinished,
			GameID:       gameID,
			PlayerID:     playerID,
			Finished:     s.finishedPayload(g),
		}
	}
	return res, nil
}

// connectAbsent answers a connect for a game id no longer in memory:
// finished games report their stored result, anything else is expired.
func (s *Server) connectAbsent(playerID, gameID string) (*ConnectResult, error) {
	rec, err := s.db.LoadGame(gameID)
	if err == nil && rec.Status == string(hanafuda.StatusFinished) {
		return &ConnectResult{
			GameID:   gameID,
			PlayerID: playerID,
			Initial: &InitialStatePayload{
				ResponseType: ResponseTypeGameFinished,
				GameID:       gameID,
				PlayerID:     playerID,
				Finished: &GameFinishedPayload{
					WinnerID:     rec.WinnerID,
					Reason:       rec.FinishReason,
					RoundsPlayed: rec.RoundsPlayed,
				},
			},
		}, nil
	}
	return &ConnectResult{
		GameID:   gameID,
		PlayerID: playerID,
		Initial: &InitialStatePayload{
			ResponseType: ResponseTypeGameExpired,
			GameID:       gameID,
			PlayerID:     playerID,
		},
	}, nil
}

func (s *Server) connectMatchmake(ctx context.Context, playerID, playerName, roomType string) (*ConnectResult, error) {
	player := hanafuda.Player{ID: playerID, Name: playerName}
	body := map[string]string{"player_name": playerName, "room_type": roomType}

	if roomType != RoomTypeAI {
		if g, ok := s.store.TakeWaiting(); ok {
			s.logCommand(g.ID, playerID, "JoinExistingGame", body)
			return s.joinWaiting(ctx, g, player)
		}
	}

	g := hanafuda.NewGame(uuid.New().String(), s.cfg.Ruleset(), s.newRNG())
	if err := g.AddPlayer(player); err != nil {
		return nil, wrapGameError(CodeInternalError, "failed to seat player", err)
	}
	command := "CreateGame"
	if roomType == RoomTypeAI {
		command = "JoinGameAsAi"
	}
	s.logCommand(g.ID, playerID, command, body)
	s.store.Put(g)
	s.persistGame(g)

	gameID := g.ID
	if roomType == RoomTypeAI {
		s.store.MarkMatched(gameID)
		s.pub.Publish(NewEvent(EventTypeRoomCreated, gameID, playerID, &RoomCreatedPayload{GameID: gameID}))
		// The AI seat joins on the spot; no matchmaking wait.
		if err := s.seatAI(ctx, gameID); err != nil {
			return nil, err
		}
	} else {
		s.timeouts.Start(gameID, "", TimerMatchmaking, s.cfg.MatchmakingTimeout, func() {
			s.expireGame(context.Background(), gameID)
		})
	}

	return &ConnectResult{
		GameID:   gameID,
		PlayerID: playerID,
		Initial: &InitialStatePayload{
			ResponseType: ResponseTypeGameWaiting,
			GameID:       gameID,
			PlayerID:     playerID,
			Players:      playerInfos(g),
		},
		Stream: true,
	}, nil
}

func (s *Server) joinWaiting(ctx context.Context, g *hanafuda.Game, player hanafuda.Player) (*ConnectResult, error) {
	ctx, release := s.locks.Acquire(ctx, g.ID)
	defer release()

	if err := g.AddPlayer(player); err != nil {
		return nil, wrapGameError(CodeInternalError, "failed to seat player", err)
	}
	s.timeouts.Clear(g.ID, "", TimerMatchmaking)

	return &ConnectResult{
		GameID:   g.ID,
		PlayerID: player.ID,
		Initial: &InitialStatePayload{
			ResponseType: ResponseTypeGameWaiting,
			GameID:       g.ID,
			PlayerID:     player.ID,
			Players:      playerInfos(g),
		},
		Stream: true,
	}, nil
}

// seatAI fills the second seat with a machine player and starts its
// runner on the opponent bus.
func (s *Server) seatAI(ctx context.Context, gameID string) error {
	ctx, release := s.locks.Acquire(ctx, gameID)
	defer release()

	g, ok := s.store.Get(gameID)
	if !ok {
		return NewGameError(CodeGameNotFound, "game not found")
	}

	ai := hanafuda.Player{ID: uuid.New().String(), Name: "Koi", IsAI: true}
	if err := g.AddPlayer(ai); err != nil {
		return wrapGameError(CodeInternalError, "failed to seat ai", err)
	}

	runner := newAIRunner(gameID, ai.ID, s, s.bus.Subscribe(gameID), s.log)
	go runner.run()

	return s.startIfFull(ctx, g)
}

// PlayerConnected is called by the SSE handler once the stream is
// attached. Both seats present on a waiting game starts it.
func (s *Server) PlayerConnected(ctx context.Context, gameID, playerID string) error {
	ctx, release := s.locks.Acquire(ctx, gameID)
	defer release()

	g, ok := s.store.Get(gameID)
	if !ok {
		return NewGameError(CodeGameNotFound, "game not found")
	}
	g.SetConnStatus(playerID, hanafuda.ConnConnected)
	s.timeouts.Clear(gameID, playerID, TimerDisconnect)

	return s.startIfFull(ctx, g)
}

func (s *Server) startIfFull(ctx context.Context, g *hanafuda.Game) error {
	if g.Status != hanafuda.StatusWaiting || !g.Full() {
		return nil
	}
	for _, p := range g.Players {
		if !p.IsAI && !s.conns.Connected(g.ID, p.ID) {
			return nil
		}
	}

	if err := g.Start(); err != nil {
		return wrapGameError(CodeInternalError, "failed to start game", err)
	}
	s.store.MarkMatched(g.ID)
	s.timeouts.Clear(g.ID, "", TimerMatchmaking)

	s.pub.Publish(NewEvent(EventTypeGameStarted, g.ID, "", &GameStartedPayload{
		GameID:      g.ID,
		Players:     playerInfos(g),
		TotalRounds: g.Ruleset.TotalRounds,
	}))
	s.publishRoundDealt(g)
	s.persistGame(g)

	if ended := s.concludeInstantEnd(ctx, g); ended {
		return nil
	}
	s.flow.Arm(g)
	return nil
}

// publishRoundDealt emits the deal with per-player hand visibility. The
// logged payload keeps both hands so the round can be replayed.
func (s *Server) publishRoundDealt(g *hanafuda.Game) {
	round := g.CurrentRound
	if round == nil {
		return
	}

	hands := make(map[string][]hanafuda.Card, 2)
	for _, p := range g.Players {
		hands[p.ID] = round.Areas[p.ID].Hand
	}
	next := NextState{
		FlowState:      string(round.FlowState),
		ActivePlayerID: round.ActivePlayerID,
	}
	full := &RoundDealtPayload{
		RoundNumber: round.Number,
		DealerID:    round.DealerID,
		FieldCards:  round.Field,
		Hands:       hands,
		DeckCount:   len(round.Deck),
		NextState:   next,
	}

	event := NewEvent(EventTypeRoundDealt, g.ID, "", full)
	event.View = func(playerID string) any {
		hand, seated := hands[playerID]
		if !seated {
			return full
		}
		return &RoundDealtPayload{
			RoundNumber:       round.Number,
			DealerID:          round.DealerID,
			FieldCards:        round.Field,
			Hand:              hand,
			OpponentHandCount: len(hands[g.OpponentID(playerID)]),
			DeckCount:         len(round.Deck),
			NextState:         next,
		}
	}
	s.pub.Publish(event)
}

// PlayerDisconnected is called when an SSE stream drops without an
// explicit leave. The disconnect grace timer starts; if it fires before
// a reconnect, the seat is treated as abandoned.
func (s *Server) PlayerDisconnected(ctx context.Context, gameID, playerID string) {
	ctx, release := s.locks.Acquire(ctx, gameID)
	defer release()

	g, ok := s.store.Get(gameID)
	if !ok {
		return
	}
	if g.Status == hanafuda.StatusFinished || g.ConnStatuses[playerID] == hanafuda.ConnLeft {
		return
	}

	g.SetConnStatus(playerID, hanafuda.ConnDisconnected)
	s.timeouts.Start(gameID, playerID, TimerDisconnect, s.cfg.DisconnectTimeout, func() {
		s.TimeoutLeave(context.Background(), gameID, playerID)
	})

	if g.Status == hanafuda.StatusWaiting {
		// Sole waiting player walking away abandons the room.
		s.expireGame(ctx, gameID)
	}
}

// expireGame abandons a WAITING room that never filled.
func (s *Server) expireGame(ctx context.Context, gameID string) {
	ctx, release := s.locks.Acquire(ctx, gameID)
	defer release()

	g, ok := s.store.Get(gameID)
	if !ok || g.Status != hanafuda.StatusWaiting {
		return
	}

	s.log.Infof("Expiring waiting game %s", gameID)
	s.store.Remove(gameID)
	s.flow.GameClosed(gameID)

	rec, players := gameRecords(g)
	rec.Status = "EXPIRED"
	if err := s.db.SaveGame(rec, players); err != nil {
		s.log.Errorf("Failed to persist expired game %s: %v", gameID, err)
	}

	s.conns.CloseGame(gameID)
	s.bus.CloseGame(gameID)
}

func (s *Server) finishedPayload(g *hanafuda.Game) *GameFinishedPayload {
	return &GameFinishedPayload{
		WinnerID:     g.WinnerID,
		Reason:       string(g.FinishReason),
		FinalScores:  g.CumulativeScores,
		RoundsPlayed: g.RoundsPlayed,
	}
}

func playerInfos(g *hanafuda.Game) []PlayerInfo {
	infos := make([]PlayerInfo, 0, len(g.Players))
	for _, p := range g.Players {
		infos = append(infos, PlayerInfo{ID: p.ID, Name: p.Name, IsAI: p.IsAI})
	}
	return infos
}

// persistGame writes the survivable subset of a game.
func (s *Server) persistGame(g *hanafuda.Game) {
	rec, players := gameRecords(g)
	if err := s.db.SaveGame(rec, players); err != nil {
		s.log.Errorf("Failed to persist game %s: %v", g.ID, err)
	}
}

// logCommand records a received command for audit, off the hot path.
func (s *Server) logCommand(gameID, playerID, command string, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		payload = nil
	}
	go func() {
		if err := s.db.AppendCommandLog(gameID, playerID, command, payload); err != nil {
			s.log.Warnf("Failed to log command %s for game %s: %v", command, gameID, err)
		}
	}()
}
