package server

import (
	"context"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/ychleo102615/hanahuda-sub006/pkg/hanafuda"
	"github.com/ychleo102615/hanahuda-sub006/pkg/statemachine"
)

// leftServeDelay is how quickly a LEFT player's pending input is
// auto-served.
const leftServeDelay = 100 * time.Millisecond

// flowDriver is the slice of the command layer the turn-flow service
// drives. The server installs itself here after construction; the
// indirection breaks the construction cycle between timers, auto
// actions and the use cases that arm timers.
type flowDriver interface {
	AutoActor
	DealNextRound(ctx context.Context, gameID string)
	FinishForfeit(ctx context.Context, gameID string)
	TimeoutLeave(ctx context.Context, gameID, playerID string)
	PromptContinue(gameID, playerID string)
}

// flowCtx is the per-arming state the flow machine runs over.
type flowCtx struct {
	svc      *TurnFlowService
	gameID   string
	playerID string
	status   hanafuda.ConnectionStatus
}

// TurnFlowService orchestrates everything above the pure engine: action
// clocks per flow state, accelerated service of absent players, idle
// tracking, round-boundary continue prompts, display delays between
// rounds, and the forfeit path when a seat has been abandoned.
type TurnFlowService struct {
	cfg      *Config
	timeouts *TimeoutManager
	log      slog.Logger

	mu       sync.Mutex
	driver   flowDriver
	machines map[string]*statemachine.Machine[flowCtx]
	autoRuns map[string]map[string]int // gameID -> playerID -> consecutive auto actions
}

// NewTurnFlowService creates the service. SetDriver must be called
// before any game is armed.
func NewTurnFlowService(cfg *Config, timeouts *TimeoutManager, log slog.Logger) *TurnFlowService {
	return &TurnFlowService{
		cfg:      cfg,
		timeouts: timeouts,
		log:      log,
		machines: make(map[string]*statemachine.Machine[flowCtx]),
		autoRuns: make(map[string]map[string]int),
	}
}

// SetDriver installs the command layer, completing the wiring cycle.
func (t *TurnFlowService) SetDriver(d flowDriver) {
	t.mu.Lock()
	t.driver = d
	t.mu.Unlock()
}

// Arm schedules whatever the game's current flow state requires. Called
// under the game lock after every transition.
func (t *TurnFlowService) Arm(g *hanafuda.Game) {
	round := g.CurrentRound
	if round == nil || g.Status != hanafuda.StatusInProgress {
		return
	}

	ctx := flowCtx{
		svc:      t,
		gameID:   g.ID,
		playerID: round.ActivePlayerID,
		status:   g.ConnStatuses[round.ActivePlayerID],
	}

	var state statemachine.StateFn[flowCtx]
	switch round.FlowState {
	case hanafuda.FlowAwaitingHandPlay:
		state = awaitingHandPlay
	case hanafuda.FlowAwaitingSelection:
		state = awaitingSelection
	case hanafuda.FlowAwaitingDecision:
		state = awaitingDecision
	default:
		return
	}

	t.mu.Lock()
	m, ok := t.machines[g.ID]
	if !ok {
		m = statemachine.New(&ctx, nil)
		t.machines[g.ID] = m
	}
	t.mu.Unlock()

	// New arming replaces the old context wholesale.
	*m.Entity() = ctx
	m.Dispatch(state)
}

// The flow states all arm the same action clock; they differ only in
// what the auto action will do when it fires, which the actor resolves
// from live game state.

func awaitingHandPlay(c *flowCtx) statemachine.StateFn[flowCtx] {
	c.svc.armActionTimer(c)
	return nil
}

func awaitingSelection(c *flowCtx) statemachine.StateFn[flowCtx] {
	c.svc.armActionTimer(c)
	return nil
}

func awaitingDecision(c *flowCtx) statemachine.StateFn[flowCtx] {
	c.svc.armActionTimer(c)
	return nil
}

func (t *TurnFlowService) armActionTimer(c *flowCtx) {
	d := t.actionDuration(c.status)
	gameID, playerID := c.gameID, c.playerID
	t.timeouts.Start(gameID, "", TimerAction, d, func() {
		t.fireAutoAction(gameID, playerID)
	})
}

func (t *TurnFlowService) actionDuration(status hanafuda.ConnectionStatus) time.Duration {
	switch status {
	case hanafuda.ConnLeft:
		return leftServeDelay
	case hanafuda.ConnDisconnected:
		return t.cfg.AcceleratedActionTimeout
	default:
		return t.cfg.ActionTimeout
	}
}

func (t *TurnFlowService) fireAutoAction(gameID, playerID string) {
	t.noteAutoAction(gameID, playerID)
	if err := t.driver.AutoAction(context.Background(), gameID, playerID); err != nil {
		if ErrCode(err) == CodeGameNotFound {
			return
		}
		t.log.Errorf("auto action for %s in game %s: %v", playerID, gameID, err)
	}
}

// ClearAction cancels the pending action clock; every command does this
// on entry.
func (t *TurnFlowService) ClearAction(gameID string) {
	t.timeouts.Clear(gameID, "", TimerAction)
}

// RemainingActionSeconds reports the live action clock for snapshots.
func (t *TurnFlowService) RemainingActionSeconds(gameID string) float64 {
	return t.timeouts.Remaining(gameID, "", TimerAction).Seconds()
}

// RoundEnded steers the game past a round boundary: forfeit when a seat
// has been abandoned, continue prompts for idle-flagged players, or the
// next deal after the display delay.
func (t *TurnFlowService) RoundEnded(ctx context.Context, g *hanafuda.Game) {
	gameID := g.ID

	if g.AnyAbsent() {
		t.driver.FinishForfeit(ctx, gameID)
		return
	}
	if !g.RoundsRemain() {
		// The decision path already finished the game.
		return
	}

	idle := t.idleFlagged(g)
	for _, playerID := range idle {
		g.PendingContinue[playerID] = true
		pid := playerID
		t.timeouts.Start(gameID, pid, TimerContinueConfirm, t.cfg.ContinueConfirmation, func() {
			t.driver.TimeoutLeave(context.Background(), gameID, pid)
		})
		t.driver.PromptContinue(gameID, pid)
	}
	if len(idle) > 0 {
		return
	}

	t.timeouts.Start(gameID, "", TimerDisplay, t.cfg.DisplayTimeout, func() {
		t.driver.DealNextRound(context.Background(), gameID)
	})
}

// ContinueResolved is called when a pending continue confirmation is
// answered or withdrawn; once none remain, the next round is dealt.
func (t *TurnFlowService) ContinueResolved(g *hanafuda.Game, playerID string) {
	t.timeouts.Clear(g.ID, playerID, TimerContinueConfirm)
	delete(g.PendingContinue, playerID)
	t.resetIdleCount(g.ID, playerID)

	if len(g.PendingContinue) == 0 && g.RoundsRemain() && g.Status == hanafuda.StatusInProgress {
		gameID := g.ID
		t.timeouts.Start(gameID, "", TimerDisplay, t.cfg.DisplayTimeout, func() {
			t.driver.DealNextRound(context.Background(), gameID)
		})
	}
}

// idleFlagged returns connected players whose recent turns were all
// auto-served, meaning they owe a continue confirmation.
func (t *TurnFlowService) idleFlagged(g *hanafuda.Game) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	runs := t.autoRuns[g.ID]
	var flagged []string
	for _, p := range g.Players {
		if p.IsAI || g.ConnStatuses[p.ID] != hanafuda.ConnConnected {
			continue
		}
		if runs[p.ID] >= t.cfg.IdleAutoActionLimit {
			flagged = append(flagged, p.ID)
		}
	}
	return flagged
}

func (t *TurnFlowService) noteAutoAction(gameID, playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	runs, ok := t.autoRuns[gameID]
	if !ok {
		runs = make(map[string]int)
		t.autoRuns[gameID] = runs
	}
	runs[playerID]++
}

// ResetIdle clears a player's consecutive auto-action count; called on
// every player-initiated command.
func (t *TurnFlowService) ResetIdle(gameID, playerID string) {
	t.resetIdleCount(gameID, playerID)
	t.timeouts.Clear(gameID, playerID, TimerIdle)
}

func (t *TurnFlowService) resetIdleCount(gameID, playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if runs, ok := t.autoRuns[gameID]; ok {
		delete(runs, playerID)
	}
}

// GameClosed drops all per-game flow state and timers.
func (t *TurnFlowService) GameClosed(gameID string) {
	t.timeouts.ClearAllForGame(gameID)
	t.mu.Lock()
	delete(t.machines, gameID)
	delete(t.autoRuns, gameID)
	t.mu.Unlock()
}

// Multipliers builds the published score-multiplier descriptor for a
// finished round.
func (t *TurnFlowService) Multipliers(g *hanafuda.Game, res *hanafuda.RoundResult) ScoreMultipliers {
	m := ScoreMultipliers{
		PlayerMultipliers: make(map[string]int),
		KoiKoiApplied:     res.KoiKoiApplied,
		SevenPointApplied: res.SevenPointApplied,
	}
	for _, p := range g.Players {
		mult := 1
		if p.ID == res.WinnerID {
			mult = res.Multiplier
		}
		m.PlayerMultipliers[p.ID] = mult
	}
	return m
}
