package hanafuda

import (
	"errors"
	"math/rand"
	"time"
)

// GameStatus is the aggregate lifecycle.
type GameStatus string

const (
	StatusWaiting    GameStatus = "WAITING"
	StatusInProgress GameStatus = "IN_PROGRESS"
	StatusFinished   GameStatus = "FINISHED"
)

// ConnectionStatus tracks a player's presence. LEFT is terminal within
// the game.
type ConnectionStatus string

const (
	ConnConnected    ConnectionStatus = "CONNECTED"
	ConnDisconnected ConnectionStatus = "DISCONNECTED"
	ConnLeft         ConnectionStatus = "LEFT"
)

// FinishReason labels how a game concluded.
type FinishReason string

const (
	FinishCompleted    FinishReason = "COMPLETED"
	FinishOpponentLeft FinishReason = "OPPONENT_LEFT"
)

// Player identity within a game.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	IsAI bool   `json:"is_ai"`
}

// Ruleset is the per-game configuration snapshot.
type Ruleset struct {
	TotalRounds int
	Yaku        YakuSettings
	Special     SpecialRules
}

var (
	ErrGameFull       = errors.New("game already has two players")
	ErrAlreadySeated  = errors.New("player already seated")
	ErrNotEnoughSeats = errors.New("both seats must be filled")
	ErrGameNotWaiting = errors.New("game is not waiting for players")
)

// Game is the aggregate root for one two-player match.
type Game struct {
	ID              string
	Players         []Player
	Ruleset         Ruleset
	CumulativeScores map[string]int
	RoundsWon       map[string]int
	RoundsPlayed    int
	CurrentRound    *Round
	Status          GameStatus
	ConnStatuses    map[string]ConnectionStatus
	PendingContinue map[string]bool
	WinnerID        string
	FinishReason    FinishReason
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// nextDealer carries the dealer seat across round boundaries: the
	// round winner deals next; on a draw the dealer holds.
	nextDealer string

	rng *rand.Rand
}

// NewGame creates a waiting game. rng drives every deal for this game;
// seeding it makes the whole match deterministic.
func NewGame(id string, ruleset Ruleset, rng *rand.Rand) *Game {
	now := time.Now()
	return &Game{
		ID:               id,
		Ruleset:          ruleset,
		CumulativeScores: make(map[string]int),
		RoundsWon:        make(map[string]int),
		Status:           StatusWaiting,
		ConnStatuses:     make(map[string]ConnectionStatus),
		PendingContinue:  make(map[string]bool),
		CreatedAt:        now,
		UpdatedAt:        now,
		rng:              rng,
	}
}

// AddPlayer seats a player. The game stays WAITING until Start.
func (g *Game) AddPlayer(p Player) error {
	if g.Status != StatusWaiting {
		return ErrGameNotWaiting
	}
	if len(g.Players) >= 2 {
		return ErrGameFull
	}
	for _, existing := range g.Players {
		if existing.ID == p.ID {
			return ErrAlreadySeated
		}
	}
	g.Players = append(g.Players, p)
	g.CumulativeScores[p.ID] = 0
	g.ConnStatuses[p.ID] = ConnConnected
	g.touch()
	return nil
}

// Full reports whether both seats are taken.
func (g *Game) Full() bool {
	return len(g.Players) == 2
}

// Start transitions WAITING → IN_PROGRESS and deals round 1 with the
// first seat as dealer.
func (g *Game) Start() error {
	if g.Status != StatusWaiting {
		return ErrGameNotWaiting
	}
	if !g.Full() {
		return ErrNotEnoughSeats
	}
	g.Status = StatusInProgress
	g.nextDealer = g.Players[0].ID
	g.dealRound()
	return nil
}

// DealNextRound replaces the current round. The previous round must have
// been applied via ApplyRoundResult.
func (g *Game) DealNextRound() error {
	if g.Status != StatusInProgress {
		return errors.New("game is not in progress")
	}
	g.dealRound()
	return nil
}

func (g *Game) dealRound() {
	dealer := g.nextDealer
	// A LEFT player never deals (and never becomes active) again.
	if g.ConnStatuses[dealer] == ConnLeft {
		dealer = g.OpponentID(dealer)
	}
	g.CurrentRound = NewRound(g.RoundsPlayed+1, g.rng, dealer, g.OpponentID(dealer), g.Ruleset.Yaku, g.Ruleset.Special)
	g.touch()
}

// ApplyRoundResult folds a finished round into the cumulative scores and
// fixes the next dealer.
func (g *Game) ApplyRoundResult(res *RoundResult) {
	if res.WinnerID != "" {
		g.CumulativeScores[res.WinnerID] += res.FinalScore
		g.RoundsWon[res.WinnerID]++
		g.nextDealer = res.WinnerID
	} else if g.CurrentRound != nil {
		g.nextDealer = g.CurrentRound.DealerID
	}
	g.RoundsPlayed++
	g.touch()
}

// RoundsRemain reports whether another round should be dealt.
func (g *Game) RoundsRemain() bool {
	return g.RoundsPlayed < g.Ruleset.TotalRounds
}

// Finish moves the game to its terminal state.
func (g *Game) Finish(winnerID string, reason FinishReason) {
	g.Status = StatusFinished
	g.WinnerID = winnerID
	g.FinishReason = reason
	g.CurrentRound = nil
	g.touch()
}

// LeadingPlayerID returns the player with the higher cumulative score, or
// empty on a tie.
func (g *Game) LeadingPlayerID() string {
	if len(g.Players) != 2 {
		return ""
	}
	a, b := g.Players[0], g.Players[1]
	switch {
	case g.CumulativeScores[a.ID] > g.CumulativeScores[b.ID]:
		return a.ID
	case g.CumulativeScores[b.ID] > g.CumulativeScores[a.ID]:
		return b.ID
	}
	return ""
}

// PlayerByID looks up a seated player.
func (g *Game) PlayerByID(id string) (Player, bool) {
	for _, p := range g.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// OpponentID returns the other seat, or empty if not seated.
func (g *Game) OpponentID(id string) string {
	for _, p := range g.Players {
		if p.ID != id {
			return p.ID
		}
	}
	return ""
}

// SetConnStatus updates presence. LEFT is sticky.
func (g *Game) SetConnStatus(playerID string, status ConnectionStatus) {
	if g.ConnStatuses[playerID] == ConnLeft {
		return
	}
	g.ConnStatuses[playerID] = status
	g.touch()
}

// AnyLeft reports whether a seat abandoned the game.
func (g *Game) AnyLeft() bool {
	for _, s := range g.ConnStatuses {
		if s == ConnLeft {
			return true
		}
	}
	return false
}

// AnyAbsent reports whether a seat is LEFT or DISCONNECTED.
func (g *Game) AnyAbsent() bool {
	for _, s := range g.ConnStatuses {
		if s == ConnLeft || s == ConnDisconnected {
			return true
		}
	}
	return false
}

// RemainingPlayerID returns the seat that has not LEFT, or empty.
func (g *Game) RemainingPlayerID() string {
	for _, p := range g.Players {
		if g.ConnStatuses[p.ID] != ConnLeft {
			return p.ID
		}
	}
	return ""
}

// HasAI reports whether one of the seats is the machine opponent.
func (g *Game) HasAI() bool {
	for _, p := range g.Players {
		if p.IsAI {
			return true
		}
	}
	return false
}

func (g *Game) touch() {
	g.UpdatedAt = time.Now()
}
