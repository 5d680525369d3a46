package server

import (
	"github.com/ychleo102615/hanahuda-sub006/pkg/hanafuda"
)

// NextState is the flow-state record common to post-turn events.
type NextState struct {
	FlowState      string `json:"flow_state"`
	ActivePlayerID string `json:"active_player_id"`
}

// PlayerInfo identifies a seat in wire payloads.
type PlayerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	IsAI bool   `json:"is_ai"`
}

// YakuInfo is a single held yaku on the wire.
type YakuInfo struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

func yakuInfos(results []hanafuda.YakuResult) []YakuInfo {
	out := make([]YakuInfo, 0, len(results))
	for _, r := range results {
		out = append(out, YakuInfo{Name: string(r.Name), Points: r.Points})
	}
	return out
}

// InitialStatePayload is the first event on every SSE connection. The
// response type discriminates which of the optional fields is set.
type InitialStatePayload struct {
	ResponseType string `json:"response_type"`
	GameID       string `json:"game_id"`
	PlayerID     string `json:"player_id"`

	Players  []PlayerInfo         `json:"players,omitempty"`
	Snapshot *GameSnapshotRestore `json:"snapshot,omitempty"`
	Finished *GameFinishedPayload `json:"result,omitempty"`
}

const (
	ResponseTypeGameWaiting  = "game_waiting"
	ResponseTypeSnapshot     = "snapshot"
	ResponseTypeGameFinished = "game_finished"
	ResponseTypeGameExpired  = "game_expired"
)

// GameStartedPayload announces both seats are filled.
type GameStartedPayload struct {
	GameID      string       `json:"game_id"`
	Players     []PlayerInfo `json:"players"`
	TotalRounds int          `json:"total_rounds"`
}

// RoundDealtPayload carries the initial deal. Hand is personalized per
// receiving player; OpponentHandCount covers the hidden seat. The game
// log records the full payload with both hands for deterministic replay.
type RoundDealtPayload struct {
	RoundNumber      int             `json:"round_number"`
	DealerID         string          `json:"dealer_id"`
	FieldCards       []hanafuda.Card `json:"field_cards"`
	Hand             []hanafuda.Card `json:"hand,omitempty"`
	OpponentHandCount int            `json:"opponent_hand_count,omitempty"`
	Hands            map[string][]hanafuda.Card `json:"hands,omitempty"`
	DeckCount        int             `json:"deck_count"`
	NextState        NextState       `json:"next_state"`
}

// TurnCompletedPayload reports a fully resolved turn: the hand play, the
// draw flip, and resulting captures.
type TurnCompletedPayload struct {
	PlayerID     string          `json:"player_id"`
	HandCard     hanafuda.Card   `json:"hand_card,omitempty"`
	HandCaptured []hanafuda.Card `json:"hand_captured,omitempty"`
	HandToField  bool            `json:"hand_to_field,omitempty"`
	DrawnCard    hanafuda.Card   `json:"drawn_card,omitempty"`
	DrawCaptured []hanafuda.Card `json:"draw_captured,omitempty"`
	DrawToField  bool            `json:"draw_to_field,omitempty"`
	FieldCards   []hanafuda.Card `json:"field_cards"`
	DeckCount    int             `json:"deck_count"`
	NextState    NextState       `json:"next_state"`
}

// SelectionRequiredPayload suspends the turn on a multi-match.
type SelectionRequiredPayload struct {
	PlayerID        string          `json:"player_id"`
	SourceCard      hanafuda.Card   `json:"source_card"`
	PossibleTargets []hanafuda.Card `json:"possible_targets"`
	FromHand        bool            `json:"from_hand"`
	NextState       NextState       `json:"next_state"`
}

// TurnProgressAfterSelectionPayload resolves a suspended selection.
type TurnProgressAfterSelectionPayload struct {
	PlayerID     string          `json:"player_id"`
	SourceCard   hanafuda.Card   `json:"source_card"`
	TargetCard   hanafuda.Card   `json:"target_card"`
	Captured     []hanafuda.Card `json:"captured"`
	DrawnCard    hanafuda.Card   `json:"drawn_card,omitempty"`
	DrawCaptured []hanafuda.Card `json:"draw_captured,omitempty"`
	DrawToField  bool            `json:"draw_to_field,omitempty"`
	FieldCards   []hanafuda.Card `json:"field_cards"`
	DeckCount    int             `json:"deck_count"`
	NextState    NextState       `json:"next_state"`
}

// DecisionRequiredPayload asks the active player for koi-koi or end.
type DecisionRequiredPayload struct {
	PlayerID  string     `json:"player_id"`
	Yaku      []YakuInfo `json:"yaku"`
	BaseScore int        `json:"base_score"`
	NextState NextState  `json:"next_state"`
}

// DecisionMadePayload reports the chosen decision.
type DecisionMadePayload struct {
	PlayerID      string    `json:"player_id"`
	Decision      string    `json:"decision"`
	KoiKoiApplied bool      `json:"koi_koi_applied"`
	NextState     NextState `json:"next_state"`
}

// ScoreMultipliers describes how the round's base score became the
// final score.
type ScoreMultipliers struct {
	PlayerMultipliers map[string]int `json:"player_multipliers"`
	KoiKoiApplied     bool           `json:"koi_koi_applied"`
	SevenPointApplied bool           `json:"seven_point_applied"`
}

// RoundEndedPayload closes a round, by scoring, draw, instant ends or
// forfeit.
type RoundEndedPayload struct {
	RoundNumber      int              `json:"round_number"`
	Reason           string           `json:"reason"`
	WinnerID         string           `json:"winner_id,omitempty"`
	Yaku             []YakuInfo       `json:"yaku,omitempty"`
	BaseScore        int              `json:"base_score"`
	FinalScore       int              `json:"final_score"`
	Multipliers      ScoreMultipliers `json:"multipliers"`
	CumulativeScores map[string]int   `json:"cumulative_scores"`
	MoreRounds       bool             `json:"more_rounds"`
}

// GameFinishedPayload closes the game.
type GameFinishedPayload struct {
	WinnerID    string         `json:"winner_id,omitempty"`
	Reason      string         `json:"reason"`
	FinalScores map[string]int `json:"final_scores"`
	RoundsPlayed int           `json:"rounds_played"`
}

// RoomCreatedPayload is the internal bus signal that a waiting room
// needs an AI opponent.
type RoomCreatedPayload struct {
	GameID string `json:"game_id"`
}

// ContinuePromptPayload rides on DecisionRequired-style prompts at round
// boundaries when a player has been flagged idle.
type ContinuePromptPayload struct {
	PlayerID       string `json:"player_id"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}
