package server

import (
	"github.com/ychleo102615/hanahuda-sub006/pkg/hanafuda"
)

// SnapshotSeat is the self view of one player inside a snapshot.
type SnapshotSeat struct {
	Hand       []hanafuda.Card `json:"hand"`
	Depository []hanafuda.Card `json:"depository"`
	Yaku       []YakuInfo      `json:"yaku"`
	Score      int             `json:"score"`
}

// SnapshotOpponent is the hidden-hand view of the other seat.
type SnapshotOpponent struct {
	HandCount  int             `json:"hand_count"`
	Depository []hanafuda.Card `json:"depository"`
	Yaku       []YakuInfo      `json:"yaku"`
	Score      int             `json:"score"`
}

// GameSnapshotRestore is the reconnection payload: everything a client
// needs to resume rendering mid-round. Recomputed from the live
// aggregate on every reconnect, never stored.
type GameSnapshotRestore struct {
	GameStatus             string                     `json:"game_status"`
	RoundNumber            int                        `json:"round_number"`
	Self                   SnapshotSeat               `json:"self"`
	Opponent               SnapshotOpponent           `json:"opponent"`
	FieldCards             []hanafuda.Card            `json:"field_cards"`
	DeckCount              int                        `json:"deck_count"`
	FlowState              string                     `json:"flow_state"`
	ActivePlayerID         string                     `json:"active_player_id"`
	PendingSelection       *hanafuda.PendingSelection `json:"pending_selection,omitempty"`
	RemainingActionSeconds float64                    `json:"remaining_action_seconds"`
	KoiKoiApplied          bool                       `json:"koi_koi_applied"`
	CumulativeScores       map[string]int             `json:"cumulative_scores"`
}

// BuildSnapshot derives the reconnection view for one player from the
// live aggregate. The opponent's hand is exposed only by count.
func BuildSnapshot(g *hanafuda.Game, playerID string, remainingSeconds float64) *GameSnapshotRestore {
	snap := &GameSnapshotRestore{
		GameStatus:             string(g.Status),
		RemainingActionSeconds: remainingSeconds,
		CumulativeScores:       g.CumulativeScores,
	}

	round := g.CurrentRound
	if round == nil {
		return snap
	}

	oppID := g.OpponentID(playerID)
	self := round.Areas[playerID]
	opp := round.Areas[oppID]

	snap.RoundNumber = round.Number
	snap.FieldCards = round.Field
	snap.DeckCount = len(round.Deck)
	snap.FlowState = string(round.FlowState)
	snap.ActivePlayerID = round.ActivePlayerID
	snap.PendingSelection = round.Pending
	snap.KoiKoiApplied = round.KoiKoiApplied

	if self != nil {
		snap.Self = SnapshotSeat{
			Hand:       self.Hand,
			Depository: self.Depository,
			Yaku:       yakuInfos(round.HeldYaku(playerID)),
			Score:      g.CumulativeScores[playerID],
		}
	}
	if opp != nil {
		snap.Opponent = SnapshotOpponent{
			HandCount:  len(opp.Hand),
			Depository: opp.Depository,
			Yaku:       yakuInfos(round.HeldYaku(oppID)),
			Score:      g.CumulativeScores[oppID],
		}
	}
	return snap
}
