package hanafuda

import (
	"errors"
	"math/rand"
)

// FlowState is the round's sub-state machine: what input the active
// player must supply next.
type FlowState string

const (
	FlowAwaitingHandPlay  FlowState = "AWAITING_HAND_PLAY"
	FlowAwaitingSelection FlowState = "AWAITING_SELECTION"
	FlowAwaitingDecision  FlowState = "AWAITING_DECISION"
	FlowRoundEnded        FlowState = "ROUND_ENDED"
)

// RoundEndReason labels how a round concluded.
type RoundEndReason string

const (
	EndScored       RoundEndReason = "SCORED"
	EndDraw         RoundEndReason = "DRAW"
	EndTeshi        RoundEndReason = "INSTANT_TESHI"
	EndKuttsuki     RoundEndReason = "INSTANT_KUTTSUKI"
	EndOpponentLeft RoundEndReason = "OPPONENT_LEFT"
)

// Decision is the choice offered after forming a new yaku.
type Decision string

const (
	DecisionKoiKoi   Decision = "KOI_KOI"
	DecisionEndRound Decision = "END_ROUND"
)

// Domain validation errors. The application layer maps these onto its
// error taxonomy.
var (
	ErrWrongPlayer   = errors.New("not the active player")
	ErrWrongState    = errors.New("operation not valid in current flow state")
	ErrCardNotInHand = errors.New("card not in hand")
	ErrInvalidTarget = errors.New("target is not a possible selection")
	ErrRoundOver     = errors.New("round already ended")
)

// SpecialRules toggles the instant-end rules evaluated at deal time.
type SpecialRules struct {
	TeshiEnabled      bool
	KuttsukiEnabled   bool
	FieldTeshiEnabled bool
	InstantEndBonus   int
}

// PendingSelection records a played or drawn card with two or more field
// matches. Exactly one target must be chosen before the flow advances.
// FromHand marks a suspended hand play whose draw phase is still owed.
type PendingSelection struct {
	Source   Card   `json:"source_card"`
	Targets  []Card `json:"possible_targets"`
	FromHand bool   `json:"from_hand"`
}

// KoiStatus tracks how often a player declared koi-koi this round.
type KoiStatus struct {
	TimesContinued int `json:"times_continued"`
}

// PlayerArea holds one player's hand and captured pile.
type PlayerArea struct {
	Hand       []Card
	Depository []Card
}

// RoundResult is the round-end metadata.
type RoundResult struct {
	Reason            RoundEndReason
	WinnerID          string // empty on a draw
	Yaku              []YakuResult
	BaseScore         int
	Multiplier        int
	FinalScore        int
	KoiKoiApplied     bool
	SevenPointApplied bool
}

// TurnOutcome describes everything a single engine call changed, in the
// shape the event payloads need.
type TurnOutcome struct {
	PlayerID     string
	HandCard     Card
	HandCaptured []Card // two cards when the hand play captured
	HandToField  bool
	DrawnCard    Card // zero when suspended before the draw or deck empty
	DrawCaptured []Card
	DrawToField  bool
	Selection    *PendingSelection // non-nil when the turn suspended
	NewYaku      []YakuResult      // full held set when it strictly extended
	TurnComplete bool
	RoundResult  *RoundResult // non-nil when the round ended
}

// Round is one deal of a game. Transitions mutate the round in place;
// the application layer serializes access with the per-game lock.
type Round struct {
	Number         int
	DealerID       string
	PlayerIDs      [2]string // turn order, dealer first
	Field          []Card
	Deck           []Card
	Areas          map[string]*PlayerArea
	FlowState      FlowState
	ActivePlayerID string
	KoiStatuses    map[string]*KoiStatus
	Pending        *PendingSelection
	KoiKoiApplied  bool
	Result         *RoundResult

	// BaselineYaku is the active player's held set at the start of the
	// current turn; finishing the turn compares against it.
	BaselineYaku []YakuResult

	Yaku    YakuSettings
	Special SpecialRules
}

// NewRound shuffles a fresh deck with rng and deals: 8 cards to the
// field, 8 to each hand, 24 to the draw pile. Instant-end rules are
// evaluated before the first play.
func NewRound(number int, rng *rand.Rand, dealerID, poneID string, yaku YakuSettings, special SpecialRules) *Round {
	deck := NewDeck(rng)

	r := &Round{
		Number:         number,
		DealerID:       dealerID,
		PlayerIDs:      [2]string{dealerID, poneID},
		FlowState:      FlowAwaitingHandPlay,
		ActivePlayerID: dealerID,
		Areas: map[string]*PlayerArea{
			dealerID: {Hand: append([]Card(nil), deck[8:16]...)},
			poneID:   {Hand: append([]Card(nil), deck[16:24]...)},
		},
		Field: append([]Card(nil), deck[:8]...),
		Deck:  append([]Card(nil), deck[24:]...),
		KoiStatuses: map[string]*KoiStatus{
			dealerID: {},
			poneID:   {},
		},
		Yaku:    yaku,
		Special: special,
	}

	r.applyInstantEndRules()
	return r
}

// applyInstantEndRules checks teshi, kuttsuki and field-teshi on the
// fresh deal, in that order.
func (r *Round) applyInstantEndRules() {
	if r.Special.TeshiEnabled {
		for _, id := range r.PlayerIDs {
			if monthQuartet(r.Areas[id].Hand) != 0 {
				r.Result = &RoundResult{
					Reason:     EndTeshi,
					WinnerID:   id,
					BaseScore:  r.Special.InstantEndBonus,
					Multiplier: 1,
					FinalScore: r.Special.InstantEndBonus,
				}
				r.FlowState = FlowRoundEnded
				return
			}
		}
	}

	if r.Special.KuttsukiEnabled && fieldIsTwoQuartets(r.Field) {
		r.Result = &RoundResult{Reason: EndKuttsuki, Multiplier: 1}
		r.FlowState = FlowRoundEnded
		return
	}

	if r.Special.FieldTeshiEnabled {
		if m := monthQuartet(r.Field); m != 0 {
			// The quartet is awarded to the dealer; play continues.
			dealer := r.Areas[r.DealerID]
			var rest []Card
			for _, c := range r.Field {
				if c.Month() == m {
					dealer.Depository = append(dealer.Depository, c)
				} else {
					rest = append(rest, c)
				}
			}
			r.Field = rest
		}
	}
}

// monthQuartet returns the month that appears four times in cards, or 0.
func monthQuartet(cards []Card) int {
	counts := map[int]int{}
	for _, c := range cards {
		counts[c.Month()]++
		if counts[c.Month()] == 4 {
			return c.Month()
		}
	}
	return 0
}

// fieldIsTwoQuartets reports whether the 8 field cards span exactly two
// months, four cards each.
func fieldIsTwoQuartets(field []Card) bool {
	counts := map[int]int{}
	for _, c := range field {
		counts[c.Month()]++
	}
	if len(counts) != 2 {
		return false
	}
	for _, n := range counts {
		if n != 4 {
			return false
		}
	}
	return true
}

// PlayHandCard plays handCard from the active player's hand. With no
// field match the card joins the field; with one it captures; with two or
// more the turn suspends into AWAITING_SELECTION. Unless suspended, the
// draw phase then flips the top deck card under the same matching rules.
func (r *Round) PlayHandCard(playerID string, handCard Card) (*TurnOutcome, error) {
	if r.FlowState == FlowRoundEnded {
		return nil, ErrRoundOver
	}
	if playerID != r.ActivePlayerID {
		return nil, ErrWrongPlayer
	}
	if r.FlowState != FlowAwaitingHandPlay {
		return nil, ErrWrongState
	}
	area := r.Areas[playerID]
	if !containsCard(area.Hand, handCard) {
		return nil, ErrCardNotInHand
	}

	r.BaselineYaku = DetectYaku(area.Depository, r.Yaku)

	out := &TurnOutcome{PlayerID: playerID, HandCard: handCard}
	area.Hand = removeCard(area.Hand, handCard)

	matches := sameMonth(r.Field, handCard)
	switch len(matches) {
	case 0:
		r.Field = append(r.Field, handCard)
		out.HandToField = true
	case 1:
		r.capture(playerID, handCard, matches[0])
		out.HandCaptured = []Card{handCard, matches[0]}
	default:
		r.Pending = &PendingSelection{Source: handCard, Targets: matches, FromHand: true}
		r.FlowState = FlowAwaitingSelection
		out.Selection = r.Pending
		return out, nil
	}

	r.drawPhase(out)
	if out.Selection != nil {
		return out, nil
	}
	r.finishTurn(out)
	return out, nil
}

// SelectTarget resolves a pending selection by capturing (source, target).
// If a hand play was suspended the draw phase runs next; otherwise the
// turn completes.
func (r *Round) SelectTarget(playerID string, source, target Card) (*TurnOutcome, error) {
	if r.FlowState == FlowRoundEnded {
		return nil, ErrRoundOver
	}
	if playerID != r.ActivePlayerID {
		return nil, ErrWrongPlayer
	}
	if r.FlowState != FlowAwaitingSelection || r.Pending == nil {
		return nil, ErrWrongState
	}
	if source != r.Pending.Source || !containsCard(r.Pending.Targets, target) {
		return nil, ErrInvalidTarget
	}

	out := &TurnOutcome{PlayerID: playerID}
	fromHand := r.Pending.FromHand
	r.capture(playerID, source, target)
	r.Pending = nil
	r.FlowState = FlowAwaitingHandPlay

	if fromHand {
		out.HandCard = source
		out.HandCaptured = []Card{source, target}
		r.drawPhase(out)
		if out.Selection != nil {
			return out, nil
		}
	} else {
		out.DrawnCard = source
		out.DrawCaptured = []Card{source, target}
	}

	r.finishTurn(out)
	return out, nil
}

// HandleDecision resolves AWAITING_DECISION. KOI_KOI continues the round
// with the whole-round doubling flag set; END_ROUND scores it.
func (r *Round) HandleDecision(playerID string, decision Decision) (*TurnOutcome, error) {
	if r.FlowState == FlowRoundEnded {
		return nil, ErrRoundOver
	}
	if playerID != r.ActivePlayerID {
		return nil, ErrWrongPlayer
	}
	if r.FlowState != FlowAwaitingDecision {
		return nil, ErrWrongState
	}

	out := &TurnOutcome{PlayerID: playerID, TurnComplete: true}

	switch decision {
	case DecisionKoiKoi:
		r.KoiStatuses[playerID].TimesContinued++
		r.KoiKoiApplied = true
		r.advanceTurn(out)
	case DecisionEndRound:
		held := DetectYaku(r.Areas[playerID].Depository, r.Yaku)
		base := TotalPoints(held)
		mult := 1
		res := &RoundResult{
			Reason:    EndScored,
			WinnerID:  playerID,
			Yaku:      held,
			BaseScore: base,
		}
		if r.KoiKoiApplied {
			mult *= 2
			res.KoiKoiApplied = true
		}
		if base >= 7 {
			mult *= 2
			res.SevenPointApplied = true
		}
		res.Multiplier = mult
		res.FinalScore = base * mult
		r.Result = res
		r.FlowState = FlowRoundEnded
		out.RoundResult = res
	default:
		return nil, ErrWrongState
	}

	return out, nil
}

// drawPhase flips the top deck card and applies the matching rules. An
// empty deck skips the phase; the turn still completes.
func (r *Round) drawPhase(out *TurnOutcome) {
	if len(r.Deck) == 0 {
		return
	}
	drawn := r.Deck[0]
	r.Deck = r.Deck[1:]
	out.DrawnCard = drawn

	matches := sameMonth(r.Field, drawn)
	switch len(matches) {
	case 0:
		r.Field = append(r.Field, drawn)
		out.DrawToField = true
	case 1:
		r.capture(out.PlayerID, drawn, matches[0])
		out.DrawCaptured = []Card{drawn, matches[0]}
	default:
		r.Pending = &PendingSelection{Source: drawn, Targets: matches, FromHand: false}
		r.FlowState = FlowAwaitingSelection
		out.Selection = r.Pending
	}
}

// finishTurn runs yaku detection and either enters AWAITING_DECISION or
// hands the turn to the opponent.
func (r *Round) finishTurn(out *TurnOutcome) {
	out.TurnComplete = true
	after := DetectYaku(r.Areas[out.PlayerID].Depository, r.Yaku)
	if ExtendsYaku(r.BaselineYaku, after) {
		out.NewYaku = after
		r.FlowState = FlowAwaitingDecision
		return
	}
	r.advanceTurn(out)
}

// advanceTurn passes the turn, or ends the round as a draw when both
// hands are exhausted.
func (r *Round) advanceTurn(out *TurnOutcome) {
	if r.HandsEmpty() {
		res := &RoundResult{Reason: EndDraw, Multiplier: 1}
		r.Result = res
		r.FlowState = FlowRoundEnded
		out.RoundResult = res
		return
	}
	r.ActivePlayerID = r.Opponent(r.ActivePlayerID)
	r.FlowState = FlowAwaitingHandPlay
}

func (r *Round) capture(playerID string, source, target Card) {
	r.Field = removeCard(r.Field, target)
	area := r.Areas[playerID]
	area.Depository = append(area.Depository, source, target)
}

// Opponent returns the other seat.
func (r *Round) Opponent(playerID string) string {
	if r.PlayerIDs[0] == playerID {
		return r.PlayerIDs[1]
	}
	return r.PlayerIDs[0]
}

// HandsEmpty reports whether both hands are exhausted.
func (r *Round) HandsEmpty() bool {
	for _, id := range r.PlayerIDs {
		if len(r.Areas[id].Hand) > 0 {
			return false
		}
	}
	return true
}

// HeldYaku recomputes the currently held set for a player.
func (r *Round) HeldYaku(playerID string) []YakuResult {
	return DetectYaku(r.Areas[playerID].Depository, r.Yaku)
}

// CardCount totals every zone plus any suspended selection source. It is
// 48 after every transition; tests assert this invariant.
func (r *Round) CardCount() int {
	n := len(r.Field) + len(r.Deck)
	for _, id := range r.PlayerIDs {
		n += len(r.Areas[id].Hand) + len(r.Areas[id].Depository)
	}
	if r.Pending != nil {
		n++
	}
	return n
}
