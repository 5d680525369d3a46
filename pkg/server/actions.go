package server

import (
	"context"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/slog"

	"github.com/ychleo102615/hanahuda-sub006/pkg/hanafuda"
)

// autoKey marks a context as belonging to an auto-served action, so the
// nested use cases it re-enters do not treat it as player activity.
type autoKey struct{}

func isAuto(ctx context.Context) bool {
	v, _ := ctx.Value(autoKey{}).(bool)
	return v
}

// ContinueChoice is a player's answer to the idle prompt.
type ContinueChoice string

const (
	ContinueResume ContinueChoice = "CONTINUE"
	ContinueLeave  ContinueChoice = "LEAVE"
)

// withGame runs the command prelude shared by every mutating use case:
// audit log, per-game lock, load, action-clock cancel, idle reset. The
// requester is validated before the clock is touched so a rejected
// command from the wrong session cannot cancel the game's only driver.
func (s *Server) withGame(ctx context.Context, gameID, playerID, command string, body any, playerInitiated bool, fn func(ctx context.Context, g *hanafuda.Game) error) error {
	s.logCommand(gameID, playerID, command, body)

	ctx, release := s.locks.Acquire(ctx, gameID)
	defer release()

	g, ok := s.store.Get(gameID)
	if !ok {
		return NewGameError(CodeGameNotFound, "game not found")
	}
	if _, seated := g.PlayerByID(playerID); !seated {
		return NewGameError(CodePlayerNotInGame, "player is not seated in this game")
	}

	s.flow.ClearAction(gameID)
	if playerInitiated && !isAuto(ctx) {
		s.flow.ResetIdle(gameID, playerID)
	}

	err := fn(ctx, g)
	if err != nil {
		// The command failed without a transition; the cancelled clock
		// has to come back for the same state.
		s.flow.Arm(g)
		return err
	}

	// A use case that removed the game from the store already wrote its
	// terminal record; re-saving the live aggregate would clobber it.
	if _, live := s.store.Get(gameID); live {
		s.persistGame(g)
	}
	return nil
}

func (s *Server) requireRound(g *hanafuda.Game) (*hanafuda.Round, error) {
	if g.Status == hanafuda.StatusFinished {
		return nil, NewGameError(CodeGameAlreadyFinished, "game already finished")
	}
	if g.Status != hanafuda.StatusInProgress || g.CurrentRound == nil {
		return nil, NewGameError(CodeInvalidState, "no round in progress")
	}
	return g.CurrentRound, nil
}

// PlayHandCard plays a card from the acting player's hand.
func (s *Server) PlayHandCard(ctx context.Context, gameID, playerID, cardID string) error {
	card, err := hanafuda.ParseCard(cardID)
	if err != nil {
		return wrapGameError(CodeInvalidInput, "invalid card id", err)
	}

	return s.withGame(ctx, gameID, playerID, "PlayHandCard", map[string]string{"cardId": cardID}, true,
		func(ctx context.Context, g *hanafuda.Game) error {
			round, err := s.requireRound(g)
			if err != nil {
				return err
			}
			out, err := round.PlayHandCard(playerID, card)
			if err != nil {
				return fromDomainErr(err)
			}
			s.publishTurnOutcome(ctx, g, out, false)
			return nil
		})
}

// SelectTarget resolves a pending multi-match selection.
func (s *Server) SelectTarget(ctx context.Context, gameID, playerID, sourceCardID, targetCardID string) error {
	source, err := hanafuda.ParseCard(sourceCardID)
	if err != nil {
		return wrapGameError(CodeInvalidInput, "invalid source card id", err)
	}
	target, err := hanafuda.ParseCard(targetCardID)
	if err != nil {
		return wrapGameError(CodeInvalidInput, "invalid target card id", err)
	}

	body := map[string]string{"sourceCardId": sourceCardID, "targetCardId": targetCardID}
	return s.withGame(ctx, gameID, playerID, "SelectTarget", body, true,
		func(ctx context.Context, g *hanafuda.Game) error {
			round, err := s.requireRound(g)
			if err != nil {
				return err
			}
			out, err := round.SelectTarget(playerID, source, target)
			if err != nil {
				return fromDomainErr(err)
			}
			s.publishTurnOutcome(ctx, g, out, true)
			return nil
		})
}

// MakeDecision answers AWAITING_DECISION with koi-koi or end-round.
func (s *Server) MakeDecision(ctx context.Context, gameID, playerID, decision string) error {
	var d hanafuda.Decision
	switch decision {
	case string(hanafuda.DecisionKoiKoi):
		d = hanafuda.DecisionKoiKoi
	case string(hanafuda.DecisionEndRound):
		d = hanafuda.DecisionEndRound
	default:
		return NewGameError(CodeInvalidInput, "decision must be KOI_KOI or END_ROUND")
	}

	return s.withGame(ctx, gameID, playerID, "MakeDecision", map[string]string{"decision": decision}, true,
		func(ctx context.Context, g *hanafuda.Game) error {
			round, err := s.requireRound(g)
			if err != nil {
				return err
			}
			out, err := round.HandleDecision(playerID, d)
			if err != nil {
				return fromDomainErr(err)
			}

			s.pub.Publish(NewEvent(EventTypeDecisionMade, g.ID, playerID, &DecisionMadePayload{
				PlayerID:      playerID,
				Decision:      string(d),
				KoiKoiApplied: round.KoiKoiApplied,
				NextState:     nextState(round),
			}))

			if out.RoundResult != nil {
				s.finishRound(ctx, g, out.RoundResult)
				return nil
			}
			s.flow.Arm(g)
			return nil
		})
}

// LeaveGame marks the player LEFT. The game does not end here: the flow
// auto-serves the leaver until the round boundary, where the forfeit is
// applied.
func (s *Server) LeaveGame(ctx context.Context, gameID, playerID string) error {
	return s.withGame(ctx, gameID, playerID, "LeaveGame", nil, true,
		func(ctx context.Context, g *hanafuda.Game) error {
			if g.ConnStatuses[playerID] == hanafuda.ConnLeft {
				return NewGameError(CodeInvalidState, "player already left")
			}
			g.SetConnStatus(playerID, hanafuda.ConnLeft)
			s.timeouts.Clear(gameID, playerID, TimerDisconnect)
			s.timeouts.Clear(gameID, playerID, TimerContinueConfirm)
			delete(g.PendingContinue, playerID)

			switch {
			case g.Status == hanafuda.StatusWaiting:
				s.expireGame(ctx, gameID)
			case g.CurrentRound == nil || g.CurrentRound.FlowState == hanafuda.FlowRoundEnded:
				// Already at a boundary; forfeit immediately.
				s.FinishForfeit(ctx, gameID)
			default:
				// Re-arm so the leaver's pending input is auto-served at
				// the accelerated pace.
				s.flow.Arm(g)
			}
			return nil
		})
}

// ConfirmContinue answers the round-boundary idle prompt.
func (s *Server) ConfirmContinue(ctx context.Context, gameID, playerID string, choice ContinueChoice) error {
	if choice != ContinueResume && choice != ContinueLeave {
		return NewGameError(CodeInvalidInput, "decision must be CONTINUE or LEAVE")
	}

	return s.withGame(ctx, gameID, playerID, "ConfirmContinue", map[string]string{"decision": string(choice)}, true,
		func(ctx context.Context, g *hanafuda.Game) error {
			if !g.PendingContinue[playerID] {
				return NewGameError(CodeConfirmationNotRequired, "no continue confirmation pending")
			}
			if choice == ContinueLeave {
				g.SetConnStatus(playerID, hanafuda.ConnLeft)
				delete(g.PendingContinue, playerID)
				s.timeouts.Clear(gameID, playerID, TimerContinueConfirm)
				s.FinishForfeit(ctx, gameID)
				return nil
			}
			s.flow.ContinueResolved(g, playerID)
			return nil
		})
}

// AutoAction performs the deterministic legal move for the current flow
// state: first hand card, first legal target, END_ROUND. Driven by the
// action clock and by AI seats.
func (s *Server) AutoAction(ctx context.Context, gameID, playerID string) error {
	ctx = context.WithValue(ctx, autoKey{}, true)
	ctx, release := s.locks.Acquire(ctx, gameID)
	defer release()

	g, ok := s.store.Get(gameID)
	if !ok {
		return NewGameError(CodeGameNotFound, "game not found")
	}
	round := g.CurrentRound
	if g.Status != hanafuda.StatusInProgress || round == nil {
		return NewGameError(CodeInvalidState, "no round in progress")
	}
	if round.ActivePlayerID != playerID {
		return NewGameError(CodeWrongPlayer, "not this player's turn")
	}

	switch round.FlowState {
	case hanafuda.FlowAwaitingHandPlay:
		hand := round.Areas[playerID].Hand
		if len(hand) == 0 {
			return NewGameError(CodeInvalidState, "no hand cards to play")
		}
		return s.PlayHandCard(ctx, gameID, playerID, string(hand[0]))

	case hanafuda.FlowAwaitingSelection:
		pending := round.Pending
		if pending == nil || len(pending.Targets) == 0 {
			return NewGameError(CodeInvalidState, "no selection pending")
		}
		return s.SelectTarget(ctx, gameID, playerID, string(pending.Source), string(pending.Targets[0]))

	case hanafuda.FlowAwaitingDecision:
		return s.MakeDecision(ctx, gameID, playerID, string(hanafuda.DecisionEndRound))
	}
	return NewGameError(CodeInvalidState, "nothing to auto act on")
}

// publishTurnOutcome maps one engine transition onto its wire events and
// steers what comes next.
func (s *Server) publishTurnOutcome(ctx context.Context, g *hanafuda.Game, out *hanafuda.TurnOutcome, afterSelection bool) {
	round := g.CurrentRound
	next := nextState(round)

	if s.log.Level() <= slog.LevelTrace {
		s.log.Tracef("turn outcome for game %s: %s", g.ID, spew.Sdump(out))
	}

	if afterSelection {
		captured := out.HandCaptured
		source, target := out.HandCard, hanafuda.Card("")
		if len(out.HandCaptured) == 0 {
			captured = out.DrawCaptured
			source = out.DrawnCard
		}
		if len(captured) == 2 {
			target = captured[1]
		}
		s.pub.Publish(NewEvent(EventTypeTurnProgressAfterSelection, g.ID, out.PlayerID, &TurnProgressAfterSelectionPayload{
			PlayerID:     out.PlayerID,
			SourceCard:   source,
			TargetCard:   target,
			Captured:     captured,
			DrawnCard:    out.DrawnCard,
			DrawCaptured: out.DrawCaptured,
			DrawToField:  out.DrawToField,
			FieldCards:   round.Field,
			DeckCount:    len(round.Deck),
			NextState:    next,
		}))
	} else if out.TurnComplete || out.Selection == nil || !out.Selection.FromHand {
		s.pub.Publish(NewEvent(EventTypeTurnCompleted, g.ID, out.PlayerID, &TurnCompletedPayload{
			PlayerID:     out.PlayerID,
			HandCard:     out.HandCard,
			HandCaptured: out.HandCaptured,
			HandToField:  out.HandToField,
			DrawnCard:    out.DrawnCard,
			DrawCaptured: out.DrawCaptured,
			DrawToField:  out.DrawToField,
			FieldCards:   round.Field,
			DeckCount:    len(round.Deck),
			NextState:    next,
		}))
	}

	switch {
	case out.Selection != nil:
		s.pub.Publish(NewEvent(EventTypeSelectionRequired, g.ID, out.PlayerID, &SelectionRequiredPayload{
			PlayerID:        out.PlayerID,
			SourceCard:      out.Selection.Source,
			PossibleTargets: out.Selection.Targets,
			FromHand:        out.Selection.FromHand,
			NextState:       next,
		}))
		s.flow.Arm(g)

	case out.NewYaku != nil:
		s.pub.Publish(NewEvent(EventTypeDecisionRequired, g.ID, out.PlayerID, &DecisionRequiredPayload{
			PlayerID:  out.PlayerID,
			Yaku:      yakuInfos(out.NewYaku),
			BaseScore: hanafuda.TotalPoints(out.NewYaku),
			NextState: next,
		}))
		s.flow.Arm(g)

	case out.RoundResult != nil:
		s.finishRound(ctx, g, out.RoundResult)

	default:
		s.flow.Arm(g)
	}
}

// finishRound folds a completed round into the game, publishes the
// round-end events and hands control to the turn-flow service.
func (s *Server) finishRound(ctx context.Context, g *hanafuda.Game, res *hanafuda.RoundResult) {
	// A forfeit in flight converts a natural round end into the forfeit
	// reason before anything is published.
	if g.AnyLeft() && res.Reason != hanafuda.EndOpponentLeft {
		res = &hanafuda.RoundResult{
			Reason:     hanafuda.EndOpponentLeft,
			WinnerID:   g.RemainingPlayerID(),
			Multiplier: 1,
		}
	}

	roundNumber := 0
	if g.CurrentRound != nil {
		roundNumber = g.CurrentRound.Number
	}
	g.ApplyRoundResult(res)

	moreRounds := g.RoundsRemain() && res.Reason != hanafuda.EndOpponentLeft
	s.pub.Publish(NewEvent(EventTypeRoundEnded, g.ID, res.WinnerID, &RoundEndedPayload{
		RoundNumber:      roundNumber,
		Reason:           string(res.Reason),
		WinnerID:         res.WinnerID,
		Yaku:             yakuInfos(res.Yaku),
		BaseScore:        res.BaseScore,
		FinalScore:       res.FinalScore,
		Multipliers:      s.flow.Multipliers(g, res),
		CumulativeScores: g.CumulativeScores,
		MoreRounds:       moreRounds,
	}))

	switch {
	case res.Reason == hanafuda.EndOpponentLeft:
		s.finishGame(ctx, g, g.RemainingPlayerID(), hanafuda.FinishOpponentLeft)
	case !g.RoundsRemain():
		s.finishGame(ctx, g, g.LeadingPlayerID(), hanafuda.FinishCompleted)
	default:
		s.flow.RoundEnded(ctx, g)
	}
}

// DealNextRound starts the next deal after the display delay. Part of
// the flowDriver contract; also fired by continue resolution.
func (s *Server) DealNextRound(ctx context.Context, gameID string) {
	ctx, release := s.locks.Acquire(ctx, gameID)
	defer release()

	g, ok := s.store.Get(gameID)
	if !ok || g.Status != hanafuda.StatusInProgress {
		return
	}
	if g.AnyAbsent() {
		s.FinishForfeit(ctx, gameID)
		return
	}

	if err := g.DealNextRound(); err != nil {
		s.log.Errorf("Failed to deal next round for game %s: %v", gameID, err)
		return
	}
	s.publishRoundDealt(g)
	s.persistGame(g)

	if ended := s.concludeInstantEnd(ctx, g); ended {
		return
	}
	s.flow.Arm(g)
}

// concludeInstantEnd handles a round that ended on the deal itself.
func (s *Server) concludeInstantEnd(ctx context.Context, g *hanafuda.Game) bool {
	round := g.CurrentRound
	if round == nil || round.Result == nil {
		return false
	}
	s.finishRound(ctx, g, round.Result)
	return true
}

// FinishForfeit ends the game in favor of the remaining player. Part of
// the flowDriver contract.
func (s *Server) FinishForfeit(ctx context.Context, gameID string) {
	ctx, release := s.locks.Acquire(ctx, gameID)
	defer release()

	g, ok := s.store.Get(gameID)
	if !ok || g.Status == hanafuda.StatusFinished {
		return
	}

	// The forfeit may be triggered by a DISCONNECTED seat, not a LEFT one;
	// the win goes to whoever is still present.
	winner := ""
	for _, p := range g.Players {
		if g.ConnStatuses[p.ID] == hanafuda.ConnConnected {
			winner = p.ID
			break
		}
	}
	if winner == "" {
		winner = g.RemainingPlayerID()
	}
	s.finishGame(ctx, g, winner, hanafuda.FinishOpponentLeft)
}

// TimeoutLeave marks a player LEFT after a grace period expired. Part of
// the flowDriver contract.
func (s *Server) TimeoutLeave(ctx context.Context, gameID, playerID string) {
	ctx, release := s.locks.Acquire(ctx, gameID)
	defer release()

	g, ok := s.store.Get(gameID)
	if !ok || g.Status == hanafuda.StatusFinished {
		return
	}
	if g.ConnStatuses[playerID] == hanafuda.ConnLeft {
		return
	}

	s.log.Infof("Player %s timed out of game %s", playerID, gameID)
	g.SetConnStatus(playerID, hanafuda.ConnLeft)
	delete(g.PendingContinue, playerID)

	switch {
	case g.Status == hanafuda.StatusWaiting:
		s.expireGame(ctx, gameID)
		return
	case g.CurrentRound == nil || g.CurrentRound.FlowState == hanafuda.FlowRoundEnded:
		s.FinishForfeit(ctx, gameID)
		return
	default:
		s.flow.Arm(g)
	}
	s.persistGame(g)
}

// finishGame is the single terminal transition. Runs under the game
// lock.
func (s *Server) finishGame(ctx context.Context, g *hanafuda.Game, winnerID string, reason hanafuda.FinishReason) {
	if g.Status == hanafuda.StatusFinished {
		return
	}
	g.Finish(winnerID, reason)

	s.pub.Publish(NewEvent(EventTypeGameFinished, g.ID, "", s.finishedPayload(g)))
	s.recordGameStats(g)
	s.persistGame(g)

	gameID := g.ID
	s.flow.GameClosed(gameID)
	s.store.Remove(gameID)

	// Streams close after the finish event has been queued to them.
	s.conns.CloseGame(gameID)
	s.bus.CloseGame(gameID)
}

// PromptContinue asks one idle-flagged player whether to keep playing.
// Transient, targeted at the single seat, never logged. Part of the
// flowDriver contract.
func (s *Server) PromptContinue(gameID, playerID string) {
	event := NewEvent(EventTypeContinueRequired, gameID, playerID, &ContinuePromptPayload{
		PlayerID:       playerID,
		TimeoutSeconds: int(s.cfg.ContinueConfirmation.Seconds()),
	})
	s.conns.SendToPlayer(gameID, playerID, event)
}

// recordGameStats feeds the leaderboard subsystem. Persistence of the
// tallies rides on the regular game save; this is the notification hook.
func (s *Server) recordGameStats(g *hanafuda.Game) {
	s.log.Infof("Game %s finished: winner=%s reason=%s scores=%v rounds=%d",
		g.ID, g.WinnerID, g.FinishReason, g.CumulativeScores, g.RoundsPlayed)
}

func nextState(round *hanafuda.Round) NextState {
	if round == nil {
		return NextState{}
	}
	active := round.ActivePlayerID
	if round.FlowState == hanafuda.FlowRoundEnded {
		active = ""
	}
	return NextState{
		FlowState:      string(round.FlowState),
		ActivePlayerID: active,
	}
}
