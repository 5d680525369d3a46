package server

import (
	"context"
	"sync"
	"time"

	"github.com/decred/slog"
)

// OpponentBus is the in-process event channel the AI opponent subsystem
// subscribes to per game. It is registered as a publisher sink alongside
// the connection store and game log.
type OpponentBus struct {
	mu   sync.RWMutex
	subs map[string][]chan *Event
	log  slog.Logger
}

// NewOpponentBus creates an empty bus.
func NewOpponentBus(log slog.Logger) *OpponentBus {
	return &OpponentBus{subs: make(map[string][]chan *Event), log: log}
}

// Subscribe returns a channel receiving every event for gameID.
func (b *OpponentBus) Subscribe(gameID string) chan *Event {
	ch := make(chan *Event, 64)
	b.mu.Lock()
	b.subs[gameID] = append(b.subs[gameID], ch)
	b.mu.Unlock()
	return ch
}

// CloseGame drops all subscriptions for a game and closes their
// channels, ending the runner goroutines.
func (b *OpponentBus) CloseGame(gameID string) {
	b.mu.Lock()
	chans := b.subs[gameID]
	delete(b.subs, gameID)
	b.mu.Unlock()
	for _, ch := range chans {
		close(ch)
	}
}

// HandleEvent implements EventSink.
func (b *OpponentBus) HandleEvent(event *Event) {
	b.mu.RLock()
	chans := b.subs[event.GameID]
	b.mu.RUnlock()
	for _, ch := range chans {
		select {
		case ch <- event:
		default:
			b.log.Warnf("opponent bus buffer full for game %s, dropping %s", event.GameID, event.Type)
		}
	}
}

// AutoActor performs the deterministic legal move for whatever the
// current flow state demands. The turn-flow service and the AI runner
// both drive games through it.
type AutoActor interface {
	AutoAction(ctx context.Context, gameID, playerID string) error
}

// aiThinkDelay keeps AI moves from landing instantly, so a human
// opponent can follow the turn on screen.
const aiThinkDelay = 800 * time.Millisecond

// aiRunner plays one AI seat. It watches the game's event stream and
// answers with an auto action whenever its seat becomes the active
// player or owes a decision.
type aiRunner struct {
	gameID   string
	playerID string
	actor    AutoActor
	events   chan *Event
	log      slog.Logger
}

func newAIRunner(gameID, playerID string, actor AutoActor, events chan *Event, log slog.Logger) *aiRunner {
	return &aiRunner{
		gameID:   gameID,
		playerID: playerID,
		actor:    actor,
		events:   events,
		log:      log,
	}
}

// run consumes events until the bus closes the channel on game finish.
func (r *aiRunner) run() {
	for event := range r.events {
		if !r.wantsTurn(event) {
			continue
		}
		time.Sleep(aiThinkDelay)
		if err := r.actor.AutoAction(context.Background(), r.gameID, r.playerID); err != nil {
			// Losing a race with the action timer is normal; anything
			// else is worth a log line.
			if ErrCode(err) != CodeInvalidState && ErrCode(err) != CodeWrongPlayer {
				r.log.Errorf("ai %s in game %s: auto action: %v", r.playerID, r.gameID, err)
			}
		}
	}
}

// wantsTurn reports whether the event hands the turn to this AI seat.
func (r *aiRunner) wantsTurn(event *Event) bool {
	next, ok := nextStateOf(event.Payload)
	if !ok {
		return false
	}
	return next.ActivePlayerID == r.playerID
}

func nextStateOf(payload any) (NextState, bool) {
	switch p := payload.(type) {
	case *RoundDealtPayload:
		return p.NextState, true
	case *TurnCompletedPayload:
		return p.NextState, true
	case *SelectionRequiredPayload:
		return p.NextState, true
	case *TurnProgressAfterSelectionPayload:
		return p.NextState, true
	case *DecisionRequiredPayload:
		return p.NextState, true
	case *DecisionMadePayload:
		return p.NextState, true
	default:
		return NextState{}, false
	}
}
