package server

import (
	"sync"

	"github.com/decred/slog"
)

// subscriber is one live SSE connection. Events are delivered over a
// buffered channel drained by the HTTP handler goroutine; closed marks
// the subscriber dead so late sends are skipped.
type subscriber struct {
	gameID   string
	playerID string
	ch       chan *Event

	mu     sync.Mutex
	closed bool
}

func (s *subscriber) send(event *Event, log slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
	default:
		log.Errorf("subscriber buffer full for player %s in game %s, dropping %s",
			s.playerID, s.gameID, event.Type)
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// ConnectionStore tracks every live SSE subscriber, keyed game id then
// player id. One connection per player per game; a new subscribe for the
// same seat closes the previous connection.
type ConnectionStore struct {
	mu   sync.RWMutex
	subs map[string]map[string]*subscriber
	log  slog.Logger
}

// NewConnectionStore creates an empty store.
func NewConnectionStore(log slog.Logger) *ConnectionStore {
	return &ConnectionStore{
		subs: make(map[string]map[string]*subscriber),
		log:  log,
	}
}

// Subscribe attaches a player connection and returns its event channel.
func (cs *ConnectionStore) Subscribe(gameID, playerID string) *subscriber {
	sub := &subscriber{
		gameID:   gameID,
		playerID: playerID,
		ch:       make(chan *Event, 64),
	}

	cs.mu.Lock()
	players, ok := cs.subs[gameID]
	if !ok {
		players = make(map[string]*subscriber)
		cs.subs[gameID] = players
	}
	old := players[playerID]
	players[playerID] = sub
	cs.mu.Unlock()

	if old != nil {
		old.close()
	}
	return sub
}

// Unsubscribe detaches a connection. Only the exact subscriber is
// removed, so a reconnect that raced the old stream's teardown is not
// torn down with it.
func (cs *ConnectionStore) Unsubscribe(sub *subscriber) {
	cs.mu.Lock()
	if players, ok := cs.subs[sub.gameID]; ok {
		if players[sub.playerID] == sub {
			delete(players, sub.playerID)
			if len(players) == 0 {
				delete(cs.subs, sub.gameID)
			}
		}
	}
	cs.mu.Unlock()
	sub.close()
}

// Broadcast sends an event to every subscriber of a game.
func (cs *ConnectionStore) Broadcast(gameID string, event *Event) {
	cs.mu.RLock()
	targets := make([]*subscriber, 0, 2)
	for _, sub := range cs.subs[gameID] {
		targets = append(targets, sub)
	}
	cs.mu.RUnlock()

	for _, sub := range targets {
		sub.send(event, cs.log)
	}
}

// SendToPlayer targets a single subscriber, used for snapshot delivery
// on reconnection.
func (cs *ConnectionStore) SendToPlayer(gameID, playerID string, event *Event) {
	cs.mu.RLock()
	sub := cs.subs[gameID][playerID]
	cs.mu.RUnlock()
	if sub != nil {
		sub.send(event, cs.log)
	}
}

// Connected reports whether a player has a live subscriber.
func (cs *ConnectionStore) Connected(gameID, playerID string) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	_, ok := cs.subs[gameID][playerID]
	return ok
}

// CloseGame tears down every subscriber of a finished game.
func (cs *ConnectionStore) CloseGame(gameID string) {
	cs.mu.Lock()
	players := cs.subs[gameID]
	delete(cs.subs, gameID)
	cs.mu.Unlock()

	for _, sub := range players {
		sub.close()
	}
}

// HandleEvent implements EventSink: published events are broadcast to
// the game's connected players. Non-game plumbing events stay off the
// wire.
func (cs *ConnectionStore) HandleEvent(event *Event) {
	if event.Type == EventTypeRoomCreated {
		return
	}
	cs.Broadcast(event.GameID, event)
}
