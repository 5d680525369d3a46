package server

import (
	"sync"

	"github.com/ychleo102615/hanahuda-sub006/pkg/hanafuda"
)

// GameStore is the in-memory source of truth for live games. The
// relational store only keeps what must survive a restart; in-flight
// rounds live here and nowhere else.
type GameStore struct {
	mu      sync.RWMutex
	games   map[string]*hanafuda.Game
	waiting []string // WAITING game ids in creation order, for matchmaking
}

// NewGameStore creates an empty store.
func NewGameStore() *GameStore {
	return &GameStore{games: make(map[string]*hanafuda.Game)}
}

// Get returns a live game by id.
func (st *GameStore) Get(gameID string) (*hanafuda.Game, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	g, ok := st.games[gameID]
	return g, ok
}

// Put inserts or replaces a game.
func (st *GameStore) Put(g *hanafuda.Game) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, exists := st.games[g.ID]; !exists && g.Status == hanafuda.StatusWaiting {
		st.waiting = append(st.waiting, g.ID)
	}
	st.games[g.ID] = g
}

// Remove deletes a game, live or finished.
func (st *GameStore) Remove(gameID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.games, gameID)
	st.dropWaitingLocked(gameID)
}

// TakeWaiting pops the oldest WAITING game that still has an open seat,
// for matchmaking. Returns false when no game is waiting.
func (st *GameStore) TakeWaiting() (*hanafuda.Game, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for len(st.waiting) > 0 {
		id := st.waiting[0]
		st.waiting = st.waiting[1:]
		g, ok := st.games[id]
		if ok && g.Status == hanafuda.StatusWaiting && !g.Full() {
			return g, true
		}
	}
	return nil, false
}

// MarkMatched removes a game from the waiting queue without deleting it.
func (st *GameStore) MarkMatched(gameID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.dropWaitingLocked(gameID)
}

func (st *GameStore) dropWaitingLocked(gameID string) {
	for i, id := range st.waiting {
		if id == gameID {
			st.waiting = append(st.waiting[:i], st.waiting[i+1:]...)
			return
		}
	}
}

// GameByPlayer finds the live game a player is seated in, if any.
func (st *GameStore) GameByPlayer(playerID string) (*hanafuda.Game, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	for _, g := range st.games {
		if g.Status == hanafuda.StatusFinished {
			continue
		}
		if _, ok := g.PlayerByID(playerID); ok {
			return g, true
		}
	}
	return nil, false
}

// Len returns the number of games currently held.
func (st *GameStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.games)
}
