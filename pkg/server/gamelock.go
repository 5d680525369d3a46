package server

import (
	"context"
	"sync"
)

// heldGamesKey carries the set of game locks held by the current logical
// call chain, making Acquire reentrant: timer callbacks and bus
// subscribers that re-enter a use case on behalf of the same operation
// pass the returned context down and skip the second acquisition.
type heldGamesKey struct{}

type lockEntry struct {
	sem  chan struct{} // capacity 1; holding the token is holding the lock
	refs int           // holders + waiters; entry is collected at zero
}

// GameLocks serializes all command processing per game id. Operations on
// different games proceed in parallel.
type GameLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

// NewGameLocks creates an empty lock table.
func NewGameLocks() *GameLocks {
	return &GameLocks{entries: make(map[string]*lockEntry)}
}

// Acquire blocks until the per-game critical section is available, or
// returns immediately if the calling chain already holds it. The returned
// context must be passed to nested calls; release must be called on every
// exit path and is a no-op for reentrant acquisitions.
func (l *GameLocks) Acquire(ctx context.Context, gameID string) (context.Context, func()) {
	if held, _ := ctx.Value(heldGamesKey{}).(map[string]bool); held != nil && held[gameID] {
		return ctx, func() {}
	}

	l.mu.Lock()
	entry, ok := l.entries[gameID]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		l.entries[gameID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.sem <- struct{}{}

	held := map[string]bool{gameID: true}
	if prev, _ := ctx.Value(heldGamesKey{}).(map[string]bool); prev != nil {
		for id := range prev {
			held[id] = true
		}
	}
	lockedCtx := context.WithValue(ctx, heldGamesKey{}, held)

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-entry.sem
			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.entries, gameID)
			}
			l.mu.Unlock()
		})
	}
	return lockedCtx, release
}

// Held reports whether the calling chain already holds gameID's lock.
func (l *GameLocks) Held(ctx context.Context, gameID string) bool {
	held, _ := ctx.Value(heldGamesKey{}).(map[string]bool)
	return held != nil && held[gameID]
}

// Len returns the number of live lock-table entries (test hook for the
// garbage-collection behavior).
func (l *GameLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
