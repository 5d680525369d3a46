package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/decred/slog"
)

// TimerClass distinguishes the independent timer slots a game can carry.
// A game may have at most one live timer per class per player scope.
type TimerClass string

const (
	TimerAction          TimerClass = "action"
	TimerDisconnect      TimerClass = "disconnect"
	TimerIdle            TimerClass = "idle"
	TimerContinueConfirm TimerClass = "continue_confirm"
	TimerMatchmaking     TimerClass = "matchmaking"
	TimerDisplay         TimerClass = "display"
)

type timerKey struct {
	gameID   string
	playerID string // empty for game-scoped timers
	class    TimerClass
}

type timerEntry struct {
	timer    *time.Timer
	deadline time.Time
}

// TimeoutManager owns every scheduled deadline in the server: action
// clocks, disconnect grace periods, continue confirmations, matchmaking
// expiry and display delays. Callbacks fire on timer goroutines and are
// expected to acquire the game lock themselves.
type TimeoutManager struct {
	mu     sync.Mutex
	timers map[timerKey]*timerEntry
	log    slog.Logger
}

// NewTimeoutManager creates an empty manager.
func NewTimeoutManager(log slog.Logger) *TimeoutManager {
	return &TimeoutManager{
		timers: make(map[timerKey]*timerEntry),
		log:    log,
	}
}

// Start schedules fn after d, replacing any live timer with the same
// game/player/class. The callback runs on its own goroutine and panics
// are contained so a misbehaving handler cannot kill the process.
func (m *TimeoutManager) Start(gameID, playerID string, class TimerClass, d time.Duration, fn func()) {
	key := timerKey{gameID: gameID, playerID: playerID, class: class}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.timers[key]; ok {
		old.timer.Stop()
	}

	entry := &timerEntry{deadline: time.Now().Add(d)}
	entry.timer = time.AfterFunc(d, func() {
		m.mu.Lock()
		// A replacement may have raced the firing; only the current
		// entry gets to run its callback.
		if cur, ok := m.timers[key]; !ok || cur != entry {
			m.mu.Unlock()
			return
		}
		delete(m.timers, key)
		m.mu.Unlock()

		defer func() {
			if r := recover(); r != nil {
				m.log.Errorf("timer %s/%s/%s callback panic: %v", gameID, playerID, class, r)
			}
		}()
		fn()
	})
	m.timers[key] = entry
}

// Clear cancels a timer if it exists and reports whether it was live.
func (m *TimeoutManager) Clear(gameID, playerID string, class TimerClass) bool {
	key := timerKey{gameID: gameID, playerID: playerID, class: class}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.timers[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(m.timers, key)
	return true
}

// Has reports whether a timer is currently scheduled.
func (m *TimeoutManager) Has(gameID, playerID string, class TimerClass) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.timers[timerKey{gameID: gameID, playerID: playerID, class: class}]
	return ok
}

// Remaining returns the time until a timer fires, or zero if no such
// timer is scheduled. Snapshot building uses this to tell a reconnecting
// client how much of the action clock is left.
func (m *TimeoutManager) Remaining(gameID, playerID string, class TimerClass) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.timers[timerKey{gameID: gameID, playerID: playerID, class: class}]
	if !ok {
		return 0
	}
	d := time.Until(entry.deadline)
	if d < 0 {
		return 0
	}
	return d
}

// ClearAllForGame cancels every timer belonging to a game, in any class
// and for any player. Called when a game finishes or is removed.
func (m *TimeoutManager) ClearAllForGame(gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, entry := range m.timers {
		if key.gameID == gameID {
			entry.timer.Stop()
			delete(m.timers, key)
		}
	}
}

func (k timerKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.gameID, k.playerID, k.class)
}
