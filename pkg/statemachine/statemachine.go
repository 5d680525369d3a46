package statemachine

import (
	"sync"
)

// StateFn is a state expressed as a function, following Rob Pike's lexer
// pattern: each state does its work and returns the next state, or nil to
// park the machine.
type StateFn[T any] func(*T) StateFn[T]

// Machine is a small thread-safe wrapper that tracks the current StateFn
// for an entity. The turn-flow service runs one per live game, mapping
// each flow state onto its timer-arming behavior.
type Machine[T any] struct {
	entity  *T
	stateFn StateFn[T]
	mu      sync.RWMutex
}

// New creates a machine parked on initial.
func New[T any](entity *T, initial StateFn[T]) *Machine[T] {
	return &Machine[T]{entity: entity, stateFn: initial}
}

// Dispatch sets stateFn as the current state and runs it once,
// transitioning to whatever it returns.
func (m *Machine[T]) Dispatch(stateFn StateFn[T]) {
	m.mu.Lock()
	m.stateFn = stateFn
	m.mu.Unlock()

	if stateFn == nil {
		return
	}
	next := stateFn(m.entity)

	m.mu.Lock()
	m.stateFn = next
	m.mu.Unlock()
}

// Entity returns the entity the machine runs over.
func (m *Machine[T]) Entity() *T {
	return m.entity
}

// Current returns the current state function.
func (m *Machine[T]) Current() StateFn[T] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateFn
}
