// Package render turns query cache entries into pages.
//
// A Machine tracks the state of one query as seen by a page: Loading until
// the entry resolves, then Success, NotFound or Error for good. The views
// (Profile, Post) read every query they need through a Machine, so a page
// rendered from a hydrated store and one rendered after live fetches look
// the same.
package render

import (
	"slices"
	"sync"

	"github.com/leggettc18/chirp/query"
	"github.com/leggettc18/chirp/querykey"
)

// State of a page query.
type State int

const (
	Loading State = iota
	Success
	NotFound
	Error
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Success:
		return "success"
	case NotFound:
		return "notfound"
	case Error:
		return "error"
	}
	return "unknown"
}

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool { return s != Loading }

// StateOf maps a cache lookup to a render state. A missing or pending entry
// is Loading.
func StateOf(e query.Entry, ok bool) State {
	if !ok {
		return Loading
	}
	switch e.Status {
	case query.StatusSuccess:
		return Success
	case query.StatusNotFound:
		return NotFound
	case query.StatusError:
		return Error
	}
	return Loading
}

// Machine follows one key of a page-scoped store.
type Machine struct {
	store *query.Store
	key   querykey.Key

	mu      sync.Mutex
	state   State
	entry   query.Entry
	history []State
}

// NewMachine starts in whatever state the store already holds for key, so a
// hydrated entry never shows Loading.
func NewMachine(store *query.Store, key querykey.Key) *Machine {
	m := &Machine{store: store, key: key}
	e, ok := store.Get(key)
	m.state = StateOf(e, ok)
	m.entry = e
	m.history = []State{m.state}
	return m
}

// Sync re-reads the store. Once terminal, the state no longer changes even
// if the entry is replaced.
func (m *Machine) Sync() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Terminal() {
		return m.state
	}
	e, ok := m.store.Get(m.key)
	if s := StateOf(e, ok); s != m.state {
		m.state = s
		m.history = append(m.history, s)
	}
	m.entry = e
	return m.state
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Entry returns the entry the current state was derived from.
func (m *Machine) Entry() query.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entry
}

// History lists every state visited, starting with the initial one.
func (m *Machine) History() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.history)
}

func (m *Machine) Key() querykey.Key { return m.key }
