// Package availability holds the shared view of whether the document store
// can currently be used. The store connector writes it; request handlers read
// it and report operational failures back through MarkUnavailable.
package availability

import (
	"sync"
	"sync/atomic"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateUnavailable:
		return "Unavailable"
	default:
		return "InvalidState"
	}
}

// Listener is called after every state change. It runs on the goroutine that
// made the change and must not block.
type Listener func(from, to State)

type Flag struct {
	state atomic.Int32

	mu        sync.Mutex
	listeners []Listener

	demoted chan struct{}
}

// New returns a flag in StateDisconnected, which counts as available until a
// failure proves otherwise.
func New() *Flag {
	return &Flag{demoted: make(chan struct{}, 1)}
}

func (f *Flag) State() State {
	return State(f.state.Load())
}

// IsAvailable reports whether callers should try the persistent store.
func (f *Flag) IsAvailable() bool {
	return f.State() != StateUnavailable
}

// Set moves the flag to s and notifies listeners if the state changed.
func (f *Flag) Set(s State) {
	prev := State(f.state.Swap(int32(s)))
	if prev == s {
		return
	}

	switch {
	case prev == StateConnected && s == StateUnavailable:
		select {
		case f.demoted <- struct{}{}:
		default:
		}
	case s == StateConnected:
		// A new connection supersedes any demotion not yet observed.
		select {
		case <-f.demoted:
		default:
		}
	}

	f.mu.Lock()
	listeners := append([]Listener(nil), f.listeners...)
	f.mu.Unlock()

	for _, l := range listeners {
		l(prev, s)
	}
}

// MarkUnavailable demotes the store after an observed operational failure.
func (f *Flag) MarkUnavailable() {
	f.Set(StateUnavailable)
}

// Demoted delivers a value when a connected store is demoted to
// StateUnavailable. At most one signal is buffered and a later move to
// StateConnected discards it.
func (f *Flag) Demoted() <-chan struct{} {
	return f.demoted
}

func (f *Flag) OnChange(l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
}
