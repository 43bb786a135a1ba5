// Package availability tracks whether the text-generation service can be used.
package availability

import (
	"strings"
	"sync"
)

type State int

const (
	Unknown State = iota
	Available
	Unavailable
)

func (s State) String() string {
	switch s {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Status is the label rendered next to the widget's status dot.
func (s State) Status() string {
	switch s {
	case Available:
		return "online"
	case Unavailable:
		return "offline"
	default:
		return "checking"
	}
}

// Monitor derives availability from the configured credential and downgrades
// it on authentication/authorization failures. A downgrade is permanent for
// the lifetime of the process.
type Monitor struct {
	mu         sync.RWMutex
	state      State
	credential string
	downgraded bool
	reason     string
	listeners  []func(State)
}

func NewMonitor() *Monitor {
	return &Monitor{state: Unknown}
}

// Init evaluates the credential. It is idempotent for an unchanged
// credential and never lifts a downgrade.
func (m *Monitor) Init(credential string) State {
	credential = strings.TrimSpace(credential)

	m.mu.Lock()
	m.credential = credential
	next := Unavailable
	if credential != "" && !m.downgraded {
		next = Available
	}
	changed := next != m.state
	m.state = next
	listeners := m.listeners
	m.mu.Unlock()

	if changed {
		notify(listeners, next)
	}
	return next
}

// Downgrade marks the service unavailable for the rest of the process.
func (m *Monitor) Downgrade(reason string) {
	m.mu.Lock()
	m.downgraded = true
	m.reason = reason
	changed := m.state != Unavailable
	m.state = Unavailable
	listeners := m.listeners
	m.mu.Unlock()

	if changed {
		notify(listeners, Unavailable)
	}
}

func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Monitor) IsAvailable() bool {
	return m.State() == Available
}

// Reason returns why the monitor was downgraded, if it was.
func (m *Monitor) Reason() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reason
}

// OnChange registers a listener called after every state transition.
func (m *Monitor) OnChange(f func(State)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, f)
	m.mu.Unlock()
}

func notify(listeners []func(State), s State) {
	for _, f := range listeners {
		f(s)
	}
}
