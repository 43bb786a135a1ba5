package concierge

import (
	"context"
	"time"
)

// WidgetState is the open/closed machine of the chat bubble plus the passive
// invitation shown to idle visitors.
type WidgetState struct {
	Open          bool `json:"open"`
	InviteVisible bool `json:"invite_visible"`
}

// Mount arms the one-shot invitation timer. Calling it while a timer is
// pending, or while the widget is open, does nothing.
func (m *Manager) Mount() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inviteTimer != nil || m.widget.Open {
		return
	}
	delay := m.cfg.InviteDelay
	if delay <= 0 {
		delay = defaultInviteDelay
	}
	m.inviteTimer = m.clock.AfterFunc(delay, m.fireInvite)
}

func (m *Manager) fireInvite() {
	m.mu.Lock()
	m.inviteTimer = nil
	if m.widget.Open || !m.session.IsEmpty() || m.widget.InviteVisible {
		m.mu.Unlock()
		return
	}
	m.widget.InviteVisible = true
	state := m.widget
	m.mu.Unlock()

	m.emitWidget(context.Background(), state)
}

// Open shows the chat window and supersedes a pending or visible invitation.
// It also serves the host page's programmatic "open chat" signal.
func (m *Manager) Open(ctx context.Context) WidgetState {
	m.mu.Lock()
	m.stopInviteLocked()
	changed := !m.widget.Open || m.widget.InviteVisible
	m.widget.Open = true
	m.widget.InviteVisible = false
	state := m.widget
	m.mu.Unlock()

	if changed {
		m.emitWidget(ctx, state)
	}
	return state
}

// Close hides the chat window. In-flight deliveries keep running.
func (m *Manager) Close(ctx context.Context) WidgetState {
	m.mu.Lock()
	changed := m.widget.Open
	m.widget.Open = false
	state := m.widget
	m.mu.Unlock()

	if changed {
		m.emitWidget(ctx, state)
	}
	return state
}

// DismissInvite hides the invitation bubble and cancels a pending one.
func (m *Manager) DismissInvite(ctx context.Context) WidgetState {
	m.mu.Lock()
	m.stopInviteLocked()
	changed := m.widget.InviteVisible
	m.widget.InviteVisible = false
	state := m.widget
	m.mu.Unlock()

	if changed {
		m.emitWidget(ctx, state)
	}
	return state
}

func (m *Manager) stopInviteLocked() {
	if m.inviteTimer != nil {
		m.inviteTimer.Stop()
		m.inviteTimer = nil
	}
}

func (m *Manager) emitWidget(ctx context.Context, state WidgetState) {
	m.emit(ctx, Event{Type: EventWidgetChanged, Widget: &state})
}

const defaultInviteDelay = 4 * time.Second
