// Package session owns the authenticated-user value: it mirrors identity
// provider notifications into the application's User model and publishes
// snapshots to consumers.
package session

import (
	"sync"

	"github.com/chirpfeed/chirpfeed/internal/identity"
	"github.com/chirpfeed/chirpfeed/internal/models"
)

// Manager holds the current session User. It registers exactly one listener
// with the identity provider on Start and releases it on Close, after which
// no further session updates are observable. The User value is owned
// exclusively by the manager; consumers read published snapshots.
type Manager struct {
	provider identity.Provider

	mu       sync.Mutex
	cancel   identity.Unsubscribe
	current  models.User
	closed   bool
	starting bool
	notify   chan struct{}
}

func NewManager(provider identity.Provider) *Manager {
	return &Manager{provider: provider, notify: make(chan struct{}, 1)}
}

// Start registers the auth-change listener. The provider fires the listener
// immediately with the current state, so the session hydrates synchronously.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.cancel != nil || m.closed || m.starting {
		m.mu.Unlock()
		return
	}
	// claim the registration before releasing the lock so a concurrent
	// Start cannot subscribe a second listener
	m.starting = true
	m.mu.Unlock()

	cancel := m.provider.SubscribeAuthChanges(m.onAuthChange)

	m.mu.Lock()
	m.starting = false
	if m.closed {
		m.mu.Unlock()
		cancel()
		return
	}
	m.cancel = cancel
	m.mu.Unlock()
}

// onAuthChange projects the provider notification into the User model and
// publishes it before returning, so later handlers never observe a
// half-applied session. Last notification delivered wins.
func (m *Manager) onAuthChange(acct *identity.Account) {
	var u models.User
	if acct != nil {
		u = models.User{UID: acct.UID, DisplayName: acct.DisplayName, PhotoURL: acct.PhotoURL}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.current = u
	m.mu.Unlock()
	m.ping()
}

// Current returns the published session snapshot. The zero User means no
// authenticated session.
func (m *Manager) Current() models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Changed signals after every session update. Signals coalesce: readers
// re-read Current rather than counting notifications.
func (m *Manager) Changed() <-chan struct{} {
	return m.notify
}

// UpdateProfile merges a profile into the current session without touching
// the UID. Used after registration completes a provider profile write; the
// merge replaces a needless re-subscription round trip.
func (m *Manager) UpdateProfile(displayName, photoURL string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.current.DisplayName = displayName
	m.current.PhotoURL = photoURL
	m.mu.Unlock()
	m.ping()
}

// Close releases the provider listener. Synchronous: after Close returns,
// no further session updates occur.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (m *Manager) ping() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}
