// Package identity tracks who is running interviews. Sign-in is a
// lightweight gate for a trusted teaching environment, not an
// authentication system.
package identity

import (
	"sync"

	"CaseChat/internal/session"
)

// Manager holds the current learner name and validates sign-ins against
// a static credential set. The zero name resolves to the anonymous
// default so saved sessions always carry a user name.
type Manager struct {
	mu    sync.RWMutex
	users map[string]string
	name  string
}

// NewManager creates a manager with the configured username/password
// pairs.
func NewManager(users map[string]string) *Manager {
	if users == nil {
		users = map[string]string{}
	}
	return &Manager{users: users}
}

// Login checks the credentials and, on success, makes username the
// current learner name.
func (m *Manager) Login(username, password string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.users[username]
	if !ok || stored != password {
		return false
	}
	m.name = username
	return true
}

// SetUserName overrides the current learner name directly, for
// deployments that skip the login gate.
func (m *Manager) SetUserName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
}

// CurrentUserName returns the active learner name, defaulting to
// anonymous.
func (m *Manager) CurrentUserName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.name == "" {
		return session.DefaultUserName
	}
	return m.name
}
