package session

import "sync"

// MemoryStore is an in-memory TokenStore, used in tests and on platforms
// without a usable keyring.
type MemoryStore struct {
	mu      sync.Mutex
	session Session
	present bool
}

// NewMemoryStore returns an empty in-memory TokenStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Session implements TokenStore.
func (m *MemoryStore) Session() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.present {
		return Session{}, ErrNoSession
	}
	return m.session, nil
}

// SetSession implements TokenStore.
func (m *MemoryStore) SetSession(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
	m.present = true
	return nil
}

// SetAccessToken implements TokenStore.
func (m *MemoryStore) SetAccessToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.AccessToken = token
	m.present = true
	return nil
}

// Clear implements TokenStore.
func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = Session{}
	m.present = false
	return nil
}
