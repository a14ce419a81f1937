package auth

import (
	"sort"
	"sync"

	"github.com/banshee-data/gesture.auth/internal/timeutil"
)

// Manager owns one Session per live connection. Sessions share the store and
// capturer; the capturer is responsible for serializing access to the sensor.
type Manager struct {
	cfg      Config
	store    TemplateStore
	capturer Capturer
	clock    timeutil.Clock

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(cfg Config, store TemplateStore, capturer Capturer, clock timeutil.Clock) *Manager {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		capturer: capturer,
		clock:    clock,
		sessions: make(map[string]*Session),
	}
}

// Connect creates a fresh session for connID, replacing any previous one.
func (m *Manager) Connect(connID string, emit Emitter) *Session {
	s := NewSession(m.cfg, m.store, m.capturer, m.clock, emit)

	m.mu.Lock()
	old := m.sessions[connID]
	m.sessions[connID] = s
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
	logf("connection %s: session %s started", connID, s.ID())
	return s
}

// Disconnect closes and forgets the session for connID. Partial
// registrations are discarded.
func (m *Manager) Disconnect(connID string) {
	m.mu.Lock()
	s, ok := m.sessions[connID]
	delete(m.sessions, connID)
	m.mu.Unlock()

	if !ok {
		return
	}
	disposition := s.Disposition()
	s.Close()
	logf("connection %s: session %s closed in %s", connID, s.ID(), disposition)
}

// Get returns the session for connID.
func (m *Manager) Get(connID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[connID]
	return s, ok
}

// Authenticated returns the ids of connections whose session was accepted,
// sorted for stable iteration.
func (m *Manager) Authenticated() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		ids = append(ids, id)
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	var out []string
	for i, s := range sessions {
		if s.Authenticated() {
			out = append(out, ids[i])
		}
	}
	sort.Strings(out)
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
