package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"seiko-companion/internal/chat"
)

// ControllerFactory builds the controller for a freshly opened page session.
type ControllerFactory func() *chat.Controller

type session struct {
	ctrl     *chat.Controller
	lastSeen time.Time
}

// MemoryStore keeps one chat controller per page session. Nothing is
// persisted: a session lives until it idles past the TTL or the process
// exits.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	factory  ControllerFactory
	now      func() time.Time
}

func NewMemoryStore(ttl time.Duration, factory ControllerFactory) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*session),
		ttl:      ttl,
		factory:  factory,
		now:      time.Now,
	}
}

func newSessionID() string {
	return "s_" + uuid.NewString()
}

// Create opens a new page session.
func (m *MemoryStore) Create() (string, *chat.Controller) {
	id := newSessionID()
	ctrl := m.factory()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = &session{ctrl: ctrl, lastSeen: m.now()}
	return id, ctrl
}

// Get returns the controller for id and marks the session as active.
// Idle sessions past their TTL are dropped on access.
func (m *MemoryStore) Get(id string) (*chat.Controller, bool) {
	if id == "" {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	now := m.now()
	if m.expiredLocked(s, now) && !s.ctrl.Typing() {
		delete(m.sessions, id)
		return nil, false
	}
	s.lastSeen = now
	return s.ctrl, true
}

// Touch marks an existing session as active without resurrecting an
// expired or deleted one. Call it after a long exchange so the session's
// idle clock starts when the reply lands.
func (m *MemoryStore) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.lastSeen = m.now()
	}
}

// Delete closes a page session. An outstanding reply still completes on
// the detached controller.
func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops every idle session and reports how many were removed.
// Sessions with a reply outstanding are kept.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if m.expiredLocked(s, now) && !s.ctrl.Typing() {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Janitor runs Sweep every interval until ctx ends.
func (m *MemoryStore) Janitor(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Sweep(); n > 0 && onSweep != nil {
				onSweep(n)
			}
		}
	}
}

func (m *MemoryStore) expiredLocked(s *session, now time.Time) bool {
	return m.ttl > 0 && now.Sub(s.lastSeen) > m.ttl
}
