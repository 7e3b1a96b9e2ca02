package backend

import (
	"errors"
	"sort"
	"sync"
)

var ErrSessionExists = errors.New("session already registered")

// A Registry maps connection ids to the Sessions of live connections. A
// Session is registered when its connection is accepted and removed when
// the connection closes.
type Registry struct {
	m        sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Session{}}
}

func (r *Registry) Register(session *Session) error {
	r.m.Lock()
	defer r.m.Unlock()

	if _, ok := r.sessions[session.ID()]; ok {
		return ErrSessionExists
	}
	r.sessions[session.ID()] = session
	sessionsActive.Inc()
	return nil
}

func (r *Registry) Lookup(id string) (*Session, bool) {
	r.m.RLock()
	defer r.m.RUnlock()

	session, ok := r.sessions[id]
	return session, ok
}

// Remove unregisters the session with the given id and returns it.
func (r *Registry) Remove(id string) (*Session, bool) {
	r.m.Lock()
	defer r.m.Unlock()

	session, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		sessionsActive.Dec()
	}
	return session, ok
}

func (r *Registry) Len() int {
	r.m.RLock()
	defer r.m.RUnlock()
	return len(r.sessions)
}

// Views returns a snapshot of every live session, oldest first.
func (r *Registry) Views() []SessionView {
	r.m.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.m.RUnlock()

	views := make([]SessionView, len(sessions))
	for i, session := range sessions {
		views[i] = session.View()
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].ConnectedAt.Equal(views[j].ConnectedAt) {
			return views[i].SessionID < views[j].SessionID
		}
		return views[i].ConnectedAt.Before(views[j].ConnectedAt)
	})
	return views
}
