package session

import (
	"fmt"
	"sync"

	"github.com/peerwire/peerwire-go/pkg/logging"
)

// Registry tracks the live sessions of a process hosting many concurrent
// peers. Sessions remove themselves when they close.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Add registers a session under its peer ID. Duplicate IDs are rejected.
// The session unregisters itself on close.
func (r *Registry) Add(s *Session) error {
	id := s.Peer().PeerID

	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("session %q already registered", id)
	}
	r.sessions[id] = s
	r.mu.Unlock()

	s.callbackMu.Lock()
	s.unregister = func() { r.Remove(id) }
	s.callbackMu.Unlock()

	r.logger.Debug("session registered", logging.String("session", id))
	return nil
}

// Get looks up a session by peer ID.
func (r *Registry) Get(peerID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[peerID]
	return s, ok
}

// Remove drops a session from the registry without closing it.
func (r *Registry) Remove(peerID string) {
	r.mu.Lock()
	_, ok := r.sessions[peerID]
	delete(r.sessions, peerID)
	r.mu.Unlock()
	if ok {
		r.logger.Debug("session removed", logging.String("session", peerID))
	}
}

// Len reports how many sessions are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Each calls fn for every registered session. fn must not block on
// registry operations.
func (r *Registry) Each(fn func(*Session)) {
	r.mu.RLock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	for _, s := range snapshot {
		fn(s)
	}
}

// CloseAll closes every registered session with the given reason.
func (r *Registry) CloseAll(reason error) {
	r.Each(func(s *Session) {
		_ = s.Close(reason)
	})
}
