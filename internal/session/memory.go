package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. It is the default store: the
// relay needs no durable state, session records are small, and a restart
// simply forces clients to create a fresh session.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	locks    *sessionLocks
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		locks:    newSessionLocks(),
	}
}

// Get retrieves a session, or (nil, nil) if it does not exist.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return copySession(sess), nil
}

// CreateOrGet returns the session for id, creating an empty record on first
// call.
func (s *MemoryStore) CreateOrGet(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return copySession(sess), nil
	}
	now := time.Now()
	sess := &Session{ID: id, CreatedAt: now, UpdatedAt: now}
	s.sessions[id] = sess
	return copySession(sess), nil
}

// SetConversationID records the remote conversation id; the first write wins.
func (s *MemoryStore) SetConversationID(_ context.Context, id, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if sess.ConversationID != "" {
		return nil
	}
	sess.ConversationID = conversationID
	sess.UpdatedAt = time.Now()
	return nil
}

// SetPendingAuth marks the session's in-flight turn as suspended.
func (s *MemoryStore) SetPendingAuth(_ context.Context, id string, pending *PendingAuth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.PendingAuth = pending
	sess.UpdatedAt = time.Now()
	return nil
}

// ClearPendingAuth removes the suspension marker.
func (s *MemoryStore) ClearPendingAuth(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.PendingAuth = nil
	sess.UpdatedAt = time.Now()
	return nil
}

// Delete removes the session and any pending auth.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// CleanupExpired removes sessions idle longer than ttl.
func (s *MemoryStore) CleanupExpired(_ context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(threshold) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// LockSession acquires the per-session mutex.
func (s *MemoryStore) LockSession(id string) func() {
	return s.locks.lock(id)
}

// Close releases store resources.
func (s *MemoryStore) Close() error { return nil }

// copySession returns a shallow copy so callers never alias the stored
// record. The pending auth config map is shared and treated as read-only.
func copySession(sess *Session) *Session {
	out := *sess
	if sess.PendingAuth != nil {
		pa := *sess.PendingAuth
		out.PendingAuth = &pa
	}
	return &out
}
