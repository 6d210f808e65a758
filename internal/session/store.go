package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned by session mutations addressing a session that does
// not exist.
var ErrNotFound = errors.New("session: not found")

// Store is the single owner of session and pending-auth records. All other
// components read and write through it and never hold their own copy across
// calls.
//
// Operations on one session id must be serialized by the caller through
// LockSession: a resume must never race a fresh message against the same
// pending state.
type Store interface {
	// Get retrieves a session, or (nil, nil) if it does not exist.
	Get(ctx context.Context, id string) (*Session, error)

	// CreateOrGet returns the session for id, creating an empty record on
	// first call. It never resets an existing session.
	CreateOrGet(ctx context.Context, id string) (*Session, error)

	// SetConversationID records the remote conversation id. The first write
	// wins: once set, later calls leave the stored id untouched.
	SetConversationID(ctx context.Context, id, conversationID string) error

	// SetPendingAuth marks the session's in-flight turn as suspended.
	SetPendingAuth(ctx context.Context, id string, pending *PendingAuth) error

	// ClearPendingAuth removes the suspension marker.
	ClearPendingAuth(ctx context.Context, id string) error

	// Delete removes the session and any pending auth.
	Delete(ctx context.Context, id string) error

	// CleanupExpired removes sessions idle longer than ttl and reports how
	// many were removed.
	CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error)

	// LockSession acquires the per-session mutex and returns its release
	// function. Turns hold this for their full duration.
	LockSession(id string) (unlock func())

	// Close releases store resources.
	Close() error
}

// sessionLocks hands out one mutex per session id. Entries are kept for the
// life of the process; a dropped entry could mint a second mutex while the
// first is still held.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *sessionLocks) lock(id string) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
